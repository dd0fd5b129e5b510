// Package assistant wires a realtime session to the tool registry: it
// configures each new session and answers the model's tool calls.
package assistant

import (
	"context"
	"log/slog"

	"github.com/teslashibe/go-speaky/pkg/notify"
	"github.com/teslashibe/go-speaky/pkg/realtime"
	"github.com/teslashibe/go-speaky/pkg/tools"
	"github.com/teslashibe/go-speaky/pkg/wallet"
)

// Wallet is the wallet surface the assistant drives.
type Wallet interface {
	tools.WalletService
	Connect(ctx context.Context) error
	Disconnect()
}

// Status is a point-in-time snapshot for dashboards.
type Status struct {
	Phase      string       `json:"phase"`
	Configured bool         `json:"configured"`
	Wallet     wallet.State `json:"wallet"`
	Events     int          `json:"events"`
	Tools      []string     `json:"tools"`
}

// Assistant is one voice assistant: a session plus the components that
// react to its events.
type Assistant struct {
	cfg      *Config
	logger   *slog.Logger
	session  *realtime.Session
	registry *tools.Registry
	env      *tools.Env
	wallet   Wallet
	init     *Initializer
	dispatch *Dispatcher
}

// New creates an assistant that connects through dialer. w and n may be nil;
// tools then report the wallet as not connected and toasts are dropped.
func New(dialer realtime.Dialer, w Wallet, n notify.Notifier, opts ...Option) *Assistant {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	session := realtime.NewSession(dialer,
		realtime.WithEventLogCap(cfg.EventLogCap),
		realtime.WithWireTimestamps(cfg.WireTimestamps),
		realtime.WithLogger(cfg.Logger),
		realtime.WithMetrics(cfg.Metrics),
	)
	registry := tools.DefaultRegistry()

	env := &tools.Env{
		Notifier:         n,
		DefaultRecipient: cfg.DefaultRecipient,
		Logger:           cfg.Logger.With("component", "tools"),
	}
	if w != nil {
		env.Wallet = w
	}

	a := &Assistant{
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "assistant"),
		session:  session,
		registry: registry,
		env:      env,
		wallet:   w,
		init:     NewInitializer(session, registry, cfg),
		dispatch: NewDispatcher(session, registry, env, cfg),
	}

	session.OnOpen(a.init.Reset)
	session.Subscribe(func(ev realtime.Event) {
		a.init.Handle(ev)
		a.dispatch.Handle(ev)
	})
	return a
}

// Session exposes the underlying realtime session.
func (a *Assistant) Session() *realtime.Session {
	return a.session
}

// Dispatcher exposes the tool call dispatcher.
func (a *Assistant) Dispatcher() *Dispatcher {
	return a.dispatch
}

// Start opens a new voice session.
func (a *Assistant) Start(ctx context.Context) error {
	return a.session.Start(ctx)
}

// Stop closes the voice session. In-flight tool calls keep running.
func (a *Assistant) Stop() {
	a.session.Stop()
}

// Close stops the session and waits for in-flight work.
func (a *Assistant) Close() {
	a.Stop()
	a.Wait()
}

// Wait blocks until configure sequences and tool calls have finished.
func (a *Assistant) Wait() {
	a.init.Wait()
	a.dispatch.Wait()
}

// SendText sends a typed user message.
func (a *Assistant) SendText(text string) error {
	return a.session.SendText(text)
}

// Subscribe registers fn for every inbound event.
func (a *Assistant) Subscribe(fn func(realtime.Event)) {
	a.session.Subscribe(fn)
}

// OnPhaseChange registers fn for session phase transitions.
func (a *Assistant) OnPhaseChange(fn func(realtime.Phase)) {
	a.session.OnPhaseChange(fn)
}

// Events returns the session event log, newest first.
func (a *Assistant) Events() []realtime.Event {
	return a.session.Events()
}

// Tools returns the advertised tool definitions.
func (a *Assistant) Tools() []tools.Definition {
	return a.registry.Definitions()
}

// TriggerTool runs a tool directly, outside any model turn.
func (a *Assistant) TriggerTool(ctx context.Context, name string, args map[string]any) (tools.Result, error) {
	return a.dispatch.Execute(ctx, name, args)
}

// ConnectWallet connects the wallet.
func (a *Assistant) ConnectWallet(ctx context.Context) error {
	if a.wallet == nil {
		return ErrNoWallet
	}
	return a.wallet.Connect(ctx)
}

// DisconnectWallet disconnects the wallet.
func (a *Assistant) DisconnectWallet() error {
	if a.wallet == nil {
		return ErrNoWallet
	}
	a.wallet.Disconnect()
	return nil
}

// Status returns a snapshot of the assistant.
func (a *Assistant) Status() Status {
	st := Status{
		Phase:      a.session.Phase().String(),
		Configured: a.init.Configured(),
		Events:     a.session.EventLog().Len(),
		Tools:      a.registry.Names(),
	}
	if a.wallet != nil {
		st.Wallet = a.wallet.State()
	}
	return st
}

var _ Wallet = (*wallet.Wallet)(nil)
