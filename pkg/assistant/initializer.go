package assistant

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-speaky/pkg/realtime"
	"github.com/teslashibe/go-speaky/pkg/tools"
)

// Sender is the part of a realtime session the assistant writes through.
type Sender interface {
	Send(ev realtime.Event) error
	SendSequence(ctx context.Context, gap time.Duration, events ...realtime.Event) error
}

// Initializer configures a freshly opened session: tools, instructions and a
// greeting. It runs at most once per open phase.
type Initializer struct {
	sender       Sender
	registry     *tools.Registry
	instructions string
	greeting     string
	gap          time.Duration
	logger       *slog.Logger

	configured atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewInitializer creates an Initializer that writes through sender.
func NewInitializer(sender Sender, registry *tools.Registry, cfg *Config) *Initializer {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Initializer{
		sender:       sender,
		registry:     registry,
		instructions: cfg.instructions(),
		greeting:     cfg.Greeting,
		gap:          cfg.InitGap,
		logger:       logger.With("component", "assistant.init"),
	}
}

// Configured reports whether the current open phase was configured.
func (i *Initializer) Configured() bool {
	return i.configured.Load()
}

// Reset re-arms the initializer for a new open phase and abandons any
// sequence still waiting on its gap.
func (i *Initializer) Reset() {
	i.mu.Lock()
	if i.cancel != nil {
		i.cancel()
		i.cancel = nil
	}
	i.mu.Unlock()
	i.configured.Store(false)
}

// Handle reacts to session.created. The configure sequence runs on its own
// goroutine so the inbound event stream is not held up by the gap.
func (i *Initializer) Handle(ev realtime.Event) {
	if ev.Type != realtime.TypeSessionCreated {
		return
	}
	if !i.configured.CompareAndSwap(false, true) {
		i.logger.Debug("session already configured, ignoring duplicate session.created")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	i.mu.Lock()
	if i.cancel != nil {
		i.cancel()
	}
	i.cancel = cancel
	i.mu.Unlock()

	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		defer cancel()
		if err := i.configure(ctx); err != nil && ctx.Err() == nil {
			i.logger.Error("session configuration failed", "error", err)
		}
	}()
}

// Wait blocks until in-flight configure sequences finish.
func (i *Initializer) Wait() {
	i.wg.Wait()
}

func (i *Initializer) configure(ctx context.Context) error {
	i.logger.Info("configuring session", "tools", len(i.registry.Names()))

	if err := i.sender.Send(SessionUpdate(i.instructions, i.registry)); err != nil {
		return err
	}
	if i.greeting == "" {
		return nil
	}
	if err := sleep(ctx, i.gap); err != nil {
		return err
	}
	return i.sender.SendSequence(ctx, 0,
		realtime.MessageItem("system", i.greeting),
		realtime.ResponseCreate(),
	)
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SessionUpdate builds the session.update event advertising instructions and
// the registry's tools.
func SessionUpdate(instructions string, registry *tools.Registry) realtime.Event {
	return realtime.NewEvent(realtime.TypeSessionUpdate, map[string]any{
		"session": map[string]any{
			"type":         "realtime",
			"instructions": instructions,
			"tools":        registry.Schema(),
			"tool_choice":  "auto",
		},
	})
}
