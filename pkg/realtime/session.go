package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-speaky/pkg/metrics"
)

// Phase is the lifecycle phase of a Session.
type Phase int

const (
	// PhaseIdle means the session was never started.
	PhaseIdle Phase = iota
	// PhaseConnecting means negotiation is in progress or the channel is not open yet.
	PhaseConnecting
	// PhaseOpen means events can flow.
	PhaseOpen
	// PhaseClosed means the session was stopped or the remote side went away.
	PhaseClosed
)

// String returns a human-readable phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhaseOpen:
		return "open"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config holds Session configuration.
type Config struct {
	// EventLogCap bounds the event log (0 = unbounded).
	EventLogCap int

	// WireTimestamps puts the timestamp field on outbound frames. Off by
	// default because the provider rejects unknown client event fields; the
	// logged copy is always stamped.
	WireTimestamps bool

	// Logger is the structured logger to use.
	Logger *slog.Logger

	// Metrics records event and phase counters. May be nil.
	Metrics *metrics.Metrics

	// Now and NewID are overridable for tests.
	Now   func() time.Time
	NewID func() string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		EventLogCap: 500,
		Logger:      slog.Default(),
		Now:         time.Now,
		NewID:       func() string { return "evt_" + uuid.NewString() },
	}
}

// Option is a functional option for configuring a Session.
type Option func(*Config)

// WithEventLogCap sets the event log capacity (0 = unbounded).
func WithEventLogCap(n int) Option {
	return func(c *Config) {
		c.EventLogCap = n
	}
}

// WithWireTimestamps controls whether timestamps are transmitted.
func WithWireTimestamps(on bool) Option {
	return func(c *Config) {
		c.WireTimestamps = on
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		c.Now = now
	}
}

// WithIDGenerator overrides the event id source.
func WithIDGenerator(fn func() string) Option {
	return func(c *Config) {
		c.NewID = fn
	}
}

// connection is one dial attempt. Callbacks from a stale connection are ignored.
type connection struct {
	ch Channel

	// deliver serializes open and inbound frames. Frames that arrive before
	// the channel opens wait in pending and are replayed after open.
	deliver sync.Mutex
	pending [][]byte
}

// maxPendingFrames bounds the frames held while a channel is still opening.
const maxPendingFrames = 64

// Session is one voice interaction with the provider. Only one connection is
// live at a time; Start after Stop begins a fresh one.
type Session struct {
	cfg    *Config
	logger *slog.Logger
	dialer Dialer
	log    *EventLog

	mu          sync.Mutex
	phase       Phase
	conn        *connection
	subscribers []func(Event)
	openHooks   []func()
	phaseHooks  []func(Phase)

	// sendMu keeps frames from concurrent senders whole and in call order.
	sendMu sync.Mutex
}

// NewSession creates a session that connects through dialer.
func NewSession(dialer Dialer, opts ...Option) *Session {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = DefaultConfig().NewID
	}

	return &Session{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "realtime.session"),
		dialer: dialer,
		log:    NewEventLog(cfg.EventLogCap),
		phase:  PhaseIdle,
	}
}

// Subscribe registers fn for every inbound event. Subscribers run in
// registration order on the channel's callback goroutine.
func (s *Session) Subscribe(fn func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// OnOpen registers fn to run each time a new channel opens.
func (s *Session) OnOpen(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openHooks = append(s.openHooks, fn)
}

// OnPhaseChange registers fn for phase transitions.
func (s *Session) OnPhaseChange(fn func(Phase)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phaseHooks = append(s.phaseHooks, fn)
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// IsOpen reports whether events can be sent.
func (s *Session) IsOpen() bool {
	return s.Phase() == PhaseOpen
}

// Events returns the event log, newest first.
func (s *Session) Events() []Event {
	return s.log.Events()
}

// EventLog exposes the underlying log.
func (s *Session) EventLog() *EventLog {
	return s.log
}

// Start negotiates a new connection. It returns once negotiation finished,
// without waiting for the channel to open. On failure the session returns to
// idle and the error is returned to the caller.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.phase == PhaseConnecting || s.phase == PhaseOpen {
		s.mu.Unlock()
		return ErrAlreadyActive
	}
	c := &connection{}
	s.conn = c
	prev := s.phase
	s.phase = PhaseConnecting
	hooks := s.phaseHooksLocked()
	s.mu.Unlock()
	s.emitPhase(hooks, prev, PhaseConnecting)

	s.logger.Info("starting realtime session")

	ch, err := s.dialer.Dial(ctx, Handlers{
		OnOpen:    func(ch Channel) { s.handleOpen(c, ch) },
		OnMessage: func(data []byte) { s.handleMessage(c, data) },
		OnClose:   func() { s.handleClose(c) },
	})
	if err != nil {
		s.mu.Lock()
		reset := s.conn == c
		if reset {
			s.conn = nil
			s.phase = PhaseIdle
		}
		hooks := s.phaseHooksLocked()
		s.mu.Unlock()
		if reset {
			s.emitPhase(hooks, PhaseConnecting, PhaseIdle)
		}

		s.logger.Error("realtime negotiation failed", "error", err)
		if !IsConnectionError(err) {
			err = NewConnectionError("negotiate", err)
		}
		return err
	}

	s.mu.Lock()
	if s.conn != c {
		s.mu.Unlock()
		_ = ch.Close()
		return ErrSessionStopped
	}
	if c.ch == nil {
		c.ch = ch
	}
	s.mu.Unlock()

	s.logger.Info("realtime negotiation complete, waiting for channel")
	return nil
}

// Stop tears down the channel and peer connection and moves the session to
// closed. It is synchronous and safe to call multiple times.
func (s *Session) Stop() {
	s.mu.Lock()
	c := s.conn
	s.conn = nil
	prev := s.phase
	changed := prev == PhaseConnecting || prev == PhaseOpen
	if changed {
		s.phase = PhaseClosed
	}
	hooks := s.phaseHooksLocked()
	s.mu.Unlock()

	if c != nil && c.ch != nil {
		if err := c.ch.Close(); err != nil {
			s.logger.Warn("close channel", "error", err)
		}
	}
	if changed {
		s.logger.Info("realtime session stopped")
		s.emitPhase(hooks, prev, PhaseClosed)
	}
}

// Send stamps, serializes, transmits and logs ev. It is a no-op when no
// channel is open.
func (s *Session) Send(ev Event) error {
	s.mu.Lock()
	var ch Channel
	if s.phase == PhaseOpen && s.conn != nil {
		ch = s.conn.ch
	}
	s.mu.Unlock()

	if ch == nil {
		s.logger.Debug("channel not open, dropping event", "type", ev.Type)
		return nil
	}

	if ev.EventID == "" {
		ev.EventID = s.cfg.NewID()
	}
	if ev.Timestamp == "" {
		ev.Timestamp = s.cfg.Now().Format(TimestampLayout)
	}

	data, err := ev.encode(s.cfg.WireTimestamps)
	if err != nil {
		return fmt.Errorf("realtime: encode %s: %w", ev.Type, err)
	}

	s.sendMu.Lock()
	err = ch.Send(data)
	s.sendMu.Unlock()
	if err != nil {
		if errors.Is(err, ErrChannelClosed) {
			s.logger.Debug("channel closed under send, dropping event", "type", ev.Type)
			return nil
		}
		s.cfg.Metrics.ObserveError("send")
		return fmt.Errorf("realtime: send %s: %w", ev.Type, err)
	}

	s.log.Add(ev)
	s.cfg.Metrics.ObserveEvent(metrics.DirectionOutbound, ev.Type)
	s.logger.Debug("sent event", "type", ev.Type, "event_id", ev.EventID)
	return nil
}

// SendSequence sends events in order, waiting at least gap between two
// consecutive sends. It stops at the first error or when ctx is done.
func (s *Session) SendSequence(ctx context.Context, gap time.Duration, events ...Event) error {
	for i, ev := range events {
		if i > 0 && gap > 0 {
			timer := time.NewTimer(gap)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if err := s.Send(ev); err != nil {
			return err
		}
	}
	return nil
}

// SendText sends a user text message and asks the model to respond.
func (s *Session) SendText(text string) error {
	return s.SendSequence(context.Background(), 0, MessageItem("user", text), ResponseCreate())
}

func (s *Session) handleOpen(c *connection, ch Channel) {
	c.deliver.Lock()
	defer c.deliver.Unlock()

	s.mu.Lock()
	if s.conn != c {
		s.mu.Unlock()
		_ = ch.Close()
		return
	}
	c.ch = ch
	prev := s.phase
	if prev == PhaseOpen {
		s.mu.Unlock()
		return
	}
	s.phase = PhaseOpen
	s.log.Clear()
	pending := c.pending
	c.pending = nil
	openHooks := append([]func(){}, s.openHooks...)
	hooks := s.phaseHooksLocked()
	s.mu.Unlock()

	s.logger.Info("realtime channel open", "early_frames", len(pending))
	s.emitPhase(hooks, prev, PhaseOpen)
	for _, fn := range openHooks {
		fn()
	}

	for _, data := range pending {
		s.mu.Lock()
		stale := s.conn != c
		subs := append([]func(Event){}, s.subscribers...)
		s.mu.Unlock()
		if stale {
			return
		}
		s.deliverFrame(subs, data)
	}
}

func (s *Session) handleMessage(c *connection, data []byte) {
	c.deliver.Lock()
	defer c.deliver.Unlock()

	s.mu.Lock()
	if s.conn != c {
		s.mu.Unlock()
		return
	}
	if s.phase != PhaseOpen {
		held := len(c.pending) < maxPendingFrames
		if held {
			c.pending = append(c.pending, append([]byte(nil), data...))
		}
		s.mu.Unlock()
		if held {
			s.logger.Debug("holding frame until channel opens")
		} else {
			s.logger.Warn("dropping frame received before open", "len", len(data))
			s.cfg.Metrics.ObserveError("early_frame")
		}
		return
	}
	subs := append([]func(Event){}, s.subscribers...)
	s.mu.Unlock()

	s.deliverFrame(subs, data)
}

func (s *Session) deliverFrame(subs []func(Event), data []byte) {
	ev, err := ParseEvent(data)
	if err != nil {
		s.logger.Warn("dropping unparsable event", "error", err, "len", len(data))
		s.cfg.Metrics.ObserveError("decode")
		return
	}
	if ev.Timestamp == "" {
		ev.Timestamp = s.cfg.Now().Format(TimestampLayout)
	}

	s.log.Add(ev)
	s.cfg.Metrics.ObserveEvent(metrics.DirectionInbound, ev.Type)
	s.logger.Debug("received event", "type", ev.Type)

	for _, fn := range subs {
		fn(ev)
	}
}

func (s *Session) handleClose(c *connection) {
	s.mu.Lock()
	if s.conn != c {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	prev := s.phase
	s.phase = PhaseClosed
	ch := c.ch
	hooks := s.phaseHooksLocked()
	s.mu.Unlock()

	s.logger.Info("realtime channel closed by remote")
	if ch != nil {
		_ = ch.Close()
	}
	s.emitPhase(hooks, prev, PhaseClosed)
}

func (s *Session) phaseHooksLocked() []func(Phase) {
	return append([]func(Phase){}, s.phaseHooks...)
}

func (s *Session) emitPhase(hooks []func(Phase), from, p Phase) {
	s.cfg.Metrics.ObservePhase(from.String(), p.String())
	for _, fn := range hooks {
		fn(p)
	}
}
