package assistant

import (
	"log/slog"
	"time"

	"github.com/teslashibe/go-speaky/pkg/metrics"
	"github.com/teslashibe/go-speaky/pkg/tools"
)

// Config holds assistant configuration.
type Config struct {
	// Instructions is the system prompt sent in session.update. Empty uses
	// tools.SystemInstructions for DefaultRecipient.
	Instructions string

	// Greeting is the system message injected after configuration.
	Greeting string

	// DefaultRecipient is where send_ethereum goes when no recipient is named.
	DefaultRecipient string

	// InitGap separates session.update from the greeting.
	InitGap time.Duration

	// OutputGap separates a tool result from the response.create that follows.
	OutputGap time.Duration

	// EventLogCap bounds the session event log (0 = unbounded).
	EventLogCap int

	// WireTimestamps stamps outgoing events with the send time.
	WireTimestamps bool

	// Logger is the structured logger to use.
	Logger *slog.Logger

	// Metrics may be nil.
	Metrics *metrics.Metrics
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Greeting:    tools.WelcomeMessage,
		InitGap:     500 * time.Millisecond,
		OutputGap:   100 * time.Millisecond,
		EventLogCap: 500,
		Logger:      slog.Default(),
	}
}

// Option is a functional option for configuring the assistant.
type Option func(*Config)

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// instructions resolves the prompt advertised to the model.
func (c *Config) instructions() string {
	if c.Instructions != "" {
		return c.Instructions
	}
	return tools.SystemInstructions(c.DefaultRecipient)
}

// WithInstructions overrides the system prompt.
func WithInstructions(s string) Option {
	return func(c *Config) {
		c.Instructions = s
	}
}

// WithGreeting overrides the greeting message.
func WithGreeting(s string) Option {
	return func(c *Config) {
		c.Greeting = s
	}
}

// WithDefaultRecipient sets the fallback send target.
func WithDefaultRecipient(addr string) Option {
	return func(c *Config) {
		c.DefaultRecipient = addr
	}
}

// WithGaps sets the init and output gaps.
func WithGaps(initGap, outputGap time.Duration) Option {
	return func(c *Config) {
		c.InitGap = initGap
		c.OutputGap = outputGap
	}
}

// WithEventLogCap sets the event log capacity.
func WithEventLogCap(n int) Option {
	return func(c *Config) {
		c.EventLogCap = n
	}
}

// WithWireTimestamps stamps outgoing events before they are sent.
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
