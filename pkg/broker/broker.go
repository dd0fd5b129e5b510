// Package broker holds the server-side provider key and hands out what a
// client needs to open a realtime session: a short-lived credential, or an
// SDP answer negotiated on the client's behalf.
package broker

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-speaky/internal/httpc"
	"github.com/teslashibe/go-speaky/pkg/metrics"
)

// Error messages returned as plain-text bodies.
const (
	msgNoAPIKey      = "OpenAI API key not configured"
	msgTokenFailed   = "Failed to generate token"
	msgSDPRequired   = "SDP is required"
	msgSessionFailed = "Failed to create session"
)

// Endpoint labels for metrics.
const (
	EndpointToken   = "token"
	EndpointSession = "session"
)

// Config holds broker configuration.
type Config struct {
	// APIKey is the provider key. It never leaves the server.
	APIKey string

	// BaseURL is the provider API root.
	BaseURL string

	// Model and Voice go into the session description.
	Model string
	Voice string

	// Timeout bounds each upstream call.
	Timeout time.Duration

	// Logger is the structured logger to use.
	Logger *slog.Logger

	// Metrics may be nil.
	Metrics *metrics.Metrics
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-realtime",
		Voice:   "marin",
		Timeout: 30 * time.Second,
		Logger:  slog.Default(),
	}
}

// Option is a functional option for configuring a Broker.
type Option func(*Config)

// WithAPIKey sets the provider key.
func WithAPIKey(key string) Option {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithBaseURL sets the provider API root.
func WithBaseURL(u string) Option {
	return func(c *Config) {
		c.BaseURL = u
	}
}

// WithModel sets the realtime model.
func WithModel(m string) Option {
	return func(c *Config) {
		c.Model = m
	}
}

// WithVoice sets the output voice.
func WithVoice(v string) Option {
	return func(c *Config) {
		c.Voice = v
	}
}

// WithTimeout sets the upstream timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
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

// sessionConfig is the session description sent upstream.
type sessionConfig struct {
	Session sessionSpec `json:"session"`
}

type sessionSpec struct {
	Type  string    `json:"type"`
	Model string    `json:"model"`
	Audio audioSpec `json:"audio"`
}

type audioSpec struct {
	Output struct {
		Voice string `json:"voice"`
	} `json:"output"`
}

// SessionRequest is the body of POST /session.
type SessionRequest struct {
	SDP string `json:"sdp"`
}

// SessionResponse is the reply of POST /session.
type SessionResponse struct {
	SDP string `json:"sdp"`
}

// Broker serves the credential endpoints.
type Broker struct {
	cfg      *Config
	logger   *slog.Logger
	upstream *resty.Client
}

// New creates a Broker.
func New(opts ...Option) *Broker {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Broker{
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "broker"),
		upstream: httpc.NewResty(strings.TrimRight(cfg.BaseURL, "/"), cfg.Timeout),
	}
}

// Register mounts GET /token and POST /session on r.
func (b *Broker) Register(r fiber.Router) {
	r.Get("/token", b.handleToken)
	r.Post("/session", b.handleSession)
}

// App returns a standalone Fiber app serving the endpoints under /api.
func (b *Broker) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "Speaky Broker",
		DisableStartupMessage: true,
	})
	b.Register(app.Group("/api"))
	return app
}

func (b *Broker) session() sessionConfig {
	cfg := sessionConfig{Session: sessionSpec{Type: "realtime", Model: b.cfg.Model}}
	cfg.Session.Audio.Output.Voice = b.cfg.Voice
	return cfg
}

// handleToken mints a short-lived client credential and passes the
// provider's JSON through unchanged.
func (b *Broker) handleToken(c *fiber.Ctx) error {
	if b.cfg.APIKey == "" {
		b.cfg.Metrics.ObserveBroker(EndpointToken, fiber.StatusInternalServerError)
		return fiber.NewError(fiber.StatusInternalServerError, msgNoAPIKey)
	}

	resp, err := b.upstream.R().
		SetContext(c.UserContext()).
		SetAuthToken(b.cfg.APIKey).
		SetHeader(fiber.HeaderContentType, fiber.MIMEApplicationJSON).
		SetBody(b.session()).
		Post("/realtime/client_secrets")
	if err == nil && resp.IsError() {
		err = &UpstreamError{StatusCode: resp.StatusCode(), Status: resp.Status()}
	}
	if err == nil && !json.Valid(resp.Body()) {
		err = ErrInvalidUpstreamBody
	}
	if err != nil {
		b.logger.Error("token generation failed", "error", err)
		b.cfg.Metrics.ObserveBroker(EndpointToken, fiber.StatusInternalServerError)
		return fiber.NewError(fiber.StatusInternalServerError, msgTokenFailed)
	}

	b.cfg.Metrics.ObserveBroker(EndpointToken, fiber.StatusOK)
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(resp.Body())
}

// handleSession relays the client's SDP offer upstream together with the
// session description and returns the SDP answer.
func (b *Broker) handleSession(c *fiber.Ctx) error {
	if b.cfg.APIKey == "" {
		b.cfg.Metrics.ObserveBroker(EndpointSession, fiber.StatusInternalServerError)
		return fiber.NewError(fiber.StatusInternalServerError, msgNoAPIKey)
	}

	var req SessionRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.SDP) == "" {
		b.cfg.Metrics.ObserveBroker(EndpointSession, fiber.StatusBadRequest)
		return fiber.NewError(fiber.StatusBadRequest, msgSDPRequired)
	}

	session, err := json.Marshal(b.session())
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, msgSessionFailed)
	}

	resp, err := b.upstream.R().
		SetContext(c.UserContext()).
		SetAuthToken(b.cfg.APIKey).
		SetHeader("OpenAI-Beta", "realtime=v1").
		SetMultipartFormData(map[string]string{
			"sdp":     req.SDP,
			"session": string(session),
		}).
		Post("/realtime/calls")
	if err == nil && resp.IsError() {
		err = &UpstreamError{StatusCode: resp.StatusCode(), Status: resp.Status()}
	}
	if err != nil {
		b.logger.Error("session creation failed", "error", err)
		b.cfg.Metrics.ObserveBroker(EndpointSession, fiber.StatusInternalServerError)
		return fiber.NewError(fiber.StatusInternalServerError, msgSessionFailed)
	}

	b.cfg.Metrics.ObserveBroker(EndpointSession, fiber.StatusOK)
	return c.JSON(SessionResponse{SDP: resp.String()})
}
