// Package web provides the operator dashboard: a REST API over the assistant
// and live WebSocket streams of events, toasts and status.
package web

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-speaky/pkg/assistant"
	"github.com/teslashibe/go-speaky/pkg/broker"
	"github.com/teslashibe/go-speaky/pkg/hub"
	"github.com/teslashibe/go-speaky/pkg/metrics"
	"github.com/teslashibe/go-speaky/pkg/notify"
	"github.com/teslashibe/go-speaky/pkg/protocol"
	"github.com/teslashibe/go-speaky/pkg/realtime"
	"github.com/teslashibe/go-speaky/pkg/tools"
)

// Controller is what the dashboard drives.
type Controller interface {
	Start(ctx context.Context) error
	Stop()
	SendText(text string) error
	Status() assistant.Status
	Events() []realtime.Event
	Tools() []tools.Definition
	TriggerTool(ctx context.Context, name string, args map[string]any) (tools.Result, error)
	ConnectWallet(ctx context.Context) error
	DisconnectWallet() error
}

// recentToasts bounds the toast history kept for late joiners.
const recentToasts = 50

// Config holds server configuration.
type Config struct {
	// Addr is the listen address.
	Addr string

	// StaticDir, when set, is served at /.
	StaticDir string

	// Broker, when set, is mounted under /api.
	Broker *broker.Broker

	// Metrics, when set, is exposed at /metrics.
	Metrics *metrics.Metrics

	// Logger is the structured logger to use.
	Logger *slog.Logger
}

// Option is a functional option for configuring the Server.
type Option func(*Config)

// WithStaticDir serves a directory at /.
func WithStaticDir(dir string) Option {
	return func(c *Config) {
		c.StaticDir = dir
	}
}

// WithBroker mounts the credential broker endpoints.
func WithBroker(b *broker.Broker) Option {
	return func(c *Config) {
		c.Broker = b
	}
}

// WithMetrics exposes the registry at /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// Server is the web dashboard server
type Server struct {
	cfg    *Config
	app    *fiber.App
	ctrl   Controller
	logger *slog.Logger

	toasts   []protocol.ToastData
	toastsMu sync.RWMutex

	// Hubs for websocket broadcast
	eventHub  *hub.Hub
	toastHub  *hub.Hub
	statusHub *hub.Hub

	runOnce sync.Once
}

// NewServer creates a new web dashboard server
func NewServer(addr string, ctrl Controller, opts ...Option) *Server {
	cfg := &Config{Addr: addr, Logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		cfg:       cfg,
		ctrl:      ctrl,
		logger:    cfg.Logger.With("component", "web"),
		eventHub:  hub.New("events", cfg.Logger),
		toastHub:  hub.New("toasts", cfg.Logger),
		statusHub: hub.New("status", cfg.Logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Speaky Dashboard",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	// CORS for local development
	app.Use(cors.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		st := ctrl.Status()
		return c.JSON(fiber.Map{
			"status": "ok",
			"phase":  st.Phase,
			"events": st.Events,
		})
	})

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	api := app.Group("/api")
	if cfg.Broker != nil {
		cfg.Broker.Register(api)
	}
	api.Get("/status", s.handleStatus)
	api.Get("/tools", s.handleListTools)
	api.Post("/tools/:name", s.handleTriggerTool)
	api.Get("/events", s.handleGetEvents)
	api.Get("/toasts", s.handleGetToasts)
	api.Post("/assistant/start", s.handleStart)
	api.Post("/assistant/stop", s.handleStop)
	api.Post("/assistant/message", s.handleMessage)
	api.Post("/wallet/connect", s.handleWalletConnect)
	api.Post("/wallet/disconnect", s.handleWalletDisconnect)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/events", websocket.New(s.handleEventsWS))
	app.Get("/ws/toasts", websocket.New(s.handleToastsWS))
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// App exposes the Fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// runHubs starts the broadcast hubs once.
func (s *Server) runHubs() {
	s.runOnce.Do(func() {
		go s.eventHub.Run()
		go s.toastHub.Run()
		go s.statusHub.Run()
	})
}

// Start starts the web server and blocks until it stops.
func (s *Server) Start() error {
	s.runHubs()
	s.logger.Info("dashboard listening", "addr", s.cfg.Addr)
	return s.app.Listen(s.cfg.Addr)
}

// Notify implements notify.Notifier: the toast is kept for late joiners and
// pushed to connected dashboards.
func (s *Server) Notify(t notify.Toast) {
	data := protocol.ToastData{
		Title:       t.Title,
		Description: t.Description,
		Color:       t.Color,
		Icon:        t.Icon,
	}

	s.toastsMu.Lock()
	s.toasts = append(s.toasts, data)
	if len(s.toasts) > recentToasts {
		s.toasts = s.toasts[len(s.toasts)-recentToasts:]
	}
	s.toastsMu.Unlock()

	msg, err := protocol.NewToastMessage(data)
	s.publish(s.toastHub, msg, err)
}

// PublishEvent pushes a session event to dashboards.
func (s *Server) PublishEvent(ev realtime.Event) {
	msg, err := protocol.NewEventMessage(eventData(ev))
	s.publish(s.eventHub, msg, err)
}

// PublishStatus pushes the current status to dashboards.
func (s *Server) PublishStatus() {
	msg, err := protocol.NewStatusMessage(statusData(s.ctrl.Status()))
	s.publish(s.statusHub, msg, err)
}

// PublishToolResult pushes a finished tool call to the event stream.
func (s *Server) PublishToolResult(call realtime.ToolCall, res tools.Result) {
	msg, err := protocol.NewToolResultMessage(toolResultData(call.Name, call.CallID, res))
	s.publish(s.eventHub, msg, err)
}

func (s *Server) publish(h *hub.Hub, msg *protocol.Message, err error) {
	if err != nil {
		s.logger.Warn("encode dashboard message", "error", err)
		return
	}
	if err := h.BroadcastMessage(msg); err != nil {
		s.logger.Warn("broadcast dashboard message", "error", err)
	}
}

// Shutdown gracefully stops the web server
func (s *Server) Shutdown() error {
	s.eventHub.Stop()
	s.toastHub.Stop()
	s.statusHub.Stop()
	return s.app.Shutdown()
}

func eventData(ev realtime.Event) protocol.EventData {
	return protocol.EventData{
		Type:      ev.Type,
		EventID:   ev.EventID,
		Timestamp: ev.Timestamp,
		Payload:   ev.Payload,
	}
}

func statusData(st assistant.Status) protocol.StatusData {
	return protocol.StatusData{
		Phase:            st.Phase,
		Configured:       st.Configured,
		WalletConnected:  st.Wallet.Connected,
		WalletConnecting: st.Wallet.Connecting,
		Address:          st.Wallet.Address,
		Events:           st.Events,
	}
}

func toolResultData(name, callID string, res tools.Result) protocol.ToolResultData {
	return protocol.ToolResultData{
		Tool:      name,
		CallID:    callID,
		Success:   res.Success,
		Message:   res.Message,
		ErrorCode: string(res.ErrorCode),
	}
}

var _ notify.Notifier = (*Server)(nil)
