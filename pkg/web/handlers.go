package web

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-speaky/pkg/assistant"
	"github.com/teslashibe/go-speaky/pkg/hub"
	"github.com/teslashibe/go-speaky/pkg/protocol"
	"github.com/teslashibe/go-speaky/pkg/realtime"
	"github.com/teslashibe/go-speaky/pkg/wallet"
)

// defaultEventLimit is how many log entries /api/events and /ws/events return
// when no limit is given.
const defaultEventLimit = 100

// handleStatus returns the assistant's current state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.ctrl.Status())
}

// handleListTools returns the advertised tool definitions
func (s *Server) handleListTools(c *fiber.Ctx) error {
	return c.JSON(s.ctrl.Tools())
}

// TriggerToolRequest is the request body for triggering a tool
type TriggerToolRequest struct {
	Args map[string]interface{} `json:"args"`
}

// handleTriggerTool triggers a tool manually
func (s *Server) handleTriggerTool(c *fiber.Ctx) error {
	name := c.Params("name")

	var req TriggerToolRequest
	if err := c.BodyParser(&req); err != nil || req.Args == nil {
		req.Args = make(map[string]interface{})
	}

	result, err := s.ctrl.TriggerTool(c.UserContext(), name, req.Args)
	if errors.Is(err, assistant.ErrUnknownTool) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	s.logger.Info("manual tool trigger", "tool", name, "success", result.Success)
	msg, err := protocol.NewToolResultMessage(toolResultData(name, "", result))
	s.publish(s.eventHub, msg, err)

	return c.JSON(fiber.Map{
		"tool":   name,
		"result": result,
	})
}

// handleGetEvents returns the newest log entries, newest first
func (s *Server) handleGetEvents(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultEventLimit)
	return c.JSON(s.recentEvents(limit))
}

// handleGetToasts returns recent toasts, oldest first
func (s *Server) handleGetToasts(c *fiber.Ctx) error {
	s.toastsMu.RLock()
	defer s.toastsMu.RUnlock()
	out := make([]protocol.ToastData, len(s.toasts))
	copy(out, s.toasts)
	return c.JSON(out)
}

func (s *Server) recentEvents(limit int) []protocol.EventData {
	events := s.ctrl.Events()
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	out := make([]protocol.EventData, len(events))
	for i, ev := range events {
		out[i] = eventData(ev)
	}
	return out
}

// handleStart opens a voice session
func (s *Server) handleStart(c *fiber.Ctx) error {
	err := s.ctrl.Start(c.UserContext())
	switch {
	case errors.Is(err, realtime.ErrAlreadyActive):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	case err != nil:
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	s.PublishStatus()
	return c.JSON(s.ctrl.Status())
}

// handleStop closes the voice session
func (s *Server) handleStop(c *fiber.Ctx) error {
	s.ctrl.Stop()
	s.PublishStatus()
	return c.JSON(s.ctrl.Status())
}

// MessageRequest is the request body for a typed message
type MessageRequest struct {
	Text string `json:"text"`
}

// handleMessage sends a typed user message to the model
func (s *Server) handleMessage(c *fiber.Ctx) error {
	var req MessageRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "text is required",
		})
	}
	if s.ctrl.Status().Phase != realtime.PhaseOpen.String() {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "session is not open",
		})
	}
	if err := s.ctrl.SendText(req.Text); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"sent": true})
}

// handleWalletConnect connects the wallet
func (s *Server) handleWalletConnect(c *fiber.Ctx) error {
	if err := s.ctrl.ConnectWallet(c.UserContext()); err != nil {
		status := fiber.StatusBadGateway
		if errors.Is(err, assistant.ErrNoWallet) || errors.Is(err, wallet.ErrNoWallet) {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	s.PublishStatus()
	return c.JSON(s.ctrl.Status().Wallet)
}

// handleWalletDisconnect disconnects the wallet
func (s *Server) handleWalletDisconnect(c *fiber.Ctx) error {
	if err := s.ctrl.DisconnectWallet(); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	s.PublishStatus()
	return c.JSON(s.ctrl.Status().Wallet)
}

// handleEventsWS streams the event log: recent history first, then live
func (s *Server) handleEventsWS(c *websocket.Conn) {
	s.serve(s.eventHub, c, func() []*protocol.Message {
		events := s.recentEvents(defaultEventLimit)
		msgs := make([]*protocol.Message, 0, len(events))
		for i := len(events) - 1; i >= 0; i-- {
			if msg, err := protocol.NewEventMessage(events[i]); err == nil {
				msgs = append(msgs, msg)
			}
		}
		return msgs
	})
}

// handleToastsWS streams toasts: recent history first, then live
func (s *Server) handleToastsWS(c *websocket.Conn) {
	s.serve(s.toastHub, c, func() []*protocol.Message {
		s.toastsMu.RLock()
		history := append([]protocol.ToastData(nil), s.toasts...)
		s.toastsMu.RUnlock()

		msgs := make([]*protocol.Message, 0, len(history))
		for _, t := range history {
			if msg, err := protocol.NewToastMessage(t); err == nil {
				msgs = append(msgs, msg)
			}
		}
		return msgs
	})
}

// handleStatusWS streams status updates, starting with the current one
func (s *Server) handleStatusWS(c *websocket.Conn) {
	s.serve(s.statusHub, c, func() []*protocol.Message {
		msg, err := protocol.NewStatusMessage(statusData(s.ctrl.Status()))
		if err != nil {
			return nil
		}
		return []*protocol.Message{msg}
	})
}

// serve hands the connection to a hub until it closes. history is captured
// while the hub registers the client and sent ahead of live messages.
func (s *Server) serve(h *hub.Hub, c *websocket.Conn, history func() []*protocol.Message) {
	client := hub.NewClient(h, c, func() []hub.Message {
		return s.backlog(history())
	})
	if client == nil {
		return
	}
	client.Run()
}

func (s *Server) backlog(msgs []*protocol.Message) []hub.Message {
	out := make([]hub.Message, 0, len(msgs))
	for _, msg := range msgs {
		data, err := msg.Bytes()
		if err != nil {
			s.logger.Warn("dropping history message", "type", msg.Type, "error", err)
			continue
		}
		out = append(out, hub.Message{Type: string(msg.Type), Data: data})
	}
	return out
}
