package realtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
)

// DefaultWebSocketURL is the provider's realtime websocket endpoint.
const DefaultWebSocketURL = "wss://api.openai.com/v1/realtime"

// WebSocketDialer connects to the provider over a websocket using a
// short-lived credential. It carries events only; audio stays with WebRTC.
type WebSocketDialer struct {
	tokens   TokenSource
	endpoint string
	model    string
	dialer   *websocket.Dialer
	logger   *slog.Logger
}

// NewWebSocketDialer creates a websocket dialer. endpoint and model fall back
// to the OpenAI defaults when empty.
func NewWebSocketDialer(tokens TokenSource, endpoint, model string, logger *slog.Logger) *WebSocketDialer {
	if endpoint == "" {
		endpoint = DefaultWebSocketURL
	}
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketDialer{
		tokens:   tokens,
		endpoint: endpoint,
		model:    model,
		dialer:   websocket.DefaultDialer,
		logger:   logger.With("component", "realtime.websocket"),
	}
}

// Dial implements Dialer. The channel is open as soon as the handshake
// completes, so OnOpen fires before Dial returns.
func (d *WebSocketDialer) Dial(ctx context.Context, h Handlers) (Channel, error) {
	token, err := d.tokens.Token(ctx)
	if err != nil {
		return nil, NewConnectionError("token", err)
	}

	u, err := url.Parse(d.endpoint)
	if err != nil {
		return nil, NewConnectionError("endpoint", err)
	}
	q := u.Query()
	q.Set("model", d.model)
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+token)

	conn, resp, err := d.dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if resp != nil {
			return nil, NewConnectionError("handshake", &SignalError{StatusCode: resp.StatusCode, Body: resp.Status})
		}
		return nil, NewConnectionError("handshake", err)
	}

	ch := &wsChannel{conn: conn}
	h.open(ch)
	go ch.readLoop(h, d.logger)
	return ch, nil
}

type wsChannel struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	closed    bool
	closeOnce sync.Once
}

func (c *wsChannel) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return ErrChannelClosed
		}
		return err
	}
	return nil
}

func (c *wsChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.closed = true
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *wsChannel) readLoop(h Handlers, logger *slog.Logger) {
	defer h.close()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure) {
				logger.Warn("websocket closed unexpectedly", "error", err)
			}
			return
		}
		h.message(data)
	}
}

var _ Dialer = (*WebSocketDialer)(nil)
