package hub

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-speaky/pkg/protocol"
)

// broadcastBuffer bounds messages waiting for the run loop.
const broadcastBuffer = 256

// Hub owns a set of clients. Only Run touches the set's channels; the mutex
// guards reads from other goroutines.
type Hub struct {
	name   string
	logger *slog.Logger

	clients    map[*Client]struct{}
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client

	quit chan struct{}
	once sync.Once

	mu      sync.RWMutex
	running bool
}

// New creates a hub. A nil logger uses slog.Default.
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		name:       name,
		logger:     logger.With("component", "hub", "hub", name),
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan Message, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
	}
}

// Run serves registrations and broadcasts until Stop. Every client still
// attached is disconnected on the way out.
func (h *Hub) Run() {
	h.mu.Lock()
	h.running = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		for c := range h.clients {
			h.dropLocked(c)
		}
		h.running = false
		h.mu.Unlock()
	}()

	for {
		select {
		case <-h.quit:
			return

		case c := <-h.register:
			h.seed(c)
			h.mu.Lock()
			h.clients[c] = struct{}{}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client connected", "client", c.ID, "clients", count)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				h.dropLocked(c)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client disconnected", "client", c.ID, "clients", count)

		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

// fanOut queues msg on every client. A client whose queue is full is dropped
// rather than allowed to stall the others.
func (h *Hub) fanOut(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.dropLocked(c)
			h.logger.Warn("dropped slow client", "client", c.ID, "type", msg.Type)
		}
	}
}

// seed queues the client's backlog. At most half the queue is used so live
// frames have room before the write pump starts.
func (h *Hub) seed(c *Client) {
	if c.backlog == nil {
		return
	}
	msgs := c.backlog()
	if limit := cap(c.send) / 2; len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	for _, msg := range msgs {
		c.send <- msg
	}
}

func (h *Hub) dropLocked(c *Client) {
	delete(h.clients, c)
	close(c.send)
}

// Stop ends Run. Safe to call more than once.
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.quit) })
}

// Broadcast queues msg for every client. It never blocks: when the queue is
// full the message is dropped.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("broadcast queue full, dropping message", "type", msg.Type)
	}
}

// BroadcastJSON encodes v and broadcasts it.
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(NewJSONMessage(data))
	return nil
}

// BroadcastMessage encodes a protocol envelope and broadcasts it.
func (h *Hub) BroadcastMessage(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	h.Broadcast(Message{Type: string(msg.Type), Data: data})
	return nil
}

// ClientCount returns the number of attached clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// IsRunning reports whether Run is active.
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}
