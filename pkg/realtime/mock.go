package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MockDialer is a Dialer for tests. It hands out MockChannels and lets the
// test drive the channel lifecycle.
type MockDialer struct {
	mu sync.Mutex

	handlers Handlers
	channel  *MockChannel

	// AutoOpen fires OnOpen before Dial returns.
	AutoOpen bool

	// DialFunc overrides Dial entirely.
	DialFunc func(ctx context.Context, h Handlers) (Channel, error)

	// Dials counts Dial calls.
	Dials int
}

// NewMockDialer creates a MockDialer that opens channels immediately.
func NewMockDialer() *MockDialer {
	return &MockDialer{AutoOpen: true}
}

// Dial implements Dialer.
func (m *MockDialer) Dial(ctx context.Context, h Handlers) (Channel, error) {
	m.mu.Lock()
	m.Dials++
	fn := m.DialFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, h)
	}

	ch := NewMockChannel()

	m.mu.Lock()
	m.handlers = h
	m.channel = ch
	autoOpen := m.AutoOpen
	m.mu.Unlock()

	if autoOpen {
		h.open(ch)
	}
	return ch, nil
}

// Channel returns the most recently dialed channel.
func (m *MockDialer) Channel() *MockChannel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.channel
}

// Test helpers

// SimulateOpen fires OnOpen for the latest channel.
func (m *MockDialer) SimulateOpen() {
	m.mu.Lock()
	h, ch := m.handlers, m.channel
	m.mu.Unlock()
	if ch != nil {
		h.open(ch)
	}
}

// SimulateMessage delivers a raw inbound frame.
func (m *MockDialer) SimulateMessage(data []byte) {
	m.mu.Lock()
	h := m.handlers
	m.mu.Unlock()
	h.message(data)
}

// SimulateEvent delivers ev as an inbound frame.
func (m *MockDialer) SimulateEvent(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		panic(err)
	}
	m.SimulateMessage(data)
}

// SimulateClose fires OnClose as if the remote side went away.
func (m *MockDialer) SimulateClose() {
	m.mu.Lock()
	h := m.handlers
	m.mu.Unlock()
	h.close()
}

// MockChannel records every frame sent on it.
type MockChannel struct {
	mu     sync.Mutex
	sent   [][]byte
	closed bool

	// SendErr, when set, is returned from Send.
	SendErr error
}

// NewMockChannel creates an open MockChannel.
func NewMockChannel() *MockChannel {
	return &MockChannel{}
}

// Send implements Channel.
func (c *MockChannel) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	if c.SendErr != nil {
		return c.SendErr
	}
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

// Close implements Channel.
func (c *MockChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Closed reports whether Close was called.
func (c *MockChannel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Sent returns copies of the raw frames, oldest first.
func (c *MockChannel) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	for i, b := range c.sent {
		out[i] = append([]byte(nil), b...)
	}
	return out
}

// SentEvents decodes the sent frames, oldest first.
func (c *MockChannel) SentEvents() []Event {
	var out []Event
	for _, data := range c.Sent() {
		ev, err := ParseEvent(data)
		if err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// WaitForSent blocks until at least n frames were sent or timeout elapses.
func (c *MockChannel) WaitForSent(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		c.mu.Lock()
		got := len(c.sent)
		c.mu.Unlock()
		if got >= n {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(2 * time.Millisecond)
	}
}

var (
	_ Dialer  = (*MockDialer)(nil)
	_ Channel = (*MockChannel)(nil)
)
