package realtime

import (
	"context"
	"sync"
)

// Channel is an open, ordered, bidirectional message pipe to the provider.
type Channel interface {
	// Send transmits one serialized event.
	Send(data []byte) error

	// Close tears down the channel and everything the dialer attached to it
	// (peer connection, media tracks). It is safe to call more than once.
	Close() error
}

// Handlers receive channel lifecycle callbacks from a Dialer.
// Callbacks may fire on any goroutine, including before Dial returns.
type Handlers struct {
	// OnOpen fires once the channel can carry events.
	OnOpen func(ch Channel)

	// OnMessage fires for every inbound frame, in arrival order.
	OnMessage func(data []byte)

	// OnClose fires when the channel or its connection goes away.
	// It may fire more than once.
	OnClose func()
}

// Dialer negotiates a new Channel. Dial returns once negotiation has finished
// (local and remote descriptions applied for WebRTC); it does not wait for the
// channel to open.
type Dialer interface {
	Dial(ctx context.Context, h Handlers) (Channel, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, h Handlers) (Channel, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, h Handlers) (Channel, error) {
	return f(ctx, h)
}

func (h Handlers) open(ch Channel) {
	if h.OnOpen != nil {
		h.OnOpen(ch)
	}
}

func (h Handlers) message(data []byte) {
	if h.OnMessage != nil {
		h.OnMessage(data)
	}
}

func (h Handlers) close() {
	if h.OnClose != nil {
		h.OnClose()
	}
}

// openFirst returns handlers that fire OnOpen with ch at most once and always
// before the first message. Transports whose open notification can race their
// read loop wrap their handlers with it.
func (h Handlers) openFirst(ch Channel) Handlers {
	var once sync.Once
	open := func() { once.Do(func() { h.open(ch) }) }
	return Handlers{
		OnOpen: func(Channel) { open() },
		OnMessage: func(data []byte) {
			open()
			h.message(data)
		},
		OnClose: h.OnClose,
	}
}
