package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v3"
)

// DataChannelLabel is the label the provider expects for the event channel.
const DataChannelLabel = "oai-events"

// DefaultSTUNServer is used when no ICE servers are configured.
const DefaultSTUNServer = "stun:stun.l.google.com:19302"

// WebRTCOption configures a WebRTCDialer.
type WebRTCOption func(*WebRTCDialer)

// WithICEServers sets the ICE server URLs.
func WithICEServers(urls ...string) WebRTCOption {
	return func(d *WebRTCDialer) {
		d.iceServers = urls
	}
}

// WithTrackSink receives the provider's remote audio track.
func WithTrackSink(fn func(*webrtc.TrackRemote)) WebRTCOption {
	return func(d *WebRTCDialer) {
		d.onTrack = fn
	}
}

// WithLocalTrack attaches a local audio track (the microphone). Without one
// the audio transceiver is receive-only.
func WithLocalTrack(track webrtc.TrackLocal) WebRTCOption {
	return func(d *WebRTCDialer) {
		d.localTrack = track
	}
}

// WithDialerLogger sets the dialer's logger.
func WithDialerLogger(l *slog.Logger) WebRTCOption {
	return func(d *WebRTCDialer) {
		d.logger = l
	}
}

// WebRTCDialer negotiates a peer connection with the provider and exposes its
// data channel as a Channel.
type WebRTCDialer struct {
	signaler   Signaler
	iceServers []string
	onTrack    func(*webrtc.TrackRemote)
	localTrack webrtc.TrackLocal
	logger     *slog.Logger
}

// NewWebRTCDialer creates a dialer that exchanges SDP through signaler.
func NewWebRTCDialer(signaler Signaler, opts ...WebRTCOption) *WebRTCDialer {
	d := &WebRTCDialer{
		signaler:   signaler,
		iceServers: []string{DefaultSTUNServer},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "realtime.webrtc")
	return d
}

// Dial implements Dialer.
func (d *WebRTCDialer) Dial(ctx context.Context, h Handlers) (Channel, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: d.iceServers}},
	})
	if err != nil {
		return nil, NewConnectionError("peer connection", err)
	}

	fail := func(stage string, err error) (Channel, error) {
		_ = pc.Close()
		return nil, NewConnectionError(stage, err)
	}

	if d.localTrack != nil {
		sender, err := pc.AddTrack(d.localTrack)
		if err != nil {
			return fail("add local track", err)
		}
		// Drain RTCP so interceptors keep running.
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := sender.Read(buf); err != nil {
					return
				}
			}
		}()
	} else {
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return fail("add audio transceiver", err)
		}
	}

	dc, err := pc.CreateDataChannel(DataChannelLabel, nil)
	if err != nil {
		return fail("create data channel", err)
	}

	ch := &dataChannel{pc: pc, dc: dc}

	// pion fires OnOpen on its own goroutine while the read loop may already
	// be delivering frames.
	ordered := h.openFirst(ch)
	dc.OnOpen(func() {
		d.logger.Debug("data channel opened")
		ordered.open(ch)
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		ordered.message(msg.Data)
	})
	dc.OnClose(func() {
		d.logger.Debug("data channel closed")
		h.close()
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		d.logger.Debug("peer connection state", "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			h.close()
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		d.logger.Info("remote track", "kind", track.Kind().String(), "codec", track.Codec().MimeType)
		if track.Kind() == webrtc.RTPCodecTypeAudio && d.onTrack != nil {
			go d.onTrack(track)
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fail("create offer", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return fail("set local description", err)
	}

	gathered := webrtc.GatheringCompletePromise(pc)
	select {
	case <-gathered:
	case <-ctx.Done():
		return fail("ice gathering", ctx.Err())
	}

	answer, err := d.signaler.Exchange(ctx, pc.LocalDescription().SDP)
	if err != nil {
		return fail("signalling", err)
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer,
	}); err != nil {
		return fail("set remote description", err)
	}

	return ch, nil
}

// dataChannel adapts a pion data channel and owns its peer connection.
type dataChannel struct {
	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
	closeErr  error
}

func (c *dataChannel) Send(data []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed || c.dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrChannelClosed
	}
	if err := c.dc.SendText(string(data)); err != nil {
		return fmt.Errorf("data channel send: %w", err)
	}
	return nil
}

func (c *dataChannel) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		if err := c.dc.Close(); err != nil {
			c.closeErr = err
		}
		if err := c.pc.Close(); err != nil && c.closeErr == nil {
			c.closeErr = err
		}
	})
	return c.closeErr
}

var _ Dialer = (*WebRTCDialer)(nil)
