// Package audio moves voice between local PCM streams and the provider's
// opus tracks.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"gopkg.in/hraban/opus.v2"
)

// DefaultIdleTimeout is how long the remote track may stay silent before
// playback is considered finished.
const DefaultIdleTimeout = 300 * time.Millisecond

// Decoder turns one opus packet into PCM samples.
type Decoder interface {
	Decode(data []byte, pcm []int16) (int, error)
}

// PacketSource yields RTP packets until it returns an error.
type PacketSource interface {
	ReadPacket() (*rtp.Packet, error)
}

// TrackSource reads packets from a remote WebRTC track.
func TrackSource(track *webrtc.TrackRemote) PacketSource {
	return trackSource{track}
}

type trackSource struct {
	track *webrtc.TrackRemote
}

func (s trackSource) ReadPacket() (*rtp.Packet, error) {
	pkt, _, err := s.track.ReadRTP()
	return pkt, err
}

// PlayerOption configures a Player.
type PlayerOption func(*Player)

// WithOutputRate resamples decoded audio before writing it.
func WithOutputRate(rate int) PlayerOption {
	return func(p *Player) {
		p.outputRate = rate
	}
}

// WithIdleTimeout sets how long silence lasts before OnPlaybackEnd fires.
func WithIdleTimeout(d time.Duration) PlayerOption {
	return func(p *Player) {
		p.idle = d
	}
}

// WithDecoder replaces the opus decoder.
func WithDecoder(d Decoder) PlayerOption {
	return func(p *Player) {
		p.decoder = d
	}
}

// WithPlayerLogger sets the logger.
func WithPlayerLogger(l *slog.Logger) PlayerOption {
	return func(p *Player) {
		p.logger = l
	}
}

// Player decodes the assistant's voice and writes PCM16LE to an io.Writer.
type Player struct {
	out        io.Writer
	decoder    Decoder
	outputRate int
	idle       time.Duration
	logger     *slog.Logger

	// Callbacks
	OnPlaybackStart func()
	OnPlaybackEnd   func()

	// State
	speaking   bool
	speakingMu sync.Mutex
	idleTimer  *time.Timer

	writeMu      sync.Mutex
	packets      int
	decodeErrors int
	bytesWritten int64
}

// NewPlayer creates a player writing to out. Without WithDecoder a 48kHz mono
// opus decoder is created.
func NewPlayer(out io.Writer, opts ...PlayerOption) (*Player, error) {
	p := &Player{
		out:        out,
		outputRate: SampleRate,
		idle:       DefaultIdleTimeout,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.decoder == nil {
		dec, err := opus.NewDecoder(SampleRate, Channels)
		if err != nil {
			return nil, fmt.Errorf("create opus decoder: %w", err)
		}
		p.decoder = dec
	}
	p.logger = p.logger.With("component", "audio.player")
	return p, nil
}

// Play reads packets from src until it fails or ctx is cancelled. An io.EOF
// from src ends playback cleanly.
func (p *Player) Play(ctx context.Context, src PacketSource) error {
	defer p.endPlayback()

	frame := make([]int16, maxFrameSamples)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		pkt, err := src.ReadPacket()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read rtp: %w", err)
		}
		if len(pkt.Payload) == 0 {
			continue
		}

		n, err := p.decoder.Decode(pkt.Payload, frame)
		if err != nil {
			p.writeMu.Lock()
			p.decodeErrors++
			count := p.decodeErrors
			p.writeMu.Unlock()
			if count <= 5 {
				p.logger.Warn("opus decode failed", "seq", pkt.SequenceNumber, "error", err)
			}
			continue
		}

		p.startPlayback()
		if err := p.write(frame[:n]); err != nil {
			return err
		}
	}
}

// PlayTrack is a convenience for the remote track sink.
func (p *Player) PlayTrack(track *webrtc.TrackRemote) {
	if err := p.Play(context.Background(), TrackSource(track)); err != nil {
		p.logger.Debug("remote track ended", "error", err)
	}
}

func (p *Player) write(samples []int16) error {
	samples = Resample(samples, SampleRate, p.outputRate)

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	p.packets++
	n, err := p.out.Write(SamplesToBytes(samples))
	p.bytesWritten += int64(n)
	if err != nil {
		return fmt.Errorf("write pcm: %w", err)
	}
	return nil
}

// startPlayback marks the assistant as speaking and arms the idle timer.
func (p *Player) startPlayback() {
	p.speakingMu.Lock()
	started := !p.speaking
	p.speaking = true
	if p.idleTimer == nil {
		p.idleTimer = time.AfterFunc(p.idle, p.endPlayback)
	} else {
		p.idleTimer.Reset(p.idle)
	}
	p.speakingMu.Unlock()

	if started && p.OnPlaybackStart != nil {
		p.OnPlaybackStart()
	}
}

// endPlayback clears the speaking state, firing OnPlaybackEnd once per burst.
func (p *Player) endPlayback() {
	p.speakingMu.Lock()
	ended := p.speaking
	p.speaking = false
	if p.idleTimer != nil {
		p.idleTimer.Stop()
	}
	p.speakingMu.Unlock()

	if ended && p.OnPlaybackEnd != nil {
		p.OnPlaybackEnd()
	}
}

// Cancel stops the current burst immediately.
func (p *Player) Cancel() {
	p.endPlayback()
}

// IsSpeaking returns whether the assistant's voice is currently playing.
func (p *Player) IsSpeaking() bool {
	p.speakingMu.Lock()
	defer p.speakingMu.Unlock()
	return p.speaking
}

// Stats reports packets played, decode failures and bytes written.
func (p *Player) Stats() (packets, decodeErrors int, bytesWritten int64) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.packets, p.decodeErrors, p.bytesWritten
}
