package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"gopkg.in/hraban/opus.v2"
)

// Encoder turns PCM samples into one opus packet.
type Encoder interface {
	Encode(pcm []int16, data []byte) (int, error)
}

// SampleWriter accepts encoded media samples; *webrtc.TrackLocalStaticSample
// satisfies it.
type SampleWriter interface {
	WriteSample(s media.Sample) error
}

// NewLocalTrack creates the opus track the microphone writes into.
func NewLocalTrack() (*webrtc.TrackLocalStaticSample, error) {
	return webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: SampleRate,
		Channels:  Channels,
	}, "audio", "speaky")
}

// MicrophoneOption configures a Microphone.
type MicrophoneOption func(*Microphone)

// WithInputRate resamples input from rate to 48kHz before encoding.
func WithInputRate(rate int) MicrophoneOption {
	return func(m *Microphone) {
		m.inputRate = rate
	}
}

// WithPacing writes one frame per frame duration instead of as fast as the
// reader allows. Use it for files; live capture is already paced.
func WithPacing(on bool) MicrophoneOption {
	return func(m *Microphone) {
		m.pace = on
	}
}

// WithEncoder replaces the opus encoder.
func WithEncoder(e Encoder) MicrophoneOption {
	return func(m *Microphone) {
		m.encoder = e
	}
}

// WithMicrophoneLogger sets the logger.
func WithMicrophoneLogger(l *slog.Logger) MicrophoneOption {
	return func(m *Microphone) {
		m.logger = l
	}
}

// Microphone reads PCM16LE from an io.Reader and streams it as opus samples.
type Microphone struct {
	sink      SampleWriter
	encoder   Encoder
	inputRate int
	pace      bool
	logger    *slog.Logger
}

// NewMicrophone creates a microphone feeding sink. Without WithEncoder a
// 48kHz mono VoIP encoder is created.
func NewMicrophone(sink SampleWriter, opts ...MicrophoneOption) (*Microphone, error) {
	m := &Microphone{
		sink:      sink,
		inputRate: SampleRate,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.encoder == nil {
		enc, err := opus.NewEncoder(SampleRate, Channels, opus.AppVoIP)
		if err != nil {
			return nil, fmt.Errorf("create opus encoder: %w", err)
		}
		m.encoder = enc
	}
	m.logger = m.logger.With("component", "audio.microphone")
	return m, nil
}

// Stream encodes r frame by frame until EOF or ctx is cancelled. A short final
// frame is padded with silence. It returns the number of frames sent.
func (m *Microphone) Stream(ctx context.Context, r io.Reader) (int, error) {
	inFrame := m.inputRate * FrameDuration / 1000
	buf := make([]byte, inFrame*2)
	packet := make([]byte, 4000)

	var ticker *time.Ticker
	if m.pace {
		ticker = time.NewTicker(FrameDuration * time.Millisecond)
		defer ticker.Stop()
	}

	frames := 0
	for {
		if err := ctx.Err(); err != nil {
			return frames, err
		}

		n, err := io.ReadFull(r, buf)
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		last := errors.Is(err, io.ErrUnexpectedEOF)
		if err != nil && !last {
			return frames, fmt.Errorf("read pcm: %w", err)
		}
		if last {
			clear(buf[n:])
		}

		samples := frameOf(Resample(BytesToSamples(buf), m.inputRate, SampleRate))
		size, err := m.encoder.Encode(samples, packet)
		if err != nil {
			return frames, fmt.Errorf("encode opus: %w", err)
		}

		if size > 0 {
			sample := media.Sample{
				Data:     append([]byte(nil), packet[:size]...),
				Duration: FrameDuration * time.Millisecond,
			}
			if err := m.sink.WriteSample(sample); err != nil {
				return frames, fmt.Errorf("write sample: %w", err)
			}
			frames++
		}

		if last {
			m.logger.Debug("input drained", "frames", frames)
			return frames, nil
		}

		if ticker != nil {
			select {
			case <-ctx.Done():
				return frames, ctx.Err()
			case <-ticker.C:
			}
		}
	}
}

// frameOf trims or pads resampled audio to exactly one frame.
func frameOf(samples []int16) []int16 {
	if len(samples) == FrameSamples {
		return samples
	}
	out := make([]int16, FrameSamples)
	copy(out, samples)
	return out
}
