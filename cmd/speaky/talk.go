package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-speaky/internal/config"
	"github.com/teslashibe/go-speaky/internal/log"
	"github.com/teslashibe/go-speaky/pkg/assistant"
	"github.com/teslashibe/go-speaky/pkg/audio"
	"github.com/teslashibe/go-speaky/pkg/notify"
	"github.com/teslashibe/go-speaky/pkg/realtime"
	"github.com/teslashibe/go-speaky/pkg/tools"
	"github.com/teslashibe/go-speaky/pkg/wallet"
)

var (
	talkApprove bool
	talkInput   string
	talkOutput  string
)

var talkCmd = &cobra.Command{
	Use:   "talk",
	Short: "Run the assistant headless in the terminal",
	Long: `Run the assistant without a dashboard. Typed lines are sent as user
messages; transcripts, tool results and toasts are printed.

With the WebRTC transport, --output writes the assistant's voice as PCM16LE
48kHz mono and --input streams PCM16LE 48kHz mono as the microphone. Use "-"
for stdout/stdin.

Requires a broker (speaky serve) reachable at broker.url.`,
	RunE: runTalk,
}

func init() {
	talkCmd.Flags().BoolVar(&talkApprove, "approve", false, "ask on the terminal before every transaction")
	talkCmd.Flags().StringVar(&talkInput, "input", "", "microphone PCM file (overrides audio.input_file)")
	talkCmd.Flags().StringVar(&talkOutput, "output", "", "speaker PCM file (overrides audio.output_file)")
}

func runTalk(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.L()
	if talkInput != "" {
		cfg.Audio.InputFile = talkInput
	}
	if talkOutput != "" {
		cfg.Audio.OutputFile = talkOutput
	}
	if err := checkTalkFlags(cfg, talkApprove); err != nil {
		return err
	}

	// PCM on stdout leaves stderr for the conversation.
	con := newConsole(cmd.OutOrStdout())
	if cfg.Audio.OutputFile == "-" {
		con = newConsole(cmd.ErrOrStderr())
	}

	var approve wallet.Approver
	if talkApprove {
		approve = con.Approve
	}
	w, err := newWallet(cfg, logger, nil, approve)
	if err != nil {
		return err
	}

	var (
		rtcOpts []realtime.WebRTCOption
		mic     *audio.Microphone
		micIn   io.Reader
	)

	if path := cfg.Audio.OutputFile; path != "" {
		out, err := openOutput(path)
		if err != nil {
			return err
		}
		defer out.Close()

		player, err := audio.NewPlayer(out, audio.WithPlayerLogger(logger))
		if err != nil {
			return err
		}
		player.OnPlaybackStart = func() { logger.Debug("assistant speaking") }
		player.OnPlaybackEnd = func() { logger.Debug("assistant finished speaking") }
		rtcOpts = append(rtcOpts, realtime.WithTrackSink(player.PlayTrack))
	}

	if path := cfg.Audio.InputFile; path != "" {
		in, err := openInput(path)
		if err != nil {
			return err
		}
		defer in.Close()

		track, err := audio.NewLocalTrack()
		if err != nil {
			return fmt.Errorf("create local track: %w", err)
		}
		mic, err = audio.NewMicrophone(track,
			audio.WithPacing(path != "-"),
			audio.WithMicrophoneLogger(logger),
		)
		if err != nil {
			return err
		}
		micIn = in
		rtcOpts = append(rtcOpts, realtime.WithLocalTrack(track))
	}

	a := assistant.New(newDialer(cfg, logger, rtcOpts...), w,
		notify.Func(func(t notify.Toast) {
			con.Printf("[%s] %s %s", t.Color, t.Title, t.Description)
		}),
		assistantOptions(cfg, logger, nil)...,
	)

	a.Subscribe(func(ev realtime.Event) {
		if who, text, ok := transcript(ev); ok {
			con.Printf("%s: %s", who, text)
		}
	})
	a.Dispatcher().OnResult(func(call realtime.ToolCall, res tools.Result) {
		logger.Info("tool finished", "tool", call.Name, "success", res.Success, "message", res.Message)
	})

	var micOnce sync.Once
	a.OnPhaseChange(func(p realtime.Phase) {
		switch p {
		case realtime.PhaseOpen:
			if mic == nil {
				return
			}
			micOnce.Do(func() {
				go func() {
					frames, err := mic.Stream(ctx, micIn)
					if err != nil && ctx.Err() == nil {
						logger.Warn("microphone stopped", "error", err)
					}
					logger.Debug("microphone done", "frames", frames)
				}()
			})
		case realtime.PhaseClosed:
			cancel()
		}
	})

	if cfg.Wallet.PrivateKey == "" {
		con.Printf("%s", tools.ScenarioInstructions["wallet_not_connected"])
	} else if err := a.ConnectWallet(ctx); err != nil {
		logger.Warn("wallet connect failed", "error", err)
		con.Printf("%s", tools.ScenarioInstructions["wallet_not_connected"])
	}

	if err := a.Start(ctx); err != nil {
		return err
	}
	defer a.Close()
	con.Printf("Connected. Type a message and press enter; Ctrl+C quits.")

	if cfg.Audio.InputFile != "-" {
		go con.ReadLoop(cmd.InOrStdin(), func(line string) {
			if err := a.SendText(line); err != nil {
				logger.Warn("send message failed", "error", err)
			}
		})
	}

	<-ctx.Done()
	return nil
}

// checkTalkFlags rejects combinations that cannot work together.
func checkTalkFlags(c *config.Config, approve bool) error {
	hasAudio := c.Audio.InputFile != "" || c.Audio.OutputFile != ""
	if hasAudio && c.Transport.Kind != config.TransportWebRTC {
		return errors.New("audio files require the webrtc transport")
	}
	if c.Audio.InputFile == "-" && approve {
		return errors.New("--approve reads stdin and cannot be combined with --input -")
	}
	if c.Audio.InputFile == "-" && c.Audio.OutputFile == "-" {
		return errors.New("stdin and stdout cannot both carry audio")
	}
	return nil
}

func openOutput(path string) (io.WriteCloser, error) {
	if path == "-" {
		return nopWriteCloser{os.Stdout}, nil
	}
	return os.Create(path)
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
