package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/teslashibe/go-speaky/pkg/realtime"
	"github.com/teslashibe/go-speaky/pkg/wallet"
)

// Transcript events printed by talk.
const (
	typeAudioTranscriptDone = "response.output_audio_transcript.done"
	typeTextDone            = "response.output_text.done"
	typeInputTranscriptDone = "conversation.item.input_audio_transcription.completed"
)

// console shares one line reader between typed messages and transaction
// approvals. While an approval is pending the next line answers it.
type console struct {
	out io.Writer
	wmu sync.Mutex

	mu     sync.Mutex
	answer chan string
}

func newConsole(out io.Writer) *console {
	return &console{out: out}
}

// ReadLoop feeds non-empty lines to onLine until r is exhausted.
func (c *console) ReadLoop(r io.Reader, onLine func(string)) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())

		c.mu.Lock()
		pending := c.answer
		c.answer = nil
		c.mu.Unlock()

		if pending != nil {
			pending <- line
			continue
		}
		if line != "" {
			onLine(line)
		}
	}
}

// Approve implements wallet.Approver by asking on the console.
func (c *console) Approve(ctx context.Context, p wallet.Proposal) error {
	ans := make(chan string, 1)
	c.mu.Lock()
	c.answer = ans
	c.mu.Unlock()

	c.wmu.Lock()
	fmt.Fprintf(c.out, "Send %s ETH to %s (max cost %s ETH)? [y/N] ",
		wallet.FormatEther(p.Value), p.To.Hex(), wallet.FormatEther(p.MaxCost))
	c.wmu.Unlock()

	select {
	case line := <-ans:
		switch strings.ToLower(line) {
		case "y", "yes":
			return nil
		default:
			return wallet.ErrUserRejected
		}
	case <-ctx.Done():
		c.mu.Lock()
		if c.answer == ans {
			c.answer = nil
		}
		c.mu.Unlock()
		return ctx.Err()
	}
}

// Printf writes a line to the console.
func (c *console) Printf(format string, args ...any) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	fmt.Fprintf(c.out, format+"\n", args...)
}

// transcript returns the printable text of a finished transcript event.
func transcript(ev realtime.Event) (who, text string, ok bool) {
	var key string
	switch ev.Type {
	case typeAudioTranscriptDone:
		who, key = "assistant", "transcript"
	case typeTextDone:
		who, key = "assistant", "text"
	case typeInputTranscriptDone:
		who, key = "you", "transcript"
	default:
		return "", "", false
	}
	text, _ = ev.Payload[key].(string)
	text = strings.TrimSpace(text)
	return who, text, text != ""
}
