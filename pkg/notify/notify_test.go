package notify

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestColorFor(t *testing.T) {
	tests := []struct {
		kind string
		want string
	}{
		{"success", ColorSuccess},
		{"error", ColorError},
		{"warning", ColorWarning},
		{"info", ColorInfo},
		{"", ColorPrimary},
		{"celebration", ColorPrimary},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			if got := ColorFor(tt.kind); got != tt.want {
				t.Errorf("ColorFor(%q) = %q, want %q", tt.kind, got, tt.want)
			}
		})
	}
}

func TestMulti(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	var order []string
	m := NewMulti(a, nil, Func(func(t Toast) { order = append(order, "func") }))
	m.Add(b)

	m.Notify(Toast{Title: "hello", Color: ColorInfo})

	if len(a.Toasts()) != 1 || len(b.Toasts()) != 1 {
		t.Errorf("expected every target to receive the toast: a=%d b=%d", len(a.Toasts()), len(b.Toasts()))
	}
	if len(order) != 1 {
		t.Errorf("func notifier called %d times", len(order))
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	n := NewLogNotifier(logger)

	n.Notify(Toast{Title: "Transaction Failed", Description: "boom", Color: ColorError})

	out := buf.String()
	if !strings.Contains(out, "level=ERROR") {
		t.Errorf("expected error level: %s", out)
	}
	if !strings.Contains(out, `title="Transaction Failed"`) {
		t.Errorf("expected title: %s", out)
	}
}
