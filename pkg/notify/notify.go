// Package notify delivers user-facing notifications (toasts) from tool
// handlers to whatever surface is attached: the log, the dashboard, or both.
package notify

import (
	"context"
	"log/slog"
	"sync"
)

// Toast colors.
const (
	ColorSuccess = "success"
	ColorError   = "error"
	ColorWarning = "warning"
	ColorInfo    = "info"
	ColorPrimary = "primary"
)

// Toast is a short user-facing notification.
type Toast struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color"`
	Icon        string `json:"icon,omitempty"`
}

// ColorFor maps a notification type to a toast color. Unknown or empty types
// get the primary color.
func ColorFor(kind string) string {
	switch kind {
	case ColorSuccess, ColorError, ColorWarning, ColorInfo:
		return kind
	default:
		return ColorPrimary
	}
}

// Notifier displays toasts.
type Notifier interface {
	Notify(t Toast)
}

// Func adapts a function to Notifier.
type Func func(Toast)

// Notify calls f.
func (f Func) Notify(t Toast) { f(t) }

// LogNotifier writes toasts to a structured logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger uses slog.Default.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notify")}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(t Toast) {
	level := slog.LevelInfo
	switch t.Color {
	case ColorError:
		level = slog.LevelError
	case ColorWarning:
		level = slog.LevelWarn
	}
	n.logger.Log(context.Background(), level, "toast", "title", t.Title, "description", t.Description, "color", t.Color)
}

// Multi fans a toast out to several notifiers in order.
type Multi struct {
	mu      sync.RWMutex
	targets []Notifier
}

// NewMulti creates a Multi over targets. Nil targets are skipped.
func NewMulti(targets ...Notifier) *Multi {
	m := &Multi{}
	for _, t := range targets {
		m.Add(t)
	}
	return m
}

// Add attaches another notifier.
func (m *Multi) Add(n Notifier) {
	if n == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.targets = append(m.targets, n)
}

// Notify implements Notifier.
func (m *Multi) Notify(t Toast) {
	m.mu.RLock()
	targets := append([]Notifier(nil), m.targets...)
	m.mu.RUnlock()
	for _, n := range targets {
		n.Notify(t)
	}
}

// Recorder keeps every toast it receives. Useful in tests and for the
// headless client's summary.
type Recorder struct {
	mu     sync.Mutex
	toasts []Toast
}

// Notify implements Notifier.
func (r *Recorder) Notify(t Toast) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = append(r.toasts, t)
}

// Toasts returns a copy of the recorded toasts, oldest first.
func (r *Recorder) Toasts() []Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Toast(nil), r.toasts...)
}

var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = (*Multi)(nil)
	_ Notifier = (*Recorder)(nil)
	_ Notifier = Func(nil)
)
