package realtime

import "sync"

// EventLog is an ordered, newest-first record of every event a session sent or
// received. A cap of zero means unbounded; otherwise the oldest entries are
// evicted once the cap is reached.
type EventLog struct {
	mu     sync.RWMutex
	cap    int
	events []Event // oldest first; reversed on read
}

// NewEventLog creates a log holding at most capacity events (0 = unbounded).
func NewEventLog(capacity int) *EventLog {
	if capacity < 0 {
		capacity = 0
	}
	return &EventLog{cap: capacity}
}

// Add records a copy of ev.
func (l *EventLog) Add(ev Event) {
	ev = ev.Clone()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, ev)
	if l.cap > 0 && len(l.events) > l.cap {
		drop := len(l.events) - l.cap
		// Copy down so the backing array does not grow without bound.
		n := copy(l.events, l.events[drop:])
		for i := n; i < len(l.events); i++ {
			l.events[i] = Event{}
		}
		l.events = l.events[:n]
	}
}

// Events returns copies of the logged events, newest first.
func (l *EventLog) Events() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Event, len(l.events))
	for i, ev := range l.events {
		out[len(l.events)-1-i] = ev.Clone()
	}
	return out
}

// Len returns the number of logged events.
func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Cap returns the configured capacity (0 = unbounded).
func (l *EventLog) Cap() int {
	return l.cap
}

// Clear drops every entry.
func (l *EventLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}
