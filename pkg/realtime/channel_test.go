package realtime

import (
	"strings"
	"sync"
	"testing"
)

func TestHandlersOpenFirst(t *testing.T) {
	var (
		mu     sync.Mutex
		order  []string
		opened Channel
	)
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	ch := NewMockChannel()
	h := Handlers{
		OnOpen:    func(c Channel) { opened = c; record("open") },
		OnMessage: func(data []byte) { record(string(data)) },
		OnClose:   func() { record("close") },
	}.openFirst(ch)

	h.message([]byte("a"))
	h.open(ch)
	h.message([]byte("b"))
	h.close()

	if got := strings.Join(order, ","); got != "open,a,b,close" {
		t.Errorf("order = %s", got)
	}
	if opened != ch {
		t.Errorf("opened with %v, want the dialed channel", opened)
	}
}

func TestHandlersOpenFirstConcurrent(t *testing.T) {
	var (
		mu    sync.Mutex
		opens int
		early bool
	)
	ch := NewMockChannel()
	h := Handlers{
		OnOpen: func(Channel) {
			mu.Lock()
			opens++
			mu.Unlock()
		},
		OnMessage: func([]byte) {
			mu.Lock()
			if opens == 0 {
				early = true
			}
			mu.Unlock()
		},
	}.openFirst(ch)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); h.open(ch) }()
	go func() {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			h.message([]byte("x"))
		}
	}()
	wg.Wait()

	if opens != 1 || early {
		t.Errorf("opens=%d early=%v", opens, early)
	}
}
