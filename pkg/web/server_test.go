package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/teslashibe/go-speaky/internal/log"
	"github.com/teslashibe/go-speaky/pkg/assistant"
	"github.com/teslashibe/go-speaky/pkg/metrics"
	"github.com/teslashibe/go-speaky/pkg/notify"
	"github.com/teslashibe/go-speaky/pkg/protocol"
	"github.com/teslashibe/go-speaky/pkg/realtime"
	"github.com/teslashibe/go-speaky/pkg/tools"
	"github.com/teslashibe/go-speaky/pkg/wallet"
)

// fakeController records calls and serves canned state.
type fakeController struct {
	mu sync.Mutex

	phase      string
	wallet     wallet.State
	events     []realtime.Event
	startErr   error
	connectErr error
	sent       []string
	triggered  []string
	stops      int
}

func (f *fakeController) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.phase = "open"
	return nil
}

func (f *fakeController) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.phase = "closed"
}

func (f *fakeController) SendText(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeController) Status() assistant.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	phase := f.phase
	if phase == "" {
		phase = "idle"
	}
	return assistant.Status{Phase: phase, Wallet: f.wallet, Events: len(f.events), Tools: tools.DefaultRegistry().Names()}
}

func (f *fakeController) Events() []realtime.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]realtime.Event(nil), f.events...)
}

func (f *fakeController) Tools() []tools.Definition {
	return tools.DefaultRegistry().Definitions()
}

func (f *fakeController) TriggerTool(ctx context.Context, name string, args map[string]any) (tools.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name == "nope" {
		return tools.Result{}, fmt.Errorf("%w: %s", assistant.ErrUnknownTool, name)
	}
	f.triggered = append(f.triggered, name)
	return tools.Success("ran "+name, args), nil
}

func (f *fakeController) ConnectWallet(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.wallet = wallet.State{Connected: true, Address: "0xabc"}
	return nil
}

func (f *fakeController) DisconnectWallet() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wallet = wallet.State{}
	return nil
}

func newTestServer(ctrl Controller, opts ...Option) *Server {
	return NewServer(":0", ctrl, append([]Option{WithLogger(log.Discard())}, opts...)...)
}

func do(t *testing.T, s *Server, method, path, body string) (int, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(data)
}

func TestStatusAndTools(t *testing.T) {
	s := newTestServer(&fakeController{})

	code, body := do(t, s, "GET", "/api/status", "")
	if code != 200 {
		t.Fatalf("Status = %d, want 200", code)
	}
	var st assistant.Status
	if err := json.Unmarshal([]byte(body), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Phase != "idle" || len(st.Tools) != 5 {
		t.Errorf("status = %+v", st)
	}

	code, body = do(t, s, "GET", "/api/tools", "")
	if code != 200 {
		t.Fatalf("Status = %d, want 200", code)
	}
	var defs []tools.Definition
	if err := json.Unmarshal([]byte(body), &defs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(defs) != 5 || defs[0].Name != tools.NameShowToast {
		t.Errorf("tools = %+v", defs)
	}
}

func TestTriggerTool(t *testing.T) {
	ctrl := &fakeController{}
	s := newTestServer(ctrl)

	code, body := do(t, s, "POST", "/api/tools/show_toast", `{"args":{"title":"Hi"}}`)
	if code != 200 {
		t.Fatalf("Status = %d, want 200: %s", code, body)
	}
	if !strings.Contains(body, `"ran show_toast"`) {
		t.Errorf("body = %s", body)
	}

	code, _ = do(t, s, "POST", "/api/tools/check_wallet_connection", "")
	if code != 200 {
		t.Errorf("trigger without body: Status = %d", code)
	}

	code, _ = do(t, s, "POST", "/api/tools/nope", "")
	if code != 404 {
		t.Errorf("unknown tool: Status = %d, want 404", code)
	}

	if len(ctrl.triggered) != 2 {
		t.Errorf("triggered = %v", ctrl.triggered)
	}
}

func TestEvents(t *testing.T) {
	ctrl := &fakeController{}
	for i := 0; i < 5; i++ {
		ctrl.events = append(ctrl.events, realtime.Event{Type: fmt.Sprintf("t%d", i), EventID: fmt.Sprintf("e%d", i)})
	}
	s := newTestServer(ctrl)

	code, body := do(t, s, "GET", "/api/events?limit=2", "")
	if code != 200 {
		t.Fatalf("Status = %d", code)
	}
	var events []protocol.EventData
	if err := json.Unmarshal([]byte(body), &events); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != 2 || events[0].Type != "t0" {
		t.Errorf("events = %+v", events)
	}

	_, body = do(t, s, "GET", "/api/events", "")
	_ = json.Unmarshal([]byte(body), &events)
	if len(events) != 5 {
		t.Errorf("expected all 5 events, got %d", len(events))
	}
}

func TestAssistantLifecycle(t *testing.T) {
	ctrl := &fakeController{}
	s := newTestServer(ctrl)

	code, _ := do(t, s, "POST", "/api/assistant/message", `{"text":"hi"}`)
	if code != 409 {
		t.Errorf("message before start: Status = %d, want 409", code)
	}

	code, body := do(t, s, "POST", "/api/assistant/start", "")
	if code != 200 || !strings.Contains(body, `"phase":"open"`) {
		t.Fatalf("start: %d %s", code, body)
	}

	code, _ = do(t, s, "POST", "/api/assistant/message", `{"text":"What's my balance?"}`)
	if code != 200 {
		t.Errorf("message: Status = %d", code)
	}
	code, _ = do(t, s, "POST", "/api/assistant/message", `{"text":"   "}`)
	if code != 400 {
		t.Errorf("blank message: Status = %d, want 400", code)
	}

	code, body = do(t, s, "POST", "/api/assistant/stop", "")
	if code != 200 || !strings.Contains(body, `"phase":"closed"`) {
		t.Errorf("stop: %d %s", code, body)
	}

	if len(ctrl.sent) != 1 || ctrl.sent[0] != "What's my balance?" {
		t.Errorf("sent = %v", ctrl.sent)
	}
}

func TestStartErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"already active", realtime.ErrAlreadyActive, 409},
		{"negotiation failed", realtime.NewConnectionError("signal", errors.New("503")), 502},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&fakeController{startErr: tt.err})
			code, body := do(t, s, "POST", "/api/assistant/start", "")
			if code != tt.want {
				t.Errorf("Status = %d, want %d", code, tt.want)
			}
			if !strings.Contains(body, `"error"`) {
				t.Errorf("body = %s", body)
			}
		})
	}
}

func TestWalletEndpoints(t *testing.T) {
	ctrl := &fakeController{}
	s := newTestServer(ctrl)

	code, body := do(t, s, "POST", "/api/wallet/connect", "")
	if code != 200 || !strings.Contains(body, `"isConnected":true`) {
		t.Errorf("connect: %d %s", code, body)
	}
	code, body = do(t, s, "POST", "/api/wallet/disconnect", "")
	if code != 200 || !strings.Contains(body, `"isConnected":false`) {
		t.Errorf("disconnect: %d %s", code, body)
	}

	s = newTestServer(&fakeController{connectErr: assistant.ErrNoWallet})
	if code, _ := do(t, s, "POST", "/api/wallet/connect", ""); code != 503 {
		t.Errorf("no wallet: Status = %d, want 503", code)
	}
	s = newTestServer(&fakeController{connectErr: wallet.ErrNoWallet})
	if code, _ := do(t, s, "POST", "/api/wallet/connect", ""); code != 503 {
		t.Errorf("no signing key: Status = %d, want 503", code)
	}
	s = newTestServer(&fakeController{connectErr: errors.New("dial tcp: refused")})
	if code, _ := do(t, s, "POST", "/api/wallet/connect", ""); code != 502 {
		t.Errorf("rpc down: Status = %d, want 502", code)
	}
}

func TestToastsAndNotifier(t *testing.T) {
	s := newTestServer(&fakeController{})

	var n notify.Notifier = s
	for i := 0; i < recentToasts+5; i++ {
		n.Notify(notify.Toast{Title: fmt.Sprintf("t%d", i), Color: notify.ColorInfo})
	}

	_, body := do(t, s, "GET", "/api/toasts", "")
	var toasts []protocol.ToastData
	if err := json.Unmarshal([]byte(body), &toasts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(toasts) != recentToasts {
		t.Fatalf("kept %d toasts", len(toasts))
	}
	if toasts[0].Title != "t5" || toasts[len(toasts)-1].Title != fmt.Sprintf("t%d", recentToasts+4) {
		t.Errorf("unexpected window: first=%s last=%s", toasts[0].Title, toasts[len(toasts)-1].Title)
	}
}

func TestMetricsAndBrokerMounts(t *testing.T) {
	m := metrics.New("speaky")
	m.ObserveTool("show_toast", "success", 0)
	s := newTestServer(&fakeController{}, WithMetrics(m))

	code, body := do(t, s, "GET", "/metrics", "")
	if code != 200 {
		t.Fatalf("Status = %d", code)
	}
	if !strings.Contains(body, "speaky_tool_calls_total") {
		t.Errorf("metrics body missing tool counter")
	}

	// Without a broker the credential endpoints do not exist.
	if code, _ := do(t, s, "GET", "/api/token", ""); code != http.StatusNotFound {
		t.Errorf("token without broker: Status = %d", code)
	}
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	s := newTestServer(&fakeController{})
	if code, _ := do(t, s, "GET", "/ws/events", ""); code != http.StatusUpgradeRequired {
		t.Errorf("Status = %d, want %d", code, http.StatusUpgradeRequired)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(&fakeController{})
	code, body := do(t, s, "GET", "/health", "")
	if code != 200 || !strings.Contains(body, `"status":"ok"`) || !strings.Contains(body, `"phase":"idle"`) {
		t.Errorf("health: %d %s", code, body)
	}
}

func TestBacklog(t *testing.T) {
	s := newTestServer(&fakeController{})

	ev, err := protocol.NewEventMessage(protocol.EventData{Type: "session.created"})
	if err != nil {
		t.Fatal(err)
	}
	toast, err := protocol.NewToastMessage(protocol.ToastData{Title: "Hi"})
	if err != nil {
		t.Fatal(err)
	}

	got := s.backlog([]*protocol.Message{ev, toast})
	if len(got) != 2 || got[0].Type != "event" || got[1].Type != "toast" {
		t.Fatalf("backlog = %+v", got)
	}

	var decoded protocol.Message
	if err := json.Unmarshal(got[0].Data, &decoded); err != nil {
		t.Fatalf("backlog frame is not an envelope: %v", err)
	}
	if decoded.Type != protocol.TypeEvent {
		t.Errorf("decoded type = %q", decoded.Type)
	}
}
