package broker

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/teslashibe/go-speaky/internal/log"
	"github.com/teslashibe/go-speaky/pkg/metrics"
)

func newTestBroker(baseURL, key string, m *metrics.Metrics) *Broker {
	return New(
		WithAPIKey(key),
		WithBaseURL(baseURL),
		WithLogger(log.Discard()),
		WithMetrics(m),
	)
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestToken(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/realtime/client_secrets" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"value":"ek_123","expires_at":1700000000}`)
	}))
	defer provider.Close()

	m := metrics.New("test")
	app := newTestBroker(provider.URL, "sk-test", m).App()

	resp, err := app.Test(httptest.NewRequest("GET", "/api/token", nil))
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("Status = %d, want 200", resp.StatusCode)
	}
	if body := readBody(t, resp); body != `{"value":"ek_123","expires_at":1700000000}` {
		t.Errorf("body = %s", body)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}

	session := gotBody["session"].(map[string]any)
	if session["type"] != "realtime" || session["model"] != "gpt-realtime" {
		t.Errorf("session = %v", session)
	}
	voice := session["audio"].(map[string]any)["output"].(map[string]any)["voice"]
	if voice != "marin" {
		t.Errorf("voice = %v", voice)
	}

	if got := testutil.ToFloat64(m.BrokerRequests.WithLabelValues(EndpointToken, "200")); got != 1 {
		t.Errorf("broker requests = %v", got)
	}
}

func TestTokenErrors(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer failing.Close()

	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>")
	}))
	defer garbage.Close()

	tests := []struct {
		name    string
		baseURL string
		key     string
		message string
	}{
		{"missing key", failing.URL, "", "OpenAI API key not configured"},
		{"upstream error", failing.URL, "sk", "Failed to generate token"},
		{"non-json upstream", garbage.URL, "sk", "Failed to generate token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestBroker(tt.baseURL, tt.key, nil).App()
			resp, err := app.Test(httptest.NewRequest("GET", "/api/token", nil))
			if err != nil {
				t.Fatalf("Request error: %v", err)
			}
			if resp.StatusCode != 500 {
				t.Errorf("Status = %d, want 500", resp.StatusCode)
			}
			if body := readBody(t, resp); body != tt.message {
				t.Errorf("body = %q, want %q", body, tt.message)
			}
			if ct := resp.Header.Get("Content-Type"); strings.Contains(ct, "json") {
				t.Errorf("error body should be plain text, got %s", ct)
			}
		})
	}
}

func TestSession(t *testing.T) {
	var gotSDP, gotSession, gotBeta string
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/realtime/calls" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotSDP = r.FormValue("sdp")
		gotSession = r.FormValue("session")
		gotBeta = r.Header.Get("OpenAI-Beta")
		w.Header().Set("Content-Type", "application/sdp")
		_, _ = io.WriteString(w, "v=0\r\nanswer")
	}))
	defer provider.Close()

	m := metrics.New("test")
	app := newTestBroker(provider.URL, "sk-test", m).App()

	req := httptest.NewRequest("POST", "/api/session", strings.NewReader(`{"sdp":"v=0\r\noffer"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("Status = %d, want 200: %s", resp.StatusCode, readBody(t, resp))
	}

	var out SessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.SDP != "v=0\r\nanswer" {
		t.Errorf("answer = %q", out.SDP)
	}
	if gotSDP != "v=0\r\noffer" {
		t.Errorf("offer relayed as %q", gotSDP)
	}
	if !strings.Contains(gotSession, `"model":"gpt-realtime"`) {
		t.Errorf("session field = %s", gotSession)
	}
	if gotBeta != "realtime=v1" {
		t.Errorf("OpenAI-Beta = %q", gotBeta)
	}
	if got := testutil.ToFloat64(m.BrokerRequests.WithLabelValues(EndpointSession, "200")); got != 1 {
		t.Errorf("broker requests = %v", got)
	}
}

func TestSessionErrors(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer failing.Close()

	tests := []struct {
		name    string
		key     string
		body    string
		status  int
		message string
	}{
		{"missing key", "", `{"sdp":"x"}`, 500, "OpenAI API key not configured"},
		{"missing sdp", "sk", `{}`, 400, "SDP is required"},
		{"blank sdp", "sk", `{"sdp":"  "}`, 400, "SDP is required"},
		{"malformed body", "sk", `{`, 400, "SDP is required"},
		{"upstream error", "sk", `{"sdp":"x"}`, 500, "Failed to create session"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestBroker(failing.URL, tt.key, nil).App()
			req := httptest.NewRequest("POST", "/api/session", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("Request error: %v", err)
			}
			if resp.StatusCode != tt.status {
				t.Errorf("Status = %d, want %d", resp.StatusCode, tt.status)
			}
			if body := readBody(t, resp); body != tt.message {
				t.Errorf("body = %q, want %q", body, tt.message)
			}
		})
	}
}
