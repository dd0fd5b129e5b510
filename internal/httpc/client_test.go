package httpc

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	c := NewClient(5 * time.Second)
	if c.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v", c.Timeout)
	}
	if _, ok := c.Transport.(*http.Transport); !ok {
		t.Errorf("Transport = %T", c.Transport)
	}
}

func TestNewResty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ping" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("pong"))
	}))
	defer srv.Close()

	rc := NewResty(srv.URL, 0)
	if rc.GetClient().Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", rc.GetClient().Timeout, DefaultTimeout)
	}

	resp, err := rc.R().Get("/ping")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if resp.StatusCode() != http.StatusOK || resp.String() != "pong" {
		t.Errorf("response = %d %q", resp.StatusCode(), resp.String())
	}
}
