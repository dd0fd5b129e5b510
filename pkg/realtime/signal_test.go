package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEphemeralSignaler(t *testing.T) {
	broker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/token" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value":"ek_test","expires_at":123}`))
	}))
	defer broker.Close()

	var gotAuth, gotType, gotModel, gotOffer string
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/realtime/calls" {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		gotModel = r.URL.Query().Get("model")
		gotOffer = string(body)
		w.Header().Set("Content-Type", "application/sdp")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("v=0 answer"))
	}))
	defer provider.Close()

	s := NewEphemeralSignaler(broker.URL, provider.URL, "gpt-realtime")

	answer, err := s.Exchange(context.Background(), "v=0 offer")
	if err != nil {
		t.Fatalf("exchange failed: %v", err)
	}
	if answer != "v=0 answer" {
		t.Errorf("answer = %q", answer)
	}
	if gotAuth != "Bearer ek_test" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if gotType != "application/sdp" {
		t.Errorf("content type = %q", gotType)
	}
	if gotModel != "gpt-realtime" {
		t.Errorf("model = %q", gotModel)
	}
	if gotOffer != "v=0 offer" {
		t.Errorf("offer = %q", gotOffer)
	}
}

func TestEphemeralSignalerToken(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    string
		wantErr error
	}{
		{"current shape", http.StatusOK, `{"value":"ek_1"}`, "ek_1", nil},
		{"legacy shape", http.StatusOK, `{"client_secret":{"value":"ek_2"}}`, "ek_2", nil},
		{"missing value", http.StatusOK, `{}`, "", ErrMissingToken},
		{"broker error", http.StatusInternalServerError, `OpenAI API key not configured`, "", ErrSignalling},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.status == http.StatusOK {
					w.Header().Set("Content-Type", "application/json")
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			got, err := NewEphemeralSignaler(srv.URL, "", "").Token(context.Background())
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("token failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("token = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEphemeralSignalerProviderError(t *testing.T) {
	broker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value":"ek"}`))
	}))
	defer broker.Close()
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad offer", http.StatusBadRequest)
	}))
	defer provider.Close()

	_, err := NewEphemeralSignaler(broker.URL, provider.URL, "").Exchange(context.Background(), "offer")
	var sigErr *SignalError
	if !errors.As(err, &sigErr) {
		t.Fatalf("expected SignalError, got %v", err)
	}
	if sigErr.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", sigErr.StatusCode)
	}
}

func TestBrokerSignaler(t *testing.T) {
	t.Run("exchange", func(t *testing.T) {
		var got sdpBody
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != "/api/session" {
				http.NotFound(w, r)
				return
			}
			_ = json.NewDecoder(r.Body).Decode(&got)
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(sdpBody{SDP: "answer"})
		}))
		defer srv.Close()

		answer, err := NewBrokerSignaler(srv.URL).Exchange(context.Background(), "offer")
		if err != nil {
			t.Fatalf("exchange failed: %v", err)
		}
		if got.SDP != "offer" {
			t.Errorf("broker received %q", got.SDP)
		}
		if answer != "answer" {
			t.Errorf("answer = %q", answer)
		}
	})

	t.Run("error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "SDP is required", http.StatusBadRequest)
		}))
		defer srv.Close()

		_, err := NewBrokerSignaler(srv.URL).Exchange(context.Background(), "")
		if !errors.Is(err, ErrSignalling) {
			t.Errorf("expected ErrSignalling, got %v", err)
		}
	})
}
