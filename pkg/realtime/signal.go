package realtime

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/teslashibe/go-speaky/internal/httpc"
)

// Default endpoints.
const (
	DefaultProviderURL = "https://api.openai.com/v1"
	DefaultModel       = "gpt-realtime"
)

// Signaler exchanges a local SDP offer for the provider's answer.
type Signaler interface {
	Exchange(ctx context.Context, offer string) (answer string, err error)
}

// TokenSource hands out short-lived provider credentials.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// tokenResponse covers both the current and the legacy client secret shapes.
type tokenResponse struct {
	Value        string `json:"value"`
	ExpiresAt    int64  `json:"expires_at"`
	ClientSecret *struct {
		Value string `json:"value"`
	} `json:"client_secret"`
}

func (t tokenResponse) credential() string {
	if t.Value != "" {
		return t.Value
	}
	if t.ClientSecret != nil {
		return t.ClientSecret.Value
	}
	return ""
}

// EphemeralSignaler fetches a short-lived credential from the broker and posts
// the offer directly to the provider with it.
type EphemeralSignaler struct {
	broker   *resty.Client
	provider *resty.Client
	model    string
}

// NewEphemeralSignaler creates a signaler. providerURL and model fall back to
// the OpenAI defaults when empty.
func NewEphemeralSignaler(brokerURL, providerURL, model string) *EphemeralSignaler {
	if providerURL == "" {
		providerURL = DefaultProviderURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &EphemeralSignaler{
		broker:   httpc.NewResty(strings.TrimRight(brokerURL, "/"), 15*time.Second),
		provider: httpc.NewResty(strings.TrimRight(providerURL, "/"), 30*time.Second),
		model:    model,
	}
}

// Token implements TokenSource via GET /api/token on the broker.
func (s *EphemeralSignaler) Token(ctx context.Context) (string, error) {
	var body tokenResponse
	resp, err := s.broker.R().
		SetContext(ctx).
		SetResult(&body).
		Get("/api/token")
	if err != nil {
		return "", fmt.Errorf("realtime: fetch token: %w", err)
	}
	if resp.IsError() {
		return "", &SignalError{StatusCode: resp.StatusCode(), Body: strings.TrimSpace(resp.String())}
	}

	token := body.credential()
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// Exchange implements Signaler.
func (s *EphemeralSignaler) Exchange(ctx context.Context, offer string) (string, error) {
	token, err := s.Token(ctx)
	if err != nil {
		return "", err
	}

	resp, err := s.provider.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/sdp").
		SetQueryParam("model", s.model).
		SetBody(offer).
		Post("/realtime/calls")
	if err != nil {
		return "", fmt.Errorf("realtime: post offer: %w", err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return "", &SignalError{StatusCode: resp.StatusCode(), Body: strings.TrimSpace(resp.String())}
	}

	answer := resp.String()
	if strings.TrimSpace(answer) == "" {
		return "", fmt.Errorf("%w: empty answer", ErrSignalling)
	}
	return answer, nil
}

// BrokerSignaler lets the broker negotiate with the provider, so the client
// never holds a credential.
type BrokerSignaler struct {
	broker *resty.Client
}

// NewBrokerSignaler creates a signaler that posts to {brokerURL}/api/session.
func NewBrokerSignaler(brokerURL string) *BrokerSignaler {
	return &BrokerSignaler{
		broker: httpc.NewResty(strings.TrimRight(brokerURL, "/"), 30*time.Second),
	}
}

type sdpBody struct {
	SDP string `json:"sdp"`
}

// Exchange implements Signaler.
func (s *BrokerSignaler) Exchange(ctx context.Context, offer string) (string, error) {
	var body sdpBody
	resp, err := s.broker.R().
		SetContext(ctx).
		SetBody(sdpBody{SDP: offer}).
		SetResult(&body).
		Post("/api/session")
	if err != nil {
		return "", fmt.Errorf("realtime: post session: %w", err)
	}
	if resp.IsError() {
		return "", &SignalError{StatusCode: resp.StatusCode(), Body: strings.TrimSpace(resp.String())}
	}
	if body.SDP == "" {
		return "", fmt.Errorf("%w: empty answer", ErrSignalling)
	}
	return body.SDP, nil
}

var (
	_ Signaler    = (*EphemeralSignaler)(nil)
	_ TokenSource = (*EphemeralSignaler)(nil)
	_ Signaler    = (*BrokerSignaler)(nil)
)
