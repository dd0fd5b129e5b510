package main

import (
	"log/slog"

	"github.com/teslashibe/go-speaky/internal/config"
	"github.com/teslashibe/go-speaky/pkg/assistant"
	"github.com/teslashibe/go-speaky/pkg/broker"
	"github.com/teslashibe/go-speaky/pkg/metrics"
	"github.com/teslashibe/go-speaky/pkg/realtime"
	"github.com/teslashibe/go-speaky/pkg/wallet"
)

// metricsNamespace prefixes every exported series.
const metricsNamespace = "speaky"

// newWallet builds the wallet adapter. Without a private key the wallet still
// exists but Connect reports that no signing key is configured.
func newWallet(c *config.Config, logger *slog.Logger, m *metrics.Metrics, approve wallet.Approver) (*wallet.Wallet, error) {
	opts := []wallet.Option{
		wallet.WithLogger(logger),
		wallet.WithMetrics(m),
	}
	if c.Wallet.PrivateKey != "" {
		signer, err := wallet.NewKeySigner(c.Wallet.PrivateKey)
		if err != nil {
			return nil, err
		}
		opts = append(opts, wallet.WithSigner(signer))
	}
	if approve != nil {
		opts = append(opts, wallet.WithApprover(approve))
	}

	return wallet.New(wallet.Config{
		RPCURL:           c.Wallet.RPCURL,
		DefaultRecipient: c.Wallet.DefaultRecipient,
		ConfirmTimeout:   c.Wallet.ConfirmTimeout,
	}, opts...), nil
}

// newDialer picks the transport. WebRTC negotiates through the broker, either
// with an ephemeral token or by letting the broker post the offer; WebSocket
// always uses an ephemeral token.
func newDialer(c *config.Config, logger *slog.Logger, rtcOpts ...realtime.WebRTCOption) realtime.Dialer {
	ephemeral := realtime.NewEphemeralSignaler(c.Broker.URL, c.OpenAI.BaseURL, c.OpenAI.Model)

	if c.Transport.Kind == config.TransportWebSocket {
		return realtime.NewWebSocketDialer(ephemeral, "", c.OpenAI.Model, logger)
	}

	var signaler realtime.Signaler = ephemeral
	if c.Broker.Mode == config.BrokerModeSession {
		signaler = realtime.NewBrokerSignaler(c.Broker.URL)
	}

	opts := []realtime.WebRTCOption{
		realtime.WithICEServers(c.Transport.ICEServers...),
		realtime.WithDialerLogger(logger),
	}
	return realtime.NewWebRTCDialer(signaler, append(opts, rtcOpts...)...)
}

// newBroker builds the credential broker from the provider settings.
func newBroker(c *config.Config, logger *slog.Logger, m *metrics.Metrics) *broker.Broker {
	return broker.New(
		broker.WithAPIKey(c.OpenAI.APIKey),
		broker.WithBaseURL(c.OpenAI.BaseURL),
		broker.WithModel(c.OpenAI.Model),
		broker.WithVoice(c.OpenAI.Voice),
		broker.WithLogger(logger),
		broker.WithMetrics(m),
	)
}

func assistantOptions(c *config.Config, logger *slog.Logger, m *metrics.Metrics) []assistant.Option {
	return []assistant.Option{
		assistant.WithDefaultRecipient(c.Wallet.DefaultRecipient),
		assistant.WithGaps(c.Transport.InitGap, c.Transport.OutputGap),
		assistant.WithEventLogCap(c.Transport.EventLogCap),
		assistant.WithWireTimestamps(c.Transport.WireTimestamps),
		assistant.WithLogger(logger),
		assistant.WithMetrics(m),
	}
}
