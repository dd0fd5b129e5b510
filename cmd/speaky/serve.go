package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-speaky/internal/log"
	"github.com/teslashibe/go-speaky/pkg/assistant"
	"github.com/teslashibe/go-speaky/pkg/metrics"
	"github.com/teslashibe/go-speaky/pkg/notify"
	"github.com/teslashibe/go-speaky/pkg/realtime"
	"github.com/teslashibe/go-speaky/pkg/web"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the credential broker and operator dashboard",
	Long: `Run the credential broker (GET /api/token, POST /api/session) together with
the operator dashboard. The dashboard drives an embedded assistant: start and
stop the session, send typed messages, trigger tools and watch events, toasts
and status live over WebSockets. Prometheus metrics are served at /metrics.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides broker.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.L()
	if serveAddr != "" {
		cfg.Broker.Addr = serveAddr
	}
	if cfg.OpenAI.APIKey == "" {
		logger.Warn("OPENAI_API_KEY not set; /api/token and /api/session will fail")
	}

	m := metrics.New(metricsNamespace)
	b := newBroker(cfg, logger, m)

	w, err := newWallet(cfg, logger, m, nil)
	if err != nil {
		return err
	}

	// The dashboard needs the assistant and the assistant's toasts need the
	// dashboard, so toasts go through a Multi the server joins later.
	toasts := notify.NewMulti(notify.NewLogNotifier(logger))
	a := assistant.New(newDialer(cfg, logger), w, toasts, assistantOptions(cfg, logger, m)...)

	srv := web.NewServer(cfg.Broker.Addr, a,
		web.WithBroker(b),
		web.WithMetrics(m),
		web.WithStaticDir(cfg.Broker.StaticDir),
		web.WithLogger(logger),
	)
	toasts.Add(srv)
	a.Subscribe(srv.PublishEvent)
	a.OnPhaseChange(func(realtime.Phase) { srv.PublishStatus() })
	a.Dispatcher().OnResult(srv.PublishToolResult)

	if cfg.Wallet.AutoConnect {
		if err := a.ConnectWallet(ctx); err != nil {
			logger.Warn("wallet auto-connect failed", "error", err)
		}
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errc:
		if err != nil {
			return err
		}
	}

	a.Close()
	_ = a.DisconnectWallet()
	if err := srv.Shutdown(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
