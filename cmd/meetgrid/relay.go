package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	apihttp "github.com/example/meetgrid/internal/http"
	"github.com/example/meetgrid/internal/realtime"
	"github.com/example/meetgrid/internal/relay"
)

func newRelayCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Run the websocket relay fed by the Redis bus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runRelay(ctx, root)
		},
	}
}

func runRelay(ctx context.Context, opts *rootOptions) error {
	cfg, logger := opts.cfg, opts.logger
	if cfg.RedisURL == "" {
		return errRelayNeedsRedis
	}
	rdb, err := openRedis(ctx, cfg)
	if err != nil {
		return err
	}
	defer rdb.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ws := relay.NewServer(relay.Options{AllowedOrigins: cfg.AllowedOrigins, Logger: logger})
	runErr := make(chan error, 1)
	go func() {
		runErr <- ws.Run(ctx, realtime.NewRedisBus(rdb, logger))
		cancel()
	}()

	router := apihttp.NewRouter(apihttp.RouterConfig{
		Relay:  ws,
		Health: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		Middleware: []func(http.Handler) http.Handler{
			apihttp.RequestLogger(logger),
		},
	})
	listenErr := listen(ctx, logger, "meetgrid relay", cfg.RelayAddr, router)
	cancel()
	if err := <-runErr; err != nil {
		return err
	}
	return listenErr
}
