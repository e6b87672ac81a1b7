package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/meetgrid/internal/application"
	apihttp "github.com/example/meetgrid/internal/http"
	"github.com/example/meetgrid/internal/persistence"
	"github.com/example/meetgrid/internal/relay"
	"github.com/example/meetgrid/internal/token"
)

type serveOptions struct {
	*rootOptions
	PurgeInterval time.Duration
}

func newServeCommand(root *rootOptions) *cobra.Command {
	opts := &serveOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the meeting API",
		Long: `Run the meeting API server.

Without MEETGRID_REDIS_URL the server publishes events in-process and also
serves the websocket relay at /ws. With Redis, events go to the shared bus
and the relay runs separately under "meetgrid relay".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}
	cmd.Flags().DurationVar(&opts.PurgeInterval, "purge-interval", time.Hour, "how often to delete expired meetings (0 disables)")
	return cmd
}

func runServe(ctx context.Context, opts *serveOptions) error {
	cfg, logger := opts.cfg, opts.logger

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := st.close(); cerr != nil {
			logger.Error("failed to close store", "error", cerr)
		}
	}()

	rdb, err := openRedis(ctx, cfg)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	limiter, err := newLimiter(ctx, cfg, rdb, logger)
	if err != nil {
		return err
	}
	bus := newEventBus(rdb, logger)

	service := application.NewMeetingService(application.MeetingServiceDeps{
		Meetings:  st.meetings,
		Tokens:    token.NewGenerator(),
		Events:    bus.publisher,
		Limiter:   limiter,
		Now:       time.Now,
		PublicURL: cfg.PublicURL,
		Logger:    logger,
	})

	routes := apihttp.RouterConfig{
		Meetings: apihttp.NewMeetingHandler(service, logger),
		Health:   st.ping,
		Middleware: []func(http.Handler) http.Handler{
			apihttp.RequestLogger(logger),
			apihttp.CORS(cfg.AllowedOrigins),
			apihttp.ClientOrigin,
		},
	}
	if bus.local != nil {
		ws := relay.NewServer(relay.Options{AllowedOrigins: cfg.AllowedOrigins, Logger: logger})
		routes.Relay = ws
		go func() {
			if err := ws.Run(ctx, bus.local); err != nil {
				logger.ErrorContext(ctx, "embedded relay stopped", "error", err)
			}
		}()
	}

	if opts.PurgeInterval > 0 {
		go purgeLoop(ctx, st.meetings, opts.PurgeInterval, logger)
	}

	return listen(ctx, logger, "meetgrid API", cfg.HTTPAddr, apihttp.NewRouter(routes))
}

// listen serves handler until ctx ends, then shuts down gracefully.
func listen(ctx context.Context, logger *slog.Logger, name, addr string, handler http.Handler) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info(name+" listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func purgeLoop(ctx context.Context, meetings persistence.MeetingRepository, every time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed, err := meetings.DeleteExpiredMeetings(ctx, now)
			if err != nil {
				logger.WarnContext(ctx, "expired meeting purge failed", "error", err)
				continue
			}
			if removed > 0 {
				logger.InfoContext(ctx, "expired meetings purged", "count", removed)
			}
		}
	}
}
