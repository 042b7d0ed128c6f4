package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/sectun/internal/admin"
	"github.com/danmuck/sectun/internal/config"
	"github.com/danmuck/sectun/internal/logging"
	"github.com/danmuck/sectun/internal/observability"
	"github.com/danmuck/sectun/internal/server"
)

const stopGrace = 5 * time.Second

func runServer(ctx context.Context, opts Options, logOut io.Writer) error {
	if err := config.LoadDotEnv(opts.EnvFile); err != nil {
		return fmt.Errorf("failed to load env file '%v': %w", opts.EnvFile, err)
	}
	cfg, err := config.LoadServer(opts.ConfigFile)
	if err != nil {
		return fmt.Errorf("failed to load config file '%v': %w", opts.ConfigFile, err)
	}
	logger := buildLogger(cfg, opts, logOut)

	if opts.ValidateOnly {
		logger.Info().
			Str("listen_addr", cfg.Core.ListenAddr).
			Str("cipher", string(cfg.Core.Cipher)).
			Msg("configuration valid")
		return nil
	}

	metrics := observability.NewMetrics(true)
	srv, err := server.New(cfg.Core,
		server.WithLogger(logger),
		server.WithMetrics(metrics),
		server.WithPayloadHandler(server.LogPayloads{Logger: logging.Component(logger, "payloads")}),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		return err
	}
	adminSrv, _, err := serveAdmin(cfg.AdminAddr, srv, metrics, logger)
	if err != nil {
		_ = srv.Stop(context.Background())
		return err
	}

	statusCh := make(chan os.Signal, 1)
	signal.Notify(statusCh, syscall.SIGHUP)
	defer signal.Stop(statusCh)

wait:
	for {
		select {
		case <-statusCh:
			logStatus(srv, logger)
		case <-ctx.Done():
			break wait
		}
	}

	logger.Info().Msg("shutdown requested")
	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Core.Session.ReceiveTimeout+stopGrace)
	defer cancel()
	if adminSrv != nil {
		_ = adminSrv.Shutdown(stopCtx)
	}
	return srv.Stop(stopCtx)
}

func buildLogger(cfg config.Server, opts Options, out io.Writer) zerolog.Logger {
	lc := logging.DefaultConfig(logging.ProfileRuntime)
	if lvl, ok := logging.ParseLevel(cfg.LogLevel); ok {
		lc.Level = lvl
	}
	lc.JSON = cfg.LogJSON
	lc = lc.WithEnv()
	if lvl, ok := logging.ParseLevel(opts.LogLevel); ok {
		lc.Level = lvl
	}
	return lc.Build(out).With().Str("app", "tunneld").Logger()
}

// serveAdmin binds addr and serves the admin routes on it in the
// background. It returns a nil server when addr is empty.
func serveAdmin(addr string, src admin.Source, metrics *observability.Metrics, logger zerolog.Logger) (*http.Server, net.Addr, error) {
	if addr == "" {
		return nil, nil, nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("admin listen %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           admin.NewRouter(src, metrics, logging.Component(logger, "admin")),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", addr).Msg("admin listener failed")
		}
	}()
	logger.Info().Str("addr", ln.Addr().String()).Msg("admin listening")
	return srv, ln.Addr(), nil
}

func logStatus(srv *server.Server, logger zerolog.Logger) {
	stats := srv.PoolStats()
	sessions := srv.Sessions()
	logger.Info().
		Int("sessions", len(sessions)).
		Int("workers", stats.Workers).
		Int("queued", stats.Queued).
		Msg("status")
	for _, info := range sessions {
		logger.Info().
			Str("session_id", info.ID).
			Str("token", info.Token).
			Str("state", info.State.String()).
			Time("last_activity", info.LastActivity).
			Uint64("payloads", info.Payloads).
			Uint64("keepalives", info.KeepAlives).
			Msg("session")
	}
}
