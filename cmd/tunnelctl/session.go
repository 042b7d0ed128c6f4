package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/danmuck/sectun/internal/auth"
	"github.com/danmuck/sectun/internal/client"
	"github.com/danmuck/sectun/internal/config"
	"github.com/danmuck/sectun/internal/logging"
)

func loadClientConfig(opts *Options) (config.Client, error) {
	if err := config.LoadDotEnv(opts.EnvFile); err != nil {
		return config.Client{}, fmt.Errorf("failed to load env file '%v': %w", opts.EnvFile, err)
	}
	cfg, err := config.LoadClientWithOverrides(opts.ConfigFile, config.ClientOverrides{ServerAddr: opts.Server})
	if err != nil {
		return config.Client{}, fmt.Errorf("failed to load config file '%v': %w", opts.ConfigFile, err)
	}
	return cfg, nil
}

func buildLogger(cfg config.Client, opts *Options, out io.Writer) zerolog.Logger {
	lc := logging.DefaultConfig(logging.ProfileRuntime)
	if lvl, ok := logging.ParseLevel(cfg.LogLevel); ok {
		lc.Level = lvl
	}
	lc = lc.WithEnv()
	if lvl, ok := logging.ParseLevel(opts.LogLevel); ok {
		lc.Level = lvl
	}
	return lc.Build(out).With().Str("app", "tunnelctl").Logger()
}

// dial loads configuration and returns a connected client. The caller owns
// the Disconnect.
func dial(ctx context.Context, opts *Options, logOut io.Writer) (*client.Client, zerolog.Logger, error) {
	cfg, err := loadClientConfig(opts)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger := buildLogger(cfg, opts, logOut)

	clientOpts := []client.Option{client.WithLogger(logger)}
	if len(cfg.PinnedFingerprints) > 0 {
		pins, err := auth.NewPinnedFingerprint(cfg.PinnedFingerprints...)
		if err != nil {
			return nil, logger, err
		}
		clientOpts = append(clientOpts, client.WithAuthenticator(pins))
	}

	c, err := client.New(cfg.Core, clientOpts...)
	if err != nil {
		return nil, logger, err
	}
	if err := c.Connect(ctx); err != nil {
		return nil, logger, err
	}
	return c, logger, nil
}
