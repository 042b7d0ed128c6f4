package main

import (
	"bufio"
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/danmuck/sectun/internal/auth"
	"github.com/danmuck/sectun/internal/client"
	"github.com/danmuck/sectun/internal/crypto"
)

func newConnectCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Open an interactive session",
		Long: `connect keeps a session open with periodic keep-alives. Each line read from
stdin is sent as one payload and every payload received is written to stdout.
The session ends on EOF, SIGINT, SIGTERM or when the server closes it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, logger, err := dial(ctx, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer c.Disconnect()
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			if err := c.StartKeepAlive(ctx); err != nil {
				return err
			}

			closed := make(chan struct{})
			go func() {
				defer close(closed)
				for ctx.Err() == nil {
					res, err := c.ReceiveResult()
					if ctx.Err() != nil {
						return
					}
					if err != nil {
						var cerr *crypto.CipherError
						if errors.As(err, &cerr) {
							logger.Warn().Err(err).Msg("dropped undecryptable payload")
							continue
						}
						logger.Error().Err(err).Msg("receive failed")
						return
					}
					switch res.Kind {
					case client.ReceivedPayload:
						fmt.Fprintln(cmd.OutOrStdout(), string(res.Plaintext))
					case client.ReceivedClosed:
						logger.Info().Msg("server closed the session")
						return
					}
				}
			}()

			lines := make(chan string)
			go func() {
				defer close(lines)
				scanner := bufio.NewScanner(cmd.InOrStdin())
				for scanner.Scan() {
					select {
					case lines <- scanner.Text():
					case <-ctx.Done():
						return
					}
				}
			}()

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-closed:
					return nil
				case line, ok := <-lines:
					if !ok {
						return nil
					}
					if err := c.SendSecureData([]byte(line)); err != nil {
						return err
					}
				}
			}
		},
	}
}

func newSendCommand(opts *Options) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "send [message...]",
		Short: "Send one payload and disconnect",
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload []byte
			switch {
			case file != "":
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				payload = data
			case len(args) > 0:
				payload = []byte(strings.Join(args, " "))
			default:
				return fmt.Errorf("nothing to send: pass a message or --file")
			}

			c, logger, err := dial(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer c.Disconnect()
			if err := c.SendSecureData(payload); err != nil {
				return err
			}
			logger.Info().Int("bytes", len(payload)).Msg("payload sent")
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "send the contents of this file instead of arguments")
	return cmd
}

func newPingCommand(opts *Options) *cobra.Command {
	var (
		count    int
		interval time.Duration
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Measure keep-alive round trips",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, _, err := dial(ctx, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer c.Disconnect()

			for i := 1; count <= 0 || i <= count; i++ {
				pingCtx, cancel := context.WithTimeout(ctx, timeout)
				rtt, err := c.Ping(pingCtx)
				cancel()
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("ping %d: %w", i, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ack seq=%d time=%s\n", i, rtt.Round(time.Microsecond))
				if count > 0 && i == count {
					break
				}
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(interval):
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 4, "number of pings, 0 for unlimited")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "delay between pings")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "give up on one ping after this long")
	return cmd
}

func newKeygenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Print a new random payload key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := crypto.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), crypto.FormatKey(key))
			return nil
		},
	}
}

func newFingerprintCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint <cert.pem>",
		Short: "Print the SHA-256 fingerprint of a certificate for pinned_fingerprints",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			block, _ := pem.Decode(data)
			if block == nil || block.Type != "CERTIFICATE" {
				return fmt.Errorf("%s: no PEM certificate found", args[0])
			}
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), auth.Fingerprint(cert))
			return nil
		},
	}
}
