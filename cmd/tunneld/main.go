package main

import (
	"context"
	"os"

	"github.com/carlmjohnson/versioninfo"
	"github.com/charmbracelet/fang"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

// Options holds the command line configuration.
type Options struct {
	ConfigFile   string
	EnvFile      string
	LogLevel     string
	ValidateOnly bool
}

func newRootCommand() *cobra.Command {
	var opts Options

	cmd := &cobra.Command{
		Use:   "tunneld",
		Short: "Secure tunnel server",
		Long: `tunneld accepts TLS tunnel connections, answers keep-alives and decrypts
payloads sent by tunnelctl clients. It runs until SIGINT or SIGTERM and then
closes every session before exiting. When admin_addr is set, an HTTP
listener serves /health, /sessions, /pool and /metrics. SIGHUP logs a
snapshot of the active sessions.`,
		Example: `  # Start with a config file
  tunneld --config /etc/sectun/tunneld.toml

  # Provide the payload key through the environment
  SECTUN_PAYLOAD_KEY=hex:... tunneld -f tunneld.toml

  # Check a config file without binding anything
  tunneld -f tunneld.toml --validate-only`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), opts, cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigFile, "config", "f", "",
		"path to the server configuration file (TOML format)")
	cmd.Flags().StringVar(&opts.EnvFile, "env-file", ".env",
		"optional dotenv file loaded before SECTUN_* overrides")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "",
		"override the configured log level (trace, debug, info, warn, error)")
	cmd.Flags().BoolVar(&opts.ValidateOnly, "validate-only", false,
		"load and validate configuration, then exit")

	return cmd
}

func main() {
	gin.SetMode(gin.ReleaseMode)
	if err := fang.Execute(
		context.Background(),
		newRootCommand(),
		fang.WithVersion(versioninfo.Short()),
	); err != nil {
		os.Exit(1)
	}
}
