package main

import (
	"context"
	"os"

	"github.com/carlmjohnson/versioninfo"
	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

// Options holds the flags shared by every subcommand.
type Options struct {
	ConfigFile string
	EnvFile    string
	Server     string
	LogLevel   string
}

func newRootCommand() *cobra.Command {
	var opts Options

	cmd := &cobra.Command{
		Use:   "tunnelctl",
		Short: "Secure tunnel client",
		Long: `tunnelctl connects to a tunneld server over TLS and exchanges encrypted
payloads. Connection settings come from a TOML file, a dotenv file and
SECTUN_* environment variables, in that order of increasing precedence.`,
		Example: `  # Generate a payload key shared by tunneld and tunnelctl
  tunnelctl keygen

  # Send one message
  tunnelctl -c tunnelctl.toml send "hello"

  # Measure keep-alive round trips
  tunnelctl -c tunnelctl.toml ping --count 5

  # Interactive session: stdin lines are sent, payloads are printed
  tunnelctl -c tunnelctl.toml connect`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigFile, "config", "c", "",
		"path to the client configuration file (TOML format)")
	flags.StringVar(&opts.EnvFile, "env-file", ".env",
		"optional dotenv file loaded before SECTUN_* overrides")
	flags.StringVarP(&opts.Server, "server", "s", "",
		"server address as host or host:port, overrides the config file and environment")
	flags.StringVar(&opts.LogLevel, "log-level", "",
		"override the configured log level (trace, debug, info, warn, error)")

	cmd.AddCommand(
		newConnectCommand(&opts),
		newSendCommand(&opts),
		newPingCommand(&opts),
		newKeygenCommand(),
		newFingerprintCommand(),
	)
	return cmd
}

func main() {
	if err := fang.Execute(
		context.Background(),
		newRootCommand(),
		fang.WithVersion(versioninfo.Short()),
	); err != nil {
		os.Exit(1)
	}
}
