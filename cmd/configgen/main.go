package main

import (
	"context"
	"fmt"
	"os"

	"github.com/carlmjohnson/versioninfo"
	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/danmuck/sectun/internal/config"
)

type Options struct {
	Kind     string
	Output   string
	Validate bool
	Input    string
	Force    bool
}

func defaultPath(kind string) (string, error) {
	switch kind {
	case "server", "tunneld":
		return "tunneld.toml", nil
	case "client", "tunnelctl":
		return "tunnelctl.toml", nil
	default:
		return "", fmt.Errorf("unknown kind: %s", kind)
	}
}

func validate(kind, path string) error {
	switch kind {
	case "server", "tunneld":
		_, err := config.LoadServer(path)
		return err
	case "client", "tunnelctl":
		_, err := config.LoadClient(path)
		return err
	default:
		return fmt.Errorf("unknown kind: %s", kind)
	}
}

func run(cmd *cobra.Command, opts Options) error {
	if opts.Validate {
		path := opts.Input
		if path == "" {
			p, err := defaultPath(opts.Kind)
			if err != nil {
				return err
			}
			path = p
		}
		if err := validate(opts.Kind, path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Validated %s config at %s\n", opts.Kind, path)
		return nil
	}

	target := opts.Output
	if target == "" {
		p, err := defaultPath(opts.Kind)
		if err != nil {
			return err
		}
		target = p
	}
	if err := config.WriteTemplate(target, opts.Kind, opts.Force); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s config template to %s\n", opts.Kind, target)
	return nil
}

func newRootCommand() *cobra.Command {
	var opts Options

	cmd := &cobra.Command{
		Use:   "configgen",
		Short: "Write or validate tunneld and tunnelctl config files",
		Example: `  # Write a server template
  configgen --kind server --output /etc/sectun/tunneld.toml

  # Validate a client config, including SECTUN_* overrides
  configgen --kind client --validate --input tunnelctl.toml`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Kind, "kind", "server", "config kind: server|client")
	cmd.Flags().StringVar(&opts.Output, "output", "", "output path for config template")
	cmd.Flags().BoolVar(&opts.Validate, "validate", false, "validate an existing config file")
	cmd.Flags().StringVar(&opts.Input, "input", "", "config path for validation (defaults to the per-kind file name)")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "overwrite existing config file")
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
