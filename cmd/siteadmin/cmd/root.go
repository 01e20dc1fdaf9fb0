// Package cmd implements the siteadmin commands.
//
// Every command reads the same configuration as the server (JONKERSAI_*
// environment variables, optionally layered over --config) and talks to the
// configured record store and auth provider directly.
package cmd

import (
	"bufio"
	"context"

	"github.com/jonkersai/website/internal/bootstrap"
	"github.com/jonkersai/website/internal/config"
	"github.com/jonkersai/website/internal/logging"
	"github.com/spf13/cobra"
)

type app struct {
	configPath string
	cfg        config.Config
	in         *bufio.Reader
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "siteadmin",
		Short:         "Administer the jonkersai.nl backend",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			logging.SetupWriter(cfg.GetEnv(), cfg.GetLogLevel(), cmd.ErrOrStderr())
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "optional config file (yaml, json or toml)")

	root.AddCommand(
		a.newSignInCmd(),
		a.newCheckAdminCmd(),
		a.newPasswdCmd(),
		a.newCredentialCmd(),
		a.newSitemapCmd(),
		a.newMigrateCmd(),
	)
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// backend opens the store and provider; callers must Close it.
func (a *app) backend(ctx context.Context) (*bootstrap.Backend, error) {
	return bootstrap.New(ctx, a.cfg)
}
