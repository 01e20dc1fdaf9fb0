package cmd

import (
	"errors"
	"fmt"

	"github.com/jonkersai/website/recordstore"
	"github.com/jonkersai/website/users"
	"github.com/spf13/cobra"
)

func (a *app) newCheckAdminCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-admin <email>",
		Short: "Report whether an email has admin rights",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, err := a.backend(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			identity := &users.Identity{Email: args[0]}
			rec, err := users.NewStoreCredentialRepo(b.Store).GetByEmail(ctx, args[0])
			switch {
			case err == nil:
				identity.ID = rec.ID
			case !errors.Is(err, recordstore.ErrNoRows):
				return err
			}

			if b.Authenticator.CheckAdminStatus(ctx, identity) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: admin\n", identity.Email)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: not admin\n", identity.Email)
			}
			return nil
		},
	}
}
