package cmd

import (
	"fmt"

	"github.com/jonkersai/website/internal/config"
	"github.com/jonkersai/website/users"
	"github.com/spf13/cobra"
)

func (a *app) newCredentialCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Manage fallback credential records",
	}
	cmd.AddCommand(a.newCredentialAddCmd())
	return cmd
}

func (a *app) newCredentialAddCmd() *cobra.Command {
	var (
		isAdmin bool
		name    string
	)
	cmd := &cobra.Command{
		Use:   "add <email>",
		Short: "Add a credential record for an email",
		Long: `Adds a record to the credentials table. The password is stored the way
auth.password_storage says: verbatim (legacy) or as a bcrypt hash.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			password, err := a.readSecret(cmd, "Password: ")
			if err != nil {
				return err
			}
			if err := users.ValidatePasswordStrength(password); err != nil {
				return err
			}

			stored := password
			if a.cfg.GetPasswordStorage() == config.PasswordStorageBcrypt {
				if stored, err = users.HashPassword(password); err != nil {
					return err
				}
			}

			b, err := a.backend(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			rec, err := users.NewStoreCredentialRepo(b.Store).Create(ctx, users.CredentialRecord{
				Email:        args[0],
				Password:     stored,
				PasswordHash: stored,
				IsAdmin:      isAdmin,
				Name:         name,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s, admin=%t)\n", rec.Email, rec.ID, rec.IsAdmin)
			return nil
		},
	}
	cmd.Flags().BoolVar(&isAdmin, "admin", false, "grant admin rights")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	return cmd
}
