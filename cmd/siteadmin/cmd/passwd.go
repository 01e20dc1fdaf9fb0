package cmd

import (
	"errors"
	"fmt"

	"github.com/jonkersai/website/auth"
	"github.com/jonkersai/website/users"
	"github.com/spf13/cobra"
)

func (a *app) newPasswdCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "passwd <email>",
		Short: "Change the credentials-table password of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			current, err := a.readSecret(cmd, "Current password: ")
			if err != nil {
				return err
			}
			newPassword, err := a.readSecret(cmd, "New password: ")
			if err != nil {
				return err
			}
			confirm, err := a.readSecret(cmd, "Repeat new password: ")
			if err != nil {
				return err
			}
			if newPassword != confirm {
				return errors.New("new passwords do not match")
			}
			if err := users.ValidatePasswordStrength(newPassword); err != nil {
				return err
			}

			b, err := a.backend(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			rec, err := auth.NewReconciler(b.Authenticator)
			if err != nil {
				return err
			}
			if err := rec.Start(ctx); err != nil {
				return err
			}
			defer rec.Close()

			if _, err := rec.SignIn(ctx, args[0], current); err != nil {
				if auth.KindOf(err) == auth.KindInvalidCredentials {
					return errors.New(auth.KindIncorrectCurrentPassword.Message())
				}
				return signInError(err)
			}
			defer rec.SignOut(ctx)

			if err := rec.UpdatePassword(ctx, current, newPassword); err != nil {
				return signInError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "password updated for %s\n", args[0])
			return nil
		},
	}
}
