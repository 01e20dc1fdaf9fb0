package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jonkersai/website/auth"
	"github.com/spf13/cobra"
)

func (a *app) newSignInCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signin <email>",
		Short: "Sign in and print the resulting auth state",
		Long: `Signs in the way the website does: the auth provider first, then the
credentials table. Prints who is signed in, whether they are an admin and
where the session came from.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			password, err := a.readSecret(cmd, "Password: ")
			if err != nil {
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

			if _, err := rec.SignIn(ctx, args[0], password); err != nil {
				return signInError(err)
			}
			printSnapshot(cmd.OutOrStdout(), rec.Snapshot())
			return nil
		},
	}
}

func signInError(err error) error {
	var authErr *auth.Error
	if errors.As(err, &authErr) && authErr.Kind != auth.KindUnexpected {
		return errors.New(authErr.Kind.Message())
	}
	return err
}

func printSnapshot(w io.Writer, snap auth.Snapshot) {
	fmt.Fprintf(w, "state:   %s\n", snap.State)
	if snap.Identity == nil {
		return
	}
	fmt.Fprintf(w, "user:    %s (%s)\n", snap.Identity.Email, snap.Identity.ID)
	fmt.Fprintf(w, "admin:   %t\n", snap.IsAdmin)
	if s := snap.Session; s != nil {
		source := "auth provider"
		if s.Synthesized {
			source = "credentials table"
		}
		fmt.Fprintf(w, "session: %s, expires %s\n", source, s.ExpiresAt.Format(time.RFC3339))
	}
}
