package cmd

import (
	"fmt"

	"github.com/jonkersai/website/recordstore/sqlstore"
	"github.com/spf13/cobra"
)

func (a *app) newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the site tables in the SQL store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			driver := a.cfg.GetStoreDriver()
			if driver != sqlstore.DriverSQLite && driver != sqlstore.DriverPostgres {
				return fmt.Errorf("migrate needs the %s or %s store driver, not %q", sqlstore.DriverSQLite, sqlstore.DriverPostgres, driver)
			}
			// Open migrates before returning
			store, err := sqlstore.Open(cmd.Context(), driver, a.cfg.GetStoreDSN())
			if err != nil {
				return err
			}
			defer store.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "%s store is up to date\n", driver)
			return nil
		},
	}
}
