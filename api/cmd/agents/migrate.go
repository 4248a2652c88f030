package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations (and optionally purge old runs)",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()
		if a.cfg.DBDriver == "" {
			return errors.New("DB_DRIVER is not set")
		}
		ctx := context.Background()
		if err := a.openStore(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")

		if purge, _ := cmd.Flags().GetBool("purge"); purge {
			n, err := a.runs.PurgeOlderThan(ctx, a.cfg.RunRetention)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d runs older than %s\n", n, a.cfg.RunRetention)
		}
		return nil
	},
}

func init() {
	migrateCmd.Flags().Bool("purge", false, "delete runs older than RUN_RETENTION")
}
