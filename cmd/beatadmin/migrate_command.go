package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iliyamo/beat-license-registry/internal/config"
	"github.com/iliyamo/beat-license-registry/internal/database"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create missing tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := database.Open(cmd.Context(), cfg.Database())
			if err != nil {
				return err
			}
			defer db.Close()
			n, err := database.Migrate(cmd.Context(), db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d statements to %s\n", n, cfg.DBName)
			return nil
		},
	}
}
