package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chris40461/scam-or-safe/internal/database"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "migrate up|down|version",
		Short:     "Manage the PostgreSQL schema for scenario storage",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up", "down", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadRuntime()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			pool, err := database.Connect(cmd.Context(), cfg.Database, database.DefaultConnectOptions(), log)
			if err != nil {
				return err
			}
			defer pool.Close()
			m := database.NewMigrator(pool, log)

			switch args[0] {
			case "up":
				return m.Up()
			case "down":
				return m.Down()
			case "version":
				version, dirty, err := m.Version()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
				return nil
			default:
				return fmt.Errorf("unknown migrate command %q", args[0])
			}
		},
	}
	return cmd
}
