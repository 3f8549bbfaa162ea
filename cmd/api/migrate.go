package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"skribe/api/internal/config"
	"skribe/api/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down]",
	Short:     "Apply or roll back database migrations",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down"},
	RunE: func(cmd *cobra.Command, args []string) error {
		direction := "up"
		if len(args) == 1 {
			direction = args[0]
		}

		cfg := config.Load()
		ctx := cmd.Context()
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer db.Close()

		switch direction {
		case "down":
			err = store.ApplyDownMigrations(ctx, db, cfg.MigrationsDir)
		default:
			err = store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
		}
		if err != nil {
			return fmt.Errorf("migrate %s: %w", direction, err)
		}
		log.Printf("migrations %s complete", direction)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
