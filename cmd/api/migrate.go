package main

import (
	"fmt"
	"strconv"

	"github.com/residencyreview/eras-review-api/internal/database"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			return migrateUp(a)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations (default 1 step)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return fmt.Errorf("steps must be a positive integer, got %q", args[0])
				}
				steps = n
			}
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			if err := database.MigrateDown(a.db.DB, steps); err != nil {
				return err
			}
			a.log.WithField("steps", steps).Info("migrations rolled back")
			return nil
		},
	})
	return cmd
}

func migrateUp(a *app) error {
	if err := database.MigrateUp(a.db.DB); err != nil {
		return err
	}
	a.log.Info("migrations applied")
	return nil
}
