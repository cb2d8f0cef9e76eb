package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire pending transactions past their review window",
		Long: `Flip every pending transaction whose review window has elapsed to
the expired state. Safe to run from cron; already-expired records are
left untouched.`,
		RunE: runSweep,
	}
}

func runSweep(cmd *cobra.Command, _ []string) error {
	eng, store, err := initEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	count, err := eng.ExpirePending(cmd.Context())
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	slog.Info("Expiry sweep complete", "expired", count)
	return nil
}
