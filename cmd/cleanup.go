package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/liquidmail/liquidmail/internal/logging"
	"github.com/liquidmail/liquidmail/internal/token"
)

func newCleanupCmd() *cobra.Command {
	var (
		debug       bool
		databaseURL string
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Prune superseded credential rows from the postgres store",
		Long: `Remove credential rows that a newer row for the same subject has replaced.

The postgres store keeps history by inserting a fresh row on every save,
so the table grows with each token refresh. Only the newest row per
subject is ever read back; this command deletes the rest.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				databaseURL = os.Getenv("DATABASE_URL")
			}
			if databaseURL == "" {
				return fmt.Errorf("cleanup requires --database-url or DATABASE_URL")
			}

			ctx, cancel := signal.NotifyContext(context.Background(),
				os.Interrupt, syscall.SIGTERM)
			defer cancel()

			logger := newLogger(debug)

			store, err := token.NewPostgresStore(ctx, databaseURL, logger)
			if err != nil {
				return fmt.Errorf("failed to open postgres store: %w", err)
			}
			defer func() {
				if err := store.Close(); err != nil {
					logger.Error("store close failed", logging.Err(err))
				}
			}()

			pruned, err := store.PruneSuperseded(ctx)
			if err != nil {
				return fmt.Errorf("failed to prune credentials: %w", err)
			}

			logger.Info("cleanup finished", slog.Int64("rows_pruned", pruned))
			return nil
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL DSN. Can also use DATABASE_URL env var.")

	return cmd
}
