package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/liquidmail/liquidmail/internal/logging"
	"github.com/liquidmail/liquidmail/internal/token"
)

func newMigrateCmd() *cobra.Command {
	var (
		debug       bool
		databaseURL string
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run credential store schema migrations",
		Long: `Apply pending schema migrations to the PostgreSQL credential store.

The serve command runs migrations at startup when --token-store postgres
is active. This command applies them separately, for deploy pipelines that
migrate before rolling out the server.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				databaseURL = os.Getenv("DATABASE_URL")
			}
			if databaseURL == "" {
				return fmt.Errorf("migrate requires --database-url or DATABASE_URL")
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

			if err := token.RunMigrations(ctx, store.DB(), logger); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}

			logger.Info("migrations applied")
			return nil
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL DSN. Can also use DATABASE_URL env var.")

	return cmd
}
