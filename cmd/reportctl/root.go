package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hiyari/incident-reports-back/internal/config"
	"github.com/hiyari/incident-reports-back/internal/logging"
	"github.com/hiyari/incident-reports-back/internal/repository"
)

var errDatabaseRequired = errors.New("DATABASE_URL (or --database-url) is required for this command")

type rootOptions struct {
	databaseURL string
	logLevel    string

	cfg    config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "reportctl",
		Short:         "Operate the incident report backend",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(".env", ".env.local"); err != nil {
				return err
			}
			opts.cfg = config.Load()
			if opts.databaseURL != "" {
				opts.cfg.DatabaseURL = opts.databaseURL
			}
			level := opts.cfg.LogLevel
			if opts.logLevel != "" {
				level = opts.logLevel
			}
			logger, err := logging.New(logging.Config{Level: level, Development: true})
			if err != nil {
				return err
			}
			opts.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.databaseURL, "database-url", "", "Postgres URL (default: DATABASE_URL)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (default: LOG_LEVEL)")

	cmd.AddCommand(newPreprocessCmd(opts))
	cmd.AddCommand(newImportDemoCmd(opts))
	cmd.AddCommand(newCleanupCmd(opts))
	cmd.AddCommand(newExportCmd(opts))
	cmd.AddCommand(newLoadCmd(opts))
	return cmd
}

// openPostgres connects and bootstraps the schema.
func (o *rootOptions) openPostgres(ctx context.Context) (*repository.PostgresReportsRepository, error) {
	if o.cfg.DatabaseURL == "" {
		return nil, errDatabaseRequired
	}
	repo, err := repository.NewPostgresReportsRepository(ctx, o.cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := repo.EnsureSchema(ctx); err != nil {
		repo.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return repo, nil
}
