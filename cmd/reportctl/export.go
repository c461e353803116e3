package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hiyari/incident-reports-back/internal/category"
	"github.com/hiyari/incident-reports-back/internal/service"
)

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		out   string
		query service.ListQuery
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write reports to an XLSX workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			location, err := time.LoadLocation(opts.cfg.StatsTimezone)
			if err != nil {
				return fmt.Errorf("load STATS_TIMEZONE: %w", err)
			}
			repo, err := opts.openPostgres(cmd.Context())
			if err != nil {
				return err
			}
			defer repo.Close()

			file, err := os.Create(out)
			if err != nil {
				return err
			}
			reports := service.NewReportsService(repo, category.Default(), opts.logger)
			count, err := reports.Export(cmd.Context(), "", query, file, location)
			if closeErr := file.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				_ = os.Remove(out)
				return err
			}
			opts.logger.Info("reports exported", zap.Int("count", count), zap.String("path", out))
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d reports to %s\n", count, out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "reports.xlsx", "output file")
	cmd.Flags().StringVar(&query.Category, "category", "", "only this category code")
	cmd.Flags().StringVar(&query.From, "from", "", "created at or after (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&query.To, "to", "", "created at or before (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&query.AuthorID, "author", "", "only reports by this user ID")
	cmd.Flags().StringVar(&query.Q, "q", "", "substring of title or body")
	return cmd
}
