package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newCleanupCmd(opts *rootOptions) *cobra.Command {
	var before string

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete reports created before a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			cutoff, err := parseCutoff(before)
			if err != nil {
				return err
			}
			repo, err := opts.openPostgres(cmd.Context())
			if err != nil {
				return err
			}
			defer repo.Close()

			deleted, err := repo.DeleteReportsBefore(cmd.Context(), cutoff)
			if err != nil {
				return err
			}
			opts.logger.Info("reports deleted", zap.Int64("count", deleted), zap.Time("before", cutoff))
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d reports created before %s\n", deleted, cutoff.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&before, "before", "", "cutoff as YYYY-MM-DD (UTC) or RFC3339")
	_ = cmd.MarkFlagRequired("before")
	return cmd
}

func parseCutoff(value string) (time.Time, error) {
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed, nil
	}
	parsed, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--before: expected YYYY-MM-DD or RFC3339, got %q", value)
	}
	return parsed, nil
}
