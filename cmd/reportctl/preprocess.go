package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hiyari/incident-reports-back/internal/textproc"
)

func newPreprocessCmd(_ *rootOptions) *cobra.Command {
	var cfg textproc.Config

	cmd := &cobra.Command{
		Use:   "preprocess [file]",
		Short: "Reduce a long incident text the way /ai/generate does",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				file, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer file.Close()
				input = file
			}
			text, err := io.ReadAll(input)
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}

			result, err := textproc.New(cfg).Preprocess(cmd.Context(), string(text))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, textproc.Stats(result))
			if result.IsProcessed {
				fmt.Fprintf(out, "chunks: %d\n", len(result.Chunks))
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, result.Content)
			return nil
		},
	}

	cmd.Flags().IntVar(&cfg.MaxDirectLength, "max-direct-length", textproc.DefaultMaxDirectLength, "texts up to this many characters pass through unchanged")
	cmd.Flags().IntVar(&cfg.ChunkSize, "chunk-size", textproc.DefaultChunkSize, "chunk window in characters")
	cmd.Flags().IntVar(&cfg.ChunkOverlap, "chunk-overlap", textproc.DefaultChunkOverlap, "overlap between chunk windows")
	cmd.Flags().IntVar(&cfg.SummaryLength, "summary-length", textproc.DefaultSummaryLength, "target length of the final summary")
	return cmd
}
