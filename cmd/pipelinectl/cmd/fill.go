package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dailyconnect/pipeline/internal/models"
	"github.com/spf13/cobra"
)

var fillGenre string

var fillCmd = &cobra.Command{
	Use:   "fill",
	Short: "Run FillWindow once for a genre",
	Long: `fill triggers a single FillWindow invocation for the given genre,
computing demand, driving LLM generation for any color deficits, and
assembling/publishing puzzles for every empty date in its rolling window.`,
	RunE: runFill,
}

func init() {
	rootCmd.AddCommand(fillCmd)
	fillCmd.Flags().StringVarP(&fillGenre, "genre", "g", "", "genre to fill (films, music, books, sports)")
	_ = fillCmd.MarkFlagRequired("genre")
}

func runFill(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	w, err := newWiring(ctx)
	if err != nil {
		return err
	}
	defer w.Close()

	genre := models.Genre(fillGenre)
	cfg, err := w.service.Configs.Get(ctx, genre)
	if err != nil {
		return fmt.Errorf("pipelinectl: get config: %w", err)
	}
	if !cfg.Enabled {
		fmt.Fprintf(os.Stderr, "genre %q is disabled in pipeline_config; filling anyway\n", genre)
	}

	var stage func(models.Stage)
	if verbosity > 0 {
		stage = func(st models.Stage) {
			fmt.Fprintf(os.Stderr, "[%s] stage: %s\n", genre, st)
		}
	}

	result := w.service.FillWindow(ctx, genre, cfg, stage)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
