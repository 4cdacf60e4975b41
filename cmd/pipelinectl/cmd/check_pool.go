package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dailyconnect/pipeline/internal/models"
	"github.com/spf13/cobra"
)

var poolGenre string

var checkPoolCmd = &cobra.Command{
	Use:   "check-pool",
	Short: "Print the per-color approved-group pool health for a genre",
	RunE:  runCheckPool,
}

func init() {
	rootCmd.AddCommand(checkPoolCmd)
	checkPoolCmd.Flags().StringVarP(&poolGenre, "genre", "g", "", "genre to inspect (films, music, books, sports)")
	_ = checkPoolCmd.MarkFlagRequired("genre")
}

func runCheckPool(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	w, err := newWiring(ctx)
	if err != nil {
		return err
	}
	defer w.Close()

	health, err := w.service.CheckPool(ctx, models.Genre(poolGenre))
	if err != nil {
		return fmt.Errorf("pipelinectl: check pool: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(health)
}
