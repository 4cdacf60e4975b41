package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dailyconnect/pipeline/internal/models"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Get or set a genre's PipelineConfig row",
}

var (
	cfgGetGenre string

	cfgSetGenre     string
	cfgSetEnabled   bool
	cfgSetWindow    int
	cfgSetMinGroups int
	cfgSetBatchSize int
)

var configGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print a genre's effective PipelineConfig (defaults when no row exists)",
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Upsert a genre's PipelineConfig row",
	Long: `set upserts a genre's pipeline configuration row from the command
line. Only --genre is required; any of the four tunable fields left off
the command line takes its flag default (enabled=true, window-days=30,
min-groups=10, batch-size=20), since set re-reads nothing from the
existing row.`,
	RunE: runConfigSet,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configGetCmd, configSetCmd)

	configGetCmd.Flags().StringVarP(&cfgGetGenre, "genre", "g", "", "genre to read (films, music, books, sports)")
	_ = configGetCmd.MarkFlagRequired("genre")

	configSetCmd.Flags().StringVarP(&cfgSetGenre, "genre", "g", "", "genre to configure (films, music, books, sports)")
	configSetCmd.Flags().BoolVar(&cfgSetEnabled, "enabled", true, "whether FillWindow runs for this genre")
	configSetCmd.Flags().IntVar(&cfgSetWindow, "window-days", 30, "rolling window length in days")
	configSetCmd.Flags().IntVar(&cfgSetMinGroups, "min-groups", 10, "minimum approved groups desired per color")
	configSetCmd.Flags().IntVar(&cfgSetBatchSize, "batch-size", 20, "groups requested per LLM generation call")
	_ = configSetCmd.MarkFlagRequired("genre")
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	w, err := newWiring(ctx)
	if err != nil {
		return err
	}
	defer w.Close()

	cfg, err := w.service.Configs.Get(ctx, models.Genre(cfgGetGenre))
	if err != nil {
		return fmt.Errorf("pipelinectl: get config: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	w, err := newWiring(ctx)
	if err != nil {
		return err
	}
	defer w.Close()

	if cfgSetWindow < 1 || cfgSetMinGroups < 1 || cfgSetBatchSize < 1 {
		return fmt.Errorf("pipelinectl: window-days, min-groups, and batch-size must each be >= 1")
	}

	cfg := models.PipelineConfig{
		Genre:                 models.Genre(cfgSetGenre),
		Enabled:               cfgSetEnabled,
		RollingWindowDays:     cfgSetWindow,
		MinGroupsPerColor:     cfgSetMinGroups,
		AIGenerationBatchSize: cfgSetBatchSize,
	}

	saved, err := w.service.Configs.Upsert(ctx, cfg)
	if err != nil {
		return fmt.Errorf("pipelinectl: upsert config: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(saved)
}
