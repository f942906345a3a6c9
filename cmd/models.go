package cmd

import (
	"github.com/samsaffron/term-chat/internal/llm"
	"github.com/samsaffron/term-chat/internal/ui"
	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models in fallback order",
	Long: `List the configured models in the order they are tried. When a model
is unavailable the next one is used.`,
	Args: cobra.NoArgs,
	RunE: runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

func runModels(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	registry, err := llm.NewModelRegistry(cfg.Models)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	printModels(out, ui.NewStyles(out), registry.Models())
	return nil
}
