package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/drm-lab/urbanrisk/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "urbanrisk",
	Short: "Sub-Saharan Africa urbanization and flood-risk data pipeline",
	Long:  "Processes WUP2025, WPP, Africapolis, WorldPop and Fathom inputs into dashboard datasets and serves them as charts over HTTP.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
