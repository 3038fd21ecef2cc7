package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/floodcat/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "floodcat",
	Short: "Flood mapping catalogs, co-registration and scoring",
	Long:  "Builds STAC catalogs for flood datasets, co-registers HAND rasters onto SAR chips, orders Sentinel-1 imagery and scores flood predictions.",
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
