package main

import (
	"github.com/spf13/cobra"

	"github.com/aristath/factorlab/internal/config"
	"github.com/aristath/factorlab/pkg/logger"
)

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "factorlab",
		Short:         "Cross-sectional factor return estimation",
		Long:          "factorlab decomposes realized asset returns into market, sector and style factor returns plus idiosyncratic residuals using constrained weighted least squares.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML configuration file")

	cmd.AddCommand(newEstimateCmd(&configPath))
	return cmd
}

func setupLogging(cfg *config.Config) {
	logger.SetGlobalLogger(logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Pretty: cfg.Log.Pretty,
	}))
}
