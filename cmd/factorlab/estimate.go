package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/aristath/factorlab/internal/config"
	"github.com/aristath/factorlab/internal/modules/estimator"
	"github.com/aristath/factorlab/internal/modules/factors"
)

func newEstimateCmd(configPath *string) *cobra.Command {
	var inputPath string
	var styleNames []string

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate factor returns from a CSV panel",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			setupLogging(cfg)

			input, err := loadCSVPanels(inputPath)
			if err != nil {
				return err
			}

			registry := factors.NewRegistry()
			for _, name := range styleNames {
				fc, err := cfg.FactorConfig(name)
				if err != nil {
					return err
				}
				var f factors.Factor
				switch name {
				case "momentum":
					f, err = factors.NewMomentum(fc)
				case "size":
					f, err = factors.NewSize(fc)
				case "value":
					f, err = factors.NewValue(fc)
				default:
					return fmt.Errorf("no built-in factor named %q", name)
				}
				if err != nil {
					return err
				}
				registry.Register(f)
			}

			styles, err := registry.Panel(input.features, input.returns.Dates())
			if err != nil {
				return err
			}

			estCfg, err := cfg.EstimatorConfig()
			if err != nil {
				return err
			}
			est, err := estimator.New(estCfg)
			if err != nil {
				return err
			}
			result, err := est.Estimate(context.Background(), input.returns, input.caps, input.sectors, styles)
			if err != nil {
				return err
			}

			printSummary(cmd, result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "CSV panel: date,symbol,asset_returns,market_cap,sector[,book_price,sales_price,cf_price]")
	cmd.Flags().StringSliceVar(&styleNames, "styles", []string{"momentum", "size"}, "style factors to include")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func printSummary(cmd *cobra.Command, result *estimator.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s: %d dates estimated, %d skipped\n\n", result.RunID, len(result.Factors), len(result.Skipped))
	if len(result.Factors) == 0 {
		return
	}

	// Cumulate factor returns over the run.
	cumulative := map[string]float64{"market": 0}
	for _, row := range result.Factors {
		cumulative["market"] += row.Market
		for name, v := range row.Sectors {
			cumulative[name] += v
		}
		for name, v := range row.Styles {
			cumulative[name] += v
		}
	}
	names := make([]string, 0, len(cumulative))
	for name := range cumulative {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(out, "%-24s %14s\n", "factor", "cum. return")
	for _, name := range names {
		fmt.Fprintf(out, "%-24s %+13.4f%%\n", name, cumulative[name]*100)
	}
	for _, skip := range result.Skipped {
		log.Warn().Time("date", skip.Date).Err(skip.Reason).Msg("date excluded from output")
	}
}
