package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"SignalFusion/internal/di"
	"SignalFusion/internal/domain/models"
)

var (
	decidePair      string
	decideTimeframe string
	decideBars      int
	decideCandles   string
)

var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Run one analysis cycle and print the decision as JSON",
	Example: `  # Latest 200 hourly bars from the candle store
  fusiond decide --pair EURUSD

  # Bars from a JSON file, no candle store needed
  fusiond decide --pair EURUSD --candles bars.json --config ""`,
	RunE: runDecide,
}

func init() {
	decideCmd.Flags().StringVar(&decidePair, "pair", "", "Instrument to analyse")
	decideCmd.Flags().StringVar(&decideTimeframe, "timeframe", "1h", "Bar timeframe")
	decideCmd.Flags().IntVar(&decideBars, "bars", 200, "Bars to load from the candle store")
	decideCmd.Flags().StringVar(&decideCandles, "candles", "", "JSON file with an ascending array of candles")
	_ = decideCmd.MarkFlagRequired("pair")
}

func runDecide(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(cfg.Producers.Builtin) == 0 && len(cfg.Producers.Remote) == 0 {
		cfg.Producers.Builtin = []string{"trend", "mtf", "volume"}
	}
	rt, cleanup, err := di.InitializeRuntime(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	var d models.FusedDecision
	if decideCandles != "" {
		candles, err := readCandles(decideCandles)
		if err != nil {
			return err
		}
		d = rt.Engine.DecideWithCandles(cmd.Context(), decidePair, decideTimeframe, candles)
	} else {
		d, err = rt.Engine.Decide(cmd.Context(), decidePair, decideTimeframe, decideBars)
		if err != nil {
			return err
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

func readCandles(path string) ([]models.Candle, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read candles: %w", err)
	}
	var cs []models.Candle
	if err := json.Unmarshal(b, &cs); err != nil {
		return nil, fmt.Errorf("decode candles: %w", err)
	}
	return cs, nil
}
