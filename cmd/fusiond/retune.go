package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"SignalFusion/internal/di"
)

var retuneQuality []float64

var retuneCmd = &cobra.Command{
	Use:   "retune",
	Short: "Run one threshold retune pass against the shared state store",
	Long: `Feeds the given signal-quality samples (for example scored offline from
the audit table) into the quality window and runs a single retune pass
under the retune lock. Without samples it only reports the current state.`,
	Example: `  fusiond retune --quality 0.18,0.22,0.2,0.19,0.21,0.17,0.2,0.23,0.18,0.2`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if len(cfg.Producers.Builtin) == 0 && len(cfg.Producers.Remote) == 0 {
			cfg.Producers.Builtin = []string{"trend"}
		}
		rt, cleanup, err := di.InitializeRuntime(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		for _, q := range retuneQuality {
			rt.Window.Add(q)
		}
		res, err := rt.Retuner.RunOnce(cmd.Context())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	retuneCmd.Flags().Float64SliceVar(&retuneQuality, "quality", nil, "Signal-quality samples in [0,1]")
}
