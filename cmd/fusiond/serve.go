package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"SignalFusion/internal/di"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API, the scheduled analysis loop and the feedback loop",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		app, cleanup, err := di.InitializeApp(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return app.Run(ctx)
	},
}
