package cmd

import (
	"github.com/spf13/cobra"

	"qline/internal/server"
)

var withWorker bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Запустить HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&withWorker, "with-worker", false, "обрабатывать очередь писем в этом же процессе")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	app, err := server.New(ctx, cfg, log, server.Options{WithWorker: withWorker})
	if err != nil {
		return err
	}
	return app.Run(ctx)
}
