package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"qline/internal/notify"
	"qline/internal/server"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Обрабатывать отложенные письма из Redis",
	RunE:  runWorker,
}

func runWorker(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	if !cfg.RedisEnabled() {
		return errors.New("worker: REDIS_ADDR is required")
	}
	ctx, stop := signalContext()
	defer stop()

	mailer := notify.NewResendClient(cfg.Mail.ResendAPIKey, cfg.Mail.From)
	return notify.NewWorker(server.RedisConnOpt(cfg), mailer, log).Run(ctx)
}
