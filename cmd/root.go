// Package cmd — командная строка сервиса.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"qline/internal/config"
	"qline/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:           "qline",
	Short:         "Qline: очереди с онлайн-записью, обслуживанием и уведомлениями",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(migrateCmd)
}

// setup читает конфигурацию и создаёт логгер.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	log := logging.New(cfg.LogLevel, cfg.AppEnv)
	slog.SetDefault(log)
	return cfg, log, nil
}

// signalContext отменяется по SIGINT или SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
