/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/eventdesk/accounts/config"
	"github.com/eventdesk/accounts/internal/logging"
	"github.com/eventdesk/accounts/internal/mailer"
	"github.com/eventdesk/accounts/internal/mq"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var mailerWorkers int

// mailerCmd represents the mailer command
var mailerCmd = &cobra.Command{
	Use:   "mailer",
	Short: "Delivers queued account emails",
	Long: `Consumes email jobs published by the API server when MAIL_TRANSPORT=queue
and delivers them over SMTP. Usage:

	accounts mailer --workers 2
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		log := logging.New(cfg.LogLevel).With("component", "mailer")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		queue, err := mq.Open(ctx, cfg)
		if err != nil {
			return err
		}
		defer queue.Close()

		gateway, err := mailer.NewDeliveryGateway(cfg.Mail, log)
		if err != nil {
			return fmt.Errorf("build delivery gateway: %w", err)
		}

		g, ctx := errgroup.WithContext(ctx)
		for i := 0; i < max(mailerWorkers, 1); i++ {
			worker := mailer.NewWorker(queue, cfg.Mail.Channel, gateway, log.With("worker", i))
			g.Go(func() error {
				return worker.Run(ctx)
			})
		}
		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(mailerCmd)

	mailerCmd.Flags().IntVar(&mailerWorkers, "workers", 1, "number of concurrent subscriptions")
}
