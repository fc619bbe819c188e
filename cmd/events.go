/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/furniro/apiserver/internal/mq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect the domain event channel",
}

// eventsTailCmd logs every event published on the configured channel.
var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print events as they are published",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadRuntime()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		bus, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		if bus == nil {
			return errors.New("MQ_BACKEND is none, nothing to tail")
		}
		defer func() { _ = bus.Close() }()

		log.Info("tailing events", zap.String("channel", cfg.MQ.Channel))
		err = bus.Subscribe(ctx, cfg.MQ.Channel, func(ctx context.Context, msg mq.Message) error {
			event, err := mq.DecodeEvent(msg)
			if err != nil {
				// Unreadable messages are dropped rather than redelivered forever.
				log.Warn("skipping message", zap.String("id", msg.ID), zap.Error(err))
				return nil
			}
			log.Info("event",
				zap.String("type", event.Type),
				zap.String("subject", event.Subject),
				zap.Any("payload", event.Payload),
				zap.Time("occurred_at", event.OccurredAt),
			)
			return nil
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
