package cmd

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/psds-microservice/support-bot/internal/application"
	"github.com/psds-microservice/support-bot/internal/config"
	"github.com/psds-microservice/support-bot/internal/kafka"
	"github.com/psds-microservice/support-bot/internal/service"
	"github.com/psds-microservice/support-bot/internal/store"
	"github.com/spf13/cobra"
)

var republishCmd = &cobra.Command{
	Use:   "republish",
	Short: "Publish a ticket.snapshot event for every open ticket to Kafka",
	RunE:  runRepublish,
}

func runRepublish(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateDB(); err != nil {
		return err
	}
	producer := kafka.NewProducer(kafka.ParseBrokers(cfg.KafkaBrokers), cfg.KafkaTopicTicket)
	if !producer.Enabled() {
		return errors.New("republish: KAFKA_BROKERS and KAFKA_TOPIC_TICKET are required")
	}
	defer producer.Close()

	db, err := application.OpenDB(cfg)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
	defer cancel()
	svc := service.NewTicketService(store.NewTicketStore(db), cfg.AdminUserID, service.WithProducer(producer))
	defer svc.Close()
	n, err := svc.PublishSnapshots(ctx)
	if err != nil {
		return err
	}
	log.Printf("republish: sent %d snapshots to %q", n, cfg.KafkaTopicTicket)
	return nil
}
