// Command mailer consumes order jobs from Kafka and sends the customer emails.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"paintball-ticketing/internal/config"
	"paintball-ticketing/internal/kafka"
	"paintball-ticketing/internal/logger"
	"paintball-ticketing/internal/mailer"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(logger.Options{Dir: cfg.LogDir, Service: "paintball-mailer", MinLevel: logger.ParseLevel(cfg.LogLevel)})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	err = run(cfg, log)
	if err != nil {
		log.Error("MAILER", err.Error())
	}
	log.Close()
	if err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	if !cfg.Kafka.Enabled {
		return errors.New("KAFKA_ENABLED must be true to run the mailer")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, []string{cfg.Kafka.Topic}, log); err != nil {
		log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
	}

	sender := mailer.NewSender(cfg.Email, log)
	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, log)
	defer consumer.Close()

	log.Info("MAILER", fmt.Sprintf("Sending via %s:%d as %s", cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.From))
	return consumer.Run(ctx, sender.HandleJob)
}
