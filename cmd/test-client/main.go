package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Wuchinator/campaign-reports/internal/config"
	"github.com/Wuchinator/campaign-reports/internal/event"
	"github.com/Wuchinator/campaign-reports/internal/interaction"
	"github.com/Wuchinator/campaign-reports/pkg/kafka"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	producer, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:          cfg.Kafka.Brokers,
		Topic:            cfg.Kafka.Topic,
		Retries:          cfg.Kafka.ProducerRetries,
		Timeout:          cfg.Kafka.ProducerTimeout,
		RequiredAcks:     cfg.Kafka.RequiredAcks,
		Compression:      cfg.Kafka.CompressionType,
		IdempotentWrites: cfg.Kafka.IdempotentWrites,
		MaxMessageBytes:  cfg.Kafka.MaxMessageBytes,
	}, zap.NewNop())
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}
	defer producer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Println("Sending single event")
	opened := event.NewInteractionEvent(1, interaction.TargetCampaign, 1, interaction.KindOpened)
	if err := event.Publish(ctx, producer, opened); err != nil {
		log.Fatalf("Failed to publish event: %v", err)
	}
	fmt.Printf("Event published: %s\n\n", opened.ID)

	fmt.Println("Sending batch of events")
	contactID := int64(2)
	events := []*event.InteractionEvent{
		event.NewInteractionEvent(contactID, interaction.TargetMailingList, 1, interaction.KindSubscribed),
		event.NewInteractionEvent(contactID, interaction.TargetCampaign, 1, interaction.KindSent),
		event.NewInteractionEvent(contactID, interaction.TargetCampaign, 1, interaction.KindOpened),
		event.NewInteractionEvent(contactID, interaction.TargetCampaign, 1, interaction.KindClicked),
	}

	batch := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		if err := ev.Validate(); err != nil {
			log.Fatalf("Invalid event %s: %v", ev.ID, err)
		}
		batch = append(batch, kafka.Message{Key: ev.Key(), Value: ev})
	}
	if err := producer.SendMessages(ctx, batch); err != nil {
		log.Fatalf("Failed to publish batch: %v", err)
	}
	fmt.Printf("Batch published: %d events\n", len(batch))

	fmt.Println("\nAll events sent")
}
