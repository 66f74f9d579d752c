package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Wuchinator/campaign-reports/pkg/metrics"
	"go.uber.org/zap"
)

type CacheInvalidator interface {
	Invalidate(ctx context.Context, tags ...string) (int, error)
}

type KafkaProducer interface {
	SendMessage(ctx context.Context, key string, value any) error
}

// Service keeps cached reports consistent with the record store by dropping
// every report an incoming interaction affects.
type Service struct {
	cache   CacheInvalidator
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewService(cache CacheInvalidator, m *metrics.Metrics, logger *zap.Logger) *Service {
	return &Service{
		cache:   cache,
		metrics: m,
		logger:  logger,
	}
}

func (s *Service) ProcessEvent(ctx context.Context, ev *InteractionEvent) error {
	if err := ev.Validate(); err != nil {
		// Unvalidated fields never become label values.
		s.metrics.RecordEvent("", "", "invalid")
		s.logger.Warn("Skipping invalid interaction event",
			zap.Error(err),
			zap.String("event_id", ev.ID.String()),
		)
		return nil
	}

	deleted, err := s.cache.Invalidate(ctx, ev.CacheTags()...)
	if err != nil {
		s.metrics.RecordEvent(string(ev.TargetType), string(ev.Interaction), "failed")
		s.logger.Error("Failed to invalidate reports",
			zap.Error(err),
			zap.String("event_id", ev.ID.String()),
		)
		return fmt.Errorf("failed to invalidate reports: %w", err)
	}

	s.metrics.RecordEvent(string(ev.TargetType), string(ev.Interaction), "ok")
	s.metrics.RecordInvalidation(deleted)

	s.logger.Debug("Interaction event processed",
		zap.String("event_id", ev.ID.String()),
		zap.String("target_type", string(ev.TargetType)),
		zap.Int64("target_id", ev.TargetID),
		zap.Int64("contact_id", ev.ContactID),
		zap.String("interaction", string(ev.Interaction)),
		zap.Int("invalidated", deleted),
	)

	return nil
}

// CreateMessageHandler decodes interaction events for the Kafka consumer.
// Undecodable payloads are logged and skipped.
func (s *Service) CreateMessageHandler() func(ctx context.Context, key, value []byte) error {
	return func(ctx context.Context, key, value []byte) error {
		var ev InteractionEvent
		if err := json.Unmarshal(value, &ev); err != nil {
			s.metrics.RecordEvent("", "", "invalid")
			s.logger.Error("Failed to unmarshal interaction event",
				zap.Error(err),
				zap.String("key", string(key)),
				zap.String("value", string(value)),
			)
			return nil
		}

		return s.ProcessEvent(ctx, &ev)
	}
}

// Publish validates an event and sends it keyed by contact.
func Publish(ctx context.Context, producer KafkaProducer, ev *InteractionEvent) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}
	if err := producer.SendMessage(ctx, ev.Key(), ev); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
