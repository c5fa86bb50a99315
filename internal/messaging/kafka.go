package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/streamsense/recengine/internal/config"
	"github.com/streamsense/recengine/internal/metrics"
	"github.com/streamsense/recengine/internal/validation"
	"github.com/streamsense/recengine/pkg/models"
)

const (
	maxHandlerRetries = 3
	publishTimeout    = 10 * time.Second
)

// WatchlistHandler applies one decoded watchlist event.
type WatchlistHandler func(ctx context.Context, event models.WatchlistEvent) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Stats() kafka.ReaderStats
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventBus consumes watchlist events from the app backend and publishes
// freshly computed content DNA.
type EventBus struct {
	reader    messageReader
	dnaWriter messageWriter
	dlqWriter messageWriter
	validator *validation.SchemaValidator
	topics    topics
	baseDelay time.Duration
	logger    *logrus.Logger
}

type topics struct {
	watchlist string
	dna       string
	dlq       string
}

func NewEventBus(cfg config.KafkaConfig, validator *validation.SchemaValidator, logger *logrus.Logger) *EventBus {
	t := topics{
		watchlist: cfg.Topics.WatchlistEvents,
		dna:       cfg.Topics.DNAComputed,
		dlq:       cfg.Topics.WatchlistEvents + "-dlq",
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          t.watchlist,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		CommitInterval: 0,
		StartOffset:    kafka.LastOffset,
	})

	dnaWriter := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        t.dna,
		Balancer:     &kafka.Hash{}, // keyed by content so updates for one title stay ordered
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}

	dlqWriter := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        t.dlq,
		RequiredAcks: kafka.RequireOne,
	}

	return newEventBus(reader, dnaWriter, dlqWriter, validator, t, logger)
}

func newEventBus(reader messageReader, dnaWriter, dlqWriter messageWriter, validator *validation.SchemaValidator, t topics, logger *logrus.Logger) *EventBus {
	return &EventBus{
		reader:    reader,
		dnaWriter: dnaWriter,
		dlqWriter: dlqWriter,
		validator: validator,
		topics:    t,
		baseDelay: time.Second,
		logger:    logger,
	}
}

// ConsumeWatchlistEvents reads until ctx is cancelled. Invalid payloads go
// straight to the dead-letter topic; handler failures are retried with
// exponential backoff first. Every message is committed once it has been
// handled or dead-lettered.
func (b *EventBus) ConsumeWatchlistEvents(ctx context.Context, handler WatchlistHandler) error {
	b.logger.WithField("topic", b.topics.watchlist).Info("Consuming watchlist events")
	for {
		msg, err := b.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.WithError(err).Error("Failed to read message from Kafka")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(b.baseDelay):
			}
			continue
		}

		b.handle(ctx, msg, handler)

		if err := b.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			b.logger.WithError(err).WithField("offset", msg.Offset).Error("Failed to commit Kafka message")
		}
	}
}

func (b *EventBus) handle(ctx context.Context, msg kafka.Message, handler WatchlistHandler) {
	event, err := b.decode(msg.Value)
	if err != nil {
		metrics.EventsConsumed.WithLabelValues("unknown", "invalid").Inc()
		b.logger.WithError(err).WithField("offset", msg.Offset).Warn("Rejected watchlist event")
		b.deadLetter(ctx, msg, err)
		return
	}

	if err := b.processWithRetry(ctx, event, handler); err != nil {
		metrics.EventsConsumed.WithLabelValues(string(event.Action), "failed").Inc()
		b.logger.WithError(err).WithField("event_id", event.EventID).Error("Failed to process watchlist event after retries")
		b.deadLetter(ctx, msg, err)
		return
	}
	metrics.EventsConsumed.WithLabelValues(string(event.Action), "ok").Inc()
}

func (b *EventBus) decode(payload []byte) (models.WatchlistEvent, error) {
	var event models.WatchlistEvent
	if b.validator != nil {
		if err := b.validator.ValidateWatchlistEvent(payload).Err(); err != nil {
			return event, err
		}
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return event, fmt.Errorf("failed to unmarshal watchlist event: %w", err)
	}
	return event, nil
}

func (b *EventBus) processWithRetry(ctx context.Context, event models.WatchlistEvent, handler WatchlistHandler) error {
	var lastErr error
	for attempt := 0; attempt <= maxHandlerRetries; attempt++ {
		if attempt > 0 {
			delay := b.baseDelay * time.Duration(1<<uint(attempt-1))
			b.logger.WithFields(logrus.Fields{
				"event_id": event.EventID,
				"attempt":  attempt,
				"delay":    delay,
			}).Info("Retrying watchlist event")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if lastErr = handler(ctx, event); lastErr == nil {
			b.logger.WithFields(logrus.Fields{
				"event_id": event.EventID,
				"action":   event.Action,
				"attempt":  attempt,
			}).Debug("Watchlist event processed")
			return nil
		}

		b.logger.WithError(lastErr).WithFields(logrus.Fields{
			"event_id": event.EventID,
			"attempt":  attempt,
		}).Warn("Watchlist event processing failed")
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (b *EventBus) deadLetter(ctx context.Context, msg kafka.Message, cause error) {
	if b.dlqWriter == nil || errors.Is(cause, context.Canceled) {
		return
	}
	dlq := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: []kafka.Header{
			{Key: "original_topic", Value: []byte(b.topics.watchlist)},
			{Key: "error", Value: []byte(cause.Error())},
			{Key: "dlq_timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		},
	}
	if err := b.dlqWriter.WriteMessages(ctx, dlq); err != nil {
		b.logger.WithError(err).Error("Failed to send message to DLQ")
		return
	}
	b.logger.WithField("error", cause.Error()).Warn("Message sent to DLQ")
}

// PublishDNAComputed announces a persisted DNA record, keyed by content.
func (b *EventBus) PublishDNAComputed(ctx context.Context, event models.DNAComputedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal DNA event: %w", err)
	}
	if b.validator != nil {
		if err := b.validator.ValidateDNAComputed(payload).Err(); err != nil {
			return err
		}
	}

	key := event.DNA.Ref().Key()
	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "content", Value: []byte(key)},
			{Key: "timestamp", Value: []byte(event.Timestamp.Format(time.RFC3339))},
		},
	}
	if err := b.dnaWriter.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	b.logger.WithFields(logrus.Fields{
		"content": key,
		"topic":   b.topics.dna,
	}).Debug("Published content DNA")
	return nil
}

// OnProgress satisfies services.QueueListener; progress is not published.
func (b *EventBus) OnProgress(models.QueueStatus) {}

// OnComplete publishes successful computations.
func (b *EventBus) OnComplete(item models.QueueItem, dna *models.ContentDNA, err error) {
	if err != nil || dna == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	event := models.DNAComputedEvent{DNA: *dna, Attempts: item.RetryCount + 1, Timestamp: time.Now().UTC()}
	if err := b.PublishDNAComputed(ctx, event); err != nil {
		b.logger.WithError(err).WithField("content", item.Key()).Error("Failed to publish content DNA")
	}
}

func (b *EventBus) Close() error {
	var errs []error
	if err := b.reader.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close consumer: %w", err))
	}
	if err := b.dnaWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close producer: %w", err))
	}
	if b.dlqWriter != nil {
		if err := b.dlqWriter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close DLQ writer: %w", err))
		}
	}
	return errors.Join(errs...)
}

// GetMetrics returns consumer statistics for monitoring.
func (b *EventBus) GetMetrics() map[string]interface{} {
	stats := b.reader.Stats()
	return map[string]interface{}{
		"consumer_lag":    stats.Lag,
		"consumer_offset": stats.Offset,
		"messages_read":   stats.Messages,
		"bytes_read":      stats.Bytes,
		"rebalances":      stats.Rebalances,
		"timeouts":        stats.Timeouts,
		"errors":          stats.Errors,
	}
}
