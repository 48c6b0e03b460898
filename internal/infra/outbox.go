package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Publisher sends one message to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// OutboxPoller polls the event_outbox table and publishes events to Kafka.
// Rows are claimed with FOR UPDATE SKIP LOCKED so several relays can run.
type OutboxPoller struct {
	pool        *pgxpool.Pool
	publisher   Publisher
	logger      *slog.Logger
	topicPrefix string
	interval    time.Duration
	batchSize   int
}

// NewOutboxPoller creates a new outbox poller.
func NewOutboxPoller(pool *pgxpool.Pool, publisher Publisher, cfg *Config, logger *slog.Logger) *OutboxPoller {
	interval := cfg.OutboxInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	batch := cfg.OutboxBatchSize
	if batch <= 0 {
		batch = 100
	}
	return &OutboxPoller{
		pool:        pool,
		publisher:   publisher,
		logger:      logger,
		topicPrefix: cfg.KafkaTopicPrefix,
		interval:    interval,
		batchSize:   batch,
	}
}

// Run polls until ctx is cancelled.
func (p *OutboxPoller) Run(ctx context.Context) {
	p.logger.Info("outbox poller started", "interval", p.interval, "batch_size", p.batchSize)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("outbox poller stopped")
			return
		case <-ticker.C:
			n, err := p.poll(ctx)
			if err != nil {
				p.logger.Error("outbox poll error", "error", err)
				continue
			}
			if n > 0 {
				p.logger.Debug("outbox poll complete", "published", n)
			}
		}
	}
}

type outboxEvent struct {
	EventID       uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	PartitionKey  string
	Payload       json.RawMessage
	OccurredAt    time.Time
}

func (p *OutboxPoller) poll(ctx context.Context) (int, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	events, err := fetchUnpublished(ctx, tx, p.batchSize)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	published := make([]uuid.UUID, 0, len(events))
	for _, e := range events {
		msg, _ := json.Marshal(map[string]interface{}{
			"event_id":       e.EventID,
			"aggregate_type": e.AggregateType,
			"aggregate_id":   e.AggregateID,
			"event_type":     e.EventType,
			"payload":        e.Payload,
			"occurred_at":    e.OccurredAt,
		})

		if err := p.publisher.Publish(ctx, TopicFor(p.topicPrefix, e.AggregateType, e.EventType), []byte(e.PartitionKey), msg); err != nil {
			// Stop here so later events for the same key are not published out of order.
			p.logger.Error("kafka publish failed", "event_id", e.EventID, "error", err)
			break
		}
		published = append(published, e.EventID)
	}

	if len(published) > 0 {
		if _, err := tx.Exec(ctx,
			`UPDATE event_outbox SET "publishedAt" = now() WHERE "eventId" = ANY($1)`, published); err != nil {
			return 0, fmt.Errorf("mark published: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(published), nil
}

func fetchUnpublished(ctx context.Context, tx pgx.Tx, limit int) ([]outboxEvent, error) {
	rows, err := tx.Query(ctx, `
		SELECT "eventId", "aggregateType", "aggregateId", "eventType", "partitionKey", "payload", "occurredAt"
		FROM event_outbox
		WHERE "publishedAt" IS NULL
		ORDER BY "id" ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch unpublished events: %w", err)
	}
	defer rows.Close()

	var events []outboxEvent
	for rows.Next() {
		var e outboxEvent
		if err := rows.Scan(&e.EventID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.PartitionKey, &e.Payload, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// TopicFor builds "<prefix>.<aggregate>.<event>", where event is the last
// segment of the dotted event type ("tracking.click.recorded" -> "recorded").
func TopicFor(prefix, aggregateType, eventType string) string {
	event := eventType
	if i := strings.LastIndex(eventType, "."); i >= 0 {
		event = eventType[i+1:]
	}
	if prefix == "" {
		return aggregateType + "." + event
	}
	return prefix + "." + aggregateType + "." + event
}
