package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/habitquest/platform/internal/domain"
	"github.com/habitquest/platform/internal/guard"
	"github.com/habitquest/platform/internal/repository"
)

// Publisher delivers a message to a topic. KafkaProducer implements it.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// OutboxPollerConfig tunes an OutboxPoller. Zero values pick defaults.
type OutboxPollerConfig struct {
	TopicPrefix string
	Interval    time.Duration
	BatchSize   int
	Breaker     *guard.CircuitBreaker
}

// OutboxPoller polls the event_outbox table and publishes events to Kafka.
// Events of one aggregate are published in order: after a failure the rest of
// that aggregate's batch waits for the next poll.
type OutboxPoller struct {
	db          repository.DBTX
	repo        repository.OutboxRepository
	publisher   Publisher
	breaker     *guard.CircuitBreaker
	logger      *slog.Logger
	topicPrefix string
	interval    time.Duration
	batchSize   int
}

// NewOutboxPoller creates a new outbox poller.
func NewOutboxPoller(db repository.DBTX, repo repository.OutboxRepository, publisher Publisher, cfg OutboxPollerConfig, logger *slog.Logger) *OutboxPoller {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "habitquest"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Breaker == nil {
		cfg.Breaker = guard.NewCircuitBreaker(5, 30*time.Second)
	}
	return &OutboxPoller{
		db:          db,
		repo:        repo,
		publisher:   publisher,
		breaker:     cfg.Breaker,
		logger:      logger,
		topicPrefix: cfg.TopicPrefix,
		interval:    cfg.Interval,
		batchSize:   cfg.BatchSize,
	}
}

// Topic returns the Kafka topic for an event: <prefix>.<aggregate>.<event>.
func Topic(prefix string, evt domain.OutboxDraft) string {
	return fmt.Sprintf("%s.%s.%s", prefix, evt.AggregateType, evt.EventType)
}

// Start begins polling in a goroutine. Stops when ctx is cancelled.
func (p *OutboxPoller) Start(ctx context.Context) {
	go p.Run(ctx)
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
			if _, err := p.PollOnce(ctx); err != nil {
				p.logger.Error("outbox poll error", "error", err)
			}
		}
	}
}

type outboxEnvelope struct {
	EventID       string          `json:"event_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Headers       json.RawMessage `json:"headers,omitempty"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// PollOnce publishes one batch and returns how many events were marked published.
func (p *OutboxPoller) PollOnce(ctx context.Context) (int, error) {
	events, err := p.repo.FetchUnpublished(ctx, p.db, p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	blocked := make(map[string]bool)
	published := make([]int64, 0, len(events))
	for _, e := range events {
		if blocked[e.AggregateID] {
			continue
		}
		topic := Topic(p.topicPrefix, e.OutboxDraft)
		if r := p.breaker.Check(ctx, topic); !r.Allowed {
			blocked[e.AggregateID] = true
			continue
		}

		msg, err := json.Marshal(outboxEnvelope{
			EventID:       e.EventID.String(),
			AggregateType: string(e.AggregateType),
			AggregateID:   e.AggregateID,
			EventType:     string(e.EventType),
			Headers:       e.Headers,
			Payload:       e.Payload,
			OccurredAt:    e.OccurredAt,
		})
		if err != nil {
			p.logger.Error("encode outbox event", "event_id", e.EventID, "error", err)
			blocked[e.AggregateID] = true
			continue
		}

		if err := p.publisher.Publish(ctx, topic, []byte(e.PartitionKey), msg); err != nil {
			p.breaker.RecordFailure(topic)
			blocked[e.AggregateID] = true
			p.logger.Error("kafka publish failed", "event_id", e.EventID, "topic", topic, "error", err)
			continue
		}
		p.breaker.RecordSuccess(topic)
		published = append(published, e.Seq)
	}

	if len(published) == 0 {
		return 0, nil
	}
	if err := p.repo.MarkPublished(ctx, p.db, published); err != nil {
		return 0, fmt.Errorf("mark published: %w", err)
	}

	p.logger.Debug("outbox poll complete", "published", len(published), "fetched", len(events))
	return len(published), nil
}
