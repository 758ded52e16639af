package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// MessageSource is the consuming half of infra.KafkaConsumer.
type MessageSource interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// PerfectMonthsMessage is published by the habit tracker whenever a user's
// count of perfect months changes.
type PerfectMonthsMessage struct {
	UserID        uuid.UUID `json:"user_id"`
	PerfectMonths int       `json:"perfect_months"`
}

// PerfectMonthsConsumer applies perfect month updates read from Kafka.
// Malformed messages are logged and committed; the count is monotonic so a
// lost update is repaired by the next one.
type PerfectMonthsConsumer struct {
	source MessageSource
	svc    *ProgressService
	logger *slog.Logger
}

// NewPerfectMonthsConsumer creates a new PerfectMonthsConsumer.
func NewPerfectMonthsConsumer(source MessageSource, svc *ProgressService, logger *slog.Logger) *PerfectMonthsConsumer {
	return &PerfectMonthsConsumer{source: source, svc: svc, logger: logger}
}

// Run consumes until ctx is cancelled or the source fails.
func (c *PerfectMonthsConsumer) Run(ctx context.Context) error {
	for {
		msg, err := c.source.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		c.handle(ctx, msg)

		if err := c.source.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit message: %w", err)
		}
	}
}

func (c *PerfectMonthsConsumer) handle(ctx context.Context, msg kafka.Message) {
	var in PerfectMonthsMessage
	if err := json.Unmarshal(msg.Value, &in); err != nil || in.UserID == uuid.Nil {
		c.logger.Warn("invalid perfect months message", "offset", msg.Offset, "partition", msg.Partition, "error", err)
		return
	}
	res, err := c.svc.SetPerfectMonths(ctx, in.UserID, in.PerfectMonths)
	if err != nil {
		c.logger.Error("apply perfect months failed", "user_id", in.UserID, "error", err)
		return
	}
	c.logger.Info("perfect months applied", "user_id", in.UserID, "perfect_months", res.Snapshot.PerfectMonths)
}
