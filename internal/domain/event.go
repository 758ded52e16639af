package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates all domain event types.
type EventType string

const (
	EventLevelUp             EventType = "progress.level.up"
	EventAchievementUnlocked EventType = "progress.achievement.unlocked"
	EventTrophyUnlocked      EventType = "progress.trophy.unlocked"
	EventDailyRewardClaimed  EventType = "progress.daily_reward.claimed"
	EventProgressReset       EventType = "progress.reset"
)

// AggregateType enumerates the aggregate root types for outbox events.
type AggregateType string

const (
	AggregateProgress AggregateType = "progress"
)

// OutboxDraft is the payload written to the event_outbox table.
type OutboxDraft struct {
	EventID       uuid.UUID       `json:"eventId"`
	AggregateType AggregateType   `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	EventType     EventType       `json:"eventType"`
	PartitionKey  string          `json:"partitionKey"`
	Headers       json.RawMessage `json:"headers"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

// OutboxEvent is a stored outbox row awaiting publication.
type OutboxEvent struct {
	Seq int64 `json:"seq"`
	OutboxDraft
}
