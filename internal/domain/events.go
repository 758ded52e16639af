package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

func newProgressEvent(userID uuid.UUID, evtType EventType, payload interface{}, at time.Time) OutboxDraft {
	data, _ := json.Marshal(payload)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateProgress,
		AggregateID:   userID.String(),
		EventType:     evtType,
		PartitionKey:  userID.String(),
		Headers:       json.RawMessage(`{}`),
		Payload:       data,
		OccurredAt:    at,
	}
}

// NewLevelUpEvent records a level change.
func NewLevelUpEvent(userID uuid.UUID, from, to Level, totalXP int, at time.Time) OutboxDraft {
	return newProgressEvent(userID, EventLevelUp, map[string]interface{}{
		"user_id":    userID.String(),
		"from_level": from.ID,
		"to_level":   to.ID,
		"level_name": to.Name,
		"total_xp":   totalXP,
	}, at)
}

// NewAchievementUnlockedEvent records an achievement unlock.
func NewAchievementUnlockedEvent(userID uuid.UUID, a Achievement, at time.Time) OutboxDraft {
	return newProgressEvent(userID, EventAchievementUnlocked, map[string]interface{}{
		"user_id":        userID.String(),
		"achievement_id": a.ID,
		"category":       a.Category,
		"xp_reward":      a.XPReward,
	}, at)
}

// NewTrophyUnlockedEvent records a trophy unlock and the tier bonus granted.
func NewTrophyUnlockedEvent(userID uuid.UUID, t Trophy, xpBonus int, at time.Time) OutboxDraft {
	return newProgressEvent(userID, EventTrophyUnlocked, map[string]interface{}{
		"user_id":   userID.String(),
		"trophy_id": t.ID,
		"tier":      t.Tier,
		"xp_bonus":  xpBonus,
	}, at)
}

// NewDailyRewardClaimedEvent records a daily reward claim.
func NewDailyRewardClaimedEvent(userID uuid.UUID, claim ClaimResult, at time.Time) OutboxDraft {
	return newProgressEvent(userID, EventDailyRewardClaimed, map[string]interface{}{
		"user_id":    userID.String(),
		"slot_index": claim.SlotIndex,
		"base_xp":    claim.Reward.XPReward,
		"multiplier": claim.Multiplier,
		"xp_granted": claim.XPGranted,
	}, at)
}

// NewProgressResetEvent records a reset-all.
func NewProgressResetEvent(userID uuid.UUID, at time.Time) OutboxDraft {
	return newProgressEvent(userID, EventProgressReset, map[string]string{
		"user_id": userID.String(),
	}, at)
}
