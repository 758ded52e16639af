package domain

import "time"

// DailyRewardSlots is the fixed length of the weekly reward cycle.
const DailyRewardSlots = 7

// DailyReward is one slot of the weekly claim cycle.
type DailyReward struct {
	Day         int        `json:"day"`
	XPReward    int        `json:"xp_reward"`
	IsClaimed   bool       `json:"is_claimed"`
	ClaimedDate *time.Time `json:"claimed_date,omitempty"`
}

// ClaimResult describes a successful daily reward claim.
// Reward carries the slot's base XP; XPGranted includes the streak multiplier.
type ClaimResult struct {
	Reward     DailyReward `json:"reward"`
	SlotIndex  int         `json:"slot_index"`
	Multiplier int         `json:"multiplier"`
	XPGranted  int         `json:"xp_granted"`
}
