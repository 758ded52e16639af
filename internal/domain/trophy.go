package domain

import "time"

// TrophyTier is the ordinal tier of a trophy.
type TrophyTier string

const (
	TierBronze   TrophyTier = "bronze"
	TierSilver   TrophyTier = "silver"
	TierGold     TrophyTier = "gold"
	TierPlatinum TrophyTier = "platinum"
	TierDiamond  TrophyTier = "diamond"
)

// TrophyTiers lists tiers in ascending order.
var TrophyTiers = []TrophyTier{TierBronze, TierSilver, TierGold, TierPlatinum, TierDiamond}

// Rank returns the tier's position in ascending order, or -1 if unknown.
func (t TrophyTier) Rank() int {
	for i, tier := range TrophyTiers {
		if tier == t {
			return i
		}
	}
	return -1
}

// RequirementKind tags the profile field a trophy requirement is checked against.
type RequirementKind string

const (
	RequireTotalCompletions RequirementKind = "total_completions"
	RequireMaxStreak        RequirementKind = "max_streak"
	RequireMonthlyPerfect   RequirementKind = "monthly_perfect"
	RequireTotalXP          RequirementKind = "total_xp"
	RequireLevel            RequirementKind = "level"
	RequireAchievements     RequirementKind = "achievements"
)

// TrophyRequirement is a tagged threshold: Kind selects the field, Value the minimum.
type TrophyRequirement struct {
	Kind  RequirementKind `json:"kind"`
	Value int             `json:"value"`
}

// Trophy is a higher-tier one-time unlock plus its unlock state.
type Trophy struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	Tier         TrophyTier        `json:"tier"`
	Requirement  TrophyRequirement `json:"requirement"`
	IsUnlocked   bool              `json:"is_unlocked"`
	UnlockedDate *time.Time        `json:"unlocked_date,omitempty"`
}
