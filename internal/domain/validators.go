package domain

import (
	"fmt"
	"regexp"
)

var categoryRegex = regexp.MustCompile(`^[a-z][a-z0-9_\-]{0,31}$`)

// ValidateCategory checks that a habit category identifier is well formed.
func ValidateCategory(category string) error {
	if category == "" {
		return fmt.Errorf("category is required")
	}
	if !categoryRegex.MatchString(category) {
		return fmt.Errorf("invalid category identifier: %s", category)
	}
	return nil
}

// ValidateStreak checks that a reported habit streak is not negative.
func ValidateStreak(streak int) error {
	if streak < 0 {
		return fmt.Errorf("streak must not be negative, got %d", streak)
	}
	return nil
}

// ValidatePerfectMonths checks that a perfect-month count is not negative.
func ValidatePerfectMonths(n int) error {
	if n < 0 {
		return fmt.Errorf("perfect months must not be negative, got %d", n)
	}
	return nil
}

// ValidateDailyRewards checks the weekly schedule: exactly 7 slots, each with positive XP.
func ValidateDailyRewards(rewards []DailyReward) error {
	if len(rewards) != DailyRewardSlots {
		return fmt.Errorf("daily rewards must have %d slots, got %d", DailyRewardSlots, len(rewards))
	}
	for i, r := range rewards {
		if r.XPReward <= 0 {
			return fmt.Errorf("daily reward slot %d has non-positive xp %d", i, r.XPReward)
		}
	}
	return nil
}
