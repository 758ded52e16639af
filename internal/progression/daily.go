package progression

import (
	"context"

	"github.com/habitquest/platform/internal/domain"
)

const (
	comebackAchievementID = "comeback"
	comebackGapDays       = 7
)

// RecordLogin advances the daily login streak. A gap of one calendar day extends
// the streak; a longer gap resets it to 1 and, from a week on, unlocks the
// comeback achievement. lastLoginDate is always moved to now and persisted.
// Trophies are re-checked since a comeback unlock or a level change can meet them.
func (e *Engine) RecordLogin(ctx context.Context) error {
	return e.apply(ctx, func(p *pass) bool {
		pr := &e.profile
		if pr.LastLoginDate == nil {
			pr.DailyLoginStreak = 1
		} else {
			switch gap := e.daysBetween(*pr.LastLoginDate, p.at); {
			case gap == 1:
				pr.DailyLoginStreak++
			case gap > 1:
				pr.DailyLoginStreak = 1
				if gap >= comebackGapDays {
					e.unlockByID(p, comebackAchievementID)
				}
			}
		}

		at := p.at
		pr.LastLoginDate = &at
		e.settleTrophies(p)
		return true
	})
}

// ClaimDailyReward claims today's slot of the weekly cycle and grants its XP
// times the login-streak multiplier. It returns nil when a reward was already
// claimed today. A save error leaves the claim applied and is returned with it.
func (e *Engine) ClaimDailyReward(ctx context.Context) (*domain.ClaimResult, error) {
	var claim *domain.ClaimResult
	err := e.apply(ctx, func(p *pass) bool {
		claim = nil
		for _, r := range e.rewards {
			if r.ClaimedDate != nil && e.daysBetween(*r.ClaimedDate, p.at) == 0 {
				return false
			}
		}

		streak := e.profile.DailyLoginStreak
		idx := max(0, streak-1) % domain.DailyRewardSlots
		if idx >= len(e.rewards) {
			return false
		}

		at := p.at
		slot := &e.rewards[idx]
		slot.IsClaimed = true
		slot.ClaimedDate = &at

		multiplier := max(1, streak/domain.DailyRewardSlots+1)
		granted := slot.XPReward * multiplier
		claim = &domain.ClaimResult{
			Reward:     *slot,
			SlotIndex:  idx,
			Multiplier: multiplier,
			XPGranted:  granted,
		}

		e.addXP(p, granted, domain.ReasonDailyReward, true)
		e.settleTrophies(p)
		p.events = append(p.events, domain.NewDailyRewardClaimedEvent(e.userID, *claim, at))
		e.logger.Info("daily reward claimed", "slot", idx, "multiplier", multiplier, "xp", granted)
		return true
	})
	return claim, err
}
