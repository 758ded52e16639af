package catalog

import (
	"errors"
	"fmt"
	"slices"

	"github.com/habitquest/platform/internal/domain"
)

var requirementKinds = []domain.RequirementKind{
	domain.RequireTotalCompletions, domain.RequireMaxStreak, domain.RequireMonthlyPerfect,
	domain.RequireTotalXP, domain.RequireLevel, domain.RequireAchievements,
}

// Validate checks a definition for internal consistency. All problems are reported.
func Validate(def Definition) error {
	var errs []error

	if len(def.Levels) == 0 {
		errs = append(errs, fmt.Errorf("level table is empty"))
	} else if def.Levels[0].MinXP != 0 {
		errs = append(errs, fmt.Errorf("first level must start at 0 xp, got %d", def.Levels[0].MinXP))
	}
	for i := 1; i < len(def.Levels); i++ {
		prev, cur := def.Levels[i-1], def.Levels[i]
		if cur.MinXP <= prev.MinXP {
			errs = append(errs, fmt.Errorf("level %d threshold %d not above level %d threshold %d", cur.ID, cur.MinXP, prev.ID, prev.MinXP))
		}
		if cur.ID <= prev.ID {
			errs = append(errs, fmt.Errorf("level ids must ascend: %d after %d", cur.ID, prev.ID))
		}
	}

	seen := make(map[string]bool)
	for _, a := range def.Achievements {
		if a.ID == "" {
			errs = append(errs, fmt.Errorf("achievement with empty id"))
			continue
		}
		if seen[a.ID] {
			errs = append(errs, fmt.Errorf("duplicate achievement id %q", a.ID))
		}
		seen[a.ID] = true
		if !slices.Contains(domain.RuleKinds, a.Rule) {
			errs = append(errs, fmt.Errorf("achievement %q has unknown rule kind %q", a.ID, a.Rule))
		}
		if a.Requirement <= 0 {
			errs = append(errs, fmt.Errorf("achievement %q requirement must be positive", a.ID))
		}
		if a.XPReward < 0 {
			errs = append(errs, fmt.Errorf("achievement %q has negative xp reward", a.ID))
		}
	}

	seen = make(map[string]bool)
	for _, t := range def.Trophies {
		if t.ID == "" {
			errs = append(errs, fmt.Errorf("trophy with empty id"))
			continue
		}
		if seen[t.ID] {
			errs = append(errs, fmt.Errorf("duplicate trophy id %q", t.ID))
		}
		seen[t.ID] = true
		if _, ok := def.TierBonus[t.Tier]; !ok {
			errs = append(errs, fmt.Errorf("trophy %q tier %q has no xp bonus", t.ID, t.Tier))
		}
		if !slices.Contains(requirementKinds, t.Requirement.Kind) {
			errs = append(errs, fmt.Errorf("trophy %q has unknown requirement kind %q", t.ID, t.Requirement.Kind))
		}
		if t.Requirement.Value <= 0 {
			errs = append(errs, fmt.Errorf("trophy %q requirement must be positive", t.ID))
		}
	}

	if len(def.DailyRewards) != domain.DailyRewardSlots {
		errs = append(errs, fmt.Errorf("daily reward schedule must have %d slots, got %d", domain.DailyRewardSlots, len(def.DailyRewards)))
	}
	for i, xp := range def.DailyRewards {
		if xp <= 0 {
			errs = append(errs, fmt.Errorf("daily reward slot %d must be positive", i))
		}
	}

	return errors.Join(errs...)
}
