package progression

import (
	"time"

	"github.com/habitquest/platform/internal/domain"
)

// settle evaluates achievements and trophies until a full pass unlocks nothing.
// Unlocks are one-way, so the loop ends after at most one pass per catalog entry.
func (e *Engine) settle(p *pass) {
	for {
		before := p.unlocks
		e.checkAchievements(p)
		e.checkTrophies(p)
		if p.unlocks == before {
			return
		}
	}
}

// settleTrophies re-checks trophies after XP granted outside the habit rules.
// Level achievements are handled by addXP, so only trophy bonuses can cascade.
func (e *Engine) settleTrophies(p *pass) {
	for {
		before := p.unlocks
		e.checkTrophies(p)
		if p.unlocks == before {
			return
		}
	}
}

// checkAchievements refreshes progress on every locked achievement and unlocks
// those whose rule is met.
func (e *Engine) checkAchievements(p *pass) {
	for i := range e.achievements {
		e.checkAchievement(p, i)
	}
}

// checkLevelAchievements evaluates only level-gated achievements. It runs on
// every level change, including those caused by daily rewards and logins.
func (e *Engine) checkLevelAchievements(p *pass) {
	for i := range e.achievements {
		if e.achievements[i].Rule == domain.RuleLevel {
			e.checkAchievement(p, i)
		}
	}
}

func (e *Engine) checkAchievement(p *pass, i int) {
	a := &e.achievements[i]
	if a.IsUnlocked {
		return
	}
	progress, met := e.evaluate(*a, p.at)
	a.Progress = progress
	if met {
		e.unlockAchievement(p, i)
	}
}

// evaluate returns the rule's current progress value and whether it is met.
func (e *Engine) evaluate(a domain.Achievement, now time.Time) (int, bool) {
	pr := &e.profile
	switch a.Rule {
	case domain.RuleStreak:
		return pr.MaxStreak, pr.MaxStreak >= a.Requirement
	case domain.RuleCompletions:
		return pr.TotalCompletions, pr.TotalCompletions >= a.Requirement
	case domain.RuleFirstPhoto:
		return pr.PhotosAdded, pr.PhotosAdded >= 1
	case domain.RuleFirst3DModel:
		return pr.Models3DCreated, pr.Models3DCreated >= 1
	case domain.RuleFirstAIHabit:
		return pr.AIHabitsCreated, pr.AIHabitsCreated >= 1
	case domain.RuleAllCategories:
		return len(pr.CategoriesUsed), len(pr.CategoriesUsed) >= a.Requirement
	case domain.RuleFirstCompletion:
		return min(pr.TotalCompletions, 1), pr.TotalCompletions >= 1
	case domain.RuleNewYear:
		_, m, d := now.In(e.loc).Date()
		if m == time.January && d == 1 && pr.TotalCompletions >= 1 {
			return 1, true
		}
		return 0, false
	case domain.RuleLevel:
		return pr.CurrentLevel, pr.CurrentLevel >= a.Requirement
	default:
		// RuleComeback and RuleExternal are unlocked from outside the evaluator.
		return a.Progress, false
	}
}

// unlockAchievement marks achievement i unlocked and grants its XP reward.
// The flag is set before the grant so a nested level-up check skips it.
func (e *Engine) unlockAchievement(p *pass, i int) {
	a := &e.achievements[i]
	at := p.at
	a.IsUnlocked = true
	a.UnlockedDate = &at
	a.Progress = max(a.Progress, a.Requirement)
	e.profile.AppendAchievement(a.ID)
	p.unlocks++

	unlocked := *a
	p.events = append(p.events, domain.NewAchievementUnlockedEvent(e.userID, unlocked, at))
	if !p.achievementNoticed {
		p.achievementNoticed = true
		e.raise(p, domain.Notification{Kind: domain.NotifyAchievement, Achievement: &unlocked, RaisedAt: at})
	}
	e.logger.Info("achievement unlocked", "achievement_id", a.ID, "xp_reward", a.XPReward)

	e.addXP(p, a.XPReward, "achievement: "+a.Title, true)
}

// unlockByID force-unlocks a locked achievement regardless of its rule.
func (e *Engine) unlockByID(p *pass, id string) bool {
	for i := range e.achievements {
		if e.achievements[i].ID != id {
			continue
		}
		if e.achievements[i].IsUnlocked {
			return false
		}
		e.unlockAchievement(p, i)
		return true
	}
	return false
}

// checkTrophies unlocks every locked trophy whose requirement is met and grants
// the tier bonus.
func (e *Engine) checkTrophies(p *pass) {
	for i := range e.trophies {
		t := &e.trophies[i]
		if t.IsUnlocked || e.requirementValue(t.Requirement.Kind) < t.Requirement.Value {
			continue
		}

		at := p.at
		t.IsUnlocked = true
		t.UnlockedDate = &at
		e.profile.AppendTrophy(t.ID)
		p.unlocks++

		bonus := e.catalog.TierBonus(t.Tier)
		unlocked := *t
		p.events = append(p.events, domain.NewTrophyUnlockedEvent(e.userID, unlocked, bonus, at))
		if !p.trophyNoticed {
			p.trophyNoticed = true
			e.raise(p, domain.Notification{Kind: domain.NotifyTrophy, Trophy: &unlocked, RaisedAt: at})
		}
		e.logger.Info("trophy unlocked", "trophy_id", t.ID, "tier", t.Tier, "xp_bonus", bonus)

		e.addXP(p, bonus, "trophy: "+t.Title, true)
	}
}

func (e *Engine) requirementValue(kind domain.RequirementKind) int {
	pr := &e.profile
	switch kind {
	case domain.RequireTotalCompletions:
		return pr.TotalCompletions
	case domain.RequireMaxStreak:
		return pr.MaxStreak
	case domain.RequireMonthlyPerfect:
		return pr.PerfectMonths
	case domain.RequireTotalXP:
		return pr.TotalXP
	case domain.RequireLevel:
		return pr.CurrentLevel
	case domain.RequireAchievements:
		return len(pr.UnlockedAchievementIDs)
	default:
		return 0
	}
}
