package progression

import (
	"slices"

	"github.com/habitquest/platform/internal/domain"
)

// Profile returns a copy of the current profile.
func (e *Engine) Profile() domain.Profile {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.profile.Clone()
}

// Snapshot builds the display projection of the current state.
func (e *Engine) Snapshot() domain.ProfileSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	pr := e.profile
	lvl := e.catalog.LevelFor(pr.TotalXP)
	snap := domain.ProfileSnapshot{
		UserID:               e.userID,
		TotalXP:              pr.TotalXP,
		Level:                lvl,
		LevelProgress:        1,
		TotalCompletions:     pr.TotalCompletions,
		CurrentStreak:        pr.CurrentStreak,
		MaxStreak:            pr.MaxStreak,
		PhotosAdded:          pr.PhotosAdded,
		Models3DCreated:      pr.Models3DCreated,
		AIHabitsCreated:      pr.AIHabitsCreated,
		CategoriesUsed:       slices.Clone(pr.CategoriesUsed),
		AchievementsUnlocked: countUnlockedAchievements(e.achievements),
		AchievementsTotal:    len(e.achievements),
		TrophiesUnlocked:     countUnlockedTrophies(e.trophies),
		TrophiesTotal:        len(e.trophies),
		DailyLoginStreak:     pr.DailyLoginStreak,
		PerfectMonths:        pr.PerfectMonths,
		RecentXP:             slices.Clone(e.xpLog),
	}
	if pr.LastLoginDate != nil {
		d := *pr.LastLoginDate
		snap.LastLoginDate = &d
	}
	if next, ok := e.catalog.NextLevelAfter(lvl); ok {
		snap.NextLevel = &next
		snap.XPToNextLevel = next.MinXP - pr.TotalXP
		snap.LevelProgress = float64(pr.TotalXP-lvl.MinXP) / float64(next.MinXP-lvl.MinXP)
	}
	if snap.RecentXP == nil {
		snap.RecentXP = []domain.XPEvent{}
	}
	return snap
}

// XPLog returns the recent XP grants, newest first.
func (e *Engine) XPLog() []domain.XPEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.xpLog)
}

// Achievements returns every achievement in catalog order.
func (e *Engine) Achievements() []domain.Achievement {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.achievements)
}

// AchievementsByCategory returns the achievements of one display category.
func (e *Engine) AchievementsByCategory(category domain.AchievementCategory) []domain.Achievement {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := []domain.Achievement{}
	for _, a := range e.achievements {
		if a.Category == category {
			out = append(out, a)
		}
	}
	return out
}

// AchievementProgress returns progress toward the achievement in [0,1].
// Unlocked achievements report 1 and unknown ids report 0.
func (e *Engine) AchievementProgress(id string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, a := range e.achievements {
		if a.ID == id {
			return a.ProgressFraction()
		}
	}
	return 0
}

// Achievement looks up a single achievement by id.
func (e *Engine) Achievement(id string) (domain.Achievement, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, a := range e.achievements {
		if a.ID == id {
			return a, true
		}
	}
	return domain.Achievement{}, false
}

// AchievementStats returns the unlocked and total achievement counts.
func (e *Engine) AchievementStats() (unlocked, total int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return countUnlockedAchievements(e.achievements), len(e.achievements)
}

// Trophies returns every trophy in catalog order.
func (e *Engine) Trophies() []domain.Trophy {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.trophies)
}

// TrophiesByTier returns the trophies of one tier.
func (e *Engine) TrophiesByTier(tier domain.TrophyTier) []domain.Trophy {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := []domain.Trophy{}
	for _, t := range e.trophies {
		if t.Tier == tier {
			out = append(out, t)
		}
	}
	return out
}

// TrophyStats returns the unlocked and total trophy counts.
func (e *Engine) TrophyStats() (unlocked, total int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return countUnlockedTrophies(e.trophies), len(e.trophies)
}

// DailyRewards returns the seven reward slots.
func (e *Engine) DailyRewards() []domain.DailyReward {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.rewards)
}

// Notifications returns the uncleared notifications.
func (e *Engine) Notifications() domain.PendingNotifications {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending
}

// ClearNotifications clears the given kinds, or all of them when none are given.
func (e *Engine) ClearNotifications(kinds ...domain.NotificationKind) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(kinds) == 0 {
		e.pending = domain.PendingNotifications{}
		return
	}
	for _, k := range kinds {
		switch k {
		case domain.NotifyLevelUp:
			e.pending.LevelUp = nil
		case domain.NotifyAchievement:
			e.pending.Achievement = nil
		case domain.NotifyTrophy:
			e.pending.Trophy = nil
		}
	}
}

func countUnlockedAchievements(list []domain.Achievement) int {
	n := 0
	for _, a := range list {
		if a.IsUnlocked {
			n++
		}
	}
	return n
}

func countUnlockedTrophies(list []domain.Trophy) int {
	n := 0
	for _, t := range list {
		if t.IsUnlocked {
			n++
		}
	}
	return n
}
