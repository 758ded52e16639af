package domain

import "time"

// AchievementCategory groups achievements for display.
type AchievementCategory string

const (
	AchievementStreaks     AchievementCategory = "streaks"
	AchievementCompletions AchievementCategory = "completions"
	AchievementCreation    AchievementCategory = "creation"
	AchievementExploration AchievementCategory = "exploration"
	AchievementMilestones  AchievementCategory = "milestones"
)

// AchievementCategories lists every display category.
var AchievementCategories = []AchievementCategory{
	AchievementStreaks, AchievementCompletions, AchievementCreation, AchievementExploration, AchievementMilestones,
}

// RuleKind selects how an achievement's progress and unlock condition are computed.
type RuleKind string

const (
	RuleStreak          RuleKind = "streak"           // maxStreak >= requirement
	RuleCompletions     RuleKind = "completions"      // totalCompletions >= requirement
	RuleFirstPhoto      RuleKind = "first_photo"      // photosAdded >= 1
	RuleFirst3DModel    RuleKind = "first_3d_model"   // models3DCreated >= 1
	RuleFirstAIHabit    RuleKind = "first_ai_habit"   // aiHabitsCreated >= 1
	RuleAllCategories   RuleKind = "all_categories"   // len(categoriesUsed) >= requirement
	RuleFirstCompletion RuleKind = "first_completion" // totalCompletions >= 1
	RuleNewYear         RuleKind = "new_year"         // Jan 1 and totalCompletions >= 1
	RuleLevel           RuleKind = "level"            // currentLevel >= requirement
	RuleComeback        RuleKind = "comeback"         // unlocked only by login-streak continuity
	RuleExternal        RuleKind = "external"         // decided by an outside collaborator
)

// RuleKinds lists every rule kind the evaluator understands.
var RuleKinds = []RuleKind{
	RuleStreak, RuleCompletions, RuleFirstPhoto, RuleFirst3DModel, RuleFirstAIHabit,
	RuleAllCategories, RuleFirstCompletion, RuleNewYear, RuleLevel, RuleComeback, RuleExternal,
}

// Achievement is a one-time unlockable milestone plus its unlock state.
type Achievement struct {
	ID           string              `json:"id"`
	Title        string              `json:"title"`
	Description  string              `json:"description"`
	Category     AchievementCategory `json:"category"`
	Rule         RuleKind            `json:"rule"`
	Requirement  int                 `json:"requirement"`
	XPReward     int                 `json:"xp_reward"`
	Progress     int                 `json:"progress"`
	IsUnlocked   bool                `json:"is_unlocked"`
	UnlockedDate *time.Time          `json:"unlocked_date,omitempty"`
}

// ProgressFraction returns progress toward the requirement, clamped to [0,1].
func (a Achievement) ProgressFraction() float64 {
	if a.IsUnlocked {
		return 1
	}
	if a.Requirement <= 0 || a.Progress <= 0 {
		return 0
	}
	f := float64(a.Progress) / float64(a.Requirement)
	if f > 1 {
		return 1
	}
	return f
}
