package domain

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Level is one row of the level table: the minimum cumulative XP needed to hold it.
type Level struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	MinXP int    `json:"min_xp"`
}

// Profile is the mutable progress record of a single user.
// CategoriesUsed is kept sorted; the unlocked id lists are in unlock order.
type Profile struct {
	TotalXP                int        `json:"total_xp"`
	CurrentLevel           int        `json:"current_level"`
	TotalCompletions       int        `json:"total_completions"`
	MaxStreak              int        `json:"max_streak"`
	CurrentStreak          int        `json:"current_streak"`
	PhotosAdded            int        `json:"photos_added"`
	Models3DCreated        int        `json:"models_3d_created"`
	AIHabitsCreated        int        `json:"ai_habits_created"`
	CategoriesUsed         []string   `json:"categories_used"`
	UnlockedAchievementIDs []string   `json:"unlocked_achievement_ids"`
	UnlockedTrophyIDs      []string   `json:"unlocked_trophy_ids"`
	DailyLoginStreak       int        `json:"daily_login_streak"`
	LastLoginDate          *time.Time `json:"last_login_date,omitempty"`
	PerfectMonths          int        `json:"perfect_months"`
}

// NewProfile returns the zero-state profile created on first run.
func NewProfile() Profile {
	return Profile{
		CurrentLevel:           1,
		CategoriesUsed:         []string{},
		UnlockedAchievementIDs: []string{},
		UnlockedTrophyIDs:      []string{},
	}
}

// AddCategory records a category as used. Returns false if it was already present.
func (p *Profile) AddCategory(category string) bool {
	i, found := slices.BinarySearch(p.CategoriesUsed, category)
	if found {
		return false
	}
	p.CategoriesUsed = slices.Insert(p.CategoriesUsed, i, category)
	return true
}

// HasAchievement reports whether the achievement id is in the unlocked list.
func (p *Profile) HasAchievement(id string) bool {
	return slices.Contains(p.UnlockedAchievementIDs, id)
}

// HasTrophy reports whether the trophy id is in the unlocked list.
func (p *Profile) HasTrophy(id string) bool {
	return slices.Contains(p.UnlockedTrophyIDs, id)
}

// AppendAchievement appends id to the unlocked list unless already present.
func (p *Profile) AppendAchievement(id string) bool {
	if p.HasAchievement(id) {
		return false
	}
	p.UnlockedAchievementIDs = append(p.UnlockedAchievementIDs, id)
	return true
}

// AppendTrophy appends id to the unlocked list unless already present.
func (p *Profile) AppendTrophy(id string) bool {
	if p.HasTrophy(id) {
		return false
	}
	p.UnlockedTrophyIDs = append(p.UnlockedTrophyIDs, id)
	return true
}

// Clone returns a deep copy safe to hand out of the engine.
func (p Profile) Clone() Profile {
	cp := p
	cp.CategoriesUsed = slices.Clone(p.CategoriesUsed)
	cp.UnlockedAchievementIDs = slices.Clone(p.UnlockedAchievementIDs)
	cp.UnlockedTrophyIDs = slices.Clone(p.UnlockedTrophyIDs)
	if p.LastLoginDate != nil {
		d := *p.LastLoginDate
		cp.LastLoginDate = &d
	}
	return cp
}

// XPEvent is one entry of the bounded XP log.
type XPEvent struct {
	Amount    int       `json:"amount"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
	IsBonus   bool      `json:"is_bonus"`
}

// XP grant reasons.
const (
	ReasonCompletion  = "completion"
	ReasonStreakBonus = "streak bonus"
	ReasonDailyReward = "daily reward"
)

// ProfileSnapshot is the read-only projection handed to display consumers.
type ProfileSnapshot struct {
	UserID               uuid.UUID  `json:"user_id"`
	TotalXP              int        `json:"total_xp"`
	Level                Level      `json:"level"`
	NextLevel            *Level     `json:"next_level,omitempty"`
	LevelProgress        float64    `json:"level_progress"`
	XPToNextLevel        int        `json:"xp_to_next_level"`
	TotalCompletions     int        `json:"total_completions"`
	CurrentStreak        int        `json:"current_streak"`
	MaxStreak            int        `json:"max_streak"`
	PhotosAdded          int        `json:"photos_added"`
	Models3DCreated      int        `json:"models_3d_created"`
	AIHabitsCreated      int        `json:"ai_habits_created"`
	CategoriesUsed       []string   `json:"categories_used"`
	AchievementsUnlocked int        `json:"achievements_unlocked"`
	AchievementsTotal    int        `json:"achievements_total"`
	TrophiesUnlocked     int        `json:"trophies_unlocked"`
	TrophiesTotal        int        `json:"trophies_total"`
	DailyLoginStreak     int        `json:"daily_login_streak"`
	LastLoginDate        *time.Time `json:"last_login_date,omitempty"`
	PerfectMonths        int        `json:"perfect_months"`
	RecentXP             []XPEvent  `json:"recent_xp"`
}

// ProgressRecords is the persisted layout: four independently encoded records.
// A nil record means it was never stored. Version is the store's write counter
// as loaded; a save must present it unchanged to succeed.
type ProgressRecords struct {
	Version      int64           `json:"version"`
	Profile      json.RawMessage `json:"profile,omitempty"`
	Achievements json.RawMessage `json:"achievements,omitempty"`
	Trophies     json.RawMessage `json:"trophies,omitempty"`
	DailyRewards json.RawMessage `json:"daily_rewards,omitempty"`
}

// Empty reports whether no record is present.
func (r ProgressRecords) Empty() bool {
	return r.Profile == nil && r.Achievements == nil && r.Trophies == nil && r.DailyRewards == nil
}
