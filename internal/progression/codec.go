package progression

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/habitquest/platform/internal/catalog"
	"github.com/habitquest/platform/internal/domain"
)

// Record names used in logs and store keys.
const (
	RecordProfile      = "profile"
	RecordAchievements = "achievements"
	RecordTrophies     = "trophies"
	RecordDailyRewards = "daily_rewards"
)

type state struct {
	profile      domain.Profile
	achievements []domain.Achievement
	trophies     []domain.Trophy
	rewards      []domain.DailyReward
}

// decodeRecords rebuilds engine state from the four stored records. Each record
// falls back to catalog defaults on its own; the names of the records that did
// are returned.
func decodeRecords(cat *catalog.Catalog, r domain.ProgressRecords) (state, []string) {
	var discarded []string

	profile, ok := decodeProfile(r.Profile)
	if !ok {
		discarded = append(discarded, RecordProfile)
	}
	achievements, ok := decodeAchievements(cat, r.Achievements)
	if !ok {
		discarded = append(discarded, RecordAchievements)
	}
	trophies, ok := decodeTrophies(cat, r.Trophies)
	if !ok {
		discarded = append(discarded, RecordTrophies)
	}
	rewards, ok := decodeDailyRewards(cat, r.DailyRewards)
	if !ok {
		discarded = append(discarded, RecordDailyRewards)
	}

	reconcile(&profile, achievements, trophies)
	profile.CurrentLevel = cat.LevelFor(profile.TotalXP).ID

	return state{
		profile:      profile,
		achievements: achievements,
		trophies:     trophies,
		rewards:      rewards,
	}, discarded
}

func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func decodeProfile(raw json.RawMessage) (domain.Profile, bool) {
	p := domain.NewProfile()
	if isAbsent(raw) {
		return p, false
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.NewProfile(), false
	}

	p.TotalXP = max(p.TotalXP, 0)
	p.TotalCompletions = max(p.TotalCompletions, 0)
	p.MaxStreak = max(p.MaxStreak, p.CurrentStreak, 0)
	p.CurrentStreak = max(p.CurrentStreak, 0)
	p.PhotosAdded = max(p.PhotosAdded, 0)
	p.Models3DCreated = max(p.Models3DCreated, 0)
	p.AIHabitsCreated = max(p.AIHabitsCreated, 0)
	p.DailyLoginStreak = max(p.DailyLoginStreak, 0)
	p.PerfectMonths = max(p.PerfectMonths, 0)

	categories := p.CategoriesUsed
	p.CategoriesUsed = []string{}
	for _, c := range categories {
		if c != "" {
			p.AddCategory(c)
		}
	}
	p.UnlockedAchievementIDs = dedupe(p.UnlockedAchievementIDs)
	p.UnlockedTrophyIDs = dedupe(p.UnlockedTrophyIDs)
	return p, true
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

// decodeAchievements overlays stored unlock state onto the catalog list by id.
// Stored entries unknown to the catalog are dropped.
func decodeAchievements(cat *catalog.Catalog, raw json.RawMessage) ([]domain.Achievement, bool) {
	list := cat.Achievements()
	if isAbsent(raw) {
		return list, false
	}
	var stored []domain.Achievement
	if err := json.Unmarshal(raw, &stored); err != nil {
		return list, false
	}

	byID := make(map[string]domain.Achievement, len(stored))
	for _, a := range stored {
		byID[a.ID] = a
	}
	for i := range list {
		s, ok := byID[list[i].ID]
		if !ok {
			continue
		}
		list[i].Progress = max(s.Progress, 0)
		list[i].IsUnlocked = s.IsUnlocked
		list[i].UnlockedDate = s.UnlockedDate
	}
	return list, true
}

// decodeTrophies overlays stored unlock state onto the catalog list by id.
func decodeTrophies(cat *catalog.Catalog, raw json.RawMessage) ([]domain.Trophy, bool) {
	list := cat.Trophies()
	if isAbsent(raw) {
		return list, false
	}
	var stored []domain.Trophy
	if err := json.Unmarshal(raw, &stored); err != nil {
		return list, false
	}

	byID := make(map[string]domain.Trophy, len(stored))
	for _, t := range stored {
		byID[t.ID] = t
	}
	for i := range list {
		s, ok := byID[list[i].ID]
		if !ok {
			continue
		}
		list[i].IsUnlocked = s.IsUnlocked
		list[i].UnlockedDate = s.UnlockedDate
	}
	return list, true
}

// decodeDailyRewards accepts the stored schedule only if it has exactly seven
// slots with positive XP.
func decodeDailyRewards(cat *catalog.Catalog, raw json.RawMessage) ([]domain.DailyReward, bool) {
	if isAbsent(raw) {
		return cat.DailyRewards(), false
	}
	var stored []domain.DailyReward
	if err := json.Unmarshal(raw, &stored); err != nil {
		return cat.DailyRewards(), false
	}
	if err := domain.ValidateDailyRewards(stored); err != nil {
		return cat.DailyRewards(), false
	}
	for i := range stored {
		stored[i].Day = i + 1
		if stored[i].ClaimedDate == nil {
			stored[i].IsClaimed = false
		}
	}
	return stored, true
}

// reconcile makes the unlock flags on the lists agree with the profile's
// unlocked-id lists. Unlocks are one-way, so the union wins. No XP is granted.
func reconcile(p *domain.Profile, achievements []domain.Achievement, trophies []domain.Trophy) {
	for i := range achievements {
		a := &achievements[i]
		switch {
		case a.IsUnlocked:
			p.AppendAchievement(a.ID)
		case p.HasAchievement(a.ID):
			a.IsUnlocked = true
			a.Progress = max(a.Progress, a.Requirement)
		}
	}
	for i := range trophies {
		t := &trophies[i]
		switch {
		case t.IsUnlocked:
			p.AppendTrophy(t.ID)
		case p.HasTrophy(t.ID):
			t.IsUnlocked = true
		}
	}
}

func encodeRecords(s state) (domain.ProgressRecords, error) {
	var (
		r   domain.ProgressRecords
		err error
	)
	if r.Profile, err = json.Marshal(s.profile); err != nil {
		return r, fmt.Errorf("encode %s: %w", RecordProfile, err)
	}
	if r.Achievements, err = json.Marshal(s.achievements); err != nil {
		return r, fmt.Errorf("encode %s: %w", RecordAchievements, err)
	}
	if r.Trophies, err = json.Marshal(s.trophies); err != nil {
		return r, fmt.Errorf("encode %s: %w", RecordTrophies, err)
	}
	if r.DailyRewards, err = json.Marshal(s.rewards); err != nil {
		return r, fmt.Errorf("encode %s: %w", RecordDailyRewards, err)
	}
	return r, nil
}
