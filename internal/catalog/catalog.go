// Package catalog holds the static rule set of the gamification engine:
// level thresholds, achievement and trophy definitions, trophy tier bonuses
// and the weekly daily-reward schedule.
package catalog

import (
	"fmt"
	"slices"

	"github.com/habitquest/platform/internal/domain"
)

// Definition is the raw input a Catalog is built from.
type Definition struct {
	Levels          []domain.Level
	Achievements    []domain.Achievement
	Trophies        []domain.Trophy
	TierBonus       map[domain.TrophyTier]int
	DailyRewards    []int
	HabitCategories []string
}

// Catalog is an immutable, validated rule set. All accessors return copies.
type Catalog struct {
	def          Definition
	achievements map[string]int
	trophies     map[string]int
}

// New validates def and builds a Catalog from it.
func New(def Definition) (*Catalog, error) {
	if err := Validate(def); err != nil {
		return nil, err
	}
	c := &Catalog{
		def: Definition{
			Levels:          slices.Clone(def.Levels),
			Achievements:    slices.Clone(def.Achievements),
			Trophies:        slices.Clone(def.Trophies),
			TierBonus:       make(map[domain.TrophyTier]int, len(def.TierBonus)),
			DailyRewards:    slices.Clone(def.DailyRewards),
			HabitCategories: slices.Clone(def.HabitCategories),
		},
		achievements: make(map[string]int, len(def.Achievements)),
		trophies:     make(map[string]int, len(def.Trophies)),
	}
	for tier, bonus := range def.TierBonus {
		c.def.TierBonus[tier] = bonus
	}
	for i, a := range c.def.Achievements {
		c.achievements[a.ID] = i
	}
	for i, t := range c.def.Trophies {
		c.trophies[t.ID] = i
	}
	return c, nil
}

// MustNew is New that panics on an invalid definition.
func MustNew(def Definition) *Catalog {
	c, err := New(def)
	if err != nil {
		panic(fmt.Sprintf("catalog: %v", err))
	}
	return c
}

// Default returns the built-in catalog.
func Default() *Catalog {
	return MustNew(DefaultDefinition())
}

// DefaultDefinition returns a fresh copy of the built-in rule set.
func DefaultDefinition() Definition {
	return Definition{
		Levels:          defaultLevels(),
		Achievements:    defaultAchievements(),
		Trophies:        defaultTrophies(),
		TierBonus:       defaultTierBonus(),
		DailyRewards:    defaultDailyRewards(),
		HabitCategories: defaultHabitCategories(),
	}
}

// LevelFor returns the greatest level whose MinXP <= totalXP.
func (c *Catalog) LevelFor(totalXP int) domain.Level {
	levels := c.def.Levels
	i, _ := slices.BinarySearchFunc(levels, totalXP, func(l domain.Level, xp int) int {
		if l.MinXP <= xp {
			return -1
		}
		return 1
	})
	if i == 0 {
		return levels[0]
	}
	return levels[i-1]
}

// NextLevelAfter returns the level following l, or false at the top of the table.
func (c *Catalog) NextLevelAfter(l domain.Level) (domain.Level, bool) {
	for i, lvl := range c.def.Levels {
		if lvl.ID == l.ID && i+1 < len(c.def.Levels) {
			return c.def.Levels[i+1], true
		}
	}
	return domain.Level{}, false
}

// Level returns the level with the given id.
func (c *Catalog) Level(id int) (domain.Level, bool) {
	for _, l := range c.def.Levels {
		if l.ID == id {
			return l, true
		}
	}
	return domain.Level{}, false
}

// Levels returns the level table in ascending order.
func (c *Catalog) Levels() []domain.Level {
	return slices.Clone(c.def.Levels)
}

// Achievements returns every achievement definition in its locked default state.
func (c *Catalog) Achievements() []domain.Achievement {
	return slices.Clone(c.def.Achievements)
}

// Achievement returns the locked definition for id.
func (c *Catalog) Achievement(id string) (domain.Achievement, bool) {
	i, ok := c.achievements[id]
	if !ok {
		return domain.Achievement{}, false
	}
	return c.def.Achievements[i], true
}

// Trophies returns every trophy definition in its locked default state.
func (c *Catalog) Trophies() []domain.Trophy {
	return slices.Clone(c.def.Trophies)
}

// Trophy returns the locked definition for id.
func (c *Catalog) Trophy(id string) (domain.Trophy, bool) {
	i, ok := c.trophies[id]
	if !ok {
		return domain.Trophy{}, false
	}
	return c.def.Trophies[i], true
}

// TierBonus returns the XP granted when a trophy of the given tier unlocks.
func (c *Catalog) TierBonus(tier domain.TrophyTier) int {
	return c.def.TierBonus[tier]
}

// DailyRewards returns the unclaimed 7-slot weekly schedule.
func (c *Catalog) DailyRewards() []domain.DailyReward {
	out := make([]domain.DailyReward, len(c.def.DailyRewards))
	for i, xp := range c.def.DailyRewards {
		out[i] = domain.DailyReward{Day: i + 1, XPReward: xp}
	}
	return out
}

// HabitCategories returns the known habit category identifiers.
func (c *Catalog) HabitCategories() []string {
	return slices.Clone(c.def.HabitCategories)
}
