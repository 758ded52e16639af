package catalog

import "github.com/habitquest/platform/internal/domain"

func defaultLevels() []domain.Level {
	return []domain.Level{
		{ID: 1, Name: "Beginner", MinXP: 0},
		{ID: 2, Name: "Novice", MinXP: 50},
		{ID: 3, Name: "Apprentice", MinXP: 150},
		{ID: 4, Name: "Habit Builder", MinXP: 300},
		{ID: 5, Name: "Dedicated", MinXP: 500},
		{ID: 6, Name: "Committed", MinXP: 800},
		{ID: 7, Name: "Disciplined", MinXP: 1200},
		{ID: 8, Name: "Expert", MinXP: 1700},
		{ID: 9, Name: "Master", MinXP: 2300},
		{ID: 10, Name: "Grandmaster", MinXP: 3000},
		{ID: 11, Name: "Legend", MinXP: 4000},
		{ID: 12, Name: "Habit Hero", MinXP: 5500},
	}
}

func achievement(id, title, desc string, cat domain.AchievementCategory, rule domain.RuleKind, req, xp int) domain.Achievement {
	return domain.Achievement{
		ID: id, Title: title, Description: desc,
		Category: cat, Rule: rule, Requirement: req, XPReward: xp,
	}
}

func defaultAchievements() []domain.Achievement {
	return []domain.Achievement{
		// ── Milestones ──
		achievement("first_habit", "First Step", "Complete your first habit",
			domain.AchievementMilestones, domain.RuleFirstCompletion, 1, 10),
		achievement("new_year", "Fresh Start", "Complete a habit on New Year's Day",
			domain.AchievementMilestones, domain.RuleNewYear, 1, 50),
		achievement("comeback", "Welcome Back", "Return after a week or more away",
			domain.AchievementMilestones, domain.RuleComeback, 1, 30),
		achievement("level_5", "Dedicated", "Reach level 5",
			domain.AchievementMilestones, domain.RuleLevel, 5, 50),
		achievement("level_10", "Grandmaster", "Reach level 10",
			domain.AchievementMilestones, domain.RuleLevel, 10, 100),

		// ── Streaks ──
		achievement("streak_3", "On a Roll", "Reach a 3-day streak",
			domain.AchievementStreaks, domain.RuleStreak, 3, 15),
		achievement("streak_7", "Week Warrior", "Reach a 7-day streak",
			domain.AchievementStreaks, domain.RuleStreak, 7, 30),
		achievement("streak_14", "Fortnight Focus", "Reach a 14-day streak",
			domain.AchievementStreaks, domain.RuleStreak, 14, 50),
		achievement("streak_30", "Monthly Momentum", "Reach a 30-day streak",
			domain.AchievementStreaks, domain.RuleStreak, 30, 100),
		achievement("streak_60", "Unstoppable", "Reach a 60-day streak",
			domain.AchievementStreaks, domain.RuleStreak, 60, 150),
		achievement("streak_100", "Centurion", "Reach a 100-day streak",
			domain.AchievementStreaks, domain.RuleStreak, 100, 250),

		// ── Completions ──
		achievement("completions_10", "Getting Started", "Complete 10 habits",
			domain.AchievementCompletions, domain.RuleCompletions, 10, 20),
		achievement("completions_50", "Consistent", "Complete 50 habits",
			domain.AchievementCompletions, domain.RuleCompletions, 50, 50),
		achievement("completions_100", "Century", "Complete 100 habits",
			domain.AchievementCompletions, domain.RuleCompletions, 100, 100),
		achievement("completions_250", "Habitual", "Complete 250 habits",
			domain.AchievementCompletions, domain.RuleCompletions, 250, 150),
		achievement("completions_500", "Relentless", "Complete 500 habits",
			domain.AchievementCompletions, domain.RuleCompletions, 500, 250),
		achievement("completions_1000", "Thousand Club", "Complete 1000 habits",
			domain.AchievementCompletions, domain.RuleCompletions, 1000, 500),

		// ── Creation ──
		achievement("first_photo", "Snapshot", "Add a photo to a habit",
			domain.AchievementCreation, domain.RuleFirstPhoto, 1, 15),
		achievement("first_3d_model", "Sculptor", "Capture your first 3D model",
			domain.AchievementCreation, domain.RuleFirst3DModel, 1, 25),
		achievement("first_ai_habit", "Smart Start", "Create a habit with AI",
			domain.AchievementCreation, domain.RuleFirstAIHabit, 1, 20),
		// Decided by the habit store, which owns habit creation counts.
		achievement("five_habits", "Habit Collector", "Create five habits",
			domain.AchievementCreation, domain.RuleExternal, 5, 25),

		// ── Exploration ──
		achievement("all_categories", "Well Rounded", "Complete a habit in every category",
			domain.AchievementExploration, domain.RuleAllCategories, 11, 75),
	}
}

func trophy(id, title, desc string, tier domain.TrophyTier, kind domain.RequirementKind, value int) domain.Trophy {
	return domain.Trophy{
		ID: id, Title: title, Description: desc, Tier: tier,
		Requirement: domain.TrophyRequirement{Kind: kind, Value: value},
	}
}

func defaultTrophies() []domain.Trophy {
	return []domain.Trophy{
		trophy("dedication_bronze", "Bronze Dedication", "Complete 25 habits",
			domain.TierBronze, domain.RequireTotalCompletions, 25),
		trophy("dedication_silver", "Silver Dedication", "Complete 100 habits",
			domain.TierSilver, domain.RequireTotalCompletions, 100),
		trophy("dedication_gold", "Gold Dedication", "Complete 365 habits",
			domain.TierGold, domain.RequireTotalCompletions, 365),
		trophy("dedication_platinum", "Platinum Dedication", "Complete 1000 habits",
			domain.TierPlatinum, domain.RequireTotalCompletions, 1000),

		trophy("streak_bronze", "Bronze Streak", "Reach a 7-day streak",
			domain.TierBronze, domain.RequireMaxStreak, 7),
		trophy("streak_silver", "Silver Streak", "Reach a 30-day streak",
			domain.TierSilver, domain.RequireMaxStreak, 30),
		trophy("streak_gold", "Gold Streak", "Reach a 100-day streak",
			domain.TierGold, domain.RequireMaxStreak, 100),
		trophy("streak_diamond", "Diamond Streak", "Reach a 365-day streak",
			domain.TierDiamond, domain.RequireMaxStreak, 365),

		trophy("perfect_month", "Perfect Month", "Finish a month without missing a day",
			domain.TierSilver, domain.RequireMonthlyPerfect, 1),
		trophy("perfect_quarter", "Perfect Quarter", "Finish three perfect months",
			domain.TierGold, domain.RequireMonthlyPerfect, 3),
		trophy("perfect_year", "Perfect Year", "Finish twelve perfect months",
			domain.TierDiamond, domain.RequireMonthlyPerfect, 12),

		trophy("xp_1000", "XP Collector", "Earn 1,000 XP",
			domain.TierBronze, domain.RequireTotalXP, 1000),
		trophy("xp_10000", "XP Hoarder", "Earn 10,000 XP",
			domain.TierPlatinum, domain.RequireTotalXP, 10000),

		trophy("rising_star", "Rising Star", "Reach level 5",
			domain.TierSilver, domain.RequireLevel, 5),
		trophy("habit_hero", "Habit Hero", "Reach the top level",
			domain.TierDiamond, domain.RequireLevel, 12),

		trophy("collector", "Collector", "Unlock 5 achievements",
			domain.TierBronze, domain.RequireAchievements, 5),
		trophy("completionist", "Completionist", "Unlock 20 achievements",
			domain.TierPlatinum, domain.RequireAchievements, 20),
	}
}

func defaultTierBonus() map[domain.TrophyTier]int {
	return map[domain.TrophyTier]int{
		domain.TierBronze:   50,
		domain.TierSilver:   100,
		domain.TierGold:     250,
		domain.TierPlatinum: 500,
		domain.TierDiamond:  1000,
	}
}

func defaultDailyRewards() []int {
	return []int{10, 15, 20, 25, 30, 40, 60}
}

func defaultHabitCategories() []string {
	return []string{
		"fitness", "health", "mindfulness", "learning", "productivity", "social",
		"creativity", "finance", "nutrition", "sleep", "other",
	}
}
