package progression

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/habitquest/platform/internal/catalog"
	"github.com/habitquest/platform/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test Doubles ---

type memStore struct {
	mu       sync.Mutex
	records  map[uuid.UUID]domain.ProgressRecords
	events   []domain.OutboxDraft
	saves    int
	failSave error
	failLoad error
}

func newMemStore() *memStore {
	return &memStore{records: make(map[uuid.UUID]domain.ProgressRecords)}
}

func (s *memStore) Load(_ context.Context, userID uuid.UUID) (domain.ProgressRecords, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLoad != nil {
		return domain.ProgressRecords{}, s.failLoad
	}
	return s.records[userID], nil
}

func (s *memStore) Save(_ context.Context, userID uuid.UUID, r domain.ProgressRecords, events []domain.OutboxDraft) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave != nil {
		return 0, s.failSave
	}
	if cur := s.records[userID].Version; cur != r.Version {
		return 0, fmt.Errorf("%w: at %d, got %d", domain.ErrStaleVersion, cur, r.Version)
	}
	r.Version++
	s.records[userID] = r
	s.events = append(s.events, events...)
	s.saves++
	return r.Version, nil
}

func (s *memStore) eventTypes() []domain.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.EventType, len(s.events))
	for i, e := range s.events {
		out[i] = e.EventType
	}
	return out
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []domain.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, _ uuid.UUID, note domain.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advanceDays(n int) { c.t = c.t.AddDate(0, 0, n) }

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type fixture struct {
	engine   *Engine
	store    *memStore
	clock    *fakeClock
	notifier *recordingNotifier
	userID   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, newMemStore(), time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC), time.UTC)
}

func newFixtureWith(t *testing.T, store *memStore, start time.Time, loc *time.Location) *fixture {
	t.Helper()
	f := &fixture{
		store:    store,
		clock:    &fakeClock{t: start},
		notifier: &recordingNotifier{},
		userID:   uuid.New(),
	}
	e, err := Open(context.Background(), f.userID, catalog.Default(), store, Options{
		Clock:    f.clock.now,
		Location: loc,
		Notifier: f.notifier,
		Logger:   testLogger(),
	})
	require.NoError(t, err)
	f.engine = e
	return f
}

func unlockedIDs(list []domain.Achievement) []string {
	var ids []string
	for _, a := range list {
		if a.IsUnlocked {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

func trophyUnlocked(e *Engine, id string) bool {
	for _, t := range e.Trophies() {
		if t.ID == id {
			return t.IsUnlocked
		}
	}
	return false
}

// --- Habit Completion Tests ---

func TestRecordHabitCompletion_FirstCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.engine.RecordHabitCompletion(ctx, 1, "fitness"))

	p := f.engine.Profile()
	assert.Equal(t, 15, p.TotalXP)
	assert.Equal(t, 1, p.TotalCompletions)
	assert.Equal(t, 1, p.MaxStreak)
	assert.Equal(t, []string{"fitness"}, p.CategoriesUsed)
	assert.Equal(t, []string{"first_habit"}, p.UnlockedAchievementIDs)
	assert.Equal(t, 1, p.CurrentLevel)

	log := f.engine.XPLog()
	require.Len(t, log, 2)
	assert.Equal(t, 10, log[0].Amount)
	assert.True(t, log[0].IsBonus)
	assert.Equal(t, domain.XPEvent{Amount: 5, Reason: domain.ReasonCompletion, Timestamp: f.clock.t}, log[1])
}

func TestRecordHabitCompletion_StreakOfFive(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.engine.RecordHabitCompletion(context.Background(), 5, "health"))

	p := f.engine.Profile()
	assert.Equal(t, 40, p.TotalXP)
	assert.Equal(t, 1, p.CurrentLevel)
	assert.Equal(t, []string{"first_habit", "streak_3"}, unlockedIDs(f.engine.Achievements()))

	log := f.engine.XPLog()
	require.Len(t, log, 4)
	assert.Equal(t, 10, log[2].Amount)
	assert.Equal(t, domain.ReasonStreakBonus, log[2].Reason)

	unlocked, total := f.engine.TrophyStats()
	assert.Equal(t, 0, unlocked)
	assert.Equal(t, 17, total)
}

func TestRecordHabitCompletion_StreakBonusCapped(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.engine.RecordHabitCompletion(context.Background(), 15, ""))

	log := f.engine.XPLog()
	require.GreaterOrEqual(t, len(log), 2)
	oldest := log[len(log)-1]
	bonus := log[len(log)-2]
	assert.Equal(t, 5, oldest.Amount)
	assert.Equal(t, domain.ReasonStreakBonus, bonus.Reason)
	assert.Equal(t, 20, bonus.Amount)
	assert.Empty(t, f.engine.Profile().CategoriesUsed)
}

func TestRecordHabitCompletion_NoBonusAtStreakOne(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.RecordHabitCompletion(context.Background(), 1, ""))

	for _, ev := range f.engine.XPLog() {
		assert.NotEqual(t, domain.ReasonStreakBonus, ev.Reason)
	}
}

func TestRecordHabitCompletion_MaxStreakIsMonotonic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.engine.RecordHabitCompletion(ctx, 4, ""))
	require.NoError(t, f.engine.RecordHabitCompletion(ctx, 1, ""))

	p := f.engine.Profile()
	assert.Equal(t, 4, p.MaxStreak)
	assert.Equal(t, 1, p.CurrentStreak)
}

func TestRecordHabitCompletion_LevelUpNotification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.engine.RecordHabitCompletion(ctx, 5, ""))
	assert.Nil(t, f.engine.Notifications().LevelUp)

	// 40 + 5 + 12 crosses the 50 XP threshold.
	require.NoError(t, f.engine.RecordHabitCompletion(ctx, 6, ""))

	n := f.engine.Notifications().LevelUp
	require.NotNil(t, n)
	assert.Equal(t, domain.NotifyLevelUp, n.Kind)
	assert.Equal(t, 2, n.Level.ID)
	assert.Equal(t, "Novice", n.Level.Name)
	assert.Equal(t, 2, f.engine.Profile().CurrentLevel)
	assert.Contains(t, f.store.eventTypes(), domain.EventLevelUp)
}

func TestRecordHabitCompletion_CascadingUnlocks(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.engine.RecordHabitCompletion(context.Background(), 100, "fitness"))

	p := f.engine.Profile()
	assert.Equal(t, 1280, p.TotalXP)
	assert.Equal(t, 7, p.CurrentLevel)
	assert.Contains(t, p.UnlockedAchievementIDs, "level_5")
	assert.NotContains(t, p.UnlockedAchievementIDs, "level_10")
	for _, id := range []string{"streak_bronze", "streak_silver", "streak_gold", "xp_1000", "rising_star", "collector"} {
		assert.True(t, trophyUnlocked(f.engine, id), id)
	}
	assert.False(t, trophyUnlocked(f.engine, "streak_diamond"))

	pending := f.engine.Notifications()
	require.NotNil(t, pending.Achievement)
	require.NotNil(t, pending.Trophy)
	require.NotNil(t, pending.LevelUp)
	assert.Equal(t, "first_habit", pending.Achievement.Achievement.ID)
	assert.Equal(t, "streak_bronze", pending.Trophy.Trophy.ID)
	assert.Equal(t, 7, pending.LevelUp.Level.ID)
}

func TestRecordHabitCompletion_LevelMatchesXP(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cat := catalog.Default()

	for i := 1; i <= 40; i++ {
		require.NoError(t, f.engine.RecordHabitCompletion(ctx, i, "other"))
		p := f.engine.Profile()
		assert.Equal(t, cat.LevelFor(p.TotalXP).ID, p.CurrentLevel)
		assert.Len(t, p.UnlockedAchievementIDs, len(unlockedIDs(f.engine.Achievements())))
	}
}

func TestRecordHabitCompletion_AllCategories(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, c := range catalog.Default().HabitCategories() {
		require.NoError(t, f.engine.RecordHabitCompletion(ctx, 0, c))
	}
	a, ok := f.engine.Achievement("all_categories")
	require.True(t, ok)
	assert.True(t, a.IsUnlocked)
	assert.Equal(t, 11, a.Progress)
}

func TestRecordHabitCompletion_NewYearsDay(t *testing.T) {
	f := newFixtureWith(t, newMemStore(), time.Date(2027, 1, 1, 9, 0, 0, 0, time.UTC), time.UTC)

	require.NoError(t, f.engine.RecordHabitCompletion(context.Background(), 0, ""))

	a, ok := f.engine.Achievement("new_year")
	require.True(t, ok)
	assert.True(t, a.IsUnlocked)
}

func TestRecordHabitCompletion_NotNewYearsDay(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.RecordHabitCompletion(context.Background(), 0, ""))

	a, _ := f.engine.Achievement("new_year")
	assert.False(t, a.IsUnlocked)
}

func TestXPLog_Bounded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		require.NoError(t, f.engine.RecordHabitCompletion(ctx, 0, ""))
	}
	log := f.engine.XPLog()
	assert.Len(t, log, 50)
	assert.Len(t, f.engine.Snapshot().RecentXP, 50)
}

// --- Creation Tests ---

func TestCreationEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.engine.RecordPhotoAdded(ctx))
	require.NoError(t, f.engine.RecordModel3DCreated(ctx))
	require.NoError(t, f.engine.RecordAIHabitCreated(ctx))
	require.NoError(t, f.engine.RecordPhotoAdded(ctx))

	p := f.engine.Profile()
	assert.Equal(t, 2, p.PhotosAdded)
	assert.Equal(t, 1, p.Models3DCreated)
	assert.Equal(t, 1, p.AIHabitsCreated)
	assert.Equal(t, 60, p.TotalXP)
	assert.ElementsMatch(t, []string{"first_photo", "first_3d_model", "first_ai_habit"}, p.UnlockedAchievementIDs)
}

func TestExternalAchievementNeverUnlocksFromRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		require.NoError(t, f.engine.RecordAIHabitCreated(ctx))
		require.NoError(t, f.engine.RecordHabitCompletion(ctx, 0, ""))
	}
	a, _ := f.engine.Achievement("five_habits")
	assert.False(t, a.IsUnlocked)
}

// --- Login Tests ---

func TestRecordLogin(t *testing.T) {
	tests := []struct {
		name         string
		gapDays      int
		wantStreak   int
		wantComeback bool
	}{
		{"same day", 0, 3, false},
		{"next day", 1, 4, false},
		{"two days", 2, 1, false},
		{"six days", 6, 1, false},
		{"seven days", 7, 1, true},
		{"ten days", 10, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			for i := 0; i < 3; i++ {
				if i > 0 {
					f.clock.advanceDays(1)
				}
				require.NoError(t, f.engine.RecordLogin(ctx))
			}
			require.Equal(t, 3, f.engine.Profile().DailyLoginStreak)

			f.clock.advanceDays(tt.gapDays)
			require.NoError(t, f.engine.RecordLogin(ctx))

			p := f.engine.Profile()
			assert.Equal(t, tt.wantStreak, p.DailyLoginStreak)
			require.NotNil(t, p.LastLoginDate)
			assert.Equal(t, f.clock.t, *p.LastLoginDate)
			assert.Equal(t, tt.wantComeback, p.HasAchievement("comeback"))
			if tt.wantComeback {
				assert.Equal(t, 30, p.TotalXP)
			}
		})
	}
}

func TestRecordLogin_FirstEver(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.RecordLogin(context.Background()))

	p := f.engine.Profile()
	assert.Equal(t, 1, p.DailyLoginStreak)
	assert.False(t, p.HasAchievement("comeback"))
	assert.Equal(t, 1, f.store.saves)
}

func TestRecordLogin_ComebackOnlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.engine.RecordLogin(ctx))
	f.clock.advanceDays(10)
	require.NoError(t, f.engine.RecordLogin(ctx))
	f.clock.advanceDays(10)
	require.NoError(t, f.engine.RecordLogin(ctx))

	assert.Equal(t, 30, f.engine.Profile().TotalXP)
}

func TestRecordLogin_UsesConfiguredLocation(t *testing.T) {
	est := time.FixedZone("UTC-5", -5*3600)
	f := newFixtureWith(t, newMemStore(), time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC), est)
	ctx := context.Background()

	require.NoError(t, f.engine.RecordLogin(ctx))
	// 03:00 UTC on the 10th is still the 9th five hours west.
	f.clock.t = time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)
	require.NoError(t, f.engine.RecordLogin(ctx))
	assert.Equal(t, 1, f.engine.Profile().DailyLoginStreak)

	f.clock.t = time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)
	require.NoError(t, f.engine.RecordLogin(ctx))
	assert.Equal(t, 2, f.engine.Profile().DailyLoginStreak)
}

// --- Daily Reward Tests ---

func TestClaimDailyReward_FirstDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.RecordLogin(ctx))

	claim, err := f.engine.ClaimDailyReward(ctx)
	require.NoError(t, err)
	require.NotNil(t, claim)
	assert.Equal(t, 0, claim.SlotIndex)
	assert.Equal(t, 1, claim.Multiplier)
	assert.Equal(t, 10, claim.XPGranted)
	assert.Equal(t, 10, claim.Reward.XPReward)
	assert.True(t, claim.Reward.IsClaimed)
	assert.Equal(t, 10, f.engine.Profile().TotalXP)
	assert.Equal(t, domain.ReasonDailyReward, f.engine.XPLog()[0].Reason)
	assert.Contains(t, f.store.eventTypes(), domain.EventDailyRewardClaimed)
}

func TestClaimDailyReward_TwiceSameDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.RecordLogin(ctx))

	_, err := f.engine.ClaimDailyReward(ctx)
	require.NoError(t, err)
	saves := f.store.saves

	claim, err := f.engine.ClaimDailyReward(ctx)
	require.NoError(t, err)
	assert.Nil(t, claim)
	assert.Equal(t, 10, f.engine.Profile().TotalXP)
	assert.Equal(t, saves, f.store.saves)
}

func TestClaimDailyReward_NextDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.engine.RecordLogin(ctx))
	_, err := f.engine.ClaimDailyReward(ctx)
	require.NoError(t, err)

	f.clock.advanceDays(1)
	require.NoError(t, f.engine.RecordLogin(ctx))
	claim, err := f.engine.ClaimDailyReward(ctx)
	require.NoError(t, err)
	require.NotNil(t, claim)
	assert.Equal(t, 1, claim.SlotIndex)
	assert.Equal(t, 15, claim.XPGranted)
	assert.Equal(t, 25, f.engine.Profile().TotalXP)
}

func TestClaimDailyReward_Multiplier(t *testing.T) {
	tests := []struct {
		streak     int
		wantSlot   int
		wantMult   int
		wantGrant  int
		wantReward int
	}{
		{7, 6, 2, 120, 60},
		{8, 0, 2, 20, 10},
		{14, 6, 3, 180, 60},
	}

	for _, tt := range tests {
		f := newFixture(t)
		ctx := context.Background()
		for i := 0; i < tt.streak; i++ {
			if i > 0 {
				f.clock.advanceDays(1)
			}
			require.NoError(t, f.engine.RecordLogin(ctx))
		}
		require.Equal(t, tt.streak, f.engine.Profile().DailyLoginStreak)

		claim, err := f.engine.ClaimDailyReward(ctx)
		require.NoError(t, err)
		require.NotNil(t, claim)
		assert.Equal(t, tt.wantSlot, claim.SlotIndex, "streak=%d", tt.streak)
		assert.Equal(t, tt.wantMult, claim.Multiplier, "streak=%d", tt.streak)
		assert.Equal(t, tt.wantGrant, claim.XPGranted, "streak=%d", tt.streak)
		assert.Equal(t, tt.wantReward, claim.Reward.XPReward, "streak=%d", tt.streak)
		assert.Equal(t, tt.wantReward, f.engine.DailyRewards()[tt.wantSlot].XPReward)
	}
}

func TestClaimDailyReward_ZeroStreakUsesFirstSlot(t *testing.T) {
	f := newFixture(t)

	claim, err := f.engine.ClaimDailyReward(context.Background())
	require.NoError(t, err)
	require.NotNil(t, claim)
	assert.Equal(t, 0, claim.SlotIndex)
	assert.Equal(t, 1, claim.Multiplier)
}

// --- Perfect Months Tests ---

func TestSetPerfectMonths(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.engine.SetPerfectMonths(ctx, 1))
	assert.True(t, trophyUnlocked(f.engine, "perfect_month"))
	assert.Equal(t, 100, f.engine.Profile().TotalXP)

	n := f.engine.Notifications().Trophy
	require.NotNil(t, n)
	assert.Equal(t, "perfect_month", n.Trophy.ID)

	saves := f.store.saves
	require.NoError(t, f.engine.SetPerfectMonths(ctx, 0))
	assert.Equal(t, 1, f.engine.Profile().PerfectMonths)
	assert.Equal(t, saves, f.store.saves)

	require.NoError(t, f.engine.SetPerfectMonths(ctx, 3))
	assert.True(t, trophyUnlocked(f.engine, "perfect_quarter"))
	assert.Equal(t, 350, f.engine.Profile().TotalXP)
}

// --- Query Tests ---

func TestAchievementProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, f.engine.RecordHabitCompletion(ctx, 0, ""))
	}
	assert.InDelta(t, 0.5, f.engine.AchievementProgress("completions_10"), 1e-9)
	assert.InDelta(t, 0.1, f.engine.AchievementProgress("completions_50"), 1e-9)
	assert.Equal(t, 1.0, f.engine.AchievementProgress("first_habit"))
	assert.Equal(t, 0.0, f.engine.AchievementProgress("no_such_achievement"))
}

func TestAchievementsByCategory(t *testing.T) {
	f := newFixture(t)

	streaks := f.engine.AchievementsByCategory(domain.AchievementStreaks)
	assert.Len(t, streaks, 6)
	for _, a := range streaks {
		assert.Equal(t, domain.AchievementStreaks, a.Category)
	}
	assert.Empty(t, f.engine.AchievementsByCategory("unknown"))
}

func TestTrophiesByTier(t *testing.T) {
	f := newFixture(t)

	diamonds := f.engine.TrophiesByTier(domain.TierDiamond)
	require.Len(t, diamonds, 3)
	for _, tr := range diamonds {
		assert.Equal(t, domain.TierDiamond, tr.Tier)
	}
}

func TestSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snap := f.engine.Snapshot()
	assert.Equal(t, f.userID, snap.UserID)
	assert.Equal(t, 1, snap.Level.ID)
	require.NotNil(t, snap.NextLevel)
	assert.Equal(t, 50, snap.XPToNextLevel)
	assert.Equal(t, 0.0, snap.LevelProgress)
	assert.NotNil(t, snap.RecentXP)

	require.NoError(t, f.engine.RecordHabitCompletion(ctx, 5, ""))
	snap = f.engine.Snapshot()
	assert.Equal(t, 40, snap.TotalXP)
	assert.InDelta(t, 0.8, snap.LevelProgress, 1e-9)
	assert.Equal(t, 10, snap.XPToNextLevel)
	assert.Equal(t, 2, snap.AchievementsUnlocked)
	assert.Equal(t, 22, snap.AchievementsTotal)
}

func TestSnapshot_MaxLevel(t *testing.T) {
	store := newMemStore()
	userID := uuid.New()
	store.records[userID] = domain.ProgressRecords{Profile: json.RawMessage(`{"total_xp":9000}`)}

	e, err := Open(context.Background(), userID, catalog.Default(), store, Options{Logger: testLogger()})
	require.NoError(t, err)

	snap := e.Snapshot()
	assert.Equal(t, 12, snap.Level.ID)
	assert.Nil(t, snap.NextLevel)
	assert.Equal(t, 1.0, snap.LevelProgress)
	assert.Equal(t, 0, snap.XPToNextLevel)
}

func TestClearNotifications(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.RecordHabitCompletion(context.Background(), 100, ""))
	require.True(t, f.engine.Notifications().Any())

	f.engine.ClearNotifications(domain.NotifyTrophy)
	pending := f.engine.Notifications()
	assert.Nil(t, pending.Trophy)
	assert.NotNil(t, pending.Achievement)

	f.engine.ClearNotifications()
	assert.False(t, f.engine.Notifications().Any())
}

func TestNotifierReceivesOneAchievementPerPass(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.RecordHabitCompletion(context.Background(), 5, ""))

	var achievements int
	for _, n := range f.notifier.notes {
		if n.Kind == domain.NotifyAchievement {
			achievements++
		}
	}
	assert.Equal(t, 1, achievements)
	assert.Equal(t, []domain.EventType{
		domain.EventAchievementUnlocked, domain.EventAchievementUnlocked,
	}, f.store.eventTypes())
}

// --- Persistence Tests ---

func TestPersistenceFailureKeepsStateAndRetries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.failSave = errors.New("disk full")

	err := f.engine.RecordHabitCompletion(ctx, 1, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 1, f.engine.Profile().TotalCompletions)
	assert.Empty(t, f.notifier.notes)
	assert.Equal(t, 0, f.store.saves)

	f.store.failSave = nil
	require.NoError(t, f.engine.RecordPhotoAdded(ctx))

	assert.Equal(t, []domain.EventType{
		domain.EventAchievementUnlocked, domain.EventAchievementUnlocked,
	}, f.store.eventTypes())

	reopened, err := Open(ctx, f.userID, catalog.Default(), f.store, Options{Logger: testLogger()})
	require.NoError(t, err)
	p := reopened.Profile()
	assert.Equal(t, 1, p.TotalCompletions)
	assert.Equal(t, 1, p.PhotosAdded)
	assert.Equal(t, 30, p.TotalXP)
}

func TestOpen_LoadFailure(t *testing.T) {
	store := newMemStore()
	store.failLoad = errors.New("connection refused")

	_, err := Open(context.Background(), uuid.New(), catalog.Default(), store, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load progress")
}

func TestOpen_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.RecordLogin(ctx))
	require.NoError(t, f.engine.RecordHabitCompletion(ctx, 5, "sleep"))
	_, err := f.engine.ClaimDailyReward(ctx)
	require.NoError(t, err)

	reopened, err := Open(ctx, f.userID, catalog.Default(), f.store, Options{Logger: testLogger()})
	require.NoError(t, err)

	assert.Equal(t, f.engine.Profile(), reopened.Profile())
	assert.Equal(t, f.engine.Achievements(), reopened.Achievements())
	assert.Equal(t, f.engine.Trophies(), reopened.Trophies())
	assert.Equal(t, f.engine.DailyRewards(), reopened.DailyRewards())
	assert.Empty(t, reopened.XPLog())
}

func TestOpen_CorruptRecordsFallBackIndividually(t *testing.T) {
	store := newMemStore()
	userID := uuid.New()
	store.records[userID] = domain.ProgressRecords{
		Profile:      json.RawMessage(`{"total_xp":160,"total_completions":12,"unlocked_achievement_ids":["first_habit","completions_10"]}`),
		Achievements: json.RawMessage(`not json`),
		DailyRewards: json.RawMessage(`[{"xp_reward":1},{"xp_reward":2},{"xp_reward":3},{"xp_reward":4},{"xp_reward":5},{"xp_reward":6}]`),
	}

	e, err := Open(context.Background(), userID, catalog.Default(), store, Options{Logger: testLogger()})
	require.NoError(t, err)

	p := e.Profile()
	assert.Equal(t, 160, p.TotalXP)
	assert.Equal(t, 3, p.CurrentLevel)
	assert.Equal(t, []string{"first_habit", "completions_10"}, unlockedIDs(e.Achievements()))

	rewards := e.DailyRewards()
	require.Len(t, rewards, 7)
	assert.Equal(t, catalog.Default().DailyRewards(), rewards)
}

func TestOpen_CorruptProfileKeepsUnlocks(t *testing.T) {
	store := newMemStore()
	userID := uuid.New()
	list := catalog.Default().Achievements()
	for i := range list {
		if list[i].ID == "streak_3" {
			list[i].IsUnlocked = true
		}
	}
	raw, err := json.Marshal(list)
	require.NoError(t, err)
	store.records[userID] = domain.ProgressRecords{
		Profile:      json.RawMessage(`{"total_xp":`),
		Achievements: raw,
	}

	e, err := Open(context.Background(), userID, catalog.Default(), store, Options{Logger: testLogger()})
	require.NoError(t, err)

	p := e.Profile()
	assert.Equal(t, 0, p.TotalXP)
	assert.Equal(t, []string{"streak_3"}, p.UnlockedAchievementIDs)
}

func TestOpen_StoredListMergedOntoCatalog(t *testing.T) {
	store := newMemStore()
	userID := uuid.New()
	store.records[userID] = domain.ProgressRecords{
		Achievements: json.RawMessage(`[{"id":"streak_3","is_unlocked":true,"progress":3},{"id":"retired","is_unlocked":true}]`),
		Trophies:     json.RawMessage(`[{"id":"collector","is_unlocked":true}]`),
	}

	e, err := Open(context.Background(), userID, catalog.Default(), store, Options{Logger: testLogger()})
	require.NoError(t, err)

	all := e.Achievements()
	assert.Len(t, all, 22)
	assert.Equal(t, []string{"streak_3"}, unlockedIDs(all))
	a, _ := e.Achievement("streak_3")
	assert.Equal(t, "On a Roll", a.Title)
	assert.True(t, trophyUnlocked(e, "collector"))
	assert.Equal(t, []string{"collector"}, e.Profile().UnlockedTrophyIDs)
}

// --- Reset Tests ---

func TestResetAllData(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.RecordLogin(ctx))
	require.NoError(t, f.engine.RecordHabitCompletion(ctx, 100, "fitness"))
	_, err := f.engine.ClaimDailyReward(ctx)
	require.NoError(t, err)

	require.NoError(t, f.engine.ResetAllData(ctx))

	p := f.engine.Profile()
	assert.Equal(t, domain.NewProfile(), p)
	assert.Empty(t, unlockedIDs(f.engine.Achievements()))
	assert.Equal(t, catalog.Default().DailyRewards(), f.engine.DailyRewards())
	assert.Empty(t, f.engine.XPLog())
	assert.False(t, f.engine.Notifications().Any())
	assert.Contains(t, f.store.eventTypes(), domain.EventProgressReset)
}

// --- Trophy Settlement Tests ---

func TestClaimDailyReward_LevelUpUnlocksLevelTrophy(t *testing.T) {
	store := newMemStore()
	userID := uuid.New()
	store.records[userID] = domain.ProgressRecords{Profile: json.RawMessage(`{"total_xp":495}`)}
	ctx := context.Background()

	e, err := Open(ctx, userID, catalog.Default(), store, Options{
		Clock:  (&fakeClock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}).now,
		Logger: testLogger(),
	})
	require.NoError(t, err)

	require.NoError(t, e.RecordLogin(ctx))
	assert.False(t, trophyUnlocked(e, "rising_star"))

	claim, err := e.ClaimDailyReward(ctx)
	require.NoError(t, err)
	require.NotNil(t, claim)
	assert.Equal(t, 10, claim.XPGranted)

	assert.True(t, trophyUnlocked(e, "rising_star"))
	// 495 + 10 claimed + 50 level-5 achievement + 100 silver bonus
	assert.Equal(t, 655, e.Profile().TotalXP)
	assert.Contains(t, store.eventTypes(), domain.EventTrophyUnlocked)
}

func TestCreationUnlockCountsTowardCollector(t *testing.T) {
	store := newMemStore()
	userID := uuid.New()
	store.records[userID] = domain.ProgressRecords{
		Profile: json.RawMessage(`{"total_completions":1,"unlocked_achievement_ids":["first_habit","streak_3","completions_10","comeback"]}`),
	}
	ctx := context.Background()

	e, err := Open(ctx, userID, catalog.Default(), store, Options{Logger: testLogger()})
	require.NoError(t, err)
	require.False(t, trophyUnlocked(e, "collector"))

	require.NoError(t, e.RecordPhotoAdded(ctx))
	assert.Len(t, e.Profile().UnlockedAchievementIDs, 5)
	assert.True(t, trophyUnlocked(e, "collector"))
}

// --- Notification Delivery Tests ---

type lockCheckingNotifier struct {
	engine     *Engine
	calls      int
	lockedSeen bool
}

func (n *lockCheckingNotifier) Notify(context.Context, uuid.UUID, domain.Notification) {
	n.calls++
	if n.engine.mu.TryLock() {
		n.engine.mu.Unlock()
		return
	}
	n.lockedSeen = true
}

func TestNotifierRunsOutsideEngineLock(t *testing.T) {
	notifier := &lockCheckingNotifier{}
	e, err := Open(context.Background(), uuid.New(), catalog.Default(), newMemStore(), Options{
		Notifier: notifier,
		Logger:   testLogger(),
	})
	require.NoError(t, err)
	notifier.engine = e

	require.NoError(t, e.RecordHabitCompletion(context.Background(), 1, "fitness"))
	assert.Positive(t, notifier.calls)
	assert.False(t, notifier.lockedSeen)
}

// --- Version Conflict Tests ---

func TestEngine_StaleVersionReloadsAndReplays(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	userID := uuid.New()

	a, err := Open(ctx, userID, catalog.Default(), store, Options{Logger: testLogger()})
	require.NoError(t, err)
	b, err := Open(ctx, userID, catalog.Default(), store, Options{Logger: testLogger()})
	require.NoError(t, err)

	require.NoError(t, a.RecordHabitCompletion(ctx, 1, "fitness"))
	require.NoError(t, a.RecordHabitCompletion(ctx, 2, "sleep"))
	require.NoError(t, b.RecordPhotoAdded(ctx))

	p := b.Profile()
	assert.Equal(t, 2, p.TotalCompletions)
	assert.Equal(t, 1, p.PhotosAdded)
	assert.Equal(t, []string{"fitness", "sleep"}, p.CategoriesUsed)
	assert.False(t, b.Dirty())

	reopened, err := Open(ctx, userID, catalog.Default(), store, Options{Logger: testLogger()})
	require.NoError(t, err)
	assert.Equal(t, p, reopened.Profile())
}

func TestEngine_StaleVersionGivesUpAfterRetries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.failSave = domain.ErrStaleVersion

	err := f.engine.RecordPhotoAdded(ctx)
	require.ErrorIs(t, err, domain.ErrStaleVersion)
	assert.Equal(t, 0, f.engine.Profile().PhotosAdded, "change is dropped with the stale state")
	assert.False(t, f.engine.Notifications().Any())
	assert.Empty(t, f.notifier.notes)
}

// --- Concurrency Tests ---

func TestEngine_ConcurrentOperationsAreSerialized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.engine.RecordHabitCompletion(ctx, 0, "")
			_ = f.engine.RecordPhotoAdded(ctx)
		}()
	}
	wg.Wait()

	p := f.engine.Profile()
	assert.Equal(t, 20, p.TotalCompletions)
	assert.Equal(t, 20, p.PhotosAdded)
}
