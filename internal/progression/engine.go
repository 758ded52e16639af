// Package progression implements the gamification engine: XP accumulation,
// leveling, achievement and trophy unlocking, daily rewards and login streaks.
//
// An Engine owns the progress state of exactly one user. Every public
// operation runs under the engine's mutex and completes its
// read-modify-evaluate-persist cycle before the next one starts.
package progression

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/habitquest/platform/internal/catalog"
	"github.com/habitquest/platform/internal/domain"
)

const (
	completionXP      = 5
	streakBonusFactor = 2
	streakBonusCap    = 20
	xpLogLimit        = 50

	// saveAttempts bounds how often one operation is replayed on fresh state
	// after another writer moved the stored version.
	saveAttempts = 3
)

// Store is the persistence gateway for the four progress records.
// Save receives the outbox events raised since the last successful save and
// writes only if records.Version still matches the stored version, returning
// the new one. A mismatch is reported as domain.ErrStaleVersion.
type Store interface {
	Load(ctx context.Context, userID uuid.UUID) (domain.ProgressRecords, error)
	Save(ctx context.Context, userID uuid.UUID, records domain.ProgressRecords, events []domain.OutboxDraft) (int64, error)
}

// Notifier is told about every notification once the state that raised it is persisted.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, n domain.Notification)
}

// Options configures an Engine. Zero values pick sensible defaults.
type Options struct {
	Clock    func() time.Time
	Location *time.Location
	Notifier Notifier
	Logger   *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Engine applies progress events to a single user's state.
type Engine struct {
	mu       sync.Mutex
	userID   uuid.UUID
	catalog  *catalog.Catalog
	store    Store
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
	loc      *time.Location

	profile      domain.Profile
	achievements []domain.Achievement
	trophies     []domain.Trophy
	rewards      []domain.DailyReward
	xpLog        []domain.XPEvent
	pending      domain.PendingNotifications
	unsaved      []domain.OutboxDraft
	version      int64
	dirty        bool

	// lastUsed is the UnixNano of the last registry hand-out.
	lastUsed atomic.Int64
}

// pass collects the side effects of one operation.
type pass struct {
	at                 time.Time
	unlocks            int
	achievementNoticed bool
	trophyNoticed      bool
	notes              []domain.Notification
	events             []domain.OutboxDraft
}

// Open loads the user's records from store and returns an engine owning them.
// Records that are missing or fail validation are replaced with catalog defaults
// individually; only a store failure is returned as an error.
func Open(ctx context.Context, userID uuid.UUID, cat *catalog.Catalog, store Store, opts Options) (*Engine, error) {
	opts = opts.withDefaults()
	records, err := store.Load(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}

	e := &Engine{
		userID:   userID,
		catalog:  cat,
		store:    store,
		notifier: opts.Notifier,
		logger:   opts.Logger.With("user_id", userID.String()),
		now:      opts.Clock,
		loc:      opts.Location,
	}
	e.adopt(records)
	return e, nil
}

// adopt replaces the durable state with records. Caller must hold e.mu or own e.
func (e *Engine) adopt(records domain.ProgressRecords) {
	st, discarded := decodeRecords(e.catalog, records)
	if len(discarded) > 0 && !records.Empty() {
		e.logger.Warn("progress records reset to defaults", "records", discarded)
	}
	e.profile = st.profile
	e.achievements = st.achievements
	e.trophies = st.trophies
	e.rewards = st.rewards
	e.version = records.Version
	e.unsaved = nil
	e.dirty = false
}

// reload discards in-memory state in favor of the stored copy. Caller must hold e.mu.
func (e *Engine) reload(ctx context.Context) error {
	records, err := e.store.Load(ctx, e.userID)
	if err != nil {
		return fmt.Errorf("reload progress: %w", err)
	}
	e.adopt(records)
	return nil
}

// UserID returns the id of the user this engine belongs to.
func (e *Engine) UserID() uuid.UUID {
	return e.userID
}

// apply runs fn through mutate under the engine lock and delivers the raised
// notifications once the lock is released.
func (e *Engine) apply(ctx context.Context, fn func(p *pass) bool) error {
	e.mu.Lock()
	notes, err := e.mutate(ctx, fn)
	e.mu.Unlock()

	if e.notifier != nil {
		for _, n := range notes {
			e.notifier.Notify(ctx, e.userID, n)
		}
	}
	return err
}

// mutate runs fn as one atomic operation: fn mutates state, then the state is
// persisted. When fn reports no change, nothing is persisted. If another writer
// moved the stored version, the stored copy is reloaded and fn replayed on it.
// It returns the notifications to deliver. Caller must hold e.mu.
func (e *Engine) mutate(ctx context.Context, fn func(p *pass) bool) ([]domain.Notification, error) {
	for attempt := 1; ; attempt++ {
		pending, xpLog := e.pending, e.xpLog
		carried := len(e.unsaved)

		p := &pass{at: e.now()}
		if !fn(p) {
			return nil, nil
		}
		e.unsaved = append(e.unsaved, p.events...)
		err := e.persist(ctx)
		if err == nil {
			return p.notes, nil
		}
		if !errors.Is(err, domain.ErrStaleVersion) {
			return nil, err
		}

		e.pending, e.xpLog = pending, xpLog
		if carried > 0 {
			e.logger.Warn("unsaved progress dropped after concurrent update", "events", carried)
		}
		if rerr := e.reload(ctx); rerr != nil {
			return nil, errors.Join(err, rerr)
		}
		if attempt == saveAttempts {
			return nil, err
		}
		e.logger.Debug("progress reloaded after concurrent update", "attempt", attempt)
	}
}

// persist writes the full state at the loaded version. On failure the in-memory
// state is kept and marked dirty; the next successful save writes it.
// Caller must hold e.mu.
func (e *Engine) persist(ctx context.Context) error {
	records, err := encodeRecords(state{
		profile:      e.profile,
		achievements: e.achievements,
		trophies:     e.trophies,
		rewards:      e.rewards,
	})
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	records.Version = e.version
	version, err := e.store.Save(ctx, e.userID, records, e.unsaved)
	if err != nil {
		e.dirty = true
		if errors.Is(err, domain.ErrStaleVersion) {
			e.logger.Warn("progress changed by another writer", "version", e.version)
		} else {
			e.logger.Error("persist progress failed", "error", err, "queued_events", len(e.unsaved))
		}
		return fmt.Errorf("save progress: %w", err)
	}
	e.version = version
	e.unsaved = nil
	e.dirty = false
	return nil
}

// Flush persists state left unsaved by an earlier failed write. If another
// writer has moved on since, the stored copy wins and is reloaded.
func (e *Engine) Flush(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.dirty {
		return nil
	}
	err := e.persist(ctx)
	if errors.Is(err, domain.ErrStaleVersion) {
		e.logger.Warn("unsaved progress dropped after concurrent update", "events", len(e.unsaved))
		return e.reload(ctx)
	}
	return err
}

// Dirty reports whether the engine holds changes the store has not accepted.
func (e *Engine) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dirty
}

// RecordHabitCompletion grants completion XP plus a capped streak bonus, updates
// the completion counters and evaluates achievements and trophies.
func (e *Engine) RecordHabitCompletion(ctx context.Context, streak int, category string) error {
	if streak < 0 {
		streak = 0
	}
	return e.apply(ctx, func(p *pass) bool {
		e.addXP(p, completionXP, domain.ReasonCompletion, false)
		if streak > 1 {
			e.addXP(p, min(streak*streakBonusFactor, streakBonusCap), domain.ReasonStreakBonus, true)
		}

		e.profile.TotalCompletions++
		e.profile.CurrentStreak = streak
		e.profile.MaxStreak = max(e.profile.MaxStreak, streak)
		if category != "" {
			e.profile.AddCategory(category)
		}

		e.settle(p)
		return true
	})
}

// RecordPhotoAdded counts a photo attached to a habit and re-evaluates achievements.
func (e *Engine) RecordPhotoAdded(ctx context.Context) error {
	return e.recordCreation(ctx, &e.profile.PhotosAdded)
}

// RecordModel3DCreated counts a captured 3D model and re-evaluates achievements.
func (e *Engine) RecordModel3DCreated(ctx context.Context) error {
	return e.recordCreation(ctx, &e.profile.Models3DCreated)
}

// RecordAIHabitCreated counts an AI-created habit and re-evaluates achievements.
func (e *Engine) RecordAIHabitCreated(ctx context.Context) error {
	return e.recordCreation(ctx, &e.profile.AIHabitsCreated)
}

func (e *Engine) recordCreation(ctx context.Context, counter *int) error {
	return e.apply(ctx, func(p *pass) bool {
		*counter++
		e.checkAchievements(p)
		e.settleTrophies(p)
		return true
	})
}

// SetPerfectMonths accepts the perfect-month count computed by the habit store.
// Lower values than the current one are ignored.
func (e *Engine) SetPerfectMonths(ctx context.Context, n int) error {
	return e.apply(ctx, func(p *pass) bool {
		if n <= e.profile.PerfectMonths {
			return false
		}
		e.profile.PerfectMonths = n
		e.settle(p)
		return true
	})
}

// ResetAllData restores every structure to catalog defaults and persists.
func (e *Engine) ResetAllData(ctx context.Context) error {
	return e.apply(ctx, func(p *pass) bool {
		e.profile = domain.NewProfile()
		e.profile.CurrentLevel = e.catalog.LevelFor(0).ID
		e.achievements = e.catalog.Achievements()
		e.trophies = e.catalog.Trophies()
		e.rewards = e.catalog.DailyRewards()
		e.xpLog = nil
		e.pending = domain.PendingNotifications{}
		p.events = append(p.events, domain.NewProgressResetEvent(e.userID, p.at))
		e.logger.Info("progress reset")
		return true
	})
}

// addXP grants amount, logs it and handles a level change.
func (e *Engine) addXP(p *pass, amount int, reason string, isBonus bool) {
	if amount <= 0 {
		return
	}
	before := e.catalog.LevelFor(e.profile.TotalXP)
	e.profile.TotalXP += amount

	e.xpLog = append([]domain.XPEvent{{
		Amount:    amount,
		Reason:    reason,
		Timestamp: p.at,
		IsBonus:   isBonus,
	}}, e.xpLog...)
	if len(e.xpLog) > xpLogLimit {
		e.xpLog = e.xpLog[:xpLogLimit]
	}

	after := e.catalog.LevelFor(e.profile.TotalXP)
	e.profile.CurrentLevel = after.ID
	if after.ID <= before.ID {
		return
	}

	lvl := after
	e.raise(p, domain.Notification{Kind: domain.NotifyLevelUp, Level: &lvl, RaisedAt: p.at})
	p.events = append(p.events, domain.NewLevelUpEvent(e.userID, before, after, e.profile.TotalXP, p.at))
	e.logger.Info("level up", "from", before.ID, "to", after.ID, "total_xp", e.profile.TotalXP)

	e.checkLevelAchievements(p)
}

// raise records a notification as pending and queues it for delivery.
func (e *Engine) raise(p *pass, n domain.Notification) {
	switch n.Kind {
	case domain.NotifyLevelUp:
		e.pending.LevelUp = &n
	case domain.NotifyAchievement:
		e.pending.Achievement = &n
	case domain.NotifyTrophy:
		e.pending.Trophy = &n
	}
	p.notes = append(p.notes, n)
}

// day returns the calendar day of t in the engine's location, as UTC midnight.
func (e *Engine) day(t time.Time) time.Time {
	y, m, d := t.In(e.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysBetween returns the number of calendar days from a to b.
func (e *Engine) daysBetween(a, b time.Time) int {
	return int(e.day(b).Sub(e.day(a)).Hours() / 24)
}
