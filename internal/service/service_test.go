package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/habitquest/platform/internal/catalog"
	"github.com/habitquest/platform/internal/domain"
	"github.com/habitquest/platform/internal/guard"
	"github.com/habitquest/platform/internal/progression"
	"github.com/habitquest/platform/internal/projection"
	"github.com/habitquest/platform/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type flakyStore struct {
	mu       sync.Mutex
	inner    progression.Store
	failLoad error
	failSave error
}

func (s *flakyStore) Load(ctx context.Context, userID uuid.UUID) (domain.ProgressRecords, error) {
	s.mu.Lock()
	err := s.failLoad
	s.mu.Unlock()
	if err != nil {
		return domain.ProgressRecords{}, err
	}
	return s.inner.Load(ctx, userID)
}

func (s *flakyStore) Save(ctx context.Context, userID uuid.UUID, r domain.ProgressRecords, events []domain.OutboxDraft) (int64, error) {
	s.mu.Lock()
	err := s.failSave
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return s.inner.Save(ctx, userID, r, events)
}

func (s *flakyStore) setFailSave(err error) {
	s.mu.Lock()
	s.failSave = err
	s.mu.Unlock()
}

type serviceFixture struct {
	svc   *ProgressService
	store *flakyStore
	proj  *projection.InMemoryStore
}

func newServiceFixture(limit int) *serviceFixture {
	kv := projection.NewInMemoryStore()
	store := &flakyStore{inner: progression.NewKVStore(kv, testLogger())}
	registry := progression.NewRegistry(catalog.Default(), store, progression.Options{
		Clock:  func() time.Time { return testNow },
		Logger: testLogger(),
	})
	proj := projection.NewInMemoryStore()
	svc := NewProgressService(registry, ProgressServiceConfig{
		Projections: proj,
		Limiter:     guard.NewRateLimiter(limit, time.Minute),
		Dedupe:      guard.NewIdempotencyGuard(time.Hour),
		Logger:      testLogger(),
	})
	return &serviceFixture{svc: svc, store: store, proj: proj}
}

func appErrCode(t *testing.T, err error) string {
	t.Helper()
	var appErr *domain.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %v", err)
	return appErr.Code
}

// --- ProgressService Tests ---

func TestProgressService_HabitCompletedUpdatesProjection(t *testing.T) {
	f := newServiceFixture(100)
	ctx := context.Background()
	userID := uuid.New()

	res, err := f.svc.HabitCompleted(ctx, userID, "", HabitCompletedInput{Streak: 1, Category: "fitness"})
	require.NoError(t, err)
	assert.True(t, res.Persisted)
	assert.Equal(t, 15, res.Snapshot.TotalXP)
	assert.Equal(t, 1, res.Snapshot.TotalCompletions)

	snap, err := f.svc.PublicSnapshot(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 15, snap.TotalXP)
	assert.Equal(t, []string{"fitness"}, snap.CategoriesUsed)
}

func TestProgressService_HabitCompletedValidation(t *testing.T) {
	f := newServiceFixture(100)
	ctx := context.Background()

	tests := []struct {
		name  string
		input HabitCompletedInput
	}{
		{"negative streak", HabitCompletedInput{Streak: -1, Category: "fitness"}},
		{"missing category", HabitCompletedInput{Streak: 1}},
		{"malformed category", HabitCompletedInput{Streak: 1, Category: "Fitness"}},
		{"unknown category", HabitCompletedInput{Streak: 1, Category: "gardening"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.HabitCompleted(ctx, uuid.New(), "", tt.input)
			require.Error(t, err)
			assert.Equal(t, "VALIDATION_ERROR", appErrCode(t, err))
		})
	}
}

func TestProgressService_DuplicateEventRejected(t *testing.T) {
	f := newServiceFixture(100)
	ctx := context.Background()
	userID := uuid.New()
	in := HabitCompletedInput{Streak: 1, Category: "fitness"}

	_, err := f.svc.HabitCompleted(ctx, userID, "evt-1", in)
	require.NoError(t, err)

	_, err = f.svc.HabitCompleted(ctx, userID, "evt-1", in)
	require.Error(t, err)
	assert.Equal(t, "DUPLICATE_EVENT", appErrCode(t, err))

	_, err = f.svc.HabitCompleted(ctx, uuid.New(), "evt-1", in)
	require.NoError(t, err, "keys are scoped per user")

	e, err := f.svc.Engine(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 1, e.Profile().TotalCompletions)
}

func TestProgressService_RateLimited(t *testing.T) {
	f := newServiceFixture(2)
	ctx := context.Background()
	userID := uuid.New()

	_, err := f.svc.PhotoAdded(ctx, userID, "")
	require.NoError(t, err)
	_, err = f.svc.Model3DCreated(ctx, userID, "")
	require.NoError(t, err)

	_, err = f.svc.AIHabitCreated(ctx, userID, "")
	require.Error(t, err)
	assert.Equal(t, "RATE_LIMITED", appErrCode(t, err))
}

func TestProgressService_ClaimDailyReward(t *testing.T) {
	f := newServiceFixture(100)
	ctx := context.Background()
	userID := uuid.New()

	first, err := f.svc.ClaimDailyReward(ctx, userID, "")
	require.NoError(t, err)
	require.NotNil(t, first.Claim)
	assert.Equal(t, 0, first.Claim.SlotIndex)
	assert.Equal(t, 10, first.Claim.XPGranted)
	assert.Equal(t, 10, first.Snapshot.TotalXP)

	second, err := f.svc.ClaimDailyReward(ctx, userID, "")
	require.NoError(t, err)
	assert.Nil(t, second.Claim)
	assert.Equal(t, 10, second.Snapshot.TotalXP)
}

func TestProgressService_SaveFailureKeepsChange(t *testing.T) {
	f := newServiceFixture(100)
	ctx := context.Background()
	userID := uuid.New()

	_, err := f.svc.StartSession(ctx, userID)
	require.NoError(t, err)

	f.store.failSave = errors.New("disk full")
	res, err := f.svc.HabitCompleted(ctx, userID, "evt-1", HabitCompletedInput{Streak: 1, Category: "sleep"})
	require.NoError(t, err)
	assert.False(t, res.Persisted)
	assert.Equal(t, 15, res.Snapshot.TotalXP)

	_, err = f.svc.HabitCompleted(ctx, userID, "evt-1", HabitCompletedInput{Streak: 1, Category: "sleep"})
	assert.Equal(t, "DUPLICATE_EVENT", appErrCode(t, err))
}

func TestProgressService_LoadFailureReleasesKey(t *testing.T) {
	f := newServiceFixture(100)
	ctx := context.Background()
	userID := uuid.New()

	f.store.failLoad = errors.New("connection refused")
	_, err := f.svc.PhotoAdded(ctx, userID, "evt-9")
	require.Error(t, err)
	assert.Equal(t, "INTERNAL_ERROR", appErrCode(t, err))

	f.store.failLoad = nil
	res, err := f.svc.PhotoAdded(ctx, userID, "evt-9")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Snapshot.PhotosAdded)
}

func TestProgressService_SetPerfectMonths(t *testing.T) {
	f := newServiceFixture(100)
	ctx := context.Background()
	userID := uuid.New()

	_, err := f.svc.SetPerfectMonths(ctx, userID, -1)
	assert.Equal(t, "VALIDATION_ERROR", appErrCode(t, err))

	res, err := f.svc.SetPerfectMonths(ctx, userID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Snapshot.PerfectMonths)
	assert.Equal(t, 100, res.Snapshot.TotalXP)
}

func TestProgressService_Reset(t *testing.T) {
	f := newServiceFixture(100)
	ctx := context.Background()
	userID := uuid.New()

	_, err := f.svc.HabitCompleted(ctx, userID, "", HabitCompletedInput{Streak: 4, Category: "health"})
	require.NoError(t, err)

	res, err := f.svc.Reset(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Snapshot.TotalXP)
	assert.Equal(t, 0, res.Snapshot.AchievementsUnlocked)
}

func TestProgressService_ConcurrentWriterConflict(t *testing.T) {
	f := newServiceFixture(100)
	ctx := context.Background()
	userID := uuid.New()

	_, err := f.svc.Engine(ctx, userID)
	require.NoError(t, err)

	f.store.setFailSave(domain.ErrStaleVersion)
	_, err = f.svc.PhotoAdded(ctx, userID, "evt-7")
	require.Error(t, err)
	assert.Equal(t, "CONFLICT", appErrCode(t, err))

	f.store.setFailSave(nil)
	res, err := f.svc.PhotoAdded(ctx, userID, "evt-7")
	require.NoError(t, err, "key is released so the client can resend")
	assert.True(t, res.Persisted)
	assert.Equal(t, 1, res.Snapshot.PhotosAdded)
}

func TestProgressService_PublicSnapshotMissing(t *testing.T) {
	f := newServiceFixture(100)

	_, err := f.svc.PublicSnapshot(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", appErrCode(t, err))
}

// --- PgProgressStore Tests ---

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
	commitErr  error
}

func (tx *fakeTx) Commit(context.Context) error {
	if tx.commitErr != nil {
		return tx.commitErr
	}
	tx.committed = true
	return nil
}

func (tx *fakeTx) Rollback(context.Context) error {
	if !tx.committed {
		tx.rolledBack = true
	}
	return nil
}

type fakePool struct {
	repository.DBTX
	tx       *fakeTx
	beginErr error
}

func (p *fakePool) Begin(context.Context) (pgx.Tx, error) {
	if p.beginErr != nil {
		return nil, p.beginErr
	}
	return p.tx, nil
}

type fakeProgressRepo struct {
	stored    map[uuid.UUID]domain.ProgressRecords
	upsertErr error
}

func (r *fakeProgressRepo) Find(_ context.Context, _ repository.DBTX, userID uuid.UUID) (domain.ProgressRecords, error) {
	return r.stored[userID], nil
}

func (r *fakeProgressRepo) Upsert(_ context.Context, _ repository.DBTX, userID uuid.UUID, rec domain.ProgressRecords) (int64, error) {
	if r.upsertErr != nil {
		return 0, r.upsertErr
	}
	if cur := r.stored[userID].Version; cur != rec.Version {
		return 0, domain.ErrStaleVersion
	}
	rec.Version++
	r.stored[userID] = rec
	return rec.Version, nil
}

func (r *fakeProgressRepo) Delete(_ context.Context, _ repository.DBTX, userID uuid.UUID) error {
	delete(r.stored, userID)
	return nil
}

type fakeOutboxRepo struct {
	inserted  []domain.OutboxDraft
	insertErr error
}

func (r *fakeOutboxRepo) Insert(_ context.Context, _ repository.DBTX, draft domain.OutboxDraft) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	r.inserted = append(r.inserted, draft)
	return nil
}

func (r *fakeOutboxRepo) FetchUnpublished(context.Context, repository.DBTX, int) ([]domain.OutboxEvent, error) {
	return nil, nil
}

func (r *fakeOutboxRepo) MarkPublished(context.Context, repository.DBTX, []int64) error {
	return nil
}

func newStoreFixture() (*PgProgressStore, *fakePool, *fakeProgressRepo, *fakeOutboxRepo) {
	pool := &fakePool{tx: &fakeTx{}}
	progress := &fakeProgressRepo{stored: make(map[uuid.UUID]domain.ProgressRecords)}
	outbox := &fakeOutboxRepo{}
	return NewPgProgressStore(pool, progress, outbox), pool, progress, outbox
}

func TestPgProgressStore_SaveCommitsRecordsAndEvents(t *testing.T) {
	store, pool, progress, outbox := newStoreFixture()
	ctx := context.Background()
	userID := uuid.New()
	rec := domain.ProgressRecords{Profile: []byte(`{"total_xp":15}`)}
	events := []domain.OutboxDraft{
		domain.NewProgressResetEvent(userID, testNow),
		domain.NewLevelUpEvent(userID, domain.Level{ID: 1}, domain.Level{ID: 2}, 60, testNow),
	}

	version, err := store.Save(ctx, userID, rec, events)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
	assert.True(t, pool.tx.committed)
	assert.False(t, pool.tx.rolledBack)
	assert.Equal(t, rec.Profile, progress.stored[userID].Profile)
	require.Len(t, outbox.inserted, 2)
	assert.Equal(t, domain.EventProgressReset, outbox.inserted[0].EventType)
	assert.Equal(t, domain.EventLevelUp, outbox.inserted[1].EventType)

	loaded, err := store.Load(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), loaded.Version)
	assert.Equal(t, rec.Profile, loaded.Profile)
}

func TestPgProgressStore_StaleVersionRollsBack(t *testing.T) {
	store, pool, progress, outbox := newStoreFixture()
	ctx := context.Background()
	userID := uuid.New()
	progress.stored[userID] = domain.ProgressRecords{Version: 4}

	_, err := store.Save(ctx, userID, domain.ProgressRecords{Version: 3}, []domain.OutboxDraft{
		domain.NewProgressResetEvent(userID, testNow),
	})
	require.ErrorIs(t, err, domain.ErrStaleVersion)
	assert.True(t, pool.tx.rolledBack)
	assert.Empty(t, outbox.inserted)
	assert.Equal(t, int64(4), progress.stored[userID].Version)
}

func TestPgProgressStore_SaveFailures(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	events := []domain.OutboxDraft{domain.NewProgressResetEvent(userID, testNow)}

	t.Run("begin fails", func(t *testing.T) {
		store, pool, _, _ := newStoreFixture()
		pool.beginErr = errors.New("pool closed")

		_, err := store.Save(ctx, userID, domain.ProgressRecords{}, events)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "begin tx")
	})

	t.Run("upsert fails", func(t *testing.T) {
		store, pool, progress, outbox := newStoreFixture()
		progress.upsertErr = errors.New("deadlock")

		_, err := store.Save(ctx, userID, domain.ProgressRecords{}, events)
		require.Error(t, err)
		assert.True(t, pool.tx.rolledBack)
		assert.Empty(t, outbox.inserted)
	})

	t.Run("outbox insert fails", func(t *testing.T) {
		store, pool, _, outbox := newStoreFixture()
		outbox.insertErr = errors.New("unique violation")

		_, err := store.Save(ctx, userID, domain.ProgressRecords{}, events)
		require.Error(t, err)
		assert.Contains(t, err.Error(), string(domain.EventProgressReset))
		assert.True(t, pool.tx.rolledBack)
	})

	t.Run("commit fails", func(t *testing.T) {
		store, pool, _, _ := newStoreFixture()
		pool.tx.commitErr = errors.New("serialization failure")

		_, err := store.Save(ctx, userID, domain.ProgressRecords{}, events)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "commit tx")
		assert.True(t, pool.tx.rolledBack)
	})
}

// --- PerfectMonthsConsumer Tests ---

type fakeSource struct {
	msgs      []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (s *fakeSource) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(s.msgs) == 0 {
		s.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := s.msgs[0]
	s.msgs = s.msgs[1:]
	return msg, nil
}

func (s *fakeSource) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		s.committed = append(s.committed, m.Offset)
	}
	return nil
}

func TestPerfectMonthsConsumer_AppliesAndCommits(t *testing.T) {
	f := newServiceFixture(1)
	userID := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := &fakeSource{
		cancel: cancel,
		msgs: []kafka.Message{
			{Offset: 1, Value: []byte(`{"user_id":"` + userID.String() + `","perfect_months":1}`)},
			{Offset: 2, Value: []byte(`not json`)},
			{Offset: 3, Value: []byte(`{"user_id":"` + userID.String() + `","perfect_months":-2}`)},
			{Offset: 4, Value: []byte(`{"user_id":"` + userID.String() + `","perfect_months":3}`)},
		},
	}

	require.NoError(t, NewPerfectMonthsConsumer(source, f.svc, testLogger()).Run(ctx))
	assert.Equal(t, []int64{1, 2, 3, 4}, source.committed)

	e, err := f.svc.Engine(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 3, e.Profile().PerfectMonths)
}

type brokenSource struct{}

func (brokenSource) FetchMessage(context.Context) (kafka.Message, error) {
	return kafka.Message{}, errors.New("broker unreachable")
}

func (brokenSource) CommitMessages(context.Context, ...kafka.Message) error { return nil }

func TestPerfectMonthsConsumer_FetchError(t *testing.T) {
	f := newServiceFixture(1)
	err := NewPerfectMonthsConsumer(brokenSource{}, f.svc, testLogger()).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker unreachable")
}
