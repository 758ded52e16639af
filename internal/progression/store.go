package progression

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/habitquest/platform/internal/domain"
	"github.com/habitquest/platform/internal/projection"
)

// KVStore keeps the four records as separate keys of a projection.VersionedStore,
// guarded by a per-user version key. It has no outbox: events handed to Save are
// logged and dropped.
type KVStore struct {
	kv     projection.VersionedStore
	logger *slog.Logger
}

// NewKVStore creates a key-value backed Store.
func NewKVStore(kv projection.VersionedStore, logger *slog.Logger) *KVStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &KVStore{kv: kv, logger: logger}
}

func recordKey(userID uuid.UUID, record string) string {
	return fmt.Sprintf("progress:%s:%s", userID, record)
}

func versionKey(userID uuid.UUID) string {
	return recordKey(userID, "version")
}

// Load reads the version before the records, so a write landing in between
// makes the next Save fail instead of overwriting it.
func (s *KVStore) Load(ctx context.Context, userID uuid.UUID) (domain.ProgressRecords, error) {
	var r domain.ProgressRecords
	v, err := s.kv.Version(ctx, versionKey(userID))
	if err != nil {
		return domain.ProgressRecords{}, fmt.Errorf("load version: %w", err)
	}
	r.Version = v

	for _, f := range []struct {
		name string
		dst  *[]byte
	}{
		{RecordProfile, (*[]byte)(&r.Profile)},
		{RecordAchievements, (*[]byte)(&r.Achievements)},
		{RecordTrophies, (*[]byte)(&r.Trophies)},
		{RecordDailyRewards, (*[]byte)(&r.DailyRewards)},
	} {
		val, err := s.kv.Get(ctx, recordKey(userID, f.name))
		if errors.Is(err, projection.ErrNotFound) {
			continue
		}
		if err != nil {
			return domain.ProgressRecords{}, fmt.Errorf("load %s: %w", f.name, err)
		}
		*f.dst = val
	}
	return r, nil
}

func (s *KVStore) Save(ctx context.Context, userID uuid.UUID, r domain.ProgressRecords, events []domain.OutboxDraft) (int64, error) {
	values := map[string][]byte{
		recordKey(userID, RecordProfile):      r.Profile,
		recordKey(userID, RecordAchievements): r.Achievements,
		recordKey(userID, RecordTrophies):     r.Trophies,
		recordKey(userID, RecordDailyRewards): r.DailyRewards,
	}
	next, err := s.kv.SetVersioned(ctx, versionKey(userID), r.Version, values)
	if errors.Is(err, projection.ErrVersionMismatch) {
		return 0, fmt.Errorf("%w: %w", domain.ErrStaleVersion, err)
	}
	if err != nil {
		return 0, fmt.Errorf("save progress: %w", err)
	}
	if len(events) > 0 {
		s.logger.Debug("kv store has no outbox, events dropped", "user_id", userID, "count", len(events))
	}
	return next, nil
}
