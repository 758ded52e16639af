package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/habitquest/platform/internal/domain"
	"github.com/jackc/pgx/v5"
)

// PgProgressRepository implements ProgressRepository using pgx.
type PgProgressRepository struct{}

// NewPgProgressRepository creates a new PgProgressRepository.
func NewPgProgressRepository() *PgProgressRepository {
	return &PgProgressRepository{}
}

// Find returns the stored records, or empty records if the user has none.
func (r *PgProgressRepository) Find(ctx context.Context, db DBTX, userID uuid.UUID) (domain.ProgressRecords, error) {
	var rec domain.ProgressRecords
	err := db.QueryRow(ctx,
		`SELECT profile, achievements, trophies, daily_rewards, version
		 FROM player_progress WHERE user_id = $1`, userID,
	).Scan(&rec.Profile, &rec.Achievements, &rec.Trophies, &rec.DailyRewards, &rec.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ProgressRecords{}, nil
	}
	if err != nil {
		return domain.ProgressRecords{}, fmt.Errorf("find progress: %w", err)
	}
	return rec, nil
}

// Upsert writes all four records if the row is still at rec.Version and returns
// the new version. A row that moved on yields domain.ErrStaleVersion.
func (r *PgProgressRepository) Upsert(ctx context.Context, db DBTX, userID uuid.UUID, rec domain.ProgressRecords) (int64, error) {
	var version int64
	err := db.QueryRow(ctx,
		`INSERT INTO player_progress (user_id, profile, achievements, trophies, daily_rewards, version)
		 VALUES ($1, $2, $3, $4, $5, $6::bigint + 1)
		 ON CONFLICT (user_id) DO UPDATE SET
		   profile = EXCLUDED.profile,
		   achievements = EXCLUDED.achievements,
		   trophies = EXCLUDED.trophies,
		   daily_rewards = EXCLUDED.daily_rewards,
		   version = player_progress.version + 1,
		   updated_at = now()
		 WHERE player_progress.version = $6::bigint
		 RETURNING version`,
		userID, nullJSON(rec.Profile), nullJSON(rec.Achievements), nullJSON(rec.Trophies), nullJSON(rec.DailyRewards), rec.Version,
	).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: user %s expected version %d", domain.ErrStaleVersion, userID, rec.Version)
	}
	if err != nil {
		return 0, fmt.Errorf("upsert progress: %w", err)
	}
	return version, nil
}

// Delete removes the user's progress row.
func (r *PgProgressRepository) Delete(ctx context.Context, db DBTX, userID uuid.UUID) error {
	if _, err := db.Exec(ctx, `DELETE FROM player_progress WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete progress: %w", err)
	}
	return nil
}

// nullJSON maps an absent record to SQL NULL.
func nullJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
