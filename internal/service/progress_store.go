package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/habitquest/platform/internal/domain"
	"github.com/habitquest/platform/internal/repository"
	"github.com/jackc/pgx/v5"
)

// TxBeginner is the slice of *pgxpool.Pool the progress store needs.
type TxBeginner interface {
	repository.DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PgProgressStore persists progress records and their outbox events in one transaction.
type PgProgressStore struct {
	pool     TxBeginner
	progress repository.ProgressRepository
	outbox   repository.OutboxRepository
}

// NewPgProgressStore creates a new PgProgressStore.
func NewPgProgressStore(pool TxBeginner, progress repository.ProgressRepository, outbox repository.OutboxRepository) *PgProgressStore {
	return &PgProgressStore{pool: pool, progress: progress, outbox: outbox}
}

// Load reads the four records outside a transaction.
func (s *PgProgressStore) Load(ctx context.Context, userID uuid.UUID) (domain.ProgressRecords, error) {
	return s.progress.Find(ctx, s.pool, userID)
}

// Save upserts the records and appends the events to the outbox atomically.
// It returns the new row version; a stale records.Version rolls everything back.
func (s *PgProgressStore) Save(ctx context.Context, userID uuid.UUID, records domain.ProgressRecords, events []domain.OutboxDraft) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, domain.ErrInternal("begin tx", err)
	}
	defer tx.Rollback(ctx)

	version, err := s.progress.Upsert(ctx, tx, userID, records)
	if err != nil {
		return 0, err
	}
	for _, evt := range events {
		if err := s.outbox.Insert(ctx, tx, evt); err != nil {
			return 0, fmt.Errorf("outbox %s: %w", evt.EventType, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, domain.ErrInternal("commit tx", err)
	}
	return version, nil
}
