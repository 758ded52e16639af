package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/habitquest/platform/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// ProgressRepository provides access to player_progress.
type ProgressRepository interface {
	// Find returns the four stored records and their version. Missing rows yield empty records.
	Find(ctx context.Context, db DBTX, userID uuid.UUID) (domain.ProgressRecords, error)

	// Upsert replaces all four records in one statement, guarded by records.Version.
	Upsert(ctx context.Context, db DBTX, userID uuid.UUID, records domain.ProgressRecords) (int64, error)

	// Delete removes the user's row.
	Delete(ctx context.Context, db DBTX, userID uuid.UUID) error
}

// OutboxRepository provides access to the event_outbox table.
type OutboxRepository interface {
	// Insert writes an outbox event (within the same transaction as the progress records).
	Insert(ctx context.Context, db DBTX, draft domain.OutboxDraft) error

	// FetchUnpublished returns unpublished events in insertion order.
	FetchUnpublished(ctx context.Context, db DBTX, limit int) ([]domain.OutboxEvent, error)

	// MarkPublished stamps publishedAt on the given rows.
	MarkPublished(ctx context.Context, db DBTX, seqs []int64) error
}
