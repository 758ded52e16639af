package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/habitquest/platform/internal/domain"
	"github.com/habitquest/platform/internal/guard"
	"github.com/habitquest/platform/internal/progression"
	"github.com/habitquest/platform/internal/projection"
)

// ProgressService is the event ingestion facade in front of the per-user engines.
// It validates inbound events, applies the rate limit and idempotency guards,
// and refreshes the public snapshot projection after each change.
type ProgressService struct {
	registry      *progression.Registry
	projections   projection.Store
	limiter       *guard.RateLimiter
	dedupe        *guard.IdempotencyGuard
	projectionTTL time.Duration
	logger        *slog.Logger
}

// ProgressServiceConfig holds the optional collaborators of a ProgressService.
type ProgressServiceConfig struct {
	Projections   projection.Store
	Limiter       *guard.RateLimiter
	Dedupe        *guard.IdempotencyGuard
	ProjectionTTL time.Duration
	Logger        *slog.Logger
}

// NewProgressService creates a new ProgressService.
func NewProgressService(registry *progression.Registry, cfg ProgressServiceConfig) *ProgressService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgressService{
		registry:      registry,
		projections:   cfg.Projections,
		limiter:       cfg.Limiter,
		dedupe:        cfg.Dedupe,
		projectionTTL: cfg.ProjectionTTL,
		logger:        logger,
	}
}

// HabitCompletedInput is the payload of a habit completion event.
type HabitCompletedInput struct {
	Streak   int    `json:"streak"`
	Category string `json:"category"`
}

// Result is returned by every mutating call. Persisted is false when the change
// was applied in memory but the store failed; the next save retries.
type Result struct {
	Snapshot  domain.ProfileSnapshot `json:"snapshot"`
	Persisted bool                   `json:"persisted"`
}

// ClaimOutcome is the result of a daily reward claim. Claim is nil when
// today's reward was already taken.
type ClaimOutcome struct {
	Result
	Claim *domain.ClaimResult `json:"claim,omitempty"`
}

// Engine returns the caller's engine for reads, loading it on first use.
func (s *ProgressService) Engine(ctx context.Context, userID uuid.UUID) (*progression.Engine, error) {
	e, err := s.registry.Engine(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("load progress", err)
	}
	return e, nil
}

// StartSession reports an app activation for the login streak.
func (s *ProgressService) StartSession(ctx context.Context, userID uuid.UUID) (*Result, error) {
	return s.apply(ctx, userID, "", func(ctx context.Context, e *progression.Engine) error {
		return e.RecordLogin(ctx)
	})
}

// HabitCompleted records a completed habit.
func (s *ProgressService) HabitCompleted(ctx context.Context, userID uuid.UUID, key string, in HabitCompletedInput) (*Result, error) {
	if err := domain.ValidateStreak(in.Streak); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if err := domain.ValidateCategory(in.Category); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if !slices.Contains(s.registry.Catalog().HabitCategories(), in.Category) {
		return nil, domain.ErrValidation(fmt.Sprintf("unknown habit category: %s", in.Category))
	}
	return s.apply(ctx, userID, key, func(ctx context.Context, e *progression.Engine) error {
		return e.RecordHabitCompletion(ctx, in.Streak, in.Category)
	})
}

// PhotoAdded records a photo attached to a habit.
func (s *ProgressService) PhotoAdded(ctx context.Context, userID uuid.UUID, key string) (*Result, error) {
	return s.apply(ctx, userID, key, func(ctx context.Context, e *progression.Engine) error {
		return e.RecordPhotoAdded(ctx)
	})
}

// Model3DCreated records a captured 3D model.
func (s *ProgressService) Model3DCreated(ctx context.Context, userID uuid.UUID, key string) (*Result, error) {
	return s.apply(ctx, userID, key, func(ctx context.Context, e *progression.Engine) error {
		return e.RecordModel3DCreated(ctx)
	})
}

// AIHabitCreated records a habit created by the AI assistant.
func (s *ProgressService) AIHabitCreated(ctx context.Context, userID uuid.UUID, key string) (*Result, error) {
	return s.apply(ctx, userID, key, func(ctx context.Context, e *progression.Engine) error {
		return e.RecordAIHabitCreated(ctx)
	})
}

// ClaimDailyReward claims today's reward slot.
func (s *ProgressService) ClaimDailyReward(ctx context.Context, userID uuid.UUID, key string) (*ClaimOutcome, error) {
	var claim *domain.ClaimResult
	res, err := s.apply(ctx, userID, key, func(ctx context.Context, e *progression.Engine) error {
		var err error
		claim, err = e.ClaimDailyReward(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &ClaimOutcome{Result: *res, Claim: claim}, nil
}

// SetPerfectMonths records the number of perfect months reported by the habit tracker.
func (s *ProgressService) SetPerfectMonths(ctx context.Context, userID uuid.UUID, n int) (*Result, error) {
	if err := domain.ValidatePerfectMonths(n); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	return s.applyTrusted(ctx, userID, func(ctx context.Context, e *progression.Engine) error {
		return e.SetPerfectMonths(ctx, n)
	})
}

// Reset wipes the user's progress back to the catalog defaults.
func (s *ProgressService) Reset(ctx context.Context, userID uuid.UUID) (*Result, error) {
	return s.apply(ctx, userID, "", func(ctx context.Context, e *progression.Engine) error {
		return e.ResetAllData(ctx)
	})
}

// PublicSnapshot returns another user's cached snapshot.
func (s *ProgressService) PublicSnapshot(ctx context.Context, userID uuid.UUID) (*domain.ProfileSnapshot, error) {
	if s.projections == nil {
		return nil, domain.ErrNotFound("progress", userID.String())
	}
	snap, err := projection.GetProfile(ctx, s.projections, userID)
	if errors.Is(err, projection.ErrNotFound) {
		return nil, domain.ErrNotFound("progress", userID.String())
	}
	if err != nil {
		return nil, domain.ErrInternal("read projection", err)
	}
	return snap, nil
}

func (s *ProgressService) apply(
	ctx context.Context,
	userID uuid.UUID,
	key string,
	op func(ctx context.Context, e *progression.Engine) error,
) (*Result, error) {
	return s.run(ctx, userID, key, true, op)
}

// applyTrusted skips the rate limit for calls from internal collaborators.
func (s *ProgressService) applyTrusted(
	ctx context.Context,
	userID uuid.UUID,
	op func(ctx context.Context, e *progression.Engine) error,
) (*Result, error) {
	return s.run(ctx, userID, "", false, op)
}

func (s *ProgressService) run(
	ctx context.Context,
	userID uuid.UUID,
	key string,
	limited bool,
	op func(ctx context.Context, e *progression.Engine) error,
) (*Result, error) {
	if limited && s.limiter != nil {
		if r := s.limiter.Check(ctx, "events:"+userID.String()); !r.Allowed {
			return nil, domain.ErrRateLimited(r.Reason)
		}
	}

	dedupeKey := ""
	if key != "" && s.dedupe != nil {
		dedupeKey = userID.String() + ":" + key
		if r := s.dedupe.Check(ctx, dedupeKey); !r.Allowed {
			return nil, domain.ErrDuplicateEvent(key)
		}
	}

	e, err := s.registry.Engine(ctx, userID)
	if err != nil {
		if dedupeKey != "" {
			s.dedupe.Remove(dedupeKey)
		}
		return nil, domain.ErrInternal("load progress", err)
	}

	persisted := true
	if err := op(ctx, e); err != nil {
		if errors.Is(err, domain.ErrStaleVersion) {
			// The engine dropped the change and reloaded; the client may resend.
			if dedupeKey != "" {
				s.dedupe.Remove(dedupeKey)
			}
			return nil, domain.ErrConflict("progress changed concurrently, retry the event")
		}
		// The engine keeps the change; the event must not be replayed.
		persisted = false
		s.logger.Warn("progress applied but not persisted", "user_id", userID, "error", err)
	}

	snap := e.Snapshot()
	s.refreshProjection(ctx, snap)
	return &Result{Snapshot: snap, Persisted: persisted}, nil
}

func (s *ProgressService) refreshProjection(ctx context.Context, snap domain.ProfileSnapshot) {
	if s.projections == nil {
		return
	}
	if err := projection.UpdateProfile(ctx, s.projections, snap, s.projectionTTL); err != nil {
		s.logger.Warn("projection update failed", "user_id", snap.UserID, "error", err)
	}
}
