package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/habitquest/platform/internal/auth"
	"github.com/habitquest/platform/internal/domain"
	"github.com/habitquest/platform/internal/infra"
	"github.com/habitquest/platform/internal/service"
)

// ProgressHandler serves the progression endpoints.
type ProgressHandler struct {
	svc       *service.ProgressService
	hub       *infra.NotificationHub
	logger    *slog.Logger
	keepAlive time.Duration
}

// NewProgressHandler creates a new ProgressHandler.
func NewProgressHandler(svc *service.ProgressService, hub *infra.NotificationHub, logger *slog.Logger) *ProgressHandler {
	return &ProgressHandler{svc: svc, hub: hub, logger: logger, keepAlive: 25 * time.Second}
}

func playerIDFromContext(r *http.Request) (uuid.UUID, error) {
	id := auth.SubjectFromContext(r.Context())
	if id == uuid.Nil {
		return uuid.Nil, domain.ErrUnauthorized("no subject in context")
	}
	return id, nil
}

func idempotencyKey(r *http.Request) string {
	return r.Header.Get("Idempotency-Key")
}

// StartSession handles POST /progress/sessions.
func (h *ProgressHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	playerID, err := playerIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	res, err := h.svc.StartSession(r.Context(), playerID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, res)
}

// HabitCompleted handles POST /progress/habits/completed.
func (h *ProgressHandler) HabitCompleted(w http.ResponseWriter, r *http.Request) {
	playerID, err := playerIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	var input service.HabitCompletedInput
	if err := DecodeJSON(r, &input); err != nil {
		RespondError(w, err)
		return
	}
	res, err := h.svc.HabitCompleted(r.Context(), playerID, idempotencyKey(r), input)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, res)
}

// PhotoAdded handles POST /progress/photos.
func (h *ProgressHandler) PhotoAdded(w http.ResponseWriter, r *http.Request) {
	h.recordEvent(w, r, h.svc.PhotoAdded)
}

// ModelCreated handles POST /progress/models.
func (h *ProgressHandler) ModelCreated(w http.ResponseWriter, r *http.Request) {
	h.recordEvent(w, r, h.svc.Model3DCreated)
}

// AIHabitCreated handles POST /progress/ai-habits.
func (h *ProgressHandler) AIHabitCreated(w http.ResponseWriter, r *http.Request) {
	h.recordEvent(w, r, h.svc.AIHabitCreated)
}

func (h *ProgressHandler) recordEvent(
	w http.ResponseWriter,
	r *http.Request,
	record func(ctx context.Context, playerID uuid.UUID, key string) (*service.Result, error),
) {
	playerID, err := playerIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	res, err := record(r.Context(), playerID, idempotencyKey(r))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, res)
}

type claimResponse struct {
	Claimed   bool                   `json:"claimed"`
	Claim     *domain.ClaimResult    `json:"claim,omitempty"`
	Snapshot  domain.ProfileSnapshot `json:"snapshot"`
	Persisted bool                   `json:"persisted"`
}

// ClaimDailyReward handles POST /progress/daily-reward/claim.
// A second claim on the same day answers 200 with claimed=false.
func (h *ProgressHandler) ClaimDailyReward(w http.ResponseWriter, r *http.Request) {
	playerID, err := playerIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	out, err := h.svc.ClaimDailyReward(r.Context(), playerID, idempotencyKey(r))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, claimResponse{
		Claimed:   out.Claim != nil,
		Claim:     out.Claim,
		Snapshot:  out.Snapshot,
		Persisted: out.Persisted,
	})
}

// Reset handles POST /progress/reset.
func (h *ProgressHandler) Reset(w http.ResponseWriter, r *http.Request) {
	playerID, err := playerIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	res, err := h.svc.Reset(r.Context(), playerID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, res)
}

// SetPerfectMonths handles PUT /internal/players/{id}/perfect-months (service realm).
func (h *ProgressHandler) SetPerfectMonths(w http.ResponseWriter, r *http.Request) {
	playerID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, domain.ErrValidation("invalid player id"))
		return
	}
	var input struct {
		PerfectMonths *int `json:"perfect_months"`
	}
	if err := DecodeJSON(r, &input); err != nil {
		RespondError(w, err)
		return
	}
	if input.PerfectMonths == nil {
		RespondError(w, domain.ErrValidation("perfect_months is required"))
		return
	}
	res, err := h.svc.SetPerfectMonths(r.Context(), playerID, *input.PerfectMonths)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, res)
}

// Me handles GET /progress/me.
func (h *ProgressHandler) Me(w http.ResponseWriter, r *http.Request) {
	playerID, err := playerIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	e, err := h.svc.Engine(r.Context(), playerID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, e.Snapshot())
}

// PublicProgress handles GET /players/{id}/progress from the cached projection.
func (h *ProgressHandler) PublicProgress(w http.ResponseWriter, r *http.Request) {
	playerID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, domain.ErrValidation("invalid player id"))
		return
	}
	snap, err := h.svc.PublicSnapshot(r.Context(), playerID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, snap)
}

// Achievements handles GET /progress/achievements[?category=].
func (h *ProgressHandler) Achievements(w http.ResponseWriter, r *http.Request) {
	playerID, err := playerIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	category := domain.AchievementCategory(r.URL.Query().Get("category"))
	if category != "" && !slices.Contains(domain.AchievementCategories, category) {
		RespondError(w, domain.ErrValidation(fmt.Sprintf("unknown achievement category: %s", category)))
		return
	}
	e, err := h.svc.Engine(r.Context(), playerID)
	if err != nil {
		RespondError(w, err)
		return
	}
	if category != "" {
		RespondJSON(w, http.StatusOK, e.AchievementsByCategory(category))
		return
	}
	RespondJSON(w, http.StatusOK, e.Achievements())
}

// AchievementProgress handles GET /progress/achievements/{id}/progress.
// Unknown ids report zero progress.
func (h *ProgressHandler) AchievementProgress(w http.ResponseWriter, r *http.Request) {
	playerID, err := playerIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	e, err := h.svc.Engine(r.Context(), playerID)
	if err != nil {
		RespondError(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"id":       id,
		"progress": e.AchievementProgress(id),
	})
}

type statsResponse struct {
	Unlocked int `json:"unlocked"`
	Total    int `json:"total"`
}

// AchievementStats handles GET /progress/achievements/stats.
func (h *ProgressHandler) AchievementStats(w http.ResponseWriter, r *http.Request) {
	playerID, err := playerIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	e, err := h.svc.Engine(r.Context(), playerID)
	if err != nil {
		RespondError(w, err)
		return
	}
	unlocked, total := e.AchievementStats()
	RespondJSON(w, http.StatusOK, statsResponse{Unlocked: unlocked, Total: total})
}

// Trophies handles GET /progress/trophies[?tier=].
func (h *ProgressHandler) Trophies(w http.ResponseWriter, r *http.Request) {
	playerID, err := playerIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	tier := domain.TrophyTier(r.URL.Query().Get("tier"))
	if tier != "" && tier.Rank() < 0 {
		RespondError(w, domain.ErrValidation(fmt.Sprintf("unknown trophy tier: %s", tier)))
		return
	}
	e, err := h.svc.Engine(r.Context(), playerID)
	if err != nil {
		RespondError(w, err)
		return
	}
	if tier != "" {
		RespondJSON(w, http.StatusOK, e.TrophiesByTier(tier))
		return
	}
	RespondJSON(w, http.StatusOK, e.Trophies())
}

// TrophyStats handles GET /progress/trophies/stats.
func (h *ProgressHandler) TrophyStats(w http.ResponseWriter, r *http.Request) {
	playerID, err := playerIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	e, err := h.svc.Engine(r.Context(), playerID)
	if err != nil {
		RespondError(w, err)
		return
	}
	unlocked, total := e.TrophyStats()
	RespondJSON(w, http.StatusOK, statsResponse{Unlocked: unlocked, Total: total})
}

// DailyRewards handles GET /progress/daily-rewards.
func (h *ProgressHandler) DailyRewards(w http.ResponseWriter, r *http.Request) {
	playerID, err := playerIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	e, err := h.svc.Engine(r.Context(), playerID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"rewards":            e.DailyRewards(),
		"daily_login_streak": e.Profile().DailyLoginStreak,
	})
}

// Notifications handles GET /progress/notifications.
func (h *ProgressHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	playerID, err := playerIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	e, err := h.svc.Engine(r.Context(), playerID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, e.Notifications())
}

var notificationKinds = []domain.NotificationKind{domain.NotifyLevelUp, domain.NotifyAchievement, domain.NotifyTrophy}

// ClearNotifications handles DELETE /progress/notifications[?kind=...].
// Without a kind every pending notification is cleared.
func (h *ProgressHandler) ClearNotifications(w http.ResponseWriter, r *http.Request) {
	playerID, err := playerIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	var kinds []domain.NotificationKind
	for _, k := range r.URL.Query()["kind"] {
		kind := domain.NotificationKind(k)
		if !slices.Contains(notificationKinds, kind) {
			RespondError(w, domain.ErrValidation(fmt.Sprintf("unknown notification kind: %s", k)))
			return
		}
		kinds = append(kinds, kind)
	}
	e, err := h.svc.Engine(r.Context(), playerID)
	if err != nil {
		RespondError(w, err)
		return
	}
	e.ClearNotifications(kinds...)
	RespondJSON(w, http.StatusNoContent, nil)
}

// StreamNotifications handles GET /progress/notifications/stream as server-sent events.
func (h *ProgressHandler) StreamNotifications(w http.ResponseWriter, r *http.Request) {
	playerID, err := playerIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		RespondError(w, domain.ErrInternal("streaming unsupported", nil))
		return
	}

	sub := h.hub.Subscribe(playerID)
	defer h.hub.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case n, ok := <-sub.C:
			if !ok {
				return
			}
			data, err := json.Marshal(n)
			if err != nil {
				h.logger.Error("encode notification", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", n.Kind, data)
			flusher.Flush()
		case <-keepAlive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}
