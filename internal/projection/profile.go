package projection

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/habitquest/platform/internal/domain"
)

// DefaultProfileTTL applies when UpdateProfile is given no ttl.
const DefaultProfileTTL = 5 * time.Minute

func profileKey(userID uuid.UUID) string {
	return fmt.Sprintf("projection:progress:%s", userID)
}

// UpdateProfile caches a user's progress snapshot for public reads.
func UpdateProfile(ctx context.Context, store Store, snap domain.ProfileSnapshot, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultProfileTTL
	}
	return SetJSON(ctx, store, profileKey(snap.UserID), snap, ttl)
}

// GetProfile retrieves a cached progress snapshot.
func GetProfile(ctx context.Context, store Store, userID uuid.UUID) (*domain.ProfileSnapshot, error) {
	var snap domain.ProfileSnapshot
	if err := GetJSON(ctx, store, profileKey(userID), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// InvalidateProfile removes a user's cached snapshot.
func InvalidateProfile(ctx context.Context, store Store, userID uuid.UUID) error {
	return store.Delete(ctx, profileKey(userID))
}
