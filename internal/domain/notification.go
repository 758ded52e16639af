package domain

import "time"

// NotificationKind names one of the three alert conditions shown to the user.
type NotificationKind string

const (
	NotifyLevelUp     NotificationKind = "level_up"
	NotifyAchievement NotificationKind = "achievement"
	NotifyTrophy      NotificationKind = "trophy"
)

// Notification is a single alert raised by the engine.
// Exactly one of Level, Achievement, Trophy is set, matching Kind.
type Notification struct {
	Kind        NotificationKind `json:"kind"`
	Level       *Level           `json:"level,omitempty"`
	Achievement *Achievement     `json:"achievement,omitempty"`
	Trophy      *Trophy          `json:"trophy,omitempty"`
	RaisedAt    time.Time        `json:"raised_at"`
}

// PendingNotifications holds the uncleared alert per kind.
type PendingNotifications struct {
	LevelUp     *Notification `json:"level_up,omitempty"`
	Achievement *Notification `json:"achievement,omitempty"`
	Trophy      *Notification `json:"trophy,omitempty"`
}

// Any reports whether at least one notification is pending.
func (p PendingNotifications) Any() bool {
	return p.LevelUp != nil || p.Achievement != nil || p.Trophy != nil
}
