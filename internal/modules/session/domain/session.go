package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is a session's lifecycle state. Only the explicit states are ever
// persisted; expiring_soon and read-time expired are derived from
// (expires_at, now, threshold) wherever status is needed.
type Status string

const (
	StatusActive       Status = "active"
	StatusExpiringSoon Status = "expiring_soon"
	StatusExpired      Status = "expired"
	StatusReset        Status = "reset"
)

// Session is the time-boxed collaborative ordering context for one table.
type Session struct {
	ID             uuid.UUID `db:"id" json:"id"`
	TableID        string    `db:"table_id" json:"tableId"`
	RestaurantID   uuid.UUID `db:"restaurant_id" json:"restaurantId"`
	Status         Status    `db:"status" json:"status"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	ExpiresAt      time.Time `db:"expires_at" json:"expiresAt"`
	LastActivityAt time.Time `db:"last_activity_at" json:"lastActivityAt"`
}

func NewSession(tableID string, restaurantID uuid.UUID, now time.Time, duration time.Duration) Session {
	return Session{
		ID:             uuid.New(),
		TableID:        tableID,
		RestaurantID:   restaurantID,
		Status:         StatusActive,
		CreatedAt:      now,
		ExpiresAt:      now.Add(duration),
		LastActivityAt: now,
	}
}

// DeriveStatus is the canonical read-time status function. Finalized states
// stick; otherwise status is purely a function of remaining time.
func DeriveStatus(s Session, now time.Time, threshold time.Duration) Status {
	if s.Status == StatusReset || s.Status == StatusExpired {
		return s.Status
	}

	remaining := s.ExpiresAt.Sub(now)
	switch {
	case remaining <= 0:
		return StatusExpired
	case remaining <= threshold:
		return StatusExpiringSoon
	default:
		return StatusActive
	}
}

// Extend computes the new expiry for an extension request. The extension is
// measured from the greater of now and the current expiry, so extending an
// already-expired session revives it. That is policy, not an accident.
func Extend(expiresAt, now time.Time, additionalMinutes int) time.Time {
	base := expiresAt
	if now.After(base) {
		base = now
	}

	return base.Add(time.Duration(additionalMinutes) * time.Minute)
}

// FormatTimeRemaining renders the remaining lifetime for display. A zero or
// past expiry reads as Expired.
func FormatTimeRemaining(expiresAt, now time.Time) string {
	if expiresAt.IsZero() {
		return "Expired"
	}

	remaining := expiresAt.Sub(now)
	if remaining <= 0 {
		return "Expired"
	}

	totalMinutes := int(remaining.Minutes())
	hours := totalMinutes / 60
	minutes := totalMinutes % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm remaining", hours, minutes)
	}

	return fmt.Sprintf("%dm remaining", minutes)
}
