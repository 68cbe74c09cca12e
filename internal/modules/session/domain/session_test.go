package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 5, 14, 18, 0, 0, 0, time.UTC)

func Test_DeriveStatus_Active_When_Beyond_Threshold(t *testing.T) {
	// Arrange
	session := Session{Status: StatusActive, ExpiresAt: now.Add(2 * time.Hour)}

	// Act
	status := DeriveStatus(session, now, 30*time.Minute)

	// Assert
	require.Equal(t, StatusActive, status)
}

func Test_DeriveStatus_ExpiringSoon_Within_Threshold(t *testing.T) {
	session := Session{Status: StatusActive, ExpiresAt: now.Add(29 * time.Minute)}

	status := DeriveStatus(session, now, 30*time.Minute)

	require.Equal(t, StatusExpiringSoon, status)
}

func Test_DeriveStatus_Expired_When_Past_Expiry(t *testing.T) {
	session := Session{Status: StatusActive, ExpiresAt: now.Add(-time.Second)}

	status := DeriveStatus(session, now, 30*time.Minute)

	require.Equal(t, StatusExpired, status)
}

func Test_DeriveStatus_Finalized_States_Stick(t *testing.T) {
	reset := Session{Status: StatusReset, ExpiresAt: now.Add(2 * time.Hour)}
	expired := Session{Status: StatusExpired, ExpiresAt: now.Add(2 * time.Hour)}

	require.Equal(t, StatusReset, DeriveStatus(reset, now, 30*time.Minute))
	require.Equal(t, StatusExpired, DeriveStatus(expired, now, 30*time.Minute))
}

func Test_Extend_Moves_Expiry_Forward_From_Current_Expiry(t *testing.T) {
	// Arrange
	expiresAt := now.Add(time.Hour)

	// Act
	extended := Extend(expiresAt, now, 30)

	// Assert
	require.Equal(t, expiresAt.Add(30*time.Minute), extended)
	require.True(t, extended.After(expiresAt))
}

func Test_Extend_Revives_Expired_Session_From_Now(t *testing.T) {
	// Arrange - expiry an hour in the past
	expiresAt := now.Add(-time.Hour)

	// Act
	extended := Extend(expiresAt, now, 45)

	// Assert - measured from now, not from the stale expiry
	require.Equal(t, now.Add(45*time.Minute), extended)
}

func Test_Extend_Never_Moves_Expiry_Backward(t *testing.T) {
	expiresAt := now.Add(time.Hour)

	for _, minutes := range []int{1, 60, 480} {
		extended := Extend(expiresAt, now, minutes)
		require.True(t, extended.After(expiresAt))
	}
}

func Test_FormatTimeRemaining_Renders_Hours_And_Minutes(t *testing.T) {
	require.Equal(t, "2h 5m remaining", FormatTimeRemaining(now.Add(125*time.Minute), now))
	require.Equal(t, "1h 0m remaining", FormatTimeRemaining(now.Add(time.Hour), now))
}

func Test_FormatTimeRemaining_Renders_Minutes_Only_Under_An_Hour(t *testing.T) {
	require.Equal(t, "45m remaining", FormatTimeRemaining(now.Add(45*time.Minute), now))
	require.Equal(t, "0m remaining", FormatTimeRemaining(now.Add(30*time.Second), now))
}

func Test_FormatTimeRemaining_Expired_For_Past_Or_Zero_Expiry(t *testing.T) {
	require.Equal(t, "Expired", FormatTimeRemaining(now, now))
	require.Equal(t, "Expired", FormatTimeRemaining(now.Add(-time.Minute), now))
	require.Equal(t, "Expired", FormatTimeRemaining(time.Time{}, now))
}

func Test_FormatTimeRemaining_Is_Deterministic(t *testing.T) {
	expiresAt := now.Add(90 * time.Minute)

	first := FormatTimeRemaining(expiresAt, now)
	second := FormatTimeRemaining(expiresAt, now)

	require.Equal(t, first, second)
	require.Equal(t, "1h 30m remaining", first)
}

func Test_NewSession_Expiry_Is_After_Creation(t *testing.T) {
	// Act
	session := NewSession("table-4", uuid.New(), now, 2*time.Hour)

	// Assert
	require.Equal(t, StatusActive, session.Status)
	require.Equal(t, now, session.CreatedAt)
	require.Equal(t, now.Add(2*time.Hour), session.ExpiresAt)
	require.False(t, session.ExpiresAt.Before(session.CreatedAt))
}
