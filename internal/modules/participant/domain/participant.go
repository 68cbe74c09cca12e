package domain

import (
	"time"

	"github.com/google/uuid"
)

// Participant is one joined device/person within a session. The holder of a
// participant id acts as that participant; the trust boundary is the device,
// not a credential.
type Participant struct {
	ID           uuid.UUID `db:"id" json:"id"`
	SessionID    uuid.UUID `db:"session_id" json:"sessionId"`
	DisplayName  string    `db:"display_name" json:"displayName"`
	ColorCode    string    `db:"color_code" json:"colorCode"`
	JoinedAt     time.Time `db:"joined_at" json:"joinedAt"`
	LastActiveAt time.Time `db:"last_active_at" json:"lastActiveAt"`
}

// Presence colors. Simultaneous joiners landing on the same color is
// tolerated; this is a UX nicety, not a uniqueness invariant.
var colorPalette = []string{
	"#E63946",
	"#F4A261",
	"#E9C46A",
	"#2A9D8F",
	"#264653",
	"#457B9D",
	"#8338EC",
	"#FF006E",
	"#3A86FF",
	"#06D6A0",
}

// ColorFor derives a stable presence color from the participant id.
func ColorFor(id uuid.UUID) string {
	return colorPalette[int(id[0])%len(colorPalette)]
}

func NewParticipant(sessionID uuid.UUID, displayName string, now time.Time) Participant {
	id := uuid.New()

	return Participant{
		ID:           id,
		SessionID:    sessionID,
		DisplayName:  displayName,
		ColorCode:    ColorFor(id),
		JoinedAt:     now,
		LastActiveAt: now,
	}
}
