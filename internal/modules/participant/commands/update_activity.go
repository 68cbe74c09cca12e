package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dinesync/dinesync/internal/modules/core"
	"github.com/dinesync/dinesync/internal/modules/participant/domain"
	"github.com/dinesync/dinesync/internal/modules/realtime"
	"github.com/dinesync/dinesync/internal/modules/validation"

	"github.com/eskrenkovic/mediator-go"
	"github.com/eskrenkovic/tql"
	"github.com/go-chi/chi"
)

// UpdateParticipantActivityCommand bumps a participant's last-active
// timestamp and the owning session's last-activity timestamp. Concurrent
// bumps are last-write-wins; GREATEST keeps the value monotonic.
type UpdateParticipantActivityCommand struct {
	ParticipantID string `json:"participantId"`
}

func (c UpdateParticipantActivityCommand) Validate() error {
	if _, ok := validation.NormalizeID(c.ParticipantID); !ok {
		return core.NewValidationError("participantId", fmt.Sprintf("invalid participant id - '%s'", c.ParticipantID))
	}

	return nil
}

type UpdateParticipantActivityResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func HandleUpdateParticipantActivity(jw *core.JSONWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		command := UpdateParticipantActivityCommand{ParticipantID: chi.URLParam(r, "id")}

		response, err := mediator.Send[UpdateParticipantActivityCommand, UpdateParticipantActivityResponse](
			r.Context(),
			command,
		)
		if err != nil {
			jw.WriteCommandError(w, r, err)
			return
		}

		jw.WriteOK(w, r, response)
	}
}

type UpdateParticipantActivityCommandHandler struct {
	db        *sql.DB
	publisher *realtime.Publisher
}

func NewUpdateParticipantActivityCommandHandler(
	db *sql.DB,
	publisher *realtime.Publisher,
) *UpdateParticipantActivityCommandHandler {
	return &UpdateParticipantActivityCommandHandler{db, publisher}
}

func (h *UpdateParticipantActivityCommandHandler) Handle(
	ctx context.Context,
	request UpdateParticipantActivityCommand,
) (UpdateParticipantActivityResponse, error) {
	now := time.Now().UTC()

	var previous domain.Participant
	var updated domain.Participant

	txFn := func(ctx context.Context, tx *sql.Tx) error {
		const query = `
			SELECT
				*
			FROM
				session_participants
			WHERE
				id = $1;`
		participant, err := tql.QueryFirst[domain.Participant](ctx, tx, query, request.ParticipantID)
		if err != nil {
			return err
		}
		previous = participant

		const participantStmt = `
			UPDATE
				session_participants
			SET
				last_active_at = GREATEST(last_active_at, $1)
			WHERE
				id = $2;`
		if _, err := tql.Exec(ctx, tx, participantStmt, now, request.ParticipantID); err != nil {
			return err
		}

		const sessionStmt = `
			UPDATE
				table_sessions
			SET
				last_activity_at = GREATEST(last_activity_at, $1)
			WHERE
				id = $2;`
		if _, err := tql.Exec(ctx, tx, sessionStmt, now, participant.SessionID); err != nil {
			return err
		}

		updated = participant
		if now.After(updated.LastActiveAt) {
			updated.LastActiveAt = now
		}

		return nil
	}

	err := core.Tx(ctx, h.db, txFn)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return UpdateParticipantActivityResponse{}, core.NewNotFoundError(
			fmt.Sprintf("participant '%s' not found", request.ParticipantID))
	case err != nil:
		return UpdateParticipantActivityResponse{}, core.NewServerError(err)
	}

	h.publisher.PublishUpdate(ctx, updated.SessionID.String(), participantsEntity, updated, previous)

	return UpdateParticipantActivityResponse{
		Success: true,
		Message: "participant activity updated",
	}, nil
}
