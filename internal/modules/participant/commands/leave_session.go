package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/dinesync/dinesync/internal/modules/core"
	"github.com/dinesync/dinesync/internal/modules/participant/domain"
	"github.com/dinesync/dinesync/internal/modules/realtime"
	"github.com/dinesync/dinesync/internal/modules/validation"

	"github.com/eskrenkovic/mediator-go"
	"github.com/eskrenkovic/tql"
	"github.com/go-chi/chi"
)

// LeaveSessionCommand removes a participant. The session keeps running even
// when the last participant leaves; sessions expire by time, not occupancy.
type LeaveSessionCommand struct {
	ParticipantID string `json:"participantId"`
}

func (c LeaveSessionCommand) Validate() error {
	if _, ok := validation.NormalizeID(c.ParticipantID); !ok {
		return core.NewValidationError("participantId", fmt.Sprintf("invalid participant id - '%s'", c.ParticipantID))
	}

	return nil
}

func HandleLeaveSession(jw *core.JSONWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		command := LeaveSessionCommand{ParticipantID: chi.URLParam(r, "id")}

		_, err := mediator.Send[LeaveSessionCommand, core.Unit](r.Context(), command)
		if err != nil {
			jw.WriteCommandError(w, r, err)
			return
		}

		jw.WriteNoContent(w, r)
	}
}

type LeaveSessionCommandHandler struct {
	db        *sql.DB
	publisher *realtime.Publisher
}

func NewLeaveSessionCommandHandler(db *sql.DB, publisher *realtime.Publisher) *LeaveSessionCommandHandler {
	return &LeaveSessionCommandHandler{db, publisher}
}

func (h *LeaveSessionCommandHandler) Handle(
	ctx context.Context,
	request LeaveSessionCommand,
) (core.Unit, error) {
	const query = `
		SELECT
			*
		FROM
			session_participants
		WHERE
			id = $1;`
	participant, err := tql.QueryFirst[domain.Participant](ctx, h.db, query, request.ParticipantID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return core.Unit{}, core.NewNotFoundError(
			fmt.Sprintf("participant '%s' not found", request.ParticipantID))
	case err != nil:
		return core.Unit{}, core.NewServerError(err)
	}

	const stmt = `
		DELETE FROM
			session_participants
		WHERE
			id = $1;`
	if _, err := tql.Exec(ctx, h.db, stmt, request.ParticipantID); err != nil {
		return core.Unit{}, core.NewServerError(err)
	}

	h.publisher.PublishDelete(ctx, participant.SessionID.String(), participantsEntity, participant)

	return core.Unit{}, nil
}
