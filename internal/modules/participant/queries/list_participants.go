package queries

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/dinesync/dinesync/internal/modules/core"
	"github.com/dinesync/dinesync/internal/modules/participant/domain"
	"github.com/dinesync/dinesync/internal/modules/validation"

	"github.com/eskrenkovic/mediator-go"
	"github.com/eskrenkovic/tql"
	"github.com/go-chi/chi"
)

type ListParticipantsQuery struct {
	SessionID string
}

func (q ListParticipantsQuery) Validate() error {
	if _, ok := validation.NormalizeID(q.SessionID); !ok {
		return core.NewValidationError("sessionId", fmt.Sprintf("invalid session id - '%s'", q.SessionID))
	}

	return nil
}

func HandleListParticipants(jw *core.JSONWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := ListParticipantsQuery{SessionID: chi.URLParam(r, "id")}

		response, err := mediator.Send[ListParticipantsQuery, []domain.Participant](r.Context(), query)
		if err != nil {
			jw.WriteCommandError(w, r, err)
			return
		}

		jw.WriteOK(w, r, response)
	}
}

type ListParticipantsQueryHandler struct {
	db *sql.DB
}

func NewListParticipantsQueryHandler(db *sql.DB) *ListParticipantsQueryHandler {
	return &ListParticipantsQueryHandler{db}
}

func (h *ListParticipantsQueryHandler) Handle(
	ctx context.Context,
	request ListParticipantsQuery,
) ([]domain.Participant, error) {
	const query = `
		SELECT
			*
		FROM
			session_participants
		WHERE
			session_id = $1
		ORDER BY
			joined_at ASC;`
	participants, err := tql.Query[domain.Participant](ctx, h.db, query, request.SessionID)
	if err != nil {
		return nil, core.NewServerError(err)
	}

	return participants, nil
}
