package queries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dinesync/dinesync/internal/config"
	"github.com/dinesync/dinesync/internal/modules/core"
	"github.com/dinesync/dinesync/internal/modules/session/domain"
	"github.com/dinesync/dinesync/internal/modules/validation"

	"github.com/eskrenkovic/mediator-go"
	"github.com/eskrenkovic/tql"
	"github.com/go-chi/chi"
)

type GetTableSessionQuery struct {
	TableID      string
	RestaurantID string
}

func (q GetTableSessionQuery) Validate() error {
	if _, ok := validation.NormalizeTableNumber(q.TableID); !ok {
		return core.NewValidationError("tableId", fmt.Sprintf("invalid table id - '%s'", q.TableID))
	}

	if _, ok := validation.NormalizeID(q.RestaurantID); !ok {
		return core.NewValidationError("restaurantId", fmt.Sprintf("invalid restaurant id - '%s'", q.RestaurantID))
	}

	return nil
}

// GetTableSessionResponse carries the session together with its read-time
// derived status. The derived status is never persisted.
type GetTableSessionResponse struct {
	Session       domain.Session `json:"session"`
	Status        domain.Status  `json:"status"`
	TimeRemaining string         `json:"timeRemaining"`
}

func HandleGetTableSession(jw *core.JSONWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		restaurantIDParam, found := r.URL.Query()["restaurantId"]
		if !found {
			jw.WriteBadRequest(w, r, core.ErrorBody{
				Message: "missing required query param 'restaurantId'",
				Field:   "restaurantId",
				Code:    core.CodeValidationError,
			})
			return
		}

		query := GetTableSessionQuery{
			TableID:      chi.URLParam(r, "tableId"),
			RestaurantID: restaurantIDParam[0],
		}

		response, err := mediator.Send[GetTableSessionQuery, GetTableSessionResponse](r.Context(), query)
		if err != nil {
			jw.WriteCommandError(w, r, err)
			return
		}

		jw.WriteOK(w, r, response)
	}
}

type GetTableSessionQueryHandler struct {
	db     *sql.DB
	policy config.SessionPolicy
}

func NewGetTableSessionQueryHandler(db *sql.DB, policy config.SessionPolicy) *GetTableSessionQueryHandler {
	return &GetTableSessionQueryHandler{db, policy}
}

func (h *GetTableSessionQueryHandler) Handle(
	ctx context.Context,
	request GetTableSessionQuery,
) (GetTableSessionResponse, error) {
	const query = `
		SELECT
			*
		FROM
			table_sessions
		WHERE
			table_id = $1 AND restaurant_id = $2 AND status NOT IN ('expired', 'reset')
		ORDER BY
			created_at DESC
		LIMIT 1;`
	session, err := tql.QueryFirst[domain.Session](ctx, h.db, query, request.TableID, request.RestaurantID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return GetTableSessionResponse{}, core.NewNotFoundError(
			fmt.Sprintf("no current session for table '%s'", request.TableID))
	case err != nil:
		return GetTableSessionResponse{}, core.NewServerError(err)
	}

	now := time.Now().UTC()

	return GetTableSessionResponse{
		Session:       session,
		Status:        domain.DeriveStatus(session, now, h.policy.ExpiryThreshold),
		TimeRemaining: domain.FormatTimeRemaining(session.ExpiresAt, now),
	}, nil
}
