package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dinesync/dinesync/internal/config"
	"github.com/dinesync/dinesync/internal/modules/core"
	"github.com/dinesync/dinesync/internal/modules/realtime"
	"github.com/dinesync/dinesync/internal/modules/session/domain"
	"github.com/dinesync/dinesync/internal/modules/validation"

	"github.com/eskrenkovic/mediator-go"
	"github.com/eskrenkovic/tql"
	"github.com/go-chi/chi"
)

const sessionsEntity = "table_sessions"

type ExtendSessionCommand struct {
	SessionID string `json:"sessionId"`

	// AdditionalMinutes is numeric-like on the wire; nil means the policy
	// default applies.
	AdditionalMinutes interface{} `json:"additionalMinutes"`
}

func (c ExtendSessionCommand) Validate() error {
	if _, ok := validation.NormalizeID(c.SessionID); !ok {
		return core.NewValidationError("sessionId", fmt.Sprintf("invalid session id - '%s'", c.SessionID))
	}

	if c.AdditionalMinutes != nil {
		if _, ok := validation.NormalizeMinutes(c.AdditionalMinutes); !ok {
			return core.NewValidationError(
				"additionalMinutes",
				fmt.Sprintf("additional minutes must be a whole number between %d and %d",
					validation.MinExtensionMinutes, validation.MaxExtensionMinutes),
			)
		}
	}

	return nil
}

type ExtendSessionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func HandleExtendSession(jw *core.JSONWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// An absent body is a valid extend request: the policy default
		// applies, same as `{}`.
		command, err := core.RequestBody[ExtendSessionCommand](r)
		if err != nil && !errors.Is(err, io.EOF) {
			jw.WriteBadRequest(w, r, core.ErrorBody{
				Message: "malformed request body",
				Code:    core.CodeValidationError,
			})
			return
		}
		command.SessionID = chi.URLParam(r, "id")

		response, err := mediator.Send[ExtendSessionCommand, ExtendSessionResponse](r.Context(), command)
		if err != nil {
			jw.WriteCommandError(w, r, err)
			return
		}

		jw.WriteOK(w, r, response)
	}
}

type ExtendSessionCommandHandler struct {
	db        *sql.DB
	publisher *realtime.Publisher
	policy    config.SessionPolicy
}

func NewExtendSessionCommandHandler(
	db *sql.DB,
	publisher *realtime.Publisher,
	policy config.SessionPolicy,
) *ExtendSessionCommandHandler {
	return &ExtendSessionCommandHandler{db, publisher, policy}
}

func (h *ExtendSessionCommandHandler) Handle(
	ctx context.Context,
	request ExtendSessionCommand,
) (ExtendSessionResponse, error) {
	minutes := h.policy.DefaultExtensionMinutes
	if request.AdditionalMinutes != nil {
		// Re-derive the validated value; Validate already rejected anything
		// out of bounds.
		normalized, ok := validation.NormalizeMinutes(request.AdditionalMinutes)
		if !ok {
			return ExtendSessionResponse{}, core.NewValidationError("additionalMinutes", "invalid additional minutes")
		}
		minutes = normalized
	}

	const query = `
		SELECT
			*
		FROM
			table_sessions
		WHERE
			id = $1;`
	session, err := tql.QueryFirst[domain.Session](ctx, h.db, query, request.SessionID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ExtendSessionResponse{}, core.NewNotFoundError(
			fmt.Sprintf("session '%s' not found", request.SessionID))
	case err != nil:
		return ExtendSessionResponse{}, core.NewServerError(err)
	}
	if session.Status == domain.StatusReset {
		return ExtendSessionResponse{}, core.NewNotFoundError(
			fmt.Sprintf("session '%s' is no longer current for its table", request.SessionID))
	}

	now := time.Now().UTC()
	previous := session

	// Measured from max(now, expires_at); a just-expired session is revived.
	session.ExpiresAt = domain.Extend(session.ExpiresAt, now, minutes)
	session.LastActivityAt = now
	session.Status = domain.StatusActive

	const stmt = `
		UPDATE
			table_sessions
		SET
			expires_at = $1,
			last_activity_at = $2,
			status = $3
		WHERE
			id = $4;`
	if _, err := tql.Exec(ctx, h.db, stmt, session.ExpiresAt, session.LastActivityAt, session.Status, session.ID); err != nil {
		return ExtendSessionResponse{}, core.NewServerError(err)
	}

	h.publisher.PublishUpdate(ctx, session.ID.String(), sessionsEntity, session, previous)

	return ExtendSessionResponse{
		Success: true,
		Message: fmt.Sprintf("session extended by %d minutes", minutes),
	}, nil
}
