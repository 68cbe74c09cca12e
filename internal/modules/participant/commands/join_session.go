package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dinesync/dinesync/internal/config"
	"github.com/dinesync/dinesync/internal/modules/core"
	"github.com/dinesync/dinesync/internal/modules/participant/domain"
	"github.com/dinesync/dinesync/internal/modules/realtime"
	sessiondomain "github.com/dinesync/dinesync/internal/modules/session/domain"
	"github.com/dinesync/dinesync/internal/modules/validation"

	"github.com/eskrenkovic/mediator-go"
	"github.com/eskrenkovic/tql"
	"github.com/go-chi/chi"
	"github.com/google/uuid"
)

const (
	sessionsEntity     = "table_sessions"
	participantsEntity = "session_participants"
)

// JoinSessionCommand adds a diner to the table's current session. The first
// joiner on a table with no live session bootstraps one.
type JoinSessionCommand struct {
	TableID      string `json:"tableId"`
	RestaurantID string `json:"restaurantId"`
	DisplayName  string `json:"displayName"`
}

func (c JoinSessionCommand) Validate() error {
	if _, ok := validation.NormalizeTableNumber(c.TableID); !ok {
		return core.NewValidationError("tableId", fmt.Sprintf("invalid table id - '%s'", c.TableID))
	}

	if _, ok := validation.NormalizeID(c.RestaurantID); !ok {
		return core.NewValidationError("restaurantId", fmt.Sprintf("invalid restaurant id - '%s'", c.RestaurantID))
	}

	if _, ok := validation.NormalizeDisplayName(c.DisplayName); !ok {
		return core.NewValidationError(
			"displayName",
			fmt.Sprintf("display name must be %d-%d printable characters after trimming",
				validation.MinDisplayNameLen, validation.MaxDisplayNameLen),
		)
	}

	return nil
}

type JoinSessionResponse struct {
	Success     bool                  `json:"success"`
	Participant domain.Participant    `json:"participant"`
	Session     sessiondomain.Session `json:"session"`
}

func HandleJoinSession(jw *core.JSONWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		command, err := core.RequestBody[JoinSessionCommand](r)
		if err != nil {
			jw.WriteBadRequest(w, r, core.ErrorBody{
				Message: "malformed request body",
				Code:    core.CodeValidationError,
			})
			return
		}
		command.TableID = chi.URLParam(r, "tableId")

		response, err := mediator.Send[JoinSessionCommand, JoinSessionResponse](r.Context(), command)
		if err != nil {
			jw.WriteCommandError(w, r, err)
			return
		}

		jw.WriteCreated(w, r, response)
	}
}

type JoinSessionCommandHandler struct {
	db        *sql.DB
	publisher *realtime.Publisher
	policy    config.SessionPolicy
}

func NewJoinSessionCommandHandler(
	db *sql.DB,
	publisher *realtime.Publisher,
	policy config.SessionPolicy,
) *JoinSessionCommandHandler {
	return &JoinSessionCommandHandler{db, publisher, policy}
}

func (h *JoinSessionCommandHandler) Handle(
	ctx context.Context,
	request JoinSessionCommand,
) (JoinSessionResponse, error) {
	displayName, ok := validation.NormalizeDisplayName(request.DisplayName)
	if !ok {
		return JoinSessionResponse{}, core.NewValidationError("displayName", "invalid display name")
	}

	restaurantID, err := uuid.Parse(request.RestaurantID)
	if err != nil {
		return JoinSessionResponse{}, core.NewValidationError("restaurantId", "invalid restaurant id")
	}

	now := time.Now().UTC()

	var session sessiondomain.Session
	var participant domain.Participant
	sessionCreated := false

	var finalized sessiondomain.Session
	var orphaned []domain.Participant
	sessionFinalized := false

	txFn := func(ctx context.Context, tx *sql.Tx) error {
		// FOR UPDATE serializes two first-joiners racing to bootstrap the
		// same table.
		const currentQuery = `
			SELECT
				*
			FROM
				table_sessions
			WHERE
				table_id = $1 AND restaurant_id = $2 AND status NOT IN ('expired', 'reset')
			ORDER BY
				created_at DESC
			LIMIT 1
			FOR UPDATE;`
		current, err := tql.QueryFirst[sessiondomain.Session](ctx, tx, currentQuery, request.TableID, restaurantID)

		needsFresh := false
		switch {
		case errors.Is(err, sql.ErrNoRows):
			needsFresh = true
		case err != nil:
			return err
		case sessiondomain.DeriveStatus(current, now, 0) == sessiondomain.StatusExpired:
			// The row outlived its expiry but the sweeper has not caught up.
			// Finalize it here exactly as cleanup would: mark it expired and
			// take its participants with it.
			const participantsQuery = `
				SELECT
					*
				FROM
					session_participants
				WHERE
					session_id = $1;`
			orphaned, err = tql.Query[domain.Participant](ctx, tx, participantsQuery, current.ID)
			if err != nil {
				return err
			}

			const finalizeStmt = `
				UPDATE
					table_sessions
				SET
					status = 'expired'
				WHERE
					id = $1;`
			if _, err := tql.Exec(ctx, tx, finalizeStmt, current.ID); err != nil {
				return err
			}

			const deleteParticipantsStmt = `
				DELETE FROM
					session_participants
				WHERE
					session_id = $1;`
			if _, err := tql.Exec(ctx, tx, deleteParticipantsStmt, current.ID); err != nil {
				return err
			}

			finalized = current
			sessionFinalized = true
			needsFresh = true
		}

		if needsFresh {
			session = sessiondomain.NewSession(request.TableID, restaurantID, now, h.policy.DefaultDuration)
			sessionCreated = true

			const insertSessionStmt = `
				INSERT INTO
					table_sessions (id, table_id, restaurant_id, status, created_at, expires_at, last_activity_at)
				VALUES
					(:id, :table_id, :restaurant_id, :status, :created_at, :expires_at, :last_activity_at);`
			if _, err := tql.Exec(ctx, tx, insertSessionStmt, session); err != nil {
				return err
			}
		} else {
			session = current
		}

		participant = domain.NewParticipant(session.ID, displayName, now)

		const insertParticipantStmt = `
			INSERT INTO
				session_participants (id, session_id, display_name, color_code, joined_at, last_active_at)
			VALUES
				(:id, :session_id, :display_name, :color_code, :joined_at, :last_active_at);`
		if _, err := tql.Exec(ctx, tx, insertParticipantStmt, participant); err != nil {
			return err
		}

		const touchSessionStmt = `
			UPDATE
				table_sessions
			SET
				last_activity_at = $1
			WHERE
				id = $2;`
		_, err = tql.Exec(ctx, tx, touchSessionStmt, now, session.ID)
		return err
	}

	if err := core.Tx(ctx, h.db, txFn); err != nil {
		return JoinSessionResponse{}, core.NewServerError(err)
	}

	if sessionFinalized {
		expired := finalized
		expired.Status = sessiondomain.StatusExpired
		h.publisher.PublishUpdate(ctx, finalized.ID.String(), sessionsEntity, expired, finalized)
		for _, orphan := range orphaned {
			h.publisher.PublishDelete(ctx, finalized.ID.String(), participantsEntity, orphan)
		}
	}

	if sessionCreated {
		h.publisher.PublishInsert(ctx, session.ID.String(), sessionsEntity, session)
	}
	h.publisher.PublishInsert(ctx, session.ID.String(), participantsEntity, participant)

	return JoinSessionResponse{
		Success:     true,
		Participant: participant,
		Session:     session,
	}, nil
}
