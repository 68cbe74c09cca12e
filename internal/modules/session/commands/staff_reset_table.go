package commands

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/dinesync/dinesync/internal/config"
	"github.com/dinesync/dinesync/internal/modules/core"
	participantdomain "github.com/dinesync/dinesync/internal/modules/participant/domain"
	"github.com/dinesync/dinesync/internal/modules/realtime"
	"github.com/dinesync/dinesync/internal/modules/session/domain"
	"github.com/dinesync/dinesync/internal/modules/validation"

	"github.com/eskrenkovic/mediator-go"
	"github.com/eskrenkovic/tql"
	"github.com/go-chi/chi"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const participantsEntity = "session_participants"

// StaffResetTableCommand invalidates a table's current session and starts a
// fresh one. Staff-scoped: the staff identifier only needs to be well
// formed, there is no ownership check against the session being replaced.
type StaffResetTableCommand struct {
	TableID      string `json:"tableId"`
	RestaurantID string `json:"restaurantId"`
	StaffID      string `json:"staffId"`
}

func (c StaffResetTableCommand) Validate() error {
	if _, ok := validation.NormalizeTableNumber(c.TableID); !ok {
		return core.NewValidationError("tableId", fmt.Sprintf("invalid table id - '%s'", c.TableID))
	}

	if _, ok := validation.NormalizeID(c.RestaurantID); !ok {
		return core.NewValidationError("restaurantId", fmt.Sprintf("invalid restaurant id - '%s'", c.RestaurantID))
	}

	if _, ok := validation.NormalizeID(c.StaffID); !ok {
		return core.NewValidationError("staffId", fmt.Sprintf("invalid staff id - '%s'", c.StaffID))
	}

	return nil
}

type StaffResetTableResponse struct {
	Success bool           `json:"success"`
	Session domain.Session `json:"session"`
	Message string         `json:"message"`
}

func HandleStaffResetTable(jw *core.JSONWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		command, err := core.RequestBody[StaffResetTableCommand](r)
		if err != nil {
			jw.WriteBadRequest(w, r, core.ErrorBody{
				Message: "malformed request body",
				Code:    core.CodeValidationError,
			})
			return
		}
		command.TableID = chi.URLParam(r, "tableId")

		response, err := mediator.Send[StaffResetTableCommand, StaffResetTableResponse](r.Context(), command)
		if err != nil {
			jw.WriteCommandError(w, r, err)
			return
		}

		jw.WriteOK(w, r, response)
	}
}

type StaffResetTableCommandHandler struct {
	db        *sql.DB
	publisher *realtime.Publisher
	policy    config.SessionPolicy
	logger    *zap.Logger
}

func NewStaffResetTableCommandHandler(
	db *sql.DB,
	publisher *realtime.Publisher,
	policy config.SessionPolicy,
	logger *zap.Logger,
) *StaffResetTableCommandHandler {
	return &StaffResetTableCommandHandler{db, publisher, policy, logger.Named("session.staff-reset")}
}

func (h *StaffResetTableCommandHandler) Handle(
	ctx context.Context,
	request StaffResetTableCommand,
) (StaffResetTableResponse, error) {
	restaurantID, err := uuid.Parse(request.RestaurantID)
	if err != nil {
		return StaffResetTableResponse{}, core.NewValidationError("restaurantId", "invalid restaurant id")
	}

	now := time.Now().UTC()
	fresh := domain.NewSession(request.TableID, restaurantID, now, h.policy.DefaultDuration)

	var replaced []domain.Session
	var removed []participantdomain.Participant

	txFn := func(ctx context.Context, tx *sql.Tx) error {
		const currentQuery = `
			SELECT
				*
			FROM
				table_sessions
			WHERE
				table_id = $1 AND restaurant_id = $2 AND status NOT IN ('expired', 'reset');`
		current, err := tql.Query[domain.Session](ctx, tx, currentQuery, request.TableID, restaurantID)
		if err != nil {
			return err
		}
		replaced = current

		for _, old := range current {
			const participantsQuery = `
				SELECT
					*
				FROM
					session_participants
				WHERE
					session_id = $1;`
			participants, err := tql.Query[participantdomain.Participant](ctx, tx, participantsQuery, old.ID)
			if err != nil {
				return err
			}
			removed = append(removed, participants...)

			const resetStmt = `
				UPDATE
					table_sessions
				SET
					status = 'reset'
				WHERE
					id = $1;`
			if _, err := tql.Exec(ctx, tx, resetStmt, old.ID); err != nil {
				return err
			}

			const deleteParticipantsStmt = `
				DELETE FROM
					session_participants
				WHERE
					session_id = $1;`
			if _, err := tql.Exec(ctx, tx, deleteParticipantsStmt, old.ID); err != nil {
				return err
			}
		}

		const insertStmt = `
			INSERT INTO
				table_sessions (id, table_id, restaurant_id, status, created_at, expires_at, last_activity_at)
			VALUES
				(:id, :table_id, :restaurant_id, :status, :created_at, :expires_at, :last_activity_at);`
		_, err = tql.Exec(ctx, tx, insertStmt, fresh)
		return err
	}

	if err := core.Tx(ctx, h.db, txFn); err != nil {
		return StaffResetTableResponse{}, core.NewServerError(err)
	}

	h.logger.Info("table session reset by staff",
		zap.String("table_id", request.TableID),
		zap.String("staff_id", request.StaffID),
		zap.String("new_session_id", fresh.ID.String()),
		zap.Int("replaced_sessions", len(replaced)))

	for _, old := range replaced {
		reset := old
		reset.Status = domain.StatusReset
		h.publisher.PublishUpdate(ctx, old.ID.String(), sessionsEntity, reset, old)
	}
	for _, participant := range removed {
		h.publisher.PublishDelete(ctx, participant.SessionID.String(), participantsEntity, participant)
	}
	h.publisher.PublishInsert(ctx, fresh.ID.String(), sessionsEntity, fresh)

	return StaffResetTableResponse{
		Success: true,
		Session: fresh,
		Message: fmt.Sprintf("table '%s' session reset", request.TableID),
	}, nil
}
