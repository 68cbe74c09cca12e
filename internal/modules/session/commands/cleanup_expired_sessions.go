package commands

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/dinesync/dinesync/internal/modules/core"
	"github.com/dinesync/dinesync/internal/modules/realtime"
	"github.com/dinesync/dinesync/internal/modules/session/domain"

	"github.com/eskrenkovic/mediator-go"
	"github.com/eskrenkovic/tql"
	"go.uber.org/zap"
)

// CleanupExpiredSessionsCommand finalizes every session past its expiry.
// Idempotent: a second run with no new expirations reports zero.
type CleanupExpiredSessionsCommand struct{}

type CleanupExpiredSessionsResponse struct {
	Success           bool   `json:"success"`
	SessionsCleanedUp int    `json:"sessionsCleanedUp"`
	Message           string `json:"message"`
}

func HandleCleanupExpiredSessions(jw *core.JSONWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response, err := mediator.Send[CleanupExpiredSessionsCommand, CleanupExpiredSessionsResponse](
			r.Context(),
			CleanupExpiredSessionsCommand{},
		)
		if err != nil {
			jw.WriteCommandError(w, r, err)
			return
		}

		jw.WriteOK(w, r, response)
	}
}

type CleanupExpiredSessionsCommandHandler struct {
	db        *sql.DB
	publisher *realtime.Publisher
	logger    *zap.Logger
}

func NewCleanupExpiredSessionsCommandHandler(
	db *sql.DB,
	publisher *realtime.Publisher,
	logger *zap.Logger,
) *CleanupExpiredSessionsCommandHandler {
	return &CleanupExpiredSessionsCommandHandler{db, publisher, logger.Named("session.cleanup")}
}

func (h *CleanupExpiredSessionsCommandHandler) Handle(
	ctx context.Context,
	request CleanupExpiredSessionsCommand,
) (CleanupExpiredSessionsResponse, error) {
	now := time.Now().UTC()

	var finalized []domain.Session

	txFn := func(ctx context.Context, tx *sql.Tx) error {
		const expiredQuery = `
			SELECT
				*
			FROM
				table_sessions
			WHERE
				expires_at <= $1 AND status = 'active';`
		expired, err := tql.Query[domain.Session](ctx, tx, expiredQuery, now)
		if err != nil {
			return err
		}
		finalized = expired

		// Zero matches is a successful no-op run.
		if len(expired) == 0 {
			return nil
		}

		const finalizeStmt = `
			UPDATE
				table_sessions
			SET
				status = 'expired'
			WHERE
				expires_at <= $1 AND status = 'active';`
		if _, err := tql.Exec(ctx, tx, finalizeStmt, now); err != nil {
			return err
		}

		// Participants do not outlive their session.
		for _, session := range expired {
			const deleteParticipantsStmt = `
				DELETE FROM
					session_participants
				WHERE
					session_id = $1;`
			if _, err := tql.Exec(ctx, tx, deleteParticipantsStmt, session.ID); err != nil {
				return err
			}
		}

		return nil
	}

	if err := core.Tx(ctx, h.db, txFn); err != nil {
		return CleanupExpiredSessionsResponse{}, core.NewServerError(err)
	}

	for _, old := range finalized {
		expired := old
		expired.Status = domain.StatusExpired
		h.publisher.PublishUpdate(ctx, old.ID.String(), sessionsEntity, expired, old)
	}

	if len(finalized) > 0 {
		h.logger.Info("finalized expired sessions", zap.Int("count", len(finalized)))
	}

	return CleanupExpiredSessionsResponse{
		Success:           true,
		SessionsCleanedUp: len(finalized),
		Message:           fmt.Sprintf("cleaned up %d expired sessions", len(finalized)),
	}, nil
}
