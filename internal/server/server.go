package server

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"

	"github.com/dinesync/dinesync/internal/config"
	"github.com/dinesync/dinesync/internal/modules/activity"
	"github.com/dinesync/dinesync/internal/modules/core"
	participantcommands "github.com/dinesync/dinesync/internal/modules/participant/commands"
	participantdomain "github.com/dinesync/dinesync/internal/modules/participant/domain"
	participantqueries "github.com/dinesync/dinesync/internal/modules/participant/queries"
	"github.com/dinesync/dinesync/internal/modules/realtime"
	sessioncommands "github.com/dinesync/dinesync/internal/modules/session/commands"
	sessionqueries "github.com/dinesync/dinesync/internal/modules/session/queries"
	"github.com/dinesync/dinesync/internal/modules/session/sweeper"

	"github.com/eskrenkovic/mediator-go"
	"github.com/eskrenkovic/migrate-go"
	"github.com/go-chi/chi"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

type Server interface {
	Start() error
	Stop() error
}

var _ Server = &HTTPServer{}

// HTTPServer is the composition root. Everything gets wired here: store,
// migrations, broker, mediator handlers, routes, and the sweeper.
type HTTPServer struct {
	server  *http.Server
	db      *sql.DB
	broker  realtime.Broker
	sweeper *sweeper.Sweeper
	logger  *zap.Logger
}

func NewHTTPServer(conf config.Config) (Server, error) {
	baseCtx := context.Background()
	logger := conf.Logger

	db, err := sql.Open("postgres", conf.DatabaseURL)
	if err != nil {
		return nil, err
	}

	if err := migrate.Run(baseCtx, db, conf.MigrationsPath); err != nil {
		return nil, err
	}

	broker, err := realtime.NewRedisBroker(conf.RedisURL)
	if err != nil {
		return nil, err
	}

	publisher := realtime.NewPublisher(broker, logger)

	requestLoggingBehavior := core.RequestLoggingBehavior{Logger: logger.Named("mediator")}
	handlerErrorLoggingBehavior := core.HandlerErrorLoggingBehavior{Logger: logger.Named("mediator")}
	requestValidationBehavior := core.RequestValidationBehavior{}

	mediator.RegisterPipelineBehavior(&requestLoggingBehavior)
	mediator.RegisterPipelineBehavior(&handlerErrorLoggingBehavior)
	mediator.RegisterPipelineBehavior(&requestValidationBehavior)

	// handler registration

	// session lifecycle

	extendSessionHandler := sessioncommands.NewExtendSessionCommandHandler(db, publisher, conf.Policy)
	err = mediator.RegisterRequestHandler[sessioncommands.ExtendSessionCommand, sessioncommands.ExtendSessionResponse](
		extendSessionHandler,
	)
	if err != nil {
		return nil, err
	}

	staffResetHandler := sessioncommands.NewStaffResetTableCommandHandler(db, publisher, conf.Policy, logger)
	err = mediator.RegisterRequestHandler[sessioncommands.StaffResetTableCommand, sessioncommands.StaffResetTableResponse](
		staffResetHandler,
	)
	if err != nil {
		return nil, err
	}

	cleanupHandler := sessioncommands.NewCleanupExpiredSessionsCommandHandler(db, publisher, logger)
	err = mediator.RegisterRequestHandler[sessioncommands.CleanupExpiredSessionsCommand, sessioncommands.CleanupExpiredSessionsResponse](
		cleanupHandler,
	)
	if err != nil {
		return nil, err
	}

	getTableSessionHandler := sessionqueries.NewGetTableSessionQueryHandler(db, conf.Policy)
	err = mediator.RegisterRequestHandler[sessionqueries.GetTableSessionQuery, sessionqueries.GetTableSessionResponse](
		getTableSessionHandler,
	)
	if err != nil {
		return nil, err
	}

	// participants

	joinSessionHandler := participantcommands.NewJoinSessionCommandHandler(db, publisher, conf.Policy)
	err = mediator.RegisterRequestHandler[participantcommands.JoinSessionCommand, participantcommands.JoinSessionResponse](
		joinSessionHandler,
	)
	if err != nil {
		return nil, err
	}

	leaveSessionHandler := participantcommands.NewLeaveSessionCommandHandler(db, publisher)
	err = mediator.RegisterRequestHandler[participantcommands.LeaveSessionCommand, core.Unit](
		leaveSessionHandler,
	)
	if err != nil {
		return nil, err
	}

	updateActivityHandler := participantcommands.NewUpdateParticipantActivityCommandHandler(db, publisher)
	err = mediator.RegisterRequestHandler[participantcommands.UpdateParticipantActivityCommand, participantcommands.UpdateParticipantActivityResponse](
		updateActivityHandler,
	)
	if err != nil {
		return nil, err
	}

	listParticipantsHandler := participantqueries.NewListParticipantsQueryHandler(db)
	err = mediator.RegisterRequestHandler[participantqueries.ListParticipantsQuery, []participantdomain.Participant](
		listParticipantsHandler,
	)
	if err != nil {
		return nil, err
	}

	// sweeper

	sessionSweeper, err := sweeper.New(conf.RedisURL, conf.Policy.CleanupInterval, logger)
	if err != nil {
		return nil, err
	}

	// http

	jw := core.NewJSONWriter(logger)

	trackerOpts := activity.Options{
		Debounce:          conf.Policy.ActivityDebounce,
		PulseInterval:     conf.Policy.ActivityPulse,
		HeartbeatInterval: conf.Policy.ActivityHeartbeat,
	}

	r := chi.NewRouter()
	r.Use(core.CorrelationIDHTTPMiddleware)

	r.Get("/tables/{tableId}/session", sessionqueries.HandleGetTableSession(jw))
	r.Post("/tables/{tableId}/participants", participantcommands.HandleJoinSession(jw))
	r.Post("/tables/{tableId}/actions/staff-reset", sessioncommands.HandleStaffResetTable(jw))

	r.Post("/tables/sessions/{id}/actions/extend", sessioncommands.HandleExtendSession(jw))
	r.Post("/tables/sessions/actions/cleanup", sessioncommands.HandleCleanupExpiredSessions(jw))
	r.Get("/tables/sessions/{id}/participants", participantqueries.HandleListParticipants(jw))
	r.Get("/tables/sessions/{id}/events", realtime.HandleEvents(broker, activityReporter{}, trackerOpts, logger))

	r.Delete("/tables/sessions/participants/{id}", participantcommands.HandleLeaveSession(jw))
	r.Put("/tables/sessions/participants/{id}/activity", participantcommands.HandleUpdateParticipantActivity(jw))

	server := http.Server{
		Addr:    net.JoinHostPort("", fmt.Sprintf("%d", conf.Port)),
		Handler: r,
	}

	return &HTTPServer{
		server:  &server,
		db:      db,
		broker:  broker,
		sweeper: sessionSweeper,
		logger:  logger,
	}, nil
}

func (s *HTTPServer) Start() error {
	if err := s.sweeper.Start(); err != nil {
		return err
	}

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

func (s *HTTPServer) Stop() error {
	s.sweeper.Stop()

	if err := s.server.Close(); err != nil {
		s.logger.Error("failed to close http server", zap.Error(err))
	}

	if err := s.broker.Close(); err != nil {
		s.logger.Error("failed to close broker", zap.Error(err))
	}

	return s.db.Close()
}

// activityReporter bridges the activity tracker to the participant module
// through the mediator, so socket-driven liveness flows through the same
// pipeline as the HTTP surface.
type activityReporter struct{}

func (activityReporter) MarkActive(ctx context.Context, participantID string) error {
	_, err := mediator.Send[participantcommands.UpdateParticipantActivityCommand, participantcommands.UpdateParticipantActivityResponse](
		ctx,
		participantcommands.UpdateParticipantActivityCommand{ParticipantID: participantID},
	)
	return err
}
