// Package sweeper runs the authoritative expired-session finalization on a
// fixed schedule. Read-time status already derives "expired" for the UI; the
// sweeper is what makes it stick in the store.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/dinesync/dinesync/internal/modules/session/commands"

	"github.com/eskrenkovic/mediator-go"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const TaskSessionCleanup = "session:cleanup"

type Sweeper struct {
	scheduler *asynq.Scheduler
	server    *asynq.Server
	interval  time.Duration
	logger    *zap.Logger
}

func New(redisURL string, interval time.Duration, logger *zap.Logger) (*Sweeper, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("sweeper: parse redis url: %w", err)
	}

	scheduler := asynq.NewScheduler(opt, nil)
	server := asynq.NewServer(opt, asynq.Config{Concurrency: 1})

	return &Sweeper{
		scheduler: scheduler,
		server:    server,
		interval:  interval,
		logger:    logger.Named("sweeper"),
	}, nil
}

func (s *Sweeper) Start() error {
	cronspec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.scheduler.Register(cronspec, asynq.NewTask(TaskSessionCleanup, nil)); err != nil {
		return fmt.Errorf("sweeper: register cleanup task: %w", err)
	}

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskSessionCleanup, s.handleCleanup)

	if err := s.server.Start(mux); err != nil {
		return fmt.Errorf("sweeper: start worker: %w", err)
	}

	if err := s.scheduler.Start(); err != nil {
		s.server.Shutdown()
		return fmt.Errorf("sweeper: start scheduler: %w", err)
	}

	return nil
}

func (s *Sweeper) Stop() {
	s.scheduler.Shutdown()
	s.server.Shutdown()
}

func (s *Sweeper) handleCleanup(ctx context.Context, task *asynq.Task) error {
	response, err := mediator.Send[commands.CleanupExpiredSessionsCommand, commands.CleanupExpiredSessionsResponse](
		ctx,
		commands.CleanupExpiredSessionsCommand{},
	)
	if err != nil {
		// Retried on the next tick; a missed run only delays finalization.
		s.logger.Error("cleanup run failed", zap.Error(err))
		return err
	}

	if response.SessionsCleanedUp > 0 {
		s.logger.Info("cleanup run finished", zap.Int("sessions_cleaned_up", response.SessionsCleanedUp))
	}

	return nil
}
