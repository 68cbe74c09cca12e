package realtime

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Stream is one consumer's view of a logical table stream. It holds at most
// one live subscription; switching sessions always tears the previous
// subscription down before the next one is established.
type Stream struct {
	broker   Broker
	logger   *zap.Logger
	entity   string
	onChange func(ChangeEvent)

	mu        sync.Mutex
	deliverMu sync.Mutex
	sessionID string
	sub       Subscription
	stopped   chan struct{}
}

// NewStream builds a stream for a known logical table. onChange runs
// synchronously per event in arrival order; it must not call SetSession or
// Close on its own stream.
func NewStream(broker Broker, logger *zap.Logger, logicalTable string, onChange func(ChangeEvent)) (*Stream, error) {
	entity, ok := EntityForStream(logicalTable)
	if !ok {
		return nil, fmt.Errorf("unknown table stream %q", logicalTable)
	}

	return &Stream{
		broker:   broker,
		logger:   logger.Named("realtime.stream").With(zap.String("entity", entity)),
		entity:   entity,
		onChange: onChange,
	}, nil
}

// SetSession points the stream at a session. An empty sessionID is a valid
// unsubscribed state, not an error. The previous channel is always
// unsubscribed first, so two live subscriptions never coexist.
func (s *Stream) SetSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.teardownLocked()
	s.sessionID = ""

	if sessionID == "" {
		return nil
	}

	sub, err := s.broker.Subscribe(ctx, channelName(s.entity, sessionID))
	if err != nil {
		s.logger.Error("subscription failed",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return err
	}

	stopped := make(chan struct{})
	s.sub = sub
	s.stopped = stopped
	s.sessionID = sessionID

	go s.deliver(sub, stopped)

	return nil
}

// Close unsubscribes and stops delivery. After Close returns, the consumer
// callback will not be invoked again. Safe to call repeatedly, and safe to
// call after a failed SetSession.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.teardownLocked()
	s.sessionID = ""
}

func (s *Stream) teardownLocked() {
	if s.sub == nil {
		return
	}

	close(s.stopped)
	if err := s.sub.Close(); err != nil {
		s.logger.Error("unsubscribe failed", zap.Error(err))
	}

	// Barrier: wait for any in-flight delivery to finish.
	s.deliverMu.Lock()
	s.deliverMu.Unlock() //nolint:staticcheck // empty critical section is the point

	s.sub = nil
	s.stopped = nil
}

func (s *Stream) deliver(sub Subscription, stopped chan struct{}) {
	for payload := range sub.Messages() {
		s.deliverMu.Lock()

		select {
		case <-stopped:
			s.deliverMu.Unlock()
			return
		default:
		}

		event, err := NormalizeNotification(payload)
		if err != nil {
			s.logger.Error("dropping malformed notification", zap.Error(err))
			s.deliverMu.Unlock()
			continue
		}

		s.invoke(event)
		s.deliverMu.Unlock()
	}
}

// invoke shields the stream from consumer panics. One bad reaction must not
// break delivery of subsequent events.
func (s *Stream) invoke(event ChangeEvent) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("change consumer panicked",
				zap.String("type", string(event.Type)),
				zap.Any("panic", r))
		}
	}()

	s.onChange(event)
}
