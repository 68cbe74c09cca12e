package activity

import "sync"

// InteractionSource is a SignalSource fed by a transport edge (a websocket
// read loop, an HTTP ping handler) observing user interaction.
type InteractionSource struct {
	mu      sync.Mutex
	closed  bool
	signals chan Signal
}

func NewInteractionSource() *InteractionSource {
	return &InteractionSource{signals: make(chan Signal, 16)}
}

var _ SignalSource = (*InteractionSource)(nil)

// Notify records one raw interaction. Never blocks; when the buffer is full
// a pending signal already conveys everything this one would. Safe to call
// concurrently with Close.
func (s *InteractionSource) Notify(kind SignalKind) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	select {
	case s.signals <- Signal{Kind: kind}:
	default:
	}
}

func (s *InteractionSource) Signals() <-chan Signal {
	return s.signals
}

func (s *InteractionSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	close(s.signals)
	return nil
}
