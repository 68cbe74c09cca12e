// Package activity converts noisy client signals (taps, scrolls, visibility
// flips) into infrequent "this participant is alive" updates. The pipeline
// is deliberately lossy: liveness only needs "recently active", not an audit
// trail of every event.
package activity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type SignalKind string

const (
	SignalInteraction SignalKind = "interaction"
	SignalScroll      SignalKind = "scroll"
	SignalVisibility  SignalKind = "visibility"
)

type Signal struct {
	Kind SignalKind
}

// SignalSource feeds raw signals into a tracker. Sources are closed by the
// tracker on Stop.
type SignalSource interface {
	Signals() <-chan Signal
	Close() error
}

// Reporter persists a liveness update. Failures are the reporter's own
// problem to describe; the tracker logs and keeps going.
type Reporter interface {
	MarkActive(ctx context.Context, participantID string) error
}

// Visibility reports whether the device is currently foregrounded. A nil
// check means always visible.
type Visibility func() bool

type Options struct {
	// CoalesceWindow collapses a burst of raw signals into one candidate
	// update.
	CoalesceWindow time.Duration

	// Debounce drops a candidate update entirely when the previous update
	// was too recent. Dropped means dropped - not queued, not retried.
	Debounce time.Duration

	// PulseInterval issues an update on its own schedule while visible.
	// Zero disables the pulse.
	PulseInterval time.Duration

	// HeartbeatInterval refreshes liveness while visible, independent of
	// interaction. Zero disables the heartbeat.
	HeartbeatInterval time.Duration
}

func (o *Options) applyDefaults() {
	if o.CoalesceWindow <= 0 {
		o.CoalesceWindow = 100 * time.Millisecond
	}
	if o.Debounce <= 0 {
		o.Debounce = 5 * time.Second
	}
}

// Tracker owns the debounce state for exactly one participant/session
// pairing. It is never shared.
type Tracker struct {
	participantID string
	reporter      Reporter
	logger        *zap.Logger
	visible       Visibility
	opts          Options

	signals chan Signal
	sources []SignalSource

	ctx      context.Context
	cancel   context.CancelFunc
	finished chan struct{}
	stopOnce sync.Once
	started  bool
}

func NewTracker(
	participantID string,
	reporter Reporter,
	logger *zap.Logger,
	visible Visibility,
	opts Options,
) *Tracker {
	opts.applyDefaults()

	ctx, cancel := context.WithCancel(context.Background())

	return &Tracker{
		participantID: participantID,
		reporter:      reporter,
		logger:        logger.Named("activity").With(zap.String("participant_id", participantID)),
		visible:       visible,
		opts:          opts,
		signals:       make(chan Signal, 64),
		ctx:           ctx,
		cancel:        cancel,
		finished:      make(chan struct{}),
	}
}

// Attach registers a source. Must be called before Start.
func (t *Tracker) Attach(source SignalSource) {
	t.sources = append(t.sources, source)
}

func (t *Tracker) Start() {
	if t.started {
		return
	}
	t.started = true

	for _, source := range t.sources {
		go t.forward(source)
	}

	go t.run()
}

// Stop cancels every pending timer and listener. No update fires after Stop
// returns. Safe to call more than once.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() {
		t.cancel()

		for _, source := range t.sources {
			if err := source.Close(); err != nil {
				t.logger.Warn("failed to close signal source", zap.Error(err))
			}
		}

		if t.started {
			<-t.finished
		}
	})
}

func (t *Tracker) forward(source SignalSource) {
	for {
		select {
		case <-t.ctx.Done():
			return
		case signal, ok := <-source.Signals():
			if !ok {
				return
			}
			select {
			case t.signals <- signal:
			default:
				// A full buffer means a burst is already pending; the
				// signal carries no information beyond "active now".
			}
		}
	}
}

func (t *Tracker) run() {
	defer close(t.finished)

	coalesce := time.NewTimer(t.opts.CoalesceWindow)
	if !coalesce.Stop() {
		<-coalesce.C
	}
	coalescePending := false
	defer coalesce.Stop()

	var pulseC, heartbeatC <-chan time.Time
	if t.opts.PulseInterval > 0 {
		pulse := time.NewTicker(t.opts.PulseInterval)
		defer pulse.Stop()
		pulseC = pulse.C
	}
	if t.opts.HeartbeatInterval > 0 {
		heartbeat := time.NewTicker(t.opts.HeartbeatInterval)
		defer heartbeat.Stop()
		heartbeatC = heartbeat.C
	}

	var lastUpdate time.Time

	for {
		select {
		case <-t.ctx.Done():
			return

		case <-t.signals:
			if !coalescePending {
				coalesce.Reset(t.opts.CoalesceWindow)
				coalescePending = true
			}

		case <-coalesce.C:
			coalescePending = false
			if time.Since(lastUpdate) < t.opts.Debounce {
				continue
			}
			lastUpdate = time.Now()
			t.report()

		case <-pulseC:
			if !t.isVisible() {
				continue
			}
			lastUpdate = time.Now()
			t.report()

		case <-heartbeatC:
			if !t.isVisible() {
				continue
			}
			lastUpdate = time.Now()
			t.report()
		}
	}
}

func (t *Tracker) isVisible() bool {
	return t.visible == nil || t.visible()
}

// report is best-effort. lastUpdate advances even on failure so a broken
// store is not hammered at signal rate.
func (t *Tracker) report() {
	ctx, cancel := context.WithTimeout(t.ctx, 10*time.Second)
	defer cancel()

	if err := t.reporter.MarkActive(ctx, t.participantID); err != nil {
		t.logger.Warn("activity update failed", zap.Error(err))
	}
}
