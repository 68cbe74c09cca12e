package activity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingReporter struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *countingReporter) MarkActive(ctx context.Context, participantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.err
}

func (r *countingReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func Test_Tracker_Collapses_Burst_To_One_Update(t *testing.T) {
	// Arrange
	reporter := &countingReporter{}
	source := NewInteractionSource()

	tracker := NewTracker("p1", reporter, zap.NewNop(), nil, Options{
		CoalesceWindow: 20 * time.Millisecond,
		Debounce:       time.Minute,
	})
	tracker.Attach(source)
	tracker.Start()
	defer tracker.Stop()

	// Act - a rapid burst of raw events
	for i := 0; i < 25; i++ {
		source.Notify(SignalInteraction)
	}

	// Assert - exactly one store update, not 25
	time.Sleep(150 * time.Millisecond)
	require.Equal(t, 1, reporter.count())
}

func Test_Tracker_Drops_Update_Within_Debounce_Window(t *testing.T) {
	// Arrange
	reporter := &countingReporter{}
	source := NewInteractionSource()

	tracker := NewTracker("p1", reporter, zap.NewNop(), nil, Options{
		CoalesceWindow: 10 * time.Millisecond,
		Debounce:       time.Minute,
	})
	tracker.Attach(source)
	tracker.Start()
	defer tracker.Stop()

	// Act - two bursts inside the same debounce window
	source.Notify(SignalInteraction)
	time.Sleep(60 * time.Millisecond)
	source.Notify(SignalScroll)
	time.Sleep(60 * time.Millisecond)

	// Assert - the second burst was dropped, not queued
	require.Equal(t, 1, reporter.count())
}

func Test_Tracker_Pulse_Fires_While_Visible(t *testing.T) {
	// Arrange
	reporter := &countingReporter{}

	tracker := NewTracker("p1", reporter, zap.NewNop(), func() bool { return true }, Options{
		PulseInterval: 15 * time.Millisecond,
	})
	tracker.Start()
	defer tracker.Stop()

	// Assert
	deadline := time.Now().Add(time.Second)
	for reporter.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.GreaterOrEqual(t, reporter.count(), 1)
}

func Test_Tracker_Pulse_Suppressed_While_Invisible(t *testing.T) {
	// Arrange - a backgrounded tab must not keep the session alive
	reporter := &countingReporter{}

	tracker := NewTracker("p1", reporter, zap.NewNop(), func() bool { return false }, Options{
		PulseInterval:     10 * time.Millisecond,
		HeartbeatInterval: 10 * time.Millisecond,
	})
	tracker.Start()
	defer tracker.Stop()

	// Assert
	time.Sleep(100 * time.Millisecond)
	require.Zero(t, reporter.count())
}

func Test_Tracker_Heartbeat_Refreshes_Without_Interaction(t *testing.T) {
	reporter := &countingReporter{}

	tracker := NewTracker("p1", reporter, zap.NewNop(), nil, Options{
		HeartbeatInterval: 15 * time.Millisecond,
	})
	tracker.Start()
	defer tracker.Stop()

	deadline := time.Now().Add(time.Second)
	for reporter.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.GreaterOrEqual(t, reporter.count(), 1)
}

func Test_Tracker_Stop_Cancels_All_Timers_And_Sources(t *testing.T) {
	// Arrange
	reporter := &countingReporter{}
	source := NewInteractionSource()

	tracker := NewTracker("p1", reporter, zap.NewNop(), nil, Options{
		CoalesceWindow:    5 * time.Millisecond,
		Debounce:          5 * time.Millisecond,
		PulseInterval:     5 * time.Millisecond,
		HeartbeatInterval: 5 * time.Millisecond,
	})
	tracker.Attach(source)
	tracker.Start()

	// Act
	tracker.Stop()
	countAtStop := reporter.count()

	source.Notify(SignalInteraction) // must not panic or produce an update
	time.Sleep(60 * time.Millisecond)

	// Assert - nothing fired after Stop returned
	require.Equal(t, countAtStop, reporter.count())

	tracker.Stop() // idempotent
}

func Test_Tracker_Reporter_Failure_Is_Suppressed(t *testing.T) {
	// Arrange
	reporter := &countingReporter{err: errors.New("store down")}
	source := NewInteractionSource()

	tracker := NewTracker("p1", reporter, zap.NewNop(), nil, Options{
		CoalesceWindow: 10 * time.Millisecond,
		Debounce:       time.Minute,
	})
	tracker.Attach(source)
	tracker.Start()
	defer tracker.Stop()

	// Act - failure must never propagate as a crash
	source.Notify(SignalInteraction)
	time.Sleep(60 * time.Millisecond)

	// Assert
	require.Equal(t, 1, reporter.count())
}
