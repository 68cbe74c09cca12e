package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSubscription struct {
	channel  string
	broker   *fakeBroker
	messages chan []byte
	once     sync.Once
}

func (s *fakeSubscription) Messages() <-chan []byte {
	return s.messages
}

// Close records the call but leaves the message channel open, so tests can
// simulate a notification arriving after unsubscribe.
func (s *fakeSubscription) Close() error {
	s.once.Do(func() {
		s.broker.record("close:" + s.channel)
	})
	return nil
}

type fakeBroker struct {
	mu           sync.Mutex
	calls        []string
	subs         map[string]*fakeSubscription
	subscribeErr error
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{subs: map[string]*fakeSubscription{}}
}

func (b *fakeBroker) record(call string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, call)
}

func (b *fakeBroker) recorded() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *fakeBroker) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	b.record("subscribe:" + channel)

	if b.subscribeErr != nil {
		return nil, b.subscribeErr
	}

	sub := &fakeSubscription{
		channel:  channel,
		broker:   b,
		messages: make(chan []byte, 16),
	}

	b.mu.Lock()
	b.subs[channel] = sub
	b.mu.Unlock()

	return sub, nil
}

func (b *fakeBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	sub := b.subs[channel]
	b.mu.Unlock()

	if sub != nil {
		sub.messages <- payload
	}
	return nil
}

func (b *fakeBroker) Close() error { return nil }

func waitFor(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func Test_Stream_Delivers_Normalized_Events_In_Order(t *testing.T) {
	// Arrange
	broker := newFakeBroker()

	var mu sync.Mutex
	var received []ChangeEvent
	stream, err := NewStream(broker, zap.NewNop(), "participants", func(e ChangeEvent) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
	})
	require.NoError(t, err)

	require.NoError(t, stream.SetSession(context.Background(), "session-123"))
	defer stream.Close()

	// Act
	_ = broker.Publish(context.Background(), "session_participants:session-123",
		[]byte(`{"type":"INSERT","table":"session_participants","new":{"id":"p1","display_name":"Jane"}}`))
	_ = broker.Publish(context.Background(), "session_participants:session-123",
		[]byte(`{"type":"DELETE","table":"session_participants","old":{"id":"p1"}}`))

	// Assert
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, ChangeInsert, received[0].Type)
	require.Equal(t, "session_participants", received[0].Table)
	require.Equal(t, map[string]interface{}{"id": "p1", "display_name": "Jane"}, received[0].Data)
	require.Equal(t, ChangeDelete, received[1].Type)
}

func Test_Stream_Session_Switch_Unsubscribes_Before_Resubscribing(t *testing.T) {
	// Arrange
	broker := newFakeBroker()
	stream, err := NewStream(broker, zap.NewNop(), "participants", func(ChangeEvent) {})
	require.NoError(t, err)
	defer stream.Close()

	// Act
	require.NoError(t, stream.SetSession(context.Background(), "A"))
	require.NoError(t, stream.SetSession(context.Background(), "B"))

	// Assert
	require.Equal(t, []string{
		"subscribe:session_participants:A",
		"close:session_participants:A",
		"subscribe:session_participants:B",
	}, broker.recorded())
}

func Test_Stream_Empty_Session_Is_A_Valid_NoOp(t *testing.T) {
	broker := newFakeBroker()
	stream, err := NewStream(broker, zap.NewNop(), "participants", func(ChangeEvent) {})
	require.NoError(t, err)

	require.NoError(t, stream.SetSession(context.Background(), ""))
	require.Empty(t, broker.recorded())

	stream.Close()
	require.Empty(t, broker.recorded())
}

func Test_Stream_No_Delivery_After_Close(t *testing.T) {
	// Arrange
	broker := newFakeBroker()

	var mu sync.Mutex
	delivered := 0
	stream, err := NewStream(broker, zap.NewNop(), "participants", func(ChangeEvent) {
		mu.Lock()
		delivered++
		mu.Unlock()
	})
	require.NoError(t, err)
	require.NoError(t, stream.SetSession(context.Background(), "A"))

	// Act
	stream.Close()

	// A notification that was already in flight when the consumer
	// unsubscribed.
	broker.mu.Lock()
	sub := broker.subs["session_participants:A"]
	broker.mu.Unlock()
	sub.messages <- []byte(`{"type":"INSERT","table":"session_participants","new":{}}`)

	// Assert - give the delivery goroutine a chance to misbehave
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Zero(t, delivered)
}

func Test_Stream_Consumer_Panic_Does_Not_Break_Delivery(t *testing.T) {
	// Arrange
	broker := newFakeBroker()

	var mu sync.Mutex
	var received []ChangeEvent
	stream, err := NewStream(broker, zap.NewNop(), "participants", func(e ChangeEvent) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()

		if e.Type == ChangeInsert {
			panic("consumer bug")
		}
	})
	require.NoError(t, err)
	require.NoError(t, stream.SetSession(context.Background(), "A"))
	defer stream.Close()

	// Act
	_ = broker.Publish(context.Background(), "session_participants:A",
		[]byte(`{"type":"INSERT","table":"session_participants","new":{}}`))
	_ = broker.Publish(context.Background(), "session_participants:A",
		[]byte(`{"type":"DELETE","table":"session_participants","old":{}}`))

	// Assert
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 2
	})
}

func Test_Stream_Malformed_Notification_Is_Skipped(t *testing.T) {
	broker := newFakeBroker()

	var mu sync.Mutex
	var received []ChangeEvent
	stream, err := NewStream(broker, zap.NewNop(), "participants", func(e ChangeEvent) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
	})
	require.NoError(t, err)
	require.NoError(t, stream.SetSession(context.Background(), "A"))
	defer stream.Close()

	_ = broker.Publish(context.Background(), "session_participants:A", []byte(`{not json`))
	_ = broker.Publish(context.Background(), "session_participants:A",
		[]byte(`{"type":"DELETE","table":"session_participants","old":{}}`))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, ChangeDelete, received[0].Type)
}

func Test_Stream_Close_Safe_After_Failed_Subscribe(t *testing.T) {
	// Arrange
	broker := newFakeBroker()
	broker.subscribeErr = errors.New("broker down")

	stream, err := NewStream(broker, zap.NewNop(), "participants", func(ChangeEvent) {})
	require.NoError(t, err)

	// Act
	err = stream.SetSession(context.Background(), "A")

	// Assert
	require.Error(t, err)
	stream.Close() // must not panic or double-close anything
	stream.Close()
}

func Test_NewStream_Rejects_Unknown_Logical_Table(t *testing.T) {
	_, err := NewStream(newFakeBroker(), zap.NewNop(), "payments", func(ChangeEvent) {})
	require.Error(t, err)
}

func Test_Publisher_Emits_Payload_The_Stream_Normalizes(t *testing.T) {
	// Arrange
	broker := newFakeBroker()

	var mu sync.Mutex
	var received []ChangeEvent
	stream, err := NewStream(broker, zap.NewNop(), "participants", func(e ChangeEvent) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
	})
	require.NoError(t, err)
	require.NoError(t, stream.SetSession(context.Background(), "session-123"))
	defer stream.Close()

	publisher := NewPublisher(broker, zap.NewNop())

	// Act
	publisher.PublishInsert(context.Background(), "session-123", "session_participants",
		map[string]interface{}{"id": "p1", "display_name": "Jane"})

	// Assert
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, ChangeInsert, received[0].Type)
	require.Equal(t, "session_participants", received[0].Table)
	require.Equal(t, "Jane", received[0].Data["display_name"])
}
