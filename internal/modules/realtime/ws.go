package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dinesync/dinesync/internal/modules/activity"
	"github.com/dinesync/dinesync/internal/modules/validation"

	"github.com/go-chi/chi"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Inbound client frames. Anything else on the wire counts as a generic
// interaction signal.
const (
	frameHidden  = "hidden"
	frameVisible = "visible"
	frameScroll  = "scroll"
)

// HandleEvents upgrades the request to a websocket and relays the session's
// change events for the requested logical stream until the client goes away.
// When the client identifies a participant, inbound frames feed that
// participant's activity tracker.
func HandleEvents(
	broker Broker,
	reporter activity.Reporter,
	trackerOpts activity.Options,
	logger *zap.Logger,
) http.HandlerFunc {
	logger = logger.Named("realtime.ws")

	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := validation.NormalizeID(chi.URLParam(r, "id"))
		if !ok {
			http.Error(w, "invalid session id", http.StatusBadRequest)
			return
		}

		streamName := r.URL.Query().Get("stream")
		if streamName == "" {
			streamName = "participants"
		}
		if _, ok := EntityForStream(streamName); !ok {
			http.Error(w, "unknown stream", http.StatusBadRequest)
			return
		}

		// Optional: presence of a participant id turns activity tracking on
		// for this connection.
		participantID := ""
		if raw := r.URL.Query().Get("participantId"); raw != "" {
			participantID, ok = validation.NormalizeID(raw)
			if !ok {
				http.Error(w, "invalid participant id", http.StatusBadRequest)
				return
			}
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("websocket upgrade failed", zap.Error(err))
			return
		}

		sock := newEventSocket(conn)
		sock.start()

		stream, err := NewStream(broker, logger, streamName, func(event ChangeEvent) {
			payload, err := json.Marshal(event)
			if err != nil {
				logger.Error("failed to serialize change event", zap.Error(err))
				return
			}
			sock.send(payload)
		})
		if err != nil {
			sock.close(websocket.CloseInternalServerErr, "stream setup failed")
			return
		}

		if err := stream.SetSession(r.Context(), sessionID); err != nil {
			stream.Close()
			sock.close(websocket.CloseInternalServerErr, "subscribe failed")
			return
		}

		var visible atomic.Bool
		visible.Store(true)

		var tracker *activity.Tracker
		var source *activity.InteractionSource
		if participantID != "" {
			source = activity.NewInteractionSource()
			tracker = activity.NewTracker(participantID, reporter, logger, visible.Load, trackerOpts)
			tracker.Attach(source)
			tracker.Start()
		}

		go func() {
			defer func() {
				stream.Close()
				if tracker != nil {
					tracker.Stop()
				}
				sock.close(websocket.CloseNormalClosure, "")
			}()

			for {
				_, payload, err := conn.ReadMessage()
				if err != nil {
					return
				}

				switch string(payload) {
				case frameHidden:
					visible.Store(false)
				case frameVisible:
					visible.Store(true)
				case frameScroll:
					if source != nil {
						source.Notify(activity.SignalScroll)
					}
				default:
					if source != nil {
						source.Notify(activity.SignalInteraction)
					}
				}
			}
		}()
	}
}

// eventSocket serializes outbound writes through a buffered channel. A slow
// client that fills the buffer gets disconnected to keep backpressure
// bounded.
type eventSocket struct {
	ws     *websocket.Conn
	outbox chan []byte
	once   sync.Once
	done   chan struct{}
}

func newEventSocket(ws *websocket.Conn) *eventSocket {
	return &eventSocket{
		ws:     ws,
		outbox: make(chan []byte, 128),
		done:   make(chan struct{}),
	}
}

func (s *eventSocket) start() {
	go s.writeLoop()
}

func (s *eventSocket) send(payload []byte) {
	select {
	case <-s.done:
	case s.outbox <- payload:
	default:
		s.close(websocket.CloseGoingAway, "send buffer full")
	}
}

func (s *eventSocket) close(code int, reason string) {
	s.once.Do(func() {
		close(s.done)
		deadline := time.Now().Add(writeWait)
		_ = s.ws.SetWriteDeadline(deadline)
		_ = s.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		_ = s.ws.Close()
	})
}

func (s *eventSocket) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case payload := <-s.outbox:
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
