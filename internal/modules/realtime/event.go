package realtime

import (
	"encoding/json"
	"fmt"
)

type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// ChangeEvent is the normalized form of one row-level change. Data holds the
// post-image for INSERT/UPDATE and the pre-image for DELETE; OldData is only
// present for UPDATE.
type ChangeEvent struct {
	Type    ChangeType             `json:"type"`
	Table   string                 `json:"table"`
	Data    map[string]interface{} `json:"data,omitempty"`
	OldData map[string]interface{} `json:"oldData,omitempty"`
}

// notification is the raw wire payload published by store writers.
type notification struct {
	Type  string      `json:"type"`
	Table string      `json:"table"`
	New   interface{} `json:"new,omitempty"`
	Old   interface{} `json:"old,omitempty"`
}

type inboundNotification struct {
	Type  string                 `json:"type"`
	Table string                 `json:"table"`
	New   map[string]interface{} `json:"new"`
	Old   map[string]interface{} `json:"old"`
}

// NormalizeNotification turns a raw payload into a ChangeEvent. Missing row
// images stay nil rather than failing the event.
func NormalizeNotification(payload []byte) (ChangeEvent, error) {
	var raw inboundNotification
	if err := json.Unmarshal(payload, &raw); err != nil {
		return ChangeEvent{}, fmt.Errorf("malformed change notification: %w", err)
	}

	event := ChangeEvent{Table: raw.Table}

	switch ChangeType(raw.Type) {
	case ChangeInsert:
		event.Type = ChangeInsert
		event.Data = raw.New
	case ChangeUpdate:
		event.Type = ChangeUpdate
		event.Data = raw.New
		event.OldData = raw.Old
	case ChangeDelete:
		event.Type = ChangeDelete
		event.Data = raw.Old
	default:
		return ChangeEvent{}, fmt.Errorf("unknown change type %q", raw.Type)
	}

	return event, nil
}

// Logical stream names exposed to consumers map to the underlying entities
// they are filtered on. The mapping is fixed; it is never inferred from the
// stream label.
var streamEntities = map[string]string{
	"participants":     "session_participants",
	"sessions":         "table_sessions",
	"orders":           "order_items",
	"service-requests": "service_requests",
}

func EntityForStream(stream string) (string, bool) {
	entity, ok := streamEntities[stream]
	return entity, ok
}

func channelName(entity, sessionID string) string {
	return entity + ":" + sessionID
}
