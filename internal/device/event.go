package device

import "encoding/json"

// Bus topics the registry publishes on. Local UIs subscribe to TopicPrefix.
const (
	TopicPrefix    = "device."
	TopicPending   = "device.pending"
	TopicActive    = "device.active"
	TopicConnected = "device.connected"
)

// EventKind names a UI refresh notification.
type EventKind string

const (
	EventRefreshPending EventKind = "RefreshPending"
	EventRefreshActive  EventKind = "RefreshActive"
	EventConnected      EventKind = "Connected"
)

// Event is the payload of every registry notification.
// Identity is set only for EventConnected.
type Event struct {
	Kind     EventKind
	Identity *Identity
}

// Publisher receives registry notifications. Publish must not block.
type Publisher interface {
	Publish(e Event)
}

type connectedView struct {
	UUID  string `json:"uuid"`
	Name  string `json:"name"`
	Agent Agent  `json:"agent"`
}

// MarshalJSON encodes refresh events as a bare string and Connected as
// {"Connected":{"uuid":...,"name":...,"agent":...}}. The pairing code is
// never included.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Kind != EventConnected || e.Identity == nil {
		return json.Marshal(string(e.Kind))
	}
	return json.Marshal(map[string]connectedView{
		string(EventConnected): {
			UUID:  e.Identity.UUID.String(),
			Name:  e.Identity.Name,
			Agent: e.Identity.Agent,
		},
	})
}

// Topic returns the bus topic the event is published on.
func (e Event) Topic() string {
	switch e.Kind {
	case EventRefreshPending:
		return TopicPending
	case EventRefreshActive:
		return TopicActive
	default:
		return TopicConnected
	}
}
