package domain

// EventType identifies an outbound notification delivered to a single
// identity's private channel.
type EventType string

const (
	EventCreated           EventType = "created"
	EventConnected         EventType = "connected"
	EventDisconnected      EventType = "disconnected"
	EventAudioStateChanged EventType = "audio_state_changed"
	EventActiveUsers       EventType = "active_users"
	EventError             EventType = "error"
)

// DisconnectReason explains why a pairing ended for the notified side.
type DisconnectReason string

const (
	ReasonEnded     DisconnectReason = "ended"
	ReasonInactive  DisconnectReason = "inactive"
	ReasonPreempted DisconnectReason = "preempted"
)

// Event is the closed set of outbound notifications. Each variant carries
// exactly the fields its type requires, so a malformed event (for example an
// audio_state_changed without its flag) is unrepresentable.
type Event interface {
	EventType() EventType
}

type CreatedEvent struct {
	Code         SessionCode  `json:"code"`
	Capabilities Capabilities `json:"capabilities"`
}

func (CreatedEvent) EventType() EventType { return EventCreated }

type ConnectedEvent struct {
	Peer         Identity     `json:"peer"`
	Capabilities Capabilities `json:"capabilities"`
}

func (ConnectedEvent) EventType() EventType { return EventConnected }

type DisconnectedEvent struct {
	Peer   Identity         `json:"peer"`
	Reason DisconnectReason `json:"reason"`
}

func (DisconnectedEvent) EventType() EventType { return EventDisconnected }

type AudioStateChangedEvent struct {
	Peer         Identity `json:"peer"`
	AudioEnabled bool     `json:"audio_enabled"`
}

func (AudioStateChangedEvent) EventType() EventType { return EventAudioStateChanged }

type ActiveUsersEvent struct {
	Users []Identity `json:"users"`
}

func (ActiveUsersEvent) EventType() EventType { return EventActiveUsers }

type ErrorEvent struct {
	Message string `json:"message"`
}

func (ErrorEvent) EventType() EventType { return EventError }
