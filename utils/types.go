package utils

// WebSocketEvent is the envelope for every event pushed to /ws clients.
type WebSocketEvent struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Event types pushed to /ws clients.
const (
	EventAdapterState      = "adapter/state"
	EventAgentRegistered   = "agent/registered"
	EventProfileRegistered = "profile/registered"
	EventHidConnected      = "hid/connected"
	EventHidDisconnected   = "hid/disconnected"
	EventHidReport         = "hid/report"
)

// Position is an absolute pointer position in virtual desktop coordinates.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Buttons is the state of the three mouse buttons.
type Buttons struct {
	Left   bool `json:"left"`
	Middle bool `json:"middle"`
	Right  bool `json:"right"`
}

// PointerSample is one tick's worth of pointer state. Ephemeral: only the
// delta against the previous sample and the button mask reach the wire.
type PointerSample struct {
	Position Position `json:"position"`
	Buttons  Buttons  `json:"buttons"`
}
