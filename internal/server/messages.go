// Package server exposes the client-facing WebSocket API: audio in,
// transcribed turns through the agent, and switch/notification fanout out.
package server

// Inbound message types.
const (
	msgPing             = "ping"
	msgSetInteractionID = "set_interaction_id"
	msgChangeName       = "change_name"
)

// inboundMessage is the envelope for all text frames a client sends.
type inboundMessage struct {
	Type string `json:"type"`

	// InteractionID accompanies set_interaction_id.
	InteractionID string `json:"interaction_id,omitempty"`

	// NewName and PersonName accompany change_name. PersonName is optional;
	// when empty the person currently in view is renamed.
	NewName    string `json:"new_name,omitempty"`
	PersonName string `json:"person_name,omitempty"`
}

// connectedMessage greets a client right after the handshake.
type connectedMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type pongMessage struct {
	Type string `json:"type"`
}

// notificationMessage is pushed by agent tools and for spoken replies.
type notificationMessage struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// switchMessage announces a person change in front of the camera.
type switchMessage struct {
	Type       string  `json:"type"`
	PersonID   string  `json:"person_id"`
	PersonName string  `json:"person_name"`
	Blurb      string  `json:"blurb"`
	Recap      *string `json:"recap"`
}

type changeNameResponse struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
