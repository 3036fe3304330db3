package domain

import "time"

// Event types published for the external notification dispatcher. The core
// never calls the dispatcher directly.
const (
	EventConversationCreated  = "conversation.created"
	EventConversationDeleted  = "conversation.deleted"
	EventMessageAppended      = "message.appended"
	EventRequestStatusChanged = "request.status_changed"
)

type ConversationEvent struct {
	Type           string    `json:"type"`
	ConversationID string    `json:"conversation_id"`
	PostID         string    `json:"post_id,omitempty"`
	ActorID        string    `json:"actor_id,omitempty"`
	At             time.Time `json:"at"`
}

type MessageEvent struct {
	Type           string    `json:"type"`
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id"`
	SenderID       string    `json:"sender_id"`
	MessageType    string    `json:"message_type"`
	At             time.Time `json:"at"`
}

type RequestEvent struct {
	Type           string        `json:"type"`
	ConversationID string        `json:"conversation_id"`
	MessageID      string        `json:"message_id"`
	Kind           RequestKind   `json:"kind"`
	Status         RequestStatus `json:"status"`
	ActorID        string        `json:"actor_id"`
	At             time.Time     `json:"at"`
}
