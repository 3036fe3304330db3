package domain

import "time"

type MessageType string

const (
	MessageText             MessageType = "text"
	MessageHandoverRequest  MessageType = "handover_request"
	MessageHandoverResponse MessageType = "handover_response"
	MessageClaimRequest     MessageType = "claim_request"
	MessageClaimResponse    MessageType = "claim_response"
	MessageSystem           MessageType = "system"
)

type Message struct {
	ID                   string      `bson:"_id,omitempty" json:"id"`
	ConversationID       string      `bson:"conversation_id" json:"conversation_id"`
	SenderID             string      `bson:"sender_id" json:"sender_id"`
	SenderName           string      `bson:"sender_name" json:"sender_name"`
	SenderProfilePicture *string     `bson:"sender_profile_picture,omitempty" json:"sender_profile_picture,omitempty"`
	Text                 string      `bson:"text" json:"text"`
	Type                 MessageType `bson:"msg_type" json:"msg_type"`

	// CreatedAt is server-assigned and is the authoritative order within a
	// conversation; client wall clocks are ignored.
	CreatedAt time.Time `bson:"created_at" json:"created_at"`

	ReadBy  []string     `bson:"read_by" json:"read_by"`
	Request *RequestData `bson:"request_data,omitempty" json:"request_data,omitempty"`
}

// IsRequest reports whether the message carries the request payload for the
// given workflow kind.
func (m *Message) IsRequest(kind RequestKind) bool {
	return m.Type == kind.RequestMessageType() && m.Request != nil
}
