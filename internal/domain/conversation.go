package domain

import (
	"sort"
	"strings"
	"time"
)

type PostType string

const (
	PostLost  PostType = "lost"
	PostFound PostType = "found"
)

type PostStatus string

const (
	PostPending  PostStatus = "pending"
	PostResolved PostStatus = "resolved"
	PostRejected PostStatus = "rejected"
)

type Participant struct {
	FirstName      string    `bson:"first_name" json:"first_name"`
	LastName       string    `bson:"last_name" json:"last_name"`
	ProfilePicture *string   `bson:"profile_picture,omitempty" json:"profile_picture,omitempty"`
	JoinedAt       time.Time `bson:"joined_at" json:"joined_at"`
}

type LastMessage struct {
	Text      string    `bson:"text" json:"text"`
	SenderID  string    `bson:"sender_id" json:"sender_id"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

type Conversation struct {
	ID            string     `bson:"_id,omitempty" json:"id"`
	PostID        string     `bson:"post_id" json:"post_id"`
	PostTitle     string     `bson:"post_title" json:"post_title"`
	PostType      PostType   `bson:"post_type" json:"post_type"`
	PostStatus    PostStatus `bson:"post_status" json:"post_status"`
	PostCreatorID string     `bson:"post_creator_id" json:"post_creator_id"`
	FoundAction   string     `bson:"found_action,omitempty" json:"found_action,omitempty"`

	// PairKey is the sorted join of the two participant ids; together with
	// post_id it backs the unique dedup index.
	PairKey        string                 `bson:"pair_key" json:"-"`
	ParticipantIDs []string               `bson:"participant_ids" json:"-"`
	Participants   map[string]Participant `bson:"participants" json:"participants"`

	LastMessage  *LastMessage   `bson:"last_message,omitempty" json:"last_message,omitempty"`
	UnreadCounts map[string]int `bson:"unread_counts" json:"unread_counts"`

	HasHandoverRequest    bool          `bson:"has_handover_request" json:"has_handover_request"`
	HandoverRequestID     string        `bson:"handover_request_id,omitempty" json:"handover_request_id,omitempty"`
	HandoverRequestStatus RequestStatus `bson:"handover_request_status,omitempty" json:"handover_request_status,omitempty"`
	HasClaimRequest       bool          `bson:"has_claim_request" json:"has_claim_request"`
	ClaimRequestID        string        `bson:"claim_request_id,omitempty" json:"claim_request_id,omitempty"`
	ClaimRequestStatus    RequestStatus `bson:"claim_request_status,omitempty" json:"claim_request_status,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// PairKey builds the order-independent key for a participant pair.
func PairKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, "|")
}

// Valid reports whether the conversation has a full participant set.
// Records with fewer than 2 participants are partially created or corrupted
// and are filtered out of listings.
func (c *Conversation) Valid() bool {
	return len(c.Participants) >= 2
}

func (c *Conversation) IsParticipant(userID string) bool {
	_, ok := c.Participants[userID]
	return ok
}

// OtherParticipants returns every participant id except the given one.
func (c *Conversation) OtherParticipants(userID string) []string {
	out := make([]string, 0, len(c.Participants))
	for id := range c.Participants {
		if id != userID {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
