package domain

import (
	"fmt"
	"net/url"
	"time"
)

type RequestKind string

const (
	KindHandover RequestKind = "handover"
	KindClaim    RequestKind = "claim"
)

func (k RequestKind) RequestMessageType() MessageType {
	if k == KindClaim {
		return MessageClaimRequest
	}
	return MessageHandoverRequest
}

func (k RequestKind) ResponseMessageType() MessageType {
	if k == KindClaim {
		return MessageClaimResponse
	}
	return MessageHandoverResponse
}

type RequestStatus string

const (
	StatusPending             RequestStatus = "pending"
	StatusPendingConfirmation RequestStatus = "pending_confirmation"
	StatusAccepted            RequestStatus = "accepted"
	StatusRejected            RequestStatus = "rejected"
)

type EvidencePhoto struct {
	URL         string    `bson:"url" json:"url"`
	UploadedAt  time.Time `bson:"uploaded_at" json:"uploaded_at"`
	Description string    `bson:"description,omitempty" json:"description,omitempty"`
}

// RequestData is the mutable payload embedded in a handover or claim request
// message. Its status only ever moves forward:
//
//	pending -> pending_confirmation -> accepted | rejected
//	pending -> rejected
//
// Once accepted or rejected nothing mutates except the confirmation fields,
// which only go from unset to set.
type RequestData struct {
	Kind      RequestKind   `bson:"kind" json:"kind"`
	PostID    string        `bson:"post_id" json:"post_id"`
	PostTitle string        `bson:"post_title" json:"post_title"`
	Reason    string        `bson:"reason" json:"reason"`
	Status    RequestStatus `bson:"status" json:"status"`

	IDPhotoURL     string          `bson:"id_photo_url,omitempty" json:"id_photo_url,omitempty"`
	OwnerIDPhoto   string          `bson:"owner_id_photo,omitempty" json:"owner_id_photo,omitempty"`
	EvidencePhotos []EvidencePhoto `bson:"evidence_photos,omitempty" json:"evidence_photos,omitempty"`

	IDPhotoConfirmed bool       `bson:"id_photo_confirmed" json:"id_photo_confirmed"`
	ConfirmedAt      *time.Time `bson:"confirmed_at,omitempty" json:"confirmed_at,omitempty"`
	ConfirmedBy      string     `bson:"confirmed_by,omitempty" json:"confirmed_by,omitempty"`

	RequestedAt time.Time  `bson:"requested_at" json:"requested_at"`
	RespondedAt *time.Time `bson:"responded_at,omitempty" json:"responded_at,omitempty"`
	ResponderID string     `bson:"responder_id,omitempty" json:"responder_id,omitempty"`
}

// ValidateEvidence checks URL well-formedness of the identity photo and every
// evidence photo. It runs before the request is ever stored.
func (r *RequestData) ValidateEvidence() error {
	if r.IDPhotoURL != "" {
		if err := checkURL(r.IDPhotoURL); err != nil {
			return err
		}
	}
	for _, p := range r.EvidencePhotos {
		if err := checkURL(p.URL); err != nil {
			return err
		}
	}
	return nil
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidEvidence, raw)
	}
	return nil
}

// ApplyResponse moves the request according to the counterparty's decision.
// A rejection is terminal from either non-terminal state. An acceptance
// requires responder identity evidence and lands in pending_confirmation,
// never directly in accepted.
func (r *RequestData) ApplyResponse(responderID string, accept bool, responderIDPhoto string, now time.Time) error {
	switch r.Status {
	case StatusPending:
	case StatusPendingConfirmation:
		if accept {
			return fmt.Errorf("%w: request already accepted, awaiting confirmation", ErrStateConflict)
		}
	default:
		return fmt.Errorf("%w: request already %s", ErrStateConflict, r.Status)
	}

	r.ResponderID = responderID
	t := now
	r.RespondedAt = &t

	if !accept {
		r.Status = StatusRejected
		return nil
	}
	if err := checkURL(responderIDPhoto); err != nil {
		return err
	}
	r.OwnerIDPhoto = responderIDPhoto
	r.Status = StatusPendingConfirmation
	return nil
}

// Confirm verifies the responder's identity photo, which is the only way a
// request reaches accepted. Confirming an already confirmed request is a
// no-op; confirming from any other state is a conflict.
func (r *RequestData) Confirm(confirmerID string, now time.Time) error {
	switch r.Status {
	case StatusPendingConfirmation:
		r.IDPhotoConfirmed = true
		t := now
		r.ConfirmedAt = &t
		r.ConfirmedBy = confirmerID
		r.Status = StatusAccepted
		return nil
	case StatusAccepted:
		if r.IDPhotoConfirmed {
			return nil
		}
		return fmt.Errorf("%w: accepted without confirmation record", ErrStateConflict)
	default:
		return fmt.Errorf("%w: cannot confirm a %s request", ErrStateConflict, r.Status)
	}
}
