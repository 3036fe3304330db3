package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/strwt/UniclaimRepo-sub001/internal/domain"
)

// RequestService drives the handover and claim workflows. Both share one
// state machine; they differ only in which side uploads which evidence.
type RequestService struct {
	convs    ConversationStore
	messages MessageStore
	sender   *MessageService
	posts    PostDirectory
	pub      Publisher
	log      *zap.SugaredLogger

	now func() time.Time
}

func NewRequestService(convs ConversationStore, messages MessageStore, sender *MessageService, posts PostDirectory, pub Publisher, log *zap.SugaredLogger) *RequestService {
	return &RequestService{
		convs:    convs,
		messages: messages,
		sender:   sender,
		posts:    posts,
		pub:      pub,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type RequestInput struct {
	Reason         string
	IDPhotoURL     string
	EvidencePhotos []domain.EvidencePhoto
}

// Send initiates a workflow by appending a typed request message and flagging
// the conversation. Evidence URLs are validated before anything is stored.
func (s *RequestService) Send(ctx context.Context, kind domain.RequestKind, convID, senderID string, in RequestInput) (*domain.Message, error) {
	conv, err := s.convs.Get(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !conv.IsParticipant(senderID) {
		return nil, fmt.Errorf("%w: not a participant", domain.ErrPermission)
	}

	data := &domain.RequestData{
		Kind:           kind,
		PostID:         conv.PostID,
		PostTitle:      conv.PostTitle,
		Reason:         in.Reason,
		Status:         domain.StatusPending,
		IDPhotoURL:     in.IDPhotoURL,
		EvidencePhotos: in.EvidencePhotos,
		RequestedAt:    s.now(),
	}
	if err := data.ValidateEvidence(); err != nil {
		return nil, err
	}

	sender := conv.Participants[senderID]
	msg := &domain.Message{
		ID:                   uuid.NewString(),
		ConversationID:       convID,
		SenderID:             senderID,
		SenderName:           sender.FirstName + " " + sender.LastName,
		SenderProfilePicture: sender.ProfilePicture,
		Text:                 requestText(kind),
		Type:                 kind.RequestMessageType(),
		Request:              data,
	}
	if err := s.sender.Append(ctx, conv, msg); err != nil {
		return nil, err
	}

	if err := s.convs.SetRequestState(ctx, convID, kind, msg.ID, domain.StatusPending); err != nil {
		s.log.Warnw("request flag update failed", "conversation_id", convID, "err", err)
	}
	s.publishStatus(ctx, convID, msg.ID, kind, domain.StatusPending, senderID)
	return msg, nil
}

// Respond applies the counterparty's decision to a pending request. A direct
// rejection is terminal; an acceptance with responder identity evidence moves
// the request to pending_confirmation.
func (s *RequestService) Respond(ctx context.Context, kind domain.RequestKind, convID, msgID, responderID string, accept bool, responderIDPhoto string) (*domain.Message, error) {
	conv, msg, err := s.loadRequest(ctx, kind, convID, msgID)
	if err != nil {
		return nil, err
	}
	if !conv.IsParticipant(responderID) {
		return nil, fmt.Errorf("%w: not a participant", domain.ErrPermission)
	}
	if msg.SenderID == responderID {
		return nil, fmt.Errorf("%w: cannot respond to your own request", domain.ErrPermission)
	}

	prev := msg.Request.Status
	data := *msg.Request
	if err := data.ApplyResponse(responderID, accept, responderIDPhoto, s.now()); err != nil {
		return nil, err
	}

	ok, err := s.messages.UpdateRequest(ctx, convID, msgID, prev, &data)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: request changed concurrently", domain.ErrStateConflict)
	}
	msg.Request = &data

	if err := s.convs.SetRequestState(ctx, convID, kind, msgID, data.Status); err != nil {
		s.log.Warnw("request status denorm failed", "conversation_id", convID, "err", err)
	}

	s.appendResponseNote(ctx, conv, kind, responderID, accept)
	s.publishStatus(ctx, convID, msgID, kind, data.Status, responderID)
	return msg, nil
}

// Confirm verifies the responder's identity photo, completing the workflow.
// Only the original requester or the post creator may confirm. Re-confirming
// an already confirmed request succeeds without touching anything.
func (s *RequestService) Confirm(ctx context.Context, kind domain.RequestKind, convID, msgID, confirmerID string) (*domain.Message, error) {
	conv, msg, err := s.loadRequest(ctx, kind, convID, msgID)
	if err != nil {
		return nil, err
	}
	if confirmerID != msg.SenderID && confirmerID != conv.PostCreatorID {
		return nil, fmt.Errorf("%w: not authorized to confirm", domain.ErrPermission)
	}

	prev := msg.Request.Status
	data := *msg.Request
	if err := data.Confirm(confirmerID, s.now()); err != nil {
		return nil, err
	}
	if prev == domain.StatusAccepted {
		// already confirmed, nothing to write
		return msg, nil
	}

	ok, err := s.messages.UpdateRequest(ctx, convID, msgID, prev, &data)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: request changed concurrently", domain.ErrStateConflict)
	}
	msg.Request = &data

	if err := s.convs.SetRequestState(ctx, convID, kind, msgID, domain.StatusAccepted); err != nil {
		s.log.Warnw("request status denorm failed", "conversation_id", convID, "err", err)
	}

	// Completion unlocks resolving the underlying post. The confirm itself
	// already succeeded, so a post-service failure is logged, not surfaced.
	if err := s.posts.SetPostStatus(ctx, conv.PostID, domain.PostResolved); err != nil {
		s.log.Errorw("post resolution failed after confirm",
			"post_id", conv.PostID, "conversation_id", convID, "err", err)
	}

	s.publishStatus(ctx, convID, msgID, kind, domain.StatusAccepted, confirmerID)
	return msg, nil
}

func (s *RequestService) loadRequest(ctx context.Context, kind domain.RequestKind, convID, msgID string) (*domain.Conversation, *domain.Message, error) {
	conv, err := s.convs.Get(ctx, convID)
	if err != nil {
		return nil, nil, err
	}
	msg, err := s.messages.Get(ctx, convID, msgID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, fmt.Errorf("message %s: %w", msgID, domain.ErrNotFound)
		}
		return nil, nil, err
	}
	if !msg.IsRequest(kind) {
		return nil, nil, fmt.Errorf("%w: expected a %s request", domain.ErrNotARequest, kind)
	}
	return conv, msg, nil
}

// appendResponseNote records the decision as an informational message so the
// thread reads coherently. Best-effort.
func (s *RequestService) appendResponseNote(ctx context.Context, conv *domain.Conversation, kind domain.RequestKind, responderID string, accept bool) {
	verb := "rejected"
	if accept {
		verb = "accepted"
	}
	responder := conv.Participants[responderID]
	note := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		SenderID:       responderID,
		SenderName:     responder.FirstName + " " + responder.LastName,
		Text:           fmt.Sprintf("%s %s the %s request", responder.FirstName, verb, kind),
		Type:           kind.ResponseMessageType(),
	}
	if err := s.sender.Append(ctx, conv, note); err != nil {
		s.log.Warnw("response note append failed", "conversation_id", conv.ID, "err", err)
	}
}

func (s *RequestService) publishStatus(ctx context.Context, convID, msgID string, kind domain.RequestKind, status domain.RequestStatus, actorID string) {
	if s.pub == nil {
		return
	}
	ev := domain.RequestEvent{
		Type:           domain.EventRequestStatusChanged,
		ConversationID: convID,
		MessageID:      msgID,
		Kind:           kind,
		Status:         status,
		ActorID:        actorID,
		At:             s.now(),
	}
	if err := s.pub.PublishMessage(ctx, convID, ev); err != nil {
		s.log.Warnw("event publish failed", "conversation_id", convID, "err", err)
	}
}

func requestText(kind domain.RequestKind) string {
	if kind == domain.KindClaim {
		return "Claim request"
	}
	return "Handover request"
}
