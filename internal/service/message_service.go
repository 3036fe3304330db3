package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/strwt/UniclaimRepo-sub001/internal/domain"
	"github.com/strwt/UniclaimRepo-sub001/internal/repository"
)

// RetentionWindow is the number of messages kept per conversation. Anything
// older is evicted after a successful append.
const RetentionWindow = 50

const DefaultPageSize = 50

type MessageService struct {
	convs    ConversationStore
	messages MessageStore
	pub      Publisher
	log      *zap.SugaredLogger

	now func() time.Time
}

func NewMessageService(convs ConversationStore, messages MessageStore, pub Publisher, log *zap.SugaredLogger) *MessageService {
	return &MessageService{
		convs:    convs,
		messages: messages,
		pub:      pub,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Send appends a plain text message on behalf of a participant.
func (s *MessageService) Send(ctx context.Context, convID, senderID, text string) (*domain.Message, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: empty message", domain.ErrValidation)
	}
	conv, err := s.convs.Get(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !conv.IsParticipant(senderID) {
		return nil, fmt.Errorf("%w: not a participant", domain.ErrPermission)
	}

	sender := conv.Participants[senderID]
	msg := &domain.Message{
		ID:                   uuid.NewString(),
		ConversationID:       convID,
		SenderID:             senderID,
		SenderName:           sender.FirstName + " " + sender.LastName,
		SenderProfilePicture: sender.ProfilePicture,
		Text:                 text,
		Type:                 domain.MessageText,
	}
	if err := s.Append(ctx, conv, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Append is the single write path for every message variant: it assigns the
// server timestamp, stores the message, refreshes the last-message snapshot
// and bumps unread counters for everyone but the sender. On failure the whole
// sequence is retried, never an individual step; the idempotent insert keeps
// the retries from duplicating the message.
func (s *MessageService) Append(ctx context.Context, conv *domain.Conversation, msg *domain.Message) error {
	msg.CreatedAt = s.now()
	if msg.ReadBy == nil {
		msg.ReadBy = []string{msg.SenderID}
	}

	recipients := conv.OtherParticipants(msg.SenderID)
	op := func() error {
		if err := s.messages.Insert(ctx, msg); err != nil {
			return err
		}
		if err := s.convs.SetLastMessage(ctx, conv.ID, domain.LastMessage{
			Text:      msg.Text,
			SenderID:  msg.SenderID,
			Timestamp: msg.CreatedAt,
		}); err != nil {
			return err
		}
		return s.convs.IncrementUnread(ctx, conv.ID, recipients)
	}

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2)
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return fmt.Errorf("append message: %w", err)
	}

	s.evict(ctx, conv.ID)

	if s.pub != nil {
		ev := domain.MessageEvent{
			Type:           domain.EventMessageAppended,
			ConversationID: conv.ID,
			MessageID:      msg.ID,
			SenderID:       msg.SenderID,
			MessageType:    string(msg.Type),
			At:             msg.CreatedAt,
		}
		if err := s.pub.PublishMessage(ctx, conv.ID, ev); err != nil {
			s.log.Warnw("event publish failed", "conversation_id", conv.ID, "err", err)
		}
	}
	return nil
}

// evict trims the conversation back to the retention window. Best-effort:
// the send already succeeded, so failures are logged and swallowed.
func (s *MessageService) evict(ctx context.Context, convID string) {
	count, err := s.messages.Count(ctx, convID)
	if err != nil {
		s.log.Warnw("retention count failed", "conversation_id", convID, "err", err)
		return
	}
	if count <= RetentionWindow {
		return
	}
	n, err := s.messages.DeleteOldest(ctx, convID, count-RetentionWindow)
	if err != nil {
		s.log.Warnw("retention eviction failed", "conversation_id", convID, "err", err)
		return
	}
	s.log.Debugw("evicted old messages", "conversation_id", convID, "removed", n)
}

// GetMessages returns the most recent messages, oldest first.
func (s *MessageService) GetMessages(ctx context.Context, convID, userID string, limit int64) ([]domain.Message, error) {
	if limit <= 0 || limit > DefaultPageSize {
		limit = DefaultPageSize
	}
	if err := s.requireParticipant(ctx, convID, userID); err != nil {
		return nil, err
	}
	return s.messages.ListRecent(ctx, convID, limit)
}

// GetOlderMessages pages backwards from the given timestamp for infinite
// scroll. A short page means the log is exhausted.
func (s *MessageService) GetOlderMessages(ctx context.Context, convID, userID string, before time.Time, pageSize int64) ([]domain.Message, error) {
	if pageSize <= 0 || pageSize > DefaultPageSize {
		pageSize = DefaultPageSize
	}
	if err := s.requireParticipant(ctx, convID, userID); err != nil {
		return nil, err
	}
	return s.messages.ListBefore(ctx, convID, before, pageSize)
}

// MarkMessageRead adds the user to the message's read set. Idempotent.
func (s *MessageService) MarkMessageRead(ctx context.Context, convID, msgID, userID string) error {
	if err := s.requireParticipant(ctx, convID, userID); err != nil {
		return err
	}
	return s.messages.AddReadBy(ctx, convID, msgID, userID)
}

// MarkAllUnreadAsRead batch-marks every message the user has not seen and
// zeroes their unread counter.
func (s *MessageService) MarkAllUnreadAsRead(ctx context.Context, convID, userID string) error {
	if err := s.requireParticipant(ctx, convID, userID); err != nil {
		return err
	}
	if err := s.messages.MarkAllRead(ctx, convID, userID); err != nil {
		return err
	}
	return s.convs.ResetUnread(ctx, convID, userID)
}

// DeleteMessage removes one message. Only the sender may delete it.
func (s *MessageService) DeleteMessage(ctx context.Context, convID, msgID, userID string) error {
	msg, err := s.messages.Get(ctx, convID, msgID)
	if err != nil {
		return err
	}
	if msg.SenderID != userID {
		return fmt.Errorf("%w: only the sender can delete a message", domain.ErrPermission)
	}
	return s.messages.Delete(ctx, convID, msgID)
}

// Subscribe opens a live message feed for one conversation.
func (s *MessageService) Subscribe(ctx context.Context, convID, userID string) (*repository.MessageSubscription, error) {
	if err := s.requireParticipant(ctx, convID, userID); err != nil {
		return nil, err
	}
	return s.messages.Watch(ctx, convID)
}

func (s *MessageService) requireParticipant(ctx context.Context, convID, userID string) error {
	conv, err := s.convs.Get(ctx, convID)
	if err != nil {
		return err
	}
	if !conv.IsParticipant(userID) {
		return fmt.Errorf("%w: not a participant", domain.ErrPermission)
	}
	return nil
}
