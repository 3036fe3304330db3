package repository

import (
	"sync"

	"github.com/strwt/UniclaimRepo-sub001/internal/domain"
)

// Subscriptions wrap change streams behind explicit handles owned by the
// caller. Close stops delivery and releases the underlying stream; it is safe
// to call more than once.

type ConversationSubscription struct {
	Updates   <-chan domain.Conversation
	closeOnce sync.Once
	cancel    func()
}

func NewConversationSubscription(updates <-chan domain.Conversation, cancel func()) *ConversationSubscription {
	return &ConversationSubscription{Updates: updates, cancel: cancel}
}

func (s *ConversationSubscription) Close() {
	s.closeOnce.Do(s.cancel)
}

type MessageSubscription struct {
	Updates   <-chan domain.Message
	closeOnce sync.Once
	cancel    func()
}

func NewMessageSubscription(updates <-chan domain.Message, cancel func()) *MessageSubscription {
	return &MessageSubscription{Updates: updates, cancel: cancel}
}

func (s *MessageSubscription) Close() {
	s.closeOnce.Do(s.cancel)
}
