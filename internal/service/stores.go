package service

import (
	"context"
	"time"

	"github.com/strwt/UniclaimRepo-sub001/internal/clients"
	"github.com/strwt/UniclaimRepo-sub001/internal/domain"
	"github.com/strwt/UniclaimRepo-sub001/internal/repository"
)

// Storage interfaces consumed by the services. The mongo repositories satisfy
// them; tests substitute in-memory fakes.

type ConversationStore interface {
	CreateOrGet(ctx context.Context, conv *domain.Conversation) (*domain.Conversation, bool, error)
	Get(ctx context.Context, id string) (*domain.Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]domain.Conversation, error)
	FindByPostAndPair(ctx context.Context, postID, pairKey string) ([]domain.Conversation, error)
	ResetUnread(ctx context.Context, convID, userID string) error
	IncrementUnread(ctx context.Context, convID string, userIDs []string) error
	SetLastMessage(ctx context.Context, convID string, lm domain.LastMessage) error
	SetRequestState(ctx context.Context, convID string, kind domain.RequestKind, requestID string, status domain.RequestStatus) error
	Delete(ctx context.Context, convID string) error
	Watch(ctx context.Context, userID string) (*repository.ConversationSubscription, error)
}

type MessageStore interface {
	Insert(ctx context.Context, m *domain.Message) error
	Get(ctx context.Context, convID, msgID string) (*domain.Message, error)
	ListRecent(ctx context.Context, convID string, limit int64) ([]domain.Message, error)
	ListBefore(ctx context.Context, convID string, before time.Time, limit int64) ([]domain.Message, error)
	Count(ctx context.Context, convID string) (int64, error)
	DeleteOldest(ctx context.Context, convID string, n int64) (int64, error)
	AddReadBy(ctx context.Context, convID, msgID, userID string) error
	MarkAllRead(ctx context.Context, convID, userID string) error
	Delete(ctx context.Context, convID, msgID string) error
	DeleteConversation(ctx context.Context, convID string) (int64, error)
	UpdateRequest(ctx context.Context, convID, msgID string, expect domain.RequestStatus, data *domain.RequestData) (bool, error)
	Watch(ctx context.Context, convID string) (*repository.MessageSubscription, error)
}

// PostDirectory is the external Post service seen by the core.
type PostDirectory interface {
	GetPost(ctx context.Context, postID string) (*clients.Post, error)
	SetPostStatus(ctx context.Context, postID string, status domain.PostStatus) error
}

// ProfileDirectory resolves users for participant denormalization.
type ProfileDirectory interface {
	GetProfile(ctx context.Context, userID string) (*clients.Profile, error)
}

// Publisher hands domain events to the external notification dispatcher.
// Publish failures are never allowed to fail the primary operation.
type Publisher interface {
	PublishMessage(ctx context.Context, key string, v any) error
}
