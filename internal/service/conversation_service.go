package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/strwt/UniclaimRepo-sub001/internal/domain"
	"github.com/strwt/UniclaimRepo-sub001/internal/repository"
)

type ConversationService struct {
	convs    ConversationStore
	messages MessageStore
	posts    PostDirectory
	users    ProfileDirectory
	pub      Publisher
	log      *zap.SugaredLogger
}

func NewConversationService(convs ConversationStore, messages MessageStore, posts PostDirectory, users ProfileDirectory, pub Publisher, log *zap.SugaredLogger) *ConversationService {
	return &ConversationService{convs: convs, messages: messages, posts: posts, users: users, pub: pub, log: log}
}

// CreateOrGet returns the canonical conversation for the post + participant
// pair, creating one when none exists. Post metadata and participant profiles
// are denormalized at creation time.
func (s *ConversationService) CreateOrGet(ctx context.Context, postID, ownerID, requesterID string) (*domain.Conversation, error) {
	if ownerID == requesterID {
		return nil, domain.ErrSelfConversation
	}
	if postID == "" || ownerID == "" || requesterID == "" {
		return nil, fmt.Errorf("%w: post_id, owner_id and requester_id required", domain.ErrValidation)
	}

	post, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("resolve post: %w", err)
	}

	now := time.Now().UTC()
	participants := map[string]domain.Participant{}
	for _, id := range []string{ownerID, requesterID} {
		p, err := s.users.GetProfile(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolve user %s: %w", id, err)
		}
		participants[id] = domain.Participant{
			FirstName:      p.FirstName,
			LastName:       p.LastName,
			ProfilePicture: p.ProfilePicture,
			JoinedAt:       now,
		}
	}

	conv := &domain.Conversation{
		ID:             uuid.NewString(),
		PostID:         postID,
		PostTitle:      post.Title,
		PostType:       post.Type,
		PostStatus:     post.Status,
		PostCreatorID:  post.CreatorID,
		FoundAction:    post.FoundAction,
		PairKey:        domain.PairKey(ownerID, requesterID),
		ParticipantIDs: []string{ownerID, requesterID},
		Participants:   participants,
		UnreadCounts:   map[string]int{ownerID: 0, requesterID: 0},
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	out, created, err := s.convs.CreateOrGet(ctx, conv)
	if err != nil {
		return nil, err
	}
	if created {
		s.publish(ctx, out.ID, domain.ConversationEvent{
			Type:           domain.EventConversationCreated,
			ConversationID: out.ID,
			PostID:         postID,
			ActorID:        requesterID,
			At:             now,
		})
	}
	return out, nil
}

// Resolve returns the earliest conversation for the pair. Duplicates created
// before the unique index converge here: later copies are reported but the
// first one wins.
func (s *ConversationService) Resolve(ctx context.Context, postID, userA, userB string) (*domain.Conversation, error) {
	convs, err := s.convs.FindByPostAndPair(ctx, postID, domain.PairKey(userA, userB))
	if err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		return nil, domain.ErrNotFound
	}
	if len(convs) > 1 {
		s.log.Warnw("duplicate conversations for pair, resolving to earliest",
			"post_id", postID, "count", len(convs), "canonical", convs[0].ID)
	}
	return &convs[0], nil
}

// List returns the user's conversations, dropping any record without a full
// participant set.
func (s *ConversationService) List(ctx context.Context, userID string) ([]domain.Conversation, error) {
	convs, err := s.convs.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := convs[:0]
	for _, c := range convs {
		if c.Valid() {
			out = append(out, c)
		}
	}
	return out, nil
}

// Subscribe opens a live feed of the user's conversations. The caller owns
// the handle and must Close it.
func (s *ConversationService) Subscribe(ctx context.Context, userID string) (*repository.ConversationSubscription, error) {
	return s.convs.Watch(ctx, userID)
}

func (s *ConversationService) Get(ctx context.Context, convID, userID string) (*domain.Conversation, error) {
	conv, err := s.convs.Get(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !conv.IsParticipant(userID) {
		return nil, fmt.Errorf("%w: not a participant", domain.ErrPermission)
	}
	return conv, nil
}

// MarkRead zeroes the user's unread counter. Last writer wins; a message
// landing right after leaves the counter at 1.
func (s *ConversationService) MarkRead(ctx context.Context, convID, userID string) error {
	conv, err := s.convs.Get(ctx, convID)
	if err != nil {
		return err
	}
	if !conv.IsParticipant(userID) {
		return fmt.Errorf("%w: not a participant", domain.ErrPermission)
	}
	return s.convs.ResetUnread(ctx, convID, userID)
}

// Delete removes the conversation and every message it owns. Admin-only; the
// permission check happens at the API layer.
func (s *ConversationService) Delete(ctx context.Context, convID string) error {
	if _, err := s.convs.Get(ctx, convID); err != nil {
		return err
	}
	n, err := s.messages.DeleteConversation(ctx, convID)
	if err != nil {
		return fmt.Errorf("cascade messages: %w", err)
	}
	if err := s.convs.Delete(ctx, convID); err != nil {
		return err
	}
	s.log.Infow("conversation deleted", "conversation_id", convID, "messages_removed", n)
	s.publish(ctx, convID, domain.ConversationEvent{
		Type:           domain.EventConversationDeleted,
		ConversationID: convID,
		At:             time.Now().UTC(),
	})
	return nil
}

func (s *ConversationService) publish(ctx context.Context, key string, v any) {
	if s.pub == nil {
		return
	}
	if err := s.pub.PublishMessage(ctx, key, v); err != nil {
		s.log.Warnw("event publish failed", "key", key, "err", err)
	}
}
