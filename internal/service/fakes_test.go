package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/strwt/UniclaimRepo-sub001/internal/clients"
	"github.com/strwt/UniclaimRepo-sub001/internal/domain"
	"github.com/strwt/UniclaimRepo-sub001/internal/repository"
	"go.uber.org/zap"
)

func testLogger() *zap.SugaredLogger { return zap.NewNop().Sugar() }

// fakeConvStore is an in-memory ConversationStore with the same dedup and
// counter semantics as the mongo repository.
type fakeConvStore struct {
	mu    sync.Mutex
	convs map[string]*domain.Conversation
}

func newFakeConvStore() *fakeConvStore {
	return &fakeConvStore{convs: map[string]*domain.Conversation{}}
}

func (f *fakeConvStore) CreateOrGet(_ context.Context, conv *domain.Conversation) (*domain.Conversation, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.convs {
		if c.PostID == conv.PostID && c.PairKey == conv.PairKey {
			cp := *c
			return &cp, false, nil
		}
	}
	cp := *conv
	f.convs[conv.ID] = &cp
	out := cp
	return &out, true, nil
}

func (f *fakeConvStore) Get(_ context.Context, id string) (*domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.convs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeConvStore) ListForUser(_ context.Context, userID string) ([]domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Conversation{}
	for _, c := range f.convs {
		for _, id := range c.ParticipantIDs {
			if id == userID {
				out = append(out, *c)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeConvStore) FindByPostAndPair(_ context.Context, postID, pairKey string) ([]domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Conversation{}
	for _, c := range f.convs {
		if c.PostID == postID && c.PairKey == pairKey {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeConvStore) ResetUnread(_ context.Context, convID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.convs[convID]
	if !ok {
		return domain.ErrNotFound
	}
	if c.UnreadCounts == nil {
		c.UnreadCounts = map[string]int{}
	}
	c.UnreadCounts[userID] = 0
	return nil
}

func (f *fakeConvStore) IncrementUnread(_ context.Context, convID string, userIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.convs[convID]
	if !ok {
		return domain.ErrNotFound
	}
	if c.UnreadCounts == nil {
		c.UnreadCounts = map[string]int{}
	}
	for _, id := range userIDs {
		c.UnreadCounts[id]++
	}
	return nil
}

func (f *fakeConvStore) SetLastMessage(_ context.Context, convID string, lm domain.LastMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.convs[convID]
	if !ok {
		return domain.ErrNotFound
	}
	c.LastMessage = &lm
	c.UpdatedAt = lm.Timestamp
	return nil
}

func (f *fakeConvStore) SetRequestState(_ context.Context, convID string, kind domain.RequestKind, requestID string, status domain.RequestStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.convs[convID]
	if !ok {
		return domain.ErrNotFound
	}
	if kind == domain.KindClaim {
		c.HasClaimRequest = true
		c.ClaimRequestStatus = status
		if requestID != "" {
			c.ClaimRequestID = requestID
		}
	} else {
		c.HasHandoverRequest = true
		c.HandoverRequestStatus = status
		if requestID != "" {
			c.HandoverRequestID = requestID
		}
	}
	return nil
}

func (f *fakeConvStore) Delete(_ context.Context, convID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.convs[convID]; !ok {
		return domain.ErrNotFound
	}
	delete(f.convs, convID)
	return nil
}

func (f *fakeConvStore) Watch(_ context.Context, _ string) (*repository.ConversationSubscription, error) {
	ch := make(chan domain.Conversation)
	return repository.NewConversationSubscription(ch, func() { close(ch) }), nil
}

// put seeds a conversation directly, bypassing CreateOrGet.
func (f *fakeConvStore) put(c *domain.Conversation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.convs[c.ID] = c
}

// fakeMsgStore is an in-memory MessageStore ordered by CreatedAt.
type fakeMsgStore struct {
	mu   sync.Mutex
	msgs map[string]*domain.Message
}

func newFakeMsgStore() *fakeMsgStore {
	return &fakeMsgStore{msgs: map[string]*domain.Message{}}
}

func (f *fakeMsgStore) Insert(_ context.Context, m *domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.msgs[m.ID]; ok {
		return nil
	}
	cp := *m
	f.msgs[m.ID] = &cp
	return nil
}

func (f *fakeMsgStore) Get(_ context.Context, convID, msgID string) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.msgs[msgID]
	if !ok || m.ConversationID != convID {
		return nil, domain.ErrNotFound
	}
	cp := *m
	if m.Request != nil {
		r := *m.Request
		cp.Request = &r
	}
	return &cp, nil
}

func (f *fakeMsgStore) sorted(convID string) []*domain.Message {
	out := []*domain.Message{}
	for _, m := range f.msgs {
		if m.ConversationID == convID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (f *fakeMsgStore) ListRecent(_ context.Context, convID string, limit int64) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.sorted(convID)
	if int64(len(all)) > limit {
		all = all[int64(len(all))-limit:]
	}
	out := make([]domain.Message, len(all))
	for i, m := range all {
		out[i] = *m
	}
	return out, nil
}

func (f *fakeMsgStore) ListBefore(_ context.Context, convID string, before time.Time, limit int64) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	older := []*domain.Message{}
	for _, m := range f.sorted(convID) {
		if m.CreatedAt.Before(before) {
			older = append(older, m)
		}
	}
	if int64(len(older)) > limit {
		older = older[int64(len(older))-limit:]
	}
	out := make([]domain.Message, len(older))
	for i, m := range older {
		out[i] = *m
	}
	return out, nil
}

func (f *fakeMsgStore) Count(_ context.Context, convID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.sorted(convID))), nil
}

func (f *fakeMsgStore) DeleteOldest(_ context.Context, convID string, n int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.sorted(convID)
	if n > int64(len(all)) {
		n = int64(len(all))
	}
	for _, m := range all[:n] {
		delete(f.msgs, m.ID)
	}
	return n, nil
}

func (f *fakeMsgStore) AddReadBy(_ context.Context, convID, msgID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.msgs[msgID]
	if !ok || m.ConversationID != convID {
		return domain.ErrNotFound
	}
	for _, id := range m.ReadBy {
		if id == userID {
			return nil
		}
	}
	m.ReadBy = append(m.ReadBy, userID)
	return nil
}

func (f *fakeMsgStore) MarkAllRead(_ context.Context, convID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.msgs {
		if m.ConversationID != convID {
			continue
		}
		seen := false
		for _, id := range m.ReadBy {
			if id == userID {
				seen = true
				break
			}
		}
		if !seen {
			m.ReadBy = append(m.ReadBy, userID)
		}
	}
	return nil
}

func (f *fakeMsgStore) Delete(_ context.Context, convID, msgID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.msgs[msgID]
	if !ok || m.ConversationID != convID {
		return domain.ErrNotFound
	}
	delete(f.msgs, msgID)
	return nil
}

func (f *fakeMsgStore) DeleteConversation(_ context.Context, convID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, m := range f.msgs {
		if m.ConversationID == convID {
			delete(f.msgs, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeMsgStore) UpdateRequest(_ context.Context, convID, msgID string, expect domain.RequestStatus, data *domain.RequestData) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.msgs[msgID]
	if !ok || m.ConversationID != convID || m.Request == nil || m.Request.Status != expect {
		return false, nil
	}
	cp := *data
	m.Request = &cp
	return true, nil
}

func (f *fakeMsgStore) Watch(_ context.Context, _ string) (*repository.MessageSubscription, error) {
	ch := make(chan domain.Message)
	return repository.NewMessageSubscription(ch, func() { close(ch) }), nil
}

// fakePosts is a canned PostDirectory.
type fakePosts struct {
	mu       sync.Mutex
	posts    map[string]*clients.Post
	statuses map[string]domain.PostStatus
}

func newFakePosts(posts ...*clients.Post) *fakePosts {
	f := &fakePosts{posts: map[string]*clients.Post{}, statuses: map[string]domain.PostStatus{}}
	for _, p := range posts {
		f.posts[p.ID] = p
	}
	return f
}

func (f *fakePosts) GetPost(_ context.Context, postID string) (*clients.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[postID]
	if !ok {
		return nil, fmt.Errorf("post %s: %w", postID, domain.ErrNotFound)
	}
	return p, nil
}

func (f *fakePosts) SetPostStatus(_ context.Context, postID string, status domain.PostStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.posts[postID]; !ok {
		return fmt.Errorf("post %s: %w", postID, domain.ErrNotFound)
	}
	f.statuses[postID] = status
	return nil
}

// fakeUsers resolves every id to a deterministic profile.
type fakeUsers struct{}

func (fakeUsers) GetProfile(_ context.Context, userID string) (*clients.Profile, error) {
	return &clients.Profile{FirstName: "User", LastName: userID}, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []any
}

func (f *fakePublisher) PublishMessage(_ context.Context, _ string, v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, v)
	return nil
}

// seedConversation creates a two-party conversation directly in the store.
func seedConversation(convs *fakeConvStore, id, postID, ownerID, requesterID string) *domain.Conversation {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := &domain.Conversation{
		ID:             id,
		PostID:         postID,
		PostTitle:      "Blue Backpack",
		PostType:       domain.PostLost,
		PostStatus:     domain.PostPending,
		PostCreatorID:  ownerID,
		PairKey:        domain.PairKey(ownerID, requesterID),
		ParticipantIDs: []string{ownerID, requesterID},
		Participants: map[string]domain.Participant{
			ownerID:     {FirstName: "Owner", LastName: ownerID, JoinedAt: now},
			requesterID: {FirstName: "Requester", LastName: requesterID, JoinedAt: now},
		},
		UnreadCounts: map[string]int{ownerID: 0, requesterID: 0},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	convs.put(c)
	return c
}

// stepClock hands out strictly increasing timestamps so message order is
// deterministic in tests.
func stepClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}
