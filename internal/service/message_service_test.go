package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/strwt/UniclaimRepo-sub001/internal/domain"
)

func newMessageService(convs *fakeConvStore, msgs *fakeMsgStore) *MessageService {
	svc := NewMessageService(convs, msgs, &fakePublisher{}, testLogger())
	svc.now = stepClock()
	return svc
}

func TestSendRejectsNonParticipant(t *testing.T) {
	convs := newFakeConvStore()
	svc := newMessageService(convs, newFakeMsgStore())
	seedConversation(convs, "c1", "P123", "owner", "finder")

	_, err := svc.Send(context.Background(), "c1", "stranger", "hi")
	if !errors.Is(err, domain.ErrPermission) {
		t.Fatalf("expected permission error, got %v", err)
	}
}

func TestSendRejectsEmptyText(t *testing.T) {
	convs := newFakeConvStore()
	svc := newMessageService(convs, newFakeMsgStore())
	seedConversation(convs, "c1", "P123", "owner", "finder")

	_, err := svc.Send(context.Background(), "c1", "finder", "")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSendUpdatesSnapshotAndUnread(t *testing.T) {
	convs := newFakeConvStore()
	msgs := newFakeMsgStore()
	svc := newMessageService(convs, msgs)
	conv := seedConversation(convs, "c1", "P123", "owner", "finder")

	msg, err := svc.Send(context.Background(), conv.ID, "finder", "found it near the gym")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.CreatedAt.IsZero() {
		t.Fatal("expected server-assigned timestamp")
	}

	got, _ := convs.Get(context.Background(), conv.ID)
	if got.LastMessage == nil || got.LastMessage.Text != "found it near the gym" {
		t.Fatalf("last message snapshot not updated: %+v", got.LastMessage)
	}
	if got.LastMessage.SenderID != "finder" {
		t.Fatalf("snapshot sender = %s, want finder", got.LastMessage.SenderID)
	}
	if got.UnreadCounts["owner"] != 1 || got.UnreadCounts["finder"] != 0 {
		t.Fatalf("unread counts = %v", got.UnreadCounts)
	}
}

func TestUnreadCountsTrackPerRecipient(t *testing.T) {
	convs := newFakeConvStore()
	svc := newMessageService(convs, newFakeMsgStore())
	conv := seedConversation(convs, "c1", "P123", "owner", "finder")

	for i := 0; i < 3; i++ {
		if _, err := svc.Send(context.Background(), conv.ID, "finder", "msg"); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	if _, err := svc.Send(context.Background(), conv.ID, "owner", "reply"); err != nil {
		t.Fatalf("send reply: %v", err)
	}

	got, _ := convs.Get(context.Background(), conv.ID)
	if got.UnreadCounts["owner"] != 3 {
		t.Fatalf("owner unread = %d, want 3", got.UnreadCounts["owner"])
	}
	if got.UnreadCounts["finder"] != 1 {
		t.Fatalf("finder unread = %d, want 1", got.UnreadCounts["finder"])
	}
}

func TestRetentionKeepsNewestFifty(t *testing.T) {
	convs := newFakeConvStore()
	msgs := newFakeMsgStore()
	svc := newMessageService(convs, msgs)
	conv := seedConversation(convs, "c1", "P123", "owner", "finder")

	for i := 1; i <= 55; i++ {
		if _, err := svc.Send(context.Background(), conv.ID, "finder", fmt.Sprintf("message %d", i)); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	count, _ := msgs.Count(context.Background(), conv.ID)
	if count != RetentionWindow {
		t.Fatalf("stored messages = %d, want %d", count, RetentionWindow)
	}

	stored, err := svc.GetMessages(context.Background(), conv.ID, "owner", 50)
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(stored) != 50 {
		t.Fatalf("returned %d messages, want 50", len(stored))
	}
	if stored[0].Text != "message 6" {
		t.Fatalf("oldest retained = %q, want \"message 6\"", stored[0].Text)
	}
	if stored[len(stored)-1].Text != "message 55" {
		t.Fatalf("newest retained = %q, want \"message 55\"", stored[len(stored)-1].Text)
	}
}

func TestGetMessagesOldestFirst(t *testing.T) {
	convs := newFakeConvStore()
	svc := newMessageService(convs, newFakeMsgStore())
	conv := seedConversation(convs, "c1", "P123", "owner", "finder")

	for i := 1; i <= 3; i++ {
		if _, err := svc.Send(context.Background(), conv.ID, "finder", fmt.Sprintf("m%d", i)); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	out, err := svc.GetMessages(context.Background(), conv.ID, "owner", 50)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("len = %d, want 3", len(out))
	}
	if out[0].Text != "m1" || out[2].Text != "m3" {
		t.Fatalf("expected oldest-first ordering, got %q .. %q", out[0].Text, out[2].Text)
	}
}

func TestGetOlderMessagesPagination(t *testing.T) {
	convs := newFakeConvStore()
	svc := newMessageService(convs, newFakeMsgStore())
	conv := seedConversation(convs, "c1", "P123", "owner", "finder")

	var sent []*domain.Message
	for i := 1; i <= 10; i++ {
		m, err := svc.Send(context.Background(), conv.ID, "finder", fmt.Sprintf("m%d", i))
		if err != nil {
			t.Fatalf("send: %v", err)
		}
		sent = append(sent, m)
	}

	page, err := svc.GetOlderMessages(context.Background(), conv.ID, "owner", sent[5].CreatedAt, 3)
	if err != nil {
		t.Fatalf("older: %v", err)
	}
	if len(page) != 3 {
		t.Fatalf("page size = %d, want 3", len(page))
	}
	if page[2].Text != "m5" {
		t.Fatalf("newest in page = %q, want m5", page[2].Text)
	}

	// paging past the beginning returns a short page
	short, err := svc.GetOlderMessages(context.Background(), conv.ID, "owner", sent[1].CreatedAt, 5)
	if err != nil {
		t.Fatalf("older short: %v", err)
	}
	if len(short) != 1 || short[0].Text != "m1" {
		t.Fatalf("expected the single first message, got %v", short)
	}
}

func TestMarkMessageReadIsIdempotent(t *testing.T) {
	convs := newFakeConvStore()
	msgs := newFakeMsgStore()
	svc := newMessageService(convs, msgs)
	conv := seedConversation(convs, "c1", "P123", "owner", "finder")

	m, err := svc.Send(context.Background(), conv.ID, "finder", "hello")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := svc.MarkMessageRead(context.Background(), conv.ID, m.ID, "owner"); err != nil {
			t.Fatalf("mark read %d: %v", i, err)
		}
	}
	got, _ := msgs.Get(context.Background(), conv.ID, m.ID)
	n := 0
	for _, id := range got.ReadBy {
		if id == "owner" {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("owner appears %d times in read_by, want 1", n)
	}
}

func TestMarkAllUnreadAsRead(t *testing.T) {
	convs := newFakeConvStore()
	msgs := newFakeMsgStore()
	svc := newMessageService(convs, msgs)
	conv := seedConversation(convs, "c1", "P123", "owner", "finder")

	for i := 0; i < 4; i++ {
		if _, err := svc.Send(context.Background(), conv.ID, "finder", "msg"); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	if err := svc.MarkAllUnreadAsRead(context.Background(), conv.ID, "owner"); err != nil {
		t.Fatalf("mark all: %v", err)
	}

	all, _ := svc.GetMessages(context.Background(), conv.ID, "owner", 50)
	for _, m := range all {
		found := false
		for _, id := range m.ReadBy {
			if id == "owner" {
				found = true
			}
		}
		if !found {
			t.Fatalf("message %s missing owner in read_by", m.ID)
		}
	}
	got, _ := convs.Get(context.Background(), conv.ID)
	if got.UnreadCounts["owner"] != 0 {
		t.Fatalf("owner unread = %d, want 0", got.UnreadCounts["owner"])
	}
}

func TestDeleteMessageSenderOnly(t *testing.T) {
	convs := newFakeConvStore()
	msgs := newFakeMsgStore()
	svc := newMessageService(convs, msgs)
	conv := seedConversation(convs, "c1", "P123", "owner", "finder")

	m, err := svc.Send(context.Background(), conv.ID, "finder", "oops")
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if err := svc.DeleteMessage(context.Background(), conv.ID, m.ID, "owner"); !errors.Is(err, domain.ErrPermission) {
		t.Fatalf("expected permission error for non-sender, got %v", err)
	}
	if err := svc.DeleteMessage(context.Background(), conv.ID, m.ID, "finder"); err != nil {
		t.Fatalf("sender delete: %v", err)
	}
	if _, err := msgs.Get(context.Background(), conv.ID, m.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("message should be gone, got %v", err)
	}
}

func TestSenderTimestampsAreMonotonic(t *testing.T) {
	convs := newFakeConvStore()
	svc := newMessageService(convs, newFakeMsgStore())
	conv := seedConversation(convs, "c1", "P123", "owner", "finder")

	var prev time.Time
	for i := 0; i < 5; i++ {
		m, err := svc.Send(context.Background(), conv.ID, "finder", "tick")
		if err != nil {
			t.Fatalf("send: %v", err)
		}
		if !m.CreatedAt.After(prev) {
			t.Fatalf("timestamp %v not after %v", m.CreatedAt, prev)
		}
		prev = m.CreatedAt
	}
}
