package api

import (
	"context"

	"github.com/gofiber/websocket/v2"
)

// Live subscriptions. Each socket owns exactly one subscription handle, closed
// when the socket goes away, so there is no listener registry to leak.

func (h *handlers) watchConversations(conn *websocket.Conn) {
	user, _ := conn.Locals("user_id").(string)
	if user == "" {
		conn.Close()
		return
	}

	sub, err := h.d.Conversations.Subscribe(context.Background(), user)
	if err != nil {
		h.d.Log.Warnw("conversation watch failed", "user_id", user, "err", err)
		conn.Close()
		return
	}
	defer sub.Close()

	go drainReads(conn, sub.Close)

	for conv := range sub.Updates {
		if !conv.Valid() {
			continue
		}
		if err := conn.WriteJSON(conv); err != nil {
			return
		}
	}
}

func (h *handlers) watchMessages(conn *websocket.Conn) {
	user, _ := conn.Locals("user_id").(string)
	convID := conn.Params("conv_id")
	if user == "" || convID == "" {
		conn.Close()
		return
	}

	sub, err := h.d.Messages.Subscribe(context.Background(), convID, user)
	if err != nil {
		h.d.Log.Warnw("message watch failed", "conversation_id", convID, "err", err)
		conn.Close()
		return
	}
	defer sub.Close()

	go drainReads(conn, sub.Close)

	for msg := range sub.Updates {
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// drainReads consumes client frames until the socket errors, then tears down
// the subscription so the write loop unblocks.
func drainReads(conn *websocket.Conn, onClose func()) {
	defer onClose()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
