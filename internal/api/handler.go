package api

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/strwt/UniclaimRepo-sub001/internal/auditor"
	"github.com/strwt/UniclaimRepo-sub001/internal/domain"
	"github.com/strwt/UniclaimRepo-sub001/internal/service"
)

type handlers struct {
	d Deps
}

func newHandlers(d Deps) *handlers { return &handlers{d: d} }

func userID(c *fiber.Ctx) string { return c.Locals("user_id").(string) }

func isAdmin(c *fiber.Ctx) bool {
	v, _ := c.Locals("admin").(bool)
	return v
}

// fail maps domain errors onto HTTP statuses.
func fail(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, domain.ErrPermission):
		return c.Status(403).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(404).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, domain.ErrStateConflict), errors.Is(err, domain.ErrNotARequest):
		return c.Status(409).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
}

func (h *handlers) healthz(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
	defer cancel()
	if h.d.Cache != nil {
		if err := h.d.Cache.Ping(ctx); err != nil {
			return c.Status(503).JSON(fiber.Map{"status": "degraded", "redis": err.Error()})
		}
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *handlers) requireAdmin(c *fiber.Ctx) error {
	if !isAdmin(c) {
		return c.Status(403).JSON(fiber.Map{"error": "admin only"})
	}
	return c.Next()
}

func (h *handlers) createConversation(c *fiber.Ctx) error {
	var req struct {
		PostID  string `json:"post_id"`
		OwnerID string `json:"owner_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	ctx, cancel := context.WithTimeout(c.Context(), 10*time.Second)
	defer cancel()

	conv, err := h.d.Conversations.CreateOrGet(ctx, req.PostID, req.OwnerID, userID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"status": "ok", "data": conv})
}

func (h *handlers) listConversations(c *fiber.Ctx) error {
	convs, err := h.d.Conversations.List(c.Context(), userID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": convs})
}

func (h *handlers) resolveConversation(c *fiber.Ctx) error {
	postID := c.Query("post_id")
	other := c.Query("user_id")
	if postID == "" || other == "" {
		return c.Status(400).JSON(fiber.Map{"error": "post_id and user_id required"})
	}
	conv, err := h.d.Conversations.Resolve(c.Context(), postID, userID(c), other)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": conv})
}

func (h *handlers) getConversation(c *fiber.Ctx) error {
	conv, err := h.d.Conversations.Get(c.Context(), c.Params("conv_id"), userID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": conv})
}

func (h *handlers) markConversationRead(c *fiber.Ctx) error {
	if err := h.d.Conversations.MarkRead(c.Context(), c.Params("conv_id"), userID(c)); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *handlers) deleteConversation(c *fiber.Ctx) error {
	if !isAdmin(c) {
		return c.Status(403).JSON(fiber.Map{"error": "admin only"})
	}
	if err := h.d.Conversations.Delete(c.Context(), c.Params("conv_id")); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *handlers) sendMessage(c *fiber.Ctx) error {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	user := userID(c)

	if h.d.Cache != nil {
		ok, err := h.d.Cache.AllowSend(c.Context(), user, h.d.SendRate, time.Minute)
		if err != nil {
			h.d.Log.Warnw("rate limit check failed", "err", err)
		} else if !ok {
			return c.Status(429).JSON(fiber.Map{"error": "rate limited"})
		}
	}

	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()
	msg, err := h.d.Messages.Send(ctx, c.Params("conv_id"), user, req.Text)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"status": "ok", "data": msg})
}

func (h *handlers) listMessages(c *fiber.Ctx) error {
	convID := c.Params("conv_id")
	user := userID(c)
	limit := int64(c.QueryInt("limit", 50))

	if raw := c.Query("before"); raw != "" {
		before, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid before timestamp"})
		}
		msgs, err := h.d.Messages.GetOlderMessages(c.Context(), convID, user, before, limit)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"status": "ok", "data": msgs})
	}

	msgs, err := h.d.Messages.GetMessages(c.Context(), convID, user, limit)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": msgs})
}

func (h *handlers) markMessageRead(c *fiber.Ctx) error {
	err := h.d.Messages.MarkMessageRead(c.Context(), c.Params("conv_id"), c.Params("msg_id"), userID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *handlers) markAllRead(c *fiber.Ctx) error {
	if err := h.d.Messages.MarkAllUnreadAsRead(c.Context(), c.Params("conv_id"), userID(c)); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *handlers) deleteMessage(c *fiber.Ctx) error {
	err := h.d.Messages.DeleteMessage(c.Context(), c.Params("conv_id"), c.Params("msg_id"), userID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func requestKind(c *fiber.Ctx) (domain.RequestKind, bool) {
	switch c.Params("kind") {
	case "handover":
		return domain.KindHandover, true
	case "claim":
		return domain.KindClaim, true
	}
	return "", false
}

func (h *handlers) sendRequest(c *fiber.Ctx) error {
	kind, ok := requestKind(c)
	if !ok {
		return c.Status(404).JSON(fiber.Map{"error": "unknown request kind"})
	}
	var req struct {
		Reason         string `json:"reason"`
		IDPhotoURL     string `json:"id_photo_url"`
		EvidencePhotos []struct {
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"evidence_photos"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}

	now := time.Now().UTC()
	in := service.RequestInput{Reason: req.Reason, IDPhotoURL: req.IDPhotoURL}
	for _, p := range req.EvidencePhotos {
		in.EvidencePhotos = append(in.EvidencePhotos, domain.EvidencePhoto{
			URL:         p.URL,
			UploadedAt:  now,
			Description: p.Description,
		})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()
	msg, err := h.d.Requests.Send(ctx, kind, c.Params("conv_id"), userID(c), in)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"status": "ok", "data": msg})
}

func (h *handlers) respondRequest(c *fiber.Ctx) error {
	kind, ok := requestKind(c)
	if !ok {
		return c.Status(404).JSON(fiber.Map{"error": "unknown request kind"})
	}
	var req struct {
		Accept     bool   `json:"accept"`
		IDPhotoURL string `json:"id_photo_url"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()
	msg, err := h.d.Requests.Respond(ctx, kind, c.Params("conv_id"), c.Params("msg_id"), userID(c), req.Accept, req.IDPhotoURL)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": msg})
}

func (h *handlers) confirmRequest(c *fiber.Ctx) error {
	kind, ok := requestKind(c)
	if !ok {
		return c.Status(404).JSON(fiber.Map{"error": "unknown request kind"})
	}
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()
	msg, err := h.d.Requests.Confirm(ctx, kind, c.Params("conv_id"), c.Params("msg_id"), userID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": msg})
}

func (h *handlers) detectGhosts(c *fiber.Ctx) error {
	ghosts, err := h.d.Auditor.DetectGhostConversations(c.Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": ghosts})
}

func (h *handlers) cleanupGhosts(c *fiber.Ctx) error {
	var req struct {
		Candidates       []auditor.GhostCandidate `json:"candidates"`
		IncludeForbidden bool                     `json:"include_forbidden"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	report := h.d.Auditor.CleanupGhostConversations(c.Context(), req.Candidates,
		auditor.CleanupOptions{IncludeForbidden: req.IncludeForbidden})
	return c.JSON(fiber.Map{"status": "ok", "data": report})
}

func (h *handlers) detectOrphans(c *fiber.Ctx) error {
	orphans, err := h.d.Auditor.DetectOrphanedMessages(c.Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": orphans})
}

func (h *handlers) cleanupOrphans(c *fiber.Ctx) error {
	var req struct {
		Candidates []auditor.OrphanCandidate `json:"candidates"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	report := h.d.Auditor.CleanupOrphanedMessages(c.Context(), req.Candidates)
	return c.JSON(fiber.Map{"status": "ok", "data": report})
}

func (h *handlers) quickHealth(c *fiber.Ctx) error {
	report, err := h.d.Auditor.QuickHealthCheck(c.Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": report})
}
