package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/strwt/UniclaimRepo-sub001/internal/auditor"
	"github.com/strwt/UniclaimRepo-sub001/internal/auth"
	"github.com/strwt/UniclaimRepo-sub001/internal/cache"
	"github.com/strwt/UniclaimRepo-sub001/internal/service"
)

type Deps struct {
	Conversations *service.ConversationService
	Messages      *service.MessageService
	Requests      *service.RequestService
	Auditor       *auditor.Auditor
	Cache         *cache.Client
	JWT           *auth.JWTValidator
	SendRate      int
	Log           *zap.SugaredLogger
}

func NewServer(d Deps) *fiber.App {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(fiberlogger.New())

	h := newHandlers(d)

	app.Get("/healthz", h.healthz)

	v1 := app.Group("/v1")
	v1.Use(func(c *fiber.Ctx) error {
		hdr := c.Get("Authorization")
		if hdr == "" {
			return c.Status(401).JSON(fiber.Map{"error": "missing auth"})
		}
		const pref = "Bearer "
		if len(hdr) <= len(pref) || hdr[:len(pref)] != pref {
			return c.Status(401).JSON(fiber.Map{"error": "invalid auth"})
		}
		sub, admin, err := d.JWT.Validate(hdr[len(pref):])
		if err != nil {
			return c.Status(401).JSON(fiber.Map{"error": err.Error()})
		}
		c.Locals("user_id", sub)
		c.Locals("admin", admin)
		return c.Next()
	})

	v1.Post("/conversations", h.createConversation)
	v1.Get("/conversations", h.listConversations)
	v1.Get("/conversations/resolve", h.resolveConversation)
	v1.Get("/conversations/:conv_id", h.getConversation)
	v1.Post("/conversations/:conv_id/read", h.markConversationRead)
	v1.Delete("/conversations/:conv_id", h.deleteConversation)

	v1.Post("/conversations/:conv_id/messages", h.sendMessage)
	v1.Get("/conversations/:conv_id/messages", h.listMessages)
	v1.Post("/conversations/:conv_id/messages/:msg_id/read", h.markMessageRead)
	v1.Post("/conversations/:conv_id/read-all", h.markAllRead)
	v1.Delete("/conversations/:conv_id/messages/:msg_id", h.deleteMessage)

	v1.Post("/conversations/:conv_id/requests/:kind", h.sendRequest)
	v1.Post("/conversations/:conv_id/requests/:kind/:msg_id/response", h.respondRequest)
	v1.Post("/conversations/:conv_id/requests/:kind/:msg_id/confirm", h.confirmRequest)

	admin := v1.Group("/admin", h.requireAdmin)
	admin.Get("/integrity/ghosts", h.detectGhosts)
	admin.Post("/integrity/ghosts/cleanup", h.cleanupGhosts)
	admin.Get("/integrity/orphans", h.detectOrphans)
	admin.Post("/integrity/orphans/cleanup", h.cleanupOrphans)
	admin.Get("/integrity/health", h.quickHealth)

	ws := v1.Group("/ws")
	ws.Use(upgradeRequired)
	ws.Get("/conversations", websocket.New(h.watchConversations))
	ws.Get("/conversations/:conv_id/messages", websocket.New(h.watchMessages))

	return app
}

func upgradeRequired(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}
