package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/fitstack/mindbridge/app/controllers"
	"github.com/fitstack/mindbridge/internal/pkg/env"
	"github.com/fitstack/mindbridge/internal/pkg/middleware"
	"github.com/fitstack/mindbridge/internal/pkg/webhook"
)

// WebhookRouter mounts the webhook intake, health, and operator routes
// under the configured prefix.
type WebhookRouter struct {
	ctrl *controllers.WebhookController
	cfg  webhook.Config
}

func NewWebhookRouter(ctrl *controllers.WebhookController, cfg webhook.Config) *WebhookRouter {
	return &WebhookRouter{ctrl: ctrl, cfg: cfg}
}

func (r WebhookRouter) InstallRouter(app *fiber.App) {
	prefix := env.GetEnv("WEBHOOK_PREFIX", "/webhooks/mindbody")
	grp := app.Group(prefix)

	grp.Post("/", middleware.SignatureMiddleware(r.cfg), r.ctrl.HandleInbound)
	grp.Get("/health", r.ctrl.HandleHealth)

	// Operator surface requires the admin key.
	admin := middleware.AdminAPIKeyMiddleware()
	grp.Get("/stats", admin, r.ctrl.HandleStats)
	grp.Get("/events", admin, r.ctrl.HandleListEvents)
}

// InstallRouter wires all route groups into the app.
func InstallRouter(app *fiber.App, ctrl *controllers.WebhookController, cfg webhook.Config) {
	setup(app, NewWebhookRouter(ctrl, cfg))
}
