package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/fitstack/mindbridge/internal/pkg/jobqueue"
	"github.com/fitstack/mindbridge/internal/pkg/middleware"
	"github.com/fitstack/mindbridge/internal/pkg/webhook"
)

// WebhookController serves the inbound webhook endpoint plus the health
// and operator surfaces.
type WebhookController struct {
	svc     *webhook.Service
	queue   *jobqueue.Queue
	version string
}

func NewWebhookController(svc *webhook.Service, queue *jobqueue.Queue, version string) *WebhookController {
	return &WebhookController{svc: svc, queue: queue, version: version}
}

// HandleInbound accepts one webhook delivery. Signature verification ran
// in the middleware; this handler drives the rest of the intake pipeline.
// The response is sent as soon as persistence succeeds; processing outcome
// never blocks it.
func (ctrl *WebhookController) HandleInbound(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)

	var signature *string
	if sig, ok := c.Locals(middleware.VerifiedSignatureKey).(string); ok && sig != "" {
		signature = &sig
	}

	var headersJSON *string
	if encoded, err := json.Marshal(c.GetReqHeaders()); err == nil {
		s := string(encoded)
		headersJSON = &s
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	result, err := ctrl.svc.Intake(ctx, rawBody, signature, headersJSON)
	if err != nil {
		var validationErr *webhook.ValidationError
		var unsupportedErr *webhook.UnsupportedEventError
		switch {
		case errors.Is(err, webhook.ErrEmptyPayload):
			return intakeRejected(c, "empty_payload", "request body is empty")
		case errors.As(err, &validationErr):
			return intakeRejected(c, "invalid_payload", validationErr.Reason)
		case errors.As(err, &unsupportedErr):
			return intakeRejected(c, "unsupported_event", unsupportedErr.Error())
		}
		log.Errorf("[Webhook] intake failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "internal_server_error",
			"message": "failed to store webhook event",
		})
	}

	message := "webhook accepted"
	if result.Duplicate {
		message = "duplicate delivery, event already recorded"
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success":    true,
		"message":    message,
		"event_id":   result.Event.EventID,
		"event_type": result.Event.EventType,
	})
}

// HandleHealth reports liveness; no auth.
func (ctrl *WebhookController) HandleHealth(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":    "ok",
		"service":   "mindbridge",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   ctrl.version,
	})
}

// HandleStats returns event counts by status and, when queued dispatch is
// active, the queue depths.
func (ctrl *WebhookController) HandleStats(c *fiber.Ctx) error {
	counts, err := ctrl.svc.Stats()
	if err != nil {
		log.Errorf("[Webhook] stats query failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "stats query failed"})
	}

	resp := fiber.Map{"events": counts}
	if ctrl.queue != nil {
		ctx := c.Context()
		if pending, err := ctrl.queue.GetQueueSize(ctx); err == nil {
			resp["queue_pending"] = pending
		}
		if processing, err := ctrl.queue.GetProcessingSize(ctx); err == nil {
			resp["queue_processing"] = processing
		}
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

// HandleListEvents returns recent events, optionally filtered by status
// (pending, processed, failed, terminal).
func (ctrl *WebhookController) HandleListEvents(c *fiber.Ctx) error {
	status := c.Query("status")
	limit, err := strconv.Atoi(c.Query("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		limit = 50
	}

	events, err := ctrl.svc.Repo().List(status, ctrl.svc.Config().MaxRetries, limit)
	if err != nil {
		log.Errorf("[Webhook] event listing failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "event listing failed"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"events": events, "count": len(events)})
}

func intakeRejected(c *fiber.Ctx, code, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"error":   code,
		"message": message,
	})
}
