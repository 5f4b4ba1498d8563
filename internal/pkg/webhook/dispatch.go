package webhook

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/fitstack/mindbridge/app/models"
)

// Dispatcher hands accepted events to processing. The intake pipeline is
// agnostic to whether processing runs inline or on a background queue.
type Dispatcher interface {
	// Enqueue schedules a freshly stored event for processing.
	Enqueue(event *models.WebhookEvent) error
	// EnqueueAfter schedules a retry attempt for an existing event.
	EnqueueAfter(eventID uint, delay time.Duration) error
}

// SyncDispatcher runs processing in-process. Enqueue blocks until the
// attempt finishes; retries fire from a timer.
type SyncDispatcher struct {
	svc *Service
}

func NewSyncDispatcher(svc *Service) *SyncDispatcher {
	return &SyncDispatcher{svc: svc}
}

func (d *SyncDispatcher) Enqueue(event *models.WebhookEvent) error {
	d.svc.ProcessEvent(context.Background(), event)
	return nil
}

func (d *SyncDispatcher) EnqueueAfter(eventID uint, delay time.Duration) error {
	time.AfterFunc(delay, func() {
		event, err := d.svc.Repo().GetByID(eventID)
		if err != nil {
			log.Errorf("[Webhook] retry reload failed for event %d: %v", eventID, err)
			return
		}
		d.svc.ProcessEvent(context.Background(), event)
	})
	return nil
}
