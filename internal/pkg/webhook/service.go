package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"

	"github.com/fitstack/mindbridge/app/models"
)

// Processor executes the event-specific business logic for one event type.
type Processor func(ctx context.Context, event *models.WebhookEvent) error

// Service orchestrates the intake pipeline (validate, dedup-insert,
// dispatch) and the processing lifecycle (success, retry, terminal failure).
type Service struct {
	repo       Repository
	cfg        Config
	dispatcher Dispatcher
	validate   *validator.Validate
	processors map[string]Processor
}

func NewService(repo Repository, cfg Config) *Service {
	return &Service{
		repo:       repo,
		cfg:        cfg,
		validate:   validator.New(),
		processors: make(map[string]Processor),
	}
}

// SetDispatcher wires the dispatch strategy. A nil dispatcher disables
// automatic dispatch and retry scheduling; events stay pending for the
// next batch run.
func (s *Service) SetDispatcher(d Dispatcher) {
	s.dispatcher = d
}

// RegisterProcessor installs the business-logic handler for an event type.
// Types without a registered processor are acknowledged and logged.
func (s *Service) RegisterProcessor(eventType string, p Processor) {
	s.processors[eventType] = p
}

func (s *Service) Repo() Repository {
	return s.repo
}

func (s *Service) Config() Config {
	return s.cfg
}

// IntakeResult is what the HTTP layer reports back to the sender.
type IntakeResult struct {
	Event     *models.WebhookEvent
	Duplicate bool
}

// Intake runs the per-request pipeline: payload extraction, shape
// validation, allow-list check, dedup insert, dispatch. Signature
// verification happens before this in the HTTP middleware; the verified
// signature is recorded on the stored event. A duplicate delivery of a
// known event id succeeds without dispatching again.
func (s *Service) Intake(ctx context.Context, rawBody []byte, signature, headersJSON *string) (*IntakeResult, error) {
	if len(rawBody) == 0 {
		return nil, ErrEmptyPayload
	}

	var payload Payload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, &ValidationError{Reason: "malformed JSON body"}
	}
	if err := s.validate.Struct(&payload); err != nil {
		return nil, &ValidationError{Reason: validationReason(err)}
	}
	if !s.cfg.Supports(payload.EventType) {
		return nil, &UnsupportedEventError{EventType: payload.EventType}
	}

	eventData, err := json.Marshal(payload.EventData)
	if err != nil {
		return nil, &ValidationError{Reason: "event data is not serializable"}
	}

	event := &models.WebhookEvent{
		EventType:      payload.EventType,
		EventData:      string(eventData),
		EventTimestamp: payload.EventTimestamp,
		Headers:        headersJSON,
		Signature:      signature,
	}
	if payload.EventID != "" {
		event.EventID = &payload.EventID
	}
	if payload.SiteID != "" {
		event.SiteID = &payload.SiteID
	}

	created, stored, err := s.repo.CreateIfNotExists(event)
	if err != nil {
		return nil, fmt.Errorf("storing webhook event: %w", err)
	}
	if !created {
		log.Infof("[Webhook] duplicate delivery for event %s, skipping dispatch", payload.EventID)
		return &IntakeResult{Event: stored, Duplicate: true}, nil
	}

	if s.dispatcher != nil {
		if err := s.dispatcher.Enqueue(stored); err != nil {
			// The event is persisted; dispatch failure only delays it
			// until the next process-pending sweep.
			log.Errorf("[Webhook] dispatch failed for event %d: %v", stored.ID, err)
		}
	}
	return &IntakeResult{Event: stored}, nil
}

// ProcessEvent runs the business logic for one stored event and records
// the outcome. Returns true on success. Already-processed events are a
// no-op success.
func (s *Service) ProcessEvent(ctx context.Context, event *models.WebhookEvent) bool {
	if event.Processed {
		return true
	}

	// Re-check against the allow-list: the configuration may have
	// drifted between intake and processing.
	if !s.cfg.Supports(event.EventType) {
		s.recordFailure(event, fmt.Sprintf("event type %q no longer supported", event.EventType))
		return false
	}

	if err := s.runProcessor(ctx, event); err != nil {
		s.recordFailure(event, err.Error())
		return false
	}

	if err := s.repo.MarkProcessed(event.ID); err != nil {
		log.Errorf("[Webhook] failed to mark event %d processed: %v", event.ID, err)
		return false
	}
	return true
}

// runProcessor invokes the registered handler, converting panics into
// errors so a misbehaving processor cannot take down a worker.
func (s *Service) runProcessor(ctx context.Context, event *models.WebhookEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panic: %v", r)
		}
	}()

	proc, ok := s.processors[event.EventType]
	if !ok {
		log.Infof("[Webhook] no processor registered for %s, acknowledging event %d", event.EventType, event.ID)
		return nil
	}
	return proc(ctx, event)
}

func (s *Service) recordFailure(event *models.WebhookEvent, reason string) {
	retryCount, err := s.repo.MarkFailed(event.ID, reason)
	if err != nil {
		log.Errorf("[Webhook] failed to record failure for event %d: %v", event.ID, err)
		return
	}

	if retryCount < s.cfg.MaxRetries {
		delay := ComputeDelay(retryCount, s.cfg.BaseDelaySeconds, s.cfg.Exponential, s.cfg.MaxDelaySeconds)
		log.Warnf("[Webhook] event %d failed (attempt %d/%d), retrying in %ds: %s",
			event.ID, retryCount, s.cfg.MaxRetries, delay, reason)
		if s.dispatcher != nil {
			if err := s.dispatcher.EnqueueAfter(event.ID, time.Duration(delay)*time.Second); err != nil {
				log.Errorf("[Webhook] failed to schedule retry for event %d: %v", event.ID, err)
			}
		}
		return
	}

	log.Errorf("[Webhook] event %d permanently failed after %d retries: %s", event.ID, retryCount, reason)
}

// ProcessPending sweeps retryable events. It stops admitting new work once
// the wall-clock deadline passes, leaving the rest for the next invocation.
func (s *Service) ProcessPending(ctx context.Context, limit int, deadline time.Duration) (succeeded, failed int) {
	events, err := s.repo.Retryable(s.cfg.MaxRetries, limit)
	if err != nil {
		log.Errorf("[Webhook] failed to load retryable events: %v", err)
		return 0, 0
	}

	start := time.Now()
	for i := range events {
		if deadline > 0 && time.Since(start) > deadline {
			log.Warnf("[Webhook] deadline reached after %d/%d events", i, len(events))
			break
		}
		if s.ProcessEvent(ctx, &events[i]) {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

// Cleanup applies both retention windows and reports deleted row counts.
func (s *Service) Cleanup(now time.Time) (processedDeleted, failedDeleted int64, err error) {
	processedCutoff := now.AddDate(0, 0, -s.cfg.ProcessedRetentionDays)
	processedDeleted, err = s.repo.CleanupProcessed(processedCutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("cleaning processed events: %w", err)
	}

	failedCutoff := now.AddDate(0, 0, -s.cfg.FailedRetentionDays)
	failedDeleted, err = s.repo.CleanupFailed(failedCutoff)
	if err != nil {
		return processedDeleted, 0, fmt.Errorf("cleaning failed events: %w", err)
	}
	return processedDeleted, failedDeleted, nil
}

// Stats returns event counts by status for the operator surface.
func (s *Service) Stats() (*StatusCounts, error) {
	return s.repo.CountsByStatus(s.cfg.MaxRetries)
}

func validationReason(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		switch verrs[0].Field() {
		case "EventType":
			return "missing or empty EventType"
		case "EventData":
			return "missing EventData"
		}
	}
	return "payload failed validation"
}
