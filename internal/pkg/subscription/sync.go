package subscription

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/fitstack/mindbridge/internal/pkg/mindbody"
)

// API is the slice of the Mindbody client the synchronizer needs.
type API interface {
	ListSubscriptions(ctx context.Context) ([]mindbody.Subscription, error)
	CreateSubscription(ctx context.Context, eventType, webhookURL string) (*mindbody.Subscription, error)
	DeleteSubscription(ctx context.Context, subscriptionID string) error
}

// Plan is the computed diff between desired event types and the remote
// subscription list.
type Plan struct {
	ToAdd    []string                // desired event types with no remote subscription
	ToUpdate []mindbody.Subscription // remote subscriptions pointing at a stale URL
	ToRemove []mindbody.Subscription // remote extras (only acted on with auto-cleanup)

	// Unmanaged lists remote extras left untouched when auto-cleanup is
	// off, for reporting.
	Unmanaged []mindbody.Subscription

	WebhookURL string
}

// Empty reports whether applying the plan would be a no-op.
func (p *Plan) Empty() bool {
	return len(p.ToAdd) == 0 && len(p.ToUpdate) == 0 && len(p.ToRemove) == 0
}

// Result reports the outcome of applying a plan. Individual operation
// failures are collected; they never abort the remaining operations.
type Result struct {
	Added   int
	Updated int
	Removed int
	Errors  []error
}

// Synchronizer reconciles the configured event-type set against the
// provider's actual subscription list.
type Synchronizer struct {
	api         API
	autoCleanup bool
}

func NewSynchronizer(api API, autoCleanup bool) *Synchronizer {
	return &Synchronizer{api: api, autoCleanup: autoCleanup}
}

// BuildPlan fetches the remote state and computes the add/update/remove
// sets for the desired event types and target webhook URL.
func (s *Synchronizer) BuildPlan(ctx context.Context, desiredEventTypes []string, webhookURL string) (*Plan, error) {
	remote, err := s.api.ListSubscriptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing remote subscriptions: %w", err)
	}

	// Last-wins when the provider holds duplicates for an event type.
	byType := make(map[string]mindbody.Subscription, len(remote))
	for _, sub := range remote {
		byType[sub.EventType] = sub
	}

	desired := make(map[string]bool, len(desiredEventTypes))
	plan := &Plan{WebhookURL: webhookURL}
	for _, eventType := range desiredEventTypes {
		desired[eventType] = true
		sub, ok := byType[eventType]
		if !ok {
			plan.ToAdd = append(plan.ToAdd, eventType)
			continue
		}
		if sub.URL != webhookURL {
			plan.ToUpdate = append(plan.ToUpdate, sub)
		}
	}

	for _, sub := range remote {
		if desired[sub.EventType] {
			continue
		}
		if s.autoCleanup {
			plan.ToRemove = append(plan.ToRemove, sub)
		} else {
			plan.Unmanaged = append(plan.Unmanaged, sub)
		}
	}
	return plan, nil
}

// Apply executes the plan sequentially: removes first, then updates
// (delete-then-recreate, since the provider's in-place update is
// unreliable), then adds. Best effort; each failure is captured and the
// batch continues.
func (s *Synchronizer) Apply(ctx context.Context, plan *Plan) *Result {
	result := &Result{}

	for _, sub := range plan.ToRemove {
		if err := s.api.DeleteSubscription(ctx, sub.ID); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("removing %s (%s): %w", sub.EventType, sub.ID, err))
			continue
		}
		result.Removed++
	}

	for _, sub := range plan.ToUpdate {
		if err := s.api.DeleteSubscription(ctx, sub.ID); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("replacing %s (%s): %w", sub.EventType, sub.ID, err))
			continue
		}
		if _, err := s.api.CreateSubscription(ctx, sub.EventType, plan.WebhookURL); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("recreating %s: %w", sub.EventType, err))
			continue
		}
		result.Updated++
	}

	for _, eventType := range plan.ToAdd {
		if _, err := s.api.CreateSubscription(ctx, eventType, plan.WebhookURL); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("adding %s: %w", eventType, err))
			continue
		}
		result.Added++
	}

	for _, sub := range plan.Unmanaged {
		log.Infof("[Subscriptions] leaving unmanaged remote subscription %s (%s) untouched", sub.EventType, sub.ID)
	}
	return result
}

// Reconcile builds and applies a plan in one call. Running it twice with
// no external changes and no auto-cleanup yields an empty second plan.
func (s *Synchronizer) Reconcile(ctx context.Context, desiredEventTypes []string, webhookURL string) (*Plan, *Result, error) {
	plan, err := s.BuildPlan(ctx, desiredEventTypes, webhookURL)
	if err != nil {
		return nil, nil, err
	}
	return plan, s.Apply(ctx, plan), nil
}
