package subscription

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/fitstack/mindbridge/internal/pkg/mindbody"
)

type fakeAPI struct {
	subs   []mindbody.Subscription
	nextID int

	listErr   error
	createErr map[string]error
	deleteErr map[string]error

	created []string
	deleted []string
}

func newFakeAPI(subs ...mindbody.Subscription) *fakeAPI {
	return &fakeAPI{subs: subs}
}

func (f *fakeAPI) ListSubscriptions(ctx context.Context) ([]mindbody.Subscription, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]mindbody.Subscription, len(f.subs))
	copy(out, f.subs)
	return out, nil
}

func (f *fakeAPI) CreateSubscription(ctx context.Context, eventType, webhookURL string) (*mindbody.Subscription, error) {
	if err := f.createErr[eventType]; err != nil {
		return nil, err
	}
	f.nextID++
	sub := mindbody.Subscription{
		ID:        fmt.Sprintf("sub-%d", f.nextID),
		EventType: eventType,
		URL:       webhookURL,
		Active:    true,
	}
	f.subs = append(f.subs, sub)
	f.created = append(f.created, eventType)
	return &sub, nil
}

func (f *fakeAPI) DeleteSubscription(ctx context.Context, subscriptionID string) error {
	if err := f.deleteErr[subscriptionID]; err != nil {
		return err
	}
	for i, sub := range f.subs {
		if sub.ID == subscriptionID {
			f.subs = append(f.subs[:i], f.subs[i+1:]...)
			break
		}
	}
	f.deleted = append(f.deleted, subscriptionID)
	return nil
}

const targetURL = "https://hooks.fitstack.test/webhooks/mindbody"

func TestBuildPlanAddsMissing(t *testing.T) {
	api := newFakeAPI(mindbody.Subscription{ID: "sub-a", EventType: "client.created", URL: targetURL})
	sync := NewSynchronizer(api, false)

	plan, err := sync.BuildPlan(context.Background(), []string{"client.created", "appointment.booked"}, targetURL)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}

	if len(plan.ToAdd) != 1 || plan.ToAdd[0] != "appointment.booked" {
		t.Fatalf("ToAdd = %v, want [appointment.booked]", plan.ToAdd)
	}
	if len(plan.ToUpdate) != 0 || len(plan.ToRemove) != 0 {
		t.Fatalf("unexpected updates/removes: %+v", plan)
	}
}

func TestBuildPlanFlagsStaleURL(t *testing.T) {
	api := newFakeAPI(mindbody.Subscription{ID: "sub-a", EventType: "client.created", URL: "https://old.example.test/hook"})
	sync := NewSynchronizer(api, false)

	plan, err := sync.BuildPlan(context.Background(), []string{"client.created"}, targetURL)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if len(plan.ToUpdate) != 1 || plan.ToUpdate[0].ID != "sub-a" {
		t.Fatalf("ToUpdate = %v, want [sub-a]", plan.ToUpdate)
	}
}

func TestBuildPlanLastWinsOnDuplicates(t *testing.T) {
	api := newFakeAPI(
		mindbody.Subscription{ID: "sub-old", EventType: "client.created", URL: "https://old.example.test/hook"},
		mindbody.Subscription{ID: "sub-new", EventType: "client.created", URL: targetURL},
	)
	sync := NewSynchronizer(api, false)

	plan, err := sync.BuildPlan(context.Background(), []string{"client.created"}, targetURL)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	// The later entry for a duplicated type is the one considered, and it
	// already points at the right URL.
	if len(plan.ToUpdate) != 0 {
		t.Fatalf("ToUpdate = %v, want empty", plan.ToUpdate)
	}
}

func TestBuildPlanExtrasRespectAutoCleanup(t *testing.T) {
	extra := mindbody.Subscription{ID: "sub-x", EventType: "staff.updated", URL: targetURL}

	plan, err := NewSynchronizer(newFakeAPI(extra), false).BuildPlan(context.Background(), []string{"client.created"}, targetURL)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if len(plan.ToRemove) != 0 || len(plan.Unmanaged) != 1 {
		t.Fatalf("without auto-cleanup: ToRemove=%v Unmanaged=%v", plan.ToRemove, plan.Unmanaged)
	}

	plan, err = NewSynchronizer(newFakeAPI(extra), true).BuildPlan(context.Background(), []string{"client.created"}, targetURL)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if len(plan.ToRemove) != 1 || len(plan.Unmanaged) != 0 {
		t.Fatalf("with auto-cleanup: ToRemove=%v Unmanaged=%v", plan.ToRemove, plan.Unmanaged)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	api := newFakeAPI(mindbody.Subscription{ID: "sub-a", EventType: "client.created", URL: "https://old.example.test/hook"})
	sync := NewSynchronizer(api, false)
	desired := []string{"client.created", "appointment.booked"}

	plan, result, err := sync.Reconcile(context.Background(), desired, targetURL)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if result.Added != 1 || result.Updated != 1 {
		t.Fatalf("first pass: added=%d updated=%d, want 1/1", result.Added, result.Updated)
	}
	if plan.Empty() {
		t.Fatal("first plan should not be empty")
	}

	plan, result, err = sync.Reconcile(context.Background(), desired, targetURL)
	if err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}
	if !plan.Empty() {
		t.Fatalf("second plan should be empty, got %+v", plan)
	}
	if result.Added+result.Updated+result.Removed != 0 {
		t.Fatalf("second pass should be a no-op, got %+v", result)
	}
}

func TestApplyUpdateIsDeleteThenRecreate(t *testing.T) {
	api := newFakeAPI(mindbody.Subscription{ID: "sub-a", EventType: "client.created", URL: "https://old.example.test/hook"})
	sync := NewSynchronizer(api, false)

	_, result, err := sync.Reconcile(context.Background(), []string{"client.created"}, targetURL)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if result.Updated != 1 {
		t.Fatalf("updated=%d, want 1", result.Updated)
	}
	if len(api.deleted) != 1 || api.deleted[0] != "sub-a" {
		t.Fatalf("deleted=%v, want [sub-a]", api.deleted)
	}
	if len(api.created) != 1 || api.created[0] != "client.created" {
		t.Fatalf("created=%v, want [client.created]", api.created)
	}
}

func TestApplyCollectsPartialFailures(t *testing.T) {
	api := newFakeAPI(mindbody.Subscription{ID: "sub-x", EventType: "staff.updated", URL: targetURL})
	api.createErr = map[string]error{"appointment.booked": errors.New("provider rejected")}
	api.deleteErr = map[string]error{"sub-x": errors.New("provider rejected")}
	sync := NewSynchronizer(api, true)

	_, result, err := sync.Reconcile(context.Background(), []string{"appointment.booked", "client.created"}, targetURL)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	// One add fails, the remove fails, but the other add still lands.
	if result.Added != 1 {
		t.Fatalf("added=%d, want 1", result.Added)
	}
	if len(result.Errors) != 2 {
		t.Fatalf("errors=%v, want 2 entries", result.Errors)
	}
	if len(api.created) != 1 || api.created[0] != "client.created" {
		t.Fatalf("created=%v, want [client.created]", api.created)
	}
}

func TestBuildPlanListFailure(t *testing.T) {
	api := newFakeAPI()
	api.listErr = errors.New("upstream down")
	sync := NewSynchronizer(api, false)

	if _, err := sync.BuildPlan(context.Background(), []string{"client.created"}, targetURL); err == nil {
		t.Fatal("expected error when the remote list is unavailable")
	}
}
