package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	quoterepo "tripdesk_backend/internal/quotes/repository"
	"tripdesk_backend/platform/logger"

	"github.com/google/uuid"
)

type stubProvider struct {
	name       string
	prepareErr error
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Prepare(ctx context.Context, req BookingRequest) error {
	return p.prepareErr
}

func (p *stubProvider) Book(ctx context.Context, payload []byte) (string, error) {
	return "CONF-1", nil
}

type recordingTaskCreator struct {
	specs   []TaskSpec
	failAll bool
}

func (r *recordingTaskCreator) CreateFulfillmentTask(ctx context.Context, spec TaskSpec) (uuid.UUID, error) {
	if r.failAll {
		return uuid.Nil, errors.New("store unavailable")
	}
	r.specs = append(r.specs, spec)
	return uuid.New(), nil
}

func strPtr(s string) *string { return &s }

func testQuote() *quoterepo.Quote {
	return &quoterepo.Quote{
		ID:        uuid.New(),
		AgentID:   uuid.New(),
		Reference: "TRP-2026-0042",
		Currency:  "EUR",
	}
}

func TestDispatch_PartitionsItemsByProviderOutcome(t *testing.T) {
	registry := NewRegistryWith(
		&stubProvider{name: "flighthub"},
		&stubProvider{name: "hotelnet", prepareErr: errors.New("sold out")},
	)
	creator := &recordingTaskCreator{}
	d := NewDispatcher(registry, creator, logger.New("development"))

	quote := testQuote()
	items := []quoterepo.Item{
		{ID: uuid.New(), Type: quoterepo.ItemTypeFlight, Description: "AMS-BKK return", PriceCents: 80000, ProviderCode: strPtr("flighthub")},
		{ID: uuid.New(), Type: quoterepo.ItemTypeHotel, Description: "Riverside Hotel", PriceCents: 60000, ProviderCode: strPtr("hotelnet")},
		{ID: uuid.New(), Type: quoterepo.ItemTypeActivity, Description: "Temple tour", PriceCents: 5000},
	}

	summary, err := d.Dispatch(context.Background(), quote, items, uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.APISuccess != 1 {
		t.Fatalf("expected 1 api success, got %d", summary.APISuccess)
	}
	if summary.APIFailed != 1 {
		t.Fatalf("expected 1 api failure, got %d", summary.APIFailed)
	}
	// Two manual item tasks plus the confirmation upload wrap-up task.
	if summary.ManualTasks != 3 {
		t.Fatalf("expected 3 manual tasks, got %d", summary.ManualTasks)
	}
	if len(creator.specs) != 4 {
		t.Fatalf("expected 4 created tasks, got %d", len(creator.specs))
	}

	api := creator.specs[0]
	if api.Mode != TaskModeAPI || api.Provider != "flighthub" {
		t.Fatalf("expected api task for flighthub, got mode=%s provider=%s", api.Mode, api.Provider)
	}
	if api.Type != "book_flight" {
		t.Fatalf("expected book_flight task type, got %s", api.Type)
	}
	if len(api.RequestPreview) == 0 {
		t.Fatal("api task must carry the prepared payload")
	}

	var preview BookingRequest
	if err := json.Unmarshal(api.RequestPreview, &preview); err != nil {
		t.Fatalf("stored payload is not valid JSON: %v", err)
	}
	if preview.ItemID != items[0].ID || preview.Provider != "flighthub" {
		t.Fatalf("stored payload does not describe the dispatched item: %+v", preview)
	}

	fallback := creator.specs[1]
	if fallback.Mode != TaskModeManual || fallback.Priority != taskPriorityHigh {
		t.Fatalf("expected high priority manual fallback, got mode=%s priority=%s", fallback.Mode, fallback.Priority)
	}
	if fallback.Type != "book_hotel" {
		t.Fatalf("expected book_hotel task type, got %s", fallback.Type)
	}
	if fallback.RequestPreview != nil {
		t.Fatal("manual tasks must not carry an execution payload")
	}

	upload := creator.specs[3]
	if upload.ItemID != nil || upload.Mode != TaskModeManual {
		t.Fatalf("expected quote-level upload task, got %+v", upload)
	}
	if upload.Type != taskTypeUploadConfirmation {
		t.Fatalf("expected upload_confirmation task type, got %s", upload.Type)
	}

	// Manual booking work is due in two days, the evidence follow-up a day later.
	assertDueIn(t, fallback.DueAt, manualTaskDue)
	assertDueIn(t, upload.DueAt, uploadTaskDue)
}

func assertDueIn(t *testing.T, due *time.Time, offset time.Duration) {
	t.Helper()
	if due == nil {
		t.Fatal("expected a due date")
	}
	delta := time.Until(*due) - offset
	if delta < -time.Minute || delta > time.Minute {
		t.Fatalf("expected due date about %s out, got %s", offset, time.Until(*due))
	}
}

func TestDispatch_AllAPIItemsSkipUploadTask(t *testing.T) {
	registry := NewRegistryWith(&stubProvider{name: "flighthub"})
	creator := &recordingTaskCreator{}
	d := NewDispatcher(registry, creator, logger.New("development"))

	quote := testQuote()
	items := []quoterepo.Item{
		{ID: uuid.New(), Type: quoterepo.ItemTypeFlight, Description: "AMS-BKK return", PriceCents: 80000, ProviderCode: strPtr("flighthub")},
	}

	summary, err := d.Dispatch(context.Background(), quote, items, uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.APISuccess != 1 || summary.ManualTasks != 0 {
		t.Fatalf("expected 1 api success and no manual tasks, got %+v", summary)
	}
	// API bookings record their confirmation ref on execution, so no
	// evidence upload task is opened.
	if len(creator.specs) != 1 {
		t.Fatalf("expected only the api task, got %d tasks", len(creator.specs))
	}
	if creator.specs[0].Mode != TaskModeAPI {
		t.Fatalf("expected api task, got %s", creator.specs[0].Mode)
	}
}

func TestDispatch_NoItemsCreatesNothing(t *testing.T) {
	creator := &recordingTaskCreator{}
	d := NewDispatcher(NewRegistryWith(), creator, logger.New("development"))

	summary, err := d.Dispatch(context.Background(), testQuote(), nil, uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.APISuccess != 0 || summary.APIFailed != 0 || summary.ManualTasks != 0 {
		t.Fatalf("expected empty summary, got %+v", summary)
	}
	if len(creator.specs) != 0 {
		t.Fatalf("expected no tasks, got %d", len(creator.specs))
	}
}

func TestDispatch_AllTaskWritesFailingIsAnError(t *testing.T) {
	creator := &recordingTaskCreator{failAll: true}
	d := NewDispatcher(NewRegistryWith(), creator, logger.New("development"))

	quote := testQuote()
	items := []quoterepo.Item{
		{ID: uuid.New(), Type: quoterepo.ItemTypeHotel, Description: "Riverside Hotel", PriceCents: 60000},
	}

	if _, err := d.Dispatch(context.Background(), quote, items, uuid.New()); err == nil {
		t.Fatal("expected error when no fulfillment work could be created")
	}
}
