package service

import (
	"context"
	"errors"
	"testing"

	"tripdesk_backend/internal/events"
	"tripdesk_backend/internal/processor"
	quoterepo "tripdesk_backend/internal/quotes/repository"
	"tripdesk_backend/internal/settlement/repository"
	"tripdesk_backend/internal/settlement/transport"
	"tripdesk_backend/platform/apperr"
	"tripdesk_backend/platform/logger"

	"github.com/google/uuid"
)

// ── Fakes ─────────────────────────────────────────────────────────────────────

// fakeStore is an in-memory Store with the same conflict semantics as the
// Postgres repository, plus switches to make individual writes fail.
type fakeStore struct {
	payments    map[uuid.UUID]*repository.Payment
	invoices    map[uuid.UUID]*repository.Invoice
	commissions map[uuid.UUID]*repository.Commission
	expenses    []repository.Expense
	allocations []repository.FundAllocation
	invoiceSeq  int

	failCreateInvoice    bool
	failCreateCommission bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		payments:    make(map[uuid.UUID]*repository.Payment),
		invoices:    make(map[uuid.UUID]*repository.Invoice),
		commissions: make(map[uuid.UUID]*repository.Commission),
	}
}

func (f *fakeStore) CreatePayment(ctx context.Context, p *repository.Payment) error {
	for _, existing := range f.payments {
		if existing.ProcessorTxnID == p.ProcessorTxnID {
			return apperr.Conflict("payment already settled for this transaction")
		}
	}
	cp := *p
	f.payments[p.ID] = &cp
	return nil
}

func (f *fakeStore) GetPaymentByID(ctx context.Context, id uuid.UUID) (*repository.Payment, error) {
	p, ok := f.payments[id]
	if !ok {
		return nil, apperr.NotFound("payment not found")
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) AttachInvoice(ctx context.Context, paymentID, invoiceID uuid.UUID) error {
	p, ok := f.payments[paymentID]
	if !ok {
		return apperr.NotFound("payment not found")
	}
	id := invoiceID
	p.InvoiceID = &id
	return nil
}

func (f *fakeStore) SumPaidByQuote(ctx context.Context, quoteID uuid.UUID) (int64, error) {
	var total int64
	for _, p := range f.payments {
		if p.QuoteID == quoteID {
			total += p.AmountCents
		}
	}
	return total, nil
}

func (f *fakeStore) NextInvoiceNumber(ctx context.Context) (string, error) {
	f.invoiceSeq++
	return "INV-2026-0001", nil
}

func (f *fakeStore) CreateInvoice(ctx context.Context, inv *repository.Invoice) error {
	if f.failCreateInvoice {
		return errors.New("invoice table unavailable")
	}
	for _, existing := range f.invoices {
		if existing.QuoteID == inv.QuoteID {
			return apperr.Conflict("invoice already exists for this quote")
		}
	}
	cp := *inv
	f.invoices[inv.ID] = &cp
	return nil
}

func (f *fakeStore) GetInvoiceByID(ctx context.Context, id uuid.UUID) (*repository.Invoice, error) {
	inv, ok := f.invoices[id]
	if !ok {
		return nil, apperr.NotFound("invoice not found")
	}
	cp := *inv
	return &cp, nil
}

func (f *fakeStore) GetInvoiceByQuoteID(ctx context.Context, quoteID uuid.UUID) (*repository.Invoice, error) {
	for _, inv := range f.invoices {
		if inv.QuoteID == quoteID {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("invoice not found")
}

func (f *fakeStore) UpdateInvoicePayment(ctx context.Context, id uuid.UUID, paidCents, remainingCents int64, status string) error {
	inv, ok := f.invoices[id]
	if !ok {
		return apperr.NotFound("invoice not found")
	}
	inv.PaidCents = paidCents
	inv.RemainingCents = remainingCents
	inv.Status = status
	return nil
}

func (f *fakeStore) CreateCommission(ctx context.Context, c *repository.Commission) error {
	if f.failCreateCommission {
		return errors.New("commission table unavailable")
	}
	if _, ok := f.commissions[c.PaymentID]; ok {
		return apperr.Conflict("commission already exists for this payment")
	}
	cp := *c
	f.commissions[c.PaymentID] = &cp
	return nil
}

func (f *fakeStore) GetCommissionByPaymentID(ctx context.Context, paymentID uuid.UUID) (*repository.Commission, error) {
	c, ok := f.commissions[paymentID]
	if !ok {
		return nil, apperr.NotFound("commission not found")
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) CreateExpense(ctx context.Context, e *repository.Expense) error {
	f.expenses = append(f.expenses, *e)
	return nil
}

func (f *fakeStore) CreateAllocations(ctx context.Context, allocations []repository.FundAllocation) error {
	f.allocations = append(f.allocations, allocations...)
	return nil
}

func (f *fakeStore) ListAllocationsByPayment(ctx context.Context, paymentID uuid.UUID) ([]repository.FundAllocation, error) {
	var out []repository.FundAllocation
	for _, a := range f.allocations {
		if a.PaymentID == paymentID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) ReleaseAllocation(ctx context.Context, id uuid.UUID) error {
	for i := range f.allocations {
		if f.allocations[i].ID == id && f.allocations[i].EscrowStatus == repository.EscrowHeld {
			f.allocations[i].EscrowStatus = repository.EscrowReleased
			return nil
		}
	}
	return apperr.Conflict("allocation not found or already released")
}

func (f *fakeStore) expenseAmounts(category string) []int64 {
	var out []int64
	for _, e := range f.expenses {
		if e.Category == category {
			out = append(out, e.AmountCents)
		}
	}
	return out
}

type fakeProcessor struct {
	status string
	amount int64
}

func (f *fakeProcessor) RetrieveCharge(ctx context.Context, transactionID string) (*processor.Charge, error) {
	return &processor.Charge{
		TransactionID: transactionID,
		Status:        f.status,
		AmountCents:   f.amount,
		Currency:      "eur",
	}, nil
}

type fakeQuotes struct {
	quote *quoterepo.Quote
	items []quoterepo.Item
}

func (f *fakeQuotes) GetWithItems(ctx context.Context, id uuid.UUID) (*quoterepo.Quote, []quoterepo.Item, error) {
	return f.quote, f.items, nil
}

type fakeQuoteState struct {
	statuses   []string
	dispatched bool
}

func (f *fakeQuoteState) SetPaymentStatus(ctx context.Context, id uuid.UUID, paymentStatus string) error {
	f.statuses = append(f.statuses, paymentStatus)
	return nil
}

func (f *fakeQuoteState) MarkFulfillmentDispatched(ctx context.Context, id uuid.UUID) error {
	f.dispatched = true
	return nil
}

type fakeSuppliers struct{}

func (f *fakeSuppliers) FindOrCreate(ctx context.Context, agentID uuid.UUID, name string) (*SupplierRef, error) {
	return &SupplierRef{ID: uuid.New(), Name: name}, nil
}

type fakeSettlementDispatcher struct {
	calls   int
	summary DispatchSummary
}

func (f *fakeSettlementDispatcher) Dispatch(ctx context.Context, quote *quoterepo.Quote, items []quoterepo.Item, paymentID uuid.UUID) (DispatchSummary, error) {
	f.calls++
	return f.summary, nil
}

// recordingBus captures every published event without dispatching.
type recordingBus struct {
	published []events.Event
}

func (b *recordingBus) Publish(ctx context.Context, event events.Event) {
	b.published = append(b.published, event)
}

func (b *recordingBus) PublishSync(ctx context.Context, event events.Event) error {
	b.published = append(b.published, event)
	return nil
}

func (b *recordingBus) Subscribe(eventName string, handler events.Handler) {}

func (b *recordingBus) byName(name string) []events.Event {
	var out []events.Event
	for _, e := range b.published {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

// ── Fixtures ──────────────────────────────────────────────────────────────────

func settlementQuote(totalCents int64) (*quoterepo.Quote, []quoterepo.Item) {
	quoteID := uuid.New()
	cost := int64(70000)
	name := "Riverside Hotel"
	quote := &quoterepo.Quote{
		ID:         quoteID,
		AgentID:    uuid.New(),
		Reference:  "TRP-2026-0042",
		TotalCents: totalCents,
		Currency:   "EUR",
	}
	items := []quoterepo.Item{
		{
			ID:                uuid.New(),
			QuoteID:           quoteID,
			Type:              quoterepo.ItemTypeHotel,
			Description:       "Riverside Hotel, 7 nights",
			PriceCents:        totalCents,
			SupplierCostCents: &cost,
			SupplierName:      &name,
			SupplierSource:    quoterepo.SourceOfflineAgent,
		},
	}
	return quote, items
}

type settlementEnv struct {
	svc        *Service
	store      *fakeStore
	quoteState *fakeQuoteState
	dispatcher *fakeSettlementDispatcher
	bus        *recordingBus
}

func newSettlementEnv(store *fakeStore, quote *quoterepo.Quote, items []quoterepo.Item) *settlementEnv {
	env := &settlementEnv{
		store:      store,
		quoteState: &fakeQuoteState{},
		dispatcher: &fakeSettlementDispatcher{summary: DispatchSummary{ManualTasks: 2}},
		bus:        &recordingBus{},
	}
	env.svc = New(store,
		&fakeProcessor{status: processor.ChargeStatusSucceeded},
		&fakeQuotes{quote: quote, items: items},
		env.quoteState,
		&fakeSuppliers{},
		logger.New("development"))
	env.svc.SetDispatcher(env.dispatcher)
	env.svc.SetEventBus(env.bus)
	return env
}

func confirmRequest(quoteID uuid.UUID, paymentType, txn string, amount int64) transport.ConfirmPaymentRequest {
	return transport.ConfirmPaymentRequest{
		QuoteID:       quoteID,
		TransactionID: txn,
		PaymentType:   paymentType,
		AmountCents:   amount,
		Currency:      "EUR",
	}
}

func findStep(t *testing.T, steps []transport.StepOutcome, name string) transport.StepOutcome {
	t.Helper()
	for _, s := range steps {
		if s.Step == name {
			return s
		}
	}
	t.Fatalf("step %s missing from %+v", name, steps)
	return transport.StepOutcome{}
}

// ── Saga tests ────────────────────────────────────────────────────────────────

func TestProcessPaymentConfirmation_FullPaymentRunsWholePipeline(t *testing.T) {
	quote, items := settlementQuote(100000)
	env := newSettlementEnv(newFakeStore(), quote, items)

	result, err := env.svc.ProcessPaymentConfirmation(context.Background(),
		confirmRequest(quote.ID, repository.PaymentTypeFull, "txn_full_1", 100000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.PaymentStatus != quoterepo.PaymentStatusPaidInFull {
		t.Fatalf("expected paid_in_full, got %s", result.PaymentStatus)
	}
	if result.TotalPaidCents != 100000 || result.RemainingCents != 0 {
		t.Fatalf("expected full coverage, got paid=%d remaining=%d", result.TotalPaidCents, result.RemainingCents)
	}
	for _, s := range result.Steps {
		if s.Degraded {
			t.Fatalf("no step should degrade on a clean run, got %+v", s)
		}
	}

	if result.InvoiceID == nil {
		t.Fatal("expected an invoice")
	}
	inv := env.store.invoices[*result.InvoiceID]
	if inv.Status != repository.InvoiceStatusPaid || inv.PaidCents != 100000 || inv.RemainingCents != 0 {
		t.Fatalf("expected a fully paid invoice, got %+v", inv)
	}

	if result.CommissionID == nil {
		t.Fatal("expected a commission")
	}
	com := env.store.commissions[result.PaymentID]
	if com.RateBps != defaultCommissionRateBps || com.AmountCents != 10000 {
		t.Fatalf("expected 10%% platform default commission on 100000, got %+v", com)
	}
	if com.InvoiceID == nil || *com.InvoiceID != *result.InvoiceID {
		t.Fatal("commission must link to the generated invoice")
	}

	// 2.9% + 30c processing fee, and the hotel's known supplier cost.
	if got := env.store.expenseAmounts(repository.ExpenseCategoryProcessingFee); len(got) != 1 || got[0] != 2930 {
		t.Fatalf("expected one processing fee expense of 2930, got %v", got)
	}
	if got := env.store.expenseAmounts(repository.ExpenseCategorySupplierPayment); len(got) != 1 || got[0] != 70000 {
		t.Fatalf("expected one supplier expense of 70000, got %v", got)
	}

	// offline_agent pays no platform fee, so the agent keeps price minus cost.
	if len(env.store.allocations) != 1 {
		t.Fatalf("expected one allocation row, got %d", len(env.store.allocations))
	}
	alloc := env.store.allocations[0]
	if alloc.PlatformFeeCents != 0 || alloc.AgentCommissionCents != 30000 {
		t.Fatalf("unexpected allocation split %+v", alloc)
	}

	if env.dispatcher.calls != 1 {
		t.Fatalf("expected one dispatch, got %d", env.dispatcher.calls)
	}
	if !env.quoteState.dispatched {
		t.Fatal("quote must be marked dispatched when tasks were created")
	}

	settled := env.bus.byName(events.PaymentSettled{}.EventName())
	if len(settled) != 1 {
		t.Fatalf("expected one settled event, got %d", len(settled))
	}
	e := settled[0].(events.PaymentSettled)
	if e.QuoteReference != quote.Reference || e.ReceiptRef != result.ReceiptRef {
		t.Fatalf("settled event missing receipt context: %+v", e)
	}
	if got := env.bus.byName(events.SettlementDegraded{}.EventName()); len(got) != 0 {
		t.Fatalf("clean run must not publish a degraded event, got %d", len(got))
	}
}

func TestProcessPaymentConfirmation_DepositDoesNotDispatch(t *testing.T) {
	quote, items := settlementQuote(100000)
	env := newSettlementEnv(newFakeStore(), quote, items)

	result, err := env.svc.ProcessPaymentConfirmation(context.Background(),
		confirmRequest(quote.ID, repository.PaymentTypeDeposit, "txn_dep_1", 30000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.PaymentStatus != quoterepo.PaymentStatusDepositPaid {
		t.Fatalf("expected deposit_paid, got %s", result.PaymentStatus)
	}
	if result.InvoiceID == nil {
		t.Fatal("expected an invoice")
	}
	inv := env.store.invoices[*result.InvoiceID]
	if inv.Status != repository.InvoiceStatusSent || inv.PaidCents != 30000 || inv.RemainingCents != 70000 {
		t.Fatalf("expected a 30%% deposit invoice, got %+v", inv)
	}

	if env.dispatcher.calls != 0 {
		t.Fatal("a deposit must not trigger fulfillment dispatch")
	}
	// Supplier expenses wait for the full payment; only the fee is booked.
	if got := env.store.expenseAmounts(repository.ExpenseCategorySupplierPayment); len(got) != 0 {
		t.Fatalf("expected no supplier expenses on a deposit, got %v", got)
	}
}

func TestProcessPaymentConfirmation_BalancePaymentUpdatesSameInvoice(t *testing.T) {
	quote, items := settlementQuote(100000)
	store := newFakeStore()
	env := newSettlementEnv(store, quote, items)

	first, err := env.svc.ProcessPaymentConfirmation(context.Background(),
		confirmRequest(quote.ID, repository.PaymentTypeDeposit, "txn_dep_2", 30000))
	if err != nil {
		t.Fatalf("deposit: unexpected error: %v", err)
	}

	second, err := env.svc.ProcessPaymentConfirmation(context.Background(),
		confirmRequest(quote.ID, repository.PaymentTypeFull, "txn_bal_2", 70000))
	if err != nil {
		t.Fatalf("balance: unexpected error: %v", err)
	}

	// One invoice for the quote, updated in place by the balance payment.
	if len(store.invoices) != 1 {
		t.Fatalf("expected one invoice for the quote, got %d", len(store.invoices))
	}
	if second.InvoiceID == nil || *second.InvoiceID != *first.InvoiceID {
		t.Fatal("balance payment must apply to the deposit's invoice")
	}
	inv := store.invoices[*first.InvoiceID]
	if inv.Status != repository.InvoiceStatusPaid || inv.PaidCents != 100000 || inv.RemainingCents != 0 {
		t.Fatalf("expected the invoice settled in full, got %+v", inv)
	}

	// Both payments carry the invoice back-pointer.
	for _, p := range store.payments {
		if p.InvoiceID == nil || *p.InvoiceID != inv.ID {
			t.Fatalf("payment %s not linked to the quote invoice", p.ID)
		}
	}

	if second.PaymentStatus != quoterepo.PaymentStatusPaidInFull {
		t.Fatalf("expected paid_in_full after the balance, got %s", second.PaymentStatus)
	}
	if env.dispatcher.calls != 1 {
		t.Fatalf("expected dispatch exactly once, after the balance, got %d", env.dispatcher.calls)
	}
}

func TestApplyPaymentToInvoice_PartialCoverageAndCap(t *testing.T) {
	quote, items := settlementQuote(100000)
	store := newFakeStore()
	env := newSettlementEnv(store, quote, items)

	invoice := &repository.Invoice{
		ID:             uuid.New(),
		QuoteID:        quote.ID,
		PaymentID:      uuid.New(),
		Number:         "INV-2026-0001",
		SubtotalCents:  100000,
		TotalCents:     100000,
		PaidCents:      30000,
		RemainingCents: 70000,
		Status:         repository.InvoiceStatusSent,
	}
	if err := store.CreateInvoice(context.Background(), invoice); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payment := &repository.Payment{ID: uuid.New(), QuoteID: quote.ID, AmountCents: 20000}
	if err := store.CreatePayment(context.Background(), payment); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated, err := env.svc.applyPaymentToInvoice(context.Background(), invoice, payment)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != repository.InvoiceStatusPartial || updated.PaidCents != 50000 || updated.RemainingCents != 50000 {
		t.Fatalf("expected a partial invoice at 50000, got %+v", updated)
	}

	// An overshooting capture settles the document; paid never exceeds total.
	over := &repository.Payment{ID: uuid.New(), QuoteID: quote.ID, AmountCents: 60000, ProcessorTxnID: "txn_over"}
	if err := store.CreatePayment(context.Background(), over); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	updated, err = env.svc.applyPaymentToInvoice(context.Background(), updated, over)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != repository.InvoiceStatusPaid || updated.PaidCents != 100000 || updated.RemainingCents != 0 {
		t.Fatalf("expected a capped, settled invoice, got %+v", updated)
	}
}

func TestProcessPaymentConfirmation_PaperworkFailureIsDegradedNotFatal(t *testing.T) {
	quote, items := settlementQuote(100000)
	store := newFakeStore()
	store.failCreateInvoice = true
	store.failCreateCommission = true
	env := newSettlementEnv(store, quote, items)

	result, err := env.svc.ProcessPaymentConfirmation(context.Background(),
		confirmRequest(quote.ID, repository.PaymentTypeFull, "txn_degraded", 100000))
	if err != nil {
		t.Fatalf("paperwork failures must never fail the settlement, got %v", err)
	}

	// The money is recorded and reported truthfully.
	if _, ok := store.payments[result.PaymentID]; !ok {
		t.Fatal("payment must be persisted before paperwork runs")
	}
	if result.PaymentStatus != quoterepo.PaymentStatusPaidInFull {
		t.Fatalf("expected paid_in_full, got %s", result.PaymentStatus)
	}

	// The paperwork gaps are visible as nil ids and degraded steps.
	if result.InvoiceID != nil || result.CommissionID != nil {
		t.Fatalf("expected nil paperwork ids, got invoice=%v commission=%v", result.InvoiceID, result.CommissionID)
	}
	if s := findStep(t, result.Steps, StepInvoice); !s.Degraded || s.Error == "" {
		t.Fatalf("expected degraded invoice step, got %+v", s)
	}
	if s := findStep(t, result.Steps, StepCommission); !s.Degraded || s.Error == "" {
		t.Fatalf("expected degraded commission step, got %+v", s)
	}

	degraded := env.bus.byName(events.SettlementDegraded{}.EventName())
	if len(degraded) != 1 {
		t.Fatalf("expected one degraded event, got %d", len(degraded))
	}
	e := degraded[0].(events.SettlementDegraded)
	if e.PaymentID != result.PaymentID || len(e.Steps) != 2 {
		t.Fatalf("degraded event must name both failed steps: %+v", e)
	}
}

func TestRetryPaperwork_RecoversAfterDegradedSettlement(t *testing.T) {
	quote, items := settlementQuote(100000)
	store := newFakeStore()
	store.failCreateInvoice = true
	store.failCreateCommission = true
	env := newSettlementEnv(store, quote, items)

	result, err := env.svc.ProcessPaymentConfirmation(context.Background(),
		confirmRequest(quote.ID, repository.PaymentTypeFull, "txn_retry", 100000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Outage over; the retry regenerates the missing paperwork.
	store.failCreateInvoice = false
	store.failCreateCommission = false

	resp, err := env.svc.RetryPaperwork(context.Background(), result.PaymentID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.InvoiceID == nil || resp.CommissionID == nil {
		t.Fatalf("expected regenerated paperwork, got %+v", resp)
	}

	// A second retry is a no-op returning the same documents.
	again, err := env.svc.RetryPaperwork(context.Background(), result.PaymentID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *again.InvoiceID != *resp.InvoiceID || *again.CommissionID != *resp.CommissionID {
		t.Fatal("retry must be idempotent")
	}
	if len(store.invoices) != 1 {
		t.Fatalf("expected one invoice after retries, got %d", len(store.invoices))
	}
}

func TestProcessPaymentConfirmation_RejectsUnsettledCharge(t *testing.T) {
	quote, items := settlementQuote(100000)
	store := newFakeStore()
	env := newSettlementEnv(store, quote, items)
	env.svc.proc = &fakeProcessor{status: "pending"}

	_, err := env.svc.ProcessPaymentConfirmation(context.Background(),
		confirmRequest(quote.ID, repository.PaymentTypeFull, "txn_pending", 100000))
	if !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("expected bad request for a non-succeeded charge, got %v", err)
	}
	if len(store.payments) != 0 {
		t.Fatal("nothing may be persisted for an unverified charge")
	}
}
