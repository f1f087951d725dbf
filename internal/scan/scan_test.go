package scan_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/domain"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/lifecycle"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/observability"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/scan"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/testutil"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type auditEntry struct {
	PrincipalID uuid.UUID
	Code        string
	Outcome     string
}

type captureAuditor struct {
	mu      sync.Mutex
	Entries []auditEntry
}

func (a *captureAuditor) LogScan(ctx context.Context, principalID uuid.UUID, code, outcome, ticketID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Entries = append(a.Entries, auditEntry{PrincipalID: principalID, Code: code, Outcome: outcome})
}

type fixture struct {
	store *testutil.FakeStore
	clk   *testutil.FakeClock
	audit *captureAuditor
	svc   *scan.Service
	event domain.Event
}

func newFixture() *fixture {
	store := testutil.NewFakeStore()
	clk := testutil.NewFakeClock(baseTime)
	audit := &captureAuditor{}
	logger := observability.NewLogger()
	transitions := lifecycle.NewService(store, clk, logger)

	event := domain.Event{
		ID:          uuid.New(),
		OrganizerID: uuid.New(),
		Title:       "Go Conf",
		Venue:       "Hall A",
		StartsAt:    baseTime.Add(72 * time.Hour),
		IsFree:      false,
	}
	store.Events[event.ID] = event

	return &fixture{
		store: store,
		clk:   clk,
		audit: audit,
		svc:   scan.NewService(store, transitions, audit, clk, logger),
		event: event,
	}
}

func (f *fixture) addTicket(status domain.PaymentStatus) domain.Ticket {
	t := domain.Ticket{
		ID:            uuid.New(),
		Code:          domain.NewTicketCode(),
		EventID:       f.event.ID,
		Attendee:      domain.Attendee{Name: "Ada", Email: "ada@example.com"},
		PaymentStatus: status,
		CreatedAt:     f.clk.Now(),
	}
	f.store.Tickets[t.ID] = t
	return t
}

func (f *fixture) lastAudit(t *testing.T) auditEntry {
	t.Helper()
	f.audit.mu.Lock()
	defer f.audit.mu.Unlock()
	if len(f.audit.Entries) == 0 {
		t.Fatal("no audit entries recorded")
	}
	return f.audit.Entries[len(f.audit.Entries)-1]
}

func TestScanValidThenAlreadyUsed(t *testing.T) {
	f := newFixture()
	ticket := f.addTicket(domain.StatusPaid)

	res, err := f.svc.Scan(context.Background(), ticket.Code, f.event.OrganizerID)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Outcome != scan.OutcomeValid {
		t.Fatalf("outcome = %s, want valid", res.Outcome)
	}
	if res.ValidatedAt == nil {
		t.Fatal("valid scan missing validated_at")
	}
	firstStamp := *res.ValidatedAt

	f.clk.Advance(5 * time.Minute)
	res, err = f.svc.Scan(context.Background(), ticket.Code, f.event.OrganizerID)
	if err != nil {
		t.Fatalf("second Scan: %v", err)
	}
	if res.Outcome != scan.OutcomeAlreadyUsed {
		t.Fatalf("outcome = %s, want already_used", res.Outcome)
	}
	if res.ValidatedAt == nil || !res.ValidatedAt.Equal(firstStamp) {
		t.Errorf("already_used should carry the original validation time, got %v", res.ValidatedAt)
	}
	if entry := f.lastAudit(t); entry.Outcome != string(scan.OutcomeAlreadyUsed) {
		t.Errorf("audit outcome = %s", entry.Outcome)
	}
}

func TestScanLowercaseCodeNormalized(t *testing.T) {
	f := newFixture()
	ticket := f.addTicket(domain.StatusPaid)

	res, err := f.svc.Scan(context.Background(), "  "+toLower(ticket.Code)+" ", f.event.OrganizerID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != scan.OutcomeValid {
		t.Fatalf("outcome = %s, want valid for lowercase input", res.Outcome)
	}
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}

func TestScanInvalidFormat(t *testing.T) {
	f := newFixture()
	res, err := f.svc.Scan(context.Background(), "not a code", f.event.OrganizerID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != scan.OutcomeInvalidFormat {
		t.Fatalf("outcome = %s, want invalid_format", res.Outcome)
	}
}

func TestScanNotFound(t *testing.T) {
	f := newFixture()
	res, err := f.svc.Scan(context.Background(), "AB12CD34-EF56GH78", f.event.OrganizerID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != scan.OutcomeNotFound {
		t.Fatalf("outcome = %s, want not_found", res.Outcome)
	}
}

func TestScanUnauthorized(t *testing.T) {
	f := newFixture()
	ticket := f.addTicket(domain.StatusPaid)

	res, err := f.svc.Scan(context.Background(), ticket.Code, uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != scan.OutcomeUnauthorized {
		t.Fatalf("outcome = %s, want unauthorized", res.Outcome)
	}
	if got := f.store.Tickets[ticket.ID]; got.IsValidated {
		t.Error("unauthorized scan must not validate the ticket")
	}
}

func TestScanPaymentRequired(t *testing.T) {
	f := newFixture()
	ticket := f.addTicket(domain.StatusPayAtVenue)

	res, err := f.svc.Scan(context.Background(), ticket.Code, f.event.OrganizerID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != scan.OutcomePaymentRequired {
		t.Fatalf("outcome = %s, want payment_required", res.Outcome)
	}
}

func TestScanExpiresStaleInline(t *testing.T) {
	f := newFixture()
	ticket := f.addTicket(domain.StatusPending)

	f.clk.Advance(25 * time.Hour)
	res, err := f.svc.Scan(context.Background(), ticket.Code, f.event.OrganizerID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != scan.OutcomeExpired {
		t.Fatalf("outcome = %s, want expired", res.Outcome)
	}
	if got := f.store.Tickets[ticket.ID]; got.PaymentStatus != domain.StatusExpired {
		t.Errorf("stale scan left status %s, want expired", got.PaymentStatus)
	}
	if types := f.store.OutboxTypes(); len(types) != 1 || types[0] != domain.EventTicketExpired {
		t.Errorf("outbox = %v, want [ticket.expired]", types)
	}
}

func TestScanExpiredTicket(t *testing.T) {
	f := newFixture()
	ticket := f.addTicket(domain.StatusExpired)

	res, err := f.svc.Scan(context.Background(), ticket.Code, f.event.OrganizerID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != scan.OutcomeExpired {
		t.Fatalf("outcome = %s, want expired", res.Outcome)
	}
}

func TestConfirmCashAndValidate(t *testing.T) {
	f := newFixture()
	ticket := f.addTicket(domain.StatusPayAtVenue)

	res, err := f.svc.ConfirmCashAndValidate(context.Background(), ticket.ID, f.event.OrganizerID)
	if err != nil {
		t.Fatalf("ConfirmCashAndValidate: %v", err)
	}
	if res.Outcome != scan.OutcomeValid {
		t.Fatalf("outcome = %s, want valid", res.Outcome)
	}
	got := f.store.Tickets[ticket.ID]
	if got.PaymentStatus != domain.StatusPaid || !got.IsValidated {
		t.Errorf("ticket after cash settle: status=%s validated=%v", got.PaymentStatus, got.IsValidated)
	}

	res, err = f.svc.ConfirmCashAndValidate(context.Background(), ticket.ID, f.event.OrganizerID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != scan.OutcomeAlreadyUsed {
		t.Fatalf("second settle outcome = %s, want already_used", res.Outcome)
	}
}

func TestConfirmCashUnauthorized(t *testing.T) {
	f := newFixture()
	ticket := f.addTicket(domain.StatusPayAtVenue)

	res, err := f.svc.ConfirmCashAndValidate(context.Background(), ticket.ID, uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != scan.OutcomeUnauthorized {
		t.Fatalf("outcome = %s, want unauthorized", res.Outcome)
	}
	if got := f.store.Tickets[ticket.ID]; got.PaymentStatus != domain.StatusPayAtVenue {
		t.Errorf("unauthorized settle changed status to %s", got.PaymentStatus)
	}
}

func TestConfirmCashStale(t *testing.T) {
	f := newFixture()
	ticket := f.addTicket(domain.StatusPayAtVenue)

	f.clk.Advance(25 * time.Hour)
	res, err := f.svc.ConfirmCashAndValidate(context.Background(), ticket.ID, f.event.OrganizerID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != scan.OutcomeExpired {
		t.Fatalf("outcome = %s, want expired", res.Outcome)
	}
}
