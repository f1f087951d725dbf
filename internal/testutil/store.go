package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/adapters/crdb"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/domain"
)

// FakeStore is an in-memory stand-in for the crdb repository with the
// same conditional-update semantics. WithTx snapshots state and rolls
// back on error so all-or-nothing behavior can be asserted without a
// database.
type FakeStore struct {
	mu         sync.Mutex
	Events     map[uuid.UUID]domain.Event
	Tiers      map[uuid.UUID]domain.TicketTier
	Tickets    map[uuid.UUID]domain.Ticket
	Challenges map[uuid.UUID]domain.ClaimChallenge
	Outbox     []crdb.OutboxRecord
}

func NewFakeStore() *FakeStore {
	return &FakeStore{
		Events:     make(map[uuid.UUID]domain.Event),
		Tiers:      make(map[uuid.UUID]domain.TicketTier),
		Tickets:    make(map[uuid.UUID]domain.Ticket),
		Challenges: make(map[uuid.UUID]domain.ClaimChallenge),
	}
}

func (f *FakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	snapshot := f.clone()
	f.mu.Unlock()

	if err := fn(ctx); err != nil {
		f.mu.Lock()
		f.restore(snapshot)
		f.mu.Unlock()
		return err
	}
	return nil
}

func (f *FakeStore) clone() *FakeStore {
	c := NewFakeStore()
	for k, v := range f.Events {
		c.Events[k] = v
	}
	for k, v := range f.Tiers {
		c.Tiers[k] = v
	}
	for k, v := range f.Tickets {
		c.Tickets[k] = v
	}
	for k, v := range f.Challenges {
		c.Challenges[k] = v
	}
	c.Outbox = append([]crdb.OutboxRecord(nil), f.Outbox...)
	return c
}

func (f *FakeStore) restore(s *FakeStore) {
	f.Events = s.Events
	f.Tiers = s.Tiers
	f.Tickets = s.Tickets
	f.Challenges = s.Challenges
	f.Outbox = s.Outbox
}

func (f *FakeStore) GetEvent(ctx context.Context, id uuid.UUID) (domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.Events[id]
	if !ok {
		return domain.Event{}, domain.ErrNotFound
	}
	return e, nil
}

func (f *FakeStore) GetTier(ctx context.Context, id uuid.UUID) (domain.TicketTier, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.Tiers[id]
	if !ok {
		return domain.TicketTier{}, domain.ErrNotFound
	}
	return t, nil
}

func (f *FakeStore) CheckEventAvailability(ctx context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.Events[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	return e.Capacity == nil || e.TicketsIssued < *e.Capacity, nil
}

func (f *FakeStore) CheckTierAvailability(ctx context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.Tiers[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	return t.IsActive && (t.Capacity == nil || t.TicketsSold < *t.Capacity), nil
}

func (f *FakeStore) AdmitEvent(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.Events[id]
	if !ok {
		return domain.ErrNotFound
	}
	if e.Capacity != nil && e.TicketsIssued >= *e.Capacity {
		return domain.ErrCapacityExceeded
	}
	e.TicketsIssued++
	f.Events[id] = e
	return nil
}

func (f *FakeStore) AdmitTier(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.Tiers[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !t.IsActive {
		return domain.ErrInactiveTier
	}
	if t.Capacity != nil && t.TicketsSold >= *t.Capacity {
		return domain.ErrCapacityExceeded
	}
	t.TicketsSold++
	f.Tiers[id] = t
	return nil
}

func (f *FakeStore) InsertTicket(ctx context.Context, t domain.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.Tickets {
		if existing.Code == t.Code {
			return domain.ErrCodeCollision
		}
	}
	f.Tickets[t.ID] = t
	return nil
}

func (f *FakeStore) GetTicket(ctx context.Context, id uuid.UUID) (domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.Tickets[id]
	if !ok {
		return domain.Ticket{}, domain.ErrNotFound
	}
	return t, nil
}

func (f *FakeStore) GetTicketByCode(ctx context.Context, code string) (domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.Tickets {
		if t.Code == code {
			return t, nil
		}
	}
	return domain.Ticket{}, domain.ErrNotFound
}

func (f *FakeStore) ConfirmOnlinePayment(ctx context.Context, id uuid.UUID, paymentRef string, now time.Time) (domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.Tickets[id]
	if !ok {
		return domain.Ticket{}, domain.ErrNotFound
	}
	if t.PaymentStatus != domain.StatusPending {
		return domain.Ticket{}, domain.ErrInvalidTransition
	}
	t.PaymentStatus = domain.StatusVerified
	t.PaymentRefID = &paymentRef
	t.VerifiedAt = &now
	f.Tickets[id] = t
	return t, nil
}

func (f *FakeStore) ConfirmCash(ctx context.Context, id uuid.UUID, now time.Time) (domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.Tickets[id]
	if !ok {
		return domain.Ticket{}, domain.ErrNotFound
	}
	if t.PaymentStatus != domain.StatusPayAtVenue {
		return domain.Ticket{}, domain.ErrInvalidTransition
	}
	ref := domain.CashPaymentRef
	t.PaymentStatus = domain.StatusPaid
	t.PaymentRefID = &ref
	t.VerifiedAt = &now
	f.Tickets[id] = t
	return t, nil
}

func (f *FakeStore) ExpireTicket(ctx context.Context, id uuid.UUID) (domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.Tickets[id]
	if !ok {
		return domain.Ticket{}, domain.ErrNotFound
	}
	if !t.PaymentStatus.Unpaid() {
		return domain.Ticket{}, domain.ErrInvalidTransition
	}
	t.PaymentStatus = domain.StatusExpired
	f.Tickets[id] = t
	return t, nil
}

func (f *FakeStore) ExpireStale(ctx context.Context, cutoff time.Time) ([]domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var expired []domain.Ticket
	for id, t := range f.Tickets {
		if t.PaymentStatus.Unpaid() && !t.CreatedAt.After(cutoff) {
			t.PaymentStatus = domain.StatusExpired
			f.Tickets[id] = t
			expired = append(expired, t)
		}
	}
	return expired, nil
}

func (f *FakeStore) ValidateTicket(ctx context.Context, id uuid.UUID, now time.Time) (domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.Tickets[id]
	if !ok {
		return domain.Ticket{}, domain.ErrNotFound
	}
	if t.IsValidated {
		return t, domain.ErrAlreadyUsed
	}
	if t.PaymentStatus == domain.StatusExpired {
		return t, domain.ErrExpired
	}
	if t.PaymentStatus.Unpaid() {
		return t, domain.ErrPaymentRequired
	}
	t.IsValidated = true
	t.ValidatedAt = &now
	f.Tickets[id] = t
	return t, nil
}

func (f *FakeStore) InvalidateTicket(ctx context.Context, id uuid.UUID) (domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.Tickets[id]
	if !ok {
		return domain.Ticket{}, domain.ErrNotFound
	}
	t.IsValidated = false
	t.ValidatedAt = nil
	f.Tickets[id] = t
	return t, nil
}

func (f *FakeStore) InsertChallenge(ctx context.Context, c domain.ClaimChallenge) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Challenges[c.ID] = c
	return nil
}

func (f *FakeStore) SupersedeChallenges(ctx context.Context, email string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, c := range f.Challenges {
		if c.Email == email && !c.Verified && c.ExpiresAt.After(now) {
			c.ExpiresAt = now
			f.Challenges[id] = c
		}
	}
	return nil
}

func (f *FakeStore) ConsumeChallenge(ctx context.Context, email, code string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, c := range f.Challenges {
		if c.Email == email && c.Code == code && !c.Verified && c.ExpiresAt.After(now) {
			c.Verified = true
			f.Challenges[id] = c
			return nil
		}
	}
	return domain.ErrVerificationFailed
}

func (f *FakeStore) HasVerifiedChallenge(ctx context.Context, email string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.Challenges {
		if c.Email == email && c.Verified && c.ExpiresAt.After(now) {
			return true, nil
		}
	}
	return false, nil
}

func (f *FakeStore) InsertOutbox(ctx context.Context, record crdb.OutboxRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Outbox = append(f.Outbox, record)
	return nil
}

// OutboxTypes returns the event types recorded so far, in order.
func (f *FakeStore) OutboxTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make([]string, len(f.Outbox))
	for i, rec := range f.Outbox {
		types[i] = rec.EventType
	}
	return types
}
