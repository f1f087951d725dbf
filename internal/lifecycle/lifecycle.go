package lifecycle

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/adapters/crdb"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/clock"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/domain"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/observability"
)

type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetEvent(ctx context.Context, id uuid.UUID) (domain.Event, error)
	GetTier(ctx context.Context, id uuid.UUID) (domain.TicketTier, error)
	CheckEventAvailability(ctx context.Context, id uuid.UUID) (bool, error)
	CheckTierAvailability(ctx context.Context, id uuid.UUID) (bool, error)
	AdmitEvent(ctx context.Context, id uuid.UUID) error
	AdmitTier(ctx context.Context, id uuid.UUID) error
	InsertTicket(ctx context.Context, t domain.Ticket) error
	GetTicket(ctx context.Context, id uuid.UUID) (domain.Ticket, error)
	GetTicketByCode(ctx context.Context, code string) (domain.Ticket, error)
	ConfirmOnlinePayment(ctx context.Context, id uuid.UUID, paymentRef string, now time.Time) (domain.Ticket, error)
	ConfirmCash(ctx context.Context, id uuid.UUID, now time.Time) (domain.Ticket, error)
	ExpireTicket(ctx context.Context, id uuid.UUID) (domain.Ticket, error)
	ValidateTicket(ctx context.Context, id uuid.UUID, now time.Time) (domain.Ticket, error)
	InvalidateTicket(ctx context.Context, id uuid.UUID) (domain.Ticket, error)
	HasVerifiedChallenge(ctx context.Context, email string, now time.Time) (bool, error)
	InsertOutbox(ctx context.Context, record crdb.OutboxRecord) error
}

// Service owns every mutation of a ticket's lifecycle. All transitions
// run in a single transaction together with their outbox record, and a
// lost serialization race is retried once before surfacing.
type Service struct {
	store  Store
	clock  clock.Clock
	logger observability.Logger
}

func NewService(store Store, clk clock.Clock, logger observability.Logger) *Service {
	return &Service{store: store, clock: clk, logger: logger}
}

// CreateFree issues a ticket for a free event; the resulting ticket is
// immediately paid.
func (s *Service) CreateFree(ctx context.Context, eventID uuid.UUID, tierID *uuid.UUID, attendee domain.Attendee) (domain.Ticket, error) {
	return s.create(ctx, eventID, tierID, attendee, domain.StatusPaid)
}

// CreatePaidPending issues a ticket for a non-free event. Online
// payments start in pending; cash-at-venue starts in pay_at_venue.
// Neither path reaches paid directly.
func (s *Service) CreatePaidPending(ctx context.Context, eventID uuid.UUID, tierID *uuid.UUID, attendee domain.Attendee, method domain.PaymentMethod) (domain.Ticket, error) {
	switch method {
	case domain.MethodOnline:
		return s.create(ctx, eventID, tierID, attendee, domain.StatusPending)
	case domain.MethodCash:
		return s.create(ctx, eventID, tierID, attendee, domain.StatusPayAtVenue)
	default:
		return domain.Ticket{}, domain.ErrInvalidInput
	}
}

func (s *Service) create(ctx context.Context, eventID uuid.UUID, tierID *uuid.UUID, attendee domain.Attendee, status domain.PaymentStatus) (domain.Ticket, error) {
	if attendee.Name == "" || attendee.Email == "" {
		return domain.Ticket{}, domain.ErrInvalidInput
	}

	var ticket domain.Ticket
	attempt := func(txCtx context.Context) error {
		verified, err := s.store.HasVerifiedChallenge(txCtx, attendee.Email, s.clock.Now())
		if err != nil {
			return err
		}
		if !verified {
			return domain.ErrEmailNotVerified
		}

		event, err := s.store.GetEvent(txCtx, eventID)
		if err != nil {
			return err
		}
		if event.IsFree != (status == domain.StatusPaid) {
			return domain.ErrInvalidInput
		}

		// Tier and event admission are all-or-nothing: the enclosing
		// transaction rolls both increments back if either fails.
		if tierID != nil {
			tier, err := s.store.GetTier(txCtx, *tierID)
			if err != nil {
				return err
			}
			if tier.EventID != eventID {
				return domain.ErrNotFound
			}
			if err := s.store.AdmitTier(txCtx, *tierID); err != nil {
				return err
			}
		}
		if err := s.store.AdmitEvent(txCtx, eventID); err != nil {
			return err
		}

		ticket = domain.NewTicket(event, tierID, attendee, status, s.clock.Now())
		if err := s.store.InsertTicket(txCtx, ticket); err != nil {
			return err
		}
		return s.emit(txCtx, event, ticket, domain.EventTicketClaimed)
	}

	err := s.withRetry(ctx, attempt)
	// Code collisions are vanishingly rare; one regeneration attempt.
	if errors.Is(err, domain.ErrCodeCollision) {
		err = s.withRetry(ctx, attempt)
	}
	if err != nil {
		return domain.Ticket{}, err
	}
	observability.TicketsIssued.WithLabelValues(string(status)).Inc()
	return ticket, nil
}

// ConfirmOnlinePayment records the external payment reference and
// moves pending -> verified, opening the entry window.
func (s *Service) ConfirmOnlinePayment(ctx context.Context, ticketID uuid.UUID, paymentRef string) (domain.Ticket, error) {
	if paymentRef == "" {
		return domain.Ticket{}, domain.ErrInvalidInput
	}
	var ticket domain.Ticket
	err := s.withRetry(ctx, func(txCtx context.Context) error {
		t, err := s.store.ConfirmOnlinePayment(txCtx, ticketID, paymentRef, s.clock.Now())
		if err != nil {
			return err
		}
		event, err := s.store.GetEvent(txCtx, t.EventID)
		if err != nil {
			return err
		}
		ticket = t
		return s.emit(txCtx, event, t, domain.EventPaymentConfirmed)
	})
	return ticket, err
}

// ConfirmCashAndValidate settles a pay_at_venue ticket in cash and
// validates it as one guarded operation. Invoked only from the door
// scan workflow.
func (s *Service) ConfirmCashAndValidate(ctx context.Context, ticketID uuid.UUID) (domain.Ticket, error) {
	var ticket domain.Ticket
	err := s.withRetry(ctx, func(txCtx context.Context) error {
		if _, err := s.store.ConfirmCash(txCtx, ticketID, s.clock.Now()); err != nil {
			return err
		}
		t, err := s.store.ValidateTicket(txCtx, ticketID, s.clock.Now())
		if err != nil {
			return err
		}
		event, err := s.store.GetEvent(txCtx, t.EventID)
		if err != nil {
			return err
		}
		ticket = t
		if err := s.emit(txCtx, event, t, domain.EventPaymentConfirmed); err != nil {
			return err
		}
		return s.emit(txCtx, event, t, domain.EventTicketValidated)
	})
	return ticket, err
}

// Expire moves an unpaid ticket past its grace window to expired.
func (s *Service) Expire(ctx context.Context, ticketID uuid.UUID) (domain.Ticket, error) {
	var ticket domain.Ticket
	err := s.withRetry(ctx, func(txCtx context.Context) error {
		t, err := s.store.ExpireTicket(txCtx, ticketID)
		if err != nil {
			return err
		}
		event, err := s.store.GetEvent(txCtx, t.EventID)
		if err != nil {
			return err
		}
		ticket = t
		return s.emit(txCtx, event, t, domain.EventTicketExpired)
	})
	return ticket, err
}

// Validate marks the ticket used. Exactly one concurrent caller
// succeeds; the rest see ErrAlreadyUsed.
func (s *Service) Validate(ctx context.Context, ticketID uuid.UUID) (domain.Ticket, error) {
	var ticket domain.Ticket
	err := s.withRetry(ctx, func(txCtx context.Context) error {
		t, err := s.store.ValidateTicket(txCtx, ticketID, s.clock.Now())
		if err != nil {
			return err
		}
		event, err := s.store.GetEvent(txCtx, t.EventID)
		if err != nil {
			return err
		}
		ticket = t
		return s.emit(txCtx, event, t, domain.EventTicketValidated)
	})
	return ticket, err
}

// Invalidate is the administrative override reversing a validation.
// Only the event organizer may invoke it.
func (s *Service) Invalidate(ctx context.Context, ticketID, principalID uuid.UUID) (domain.Ticket, error) {
	var ticket domain.Ticket
	err := s.withRetry(ctx, func(txCtx context.Context) error {
		t, err := s.store.GetTicket(txCtx, ticketID)
		if err != nil {
			return err
		}
		event, err := s.store.GetEvent(txCtx, t.EventID)
		if err != nil {
			return err
		}
		if event.OrganizerID != principalID {
			return domain.ErrUnauthorized
		}
		ticket, err = s.store.InvalidateTicket(txCtx, ticketID)
		return err
	})
	return ticket, err
}

// Availability reports whether a claim for the event (and tier, when
// given) would currently be admitted. Advisory only: the claim itself
// re-checks atomically, so a true here can still lose to a concurrent
// claimant.
func (s *Service) Availability(ctx context.Context, eventID uuid.UUID, tierID *uuid.UUID) (bool, bool, error) {
	eventOK, err := s.store.CheckEventAvailability(ctx, eventID)
	if err != nil {
		return false, false, err
	}
	tierOK := true
	if tierID != nil {
		tierOK, err = s.store.CheckTierAvailability(ctx, *tierID)
		if err != nil {
			return false, false, err
		}
	}
	return eventOK, tierOK, nil
}

// Claim routes a claim to the free or paid creation path based on the
// event's pricing.
func (s *Service) Claim(ctx context.Context, eventID uuid.UUID, tierID *uuid.UUID, attendee domain.Attendee, method domain.PaymentMethod) (domain.Ticket, error) {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return domain.Ticket{}, err
	}
	if event.IsFree {
		return s.CreateFree(ctx, eventID, tierID, attendee)
	}
	return s.CreatePaidPending(ctx, eventID, tierID, attendee, method)
}

// withRetry retries once on a lost serialization race; the second loss
// surfaces to the caller.
func (s *Service) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	err := s.store.WithTx(ctx, fn)
	if errors.Is(err, domain.ErrSerializationFailure) {
		s.logger.Warn("retrying after serialization failure")
		err = s.store.WithTx(ctx, fn)
	}
	return err
}

func (s *Service) emit(ctx context.Context, event domain.Event, t domain.Ticket, eventType string) error {
	payload, err := json.Marshal(domain.TicketEvent{
		TicketID:      t.ID,
		TicketCode:    t.Code,
		EventID:       event.ID,
		EventTitle:    event.Title,
		EventVenue:    event.Venue,
		EventStartsAt: event.StartsAt,
		AttendeeName:  t.Attendee.Name,
		AttendeeEmail: t.Attendee.Email,
		AttendeePhone: t.Attendee.Phone,
		Status:        string(t.PaymentStatus),
		OccurredAt:    s.clock.Now(),
	})
	if err != nil {
		return err
	}
	return s.store.InsertOutbox(ctx, crdb.OutboxRecord{
		ID:            uuid.New(),
		AggregateType: "ticket",
		AggregateID:   t.ID,
		EventType:     eventType,
		Payload:       payload,
		DedupeKey:     t.ID.String() + ":" + eventType,
	})
}
