package scan

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/clock"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/domain"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/lifecycle"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/observability"
)

type Outcome string

const (
	OutcomeValid           Outcome = "valid"
	OutcomeAlreadyUsed     Outcome = "already_used"
	OutcomeExpired         Outcome = "expired"
	OutcomePaymentRequired Outcome = "payment_required"
	OutcomeUnauthorized    Outcome = "unauthorized"
	OutcomeNotFound        Outcome = "not_found"
	OutcomeInvalidFormat   Outcome = "invalid_format"
)

// Result is the operator-facing answer to a door scan. Business
// rejections are outcomes, not errors; only system faults surface as
// errors.
type Result struct {
	Outcome     Outcome
	Ticket      *domain.Ticket
	ValidatedAt *time.Time
}

type Store interface {
	GetTicket(ctx context.Context, id uuid.UUID) (domain.Ticket, error)
	GetTicketByCode(ctx context.Context, code string) (domain.Ticket, error)
	GetEvent(ctx context.Context, id uuid.UUID) (domain.Event, error)
}

type Transitions interface {
	Expire(ctx context.Context, ticketID uuid.UUID) (domain.Ticket, error)
	Validate(ctx context.Context, ticketID uuid.UUID) (domain.Ticket, error)
	ConfirmCashAndValidate(ctx context.Context, ticketID uuid.UUID) (domain.Ticket, error)
}

type Auditor interface {
	LogScan(ctx context.Context, principalID uuid.UUID, code, outcome, ticketID string)
}

// Service implements the door-scan workflow, the highest-consequence
// operation in the system.
type Service struct {
	store       Store
	transitions Transitions
	audit       Auditor
	clock       clock.Clock
	logger      observability.Logger
}

var _ Transitions = (*lifecycle.Service)(nil)

func NewService(store Store, transitions Transitions, audit Auditor, clk clock.Clock, logger observability.Logger) *Service {
	return &Service{store: store, transitions: transitions, audit: audit, clock: clk, logger: logger}
}

// Scan resolves a scanned code to an entry decision. The checks run in
// a fixed order: format, lookup, authorization, staleness, reuse,
// payment gate, and finally the one-time validation transition.
func (s *Service) Scan(ctx context.Context, rawCode string, principalID uuid.UUID) (Result, error) {
	code := domain.NormalizeTicketCode(rawCode)
	if !domain.ValidTicketCode(code) {
		return s.done(ctx, principalID, code, Result{Outcome: OutcomeInvalidFormat}, nil)
	}

	ticket, err := s.store.GetTicketByCode(ctx, code)
	if errors.Is(err, domain.ErrNotFound) {
		return s.done(ctx, principalID, code, Result{Outcome: OutcomeNotFound}, nil)
	}
	if err != nil {
		return Result{}, err
	}

	// Authorization before any ticket state is revealed.
	event, err := s.store.GetEvent(ctx, ticket.EventID)
	if err != nil {
		return Result{}, err
	}
	if event.OrganizerID != principalID {
		return s.done(ctx, principalID, code, Result{Outcome: OutcomeUnauthorized}, nil)
	}

	if res, handled, err := s.expireIfStale(ctx, ticket); handled || err != nil {
		return s.done(ctx, principalID, code, res, err)
	}

	if ticket.IsValidated {
		return s.done(ctx, principalID, code, Result{Outcome: OutcomeAlreadyUsed, Ticket: &ticket, ValidatedAt: ticket.ValidatedAt}, nil)
	}

	if ticket.PaymentStatus.Unpaid() {
		return s.done(ctx, principalID, code, Result{Outcome: OutcomePaymentRequired, Ticket: &ticket}, nil)
	}

	validated, err := s.transitions.Validate(ctx, ticket.ID)
	res, err := s.mapValidateErr(ctx, ticket.ID, validated, err)
	return s.done(ctx, principalID, code, res, err)
}

// ConfirmCashAndValidate is the operator's follow-up to a
// payment_required scan: collect cash, then settle and validate as one
// guarded operation.
func (s *Service) ConfirmCashAndValidate(ctx context.Context, ticketID uuid.UUID, principalID uuid.UUID) (Result, error) {
	ticket, err := s.store.GetTicket(ctx, ticketID)
	if errors.Is(err, domain.ErrNotFound) {
		return s.done(ctx, principalID, "", Result{Outcome: OutcomeNotFound}, nil)
	}
	if err != nil {
		return Result{}, err
	}

	event, err := s.store.GetEvent(ctx, ticket.EventID)
	if err != nil {
		return Result{}, err
	}
	if event.OrganizerID != principalID {
		return s.done(ctx, principalID, ticket.Code, Result{Outcome: OutcomeUnauthorized}, nil)
	}

	if res, handled, err := s.expireIfStale(ctx, ticket); handled || err != nil {
		return s.done(ctx, principalID, ticket.Code, res, err)
	}

	if ticket.IsValidated {
		return s.done(ctx, principalID, ticket.Code, Result{Outcome: OutcomeAlreadyUsed, Ticket: &ticket, ValidatedAt: ticket.ValidatedAt}, nil)
	}

	confirmed, err := s.transitions.ConfirmCashAndValidate(ctx, ticketID)
	res, err := s.mapValidateErr(ctx, ticketID, confirmed, err)
	return s.done(ctx, principalID, ticket.Code, res, err)
}

// expireIfStale applies the grace window inline so a door scan never
// admits a ticket the scheduled sweep has not reached yet.
func (s *Service) expireIfStale(ctx context.Context, ticket domain.Ticket) (Result, bool, error) {
	if !ticket.PaymentStatus.Unpaid() || !domain.StaleAt(ticket.CreatedAt, s.clock.Now()) {
		return Result{}, false, nil
	}
	if _, err := s.transitions.Expire(ctx, ticket.ID); err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
		// ErrInvalidTransition means the sweeper beat us to it.
		return Result{}, true, err
	}
	return Result{Outcome: OutcomeExpired}, true, nil
}

func (s *Service) mapValidateErr(ctx context.Context, ticketID uuid.UUID, validated domain.Ticket, err error) (Result, error) {
	switch {
	case err == nil:
		return Result{Outcome: OutcomeValid, Ticket: &validated, ValidatedAt: validated.ValidatedAt}, nil
	case errors.Is(err, domain.ErrAlreadyUsed):
		// Lost the race; re-read for the winner's validated_at.
		current, rerr := s.store.GetTicket(ctx, ticketID)
		if rerr != nil {
			return Result{}, rerr
		}
		return Result{Outcome: OutcomeAlreadyUsed, Ticket: &current, ValidatedAt: current.ValidatedAt}, nil
	case errors.Is(err, domain.ErrExpired):
		return Result{Outcome: OutcomeExpired}, nil
	case errors.Is(err, domain.ErrPaymentRequired):
		current, rerr := s.store.GetTicket(ctx, ticketID)
		if rerr != nil {
			return Result{}, rerr
		}
		return Result{Outcome: OutcomePaymentRequired, Ticket: &current}, nil
	default:
		return Result{}, err
	}
}

func (s *Service) done(ctx context.Context, principalID uuid.UUID, code string, res Result, err error) (Result, error) {
	if err != nil {
		return res, err
	}
	observability.ScansTotal.WithLabelValues(string(res.Outcome)).Inc()
	ticketID := ""
	if res.Ticket != nil {
		ticketID = res.Ticket.ID.String()
	}
	if s.audit != nil {
		s.audit.LogScan(ctx, principalID, code, string(res.Outcome), ticketID)
	}
	return res, nil
}
