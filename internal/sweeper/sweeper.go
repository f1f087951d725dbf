package sweeper

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/adapters/crdb"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/clock"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/domain"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/observability"
)

type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	ExpireStale(ctx context.Context, cutoff time.Time) ([]domain.Ticket, error)
	GetEvent(ctx context.Context, id uuid.UUID) (domain.Event, error)
	InsertOutbox(ctx context.Context, record crdb.OutboxRecord) error
}

// Service expires unpaid tickets that outlived the grace window.
// Expiry never releases capacity: issued counters stay issued.
type Service struct {
	store  Store
	clock  clock.Clock
	logger observability.Logger
	grace  time.Duration
}

func NewService(store Store, clk clock.Clock, logger observability.Logger, grace time.Duration) *Service {
	return &Service{store: store, clock: clk, logger: logger, grace: grace}
}

// Sweep expires every stale unpaid ticket and emits an expiry event
// for each, all in one transaction. Idempotent: a second immediate run
// finds nothing left to expire.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-s.grace)

	var count int
	err := s.store.WithTx(ctx, func(txCtx context.Context) error {
		expired, err := s.store.ExpireStale(txCtx, cutoff)
		if err != nil {
			return err
		}
		count = len(expired)

		events := make(map[uuid.UUID]domain.Event)
		for _, t := range expired {
			event, ok := events[t.EventID]
			if !ok {
				event, err = s.store.GetEvent(txCtx, t.EventID)
				if err != nil {
					return err
				}
				events[t.EventID] = event
			}
			if err := s.emitExpired(txCtx, event, t); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if count > 0 {
		observability.TicketsExpired.Add(float64(count))
		s.logger.WithField("count", count).Info("expired stale tickets")
	}
	return count, nil
}

// Run sweeps on a fixed interval until the context is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("sweep failed", err)
			}
		}
	}
}

func (s *Service) emitExpired(ctx context.Context, event domain.Event, t domain.Ticket) error {
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
		EventType:     domain.EventTicketExpired,
		Payload:       payload,
		DedupeKey:     t.ID.String() + ":" + domain.EventTicketExpired,
	})
}
