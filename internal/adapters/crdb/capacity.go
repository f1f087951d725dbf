package crdb

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/domain"
)

// Capacity ledger. Availability checks read the current persisted
// counters; admissions are single conditional UPDATEs so that check and
// increment are one atomic operation.

func (r *Repository) GetEvent(ctx context.Context, id uuid.UUID) (domain.Event, error) {
	var e domain.Event
	err := r.q(ctx).QueryRow(ctx, `
		SELECT id, organizer_id, title, venue, starts_at, is_free, base_price, currency, capacity, tickets_issued
		FROM events WHERE id = $1
	`, id).Scan(&e.ID, &e.OrganizerID, &e.Title, &e.Venue, &e.StartsAt, &e.IsFree, &e.BasePrice, &e.Currency, &e.Capacity, &e.TicketsIssued)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Event{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Event{}, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

func (r *Repository) GetTier(ctx context.Context, id uuid.UUID) (domain.TicketTier, error) {
	var t domain.TicketTier
	err := r.q(ctx).QueryRow(ctx, `
		SELECT id, event_id, name, price, capacity, tickets_sold, is_active, is_early_bird
		FROM ticket_tiers WHERE id = $1
	`, id).Scan(&t.ID, &t.EventID, &t.Name, &t.Price, &t.Capacity, &t.TicketsSold, &t.IsActive, &t.IsEarlyBird)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TicketTier{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.TicketTier{}, fmt.Errorf("get tier: %w", err)
	}
	return t, nil
}

func (r *Repository) CheckEventAvailability(ctx context.Context, id uuid.UUID) (bool, error) {
	e, err := r.GetEvent(ctx, id)
	if err != nil {
		return false, err
	}
	return e.Capacity == nil || e.TicketsIssued < *e.Capacity, nil
}

func (r *Repository) CheckTierAvailability(ctx context.Context, id uuid.UUID) (bool, error) {
	t, err := r.GetTier(ctx, id)
	if err != nil {
		return false, err
	}
	return t.IsActive && (t.Capacity == nil || t.TicketsSold < *t.Capacity), nil
}

// AdmitEvent reserves one slot against the event. Two concurrent
// admissions for the last slot produce exactly one success.
func (r *Repository) AdmitEvent(ctx context.Context, id uuid.UUID) error {
	result, err := r.q(ctx).Exec(ctx, `
		UPDATE events SET tickets_issued = tickets_issued + 1
		WHERE id = $1 AND (capacity IS NULL OR tickets_issued < capacity)
	`, id)
	if err != nil {
		return fmt.Errorf("admit event: %w", err)
	}
	if result.RowsAffected() == 0 {
		if _, err := r.GetEvent(ctx, id); err != nil {
			return err
		}
		return domain.ErrCapacityExceeded
	}
	return nil
}

// AdmitTier reserves one slot against the tier.
func (r *Repository) AdmitTier(ctx context.Context, id uuid.UUID) error {
	result, err := r.q(ctx).Exec(ctx, `
		UPDATE ticket_tiers SET tickets_sold = tickets_sold + 1
		WHERE id = $1 AND is_active AND (capacity IS NULL OR tickets_sold < capacity)
	`, id)
	if err != nil {
		return fmt.Errorf("admit tier: %w", err)
	}
	if result.RowsAffected() == 0 {
		t, err := r.GetTier(ctx, id)
		if err != nil {
			return err
		}
		if !t.IsActive {
			return domain.ErrInactiveTier
		}
		return domain.ErrCapacityExceeded
	}
	return nil
}

func (r *Repository) CreateEvent(ctx context.Context, e domain.Event) error {
	_, err := r.q(ctx).Exec(ctx, `
		INSERT INTO events (id, organizer_id, title, venue, starts_at, is_free, base_price, currency, capacity, tickets_issued)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, e.ID, e.OrganizerID, e.Title, e.Venue, e.StartsAt, e.IsFree, e.BasePrice, e.Currency, e.Capacity, e.TicketsIssued)
	return err
}

func (r *Repository) CreateTier(ctx context.Context, t domain.TicketTier) error {
	_, err := r.q(ctx).Exec(ctx, `
		INSERT INTO ticket_tiers (id, event_id, name, price, capacity, tickets_sold, is_active, is_early_bird)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, t.ID, t.EventID, t.Name, t.Price, t.Capacity, t.TicketsSold, t.IsActive, t.IsEarlyBird)
	return err
}
