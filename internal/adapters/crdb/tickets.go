package crdb

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/domain"
)

const ticketColumns = `id, ticket_code, event_id, tier_id, attendee_name, attendee_email, attendee_phone,
	payment_status, payment_ref_id, is_validated, created_at, verified_at, validated_at`

func scanTicket(row pgx.Row) (domain.Ticket, error) {
	var t domain.Ticket
	err := row.Scan(&t.ID, &t.Code, &t.EventID, &t.TierID, &t.Attendee.Name, &t.Attendee.Email, &t.Attendee.Phone,
		&t.PaymentStatus, &t.PaymentRefID, &t.IsValidated, &t.CreatedAt, &t.VerifiedAt, &t.ValidatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Ticket{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("scan ticket: %w", err)
	}
	return t, nil
}

func (r *Repository) InsertTicket(ctx context.Context, t domain.Ticket) error {
	_, err := r.q(ctx).Exec(ctx, `
		INSERT INTO tickets (`+ticketColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, t.ID, t.Code, t.EventID, t.TierID, t.Attendee.Name, t.Attendee.Email, t.Attendee.Phone,
		t.PaymentStatus, t.PaymentRefID, t.IsValidated, t.CreatedAt, t.VerifiedAt, t.ValidatedAt)
	if isUniqueViolation(err) {
		return domain.ErrCodeCollision
	}
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	return nil
}

func (r *Repository) GetTicket(ctx context.Context, id uuid.UUID) (domain.Ticket, error) {
	return scanTicket(r.q(ctx).QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id))
}

func (r *Repository) GetTicketByCode(ctx context.Context, code string) (domain.Ticket, error) {
	return scanTicket(r.q(ctx).QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE ticket_code = $1`, code))
}

// ConfirmOnlinePayment moves pending -> verified and records the
// external payment reference. Any other source state is an invalid
// transition.
func (r *Repository) ConfirmOnlinePayment(ctx context.Context, id uuid.UUID, paymentRef string, now time.Time) (domain.Ticket, error) {
	t, err := scanTicket(r.q(ctx).QueryRow(ctx, `
		UPDATE tickets SET payment_status = $2, payment_ref_id = $3, verified_at = $4
		WHERE id = $1 AND payment_status = $5
		RETURNING `+ticketColumns+`
	`, id, domain.StatusVerified, paymentRef, now, domain.StatusPending))
	if errors.Is(err, domain.ErrNotFound) {
		if _, err := r.GetTicket(ctx, id); err != nil {
			return domain.Ticket{}, err
		}
		return domain.Ticket{}, domain.ErrInvalidTransition
	}
	return t, err
}

// ConfirmCash moves pay_at_venue -> paid with the cash sentinel as the
// payment reference.
func (r *Repository) ConfirmCash(ctx context.Context, id uuid.UUID, now time.Time) (domain.Ticket, error) {
	t, err := scanTicket(r.q(ctx).QueryRow(ctx, `
		UPDATE tickets SET payment_status = $2, payment_ref_id = $3, verified_at = $4
		WHERE id = $1 AND payment_status = $5
		RETURNING `+ticketColumns+`
	`, id, domain.StatusPaid, domain.CashPaymentRef, now, domain.StatusPayAtVenue))
	if errors.Is(err, domain.ErrNotFound) {
		if _, err := r.GetTicket(ctx, id); err != nil {
			return domain.Ticket{}, err
		}
		return domain.Ticket{}, domain.ErrInvalidTransition
	}
	return t, err
}

// ExpireTicket moves a single unpaid ticket to expired. Paid and
// verified tickets are never expired.
func (r *Repository) ExpireTicket(ctx context.Context, id uuid.UUID) (domain.Ticket, error) {
	t, err := scanTicket(r.q(ctx).QueryRow(ctx, `
		UPDATE tickets SET payment_status = $2
		WHERE id = $1 AND payment_status IN ($3, $4)
		RETURNING `+ticketColumns+`
	`, id, domain.StatusExpired, domain.StatusPending, domain.StatusPayAtVenue))
	if errors.Is(err, domain.ErrNotFound) {
		if _, err := r.GetTicket(ctx, id); err != nil {
			return domain.Ticket{}, err
		}
		return domain.Ticket{}, domain.ErrInvalidTransition
	}
	return t, err
}

// ExpireStale expires every unpaid ticket created before the cutoff in
// one conditional UPDATE. Running it twice is harmless: already-expired
// rows no longer match the predicate.
func (r *Repository) ExpireStale(ctx context.Context, cutoff time.Time) ([]domain.Ticket, error) {
	rows, err := r.q(ctx).Query(ctx, `
		UPDATE tickets SET payment_status = $1
		WHERE payment_status IN ($2, $3) AND created_at <= $4
		RETURNING `+ticketColumns+`
	`, domain.StatusExpired, domain.StatusPending, domain.StatusPayAtVenue, cutoff)
	if err != nil {
		return nil, fmt.Errorf("expire stale: %w", err)
	}
	defer rows.Close()

	var expired []domain.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		expired = append(expired, t)
	}
	return expired, rows.Err()
}

// ValidateTicket performs the one-time validation transition as a
// single conditional UPDATE so concurrent scanners produce exactly one
// success. The loser re-reads the row to report why it lost.
func (r *Repository) ValidateTicket(ctx context.Context, id uuid.UUID, now time.Time) (domain.Ticket, error) {
	t, err := scanTicket(r.q(ctx).QueryRow(ctx, `
		UPDATE tickets SET is_validated = TRUE, validated_at = $2
		WHERE id = $1 AND is_validated = FALSE AND payment_status IN ($3, $4)
		RETURNING `+ticketColumns+`
	`, id, now, domain.StatusPaid, domain.StatusVerified))
	if !errors.Is(err, domain.ErrNotFound) {
		return t, err
	}

	current, err := r.GetTicket(ctx, id)
	if err != nil {
		return domain.Ticket{}, err
	}
	switch {
	case current.IsValidated:
		return current, domain.ErrAlreadyUsed
	case current.PaymentStatus == domain.StatusExpired:
		return current, domain.ErrExpired
	case current.PaymentStatus.Unpaid():
		return current, domain.ErrPaymentRequired
	default:
		return current, domain.ErrInvalidTransition
	}
}

// InvalidateTicket is the administrative override reversing a
// validation.
func (r *Repository) InvalidateTicket(ctx context.Context, id uuid.UUID) (domain.Ticket, error) {
	t, err := scanTicket(r.q(ctx).QueryRow(ctx, `
		UPDATE tickets SET is_validated = FALSE, validated_at = NULL
		WHERE id = $1
		RETURNING `+ticketColumns+`
	`, id))
	return t, err
}
