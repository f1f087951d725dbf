package crdb

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/domain"
)

func (r *Repository) InsertChallenge(ctx context.Context, c domain.ClaimChallenge) error {
	_, err := r.q(ctx).Exec(ctx, `
		INSERT INTO claim_challenges (id, email, code, expires_at, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, c.ID, c.Email, c.Code, c.ExpiresAt, c.Verified, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert challenge: %w", err)
	}
	return nil
}

// SupersedeChallenges retires every still-active challenge for the
// email so only the newest one is authoritative.
func (r *Repository) SupersedeChallenges(ctx context.Context, email string, now time.Time) error {
	_, err := r.q(ctx).Exec(ctx, `
		UPDATE claim_challenges SET expires_at = $2
		WHERE email = $1 AND verified = FALSE AND expires_at > $2
	`, email, now)
	if err != nil {
		return fmt.Errorf("supersede challenges: %w", err)
	}
	return nil
}

func (r *Repository) GetActiveChallenge(ctx context.Context, email string, now time.Time) (domain.ClaimChallenge, error) {
	var c domain.ClaimChallenge
	err := r.q(ctx).QueryRow(ctx, `
		SELECT id, email, code, expires_at, verified, created_at
		FROM claim_challenges
		WHERE email = $1 AND verified = FALSE AND expires_at > $2
		ORDER BY created_at DESC LIMIT 1
	`, email, now).Scan(&c.ID, &c.Email, &c.Code, &c.ExpiresAt, &c.Verified, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ClaimChallenge{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.ClaimChallenge{}, fmt.Errorf("get active challenge: %w", err)
	}
	return c, nil
}

// ConsumeChallenge marks the challenge verified, single use. The
// conditional UPDATE makes exact-match, unexpired, unconsumed one
// atomic check.
func (r *Repository) ConsumeChallenge(ctx context.Context, email, code string, now time.Time) error {
	result, err := r.q(ctx).Exec(ctx, `
		UPDATE claim_challenges SET verified = TRUE
		WHERE email = $1 AND code = $2 AND verified = FALSE AND expires_at > $3
	`, email, code, now)
	if err != nil {
		return fmt.Errorf("consume challenge: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrVerificationFailed
	}
	return nil
}

// HasVerifiedChallenge reports whether the email holds a consumed
// challenge that is still inside its validity window. Ticket creation
// is gated on this.
func (r *Repository) HasVerifiedChallenge(ctx context.Context, email string, now time.Time) (bool, error) {
	var ok bool
	err := r.q(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM claim_challenges
			WHERE email = $1 AND verified = TRUE AND expires_at > $2
		)
	`, email, now).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("has verified challenge: %w", err)
	}
	return ok, nil
}
