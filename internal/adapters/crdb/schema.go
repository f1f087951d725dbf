package crdb

import "context"

// Schema is the DDL for the lifecycle store. Applied by tests and by
// ops tooling; kept next to the adapter so column lists stay in sync.
const Schema = `
CREATE TABLE IF NOT EXISTS events (
	id UUID PRIMARY KEY,
	organizer_id UUID NOT NULL,
	title TEXT NOT NULL,
	venue TEXT NOT NULL,
	starts_at TIMESTAMPTZ NOT NULL,
	is_free BOOL NOT NULL DEFAULT FALSE,
	base_price NUMERIC NOT NULL DEFAULT 0,
	currency TEXT NOT NULL DEFAULT 'USD',
	capacity INT,
	tickets_issued INT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS ticket_tiers (
	id UUID PRIMARY KEY,
	event_id UUID NOT NULL REFERENCES events (id),
	name TEXT NOT NULL,
	price NUMERIC NOT NULL DEFAULT 0,
	capacity INT,
	tickets_sold INT NOT NULL DEFAULT 0,
	is_active BOOL NOT NULL DEFAULT TRUE,
	is_early_bird BOOL NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS tickets (
	id UUID PRIMARY KEY,
	ticket_code TEXT NOT NULL UNIQUE,
	event_id UUID NOT NULL REFERENCES events (id),
	tier_id UUID REFERENCES ticket_tiers (id),
	attendee_name TEXT NOT NULL,
	attendee_email TEXT NOT NULL,
	attendee_phone TEXT NOT NULL DEFAULT '',
	payment_status TEXT NOT NULL CHECK (payment_status IN ('pending', 'paid', 'pay_at_venue', 'verified', 'expired')),
	payment_ref_id TEXT,
	is_validated BOOL NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	verified_at TIMESTAMPTZ,
	validated_at TIMESTAMPTZ,
	INDEX tickets_unpaid_created_idx (payment_status, created_at)
);

CREATE TABLE IF NOT EXISTS claim_challenges (
	id UUID PRIMARY KEY,
	email TEXT NOT NULL,
	code TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	verified BOOL NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	INDEX claim_challenges_email_idx (email, verified, expires_at)
);

CREATE TABLE IF NOT EXISTS outbox (
	id UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id UUID NOT NULL,
	event_type TEXT NOT NULL,
	payload_json BYTES NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ,
	status TEXT NOT NULL CHECK (status IN ('NEW', 'PUBLISHED', 'FAILED')),
	dedupe_key TEXT NOT NULL
);
`

// EnsureSchema applies the DDL. Idempotent.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, Schema)
	return err
}
