package crdb

import "context"

// Schema is valid on both CockroachDB and PostgreSQL.
const Schema = `
CREATE TABLE IF NOT EXISTS listing_locks (
	listing_id TEXT PRIMARY KEY,
	touched_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS reservations (
	id UUID PRIMARY KEY,
	listing_id TEXT NOT NULL,
	user_id TEXT NOT NULL DEFAULT '',
	starts_at TIMESTAMPTZ NOT NULL,
	ends_at TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('held', 'confirmed', 'cancelled', 'expired', 'completed')),
	guests INT NOT NULL DEFAULT 1,
	quote_json JSONB,
	expires_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	CHECK (starts_at < ends_at)
);

CREATE INDEX IF NOT EXISTS reservations_listing_span ON reservations (listing_id, starts_at, ends_at);
CREATE INDEX IF NOT EXISTS reservations_held_expiry ON reservations (status, expires_at);

CREATE TABLE IF NOT EXISTS outbox (
	id UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id UUID NOT NULL,
	event_type TEXT NOT NULL,
	payload_json JSONB NOT NULL,
	status TEXT NOT NULL DEFAULT 'NEW' CHECK (status IN ('NEW', 'PUBLISHED', 'FAILED')),
	dedupe_key TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ,
	leased_until TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS outbox_pending ON outbox (status, created_at);
`

func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, Schema)
	return err
}
