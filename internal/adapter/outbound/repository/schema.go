package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStatements holds the idempotent DDL for the opennotes schema. Each
// statement runs separately so the whole set works over the extended query
// protocol.
//
//nolint:gochecknoglobals // DDL script, effectively a constant.
var schemaStatements = []string{
	`CREATE SCHEMA IF NOT EXISTS opennotes`,

	`CREATE TABLE IF NOT EXISTS opennotes.batch_jobs (
		id UUID PRIMARY KEY,
		job_kind TEXT NOT NULL,
		status TEXT NOT NULL,
		params JSONB NOT NULL DEFAULT '{}'::jsonb,
		total_units BIGINT NOT NULL DEFAULT 0,
		completed_units BIGINT NOT NULL DEFAULT 0,
		failed_units BIGINT NOT NULL DEFAULT 0,
		result_metadata JSONB,
		error_message TEXT,
		started_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_batch_jobs_status
		ON opennotes.batch_jobs (status)`,

	`CREATE INDEX IF NOT EXISTS idx_batch_jobs_kind_created
		ON opennotes.batch_jobs (job_kind, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS opennotes.note_candidates (
		id UUID PRIMARY KEY,
		tenant_id UUID NOT NULL,
		post_ref TEXT NOT NULL,
		body TEXT NOT NULL,
		status TEXT NOT NULL,
		score DOUBLE PRECISION,
		scan_verdict TEXT,
		batch_index BIGINT NOT NULL DEFAULT 0,
		processed_by UUID,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	// Claim queries walk id > cursor under each kind predicate. Partial
	// indexes keep those walks on the still-unprocessed rows.
	`CREATE INDEX IF NOT EXISTS idx_note_candidates_pending_review
		ON opennotes.note_candidates (id)
		WHERE status = 'pending_review'`,

	`CREATE INDEX IF NOT EXISTS idx_note_candidates_unscanned
		ON opennotes.note_candidates (id)
		WHERE scan_verdict IS NULL`,

	`CREATE INDEX IF NOT EXISTS idx_note_candidates_unscored
		ON opennotes.note_candidates (id)
		WHERE score IS NULL AND status <> 'rejected'`,

	`CREATE INDEX IF NOT EXISTS idx_note_candidates_tenant
		ON opennotes.note_candidates (tenant_id)`,

	`CREATE TABLE IF NOT EXISTS opennotes.resource_quotas (
		tenant_id UUID NOT NULL,
		resource_kind TEXT NOT NULL,
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		daily_limit_requests BIGINT NOT NULL DEFAULT 0,
		monthly_limit_requests BIGINT NOT NULL DEFAULT 0,
		daily_limit_units BIGINT NOT NULL DEFAULT 0,
		monthly_limit_units BIGINT NOT NULL DEFAULT 0,
		daily_used_requests BIGINT NOT NULL DEFAULT 0,
		monthly_used_requests BIGINT NOT NULL DEFAULT 0,
		daily_used_units BIGINT NOT NULL DEFAULT 0,
		monthly_used_units BIGINT NOT NULL DEFAULT 0,
		daily_period_start TIMESTAMPTZ NOT NULL,
		monthly_period_start TIMESTAMPTZ NOT NULL,
		revision BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (tenant_id, resource_kind)
	)`,

	`CREATE TABLE IF NOT EXISTS opennotes.usage_records (
		id UUID PRIMARY KEY,
		tenant_id UUID NOT NULL,
		resource_kind TEXT NOT NULL,
		units_used BIGINT NOT NULL DEFAULT 0,
		label TEXT NOT NULL DEFAULT '',
		success BOOLEAN NOT NULL,
		error_message TEXT,
		occurred_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_usage_records_tenant_time
		ON opennotes.usage_records (tenant_id, resource_kind, occurred_at DESC)`,
}

// EnsureSchema creates the opennotes schema, tables and indexes if they do
// not exist. Statements are idempotent, so running it against an
// up-to-date database is a no-op.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return WrapError(err, "ensure schema")
		}
	}
	return nil
}
