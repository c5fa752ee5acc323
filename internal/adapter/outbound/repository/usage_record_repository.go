package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/opennotes-ai/opennotes-sub006/internal/domain/entity"
	"github.com/opennotes-ai/opennotes-sub006/internal/domain/valueobject"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const usageRecordColumns = `id, tenant_id, resource_kind, units_used, label, success, error_message, occurred_at`

// PostgreSQLUsageRecordRepository exposes the append-only metering trail
// for reporting. Writes happen through the quota ledger; this repository
// is read-only apart from test seeding.
type PostgreSQLUsageRecordRepository struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLUsageRecordRepository creates a new usage record repository.
func NewPostgreSQLUsageRecordRepository(pool *pgxpool.Pool) *PostgreSQLUsageRecordRepository {
	return &PostgreSQLUsageRecordRepository{
		pool: pool,
	}
}

// ListRecent returns the newest usage records for a tenant and resource
// kind, most recent first.
func (r *PostgreSQLUsageRecordRepository) ListRecent(
	ctx context.Context,
	tenantID uuid.UUID,
	kind valueobject.ResourceKind,
	limit int,
) ([]*entity.UsageRecord, error) {
	if tenantID == uuid.Nil {
		return nil, ErrInvalidArgument
	}
	if limit <= 0 {
		return nil, ErrInvalidArgument
	}

	query := `
		SELECT ` + usageRecordColumns + `
		FROM opennotes.usage_records
		WHERE tenant_id = $1 AND resource_kind = $2
		ORDER BY occurred_at DESC
		LIMIT $3`

	qi := GetQueryInterface(ctx, r.pool)
	rows, err := qi.Query(ctx, query, tenantID, kind.String(), limit)
	if err != nil {
		return nil, WrapError(err, "list usage records")
	}
	defer rows.Close()

	var records []*entity.UsageRecord
	for rows.Next() {
		var id, rowTenantID uuid.UUID
		var kindStr, label string
		var unitsUsed int64
		var success bool
		var errorMessage *string
		var occurredAt time.Time

		if err := rows.Scan(&id, &rowTenantID, &kindStr, &unitsUsed, &label, &success, &errorMessage, &occurredAt); err != nil {
			return nil, WrapError(err, "scan usage record row")
		}

		rowKind, err := valueobject.NewResourceKind(kindStr)
		if err != nil {
			return nil, fmt.Errorf("invalid resource kind: %w", err)
		}

		records = append(records, entity.RestoreUsageRecord(
			id, rowTenantID, rowKind, unitsUsed, label, success, errorMessage, occurredAt,
		))
	}

	if err := rows.Err(); err != nil {
		return nil, WrapError(err, "iterate usage record rows")
	}

	return records, nil
}

// insertUsageRecord appends one metering entry. The ledger calls it inside
// the admission transaction so the record commits with the counters.
func insertUsageRecord(ctx context.Context, qi QueryInterface, record *entity.UsageRecord) error {
	query := `
		INSERT INTO opennotes.usage_records (` + usageRecordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := qi.Exec(ctx, query,
		record.ID(),
		record.TenantID(),
		record.ResourceKind().String(),
		record.UnitsUsed(),
		record.Label(),
		record.Success(),
		record.ErrorMessage(),
		record.OccurredAt(),
	)
	if err != nil {
		return WrapError(err, "insert usage record")
	}

	return nil
}
