package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/opennotes-ai/opennotes-sub006/internal/domain/entity"
	domainerrors "github.com/opennotes-ai/opennotes-sub006/internal/domain/errors/domain"
	"github.com/opennotes-ai/opennotes-sub006/internal/domain/valueobject"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const quotaColumns = `tenant_id, resource_kind, enabled,
		daily_limit_requests, monthly_limit_requests, daily_limit_units, monthly_limit_units,
		daily_used_requests, monthly_used_requests, daily_used_units, monthly_used_units,
		daily_period_start, monthly_period_start, revision, created_at, updated_at`

// PostgreSQLQuotaLedger implements the QuotaLedger interface. Admission is
// serialized per quota row: CheckAndRecord locks the row with SELECT ...
// FOR UPDATE, applies the check on the entity, and commits counters plus
// the usage record together. Concurrent callers block on the lock, never
// on stale reads, so the counters cannot over-admit.
type PostgreSQLQuotaLedger struct {
	pool      *pgxpool.Pool
	txManager *TransactionManager
	now       func() time.Time
}

// NewPostgreSQLQuotaLedger creates a new PostgreSQL quota ledger.
func NewPostgreSQLQuotaLedger(pool *pgxpool.Pool) *PostgreSQLQuotaLedger {
	return &PostgreSQLQuotaLedger{
		pool:      pool,
		txManager: NewTransactionManager(pool),
		now:       time.Now,
	}
}

// NewPostgreSQLQuotaLedgerWithClock creates a ledger with an injected
// clock for period rollover tests.
func NewPostgreSQLQuotaLedgerWithClock(pool *pgxpool.Pool, now func() time.Time) *PostgreSQLQuotaLedger {
	ledger := NewPostgreSQLQuotaLedger(pool)
	ledger.now = now
	return ledger
}

// CheckAndRecord admits one request consuming units against the tenant's
// quota. Denials are decisions, not errors; the transaction rolls back
// with counters untouched. On allow the counter mutation and the usage
// record commit atomically.
func (l *PostgreSQLQuotaLedger) CheckAndRecord(
	ctx context.Context,
	tenantID uuid.UUID,
	kind valueobject.ResourceKind,
	units int64,
	label string,
) (*entity.QuotaDecision, error) {
	if tenantID == uuid.Nil {
		return nil, ErrInvalidArgument
	}
	if units < 0 {
		return nil, domainerrors.ErrQuotaInvalidUnits
	}

	var decision *entity.QuotaDecision

	err := l.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		quota, err := l.lockQuotaRow(txCtx, tenantID, kind)
		if err != nil {
			return err
		}

		now := l.now()
		d, err := quota.Apply(now, units)
		if err != nil {
			return err
		}
		decision = d

		if !d.Allowed {
			// No mutation on a refusal. A rollover computed during the
			// check is recomputed on the next call; Rollover is
			// idempotent for a given instant.
			return nil
		}

		if err := l.updateQuotaRow(txCtx, quota); err != nil {
			return err
		}

		record := entity.NewUsageRecord(tenantID, kind, units, label, now)
		return insertUsageRecord(txCtx, GetQueryInterface(txCtx, l.pool), record)
	})
	if err != nil {
		return nil, err
	}

	return decision, nil
}

// RecordFailure appends a failed usage record without touching counters.
func (l *PostgreSQLQuotaLedger) RecordFailure(
	ctx context.Context,
	tenantID uuid.UUID,
	kind valueobject.ResourceKind,
	units int64,
	label string,
	errorMessage string,
) error {
	if tenantID == uuid.Nil {
		return ErrInvalidArgument
	}

	record := entity.NewFailedUsageRecord(tenantID, kind, units, label, errorMessage, l.now())
	return insertUsageRecord(ctx, GetQueryInterface(ctx, l.pool), record)
}

// EnableResource upserts the quota row with the given limits and enables
// it. Usage counters and periods of an existing row are preserved; only
// limits, the enabled flag and the revision change.
func (l *PostgreSQLQuotaLedger) EnableResource(
	ctx context.Context,
	tenantID uuid.UUID,
	kind valueobject.ResourceKind,
	limits entity.QuotaLimits,
) (*entity.ResourceQuota, error) {
	if tenantID == uuid.Nil {
		return nil, ErrInvalidArgument
	}

	var result *entity.ResourceQuota

	err := l.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		quota, err := l.lockQuotaRow(txCtx, tenantID, kind)
		switch {
		case err == nil:
			now := l.now()
			quota.SetLimits(limits, now)
			quota.Enable(now)
			if updateErr := l.updateQuotaRow(txCtx, quota); updateErr != nil {
				return updateErr
			}
			result = quota
			return nil
		case IsNotFoundError(err):
			quota, newErr := entity.NewResourceQuota(tenantID, kind, limits, l.now())
			if newErr != nil {
				return newErr
			}
			if insertErr := l.insertQuotaRow(txCtx, quota); insertErr != nil {
				return insertErr
			}
			result = quota
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// DisableResource turns the resource off. Subsequent admissions are denied
// with reason resource_disabled.
func (l *PostgreSQLQuotaLedger) DisableResource(
	ctx context.Context,
	tenantID uuid.UUID,
	kind valueobject.ResourceKind,
) error {
	if tenantID == uuid.Nil {
		return ErrInvalidArgument
	}

	return l.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		quota, err := l.lockQuotaRow(txCtx, tenantID, kind)
		if err != nil {
			return err
		}
		quota.Disable(l.now())
		return l.updateQuotaRow(txCtx, quota)
	})
}

// GetQuota returns the current quota row without locking it.
func (l *PostgreSQLQuotaLedger) GetQuota(
	ctx context.Context,
	tenantID uuid.UUID,
	kind valueobject.ResourceKind,
) (*entity.ResourceQuota, error) {
	if tenantID == uuid.Nil {
		return nil, ErrInvalidArgument
	}

	query := `
		SELECT ` + quotaColumns + `
		FROM opennotes.resource_quotas
		WHERE tenant_id = $1 AND resource_kind = $2`

	qi := GetQueryInterface(ctx, l.pool)
	quota, err := scanQuotaRow(qi.QueryRow(ctx, query, tenantID, kind.String()))
	if err != nil {
		if IsNotFoundError(err) {
			return nil, domainerrors.ErrQuotaNotFound
		}
		return nil, WrapError(err, "get quota")
	}

	return quota, nil
}

// lockQuotaRow loads the quota row under FOR UPDATE. Must run inside a
// transaction; the lock releases with it.
func (l *PostgreSQLQuotaLedger) lockQuotaRow(
	ctx context.Context,
	tenantID uuid.UUID,
	kind valueobject.ResourceKind,
) (*entity.ResourceQuota, error) {
	query := `
		SELECT ` + quotaColumns + `
		FROM opennotes.resource_quotas
		WHERE tenant_id = $1 AND resource_kind = $2
		FOR UPDATE`

	qi := GetQueryInterface(ctx, l.pool)
	quota, err := scanQuotaRow(qi.QueryRow(ctx, query, tenantID, kind.String()))
	if err != nil {
		if IsNotFoundError(err) {
			return nil, domainerrors.ErrQuotaNotFound
		}
		return nil, WrapError(err, "lock quota row")
	}

	return quota, nil
}

func (l *PostgreSQLQuotaLedger) insertQuotaRow(ctx context.Context, quota *entity.ResourceQuota) error {
	query := `
		INSERT INTO opennotes.resource_quotas (` + quotaColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	limits := quota.Limits()
	used := quota.Used()

	qi := GetQueryInterface(ctx, l.pool)
	_, err := qi.Exec(ctx, query,
		quota.TenantID(),
		quota.ResourceKind().String(),
		quota.Enabled(),
		limits.DailyRequests,
		limits.MonthlyRequests,
		limits.DailyUnits,
		limits.MonthlyUnits,
		used.DailyRequests,
		used.MonthlyRequests,
		used.DailyUnits,
		used.MonthlyUnits,
		quota.DailyPeriodStart(),
		quota.MonthlyPeriodStart(),
		quota.Revision(),
		quota.CreatedAt(),
		quota.UpdatedAt(),
	)
	if err != nil {
		return WrapError(err, "insert quota row")
	}

	return nil
}

func (l *PostgreSQLQuotaLedger) updateQuotaRow(ctx context.Context, quota *entity.ResourceQuota) error {
	query := `
		UPDATE opennotes.resource_quotas
		SET enabled = $3,
			daily_limit_requests = $4, monthly_limit_requests = $5,
			daily_limit_units = $6, monthly_limit_units = $7,
			daily_used_requests = $8, monthly_used_requests = $9,
			daily_used_units = $10, monthly_used_units = $11,
			daily_period_start = $12, monthly_period_start = $13,
			revision = $14, updated_at = $15
		WHERE tenant_id = $1 AND resource_kind = $2`

	limits := quota.Limits()
	used := quota.Used()

	qi := GetQueryInterface(ctx, l.pool)
	result, err := qi.Exec(ctx, query,
		quota.TenantID(),
		quota.ResourceKind().String(),
		quota.Enabled(),
		limits.DailyRequests,
		limits.MonthlyRequests,
		limits.DailyUnits,
		limits.MonthlyUnits,
		used.DailyRequests,
		used.MonthlyRequests,
		used.DailyUnits,
		used.MonthlyUnits,
		quota.DailyPeriodStart(),
		quota.MonthlyPeriodStart(),
		quota.Revision(),
		quota.UpdatedAt(),
	)
	if err != nil {
		return WrapError(err, "update quota row")
	}

	if result.RowsAffected() == 0 {
		return WrapError(ErrNotFound, "update quota row")
	}

	return nil
}

// scanQuotaRow converts a quota row into a ResourceQuota entity.
func scanQuotaRow(row interface{ Scan(dest ...any) error }) (*entity.ResourceQuota, error) {
	var tenantID uuid.UUID
	var kindStr string
	var enabled bool
	var limits entity.QuotaLimits
	var used entity.QuotaUsage
	var dailyPeriodStart, monthlyPeriodStart time.Time
	var revision int64
	var createdAt, updatedAt time.Time

	err := row.Scan(
		&tenantID, &kindStr, &enabled,
		&limits.DailyRequests, &limits.MonthlyRequests, &limits.DailyUnits, &limits.MonthlyUnits,
		&used.DailyRequests, &used.MonthlyRequests, &used.DailyUnits, &used.MonthlyUnits,
		&dailyPeriodStart, &monthlyPeriodStart, &revision, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	kind, err := valueobject.NewResourceKind(kindStr)
	if err != nil {
		return nil, fmt.Errorf("invalid resource kind: %w", err)
	}

	return entity.RestoreResourceQuota(
		tenantID, kind, enabled, limits, used,
		dailyPeriodStart, monthlyPeriodStart, revision, createdAt, updatedAt,
	), nil
}
