package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/opennotes-ai/opennotes-sub006/internal/domain/entity"
	"github.com/opennotes-ai/opennotes-sub006/internal/domain/valueobject"
	"github.com/opennotes-ai/opennotes-sub006/internal/port/outbound"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const batchJobColumns = `id, job_kind, status, params, total_units, completed_units, failed_units,
		result_metadata, error_message, started_at, completed_at, created_at, updated_at`

// PostgreSQLBatchJobRepository implements the BatchJobRepository interface.
// Job params and the terminal result snapshot are stored as JSONB so a
// resumed run sees the exact scope the job was created with.
type PostgreSQLBatchJobRepository struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLBatchJobRepository creates a new PostgreSQL batch job repository.
func NewPostgreSQLBatchJobRepository(pool *pgxpool.Pool) *PostgreSQLBatchJobRepository {
	return &PostgreSQLBatchJobRepository{
		pool: pool,
	}
}

// Save inserts a new batch job row.
func (r *PostgreSQLBatchJobRepository) Save(ctx context.Context, job *entity.BatchJob) error {
	if job == nil {
		return ErrInvalidArgument
	}

	paramsJSON, resultJSON, err := marshalJobBlobs(job)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO opennotes.batch_jobs (` + batchJobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	qi := GetQueryInterface(ctx, r.pool)
	_, err = qi.Exec(ctx, query,
		job.ID(),
		job.Kind().String(),
		job.Status().String(),
		paramsJSON,
		job.TotalUnits(),
		job.CompletedUnits(),
		job.FailedUnits(),
		resultJSON,
		job.ErrorMessage(),
		job.StartedAt(),
		job.CompletedAt(),
		job.CreatedAt(),
		job.UpdatedAt(),
	)
	if err != nil {
		return WrapError(err, "save batch job")
	}

	return nil
}

// FindByID returns the batch job with the given ID, or nil when absent.
func (r *PostgreSQLBatchJobRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.BatchJob, error) {
	if id == uuid.Nil {
		return nil, ErrInvalidArgument
	}

	query := `
		SELECT ` + batchJobColumns + `
		FROM opennotes.batch_jobs
		WHERE id = $1`

	qi := GetQueryInterface(ctx, r.pool)
	job, err := scanBatchJobRow(qi.QueryRow(ctx, query, id))
	if err != nil {
		if IsNotFoundError(err) {
			return nil, nil
		}
		return nil, WrapError(err, "find batch job by ID")
	}

	return job, nil
}

// FindAll returns batch jobs matching the filters plus the unpaginated
// total, newest first.
func (r *PostgreSQLBatchJobRepository) FindAll(
	ctx context.Context,
	filters outbound.BatchJobFilters,
) ([]*entity.BatchJob, int, error) {
	if filters.Limit <= 0 {
		return nil, 0, ErrInvalidArgument
	}
	if filters.Offset < 0 {
		return nil, 0, ErrInvalidArgument
	}

	var whereConditions []string
	var args []interface{}
	argIndex := 1

	baseQuery := `FROM opennotes.batch_jobs WHERE 1=1`

	if filters.Kind != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("job_kind = $%d", argIndex))
		args = append(args, filters.Kind.String())
		argIndex++
	}
	if filters.Status != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, filters.Status.String())
		argIndex++
	}

	whereClause := ""
	if len(whereConditions) > 0 {
		whereClause = " AND " + strings.Join(whereConditions, " AND ")
	}

	qi := GetQueryInterface(ctx, r.pool)

	totalCount, rows, err := executeCountAndDataQuery(
		ctx, qi,
		baseQuery,
		"SELECT "+batchJobColumns,
		whereClause,
		"ORDER BY created_at DESC",
		args,
		filters.Limit,
		filters.Offset,
	)
	if err != nil {
		return nil, 0, err
	}
	if rows == nil {
		return nil, totalCount, nil
	}
	defer rows.Close()

	var jobs []*entity.BatchJob
	for rows.Next() {
		job, scanErr := scanBatchJobRow(rows)
		if scanErr != nil {
			return nil, 0, WrapError(scanErr, "scan batch job row")
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, WrapError(err, "iterate batch job rows")
	}

	return jobs, totalCount, nil
}

// Update persists job lifecycle and counter changes.
func (r *PostgreSQLBatchJobRepository) Update(ctx context.Context, job *entity.BatchJob) error {
	if job == nil {
		return ErrInvalidArgument
	}

	paramsJSON, resultJSON, err := marshalJobBlobs(job)
	if err != nil {
		return err
	}

	query := `
		UPDATE opennotes.batch_jobs
		SET status = $2, params = $3, total_units = $4, completed_units = $5,
			failed_units = $6, result_metadata = $7, error_message = $8,
			started_at = $9, completed_at = $10, updated_at = $11
		WHERE id = $1`

	qi := GetQueryInterface(ctx, r.pool)
	result, err := qi.Exec(ctx, query,
		job.ID(),
		job.Status().String(),
		paramsJSON,
		job.TotalUnits(),
		job.CompletedUnits(),
		job.FailedUnits(),
		resultJSON,
		job.ErrorMessage(),
		job.StartedAt(),
		job.CompletedAt(),
		job.UpdatedAt(),
	)
	if err != nil {
		return WrapError(err, "update batch job")
	}

	if result.RowsAffected() == 0 {
		return WrapError(ErrNotFound, "update batch job")
	}

	return nil
}

// marshalJobBlobs serializes the params and result JSONB columns.
func marshalJobBlobs(job *entity.BatchJob) ([]byte, []byte, error) {
	paramsJSON, err := json.Marshal(job.Params())
	if err != nil {
		return nil, nil, fmt.Errorf("marshal job params: %w", err)
	}

	var resultJSON []byte
	if job.Result() != nil {
		resultJSON, err = json.Marshal(job.Result())
		if err != nil {
			return nil, nil, fmt.Errorf("marshal job result: %w", err)
		}
	}

	return paramsJSON, resultJSON, nil
}

// scanBatchJobRow converts a batch job row into a BatchJob entity.
func scanBatchJobRow(row interface{ Scan(dest ...any) error }) (*entity.BatchJob, error) {
	var id uuid.UUID
	var kindStr, statusStr string
	var paramsJSON []byte
	var totalUnits, completedUnits, failedUnits int64
	var resultJSON []byte
	var errorMessage *string
	var startedAt, completedAt *time.Time
	var createdAt, updatedAt time.Time

	err := row.Scan(
		&id, &kindStr, &statusStr, &paramsJSON,
		&totalUnits, &completedUnits, &failedUnits,
		&resultJSON, &errorMessage, &startedAt, &completedAt,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	kind, err := valueobject.NewJobKind(kindStr)
	if err != nil {
		return nil, fmt.Errorf("invalid job kind: %w", err)
	}

	status, err := valueobject.NewJobStatus(statusStr)
	if err != nil {
		return nil, fmt.Errorf("invalid job status: %w", err)
	}

	var params entity.JobParams
	if len(paramsJSON) > 0 {
		if err := json.Unmarshal(paramsJSON, &params); err != nil {
			return nil, fmt.Errorf("unmarshal job params: %w", err)
		}
	}

	var result *entity.JobResult
	if len(resultJSON) > 0 {
		result = &entity.JobResult{}
		if err := json.Unmarshal(resultJSON, result); err != nil {
			return nil, fmt.Errorf("unmarshal job result: %w", err)
		}
	}

	return entity.RestoreBatchJob(
		id, kind, status, params,
		totalUnits, completedUnits, failedUnits,
		result, errorMessage, startedAt, completedAt,
		createdAt, updatedAt,
	), nil
}
