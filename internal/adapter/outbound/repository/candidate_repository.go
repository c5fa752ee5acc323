package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/opennotes-ai/opennotes-sub006/internal/domain/entity"
	domainerrors "github.com/opennotes-ai/opennotes-sub006/internal/domain/errors/domain"
	"github.com/opennotes-ai/opennotes-sub006/internal/domain/valueobject"
	"github.com/opennotes-ai/opennotes-sub006/internal/port/outbound"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const candidateColumns = `id, tenant_id, post_ref, body, status, score, scan_verdict,
		batch_index, processed_by, created_at, updated_at`

// PostgreSQLCandidateRepository implements the CandidateRepository
// interface including the locked batch claim used by the worker loop.
type PostgreSQLCandidateRepository struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLCandidateRepository creates a new PostgreSQL candidate repository.
func NewPostgreSQLCandidateRepository(pool *pgxpool.Pool) *PostgreSQLCandidateRepository {
	return &PostgreSQLCandidateRepository{
		pool: pool,
	}
}

// candidateKindPredicate returns the WHERE fragment selecting the
// candidates a job kind operates on. Predicates only reference candidate
// columns, so a row updated by a concurrent claimer simply stops matching.
func candidateKindPredicate(kind valueobject.JobKind) (string, error) {
	switch kind {
	case valueobject.JobKindCandidateApproval:
		return "status = 'pending_review'", nil
	case valueobject.JobKindContentScan:
		return "scan_verdict IS NULL", nil
	case valueobject.JobKindScoringRun:
		return "score IS NULL AND status <> 'rejected'", nil
	default:
		return "", domainerrors.ErrUnknownJobKind
	}
}

// Save inserts a new candidate row.
func (r *PostgreSQLCandidateRepository) Save(ctx context.Context, candidate *entity.NoteCandidate) error {
	if candidate == nil {
		return ErrInvalidArgument
	}

	query := `
		INSERT INTO opennotes.note_candidates (` + candidateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	qi := GetQueryInterface(ctx, r.pool)
	_, err := qi.Exec(ctx, query,
		candidate.ID(),
		candidate.TenantID(),
		candidate.PostRef(),
		candidate.Body(),
		candidate.Status().String(),
		candidate.Score(),
		scanVerdictString(candidate.ScanVerdict()),
		candidate.BatchIndex(),
		candidate.ProcessedBy(),
		candidate.CreatedAt(),
		candidate.UpdatedAt(),
	)
	if err != nil {
		return WrapError(err, "save note candidate")
	}

	return nil
}

// FindByID returns the candidate with the given ID, or nil when absent.
func (r *PostgreSQLCandidateRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.NoteCandidate, error) {
	if id == uuid.Nil {
		return nil, ErrInvalidArgument
	}

	query := `
		SELECT ` + candidateColumns + `
		FROM opennotes.note_candidates
		WHERE id = $1`

	qi := GetQueryInterface(ctx, r.pool)
	candidate, err := scanCandidateRow(qi.QueryRow(ctx, query, id))
	if err != nil {
		if IsNotFoundError(err) {
			return nil, nil
		}
		return nil, WrapError(err, "find note candidate by ID")
	}

	return candidate, nil
}

// CountMatching reports how many candidates a job of this kind would touch
// for the given tenant scope.
func (r *PostgreSQLCandidateRepository) CountMatching(
	ctx context.Context,
	kind valueobject.JobKind,
	tenantID *uuid.UUID,
) (int64, error) {
	predicate, err := candidateKindPredicate(kind)
	if err != nil {
		return 0, err
	}

	query := `SELECT COUNT(*) FROM opennotes.note_candidates WHERE ` + predicate
	args := []interface{}{}
	if tenantID != nil {
		query += " AND tenant_id = $1"
		args = append(args, *tenantID)
	}

	qi := GetQueryInterface(ctx, r.pool)

	var count int64
	if err := qi.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, WrapError(err, "count matching candidates")
	}

	return count, nil
}

// ClaimBatch locks and returns the next batch of candidates matching the
// job kind's predicate, ordered by ID, strictly after the cursor. Rows
// locked by a concurrent claimer are skipped rather than waited on, so
// parallel claimers never double-claim and never deadlock. Must run inside
// a transaction; the locks release with it.
func (r *PostgreSQLCandidateRepository) ClaimBatch(
	ctx context.Context,
	req outbound.ClaimRequest,
) ([]*entity.NoteCandidate, error) {
	if req.BatchSize <= 0 {
		return nil, ErrInvalidArgument
	}

	predicate, err := candidateKindPredicate(req.Kind)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + candidateColumns + `
		FROM opennotes.note_candidates
		WHERE ` + predicate + ` AND id > $1`
	args := []interface{}{req.Cursor}
	argIndex := 2

	if req.TenantID != nil {
		query += fmt.Sprintf(" AND tenant_id = $%d", argIndex)
		args = append(args, *req.TenantID)
		argIndex++
	}

	query += fmt.Sprintf(`
		ORDER BY id
		LIMIT $%d
		FOR UPDATE SKIP LOCKED`, argIndex)
	args = append(args, req.BatchSize)

	qi := GetQueryInterface(ctx, r.pool)
	rows, err := qi.Query(ctx, query, args...)
	if err != nil {
		return nil, WrapError(err, "claim candidate batch")
	}
	defer rows.Close()

	var candidates []*entity.NoteCandidate
	for rows.Next() {
		candidate, scanErr := scanCandidateRow(rows)
		if scanErr != nil {
			return nil, WrapError(scanErr, "scan claimed candidate row")
		}
		candidates = append(candidates, candidate)
	}

	if err := rows.Err(); err != nil {
		return nil, WrapError(err, "iterate claimed candidate rows")
	}

	return candidates, nil
}

// Update persists handler outcomes on a claimed candidate.
func (r *PostgreSQLCandidateRepository) Update(ctx context.Context, candidate *entity.NoteCandidate) error {
	if candidate == nil {
		return ErrInvalidArgument
	}

	query := `
		UPDATE opennotes.note_candidates
		SET status = $2, score = $3, scan_verdict = $4, processed_by = $5, updated_at = $6
		WHERE id = $1`

	qi := GetQueryInterface(ctx, r.pool)
	result, err := qi.Exec(ctx, query,
		candidate.ID(),
		candidate.Status().String(),
		candidate.Score(),
		scanVerdictString(candidate.ScanVerdict()),
		candidate.ProcessedBy(),
		candidate.UpdatedAt(),
	)
	if err != nil {
		return WrapError(err, "update note candidate")
	}

	if result.RowsAffected() == 0 {
		return WrapError(ErrNotFound, "update note candidate")
	}

	return nil
}

func scanVerdictString(verdict *valueobject.ScanVerdict) *string {
	if verdict == nil {
		return nil
	}
	s := verdict.String()
	return &s
}

// scanCandidateRow converts a candidate row into a NoteCandidate entity.
func scanCandidateRow(row interface{ Scan(dest ...any) error }) (*entity.NoteCandidate, error) {
	var id, tenantID uuid.UUID
	var postRef, body, statusStr string
	var score *float64
	var verdictStr *string
	var batchIndex int64
	var processedBy *uuid.UUID
	var createdAt, updatedAt time.Time

	err := row.Scan(
		&id, &tenantID, &postRef, &body, &statusStr, &score, &verdictStr,
		&batchIndex, &processedBy, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	status, err := valueobject.NewCandidateStatus(statusStr)
	if err != nil {
		return nil, fmt.Errorf("invalid candidate status: %w", err)
	}

	var verdict *valueobject.ScanVerdict
	if verdictStr != nil {
		v, verdictErr := valueobject.NewScanVerdict(*verdictStr)
		if verdictErr != nil {
			return nil, fmt.Errorf("invalid scan verdict: %w", verdictErr)
		}
		verdict = &v
	}

	return entity.RestoreNoteCandidate(
		id, tenantID, postRef, body, status, score, verdict,
		batchIndex, processedBy, createdAt, updatedAt,
	), nil
}
