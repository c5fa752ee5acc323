package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/opennotes-ai/opennotes-sub006/internal/domain/entity"
	"github.com/opennotes-ai/opennotes-sub006/internal/domain/valueobject"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// setupTestDB connects to the database named by OPENNOTES_TEST_DATABASE_URL
// and skips the test when the variable is unset. The target database needs
// the opennotes schema loaded.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("OPENNOTES_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("OPENNOTES_TEST_DATABASE_URL not set, skipping database test")
	}

	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("Failed to create test database connection: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Fatalf("Failed to ping test database: %v", err)
	}

	t.Cleanup(pool.Close)
	return pool
}

// cleanupTestData removes rows created by the current test run.
func cleanupTestData(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	ctx := context.Background()
	queries := []string{
		"DELETE FROM opennotes.usage_records WHERE 1=1",
		"DELETE FROM opennotes.resource_quotas WHERE 1=1",
		"DELETE FROM opennotes.note_candidates WHERE 1=1",
		"DELETE FROM opennotes.batch_jobs WHERE 1=1",
	}
	for _, query := range queries {
		if _, err := pool.Exec(ctx, query); err != nil {
			t.Logf("Warning: Failed to clean up with query %s: %v", query, err)
		}
	}
}

// createTestCandidate builds a pending candidate with a unique post ref.
func createTestCandidate(t *testing.T, tenantID uuid.UUID, batchIndex int64) *entity.NoteCandidate {
	t.Helper()

	candidate, err := entity.NewNoteCandidate(
		tenantID,
		"post-"+uuid.New().String(),
		"Context from the community: the claim is missing a source.",
		batchIndex,
	)
	if err != nil {
		t.Fatalf("Failed to create test candidate: %v", err)
	}
	return candidate
}

// seedCandidates saves n fresh candidates for the tenant and returns them
// ordered by batch index.
func seedCandidates(
	t *testing.T,
	repo *PostgreSQLCandidateRepository,
	tenantID uuid.UUID,
	n int,
) []*entity.NoteCandidate {
	t.Helper()

	ctx := context.Background()
	candidates := make([]*entity.NoteCandidate, 0, n)
	for i := range n {
		candidate := createTestCandidate(t, tenantID, int64(i))
		if err := repo.Save(ctx, candidate); err != nil {
			t.Fatalf("Failed to seed candidate %d: %v", i, err)
		}
		candidates = append(candidates, candidate)
	}
	return candidates
}

// createTestJob builds a pending scoring job for the tenant.
func createTestJob(t *testing.T, kind valueobject.JobKind, tenantID *uuid.UUID, totalUnits int64) *entity.BatchJob {
	t.Helper()

	job, err := entity.NewBatchJob(kind, entity.JobParams{TenantID: tenantID, BatchSize: 10}, totalUnits)
	if err != nil {
		t.Fatalf("Failed to create test job: %v", err)
	}
	return job
}
