package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/opennotes-ai/opennotes-sub006/internal/application/common/logging"
	"github.com/opennotes-ai/opennotes-sub006/internal/domain/entity"
	domainerrors "github.com/opennotes-ai/opennotes-sub006/internal/domain/errors/domain"
	"github.com/opennotes-ai/opennotes-sub006/internal/domain/messaging"
	"github.com/opennotes-ai/opennotes-sub006/internal/domain/valueobject"
	"github.com/opennotes-ai/opennotes-sub006/internal/port/inbound"
	"github.com/opennotes-ai/opennotes-sub006/internal/port/outbound"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJobStore struct {
	mu    sync.Mutex
	jobs  map[uuid.UUID]*entity.BatchJob
	saves int
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[uuid.UUID]*entity.BatchJob)}
}

func (s *fakeJobStore) Save(_ context.Context, job *entity.BatchJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID()] = job
	s.saves++
	return nil
}

func (s *fakeJobStore) FindByID(_ context.Context, id uuid.UUID) (*entity.BatchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	return job, nil
}

func (s *fakeJobStore) FindAll(_ context.Context, _ outbound.BatchJobFilters) ([]*entity.BatchJob, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]*entity.BatchJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		all = append(all, job)
	}
	return all, len(all), nil
}

func (s *fakeJobStore) Update(_ context.Context, job *entity.BatchJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID()] = job
	return nil
}

type fakeCandidateCounter struct {
	count    int64
	countErr error
}

func (c *fakeCandidateCounter) Save(_ context.Context, _ *entity.NoteCandidate) error { return nil }

func (c *fakeCandidateCounter) FindByID(_ context.Context, _ uuid.UUID) (*entity.NoteCandidate, error) {
	return nil, nil
}

func (c *fakeCandidateCounter) CountMatching(
	_ context.Context, _ valueobject.JobKind, _ *uuid.UUID,
) (int64, error) {
	return c.count, c.countErr
}

func (c *fakeCandidateCounter) ClaimBatch(
	_ context.Context, _ outbound.ClaimRequest,
) ([]*entity.NoteCandidate, error) {
	return nil, nil
}

func (c *fakeCandidateCounter) Update(_ context.Context, _ *entity.NoteCandidate) error { return nil }

type fakeDispatcher struct {
	mu         sync.Mutex
	dispatched []messaging.JobDispatchMessage
	err        error
}

func (d *fakeDispatcher) PublishJobStart(_ context.Context, msg messaging.JobDispatchMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.dispatched = append(d.dispatched, msg)
	return nil
}

type fakeProgressReader struct {
	snapshot *outbound.ProgressSnapshot
	err      error
}

func (p *fakeProgressReader) StartTracking(_ context.Context, _ uuid.UUID, _ string) error {
	return nil
}

func (p *fakeProgressReader) GetProgress(_ context.Context, _ uuid.UUID) (*outbound.ProgressSnapshot, error) {
	return p.snapshot, p.err
}

func (p *fakeProgressReader) UpdateProgress(_ context.Context, _ uuid.UUID, _ outbound.ProgressUpdate) error {
	return nil
}

func (p *fakeProgressReader) StopTracking(_ context.Context, _ uuid.UUID) error { return nil }

type fakeErrorReader struct {
	summary *entity.ErrorSummary
	err     error
}

func (e *fakeErrorReader) RecordError(_ context.Context, _ uuid.UUID, _ entity.RecordedError) error {
	return nil
}

func (e *fakeErrorReader) Summary(_ context.Context, _ uuid.UUID) (*entity.ErrorSummary, error) {
	if e.summary == nil && e.err == nil {
		return entity.EmptyErrorSummary(), nil
	}
	return e.summary, e.err
}

func (e *fakeErrorReader) Clear(_ context.Context, _ uuid.UUID) error { return nil }

type jobServiceEnv struct {
	store      *fakeJobStore
	counter    *fakeCandidateCounter
	dispatcher *fakeDispatcher
	progress   *fakeProgressReader
	errs       *fakeErrorReader
	service    *DefaultJobService
}

func newJobServiceEnv() *jobServiceEnv {
	env := &jobServiceEnv{
		store:      newFakeJobStore(),
		counter:    &fakeCandidateCounter{count: 5},
		dispatcher: &fakeDispatcher{},
		progress:   &fakeProgressReader{},
		errs:       &fakeErrorReader{},
	}
	env.service = NewDefaultJobService(env.store, env.counter, env.dispatcher, env.progress, env.errs)
	return env
}

func TestDefaultJobServiceStartJob(t *testing.T) {
	t.Run("should persist and dispatch a sized job", func(t *testing.T) {
		env := newJobServiceEnv()
		ctx := logging.WithCorrelationID(context.Background(), "corr-1")

		response, err := env.service.StartJob(ctx, inboundStartRequest("content_scan", 0, 0))

		require.NoError(t, err)
		require.NotNil(t, response)
		assert.Equal(t, "content_scan", response.Kind)
		assert.Equal(t, valueobject.JobStatusPending.String(), response.Status)
		assert.Equal(t, int64(5), response.TotalUnits)

		stored, findErr := env.store.FindByID(context.Background(), response.JobID)
		require.NoError(t, findErr)
		require.NotNil(t, stored)
		assert.Equal(t, valueobject.JobStatusPending, stored.Status())

		require.Len(t, env.dispatcher.dispatched, 1)
		dispatched := env.dispatcher.dispatched[0]
		assert.Equal(t, response.JobID, dispatched.JobID)
		assert.Equal(t, valueobject.JobKindContentScan, dispatched.JobKind)
		assert.Equal(t, "corr-1", dispatched.CorrelationID)
	})

	t.Run("should cap total units at the requested limit", func(t *testing.T) {
		env := newJobServiceEnv()
		env.counter.count = 10

		response, err := env.service.StartJob(context.Background(), inboundStartRequest("scoring_run", 3, 2))

		require.NoError(t, err)
		assert.Equal(t, int64(3), response.TotalUnits)

		stored, _ := env.store.FindByID(context.Background(), response.JobID)
		require.NotNil(t, stored)
		assert.Equal(t, int64(3), stored.Params().Limit)
		assert.Equal(t, int64(2), stored.Params().BatchSize)
	})

	t.Run("should reject an unknown kind without touching storage", func(t *testing.T) {
		env := newJobServiceEnv()

		response, err := env.service.StartJob(context.Background(), inboundStartRequest("defrag", 0, 0))

		require.Error(t, err)
		assert.ErrorIs(t, err, domainerrors.ErrUnknownJobKind)
		assert.Nil(t, response)
		assert.Zero(t, env.store.saves)
		assert.Empty(t, env.dispatcher.dispatched)
	})

	t.Run("should reject a job with no matching candidates", func(t *testing.T) {
		env := newJobServiceEnv()
		env.counter.count = 0

		response, err := env.service.StartJob(context.Background(), inboundStartRequest("candidate_approval", 0, 0))

		require.Error(t, err)
		assert.ErrorIs(t, err, domainerrors.ErrNoMatchingUnits)
		assert.Nil(t, response)
		assert.Zero(t, env.store.saves)
	})

	t.Run("should fail the persisted job when dispatch fails", func(t *testing.T) {
		env := newJobServiceEnv()
		env.dispatcher.err = errors.New("stream not found")

		response, err := env.service.StartJob(context.Background(), inboundStartRequest("content_scan", 0, 0))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to dispatch batch job")
		assert.Nil(t, response)

		all, _, listErr := env.store.FindAll(context.Background(), outbound.BatchJobFilters{})
		require.NoError(t, listErr)
		require.Len(t, all, 1)
		assert.Equal(t, valueobject.JobStatusFailed, all[0].Status())
		require.NotNil(t, all[0].ErrorMessage())
		assert.Equal(t, "dispatch to work queue failed", *all[0].ErrorMessage())
	})
}

func TestDefaultJobServiceGetJobStatus(t *testing.T) {
	t.Run("should return not found for an unknown job", func(t *testing.T) {
		env := newJobServiceEnv()

		response, err := env.service.GetJobStatus(context.Background(), uuid.New())

		require.Error(t, err)
		assert.ErrorIs(t, err, domainerrors.ErrJobNotFound)
		assert.Nil(t, response)
	})

	t.Run("should merge live progress and errors while running", func(t *testing.T) {
		env := newJobServiceEnv()
		job := seedStoredJob(t, env, valueobject.JobStatusInProgress)
		now := time.Now()
		env.progress.snapshot = &outbound.ProgressSnapshot{
			JobID:          job.ID(),
			CurrentItem:    "post-41",
			ProcessedUnits: 40,
			FailedUnits:    2,
			StartedAt:      now.Add(-20 * time.Second),
			LastUpdateAt:   now,
		}
		env.errs.summary = &entity.ErrorSummary{
			Total:        2,
			CountsByKind: map[string]int64{entity.ErrorKindHandlerFailed: 2},
		}

		response, err := env.service.GetJobStatus(context.Background(), job.ID())

		require.NoError(t, err)
		assert.Equal(t, valueobject.JobStatusInProgress.String(), response.Status)
		require.NotNil(t, response.Progress)
		assert.Equal(t, int64(40), response.Progress.ProcessedUnits)
		assert.Equal(t, int64(2), response.Progress.FailedUnits)
		assert.Equal(t, "post-41", response.Progress.CurrentItem)
		assert.InDelta(t, 2.0, response.Progress.RatePerSecond, 0.5)
		require.NotNil(t, response.Errors)
		assert.Equal(t, int64(2), response.Errors.Total)
	})

	t.Run("should fall back to the durable row when live state expired", func(t *testing.T) {
		env := newJobServiceEnv()
		job := seedStoredJob(t, env, valueobject.JobStatusInProgress)

		response, err := env.service.GetJobStatus(context.Background(), job.ID())

		require.NoError(t, err)
		assert.Nil(t, response.Progress)
		assert.Nil(t, response.Errors)
		assert.Equal(t, int64(100), response.TotalUnits)
	})

	t.Run("should tolerate progress read failures", func(t *testing.T) {
		env := newJobServiceEnv()
		job := seedStoredJob(t, env, valueobject.JobStatusInProgress)
		env.progress.err = errors.New("redis down")

		response, err := env.service.GetJobStatus(context.Background(), job.ID())

		require.NoError(t, err)
		assert.Nil(t, response.Progress)
	})

	t.Run("should read terminal errors from the result snapshot", func(t *testing.T) {
		env := newJobServiceEnv()
		job := seedStoredJob(t, env, valueobject.JobStatusInProgress)
		result := entity.JobResult{
			CompletedUnits: 98,
			FailedUnits:    2,
			Iterations:     1,
			ErrorTotal:     2,
			ErrorCounts:    map[string]int64{entity.ErrorKindQuotaDenied: 2},
		}
		require.NoError(t, job.Complete(result))
		require.NoError(t, env.store.Update(context.Background(), job))
		// Live summary would be gone by now; make sure it is not consulted.
		env.errs.err = errors.New("summary cleared")

		response, err := env.service.GetJobStatus(context.Background(), job.ID())

		require.NoError(t, err)
		assert.Equal(t, valueobject.JobStatusCompleted.String(), response.Status)
		assert.Equal(t, int64(98), response.CompletedUnits)
		require.NotNil(t, response.Errors)
		assert.Equal(t, int64(2), response.Errors.Total)
		assert.Equal(t, int64(2), response.Errors.CountsByKind[entity.ErrorKindQuotaDenied])
	})
}

func TestDefaultJobServiceListJobs(t *testing.T) {
	t.Run("should map stored jobs to responses", func(t *testing.T) {
		env := newJobServiceEnv()
		seedStoredJob(t, env, valueobject.JobStatusInProgress)
		seedStoredJob(t, env, valueobject.JobStatusPending)

		response, err := env.service.ListJobs(context.Background(), inboundListQuery("", ""))

		require.NoError(t, err)
		assert.Equal(t, 2, response.Total)
		assert.Len(t, response.Jobs, 2)
	})

	t.Run("should reject an unknown kind filter", func(t *testing.T) {
		env := newJobServiceEnv()

		response, err := env.service.ListJobs(context.Background(), inboundListQuery("defrag", ""))

		require.Error(t, err)
		assert.ErrorIs(t, err, domainerrors.ErrUnknownJobKind)
		assert.Nil(t, response)
	})

	t.Run("should reject an unknown status filter", func(t *testing.T) {
		env := newJobServiceEnv()

		response, err := env.service.ListJobs(context.Background(), inboundListQuery("", "paused"))

		require.Error(t, err)
		assert.ErrorIs(t, err, domainerrors.ErrInvalidInput)
		assert.Nil(t, response)
	})
}

func inboundStartRequest(kind string, limit, batchSize int64) inbound.StartJobRequest {
	return inbound.StartJobRequest{Kind: kind, Limit: limit, BatchSize: batchSize}
}

func inboundListQuery(kind, status string) inbound.JobListQuery {
	return inbound.JobListQuery{Kind: kind, Status: status}
}

func seedStoredJob(t *testing.T, env *jobServiceEnv, status valueobject.JobStatus) *entity.BatchJob {
	t.Helper()
	job, err := entity.NewBatchJob(
		valueobject.JobKindContentScan, entity.JobParams{BatchSize: 50}, 100)
	require.NoError(t, err)
	if status == valueobject.JobStatusInProgress {
		require.NoError(t, job.Start())
	}
	require.NoError(t, env.store.Save(context.Background(), job))
	return job
}
