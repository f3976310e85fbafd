package scan

import (
	"context"
	"errors"
	"time"

	"sync"

	"github.com/google/uuid"
	"github.com/repoguard/repoguard/backend/internal/models"
	"go.uber.org/zap"
)

var (
	ErrJobNotFound    = errors.New("scan job not found")
	ErrScanInProgress = errors.New("a scan is already processing for this repository")
)

// JobStore is the in-process table of scan jobs. Writes come only from
// the orchestrator; pollers get copies, never the live struct.
type JobStore struct {
	mu     sync.RWMutex
	jobs   map[string]*models.ScanJob
	active map[string]string // repositoryID -> running job id
}

func NewJobStore() *JobStore {
	return &JobStore{
		jobs:   make(map[string]*models.ScanJob),
		active: make(map[string]string),
	}
}

// Create registers a pending job for a repository. A repository with a
// non-terminal job is refused; duplicate concurrent scans would burn
// quota for identical output.
func (s *JobStore) Create(repositoryID, userID string) (models.ScanJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.active[repositoryID]; ok {
		if job, exists := s.jobs[id]; exists && !job.Terminal() {
			return models.ScanJob{}, ErrScanInProgress
		}
	}

	job := &models.ScanJob{
		ID:           uuid.New().String(),
		RepositoryID: repositoryID,
		UserID:       userID,
		Status:       models.JobPending,
		StartedAt:    time.Now().UTC(),
	}
	s.jobs[job.ID] = job
	s.active[repositoryID] = job.ID
	return cloneJob(job), nil
}

// Update applies fn to a job under the write lock. When fn leaves the
// job in a terminal state, the repository's active slot is released.
func (s *JobStore) Update(id string, fn func(*models.ScanJob)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	fn(job)
	if job.Terminal() && s.active[job.RepositoryID] == id {
		delete(s.active, job.RepositoryID)
	}
	return nil
}

// Snapshot returns a copy safe for concurrent readers while the
// orchestrator keeps writing.
func (s *JobStore) Snapshot(id string) (models.ScanJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return models.ScanJob{}, ErrJobNotFound
	}
	return cloneJob(job), nil
}

// Sweep evicts terminal jobs whose completion is older than retention
// and returns how many were dropped. In-flight jobs are never touched.
func (s *JobStore) Sweep(retention time.Duration) int {
	cutoff := time.Now().UTC().Add(-retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, job := range s.jobs {
		if !job.Terminal() || job.CompletedAt == nil {
			continue
		}
		if job.CompletedAt.Before(cutoff) {
			delete(s.jobs, id)
			evicted++
		}
	}
	return evicted
}

// RunSweeper periodically evicts expired jobs until ctx is done.
func (s *JobStore) RunSweeper(ctx context.Context, interval, retention time.Duration, log *zap.SugaredLogger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(retention); n > 0 {
				log.Infow("evicted expired scan jobs", "count", n)
			}
		}
	}
}

// Issue/result slices on retained results are immutable once appended,
// so copying the outer slices is enough for snapshot isolation.
func cloneJob(j *models.ScanJob) models.ScanJob {
	c := *j
	c.Results = append([]models.AnalysisResult(nil), j.Results...)
	c.BestPractices = append([]string(nil), j.BestPractices...)
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return c
}
