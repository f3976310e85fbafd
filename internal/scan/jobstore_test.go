package scan

import (
	"errors"
	"testing"
	"time"

	"github.com/repoguard/repoguard/backend/internal/models"
)

func TestJobStoreCreateAndSnapshot(t *testing.T) {
	s := NewJobStore()

	job, err := s.Create("repo-1", "user-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if job.ID == "" || job.Status != models.JobPending {
		t.Errorf("unexpected job: %+v", job)
	}

	snap, err := s.Snapshot(job.ID)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.RepositoryID != "repo-1" || snap.UserID != "user-1" {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

func TestJobStoreRejectsConcurrentScan(t *testing.T) {
	s := NewJobStore()

	job, _ := s.Create("repo-1", "u")
	if _, err := s.Create("repo-1", "u"); !errors.Is(err, ErrScanInProgress) {
		t.Fatalf("expected ErrScanInProgress, got %v", err)
	}

	// A different repository is unaffected.
	if _, err := s.Create("repo-2", "u"); err != nil {
		t.Fatalf("unrelated repository must not be blocked: %v", err)
	}

	// Terminal state releases the slot.
	now := time.Now().UTC()
	s.Update(job.ID, func(j *models.ScanJob) {
		j.Status = models.JobCompleted
		j.CompletedAt = &now
	})
	if _, err := s.Create("repo-1", "u"); err != nil {
		t.Fatalf("expected new scan after completion, got %v", err)
	}
}

func TestJobStoreSnapshotIsolation(t *testing.T) {
	s := NewJobStore()
	job, _ := s.Create("repo-1", "u")

	s.Update(job.ID, func(j *models.ScanJob) {
		j.Results = append(j.Results, models.AnalysisResult{File: "a.go", Success: true})
	})

	snap, _ := s.Snapshot(job.ID)
	snap.Results[0].File = "tampered"
	snap.Status = models.JobFailed

	fresh, _ := s.Snapshot(job.ID)
	if fresh.Results[0].File != "a.go" || fresh.Status != models.JobPending {
		t.Error("mutating a snapshot must not affect the stored job")
	}
}

func TestJobStoreUpdateUnknown(t *testing.T) {
	s := NewJobStore()
	if err := s.Update("nope", func(*models.ScanJob) {}); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if _, err := s.Snapshot("nope"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestJobStoreSweep(t *testing.T) {
	s := NewJobStore()

	old, _ := s.Create("repo-1", "u")
	stale := time.Now().UTC().Add(-2 * time.Hour)
	s.Update(old.ID, func(j *models.ScanJob) {
		j.Status = models.JobCompleted
		j.CompletedAt = &stale
	})

	fresh, _ := s.Create("repo-2", "u")
	inflight, _ := s.Create("repo-3", "u")
	now := time.Now().UTC()
	s.Update(fresh.ID, func(j *models.ScanJob) {
		j.Status = models.JobFailed
		j.CompletedAt = &now
	})

	if n := s.Sweep(time.Hour); n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}
	if _, err := s.Snapshot(old.ID); !errors.Is(err, ErrJobNotFound) {
		t.Error("stale job should be evicted")
	}
	if _, err := s.Snapshot(fresh.ID); err != nil {
		t.Error("recent terminal job should survive")
	}
	if _, err := s.Snapshot(inflight.ID); err != nil {
		t.Error("in-flight job must never be evicted")
	}
}
