package scan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/repoguard/repoguard/backend/internal/models"
	"github.com/repoguard/repoguard/backend/internal/notify"
	"github.com/repoguard/repoguard/backend/internal/report"
	"go.uber.org/zap"
)

var ErrRepositoryNotFound = errors.New("repository not found")

// Source prepares a repository's working tree for discovery.
type Source interface {
	Prepare(ctx context.Context, url, branch string) (string, error)
}

// Discoverer enumerates the analyzable files under a prepared root.
type Discoverer interface {
	Discover(ctx context.Context, root string) ([]models.FileTask, error)
}

// FileAnalyzer produces one result per task and never fails upward.
type FileAnalyzer interface {
	Analyze(ctx context.Context, task models.FileTask) models.AnalysisResult
}

// RepoDirectory is the repository-record collaborator.
type RepoDirectory interface {
	GetRepository(ctx context.Context, id string) (*models.Repository, error)
	SetStatus(ctx context.Context, id, status string) error
	SetScanStats(ctx context.Context, id string, files, issues int) error
}

// Persistence stores terminal job snapshots; retention is its concern.
type Persistence interface {
	SaveScan(ctx context.Context, job models.ScanJob) error
}

// QuotaState distinguishes a latched quota outage from an ordinary
// per-file failure.
type QuotaState interface {
	AnyExhausted() bool
}

type Config struct {
	BatchSize  int
	BatchDelay time.Duration
}

// Orchestrator owns the job state machine: pending -> processing ->
// completed|failed. One job processes its files sequentially; jobs for
// different repositories run concurrently and contend only on the
// shared rate limiter.
type Orchestrator struct {
	store      *JobStore
	repos      RepoDirectory
	source     Source
	discoverer Discoverer
	analyzer   FileAnalyzer
	persist    Persistence
	notifier   notify.Notifier
	quota      QuotaState
	cfg        Config
	log        *zap.SugaredLogger

	// baseCtx outlives any HTTP request; batch boundaries check it so
	// shutdown stops between batches, not mid-retry.
	baseCtx context.Context
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewOrchestrator(baseCtx context.Context, store *JobStore, repos RepoDirectory, source Source,
	discoverer Discoverer, analyzer FileAnalyzer, persist Persistence, notifier notify.Notifier,
	quota QuotaState, cfg Config, log *zap.SugaredLogger) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.BatchDelay < 0 {
		cfg.BatchDelay = 0
	}
	return &Orchestrator{
		store:      store,
		repos:      repos,
		source:     source,
		discoverer: discoverer,
		analyzer:   analyzer,
		persist:    persist,
		notifier:   notifier,
		quota:      quota,
		cfg:        cfg,
		log:        log,
		baseCtx:    baseCtx,
		sleep:      sleepCtx,
	}
}

// StartScan creates a pending job and launches its pipeline in the
// background. A repository with a scan already processing is refused.
func (o *Orchestrator) StartScan(ctx context.Context, repositoryID, userID string) (string, error) {
	repo, err := o.repos.GetRepository(ctx, repositoryID)
	if err != nil {
		return "", fmt.Errorf("failed to look up repository: %w", err)
	}
	if repo == nil {
		return "", ErrRepositoryNotFound
	}

	job, err := o.store.Create(repositoryID, userID)
	if err != nil {
		return "", err
	}

	o.log.Infow("scan queued", "job", job.ID, "repo", repositoryID)
	go o.run(repo, job.ID, userID)
	return job.ID, nil
}

// GetStatus returns a point-in-time snapshot of the job, including
// partial results while the scan is still processing.
func (o *Orchestrator) GetStatus(jobID string) (models.ScanJob, error) {
	return o.store.Snapshot(jobID)
}

func (o *Orchestrator) run(repo *models.Repository, jobID, userID string) {
	ctx := o.baseCtx
	log := o.log.With("job", jobID, "repo", repo.ID)

	o.store.Update(jobID, func(j *models.ScanJob) {
		j.Status = models.JobProcessing
	})
	if err := o.repos.SetStatus(ctx, repo.ID, "scanning"); err != nil {
		log.Warnw("failed to update repository status", "err", err)
	}

	root, err := o.source.Prepare(ctx, repo.URL, repo.DefaultBranch)
	if err != nil {
		o.finish(ctx, repo, jobID, userID, fmt.Errorf("failed to prepare repository: %w", err))
		return
	}

	tasks, err := o.discoverer.Discover(ctx, root)
	if err != nil {
		o.finish(ctx, repo, jobID, userID, fmt.Errorf("file discovery failed: %w", err))
		return
	}

	total := len(tasks)
	o.store.Update(jobID, func(j *models.ScanJob) {
		j.TotalFiles = total
	})
	log.Infow("scan started", "files", total)

	for start := 0; start < total; start += o.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			o.finish(ctx, repo, jobID, userID, fmt.Errorf("scan aborted: %w", err))
			return
		}

		end := start + o.cfg.BatchSize
		if end > total {
			end = total
		}

		for _, task := range tasks[start:end] {
			res := o.analyzer.Analyze(ctx, task)

			o.store.Update(jobID, func(j *models.ScanJob) {
				j.Results = append(j.Results, res)
				j.ProcessedFiles++
				j.ProgressPercent = j.ProcessedFiles * 100 / total
				for _, issue := range res.Issues {
					switch issue.Severity {
					case models.SeverityHigh:
						j.IssueCounts.High++
					case models.SeverityMedium:
						j.IssueCounts.Medium++
					case models.SeverityLow:
						j.IssueCounts.Low++
					}
				}
			})

			// A failed file while a bucket is latched means the remote
			// quota is gone for this scan, not just for this file.
			if !res.Success && o.quota != nil && o.quota.AnyExhausted() {
				o.finish(ctx, repo, jobID, userID,
					fmt.Errorf("analysis quota exhausted: %s", res.Error))
				return
			}
		}

		// Inter-batch pacing; the final batch does not pay it.
		if end < total && o.cfg.BatchDelay > 0 {
			if err := o.sleep(ctx, o.cfg.BatchDelay); err != nil {
				o.finish(ctx, repo, jobID, userID, fmt.Errorf("scan aborted: %w", err))
				return
			}
		}
	}

	o.finish(ctx, repo, jobID, userID, nil)
}

// finish drives the terminal transition for both outcomes: aggregate
// whatever results exist, persist the snapshot, update the repository
// record and fire the notification hook.
func (o *Orchestrator) finish(ctx context.Context, repo *models.Repository, jobID, userID string, scanErr error) {
	now := time.Now().UTC()

	o.store.Update(jobID, func(j *models.ScanJob) {
		summary := report.Summarize(j.Results)
		j.IssueCounts = summary.Counts
		j.RiskScore = summary.RiskScore
		j.RiskMessage = summary.RiskMessage
		j.BestPractices = summary.BestPractices
		j.CompletedAt = &now

		if scanErr != nil {
			j.Status = models.JobFailed
			j.Error = scanErr.Error()
		} else {
			j.Status = models.JobCompleted
			j.ProgressPercent = 100
		}
	})

	snapshot, err := o.store.Snapshot(jobID)
	if err != nil {
		o.log.Errorw("terminal job vanished from store", "job", jobID, "err", err)
		return
	}

	log := o.log.With("job", jobID, "repo", repo.ID)
	if scanErr != nil {
		log.Errorw("scan failed", "err", scanErr, "processed", snapshot.ProcessedFiles)
	} else {
		log.Infow("scan completed",
			"files", snapshot.ProcessedFiles,
			"riskScore", snapshot.RiskScore,
			"high", snapshot.IssueCounts.High,
			"medium", snapshot.IssueCounts.Medium,
			"low", snapshot.IssueCounts.Low)
	}

	if err := o.persist.SaveScan(ctx, snapshot); err != nil {
		log.Errorw("failed to persist scan snapshot", "err", err)
	}

	repoStatus := "ready"
	if scanErr != nil {
		repoStatus = "error"
	}
	if err := o.repos.SetStatus(ctx, repo.ID, repoStatus); err != nil {
		log.Warnw("failed to update repository status", "err", err)
	}
	totalIssues := snapshot.IssueCounts.High + snapshot.IssueCounts.Medium + snapshot.IssueCounts.Low
	if err := o.repos.SetScanStats(ctx, repo.ID, snapshot.TotalFiles, totalIssues); err != nil {
		log.Warnw("failed to update repository stats", "err", err)
	}

	o.notifyTerminal(snapshot, userID, repo)
}

// notifyTerminal fires the post-completion hook with the final
// snapshot. Delivery runs detached; its failure is logged, never
// surfaced to the scan.
func (o *Orchestrator) notifyTerminal(snapshot models.ScanJob, userID string, repo *models.Repository) {
	n := notify.Notification{
		Metadata: map[string]any{
			"jobId":        snapshot.ID,
			"repositoryId": repo.ID,
			"riskScore":    snapshot.RiskScore,
			"issueCounts":  snapshot.IssueCounts,
		},
	}
	if snapshot.Status == models.JobFailed {
		n.Type = "scan_failed"
		n.Title = "Scan failed"
		n.Message = fmt.Sprintf("Scan of %s failed: %s", repo.Name, snapshot.Error)
	} else {
		n.Type = "scan_completed"
		n.Title = "Scan completed"
		n.Message = fmt.Sprintf("Scan of %s finished: %s (score %d)", repo.Name, snapshot.RiskMessage, snapshot.RiskScore)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := o.notifier.Notify(ctx, userID, n); err != nil {
			o.log.Warnw("notification delivery failed", "job", snapshot.ID, "err", err)
		}
	}()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
