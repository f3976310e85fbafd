package analyzer

import (
	"context"
	"fmt"

	"github.com/repoguard/repoguard/backend/internal/metrics"
	"github.com/repoguard/repoguard/backend/internal/models"
	"github.com/repoguard/repoguard/backend/internal/retry"
	"go.uber.org/zap"
)

// Service is the remote analysis collaborator. Submit returns the raw
// text payload, which may or may not contain the JSON we asked for.
type Service interface {
	Submit(ctx context.Context, prompt string) (string, error)
}

// ContentSource resolves the lazy content refs discovery handed out.
type ContentSource interface {
	GetContent(ctx context.Context, ref string) ([]byte, error)
}

// Analyzer produces one AnalysisResult per file task. It never panics
// or returns an error upward; every failure mode degrades to a result
// with Success=false so a single file cannot take down a scan.
type Analyzer struct {
	content      ContentSource
	service      Service
	exec         *retry.Executor
	estimator    *metrics.Estimator
	maxFileBytes int64
	log          *zap.SugaredLogger
}

func New(content ContentSource, service Service, exec *retry.Executor, estimator *metrics.Estimator, maxFileBytes int64, log *zap.SugaredLogger) *Analyzer {
	if maxFileBytes <= 0 {
		maxFileBytes = 100_000
	}
	return &Analyzer{
		content:      content,
		service:      service,
		exec:         exec,
		estimator:    estimator,
		maxFileBytes: maxFileBytes,
		log:          log,
	}
}

func (a *Analyzer) Close() {
	if a.estimator != nil {
		a.estimator.Close()
	}
}

// Analyze runs the full per-file flow: fetch, size gate, prompt, remote
// call through the retry executor, defensive parse, normalization.
func (a *Analyzer) Analyze(ctx context.Context, task models.FileTask) models.AnalysisResult {
	language := models.DetectLanguage(task.Path)
	result := models.AnalysisResult{File: task.Path, Language: language}

	// Oversized files are skipped before fetching; no reason to pull
	// content we will not analyze.
	if task.SizeBytes > a.maxFileBytes {
		result.Error = fmt.Sprintf("skipped: file size %d exceeds cap %d", task.SizeBytes, a.maxFileBytes)
		return result
	}

	content, err := a.content.GetContent(ctx, task.ContentRef)
	if err != nil {
		result.Error = fmt.Sprintf("failed to fetch content: %v", err)
		return result
	}
	if len(content) == 0 {
		result.Error = "skipped: empty file"
		return result
	}
	if int64(len(content)) > a.maxFileBytes {
		result.Error = fmt.Sprintf("skipped: content size %d exceeds cap %d", len(content), a.maxFileBytes)
		return result
	}

	prompt := buildPrompt(task.Path, language, content)
	text, err := a.exec.Execute(ctx, func(ctx context.Context) (string, error) {
		return a.service.Submit(ctx, prompt)
	})
	if err != nil {
		a.log.Warnw("analysis failed", "file", task.Path, "err", err)
		result.Error = err.Error()
		return result
	}

	raw, err := parseResponse(text)
	if err != nil {
		a.log.Warnw("unparseable analysis response", "file", task.Path, "err", err)
		result.Error = err.Error()
		return result
	}

	result.Success = true
	result.Summary = models.Summary{
		RiskScore: clampScore(raw.Summary.RiskScore),
		Message:   raw.Summary.Message,
	}
	result.BestPractices = raw.BestPractices
	for _, ri := range raw.Issues {
		result.Issues = append(result.Issues, models.Issue{
			Title:          ri.Title,
			Severity:       normalizeSeverity(ri.Severity),
			Description:    ri.Description,
			Line:           ri.Line,
			Recommendation: ri.Recommendation,
			File:           task.Path,
		})
	}

	result.Metrics = models.Metrics{
		Complexity:      raw.Metrics.Complexity,
		Maintainability: raw.Metrics.Maintainability,
	}
	if result.Metrics.Complexity == 0 && result.Metrics.Maintainability == 0 && a.estimator != nil {
		// Model omitted metrics; estimate locally instead.
		result.Metrics = a.estimator.Estimate(ctx, content, language)
	}

	return result
}
