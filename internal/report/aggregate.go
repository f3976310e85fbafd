// Package report aggregates per-file analysis results into the final
// scan summary. Everything here is pure and order-independent.
package report

import (
	"strings"

	"github.com/repoguard/repoguard/backend/internal/models"
)

const maxBestPractices = 5

// Summary is the aggregate the orchestrator attaches to a finished job.
type Summary struct {
	Counts        models.IssueCounts
	RiskScore     int
	RiskMessage   string
	BestPractices []string
}

// Summarize computes the whole aggregate in one pass over the results.
func Summarize(results []models.AnalysisResult) Summary {
	counts := CountBySeverity(results)
	score := RiskScore(counts.High, counts.Medium, counts.Low, len(results))
	return Summary{
		Counts:        counts,
		RiskScore:     score,
		RiskMessage:   RiskMessage(score),
		BestPractices: BestPractices(results),
	}
}

// CountBySeverity sums classified issues across all results. Severity
// matching is case-insensitive; unrecognized severities are not
// counted anywhere.
func CountBySeverity(results []models.AnalysisResult) models.IssueCounts {
	var counts models.IssueCounts
	for _, r := range results {
		for _, issue := range r.Issues {
			switch strings.ToLower(issue.Severity) {
			case models.SeverityHigh:
				counts.High++
			case models.SeverityMedium:
				counts.Medium++
			case models.SeverityLow:
				counts.Low++
			}
		}
	}
	return counts
}

// RiskScore maps weighted severity counts, normalized by file count,
// onto [0, 100].
func RiskScore(high, medium, low, fileCount int) int {
	if fileCount < 1 {
		fileCount = 1
	}
	score := (high*25 + medium*15 + low*5) / fileCount
	if score > 100 {
		score = 100
	}
	return score
}

// RiskMessage buckets a score into the three user-facing levels.
func RiskMessage(score int) string {
	switch {
	case score > 70:
		return "high risk"
	case score > 40:
		return "medium risk"
	default:
		return "low risk"
	}
}

// BestPractices unions per-file best-practice strings, deduplicated
// with first-seen order preserved, truncated to the top 5.
func BestPractices(results []models.AnalysisResult) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range results {
		for _, bp := range r.BestPractices {
			bp = strings.TrimSpace(bp)
			if bp == "" || seen[bp] {
				continue
			}
			seen[bp] = true
			out = append(out, bp)
			if len(out) == maxBestPractices {
				return out
			}
		}
	}
	return out
}
