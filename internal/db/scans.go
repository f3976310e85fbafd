package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/repoguard/repoguard/backend/internal/models"
)

// SaveScan persists a terminal job snapshot as a Scan node linked to
// its repository. Per-file results go in as a JSON blob; neo4j
// properties are flat, and nobody queries inside individual results.
func (s *Store) SaveScan(ctx context.Context, job models.ScanJob) error {
	params, err := scanToParams(job)
	if err != nil {
		return err
	}

	_, err = s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (r:Repository {id: $repositoryId})
			MERGE (r)-[:HAS_SCAN]->(s:Scan {id: $id})
			SET s.status = $status,
			    s.totalFiles = $totalFiles,
			    s.processedFiles = $processedFiles,
			    s.highCount = $highCount,
			    s.mediumCount = $mediumCount,
			    s.lowCount = $lowCount,
			    s.riskScore = $riskScore,
			    s.riskMessage = $riskMessage,
			    s.bestPractices = $bestPractices,
			    s.error = $error,
			    s.resultsJson = $resultsJson,
			    s.startedAt = $startedAt,
			    s.completedAt = $completedAt
		`
		_, err := tx.Run(ctx, query, params)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to persist scan %s: %w", job.ID, err)
	}
	return nil
}

// LoadScan returns a persisted snapshot, or nil when unknown.
func (s *Store) LoadScan(ctx context.Context, id string) (*models.ScanJob, error) {
	return s.queryScan(ctx, `
		MATCH (r:Repository)-[:HAS_SCAN]->(s:Scan {id: $key})
		RETURN r.id AS repositoryId, s.id AS id, s.status AS status,
		       s.totalFiles AS totalFiles, s.processedFiles AS processedFiles,
		       s.highCount AS highCount, s.mediumCount AS mediumCount, s.lowCount AS lowCount,
		       s.riskScore AS riskScore, s.riskMessage AS riskMessage,
		       s.bestPractices AS bestPractices, s.error AS error,
		       s.resultsJson AS resultsJson, s.startedAt AS startedAt, s.completedAt AS completedAt
	`, id)
}

// LatestScan returns the most recently completed snapshot for a
// repository, or nil when it has never been scanned.
func (s *Store) LatestScan(ctx context.Context, repositoryID string) (*models.ScanJob, error) {
	return s.queryScan(ctx, `
		MATCH (r:Repository {id: $key})-[:HAS_SCAN]->(s:Scan)
		RETURN r.id AS repositoryId, s.id AS id, s.status AS status,
		       s.totalFiles AS totalFiles, s.processedFiles AS processedFiles,
		       s.highCount AS highCount, s.mediumCount AS mediumCount, s.lowCount AS lowCount,
		       s.riskScore AS riskScore, s.riskMessage AS riskMessage,
		       s.bestPractices AS bestPractices, s.error AS error,
		       s.resultsJson AS resultsJson, s.startedAt AS startedAt, s.completedAt AS completedAt
		ORDER BY s.completedAt DESC
		LIMIT 1
	`, repositoryID)
}

func (s *Store) queryScan(ctx context.Context, query, key string) (*models.ScanJob, error) {
	result, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"key": key})
		if err != nil {
			return nil, err
		}
		if res.Next(ctx) {
			return recordToScan(res.Record())
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	return result.(*models.ScanJob), nil
}

func scanToParams(job models.ScanJob) (map[string]any, error) {
	resultsJSON, err := json.Marshal(job.Results)
	if err != nil {
		return nil, fmt.Errorf("failed to encode scan results: %w", err)
	}

	var completedAt any
	if job.CompletedAt != nil {
		completedAt = job.CompletedAt.UTC()
	}

	practices := job.BestPractices
	if practices == nil {
		practices = []string{}
	}

	return map[string]any{
		"id":             job.ID,
		"repositoryId":   job.RepositoryID,
		"status":         job.Status,
		"totalFiles":     job.TotalFiles,
		"processedFiles": job.ProcessedFiles,
		"highCount":      job.IssueCounts.High,
		"mediumCount":    job.IssueCounts.Medium,
		"lowCount":       job.IssueCounts.Low,
		"riskScore":      job.RiskScore,
		"riskMessage":    job.RiskMessage,
		"bestPractices":  practices,
		"error":          job.Error,
		"resultsJson":    string(resultsJSON),
		"startedAt":      job.StartedAt.UTC(),
		"completedAt":    completedAt,
	}, nil
}

func recordToScan(record *neo4j.Record) (*models.ScanJob, error) {
	job := &models.ScanJob{}

	getString := func(key string) string {
		if v, ok := record.Get(key); ok && v != nil {
			if s, ok := v.(string); ok {
				return s
			}
		}
		return ""
	}
	getInt := func(key string) int {
		if v, ok := record.Get(key); ok && v != nil {
			if n, ok := v.(int64); ok {
				return int(n)
			}
		}
		return 0
	}

	job.ID = getString("id")
	job.RepositoryID = getString("repositoryId")
	job.Status = getString("status")
	job.TotalFiles = getInt("totalFiles")
	job.ProcessedFiles = getInt("processedFiles")
	job.IssueCounts = models.IssueCounts{
		High:   getInt("highCount"),
		Medium: getInt("mediumCount"),
		Low:    getInt("lowCount"),
	}
	job.RiskScore = getInt("riskScore")
	job.RiskMessage = getString("riskMessage")
	job.Error = getString("error")
	if job.TotalFiles > 0 {
		job.ProgressPercent = job.ProcessedFiles * 100 / job.TotalFiles
	}
	if job.Status == models.JobCompleted {
		job.ProgressPercent = 100
	}

	if v, ok := record.Get("bestPractices"); ok && v != nil {
		if list, ok := v.([]any); ok {
			for _, item := range list {
				if s, ok := item.(string); ok {
					job.BestPractices = append(job.BestPractices, s)
				}
			}
		}
	}

	if raw := getString("resultsJson"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &job.Results); err != nil {
			return nil, fmt.Errorf("corrupt results payload for scan %s: %w", job.ID, err)
		}
	}

	if v, ok := record.Get("startedAt"); ok && v != nil {
		if t, ok := v.(time.Time); ok {
			job.StartedAt = t
		}
	}
	if v, ok := record.Get("completedAt"); ok && v != nil {
		if t, ok := v.(time.Time); ok {
			job.CompletedAt = &t
		}
	}

	return job, nil
}
