package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/repoguard/repoguard/backend/internal/models"
)

// Store wraps the neo4j client behind the repository-record and
// scan-persistence collaborators the pipeline depends on.
type Store struct {
	client *Neo4jClient
}

func NewStore(client *Neo4jClient) *Store {
	return &Store{client: client}
}

func (s *Store) CreateRepository(ctx context.Context, repo *models.Repository) (*models.Repository, error) {
	repo.ID = uuid.New().String()

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			CREATE (r:Repository {
				id: $id,
				url: $url,
				name: $name,
				defaultBranch: $defaultBranch,
				status: $status,
				lastScanned: $lastScanned,
				filesCount: 0,
				issuesCount: 0
			})
		`
		_, err := tx.Run(ctx, query, map[string]any{
			"id":            repo.ID,
			"url":           repo.URL,
			"name":          repo.Name,
			"defaultBranch": repo.DefaultBranch,
			"status":        repo.Status,
			"lastScanned":   time.Now().UTC(),
		})
		return nil, err
	})

	if err != nil {
		return nil, fmt.Errorf("failed to create repository: %w", err)
	}

	return repo, nil
}

func (s *Store) GetRepository(ctx context.Context, id string) (*models.Repository, error) {
	result, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (r:Repository {id: $id})
			RETURN r.id AS id, r.url AS url, r.name AS name,
			       r.defaultBranch AS defaultBranch, r.status AS status,
			       r.lastScanned AS lastScanned, r.filesCount AS filesCount,
			       r.issuesCount AS issuesCount
		`
		res, err := tx.Run(ctx, query, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		if res.Next(ctx) {
			return recordToRepository(res.Record()), nil
		}
		return nil, nil
	})

	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	return result.(*models.Repository), nil
}

func (s *Store) ListRepositories(ctx context.Context) ([]*models.Repository, error) {
	result, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (r:Repository)
			RETURN r.id AS id, r.url AS url, r.name AS name,
			       r.defaultBranch AS defaultBranch, r.status AS status,
			       r.lastScanned AS lastScanned, r.filesCount AS filesCount,
			       r.issuesCount AS issuesCount
			ORDER BY r.lastScanned DESC
		`
		res, err := tx.Run(ctx, query, nil)
		if err != nil {
			return nil, err
		}

		var repos []*models.Repository
		for res.Next(ctx) {
			repos = append(repos, recordToRepository(res.Record()))
		}
		return repos, res.Err()
	})

	if err != nil {
		return nil, err
	}
	return result.([]*models.Repository), nil
}

func (s *Store) DeleteRepository(ctx context.Context, id string) error {
	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (r:Repository {id: $id})
			OPTIONAL MATCH (r)-[:HAS_SCAN]->(s:Scan)
			DETACH DELETE s, r
		`
		_, err := tx.Run(ctx, query, map[string]any{"id": id})
		return nil, err
	})
	return err
}

// SetStatus updates the repository's scan status and touches its
// lastScanned timestamp.
func (s *Store) SetStatus(ctx context.Context, id, status string) error {
	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (r:Repository {id: $id})
			SET r.status = $status, r.lastScanned = $lastScanned
		`
		_, err := tx.Run(ctx, query, map[string]any{
			"id":          id,
			"status":      status,
			"lastScanned": time.Now().UTC(),
		})
		return nil, err
	})
	return err
}

func (s *Store) SetScanStats(ctx context.Context, id string, files, issues int) error {
	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (r:Repository {id: $id})
			SET r.filesCount = $files, r.issuesCount = $issues
		`
		_, err := tx.Run(ctx, query, map[string]any{
			"id":     id,
			"files":  files,
			"issues": issues,
		})
		return nil, err
	})
	return err
}

func recordToRepository(record *neo4j.Record) *models.Repository {
	repo := &models.Repository{}

	if id, ok := record.Get("id"); ok && id != nil {
		repo.ID = id.(string)
	}
	if url, ok := record.Get("url"); ok && url != nil {
		repo.URL = url.(string)
	}
	if name, ok := record.Get("name"); ok && name != nil {
		repo.Name = name.(string)
	}
	if branch, ok := record.Get("defaultBranch"); ok && branch != nil {
		repo.DefaultBranch = branch.(string)
	}
	if status, ok := record.Get("status"); ok && status != nil {
		repo.Status = status.(string)
	}
	if lastScanned, ok := record.Get("lastScanned"); ok && lastScanned != nil {
		if t, ok := lastScanned.(time.Time); ok {
			repo.LastScanned = t
		}
	}
	if filesCount, ok := record.Get("filesCount"); ok && filesCount != nil {
		repo.FilesCount = int(filesCount.(int64))
	}
	if issuesCount, ok := record.Get("issuesCount"); ok && issuesCount != nil {
		repo.IssuesCount = int(issuesCount.(int64))
	}

	return repo
}
