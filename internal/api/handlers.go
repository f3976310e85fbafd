package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/repoguard/repoguard/backend/internal/contentstore"
	"github.com/repoguard/repoguard/backend/internal/models"
	"github.com/repoguard/repoguard/backend/internal/scan"
	"go.uber.org/zap"
)

// RepoStore is the repository-record surface the handlers need.
type RepoStore interface {
	CreateRepository(ctx context.Context, repo *models.Repository) (*models.Repository, error)
	GetRepository(ctx context.Context, id string) (*models.Repository, error)
	ListRepositories(ctx context.Context) ([]*models.Repository, error)
	DeleteRepository(ctx context.Context, id string) error
}

// ScanService starts scans and answers status polls.
type ScanService interface {
	StartScan(ctx context.Context, repositoryID, userID string) (string, error)
	GetStatus(jobID string) (models.ScanJob, error)
}

// ScanArchive reads persisted terminal snapshots.
type ScanArchive interface {
	LoadScan(ctx context.Context, id string) (*models.ScanJob, error)
	LatestScan(ctx context.Context, repositoryID string) (*models.ScanJob, error)
}

// Pinger reports backing-store liveness for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	repos   RepoStore
	scans   ScanService
	archive ScanArchive
	pinger  Pinger
	log     *zap.SugaredLogger
}

func NewHandler(repos RepoStore, scans ScanService, archive ScanArchive, pinger Pinger, log *zap.SugaredLogger) *Handler {
	return &Handler{
		repos:   repos,
		scans:   scans,
		archive: archive,
		pinger:  pinger,
		log:     log,
	}
}

func (h *Handler) Health(c fiber.Ctx) error {
	if h.pinger != nil {
		if err := h.pinger.Ping(c.Context()); err != nil {
			return c.Status(503).JSON(fiber.Map{"status": "degraded", "error": err.Error()})
		}
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// ListRepositories returns all repositories
func (h *Handler) ListRepositories(c fiber.Ctx) error {
	repos, err := h.repos.ListRepositories(c.Context())
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	if repos == nil {
		repos = []*models.Repository{}
	}
	return c.JSON(repos)
}

// GetRepository returns a single repository
func (h *Handler) GetRepository(c fiber.Ctx) error {
	id := c.Params("id")
	repo, err := h.repos.GetRepository(c.Context(), id)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	if repo == nil {
		return c.Status(404).JSON(fiber.Map{"error": "repository not found"})
	}
	return c.JSON(repo)
}

// CreateRepository registers a repository so it can be scanned
func (h *Handler) CreateRepository(c fiber.Ctx) error {
	var input models.CreateRepositoryInput
	if err := c.Bind().Body(&input); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	if input.URL == "" {
		return c.Status(400).JSON(fiber.Map{"error": "url is required"})
	}

	repo := &models.Repository{
		URL:           input.URL,
		Name:          contentstore.ExtractRepoName(input.URL),
		DefaultBranch: input.DefaultBranch,
		Status:        "pending",
	}
	if repo.DefaultBranch == "" {
		repo.DefaultBranch = "main"
	}

	created, err := h.repos.CreateRepository(c.Context(), repo)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}

	return c.Status(201).JSON(created)
}

// DeleteRepository removes a repository and its persisted scans
func (h *Handler) DeleteRepository(c fiber.Ctx) error {
	id := c.Params("id")

	if err := h.repos.DeleteRepository(c.Context(), id); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}

	return c.SendStatus(204)
}

// StartScan queues a scan job and returns its id for polling
func (h *Handler) StartScan(c fiber.Ctx) error {
	id := c.Params("id")
	userID := c.Get("X-User-ID")

	jobID, err := h.scans.StartScan(c.Context(), id, userID)
	if err != nil {
		switch {
		case errors.Is(err, scan.ErrRepositoryNotFound):
			return c.Status(404).JSON(fiber.Map{"error": "repository not found"})
		case errors.Is(err, scan.ErrScanInProgress):
			return c.Status(409).JSON(fiber.Map{"error": "scan already in progress for this repository"})
		default:
			h.log.Errorw("failed to start scan", "repo", id, "err", err)
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
	}

	return c.Status(202).JSON(fiber.Map{"jobId": jobID})
}

// GetScanStatus returns the live snapshot of a job, falling back to the
// persisted archive for jobs already swept from memory.
func (h *Handler) GetScanStatus(c fiber.Ctx) error {
	jobID := c.Params("jobId")

	job, err := h.scans.GetStatus(jobID)
	if err == nil {
		return c.JSON(job)
	}
	if !errors.Is(err, scan.ErrJobNotFound) {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}

	archived, err := h.archive.LoadScan(c.Context(), jobID)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	if archived == nil {
		return c.Status(404).JSON(fiber.Map{"error": "scan not found"})
	}
	return c.JSON(archived)
}

// GetLatestScan returns the most recent persisted scan for a repository
func (h *Handler) GetLatestScan(c fiber.Ctx) error {
	id := c.Params("id")

	repo, err := h.repos.GetRepository(c.Context(), id)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	if repo == nil {
		return c.Status(404).JSON(fiber.Map{"error": "repository not found"})
	}

	latest, err := h.archive.LatestScan(c.Context(), id)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	if latest == nil {
		return c.Status(404).JSON(fiber.Map{"error": "repository has no scans"})
	}
	return c.JSON(latest)
}
