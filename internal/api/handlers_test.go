package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/repoguard/repoguard/backend/internal/models"
	"github.com/repoguard/repoguard/backend/internal/scan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRepos struct {
	byID    map[string]*models.Repository
	created []*models.Repository
}

func (f *fakeRepos) CreateRepository(_ context.Context, repo *models.Repository) (*models.Repository, error) {
	repo.ID = "repo-new"
	f.created = append(f.created, repo)
	return repo, nil
}

func (f *fakeRepos) GetRepository(_ context.Context, id string) (*models.Repository, error) {
	return f.byID[id], nil
}

func (f *fakeRepos) ListRepositories(context.Context) ([]*models.Repository, error) {
	var out []*models.Repository
	for _, r := range f.byID {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeRepos) DeleteRepository(_ context.Context, id string) error {
	delete(f.byID, id)
	return nil
}

type fakeScans struct {
	startErr error
	jobs     map[string]models.ScanJob
	started  []string
}

func (f *fakeScans) StartScan(_ context.Context, repositoryID, _ string) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	f.started = append(f.started, repositoryID)
	return "job-1", nil
}

func (f *fakeScans) GetStatus(jobID string) (models.ScanJob, error) {
	job, ok := f.jobs[jobID]
	if !ok {
		return models.ScanJob{}, scan.ErrJobNotFound
	}
	return job, nil
}

type fakeArchive struct {
	byJob   map[string]*models.ScanJob
	byRepo  map[string]*models.ScanJob
	loadErr error
}

func (f *fakeArchive) LoadScan(_ context.Context, id string) (*models.ScanJob, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.byJob[id], nil
}

func (f *fakeArchive) LatestScan(_ context.Context, repositoryID string) (*models.ScanJob, error) {
	return f.byRepo[repositoryID], nil
}

func newTestApp(repos RepoStore, scans ScanService, archive ScanArchive) *fiber.App {
	app := fiber.New()
	h := NewHandler(repos, scans, archive, nil, zap.NewNop().Sugar())
	SetupRoutes(app, h)
	return app
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, out))
}

func TestStartScanAccepted(t *testing.T) {
	repos := &fakeRepos{byID: map[string]*models.Repository{
		"repo-1": {ID: "repo-1", URL: "https://github.com/acme/app"},
	}}
	scans := &fakeScans{}
	app := newTestApp(repos, scans, &fakeArchive{})

	req := httptest.NewRequest("POST", "/api/repositories/repo-1/scan", nil)
	req.Header.Set("X-User-ID", "user-1")
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, 202, resp.StatusCode)
	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "job-1", body["jobId"])
	assert.Equal(t, []string{"repo-1"}, scans.started)
}

func TestStartScanUnknownRepository(t *testing.T) {
	scans := &fakeScans{startErr: scan.ErrRepositoryNotFound}
	app := newTestApp(&fakeRepos{}, scans, &fakeArchive{})

	resp, err := app.Test(httptest.NewRequest("POST", "/api/repositories/nope/scan", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestStartScanAlreadyRunning(t *testing.T) {
	scans := &fakeScans{startErr: scan.ErrScanInProgress}
	app := newTestApp(&fakeRepos{}, scans, &fakeArchive{})

	resp, err := app.Test(httptest.NewRequest("POST", "/api/repositories/repo-1/scan", nil))
	require.NoError(t, err)
	assert.Equal(t, 409, resp.StatusCode)
}

func TestGetScanStatusLive(t *testing.T) {
	scans := &fakeScans{jobs: map[string]models.ScanJob{
		"job-1": {
			ID:              "job-1",
			RepositoryID:    "repo-1",
			Status:          models.JobProcessing,
			ProgressPercent: 40,
			ProcessedFiles:  2,
			TotalFiles:      5,
		},
	}}
	app := newTestApp(&fakeRepos{}, scans, &fakeArchive{})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/scans/job-1", nil))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var job models.ScanJob
	decodeBody(t, resp, &job)
	assert.Equal(t, models.JobProcessing, job.Status)
	assert.Equal(t, 40, job.ProgressPercent)
}

func TestGetScanStatusFallsBackToArchive(t *testing.T) {
	archive := &fakeArchive{byJob: map[string]*models.ScanJob{
		"job-old": {ID: "job-old", Status: models.JobCompleted, ProgressPercent: 100},
	}}
	app := newTestApp(&fakeRepos{}, &fakeScans{}, archive)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/scans/job-old", nil))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var job models.ScanJob
	decodeBody(t, resp, &job)
	assert.Equal(t, models.JobCompleted, job.Status)
}

func TestGetScanStatusNotFound(t *testing.T) {
	app := newTestApp(&fakeRepos{}, &fakeScans{}, &fakeArchive{})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/scans/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestCreateRepository(t *testing.T) {
	repos := &fakeRepos{byID: map[string]*models.Repository{}}
	app := newTestApp(repos, &fakeScans{}, &fakeArchive{})

	req := httptest.NewRequest("POST", "/api/repositories/",
		strings.NewReader(`{"url":"https://github.com/acme/widget.git"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	require.Equal(t, 201, resp.StatusCode)
	var repo models.Repository
	decodeBody(t, resp, &repo)
	assert.Equal(t, "widget", repo.Name)
	assert.Equal(t, "main", repo.DefaultBranch)
	assert.Equal(t, "pending", repo.Status)
}

func TestCreateRepositoryRequiresURL(t *testing.T) {
	app := newTestApp(&fakeRepos{}, &fakeScans{}, &fakeArchive{})

	req := httptest.NewRequest("POST", "/api/repositories/", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestGetLatestScan(t *testing.T) {
	repos := &fakeRepos{byID: map[string]*models.Repository{
		"repo-1": {ID: "repo-1"},
	}}
	archive := &fakeArchive{byRepo: map[string]*models.ScanJob{
		"repo-1": {ID: "job-9", Status: models.JobCompleted, RiskScore: 33},
	}}
	app := newTestApp(repos, &fakeScans{}, archive)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/repositories/repo-1/scans/latest", nil))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var job models.ScanJob
	decodeBody(t, resp, &job)
	assert.Equal(t, "job-9", job.ID)
	assert.Equal(t, 33, job.RiskScore)
}

func TestGetLatestScanNoHistory(t *testing.T) {
	repos := &fakeRepos{byID: map[string]*models.Repository{
		"repo-1": {ID: "repo-1"},
	}}
	app := newTestApp(repos, &fakeScans{}, &fakeArchive{})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/repositories/repo-1/scans/latest", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	app := newTestApp(&fakeRepos{}, &fakeScans{}, &fakeArchive{})

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}
