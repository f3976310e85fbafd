package discovery

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/repoguard/repoguard/backend/internal/contentstore"
	"github.com/repoguard/repoguard/backend/internal/models"
	"go.uber.org/zap"
)

// Directories skipped wherever they appear in the tree. Matching is by
// substring on the directory name, so "build" also catches "build-out".
var skipTokens = []string{
	"node_modules", "dist", ".git", "build", "vendor",
	"__pycache__", ".venv", "target",
}

// Extensions that are never worth sending to analysis.
var skipExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true,
	".ico": true, ".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
	".pdf": true, ".zip": true, ".tar": true, ".gz": true, ".7z": true,
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".bin": true,
	".jar": true, ".class": true, ".pyc": true, ".o": true, ".a": true,
	".mp3": true, ".mp4": true, ".webm": true, ".lock": true,
}

// Discoverer enumerates the analyzable files of a repository tree.
// It never fetches file content; tasks carry a lazy content ref.
type Discoverer struct {
	store contentstore.Store
	log   *zap.SugaredLogger
}

func New(store contentstore.Store, log *zap.SugaredLogger) *Discoverer {
	return &Discoverer{store: store, log: log}
}

// Discover walks the tree depth-first and returns a flat, order-stable
// task list. A listing failure below the root logs and continues with
// partial results; only a failure to list the root itself is fatal.
func (d *Discoverer) Discover(ctx context.Context, root string) ([]models.FileTask, error) {
	entries, err := d.store.ListDir(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("failed to list repository root: %w", err)
	}

	var tasks []models.FileTask
	d.walk(ctx, root, entries, &tasks)
	return tasks, nil
}

func (d *Discoverer) walk(ctx context.Context, root string, entries []contentstore.Entry, tasks *[]models.FileTask) {
	for _, e := range entries {
		if ctx.Err() != nil {
			return
		}

		if e.IsDir {
			if skipDir(e.Name) {
				continue
			}
			children, err := d.store.ListDir(ctx, e.Path)
			if err != nil {
				// Partial results beat a dead scan.
				d.log.Warnw("skipping unreadable directory", "dir", e.Path, "err", err)
				continue
			}
			d.walk(ctx, root, children, tasks)
			continue
		}

		if skipExtensions[strings.ToLower(filepath.Ext(e.Name))] {
			continue
		}

		rel, err := filepath.Rel(root, e.Path)
		if err != nil {
			rel = e.Path
		}
		*tasks = append(*tasks, models.FileTask{
			Path:       rel,
			SizeBytes:  e.Size,
			ContentRef: e.ContentRef,
		})
	}
}

func skipDir(name string) bool {
	for _, token := range skipTokens {
		if strings.Contains(name, token) {
			return true
		}
	}
	return false
}
