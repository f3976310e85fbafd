package contentstore

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// GitStore serves repository content from shallow clones kept under a
// base path. Clones are reused across scans; a re-scan pulls instead.
type GitStore struct {
	basePath string
	log      *zap.SugaredLogger
}

func NewGitStore(basePath string, log *zap.SugaredLogger) *GitStore {
	return &GitStore{basePath: basePath, log: log}
}

// Prepare clones (or updates) the repository and returns the working
// tree root subsequent ListDir/GetContent calls operate on.
func (s *GitStore) Prepare(ctx context.Context, url, branch string) (string, error) {
	repoPath := filepath.Join(s.basePath, ExtractRepoName(url))

	if _, err := os.Stat(filepath.Join(repoPath, ".git")); err == nil {
		if err := s.pull(ctx, repoPath); err != nil {
			// A stale working copy is still scannable.
			s.log.Warnw("pull failed, scanning existing clone", "repo", repoPath, "err", err)
		}
		return repoPath, nil
	}

	if err := os.MkdirAll(s.basePath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create repos directory: %w", err)
	}

	args := []string{"clone", "--depth", "1"}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	args = append(args, url, repoPath)

	cmd := exec.CommandContext(ctx, "git", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("git clone failed: %w: %s", err, strings.TrimSpace(string(out)))
	}

	return repoPath, nil
}

func (s *GitStore) pull(ctx context.Context, repoPath string) error {
	cmd := exec.CommandContext(ctx, "git", "pull", "--ff-only")
	cmd.Dir = repoPath
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git pull failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// ListDir lists a single directory of a prepared working tree.
func (s *GitStore) ListDir(ctx context.Context, dir string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dirents, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	entries := make([]Entry, 0, len(dirents))
	for _, de := range dirents {
		full := filepath.Join(dir, de.Name())
		e := Entry{
			Name:       de.Name(),
			Path:       full,
			IsDir:      de.IsDir(),
			ContentRef: full,
		}
		if !de.IsDir() {
			if info, err := de.Info(); err == nil {
				e.Size = info.Size()
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// GetContent reads a file by the ref ListDir handed out. Refs outside
// the base path are refused.
func (s *GitStore) GetContent(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(ref)
	if err != nil {
		return nil, fmt.Errorf("invalid content ref %q: %w", ref, err)
	}
	base, err := filepath.Abs(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("invalid base path: %w", err)
	}
	if !strings.HasPrefix(abs, base+string(filepath.Separator)) {
		return nil, fmt.Errorf("content ref %q escapes repository storage", ref)
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}
	return content, nil
}

// ExtractRepoName extracts the repository name from a clone URL.
func ExtractRepoName(url string) string {
	url = strings.TrimSuffix(url, ".git")

	if strings.HasPrefix(url, "https://") || strings.HasPrefix(url, "http://") {
		parts := strings.Split(url, "/")
		return parts[len(parts)-1]
	}

	// SSH form: git@github.com:owner/repo
	if strings.Contains(url, ":") {
		parts := strings.Split(url, ":")
		pathParts := strings.Split(parts[len(parts)-1], "/")
		return pathParts[len(pathParts)-1]
	}

	return url
}
