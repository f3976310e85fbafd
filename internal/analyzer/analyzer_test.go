package analyzer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/repoguard/repoguard/backend/internal/models"
	"github.com/repoguard/repoguard/backend/internal/retry"
	"go.uber.org/zap"
)

type openLimiter struct{}

func (openLimiter) AcquireAll(context.Context) bool { return true }
func (openLimiter) MarkAllExhausted()               {}

type fakeContent struct {
	data map[string][]byte
	err  error
}

func (f *fakeContent) GetContent(_ context.Context, ref string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.data[ref], nil
}

type fakeService struct {
	response string
	err      error
	calls    int
}

func (f *fakeService) Submit(context.Context, string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func newTestAnalyzer(content ContentSource, service Service) *Analyzer {
	exec := retry.New(openLimiter{}, retry.Config{MaxRetries: 0, InitialBackoff: time.Millisecond, Multiplier: 2}, zap.NewNop().Sugar())
	return New(content, service, exec, nil, 1000, zap.NewNop().Sugar())
}

func TestAnalyzeSuccess(t *testing.T) {
	content := &fakeContent{data: map[string][]byte{"ref1": []byte("package main")}}
	service := &fakeService{response: `{"summary":{"riskScore":200,"message":"bad"},"issues":[{"title":"x","severity":"HIGH"}],"metrics":{"complexity":3,"maintainability":60},"bestPractices":["a"]}`}
	a := newTestAnalyzer(content, service)

	result := a.Analyze(context.Background(), models.FileTask{Path: "main.go", SizeBytes: 12, ContentRef: "ref1"})

	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if result.Language != "go" {
		t.Errorf("language = %q, want go", result.Language)
	}
	if result.Summary.RiskScore != 100 {
		t.Errorf("riskScore must be clamped to 100, got %d", result.Summary.RiskScore)
	}
	if len(result.Issues) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(result.Issues))
	}
	if result.Issues[0].Severity != "high" {
		t.Errorf("severity not normalized: %q", result.Issues[0].Severity)
	}
	if result.Issues[0].File != "main.go" {
		t.Errorf("issue must carry its file, got %q", result.Issues[0].File)
	}
}

func TestAnalyzeOversizedSkippedBeforeFetch(t *testing.T) {
	content := &fakeContent{err: errors.New("fetch must not happen")}
	service := &fakeService{}
	a := newTestAnalyzer(content, service)

	result := a.Analyze(context.Background(), models.FileTask{Path: "big.js", SizeBytes: 5000, ContentRef: "ref"})

	if result.Success {
		t.Fatal("oversized file must not succeed")
	}
	if !strings.Contains(result.Error, "exceeds cap") {
		t.Errorf("expected size-cap error, got %q", result.Error)
	}
	if service.calls != 0 {
		t.Error("oversized file must never reach the analysis service")
	}
}

func TestAnalyzeOversizedContent(t *testing.T) {
	// Declared size lies; the fetched content still trips the cap.
	content := &fakeContent{data: map[string][]byte{"ref": []byte(strings.Repeat("x", 2000))}}
	service := &fakeService{}
	a := newTestAnalyzer(content, service)

	result := a.Analyze(context.Background(), models.FileTask{Path: "f.py", SizeBytes: 10, ContentRef: "ref"})
	if result.Success || service.calls != 0 {
		t.Fatal("oversized content must be skipped without a service call")
	}
}

func TestAnalyzeEmptyFileSkipped(t *testing.T) {
	content := &fakeContent{data: map[string][]byte{"ref": nil}}
	service := &fakeService{}
	a := newTestAnalyzer(content, service)

	result := a.Analyze(context.Background(), models.FileTask{Path: "empty.go", ContentRef: "ref"})
	if result.Success {
		t.Fatal("empty file must not succeed")
	}
	if service.calls != 0 {
		t.Error("empty file must never reach the analysis service")
	}
	if len(result.Issues) != 0 {
		t.Error("skipped file must carry zero issues")
	}
}

func TestAnalyzeFetchFailure(t *testing.T) {
	content := &fakeContent{err: errors.New("blob gone")}
	a := newTestAnalyzer(content, &fakeService{})

	result := a.Analyze(context.Background(), models.FileTask{Path: "gone.go", ContentRef: "ref"})
	if result.Success {
		t.Fatal("fetch failure must not succeed")
	}
	if !strings.Contains(result.Error, "blob gone") {
		t.Errorf("expected fetch error to be recorded, got %q", result.Error)
	}
}

func TestAnalyzeRemoteFailureDegrades(t *testing.T) {
	content := &fakeContent{data: map[string][]byte{"ref": []byte("code")}}
	service := &fakeService{err: errors.New("upstream down")}
	a := newTestAnalyzer(content, service)

	result := a.Analyze(context.Background(), models.FileTask{Path: "x.go", ContentRef: "ref"})
	if result.Success {
		t.Fatal("remote failure must degrade to Success=false, never panic")
	}
	if result.Error == "" {
		t.Error("expected the error to be recorded on the result")
	}
}

func TestAnalyzeUnknownExtension(t *testing.T) {
	content := &fakeContent{data: map[string][]byte{"ref": []byte("data")}}
	service := &fakeService{response: `{"summary":{"riskScore":5,"message":"fine"}}`}
	a := newTestAnalyzer(content, service)

	result := a.Analyze(context.Background(), models.FileTask{Path: "Makefile.custom", ContentRef: "ref"})
	if result.Language != "text" {
		t.Errorf("unknown extension must map to text, got %q", result.Language)
	}
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
}
