package models

import "time"

// Job lifecycle states. Terminal states are never left.
const (
	JobPending    = "pending"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// Issue severities as normalized on ingestion. Anything else coming back
// from the model is kept on the issue but excluded from the counts.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// FileTask is one unit of analysis work produced by discovery.
// ContentRef is an opaque handle the content store resolves lazily.
type FileTask struct {
	Path       string `json:"path"`
	SizeBytes  int64  `json:"sizeBytes"`
	ContentRef string `json:"contentRef"`
}

// Issue is a single finding reported for a file.
type Issue struct {
	Title          string `json:"title"`
	Severity       string `json:"severity"`
	Description    string `json:"description"`
	Line           int    `json:"line,omitempty"`
	Recommendation string `json:"recommendation"`
	File           string `json:"file"`
}

type Summary struct {
	RiskScore int    `json:"riskScore"`
	Message   string `json:"message"`
}

type Metrics struct {
	Complexity      int `json:"complexity"`
	Maintainability int `json:"maintainability"`
}

// AnalysisResult is the per-file outcome. Success=false covers both
// remote failures and skipped files; Error says which.
type AnalysisResult struct {
	File          string   `json:"file"`
	Language      string   `json:"language"`
	Success       bool     `json:"success"`
	Issues        []Issue  `json:"issues"`
	Summary       Summary  `json:"summary"`
	Metrics       Metrics  `json:"metrics"`
	BestPractices []string `json:"bestPractices"`
	Error         string   `json:"error,omitempty"`
}

type IssueCounts struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// ScanJob tracks one scan of one repository. Mutated only by the
// orchestrator; pollers read snapshots.
type ScanJob struct {
	ID              string           `json:"id"`
	RepositoryID    string           `json:"repositoryId"`
	UserID          string           `json:"userId,omitempty"`
	Status          string           `json:"status"`
	ProgressPercent int              `json:"progressPercent"`
	TotalFiles      int              `json:"totalFiles"`
	ProcessedFiles  int              `json:"processedFiles"`
	IssueCounts     IssueCounts      `json:"issueCounts"`
	Results         []AnalysisResult `json:"results"`
	RiskScore       int              `json:"riskScore"`
	RiskMessage     string           `json:"riskMessage"`
	BestPractices   []string         `json:"bestPractices,omitempty"`
	Error           string           `json:"error,omitempty"`
	StartedAt       time.Time        `json:"startedAt"`
	CompletedAt     *time.Time       `json:"completedAt,omitempty"`
}

// Terminal reports whether the job reached a final state.
func (j *ScanJob) Terminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}
