package analyzer

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// rawAnalysis mirrors the JSON schema the prompt asks for.
type rawAnalysis struct {
	Summary struct {
		RiskScore int    `json:"riskScore"`
		Message   string `json:"message"`
	} `json:"summary"`
	Issues []rawIssue `json:"issues"`
	Metrics struct {
		Complexity      int `json:"complexity"`
		Maintainability int `json:"maintainability"`
	} `json:"metrics"`
	BestPractices []string `json:"bestPractices"`
}

type rawIssue struct {
	Title          string `json:"title"`
	Severity       string `json:"severity"`
	Description    string `json:"description"`
	Line           int    `json:"line"`
	Recommendation string `json:"recommendation"`
}

// parseResponse turns whatever text the model produced into a
// rawAnalysis. It tries, in order: JSON extracted from markdown fences
// or brace bounds, the same JSON after defect repair, and finally
// regex-based field scavenging. Only when all three fail does the file
// count as unparseable.
func parseResponse(text string) (*rawAnalysis, error) {
	jsonStr := extractJSON(text)
	if jsonStr != "" {
		var result rawAnalysis
		if err := json.Unmarshal([]byte(jsonStr), &result); err == nil {
			return &result, nil
		}
		if err := json.Unmarshal([]byte(repairJSON(jsonStr)), &result); err == nil {
			return &result, nil
		}
	}

	if result := scavengeFields(text); result != nil {
		return result, nil
	}

	return nil, fmt.Errorf("no parseable analysis in response (%d bytes)", len(text))
}

var codeFencePattern = regexp.MustCompile("```(?:json)?\\s*\\n?([\\s\\S]*?)\\n?```")

// extractJSON bounds the JSON payload inside a possibly chatty
// response: fenced block first, then a decoder-validated object, then
// a crude first-to-last brace slice.
func extractJSON(text string) string {
	if matches := codeFencePattern.FindStringSubmatch(text); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}

	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}

	// A decoder stops at the end of the first valid value, which
	// handles strings containing braces correctly.
	decoder := json.NewDecoder(strings.NewReader(text[start:]))
	var raw json.RawMessage
	if err := decoder.Decode(&raw); err == nil {
		return string(raw)
	}

	end := strings.LastIndex(text, "}")
	if end <= start {
		return ""
	}
	return text[start : end+1]
}

var (
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
	controlCharPattern   = regexp.MustCompile("[\x00-\x08\x0b\x0c\x0e-\x1f]")
	strayBackslash       = regexp.MustCompile(`\\([^"\\/bfnrtu])`)
)

// repairJSON fixes the defects models habitually produce: trailing
// commas, raw control characters, and backslashes that do not start a
// valid escape.
func repairJSON(s string) string {
	s = trailingCommaPattern.ReplaceAllString(s, "$1")
	s = controlCharPattern.ReplaceAllString(s, "")
	s = strayBackslash.ReplaceAllString(s, `\\$1`)
	return s
}

var (
	riskScorePattern    = regexp.MustCompile(`"riskScore"\s*:\s*(\d+)`)
	messagePattern      = regexp.MustCompile(`"message"\s*:\s*"([^"]*)"`)
	issueObjectPattern  = regexp.MustCompile(`\{[^{}]*"severity"[^{}]*\}`)
	titlePattern        = regexp.MustCompile(`"title"\s*:\s*"([^"]*)"`)
	severityPattern     = regexp.MustCompile(`"severity"\s*:\s*"([^"]*)"`)
	descriptionPattern  = regexp.MustCompile(`"description"\s*:\s*"([^"]*)"`)
	linePattern         = regexp.MustCompile(`"line"\s*:\s*(\d+)`)
	recommendPattern    = regexp.MustCompile(`"recommendation"\s*:\s*"([^"]*)"`)
	practiceListPattern = regexp.MustCompile(`"bestPractices"\s*:\s*\[([^\]]*)\]`)
	quotedPattern       = regexp.MustCompile(`"([^"]+)"`)
)

// scavengeFields synthesizes a best-effort result from a response that
// defeated the JSON parser. Returns nil when not even a risk score or
// an issue can be found.
func scavengeFields(text string) *rawAnalysis {
	var result rawAnalysis
	found := false

	if m := riskScorePattern.FindStringSubmatch(text); m != nil {
		if score, err := strconv.Atoi(m[1]); err == nil {
			result.Summary.RiskScore = score
			found = true
		}
	}
	if m := messagePattern.FindStringSubmatch(text); m != nil {
		result.Summary.Message = m[1]
	}

	for _, obj := range issueObjectPattern.FindAllString(text, -1) {
		issue := rawIssue{}
		if m := titlePattern.FindStringSubmatch(obj); m != nil {
			issue.Title = m[1]
		}
		if m := severityPattern.FindStringSubmatch(obj); m != nil {
			issue.Severity = m[1]
		}
		if m := descriptionPattern.FindStringSubmatch(obj); m != nil {
			issue.Description = m[1]
		}
		if m := linePattern.FindStringSubmatch(obj); m != nil {
			issue.Line, _ = strconv.Atoi(m[1])
		}
		if m := recommendPattern.FindStringSubmatch(obj); m != nil {
			issue.Recommendation = m[1]
		}
		if issue.Title != "" || issue.Severity != "" {
			result.Issues = append(result.Issues, issue)
			found = true
		}
	}

	if m := practiceListPattern.FindStringSubmatch(text); m != nil {
		for _, q := range quotedPattern.FindAllStringSubmatch(m[1], -1) {
			result.BestPractices = append(result.BestPractices, q[1])
		}
	}

	if !found {
		return nil
	}
	return &result
}

// normalizeSeverity lower-cases known severities; anything else is
// kept as-is on the issue but excluded from aggregation counts.
func normalizeSeverity(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return "high"
	case "medium":
		return "medium"
	case "low":
		return "low"
	}
	return strings.TrimSpace(s)
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
