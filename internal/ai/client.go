package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// QuotaError is returned when the analysis service signals that its
// quota is exhausted (HTTP 429 or an equivalent body marker). The
// retry layer uses it to trip the rate-limiter cooldown.
type QuotaError struct {
	StatusCode int
	Message    string
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("analysis service quota exhausted (status %d): %s", e.StatusCode, e.Message)
}

func (e *QuotaError) QuotaExceeded() bool { return true }

// Client talks to the AI analysis gateway over HTTP.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewClient(baseURL, model string) *Client {
	return &Client{
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type analyzeRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`
}

type analyzeResponse struct {
	Content string `json:"content"`
}

// Submit sends a prompt and returns the raw text payload. The response
// is expected, but not guaranteed, to contain JSON; parsing is the
// caller's problem.
func (c *Client) Submit(ctx context.Context, prompt string) (string, error) {
	reqBody, err := json.Marshal(analyzeRequest{
		Model:       c.model,
		Prompt:      prompt,
		Temperature: 0.2,
		MaxTokens:   2048,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/analyze", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		if isQuotaStatus(resp.StatusCode, string(body)) {
			return "", &QuotaError{StatusCode: resp.StatusCode, Message: string(body)}
		}
		return "", fmt.Errorf("analysis service error (status %d): %s", resp.StatusCode, string(body))
	}

	var out analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	return out.Content, nil
}

func isQuotaStatus(status int, body string) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	lower := strings.ToLower(body)
	return strings.Contains(lower, "quota") || strings.Contains(lower, "resource_exhausted")
}
