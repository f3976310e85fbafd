package analyzer

import "fmt"

// The model is instructed to answer with bare JSON. It frequently does
// not, which is what parser.go is for.
const promptTemplate = `You are a code quality and security reviewer.
Analyze the following %s source file for security vulnerabilities, bugs and maintainability problems.

Respond with ONLY a JSON object, no prose and no markdown, matching exactly this schema:
{
  "summary": {"riskScore": <integer 0-100>, "message": "<one sentence overall assessment>"},
  "issues": [
    {"title": "<short title>", "severity": "high|medium|low", "description": "<what and why>", "line": <line number or 0>, "recommendation": "<how to fix>"}
  ],
  "metrics": {"complexity": <integer>, "maintainability": <integer 0-100>},
  "bestPractices": ["<general practice the code should follow>"]
}

File: %s

%s`

func buildPrompt(path, language string, content []byte) string {
	return fmt.Sprintf(promptTemplate, language, path, content)
}
