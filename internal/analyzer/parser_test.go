package analyzer

import (
	"reflect"
	"testing"
)

const bareJSON = `{"summary":{"riskScore":55,"message":"needs work"},"issues":[{"title":"SQL injection","severity":"high","description":"raw query","line":12,"recommendation":"use placeholders"}],"metrics":{"complexity":4,"maintainability":70},"bestPractices":["validate input"]}`

func TestParseResponseBareJSON(t *testing.T) {
	result, err := parseResponse(bareJSON)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if result.Summary.RiskScore != 55 {
		t.Errorf("riskScore = %d, want 55", result.Summary.RiskScore)
	}
	if len(result.Issues) != 1 || result.Issues[0].Severity != "high" {
		t.Errorf("unexpected issues: %+v", result.Issues)
	}
}

func TestParseResponseFencedEqualsBare(t *testing.T) {
	fenced := "Sure! Here is the analysis:\n```json\n" + bareJSON + "\n```\nLet me know if you need more."

	fromFenced, err := parseResponse(fenced)
	if err != nil {
		t.Fatalf("fenced parse failed: %v", err)
	}
	fromBare, err := parseResponse(bareJSON)
	if err != nil {
		t.Fatalf("bare parse failed: %v", err)
	}
	if !reflect.DeepEqual(fromFenced, fromBare) {
		t.Error("fenced and bare payloads must parse identically")
	}
}

func TestParseResponseChattyPreamble(t *testing.T) {
	chatty := "The file looks risky. " + bareJSON + " Hope that helps!"
	result, err := parseResponse(chatty)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if result.Summary.RiskScore != 55 {
		t.Errorf("riskScore = %d, want 55", result.Summary.RiskScore)
	}
}

func TestParseResponseRepairsTrailingCommas(t *testing.T) {
	broken := `{"summary":{"riskScore":30,"message":"ok",},"issues":[],"bestPractices":["a","b",],}`
	result, err := parseResponse(broken)
	if err != nil {
		t.Fatalf("expected trailing commas to be repaired: %v", err)
	}
	if result.Summary.RiskScore != 30 {
		t.Errorf("riskScore = %d, want 30", result.Summary.RiskScore)
	}
	if len(result.BestPractices) != 2 {
		t.Errorf("bestPractices = %v", result.BestPractices)
	}
}

func TestParseResponseStripsControlChars(t *testing.T) {
	broken := "{\"summary\":{\"riskScore\":10,\"message\":\"has\x01control\x02chars\"}}"
	result, err := parseResponse(broken)
	if err != nil {
		t.Fatalf("expected control characters to be stripped: %v", err)
	}
	if result.Summary.RiskScore != 10 {
		t.Errorf("riskScore = %d, want 10", result.Summary.RiskScore)
	}
}

func TestParseResponseRegexFallback(t *testing.T) {
	// Braces are hopelessly unbalanced, so only scavenging works.
	mangled := `analysis: "riskScore": 80, "message": "bad news" {{{
	{"title": "Hardcoded secret", "severity": "HIGH", "description": "api key in source", "line": 3, "recommendation": "move to env"}
	"bestPractices": ["rotate keys", "use a vault"]`

	result, err := parseResponse(mangled)
	if err != nil {
		t.Fatalf("expected regex fallback to salvage the response: %v", err)
	}
	if result.Summary.RiskScore != 80 {
		t.Errorf("riskScore = %d, want 80", result.Summary.RiskScore)
	}
	if len(result.Issues) != 1 || result.Issues[0].Title != "Hardcoded secret" {
		t.Errorf("unexpected issues: %+v", result.Issues)
	}
	if len(result.BestPractices) != 2 {
		t.Errorf("bestPractices = %v", result.BestPractices)
	}
}

func TestParseResponseHopeless(t *testing.T) {
	if _, err := parseResponse("I cannot analyze this file, sorry."); err == nil {
		t.Fatal("expected an error for a response with nothing to salvage")
	}
}

func TestNormalizeSeverity(t *testing.T) {
	cases := map[string]string{
		"HIGH":     "high",
		" Medium ": "medium",
		"low":      "low",
		"critical": "critical", // unknown kept verbatim, dropped from counts later
	}
	for in, want := range cases {
		if got := normalizeSeverity(in); got != want {
			t.Errorf("normalizeSeverity(%q) = %q, want %q", in, got, want)
		}
	}
}
