package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"testpilot-backend/internal/types"
)

const (
	DefaultTestCaseTitle = "Default Test Case"
	parseFailureSummary  = "Could not parse response"
)

// Fence grammar: an optional opening fence with an optional language tag at the very
// start, and an optional closing fence at the very end. Either may appear alone.
var (
	openingFence = regexp.MustCompile("^```[A-Za-z0-9_+#.-]*[ \t]*(?:\r?\n)?")
	closingFence = regexp.MustCompile("(?:\r?\n)?[ \t]*```[ \t]*$")
)

// StripFences removes a leading and/or trailing code fence and surrounding
// whitespace. Text without fences is only trimmed.
func StripFences(text string) string {
	s := strings.TrimSpace(text)
	s = openingFence.ReplaceAllString(s, "")
	s = closingFence.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// MalformedResponseError records why a suggestion completion was replaced by the
// fallback proposal. It is informational; callers still get a usable result.
type MalformedResponseError struct {
	FilePath string
	Reason   string
	Err      error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed response for %s: %s: %v", e.FilePath, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed response for %s: %s", e.FilePath, e.Reason)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

type proposalRecord struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// ParseProposals turns a suggestion completion into proposals for filePath.
//
// The fence-stripped text must be a JSON array; elements that are not objects with a
// non-empty string title are dropped. If nothing usable remains, a single
// "Default Test Case" proposal is returned together with a *MalformedResponseError.
// The returned slice is never empty and every FilePath equals filePath.
func ParseProposals(text, filePath string) ([]types.TestCaseProposal, error) {
	body := StripFences(text)
	if !json.Valid([]byte(body)) {
		if first, ok := firstValue(body); ok {
			body = string(first)
		}
	}
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		reason := "invalid JSON"
		if json.Valid([]byte(body)) {
			reason = "not a JSON array"
		}
		return fallbackProposals(filePath, reason, err)
	}
	if len(raw) == 0 {
		return fallbackProposals(filePath, "empty array", nil)
	}
	out := make([]types.TestCaseProposal, 0, len(raw))
	for _, item := range raw {
		var rec proposalRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			continue
		}
		title := strings.TrimSpace(rec.Title)
		if title == "" {
			continue
		}
		out = append(out, types.TestCaseProposal{
			Title:    title,
			Summary:  strings.TrimSpace(rec.Summary),
			FilePath: filePath,
		})
	}
	if len(out) == 0 {
		return fallbackProposals(filePath, "no valid records", nil)
	}
	return out, nil
}

// firstValue salvages the first JSON array or object embedded in surrounding prose.
// Only the value opened by the first '[' or '{' is considered, so an object wrapped
// in prose still reaches the non-array fallback.
func firstValue(s string) (json.RawMessage, bool) {
	start := strings.IndexAny(s, "[{")
	if start < 0 {
		return nil, false
	}
	var v json.RawMessage
	if err := json.NewDecoder(strings.NewReader(s[start:])).Decode(&v); err != nil {
		return nil, false
	}
	return v, true
}

func fallbackProposals(filePath, reason string, err error) ([]types.TestCaseProposal, error) {
	malformedResponses.WithLabelValues(reason).Inc()
	return []types.TestCaseProposal{{
		Title:    DefaultTestCaseTitle,
		Summary:  parseFailureSummary + ": " + reason,
		FilePath: filePath,
	}}, &MalformedResponseError{FilePath: filePath, Reason: reason, Err: err}
}
