// Package normalize turns heterogeneous backend payloads into
// transcript-ready text plus citations. The backend answers either with a
// plain shape (a direct answer field and optional source id list) or a
// structured shape (summary + QA artifacts + sources); both collapse into
// the same Result.
package normalize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Placeholder is rendered whenever normalization produces no text at all;
// a transcript turn is never literally empty.
const Placeholder = "—"

type Citation struct {
	Ref   string
	Score float64
}

type Result struct {
	Text      string
	Citations []Citation
}

// Plain answer fields, checked in priority order. The backend used all
// three names across versions of its API.
var plainAnswerFields = []string{"answer", "text", "content"}

var newlineRunRe = regexp.MustCompile(`\n{3,}`)

// CleanText trims and collapses runs of three or more newlines down to a
// single blank line. Generator previews go through the same rule.
func CleanText(s string) string {
	return strings.TrimSpace(newlineRunRe.ReplaceAllString(s, "\n\n"))
}

// Normalize shapes a raw response body. It never fails: unrecognized or
// malformed payloads degrade to the placeholder text with no citations.
func Normalize(payload []byte) Result {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return Result{Text: Placeholder}
	}
	if isStructured(fields) {
		return normalizeStructured(payload)
	}
	return normalizePlain(fields)
}

// isStructured is a heuristic, not a schema check: an object carrying any
// of summary/artifacts/sources is treated as the structured shape. A plain
// payload that happens to include a sources field is misclassified on
// purpose; keeping the rule in one place keeps that risk visible.
func isStructured(fields map[string]json.RawMessage) bool {
	for _, key := range []string{"summary", "artifacts", "sources"} {
		if _, ok := fields[key]; ok {
			return true
		}
	}
	return false
}

func normalizePlain(fields map[string]json.RawMessage) Result {
	text := ""
	for _, key := range plainAnswerFields {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			continue
		}
		if strings.TrimSpace(s) != "" {
			text = s
			break
		}
	}

	var citations []Citation
	for _, key := range []string{"kendra_sources", "citations"} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var ids []string
		if err := json.Unmarshal(raw, &ids); err != nil {
			continue
		}
		for _, id := range ids {
			citations = append(citations, Citation{Ref: id})
		}
		break
	}

	text = CleanText(text)
	if text == "" {
		text = Placeholder
	}
	return Result{Text: text, Citations: citations}
}

type structuredPayload struct {
	Summary   string            `json:"summary"`
	Artifacts artifactBundle    `json:"artifacts"`
	Sources   []json.RawMessage `json:"sources"`
}

type artifactBundle struct {
	TestCases           []testCase `json:"test_cases"`
	AcceptanceCriteria  []string   `json:"acceptance_criteria"`
	ValidationChecklist []string   `json:"validation_checklist"`
	Risks               []string   `json:"risks"`
	OpenQuestions       []string   `json:"open_questions"`
}

type testCase struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Type           string   `json:"type"`
	Steps          []string `json:"steps"`
	ExpectedResult string   `json:"expected_result"`
	Tags           []string `json:"tags"`
	Traceability   []string `json:"traceability"`
}

type sourceEntry struct {
	Title string  `json:"title"`
	URL   string  `json:"url"`
	Score float64 `json:"score"`
}

func normalizeStructured(payload []byte) Result {
	var sp structuredPayload
	if err := json.Unmarshal(payload, &sp); err != nil {
		return Result{Text: Placeholder}
	}

	var sections []string
	if s := strings.TrimSpace(sp.Summary); s != "" {
		sections = append(sections, "Summary\n"+s)
	}
	if len(sp.Artifacts.TestCases) > 0 {
		sections = append(sections, renderTestCases(sp.Artifacts.TestCases))
	}
	if block := renderList("Acceptance Criteria", sp.Artifacts.AcceptanceCriteria); block != "" {
		sections = append(sections, block)
	}
	if block := renderList("Validation Checklist", sp.Artifacts.ValidationChecklist); block != "" {
		sections = append(sections, block)
	}
	if block := renderList("Risks", sp.Artifacts.Risks); block != "" {
		sections = append(sections, block)
	}
	if block := renderList("Open Questions", sp.Artifacts.OpenQuestions); block != "" {
		sections = append(sections, block)
	}

	text := CleanText(strings.Join(sections, "\n\n"))
	if text == "" {
		text = Placeholder
	}
	return Result{Text: text, Citations: structuredCitations(sp.Sources)}
}

func renderTestCases(cases []testCase) string {
	var b strings.Builder
	b.WriteString("Test Cases")
	for i, tc := range cases {
		fmt.Fprintf(&b, "\n%d. [%s] %s (%s)", i+1, orPlaceholder(tc.ID), orPlaceholder(tc.Title), orPlaceholder(tc.Type))
		for j, step := range tc.Steps {
			fmt.Fprintf(&b, "\n   %d) %s", j+1, step)
		}
		fmt.Fprintf(&b, "\n   Expected: %s", orPlaceholder(tc.ExpectedResult))
		fmt.Fprintf(&b, "\n   Tags: %s", joinOrPlaceholder(tc.Tags))
		fmt.Fprintf(&b, "\n   Traceability: %s", joinOrPlaceholder(tc.Traceability))
	}
	return b.String()
}

func renderList(label string, items []string) string {
	var kept []string
	for _, item := range items {
		if strings.TrimSpace(item) != "" {
			kept = append(kept, item)
		}
	}
	if len(kept) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(label)
	for _, item := range kept {
		b.WriteString("\n- ")
		b.WriteString(item)
	}
	return b.String()
}

// structuredCitations keeps source order and does not deduplicate. Each
// source contributes its URL when present, else its title, else a
// placeholder label. Sources may also arrive as bare strings.
func structuredCitations(sources []json.RawMessage) []Citation {
	var citations []Citation
	for _, raw := range sources {
		var id string
		if err := json.Unmarshal(raw, &id); err == nil {
			citations = append(citations, Citation{Ref: orPlaceholder(id)})
			continue
		}
		var src sourceEntry
		if err := json.Unmarshal(raw, &src); err != nil {
			citations = append(citations, Citation{Ref: Placeholder})
			continue
		}
		ref := strings.TrimSpace(src.URL)
		if ref == "" {
			ref = strings.TrimSpace(src.Title)
		}
		if ref == "" {
			ref = Placeholder
		}
		citations = append(citations, Citation{Ref: ref, Score: src.Score})
	}
	return citations
}

func orPlaceholder(s string) string {
	if strings.TrimSpace(s) == "" {
		return Placeholder
	}
	return s
}

func joinOrPlaceholder(items []string) string {
	var kept []string
	for _, item := range items {
		if strings.TrimSpace(item) != "" {
			kept = append(kept, item)
		}
	}
	if len(kept) == 0 {
		return Placeholder
	}
	return strings.Join(kept, ", ")
}
