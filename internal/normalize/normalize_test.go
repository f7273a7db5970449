package normalize

import (
	"strings"
	"testing"
)

func TestNormalize_PlainAnswerCollapsesNewlines(t *testing.T) {
	got := Normalize([]byte(`{"answer":"hi\n\n\n\nthere"}`))
	if got.Text != "hi\n\nthere" {
		t.Fatalf("text = %q, want %q", got.Text, "hi\n\nthere")
	}
	if len(got.Citations) != 0 {
		t.Fatalf("citations = %v, want none", got.Citations)
	}
}

func TestNormalize_PlainFieldPriority(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    string
	}{
		{name: "answer_wins", payload: `{"answer":"A","text":"B","content":"C"}`, want: "A"},
		{name: "text_when_answer_empty", payload: `{"answer":"","text":"B"}`, want: "B"},
		{name: "content_last", payload: `{"content":"C"}`, want: "C"},
		{name: "non_string_answer_skipped", payload: `{"answer":42,"text":"B"}`, want: "B"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Normalize([]byte(tc.payload)); got.Text != tc.want {
				t.Fatalf("text = %q, want %q", got.Text, tc.want)
			}
		})
	}
}

func TestNormalize_PlainCitations(t *testing.T) {
	got := Normalize([]byte(`{"answer":"ok","kendra_sources":["s3://kb/a.md","s3://kb/b.md"]}`))
	if len(got.Citations) != 2 {
		t.Fatalf("citations = %v, want 2", got.Citations)
	}
	if got.Citations[0].Ref != "s3://kb/a.md" || got.Citations[1].Ref != "s3://kb/b.md" {
		t.Fatalf("citation refs = %v", got.Citations)
	}
}

func TestNormalize_StructuredSectionOrder(t *testing.T) {
	got := Normalize([]byte(`{"summary":"S","artifacts":{"acceptance_criteria":["A1"]}}`))
	si := strings.Index(got.Text, "Summary")
	ai := strings.Index(got.Text, "Acceptance Criteria")
	if si < 0 || ai < 0 {
		t.Fatalf("missing sections in: %q", got.Text)
	}
	if si > ai {
		t.Fatalf("Summary should come before Acceptance Criteria: %q", got.Text)
	}
	if !strings.Contains(got.Text, "S") || !strings.Contains(got.Text, "A1") {
		t.Fatalf("section bodies missing: %q", got.Text)
	}
}

func TestNormalize_StructuredFullBundle(t *testing.T) {
	payload := `{
		"summary": "Release readiness for login flow",
		"artifacts": {
			"test_cases": [{
				"id": "TC-001",
				"title": "Valid login",
				"type": "functional",
				"steps": ["open page", "enter credentials", "submit"],
				"expected_result": "user lands on dashboard",
				"tags": ["UI"],
				"traceability": []
			}],
			"acceptance_criteria": ["AC-1: session cookie set"],
			"validation_checklist": ["TLS enforced"],
			"risks": ["lockout policy untested"],
			"open_questions": ["SSO in scope?"]
		},
		"sources": [{"title":"Login KB","url":"https://kb/login"},{"title":"Untitled doc"}]
	}`
	got := Normalize([]byte(payload))

	order := []string{"Summary", "Test Cases", "Acceptance Criteria", "Validation Checklist", "Risks", "Open Questions"}
	last := -1
	for _, label := range order {
		i := strings.Index(got.Text, label)
		if i < 0 {
			t.Fatalf("missing section %q in: %q", label, got.Text)
		}
		if i < last {
			t.Fatalf("section %q out of order in: %q", label, got.Text)
		}
		last = i
	}

	for _, fragment := range []string{"[TC-001] Valid login (functional)", "1) open page", "3) submit", "Expected: user lands on dashboard", "Tags: UI", "Traceability: " + Placeholder} {
		if !strings.Contains(got.Text, fragment) {
			t.Fatalf("missing %q in: %q", fragment, got.Text)
		}
	}

	if len(got.Citations) != 2 {
		t.Fatalf("citations = %v, want 2", got.Citations)
	}
	if got.Citations[0].Ref != "https://kb/login" {
		t.Fatalf("citation[0] = %q, want url", got.Citations[0].Ref)
	}
	if got.Citations[1].Ref != "Untitled doc" {
		t.Fatalf("citation[1] = %q, want title fallback", got.Citations[1].Ref)
	}
}

func TestNormalize_EmptyObjectYieldsPlaceholder(t *testing.T) {
	got := Normalize([]byte(`{}`))
	if got.Text != Placeholder {
		t.Fatalf("text = %q, want placeholder", got.Text)
	}
	if len(got.Citations) != 0 {
		t.Fatalf("citations = %v, want none", got.Citations)
	}
}

func TestNormalize_MalformedPayloadDegrades(t *testing.T) {
	for _, payload := range []string{"not json", `[1,2,3]`, `"just a string"`, ""} {
		got := Normalize([]byte(payload))
		if got.Text != Placeholder {
			t.Fatalf("Normalize(%q).Text = %q, want placeholder", payload, got.Text)
		}
	}
}

func TestNormalize_StructuredStringSources(t *testing.T) {
	got := Normalize([]byte(`{"summary":"S","sources":["doc1","doc2"]}`))
	if len(got.Citations) != 2 || got.Citations[0].Ref != "doc1" {
		t.Fatalf("citations = %v", got.Citations)
	}
}

func TestCleanText(t *testing.T) {
	cases := []struct{ in, want string }{
		{"  a  ", "a"},
		{"a\n\n\nb", "a\n\nb"},
		{"a\n\nb", "a\n\nb"},
		{"a\n\n\n\n\n\nb", "a\n\nb"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := CleanText(tc.in); got != tc.want {
			t.Fatalf("CleanText(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
