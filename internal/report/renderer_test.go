package report_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/fakeyudi/timeslice/internal/report"
)

// generateTime produces a time truncated to second precision, which
// survives a JSON round-trip unchanged.
func generateTime(t *rapid.T, label string) time.Time {
	sec := rapid.Int64Range(1_000_000_000, 1_900_000_000).Draw(t, label+"_unix_sec")
	return time.Unix(sec, 0).UTC()
}

func generateHistory(t *rapid.T) *report.History {
	h := &report.History{
		Meta: report.Meta{
			Generated:     generateTime(t, "generated"),
			Days:          rapid.IntRange(1, 90).Draw(t, "days"),
			Author:        rapid.StringN(0, 30, -1).Draw(t, "author"),
			TotalMinutes:  rapid.IntRange(0, 10_000).Draw(t, "total"),
			LoggedMinutes: rapid.IntRange(0, 10_000).Draw(t, "logged"),
			Pending:       rapid.IntRange(0, 50).Draw(t, "pending"),
		},
	}

	n := rapid.IntRange(1, 6).Draw(t, "num_entries")
	for i := 0; i < n; i++ {
		start := generateTime(t, "start")
		h.Entries = append(h.Entries, report.Entry{
			ID:         rapid.StringN(1, 40, -1).Draw(t, "id"),
			Start:      start,
			End:        start.Add(time.Duration(rapid.IntRange(0, 600).Draw(t, "mins")) * time.Minute),
			Minutes:    rapid.IntRange(0, 600).Draw(t, "minutes"),
			Issue:      rapid.StringMatching(`([A-Z]{2,5}-[0-9]{1,4})?`).Draw(t, "issue"),
			Activity:   rapid.SampledFrom([]string{"Development", "Meeting", "Code review"}).Draw(t, "activity"),
			Meeting:    rapid.Bool().Draw(t, "meeting"),
			Confidence: rapid.IntRange(0, 100).Draw(t, "confidence"),
			Status:     rapid.SampledFrom([]string{"unlogged", "logged", "skipped", "error", "dry_run"}).Draw(t, "status"),
			Reason:     rapid.StringN(0, 30, -1).Draw(t, "reason"),
			WorklogID:  rapid.StringMatching(`[0-9]{0,6}`).Draw(t, "worklog"),
			Apps:       rapid.SliceOfN(rapid.StringN(1, 20, -1), 0, 3).Draw(t, "apps"),
			Branch:     rapid.StringN(0, 30, -1).Draw(t, "branch"),
		})
	}

	m := rapid.IntRange(1, 4).Draw(t, "num_totals")
	for i := 0; i < m; i++ {
		h.Totals = append(h.Totals, report.IssueTotal{
			Issue:    rapid.StringN(1, 20, -1).Draw(t, "total_issue"),
			Minutes:  rapid.IntRange(0, 10_000).Draw(t, "total_minutes"),
			Sessions: rapid.IntRange(1, 100).Draw(t, "total_sessions"),
		})
	}
	return h
}

// canonical compares histories by their JSON encoding so nil and empty
// optional slices are treated alike.
func canonical(t *rapid.T, h *report.History) string {
	b, err := json.Marshal(h)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

// Every rendered report carries all of its sections.
func TestReportCompleteness(t *testing.T) {
	md := &report.MarkdownRenderer{}
	js := &report.JSONRenderer{}

	rapid.Check(t, func(t *rapid.T) {
		h := generateHistory(t)

		mdBytes, err := md.Render(h)
		if err != nil {
			t.Fatalf("MarkdownRenderer.Render: %v", err)
		}
		for _, section := range []string{"## Summary", "## By Issue", "## Sessions"} {
			if !strings.Contains(string(mdBytes), section) {
				t.Errorf("Markdown output missing section %q", section)
			}
		}

		jsBytes, err := js.Render(h)
		if err != nil {
			t.Fatalf("JSONRenderer.Render: %v", err)
		}
		for _, key := range []string{`"meta"`, `"entries"`, `"totals"`} {
			if !strings.Contains(string(jsBytes), key) {
				t.Errorf("JSON output missing key %q", key)
			}
		}
	})
}

// JSON reports parse back to the same history.
func TestJSONReportRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		original := generateHistory(t)
		data, err := (&report.JSONRenderer{}).Render(original)
		if err != nil {
			t.Fatalf("JSONRenderer.Render: %v", err)
		}
		got, err := (&report.JSONParser{}).Parse(data)
		if err != nil {
			t.Fatalf("JSONParser.Parse: %v", err)
		}
		if canonical(t, got) != canonical(t, original) {
			t.Errorf("round-trip mismatch:\n got %s\nwant %s", canonical(t, got), canonical(t, original))
		}
	})
}

// Markdown reports parse back to the same history via the embedded payload.
func TestMarkdownReportRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		original := generateHistory(t)
		data, err := (&report.MarkdownRenderer{}).Render(original)
		if err != nil {
			t.Fatalf("MarkdownRenderer.Render: %v", err)
		}
		got, err := (&report.MarkdownParser{}).Parse(data)
		if err != nil {
			t.Fatalf("MarkdownParser.Parse: %v", err)
		}
		if canonical(t, got) != canonical(t, original) {
			t.Errorf("round-trip mismatch:\n got %s\nwant %s", canonical(t, got), canonical(t, original))
		}
	})
}
