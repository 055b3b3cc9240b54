package report_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fakeyudi/timeslice/internal/classify"
	"github.com/fakeyudi/timeslice/internal/report"
	"github.com/fakeyudi/timeslice/internal/session"
)

type stubClassifier struct{ meetings map[string]bool }

func (c stubClassifier) Classify(s *session.Session) classify.Activity {
	if c.meetings[s.ID] {
		return classify.Activity{IsMeeting: true, Description: "Meeting"}
	}
	return classify.Activity{Description: "Development"}
}

func mk(id string, start time.Time, d time.Duration, issue string, st session.LogStatus) *session.Session {
	s := session.New(start)
	s.ID = id
	s.End(start.Add(d))
	s.DetectedIssue = issue
	s.LogStatus = st
	s.Applications.Add("Code")
	return s
}

func TestBuild(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	sessions := []*session.Session{
		mk("a", base, 50*time.Minute, "ABC-1", session.StatusLogged),
		mk("b", base.Add(2*time.Hour), 30*time.Minute, "", session.StatusSkipped),
		mk("c", base.Add(4*time.Hour), 20*time.Minute, "ABC-1", session.StatusUnlogged),
		mk("d", base.Add(5*time.Hour), 45*time.Minute, "ABC-2", session.StatusDryRun),
	}
	sessions[3].LoggedIssueKey = "CON-1"

	h := report.Build(sessions, stubClassifier{meetings: map[string]bool{"d": true}}, base.Add(8*time.Hour), 7, "dev@example.com")

	require.Len(t, h.Entries, 4)
	assert.Equal(t, "d", h.Entries[0].ID, "newest first")
	assert.Equal(t, "a", h.Entries[3].ID)
	assert.Equal(t, "CON-1", h.Entries[0].Issue, "logged key wins over detected key")
	assert.True(t, h.Entries[0].Meeting)
	assert.Equal(t, []string{"Code"}, h.Entries[3].Apps)

	assert.Equal(t, 145, h.Meta.TotalMinutes)
	assert.Equal(t, 50, h.Meta.LoggedMinutes)
	assert.Equal(t, 2, h.Meta.Pending)

	assert.Equal(t, []report.IssueTotal{
		{Issue: "ABC-1", Minutes: 70, Sessions: 2},
		{Issue: "CON-1", Minutes: 45, Sessions: 1},
		{Issue: "(unassigned)", Minutes: 30, Sessions: 1},
	}, h.Totals)
}

func TestBuildEmpty(t *testing.T) {
	h := report.Build(nil, stubClassifier{}, time.Now(), 1, "")
	assert.NotNil(t, h.Entries)
	assert.NotNil(t, h.Totals)

	md, err := (&report.MarkdownRenderer{}).Render(h)
	require.NoError(t, err)
	assert.Contains(t, string(md), "_No sessions recorded._")
}

func TestFormatMinutes(t *testing.T) {
	cases := map[int]string{0: "0m", 42: "42m", 60: "1h 00m", 65: "1h 05m", 605: "10h 05m"}
	for in, want := range cases {
		assert.Equal(t, want, report.FormatMinutes(in), "minutes %d", in)
	}
}

func TestMarkdownEscapesPipes(t *testing.T) {
	h := &report.History{Entries: []report.Entry{{ID: "x", Status: "error", Reason: "a|b"}}}
	md, err := (&report.MarkdownRenderer{}).Render(h)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(md), `error (a\|b)`))
}

func TestPickers(t *testing.T) {
	assert.IsType(t, &report.JSONParser{}, report.ParserFor("out.JSON"))
	assert.IsType(t, &report.MarkdownParser{}, report.ParserFor("out.md"))

	r, ext := report.RendererFor("json")
	assert.IsType(t, &report.JSONRenderer{}, r)
	assert.Equal(t, ".json", ext)
	r, ext = report.RendererFor("markdown")
	assert.IsType(t, &report.MarkdownRenderer{}, r)
	assert.Equal(t, ".md", ext)
}

func TestBuildCountsSlicesOnce(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	parent := mk("p", base, 12*time.Minute, "ABC-1", session.StatusLogged)
	rest := parent.Slice(base.Add(5*time.Minute), base.Add(12*time.Minute))
	rest.LogStatus = session.StatusError

	h := report.Build([]*session.Session{rest, parent}, stubClassifier{}, base.Add(time.Hour), 1, "")

	require.Len(t, h.Entries, 2)
	assert.Equal(t, "p", h.Entries[1].ID)
	assert.Equal(t, "p", h.Entries[0].Parent)
	assert.Equal(t, 12, h.Meta.TotalMinutes)
	assert.Equal(t, 5, h.Meta.LoggedMinutes)
	assert.Equal(t, 1, h.Meta.Pending)
	assert.Equal(t, []report.IssueTotal{{Issue: "ABC-1", Minutes: 12, Sessions: 1}}, h.Totals)
}
