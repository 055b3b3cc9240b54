package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fakeyudi/timeslice/internal/report"
)

func sampleHistory() *report.History {
	d1 := time.Date(2026, 3, 2, 9, 0, 0, 0, time.Local)
	d2 := d1.Add(24 * time.Hour)
	return &report.History{
		Meta: report.Meta{Generated: d2, Days: 7, TotalMinutes: 150, LoggedMinutes: 90},
		Entries: []report.Entry{
			{ID: "s2", Start: d2, End: d2.Add(time.Hour), Minutes: 60, Issue: "ABC-1", Status: "logged", Branch: "feature/x"},
			{ID: "s1", Start: d1, End: d1.Add(90 * time.Minute), Minutes: 90, Status: "skipped", Meeting: true},
		},
		Totals: []report.IssueTotal{{Issue: "(unassigned)", Minutes: 90, Sessions: 1}, {Issue: "ABC-1", Minutes: 60, Sessions: 1}},
	}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func send(m tea.Model, msgs ...tea.Msg) tea.Model {
	for _, msg := range msgs {
		m, _ = m.Update(msg)
	}
	return m
}

func TestViewBeforeSize(t *testing.T) {
	assert.Equal(t, "Loading…", New(sampleHistory(), "h.md").View())
}

func TestTabNavigation(t *testing.T) {
	m := send(New(sampleHistory(), "/tmp/h.md"), tea.WindowSizeMsg{Width: 100, Height: 30})
	view := m.View()
	assert.Contains(t, view, "h.md")
	assert.Contains(t, view, "Last 7 days")

	m = send(m, key("tab"))
	assert.Equal(t, tabSessions, m.(Model).activeTab)

	m = send(m, key("4"))
	assert.Equal(t, tabDays, m.(Model).activeTab)
	assert.Contains(t, m.View(), "newest first")

	m = send(m, key("s"))
	assert.True(t, m.(Model).sortAsc)
}

func TestSessionCursorAndExpand(t *testing.T) {
	m := send(New(sampleHistory(), "h.md"), tea.WindowSizeMsg{Width: 100, Height: 40}, key("2"))

	m = send(m, key("down"), key("down"))
	assert.Equal(t, 1, m.(Model).cursor, "cursor stops at the last entry")

	m = send(m, key("enter"))
	assert.True(t, m.(Model).expanded[1])

	m = send(m, key("k"), key("enter"))
	mm := m.(Model)
	require.True(t, mm.expanded[0])
	assert.Contains(t, mm.renderSessions(), "feature/x")
}

func TestBuildDays(t *testing.T) {
	days := buildDays(sampleHistory())
	require.Len(t, days, 2)
	total := 0
	logged := 0
	for _, d := range days {
		total += d.minutes
		logged += d.logged
	}
	assert.Equal(t, 150, total)
	assert.Equal(t, 60, logged)
}

func TestEmptyHistory(t *testing.T) {
	m := New(&report.History{}, "empty.json")
	for tab := tabID(0); tab < tabCount; tab++ {
		out := m.renderTab(tab)
		if tab != tabSummary {
			assert.True(t, strings.Contains(out, "(none)") || strings.Contains(out, "(no sessions)"), "tab %d", tab)
		}
	}
}
