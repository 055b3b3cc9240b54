// Package tui provides a Bubble Tea TUI for browsing session history.
package tui

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fakeyudi/timeslice/internal/report"
)

// ── Styles ────────────

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245")).
				Background(lipgloss.Color("235")).
				Padding(0, 1)

	tabSepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238")).
			Background(lipgloss.Color("235"))

	sectionHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	timeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("178"))

	bulletStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205"))

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("245")).
			Padding(0, 1)

	// Log status badges
	loggedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	meetingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)

	barStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("62"))

	selectedRowStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("237"))
)

// ── Tab definitions ─────────────────

type tabID int

const (
	tabSummary tabID = iota
	tabSessions
	tabIssues
	tabDays
	tabCount
)

var tabNames = [tabCount]string{"Summary", "Sessions", "By Issue", "Days"}

type dayTotal struct {
	day      string
	minutes  int
	logged   int
	sessions int
}

// ── Model ────────────────────

// Model is the root Bubble Tea model for the history browser.
type Model struct {
	history   *report.History
	filename  string
	activeTab tabID
	viewports [tabCount]viewport.Model
	width     int
	height    int
	ready     bool
	sortAsc   bool
	days      []dayTotal
	// Sessions tab: cursor position and expanded set
	cursor   int
	expanded map[int]bool
}

// New creates a model for h. filename labels the title bar.
func New(h *report.History, filename string) Model {
	m := Model{
		history:  h,
		filename: filepath.Base(filename),
		expanded: make(map[int]bool),
	}
	m.days = buildDays(h)
	return m
}

// ── Bubble Tea interface ───────────────

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab", "l", "right":
			m.activeTab = (m.activeTab + 1) % tabCount
		case "shift+tab", "h", "left":
			m.activeTab = (m.activeTab - 1 + tabCount) % tabCount
		case "1", "2", "3", "4":
			m.activeTab = tabID(msg.String()[0] - '1')
		case "s":
			if m.activeTab == tabDays {
				m.sortAsc = !m.sortAsc
				m.rebuild(tabDays)
				m.viewports[tabDays].GotoTop()
			}
		case "up", "k":
			if m.activeTab == tabSessions && m.cursor > 0 {
				m.cursor--
				m.rebuild(tabSessions)
				return m, nil
			}
		case "down", "j":
			if m.activeTab == tabSessions && m.cursor < len(m.history.Entries)-1 {
				m.cursor++
				m.rebuild(tabSessions)
				return m, nil
			}
		case "enter", " ":
			if m.activeTab == tabSessions && len(m.history.Entries) > 0 {
				if m.expanded[m.cursor] {
					delete(m.expanded, m.cursor)
				} else {
					m.expanded[m.cursor] = true
				}
				m.rebuild(tabSessions)
				return m, nil
			}
		}
		var cmd tea.Cmd
		m.viewports[m.activeTab], cmd = m.viewports[m.activeTab].Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.initViewports()
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	if !m.ready {
		return "Loading…"
	}

	title := titleStyle.Width(m.width).Render("  timeslice  " + m.filename)

	var tabParts []string
	for i := tabID(0); i < tabCount; i++ {
		label := fmt.Sprintf(" %d %s ", i+1, tabNames[i])
		if i == m.activeTab {
			tabParts = append(tabParts, activeTabStyle.Render(label))
		} else {
			tabParts = append(tabParts, inactiveTabStyle.Render(label))
		}
		if i < tabCount-1 {
			tabParts = append(tabParts, tabSepStyle.Render("│"))
		}
	}
	tabRow := lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Width(m.width).
		Render(lipgloss.JoinHorizontal(lipgloss.Top, tabParts...))

	content := m.viewports[m.activeTab].View()

	hint := "  ←/→ tab  ↑/↓ scroll  1-4 jump  q quit"
	switch m.activeTab {
	case tabDays:
		dir := "newest first"
		if m.sortAsc {
			dir = "oldest first"
		}
		hint += "  s sort (" + dir + ")"
	case tabSessions:
		hint += "  enter details"
	}
	pct := fmt.Sprintf("%3.0f%%", m.viewports[m.activeTab].ScrollPercent()*100)
	pad := m.width - lipgloss.Width(hint) - len(pct) - 2
	if pad < 1 {
		pad = 1
	}
	statusBar := statusBarStyle.Width(m.width).Render(hint + strings.Repeat(" ", pad) + pct)

	return lipgloss.JoinVertical(lipgloss.Left, title, tabRow, content, statusBar)
}

// ── Viewport management ───────────────────────────────────────────────────────

func (m *Model) initViewports() {
	// title, tab row and status bar
	vpHeight := m.height - 3
	if vpHeight < 1 {
		vpHeight = 1
	}
	for i := tabID(0); i < tabCount; i++ {
		vp := viewport.New(m.width, vpHeight)
		vp.SetContent(m.renderTab(i))
		m.viewports[i] = vp
	}
}

func (m *Model) rebuild(t tabID) {
	m.viewports[t].SetContent(m.renderTab(t))
}

// ── Tab renderers ─────────────────────────────────────────────────────────────

func (m *Model) renderTab(t tabID) string {
	switch t {
	case tabSummary:
		return m.renderSummary()
	case tabSessions:
		return m.renderSessions()
	case tabIssues:
		return m.renderIssues()
	case tabDays:
		return m.renderDays()
	}
	return ""
}

func heading(s string) string {
	return "\n" + sectionHeader.Render("  "+s) + "\n\n"
}

func bullet(text string) string {
	return bulletStyle.Render("  •") + "  " + text + "\n"
}

func (m *Model) renderSummary() string {
	meta := m.history.Meta
	var sb strings.Builder
	sb.WriteString(heading(fmt.Sprintf("Last %d days", meta.Days)))

	row := func(label, value string) {
		sb.WriteString(labelStyle.Render(fmt.Sprintf("  %-14s", label)) + "  " + value + "\n")
	}
	row("Generated:", meta.Generated.Local().Format("2006-01-02 15:04:05 MST"))
	if meta.Author != "" {
		row("Author:", meta.Author)
	}
	row("Tracked:", report.FormatMinutes(meta.TotalMinutes))
	row("Logged:", report.FormatMinutes(meta.LoggedMinutes))
	row("Sessions:", fmt.Sprintf("%d", len(m.history.Entries)))
	row("Pending:", fmt.Sprintf("%d", meta.Pending))

	if len(m.history.Totals) > 0 {
		sb.WriteString(heading("Top Issues"))
		for i, t := range m.history.Totals {
			if i == 5 {
				break
			}
			sb.WriteString(bullet(fmt.Sprintf("%-12s %s", t.Issue, report.FormatMinutes(t.Minutes))))
		}
	}
	return sb.String()
}

func statusBadge(e report.Entry) string {
	label := fmt.Sprintf("%-8s", e.Status)
	switch e.Status {
	case "logged":
		return loggedStyle.Render(label)
	case "error":
		return errorStyle.Render(label)
	default:
		return pendingStyle.Render(label)
	}
}

func (m *Model) renderSessions() string {
	var sb strings.Builder
	sb.WriteString(heading(fmt.Sprintf("Sessions (%d)", len(m.history.Entries))))
	if len(m.history.Entries) == 0 {
		sb.WriteString(dimStyle.Render("  (none)") + "\n")
		return sb.String()
	}
	for i, e := range m.history.Entries {
		toggle := dimStyle.Render("  ▶ ")
		if m.expanded[i] {
			toggle = dimStyle.Render("  ▼ ")
		}
		issue := e.Issue
		if issue == "" {
			issue = "-"
		}
		kind := ""
		if e.Meeting {
			kind = "  " + meetingStyle.Render("MEETING")
		}
		ts := timeStyle.Render(e.Start.Local().Format("Mon 01-02 15:04"))
		row := fmt.Sprintf("%s%s  %7s  %s  %-12s%s", toggle, ts, report.FormatMinutes(e.Minutes), statusBadge(e), issue, kind)
		if i == m.cursor {
			row = selectedRowStyle.Width(m.width - 2).Render(row)
		}
		sb.WriteString(row + "\n")

		if m.expanded[i] {
			sb.WriteString(renderDetails(e))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func renderDetails(e report.Entry) string {
	var sb strings.Builder
	row := func(label, value string) {
		if value == "" {
			return
		}
		sb.WriteString(labelStyle.Render(fmt.Sprintf("      %-12s", label)) + "  " + value + "\n")
	}
	row("ID:", e.ID)
	row("Ended:", e.End.Local().Format("15:04:05"))
	row("Activity:", e.Activity)
	row("Confidence:", fmt.Sprintf("%d%%", e.Confidence))
	row("Reason:", e.Reason)
	row("Worklog:", e.WorklogID)
	row("Branch:", e.Branch)
	row("Apps:", strings.Join(e.Apps, ", "))
	return sb.String()
}

func (m *Model) renderIssues() string {
	var sb strings.Builder
	sb.WriteString(heading(fmt.Sprintf("By Issue (%d)", len(m.history.Totals))))
	if len(m.history.Totals) == 0 {
		sb.WriteString(dimStyle.Render("  (none)") + "\n")
		return sb.String()
	}
	top := 0
	for _, t := range m.history.Totals {
		if t.Minutes > top {
			top = t.Minutes
		}
	}
	barWidth := m.width - 40
	if barWidth < 10 {
		barWidth = 10
	}
	for _, t := range m.history.Totals {
		n := 0
		if top > 0 {
			n = t.Minutes * barWidth / top
		}
		sb.WriteString(fmt.Sprintf("  %-14s %8s  %3d  %s\n", t.Issue, report.FormatMinutes(t.Minutes), t.Sessions, barStyle.Render(strings.Repeat("█", n))))
	}
	return sb.String()
}

func (m *Model) renderDays() string {
	var sb strings.Builder

	dir := "newest first"
	if m.sortAsc {
		dir = "oldest first"
	}
	sb.WriteString(heading(fmt.Sprintf("Days (%s)", dir)))

	days := make([]dayTotal, len(m.days))
	copy(days, m.days)
	if m.sortAsc {
		sort.Slice(days, func(i, j int) bool { return days[i].day < days[j].day })
	} else {
		sort.Slice(days, func(i, j int) bool { return days[i].day > days[j].day })
	}

	if len(days) == 0 {
		sb.WriteString(dimStyle.Render("  (no sessions)") + "\n")
		return sb.String()
	}
	for _, d := range days {
		sb.WriteString(fmt.Sprintf("  %s  %8s tracked  %8s logged  %s\n",
			timeStyle.Render(d.day),
			report.FormatMinutes(d.minutes),
			report.FormatMinutes(d.logged),
			dimStyle.Render(fmt.Sprintf("%d sessions", d.sessions)),
		))
	}
	return sb.String()
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func buildDays(h *report.History) []dayTotal {
	byDay := map[string]*dayTotal{}
	for _, e := range h.Entries {
		if e.Start.IsZero() || e.Parent != "" {
			continue
		}
		key := e.Start.Local().Format("2006-01-02")
		d, ok := byDay[key]
		if !ok {
			d = &dayTotal{day: key}
			byDay[key] = d
		}
		d.minutes += e.Minutes
		d.sessions++
		if e.Status == "logged" {
			d.logged += e.Minutes
		}
	}
	out := make([]dayTotal, 0, len(byDay))
	for _, d := range byDay {
		out = append(out, *d)
	}
	return out
}

// Run starts the TUI for h.
func Run(h *report.History, filename string) error {
	p := tea.NewProgram(New(h, filename), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
