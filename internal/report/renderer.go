package report

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Renderer serializes a History to bytes.
type Renderer interface {
	Render(h *History) ([]byte, error)
}

// JSONRenderer renders a History as indented JSON.
type JSONRenderer struct{}

func (r *JSONRenderer) Render(h *History) ([]byte, error) {
	return json.MarshalIndent(h, "", "  ")
}

const (
	versionSentinel = "<!-- timeslice-report-version: 1 -->"
	dataPrefix      = "<!-- timeslice-data: "
	dataSuffix      = " -->"
)

// MarkdownRenderer renders a History as human-readable Markdown with an
// embedded base64 JSON payload for lossless round-trip parsing.
type MarkdownRenderer struct{}

func (r *MarkdownRenderer) Render(h *History) ([]byte, error) {
	jsonBytes, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("marshal history: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(jsonBytes)

	var sb strings.Builder
	sb.WriteString(versionSentinel + "\n")
	fmt.Fprintf(&sb, "%s%s%s\n\n", dataPrefix, encoded, dataSuffix)

	fmt.Fprintf(&sb, "# Time report, last %d days (%s)\n\n", h.Meta.Days, h.Meta.Generated.Format("2006-01-02 15:04"))

	// ## Summary
	sb.WriteString("## Summary\n\n")
	fmt.Fprintf(&sb, "- Tracked: %s\n", FormatMinutes(h.Meta.TotalMinutes))
	fmt.Fprintf(&sb, "- Logged: %s\n", FormatMinutes(h.Meta.LoggedMinutes))
	fmt.Fprintf(&sb, "- Sessions needing attention: %d\n", h.Meta.Pending)
	if h.Meta.Author != "" {
		fmt.Fprintf(&sb, "- Author: %s\n", h.Meta.Author)
	}
	sb.WriteString("\n")

	// ## By Issue
	sb.WriteString("## By Issue\n\n")
	if len(h.Totals) == 0 {
		sb.WriteString("_No sessions recorded._\n")
	} else {
		sb.WriteString("| Issue | Time | Sessions |\n")
		sb.WriteString("|-------|------|----------|\n")
		for _, t := range h.Totals {
			fmt.Fprintf(&sb, "| %s | %s | %d |\n", t.Issue, FormatMinutes(t.Minutes), t.Sessions)
		}
	}
	sb.WriteString("\n")

	// ## Sessions
	sb.WriteString("## Sessions\n\n")
	if len(h.Entries) == 0 {
		sb.WriteString("_No sessions recorded._\n")
	} else {
		sb.WriteString("| Start | Time | Issue | Activity | Confidence | Status |\n")
		sb.WriteString("|-------|------|-------|----------|------------|--------|\n")
		for _, e := range h.Entries {
			issue := e.Issue
			if issue == "" {
				issue = "-"
			}
			status := e.Status
			if e.Reason != "" {
				status += " (" + e.Reason + ")"
			}
			fmt.Fprintf(&sb, "| %s | %s | %s | %s | %d%% | %s |\n",
				e.Start.Local().Format("2006-01-02 15:04"),
				FormatMinutes(e.Minutes),
				issue,
				e.Activity,
				e.Confidence,
				escapeCell(status),
			)
		}
	}
	sb.WriteString("\n")

	return []byte(sb.String()), nil
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
