package report

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Parser deserializes a rendered report back into a History.
type Parser interface {
	Parse(data []byte) (*History, error)
}

// JSONParser parses a JSON-encoded History.
type JSONParser struct{}

func (p *JSONParser) Parse(data []byte) (*History, error) {
	var h History
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("failed to parse JSON report: %w", err)
	}
	return &h, nil
}

// MarkdownParser extracts the History embedded in a Markdown report.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(data []byte) (*History, error) {
	content := string(data)

	if !strings.Contains(content, versionSentinel) {
		return nil, fmt.Errorf("not a valid timeslice report: missing version sentinel")
	}

	start := strings.Index(content, dataPrefix)
	if start == -1 {
		return nil, fmt.Errorf("not a valid timeslice report: missing data payload")
	}
	start += len(dataPrefix)
	end := strings.Index(content[start:], dataSuffix)
	if end == -1 {
		return nil, fmt.Errorf("not a valid timeslice report: malformed data payload")
	}

	jsonBytes, err := base64.StdEncoding.DecodeString(content[start : start+end])
	if err != nil {
		return nil, fmt.Errorf("not a valid timeslice report: corrupted base64 payload: %w", err)
	}
	var h History
	if err := json.Unmarshal(jsonBytes, &h); err != nil {
		return nil, fmt.Errorf("not a valid timeslice report: failed to parse embedded JSON: %w", err)
	}
	return &h, nil
}

// ParserFor picks a parser from a file name.
func ParserFor(name string) Parser {
	if strings.HasSuffix(strings.ToLower(name), ".json") {
		return &JSONParser{}
	}
	return &MarkdownParser{}
}

// RendererFor picks a renderer and file extension for a format name.
func RendererFor(format string) (Renderer, string) {
	if format == "json" {
		return &JSONRenderer{}, ".json"
	}
	return &MarkdownRenderer{}, ".md"
}
