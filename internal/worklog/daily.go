package worklog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	"github.com/fakeyudi/timeslice/internal/session"
)

// Daily block types.
const (
	BlockMeeting     = "meeting"
	BlockDevelopment = "development"
	BlockReview      = "review"
	BlockPlanning    = "planning"
	BlockDebugging   = "debugging"
	BlockTesting     = "testing"
	BlockOther       = "other"
)

// DailyBlock is one structured entry of a day's notes.
type DailyBlock struct {
	Start              string `json:"start,omitempty"` // HH:MM local
	End                string `json:"end,omitempty"`
	Minutes            int    `json:"minutes"`
	Type               string `json:"type"`
	IssueKey           string `json:"issueKey,omitempty"`
	Description        string `json:"description,omitempty"`
	WorkAttribute      string `json:"workAttribute,omitempty"`
	TechnologyTimeType string `json:"technologyTimeType,omitempty"`
}

// DailyDay is a day of blocks to log in one go.
type DailyDay struct {
	Date   string       `json:"date"` // YYYY-MM-DD
	Blocks []DailyBlock `json:"blocks"`
}

const dailySchema = `{
  "type": "object",
  "required": ["date", "blocks"],
  "properties": {
    "date": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"},
    "blocks": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["minutes", "type"],
        "properties": {
          "start": {"type": "string", "pattern": "^[0-9]{1,2}:[0-9]{2}$"},
          "end": {"type": "string", "pattern": "^[0-9]{1,2}:[0-9]{2}$"},
          "minutes": {"type": "integer", "minimum": 0},
          "type": {"enum": ["meeting", "development", "review", "planning", "debugging", "testing", "other"]},
          "issueKey": {"type": "string"},
          "description": {"type": "string"},
          "workAttribute": {"type": "string"},
          "technologyTimeType": {"type": "string"}
        }
      }
    }
  }
}`

// SchemaError lists every violation found in a daily document.
type SchemaError struct {
	Errors []string
}

func (e *SchemaError) Error() string {
	return "invalid daily blocks: " + strings.Join(e.Errors, "; ")
}

// ParseDay validates raw JSON against the daily block schema and decodes it.
func ParseDay(raw []byte) (DailyDay, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(dailySchema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return DailyDay{}, fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		var msgs []string
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return DailyDay{}, &SchemaError{Errors: msgs}
	}
	var day DailyDay
	if err := json.Unmarshal(raw, &day); err != nil {
		return DailyDay{}, fmt.Errorf("decoding daily blocks: %w", err)
	}
	return day, nil
}

// BlockResult is the outcome for one block.
type BlockResult struct {
	Block     DailyBlock `json:"block"`
	Status    string     `json:"status"` // logged, dry-run, skipped or error
	Reason    string     `json:"reason,omitempty"`
	WorklogID string     `json:"worklogId,omitempty"`
}

// DayResult is the outcome of LogDailyBlocks.
type DayResult struct {
	Date    string        `json:"date"`
	Results []BlockResult `json:"results"`
}

// LogDailyBlocks submits every block of day as its own worklog. Blocks
// shorter than a minute are ignored; blocks without an issue are skipped
// unless they are meetings, which go to the default meeting issue.
func (l *Logger) LogDailyBlocks(ctx context.Context, day DailyDay) DayResult {
	out := DayResult{Date: day.Date}
	for _, b := range day.Blocks {
		if b.Minutes < 1 {
			continue
		}
		key := b.IssueKey
		if key == "" && b.Type == BlockMeeting {
			key = l.opts.DefaultMeetingIssue
		}
		if key == "" {
			out.Results = append(out.Results, BlockResult{Block: b, Status: "skipped", Reason: "no-issue"})
			continue
		}

		s, err := blockSession(day.Date, b, key)
		if err != nil {
			out.Results = append(out.Results, BlockResult{Block: b, Status: "error", Reason: err.Error()})
			continue
		}
		res, err := l.LogTime(ctx, s)
		switch {
		case err != nil:
			out.Results = append(out.Results, BlockResult{Block: b, Status: "error", Reason: err.Error()})
		case res.DryRun:
			out.Results = append(out.Results, BlockResult{Block: b, Status: "dry-run", WorklogID: res.WorklogID})
		default:
			out.Results = append(out.Results, BlockResult{Block: b, Status: "logged", WorklogID: s.LoggedWorklogID})
		}
	}
	return out
}

// blockSession builds the synthetic session that carries a block through
// the regular submission path.
func blockSession(date string, b DailyBlock, key string) (*session.Session, error) {
	start := b.Start
	if start == "" {
		start = "09:00"
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", date+" "+start, time.Local)
	if err != nil {
		return nil, fmt.Errorf("block start %q on %s: %w", start, date, err)
	}
	dur := time.Duration(b.Minutes) * time.Minute
	end := t.Add(dur)
	return &session.Session{
		ID:                fmt.Sprintf("daily_%s_%s_%s_%s", date, start, key, uuid.NewString()[:6]),
		StartTime:         t,
		EndTime:           &end,
		Duration:          dur,
		DetectedIssue:     key,
		Confidence:        100,
		LastActivity:      end,
		LogStatus:         session.StatusUnlogged,
		ForceMeeting:      b.Type == BlockMeeting,
		CustomDescription: fmt.Sprintf("[DailyNotes:%s] %s", b.Type, b.Description),
		CustomAttributes:  BlockAttributes(b),
	}, nil
}
