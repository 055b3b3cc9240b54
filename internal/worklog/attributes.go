package worklog

import (
	"regexp"

	"github.com/fakeyudi/timeslice/internal/classify"
	"github.com/fakeyudi/timeslice/internal/session"
)

// Attribute keys understood by the time-logging service.
const (
	KeyTimeCategory       = "_TimeCategory_"
	KeyTechnologyTimeType = "_TechnologyTimeType_"
)

// Time categories.
const (
	CategoryExecution = "Execution"
	CategoryMeeting   = "Meeting-Collaboration"
	CategoryDebugging = "Debugging"
)

// Technology time types. Some values contain spaces; they are the exact
// strings the remote list accepts.
const (
	TechWritingCode         = "Capitalizable_Writing_Code"
	TechTechnicalDiscussion = "Capitalizable_Technical Discussion"
	TechDailyStandup        = "Capitalizable_DailyStandup"
	TechSprintPlanning      = "Capitalizable_Sprint_Planning"
	TechCodeReview          = "Capitalizable_Code_Review"
	TechTestCaseReview      = "Capitalizable_Test_Case_Review_meet"
	TechSprintDemo          = "Capitalizable_Sprint_Demo"
	TechSprintRetro         = "Capitalizable_Sprint_Retro"
	TechBrainstorming       = "Capitalizable _Brainstorming"
	TechDebuggingCode       = "Capitalizable_Debugging _Code"
	TechWritingTestCases    = "Capitalizable_Writing_Test_Cases"
	TechExecuteTestCases    = "Capitalizable_Execute_Test_Cases"
	TechQAAutomation        = "Capitalizable_Write_QA_Automation_Code"
)

var meetingTech = map[string]string{
	"general":          TechTechnicalDiscussion,
	"standup":          TechDailyStandup,
	"sprint-planning":  TechSprintPlanning,
	"code-review":      TechCodeReview,
	"test-case-review": TechTestCaseReview,
	"sprint-demo":      TechSprintDemo,
	"sprint-retro":     TechSprintRetro,
	"brainstorming":    TechBrainstorming,
}

// Testing variants, selectable from daily blocks.
var testingTech = map[string]string{
	"writing":    TechWritingTestCases,
	"executing":  TechExecuteTestCases,
	"automation": TechQAAutomation,
}

// techSynonyms maps alternate spellings some Tempo instances report to
// the canonical value.
var techSynonyms = map[string]string{
	"CapitalizableWritingCode":         TechWritingCode,
	"CapitalizableTechnicalDiscussion": TechTechnicalDiscussion,
	"CapitalizableDailyStandup":        TechDailyStandup,
	"CapitalizableSprintPlanning":      TechSprintPlanning,
	"CapitalizableSprintDemo":          TechSprintDemo,
	"CapitalizableSprintRetro":         TechSprintRetro,
	"CapitalizableCodeReview":          TechCodeReview,
	"CapitalizableDebuggingCode":       TechDebuggingCode,
	"CapitalizableWritingTestCases":    TechWritingTestCases,
	"CapitalizableExecuteTestCases":    TechExecuteTestCases,
}

// Attributes derives the work attributes for a classified session.
// Meetings use the sub-type specific technology type, falling back to a
// general technical discussion; everything else is development.
func Attributes(a classify.Activity) []session.Attribute {
	if a.IsMeeting {
		tech, ok := meetingTech[a.MeetingType]
		if !ok {
			tech = meetingTech["general"]
		}
		return []session.Attribute{
			{Key: KeyTimeCategory, Value: CategoryMeeting},
			{Key: KeyTechnologyTimeType, Value: tech},
		}
	}
	return []session.Attribute{
		{Key: KeyTimeCategory, Value: CategoryExecution},
		{Key: KeyTechnologyTimeType, Value: TechWritingCode},
	}
}

// Normalize returns a copy of attrs with technology time types mapped to
// their canonical spelling.
func Normalize(attrs []session.Attribute) []session.Attribute {
	out := make([]session.Attribute, len(attrs))
	for i, a := range attrs {
		if a.Key == KeyTechnologyTimeType {
			if canon, ok := techSynonyms[a.Value]; ok {
				a.Value = canon
			}
		}
		out[i] = a
	}
	return out
}

// categoryOnly keeps the time category, the one attribute the remote
// requires.
func categoryOnly(attrs []session.Attribute) []session.Attribute {
	var out []session.Attribute
	for _, a := range attrs {
		if a.Key == KeyTimeCategory {
			out = append(out, a)
		}
	}
	return out
}

type blockDefault struct {
	category string
	tech     string
}

var blockDefaults = map[string]blockDefault{
	BlockMeeting:     {CategoryMeeting, TechTechnicalDiscussion},
	BlockDevelopment: {CategoryExecution, TechWritingCode},
	BlockReview:      {CategoryExecution, TechCodeReview},
	BlockPlanning:    {CategoryMeeting, TechSprintPlanning},
	BlockDebugging:   {CategoryDebugging, TechDebuggingCode},
	BlockTesting:     {CategoryExecution, TechExecuteTestCases},
}

var meetingOverrides = []struct {
	re   *regexp.Regexp
	tech string
}{
	{regexp.MustCompile(`(?i)stand ?up|daily scrum`), TechDailyStandup},
	{regexp.MustCompile(`(?i)retro|retrospective`), TechSprintRetro},
	{regexp.MustCompile(`(?i)planning|groom|refine|refinement`), TechSprintPlanning},
	{regexp.MustCompile(`(?i)demo|show ?case`), TechSprintDemo},
}

var (
	testWriteRe = regexp.MustCompile(`(?i)write|create|spec`)
	testRunRe   = regexp.MustCompile(`(?i)run|execute|verify|regression`)
)

// BlockAttributes returns the attributes of a daily block. Explicit
// workAttribute / technologyTimeType values win; missing ones come from
// the block type, refined by the description for meetings and testing.
// Blocks of type "other" without explicit values get no attributes, so
// the worklog falls back to the classifier's mapping.
func BlockAttributes(b DailyBlock) []session.Attribute {
	def := blockDefaults[b.Type]
	category := b.WorkAttribute
	if category == "" {
		category = def.category
	}
	tech := b.TechnologyTimeType
	if v, ok := testingTech[tech]; ok {
		tech = v
	}
	if tech == "" {
		tech = def.tech
		switch {
		case b.Type == BlockMeeting && b.Description != "":
			for _, o := range meetingOverrides {
				if o.re.MatchString(b.Description) {
					tech = o.tech
					break
				}
			}
		case b.Type == BlockTesting && b.Description != "":
			if testWriteRe.MatchString(b.Description) {
				tech = TechWritingTestCases
			} else if testRunRe.MatchString(b.Description) {
				tech = TechExecuteTestCases
			}
		}
	}

	var attrs []session.Attribute
	if category != "" {
		attrs = append(attrs, session.Attribute{Key: KeyTimeCategory, Value: category})
	}
	if tech != "" {
		attrs = append(attrs, session.Attribute{Key: KeyTechnologyTimeType, Value: tech})
	}
	return attrs
}
