package collector

import "strings"

// WorkApps are applications whose presence marks a snapshot as work.
var WorkApps = []string{
	"Visual Studio Code", "Code", "VS Code", "IntelliJ IDEA", "WebStorm",
	"Terminal", "iTerm2", "Postman", "Docker Desktop", "Slack",
	"Microsoft Teams", "JIRA", "Confluence", "Chrome", "Safari", "Firefox",
	"Teams", "MSTeams", "Zoom", "Skype",
}

// WorkKeywords are window-title fragments that mark a snapshot as work.
var WorkKeywords = []string{
	"jira", "confluence", "github", "gitlab", "bitbucket", "docker",
	"kubernetes", "api", "test", "debug", "development", "coding",
	"programming", "review", "meeting", "standup", "sprint", "ticket",
	"teams call", "zoom meeting", "technical discussion", "sync meeting",
}

var devDirMarkers = []string{"Desktop", "Projects", "Development"}

// IsWorkActivity applies the fixed work rule: a known work application,
// a work keyword in the title, or a development-looking directory, and
// always within working hours.
func IsWorkActivity(s Snapshot) bool {
	if !s.WorkingHours {
		return false
	}
	return hasWorkApp(s) || hasWorkKeyword(s.WindowTitle) || isDevDirectory(s)
}

func hasWorkApp(s Snapshot) bool {
	for _, app := range WorkApps {
		if strings.Contains(s.ActiveApp, app) {
			return true
		}
		for _, running := range s.RunningApps {
			if strings.Contains(running, app) {
				return true
			}
		}
	}
	return false
}

func hasWorkKeyword(title string) bool {
	t := strings.ToLower(title)
	for _, kw := range WorkKeywords {
		if strings.Contains(t, kw) {
			return true
		}
	}
	return false
}

func isDevDirectory(s Snapshot) bool {
	if s.Branch != "" {
		return true
	}
	for _, m := range devDirMarkers {
		if strings.Contains(s.Directory, m) {
			return true
		}
	}
	return false
}
