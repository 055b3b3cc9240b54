package collector

import (
	"bufio"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// EditorFiles gathers a best-effort list of files and folders the user has
// open: the file named in a VS Code style window title, then recent
// workspaces from VS Code forks, JetBrains IDEs and Vim, filtered to the
// working directory.
type EditorFiles struct {
	// Home overrides the user's home directory (used in tests).
	Home string
	// StateDir overrides the auto-detected VS Code storage directory (used in tests).
	StateDir string
}

const maxOpenFiles = 20

// editorReader is a function that attempts to collect recent paths from one editor.
type editorReader func(home string) []string

// vscodeAppNames maps the process names of VS Code forks to their
// application support directory.
var vscodeAppNames = []struct {
	process string
	appDir  string
}{
	{"Code", "Code"},
	{"Visual Studio Code", "Code"},
	{"Kiro", "Kiro"},
	{"Cursor", "Cursor"},
	{"Windsurf", "Windsurf"},
	{"VSCodium", "VSCodium"},
}

// OpenFiles returns the open-file signal for one snapshot.
func (e *EditorFiles) OpenFiles(activeApp, title, workDir string) []string {
	seen := make(map[string]bool)
	var files []string
	add := func(paths ...string) {
		for _, p := range paths {
			if p != "" && !seen[p] && len(files) < maxOpenFiles {
				seen[p] = true
				files = append(files, p)
			}
		}
	}

	add(titleFiles(activeApp, title)...)

	if e.StateDir != "" {
		add(filterToWorkDir(collectVSCodeFamily(e.StateDir), workDir)...)
		return files
	}

	home := e.Home
	if home == "" {
		h, err := os.UserHomeDir()
		if err != nil {
			return files
		}
		home = h
	}

	readers := []editorReader{
		collectVSCodeFamilyAuto,
		collectJetBrains,
		collectVim,
	}
	for _, reader := range readers {
		add(filterToWorkDir(reader(home), workDir)...)
	}
	return files
}

// titleFiles extracts the file and folder from a VS Code style window title
// such as "● main.go — timeslice — Visual Studio Code".
func titleFiles(activeApp, title string) []string {
	if !isVSCodeFamily(activeApp) || title == "" {
		return nil
	}
	sep := " — "
	if !strings.Contains(title, sep) {
		sep = " - "
	}
	parts := strings.Split(title, sep)
	if len(parts) < 2 {
		return nil
	}
	file := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(parts[0]), "●"))
	if len(parts) >= 3 {
		folder := strings.TrimSpace(parts[1])
		return []string{folder + "/" + file}
	}
	return []string{file}
}

func isVSCodeFamily(app string) bool {
	for _, a := range vscodeAppNames {
		if strings.EqualFold(a.process, app) {
			return true
		}
	}
	return false
}

// filterToWorkDir returns only paths that are under workDir.
// If workDir is empty, all paths are returned unchanged.
func filterToWorkDir(paths []string, workDir string) []string {
	if workDir == "" {
		return paths
	}
	prefix := workDir
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	var result []string
	for _, p := range paths {
		if p == workDir || strings.HasPrefix(p, prefix) {
			result = append(result, p)
		}
	}
	return result
}

// ── VS Code fork family ───

func collectVSCodeFamilyAuto(home string) []string {
	seen := make(map[string]bool)
	var all []string
	for _, app := range vscodeAppNames {
		if seen["dir:"+app.appDir] {
			continue
		}
		seen["dir:"+app.appDir] = true
		for _, p := range collectVSCodeFamily(vscodeStorageDir(home, app.appDir)) {
			if !seen[p] {
				seen[p] = true
				all = append(all, p)
			}
		}
	}
	return all
}

func vscodeStorageDir(home, appDir string) string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", appDir, "User", "workspaceStorage")
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), appDir, "User", "workspaceStorage")
	default:
		return filepath.Join(home, ".config", appDir, "User", "workspaceStorage")
	}
}

// collectVSCodeFamily reads the workspace folder of every workspace.json
// under storageDir, most recently modified first.
func collectVSCodeFamily(storageDir string) []string {
	entries, err := os.ReadDir(storageDir)
	if err != nil {
		return nil
	}

	type folder struct {
		path    string
		modTime time.Time
	}
	var folders []folder
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		wsJSONPath := filepath.Join(storageDir, entry.Name(), "workspace.json")
		info, err := os.Stat(wsJSONPath)
		if err != nil {
			continue
		}
		data, err := os.ReadFile(wsJSONPath)
		if err != nil {
			continue
		}
		var ws struct {
			Folder string `json:"folder"`
		}
		if err := json.Unmarshal(data, &ws); err != nil || ws.Folder == "" {
			continue
		}
		p, err := uriToPath(ws.Folder)
		if err != nil || p == "" {
			continue
		}
		folders = append(folders, folder{path: p, modTime: info.ModTime()})
	}

	// Insertion sort by recency; the list is small.
	for i := 1; i < len(folders); i++ {
		for j := i; j > 0 && folders[j].modTime.After(folders[j-1].modTime); j-- {
			folders[j], folders[j-1] = folders[j-1], folders[j]
		}
	}

	seen := make(map[string]bool)
	var paths []string
	for _, f := range folders {
		if !seen[f.path] {
			seen[f.path] = true
			paths = append(paths, f.path)
		}
	}
	return paths
}

// ── JetBrains ────

type jetbrainsXMLProject struct {
	XMLName    xml.Name `xml:"application"`
	Components []struct {
		Name    string `xml:"name,attr"`
		Options []struct {
			Name string `xml:"name,attr"`
			Map  struct {
				Entries []struct {
					Key   string `xml:"key,attr"`
					Value struct {
						Meta struct {
							Options []struct {
								Name  string `xml:"name,attr"`
								Value string `xml:"value,attr"`
							} `xml:"option"`
						} `xml:"RecentProjectMetaInfo"`
					} `xml:"value"`
				} `xml:"entry"`
			} `xml:"map"`
		} `xml:"option"`
	} `xml:"component"`
}

func collectJetBrains(home string) []string {
	var appSupportDir string
	switch runtime.GOOS {
	case "darwin":
		appSupportDir = filepath.Join(home, "Library", "Application Support", "JetBrains")
	case "windows":
		appSupportDir = filepath.Join(os.Getenv("APPDATA"), "JetBrains")
	default:
		appSupportDir = filepath.Join(home, ".config", "JetBrains")
	}

	ideEntries, err := os.ReadDir(appSupportDir)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var projects []string
	for _, ideEntry := range ideEntries {
		if !ideEntry.IsDir() {
			continue
		}
		recentFile := filepath.Join(appSupportDir, ideEntry.Name(), "options", "recentProjects.xml")
		paths, err := parseJetBrainsRecentProjects(recentFile, home)
		if err != nil {
			continue
		}
		for _, p := range paths {
			if !seen[p] {
				seen[p] = true
				projects = append(projects, p)
			}
		}
	}
	return projects
}

func parseJetBrainsRecentProjects(xmlPath, home string) ([]string, error) {
	data, err := os.ReadFile(xmlPath)
	if err != nil {
		return nil, err
	}

	var root jetbrainsXMLProject
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse %s: %w", xmlPath, err)
	}

	type projectEntry struct {
		path      string
		activated time.Time
	}
	var projects []projectEntry

	for _, comp := range root.Components {
		if comp.Name != "RecentProjectsManager" {
			continue
		}
		for _, opt := range comp.Options {
			if opt.Name != "additionalInfo" {
				continue
			}
			for _, entry := range opt.Map.Entries {
				rawPath := strings.ReplaceAll(entry.Key, "$USER_HOME$", home)
				var activated time.Time
				for _, metaOpt := range entry.Value.Meta.Options {
					if metaOpt.Name == "activationTimestamp" {
						var ms int64
						fmt.Sscanf(metaOpt.Value, "%d", &ms)
						if ms > 0 {
							activated = time.UnixMilli(ms)
						}
					}
				}
				projects = append(projects, projectEntry{path: rawPath, activated: activated})
			}
		}
	}

	for i := 1; i < len(projects); i++ {
		for j := i; j > 0 && projects[j].activated.After(projects[j-1].activated); j-- {
			projects[j], projects[j-1] = projects[j-1], projects[j]
		}
	}

	paths := make([]string, 0, len(projects))
	for _, p := range projects {
		if p.path != "" {
			paths = append(paths, p.path)
		}
	}
	return paths, nil
}

// ── Vim ──────

func collectVim(home string) []string {
	files, err := parseViminfo(filepath.Join(home, ".viminfo"), home)
	if err != nil {
		return nil
	}
	return files
}

func parseViminfo(path, home string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	seen := make(map[string]bool)
	var files []string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "> ") {
			continue
		}
		filePath := strings.TrimSpace(strings.TrimPrefix(line, "> "))
		if strings.HasPrefix(filePath, "~/") {
			filePath = filepath.Join(home, filePath[2:])
		}
		if filePath != "" && !seen[filePath] {
			seen[filePath] = true
			files = append(files, filePath)
		}
	}
	return files, scanner.Err()
}

func uriToPath(rawURI string) (string, error) {
	u, err := url.Parse(rawURI)
	if err != nil {
		return "", err
	}
	if u.Scheme != "file" {
		return "", nil
	}
	return u.Path, nil
}
