package collector

import (
	"context"
	"os"
	"time"
)

// Snapshot is one coarse observation of desktop activity.
type Snapshot struct {
	Timestamp    time.Time `json:"timestamp"`
	ActiveApp    string    `json:"active_app"`
	RunningApps  []string  `json:"running_apps"`
	WindowTitle  string    `json:"window_title"`
	Directory    string    `json:"directory"`
	Branch       string    `json:"branch,omitempty"`
	OpenFiles    []string  `json:"open_files,omitempty"`
	WorkingHours bool      `json:"working_hours"`
}

// Sample is the lightweight observation taken by the window sampler.
type Sample struct {
	Timestamp time.Time
	App       string
	Title     string
	URL       string
}

// Fingerprint identifies a sample for change detection.
func (s Sample) Fingerprint() string {
	return s.App + "::" + s.Title + "::" + s.URL
}

// AppLister lists visible applications.
type AppLister interface {
	ListVisibleApplications(ctx context.Context) []string
}

// Snapshotter assembles Snapshots and Samples from the OS probes. Every
// query is best effort: a failed probe leaves its field empty.
type Snapshotter struct {
	Probe  Probe
	Apps   AppLister
	Git    *GitProbe
	Editor *EditorFiles

	// WorkDir is the directory reported in snapshots; empty means the
	// process working directory.
	WorkDir string
	// WorkHours decides the working-hours flag for a timestamp.
	WorkHours func(time.Time) bool
	Now       func() time.Time
}

func (s *Snapshotter) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Snapshot collects a full Activity Snapshot.
func (s *Snapshotter) Snapshot(ctx context.Context) Snapshot {
	snap := Snapshot{Timestamp: s.now()}

	if app, err := s.Probe.ActiveApp(ctx); err == nil {
		snap.ActiveApp = app
	}
	if snap.ActiveApp == "" {
		snap.ActiveApp = "unknown"
	}
	if s.Apps != nil {
		snap.RunningApps = s.Apps.ListVisibleApplications(ctx)
	}
	if title, err := s.Probe.WindowTitle(ctx); err == nil {
		snap.WindowTitle = title
	}

	snap.Directory = s.WorkDir
	if snap.Directory == "" {
		if wd, err := os.Getwd(); err == nil {
			snap.Directory = wd
		}
	}
	if s.Git != nil {
		if branch, err := s.Git.Branch(snap.Directory); err == nil {
			snap.Branch = branch
		}
	}
	if s.Editor != nil {
		snap.OpenFiles = s.Editor.OpenFiles(snap.ActiveApp, snap.WindowTitle, snap.Directory)
	}
	if s.WorkHours != nil {
		snap.WorkingHours = s.WorkHours(snap.Timestamp)
	} else {
		snap.WorkingHours = true
	}
	return snap
}

// Sample collects the active app, window title and, for browsers, the
// active tab URL.
func (s *Snapshotter) Sample(ctx context.Context) Sample {
	smp := Sample{Timestamp: s.now()}
	if app, err := s.Probe.ActiveApp(ctx); err == nil {
		smp.App = app
	}
	if title, err := s.Probe.WindowTitle(ctx); err == nil {
		smp.Title = title
	}
	if IsBrowser(smp.App) {
		if u, err := s.Probe.BrowserURL(ctx, smp.App); err == nil {
			smp.URL = u
		}
	}
	return smp
}

// IdleSeconds forwards to the probe.
func (s *Snapshotter) IdleSeconds(ctx context.Context) (float64, error) {
	return s.Probe.IdleSeconds(ctx)
}
