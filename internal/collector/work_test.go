package collector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsWorkActivity(t *testing.T) {
	cases := []struct {
		name string
		snap Snapshot
		want bool
	}{
		{
			name: "work app in running list",
			snap: Snapshot{ActiveApp: "Finder", RunningApps: []string{"Slack"}, WorkingHours: true},
			want: true,
		},
		{
			name: "keyword in title",
			snap: Snapshot{ActiveApp: "Preview", WindowTitle: "Sprint board", WorkingHours: true},
			want: true,
		},
		{
			name: "development directory",
			snap: Snapshot{ActiveApp: "Preview", Directory: "/Users/me/Projects/api", WorkingHours: true},
			want: true,
		},
		{
			name: "git branch counts as development directory",
			snap: Snapshot{ActiveApp: "Preview", Directory: "/tmp/x", Branch: "main", WorkingHours: true},
			want: true,
		},
		{
			name: "outside working hours",
			snap: Snapshot{ActiveApp: "Visual Studio Code", WorkingHours: false},
			want: false,
		},
		{
			name: "no signal",
			snap: Snapshot{ActiveApp: "Music", WindowTitle: "Playlist", Directory: "/tmp", WorkingHours: true},
			want: false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsWorkActivity(tc.snap))
		})
	}
}

type stubProbe struct {
	app, title, url string
	idle            float64
}

func (s stubProbe) ActiveApp(context.Context) (string, error)   { return s.app, nil }
func (s stubProbe) WindowTitle(context.Context) (string, error) { return s.title, nil }
func (s stubProbe) IdleSeconds(context.Context) (float64, error) {
	return s.idle, nil
}
func (s stubProbe) BrowserURL(_ context.Context, app string) (string, error) {
	if !IsBrowser(app) {
		return "", nil
	}
	return s.url, nil
}

type stubApps []string

func (s stubApps) ListVisibleApplications(context.Context) []string { return s }

func TestSnapshotterBuildsSnapshot(t *testing.T) {
	now := time.Date(2026, 10, 19, 14, 0, 0, 0, time.UTC)
	s := &Snapshotter{
		Probe:     stubProbe{app: "Code", title: "handler.go — api — Visual Studio Code"},
		Apps:      stubApps{"Code", "Slack"},
		Git:       &GitProbe{Runner: func(string, ...string) (string, error) { return "feature/ABC-1\n", nil }},
		Editor:    &EditorFiles{StateDir: t.TempDir()},
		WorkDir:   "/home/me/Development/api",
		WorkHours: func(time.Time) bool { return true },
		Now:       func() time.Time { return now },
	}

	snap := s.Snapshot(context.Background())
	assert.Equal(t, now, snap.Timestamp)
	assert.Equal(t, "Code", snap.ActiveApp)
	assert.Equal(t, []string{"Code", "Slack"}, snap.RunningApps)
	assert.Equal(t, "feature/ABC-1", snap.Branch)
	assert.Equal(t, []string{"api/handler.go"}, snap.OpenFiles)
	assert.True(t, snap.WorkingHours)
	assert.True(t, IsWorkActivity(snap))
}

func TestSamplerReadsURLOnlyForBrowsers(t *testing.T) {
	s := &Snapshotter{Probe: stubProbe{app: "Safari", title: "ABC-9 board", url: "https://acme.atlassian.net/browse/ABC-9"}}
	smp := s.Sample(context.Background())
	assert.Equal(t, "https://acme.atlassian.net/browse/ABC-9", smp.URL)
	assert.Equal(t, "Safari::ABC-9 board::https://acme.atlassian.net/browse/ABC-9", smp.Fingerprint())

	s.Probe = stubProbe{app: "Slack", title: "general", url: "https://ignored"}
	assert.Empty(t, s.Sample(context.Background()).URL)
}
