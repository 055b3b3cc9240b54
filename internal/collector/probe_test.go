package collector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fakeyudi/timeslice/internal/runner"
)

// coolingExec wraps a FakeRunner with a switchable cooldown flag.
type coolingExec struct {
	*runner.FakeRunner
	cooling bool
}

func (c *coolingExec) InCooldown() bool { return c.cooling }

const macFront = `osascript -e ` + frontAppScript + ` -e return frontApp`

func TestDarwinActiveAppFallsBackToLsappinfo(t *testing.T) {
	exec := &coolingExec{FakeRunner: runner.NewFakeRunner()}
	exec.Fail(macFront, errors.New("execution error: -1712 timed out"))
	exec.On("lsappinfo front", `"LSDisplayName"="Slack" name="Slack"`)

	p := newProbeFor(exec, "darwin")
	app, err := p.ActiveApp(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Slack", app)
}

func TestDarwinActiveAppReusesCacheDuringCooldown(t *testing.T) {
	exec := &coolingExec{FakeRunner: runner.NewFakeRunner()}
	exec.On(macFront, "Code")

	p := newProbeFor(exec, "darwin")
	app, err := p.ActiveApp(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Code", app)

	exec.cooling = true
	exec.On(macFront, "Safari")
	app, err = p.ActiveApp(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Code", app, "cached app is reused while cooling down")
	assert.Equal(t, 1, exec.CallCount(macFront))

	title, err := p.WindowTitle(context.Background())
	require.NoError(t, err)
	assert.Empty(t, title)
}

func TestDarwinActiveAppUsesCachedValueWhenAllFail(t *testing.T) {
	exec := &coolingExec{FakeRunner: runner.NewFakeRunner()}
	exec.On(macFront, "iTerm2")
	p := newProbeFor(exec, "darwin")
	_, err := p.ActiveApp(context.Background())
	require.NoError(t, err)

	exec.Fail(macFront, errors.New("boom"))
	exec.Fail("lsappinfo front", errors.New("boom"))
	app, err := p.ActiveApp(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "iTerm2", app)
}

func TestLinuxProbesParseXprop(t *testing.T) {
	exec := &coolingExec{FakeRunner: runner.NewFakeRunner()}
	exec.On("xprop -root _NET_ACTIVE_WINDOW", "_NET_ACTIVE_WINDOW(WINDOW): window id # 0x3a00007")
	exec.On("xprop -id 0x3a00007 WM_CLASS", `WM_CLASS(STRING) = "code", "Code"`)
	exec.On("xprop -id 0x3a00007 _NET_WM_NAME", `_NET_WM_NAME(UTF8_STRING) = "main.go - timeslice - Visual Studio Code"`)
	exec.On("xprintidle", "4500")

	p := newProbeFor(exec, "linux")
	ctx := context.Background()

	app, err := p.ActiveApp(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Code", app)

	title, err := p.WindowTitle(ctx)
	require.NoError(t, err)
	assert.Equal(t, "main.go - timeslice - Visual Studio Code", title)

	idle, err := p.IdleSeconds(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 4.5, idle, 0.0001)
}

func TestParseHIDIdle(t *testing.T) {
	out := "    | |   \"HIDIdleTime\" = 42000000000\n    | |   \"HIDOther\" = 1"
	idle, err := parseHIDIdle(out)
	require.NoError(t, err)
	assert.Equal(t, 42.0, idle)

	_, err = parseHIDIdle("nothing here")
	assert.Error(t, err)
}

func TestBrowserURLRejectsNonHTTP(t *testing.T) {
	exec := &coolingExec{FakeRunner: runner.NewFakeRunner()}
	script := `tell application "Google Chrome" to if (count of windows) > 0 then get URL of active tab of front window`
	exec.On("osascript -e "+script, "chrome://settings")

	p := newProbeFor(exec, "darwin")
	u, err := p.BrowserURL(context.Background(), "Google Chrome")
	require.NoError(t, err)
	assert.Empty(t, u)

	exec.On("osascript -e "+script, "https://acme.atlassian.net/browse/ABC-12")
	u, err = p.BrowserURL(context.Background(), "Google Chrome")
	require.NoError(t, err)
	assert.Equal(t, "https://acme.atlassian.net/browse/ABC-12", u)

	u, err = p.BrowserURL(context.Background(), "Slack")
	require.NoError(t, err)
	assert.Empty(t, u)
}
