package collector

import (
	"context"
	"errors"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/fakeyudi/timeslice/internal/runner"
)

// Probe answers the single-value OS questions the samplers ask. The real
// implementation shells out through the executor; tests inject fakes.
type Probe interface {
	ActiveApp(ctx context.Context) (string, error)
	WindowTitle(ctx context.Context) (string, error)
	IdleSeconds(ctx context.Context) (float64, error)
	BrowserURL(ctx context.Context, app string) (string, error)
}

// Exec is the subset of the executor the probes need.
type Exec interface {
	runner.Runner
	InCooldown() bool
}

// ErrUnsupported is returned by probes that have no strategy on this OS.
var ErrUnsupported = errors.New("not supported on this platform")

// BrowserApps are the applications whose active tab URL can be read.
var BrowserApps = []string{"Google Chrome", "Brave Browser", "Microsoft Edge", "Safari"}

// IsBrowser reports whether app is one of BrowserApps.
func IsBrowser(app string) bool {
	for _, b := range BrowserApps {
		if b == app {
			return true
		}
	}
	return false
}

// OSProbe implements Probe for darwin, linux and windows.
type OSProbe struct {
	exec Exec
	goos string

	mu      sync.Mutex
	lastApp string
}

// NewOSProbe returns a probe for the running OS.
func NewOSProbe(exec Exec) *OSProbe {
	return &OSProbe{exec: exec, goos: runtime.GOOS}
}

// newProbeFor is used by tests to exercise another platform's parsing.
func newProbeFor(exec Exec, goos string) *OSProbe {
	return &OSProbe{exec: exec, goos: goos}
}

const (
	frontAppScript   = `tell application "System Events" to set frontApp to name of first application process whose frontmost is true`
	frontTitleScript = `tell application "System Events" to tell process frontApp to if exists window 1 then get name of window 1`

	winForegroundProc = `Add-Type -Namespace Win32 -Name User32 -MemberDefinition '[DllImport("user32.dll")] public static extern IntPtr GetForegroundWindow(); [DllImport("user32.dll")] public static extern int GetWindowThreadProcessId(IntPtr h, out int pid);'; $h=[Win32.User32]::GetForegroundWindow(); $p=0; [Win32.User32]::GetWindowThreadProcessId($h,[ref]$p) | Out-Null; (Get-Process -Id $p).ProcessName`
	winForegroundText = `Add-Type -Namespace Win32 -Name User32 -MemberDefinition '[DllImport("user32.dll")] public static extern IntPtr GetForegroundWindow(); [DllImport("user32.dll")] public static extern int GetWindowText(IntPtr h, System.Text.StringBuilder s, int n);'; $h=[Win32.User32]::GetForegroundWindow(); $sb=New-Object System.Text.StringBuilder 512; [Win32.User32]::GetWindowText($h,$sb,$sb.Capacity) | Out-Null; $sb.ToString()`
	winIdleSeconds    = `Add-Type -Namespace Win32 -Name LastInput -MemberDefinition '[DllImport("user32.dll")] public static extern bool GetLastInputInfo(ref LASTINPUTINFO li); public struct LASTINPUTINFO { public uint cbSize; public uint dwTime; }'; $i=New-Object Win32.LastInput+LASTINPUTINFO; $i.cbSize=[System.Runtime.InteropServices.Marshal]::SizeOf($i); [Win32.LastInput]::GetLastInputInfo([ref]$i) | Out-Null; [int](([Environment]::TickCount - $i.dwTime)/1000)`
)

var (
	lsappNamePattern  = regexp.MustCompile(`"?name"?="([^"\\]+)"`)
	xpropWindowID     = regexp.MustCompile(`window id # (0x[0-9a-fA-F]+)`)
	xpropQuotedValues = regexp.MustCompile(`"([^"]*)"`)
	urlPattern        = regexp.MustCompile(`^https?://`)
)

// ActiveApp returns the foreground application. On macOS it reuses the last
// known value while the executor is cooling down after a spawn failure and
// falls back to lsappinfo and then the cached value.
func (p *OSProbe) ActiveApp(ctx context.Context) (string, error) {
	cached := p.cachedApp()

	switch p.goos {
	case "darwin":
		if cached != "" && p.exec.InCooldown() {
			return cached, nil
		}
		if out, err := p.exec.Run(ctx, "osascript", "-e", frontAppScript, "-e", "return frontApp"); err == nil && out != "" {
			return p.remember(out), nil
		}
		if out, err := p.exec.Run(ctx, "lsappinfo", "front"); err == nil {
			if m := lsappNamePattern.FindStringSubmatch(out); m != nil {
				return p.remember(m[1]), nil
			}
			// lsappinfo front prints an ASN; resolve it to a name.
			if asn := strings.TrimSpace(out); asn != "" {
				if info, err := p.exec.Run(ctx, "lsappinfo", "info", "-only", "name", asn); err == nil {
					if m := lsappNamePattern.FindStringSubmatch(info); m != nil {
						return p.remember(m[1]), nil
					}
				}
			}
		}
		if cached != "" {
			return cached, nil
		}
		return "", errors.New("active application unavailable")

	case "windows":
		out, err := p.exec.Run(ctx, "powershell", "-NoProfile", "-Command", winForegroundProc)
		if err != nil || out == "" {
			return cached, err
		}
		return p.remember(out), nil

	case "linux":
		id, err := p.activeWindowID(ctx)
		if err != nil {
			return cached, err
		}
		out, err := p.exec.Run(ctx, "xprop", "-id", id, "WM_CLASS")
		if err != nil {
			return cached, err
		}
		vals := xpropQuotedValues.FindAllStringSubmatch(out, -1)
		if len(vals) == 0 {
			return cached, errors.New("WM_CLASS not set")
		}
		// WM_CLASS is "instance", "Class"; the class reads like an app name.
		return p.remember(vals[len(vals)-1][1]), nil
	}
	return "", ErrUnsupported
}

// WindowTitle returns the title of the foreground window. On macOS it
// returns an empty title during the executor cooldown.
func (p *OSProbe) WindowTitle(ctx context.Context) (string, error) {
	switch p.goos {
	case "darwin":
		if p.exec.InCooldown() {
			return "", nil
		}
		return p.exec.Run(ctx, "osascript", "-e", frontAppScript, "-e", frontTitleScript)
	case "windows":
		return p.exec.Run(ctx, "powershell", "-NoProfile", "-Command", winForegroundText)
	case "linux":
		id, err := p.activeWindowID(ctx)
		if err != nil {
			return "", err
		}
		out, err := p.exec.Run(ctx, "xprop", "-id", id, "_NET_WM_NAME")
		if err != nil {
			return "", err
		}
		if m := xpropQuotedValues.FindStringSubmatch(out); m != nil {
			return m[1], nil
		}
		return "", nil
	}
	return "", ErrUnsupported
}

// IdleSeconds returns the time since the last keyboard or mouse input.
func (p *OSProbe) IdleSeconds(ctx context.Context) (float64, error) {
	switch p.goos {
	case "darwin":
		out, err := p.exec.Run(ctx, "ioreg", "-c", "IOHIDSystem")
		if err != nil {
			return 0, err
		}
		return parseHIDIdle(out)
	case "windows":
		out, err := p.exec.Run(ctx, "powershell", "-NoProfile", "-Command", winIdleSeconds)
		if err != nil {
			return 0, err
		}
		return strconv.ParseFloat(strings.TrimSpace(out), 64)
	case "linux":
		out, err := p.exec.Run(ctx, "xprintidle")
		if err != nil {
			return 0, err
		}
		ms, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
		if err != nil {
			return 0, err
		}
		return ms / 1000, nil
	}
	return 0, ErrUnsupported
}

// BrowserURL returns the active tab URL of a supported browser on macOS.
// Anything that is not an http(s) URL is discarded.
func (p *OSProbe) BrowserURL(ctx context.Context, app string) (string, error) {
	if p.goos != "darwin" || !IsBrowser(app) {
		return "", nil
	}
	var script string
	if app == "Safari" {
		script = `tell application "Safari" to if (count of windows) > 0 then get URL of current tab of front window`
	} else {
		script = `tell application "` + app + `" to if (count of windows) > 0 then get URL of active tab of front window`
	}
	out, err := p.exec.Run(ctx, "osascript", "-e", script)
	if err != nil {
		return "", err
	}
	if !urlPattern.MatchString(out) {
		return "", nil
	}
	return out, nil
}

func (p *OSProbe) activeWindowID(ctx context.Context) (string, error) {
	out, err := p.exec.Run(ctx, "xprop", "-root", "_NET_ACTIVE_WINDOW")
	if err != nil {
		return "", err
	}
	m := xpropWindowID.FindStringSubmatch(out)
	if m == nil || m[1] == "0x0" {
		return "", errors.New("no active window")
	}
	return m[1], nil
}

func (p *OSProbe) cachedApp() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastApp
}

func (p *OSProbe) remember(app string) string {
	app = strings.TrimSpace(app)
	if app != "" && app != "unknown" {
		p.mu.Lock()
		p.lastApp = app
		p.mu.Unlock()
	}
	return app
}

// parseHIDIdle extracts HIDIdleTime (nanoseconds) from ioreg output.
func parseHIDIdle(out string) (float64, error) {
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "HIDIdleTime") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		ns, err := strconv.ParseFloat(fields[len(fields)-1], 64)
		if err != nil {
			return 0, err
		}
		return float64(int64(ns / 1e9)), nil
	}
	return 0, errors.New("HIDIdleTime not found")
}
