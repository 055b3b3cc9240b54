package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Overrides is the runtime override document. Only these keys may be
// changed while the agent runs.
type Overrides struct {
	MonitoringInterval   *Duration `json:"monitoringInterval,omitempty"`
	WorkSessionThreshold *Duration `json:"workSessionThreshold,omitempty"`
	AutoLogThreshold     *Duration `json:"autoLogThreshold,omitempty"`
	MaxSessionDuration   *Duration `json:"maxSessionDuration,omitempty"`
	WorkHoursStart       *int      `json:"workHoursStart,omitempty"`
	WorkHoursEnd         *int      `json:"workHoursEnd,omitempty"`
}

// IsZero reports whether no override is set.
func (o Overrides) IsZero() bool {
	return o == Overrides{}
}

// Duration is a time.Duration that reads either a Go duration string
// ("15m") or a millisecond count from JSON and writes the string form.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		d.Duration = v
		return nil
	}
	var ms int64
	if err := json.Unmarshal(b, &ms); err != nil {
		return fmt.Errorf("duration must be a string or milliseconds: %w", err)
	}
	d.Duration = time.Duration(ms) * time.Millisecond
	return nil
}

// WithOverrides returns a copy of c with o applied. Invalid values are ignored.
func (c Config) WithOverrides(o Overrides) Config {
	if o.MonitoringInterval != nil && o.MonitoringInterval.Duration > 0 {
		c.MonitoringInterval = o.MonitoringInterval.Duration
	}
	if o.WorkSessionThreshold != nil && o.WorkSessionThreshold.Duration > 0 {
		c.WorkSessionThreshold = o.WorkSessionThreshold.Duration
	}
	if o.AutoLogThreshold != nil && o.AutoLogThreshold.Duration > 0 {
		c.AutoLogThreshold = o.AutoLogThreshold.Duration
	}
	if o.MaxSessionDuration != nil && o.MaxSessionDuration.Duration > 0 {
		c.MaxSessionDuration = o.MaxSessionDuration.Duration
	}
	start, end := c.WorkHoursStart, c.WorkHoursEnd
	if o.WorkHoursStart != nil {
		start = *o.WorkHoursStart
	}
	if o.WorkHoursEnd != nil {
		end = *o.WorkHoursEnd
	}
	if start >= 0 && end <= 24 && start < end {
		c.WorkHoursStart, c.WorkHoursEnd = start, end
	}
	return c
}

// OverridesPath returns the location of the runtime override file.
func OverridesPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "overrides.json"), nil
}

// LoadOverrides reads the override file at path. An absent file yields
// empty overrides.
func LoadOverrides(path string) (Overrides, error) {
	var o Overrides
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return o, nil
		}
		return o, err
	}
	if err := json.Unmarshal(data, &o); err != nil {
		return Overrides{}, &ParseError{Path: path, Err: err}
	}
	return o, nil
}

// SaveOverrides writes o to path, creating the directory when needed.
func SaveOverrides(path string, o Overrides) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ClearOverrides removes the override file.
func ClearOverrides(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Reload re-reads the override file and applies it on top of base, returning
// a new snapshot. base is never modified.
func Reload(base Config, path string) (Config, error) {
	o, err := LoadOverrides(path)
	if err != nil {
		return base, err
	}
	next := base.WithOverrides(o)
	if err := next.Validate(); err != nil {
		return base, err
	}
	return next, nil
}

// WatchOverrides calls onChange with the reloaded configuration every time
// the override file at path is written, created or removed, until ctx is
// cancelled. The parent directory is watched so the file may appear later.
func WatchOverrides(ctx context.Context, base Config, path string, onChange func(Config, error)) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				onChange(Reload(base, path))
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			onChange(base, err)
		}
	}
}
