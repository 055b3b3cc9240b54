package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrNotFound is returned by Load when no state file exists on disk.
var ErrNotFound = errors.New("no saved state")

// State is the persisted agent document: completed sessions, the ids
// already reported (or rejected), and the issue keyword map.
type State struct {
	Sessions        []*Session     `json:"sessions"`
	LoggedSessions  []string       `json:"logged_sessions"`
	IssueKeywordMap []KeywordEntry `json:"issue_keyword_map"`
	LastSaved       time.Time      `json:"last_saved"`
	IsTestMode      bool           `json:"is_test_mode"`
	IsDryRun        bool           `json:"is_dry_run"`
}

// KeywordEntry maps one keyword to the issues whose summary contains it.
// It encodes as a two-element array: ["keyword", ["KEY-1", ...]].
type KeywordEntry struct {
	Keyword string
	Issues  []string
}

func (e KeywordEntry) MarshalJSON() ([]byte, error) {
	issues := e.Issues
	if issues == nil {
		issues = []string{}
	}
	return json.Marshal([]any{e.Keyword, issues})
}

func (e *KeywordEntry) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("keyword entry: want 2 elements, got %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &e.Keyword); err != nil {
		return fmt.Errorf("keyword entry: %w", err)
	}
	if err := json.Unmarshal(raw[1], &e.Issues); err != nil {
		return fmt.Errorf("keyword entry %q: %w", e.Keyword, err)
	}
	return nil
}

// PersistenceError reports a failed read or write of the state file.
// Callers log it and keep their in-memory state.
type PersistenceError struct {
	Path string
	Op   string // "read", "parse" or "write"
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s session state %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Store persists the State document.
type Store interface {
	Save(s *State) error
	Load() (*State, error) // returns ErrNotFound if none exists
	Path() string
}

// diskStore is the concrete Store that writes to the XDG data directory.
type diskStore struct {
	path string
}

// NewStore returns a Store backed by the XDG data directory.
// Path: $XDG_DATA_HOME/timeslice/state.json or ~/.local/share/timeslice/state.json.
// Test mode uses state-test.json so experiments never touch real history.
func NewStore(testMode bool) (Store, error) {
	dir, err := DataDir()
	if err != nil {
		return nil, fmt.Errorf("resolving data directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	name := "state.json"
	if testMode {
		name = "state-test.json"
	}
	return &diskStore{path: filepath.Join(dir, name)}, nil
}

// NewStoreAt returns a Store writing to an explicit file.
func NewStoreAt(path string) Store {
	return &diskStore{path: path}
}

// DataDir returns the timeslice-specific XDG data directory.
func DataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "timeslice"), nil
}

func (d *diskStore) Path() string { return d.path }

// Save marshals s to JSON and writes it atomically via a temp file + os.Rename.
func (d *diskStore) Save(s *State) (err error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return &PersistenceError{Path: d.path, Op: "write", Err: err}
	}

	// Write to a temp file in the same directory so os.Rename is atomic.
	tmp, err := os.CreateTemp(filepath.Dir(d.path), "state-*.json.tmp")
	if err != nil {
		return &PersistenceError{Path: d.path, Op: "write", Err: err}
	}
	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return &PersistenceError{Path: d.path, Op: "write", Err: err}
	}
	if err = tmp.Close(); err != nil {
		return &PersistenceError{Path: d.path, Op: "write", Err: err}
	}
	if err = os.Rename(tmpName, d.path); err != nil {
		return &PersistenceError{Path: d.path, Op: "write", Err: err}
	}
	return nil
}

// Load reads and unmarshals the state file.
// Returns ErrNotFound if the file does not exist.
func (d *diskStore) Load() (*State, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, &PersistenceError{Path: d.path, Op: "read", Err: err}
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, &PersistenceError{Path: d.path, Op: "parse", Err: err}
	}
	return &s, nil
}
