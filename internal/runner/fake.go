package runner

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// FakeRunner answers commands from a table keyed by the joined command line
// ("ps -eo comm"). Unknown commands fail with ErrNotFaked.
type FakeRunner struct {
	mu      sync.Mutex
	Outputs map[string]string
	Errors  map[string]error
	Calls   []string
}

// ErrNotFaked is returned for commands missing from the FakeRunner tables.
var ErrNotFaked = errors.New("command not faked")

var _ Runner = (*FakeRunner)(nil)

// NewFakeRunner returns an empty FakeRunner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{Outputs: map[string]string{}, Errors: map[string]error{}}
}

// On registers the output for a command line.
func (f *FakeRunner) On(cmdline, out string) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Outputs[cmdline] = out
	delete(f.Errors, cmdline)
	return f
}

// Fail registers an error for a command line.
func (f *FakeRunner) Fail(cmdline string, err error) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[cmdline] = err
	delete(f.Outputs, cmdline)
	return f
}

func (f *FakeRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	line := strings.TrimSpace(name + " " + strings.Join(args, " "))
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, line)
	if err, ok := f.Errors[line]; ok {
		return "", err
	}
	if out, ok := f.Outputs[line]; ok {
		return out, nil
	}
	return "", &CommandError{Name: name, Args: args, Err: ErrNotFaked}
}

// CallCount returns how many times cmdline was run.
func (f *FakeRunner) CallCount(cmdline string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c == cmdline {
			n++
		}
	}
	return n
}
