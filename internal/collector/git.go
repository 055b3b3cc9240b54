package collector

import (
	"errors"
	"os/exec"
	"strings"
)

// GitRunner executes a git command and returns its output.
// This abstraction allows mocking in tests.
type GitRunner func(workDir string, args ...string) (string, error)

// GitProbe reads version-control state for the working directory.
type GitProbe struct {
	Runner GitRunner // if nil, uses the real git subprocess
}

// defaultGitRunner runs git as a real subprocess.
func defaultGitRunner(workDir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = workDir
	out, err := cmd.Output()
	return string(out), err
}

// Branch returns the current branch of the repository at workDir. A
// directory that is not a repository (exit code 128) or a detached HEAD
// yields an empty branch and no error.
func (g *GitProbe) Branch(workDir string) (string, error) {
	if workDir == "" {
		return "", nil
	}
	runner := g.Runner
	if runner == nil {
		runner = defaultGitRunner
	}
	out, err := runner(workDir, "branch", "--show-current")
	if err != nil {
		if isExitCode128(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// isExitCode128 reports whether err is an *exec.ExitError with exit code 128.
func isExitCode128(err error) bool {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode() == 128
	}
	return false
}
