// Package tmux wraps tmux session operations via subprocess.
package tmux

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Sentinel errors surfaced to callers so they can classify failures
// without string-matching stderr themselves.
var (
	ErrNoServer        = errors.New("no tmux server running")
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionNotFound = errors.New("session not found")
)

// Tmux wraps tmux operations via subprocess invocation.
type Tmux struct {
	// Bin overrides the tmux binary path. Empty means "tmux" from PATH.
	Bin string
}

// NewTmux creates a new Tmux wrapper using the tmux binary on PATH.
func NewTmux() *Tmux {
	return &Tmux{}
}

func (t *Tmux) bin() string {
	if t.Bin != "" {
		return t.Bin
	}
	return "tmux"
}

// run executes a tmux command and returns trimmed stdout.
func (t *Tmux) run(args ...string) (string, error) {
	cmd := exec.Command(t.bin(), args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", t.wrapError(err, stderr.String(), args)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// wrapError classifies tmux failures into sentinel errors where possible.
func (t *Tmux) wrapError(err error, stderr string, args []string) error {
	stderr = strings.TrimSpace(stderr)

	if strings.Contains(stderr, "no server running") ||
		strings.Contains(stderr, "error connecting to") {
		return ErrNoServer
	}
	if strings.Contains(stderr, "duplicate session") {
		return ErrSessionExists
	}
	if strings.Contains(stderr, "session not found") ||
		strings.Contains(stderr, "can't find session") ||
		strings.Contains(stderr, "can't find pane") ||
		strings.Contains(stderr, "can't find window") {
		return ErrSessionNotFound
	}

	if stderr != "" {
		return fmt.Errorf("tmux %s: %s", firstArg(args), stderr)
	}
	return fmt.Errorf("tmux %s: %w", firstArg(args), err)
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// IsAvailable checks if tmux is installed and can be invoked.
func (t *Tmux) IsAvailable() bool {
	cmd := exec.Command(t.bin(), "-V")
	return cmd.Run() == nil
}

// HasSession checks if a session exists, using exact-match targeting
// ("=name") so "agent-1" doesn't prefix-match "agent-10".
func (t *Tmux) HasSession(name string) (bool, error) {
	_, err := t.run("has-session", "-t", "="+name)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrNoServer) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListSessions returns all tmux session names.
func (t *Tmux) ListSessions() ([]string, error) {
	out, err := t.run("list-sessions", "-F", "#{session_name}")
	if err != nil {
		if errors.Is(err, ErrNoServer) {
			return nil, nil
		}
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// Window describes one tmux window within a session.
type Window struct {
	Index    int
	WindowID string // stable id, e.g. "@1"
	Name     string
	PaneID   string
	Active   bool
}

// Target returns the "session:@windowId" address this window is
// reachable at, matching the addressing tmux itself accepts for -t.
func (w Window) Target(session string) string {
	return session + ":" + w.WindowID
}

// ListWindows returns the windows of a session, in tmux's own order.
func (t *Tmux) ListWindows(session string) ([]Window, error) {
	out, err := t.run("list-windows", "-t", session, "-F",
		"#{window_index}|#{window_id}|#{window_name}|#{pane_id}|#{window_active}")
	if err != nil {
		if errors.Is(err, ErrNoServer) || errors.Is(err, ErrSessionNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if out == "" {
		return nil, nil
	}

	var windows []Window
	for _, line := range strings.Split(out, "\n") {
		parts := strings.SplitN(line, "|", 5)
		if len(parts) != 5 {
			continue
		}
		var idx int
		_, _ = fmt.Sscanf(parts[0], "%d", &idx)
		windows = append(windows, Window{
			Index:    idx,
			WindowID: parts[1],
			Name:     parts[2],
			PaneID:   parts[3],
			Active:   parts[4] == "1",
		})
	}
	return windows, nil
}

// GetPaneID returns the pane identifier for a session:window target
// (e.g. "%3"), used to address pipe-pane and list-panes at a specific pane.
func (t *Tmux) GetPaneID(target string) (string, error) {
	out, err := t.run("list-panes", "-t", target, "-F", "#{pane_id}")
	if err != nil {
		return "", err
	}
	lines := strings.Split(out, "\n")
	if len(lines) == 0 || lines[0] == "" {
		return "", fmt.Errorf("no panes found for target %s", target)
	}
	return lines[0], nil
}

// CapturePane captures the last n lines of scrollback for a target,
// joining wrapped lines (-J) so long lines aren't split mid-word.
func (t *Tmux) CapturePane(target string, lines int) (string, error) {
	return t.CapturePaneRaw(target, lines, false)
}

// CapturePaneRaw is CapturePane with control over ANSI escape
// preservation (-e). Pi's TUI marks user messages with a background
// color escape sequence, so its scrollback must be captured with ansi
// set to true; Claude/Codex scan plain text.
func (t *Tmux) CapturePaneRaw(target string, lines int, ansi bool) (string, error) {
	args := []string{"capture-pane", "-p", "-t", target, "-J"}
	if ansi {
		args = append(args, "-e")
	}
	args = append(args, "-S", fmt.Sprintf("-%d", lines))
	return t.run(args...)
}

// CapturePaneAll captures the full available scrollback for a target.
func (t *Tmux) CapturePaneAll(target string) (string, error) {
	return t.run("capture-pane", "-p", "-t", target, "-J", "-S", "-")
}

// SendKeysLiteral types text into a target pane in literal mode, so
// characters tmux would otherwise interpret as key names pass through
// unchanged.
func (t *Tmux) SendKeysLiteral(target, text string) error {
	_, err := t.run("send-keys", "-t", target, "-l", "--", text)
	return err
}

// SendEnter sends the Enter key to a target pane as a separate command;
// tmux key injection is more reliable split this way than appended to
// the literal text.
func (t *Tmux) SendEnter(target string) error {
	_, err := t.run("send-keys", "-t", target, "Enter")
	return err
}

// SendInput is the two-step literal-text-then-Enter input sequence used
// for submitting a full line to an agent.
func (t *Tmux) SendInput(target, text string) error {
	if err := t.SendKeysLiteral(target, text); err != nil {
		return err
	}
	return t.SendEnter(target)
}

// ResizePane resizes a pane to the given width/height in cells.
func (t *Tmux) ResizePane(target string, width, height int) error {
	_, err := t.run("resize-pane", "-t", target, "-x", fmt.Sprintf("%d", width), "-y", fmt.Sprintf("%d", height))
	return err
}

// PipePane starts (or, called again, stops) piping a pane's output to a
// shell command. Passing an empty command stops any active pipe.
func (t *Tmux) PipePane(target, shellCommand string) error {
	args := []string{"pipe-pane", "-t", target}
	if shellCommand != "" {
		args = append(args, "-o", shellCommand)
	}
	_, err := t.run(args...)
	return err
}

// KillSession terminates a tmux session. Callers must gate this behind
// their own authorization check before invoking it against a session they
// did not create.
func (t *Tmux) KillSession(name string) error {
	_, err := t.run("kill-session", "-t", name)
	return err
}

// NewDetachedSession creates a new detached session, used only for the
// LogPoller's orphan-resurrection path (spec'd recreation of a pinned
// session whose tmux window disappeared).
func (t *Tmux) NewDetachedSession(name, workDir string) error {
	args := []string{"new-session", "-d", "-s", name}
	if workDir != "" {
		args = append(args, "-c", workDir)
	}
	_, err := t.run(args...)
	return err
}

// NewWindow creates a window in an existing session and returns its
// target ("session:@windowId"), optionally starting command in it and
// setting its working directory.
func (t *Tmux) NewWindow(session, name, workDir, command string) (string, error) {
	args := []string{"new-window", "-t", session, "-P", "-F", "#{window_id}"}
	if name != "" {
		args = append(args, "-n", name)
	}
	if workDir != "" {
		args = append(args, "-c", workDir)
	}
	if command != "" {
		args = append(args, command)
	}
	out, err := t.run(args...)
	if err != nil {
		return "", err
	}
	windowID := strings.TrimSpace(out)
	return session + ":" + windowID, nil
}

// WaitForPane polls HasSession until the target exists or the timeout
// elapses, used right after NewDetachedSession.
func (t *Tmux) WaitForPane(session string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		ok, err := t.HasSession(session)
		if err == nil && ok {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for session %s", session)
}
