package tmux

import (
	"errors"
	"os/exec"
	"testing"
	"time"
)

const defaultWaitTimeout = 2 * time.Second

func hasTmux() bool {
	_, err := exec.LookPath("tmux")
	return err == nil
}

func TestWrapErrorClassification(t *testing.T) {
	tm := NewTmux()

	cases := []struct {
		stderr string
		want   error
	}{
		{"no server running on /tmp/tmux-0/default", ErrNoServer},
		{"error connecting to /tmp/tmux-0/default (No such file or directory)", ErrNoServer},
		{"duplicate session: agent-1", ErrSessionExists},
		{"can't find session agent-1", ErrSessionNotFound},
		{"can't find pane %9", ErrSessionNotFound},
	}

	for _, c := range cases {
		err := tm.wrapError(errors.New("exit status 1"), c.stderr, []string{"has-session"})
		if !errors.Is(err, c.want) {
			t.Errorf("wrapError(%q) = %v, want %v", c.stderr, err, c.want)
		}
	}
}

func TestWrapErrorFallsBackToRawStderr(t *testing.T) {
	tm := NewTmux()
	err := tm.wrapError(errors.New("exit status 1"), "some other failure", []string{"send-keys"})
	if err == nil {
		t.Fatal("expected non-nil error")
	}
	if errors.Is(err, ErrNoServer) || errors.Is(err, ErrSessionExists) || errors.Is(err, ErrSessionNotFound) {
		t.Errorf("unrelated stderr should not classify to a sentinel: %v", err)
	}
}

func TestHasSessionNoServer(t *testing.T) {
	if !hasTmux() {
		t.Skip("tmux not installed")
	}

	tm := NewTmux()
	has, err := tm.HasSession("agentboard-test-nonexistent-xyz")
	if err != nil {
		t.Fatalf("HasSession: %v", err)
	}
	if has {
		t.Error("expected session to not exist")
	}
}

func TestSessionAndWindowLifecycle(t *testing.T) {
	if !hasTmux() {
		t.Skip("tmux not installed")
	}

	tm := NewTmux()
	name := "agentboard-test-" + t.Name()
	_ = tm.KillSession(name)

	if err := tm.NewDetachedSession(name, ""); err != nil {
		t.Fatalf("NewDetachedSession: %v", err)
	}
	defer func() { _ = tm.KillSession(name) }()

	if err := tm.WaitForPane(name, defaultWaitTimeout); err != nil {
		t.Fatalf("WaitForPane: %v", err)
	}

	windows, err := tm.ListWindows(name)
	if err != nil {
		t.Fatalf("ListWindows: %v", err)
	}
	if len(windows) != 1 {
		t.Fatalf("expected 1 window, got %d", len(windows))
	}

	if err := tm.SendInput(name, "echo hello"); err != nil {
		t.Fatalf("SendInput: %v", err)
	}

	if _, err := tm.CapturePane(name, 10); err != nil {
		t.Fatalf("CapturePane: %v", err)
	}
}
