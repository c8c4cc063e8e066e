package gateway

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/agentboard/agentboard/internal/constants"
	"github.com/agentboard/agentboard/internal/tmux"
)

// tmuxClient is the subset of *tmux.Tmux TerminalProxy depends on,
// narrowed to an interface so tests can substitute a fake instead of
// spawning a real tmux server.
type tmuxClient interface {
	PipePane(target, shellCommand string) error
	SendKeysLiteral(target, text string) error
	SendEnter(target string) error
	ResizePane(target string, width, height int) error
	GetPaneID(target string) (string, error)
}

// OutputFunc receives one chunk of terminal bytes tailed from an
// attached window's pane.
type OutputFunc func(data []byte)

// TerminalProxy wraps one tmux window's pipe-pane tail and send-keys
// input path on behalf of a single client connection. Safe for
// concurrent use.
type TerminalProxy struct {
	tm     tmuxClient
	onData OutputFunc

	mu            sync.Mutex
	currentWindow string
	fifoPath      string
	tailFile      *os.File
}

// NewTerminalProxy creates a proxy that invokes onData for every chunk
// of output tailed from the window it is currently attached to.
func NewTerminalProxy(tm tmuxClient, onData OutputFunc) *TerminalProxy {
	return &TerminalProxy{tm: tm, onData: onData}
}

// CurrentWindow returns the tmux target this proxy currently tails, or
// "" if it isn't attached to anything (never attached, or the last
// target disappeared under liveness monitoring).
func (p *TerminalProxy) CurrentWindow() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentWindow
}

// SwitchTo tears down any existing tail and starts tailing target.
// Idempotent when target is already the current window. Returns a
// *TerminalProxyError describing why a switch failed.
func (p *TerminalProxy) SwitchTo(target string) error {
	if target == "" {
		return newProxyError(ErrInvalidWindow, "empty tmux target", false)
	}
	if p.CurrentWindow() == target {
		return nil
	}
	if _, err := p.tm.GetPaneID(target); err != nil {
		return newProxyError(ErrInvalidWindow, fmt.Sprintf("target %s not found: %v", target, err), true)
	}

	p.teardown()

	fifoPath := filepath.Join(os.TempDir(), fmt.Sprintf("agentboard-%s.fifo", uuid.NewString()))
	if err := syscall.Mkfifo(fifoPath, 0600); err != nil {
		return newProxyError(ErrTmuxSwitchFailed, fmt.Sprintf("creating fifo: %v", err), true)
	}

	if err := p.tm.PipePane(target, fmt.Sprintf("cat >> %s", fifoPath)); err != nil {
		_ = os.Remove(fifoPath)
		return newProxyError(ErrTmuxSwitchFailed, fmt.Sprintf("pipe-pane: %v", err), true)
	}

	// O_NONBLOCK lets the open succeed immediately even if tmux's writer
	// hasn't attached to the pipe yet, and keeps the fd in Go's runtime
	// poller so Read still blocks properly between chunks.
	f, err := os.OpenFile(fifoPath, os.O_RDONLY|syscall.O_NONBLOCK, 0)
	if err != nil {
		_ = p.tm.PipePane(target, "")
		_ = os.Remove(fifoPath)
		return newProxyError(ErrTmuxSwitchFailed, fmt.Sprintf("opening fifo: %v", err), true)
	}

	p.mu.Lock()
	p.currentWindow = target
	p.fifoPath = fifoPath
	p.tailFile = f
	p.mu.Unlock()

	go p.tailLoop(f)
	return nil
}

func (p *TerminalProxy) tailLoop(f *os.File) {
	buf := make([]byte, 32*1024)
	for {
		n, err := f.Read(buf)
		if n > 0 && p.onData != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			p.onData(chunk)
		}
		if err != nil {
			return
		}
	}
}

// Write fragments data on "\n", sending each non-empty segment as a
// literal send-keys chunk followed by an Enter keystroke for every
// newline actually present in data — so a caller writing "foo\n" sends
// "foo" + Enter, while "foo" alone (no newline yet, e.g. mid-paste)
// sends only the literal text. No-op when no window is attached.
func (p *TerminalProxy) Write(data string) error {
	target := p.CurrentWindow()
	if target == "" {
		return nil
	}
	parts := strings.Split(data, "\n")
	for i, part := range parts {
		last := i == len(parts)-1
		if part != "" {
			if err := p.tm.SendKeysLiteral(target, part); err != nil {
				return newProxyError(ErrTmuxSendFailed, err.Error(), true)
			}
		}
		if !last {
			if err := p.tm.SendEnter(target); err != nil {
				return newProxyError(ErrTmuxSendFailed, err.Error(), true)
			}
		}
	}
	return nil
}

// Resize forwards a pane resize, or does nothing when no window is
// attached.
func (p *TerminalProxy) Resize(cols, rows int) error {
	target := p.CurrentWindow()
	if target == "" {
		return nil
	}
	if err := p.tm.ResizePane(target, cols, rows); err != nil {
		return newProxyError(ErrTmuxResizeFailed, err.Error(), true)
	}
	return nil
}

// Dispose kills the tail and clears proxy state. Safe to call more than
// once, and safe to call on a never-attached proxy.
func (p *TerminalProxy) Dispose() {
	p.teardown()
}

func (p *TerminalProxy) teardown() {
	p.mu.Lock()
	window := p.currentWindow
	f := p.tailFile
	fifoPath := p.fifoPath
	p.currentWindow = ""
	p.tailFile = nil
	p.fifoPath = ""
	p.mu.Unlock()

	if f == nil {
		return
	}
	if window != "" {
		_ = p.tm.PipePane(window, "")
	}
	_ = f.Close()
	if fifoPath != "" {
		_ = os.Remove(fifoPath)
	}
}

// clearCurrentWindow drops the current-window claim, closes the tail file
// descriptor and removes the FIFO, but skips the pipe-pane stop call;
// used by the liveness monitor when the pane has already disappeared out
// from under tmux (pipe-pane has nothing left to stop).
func (p *TerminalProxy) clearCurrentWindow() {
	p.mu.Lock()
	p.currentWindow = ""
	f := p.tailFile
	p.tailFile = nil
	fifoPath := p.fifoPath
	p.fifoPath = ""
	p.mu.Unlock()
	if f != nil {
		_ = f.Close()
	}
	if fifoPath != "" {
		_ = os.Remove(fifoPath)
	}
}

// MonitorLiveness polls list-panes on an interval and clears the current
// window when its target has disappeared, so the next Write/Resize
// becomes a silent no-op until a fresh SwitchTo succeeds. Blocks until
// stop is closed; intended to run in its own goroutine per connection.
func (p *TerminalProxy) MonitorLiveness(stop <-chan struct{}) {
	ticker := time.NewTicker(constants.TerminalLivenessProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			target := p.CurrentWindow()
			if target == "" {
				continue
			}
			if _, err := p.tm.GetPaneID(target); err != nil && errors.Is(err, tmux.ErrSessionNotFound) {
				p.clearCurrentWindow()
			}
		}
	}
}
