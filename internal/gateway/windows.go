package gateway

import (
	"sync"

	"github.com/agentboard/agentboard/internal/logmatch"
	"github.com/agentboard/agentboard/internal/tmux"
)

// windowLister is the subset of *tmux.Tmux WindowSource depends on.
type windowLister interface {
	ListSessions() ([]string, error)
	ListWindows(session string) ([]tmux.Window, error)
}

// WindowSource enumerates every live tmux window across all sessions on
// the host and tags each as "managed" (agentboard created it via
// session-create) or "external" (pre-existing). It implements
// poller.WindowLister.
type WindowSource struct {
	tm windowLister

	mu      sync.Mutex
	managed map[string]bool // tmux target -> true
}

// NewWindowSource creates a WindowSource backed by tm.
func NewWindowSource(tm windowLister) *WindowSource {
	return &WindowSource{tm: tm, managed: make(map[string]bool)}
}

// MarkManaged records target as a session this Gateway created, so
// later ListWindows calls report its Source as "managed".
func (w *WindowSource) MarkManaged(target string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.managed[target] = true
}

// Forget drops a target from the managed set, used when a managed
// session is killed.
func (w *WindowSource) Forget(target string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.managed, target)
}

func (w *WindowSource) isManaged(target string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.managed[target]
}

// ListWindows enumerates every window of every tmux session on the
// host, satisfying poller.WindowLister. A session that fails to list
// (e.g. raced a kill-session) is skipped rather than aborting the poll.
func (w *WindowSource) ListWindows() ([]logmatch.Window, error) {
	sessions, err := w.tm.ListSessions()
	if err != nil {
		return nil, err
	}

	var out []logmatch.Window
	for _, s := range sessions {
		windows, err := w.tm.ListWindows(s)
		if err != nil {
			continue
		}
		for _, win := range windows {
			target := win.Target(s)
			source := "external"
			if w.isManaged(target) {
				source = "managed"
			}
			out = append(out, logmatch.Window{Target: target, Source: source})
		}
	}
	return out, nil
}
