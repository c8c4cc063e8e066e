// Package registry holds the in-memory, event-emitting view of agent
// sessions that the gateway streams to thin clients. It is a cache in
// front of sessiondb, not a source of truth: the poller reconciles
// sessiondb and pushes the result here, and the registry's job is to
// diff against what it already holds and emit only the events that
// describe what changed.
package registry

import (
	"sort"
	"sync"

	"github.com/agentboard/agentboard/internal/constants"
)

// Session is the registry's read-model of one correlated session,
// keyed by sessionId. It is a flattened, client-facing projection of
// sessiondb.Record plus liveness fields the poller computes.
type Session struct {
	SessionID       string
	LogFilePath     string
	ProjectPath     string
	AgentType       constants.AgentType
	DisplayName     string
	CreatedAt       string
	LastActivityAt  string
	LastUserMessage string
	CurrentWindow   string
	IsPinned        bool
	LastResumeError string
	GitBranch       string
	Model           string
	MessageCount    int
}

func (s Session) equal(other Session) bool {
	return s == other
}

// Patch mirrors sessiondb.Patch for the registry's in-memory copy.
type Patch struct {
	ProjectPath     *string
	DisplayName     *string
	LastActivityAt  *string
	LastUserMessage *string
	CurrentWindow   *string
	IsPinned        *bool
	LastResumeError *string
	GitBranch       *string
	Model           *string
	MessageCount    *int
}

func (p Patch) apply(s Session) Session {
	if p.ProjectPath != nil {
		s.ProjectPath = *p.ProjectPath
	}
	if p.DisplayName != nil {
		s.DisplayName = *p.DisplayName
	}
	if p.LastActivityAt != nil {
		s.LastActivityAt = *p.LastActivityAt
	}
	if p.LastUserMessage != nil {
		s.LastUserMessage = *p.LastUserMessage
	}
	if p.CurrentWindow != nil {
		s.CurrentWindow = *p.CurrentWindow
	}
	if p.IsPinned != nil {
		s.IsPinned = *p.IsPinned
	}
	if p.LastResumeError != nil {
		s.LastResumeError = *p.LastResumeError
	}
	if p.GitBranch != nil {
		s.GitBranch = *p.GitBranch
	}
	if p.Model != nil {
		s.Model = *p.Model
	}
	if p.MessageCount != nil {
		s.MessageCount = *p.MessageCount
	}
	return s
}

// Event names the registry emits. Listeners register per name via On.
const (
	EventSessionAdded   = "session-added"
	EventSessionUpdated = "session-updated"
	EventSessionRemoved = "session-removed"
	EventSessions       = "sessions" // full-list snapshot, emitted after any ReplaceSessions call that added, removed or changed a session
)

// Listener receives an event's payload. For session-added/updated it is
// a Session; for session-removed it is the removed sessionId (string);
// for "sessions" it is []Session sorted by sessionId.
type Listener func(payload any)

// Registry is the mutex-guarded session map. All exported methods are
// safe for concurrent use; event dispatch always happens after the
// lock is released so a listener can safely call back into the
// registry without deadlocking.
type Registry struct {
	mu        sync.Mutex
	sessions  map[string]Session // sessionId -> Session
	listeners map[string][]Listener
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		sessions:  make(map[string]Session),
		listeners: make(map[string][]Listener),
	}
}

// On registers a listener for an event name. Returns nothing removable
// by design: listeners live for the process lifetime, one set per
// connected gateway client.
func (r *Registry) On(event string, l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners[event] = append(r.listeners[event], l)
}

func (r *Registry) emit(event string, payload any) {
	r.mu.Lock()
	ls := append([]Listener(nil), r.listeners[event]...)
	r.mu.Unlock()
	for _, l := range ls {
		l(payload)
	}
}

// Get returns a session by id.
func (r *Registry) Get(sessionID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

// List returns all sessions sorted by sessionId.
func (r *Registry) List() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() []Session {
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// ReplaceSessions diffs the given list against the current contents
// and emits session-added/session-removed for entries that appeared
// or disappeared, session-updated for entries whose fields changed,
// and finally one "sessions" snapshot event if anything changed at
// all. Byte-identical lists (no adds, removes, or field changes) emit
// nothing, matching the poller's per-cycle no-op expectation.
func (r *Registry) ReplaceSessions(list []Session) {
	type change struct {
		event   string
		payload any
	}
	var changes []change
	anyChange := false

	r.mu.Lock()
	next := make(map[string]Session, len(list))
	for _, s := range list {
		next[s.SessionID] = s
	}

	for id, old := range r.sessions {
		if _, stillPresent := next[id]; !stillPresent {
			changes = append(changes, change{EventSessionRemoved, id})
			anyChange = true
			_ = old
		}
	}
	for id, s := range next {
		if old, existed := r.sessions[id]; !existed {
			changes = append(changes, change{EventSessionAdded, s})
			anyChange = true
		} else if !old.equal(s) {
			changes = append(changes, change{EventSessionUpdated, s})
			anyChange = true
		}
	}

	r.sessions = next
	var snapshot []Session
	if anyChange {
		snapshot = r.snapshotLocked()
	}
	r.mu.Unlock()

	// session-removed is dispatched before the refreshed "sessions"
	// snapshot so a client never sees a removed id in a still-current
	// list after having already been told it's gone.
	for _, c := range changes {
		if c.event == EventSessionRemoved {
			r.emit(c.event, c.payload)
		}
	}
	for _, c := range changes {
		if c.event != EventSessionRemoved {
			r.emit(c.event, c.payload)
		}
	}
	if anyChange {
		r.emit(EventSessions, snapshot)
	}
}

// UpdateSession merges a patch into an existing session and emits
// session-updated only if the merge actually changed a field.
func (r *Registry) UpdateSession(sessionID string, p Patch) {
	r.mu.Lock()
	old, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	updated := p.apply(old)
	changed := !old.equal(updated)
	if changed {
		r.sessions[sessionID] = updated
	}
	r.mu.Unlock()

	if changed {
		r.emit(EventSessionUpdated, updated)
	}
}
