// Package poller drives MatchWorker on a timer, reconciles its output
// into the session database, and emits registry events. It is the
// only component that writes session state derived from log content.
package poller

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/agentboard/agentboard/internal/constants"
	"github.com/agentboard/agentboard/internal/logmatch"
	"github.com/agentboard/agentboard/internal/matchworker"
	"github.com/agentboard/agentboard/internal/registry"
	"github.com/agentboard/agentboard/internal/sessiondb"
)

// WindowLister enumerates the live tmux windows eligible for matching,
// one per managed or external session.
type WindowLister interface {
	ListWindows() ([]logmatch.Window, error)
}

// EnterLockChecker reports whether a tmux window is currently under
// the Gateway's Enter-key capture lock, suppressing log-driven
// lastUserMessage overwrites while a client's own keystroke is still
// in flight.
type EnterLockChecker interface {
	IsLastUserMessageLocked(tmuxWindow string) bool
}

// Resurrector recreates a tmux window for a pinned orphaned session and
// resumes the agent inside it, returning the new window's target.
type Resurrector interface {
	Resurrect(record sessiondb.Record) (tmuxWindow string, err error)
}

// Config tunes one poller instance. Zero values fall back to defaults:
// constants package values for Interval, ScrollbackLines and
// RematchCooldown, 10 for MinTokensForMatch and 40 for MaxLogsPerPoll.
type Config struct {
	Interval          time.Duration
	ScrollbackLines   int
	MinTokensForMatch int
	RGThreads         int
	MaxLogsPerPoll    int
	RematchCooldown   time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = constants.DefaultPollInterval
	}
	if c.Interval < constants.MinPollInterval {
		c.Interval = constants.MinPollInterval
	}
	if c.ScrollbackLines <= 0 {
		c.ScrollbackLines = constants.DefaultScrollbackLines
	}
	if c.MinTokensForMatch <= 0 {
		c.MinTokensForMatch = 10
	}
	if c.MaxLogsPerPoll <= 0 {
		c.MaxLogsPerPoll = 40
	}
	if c.RematchCooldown <= 0 {
		c.RematchCooldown = constants.RematchCooldown
	}
	return c
}

// Stats summarizes one poll cycle for diagnostics.
type Stats struct {
	LogsScanned int
	NewSessions int
	Matches     int
	Orphans     int
	Resurrected int
	Errors      int
	DurationMs  int64
}

// Poller owns the single-flight scheduling state described by the
// system's reconciliation contract: at most one cycle runs at a time,
// and caches persist only across cycles the poller itself drives.
type Poller struct {
	Worker   *matchworker.Worker
	DB       *sessiondb.DB
	Registry *registry.Registry
	Windows  WindowLister
	Locks    EnterLockChecker
	Config   Config

	// Resurrector recreates pinned-orphan tmux windows, if set. Nil
	// disables resurrection (orphans stay orphaned until their tmux
	// window reappears on its own).
	Resurrector Resurrector

	mu                 sync.Mutex
	pollInFlight       bool
	forceOrphanRematch bool
	startupPending     bool
	startupDone        bool

	cacheMu             sync.Mutex
	emptyLogCache       map[string]int64 // logPath -> mtime last seen empty
	rematchAttemptCache map[string]time.Time
}

// New constructs a Poller. forceOrphanRematch starts true so the first
// poll after process start attempts a full orphan rematch.
func New(worker *matchworker.Worker, db *sessiondb.DB, reg *registry.Registry, windows WindowLister, locks EnterLockChecker, cfg Config) *Poller {
	return &Poller{
		Worker:              worker,
		DB:                  db,
		Registry:            reg,
		Windows:             windows,
		Locks:               locks,
		Config:              cfg.withDefaults(),
		forceOrphanRematch:  true,
		startupPending:      true,
		emptyLogCache:       make(map[string]int64),
		rematchAttemptCache: make(map[string]time.Time),
	}
}

// Run blocks, driving poll cycles on Config.Interval until ctx is
// canceled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.Config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll runs a single cycle. If a cycle is already in flight it returns
// a zero Stats immediately rather than queuing.
func (p *Poller) Poll(ctx context.Context) Stats {
	p.mu.Lock()
	if p.pollInFlight {
		p.mu.Unlock()
		return Stats{}
	}
	p.pollInFlight = true
	force := p.forceOrphanRematch
	p.forceOrphanRematch = false
	maxLogs := p.Config.MaxLogsPerPoll
	if p.startupPending && !p.startupDone {
		maxLogs = max(maxLogs, 100)
	}
	p.mu.Unlock()

	start := time.Now()
	defer func() {
		p.mu.Lock()
		p.pollInFlight = false
		p.mu.Unlock()
	}()

	windows, err := p.Windows.ListWindows()
	if err != nil {
		p.rearmOnError()
		return Stats{Errors: 1, DurationMs: time.Since(start).Milliseconds()}
	}

	active, err := p.DB.ListActive()
	if err != nil {
		p.rearmOnError()
		return Stats{Errors: 1, DurationMs: time.Since(start).Milliseconds()}
	}
	if p.startupPending {
		active = p.verifyStartupAssociations(active)
	}
	inactive, err := p.DB.ListInactive(0, time.Now())
	if err != nil {
		p.rearmOnError()
		return Stats{Errors: 1, DurationMs: time.Since(start).Milliseconds()}
	}

	known := make([]matchworker.KnownSession, 0, len(active)+len(inactive))
	knownLogPaths := make(map[string]bool, len(active)+len(inactive))
	var orphanCandidates []matchworker.KnownSession
	var lastMessageCandidates []string
	for _, r := range append(append([]sessiondb.Record(nil), active...), inactive...) {
		ks := recordToKnownSession(r)
		known = append(known, ks)
		knownLogPaths[r.LogFilePath] = true
		if r.CurrentWindow == "" {
			orphanCandidates = append(orphanCandidates, ks)
		}
		if r.LastUserMessage == "" {
			lastMessageCandidates = append(lastMessageCandidates, r.LogFilePath)
		}
	}

	p.cacheMu.Lock()
	for path := range p.emptyLogCache {
		knownLogPaths[path] = true
	}
	p.cacheMu.Unlock()

	req := matchworker.Request{
		ID:                    fmt.Sprintf("poll-%d", start.UnixNano()),
		Windows:               windows,
		MaxLogsPerPoll:        maxLogs,
		Sessions:              known,
		KnownLogPaths:         knownLogPaths,
		ScrollbackLines:       p.Config.ScrollbackLines,
		MinTokensForMatch:     p.Config.MinTokensForMatch,
		ForceOrphanRematch:    force,
		OrphanCandidates:      p.filterDueForRematch(orphanCandidates),
		LastMessageCandidates: lastMessageCandidates,
		Search:                matchworker.SearchConfig{RGThreads: p.Config.RGThreads},
	}

	resp := p.Worker.Run(ctx, req)
	if resp.Err != nil {
		p.rearmOnError()
		return Stats{Errors: 1, DurationMs: time.Since(start).Milliseconds()}
	}

	stats := p.reconcile(resp, known)
	stats.Resurrected = p.resurrectPinnedOrphans()
	stats.LogsScanned = len(resp.Entries) + len(resp.OrphanEntries)
	stats.DurationMs = time.Since(start).Milliseconds()

	p.mu.Lock()
	if p.startupPending {
		p.startupPending = false
		p.startupDone = true
	}
	p.mu.Unlock()

	return stats
}

// resurrectPinnedOrphans asks the Resurrector to recreate a tmux window
// for each pinned orphan, one per cycle's worth of DB state, recording
// any failure in lastResumeError rather than retrying immediately —
// the next poll cycle will see the orphan again and try once more.
func (p *Poller) resurrectPinnedOrphans() int {
	if p.Resurrector == nil {
		return 0
	}
	orphans, err := p.DB.ListPinnedOrphaned()
	if err != nil {
		return 0
	}
	resurrected := 0
	for _, r := range orphans {
		window, err := p.Resurrector.Resurrect(r)
		if err != nil {
			msg := err.Error()
			_ = p.DB.Update(r.SessionID, sessiondb.Patch{LastResumeError: &msg})
			p.Registry.UpdateSession(r.SessionID, registry.Patch{LastResumeError: &msg})
			continue
		}
		now := time.Now().UTC().Format(time.RFC3339)
		cleared := ""
		if err := p.DB.Update(r.SessionID, sessiondb.Patch{CurrentWindow: &window, LastActivityAt: &now, LastResumeError: &cleared}); err != nil {
			continue
		}
		p.Registry.UpdateSession(r.SessionID, registry.Patch{CurrentWindow: &window, LastActivityAt: &now, LastResumeError: &cleared})
		resurrected++
	}
	return resurrected
}

// verifyStartupAssociations re-verifies every active session's stored
// tmux-window association against what the matcher currently believes,
// before the first poll cycle ever trusts sessiondb's rows. A
// mismatched association is demoted to orphaned rather than corrected
// outright, so the normal orphan-rematch path (already forced on the
// first cycle) picks the right window back up instead of this method
// guessing at one.
func (p *Poller) verifyStartupAssociations(active []sessiondb.Record) []sessiondb.Record {
	sessions := make([]matchworker.KnownSession, len(active))
	for i, r := range active {
		sessions[i] = recordToKnownSession(r)
	}
	verdicts := p.Worker.VerifyKnownAssociations(sessions, matchworker.SearchConfig{RGThreads: p.Config.RGThreads}, p.Config.ScrollbackLines)
	for i, r := range active {
		if verdicts[r.SessionID] != logmatch.Mismatch {
			continue
		}
		cleared := ""
		if err := p.DB.Update(r.SessionID, sessiondb.Patch{CurrentWindow: &cleared}); err != nil {
			continue
		}
		p.Registry.UpdateSession(r.SessionID, registry.Patch{CurrentWindow: &cleared})
		active[i].CurrentWindow = ""
	}
	return active
}

func (p *Poller) rearmOnError() {
	p.mu.Lock()
	p.forceOrphanRematch = true
	p.mu.Unlock()
}

func (p *Poller) filterDueForRematch(candidates []matchworker.KnownSession) []matchworker.KnownSession {
	now := time.Now()
	p.cacheMu.Lock()
	defer p.cacheMu.Unlock()
	var out []matchworker.KnownSession
	for _, c := range candidates {
		last, attempted := p.rematchAttemptCache[c.SessionID]
		if attempted && now.Sub(last) < p.Config.RematchCooldown {
			continue
		}
		out = append(out, c)
	}
	return out
}

func recordToKnownSession(r sessiondb.Record) matchworker.KnownSession {
	return matchworker.KnownSession{
		SessionID:       r.SessionID,
		LogFilePath:     r.LogFilePath,
		LastActivityAt:  r.LastActivityAt,
		CurrentWindow:   r.CurrentWindow,
		AgentType:       r.AgentType,
		LastUserMessage: r.LastUserMessage,
	}
}

// reconcile applies a worker response to sessiondb and the registry,
// following the per-entry rules: update existing records' activity and
// message, activate rematched orphans (refusing to steal an
// already-claimed window), and insert brand-new records above the
// token floor.
func (p *Poller) reconcile(resp matchworker.Response, known []matchworker.KnownSession) Stats {
	var stats Stats
	now := time.Now().UTC().Format(time.RFC3339)

	claimedWindows := make(map[string]string) // tmuxWindow -> sessionId
	for _, ks := range known {
		if ks.CurrentWindow != "" {
			claimedWindows[ks.CurrentWindow] = ks.SessionID
		}
	}

	matchByLogPath := make(map[string]string, len(resp.Matches)+len(resp.OrphanMatches))
	for _, m := range resp.Matches {
		matchByLogPath[m.LogPath] = m.TmuxWindow
	}
	for _, m := range resp.OrphanMatches {
		matchByLogPath[m.LogPath] = m.TmuxWindow
	}

	for _, e := range resp.Entries {
		existing, found, _ := p.DB.GetByLogFilePath(e.LogPath)
		switch {
		case found:
			stats.Matches += p.reconcileExisting(existing, e, matchByLogPath, claimedWindows, now)
		case e.LogTokenCount < p.Config.MinTokensForMatch:
			p.cacheMu.Lock()
			p.emptyLogCache[e.LogPath] = e.MtimeUnixNano
			p.cacheMu.Unlock()
		default:
			if p.insertNew(e, matchByLogPath, claimedWindows, now) {
				stats.NewSessions++
			}
		}
	}

	for _, e := range resp.OrphanEntries {
		existing, found, _ := p.DB.GetByLogFilePath(e.LogPath)
		if !found || existing.CurrentWindow != "" {
			continue
		}
		p.recordRematchAttempt(existing.SessionID)
		window, matched := matchByLogPath[e.LogPath]
		if !matched {
			continue
		}
		if owner, claimed := claimedWindows[window]; claimed && owner != existing.SessionID {
			continue
		}
		if p.activateOrphan(existing, window, now) {
			stats.Orphans++
			claimedWindows[window] = existing.SessionID
		}
	}

	return stats
}

func (p *Poller) recordRematchAttempt(sessionID string) {
	p.cacheMu.Lock()
	p.rematchAttemptCache[sessionID] = time.Now()
	p.cacheMu.Unlock()
}

func (p *Poller) reconcileExisting(existing sessiondb.Record, e matchworker.Entry, matchByLogPath map[string]string, claimedWindows map[string]string, now string) int {
	patch := sessiondb.Patch{}
	changed := false

	if e.MtimeUnixNano > 0 && now > existing.LastActivityAt {
		patch.LastActivityAt = &now
		changed = true
	}

	locked := existing.CurrentWindow != "" && p.Locks != nil && p.Locks.IsLastUserMessageLocked(existing.CurrentWindow)
	if !locked && e.LastUserMessage != "" {
		isToolNotification := existing.LastUserMessage == "" || existing.LastUserMessage == "tool-notification"
		if isToolNotification || (changed && e.LastUserMessage != existing.LastUserMessage) {
			patch.LastUserMessage = &e.LastUserMessage
			changed = true
		}
	}

	if e.Model != "" && e.Model != existing.Model {
		patch.Model = &e.Model
		changed = true
	}
	if e.GitBranch != "" && e.GitBranch != existing.GitBranch {
		patch.GitBranch = &e.GitBranch
		changed = true
	}
	if e.MessageCount > existing.MessageCount {
		patch.MessageCount = &e.MessageCount
		changed = true
	}

	matched := 0
	if existing.CurrentWindow == "" {
		if window, ok := matchByLogPath[e.LogPath]; ok {
			if owner, claimed := claimedWindows[window]; !claimed || owner == existing.SessionID {
				if p.activateOrphan(existing, window, now) {
					matched = 1
					claimedWindows[window] = existing.SessionID
				}
			}
		}
	}

	if changed {
		_ = p.DB.Update(existing.SessionID, patch)
		p.Registry.UpdateSession(existing.SessionID, registry.Patch{
			LastActivityAt:  patch.LastActivityAt,
			LastUserMessage: patch.LastUserMessage,
			Model:           patch.Model,
			GitBranch:       patch.GitBranch,
			MessageCount:    patch.MessageCount,
		})
	}
	return matched
}

func (p *Poller) activateOrphan(existing sessiondb.Record, window string, now string) bool {
	w := window
	if err := p.DB.Update(existing.SessionID, sessiondb.Patch{CurrentWindow: &w, LastActivityAt: &now}); err != nil {
		return false
	}
	p.Registry.UpdateSession(existing.SessionID, registry.Patch{CurrentWindow: &w, LastActivityAt: &now})
	return true
}

func (p *Poller) insertNew(e matchworker.Entry, matchByLogPath map[string]string, claimedWindows map[string]string, now string) bool {
	window, matched := matchByLogPath[e.LogPath]
	if matched {
		if owner, claimed := claimedWindows[window]; claimed {
			if existing, found, _ := p.DB.GetBySessionID(owner); found {
				_ = p.DB.Orphan(existing.SessionID)
				p.Registry.UpdateSession(existing.SessionID, registry.Patch{CurrentWindow: ptr("")})
			}
		}
	}

	base := displayNameBase(e)
	name, err := p.DB.UniqueDisplayName(base)
	if err != nil {
		name = fmt.Sprintf("%s-%s", base, randomShortSuffix())
	}

	record := sessiondb.Record{
		SessionID:       e.SessionID,
		LogFilePath:     e.LogPath,
		ProjectPath:     e.ProjectPath,
		AgentType:       e.AgentType,
		DisplayName:     name,
		CreatedAt:       now,
		LastActivityAt:  now,
		LastUserMessage: e.LastUserMessage,
		IsCodexExec:     e.IsCodexExec,
		GitBranch:       e.GitBranch,
		Model:           e.Model,
		MessageCount:    e.MessageCount,
	}
	if matched {
		record.CurrentWindow = window
	}

	if err := p.DB.Insert(record); err != nil {
		return false
	}

	if matched {
		claimedWindows[window] = record.SessionID
	}

	p.Registry.ReplaceSessions(append(p.Registry.List(), registry.Session{
		SessionID:       record.SessionID,
		LogFilePath:     record.LogFilePath,
		ProjectPath:     record.ProjectPath,
		AgentType:       record.AgentType,
		DisplayName:     record.DisplayName,
		CreatedAt:       record.CreatedAt,
		LastActivityAt:  record.LastActivityAt,
		LastUserMessage: record.LastUserMessage,
		CurrentWindow:   record.CurrentWindow,
		GitBranch:       record.GitBranch,
		Model:           record.Model,
		MessageCount:    record.MessageCount,
	}))
	return true
}

func ptr(s string) *string { return &s }

func displayNameBase(e matchworker.Entry) string {
	if e.ProjectPath != "" {
		base := e.ProjectPath
		for i := len(base) - 1; i >= 0; i-- {
			if base[i] == '/' {
				return base[i+1:]
			}
		}
		return base
	}
	return string(e.AgentType)
}

func randomShortSuffix() string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, 5)
	for i := range b {
		b[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return string(b)
}
