// Package matchworker runs a full scan-and-match cycle synchronously on
// the caller's goroutine (the Poller's), off the Gateway's request path,
// recovering any panic into the response's error. It is the only
// component that calls logstore.EnumerateJSONLFiles and logmatch
// directly on the Poller's behalf.
package matchworker

import (
	"context"
	"sort"
	"time"

	"github.com/agentboard/agentboard/internal/constants"
	"github.com/agentboard/agentboard/internal/logmatch"
	"github.com/agentboard/agentboard/internal/logschema"
	"github.com/agentboard/agentboard/internal/logstore"
)

const minTokenFloorDefault = 10

// KnownSession is the subset of session state the worker needs to gate
// and score candidate log entries without depending on sessiondb.
type KnownSession struct {
	SessionID       string
	LogFilePath     string
	LastActivityAt  string // RFC3339; parsed and compared against the log's mtime
	CurrentWindow   string // empty = orphaned
	AgentType       constants.AgentType
	LastUserMessage string
}

// Entry is one observed log file with head metadata and liveness info,
// the worker's equivalent of LogEntrySnapshot.
type Entry struct {
	LogPath         string
	MtimeUnixNano   int64
	SessionID       string
	ProjectPath     string
	AgentType       constants.AgentType
	IsCodexSubagent bool
	IsCodexExec     bool
	LogTokenCount   int
	LastUserMessage string
	GitBranch       string
	Model           string
	MessageCount    int
}

// Match pairs a resolved log with the tmux window it was matched to.
type Match struct {
	LogPath    string
	TmuxWindow string
}

// SearchConfig carries the grep tuning knobs through to logmatch.
type SearchConfig struct {
	RGThreads int
}

// Request is one scan-and-match cycle's full input, mirroring the
// request shape a poller assembles each cycle.
type Request struct {
	ID                 string
	Windows            []logmatch.Window
	LogDirs            map[constants.AgentType]string
	MaxLogsPerPoll      int
	Sessions           []KnownSession
	KnownLogPaths      map[string]bool // skip-set: logs we've already head-parsed
	ScrollbackLines    int
	MinTokensForMatch  int
	ForceOrphanRematch bool
	OrphanCandidates   []KnownSession
	LastMessageCandidates []string // logPaths needing a refreshed lastUserMessage
	Search             SearchConfig
}

// Response is the worker's full cycle output. Err is non-nil exactly
// when the cycle failed outright; a failed cycle still echoes ID.
type Response struct {
	ID            string
	Entries       []Entry
	OrphanEntries []Entry
	Matches       []Match
	OrphanMatches []Match
	Err           error
}

// Worker runs scan-and-match cycles. It holds no mutable cross-request
// state: every field it needs arrives on the Request.
type Worker struct {
	Store       *logstore.Store
	Matcher     *logmatch.Matcher
	MaxDepth    int
}

// New constructs a Worker bound to the given store and matcher.
func New(store *logstore.Store, matcher *logmatch.Matcher) *Worker {
	return &Worker{Store: store, Matcher: matcher, MaxDepth: 6}
}

// Run executes one request synchronously and returns its response. The
// Poller is expected to call this from its own goroutine (or a pool)
// so a slow cycle never blocks Gateway request handling; Run itself
// never panics — any unexpected failure is captured into Response.Err.
func (w *Worker) Run(ctx context.Context, req Request) (resp Response) {
	resp.ID = req.ID
	defer func() {
		if r := recover(); r != nil {
			resp = Response{ID: req.ID, Err: &workerPanicError{recovered: r}}
		}
	}()

	entries := w.enumerate(req)
	byLogPath := make(map[string]KnownSession, len(req.Sessions))
	bySessionID := make(map[string]KnownSession, len(req.Sessions))
	for _, s := range req.Sessions {
		byLogPath[s.LogFilePath] = s
		bySessionID[s.SessionID] = s
	}

	minTokens := req.MinTokensForMatch
	if minTokens <= 0 {
		minTokens = minTokenFloorDefault
	}

	toMatch := gate(entries, byLogPath, bySessionID, minTokens)

	var candidates []logmatch.CandidateEntry
	for _, e := range toMatch {
		candidates = append(candidates, toCandidateEntry(e))
	}
	windows := req.Windows

	if len(toMatch) > 0 {
		opts := logmatch.SearchOptions{RGThreads: req.Search.RGThreads, ScrollbackLines: req.ScrollbackLines}
		assigned := w.Matcher.MatchWindowsToLogs(windows, candidates, opts)
		for logPath, win := range assigned {
			resp.Matches = append(resp.Matches, Match{LogPath: logPath, TmuxWindow: win.Target})
		}
	}

	if req.ForceOrphanRematch {
		orphanEntries := w.orphanEntries(req, minTokens)
		resp.OrphanEntries = orphanEntries
		if len(orphanEntries) > 0 {
			var orphanCandidates []logmatch.CandidateEntry
			for _, e := range orphanEntries {
				orphanCandidates = append(orphanCandidates, toCandidateEntry(e))
			}
			opts := logmatch.SearchOptions{RGThreads: req.Search.RGThreads * 2, ScrollbackLines: req.ScrollbackLines}
			assigned := w.Matcher.MatchWindowsToLogs(windows, orphanCandidates, opts)
			for logPath, win := range assigned {
				resp.OrphanMatches = append(resp.OrphanMatches, Match{LogPath: logPath, TmuxWindow: win.Target})
			}
		}
	}

	for _, logPath := range req.LastMessageCandidates {
		if e := w.readLastMessageEntry(logPath); e != nil {
			entries = append(entries, *e)
		}
	}

	resp.Entries = w.attachLastUserMessage(entries, byLogPath)
	sort.Slice(resp.Entries, func(i, j int) bool { return resp.Entries[i].LogPath < resp.Entries[j].LogPath })
	return resp
}

type workerPanicError struct{ recovered any }

func (e *workerPanicError) Error() string { return "matchworker: recovered panic" }

func toCandidateEntry(e Entry) logmatch.CandidateEntry {
	return logmatch.CandidateEntry{
		LogPath:         e.LogPath,
		ProjectPath:     e.ProjectPath,
		SessionID:       e.SessionID,
		AgentType:       e.AgentType,
		IsCodexSubagent: e.IsCodexSubagent,
	}
}

// enumerate walks the configured log roots, skipping paths already
// present in req.KnownLogPaths, parsing just enough of the head to
// populate session id / project path / agent-type metadata.
func (w *Worker) enumerate(req Request) []Entry {
	files := w.Store.EnumerateJSONLFiles(w.MaxDepth)
	var out []Entry
	limit := req.MaxLogsPerPoll
	for _, f := range files {
		if limit > 0 && len(out) >= limit {
			break
		}
		if req.KnownLogPaths[f.Path] {
			continue
		}
		e, ok := w.parseEntry(f)
		if !ok {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (w *Worker) parseEntry(f logstore.LogFile) (Entry, bool) {
	times, ok := w.Store.GetTimes(f.Path)
	if !ok {
		return Entry{}, false
	}
	head, ok := w.Store.ReadHead(f.Path, constants.InitialTailBytes)
	if !ok {
		return Entry{}, false
	}
	info := logschema.ParseHead(f.AgentType, head)
	return Entry{
		LogPath:         f.Path,
		MtimeUnixNano:   times.Mtime,
		SessionID:       info.SessionID,
		ProjectPath:     info.ProjectPath,
		AgentType:       f.AgentType,
		IsCodexSubagent: info.IsCodexSubagent,
		IsCodexExec:     info.IsCodexExec,
		LogTokenCount:   estimateTokenCount(head),
		GitBranch:       info.GitBranch,
		Model:           info.Model,
		MessageCount:    logschema.CountMessages(f.AgentType, head),
	}, true
}

// estimateTokenCount is a coarse whitespace-run count used only to
// clear the gate's minimum-content floor; it is not a real tokenizer.
func estimateTokenCount(data []byte) int {
	count := 0
	inToken := false
	for _, b := range data {
		isSpace := b == ' ' || b == '\n' || b == '\t' || b == '\r'
		if isSpace {
			inToken = false
			continue
		}
		if !inToken {
			count++
			inToken = true
		}
	}
	return count
}

// gate drops entries without a sessionId, below the token floor, or
// owned by a session whose lastActivityAt is already >= the entry's
// mtime (stale re-read) unless that session is orphaned.
func gate(entries []Entry, byLogPath map[string]KnownSession, bySessionID map[string]KnownSession, minTokens int) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.SessionID == "" {
			continue
		}
		if e.LogTokenCount < minTokens {
			continue
		}
		if e.IsCodexSubagent || e.IsCodexExec {
			continue
		}
		owner, owned := byLogPath[e.LogPath]
		if !owned {
			owner, owned = bySessionID[e.SessionID]
		}
		if owned && owner.CurrentWindow != "" {
			// Active session: skip unless the entry is genuinely newer
			// than what we've already recorded.
			if !mtimeAdvanced(e, owner) {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}

func mtimeAdvanced(e Entry, owner KnownSession) bool {
	if owner.LastActivityAt == "" {
		return e.MtimeUnixNano > 0
	}
	last, err := time.Parse(time.RFC3339, owner.LastActivityAt)
	if err != nil {
		return e.MtimeUnixNano > 0
	}
	return e.MtimeUnixNano > last.UnixNano()
}

// VerifyKnownAssociations re-checks each active session's stored
// (currentWindow, logFilePath) pair against what the matcher currently
// believes, rather than trusting sessiondb blindly across a restart or
// tmux event. Sessions with no current window are skipped; everything
// else in sessions is offered up as a rematch candidate so a mismatch
// can be attributed to the log that actually wins.
func (w *Worker) VerifyKnownAssociations(sessions []KnownSession, search SearchConfig, scrollbackLines int) map[string]logmatch.Verdict {
	candidates := make([]logmatch.CandidateEntry, 0, len(sessions))
	paths := make([]string, 0, len(sessions))
	for _, s := range sessions {
		candidates = append(candidates, logmatch.CandidateEntry{
			LogPath:   s.LogFilePath,
			AgentType: s.AgentType,
			SessionID: s.SessionID,
		})
		paths = append(paths, s.LogFilePath)
	}
	opts := logmatch.SearchOptions{RGThreads: search.RGThreads, ScrollbackLines: scrollbackLines, CandidatePaths: paths}
	verdicts := make(map[string]logmatch.Verdict, len(sessions))
	for _, s := range sessions {
		if s.CurrentWindow == "" {
			continue
		}
		window := logmatch.Window{Target: s.CurrentWindow, AgentType: s.AgentType}
		verdicts[s.SessionID] = w.Matcher.VerifyWindowLogDetailed(window, s.LogFilePath, candidates, opts)
	}
	return verdicts
}

func (w *Worker) orphanEntries(req Request, minTokens int) []Entry {
	var out []Entry
	for _, s := range req.OrphanCandidates {
		f := logstore.LogFile{Path: s.LogFilePath, AgentType: s.AgentType}
		e, ok := w.parseEntry(f)
		if !ok {
			continue
		}
		if e.IsCodexSubagent || e.LogTokenCount < minTokens {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (w *Worker) readLastMessageEntry(logPath string) *Entry {
	times, ok := w.Store.GetTimes(logPath)
	if !ok {
		return nil
	}
	tail, ok := w.Store.ReadTail(logPath, constants.InitialTailBytes)
	if !ok {
		return nil
	}
	msg := extractLastUserMessage(tail)
	if msg == "" {
		return nil
	}
	return &Entry{LogPath: logPath, MtimeUnixNano: times.Mtime, LastUserMessage: msg}
}

// attachLastUserMessage fills in lastUserMessage for entries whose
// owning session has none or only a tool-notification placeholder, by
// reading the entry's own tail. Entries already carrying a message
// (e.g. synthesized for lastMessageCandidates) are left untouched.
func (w *Worker) attachLastUserMessage(entries []Entry, byLogPath map[string]KnownSession) []Entry {
	for i, e := range entries {
		if e.LastUserMessage != "" {
			continue
		}
		owner, ok := byLogPath[e.LogPath]
		if ok && owner.LastUserMessage != "" && owner.LastUserMessage != "tool-notification" {
			continue
		}
		tail, ok := w.Store.ReadTail(e.LogPath, constants.InitialTailBytes)
		if !ok {
			continue
		}
		entries[i].LastUserMessage = extractLastUserMessage(tail)
	}
	return entries
}
