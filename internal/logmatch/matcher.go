package logmatch

import (
	"github.com/agentboard/agentboard/internal/logschema"
	"github.com/agentboard/agentboard/internal/logstore"
)

// Matcher ties scrollback capture, pattern search, and ranking together
// into the window<->log correlation the rest of the system consumes. It
// is pure with respect to external IO: every method only reads.
type Matcher struct {
	TM     ScrollbackCapturer
	Store  *logstore.Store
	Grep   Grepper
	Roots  []string
}

// New creates a Matcher. grep may be nil, in which case a real
// RGGrepper shelling out to the "rg" binary is used.
func New(tm ScrollbackCapturer, store *logstore.Store, grep Grepper, roots []string) *Matcher {
	if grep == nil {
		grep = NewRGGrepper()
	}
	return &Matcher{TM: tm, Store: store, Grep: grep, Roots: roots}
}

type matchOutcome struct {
	logPath string
	score   ScoredCandidate
	ok      bool
}

// MatchWindowToLog returns the single best-matching log path for window
// among candidates, or ("", false) if no confident match exists
// (inconclusive).
func (m *Matcher) MatchWindowToLog(window Window, candidates []CandidateEntry, opts SearchOptions) (string, bool) {
	out := m.matchWindow(window, candidates, opts)
	return out.logPath, out.ok
}

func (m *Matcher) matchWindow(window Window, candidates []CandidateEntry, opts SearchOptions) matchOutcome {
	agentType := window.AgentType
	scrollback, err := CaptureScrollback(m.TM, window.Target, opts.ScrollbackLines, agentType)
	if err != nil || scrollback == "" {
		return matchOutcome{}
	}

	messages, fromTrace := ExtractUserMessages(scrollback, agentType)
	if len(messages) == 0 {
		return matchOutcome{}
	}

	byPath := make(map[string]CandidateEntry, len(candidates))
	for _, c := range candidates {
		if fromTrace && c.IsCodexSubagent {
			continue // trace fallback never matches Codex subagent logs
		}
		byPath[c.LogPath] = c
	}

	matchesFor := func(msg string) map[string]bool {
		hits := m.searchCandidates(msg, opts)
		valid := ValidateCandidates(m.Store, hits, msg)
		set := make(map[string]bool, len(valid))
		for _, p := range valid {
			if _, ok := byPath[p]; ok {
				set[p] = true
			}
		}
		return set
	}

	var universe []string
	unionSeen := make(map[string]bool)
	for _, msg := range messages {
		for p := range matchesFor(msg) {
			if !unionSeen[p] {
				unionSeen[p] = true
				universe = append(universe, p)
			}
		}
	}
	if len(universe) == 0 {
		return matchOutcome{}
	}

	narrowed := intersectByLongestFirst(messages, matchesFor, universe)
	narrowed = m.applyFilters(narrowed, byPath, window, opts)
	if len(narrowed) == 0 {
		return matchOutcome{}
	}
	if len(narrowed) == 1 {
		return matchOutcome{logPath: narrowed[0], ok: true}
	}

	ranked := m.rankByOrderedScore(messages, narrowed, false)
	if len(ranked) == 0 {
		return matchOutcome{}
	}
	if !isTopTied(ranked) {
		return matchOutcome{logPath: ranked[0].LogPath, score: ranked[0], ok: true}
	}

	// Re-rank tied candidates against the full file via grep line
	// numbers before giving up, per the tie-break escalation rule.
	tiedPaths := []string{ranked[0].LogPath, ranked[1].LogPath}
	rerankedTied := m.rankByOrderedScore(messages, tiedPaths, true)
	merged := append([]ScoredCandidate(nil), rerankedTied...)
	for _, c := range ranked[2:] {
		merged = append(merged, c)
	}
	merged = rankCandidates(merged)
	if isTopTied(merged) {
		return matchOutcome{}
	}
	return matchOutcome{logPath: merged[0].LogPath, score: merged[0], ok: true}
}

func (m *Matcher) searchCandidates(msg string, opts SearchOptions) []string {
	pattern := BuildPattern(msg)
	if pattern == "" {
		return nil
	}

	if len(opts.CandidatePaths) > 0 {
		tailHits := tailScan(m.Store, pattern, opts.CandidatePaths)
		if len(tailHits) == 1 {
			return tailHits
		}
		return m.Grep.FileMatches(pattern, opts.CandidatePaths, opts.RGThreads)
	}

	roots := opts.Roots
	if len(roots) == 0 {
		roots = m.Roots
	}
	return m.Grep.FilesWithMatches(pattern, roots, opts.RGThreads)
}

func (m *Matcher) applyFilters(paths []string, byPath map[string]CandidateEntry, window Window, opts SearchOptions) []string {
	var out []string
	for _, p := range paths {
		if opts.ExcludePaths != nil && opts.ExcludePaths[p] {
			continue
		}
		entry, ok := byPath[p]
		if !ok {
			continue
		}
		if window.AgentType != "" && entry.AgentType != window.AgentType {
			continue
		}
		if window.ProjectPath != "" && entry.ProjectPath != "" &&
			!logschema.IsSameOrChildPath(window.ProjectPath, entry.ProjectPath) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (m *Matcher) rankByOrderedScore(messages []string, paths []string, fullFile bool) []ScoredCandidate {
	chrono := filterAndReverseForScoring(messages)
	var scored []ScoredCandidate
	for _, p := range paths {
		var count, length int
		if fullFile {
			count, length = scoreAgainstLineNumbers(chrono, func(pattern string) []int {
				return m.Grep.LineNumbers(pattern, p)
			})
		} else {
			tail, ok := m.Store.ReadTail(p, tailOnlyScanBytes)
			if !ok {
				continue
			}
			count, length = scoreAgainstText(chrono, string(tail))
		}
		scored = append(scored, ScoredCandidate{LogPath: p, MatchedCount: count, MatchedLen: length, FromTail: !fullFile})
	}
	return rankCandidates(scored)
}

// MatchWindowsToLogs computes the best match for every window and
// resolves collisions: when two windows claim the same log, the one
// with the higher ordered score keeps it; a tie drops the log from the
// result entirely (the "blocked" set) rather than guessing.
func (m *Matcher) MatchWindowsToLogs(windows []Window, candidates []CandidateEntry, opts SearchOptions) map[string]Window {
	type claim struct {
		window Window
		score  ScoredCandidate
	}
	claims := make(map[string]claim)
	blocked := make(map[string]bool)

	for _, w := range windows {
		out := m.matchWindow(w, candidates, opts)
		if !out.ok {
			continue
		}
		existing, has := claims[out.logPath]
		if !has {
			claims[out.logPath] = claim{window: w, score: out.score}
			continue
		}
		if out.score.Less(existing.score) {
			continue // existing claimant scored higher, keep it
		}
		if existing.score.Less(out.score) {
			claims[out.logPath] = claim{window: w, score: out.score}
			continue
		}
		// Equal score: blocked, neither keeps it.
		blocked[out.logPath] = true
	}

	result := make(map[string]Window, len(claims))
	for path, c := range claims {
		if blocked[path] {
			continue
		}
		result[path] = c.window
	}
	return result
}

// VerifyWindowLogDetailed checks a stored window/log association against
// what the matcher currently believes: verified iff logPath is exactly
// the window's best match, mismatch iff a different log wins, and
// inconclusive if no confident match exists.
func (m *Matcher) VerifyWindowLogDetailed(window Window, logPath string, candidates []CandidateEntry, opts SearchOptions) Verdict {
	best, ok := m.MatchWindowToLog(window, candidates, opts)
	if !ok {
		return Inconclusive
	}
	if best == logPath {
		return Verified
	}
	return Mismatch
}
