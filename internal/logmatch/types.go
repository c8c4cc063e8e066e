// Package logmatch correlates tmux windows to on-disk agent logs by
// fuzzy-matching recent scrollback against log contents. It is the
// cognitive center of agentboard: everything else exists to feed it
// windows and candidate log paths, or to apply its verdicts.
package logmatch

import "github.com/agentboard/agentboard/internal/constants"

// Verdict is the tri-state result of verifying a stored window/log
// association against what the matcher currently believes.
type Verdict string

const (
	Verified     Verdict = "verified"
	Mismatch     Verdict = "mismatch"
	Inconclusive Verdict = "inconclusive"
)

// Window is the minimal shape the matcher needs to capture and identify
// a tmux window; callers supply ProjectPath/AgentType when already known
// from a prior association, to narrow ranking.
type Window struct {
	Target      string // tmux target, e.g. "agentboard:@1"
	Source      string // "managed" | "external"
	ProjectPath string
	AgentType   constants.AgentType
}

// CandidateEntry is one log under consideration for matching, carrying
// whatever identity metadata LogStore/logschema already extracted.
type CandidateEntry struct {
	LogPath         string
	AgentType       constants.AgentType
	ProjectPath     string
	SessionID       string
	IsCodexSubagent bool
}

// SearchOptions controls how MatchWindowToLog hunts for candidate logs.
type SearchOptions struct {
	// CandidatePaths, when non-empty, bounds the search to these logs
	// (path-bounded mode). Empty means directory-wide grep across Roots.
	CandidatePaths []string
	Roots          []string
	RGThreads      int
	ScrollbackLines int
	ExcludePaths   map[string]bool
}

// ScoredCandidate is one log's ordered-match score against a window's
// recent messages.
type ScoredCandidate struct {
	LogPath      string
	MatchedCount int
	MatchedLen   int
	FromTail     bool
}

// Less reports whether c scores below other under the (matchedCount desc,
// matchedLength desc) comparator — i.e. whether other should rank ahead.
func (c ScoredCandidate) Less(other ScoredCandidate) bool {
	if c.MatchedCount != other.MatchedCount {
		return c.MatchedCount < other.MatchedCount
	}
	return c.MatchedLen < other.MatchedLen
}
