// Package constants centralizes the magic numbers and enums shared across
// agentboard's components, instead of letting them drift per package.
package constants

import "time"

// AgentType identifies which AI coding agent produced a log file.
type AgentType string

const (
	AgentClaude AgentType = "claude"
	AgentCodex  AgentType = "codex"
	AgentPi     AgentType = "pi"
)

// AllAgentTypes lists every agent type LogStore knows how to discover.
var AllAgentTypes = []AgentType{AgentClaude, AgentCodex, AgentPi}

// Progressive tail-read tiers for LogStore: start small, and only read
// more of the file if the first read doesn't contain what's needed.
const (
	InitialTailBytes = 64 * 1024
	TailGrowthFactor = 4
	MaxTailBytes     = 1024 * 1024
)

// DefaultScrollbackLines is how many lines of tmux scrollback LogMatcher
// captures when building a candidate match pattern.
const DefaultScrollbackLines = 200

// DefaultPollInterval is how often LogPoller ticks in the absence of an
// explicit REFRESH_INTERVAL_MS override.
const DefaultPollInterval = 5 * time.Second

// MinPollInterval and MaxPollInterval bound the configurable poll interval.
const (
	MinPollInterval = 2 * time.Second
	MaxPollInterval = 60 * time.Second
)

// RematchCooldown is the minimum time between repeated match attempts for
// the same unmatched session, preventing a persistently-unmatchable log
// from being re-scanned every single poll tick.
const RematchCooldown = 60 * time.Second

// EnterCaptureLockDuration is how long LogPoller suppresses a log-driven
// overwrite of Session.LastUserMessage after the terminal proxy observed
// the user press Enter, so a stale poll result can't clobber a message the
// user just sent interactively.
const EnterCaptureLockDuration = 3 * time.Second

// DefaultDebounceMs is the pause between a literal send-keys paste and the
// follow-up Enter keypress.
const DefaultDebounceMs = 100

// TerminalLivenessProbeInterval is how often TerminalProxy polls
// list-panes to detect a pane that died out from under an open connection.
const TerminalLivenessProbeInterval = 5 * time.Second

// MatchWorkerQueueSize is a queue bound for pending match requests.
// MatchWorker has no request queue (Worker.Run is called synchronously),
// so nothing reads this value.
const MatchWorkerQueueSize = 64

// DefaultDBDirMode is the permission mode for the SQLite state directory.
const DefaultDBDirMode = 0700
