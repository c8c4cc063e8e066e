// Package sessiondb is the transactional persistent store of
// AgentSessionRecords, backed by SQLite.
package sessiondb

import "github.com/agentboard/agentboard/internal/constants"

// Record is the persistent unit: one correlated agent session.
type Record struct {
	SessionID       string
	LogFilePath     string
	ProjectPath     string
	AgentType       constants.AgentType
	DisplayName     string
	CreatedAt       string // ISO 8601
	LastActivityAt  string // ISO 8601
	LastUserMessage string // optional, empty means unset
	CurrentWindow   string // optional, empty means orphaned
	IsPinned        bool
	LastResumeError string // optional
	LastKnownLogSize int64
	HasLogSize      bool // distinguishes "0 bytes" from "never recorded" (null triggers rescan)
	IsCodexExec     bool
	GitBranch       string // optional, UI display only
	Model           string // optional, last-seen model id, UI display only
	MessageCount    int    // coarse user+assistant turn count, UI display only
}

// Patch is a field-level partial update; a nil pointer leaves the field
// untouched. This mirrors SessionDatabase's "update (field-level patch)"
// contract instead of requiring callers to round-trip a full Record.
type Patch struct {
	ProjectPath      *string
	DisplayName      *string
	LastActivityAt   *string
	LastUserMessage  *string
	CurrentWindow    *string // pointer-to-empty-string clears it (orphans)
	IsPinned         *bool
	LastResumeError  *string
	LastKnownLogSize *int64
	GitBranch        *string
	Model            *string
	MessageCount     *int
}
