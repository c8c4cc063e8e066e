// Package gateway is the session-oriented wire-protocol dispatcher: it
// holds per-connection state, proxies terminal I/O through TerminalProxy
// instances, and relays SessionRegistry events to connected clients.
package gateway

import "github.com/agentboard/agentboard/internal/registry"

// Inbound message type discriminators, matched against the wire
// envelope's "type" field.
const (
	inTerminalAttach     = "terminal-attach"
	inTerminalInput      = "terminal-input"
	inTerminalResize     = "terminal-resize"
	inTerminalDetach     = "terminal-detach"
	inCancelCopyMode     = "tmux-cancel-copy-mode"
	inSessionCreate      = "session-create"
	inSessionKill        = "session-kill"
	inSessionRename      = "session-rename"
	inSessionRefresh     = "session-refresh"
	inSessionPin         = "session-pin"
)

// Outbound message type discriminators.
const (
	outSessions         = "sessions"
	outAgentSessions    = "agent-sessions"
	outSessionUpdate    = "session-update"
	outSessionCreated   = "session-created"
	outSessionRemoved   = "session-removed"
	outTerminalReady    = "terminal-ready"
	outTerminalOutput   = "terminal-output"
	outTerminalError    = "terminal-error"
	outKillFailed       = "kill-failed"
	outSessionPinResult = "session-pin-result"
	outError            = "error"
)

// envelope is the minimal shape every inbound message must parse as, to
// recover its discriminator before decoding the rest.
type envelope struct {
	Type string `json:"type"`
}

type inAttachMsg struct {
	Type       string `json:"type"`
	SessionID  string `json:"sessionId"`
	TmuxTarget string `json:"tmuxTarget"`
	Cols       int    `json:"cols"`
	Rows       int    `json:"rows"`
}

type inInputMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Data      string `json:"data"`
}

type inResizeMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Cols      int    `json:"cols"`
	Rows      int    `json:"rows"`
}

type inSessionIDMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

type inCreateMsg struct {
	Type        string `json:"type"`
	ProjectPath string `json:"projectPath"`
	Name        string `json:"name"`
	Command     string `json:"command"`
}

type inRenameMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	NewName   string `json:"newName"`
}

type inPinMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	IsPinned  bool   `json:"isPinned"`
}

type outMsg struct {
	Type            string            `json:"type"`
	SessionID       string            `json:"sessionId,omitempty"`
	Data            string            `json:"data,omitempty"`
	Code            string            `json:"code,omitempty"`
	Message         string            `json:"message,omitempty"`
	Retryable       bool              `json:"retryable,omitempty"`
	OK              bool              `json:"ok,omitempty"`
	Sessions        []registry.Session `json:"sessions,omitempty"`
	AgentSessions   []registry.Session `json:"agentSessions,omitempty"`
	Session         *registry.Session  `json:"session,omitempty"`
}
