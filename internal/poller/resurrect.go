package poller

import (
	"fmt"
	"strings"
	"time"

	"github.com/agentboard/agentboard/internal/constants"
	"github.com/agentboard/agentboard/internal/sessiondb"
)

// sessionSpawner is the subset of *tmux.Tmux TmuxResurrector depends
// on, narrowed for testability.
type sessionSpawner interface {
	NewDetachedSession(name, workDir string) error
	WaitForPane(session string, timeout time.Duration) error
	SendInput(target, text string) error
}

// ResumeCommands supplies the per-agent-type shell command template
// used to resume a session, with "{sessionId}" substituted.
type ResumeCommands struct {
	Claude string
	Codex  string
}

func (r ResumeCommands) forType(t constants.AgentType) (string, bool) {
	switch t {
	case constants.AgentClaude:
		return r.Claude, r.Claude != ""
	case constants.AgentCodex:
		return r.Codex, r.Codex != ""
	default:
		return "", false
	}
}

// TmuxResurrector recreates a detached tmux session for a pinned orphan
// and types its agent's resume command into it. It is the concrete
// Resurrector a serving process wires in; tests substitute a fake
// sessionSpawner instead.
type TmuxResurrector struct {
	TM       sessionSpawner
	Commands ResumeCommands
	// WaitTimeout bounds how long Resurrect waits for the new session's
	// pane to come up before giving up.
	WaitTimeout time.Duration
}

// NewTmuxResurrector constructs a TmuxResurrector with a 5s pane wait.
func NewTmuxResurrector(tm sessionSpawner, commands ResumeCommands) *TmuxResurrector {
	return &TmuxResurrector{TM: tm, Commands: commands, WaitTimeout: 5 * time.Second}
}

// Resurrect creates a fresh detached tmux session named after the
// record, waits for its pane, and sends the agent's resume command.
func (t *TmuxResurrector) Resurrect(record sessiondb.Record) (string, error) {
	template, ok := t.Commands.forType(record.AgentType)
	if !ok {
		return "", fmt.Errorf("no resume command configured for agent type %q", record.AgentType)
	}

	sessionName := resurrectionSessionName(record)
	if err := t.TM.NewDetachedSession(sessionName, record.ProjectPath); err != nil {
		return "", fmt.Errorf("creating tmux session: %w", err)
	}
	if err := t.TM.WaitForPane(sessionName, t.WaitTimeout); err != nil {
		return "", fmt.Errorf("waiting for pane: %w", err)
	}

	cmd := strings.ReplaceAll(template, "{sessionId}", record.SessionID)
	target := sessionName + ":0"
	if err := t.TM.SendInput(target, cmd); err != nil {
		return "", fmt.Errorf("sending resume command: %w", err)
	}
	return target, nil
}

// resurrectionSessionName derives a tmux-safe session name from a
// record's display name, falling back to its sessionId when the
// display name is empty. tmux session names reject ":" and "." as
// they collide with target-address syntax.
func resurrectionSessionName(record sessiondb.Record) string {
	base := record.DisplayName
	if base == "" {
		base = record.SessionID
	}
	base = strings.NewReplacer(":", "-", ".", "-").Replace(base)
	return fmt.Sprintf("agentboard-resume-%s", base)
}
