package poller

import (
	"errors"
	"testing"
	"time"

	"github.com/agentboard/agentboard/internal/constants"
	"github.com/agentboard/agentboard/internal/sessiondb"
)

type fakeSpawner struct {
	created    string
	sentTarget string
	sentText   string
	waitErr    error
}

func (f *fakeSpawner) NewDetachedSession(name, workDir string) error {
	f.created = name
	return nil
}

func (f *fakeSpawner) WaitForPane(session string, timeout time.Duration) error {
	return f.waitErr
}

func (f *fakeSpawner) SendInput(target, text string) error {
	f.sentTarget = target
	f.sentText = text
	return nil
}

func TestTmuxResurrectorSendsResumeCommand(t *testing.T) {
	spawner := &fakeSpawner{}
	r := NewTmuxResurrector(spawner, ResumeCommands{Claude: "claude --resume {sessionId}"})

	target, err := r.Resurrect(sessiondb.Record{
		SessionID:   "sess-123",
		AgentType:   constants.AgentClaude,
		DisplayName: "my-project",
		ProjectPath: "/home/user/my-project",
	})
	if err != nil {
		t.Fatalf("Resurrect: %v", err)
	}
	if spawner.sentText != "claude --resume sess-123" {
		t.Errorf("sentText = %q, want resume command with sessionId substituted", spawner.sentText)
	}
	if target != spawner.sentTarget {
		t.Errorf("returned target %q does not match the target SendInput was called with %q", target, spawner.sentTarget)
	}
}

func TestTmuxResurrectorRejectsUnsupportedAgentType(t *testing.T) {
	r := NewTmuxResurrector(&fakeSpawner{}, ResumeCommands{Claude: "claude --resume {sessionId}"})
	_, err := r.Resurrect(sessiondb.Record{SessionID: "s1", AgentType: constants.AgentPi})
	if err == nil {
		t.Fatal("expected error for agent type with no configured resume command")
	}
}

func TestTmuxResurrectorPropagatesWaitError(t *testing.T) {
	spawner := &fakeSpawner{waitErr: errors.New("pane never appeared")}
	r := NewTmuxResurrector(spawner, ResumeCommands{Claude: "claude --resume {sessionId}"})
	_, err := r.Resurrect(sessiondb.Record{SessionID: "s1", AgentType: constants.AgentClaude})
	if err == nil {
		t.Fatal("expected error when WaitForPane fails")
	}
}

func TestResurrectionSessionNameSanitizesColonsAndDots(t *testing.T) {
	name := resurrectionSessionName(sessiondb.Record{DisplayName: "my.project:v2"})
	if name != "agentboard-resume-my-project-v2" {
		t.Errorf("resurrectionSessionName = %q", name)
	}
}
