package config

import "testing"

func TestResumeCommandSubstitution(t *testing.T) {
	got := ResumeCommand("claude --resume {sessionId}", "abc-123")
	want := "claude --resume abc-123"
	if got != want {
		t.Errorf("ResumeCommand() = %q, want %q", got, want)
	}
}

func TestExpandHomeLeavesNonTildePathsAlone(t *testing.T) {
	got := expandHome("/var/log/agentboard")
	if got != "/var/log/agentboard" {
		t.Errorf("expandHome() = %q, want unchanged", got)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("REFRESH_INTERVAL_MS", "")
	t.Setenv("ALLOW_KILL_EXTERNAL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8420 {
		t.Errorf("Port = %d, want 8420", cfg.Port)
	}
	if cfg.AllowKillExternal {
		t.Error("AllowKillExternal should default to false")
	}
}
