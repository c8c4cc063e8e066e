// Package config resolves agentboard's runtime configuration from
// environment variables and command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/agentboard/agentboard/internal/constants"
)

// Config holds every externally-tunable setting the server reads at
// startup. Fields are resolved once in Load and passed down explicitly
// rather than read from the environment scattered throughout the code.
type Config struct {
	// ClaudeLogRoot, CodexLogRoot, PiLogRoot are the filesystem roots
	// LogStore walks to discover JSONL session logs, one per agent type.
	ClaudeLogRoot string
	CodexLogRoot  string
	PiLogRoot     string

	// DBPath is the SQLite file backing SessionDatabase.
	DBPath string

	// Port is the Gateway's HTTP listen port.
	Port int

	// RefreshInterval is how often LogPoller ticks.
	RefreshInterval time.Duration

	// AllowKillExternal permits the Gateway to kill tmux sessions it did
	// not itself create, gated off by default.
	AllowKillExternal bool

	// ClaudeResumeCmd and CodexResumeCmd are shell command templates used
	// to resume an agent in a freshly (re)created tmux window. "{sessionId}"
	// is substituted with the matched AgentSessionRecord's session ID.
	ClaudeResumeCmd string
	CodexResumeCmd  string

	// LogLevel controls the slog handler's minimum level.
	LogLevel string
}

// Load resolves Config from the process environment, applying the
// defaults spec'd for anything left unset.
func Load() (*Config, error) {
	cfg := &Config{
		ClaudeLogRoot:     expandHome(envOr("AGENTBOARD_CLAUDE_LOG_ROOT", filepath.Join(envOr("CLAUDE_CONFIG_DIR", "~/.claude"), "projects"))),
		CodexLogRoot:      expandHome(envOr("AGENTBOARD_CODEX_LOG_ROOT", filepath.Join(envOr("CODEX_HOME", "~/.codex"), "sessions"))),
		PiLogRoot:         expandHome(envOr("AGENTBOARD_PI_LOG_ROOT", filepath.Join(envOr("PI_HOME", "~/.pi"), "agent", "sessions"))),
		DBPath:            expandHome(envOr("AGENTBOARD_DB_PATH", "~/.agentboard/agentboard.db")),
		Port:              8420,
		RefreshInterval:   constants.DefaultPollInterval,
		AllowKillExternal: false,
		ClaudeResumeCmd:   envOr("CLAUDE_RESUME_CMD", "claude --resume {sessionId}"),
		CodexResumeCmd:    envOr("CODEX_RESUME_CMD", "codex resume {sessionId}"),
		LogLevel:          envOr("AGENTBOARD_LOG_LEVEL", "info"),
	}

	if v := os.Getenv("PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("parsing PORT: %w", err)
		}
		cfg.Port = n
	}

	if v := os.Getenv("REFRESH_INTERVAL_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("parsing REFRESH_INTERVAL_MS: %w", err)
		}
		d := time.Duration(n) * time.Millisecond
		if d < constants.MinPollInterval {
			d = constants.MinPollInterval
		}
		if d > constants.MaxPollInterval {
			d = constants.MaxPollInterval
		}
		cfg.RefreshInterval = d
	}

	if v := os.Getenv("ALLOW_KILL_EXTERNAL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("parsing ALLOW_KILL_EXTERNAL: %w", err)
		}
		cfg.AllowKillExternal = b
	}

	return cfg, nil
}

// ResumeCommand substitutes the "{sessionId}" placeholder in a resume
// command template; TmuxResurrector applies the same substitution when
// LogPoller recreates a pinned session.
func ResumeCommand(template, sessionID string) string {
	return strings.ReplaceAll(template, "{sessionId}", sessionID)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// expandHome expands a leading "~/" to the user's home directory,
// returning the path unchanged if it doesn't have that prefix or the
// home directory can't be determined.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	return home + path[1:]
}
