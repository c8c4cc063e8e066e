// Package logschema knows how to pull session identity out of the three
// agent log head-record shapes (Claude, Codex, Pi) without understanding
// anything else about the conversation they contain.
package logschema

import (
	"encoding/json"
	"strings"

	"github.com/agentboard/agentboard/internal/constants"
)

// HeadInfo is everything LogStore/LogMatcher need from a log's leading
// records: identity, not content.
type HeadInfo struct {
	SessionID       string
	ProjectPath     string
	AgentType       constants.AgentType
	IsCodexSubagent bool
	IsCodexExec     bool
	GitBranch       string
	Model           string
}

// rawClaudeLine mirrors the handful of fields agentboard cares about in a
// Claude Code transcript line.
type rawClaudeLine struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	CWD       string `json:"cwd"`
	GitBranch string `json:"gitBranch"`
	Message   struct {
		Model string `json:"model"`
	} `json:"message"`
}

// rawCodexLine mirrors a Codex rollout line. "payload" is left as raw
// JSON because its shape depends on Type.
type rawCodexLine struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type codexSessionMetaPayload struct {
	ID     string          `json:"id"`
	CWD    string          `json:"cwd"`
	Source json.RawMessage `json:"source"`
}

type rawPiLine struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Payload struct {
		ID              string `json:"id"`
		SessionID       string `json:"sessionId"`
		CWD             string `json:"cwd"`
		WorkingDirector string `json:"working_directory"`
	} `json:"payload"`
}

// ParseHead inspects the first lines of a log (already read into memory
// by LogStore) and extracts identity metadata for the given agent type.
// Unparseable lines are skipped; ParseHead never errors — an
// unidentifiable log simply yields a HeadInfo with only AgentType set, which callers
// treat as "not enough information yet".
func ParseHead(agentType constants.AgentType, headBytes []byte) HeadInfo {
	info := HeadInfo{AgentType: agentType}

	for _, line := range splitLines(headBytes) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch agentType {
		case constants.AgentClaude:
			parseClaudeLine(line, &info)
		case constants.AgentCodex:
			parseCodexLine(line, &info)
		case constants.AgentPi:
			parsePiLine(line, &info)
		}

		if info.SessionID != "" && info.ProjectPath != "" {
			break
		}
	}

	return info
}

func parseClaudeLine(line string, info *HeadInfo) {
	var raw rawClaudeLine
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return
	}
	if raw.SessionID != "" && info.SessionID == "" {
		info.SessionID = raw.SessionID
	}
	if raw.CWD != "" && info.ProjectPath == "" {
		info.ProjectPath = normalizePath(raw.CWD)
	}
	if raw.GitBranch != "" {
		info.GitBranch = raw.GitBranch
	}
	if raw.Message.Model != "" {
		info.Model = raw.Message.Model
	}
}

func parseCodexLine(line string, info *HeadInfo) {
	var raw rawCodexLine
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return
	}
	if raw.Type != "session_meta" {
		return
	}

	var meta codexSessionMetaPayload
	if err := json.Unmarshal(raw.Payload, &meta); err != nil {
		return
	}
	if meta.ID != "" {
		info.SessionID = meta.ID
	}
	if meta.CWD != "" {
		info.ProjectPath = normalizePath(meta.CWD)
	}

	// source is a string ("cli") for an interactive session, or an object
	// for a subagent; "exec" marks a headless exec run.
	trimmed := strings.TrimSpace(string(meta.Source))
	if strings.HasPrefix(trimmed, "{") {
		info.IsCodexSubagent = true
	} else {
		var sourceStr string
		if err := json.Unmarshal(meta.Source, &sourceStr); err == nil && sourceStr == "exec" {
			info.IsCodexExec = true
		}
	}
}

func parsePiLine(line string, info *HeadInfo) {
	var raw rawPiLine
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return
	}
	if raw.Type == "session" && raw.ID != "" {
		info.SessionID = raw.ID
		return
	}
	if raw.Payload.SessionID != "" {
		info.SessionID = raw.Payload.SessionID
	} else if raw.Payload.ID != "" {
		info.SessionID = raw.Payload.ID
	}
	if raw.Payload.CWD != "" {
		info.ProjectPath = normalizePath(raw.Payload.CWD)
	} else if raw.Payload.WorkingDirector != "" {
		info.ProjectPath = normalizePath(raw.Payload.WorkingDirector)
	}
}

type roleLine struct {
	Type string `json:"type"`
	Role string `json:"role"`
}

// CountMessages gives a coarse count of user/assistant turns within the
// given chunk of a log, used only for the UI's activity display. Since
// callers pass the head read rather than the full file, this undercounts
// long conversations; it is never used for matching or gating.
func CountMessages(agentType constants.AgentType, data []byte) int {
	count := 0
	for _, line := range splitLines(data) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var rl roleLine
		if err := json.Unmarshal([]byte(line), &rl); err != nil {
			continue
		}
		switch agentType {
		case constants.AgentClaude:
			if rl.Type == "user" || rl.Type == "assistant" {
				count++
			}
		case constants.AgentCodex:
			if rl.Type == "event_msg" || rl.Role == "user" || rl.Role == "assistant" {
				count++
			}
		case constants.AgentPi:
			if rl.Role == "user" || rl.Role == "assistant" {
				count++
			}
		}
	}
	return count
}

func splitLines(b []byte) []string {
	return strings.Split(string(b), "\n")
}

// normalizePath lowercases a Windows drive letter, converts backslashes
// to forward slashes, and strips a trailing slash.
func normalizePath(p string) string {
	if len(p) >= 2 && p[1] == ':' && ((p[0] >= 'A' && p[0] <= 'Z') || (p[0] >= 'a' && p[0] <= 'z')) {
		p = strings.ToLower(p[:1]) + p[1:]
	}
	p = strings.ReplaceAll(p, "\\", "/")
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

// IsSameOrChildPath reports whether candidate equals base, or either path
// is a path-segment descendant of the other (not merely a string-prefix
// match, so "/tmp/alphabet" is not considered a child of "/tmp/alpha").
func IsSameOrChildPath(base, candidate string) bool {
	if base == "" || candidate == "" {
		return false
	}
	base = strings.TrimSuffix(base, "/")
	candidate = strings.TrimSuffix(candidate, "/")
	if base == candidate {
		return true
	}
	return strings.HasPrefix(candidate, base+"/") || strings.HasPrefix(base, candidate+"/")
}
