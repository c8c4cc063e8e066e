package logmatch

import (
	"regexp"
	"strings"

	"github.com/agentboard/agentboard/internal/constants"
)

// ScrollbackCapturer abstracts the tmux capture-pane call so the matcher
// can be tested without a real tmux server.
type ScrollbackCapturer interface {
	CapturePaneRaw(target string, lines int, ansi bool) (string, error)
}

const maxRecentMessages = 25
const maxTraceLines = 12

// piBackgroundStart is the ANSI escape Pi's TUI emits to mark the start
// of a user message block; piBackgroundEnd closes it.
const piBackgroundStart = "\x1b[48;2;52;53;65m"
const piBackgroundEnd = "\x1b[49m"

var (
	claudePromptRe = regexp.MustCompile(`❯`)
	codexPromptRe  = regexp.MustCompile(`›`)
	contextLeftRe  = regexp.MustCompile(`context left|\[\d+%\]|for shortcuts`)
	traceLineRe    = regexp.MustCompile(`^\s*•`)
	statusHintRe   = regexp.MustCompile(`esc to interrupt|%\s*context left|\d+ms`)
)

// CaptureScrollback dumps up to `lines` of joined tmux scrollback for a
// window. Pi needs ANSI escapes preserved to find its background-color
// message markers; Claude/Codex scan plain stripped text.
func CaptureScrollback(tm ScrollbackCapturer, window string, lines int, agentType constants.AgentType) (string, error) {
	if lines <= 0 {
		lines = constants.DefaultScrollbackLines
	}
	ansi := agentType == constants.AgentPi
	return tm.CapturePaneRaw(window, lines, ansi)
}

// ExtractUserMessages recovers up to 25 of the most recent distinct user
// messages from captured scrollback, most-recent first, using the
// extraction strategy appropriate to agentType. Falls back to trace-line
// harvesting when no prompt lines are found.
func ExtractUserMessages(scrollback string, agentType constants.AgentType) (messages []string, fromTraceFallback bool) {
	lines := strings.Split(scrollback, "\n")

	switch agentType {
	case constants.AgentPi:
		msgs := extractPiMessages(scrollback)
		if len(msgs) > 0 {
			return msgs, false
		}
	default:
		promptRe := claudePromptRe
		if agentType == constants.AgentCodex {
			promptRe = codexPromptRe
		}
		msgs := extractPromptMessages(lines, promptRe)
		if len(msgs) > 0 {
			return msgs, false
		}
	}

	return extractTraceMessages(lines), true
}

func extractPromptMessages(lines []string, promptRe *regexp.Regexp) []string {
	var out []string
	seen := make(map[string]bool)

	for i := len(lines) - 1; i >= 0 && len(out) < maxRecentMessages; i-- {
		line := lines[i]
		if !promptRe.MatchString(line) {
			continue
		}
		if strings.Contains(line, "↵") {
			continue
		}

		// The current input field repeats the prompt glyph too; detect it
		// by a context-left/shortcuts hint within the next few lines.
		isInputField := false
		for j := i + 1; j < len(lines) && j <= i+3; j++ {
			if contextLeftRe.MatchString(lines[j]) {
				isInputField = true
				break
			}
		}
		if isInputField {
			continue
		}

		text := stripPromptGlyph(line)
		text = strings.TrimSpace(text)
		if text == "" || seen[text] {
			continue
		}
		seen[text] = true
		out = append(out, text)
	}

	return out
}

func stripPromptGlyph(line string) string {
	for _, g := range []string{"❯", "›"} {
		if idx := strings.Index(line, g); idx >= 0 {
			return line[idx+len(g):]
		}
	}
	return line
}

func extractPiMessages(scrollback string) []string {
	var out []string
	remaining := scrollback
	for {
		start := strings.Index(remaining, piBackgroundStart)
		if start < 0 {
			break
		}
		rest := remaining[start+len(piBackgroundStart):]
		end := strings.Index(rest, piBackgroundEnd)
		var block string
		if end < 0 {
			block = rest
			remaining = ""
		} else {
			block = rest[:end]
			remaining = rest[end+len(piBackgroundEnd):]
		}
		text := stripANSI(block)
		text = strings.TrimSpace(text)
		if text != "" {
			out = append(out, text)
		}
		if end < 0 {
			break
		}
	}
	if len(out) > maxRecentMessages {
		out = out[len(out)-maxRecentMessages:]
	}
	reverse(out)
	return out
}

var ansiRe = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

func stripANSI(s string) string {
	return ansiRe.ReplaceAllString(s, "")
}

// extractTraceMessages harvests lines starting with "•" as a last resort
// when no prompt markers were found. The resulting messages are flagged
// as trace-fallback by the caller, which disables matching against Codex
// subagent logs for this window.
func extractTraceMessages(lines []string) []string {
	var out []string
	for i := len(lines) - 1; i >= 0 && len(out) < maxTraceLines; i-- {
		line := lines[i]
		if !traceLineRe.MatchString(line) {
			continue
		}
		if statusHintRe.MatchString(line) {
			continue
		}
		text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "•"))
		if text == "" {
			continue
		}
		out = append(out, text)
	}
	return out
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
