package logmatch

import (
	"testing"

	"github.com/agentboard/agentboard/internal/constants"
)

func TestExtractUserMessagesClaudeSkipsInputFieldAndEnterGlyph(t *testing.T) {
	scrollback := "❯ first message\n" +
		"❯ second message\n" +
		"some assistant output\n" +
		"more assistant output\n" +
		"even more output\n" +
		"❯ type here↵\n" +
		"[25% context left]\n"

	messages, fromTrace := ExtractUserMessages(scrollback, constants.AgentClaude)
	if fromTrace {
		t.Fatal("expected prompt-based extraction, not trace fallback")
	}

	for _, m := range messages {
		if m == "type here" {
			t.Error("current input field line should be excluded")
		}
	}
	if len(messages) == 0 {
		t.Fatal("expected at least one extracted message")
	}
	// Most recent first.
	if messages[0] != "second message" {
		t.Errorf("messages[0] = %q, want %q", messages[0], "second message")
	}
}

func TestExtractUserMessagesFallsBackToTrace(t *testing.T) {
	scrollback := "• did something\n" +
		"• esc to interrupt\n" +
		"• another trace line\n"

	messages, fromTrace := ExtractUserMessages(scrollback, constants.AgentClaude)
	if !fromTrace {
		t.Fatal("expected trace fallback when no prompt glyph present")
	}
	for _, m := range messages {
		if m == "esc to interrupt" {
			t.Error("status hint trace line should be excluded")
		}
	}
}

func TestExtractUserMessagesPiBackgroundMarkers(t *testing.T) {
	scrollback := piBackgroundStart + "hello from pi" + piBackgroundEnd + "\nother text\n" +
		piBackgroundStart + "second pi message" + piBackgroundEnd
	messages, fromTrace := ExtractUserMessages(scrollback, constants.AgentPi)
	if fromTrace {
		t.Fatal("expected marker-based extraction for pi")
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d: %v", len(messages), messages)
	}
	if messages[0] != "second pi message" || messages[1] != "hello from pi" {
		t.Errorf("unexpected order/content: %v", messages)
	}
}
