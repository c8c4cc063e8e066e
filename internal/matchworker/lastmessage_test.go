package matchworker

import "testing"

func TestExtractLastUserMessagePrefersMostRecent(t *testing.T) {
	tail := `{"type":"user","message":{"role":"user","content":[{"type":"text","text":"old prompt"}]}}
{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"ack"}]}}
{"type":"user","message":{"role":"user","content":[{"type":"text","text":"new prompt"}]}}
`
	got := extractLastUserMessage([]byte(tail))
	if got != "new prompt" {
		t.Errorf("extractLastUserMessage = %q, want %q", got, "new prompt")
	}
}

func TestExtractLastUserMessagePlainTextField(t *testing.T) {
	tail := `{"type":"user","text":"plain text prompt"}` + "\n"
	got := extractLastUserMessage([]byte(tail))
	if got != "plain text prompt" {
		t.Errorf("extractLastUserMessage = %q, want %q", got, "plain text prompt")
	}
}

func TestExtractLastUserMessageIgnoresMalformedLines(t *testing.T) {
	tail := "not json at all\n" + `{"type":"user","text":"valid"}` + "\n"
	got := extractLastUserMessage([]byte(tail))
	if got != "valid" {
		t.Errorf("extractLastUserMessage = %q, want %q", got, "valid")
	}
}

func TestExtractLastUserMessageEmptyWhenNoUserLines(t *testing.T) {
	tail := `{"type":"assistant","text":"hello"}` + "\n"
	if got := extractLastUserMessage([]byte(tail)); got != "" {
		t.Errorf("extractLastUserMessage = %q, want empty", got)
	}
}
