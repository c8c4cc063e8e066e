package matchworker

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentboard/agentboard/internal/constants"
	"github.com/agentboard/agentboard/internal/logmatch"
	"github.com/agentboard/agentboard/internal/logstore"
)

type fakeCapturer struct{ byTarget map[string]string }

func (f *fakeCapturer) CapturePaneRaw(target string, lines int, ansi bool) (string, error) {
	return f.byTarget[target], nil
}

type fakeGrepper struct {
	fileMatches map[string][]string
}

func (f *fakeGrepper) FilesWithMatches(pattern string, roots []string, threads int) []string {
	return f.fileMatches[pattern]
}
func (f *fakeGrepper) FileMatches(pattern string, paths []string, threads int) []string {
	return f.fileMatches[pattern]
}
func (f *fakeGrepper) LineNumbers(pattern, path string) []int { return nil }

func writeLog(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestGateDropsEntriesWithoutSessionID(t *testing.T) {
	entries := []Entry{{LogPath: "a.jsonl", LogTokenCount: 20}}
	got := gate(entries, nil, nil, 10)
	if len(got) != 0 {
		t.Errorf("expected entry without a sessionId to be dropped, got %v", got)
	}
}

func TestGateDropsBelowTokenFloor(t *testing.T) {
	entries := []Entry{{LogPath: "a.jsonl", SessionID: "s1", LogTokenCount: 5}}
	got := gate(entries, nil, nil, 10)
	if len(got) != 0 {
		t.Errorf("expected entry below token floor to be dropped, got %v", got)
	}
}

func TestGateDropsCodexSubagentAndExec(t *testing.T) {
	entries := []Entry{
		{LogPath: "a.jsonl", SessionID: "s1", LogTokenCount: 20, IsCodexSubagent: true},
		{LogPath: "b.jsonl", SessionID: "s2", LogTokenCount: 20, IsCodexExec: true},
	}
	got := gate(entries, nil, nil, 10)
	if len(got) != 0 {
		t.Errorf("expected subagent/exec entries to be dropped, got %v", got)
	}
}

func TestGateKeepsOrphanedSessionEntries(t *testing.T) {
	entries := []Entry{{LogPath: "a.jsonl", SessionID: "s1", LogTokenCount: 20, MtimeUnixNano: 100}}
	byLogPath := map[string]KnownSession{
		"a.jsonl": {SessionID: "s1", LogFilePath: "a.jsonl", CurrentWindow: ""},
	}
	got := gate(entries, byLogPath, nil, 10)
	if len(got) != 1 {
		t.Fatalf("expected orphaned session's entry to survive gating, got %v", got)
	}
}

func TestRunReturnsNewSessionMatch(t *testing.T) {
	dir := t.TempDir()
	logPath := writeLog(t, dir, "a.jsonl",
		`{"type":"user","sessionId":"claude-1","cwd":"/tmp/alpha","message":{"content":[{"type":"text","text":"fix the auth bug today please"}]}}`)

	store := logstore.New(map[constants.AgentType]string{constants.AgentClaude: dir})
	cap := &fakeCapturer{byTarget: map[string]string{
		"agentboard:@1": "❯ fix the auth bug today please\n",
	}}
	pattern := logmatch.BuildPattern("fix the auth bug today please")
	grep := &fakeGrepper{fileMatches: map[string][]string{pattern: {logPath}}}
	matcher := logmatch.New(cap, store, grep, nil)

	w := New(store, matcher)
	resp := w.Run(context.Background(), Request{
		ID:             "poll-1",
		Windows:        []logmatch.Window{{Target: "agentboard:@1", AgentType: constants.AgentClaude}},
		MaxLogsPerPoll: 10,
		// The fixture log is only a handful of tokens long.
		MinTokensForMatch: 1,
		Search:            SearchConfig{RGThreads: 1},
	})

	if resp.Err != nil {
		t.Fatalf("unexpected error: %v", resp.Err)
	}
	if len(resp.Matches) != 1 || resp.Matches[0].LogPath != logPath || resp.Matches[0].TmuxWindow != "agentboard:@1" {
		t.Errorf("Matches = %+v, want single match on %s", resp.Matches, logPath)
	}
}

func TestRunEchoesRequestID(t *testing.T) {
	dir := t.TempDir()
	store := logstore.New(map[constants.AgentType]string{constants.AgentClaude: dir})
	matcher := logmatch.New(&fakeCapturer{}, store, &fakeGrepper{}, nil)
	w := New(store, matcher)

	resp := w.Run(context.Background(), Request{ID: "req-42"})
	if resp.ID != "req-42" {
		t.Errorf("ID = %q, want req-42", resp.ID)
	}
}

func TestEstimateTokenCount(t *testing.T) {
	got := estimateTokenCount([]byte("  hello   world\tfoo\n"))
	if got != 3 {
		t.Errorf("estimateTokenCount = %d, want 3", got)
	}
}

func TestGateDropsActiveSessionEntryWithoutNewerMtime(t *testing.T) {
	owner := KnownSession{SessionID: "s1", LogFilePath: "a.jsonl", CurrentWindow: "agentboard:@1", LastActivityAt: "2026-01-01T00:00:10Z"}
	byLogPath := map[string]KnownSession{"a.jsonl": owner}
	stale, err := time.Parse(time.RFC3339, "2026-01-01T00:00:05Z")
	if err != nil {
		t.Fatal(err)
	}
	entries := []Entry{{LogPath: "a.jsonl", SessionID: "s1", LogTokenCount: 20, MtimeUnixNano: stale.UnixNano()}}
	got := gate(entries, byLogPath, nil, 10)
	if len(got) != 0 {
		t.Errorf("expected stale mtime on an active session to be dropped, got %v", got)
	}
}

func TestGateKeepsActiveSessionEntryWithNewerMtime(t *testing.T) {
	owner := KnownSession{SessionID: "s1", LogFilePath: "a.jsonl", CurrentWindow: "agentboard:@1", LastActivityAt: "2026-01-01T00:00:05Z"}
	byLogPath := map[string]KnownSession{"a.jsonl": owner}
	fresh, err := time.Parse(time.RFC3339, "2026-01-01T00:00:10Z")
	if err != nil {
		t.Fatal(err)
	}
	entries := []Entry{{LogPath: "a.jsonl", SessionID: "s1", LogTokenCount: 20, MtimeUnixNano: fresh.UnixNano()}}
	got := gate(entries, byLogPath, nil, 10)
	if len(got) != 1 {
		t.Errorf("expected newer mtime on an active session to survive gating, got %v", got)
	}
}

func TestVerifyKnownAssociations(t *testing.T) {
	dir := t.TempDir()
	matchedPath := writeLog(t, dir, "a.jsonl",
		`{"type":"user","sessionId":"claude-1","cwd":"/tmp/alpha","message":{"content":[{"type":"text","text":"fix the auth bug today please"}]}}`)
	staleRecordPath := writeLog(t, dir, "b.jsonl",
		`{"type":"user","sessionId":"claude-2","cwd":"/tmp/beta","message":{"content":[{"type":"text","text":"unrelated"}]}}`)

	store := logstore.New(map[constants.AgentType]string{constants.AgentClaude: dir})
	cap := &fakeCapturer{byTarget: map[string]string{
		"agentboard:@1": "❯ fix the auth bug today please\n",
	}}
	pattern := logmatch.BuildPattern("fix the auth bug today please")
	grep := &fakeGrepper{fileMatches: map[string][]string{pattern: {matchedPath}}}
	matcher := logmatch.New(cap, store, grep, nil)
	w := New(store, matcher)

	sessions := []KnownSession{
		{SessionID: "claude-1", LogFilePath: matchedPath, CurrentWindow: "agentboard:@1", AgentType: constants.AgentClaude},
		{SessionID: "claude-2", LogFilePath: staleRecordPath, CurrentWindow: "agentboard:@1", AgentType: constants.AgentClaude},
	}
	verdicts := w.VerifyKnownAssociations(sessions, SearchConfig{}, 10)

	if verdicts["claude-1"] != logmatch.Verified {
		t.Errorf("claude-1 verdict = %v, want Verified", verdicts["claude-1"])
	}
	if verdicts["claude-2"] != logmatch.Mismatch {
		t.Errorf("claude-2 verdict = %v, want Mismatch", verdicts["claude-2"])
	}
}
