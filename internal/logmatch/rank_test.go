package logmatch

import "testing"

func TestScoreAgainstTextOrderedCursorAdvance(t *testing.T) {
	messages := []string{"hello world", "goodbye now"}
	text := `{"text":"hello world"} {"text":"goodbye now"}`

	count, length := scoreAgainstText(messages, text)
	if count != 2 {
		t.Errorf("matchedCount = %d, want 2", count)
	}
	if length != len("hello world")+len("goodbye now") {
		t.Errorf("matchedLength = %d, want %d", length, len("hello world")+len("goodbye now"))
	}
}

func TestScoreAgainstTextRequiresForwardProgress(t *testing.T) {
	// Second message appears only before the first match position, so it
	// must not be double-counted once the cursor has advanced past it.
	messages := []string{"second one", "first one"}
	text := `first one ... second one`

	count, _ := scoreAgainstText(messages, text)
	if count != 1 {
		t.Errorf("matchedCount = %d, want 1 (no backward match)", count)
	}
}

func TestRankCandidatesOrdersByCountThenLength(t *testing.T) {
	candidates := []ScoredCandidate{
		{LogPath: "a", MatchedCount: 1, MatchedLen: 100},
		{LogPath: "b", MatchedCount: 2, MatchedLen: 10},
		{LogPath: "c", MatchedCount: 2, MatchedLen: 50},
	}
	ranked := rankCandidates(candidates)
	if ranked[0].LogPath != "c" {
		t.Errorf("ranked[0] = %s, want c", ranked[0].LogPath)
	}
	if ranked[1].LogPath != "b" {
		t.Errorf("ranked[1] = %s, want b", ranked[1].LogPath)
	}
}

func TestIsTopTied(t *testing.T) {
	tied := []ScoredCandidate{
		{LogPath: "a", MatchedCount: 2, MatchedLen: 20},
		{LogPath: "b", MatchedCount: 2, MatchedLen: 20},
	}
	if !isTopTied(tied) {
		t.Error("expected tie to be detected")
	}

	untied := []ScoredCandidate{
		{LogPath: "a", MatchedCount: 3, MatchedLen: 20},
		{LogPath: "b", MatchedCount: 2, MatchedLen: 20},
	}
	if isTopTied(untied) {
		t.Error("expected no tie")
	}
}

func TestIntersectByLongestFirstNarrowsToSingleCandidate(t *testing.T) {
	messages := []string{"short", "a much longer distinguishing message"}
	matchesFor := func(msg string) map[string]bool {
		if msg == "a much longer distinguishing message" {
			return map[string]bool{"only-this-one.jsonl": true}
		}
		return map[string]bool{"only-this-one.jsonl": true, "other.jsonl": true}
	}
	universe := []string{"only-this-one.jsonl", "other.jsonl"}

	result := intersectByLongestFirst(messages, matchesFor, universe)
	if len(result) != 1 || result[0] != "only-this-one.jsonl" {
		t.Errorf("result = %v, want [only-this-one.jsonl]", result)
	}
}
