package logmatch

import (
	"regexp"
	"sort"
)

const minRankedMessageLength = 5

// filterAndReverseForScoring keeps messages of length >= 5 and reverses
// them into chronological order (they arrive most-recent-first from
// extraction).
func filterAndReverseForScoring(messages []string) []string {
	var kept []string
	for _, m := range messages {
		if len(m) >= minRankedMessageLength {
			kept = append(kept, m)
		}
	}
	reverse(kept)
	return kept
}

// scoreAgainstText computes the ordered-match score of messages (already
// chronological, length-filtered) against the raw text of a candidate's
// tail: for each message in order, find the first match after the
// previous match's end, and accumulate matchedCount/matchedLength.
func scoreAgainstText(messages []string, text string) (matchedCount, matchedLen int) {
	cursor := 0
	for _, msg := range messages {
		re := CompilePattern(msg)
		if re == nil {
			continue
		}
		loc := re.FindStringIndex(text[cursor:])
		if loc == nil {
			continue
		}
		matchedCount++
		matchedLen += len(msg)
		cursor += loc[1]
	}
	return matchedCount, matchedLen
}

// scoreAgainstLineNumbers is the same ordered-match walk but driven by
// ripgrep line numbers instead of byte offsets into a tail, used when
// re-ranking a tie against the full file.
func scoreAgainstLineNumbers(messages []string, lineNumbersFor func(pattern string) []int) (matchedCount, matchedLen int) {
	cursor := 0
	for _, msg := range messages {
		pattern := BuildPattern(msg)
		if pattern == "" {
			continue
		}
		if _, err := regexp.Compile(pattern); err != nil {
			continue
		}
		lines := lineNumbersFor(pattern)
		found := -1
		for _, ln := range lines {
			if ln > cursor {
				found = ln
				break
			}
		}
		if found < 0 {
			continue
		}
		matchedCount++
		matchedLen += len(msg)
		cursor = found
	}
	return matchedCount, matchedLen
}

// intersectByLongestFirst walks candidate message patterns from longest
// to shortest, intersecting each message's matching-log set with the
// running intersection, and stops as soon as the intersection shrinks to
// <= 1 candidate or every message has been tried.
func intersectByLongestFirst(messages []string, matchesFor func(msg string) map[string]bool, universe []string) []string {
	sorted := append([]string(nil), messages...)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })

	current := make(map[string]bool, len(universe))
	for _, c := range universe {
		current[c] = true
	}

	for _, msg := range sorted {
		if len(current) <= 1 {
			break
		}
		hits := matchesFor(msg)
		next := make(map[string]bool)
		for c := range current {
			if hits[c] {
				next[c] = true
			}
		}
		if len(next) == 0 {
			// This message matched nothing in the current set; keep the
			// prior intersection rather than collapsing to empty.
			continue
		}
		current = next
	}

	out := make([]string, 0, len(current))
	for c := range current {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// rankCandidates sorts candidates best-first by (matchedCount desc,
// matchedLength desc).
func rankCandidates(candidates []ScoredCandidate) []ScoredCandidate {
	sorted := append([]ScoredCandidate(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[j].Less(sorted[i])
	})
	return sorted
}

// isTopTied reports whether the top two ranked candidates have identical
// scores.
func isTopTied(ranked []ScoredCandidate) bool {
	if len(ranked) < 2 {
		return false
	}
	a, b := ranked[0], ranked[1]
	return a.MatchedCount == b.MatchedCount && a.MatchedLen == b.MatchedLen
}
