package logmatch

import (
	"regexp"
	"testing"
)

func TestBuildPatternCollapsesWhitespace(t *testing.T) {
	re := regexp.MustCompile(BuildPattern("fix   the   bug"))
	if !re.MatchString("fix the bug") {
		t.Error("expected pattern to match single-spaced text")
	}
	if !re.MatchString("fix\nthe\tbug") {
		t.Error("expected pattern to match text re-flowed across newlines/tabs")
	}
}

func TestBuildPatternToleratesJSONEscapedQuotes(t *testing.T) {
	re := regexp.MustCompile(BuildPattern(`say "hello"`))
	if !re.MatchString(`say "hello"`) {
		t.Error("expected pattern to match raw quotes")
	}
	if !re.MatchString(`say \"hello\"`) {
		t.Error("expected pattern to match JSON-escaped quotes")
	}
}

func TestCompilePatternEmptyMessage(t *testing.T) {
	if CompilePattern("") != nil {
		t.Error("expected nil regex for empty message")
	}
}
