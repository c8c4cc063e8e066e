package logmatch

import (
	"regexp"
	"strings"
)

var whitespaceRunRe = regexp.MustCompile(`\s+`)

// BuildPattern converts a recovered scrollback message into a regex
// pattern tolerant of the reformatting a JSON log applies to the same
// text: whitespace runs collapse to single spaces before escaping, then
// every space (QuoteMeta leaves spaces unescaped) becomes `\s+` so line wraps and re-flowed
// whitespace in the log still match; quote characters become an
// optional-escaped-quote alternation so the pattern matches both a raw
// quote and its JSON-escaped form `\"`.
func BuildPattern(message string) string {
	collapsed := whitespaceRunRe.ReplaceAllString(strings.TrimSpace(message), " ")
	escaped := regexp.QuoteMeta(collapsed)
	escaped = strings.ReplaceAll(escaped, " ", `\s+`)
	escaped = strings.ReplaceAll(escaped, `"`, `(?:\\?")?`)
	return escaped
}

// CompilePattern builds and compiles the pattern for message, returning
// nil if the compiled regex would be pathological (e.g. the message was
// empty).
func CompilePattern(message string) *regexp.Regexp {
	pattern := BuildPattern(message)
	if pattern == "" {
		return nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil
	}
	return re
}
