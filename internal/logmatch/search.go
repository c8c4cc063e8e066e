package logmatch

import (
	"bufio"
	"bytes"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/agentboard/agentboard/internal/logstore"
)

// Grepper abstracts the external ripgrep invocation so LogMatcher can be
// tested without a real rg binary, and so a future in-process fallback
// can implement the same interface.
type Grepper interface {
	// FilesWithMatches runs the directory-wide `-l` search.
	FilesWithMatches(pattern string, roots []string, threads int) []string
	// FileMatches runs the full-file search restricted to a fixed set of
	// paths, used in path-bounded mode once a tail-only scan is
	// inconclusive.
	FileMatches(pattern string, paths []string, threads int) []string
	// LineNumbers returns the 1-based line numbers in path that match
	// pattern, used to re-rank a tie against the full file instead of
	// just its tail.
	LineNumbers(pattern, path string) []int
}

// RGGrepper shells out to ripgrep. Non-zero exits (no matches, or rg
// itself missing) are treated as empty results, per the matcher's
// best-effort external-process contract.
type RGGrepper struct {
	Bin string
}

func NewRGGrepper() *RGGrepper {
	return &RGGrepper{Bin: "rg"}
}

func (g *RGGrepper) bin() string {
	if g.Bin != "" {
		return g.Bin
	}
	return "rg"
}

func (g *RGGrepper) FilesWithMatches(pattern string, roots []string, threads int) []string {
	args := []string{"-l", "-e", pattern, "--glob", "**/*.jsonl"}
	if threads > 0 {
		args = append(args, "--threads", strconv.Itoa(threads))
	}
	args = append(args, roots...)
	return g.run(args)
}

func (g *RGGrepper) FileMatches(pattern string, paths []string, threads int) []string {
	if len(paths) == 0 {
		return nil
	}
	args := []string{"-l", "-e", pattern}
	if threads > 0 {
		args = append(args, "--threads", strconv.Itoa(threads))
	}
	args = append(args, paths...)
	return g.run(args)
}

func (g *RGGrepper) LineNumbers(pattern, path string) []int {
	out := g.runRaw([]string{"-n", "-e", pattern, path})
	if out == "" {
		return nil
	}
	var nums []int
	for _, line := range strings.Split(out, "\n") {
		idx := strings.Index(line, ":")
		if idx <= 0 {
			continue
		}
		n, err := strconv.Atoi(line[:idx])
		if err == nil {
			nums = append(nums, n)
		}
	}
	return nums
}

func (g *RGGrepper) run(args []string) []string {
	out := g.runRaw(args)
	if out == "" {
		return nil
	}
	return strings.Split(strings.TrimSpace(out), "\n")
}

func (g *RGGrepper) runRaw(args []string) string {
	cmd := exec.Command(g.bin(), args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	_ = cmd.Run() // non-fatal: exit 1 (no matches) or missing binary both yield empty output
	return strings.TrimSpace(stdout.String())
}

const tailOnlyScanBytes = 96 * 1024
const validationMaxTailBytes = 2 * 1024 * 1024

// tailScan tests pattern against the last tailOnlyScanBytes of each
// candidate path, returning the subset that match. Used as the cheap
// first pass in path-bounded search before falling back to grep.
func tailScan(store *logstore.Store, pattern string, paths []string) []string {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil
	}
	var out []string
	for _, p := range paths {
		data, ok := store.ReadTail(p, tailOnlyScanBytes)
		if !ok {
			continue
		}
		if re.Match(data) {
			out = append(out, p)
		}
	}
	return out
}

var forbiddenContextRe = regexp.MustCompile(`"type"\s*:\s*"tool_result"|"type"\s*:\s*"custom_tool_call_output"|"toolUseResult"\s*:`)

// hasMessageInValidUserContext reports whether msg appears in data as the
// value of a "text" or "message" field anywhere, or as the value of a
// "content" field on a line that is not also a tool-result/exec-output
// record. This rejects the false-positive where a log merely contains a
// captured terminal dump of someone else's prompts as tool output.
func hasMessageInValidUserContext(data []byte, msg string) bool {
	pattern := BuildPattern(msg)
	re, err := regexp.Compile(pattern)
	if err != nil || pattern == "" {
		return false
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		loc := re.FindStringIndex(line)
		if loc == nil {
			continue
		}

		field := precedingFieldName(line, loc[0])
		switch field {
		case "text", "message":
			return true
		case "content":
			if !forbiddenContextRe.MatchString(line) {
				return true
			}
		}
	}
	return false
}

var fieldNameRe = regexp.MustCompile(`"(\w+)"\s*:\s*"[^"]*$`)

// precedingFieldName looks backward from a match start position for the
// nearest enclosing `"fieldName":"` JSON key, within a bounded window.
func precedingFieldName(line string, matchStart int) string {
	windowStart := matchStart - 80
	if windowStart < 0 {
		windowStart = 0
	}
	prefix := line[windowStart:matchStart]
	m := fieldNameRe.FindStringSubmatch(prefix)
	if m == nil {
		return ""
	}
	return m[1]
}

// ValidateCandidates filters grep/tail hits down to those where msg
// survives valid-user-context validation, progressively widening the
// tail read (64 KiB up to 2 MiB) if the initial read doesn't settle the
// question either way — the field the match landed in could be further
// back than the smaller read reached.
func ValidateCandidates(store *logstore.Store, paths []string, msg string) []string {
	var out []string
	for _, p := range paths {
		if _, ok := store.ReadTailProgressiveUpTo(p, validationMaxTailBytes, func(b []byte) bool {
			return hasMessageInValidUserContext(b, msg)
		}); ok {
			out = append(out, p)
		}
	}
	return out
}
