// Package logstore is the filesystem abstraction over the three agent
// log roots: enumeration, metadata, and progressive head/tail reads.
// It performs no write operations and never returns a read error to its
// caller — a file the store cannot read is treated as absent data, per
// the core's failure-swallowing discipline.
package logstore

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agentboard/agentboard/internal/constants"
)

// Times holds the filesystem timestamps LogMatcher and MatchWorker gate
// on, alongside the file's current size.
type Times struct {
	Mtime     int64 // unix nanos
	Birthtime int64 // unix nanos; falls back to Mtime where unavailable
	Size      int64
}

// Store enumerates and reads JSONL files under a fixed set of agent
// roots.
type Store struct {
	roots map[constants.AgentType]string
}

// New creates a Store rooted at the given per-agent-type directories.
// Empty roots are simply never walked.
func New(roots map[constants.AgentType]string) *Store {
	copied := make(map[constants.AgentType]string, len(roots))
	for k, v := range roots {
		copied[k] = v
	}
	return &Store{roots: copied}
}

// LogFile is one discovered on-disk log, tagged with the agent type its
// root implies.
type LogFile struct {
	Path      string
	AgentType constants.AgentType
}

// EnumerateJSONLFiles walks every configured root up to maxDepth,
// emitting ".jsonl" files. Directories named "subagents" are skipped
// entirely (Codex nests subagent transcripts there); symlinks are not
// followed. Unreadable directories are silently skipped.
func (s *Store) EnumerateJSONLFiles(maxDepth int) []LogFile {
	var out []LogFile
	for agentType, root := range s.roots {
		if root == "" {
			continue
		}
		out = append(out, s.walk(agentType, root, maxDepth)...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func (s *Store) walk(agentType constants.AgentType, root string, maxDepth int) []LogFile {
	var out []LogFile
	rootDepth := strings.Count(filepath.Clean(root), string(filepath.Separator))

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // swallow: unreadable entry, keep walking siblings
		}
		if d.IsDir() {
			if d.Name() == "subagents" {
				return filepath.SkipDir
			}
			depth := strings.Count(filepath.Clean(path), string(filepath.Separator)) - rootDepth
			if maxDepth > 0 && depth > maxDepth {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if !strings.HasSuffix(path, ".jsonl") {
			return nil
		}
		out = append(out, LogFile{Path: normalizeSlashes(path), AgentType: agentType})
		return nil
	})

	return out
}

func normalizeSlashes(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

// GetTimes stats a path and returns its timestamps and size. Returns the
// zero Times and false if the file can't be stat'd.
func (s *Store) GetTimes(path string) (Times, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return Times{}, false
	}
	mtime := info.ModTime().UnixNano()
	return Times{
		Mtime:     mtime,
		Birthtime: birthtime(info, mtime),
		Size:      info.Size(),
	}, true
}

// ReadHead reads up to byteLimit bytes from the start of path. Read
// errors yield (nil, false).
func (s *Store) ReadHead(path string, byteLimit int) ([]byte, bool) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false
	}
	defer f.Close()

	buf := make([]byte, byteLimit)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return nil, false
	}
	return buf[:n], true
}

// ReadTail reads up to byteLimit bytes from the end of path. Read errors
// yield (nil, false).
func (s *Store) ReadTail(path string, byteLimit int) ([]byte, bool) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, false
	}

	size := info.Size()
	start := size - int64(byteLimit)
	if start < 0 {
		start = 0
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return nil, false
	}

	buf := make([]byte, size-start)
	n, err := io.ReadFull(f, buf)
	if err != nil && n == 0 {
		return nil, false
	}
	return buf[:n], true
}

// ReadTailProgressive reads an expanding tail of path, starting at
// constants.InitialTailBytes and quadrupling (constants.TailGrowthFactor)
// up to constants.MaxTailBytes, stopping as soon as accept(data) returns
// true. accept typically checks whether the last candidate JSON line
// parses cleanly — a false result means the tail was truncated
// mid-record and needs a larger read. Returns the final read and whether
// accept ever returned true.
func (s *Store) ReadTailProgressive(path string, accept func([]byte) bool) ([]byte, bool) {
	return s.ReadTailProgressiveUpTo(path, constants.MaxTailBytes, accept)
}

// ReadTailProgressiveUpTo is ReadTailProgressive with an explicit cap,
// used by callers (e.g. valid-user-context validation) that need a
// larger ceiling than the default tail-read budget.
func (s *Store) ReadTailProgressiveUpTo(path string, maxBytes int, accept func([]byte) bool) ([]byte, bool) {
	limit := constants.InitialTailBytes
	if limit > maxBytes {
		limit = maxBytes
	}
	var last []byte
	for {
		data, ok := s.ReadTail(path, limit)
		if !ok {
			return nil, false
		}
		last = data
		if accept(data) {
			return data, true
		}
		if limit >= maxBytes {
			return last, false
		}
		limit *= constants.TailGrowthFactor
		if limit > maxBytes {
			limit = maxBytes
		}
	}
}
