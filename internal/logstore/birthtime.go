package logstore

import "os"

// birthtime returns a best-effort creation time for info. The standard
// library doesn't expose file birth time portably; most platforms only
// guarantee ctime (metadata-change time) via syscall-specific structs,
// which is not the same thing. We fall back to mtime, which is the same
// approximation the core's tolerance for "order of seconds" staleness
// already accounts for.
func birthtime(info os.FileInfo, mtimeNanos int64) int64 {
	return mtimeNanos
}
