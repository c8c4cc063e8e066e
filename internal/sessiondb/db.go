package sessiondb

import (
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/agentboard/agentboard/internal/constants"
)

// DB wraps a SQLite-backed session store. All mutation goes through its
// methods; SessionDatabase is the system's single writer.
type DB struct {
	sql *sql.DB
}

// Open opens (creating if needed) the SQLite file at path, creates its
// parent directory at mode 0700, and runs any pending migrations.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, constants.DefaultDBDirMode); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1) // single-writer discipline; SQLite serializes anyway

	db := &DB{sql: sqlDB}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return db, nil
}

// Close closes the underlying database handle.
func (db *DB) Close() error {
	return db.sql.Close()
}

type migration struct {
	version int
	apply   func(*sql.Tx) error
}

var migrations = []migration{
	{
		version: 1,
		apply: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS sessions (
	session_id          TEXT PRIMARY KEY,
	log_file_path       TEXT NOT NULL UNIQUE,
	project_path        TEXT NOT NULL DEFAULT '',
	agent_type          TEXT NOT NULL CHECK (agent_type IN ('claude','codex','pi')),
	display_name        TEXT NOT NULL UNIQUE,
	created_at          TEXT NOT NULL,
	last_activity_at    TEXT NOT NULL,
	last_user_message   TEXT NOT NULL DEFAULT '',
	current_window      TEXT,
	is_pinned           INTEGER NOT NULL DEFAULT 0,
	last_resume_error   TEXT NOT NULL DEFAULT '',
	last_known_log_size INTEGER,
	is_codex_exec       INTEGER NOT NULL DEFAULT 0
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_current_window ON sessions(current_window);
CREATE TABLE IF NOT EXISTS app_settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);
`)
			return err
		},
	},
	{
		version: 2,
		apply: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
ALTER TABLE sessions ADD COLUMN git_branch TEXT NOT NULL DEFAULT '';
ALTER TABLE sessions ADD COLUMN model TEXT NOT NULL DEFAULT '';
ALTER TABLE sessions ADD COLUMN message_count INTEGER NOT NULL DEFAULT 0;
`)
			return err
		},
	},
}

func (db *DB) migrate() error {
	tx, err := db.sql.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current int
	row := tx.QueryRow(`SELECT version FROM schema_version LIMIT 1`)
	if err := row.Scan(&current); err != nil {
		// schema_version doesn't exist yet (first run) or is empty.
		current = 0
	}

	sorted := append([]migration(nil), migrations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].version < sorted[j].version })

	applied := current
	for _, m := range sorted {
		if m.version <= current {
			continue
		}
		if err := m.apply(tx); err != nil {
			return fmt.Errorf("migration %d: %w", m.version, err)
		}
		applied = m.version
	}

	if applied != current {
		if _, err := tx.Exec(`DELETE FROM schema_version`); err != nil {
			return err
		}
		if _, err := tx.Exec(`INSERT INTO schema_version(version) VALUES (?)`, applied); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Insert adds a new record. Returns an error wrapping sql.ErrNoRows-style
// unique-constraint failures as-is; callers distinguish "duplicate
// logFilePath" (a bug) from "duplicate displayName" (disambiguate and
// retry) by inspecting the error text for the offending column.
func (db *DB) Insert(r Record) error {
	var logSize any
	if r.HasLogSize {
		logSize = r.LastKnownLogSize
	}

	_, err := db.sql.Exec(`
INSERT INTO sessions (
	session_id, log_file_path, project_path, agent_type, display_name,
	created_at, last_activity_at, last_user_message, current_window,
	is_pinned, last_resume_error, last_known_log_size, is_codex_exec,
	git_branch, model, message_count
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.LogFilePath, r.ProjectPath, string(r.AgentType), r.DisplayName,
		r.CreatedAt, r.LastActivityAt, r.LastUserMessage, nullableString(r.CurrentWindow),
		boolToInt(r.IsPinned), r.LastResumeError, logSize, boolToInt(r.IsCodexExec),
		r.GitBranch, r.Model, r.MessageCount,
	)
	if err != nil {
		return fmt.Errorf("inserting session %s: %w", r.SessionID, err)
	}
	return nil
}

const selectColumns = `session_id, log_file_path, project_path, agent_type, display_name,
	created_at, last_activity_at, last_user_message, current_window,
	is_pinned, last_resume_error, last_known_log_size, is_codex_exec,
	git_branch, model, message_count`

func scanRecord(scan func(...any) error) (Record, error) {
	var r Record
	var agentType string
	var currentWindow sql.NullString
	var isPinned, isCodexExec int
	var logSize sql.NullInt64

	err := scan(&r.SessionID, &r.LogFilePath, &r.ProjectPath, &agentType, &r.DisplayName,
		&r.CreatedAt, &r.LastActivityAt, &r.LastUserMessage, &currentWindow,
		&isPinned, &r.LastResumeError, &logSize, &isCodexExec,
		&r.GitBranch, &r.Model, &r.MessageCount)
	if err != nil {
		return Record{}, err
	}

	r.AgentType = constants.AgentType(agentType)
	r.CurrentWindow = currentWindow.String
	r.IsPinned = isPinned != 0
	r.IsCodexExec = isCodexExec != 0
	if logSize.Valid {
		r.LastKnownLogSize = logSize.Int64
		r.HasLogSize = true
	}
	return r, nil
}

// GetBySessionID looks up a record by its natural key.
func (db *DB) GetBySessionID(sessionID string) (Record, bool, error) {
	row := db.sql.QueryRow(`SELECT `+selectColumns+` FROM sessions WHERE session_id = ?`, sessionID)
	r, err := scanRecord(row.Scan)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return r, true, nil
}

// GetByLogFilePath looks up a record by its unique log path.
func (db *DB) GetByLogFilePath(logFilePath string) (Record, bool, error) {
	row := db.sql.QueryRow(`SELECT `+selectColumns+` FROM sessions WHERE log_file_path = ?`, logFilePath)
	r, err := scanRecord(row.Scan)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return r, true, nil
}

// GetByCurrentWindow looks up the record currently claiming a tmux
// window, if any.
func (db *DB) GetByCurrentWindow(window string) (Record, bool, error) {
	row := db.sql.QueryRow(`SELECT `+selectColumns+` FROM sessions WHERE current_window = ?`, window)
	r, err := scanRecord(row.Scan)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return r, true, nil
}

func (db *DB) queryRecords(query string, args ...any) ([]Record, error) {
	rows, err := db.sql.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListActive returns every record whose currentWindow is set.
func (db *DB) ListActive() ([]Record, error) {
	return db.queryRecords(`SELECT ` + selectColumns + ` FROM sessions WHERE current_window IS NOT NULL`)
}

// ListInactive returns orphaned records, optionally filtered to those
// whose lastActivityAt is at least maxAgeHours old. maxAgeHours <= 0
// disables the age filter.
func (db *DB) ListInactive(maxAgeHours float64, now time.Time) ([]Record, error) {
	if maxAgeHours <= 0 {
		return db.queryRecords(`SELECT ` + selectColumns + ` FROM sessions WHERE current_window IS NULL`)
	}
	cutoff := now.Add(-time.Duration(maxAgeHours * float64(time.Hour))).Format(time.RFC3339)
	return db.queryRecords(`SELECT `+selectColumns+` FROM sessions WHERE current_window IS NULL AND last_activity_at <= ?`, cutoff)
}

// ListPinnedOrphaned returns pinned records with no current window —
// candidates for resurrection.
func (db *DB) ListPinnedOrphaned() ([]Record, error) {
	return db.queryRecords(`SELECT ` + selectColumns + ` FROM sessions WHERE current_window IS NULL AND is_pinned = 1`)
}

// DisplayNameExists reports whether name is already in use by a record
// other than excludeSessionID (pass "" to check against all records).
func (db *DB) DisplayNameExists(name, excludeSessionID string) (bool, error) {
	row := db.sql.QueryRow(`SELECT COUNT(*) FROM sessions WHERE display_name = ? AND session_id != ?`, name, excludeSessionID)
	var count int
	if err := row.Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// UniqueDisplayName returns base if it's free, otherwise appends "-2",
// "-3", ... until a free name is found, falling back to a random short
// suffix if the sequential search runs long (guards against pathological
// collision storms).
func (db *DB) UniqueDisplayName(base string) (string, error) {
	exists, err := db.DisplayNameExists(base, "")
	if err != nil {
		return "", err
	}
	if !exists {
		return base, nil
	}
	for i := 2; i < 1000; i++ {
		candidate := fmt.Sprintf("%s-%d", base, i)
		exists, err := db.DisplayNameExists(candidate, "")
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return fmt.Sprintf("%s-%s", base, randomSuffix()), nil
}

func randomSuffix() string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, 5)
	for i := range b {
		b[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return string(b)
}

// Orphan clears a record's currentWindow, marking it orphaned.
func (db *DB) Orphan(sessionID string) error {
	empty := ""
	return db.Update(sessionID, Patch{CurrentWindow: &empty})
}

// SetPinned sets the isPinned flag.
func (db *DB) SetPinned(sessionID string, pinned bool) error {
	return db.Update(sessionID, Patch{IsPinned: &pinned})
}

// Update applies a field-level patch to the record identified by
// sessionID. Only non-nil fields in p are written.
func (db *DB) Update(sessionID string, p Patch) error {
	var sets []string
	var args []any

	if p.ProjectPath != nil {
		sets = append(sets, "project_path = ?")
		args = append(args, *p.ProjectPath)
	}
	if p.DisplayName != nil {
		sets = append(sets, "display_name = ?")
		args = append(args, *p.DisplayName)
	}
	if p.LastActivityAt != nil {
		sets = append(sets, "last_activity_at = ?")
		args = append(args, *p.LastActivityAt)
	}
	if p.LastUserMessage != nil {
		sets = append(sets, "last_user_message = ?")
		args = append(args, *p.LastUserMessage)
	}
	if p.CurrentWindow != nil {
		sets = append(sets, "current_window = ?")
		args = append(args, nullableString(*p.CurrentWindow))
	}
	if p.IsPinned != nil {
		sets = append(sets, "is_pinned = ?")
		args = append(args, boolToInt(*p.IsPinned))
	}
	if p.LastResumeError != nil {
		sets = append(sets, "last_resume_error = ?")
		args = append(args, *p.LastResumeError)
	}
	if p.LastKnownLogSize != nil {
		sets = append(sets, "last_known_log_size = ?")
		args = append(args, *p.LastKnownLogSize)
	}
	if p.GitBranch != nil {
		sets = append(sets, "git_branch = ?")
		args = append(args, *p.GitBranch)
	}
	if p.Model != nil {
		sets = append(sets, "model = ?")
		args = append(args, *p.Model)
	}
	if p.MessageCount != nil {
		sets = append(sets, "message_count = ?")
		args = append(args, *p.MessageCount)
	}

	if len(sets) == 0 {
		return nil
	}

	args = append(args, sessionID)
	query := fmt.Sprintf(`UPDATE sessions SET %s WHERE session_id = ?`, strings.Join(sets, ", "))
	_, err := db.sql.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("updating session %s: %w", sessionID, err)
	}
	return nil
}

// GetAppSetting returns a stored key's value, and whether it was set.
func (db *DB) GetAppSetting(key string) (string, bool, error) {
	row := db.sql.QueryRow(`SELECT value FROM app_settings WHERE key = ?`, key)
	var v string
	err := row.Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// SetAppSetting upserts a key/value pair.
func (db *DB) SetAppSetting(key, value string) error {
	_, err := db.sql.Exec(`
INSERT INTO app_settings (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}
