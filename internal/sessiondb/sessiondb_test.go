package sessiondb

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/agentboard/agentboard/internal/constants"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agentboard.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleRecord(id string) Record {
	now := time.Now().UTC().Format(time.RFC3339)
	return Record{
		SessionID:      id,
		LogFilePath:    "/logs/" + id + ".jsonl",
		ProjectPath:    "/home/user/project",
		AgentType:      constants.AgentClaude,
		DisplayName:    "project-" + id,
		CreatedAt:      now,
		LastActivityAt: now,
		CurrentWindow:  "agentboard:@1",
	}
}

func TestInsertAndGetBySessionID(t *testing.T) {
	db := openTestDB(t)
	r := sampleRecord("sess-1")
	if err := db.Insert(r); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, ok, err := db.GetBySessionID("sess-1")
	if err != nil || !ok {
		t.Fatalf("GetBySessionID: got=%v ok=%v err=%v", got, ok, err)
	}
	if got.LogFilePath != r.LogFilePath || got.AgentType != r.AgentType {
		t.Errorf("round-trip mismatch: %+v", got)
	}
}

func TestSessionIDUniqueness(t *testing.T) {
	db := openTestDB(t)
	r := sampleRecord("sess-1")
	if err := db.Insert(r); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	r2 := r
	r2.LogFilePath = "/logs/other.jsonl"
	r2.DisplayName = "other-name"
	if err := db.Insert(r2); err == nil {
		t.Fatal("expected unique constraint violation on duplicate session_id")
	}
}

func TestLogFilePathUniqueness(t *testing.T) {
	db := openTestDB(t)
	r := sampleRecord("sess-1")
	if err := db.Insert(r); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	r2 := sampleRecord("sess-2")
	r2.LogFilePath = r.LogFilePath
	if err := db.Insert(r2); err == nil {
		t.Fatal("expected unique constraint violation on duplicate log_file_path")
	}
}

func TestCurrentWindowAtMostOneActive(t *testing.T) {
	db := openTestDB(t)
	r1 := sampleRecord("sess-1")
	if err := db.Insert(r1); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	r2 := sampleRecord("sess-2")
	r2.CurrentWindow = r1.CurrentWindow
	if err := db.Insert(r2); err == nil {
		t.Fatal("expected unique constraint violation: two sessions claiming the same window")
	}
}

func TestOrphanClearsCurrentWindowAndAllowsReuse(t *testing.T) {
	db := openTestDB(t)
	r1 := sampleRecord("sess-1")
	if err := db.Insert(r1); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := db.Orphan("sess-1"); err != nil {
		t.Fatalf("Orphan: %v", err)
	}

	got, _, _ := db.GetBySessionID("sess-1")
	if got.CurrentWindow != "" {
		t.Errorf("CurrentWindow = %q, want empty after orphan", got.CurrentWindow)
	}

	r2 := sampleRecord("sess-2")
	r2.CurrentWindow = r1.CurrentWindow
	if err := db.Insert(r2); err != nil {
		t.Fatalf("expected window to be reusable after orphaning previous holder: %v", err)
	}
}

func TestUpdatePatchOnlyTouchesSetFields(t *testing.T) {
	db := openTestDB(t)
	r := sampleRecord("sess-1")
	if err := db.Insert(r); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	msg := "fix the bug"
	if err := db.Update("sess-1", Patch{LastUserMessage: &msg}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, _, _ := db.GetBySessionID("sess-1")
	if got.LastUserMessage != msg {
		t.Errorf("LastUserMessage = %q, want %q", got.LastUserMessage, msg)
	}
	if got.ProjectPath != r.ProjectPath {
		t.Error("unrelated field should be untouched by a partial patch")
	}
}

func TestDisplayNameExistsExcludesSelf(t *testing.T) {
	db := openTestDB(t)
	r := sampleRecord("sess-1")
	if err := db.Insert(r); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	exists, err := db.DisplayNameExists(r.DisplayName, "sess-1")
	if err != nil {
		t.Fatalf("DisplayNameExists: %v", err)
	}
	if exists {
		t.Error("should not count the record's own name against itself")
	}

	exists, err = db.DisplayNameExists(r.DisplayName, "")
	if err != nil {
		t.Fatalf("DisplayNameExists: %v", err)
	}
	if !exists {
		t.Error("expected name to be reported in use when not excluding the owner")
	}
}

func TestUniqueDisplayNameAppendsSuffix(t *testing.T) {
	db := openTestDB(t)
	r := sampleRecord("sess-1")
	if err := db.Insert(r); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	name, err := db.UniqueDisplayName(r.DisplayName)
	if err != nil {
		t.Fatalf("UniqueDisplayName: %v", err)
	}
	if name != r.DisplayName+"-2" {
		t.Errorf("name = %q, want %q", name, r.DisplayName+"-2")
	}
}

func TestListActiveAndListInactive(t *testing.T) {
	db := openTestDB(t)
	active := sampleRecord("sess-1")
	if err := db.Insert(active); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	orphaned := sampleRecord("sess-2")
	orphaned.CurrentWindow = ""
	orphaned.LogFilePath = "/logs/sess-2.jsonl"
	orphaned.DisplayName = "orphaned"
	if err := db.Insert(orphaned); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	activeList, err := db.ListActive()
	if err != nil || len(activeList) != 1 || activeList[0].SessionID != "sess-1" {
		t.Errorf("ListActive = %+v, err=%v", activeList, err)
	}

	inactiveList, err := db.ListInactive(0, time.Now())
	if err != nil || len(inactiveList) != 1 || inactiveList[0].SessionID != "sess-2" {
		t.Errorf("ListInactive = %+v, err=%v", inactiveList, err)
	}
}

func TestListPinnedOrphaned(t *testing.T) {
	db := openTestDB(t)
	pinned := sampleRecord("sess-1")
	pinned.CurrentWindow = ""
	pinned.IsPinned = true
	if err := db.Insert(pinned); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	unpinned := sampleRecord("sess-2")
	unpinned.CurrentWindow = ""
	unpinned.LogFilePath = "/logs/sess-2.jsonl"
	unpinned.DisplayName = "unpinned"
	if err := db.Insert(unpinned); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := db.ListPinnedOrphaned()
	if err != nil || len(got) != 1 || got[0].SessionID != "sess-1" {
		t.Errorf("ListPinnedOrphaned = %+v, err=%v", got, err)
	}
}

func TestAppSettingRoundTrip(t *testing.T) {
	db := openTestDB(t)
	if _, ok, err := db.GetAppSetting("theme"); err != nil || ok {
		t.Fatalf("expected missing setting, got ok=%v err=%v", ok, err)
	}
	if err := db.SetAppSetting("theme", "dark"); err != nil {
		t.Fatalf("SetAppSetting: %v", err)
	}
	v, ok, err := db.GetAppSetting("theme")
	if err != nil || !ok || v != "dark" {
		t.Fatalf("GetAppSetting = %q, ok=%v, err=%v", v, ok, err)
	}
	if err := db.SetAppSetting("theme", "light"); err != nil {
		t.Fatalf("SetAppSetting (upsert): %v", err)
	}
	v, _, _ = db.GetAppSetting("theme")
	if v != "light" {
		t.Errorf("expected upsert to overwrite, got %q", v)
	}
}
