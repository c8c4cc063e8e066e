package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that tmux, ripgrep, and the configured paths are usable",
	RunE:  runDoctor,
}

// checkStatus mirrors the ok/warning/error tiers surfaced by the
// command's output; warnings don't fail the overall check.
type checkStatus int

const (
	statusOK checkStatus = iota
	statusWarning
	statusError
)

func (s checkStatus) String() string {
	switch s {
	case statusOK:
		return "OK"
	case statusWarning:
		return "WARN"
	default:
		return "FAIL"
	}
}

type checkResult struct {
	Name    string
	Status  checkStatus
	Message string
}

func runDoctor(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	results := []checkResult{
		checkBinary("tmux"),
		checkBinary("rg"),
		checkLogRoot("claude log root", cfg.ClaudeLogRoot),
		checkLogRoot("codex log root", cfg.CodexLogRoot),
		checkLogRoot("pi log root", cfg.PiLogRoot),
		checkDBPath(cfg.DBPath),
	}

	failed := false
	for _, r := range results {
		fmt.Printf("[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if r.Status == statusError {
			failed = true
		}
	}
	if failed {
		return fmt.Errorf("one or more checks failed")
	}
	return nil
}

func checkBinary(name string) checkResult {
	path, err := exec.LookPath(name)
	if err != nil {
		return checkResult{Name: name, Status: statusError, Message: "not found on PATH"}
	}
	return checkResult{Name: name, Status: statusOK, Message: path}
}

func checkLogRoot(name, path string) checkResult {
	if path == "" {
		return checkResult{Name: name, Status: statusWarning, Message: "not configured"}
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return checkResult{Name: name, Status: statusWarning, Message: path + " does not exist yet (no sessions logged there)"}
	}
	if err != nil {
		return checkResult{Name: name, Status: statusError, Message: err.Error()}
	}
	if !info.IsDir() {
		return checkResult{Name: name, Status: statusError, Message: path + " is not a directory"}
	}
	return checkResult{Name: name, Status: statusOK, Message: path}
}

func checkDBPath(path string) checkResult {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return checkResult{Name: "session database", Status: statusError, Message: "cannot create " + dir + ": " + err.Error()}
	}
	probe := filepath.Join(dir, ".agentboard-doctor-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0600); err != nil {
		return checkResult{Name: "session database", Status: statusError, Message: "directory not writable: " + err.Error()}
	}
	_ = os.Remove(probe)
	return checkResult{Name: "session database", Status: statusOK, Message: path}
}
