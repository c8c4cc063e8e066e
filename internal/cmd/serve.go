package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/agentboard/agentboard/internal/constants"
	"github.com/agentboard/agentboard/internal/gateway"
	"github.com/agentboard/agentboard/internal/logmatch"
	"github.com/agentboard/agentboard/internal/logstore"
	"github.com/agentboard/agentboard/internal/matchworker"
	"github.com/agentboard/agentboard/internal/poller"
	"github.com/agentboard/agentboard/internal/registry"
	"github.com/agentboard/agentboard/internal/sessiondb"
	"github.com/agentboard/agentboard/internal/tmux"
)

// tmuxSessionEnv names the tmux session agentboard runs inside and
// spawns new agent windows into; matching the deployment convention
// described for the gateway's session-create path.
const tmuxSessionEnv = "TMUX_SESSION"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the agentboard daemon: poll agent logs, correlate tmux windows, and serve the websocket gateway",
	RunE:  runServe,
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log := newLogger(cfg)

	lock := flock.New(cfg.DBPath + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring database lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another agentboardd instance already holds %s", cfg.DBPath)
	}
	defer lock.Unlock()

	db, err := sessiondb.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening session database: %w", err)
	}
	defer db.Close()

	tm := tmux.NewTmux()
	if !tm.IsAvailable() {
		log.Warn("tmux binary not found on PATH; window correlation will fail")
	}

	store := logstore.New(map[constants.AgentType]string{
		constants.AgentClaude: cfg.ClaudeLogRoot,
		constants.AgentCodex:  cfg.CodexLogRoot,
		constants.AgentPi:     cfg.PiLogRoot,
	})
	roots := []string{cfg.ClaudeLogRoot, cfg.CodexLogRoot, cfg.PiLogRoot}
	matcher := logmatch.New(tm, store, nil, roots)
	worker := matchworker.New(store, matcher)

	reg := registry.New()
	windows := gateway.NewWindowSource(tm)

	gw := gateway.NewGateway(reg, db, tm, windows, os.Getenv(tmuxSessionEnv), cfg.AllowKillExternal, log)

	p := poller.New(worker, db, reg, windows, gw, poller.Config{
		Interval:        cfg.RefreshInterval,
		RGThreads:       4,
		MaxLogsPerPoll:  40,
	})
	p.Resurrector = poller.NewTmuxResurrector(tm, poller.ResumeCommands{
		Claude: cfg.ClaudeResumeCmd,
		Codex:  cfg.CodexResumeCmd,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go p.Run(ctx)
	go watchLogRoots(ctx, p, roots, log)

	mux := http.NewServeMux()
	mux.Handle("/ws", gw)

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("agentboard listening", "port", cfg.Port, "db", cfg.DBPath)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}
