// Package runner is the stage-parameterized supervisor: for one lode and
// one stage it sets up the working directory, spawns the external agent
// inside a tmux pane, watches it for activity/stuck/exit, and reports
// every transition back to the coordinator over a persistent
// connection. Grounded on the teacher repo's process-supervision style
// (thin exec.Cmd wrapping, explicit exit-code branching) generalized to
// hopper's mill/refine/ship pipeline per SPEC_FULL.md §6 and
// original_source/hopper/process.py's unified per-stage setup dispatch.
package runner

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/solpbc/hopper/internal/agent"
	"github.com/solpbc/hopper/internal/client"
	"github.com/solpbc/hopper/internal/config"
	"github.com/solpbc/hopper/internal/gitutil"
	"github.com/solpbc/hopper/internal/hlog"
	"github.com/solpbc/hopper/internal/lifecycle"
	"github.com/solpbc/hopper/internal/projects"
	"github.com/solpbc/hopper/internal/protocol"
	"github.com/solpbc/hopper/internal/store"
	"github.com/solpbc/hopper/internal/tmux"
)

const activityInterval = 5 * time.Second

// exit codes the agent process is expected to use.
const (
	exitOK          = 0
	exitNotFound    = 127
	exitInterrupted = 130
)

// refineBootstrapPrompt seeds the codex thread created on a refine
// stage's first run; the thread is then resumed for every `hopper code`
// sub-task for the rest of the lode's life.
const refineBootstrapPrompt = "You are the codex assistant for this lode's refine stage. " +
	"Resume this thread for focused sub-tasks the interactive agent delegates via `hopper code`."

// Runner supervises one agent run for one lode/stage pair.
type Runner struct {
	Paths      config.Paths
	LodeID     string
	Stage      store.Stage
	ProjectDir string
	TmuxTarget string

	Tmux tmux.Tmux
	Log  *hlog.Logger

	conn *client.Connection
}

// New builds a Runner. tmuxTarget identifies the pane the agent will be
// driven inside (already created by the caller, mirroring the teacher's
// convention of the CLI owning window/pane lifecycle, not the runner).
func New(paths config.Paths, lodeID string, stage store.Stage, projectDir, tmuxTarget string, log *hlog.Logger) *Runner {
	return &Runner{
		Paths:      paths,
		LodeID:     lodeID,
		Stage:      stage,
		ProjectDir: projectDir,
		TmuxTarget: tmuxTarget,
		Log:        log,
	}
}

// Run drives the full stage lifecycle: handshake, stage setup, agent
// spawn, activity/dismiss monitoring, and exit-code handling. It returns
// once the agent process has exited and state has been reported.
func (r *Runner) Run() error {
	cfg, ok := Stages[r.Stage]
	if !ok {
		return fmt.Errorf("runner: unknown stage %q", r.Stage)
	}

	if err := client.Ping(r.Paths.Socket); err != nil {
		return fmt.Errorf("runner: handshake: %w", err)
	}

	l, err := r.fetchLode()
	if err != nil {
		return err
	}
	if err := lifecycle.CanAttachRunner(l, r.Stage); err != nil {
		return fmt.Errorf("runner: %w", err)
	}

	session := l.Claude.Get(r.Stage)
	sessionID := session.SessionID
	resume := session.Started
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	r.conn = client.New(r.Paths.Socket, r.Log)
	pane := r.TmuxTarget
	r.conn.OnConnect = func() {
		pid := os.Getpid()
		r.conn.Emit(map[string]any{
			"type":      protocol.TypeLodeRegister,
			"lode_id":   r.LodeID,
			"tmux_pane": pane,
			"pid":       pid,
		})
	}
	r.conn.Start()
	defer r.conn.Stop()

	dir, err := r.setupStage(cfg, l, !resume)
	if err != nil {
		r.setState(store.StateError, err.Error())
		return err
	}

	prompt, err := r.loadPrompt(cfg, dir)
	if err != nil {
		r.setState(store.StateError, err.Error())
		return err
	}

	r.setState(store.StateRunning, "Claude running")

	if r.TmuxTarget != "" {
		r.Tmux.RenameWindow(r.TmuxTarget, r.LodeID)
	}

	stopActivity := make(chan struct{})
	go r.watchActivity(stopActivity)
	defer close(stopActivity)

	var dismissStop chan struct{}
	if cfg.AlwaysDismiss {
		dismissStop = make(chan struct{})
		defer close(dismissStop)
	}

	spec := agent.Spec{
		Dir:           dir,
		SessionID:     sessionID,
		Resume:        resume,
		InitialPrompt: prompt,
		LodeID:        r.LodeID,
	}
	cmd := agent.BuildCommand(spec)

	var stderr bytes.Buffer
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = io.MultiWriter(os.Stderr, &stderr)
	errCh := make(chan error, 1)
	go func() {
		errCh <- cmd.Run()
	}()

	if cfg.AlwaysDismiss {
		go r.watchDismiss(dismissStop, cfg.Stage)
	}

	runErr := <-errCh
	code := exitCodeOf(runErr)

	if !resume && code != exitNotFound {
		r.conn.Emit(map[string]any{
			"type":    protocol.TypeLodeSetClaudeStarted,
			"lode_id": r.LodeID,
			"value":   string(r.Stage),
		})
	}

	switch code {
	case exitOK:
		r.handleCleanExit(cfg)
	case exitNotFound:
		r.setState(store.StateError, "command not found")
	case exitInterrupted:
		// user interrupted the pane; no state change.
	default:
		lines := agent.LastStderrLines(stderr.Bytes(), 5)
		msg := fmt.Sprintf("agent exited %d", code)
		if len(lines) > 0 {
			msg = fmt.Sprintf("%s: %s", msg, strings.Join(lines, "\n"))
		}
		r.setState(store.StateError, msg)
	}

	return nil
}

// fetchLode performs the connect handshake and decodes the lode
// snapshot it returns.
func (r *Runner) fetchLode() (store.Lode, error) {
	resp, err := client.Connect(r.Paths.Socket, r.LodeID)
	if err != nil {
		return store.Lode{}, fmt.Errorf("runner: connect handshake: %w", err)
	}
	found, _ := resp["lode_found"].(bool)
	if !found {
		return store.Lode{}, fmt.Errorf("runner: no such lode %q", r.LodeID)
	}
	raw, err := json.Marshal(resp["lode"])
	if err != nil {
		return store.Lode{}, fmt.Errorf("runner: re-encoding connect reply: %w", err)
	}
	var l store.Lode
	if err := json.Unmarshal(raw, &l); err != nil {
		return store.Lode{}, fmt.Errorf("runner: decoding lode from connect reply: %w", err)
	}
	return l, nil
}

// handleCleanExit inspects the stage's output artifact to decide between
// "done, advance" and "no signal, stay put" on a zero exit. A completed
// stage reports ready and then advances the lode's stage field so the
// next runner attaches to the right stage.
func (r *Runner) handleCleanExit(cfg StageConfig) {
	outFile := filepath.Join(r.Paths.LodeDir(r.LodeID), string(r.Stage)+"_out.md")
	if _, err := os.Stat(outFile); err != nil {
		return
	}
	r.setState(store.StateReady, lifecycle.DoneStatus(cfg.Stage))
	r.conn.Emit(map[string]any{
		"type":    protocol.TypeLodeSetStage,
		"lode_id": r.LodeID,
		"value":   string(cfg.Next),
	})
}

func (r *Runner) setState(state, status string) {
	r.conn.Emit(map[string]any{
		"type":    protocol.TypeLodeSetState,
		"lode_id": r.LodeID,
		"value":   state,
	})
	r.conn.Emit(map[string]any{
		"type":    protocol.TypeLodeSetStatus,
		"lode_id": r.LodeID,
		"value":   status,
	})
}

// setupStage dispatches to the stage's dedicated precondition/bootstrap
// logic, matching process.py's per-stage _setup_mill/_setup_refine/
// _setup_ship split.
func (r *Runner) setupStage(cfg StageConfig, l store.Lode, firstRun bool) (string, error) {
	switch cfg.Stage {
	case store.StageRefine:
		return r.setupRefine(l, firstRun)
	case store.StageShip:
		return r.setupShip()
	default:
		return r.ProjectDir, nil
	}
}

// setupRefine creates the stage's worktree if it doesn't already exist,
// runs the project's install command once (skipped once .venv already
// exists, matching original_source/hopper/process.py's venv_missing
// check), and on the stage's first run bootstraps the codex thread used
// for the lode's whole refine/ship lifetime.
func (r *Runner) setupRefine(l store.Lode, firstRun bool) (string, error) {
	worktreeDir := filepath.Join(r.Paths.LodeDir(r.LodeID), "worktree")
	if _, err := os.Stat(worktreeDir); err != nil {
		branch := l.Branch
		if branch == "" {
			branch = "hopper-" + r.LodeID
		}
		if err := gitutil.CreateWorktree(r.ProjectDir, worktreeDir, branch); err != nil {
			return "", fmt.Errorf("failed to create git worktree: %w", err)
		}
	}

	if _, err := os.Stat(filepath.Join(worktreeDir, "Makefile")); err == nil {
		if _, err := os.Stat(filepath.Join(worktreeDir, ".venv")); err != nil {
			if err := projects.RunInstallCommand(worktreeDir); err != nil {
				return "", err
			}
		}
	}

	if firstRun {
		env := agent.BuildEnv(worktreeDir, r.LodeID)
		threadID, err := agent.BootstrapCodex(refineBootstrapPrompt, worktreeDir, env)
		if err != nil {
			return "", fmt.Errorf("codex bootstrap failed: %w", err)
		}
		r.conn.Emit(map[string]any{
			"type":    protocol.TypeLodeSetCodexThread,
			"lode_id": r.LodeID,
			"value":   threadID,
		})
	}

	return worktreeDir, nil
}

// setupShip enforces the ship preconditions from original_source/hopper
// ship.py: the worktree must already exist (refine creates it, ship
// never does), and the project repo itself — not the worktree — must be
// clean and checked out on main/master before the agent is allowed to
// merge refine's work back into it. It then snapshots the worktree's
// diff against its default branch for the agent and a human reviewer to
// see.
func (r *Runner) setupShip() (string, error) {
	worktreeDir := filepath.Join(r.Paths.LodeDir(r.LodeID), "worktree")
	if _, err := os.Stat(worktreeDir); err != nil {
		return "", fmt.Errorf("worktree not found: %s", worktreeDir)
	}

	if gitutil.IsDirty(r.ProjectDir) {
		return "", fmt.Errorf("project repo has uncommitted changes: %s", r.ProjectDir)
	}

	branch, ok := gitutil.CurrentBranch(r.ProjectDir)
	if !ok || (branch != "main" && branch != "master") {
		return "", fmt.Errorf("project repo is on branch %q, expected main or master", branch)
	}

	if diff, err := gitutil.DiffNumstat(worktreeDir); err == nil {
		_ = os.WriteFile(filepath.Join(r.Paths.LodeDir(r.LodeID), "diff.txt"), []byte(diff), 0o644)
	}

	return r.ProjectDir, nil
}

// loadPrompt reads the stage's input artifact (if any) from the lode
// directory to seed the initial prompt.
func (r *Runner) loadPrompt(cfg StageConfig, dir string) (string, error) {
	if cfg.InputArtifact == "" {
		return "", nil
	}
	data, err := os.ReadFile(filepath.Join(r.Paths.LodeDir(r.LodeID), cfg.InputArtifact))
	if err != nil {
		return "", fmt.Errorf("runner: reading %s: %w", cfg.InputArtifact, err)
	}
	return string(data), nil
}

func exitCodeOf(err error) int {
	if err == nil {
		return exitOK
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	if _, ok := err.(*exec.Error); ok {
		return exitNotFound
	}
	return -1
}
