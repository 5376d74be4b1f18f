// Package daemon wires the coordinator, transport server, and durable
// store together into the single long-lived hopper process, guarded by
// a gofrs/flock advisory lock so only one daemon ever owns a given
// hopper home at a time. Grounded on the teacher repo's single-instance
// daemon pattern (an exclusive lock file beside the unix socket, held
// for the process lifetime) generalized to hopper's store/coordinator
// split.
package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"

	"github.com/solpbc/hopper/internal/config"
	"github.com/solpbc/hopper/internal/coordinator"
	"github.com/solpbc/hopper/internal/hlog"
	"github.com/solpbc/hopper/internal/store"
	"github.com/solpbc/hopper/internal/tmux"
	"github.com/solpbc/hopper/internal/transport"
)

// TmuxSession is the name of the tmux session runner windows are
// created in. A non-empty CmdSpawner.Session takes its place.
const TmuxSession = "hopper"

// ErrAlreadyRunning is returned by Up when another process already holds
// the instance lock.
var ErrAlreadyRunning = fmt.Errorf("daemon: another hopper instance is already running")

// Daemon is the assembled long-lived process: store, transport,
// coordinator, and the advisory lock that guarantees single-instancing.
type Daemon struct {
	Paths       config.Paths
	Store       *store.Store
	Server      *transport.Server
	Coordinator *coordinator.Coordinator
	Log         *hlog.Logger

	lock *flock.Flock
}

// New assembles (but does not start) a Daemon rooted at paths.
func New(paths config.Paths, spawner coordinator.Spawner) (*Daemon, error) {
	if err := paths.EnsureRoot(); err != nil {
		return nil, fmt.Errorf("daemon: preparing %s: %w", paths.Root, err)
	}
	log, err := hlog.Open(paths.ActivityLog)
	if err != nil {
		return nil, fmt.Errorf("daemon: opening activity log: %w", err)
	}
	st := store.New(paths)
	if err := st.Load(); err != nil {
		return nil, fmt.Errorf("daemon: loading store: %w", err)
	}
	srv := transport.NewServer(paths.Socket, transport.Handlers{}, log)
	location := ""
	var tm tmux.Tmux
	if pane, ok := tm.CurrentPaneID(); ok {
		location, _ = tm.CurrentLocation(pane)
	}
	co := coordinator.New(st, srv, log, spawner, location)
	return &Daemon{
		Paths:       paths,
		Store:       st,
		Server:      srv,
		Coordinator: co,
		Log:         log,
		lock:        flock.New(paths.Socket + ".lock"),
	}, nil
}

// Start acquires the single-instance lock and starts the transport
// server and coordinator, returning once both are serving. The caller
// is responsible for eventually calling Shutdown.
func (d *Daemon) Start() error {
	locked, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("daemon: acquiring instance lock: %w", err)
	}
	if !locked {
		return ErrAlreadyRunning
	}
	if err := d.Server.Start(); err != nil {
		d.lock.Unlock()
		return fmt.Errorf("daemon: starting transport: %w", err)
	}
	if err := d.Coordinator.Start(); err != nil {
		d.Server.Stop(nil)
		d.lock.Unlock()
		return fmt.Errorf("daemon: starting coordinator: %w", err)
	}
	d.Log.Line("daemon: up, listening on %s", d.Paths.Socket)
	return nil
}

// Shutdown broadcasts a shutdown notice, tears down the transport
// server, and releases the instance lock. Safe to call once after a
// successful Start.
func (d *Daemon) Shutdown() {
	d.Log.Line("daemon: shutting down")
	d.Coordinator.Stop()
	d.Log.Close()
	d.lock.Unlock()
}

// Up is the foreground convenience entry point: Start, then block until
// a termination signal arrives, then Shutdown. Used when nothing else
// (e.g. a TUI) owns the foreground.
func (d *Daemon) Up() error {
	if err := d.Start(); err != nil {
		return err
	}
	defer d.Shutdown()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	<-sigCh
	return nil
}

// IsRunning reports whether another instance currently holds the lock,
// without itself starting anything.
func IsRunning(paths config.Paths) bool {
	l := flock.New(paths.Socket + ".lock")
	locked, err := l.TryLock()
	if err != nil {
		return false
	}
	if locked {
		l.Unlock()
		return false
	}
	return true
}

// CmdSpawner is the default coordinator.Spawner: it opens a fresh tmux
// window running the current hopper binary's "process" subcommand for
// the given lode, so the stage runner always has a real pane to drive
// the agent inside and to capture for activity detection.
type CmdSpawner struct {
	// BinaryPath is the hopper executable to re-invoke; defaults to
	// os.Args[0] when empty.
	BinaryPath string
	Tmux       tmux.Tmux
	Session    string
}

// Spawn opens `hopper process <lodeID>` in a new tmux window. If no
// tmux session is available it falls back to a detached subprocess with
// no pane (activity monitoring then degrades to a no-op, logged by the
// runner rather than failing the run). foreground is accepted for
// interface symmetry with a synchronous CLI-invoked run; the background
// spawn path always detaches.
func (c CmdSpawner) Spawn(lodeID string, stage store.Stage, foreground bool) error {
	bin := c.BinaryPath
	if bin == "" {
		bin = os.Args[0]
	}
	session := c.Session
	if session == "" {
		session = TmuxSession
	}
	command := fmt.Sprintf("%s process %s", bin, lodeID)

	if !c.Tmux.HasSession(session) {
		if err := c.Tmux.NewSession(session); err != nil {
			cmd := exec.Command(bin, "process", lodeID)
			return cmd.Start()
		}
	}
	_, err := c.Tmux.NewWindow(session, lodeID, command)
	return err
}
