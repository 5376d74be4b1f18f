// Package coordinator is the daemon's central authority: it holds the
// in-memory store behind a single mutex, dispatches wire messages to
// handlers, maintains the lode<->connection ownership registry, and
// decides when a disconnect should trigger an auto-advance spawn.
package coordinator

import (
	"sync"

	"github.com/solpbc/hopper/internal/hlog"
	"github.com/solpbc/hopper/internal/store"
	"github.com/solpbc/hopper/internal/transport"
)

// Spawner launches a runner process for a lode's stage in the
// background. It is the "external agent-spawn collaborator" the spec
// names — the coordinator never builds agent commands itself.
type Spawner interface {
	Spawn(lodeID string, stage store.Stage, foreground bool) error
}

// Coordinator holds the authoritative state and the ownership registry.
// Every exported mutating method acquires mu for its entire
// read-modify-write-persist sequence and never broadcasts while holding
// it, per the concurrency model's ordering rule.
type Coordinator struct {
	mu      sync.Mutex
	Store   *store.Store
	Server  *transport.Server
	Log     *hlog.Logger
	Spawner Spawner

	byLode map[string]*transport.Conn
	byConn map[*transport.Conn]string

	tmuxLocation string
}

// New builds a Coordinator over an already-loaded store and transport
// server.
func New(st *store.Store, srv *transport.Server, log *hlog.Logger, spawner Spawner, tmuxLocation string) *Coordinator {
	return &Coordinator{
		Store:        st,
		Server:       srv,
		Log:          log,
		Spawner:      spawner,
		byLode:       make(map[string]*transport.Conn),
		byConn:       make(map[*transport.Conn]string),
		tmuxLocation: tmuxLocation,
	}
}

// Start reconciles stale liveness from a prior crash and wires this
// coordinator's callbacks into the transport server.
func (co *Coordinator) Start() error {
	co.mu.Lock()
	err := co.Store.ReconcileStartup()
	co.mu.Unlock()
	if err != nil {
		return err
	}
	co.Server.Handlers = transport.Handlers{
		OnMessage:    co.handleMessage,
		OnDisconnect: co.handleDisconnect,
	}
	return nil
}

// Stop broadcasts a shutdown notice and tears down the transport
// server. It does not hold mu across the transport call, matching the
// rule that broadcasts never happen under the lock.
func (co *Coordinator) Stop() {
	shutdown, _ := encode(map[string]string{"type": "shutdown"})
	co.Server.Stop(shutdown)
}

// registerOwner claims ownership of lodeID for c, evicting any prior
// owner. Must be called with mu held.
func (co *Coordinator) registerOwner(lodeID string, c *transport.Conn) (evicted *transport.Conn) {
	if prev, ok := co.byLode[lodeID]; ok && prev != c {
		delete(co.byConn, prev)
		evicted = prev
	}
	if oldLode, ok := co.byConn[c]; ok && oldLode != lodeID {
		delete(co.byLode, oldLode)
	}
	co.byLode[lodeID] = c
	co.byConn[c] = lodeID
	return evicted
}

// releaseConn removes c from both registry maps and returns the lode id
// it owned, if any. Must be called with mu held.
func (co *Coordinator) releaseConn(c *transport.Conn) (lodeID string, ok bool) {
	lodeID, ok = co.byConn[c]
	if !ok {
		return "", false
	}
	delete(co.byConn, c)
	delete(co.byLode, lodeID)
	return lodeID, true
}

func (co *Coordinator) broadcast(v any) {
	line, err := encode(v)
	if err != nil {
		if co.Log != nil {
			co.Log.Line("coordinator: encode failed: %v", err)
		}
		return
	}
	co.Server.Broadcast(line)
}

func (co *Coordinator) reply(c *transport.Conn, v any) {
	line, err := encode(v)
	if err != nil {
		if co.Log != nil {
			co.Log.Line("coordinator: encode failed: %v", err)
		}
		return
	}
	if err := c.Write(line); err != nil && co.Log != nil {
		co.Log.Line("coordinator: reply write failed: %v", err)
	}
}

func (co *Coordinator) logActivity(format string, args ...any) {
	if co.Log != nil {
		co.Log.Line(format, args...)
	}
}
