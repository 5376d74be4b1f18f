package coordinator

import (
	"bufio"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/solpbc/hopper/internal/config"
	"github.com/solpbc/hopper/internal/store"
	"github.com/solpbc/hopper/internal/transport"
)

type fakeSpawner struct {
	calls chan spawnCall
}

type spawnCall struct {
	lodeID     string
	stage      store.Stage
	foreground bool
}

func (f *fakeSpawner) Spawn(lodeID string, stage store.Stage, foreground bool) error {
	f.calls <- spawnCall{lodeID, stage, foreground}
	return nil
}

func newTestCoordinator(t *testing.T) (*Coordinator, string) {
	t.Helper()
	root := t.TempDir()
	paths := config.Resolve(root)
	if err := paths.EnsureRoot(); err != nil {
		t.Fatal(err)
	}
	st := store.New(paths)
	if err := st.Load(); err != nil {
		t.Fatal(err)
	}
	sock := filepath.Join(root, "server.sock")
	srv := transport.NewServer(sock, transport.Handlers{}, nil)
	spawner := &fakeSpawner{calls: make(chan spawnCall, 8)}
	co := New(st, srv, nil, spawner, "test:0.0")
	if err := co.Start(); err != nil {
		t.Fatal(err)
	}
	if err := srv.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { co.Stop() })
	return co, sock
}

func dial(t *testing.T, sock string) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("unix", sock)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn, bufio.NewReader(conn)
}

func sendJSON(t *testing.T, conn net.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		t.Fatal(err)
	}
}

func readJSON(t *testing.T, r *bufio.Reader) map[string]any {
	t.Helper()
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var v map[string]any
	if err := json.Unmarshal([]byte(line), &v); err != nil {
		t.Fatalf("unmarshal %q: %v", line, err)
	}
	return v
}

func TestCreateRegisterDisconnectAutoAdvance(t *testing.T) {
	co, sock := newTestCoordinator(t)
	spawner := co.Spawner.(*fakeSpawner)

	owner, ownerR := dial(t, sock)
	defer owner.Close()
	owner.SetReadDeadline(time.Now().Add(2 * time.Second))

	sendJSON(t, owner, map[string]any{"type": "lode_create", "project": "p", "scope": "do it"})
	created := readJSON(t, ownerR)
	if created["type"] != "lode_created" {
		t.Fatalf("got %v", created)
	}
	lode := created["lode"].(map[string]any)
	id := lode["id"].(string)
	if len(id) != 8 {
		t.Fatalf("id %q has wrong length", id)
	}
	// The creator also receives the lode_created broadcast after its reply.
	if echoed := readJSON(t, ownerR); echoed["type"] != "lode_created" {
		t.Fatalf("got %v", echoed)
	}

	sendJSON(t, owner, map[string]any{"type": "lode_register", "lode_id": id, "pid": 123})
	updated := readJSON(t, ownerR)
	if updated["type"] != "lode_updated" {
		t.Fatalf("got %v", updated)
	}

	co.mu.Lock()
	l, err := co.Store.FindActive(id)
	if err != nil {
		co.mu.Unlock()
		t.Fatal(err)
	}
	if !l.Active {
		co.mu.Unlock()
		t.Fatal("expected active=true after register")
	}
	l.Auto = true
	l.State = store.StateReady
	l.Status = "Mill complete"
	saveErr := co.Store.SaveActive()
	co.mu.Unlock()
	if saveErr != nil {
		t.Fatal(saveErr)
	}

	owner.Close()

	select {
	case call := <-spawner.calls:
		if call.lodeID != id || call.stage != store.StageRefine || call.foreground {
			t.Fatalf("unexpected spawn call: %+v", call)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for auto-advance spawn")
	}

	co.mu.Lock()
	l2, err := co.Store.FindActive(id)
	co.mu.Unlock()
	if err != nil {
		t.Fatal(err)
	}
	if l2.Active {
		t.Fatal("expected active=false after disconnect")
	}
}

func TestOwnershipTakeoverClosesPriorConnection(t *testing.T) {
	co, sock := newTestCoordinator(t)
	_ = co

	owner, ownerR := dial(t, sock)
	defer owner.Close()
	owner.SetReadDeadline(time.Now().Add(2 * time.Second))
	sendJSON(t, owner, map[string]any{"type": "lode_create", "project": "p", "scope": "s"})
	created := readJSON(t, ownerR)
	id := created["lode"].(map[string]any)["id"].(string)

	sendJSON(t, owner, map[string]any{"type": "lode_register", "lode_id": id})
	readJSON(t, ownerR)

	other, otherR := dial(t, sock)
	defer other.Close()
	other.SetReadDeadline(time.Now().Add(2 * time.Second))
	sendJSON(t, other, map[string]any{"type": "lode_register", "lode_id": id})
	readJSON(t, otherR)

	// Broadcasts sent before the eviction may still be unread; the
	// connection must then end with a close, not a read timeout.
	owner.SetReadDeadline(time.Now().Add(2 * time.Second))
	var readErr error
	for readErr == nil {
		_, readErr = ownerR.ReadString('\n')
	}
	if ne, ok := readErr.(net.Error); ok && ne.Timeout() {
		t.Fatal("expected evicted owner's connection to be closed")
	}
}
