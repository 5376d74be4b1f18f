package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/solpbc/hopper/internal/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()
	paths := config.Resolve(root)
	if err := paths.EnsureRoot(); err != nil {
		t.Fatalf("EnsureRoot: %v", err)
	}
	s := New(paths)
	if err := s.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s
}

func TestSaveActiveIsAtomicAndRoundTrips(t *testing.T) {
	s := newTestStore(t)
	l, err := s.CreateLode("myproj", "do the thing", "")
	if err != nil {
		t.Fatalf("CreateLode: %v", err)
	}
	if err := s.SaveActive(); err != nil {
		t.Fatalf("SaveActive: %v", err)
	}

	if _, err := os.Stat(s.Paths.Active + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("expected no .tmp file after save, stat err = %v", err)
	}

	s2 := New(s.Paths)
	if err := s2.Load(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(s2.Active) != 1 || s2.Active[0].ID != l.ID {
		t.Fatalf("reloaded active list = %+v, want one lode with id %s", s2.Active, l.ID)
	}

	first, err := os.ReadFile(s.Paths.Active)
	if err != nil {
		t.Fatal(err)
	}
	if err := s2.SaveActive(); err != nil {
		t.Fatalf("second save: %v", err)
	}
	second, err := os.ReadFile(s2.Paths.Active)
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Fatalf("save->load->save->load not byte-identical:\n%q\nvs\n%q", first, second)
	}
}

func TestCreateLodeFieldsAndIDShape(t *testing.T) {
	s := newTestStore(t)
	l, err := s.CreateLode("myproj", "scope text", "a title")
	if err != nil {
		t.Fatalf("CreateLode: %v", err)
	}
	if l.Stage != StageMill {
		t.Errorf("stage = %s, want mill", l.Stage)
	}
	if l.Branch != "hopper-"+l.ID {
		t.Errorf("branch = %s, want hopper-%s", l.Branch, l.ID)
	}
	if l.Claude.Mill.SessionID == "" || l.Claude.Refine.SessionID == "" || l.Claude.Ship.SessionID == "" {
		t.Errorf("expected all three stage session ids populated: %+v", l.Claude)
	}
	if l.Claude.Mill.Started {
		t.Errorf("new lode's mill session should not be started")
	}
}

func TestStageMonotonicityAllowsOneShipToRefineRevert(t *testing.T) {
	s := newTestStore(t)
	l, _ := s.CreateLode("p", "s", "")
	if err := s.SetStage(l.ID, StageRefine); err != nil {
		t.Fatalf("mill->refine: %v", err)
	}
	if err := s.SetStage(l.ID, StageShip); err != nil {
		t.Fatalf("refine->ship: %v", err)
	}
	if err := s.SetStage(l.ID, StageRefine); err != nil {
		t.Fatalf("ship->refine revert should be allowed: %v", err)
	}
	if err := s.SetStage(l.ID, StageMill); err == nil {
		t.Fatalf("refine->mill should be rejected")
	}
}

func TestUpdatedAtMonotonic(t *testing.T) {
	s := newTestStore(t)
	l, _ := s.CreateLode("p", "s", "")
	before := l.UpdatedAt
	if err := s.SetStatus(l.ID, "doing things"); err != nil {
		t.Fatal(err)
	}
	after, err := s.FindActive(l.ID)
	if err != nil {
		t.Fatal(err)
	}
	if after.UpdatedAt < before {
		t.Fatalf("updated_at went backwards: %d -> %d", before, after.UpdatedAt)
	}
}

func TestArchiveRemovesFromActiveAndAppends(t *testing.T) {
	s := newTestStore(t)
	l, _ := s.CreateLode("p", "s", "")
	id := l.ID
	if _, err := s.Archive(id); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if _, err := s.FindActive(id); err == nil {
		t.Fatalf("expected lode to be gone from active after archive")
	}
	found, err := s.FindArchived(id)
	if err != nil {
		t.Fatalf("FindArchived: %v", err)
	}
	if found.ID != id {
		t.Fatalf("archived lode id = %s, want %s", found.ID, id)
	}
}

func TestNewLodeIDRejectsExistingDirectory(t *testing.T) {
	s := newTestStore(t)
	// Forcing a draw to collide by pre-creating every possible directory
	// is infeasible; instead draw an id, create its lode dir, and check
	// that the next draw does not return that id.
	taken, err := s.NewLodeID()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(s.Paths.LodeDir(taken), 0o755); err != nil {
		t.Fatal(err)
	}
	other, err := s.NewLodeID()
	if err != nil {
		t.Fatal(err)
	}
	if other == taken {
		t.Fatalf("NewLodeID returned an id colliding with an existing lode directory")
	}
}

func TestBacklogPrefixLookup(t *testing.T) {
	s := newTestStore(t)
	item, err := s.AddBacklog("p", "do a thing", nil)
	if err != nil {
		t.Fatal(err)
	}
	found, err := s.FindBacklogByPrefix(item.ID[:3])
	if err != nil {
		t.Fatalf("FindBacklogByPrefix: %v", err)
	}
	if found.ID != item.ID {
		t.Fatalf("found %s, want %s", found.ID, item.ID)
	}
}

func TestConfigSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	s.Cfg.Values["agent"] = "claude"
	s.Cfg.Projects = append(s.Cfg.Projects, Project{Path: "/tmp/p", Name: "p"})
	if err := s.SaveConfig(); err != nil {
		t.Fatal(err)
	}
	s2 := New(s.Paths)
	if err := s2.Load(); err != nil {
		t.Fatal(err)
	}
	if s2.Cfg.Values["agent"] != "claude" {
		t.Fatalf("config value not round-tripped: %+v", s2.Cfg)
	}
	if len(s2.Cfg.Projects) != 1 || s2.Cfg.Projects[0].Name != "p" {
		t.Fatalf("project not round-tripped: %+v", s2.Cfg.Projects)
	}
	if _, err := os.Stat(filepath.Join(s.Paths.Root, "config.json.tmp")); !os.IsNotExist(err) {
		t.Fatalf("expected no leftover config.json.tmp")
	}
}
