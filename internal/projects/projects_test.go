package projects

import (
	"os/exec"
	"testing"

	"github.com/solpbc/hopper/internal/config"
	"github.com/solpbc/hopper/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	root := t.TempDir()
	paths := config.Resolve(root)
	if err := paths.EnsureRoot(); err != nil {
		t.Fatal(err)
	}
	s := store.New(paths)
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	return s
}

func initGitRepo(t *testing.T, dir string) {
	t.Helper()
	for _, args := range [][]string{
		{"init", "-q", dir},
		{"-C", dir, "config", "user.email", "t@example.com"},
		{"-C", dir, "config", "user.name", "t"},
	} {
		cmd := exec.Command("git", args...)
		if err := cmd.Run(); err != nil {
			t.Skipf("git not available for test setup: %v", err)
		}
	}
}

func TestAddRejectsNonGitDir(t *testing.T) {
	s := newTestStore(t)
	dir := t.TempDir()
	if _, err := Add(s, dir); err == nil {
		t.Fatal("expected error adding a non-git directory")
	}
}

func TestAddAndRenameCascades(t *testing.T) {
	s := newTestStore(t)
	dir := t.TempDir()
	initGitRepo(t, dir)

	p, err := Add(s, dir)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	name := p.Name

	l, err := s.CreateLode(name, "scope", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SaveActive(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddBacklog(name, "desc", nil); err != nil {
		t.Fatal(err)
	}

	if err := Rename(s, name, "renamed"); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	got, err := s.FindActive(l.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Project != "renamed" {
		t.Errorf("lode project = %q, want renamed", got.Project)
	}
	if s.Backlog[0].Project != "renamed" {
		t.Errorf("backlog project = %q, want renamed", s.Backlog[0].Project)
	}
	if _, err := Find(s, "renamed"); err != nil {
		t.Errorf("Find(renamed): %v", err)
	}
}

func TestRemoveIsSoftDisable(t *testing.T) {
	s := newTestStore(t)
	dir := t.TempDir()
	initGitRepo(t, dir)
	p, err := Add(s, dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := Remove(s, p.Name); err != nil {
		t.Fatal(err)
	}
	if _, err := Find(s, p.Name); err == nil {
		t.Fatal("expected disabled project to be unfindable via Find")
	}
	if len(s.Cfg.Projects) != 1 {
		t.Fatalf("expected project to remain in list, just disabled; got %+v", s.Cfg.Projects)
	}
}
