// Package projects manages the registered source repositories lodes
// are created against: onboarding validation, soft removal, and
// cascading rename across every document that references a project by
// name.
package projects

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/solpbc/hopper/internal/idgen"
	"github.com/solpbc/hopper/internal/store"
)

// ValidateGitDir reports an error unless path is a git repository.
func ValidateGitDir(path string) error {
	if _, err := os.Stat(filepath.Join(path, ".git")); err != nil {
		cmd := exec.Command("git", "-C", path, "rev-parse", "--git-dir")
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("projects: %s is not a git repository", path)
		}
	}
	return nil
}

// ValidateInstallCommand dry-run-checks that make's install target
// exists when the project defines a Makefile, so a refine stage never
// discovers a broken bootstrap mid-run.
func ValidateInstallCommand(path string) error {
	makefile := filepath.Join(path, "Makefile")
	if _, err := os.Stat(makefile); err != nil {
		return nil
	}
	cmd := exec.Command("make", "-n", "install")
	cmd.Dir = path
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("projects: %s defines a Makefile but `make -n install` fails: %w", path, err)
	}
	return nil
}

// RunInstallCommand runs the project's real install step in a freshly
// created worktree (`make install`, mirroring the dry run
// ValidateInstallCommand already performed at project-add time). A
// no-op when the project has no Makefile.
func RunInstallCommand(path string) error {
	makefile := filepath.Join(path, "Makefile")
	if _, err := os.Stat(makefile); err != nil {
		return nil
	}
	cmd := exec.Command("make", "install")
	cmd.Dir = path
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("projects: make install failed in %s: %w (%s)", path, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Add validates and registers a project, returning an error if the path
// is not a git repo, its install step is broken, or a project with the
// same name already exists.
func Add(s *store.Store, path string) (*store.Project, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("projects: resolving %s: %w", path, err)
	}
	if err := ValidateGitDir(abs); err != nil {
		return nil, err
	}
	if err := ValidateInstallCommand(abs); err != nil {
		return nil, err
	}
	name := filepath.Base(abs)
	for _, p := range s.Cfg.Projects {
		if p.Name == name && !p.Disabled {
			return nil, fmt.Errorf("projects: a project named %q is already registered", name)
		}
	}
	p := store.Project{Path: abs, Name: name, LastUsedAt: idgen.NowMS()}
	s.Cfg.Projects = append(s.Cfg.Projects, p)
	if err := s.SaveConfig(); err != nil {
		return nil, err
	}
	return &s.Cfg.Projects[len(s.Cfg.Projects)-1], nil
}

// Remove soft-disables a project by name rather than deleting its
// history.
func Remove(s *store.Store, name string) error {
	for i := range s.Cfg.Projects {
		if s.Cfg.Projects[i].Name == name {
			s.Cfg.Projects[i].Disabled = true
			return s.SaveConfig()
		}
	}
	return fmt.Errorf("projects: no such project %q", name)
}

// Rename renames a project and cascades the new name onto every active
// lode, archived lode, and backlog item that referenced the old name.
func Rename(s *store.Store, oldName, newName string) error {
	found := false
	for i := range s.Cfg.Projects {
		if s.Cfg.Projects[i].Name == oldName {
			s.Cfg.Projects[i].Name = newName
			found = true
		}
	}
	if !found {
		return fmt.Errorf("projects: no such project %q", oldName)
	}
	for i := range s.Active {
		if s.Active[i].Project == oldName {
			s.Active[i].Project = newName
		}
	}
	for i := range s.Archived {
		if s.Archived[i].Project == oldName {
			s.Archived[i].Project = newName
		}
	}
	for i := range s.Backlog {
		if s.Backlog[i].Project == oldName {
			s.Backlog[i].Project = newName
		}
	}
	if err := s.SaveConfig(); err != nil {
		return err
	}
	if err := s.SaveActive(); err != nil {
		return err
	}
	return s.SaveBacklog()
}

// Find returns the registered (non-disabled) project named name.
func Find(s *store.Store, name string) (*store.Project, error) {
	for i := range s.Cfg.Projects {
		if s.Cfg.Projects[i].Name == name && !s.Cfg.Projects[i].Disabled {
			return &s.Cfg.Projects[i], nil
		}
	}
	return nil, fmt.Errorf("projects: no such project %q", name)
}

// Active returns non-disabled projects sorted by most-recently-used
// first.
func Active(s *store.Store) []store.Project {
	var out []store.Project
	for _, p := range s.Cfg.Projects {
		if !p.Disabled {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUsedAt > out[j].LastUsedAt })
	return out
}

// Touch updates a project's last_used_at to now.
func Touch(s *store.Store, name string) error {
	for i := range s.Cfg.Projects {
		if s.Cfg.Projects[i].Name == name {
			s.Cfg.Projects[i].LastUsedAt = idgen.NowMS()
			return s.SaveConfig()
		}
	}
	return fmt.Errorf("projects: no such project %q", name)
}
