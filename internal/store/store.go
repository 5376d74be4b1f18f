package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/solpbc/hopper/internal/config"
	"github.com/solpbc/hopper/internal/idgen"
)

// ErrNoSuchLode is returned when a lookup by id finds nothing active.
var ErrNoSuchLode = errors.New("store: no such lode")

// Store holds the in-memory lists the coordinator mutates and the paths
// they persist to. It does not itself lock; the coordinator serializes
// access with its own mutex, matching the "reentrant mutex around the
// whole handler" design in the component spec.
type Store struct {
	Paths config.Paths

	Active   []Lode
	Archived []Lode
	Backlog  []BacklogItem
	Cfg      Config
}

// New builds a Store bound to paths, with empty in-memory lists. Call
// Load to populate from disk.
func New(paths config.Paths) *Store {
	return &Store{Paths: paths, Cfg: Config{Values: map[string]string{}}}
}

// Load reads active.jsonl, archived.jsonl, backlog.jsonl, and
// config.json into memory. Missing files are treated as empty.
func (s *Store) Load() error {
	var err error
	if s.Active, err = loadJSONL[Lode](s.Paths.Active); err != nil {
		return err
	}
	if s.Archived, err = loadJSONL[Lode](s.Paths.Archived); err != nil {
		return err
	}
	if s.Backlog, err = loadJSONL[BacklogItem](s.Paths.Backlog); err != nil {
		return err
	}
	cfg, err := loadConfig(s.Paths.Config)
	if err != nil {
		return err
	}
	s.Cfg = cfg
	return nil
}

// ReconcileStartup clears stale liveness on every active lode (invariant:
// stale ownership cannot survive a restart) and persists the result.
func (s *Store) ReconcileStartup() error {
	changed := false
	for i := range s.Active {
		l := &s.Active[i]
		if l.Active || l.TmuxPane != nil || l.PID != nil {
			l.Active = false
			l.TmuxPane = nil
			l.PID = nil
			changed = true
		}
	}
	if changed {
		return s.SaveActive()
	}
	return nil
}

// SaveActive atomically rewrites active.jsonl.
func (s *Store) SaveActive() error {
	return saveJSONL(s.Paths.Active, s.Active)
}

// SaveBacklog atomically rewrites backlog.jsonl.
func (s *Store) SaveBacklog() error {
	return saveJSONL(s.Paths.Backlog, s.Backlog)
}

// SaveConfig atomically rewrites config.json.
func (s *Store) SaveConfig() error {
	return saveConfig(s.Paths.Config, s.Cfg)
}

// AppendArchived appends one lode to archived.jsonl. The coordinator is
// the only writer, so a plain open-append-close suffices (no atomic
// rename needed for an append-only file).
func (s *Store) AppendArchived(l Lode) error {
	f, err := os.OpenFile(s.Paths.Archived, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("store: opening archive: %w", err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	if err := enc.Encode(l); err != nil {
		return fmt.Errorf("store: encoding archived lode: %w", err)
	}
	return nil
}

// FindActive returns a pointer into s.Active for id, or ErrNoSuchLode.
func (s *Store) FindActive(id string) (*Lode, error) {
	for i := range s.Active {
		if s.Active[i].ID == id {
			return &s.Active[i], nil
		}
	}
	return nil, ErrNoSuchLode
}

// FindArchived returns the last pre-archival snapshot for id, or
// ErrNoSuchLode.
func (s *Store) FindArchived(id string) (*Lode, error) {
	for i := len(s.Archived) - 1; i >= 0; i-- {
		if s.Archived[i].ID == id {
			return &s.Archived[i], nil
		}
	}
	return nil, ErrNoSuchLode
}

// NewLodeID draws a fresh id, rejecting collisions against the active
// list, the archived list, and any existing lode directory.
func (s *Store) NewLodeID() (string, error) {
	return idgen.Generate(func(id string) bool {
		for _, l := range s.Active {
			if l.ID == id {
				return true
			}
		}
		for _, l := range s.Archived {
			if l.ID == id {
				return true
			}
		}
		if _, err := os.Stat(s.Paths.LodeDir(id)); err == nil {
			return true
		}
		return false
	})
}

// NewBacklogID draws a fresh id against the current backlog only,
// matching add_backlog_item's simpler collision universe.
func (s *Store) NewBacklogID() (string, error) {
	return idgen.Generate(func(id string) bool {
		for _, it := range s.Backlog {
			if it.ID == id {
				return true
			}
		}
		return false
	})
}

func loadJSONL[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: opening %s: %w", path, err)
	}
	defer f.Close()

	var out []T
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(line, &v); err != nil {
			continue
		}
		out = append(out, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("store: reading %s: %w", path, err)
	}
	return out, nil
}

func saveJSONL[T any](path string, items []T) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: creating %s: %w", dir, err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("store: creating %s: %w", tmp, err)
	}
	enc := json.NewEncoder(f)
	for _, it := range items {
		if err := enc.Encode(it); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("store: encoding %s: %w", path, err)
		}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("store: syncing %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("store: closing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("store: renaming %s: %w", tmp, err)
	}
	return nil
}

func loadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{Values: map[string]string{}}, nil
		}
		return Config{}, fmt.Errorf("store: reading %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{Values: map[string]string{}}, nil
	}
	if cfg.Values == nil {
		cfg.Values = map[string]string{}
	}
	return cfg, nil
}

func saveConfig(path string, cfg Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: creating %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshaling config: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("store: writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("store: renaming %s: %w", tmp, err)
	}
	return nil
}
