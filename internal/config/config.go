// Package config resolves hopper's data directory and the well-known
// file paths beneath it.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// HopperHome returns the user data directory hopper stores its state
// under. HOPPER_HOME overrides everything else. Otherwise it follows the
// XDG base directory convention on Linux and the platform convention on
// macOS, mirroring platformdirs.user_data_dir("hopper") from the source
// this module is built from.
func HopperHome() (string, error) {
	if v := os.Getenv("HOPPER_HOME"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "hopper"), nil
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "hopper"), nil
		}
		return filepath.Join(home, ".local", "share", "hopper"), nil
	}
}

// Paths bundles the well-known file paths under a resolved hopper home.
type Paths struct {
	Root        string
	Socket      string
	Active      string
	Archived    string
	Backlog     string
	Config      string
	ActivityLog string
	ProcessLog  string
	Lodes       string
}

// Resolve builds a Paths rooted at root (as returned by HopperHome).
func Resolve(root string) Paths {
	return Paths{
		Root:        root,
		Socket:      filepath.Join(root, "server.sock"),
		Active:      filepath.Join(root, "active.jsonl"),
		Archived:    filepath.Join(root, "archived.jsonl"),
		Backlog:     filepath.Join(root, "backlog.jsonl"),
		Config:      filepath.Join(root, "config.json"),
		ActivityLog: filepath.Join(root, "activity.log"),
		ProcessLog:  filepath.Join(root, "processing.log"),
		Lodes:       filepath.Join(root, "lodes"),
	}
}

// LodeDir returns the per-lode directory for id.
func (p Paths) LodeDir(id string) string {
	return filepath.Join(p.Lodes, id)
}

// EnsureRoot creates the hopper home and its lodes subdirectory if
// missing.
func (p Paths) EnsureRoot() error {
	return os.MkdirAll(p.Lodes, 0o755)
}
