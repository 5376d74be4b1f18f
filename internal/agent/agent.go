// Package agent builds and spawns the external interactive coding-agent
// process ("claude") and the non-interactive codex helper used during
// refine. Command construction follows the argument-building style of
// the agentrun example's CLI wrappers; execution and environment
// shaping are hopper-specific per SPEC_FULL.md §6/§12.
package agent

import (
	"os"
	"os/exec"
	"path/filepath"
)

// Binary is the external agent executable name. It is intentionally a
// package variable (not a const) so tests can point it at a stub.
var Binary = "claude"

// Spec describes one agent invocation.
type Spec struct {
	Dir           string
	SessionID     string
	Resume        bool
	InitialPrompt string
	LodeID        string
}

// BuildCommand constructs the *exec.Cmd for a Spec. First runs pass
// --session-id and the initial prompt; resumed runs pass --resume.
func BuildCommand(spec Spec) *exec.Cmd {
	var args []string
	if spec.Resume {
		args = []string{"--resume", spec.SessionID}
	} else {
		args = []string{"--session-id", spec.SessionID, spec.InitialPrompt}
	}
	cmd := exec.Command(Binary, args...)
	cmd.Dir = spec.Dir
	cmd.Env = BuildEnv(spec.Dir, spec.LodeID)
	return cmd
}

// BuildEnv returns the subprocess environment: the inherited
// environment plus HOPPER_LID, with .venv/bin and node_modules/.bin
// prepended to PATH (venv first) when present in dir, and VIRTUAL_ENV
// set when a venv is found.
func BuildEnv(dir, lodeID string) []string {
	env := os.Environ()
	env = append(env, "HOPPER_LID="+lodeID)

	pathPrefix := ""
	venv := filepath.Join(dir, ".venv")
	if st, err := os.Stat(filepath.Join(venv, "bin")); err == nil && st.IsDir() {
		pathPrefix = filepath.Join(venv, "bin") + string(os.PathListSeparator)
		env = append(env, "VIRTUAL_ENV="+venv)
	}
	nodeBin := filepath.Join(dir, "node_modules", ".bin")
	if st, err := os.Stat(nodeBin); err == nil && st.IsDir() {
		pathPrefix += nodeBin + string(os.PathListSeparator)
	}
	if pathPrefix != "" {
		for i, kv := range env {
			if len(kv) > 5 && kv[:5] == "PATH=" {
				env[i] = "PATH=" + pathPrefix + kv[5:]
				return env
			}
		}
		env = append(env, "PATH="+pathPrefix)
	}
	return env
}

// LastStderrLines returns up to n trailing lines of stderr output, used
// to populate the error status on a non-zero agent exit.
func LastStderrLines(stderr []byte, n int) []string {
	lines := splitLines(string(stderr))
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
