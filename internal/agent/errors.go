package agent

import "errors"

// ErrAgentNotFound is returned when the external agent or codex binary
// cannot be found on PATH, the condition the runner maps to exit 127.
var ErrAgentNotFound = errors.New("agent: binary not found")
