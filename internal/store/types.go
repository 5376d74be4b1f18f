// Package store owns durable persistence of hopper's three lists
// (active lodes, archived lodes, backlog) plus the config document, and
// exposes the pure mutators the coordinator drives.
package store

// Stage is one step of the mill -> refine -> ship -> shipped pipeline.
type Stage string

const (
	StageMill    Stage = "mill"
	StageRefine  Stage = "refine"
	StageShip    Stage = "ship"
	StageShipped Stage = "shipped"
)

// stageOrder gives each stage its position for monotonicity checks.
var stageOrder = map[Stage]int{
	StageMill:    0,
	StageRefine:  1,
	StageShip:    2,
	StageShipped: 3,
}

// Before reports whether s comes strictly before other in the pipeline.
func (s Stage) Before(other Stage) bool {
	return stageOrder[s] < stageOrder[other]
}

// Next returns the stage that follows s, or s itself if s is terminal.
func (s Stage) Next() Stage {
	switch s {
	case StageMill:
		return StageRefine
	case StageRefine:
		return StageShip
	case StageShip:
		return StageShipped
	default:
		return s
	}
}

// Distinguished state values recognized by the lifecycle state machine.
// Any other value is an opaque sub-operation label used for display only.
const (
	StateNew       = "new"
	StateRunning   = "running"
	StateStuck     = "stuck"
	StateError     = "error"
	StateReady     = "ready"
	StateCompleted = "completed"
)

// ClaudeSession is the per-stage agent conversation identity.
type ClaudeSession struct {
	SessionID string `json:"session_id"`
	Started   bool   `json:"started"`
}

// ClaudeSessions maps each stage name to its session identity. mill,
// refine, and ship each get their own entry; shipped never runs an
// agent and has none.
type ClaudeSessions struct {
	Mill   ClaudeSession `json:"mill"`
	Refine ClaudeSession `json:"refine"`
	Ship   ClaudeSession `json:"ship"`
}

// Get returns the session for the named stage, or the zero value for
// stages (shipped) that carry no agent session.
func (c ClaudeSessions) Get(stage Stage) ClaudeSession {
	switch stage {
	case StageMill:
		return c.Mill
	case StageRefine:
		return c.Refine
	case StageShip:
		return c.Ship
	default:
		return ClaudeSession{}
	}
}

// Set returns a copy of c with the named stage's session replaced.
func (c ClaudeSessions) Set(stage Stage, s ClaudeSession) ClaudeSessions {
	switch stage {
	case StageMill:
		c.Mill = s
	case StageRefine:
		c.Refine = s
	case StageShip:
		c.Ship = s
	}
	return c
}

// BacklogSnapshot preserves the originating backlog item's text on the
// lode it was promoted into.
type BacklogSnapshot struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// Lode is the unit of work: a persistent workspace progressing through
// the mill/refine/ship/shipped pipeline.
type Lode struct {
	ID            string           `json:"id"`
	Stage         Stage            `json:"stage"`
	State         string           `json:"state"`
	Status        string           `json:"status"`
	Title         string           `json:"title"`
	Project       string           `json:"project"`
	Scope         string           `json:"scope"`
	Branch        string           `json:"branch"`
	CreatedAt     int64            `json:"created_at"`
	UpdatedAt     int64            `json:"updated_at"`
	Active        bool             `json:"active"`
	TmuxPane      *string          `json:"tmux_pane"`
	PID           *int             `json:"pid"`
	CodexThreadID *string          `json:"codex_thread_id"`
	Auto          bool             `json:"auto"`
	Backlog       *BacklogSnapshot `json:"backlog,omitempty"`
	Claude        ClaudeSessions   `json:"claude"`
}

// Touch advances UpdatedAt to now; every mutation that alters an
// observable field must call this (invariant 6).
func (l *Lode) Touch(nowMS int64) {
	if nowMS > l.UpdatedAt {
		l.UpdatedAt = nowMS
		return
	}
	l.UpdatedAt++
}

// BacklogItem is a deferred lode idea, optionally promoted into a lode.
type BacklogItem struct {
	ID          string  `json:"id"`
	Project     string  `json:"project"`
	Description string  `json:"description"`
	CreatedAt   int64   `json:"created_at"`
	LodeID      *string `json:"lode_id,omitempty"`
	Queued      *string `json:"queued,omitempty"`
}

// Project is a registered source repository lodes may be created
// against.
type Project struct {
	Path       string `json:"path"`
	Name       string `json:"name"`
	Disabled   bool   `json:"disabled"`
	LastUsedAt int64  `json:"last_used_at"`
}

// Config is the flat key/value document plus the embedded projects
// list, persisted together as config.json.
type Config struct {
	Values   map[string]string `json:"values"`
	Projects []Project         `json:"projects"`
}
