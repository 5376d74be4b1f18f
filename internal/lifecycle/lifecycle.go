// Package lifecycle holds the pure state-machine rules for a lode's
// free-form state field: which values are meaningful to the machine
// (as opposed to opaque sub-operation labels used only for display) and
// what each transition implies for status text and auto-advance.
package lifecycle

import "github.com/solpbc/hopper/internal/store"

// Meaningful reports whether state is one of the distinguished values
// the state machine itself reacts to, as opposed to an opaque
// sub-operation label (e.g. the stage name while a sub-step runs).
func Meaningful(state string) bool {
	switch state {
	case store.StateNew, store.StateRunning, store.StateStuck,
		store.StateError, store.StateReady, store.StateCompleted:
		return true
	default:
		return false
	}
}

// DoneStatus returns the terminal "done" status message for a stage,
// used by the disconnect handler to distinguish a clean stage
// completion from a user simply quitting the agent.
func DoneStatus(stage store.Stage) string {
	switch stage {
	case store.StageMill:
		return "Mill complete"
	case store.StageRefine:
		return "Refine complete"
	case store.StageShip:
		return "Ship complete"
	default:
		return ""
	}
}

// ShouldAutoAdvance reports whether, on disconnect, the coordinator
// should spawn another runner for this lode and if so for which stage.
// It implements the disconnect-handler rule from the component spec:
// auto must be set, the lode must be in state ready on a non-terminal
// stage, and status must match (or not match) the stage's done message
// to decide same-stage-retry vs next-stage-advance.
func ShouldAutoAdvance(l store.Lode) (spawnStage store.Stage, ok bool) {
	if !l.Auto || l.State != store.StateReady {
		return "", false
	}
	if l.Stage != store.StageMill && l.Stage != store.StageRefine && l.Stage != store.StageShip {
		return "", false
	}
	if l.Status == DoneStatus(l.Stage) {
		return l.Stage.Next(), true
	}
	return l.Stage, true
}

// CanAttachRunner reports whether a new runner may attach to l for the
// given stage: the lode must not be shipped, must not already be
// active, and must be sitting in the requested stage.
func CanAttachRunner(l store.Lode, stage store.Stage) error {
	if l.Stage == store.StageShipped {
		return errShipped
	}
	if l.Active {
		return errAlreadyOwned
	}
	if l.Stage != stage {
		return errWrongStage
	}
	return nil
}
