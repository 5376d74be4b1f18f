package runner

import "github.com/solpbc/hopper/internal/store"

// StageConfig parameterizes the supervisor for one stage, matching the
// stage table in the component spec. Bootstrap/precondition differences
// between stages are enough to need dedicated setup logic (see
// setupStage, which gives mill the project dir and hands refine and
// ship to setupRefine/setupShip), so this table only carries the
// parts that are genuinely uniform across stages.
type StageConfig struct {
	Stage         store.Stage
	InputArtifact string // filename read from the lode dir, empty if none
	Next          store.Stage
	AlwaysDismiss bool
}

// Stages is the fixed mill/refine/ship configuration table.
var Stages = map[store.Stage]StageConfig{
	store.StageMill: {
		Stage:         store.StageMill,
		InputArtifact: "",
		Next:          store.StageRefine,
		AlwaysDismiss: false,
	},
	store.StageRefine: {
		Stage:         store.StageRefine,
		InputArtifact: "mill_out.md",
		Next:          store.StageShip,
		AlwaysDismiss: true,
	},
	store.StageShip: {
		Stage:         store.StageShip,
		InputArtifact: "refine_out.md",
		Next:          store.StageShipped,
		AlwaysDismiss: true,
	},
}
