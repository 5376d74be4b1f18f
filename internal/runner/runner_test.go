package runner

import (
	"errors"
	"os/exec"
	"testing"

	"github.com/solpbc/hopper/internal/config"
	"github.com/solpbc/hopper/internal/store"
)

func TestExitCodeOfMapsKnownShapes(t *testing.T) {
	if got := exitCodeOf(nil); got != exitOK {
		t.Errorf("nil err = %d, want %d", got, exitOK)
	}
	if got := exitCodeOf(&exec.Error{Name: "claude", Err: errors.New("not found")}); got != exitNotFound {
		t.Errorf("exec.Error = %d, want %d", got, exitNotFound)
	}
	if got := exitCodeOf(errors.New("opaque")); got != -1 {
		t.Errorf("opaque err = %d, want -1", got)
	}
}

func TestStagesTableIsWellFormed(t *testing.T) {
	mill := Stages["mill"]
	if mill.InputArtifact != "" {
		t.Errorf("mill should have no input artifact, got %q", mill.InputArtifact)
	}
	if mill.AlwaysDismiss {
		t.Error("mill should not always-dismiss")
	}
	refine := Stages["refine"]
	if refine.InputArtifact != "mill_out.md" || !refine.AlwaysDismiss || refine.Next != store.StageShip {
		t.Errorf("refine stage config unexpected: %+v", refine)
	}
	ship := Stages["ship"]
	if ship.InputArtifact != "refine_out.md" || ship.Next != store.StageShipped {
		t.Errorf("ship stage config unexpected: %+v", ship)
	}
}

func TestSetupStageUsesProjectDirForMill(t *testing.T) {
	paths := config.Resolve(t.TempDir())
	r := &Runner{Paths: paths, LodeID: "abc12345", ProjectDir: "/some/project"}
	dir, err := r.setupStage(Stages["mill"], store.Lode{}, true)
	if err != nil {
		t.Fatal(err)
	}
	if dir != "/some/project" {
		t.Errorf("dir = %q, want project dir unchanged", dir)
	}
}

func TestSetupShipRejectsMissingWorktree(t *testing.T) {
	paths := config.Resolve(t.TempDir())
	r := &Runner{Paths: paths, LodeID: "abc12345", ProjectDir: "/some/project"}
	if _, err := r.setupShip(); err == nil {
		t.Error("setupShip with no worktree on disk should error, got nil")
	}
}
