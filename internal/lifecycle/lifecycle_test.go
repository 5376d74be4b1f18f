package lifecycle

import (
	"testing"

	"github.com/solpbc/hopper/internal/store"
)

func TestMeaningfulDistinguishesStateMachineValuesFromLabels(t *testing.T) {
	for _, s := range []string{store.StateNew, store.StateRunning, store.StateStuck, store.StateError, store.StateReady, store.StateCompleted} {
		if !Meaningful(s) {
			t.Errorf("Meaningful(%q) = false, want true", s)
		}
	}
	if Meaningful("refine") {
		t.Errorf("opaque sub-operation label should not be meaningful")
	}
}

func TestShouldAutoAdvanceSameStageRetryWhenNotDone(t *testing.T) {
	l := store.Lode{Auto: true, State: store.StateReady, Stage: store.StageRefine, Status: "something else"}
	stage, ok := ShouldAutoAdvance(l)
	if !ok || stage != store.StageRefine {
		t.Fatalf("got (%s, %v), want (refine, true)", stage, ok)
	}
}

func TestShouldAutoAdvanceNextStageWhenDone(t *testing.T) {
	l := store.Lode{Auto: true, State: store.StateReady, Stage: store.StageRefine, Status: "Refine complete"}
	stage, ok := ShouldAutoAdvance(l)
	if !ok || stage != store.StageShip {
		t.Fatalf("got (%s, %v), want (ship, true)", stage, ok)
	}
}

func TestShouldAutoAdvanceFalseWhenAutoOff(t *testing.T) {
	l := store.Lode{Auto: false, State: store.StateReady, Stage: store.StageRefine, Status: "Refine complete"}
	if _, ok := ShouldAutoAdvance(l); ok {
		t.Fatal("expected no auto-advance when auto is false")
	}
}

func TestCanAttachRunner(t *testing.T) {
	shipped := store.Lode{Stage: store.StageShipped}
	if err := CanAttachRunner(shipped, store.StageShipped); err != ErrShipped {
		t.Fatalf("shipped lode: got %v, want ErrShipped", err)
	}

	owned := store.Lode{Stage: store.StageMill, Active: true}
	if err := CanAttachRunner(owned, store.StageMill); err != ErrAlreadyOwned {
		t.Fatalf("owned lode: got %v, want ErrAlreadyOwned", err)
	}

	wrongStage := store.Lode{Stage: store.StageMill}
	if err := CanAttachRunner(wrongStage, store.StageRefine); err != ErrWrongStage {
		t.Fatalf("wrong stage: got %v, want ErrWrongStage", err)
	}

	free := store.Lode{Stage: store.StageMill}
	if err := CanAttachRunner(free, store.StageMill); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}
