package tui

import (
	"testing"

	"github.com/solpbc/hopper/internal/store"
)

func TestStyleForKnownStates(t *testing.T) {
	if styleFor(store.StateStuck).GetForeground() != styleStuck.GetForeground() {
		t.Error("stuck should use the stuck style")
	}
	if styleFor(store.StateError).GetForeground() != styleError.GetForeground() {
		t.Error("error should use the error style")
	}
	if styleFor(store.StateReady).GetForeground() != styleReady.GetForeground() {
		t.Error("ready should use the ready style")
	}
	if styleFor("running").GetForeground() == styleStuck.GetForeground() {
		t.Error("running should not reuse the stuck color")
	}
}
