package daemon

import (
	"testing"

	"github.com/gofrs/flock"

	"github.com/solpbc/hopper/internal/config"
)

func TestIsRunningReflectsLockState(t *testing.T) {
	paths := config.Resolve(t.TempDir())
	if err := paths.EnsureRoot(); err != nil {
		t.Fatal(err)
	}
	if IsRunning(paths) {
		t.Fatal("expected no instance running against a fresh directory")
	}

	l := flock.New(paths.Socket + ".lock")
	ok, err := l.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock: ok=%v err=%v", ok, err)
	}
	defer l.Unlock()

	if !IsRunning(paths) {
		t.Fatal("expected IsRunning true while lock is held")
	}
}
