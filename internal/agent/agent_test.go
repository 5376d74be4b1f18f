package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildEnvPrependsVenvAndSetsLid(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".venv", "bin"), 0o755); err != nil {
		t.Fatal(err)
	}
	env := BuildEnv(dir, "abcd2345")

	var path, lid, venv string
	for _, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			path = kv
		}
		if strings.HasPrefix(kv, "HOPPER_LID=") {
			lid = kv
		}
		if strings.HasPrefix(kv, "VIRTUAL_ENV=") {
			venv = kv
		}
	}
	if lid != "HOPPER_LID=abcd2345" {
		t.Errorf("lid = %q", lid)
	}
	if venv == "" {
		t.Errorf("expected VIRTUAL_ENV to be set when .venv/bin exists")
	}
	if !strings.Contains(path, filepath.Join(dir, ".venv", "bin")) {
		t.Errorf("PATH %q does not contain venv bin", path)
	}
}

func TestBuildEnvNoVenvNoVirtualEnv(t *testing.T) {
	dir := t.TempDir()
	env := BuildEnv(dir, "id")
	for _, kv := range env {
		if strings.HasPrefix(kv, "VIRTUAL_ENV=") {
			t.Fatalf("VIRTUAL_ENV should not be set without a .venv: %q", kv)
		}
	}
}

func TestLastStderrLinesTailsCorrectly(t *testing.T) {
	stderr := []byte("a\nb\nc\nd\ne\nf\n")
	got := LastStderrLines(stderr, 3)
	want := []string{"d", "e", "f"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestBuildCommandFirstRunVsResume(t *testing.T) {
	spec := Spec{Dir: t.TempDir(), SessionID: "sid", InitialPrompt: "go", LodeID: "id"}
	cmd := BuildCommand(spec)
	if len(cmd.Args) < 3 || cmd.Args[1] != "--session-id" || cmd.Args[2] != "sid" {
		t.Fatalf("first-run args = %v", cmd.Args)
	}

	spec.Resume = true
	cmd = BuildCommand(spec)
	if len(cmd.Args) < 3 || cmd.Args[1] != "--resume" || cmd.Args[2] != "sid" {
		t.Fatalf("resume args = %v", cmd.Args)
	}
}
