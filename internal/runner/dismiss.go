package runner

import (
	"os"
	"path/filepath"
	"time"

	"github.com/solpbc/hopper/internal/store"
)

const (
	dismissPollInterval = 5 * time.Second
	dismissStableReads  = 1
)

// watchDismiss is the auto-dismiss watcher for stages configured
// AlwaysDismiss (refine, ship): once the stage's output artifact exists
// and two successive pane captures, dismissPollInterval apart, are
// identical, it sends two Ctrl-D key events to end the agent's
// interactive session cleanly, the same way a human operator would quit
// it by hand.
func (r *Runner) watchDismiss(stop <-chan struct{}, stage store.Stage) {
	cfg := Stages[stage]
	if cfg.InputArtifact == "" && !cfg.AlwaysDismiss {
		return
	}
	ticker := time.NewTicker(dismissPollInterval)
	defer ticker.Stop()

	var last string
	stable := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !r.stageOutputExists(stage) {
				continue
			}
			snapshot, err := r.Tmux.CapturePane(r.TmuxTarget)
			if err != nil {
				if r.Log != nil {
					r.Log.Line("runner: dismiss capture for %s failed: %v", r.LodeID, err)
				}
				continue
			}
			if snapshot == last && snapshot != "" {
				stable++
			} else {
				stable = 0
				last = snapshot
			}
			if stable >= dismissStableReads {
				r.Tmux.SendControlKey(r.TmuxTarget, "C-d")
				r.Tmux.SendControlKey(r.TmuxTarget, "C-d")
				return
			}
		}
	}
}

func (r *Runner) stageOutputExists(stage store.Stage) bool {
	path := filepath.Join(r.Paths.LodeDir(r.LodeID), string(stage)+"_out.md")
	_, err := os.Stat(path)
	return err == nil
}
