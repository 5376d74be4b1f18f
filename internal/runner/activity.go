package runner

import (
	"fmt"
	"time"

	"github.com/solpbc/hopper/internal/protocol"
	"github.com/solpbc/hopper/internal/store"
)

// watchActivity polls the agent's tmux pane every activityInterval and
// reports stuck/running transitions based on whether its visible
// contents changed since the previous poll. While stuck it re-reports
// state and status every tick with the growing elapsed time, so a
// client watching a single lode sees "No output for 5s", "10s", "15s",
// ... until new output arrives. It exits when stop is closed.
func (r *Runner) watchActivity(stop <-chan struct{}) {
	ticker := time.NewTicker(activityInterval)
	defer ticker.Stop()

	var last string
	var stuck bool
	var elapsed time.Duration
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			snapshot, err := r.Tmux.CapturePane(r.TmuxTarget)
			if err != nil {
				if r.Log != nil {
					r.Log.Line("runner: activity capture for %s failed: %v", r.LodeID, err)
				}
				continue
			}
			if snapshot == last {
				elapsed += activityInterval
				stuck = true
				r.conn.Emit(map[string]any{
					"type":    protocol.TypeLodeSetState,
					"lode_id": r.LodeID,
					"value":   store.StateStuck,
				})
				r.conn.Emit(map[string]any{
					"type":    protocol.TypeLodeSetStatus,
					"lode_id": r.LodeID,
					"value":   fmt.Sprintf("No output for %ds", int(elapsed.Seconds())),
				})
			} else {
				if stuck {
					r.conn.Emit(map[string]any{
						"type":    protocol.TypeLodeSetState,
						"lode_id": r.LodeID,
						"value":   store.StateRunning,
					})
					r.conn.Emit(map[string]any{
						"type":    protocol.TypeLodeSetStatus,
						"lode_id": r.LodeID,
						"value":   "Claude running",
					})
					stuck = false
				}
				elapsed = 0
				last = snapshot
			}
		}
	}
}
