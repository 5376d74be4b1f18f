package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solpbc/hopper/internal/client"
	"github.com/solpbc/hopper/internal/hlog"
	"github.com/solpbc/hopper/internal/projects"
	"github.com/solpbc/hopper/internal/runner"
	"github.com/solpbc/hopper/internal/store"
	"github.com/solpbc/hopper/internal/tmux"
)

var processCmd = &cobra.Command{
	Use:   "process <lode_id>",
	Short: "Run the stage runner for a lode's current stage",
	Args:  cobra.ExactArgs(1),
	RunE:  runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)
}

func runProcess(c *cobra.Command, args []string) error {
	lodeID := args[0]
	paths, err := resolvePaths()
	if err != nil {
		return err
	}

	resp, err := client.Connect(paths.Socket, lodeID)
	if err != nil {
		return fmt.Errorf("connecting to coordinator: %w", err)
	}
	found, _ := resp["lode_found"].(bool)
	if !found {
		return fmt.Errorf("no such lode %q", lodeID)
	}
	raw, err := json.Marshal(resp["lode"])
	if err != nil {
		return err
	}
	var l store.Lode
	if err := json.Unmarshal(raw, &l); err != nil {
		return fmt.Errorf("decoding lode snapshot: %w", err)
	}

	st := store.New(paths)
	if err := st.Load(); err != nil {
		return err
	}
	proj, err := projects.Find(st, l.Project)
	if err != nil {
		return err
	}

	log, err := hlog.Open(paths.ProcessLog)
	if err != nil {
		return err
	}
	defer log.Close()

	var tm tmux.Tmux
	target := ""
	if tm.IsInsideTmux() {
		target, _ = tm.CurrentPaneID()
	}

	r := runner.New(paths, lodeID, l.Stage, proj.Path, target, log)
	r.Tmux = tm
	return r.Run()
}
