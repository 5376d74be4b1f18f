package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/solpbc/hopper/internal/client"
	"github.com/solpbc/hopper/internal/lifecycle"
	"github.com/solpbc/hopper/internal/store"
)

var processedCmd = &cobra.Command{
	Use:   "processed",
	Short: "Record the current stage's completion from stdin",
	Long: `processed reads the agent's final output from stdin, writes it to
<stage>_out.md in the lode's directory, and marks the lode completed.
It is meant to be invoked by the agent itself, which is why it reads
HOPPER_LID from the environment rather than taking it as an argument.`,
	RunE: runProcessed,
}

func init() {
	rootCmd.AddCommand(processedCmd)
}

func runProcessed(c *cobra.Command, args []string) error {
	lodeID := os.Getenv("HOPPER_LID")
	if lodeID == "" {
		return fmt.Errorf("processed: HOPPER_LID is not set; this command must run inside an agent session")
	}
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
		return err
	}

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("processed: reading stdin: %w", err)
	}
	outFile := filepath.Join(paths.LodeDir(lodeID), string(l.Stage)+"_out.md")
	if err := os.WriteFile(outFile, data, 0o644); err != nil {
		return fmt.Errorf("processed: writing %s: %w", outFile, err)
	}

	if err := client.SendFireAndForget(paths.Socket, map[string]any{
		"type":    "lode_set_state",
		"lode_id": lodeID,
		"value":   store.StateCompleted,
	}); err != nil {
		return err
	}
	return client.SendFireAndForget(paths.Socket, map[string]any{
		"type":    "lode_set_status",
		"lode_id": lodeID,
		"value":   lifecycle.DoneStatus(l.Stage),
	})
}
