package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/solpbc/hopper/internal/agent"
	"github.com/solpbc/hopper/internal/client"
	"github.com/solpbc/hopper/internal/store"
)

var codeCmd = &cobra.Command{
	Use:   "code <stage>",
	Short: "Run a stage-specific codex sub-prompt with stdin as the request",
	Long: `code delegates a focused sub-task to codex on the caller's behalf:
stdin is the request, and the reply is written to <stage>.out.md in the
lode's directory. The first call for a lode bootstraps a codex thread;
later calls across any stage resume that same thread.`,
	Args: cobra.ExactArgs(1),
	RunE: runCode,
}

func init() {
	rootCmd.AddCommand(codeCmd)
}

func runCode(c *cobra.Command, args []string) error {
	stage := args[0]
	lodeID := os.Getenv("HOPPER_LID")
	if lodeID == "" {
		return fmt.Errorf("code: HOPPER_LID is not set; this command must run inside an agent session")
	}
	paths, err := resolvePaths()
	if err != nil {
		return err
	}

	resp, err := client.Connect(paths.Socket, lodeID)
	if err != nil {
		return err
	}
	found, _ := resp["lode_found"].(bool)
	if !found {
		return fmt.Errorf("no such lode %q", lodeID)
	}
	raw, _ := json.Marshal(resp["lode"])
	var l store.Lode
	json.Unmarshal(raw, &l)

	prompt, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("code: reading stdin: %w", err)
	}

	lodeDir := paths.LodeDir(lodeID)
	cwd := lodeDir
	if _, statErr := os.Stat(filepath.Join(lodeDir, "worktree")); statErr == nil {
		cwd = filepath.Join(lodeDir, "worktree")
	}
	env := agent.BuildEnv(cwd, lodeID)
	outFile := filepath.Join(lodeDir, stage+".out.md")

	if l.CodexThreadID == nil {
		threadID, err := agent.BootstrapCodex(string(prompt), cwd, env)
		if err != nil {
			return err
		}
		if err := client.SendFireAndForget(paths.Socket, map[string]any{
			"type":    "lode_set_codex_thread",
			"lode_id": lodeID,
			"value":   threadID,
		}); err != nil {
			return err
		}
		return os.WriteFile(outFile, prompt, 0o644)
	}

	if err := agent.RunCodex(string(prompt), cwd, outFile, *l.CodexThreadID, env); err != nil {
		return err
	}
	fmt.Println(outFile)
	return nil
}
