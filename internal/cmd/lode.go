package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solpbc/hopper/internal/client"
	"github.com/solpbc/hopper/internal/store"
	"github.com/solpbc/hopper/internal/tui"
)

var lodeCmd = &cobra.Command{
	Use:   "lode",
	Short: "Manage lodes",
	RunE:  requireSubcommand,
}

var (
	lodeCreateScope string
	lodeCreateTitle string
	lodeCreateSpawn bool
)

var lodeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active lodes",
	RunE:  runLodeList,
}

var lodeCreateCmd = &cobra.Command{
	Use:   "create <project>",
	Short: "Create a new lode against a registered project",
	Args:  cobra.ExactArgs(1),
	RunE:  runLodeCreate,
}

var lodeRestartCmd = &cobra.Command{
	Use:   "restart <lode_id>",
	Short: "Reset a lode's current stage session and set its state to new",
	Args:  cobra.ExactArgs(1),
	RunE:  runLodeRestart,
}

var lodeWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Open the live lode dashboard",
	RunE:  runLodeWatch,
}

func init() {
	lodeCreateCmd.Flags().StringVar(&lodeCreateScope, "scope", "", "scope/description for the lode")
	lodeCreateCmd.Flags().StringVarP(&lodeCreateTitle, "title", "t", "", "display title")
	lodeCreateCmd.Flags().BoolVar(&lodeCreateSpawn, "spawn", true, "spawn a runner for the new lode immediately")

	lodeCmd.AddCommand(lodeListCmd, lodeCreateCmd, lodeRestartCmd, lodeWatchCmd)
	rootCmd.AddCommand(lodeCmd)
}

func runLodeList(c *cobra.Command, args []string) error {
	paths, err := resolvePaths()
	if err != nil {
		return err
	}
	resp, err := client.SendMessage(paths.Socket, map[string]any{"type": "lode_list"})
	if err != nil {
		return err
	}
	raw, err := json.Marshal(resp["lodes"])
	if err != nil {
		return err
	}
	var lodes []store.Lode
	if err := json.Unmarshal(raw, &lodes); err != nil {
		return err
	}
	if len(lodes) == 0 {
		fmt.Println("no active lodes")
		return nil
	}
	for _, l := range lodes {
		fmt.Printf("%s  %-8s %-10s %-10s %s\n", l.ID, l.Project, l.Stage, l.State, l.Title)
	}
	return nil
}

func runLodeCreate(c *cobra.Command, args []string) error {
	paths, err := resolvePaths()
	if err != nil {
		return err
	}
	resp, err := client.SendMessage(paths.Socket, map[string]any{
		"type":    "lode_create",
		"project": args[0],
		"scope":   lodeCreateScope,
		"title":   lodeCreateTitle,
		"spawn":   lodeCreateSpawn,
	})
	if err != nil {
		return err
	}
	if msg, ok := resp["message"].(string); ok && resp["type"] == "error" {
		return fmt.Errorf("%s", msg)
	}
	raw, _ := json.Marshal(resp["lode"])
	var l store.Lode
	json.Unmarshal(raw, &l)
	fmt.Println(l.ID)
	return nil
}

func runLodeRestart(c *cobra.Command, args []string) error {
	paths, err := resolvePaths()
	if err != nil {
		return err
	}
	lodeID := args[0]
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

	if err := client.SendFireAndForget(paths.Socket, map[string]any{
		"type":    "lode_reset_claude_stage",
		"lode_id": lodeID,
		"value":   string(l.Stage),
	}); err != nil {
		return err
	}
	return client.SendFireAndForget(paths.Socket, map[string]any{
		"type":    "lode_set_state",
		"lode_id": lodeID,
		"value":   store.StateNew,
	})
}

func runLodeWatch(c *cobra.Command, args []string) error {
	paths, err := resolvePaths()
	if err != nil {
		return err
	}
	return tui.Run(paths.Socket)
}
