package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solpbc/hopper/internal/client"
	"github.com/solpbc/hopper/internal/store"
)

var backlogCmd = &cobra.Command{
	Use:   "backlog",
	Short: "Manage the backlog of deferred lode ideas",
	RunE:  requireSubcommand,
}

var backlogAddProject string

var backlogAddCmd = &cobra.Command{
	Use:   "add <description...>",
	Short: "Add a backlog item",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runBacklogAdd,
}

var backlogRemoveCmd = &cobra.Command{
	Use:   "remove <item_id_prefix>",
	Short: "Remove a backlog item by id or unique id prefix",
	Args:  cobra.ExactArgs(1),
	RunE:  runBacklogRemove,
}

func init() {
	backlogAddCmd.Flags().StringVar(&backlogAddProject, "project", "", "project this item belongs to")
	backlogCmd.AddCommand(backlogAddCmd, backlogRemoveCmd)
	rootCmd.AddCommand(backlogCmd)
}

func runBacklogAdd(c *cobra.Command, args []string) error {
	paths, err := resolvePaths()
	if err != nil {
		return err
	}
	desc := ""
	for i, a := range args {
		if i > 0 {
			desc += " "
		}
		desc += a
	}
	resp, err := client.SendMessage(paths.Socket, map[string]any{
		"type":        "backlog_add",
		"project":     backlogAddProject,
		"description": desc,
	})
	if err != nil {
		return err
	}
	raw, _ := json.Marshal(resp["item"])
	var item store.BacklogItem
	json.Unmarshal(raw, &item)
	fmt.Println(item.ID)
	return nil
}

func runBacklogRemove(c *cobra.Command, args []string) error {
	paths, err := resolvePaths()
	if err != nil {
		return err
	}
	st := store.New(paths)
	if err := st.Load(); err != nil {
		return err
	}
	item, err := st.FindBacklogByPrefix(args[0])
	if err != nil {
		return err
	}
	return client.SendFireAndForget(paths.Socket, map[string]any{
		"type":    "backlog_remove",
		"item_id": item.ID,
	})
}
