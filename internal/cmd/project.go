package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solpbc/hopper/internal/client"
	"github.com/solpbc/hopper/internal/projects"
	"github.com/solpbc/hopper/internal/store"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage registered source repositories",
	RunE:  requireSubcommand,
}

var projectAddCmd = &cobra.Command{
	Use:   "add <path>",
	Short: "Register a git repository as a project",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectAdd,
}

var projectRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Disable a registered project",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectRemove,
}

var projectRenameCmd = &cobra.Command{
	Use:   "rename <old_name> <new_name>",
	Short: "Rename a project, cascading across lodes and backlog",
	Args:  cobra.ExactArgs(2),
	RunE:  runProjectRename,
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered projects",
	RunE:  runProjectList,
}

func init() {
	projectCmd.AddCommand(projectAddCmd, projectRemoveCmd, projectRenameCmd, projectListCmd)
	rootCmd.AddCommand(projectCmd)
}

func withStore(fn func(*store.Store) error) error {
	paths, err := resolvePaths()
	if err != nil {
		return err
	}
	st := store.New(paths)
	if err := st.Load(); err != nil {
		return err
	}
	if err := fn(st); err != nil {
		return err
	}
	return client.SendFireAndForget(paths.Socket, map[string]any{"type": "projects_reload"})
}

func runProjectAdd(c *cobra.Command, args []string) error {
	return withStore(func(st *store.Store) error {
		p, err := projects.Add(st, args[0])
		if err != nil {
			return err
		}
		fmt.Println(p.Name)
		return nil
	})
}

func runProjectRemove(c *cobra.Command, args []string) error {
	return withStore(func(st *store.Store) error {
		return projects.Remove(st, args[0])
	})
}

func runProjectRename(c *cobra.Command, args []string) error {
	return withStore(func(st *store.Store) error {
		return projects.Rename(st, args[0], args[1])
	})
}

func runProjectList(c *cobra.Command, args []string) error {
	paths, err := resolvePaths()
	if err != nil {
		return err
	}
	st := store.New(paths)
	if err := st.Load(); err != nil {
		return err
	}
	for _, p := range projects.Active(st) {
		fmt.Printf("%-20s %s\n", p.Name, p.Path)
	}
	return nil
}
