package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solpbc/hopper/internal/store"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit hopper's config.json",
	RunE:  requireSubcommand,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a config value",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

var configDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Delete a config value",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigDelete,
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List config key/value pairs",
	RunE:  runConfigList,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the path to config.json",
	RunE:  runConfigPath,
}

var configJSONCmd = &cobra.Command{
	Use:   "json",
	Short: "Print the whole config document as JSON",
	RunE:  runConfigJSON,
}

func init() {
	configCmd.AddCommand(configGetCmd, configSetCmd, configDeleteCmd, configListCmd, configPathCmd, configJSONCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigGet(c *cobra.Command, args []string) error {
	paths, err := resolvePaths()
	if err != nil {
		return err
	}
	st := store.New(paths)
	if err := st.Load(); err != nil {
		return err
	}
	v, ok := st.Cfg.Values[args[0]]
	if !ok {
		return fmt.Errorf("config: no such key %q", args[0])
	}
	fmt.Println(v)
	return nil
}

func runConfigSet(c *cobra.Command, args []string) error {
	paths, err := resolvePaths()
	if err != nil {
		return err
	}
	st := store.New(paths)
	if err := st.Load(); err != nil {
		return err
	}
	st.Cfg.Values[args[0]] = args[1]
	return st.SaveConfig()
}

func runConfigDelete(c *cobra.Command, args []string) error {
	paths, err := resolvePaths()
	if err != nil {
		return err
	}
	st := store.New(paths)
	if err := st.Load(); err != nil {
		return err
	}
	delete(st.Cfg.Values, args[0])
	return st.SaveConfig()
}

func runConfigList(c *cobra.Command, args []string) error {
	paths, err := resolvePaths()
	if err != nil {
		return err
	}
	st := store.New(paths)
	if err := st.Load(); err != nil {
		return err
	}
	for k, v := range st.Cfg.Values {
		fmt.Printf("%s=%s\n", k, v)
	}
	return nil
}

func runConfigPath(c *cobra.Command, args []string) error {
	paths, err := resolvePaths()
	if err != nil {
		return err
	}
	fmt.Println(paths.Config)
	return nil
}

func runConfigJSON(c *cobra.Command, args []string) error {
	paths, err := resolvePaths()
	if err != nil {
		return err
	}
	st := store.New(paths)
	if err := st.Load(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(st.Cfg, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
