// Package cmd implements the hopper CLI's command tree with
// spf13/cobra, mirroring the teacher repo's package-level
// *cobra.Command variable + init-time AddCommand style.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/solpbc/hopper/internal/config"
)

var homeOverride string

var rootCmd = &cobra.Command{
	Use:   "hopper",
	Short: "Run and supervise mill/refine/ship coding-agent pipelines",
	Long: `hopper runs a local daemon that tracks lodes of work moving through
a mill -> refine -> ship pipeline, each stage driven by an external
coding agent inside a tmux pane.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&homeOverride, "home", "", "override HOPPER_HOME for this invocation")
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "hopper: %v\n", err)
		return 1
	}
	return 0
}

// resolvePaths applies --home (if set) before resolving the standard
// path table, then ensures the lode directory exists.
func resolvePaths() (config.Paths, error) {
	if homeOverride != "" {
		os.Setenv("HOPPER_HOME", homeOverride)
	}
	home, err := config.HopperHome()
	if err != nil {
		return config.Paths{}, fmt.Errorf("resolving hopper home: %w", err)
	}
	paths := config.Resolve(home)
	if err := paths.EnsureRoot(); err != nil {
		return config.Paths{}, err
	}
	return paths, nil
}

// requireSubcommand is RunE for a parent command with no action of its
// own: it prints usage and returns an error so Execute reports failure.
func requireSubcommand(c *cobra.Command, args []string) error {
	c.Help()
	return fmt.Errorf("%s: a subcommand is required", c.Name())
}
