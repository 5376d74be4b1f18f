package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/solpbc/hopper/internal/daemon"
	"github.com/solpbc/hopper/internal/tui"
)

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Start the coordinator daemon in the foreground",
	Long: `Start the hopper coordinator: it binds the local socket, loads the
durable store, and serves lode/backlog mutations until interrupted.`,
	RunE: runUp,
}

func init() {
	rootCmd.AddCommand(upCmd)
}

func runUp(c *cobra.Command, args []string) error {
	paths, err := resolvePaths()
	if err != nil {
		return err
	}
	if daemon.IsRunning(paths) {
		return fmt.Errorf("hopper is already running against %s", paths.Root)
	}
	d, err := daemon.New(paths, daemon.CmdSpawner{})
	if err != nil {
		return err
	}

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return d.Up()
	}

	if err := d.Start(); err != nil {
		return err
	}
	defer d.Shutdown()
	return tui.Run(paths.Socket)
}
