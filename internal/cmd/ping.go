package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solpbc/hopper/internal/client"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the coordinator daemon is reachable",
	RunE:  runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
}

func runPing(c *cobra.Command, args []string) error {
	paths, err := resolvePaths()
	if err != nil {
		return err
	}
	if err := client.Ping(paths.Socket); err != nil {
		return err
	}
	fmt.Println("pong")
	return nil
}
