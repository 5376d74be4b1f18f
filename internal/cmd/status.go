package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/solpbc/hopper/internal/client"
)

var statusTitle string

var statusCmd = &cobra.Command{
	Use:   "status [text...]",
	Short: "Set the current lode's status line, and optionally its title",
	Long: `status sets the status text (and with -t, the title) of the lode
named by HOPPER_LID, the same environment variable set for every agent
subprocess.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusTitle, "title", "t", "", "also set the lode's title")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(c *cobra.Command, args []string) error {
	lodeID := os.Getenv("HOPPER_LID")
	if lodeID == "" {
		return fmt.Errorf("status: HOPPER_LID is not set; this command must run inside an agent session")
	}
	paths, err := resolvePaths()
	if err != nil {
		return err
	}

	if statusTitle != "" {
		if err := client.SendFireAndForget(paths.Socket, map[string]any{
			"type":    "lode_set_title",
			"lode_id": lodeID,
			"value":   statusTitle,
		}); err != nil {
			return err
		}
	}
	if len(args) == 0 {
		return nil
	}
	return client.SendFireAndForget(paths.Socket, map[string]any{
		"type":    "lode_set_status",
		"lode_id": lodeID,
		"value":   strings.Join(args, " "),
	})
}
