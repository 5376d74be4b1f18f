package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/solpbc/hopper/internal/tmux"
)

var screenshotOut string

var screenshotCmd = &cobra.Command{
	Use:   "screenshot",
	Short: "Capture the current tmux pane to a text file",
	RunE:  runScreenshot,
}

func init() {
	screenshotCmd.Flags().StringVarP(&screenshotOut, "out", "o", "", "output file (default: timestamped file in the current directory)")
	rootCmd.AddCommand(screenshotCmd)
}

func runScreenshot(c *cobra.Command, args []string) error {
	var t tmux.Tmux
	if !t.IsInsideTmux() {
		return fmt.Errorf("screenshot: not running inside tmux")
	}
	pane, ok := t.CurrentPaneID()
	if !ok {
		return fmt.Errorf("screenshot: could not determine current pane")
	}
	contents, err := t.CapturePane(pane)
	if err != nil {
		return err
	}

	out := screenshotOut
	if out == "" {
		out = filepath.Join(".", fmt.Sprintf("hopper-screenshot-%d.txt", nowForFilename()))
	}
	return os.WriteFile(out, []byte(contents), 0o644)
}

// nowForFilename returns a monotonic-ish timestamp suitable for an
// unattended output filename.
func nowForFilename() int64 {
	return time.Now().UnixNano()
}
