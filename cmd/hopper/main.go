// hopper is the CLI for running and supervising mill/refine/ship
// coding-agent pipelines.
package main

import (
	"os"

	"github.com/solpbc/hopper/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
