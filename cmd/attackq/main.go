package main

import (
	"fmt"
	"os"

	"github.com/vulntor/attackq/cmd/attackq/commands"
	"github.com/vulntor/attackq/cmd/attackq/internal/format"
)

// main runs the attackq command tree and exits with a code derived from the
// error type (see commands.ExitCode):
//   - 0: Success
//   - 1: General error
//   - 2: Invalid input or configuration
//   - 3: Workspace locked by another instance
//   - 4: Job not found
//   - 5: Timeout
//   - 6: Cancelled or interrupted
//   - 7: Storage, tool or server initialization failed
//   - 8: Some jobs did not complete
func main() {
	command := commands.NewCommand()

	if err := command.Execute(); err != nil {
		if !format.IsReported(err) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(commands.ExitCode(err))
	}
}
