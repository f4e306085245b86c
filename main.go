package main

import (
	"fmt"
	"os"

	"github.com/tarrence/cray-cli/cmd"
	"github.com/tarrence/cray-cli/internal/clierr"
)

func main() {
	root, err := cmd.NewRootCmd()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(clierr.ExitCode(err))
	}
	if err := cmd.Run(root, os.Args[1:]); err != nil {
		// Cobra is configured to not print errors. Ensure users still get a message.
		if msg := err.Error(); msg != "" {
			_, _ = fmt.Fprintln(os.Stderr, "Error: "+msg)
		}
		os.Exit(clierr.ExitCode(err))
	}
}
