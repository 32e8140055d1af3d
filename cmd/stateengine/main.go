// Command stateengine compiles, runs and inspects bitmask workflow models.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/stateengine/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// Commands report ExitErrors themselves; flag and argument errors
		// are silenced by cobra and printed here.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
