// Command relplan compiles and runs relational query documents over
// dataframes.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/relplan/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
