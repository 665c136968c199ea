// Command qexec runs SQL queries through the query engine.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/qexec/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "qexec:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
