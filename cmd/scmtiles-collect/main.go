package main

import (
	"fmt"
	"io"
	"os"

	"github.com/scmtiles/scmtiles/internal/app"
	"github.com/scmtiles/scmtiles/internal/cli"
)

// main is the entrypoint for the array-job status collector.
func main() {
	if err := run(os.Stdout, os.Args[1:]); err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			fmt.Fprintln(os.Stderr, "  use -h or --help for help")
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the program logic for easier testing and error
// handling.
func run(outW io.Writer, args []string) error {
	opts, shouldExit, err := cli.ParseCollect(args, os.Stderr)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}
	return app.CollectStatus(outW, opts)
}
