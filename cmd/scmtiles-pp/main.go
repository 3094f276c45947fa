package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/scmtiles/scmtiles/internal/app"
	"github.com/scmtiles/scmtiles/internal/cli"
)

// main is the entrypoint for the post-processor binary.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := run(os.Stderr, os.Args[1:]); err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the program logic for easier testing and error
// handling.
func run(outW io.Writer, args []string) error {
	opts, shouldExit, err := cli.ParsePP(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}
	return app.PostProcess(context.Background(), outW, opts)
}
