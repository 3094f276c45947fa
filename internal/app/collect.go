package app

import (
	"io"

	"github.com/scmtiles/scmtiles/internal/cli"
	"github.com/scmtiles/scmtiles/internal/collect"
)

// CollectStatus is the lifecycle of the array-job collector binary: it
// expands the array specification, inspects each job's logs and prints
// one CSV line per started job.
func CollectStatus(outW io.Writer, opts *cli.CollectOptions) error {
	ids, err := collect.ParseArraySpec(opts.ArraySpec)
	if err != nil {
		return &cli.ExitError{Code: 1, Message: "error: " + err.Error()}
	}
	infos, err := collect.Collect(opts.JobName, ids, collect.Options{
		LogDirectory:    opts.LogDirectory,
		OutputDirectory: opts.OutputDirectory,
		ReferenceTime:   opts.ReferenceTime,
		Step:            opts.Step,
		PPOnly:          opts.PPOnly,
	})
	if err != nil {
		return &cli.ExitError{Code: 2, Message: "error: " + err.Error()}
	}
	return collect.WriteCSV(outW, infos)
}
