// Package cli parses the command lines of the scmtiles binaries. Each
// binary has its own flag set; they share the logging flags and the
// ExitError convention for exit codes.
package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"time"
)

// ExitError is an error carrying a specific process exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// LogOptions are the logging flags shared by every binary.
type LogOptions struct {
	Format string
	Level  string
}

// RunOptions configures the model run binary.
type RunOptions struct {
	ConfigPath string
	Log        LogOptions
}

// PPOptions configures the post-processor binary.
type PPOptions struct {
	ConfigPath string
	// Workers overrides the configured worker count when positive.
	Workers int
	// Delete removes the per-cell files after a successful combined
	// write, in addition to the configuration's own setting.
	Delete bool
	// DropListPath names the optional variable exclusion file.
	DropListPath string
	Log          LogOptions
}

// CollectOptions configures the array-job status collector.
type CollectOptions struct {
	JobName         string
	ArraySpec       string
	PPOnly          bool
	LogDirectory    string
	OutputDirectory string
	ReferenceTime   time.Time
	Step            time.Duration
}

func addLogFlags(fs *flag.FlagSet, lo *LogOptions) {
	fs.StringVar(&lo.Format, "log-format", "text", "Log output format. Options: 'text' or 'json'.")
	fs.StringVar(&lo.Level, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
}

func validateLogOptions(lo *LogOptions) error {
	lo.Format = strings.ToLower(lo.Format)
	if lo.Format != "text" && lo.Format != "json" {
		return &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}
	lo.Level = strings.ToLower(lo.Level)
	switch lo.Level {
	case "debug", "info", "warn", "error":
	default:
		return &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	return nil
}

// ParseRun processes the model run command line. The boolean reports a
// clean early exit (help requested or no configuration given).
func ParseRun(args []string, output io.Writer) (*RunOptions, bool, error) {
	fs := flag.NewFlagSet("scmtiles", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprint(output, `
scmtiles - run a single column model over a grid of cells.

Usage:
  scmtiles [options] CONFIG_PATH

Arguments:
  CONFIG_PATH
    Path to the job configuration file.

Options:
`)
		fs.PrintDefaults()
	}

	var opts RunOptions
	addLogFlags(fs, &opts.Log)
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return nil, true, nil
	}
	opts.ConfigPath = fs.Arg(0)
	if err := validateLogOptions(&opts.Log); err != nil {
		return nil, false, err
	}
	return &opts, false, nil
}

// ParsePP processes the post-processor command line.
func ParsePP(args []string, output io.Writer) (*PPOptions, bool, error) {
	fs := flag.NewFlagSet("scmtiles-pp", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprint(output, `
scmtiles-pp - combine per-cell model outputs into one gridded file.

Usage:
  scmtiles-pp [options] CONFIG_PATH

Arguments:
  CONFIG_PATH
    Path to the job configuration file (the same file the model ran with).

Options:
`)
		fs.PrintDefaults()
	}

	var opts PPOptions
	fs.IntVar(&opts.Workers, "n", 0, "Number of workers to use, overriding the configuration.")
	fs.BoolVar(&opts.Delete, "d", false, "Delete input column files after processing.")
	fs.StringVar(&opts.DropListPath, "dropvars", "dropvars.txt", "Path to the variable exclusion file.")
	addLogFlags(fs, &opts.Log)
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return nil, true, nil
	}
	opts.ConfigPath = fs.Arg(0)
	if opts.Workers < 0 {
		return nil, false, &ExitError{Code: 2, Message: "number of workers must be positive"}
	}
	if err := validateLogOptions(&opts.Log); err != nil {
		return nil, false, err
	}
	return &opts, false, nil
}

// ParseCollect processes the array-job collector command line.
func ParseCollect(args []string, output io.Writer) (*CollectOptions, bool, error) {
	fs := flag.NewFlagSet("scmtiles-collect", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprint(output, `
scmtiles-collect - report per-stage completion of an array job.

Usage:
  scmtiles-collect [options] JOB_NAME ARRAY_SPEC

Arguments:
  JOB_NAME
    Name of the array job.
  ARRAY_SPEC
    Job array specification, e.g. "1-4,7".

Options:
`)
		fs.PrintDefaults()
	}

	var opts CollectOptions
	var reference string
	fs.BoolVar(&opts.PPOnly, "p", false, "Collect post-processing data, assume the model ran.")
	fs.StringVar(&opts.LogDirectory, "logs", "logs", "Directory holding the job log files.")
	fs.StringVar(&opts.OutputDirectory, "output", ".", "Directory holding the combined output files.")
	fs.StringVar(&reference, "reference", "", "Forcing time of array index 1, as YYYY-MM-DDTHH:MM:SS.")
	fs.DurationVar(&opts.Step, "step", 15*time.Minute, "Forcing time step between consecutive array indices.")
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	if fs.NArg() < 2 {
		fs.Usage()
		return nil, true, nil
	}
	opts.JobName = fs.Arg(0)
	opts.ArraySpec = fs.Arg(1)
	if reference == "" {
		return nil, false, &ExitError{Code: 2, Message: "the -reference flag is required"}
	}
	ref, err := time.ParseInLocation("2006-01-02T15:04:05", reference, time.UTC)
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("invalid reference time %q", reference)}
	}
	opts.ReferenceTime = ref
	if opts.Step <= 0 {
		return nil, false, &ExitError{Code: 2, Message: "step must be positive"}
	}
	return &opts, false, nil
}
