// Package config loads and validates the HCL job configuration shared by
// the model run and the post-processor.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// timestampFormat is the job timestamp embedded in every artifact name.
const timestampFormat = "20060102_150405"

// root mirrors the HCL document structure.
type root struct {
	Grid gridBlock `hcl:"grid,block"`
	Job  jobBlock  `hcl:"job,block"`
	Run  *runBlock `hcl:"run,block"`
}

type gridBlock struct {
	XSize int    `hcl:"xsize"`
	YSize int    `hcl:"ysize"`
	XName string `hcl:"xname,optional"`
	YName string `hcl:"yname,optional"`
}

type jobBlock struct {
	StartTime         string `hcl:"start_time"`
	InputDirectory    string `hcl:"input_directory"`
	TemplateDirectory string `hcl:"template_directory"`
	OutputDirectory   string `hcl:"output_directory"`
	InputFilePattern  string `hcl:"input_file_pattern"`
}

type runBlock struct {
	RowHeight         int  `hcl:"row_height,optional"`
	Workers           int  `hcl:"workers,optional"`
	ArchiveFailedRuns bool `hcl:"archive_failed_runs,optional"`
	DeleteCellFiles   bool `hcl:"delete_cell_files,optional"`
}

// Config is the validated job configuration.
type Config struct {
	XSize int
	YSize int
	XName string
	YName string

	StartTime         time.Time
	InputDirectory    string
	TemplateDirectory string
	OutputDirectory   string
	InputFilePattern  string

	RowHeight         int
	Workers           int
	ArchiveFailedRuns bool
	DeleteCellFiles   bool
}

// Load parses and validates the configuration file. Configuration errors
// are fatal by contract: they are raised here, before any work starts.
func Load(path string) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse %s: %w", path, diags)
	}

	var doc root
	if diags := gohcl.DecodeBody(file.Body, evalContext(), &doc); diags.HasErrors() {
		return nil, fmt.Errorf("decode %s: %w", path, diags)
	}
	return newConfig(doc)
}

// evalContext exposes process environment variables to the configuration
// as env.<NAME>, so paths can be parameterized per cluster.
func evalContext() *hcl.EvalContext {
	env := map[string]cty.Value{}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			env[k] = cty.StringVal(v)
		}
	}
	vars := map[string]cty.Value{}
	if len(env) > 0 {
		vars["env"] = cty.ObjectVal(env)
	}
	return &hcl.EvalContext{Variables: vars}
}

func newConfig(doc root) (*Config, error) {
	cfg := &Config{
		XSize:             doc.Grid.XSize,
		YSize:             doc.Grid.YSize,
		XName:             doc.Grid.XName,
		YName:             doc.Grid.YName,
		InputDirectory:    doc.Job.InputDirectory,
		TemplateDirectory: doc.Job.TemplateDirectory,
		OutputDirectory:   doc.Job.OutputDirectory,
		InputFilePattern:  doc.Job.InputFilePattern,
		RowHeight:         1,
		Workers:           1,
	}
	if cfg.XName == "" {
		cfg.XName = "lon"
	}
	if cfg.YName == "" {
		cfg.YName = "lat"
	}
	if doc.Run != nil {
		if doc.Run.RowHeight != 0 {
			cfg.RowHeight = doc.Run.RowHeight
		}
		if doc.Run.Workers != 0 {
			cfg.Workers = doc.Run.Workers
		}
		cfg.ArchiveFailedRuns = doc.Run.ArchiveFailedRuns
		cfg.DeleteCellFiles = doc.Run.DeleteCellFiles
	}

	start, err := time.ParseInLocation("2006-01-02T15:04:05", doc.Job.StartTime, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid start_time %q: %w", doc.Job.StartTime, err)
	}
	cfg.StartTime = start

	if cfg.XSize <= 0 || cfg.YSize <= 0 {
		return nil, fmt.Errorf("grid dimensions must be positive, got %dx%d", cfg.XSize, cfg.YSize)
	}
	if cfg.RowHeight <= 0 {
		return nil, fmt.Errorf("row_height must be positive, got %d", cfg.RowHeight)
	}
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("workers must be positive, got %d", cfg.Workers)
	}
	for name, dir := range map[string]string{
		"input_directory":    cfg.InputDirectory,
		"template_directory": cfg.TemplateDirectory,
		"output_directory":   cfg.OutputDirectory,
	} {
		if dir == "" {
			return nil, fmt.Errorf("%s must be set", name)
		}
	}
	if cfg.InputFilePattern == "" {
		return nil, fmt.Errorf("input_file_pattern must be set")
	}
	return cfg, nil
}

// Timestamp returns the job timestamp in the artifact-naming form
// YYYYMMDD_HHMMSS.
func (c *Config) Timestamp() string {
	return c.StartTime.Format(timestampFormat)
}

// InputFilePath resolves the forcing input file for this job. The pattern
// may contain a {timestamp} placeholder expanded with the job timestamp.
func (c *Config) InputFilePath() string {
	name := strings.ReplaceAll(c.InputFilePattern, "{timestamp}", c.Timestamp())
	return filepath.Join(c.InputDirectory, name)
}

// OutputFilePath is the final grid output file for this job.
func (c *Config) OutputFilePath() string {
	return filepath.Join(c.OutputDirectory, "scm_out."+c.Timestamp()+".nc")
}
