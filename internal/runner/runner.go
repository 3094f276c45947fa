// Package runner stages, executes, verifies and archives individual SCM
// runs. Each cell moves through an explicit state machine; every failure
// is captured as a RunResult rather than propagated, so one broken cell
// never aborts its siblings.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/scmtiles/scmtiles/internal/cdf"
	"github.com/scmtiles/scmtiles/internal/config"
	"github.com/scmtiles/scmtiles/internal/ctxlog"
	"github.com/scmtiles/scmtiles/internal/dataset"
	"github.com/scmtiles/scmtiles/internal/grid"
	"github.com/scmtiles/scmtiles/internal/ifstime"
)

// Executable is the model binary expected in the staged run directory,
// supplied by the template directory.
const Executable = "master1c.exe"

// InputFileName is the model input file written during staging.
const InputFileName = "scm_in.nc"

// expectedOutputs must exist and be non-empty after the model exits for a
// run to count as successful.
var expectedOutputs = []string{"onecol.r", "progvar.nc", "diagvar.nc", "diagvar2.nc"}

// ArchiveFiles are the outputs moved to the shared output directory on
// success.
var ArchiveFiles = []string{"diagvar.nc", "diagvar2.nc", "progvar.nc"}

// TileRunner runs the SCM over every cell of one tile in sequence. The
// tile's forcing data is loaded once at construction and its time
// coordinate converted to the model's date/second/relative form.
type TileRunner struct {
	cfg     *config.Config
	tile    *grid.Tile
	forcing *dataset.Dataset
	// rowOffset maps a cell's global row index into the forcing subset,
	// which holds only the tile's rows.
	rowOffset int
}

// NewTileRunner loads the forcing input for the job, restricts it to the
// tile's rows and prepares it in model time form. A load or transform
// failure here is a configuration problem and is returned as an error
// rather than a per-cell failure.
func NewTileRunner(cfg *config.Config, tile *grid.Tile) (*TileRunner, error) {
	forcing, err := cdf.ReadFile(cfg.InputFilePath(), nil)
	if err != nil {
		return nil, fmt.Errorf("load forcing: %w", err)
	}
	lo, hi := tile.RowRange()
	forcing, err = forcing.SelectRange(cfg.YName, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("restrict forcing to tile rows: %w", err)
	}
	timeC, ok := forcing.Coords["time"]
	if !ok {
		return nil, fmt.Errorf("forcing file %s has no time coordinate", cfg.InputFilePath())
	}
	times, err := ifstime.ParseCF(timeC.Values, timeC.Attrs["units"])
	if err != nil {
		return nil, fmt.Errorf("decode forcing time coordinate: %w", err)
	}
	if err := ifstime.ApplyModelCoords(forcing, times, cfg.StartTime); err != nil {
		return nil, fmt.Errorf("convert time coordinate to model form: %w", err)
	}
	return &TileRunner{cfg: cfg, tile: tile, forcing: forcing, rowOffset: lo}, nil
}

// Run processes the tile's cells sequentially and returns the per-cell
// outcomes. It never returns an error: all failures are cell-level.
func (r *TileRunner) Run(ctx context.Context) *TileResult {
	result := &TileResult{Tile: r.tile}
	for _, cell := range r.tile.Cells() {
		result.Cells = append(result.Cells, r.RunCell(ctx, cell))
	}
	return result
}

// cellRun is the mutable state of one cell's pass through the machine.
type cellRun struct {
	state  State
	cell   grid.Cell
	dir    string
	stdout bytes.Buffer
	stderr bytes.Buffer
}

// RunCell drives a single cell through stage, execute, verify and
// archive, then always runs cleanup. Failures never escape: they come
// back inside the RunResult with a logged diagnostic naming the cell and
// the failed stage.
func (r *TileRunner) RunCell(ctx context.Context, cell grid.Cell) RunResult {
	logger := ctxlog.FromContext(ctx).With("cell", cell.ID(), "tile", r.tile.ID)
	cr := &cellRun{state: StateInit, cell: cell}
	result := RunResult{Cell: cell}

	err := r.stage(cr)
	if err == nil {
		err = r.execute(ctx, cr)
	}
	if err == nil {
		err = r.verify(cr)
	}
	if err == nil {
		result.Outputs, err = r.archive(cr)
	}
	if err != nil {
		cr.state = StateFailed
		result.Err = err
		var runErr *RunError
		if errors.As(err, &runErr) {
			logger.Error("run failed for cell", "stage", runErr.Kind.String(), "error", runErr.Err)
		} else {
			logger.Error("run failed for cell", "error", err)
		}
	} else {
		logger.Info("run completed successfully for cell", "outputs", len(result.Outputs))
	}

	r.cleanup(ctx, cr, &result)
	return result
}

// stage creates the isolated run directory, links the static template
// inputs into it and writes the model input file for the cell.
func (r *TileRunner) stage(cr *cellRun) error {
	dir := filepath.Join(r.cfg.OutputDirectory, r.cfg.Timestamp()+"."+cr.cell.ID())
	if err := os.Mkdir(dir, 0o755); err != nil {
		return failed(FailStage, fmt.Errorf("create run directory: %w", err))
	}
	cr.dir = dir

	entries, err := os.ReadDir(r.cfg.TemplateDirectory)
	if err != nil {
		return failed(FailStage, fmt.Errorf("read template directory: %w", err))
	}
	for _, entry := range entries {
		src, err := filepath.Abs(filepath.Join(r.cfg.TemplateDirectory, entry.Name()))
		if err != nil {
			return failed(FailStage, err)
		}
		if err := os.Symlink(src, filepath.Join(dir, entry.Name())); err != nil {
			return failed(FailStage, fmt.Errorf("link template file %s: %w", entry.Name(), err))
		}
	}

	cellDS, err := r.cellDataset(cr.cell)
	if err != nil {
		return failed(FailStage, err)
	}
	input := filepath.Join(dir, InputFileName)
	if err := cdf.WriteFile(input, cellDS, cdf.WithRecordDimension("time")); err != nil {
		return failed(FailStage, fmt.Errorf("write model input: %w", err))
	}
	cr.state = StateStaged
	return nil
}

// cellDataset extracts one cell's column from the tile forcing.
func (r *TileRunner) cellDataset(cell grid.Cell) (*dataset.Dataset, error) {
	row, err := r.forcing.SelectIndex(r.cfg.YName, cell.Y-r.rowOffset)
	if err != nil {
		return nil, fmt.Errorf("select row %d: %w", cell.Y, err)
	}
	cellDS, err := row.SelectIndex(r.cfg.XName, cell.X)
	if err != nil {
		return nil, fmt.Errorf("select column %d: %w", cell.X, err)
	}
	return cellDS, nil
}

// execute invokes the model with the run directory as its working
// context, capturing output streams and the exit status.
func (r *TileRunner) execute(ctx context.Context, cr *cellRun) error {
	cmd := exec.CommandContext(ctx, "./"+Executable)
	cmd.Dir = cr.dir
	cmd.Stdout = &cr.stdout
	cmd.Stderr = &cr.stderr
	err := cmd.Run()
	switch {
	case err == nil:
		cr.state = StateExecuted
		return nil
	case isExitError(err):
		return failed(FailExec, fmt.Errorf("model exited with non-zero status [%d]", cmd.ProcessState.ExitCode()))
	case errors.Is(err, fs.ErrNotExist):
		return failed(FailExec, fmt.Errorf("cannot locate executable %s in the template directory %s",
			Executable, r.cfg.TemplateDirectory))
	case errors.Is(err, fs.ErrPermission):
		return failed(FailExec, fmt.Errorf("cannot execute %s, check the file has the executable bit set", Executable))
	default:
		return failed(FailExec, fmt.Errorf("failed to launch %s: %w", Executable, err))
	}
}

func isExitError(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}

// verify confirms the model wrote every required output and that none is
// empty.
func (r *TileRunner) verify(cr *cellRun) error {
	for _, name := range expectedOutputs {
		info, err := os.Stat(filepath.Join(cr.dir, name))
		if err != nil || info.Size() == 0 {
			return failed(FailVerify, fmt.Errorf("model run did not complete correctly, %q missing or empty", name))
		}
	}
	cr.state = StateVerified
	return nil
}

// archive moves the model outputs to the shared output directory under
// names embedding the job timestamp and cell id. The model having run
// correctly and the result being durably stored are distinct success
// conditions: a failure here fails the cell.
func (r *TileRunner) archive(cr *cellRun) ([]string, error) {
	archived := make([]string, 0, len(ArchiveFiles))
	for _, name := range ArchiveFiles {
		ext := filepath.Ext(name)
		base := name[:len(name)-len(ext)]
		target := filepath.Join(r.cfg.OutputDirectory,
			fmt.Sprintf("%s.%s.%s%s", base, r.cfg.Timestamp(), cr.cell.ID(), ext))
		if err := os.Rename(filepath.Join(cr.dir, name), target); err != nil {
			if errors.Is(err, fs.ErrPermission) {
				return nil, failed(FailArchive, fmt.Errorf("cannot archive data to %q, permission denied", r.cfg.OutputDirectory))
			}
			return nil, failed(FailArchive, fmt.Errorf("cannot archive data to %q, it may not exist: %w", r.cfg.OutputDirectory, err))
		}
		archived = append(archived, target)
	}
	cr.state = StateArchived
	return archived, nil
}

// cleanup is the machine's terminal transition, reached on every path.
// Success, or failure without archive retention, deletes the run
// directory. Failure with retention relocates the whole directory plus
// the captured process output; relocation problems are swallowed so the
// job keeps processing the remaining cells.
func (r *TileRunner) cleanup(ctx context.Context, cr *cellRun, result *RunResult) {
	logger := ctxlog.FromContext(ctx).With("cell", cr.cell.ID())
	defer func() { cr.state = StateCleaned }()
	if cr.dir == "" {
		return
	}
	if cr.state != StateFailed || !r.cfg.ArchiveFailedRuns {
		if err := os.RemoveAll(cr.dir); err != nil {
			logger.Warn("could not remove run directory", "dir", cr.dir, "error", err)
		}
		return
	}

	stdoutPath := filepath.Join(cr.dir, "stdout.txt")
	stderrPath := filepath.Join(cr.dir, "stderr.txt")
	if err := os.WriteFile(stdoutPath, cr.stdout.Bytes(), 0o644); err != nil {
		logger.Warn("could not save captured stdout", "error", err)
	}
	if err := os.WriteFile(stderrPath, cr.stderr.Bytes(), 0o644); err != nil {
		logger.Warn("could not save captured stderr", "error", err)
	}
	archiveDir := filepath.Join(r.cfg.OutputDirectory,
		fmt.Sprintf("failed.%s.%s", r.cfg.Timestamp(), cr.cell.ID()))
	if err := os.Rename(cr.dir, archiveDir); err != nil {
		logger.Warn("could not archive failed run directory", "dir", cr.dir, "error", err)
		return
	}
	result.Archive = &ArchiveRecord{
		Dir:    archiveDir,
		Stdout: filepath.Join(archiveDir, "stdout.txt"),
		Stderr: filepath.Join(archiveDir, "stderr.txt"),
	}
	logger.Info("failed run directory archived", "dir", archiveDir)
}
