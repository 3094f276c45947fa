// Package collect reports the per-stage completion status of an array
// job: one model run plus post-processing per array index, each leaving
// an LSF log file. The collector never touches the job data itself, it
// only reads logs and checks for the combined output file.
package collect

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// lsbComplete is the line LSF writes into a job log when the job
// finished with exit status zero.
const lsbComplete = "Successfully completed."

// Status is the tri-state outcome of one job stage. A stage whose log
// does not exist yet is Unknown, not failed.
type Status int

const (
	StatusUnknown Status = iota
	StatusYes
	StatusNo
)

func (s Status) String() string {
	switch s {
	case StatusYes:
		return "yes"
	case StatusNo:
		return "no"
	}
	return ""
}

// Options locates the job artifacts and anchors array indices in time.
// Array index i corresponds to the forcing time ReferenceTime plus
// (i-1)*Step.
type Options struct {
	LogDirectory    string
	OutputDirectory string
	ReferenceTime   time.Time
	Step            time.Duration
	// PPOnly assumes every model run completed and only inspects the
	// post-processing stage.
	PPOnly bool
}

// JobDate is the forcing start time of the array element with the given
// one-based index.
func (o Options) JobDate(id int) time.Time {
	return o.ReferenceTime.Add(time.Duration(id-1) * o.Step)
}

// JobInfo is the collected status of one array element.
type JobInfo struct {
	Name string
	ID   int
	Date time.Time

	Run        Status
	PPGenerate Status
	PPCleanup  Status
}

// CSV renders the job status as one comma-separated line, omitting
// stages whose status is not known yet.
func (j *JobInfo) CSV() string {
	fields := []string{
		strconv.Itoa(j.ID),
		j.Date.Format("2006-01-02 15:04:05"),
	}
	for _, s := range []Status{j.Run, j.PPGenerate, j.PPCleanup} {
		if v := s.String(); v != "" {
			fields = append(fields, v)
		}
	}
	return strings.Join(fields, ",")
}

// ParseArraySpec expands an array specification such as "1-4,7" into a
// sorted list of unique job ids.
func ParseArraySpec(spec string) ([]int, error) {
	seen := map[int]bool{}
	for _, sub := range strings.Split(spec, ",") {
		lo, hi, isRange := strings.Cut(sub, "-")
		first, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid array specification: %q in %q", sub, spec)
		}
		last := first
		if isRange {
			if last, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil {
				return nil, fmt.Errorf("invalid array specification: %q in %q", sub, spec)
			}
		}
		for id := first; id <= last; id++ {
			seen[id] = true
		}
	}
	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

// CollectJob inspects one array element. A nil JobInfo with a nil error
// means the element has not started at all (no run log yet).
func CollectJob(name string, id int, opts Options) (*JobInfo, error) {
	info := &JobInfo{Name: name, ID: id, Date: opts.JobDate(id)}

	if opts.PPOnly {
		info.Run = StatusYes
	} else {
		runLog := filepath.Join(opts.LogDirectory, fmt.Sprintf("%s_run.%d.log", name, id))
		complete, err := logComplete(runLog)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if !complete {
			info.Run = StatusNo
			return info, nil
		}
		info.Run = StatusYes
	}

	ppLog := filepath.Join(opts.LogDirectory, fmt.Sprintf("%s_pp.%d.log", name, id))
	complete, err := logComplete(ppLog)
	if errors.Is(err, fs.ErrNotExist) {
		return info, nil
	}
	if err != nil {
		return nil, err
	}
	if complete {
		info.PPGenerate = StatusYes
		info.PPCleanup = StatusYes
		return info, nil
	}

	// The post-processing log reports failure, but the combined output
	// may have been written and only the cleanup timed out. The output
	// file on disk is the deciding evidence.
	output := filepath.Join(opts.OutputDirectory,
		"scm_out."+info.Date.Format("20060102_150405")+".nc")
	if _, err := os.Stat(output); err == nil {
		info.PPGenerate = StatusYes
		info.PPCleanup = StatusNo
	} else {
		info.PPGenerate = StatusNo
	}
	return info, nil
}

// Collect gathers the status of every listed array element, skipping
// those that have not started.
func Collect(name string, ids []int, opts Options) ([]*JobInfo, error) {
	var infos []*JobInfo
	for _, id := range ids {
		info, err := CollectJob(name, id, opts)
		if err != nil {
			return nil, err
		}
		if info != nil {
			infos = append(infos, info)
		}
	}
	return infos, nil
}

// WriteCSV prints one CSV line per collected job.
func WriteCSV(w io.Writer, infos []*JobInfo) error {
	for _, info := range infos {
		if _, err := fmt.Fprintln(w, info.CSV()); err != nil {
			return err
		}
	}
	return nil
}

// logComplete reports whether an LSF job log records a successful
// completion.
func logComplete(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if strings.HasPrefix(scanner.Text(), lsbComplete) {
			return true, nil
		}
	}
	return false, scanner.Err()
}
