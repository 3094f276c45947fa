package collect

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArraySpec(t *testing.T) {
	cases := []struct {
		spec string
		want []int
	}{
		{"1", []int{1}},
		{"1-4", []int{1, 2, 3, 4}},
		{"1-4,7", []int{1, 2, 3, 4, 7}},
		{"7,1-4,2", []int{1, 2, 3, 4, 7}},
	}
	for _, tc := range cases {
		got, err := ParseArraySpec(tc.spec)
		require.NoError(t, err, "spec %q", tc.spec)
		assert.Equal(t, tc.want, got, "spec %q", tc.spec)
	}

	for _, bad := range []string{"", "a", "1-b", "1-2-3", "1,,2"} {
		_, err := ParseArraySpec(bad)
		assert.Error(t, err, "spec %q must be rejected", bad)
	}
}

func TestJobDate(t *testing.T) {
	opts := Options{
		ReferenceTime: time.Date(2009, 4, 6, 1, 0, 0, 0, time.UTC),
		Step:          15 * time.Minute,
	}
	assert.Equal(t, time.Date(2009, 4, 6, 1, 0, 0, 0, time.UTC), opts.JobDate(1))
	assert.Equal(t, time.Date(2009, 4, 6, 2, 0, 0, 0, time.UTC), opts.JobDate(5))
}

// fixture prepares log and output directories and returns ready Options.
func fixture(t *testing.T) Options {
	t.Helper()
	base := t.TempDir()
	opts := Options{
		LogDirectory:    filepath.Join(base, "logs"),
		OutputDirectory: filepath.Join(base, "scm_out"),
		ReferenceTime:   time.Date(2009, 4, 6, 1, 0, 0, 0, time.UTC),
		Step:            15 * time.Minute,
	}
	require.NoError(t, os.MkdirAll(opts.LogDirectory, 0o755))
	require.NoError(t, os.MkdirAll(opts.OutputDirectory, 0o755))
	return opts
}

func writeLog(t *testing.T, opts Options, name string, ok bool) {
	t.Helper()
	content := "Exited with exit code 1.\n"
	if ok {
		content = "some preamble\nSuccessfully completed.\nResource usage summary\n"
	}
	require.NoError(t, os.WriteFile(filepath.Join(opts.LogDirectory, name), []byte(content), 0o644))
}

func TestCollectJobNotStarted(t *testing.T) {
	opts := fixture(t)
	info, err := CollectJob("exp", 1, opts)
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestCollectJobRunFailed(t *testing.T) {
	opts := fixture(t)
	writeLog(t, opts, "exp_run.1.log", false)

	info, err := CollectJob("exp", 1, opts)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, StatusNo, info.Run)
	assert.Equal(t, StatusUnknown, info.PPGenerate)
	assert.Equal(t, "1,2009-04-06 01:00:00,no", info.CSV())
}

func TestCollectJobRunCompleteNoPP(t *testing.T) {
	opts := fixture(t)
	writeLog(t, opts, "exp_run.2.log", true)

	info, err := CollectJob("exp", 2, opts)
	require.NoError(t, err)
	assert.Equal(t, StatusYes, info.Run)
	assert.Equal(t, StatusUnknown, info.PPGenerate)
	assert.Equal(t, "2,2009-04-06 01:15:00,yes", info.CSV())
}

func TestCollectJobFullyComplete(t *testing.T) {
	opts := fixture(t)
	writeLog(t, opts, "exp_run.1.log", true)
	writeLog(t, opts, "exp_pp.1.log", true)

	info, err := CollectJob("exp", 1, opts)
	require.NoError(t, err)
	assert.Equal(t, "1,2009-04-06 01:00:00,yes,yes,yes", info.CSV())
}

func TestCollectJobCleanupTimedOut(t *testing.T) {
	opts := fixture(t)
	writeLog(t, opts, "exp_run.1.log", true)
	writeLog(t, opts, "exp_pp.1.log", false)
	// The combined output exists, so generation succeeded and only the
	// cleanup step failed to finish.
	out := filepath.Join(opts.OutputDirectory, "scm_out.20090406_010000.nc")
	require.NoError(t, os.WriteFile(out, []byte("x"), 0o644))

	info, err := CollectJob("exp", 1, opts)
	require.NoError(t, err)
	assert.Equal(t, StatusYes, info.PPGenerate)
	assert.Equal(t, StatusNo, info.PPCleanup)
	assert.Equal(t, "1,2009-04-06 01:00:00,yes,yes,no", info.CSV())
}

func TestCollectJobPPFailed(t *testing.T) {
	opts := fixture(t)
	writeLog(t, opts, "exp_run.1.log", true)
	writeLog(t, opts, "exp_pp.1.log", false)

	info, err := CollectJob("exp", 1, opts)
	require.NoError(t, err)
	assert.Equal(t, StatusNo, info.PPGenerate)
	assert.Equal(t, StatusUnknown, info.PPCleanup)
	assert.Equal(t, "1,2009-04-06 01:00:00,yes,no", info.CSV())
}

func TestCollectJobPPOnly(t *testing.T) {
	opts := fixture(t)
	opts.PPOnly = true
	writeLog(t, opts, "exp_pp.3.log", true)

	info, err := CollectJob("exp", 3, opts)
	require.NoError(t, err)
	assert.Equal(t, StatusYes, info.Run, "pp-only collection assumes the model ran")
	assert.Equal(t, StatusYes, info.PPGenerate)
}

func TestCollectAndWriteCSV(t *testing.T) {
	opts := fixture(t)
	writeLog(t, opts, "exp_run.1.log", true)
	writeLog(t, opts, "exp_pp.1.log", true)
	writeLog(t, opts, "exp_run.3.log", false)
	// id 2 never started and must be absent from the report.

	infos, err := Collect("exp", []int{1, 2, 3}, opts)
	require.NoError(t, err)
	require.Len(t, infos, 2)

	var sb strings.Builder
	require.NoError(t, WriteCSV(&sb, infos))
	assert.Equal(t,
		"1,2009-04-06 01:00:00,yes,yes,yes\n3,2009-04-06 01:30:00,no\n",
		sb.String())
}
