package ifstime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scmtiles/scmtiles/internal/dataset"
)

var ref = time.Date(2009, 4, 6, 1, 30, 0, 0, time.UTC)

func TestToModel(t *testing.T) {
	times := []time.Time{
		ref,
		ref.Add(15 * time.Minute),
		ref.Add(30 * time.Minute),
	}
	date, second, relative, err := ToModel(times, ref)
	require.NoError(t, err)

	assert.Equal(t, []float64{20090406, 20090406, 20090406}, date,
		"date is the reference date for every time point")
	assert.Equal(t, []float64{5400, 5400, 5400}, second,
		"second is the reference time of day for every time point")
	assert.Equal(t, []float64{0, 900, 1800}, relative)
}

func TestToModelRoundsSubSeconds(t *testing.T) {
	times := []time.Time{
		ref,
		ref.Add(900*time.Second + 400*time.Millisecond), // rounds down
		ref.Add(1800*time.Second + 500*time.Millisecond), // rounds up
	}
	_, _, relative, err := ToModel(times, ref)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 900, 1801}, relative)
}

func TestToModelEmpty(t *testing.T) {
	_, _, _, err := ToModel(nil, ref)
	assert.Error(t, err)
}

func TestParseCF(t *testing.T) {
	times, err := ParseCF([]float64{0, 0.25, 0.5}, "hours since 2009-04-06 01:30:00")
	require.NoError(t, err)
	assert.Equal(t, ref, times[0])
	assert.Equal(t, ref.Add(15*time.Minute), times[1])
	assert.Equal(t, ref.Add(30*time.Minute), times[2])

	_, err = ParseCF([]float64{0}, "seconds")
	assert.Error(t, err)
	_, err = ParseCF([]float64{0}, "fortnights since 2009-04-06")
	assert.Error(t, err)
	_, err = ParseCF([]float64{0}, "seconds since someday")
	assert.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	// rebase(to_relative(t, ref)) == t rounded to the nearest second.
	times := []time.Time{
		ref,
		ref.Add(899*time.Second + 700*time.Millisecond),
		ref.Add(2 * time.Hour),
	}
	_, _, relative, err := ToModel(times, ref)
	require.NoError(t, err)

	recovered := Absolute(relative, ref)
	for i, tm := range times {
		assert.True(t, recovered[i].Equal(RoundToSecond(tm)),
			"point %d: got %v, want %v", i, recovered[i], RoundToSecond(tm))
	}
}

func TestRebase(t *testing.T) {
	v, err := dataset.NewVariable([]string{"time"}, []int{2}, []float64{0, 900})
	require.NoError(t, err)
	v.SetAttr("units", "seconds")

	require.NoError(t, Rebase(v, ref))
	assert.Equal(t, "seconds since 2009-04-06T01:30:00", v.Attrs["units"])

	// Rebasing twice is a programming error, not a silent no-op.
	assert.Error(t, Rebase(v, ref))
}

func TestApplyModelCoords(t *testing.T) {
	ds := dataset.New()
	q, err := dataset.NewVariable([]string{"time"}, []int{2}, []float64{1, 2})
	require.NoError(t, err)
	ds.Vars["q"] = q

	times := []time.Time{ref, ref.Add(15 * time.Minute)}
	require.NoError(t, ApplyModelCoords(ds, times, ref))

	assert.Equal(t, []float64{0, 900}, ds.Coords["time"].Values)
	assert.Equal(t, "seconds", ds.Coords["time"].Attrs["units"])
	assert.Equal(t, []float64{20090406, 20090406}, ds.Coords["date"].Values)
	assert.Equal(t, dataset.Int, ds.Coords["date"].Kind)
	assert.Equal(t, "Second", ds.Coords["second"].Attrs["long_name"])

	// Length mismatch between dataset and time points is rejected.
	assert.Error(t, ApplyModelCoords(ds, times[:1], ref))
}
