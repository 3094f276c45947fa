// Package ifstime converts between CF-style absolute time coordinates and
// the three-coordinate form (date, second, relative time) the SCM
// executable requires, and rebases model output time back to an absolute
// encoding after grid assembly.
package ifstime

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/scmtiles/scmtiles/internal/dataset"
)

// isoFormat is the timestamp layout used in CF "seconds since ..." units.
const isoFormat = "2006-01-02T15:04:05"

// RoundToSecond rounds to the nearest whole second, half away from zero.
// The model cannot represent fractional seconds, and rounding (not
// truncation) is required.
func RoundToSecond(t time.Time) time.Time {
	return t.Round(time.Second)
}

// ParseCF decodes a numeric time coordinate with CF units of the form
// "<unit> since <timestamp>" into absolute times.
func ParseCF(values []float64, units string) ([]time.Time, error) {
	unit, origin, ok := strings.Cut(units, " since ")
	if !ok {
		return nil, fmt.Errorf("time units %q are not of the form \"<unit> since <timestamp>\"", units)
	}
	var step time.Duration
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "seconds", "second", "s":
		step = time.Second
	case "minutes", "minute", "min":
		step = time.Minute
	case "hours", "hour", "h":
		step = time.Hour
	case "days", "day", "d":
		step = 24 * time.Hour
	default:
		return nil, fmt.Errorf("unsupported time unit %q", unit)
	}
	origin = strings.TrimSpace(origin)
	var base time.Time
	var err error
	for _, layout := range []string{isoFormat, "2006-01-02 15:04:05", "2006-01-02"} {
		base, err = time.ParseInLocation(layout, origin, time.UTC)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse time origin %q", origin)
	}
	times := make([]time.Time, len(values))
	for i, v := range values {
		times[i] = base.Add(time.Duration(v * float64(step)))
	}
	return times, nil
}

// ToModel derives the model's three time coordinates from absolute times
// and the job reference time: the reference date as a YYYYMMDD integer,
// the reference time of day in seconds since midnight, and each time
// point rounded to the nearest second and expressed as seconds elapsed
// since the first point. All three have the same length as the input.
func ToModel(times []time.Time, ref time.Time) (date, second, relative []float64, err error) {
	if len(times) == 0 {
		return nil, nil, nil, fmt.Errorf("empty time coordinate")
	}
	midnight := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, ref.Location())
	dateVal := float64(ref.Year()*10000 + int(ref.Month())*100 + ref.Day())
	secondVal := math.Round(ref.Sub(midnight).Seconds())

	date = make([]float64, len(times))
	second = make([]float64, len(times))
	relative = make([]float64, len(times))
	first := RoundToSecond(times[0])
	for i, t := range times {
		date[i] = dateVal
		second[i] = secondVal
		relative[i] = RoundToSecond(t).Sub(first).Seconds()
	}
	return date, second, relative, nil
}

// ApplyModelCoords rewrites the dataset's time coordinate in model form
// and attaches the derived date and second coordinates along it.
func ApplyModelCoords(ds *dataset.Dataset, times []time.Time, ref time.Time) error {
	date, second, relative, err := ToModel(times, ref)
	if err != nil {
		return err
	}
	n := len(times)
	if got := ds.DimLen("time"); got != n {
		return fmt.Errorf("time dimension has length %d, got %d time points", got, n)
	}

	timeC := &dataset.Variable{Dims: []string{"time"}, Shape: []int{n}, Values: relative}
	timeC.SetAttr("units", "seconds")
	timeC.SetAttr("long_name", "Time")
	ds.Coords["time"] = timeC

	dateC := &dataset.Variable{Dims: []string{"time"}, Shape: []int{n}, Values: date, Kind: dataset.Int}
	dateC.SetAttr("units", "yyyymmdd")
	dateC.SetAttr("long_name", "Date")
	ds.Coords["date"] = dateC

	secondC := &dataset.Variable{Dims: []string{"time"}, Shape: []int{n}, Values: second, Kind: dataset.Int}
	secondC.SetAttr("units", "seconds")
	secondC.SetAttr("long_name", "Second")
	ds.Coords["second"] = secondC
	return nil
}

// Rebase converts a relative "seconds since run start" coordinate to an
// absolute CF encoding by attaching units anchored at the reference time.
// Rebasing a coordinate that is already absolute is a programming error
// and is rejected.
func Rebase(timeVar *dataset.Variable, ref time.Time) error {
	if units, ok := timeVar.Attrs["units"]; ok && strings.Contains(units, " since ") {
		return fmt.Errorf("time coordinate already has absolute units %q", units)
	}
	timeVar.SetAttr("units", "seconds since "+ref.UTC().Format(isoFormat))
	return nil
}

// Absolute materializes a rebased coordinate as wall-clock times. It is
// the read-back complement of Rebase.
func Absolute(relative []float64, ref time.Time) []time.Time {
	times := make([]time.Time, len(relative))
	for i, v := range relative {
		times[i] = ref.Add(time.Duration(v * float64(time.Second)))
	}
	return times
}
