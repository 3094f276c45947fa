// Package cdf reads and writes the netCDF-3 "classic" binary dataset
// format, the legacy container the external model consumes and produces.
// The whole file is always materialized in memory on read and the handle
// released before returning, so datasets can be loaded freely inside pool
// workers.
package cdf

import "github.com/scmtiles/scmtiles/internal/dataset"

// On-disk tags and type codes from the netCDF classic format spec.
const (
	tagDimension = 0x0A
	tagVariable  = 0x0B
	tagAttribute = 0x0C

	ncByte   = 1
	ncChar   = 2
	ncShort  = 3
	ncInt    = 4
	ncFloat  = 5
	ncDouble = 6
)

func typeSize(t uint32) int {
	switch t {
	case ncByte, ncChar:
		return 1
	case ncShort:
		return 2
	case ncInt, ncFloat:
		return 4
	case ncDouble:
		return 8
	}
	return 0
}

func kindToType(k dataset.Kind) uint32 {
	switch k {
	case dataset.Int:
		return ncInt
	case dataset.Float:
		return ncFloat
	default:
		return ncDouble
	}
}

func typeToKind(t uint32) dataset.Kind {
	switch t {
	case ncByte, ncShort, ncInt:
		return dataset.Int
	case ncFloat:
		return dataset.Float
	default:
		return dataset.Double
	}
}

// pad4 rounds n up to the next multiple of four, the alignment unit of
// the classic format.
func pad4(n int) int {
	return (n + 3) &^ 3
}
