// Package app wires configuration, decomposition, the worker pool and
// the per-stage logic into the lifecycles of the scmtiles binaries.
package app

// Version is the released version of the scmtiles toolset.
const Version = "1.0.0"
