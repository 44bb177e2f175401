// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

// PassTiming is the measured cost of one pass in the most recent
// completed frame.
type PassTiming struct {
	// Pass identifies the measured pass.
	Pass PassID

	// CPUMillis is the wall-clock time spent inside the pass's Execute
	// callback, including handle resolution.
	CPUMillis float64

	// GPUMillis is the duration the pass reported via RecordGPUTime,
	// or 0 if the pass reported nothing.
	GPUMillis float64

	// Skipped marks passes whose enable predicate returned false this
	// frame. Skipped passes carry zero durations.
	Skipped bool
}
