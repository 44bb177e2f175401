// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

import (
	"fmt"
	"time"
)

// runFrame dispatches one frame over the compiled order.
//
// Passes whose predicate returns false are skipped without touching the
// pool. A pass error aborts the frame immediately: no later pass runs, no
// ping-pong generation flips, and the caller must not present the frame's
// output. Device loss mid-frame (the pool invalidated by a pass or
// concurrently) also aborts, but silently: losing the device is an event
// to recover from, not an error to report.
//
// On success, the read generation of every feedback resource whose pass
// actually executed flips exactly once, so a disabled feedback pass keeps
// its history frozen.
func runFrame(cg *CompiledGraph, pool *Pool, in *FrameInputs, frameIndex uint64, collectTiming bool) ([]PassTiming, error) {
	for _, id := range cg.live {
		desc, _ := cg.descriptor(id)
		if desc.External {
			if _, ok := in.External[id]; !ok {
				return nil, fmt.Errorf("%w: %q", ErrMissingExternal, id)
			}
		}
	}

	var timings []PassTiming
	if collectTiming {
		timings = make([]PassTiming, 0, len(cg.passes))
	}

	// flip collects the feedback resources written so far this frame. It
	// doubles as the FrameContext's view of which double buffers hold
	// fresh data: dependency edges put every downstream reader after the
	// feedback pass, so by the time a reader consults the map its entry
	// is already present when the pass ran.
	flip := make(map[ResourceID]bool)
	for i := range cg.passes {
		p := &cg.passes[i]
		if p.enabled != nil && !p.enabled() {
			if collectTiming {
				timings = append(timings, PassTiming{Pass: p.id, Skipped: true})
			}
			continue
		}

		ctx := &FrameContext{
			pass:            p,
			graph:           cg,
			pool:            pool,
			inputs:          in,
			frameIndex:      frameIndex,
			feedbackWritten: flip,
		}
		start := time.Now()
		var err error
		if p.execute != nil {
			err = p.execute(ctx)
		}
		elapsed := time.Since(start)
		ctx.release()

		if pool.Invalidated() {
			Logger().Warn("frame aborted", "frame", frameIndex, "pass", p.id, "reason", "device lost")
			return nil, nil
		}
		if err != nil {
			Logger().Warn("frame aborted", "frame", frameIndex, "pass", p.id, "error", err)
			return nil, &PassError{Pass: p.id, Err: err}
		}

		if collectTiming {
			timings = append(timings, PassTiming{
				Pass:      p.id,
				CPUMillis: float64(elapsed) / float64(time.Millisecond),
				GPUMillis: ctx.gpuMillis,
			})
		}
		for _, id := range p.feedback {
			flip[id] = true
		}
	}

	for id := range flip {
		pool.flipGeneration(id)
	}
	return timings, nil
}

// staleDiff compares a compiled plan's live set against the current one
// and builds the StaleGraphError, or returns nil when they match.
func staleDiff(compiled, current []ResourceID) *StaleGraphError {
	old := make(map[ResourceID]bool, len(compiled))
	for _, id := range compiled {
		old[id] = true
	}
	now := make(map[ResourceID]bool, len(current))
	for _, id := range current {
		now[id] = true
	}

	var diff StaleGraphError
	for _, id := range current {
		if !old[id] {
			diff.Added = append(diff.Added, id)
		}
	}
	for _, id := range compiled {
		if !now[id] {
			diff.Removed = append(diff.Removed, id)
		}
	}
	if len(diff.Added) == 0 && len(diff.Removed) == 0 {
		return nil
	}
	return &diff
}
