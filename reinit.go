// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

import (
	"github.com/gogpu/gpucontext"

	"github.com/gogpu/framegraph/alloc"
)

// Reinitialize recovers from device loss. With a non-nil provider the new
// pool allocates on the host application's GPU device; with nil it falls
// back to the best registered allocator (software in headless runs).
//
// Physical allocations are recreated lazily from the stored descriptors on
// the next Execute; the compiled plan is reused, no recompile happens.
// Persistent and ping-pong contents are gone, as after any device loss.
func (g *Graph) Reinitialize(provider gpucontext.DeviceProvider) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var a alloc.TextureAllocator
	if provider != nil {
		var err error
		a, err = providerAllocator(provider)
		if err != nil {
			return err
		}
	}
	if g.pool == nil {
		pool, err := NewPool(a)
		if err != nil {
			return err
		}
		if a != nil {
			// providerAllocator built it for this pool; nobody else
			// will close it.
			pool.ownsAlloc = true
		}
		pool.SetViewport(g.vw, g.vh)
		if g.compiled != nil {
			pool.bind(g.compiled)
		}
		g.pool = pool
		return nil
	}
	if a != nil {
		return g.pool.reinitialize(a, true)
	}
	return g.pool.Reinitialize(nil)
}
