// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

import (
	"sync"

	"github.com/gogpu/framegraph/alloc"
	"github.com/gogpu/framegraph/cache"
)

// Option configures a Graph.
type Option func(*Graph)

// WithAllocator pins the graph's pool to a specific texture allocator
// instead of the best registered backend. The caller keeps ownership:
// the pool will not close it.
func WithAllocator(a alloc.TextureAllocator) Option {
	return func(g *Graph) { g.fixedAlloc = a }
}

// WithViewport sets the initial viewport dimensions.
func WithViewport(w, h int) Option {
	return func(g *Graph) { g.vw, g.vh = w, h }
}

// WithCompileCacheSize sets how many compiled plans are memoized across
// enable-predicate toggles. The default keeps a small handful, enough for
// a few independent feature toggles.
func WithCompileCacheSize(n int) Option {
	return func(g *Graph) { g.cacheSize = n }
}

// Graph is the build-and-run facade: declare resources and passes, compile
// once, then execute every frame.
//
// Typical use:
//
//	g := framegraph.New()
//	g.AddResource(framegraph.DefaultResourceDescriptor("scene"))
//	g.AddPass(framegraph.PassDescriptor{
//		ID:      "draw",
//		Outputs: []framegraph.ResourceAccess{framegraph.Write("scene")},
//		Execute: drawScene,
//	})
//	if err := g.Compile(); err != nil { ... }
//	for running {
//		err := g.Execute(framegraph.FrameInputs{DeltaTime: dt})
//	}
//
// Compiled plans are memoized by live-set fingerprint, so recompiling
// after toggling an effect on and off again is a cache hit.
//
// Methods are safe for concurrent use, but Execute is meant to be driven
// from a single render goroutine.
type Graph struct {
	mu         sync.Mutex
	resources  []ResourceDescriptor
	passes     []PassDescriptor
	compiled   *CompiledGraph
	pool       *Pool
	plans      *cache.LRU[uint64, *CompiledGraph]
	fixedAlloc alloc.TextureAllocator
	cacheSize  int
	vw, vh     int

	frameIndex    uint64
	timingEnabled bool
	timings       []PassTiming
}

// New creates an empty graph.
func New(opts ...Option) *Graph {
	g := &Graph{cacheSize: cache.DefaultCapacity}
	for _, opt := range opts {
		opt(g)
	}
	g.plans = cache.New[uint64, *CompiledGraph](g.cacheSize)
	return g
}

// AddResource declares a logical resource. Declarations after a Compile
// invalidate the compiled plan and the plan cache; the graph must be
// compiled again before the next Execute.
func (g *Graph) AddResource(desc ResourceDescriptor) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resources = append(g.resources, desc)
	g.markDirty()
	return g
}

// AddPass declares a render pass. See AddResource for recompile rules.
func (g *Graph) AddPass(desc PassDescriptor) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.passes = append(g.passes, desc)
	g.markDirty()
	return g
}

// markDirty drops compiled state after a declaration change.
// Callers hold g.mu.
func (g *Graph) markDirty() {
	g.compiled = nil
	g.plans.Clear()
}

// Compile validates the declarations and produces the execution plan.
// All declaration errors surface here; after a nil return the graph is
// ready to Execute.
//
// Compile is also how a caller recovers from StaleGraphError: plans are
// memoized by live-set fingerprint, so recompiling for a predicate state
// seen before costs one cache lookup.
func (g *Graph) Compile() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	fp := fingerprintIDs(liveResourceSet(g.resources, g.passes))
	cg, ok := g.plans.Get(fp)
	if !ok {
		var err error
		cg, err = Compile(g.resources, g.passes)
		if err != nil {
			return err
		}
		g.plans.Set(cg.Fingerprint(), cg)
	}

	if g.pool == nil {
		pool, err := NewPool(g.fixedAlloc)
		if err != nil {
			return err
		}
		pool.SetViewport(g.vw, g.vh)
		g.pool = pool
	}
	g.pool.bind(cg)
	g.compiled = cg
	return nil
}

// Execute runs one frame.
//
// It returns ErrNotCompiled before the first successful Compile, a
// *StaleGraphError when the enable predicates changed the live resource
// set since the last Compile (recompile and retry), ErrMissingExternal
// when FrameInputs lacks a declared import, and a *PassError when a pass
// callback fails. After device loss (Invalidate) Execute is a silent
// no-op until Reinitialize.
func (g *Graph) Execute(in FrameInputs) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.compiled == nil {
		return ErrNotCompiled
	}
	if g.pool.Invalidated() {
		return nil
	}
	if diff := staleDiff(g.compiled.live, liveResourceSet(g.resources, g.passes)); diff != nil {
		return diff
	}

	timings, err := runFrame(g.compiled, g.pool, &in, g.frameIndex, g.timingEnabled)
	if err != nil {
		return err
	}
	if g.pool.Invalidated() {
		// Device lost mid-frame; the frame was aborted silently.
		return nil
	}
	g.frameIndex++
	if g.timingEnabled {
		g.timings = timings
	}
	return nil
}

// OnResize updates the viewport and reallocates screen-tracking
// resources. Fixed-size resources are untouched; persistent contents are
// rescaled where the backend supports it.
func (g *Graph) OnResize(w, h int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.vw, g.vh = w, h
	if g.pool == nil {
		return nil
	}
	return g.pool.OnResize(w, h)
}

// SetViewport records the viewport without reallocating. Use before the
// first Compile; after that, prefer OnResize.
func (g *Graph) SetViewport(w, h int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.vw, g.vh = w, h
	if g.pool != nil {
		g.pool.SetViewport(w, h)
	}
}

// Invalidate drops every physical allocation, modeling device loss.
// Execute becomes a no-op until Reinitialize; the compiled plan survives.
func (g *Graph) Invalidate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pool != nil {
		g.pool.Invalidate()
	}
}

// EnableTimingQueries toggles per-pass timing collection.
func (g *Graph) EnableTimingQueries(on bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.timingEnabled = on
	if !on {
		g.timings = nil
	}
}

// PassTimings returns the timings of the last completed frame, or nil
// when timing queries are disabled or no frame has completed yet.
// The slice is a copy.
func (g *Graph) PassTimings() []PassTiming {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timings == nil {
		return nil
	}
	out := make([]PassTiming, len(g.timings))
	copy(out, g.timings)
	return out
}

// FrameIndex returns the number of completed frames.
func (g *Graph) FrameIndex() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.frameIndex
}

// Compiled returns the current compiled plan, or nil before Compile.
func (g *Graph) Compiled() *CompiledGraph {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.compiled
}

// AllocationCount returns the pool's live physical texture count.
func (g *Graph) AllocationCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pool == nil {
		return 0
	}
	return g.pool.AllocationCount()
}

// Close releases the pool and every physical allocation.
func (g *Graph) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pool != nil {
		g.pool.Close()
		g.pool = nil
	}
	g.compiled = nil
}
