// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

import (
	"fmt"
	"image/color"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/alloc"
)

// poolEntry is one live physical allocation. Ping-pong entries hold two
// textures; all others use only tex[0].
type poolEntry struct {
	tex      [2]alloc.Texture
	width    int
	height   int
	pingPong bool

	// lastOwner is the alias-group member that wrote the slot last, used
	// to decide when ClearOnAcquire must clear between members.
	lastOwner ResourceID
}

func (e *poolEntry) destroy() {
	for i, t := range e.tex {
		if t != nil {
			t.Destroy()
			e.tex[i] = nil
		}
	}
}

func (e *poolEntry) count() int {
	n := 0
	for _, t := range e.tex {
		if t != nil {
			n++
		}
	}
	return n
}

// Pool owns the physical textures behind a compiled graph's allocation
// plan. Allocation is lazy: a slot gets its texture on the first frame
// that touches it, never at compile time.
//
// The pool survives recompiles. Persistent and ping-pong allocations are
// keyed by resource ID and carry their contents across plan changes;
// transient slots are plan-scoped and released on rebind.
//
// All methods are safe for concurrent use, though frames themselves are
// dispatched from a single goroutine.
type Pool struct {
	mu        sync.Mutex
	allocator alloc.TextureAllocator
	ownsAlloc bool
	plan      *CompiledGraph
	vw, vh    int
	invalid   bool

	transient map[int]*poolEntry        // slot index -> entry
	dedicated map[ResourceID]*poolEntry // persistent and ping-pong
	gen       map[ResourceID]int        // ping-pong read generation
}

// NewPool creates a pool over the given allocator. A nil allocator selects
// the best registered backend and initializes it; the pool then owns it
// and closes it on Close.
func NewPool(a alloc.TextureAllocator) (*Pool, error) {
	owns := false
	if a == nil {
		var err error
		a, err = alloc.InitDefault()
		if err != nil {
			return nil, err
		}
		owns = true
		Logger().Info("allocator selected", "name", a.Name())
	}
	return &Pool{
		allocator: a,
		ownsAlloc: owns,
		transient: make(map[int]*poolEntry),
		dedicated: make(map[ResourceID]*poolEntry),
		gen:       make(map[ResourceID]int),
	}, nil
}

// bind points the pool at a new compiled plan. Transient slots are
// released; dedicated allocations survive if their resource is still
// declared with an equal size policy, otherwise they are released too.
func (p *Pool) bind(cg *CompiledGraph) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for slot, e := range p.transient {
		e.destroy()
		delete(p.transient, slot)
	}
	for id, e := range p.dedicated {
		desc, ok := cg.descriptor(id)
		if ok && (desc.Persistent || cg.PingPong(id)) {
			old, declared := p.planDescriptor(id)
			if declared && desc.Size.equal(old.Size) && desc.physicalFormat() == old.physicalFormat() {
				continue
			}
		}
		e.destroy()
		delete(p.dedicated, id)
		delete(p.gen, id)
	}
	p.plan = cg
}

// planDescriptor looks up a resource in the previously bound plan.
func (p *Pool) planDescriptor(id ResourceID) (ResourceDescriptor, bool) {
	if p.plan == nil {
		return ResourceDescriptor{}, false
	}
	return p.plan.descriptor(id)
}

// SetViewport records the viewport the size policies resolve against.
// It does not reallocate; use OnResize for that.
func (p *Pool) SetViewport(w, h int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.vw, p.vh = w, h
}

// Viewport returns the current viewport dimensions.
func (p *Pool) Viewport() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.vw, p.vh
}

// textureFor resolves the physical texture for a resource access,
// allocating lazily on first touch. Ping-pong resources resolve to the
// read or write half of their double buffer depending on the access.
func (p *Pool) textureFor(id ResourceID, write bool) (alloc.Texture, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.invalid {
		return nil, ErrInvalidated
	}
	if p.plan == nil {
		return nil, ErrNotCompiled
	}
	a, ok := p.plan.Allocation(id)
	if !ok {
		return nil, fmt.Errorf("framegraph: resource %q has no allocation", id)
	}
	desc, _ := p.plan.descriptor(id)

	if a.AliasGroup < 0 {
		e, err := p.dedicatedEntry(id, &desc)
		if err != nil {
			return nil, err
		}
		if !e.pingPong {
			return e.tex[0], nil
		}
		g := p.gen[id]
		if write {
			g ^= 1
		}
		return e.tex[g], nil
	}

	e, err := p.transientEntry(a.Slot, &desc)
	if err != nil {
		return nil, err
	}
	if write && e.lastOwner != id {
		if desc.ClearOnAcquire {
			clearTexture(e.tex[0], desc.ClearColor)
		}
		e.lastOwner = id
	}
	return e.tex[0], nil
}

func (p *Pool) dedicatedEntry(id ResourceID, desc *ResourceDescriptor) (*poolEntry, error) {
	if e, ok := p.dedicated[id]; ok {
		return e, nil
	}
	e, err := p.allocate(desc, p.plan.PingPong(id))
	if err != nil {
		return nil, err
	}
	p.dedicated[id] = e
	return e, nil
}

func (p *Pool) transientEntry(slot int, desc *ResourceDescriptor) (*poolEntry, error) {
	if e, ok := p.transient[slot]; ok {
		return e, nil
	}
	e, err := p.allocate(desc, false)
	if err != nil {
		return nil, err
	}
	p.transient[slot] = e
	return e, nil
}

// allocate creates the physical texture(s) for a descriptor, walking the
// size policy's fallback chain on allocation failure.
func (p *Pool) allocate(desc *ResourceDescriptor, pingPong bool) (*poolEntry, error) {
	policy := &desc.Size
	var lastErr error
	for policy != nil {
		w, h := policy.Resolve(p.vw, p.vh)
		e, err := p.allocateAt(desc, w, h, pingPong)
		if err == nil {
			if policy != &desc.Size {
				Logger().Warn("fallback size policy taken",
					"resource", desc.ID, "width", w, "height", h)
			}
			return e, nil
		}
		lastErr = &AllocationError{Resource: desc.ID, Width: w, Height: h, Err: err}
		policy = policy.Fallback
	}
	return nil, lastErr
}

func (p *Pool) allocateAt(desc *ResourceDescriptor, w, h int, pingPong bool) (*poolEntry, error) {
	td := alloc.TextureDescriptor{
		Label:       string(desc.ID),
		Width:       w,
		Height:      h,
		Layers:      textureLayers(desc),
		Format:      desc.physicalFormat(),
		SampleCount: desc.sampleCount(),
		Usage:       textureUsage(desc),
	}
	if td.Format == gputypes.TextureFormatUndefined {
		td.Format = gputypes.TextureFormatRGBA8Unorm
	}

	e := &poolEntry{width: w, height: h, pingPong: pingPong}
	n := 1
	if pingPong {
		n = 2
	}
	for i := 0; i < n; i++ {
		if pingPong {
			td.Label = fmt.Sprintf("%s#%d", desc.ID, i)
		}
		t, err := p.allocator.CreateTexture(&td)
		if err != nil {
			e.destroy()
			return nil, err
		}
		e.tex[i] = t
	}
	Logger().Debug("texture allocated",
		"resource", desc.ID, "width", w, "height", h,
		"format", td.Format, "pingpong", pingPong)
	return e, nil
}

// flipGeneration advances the read generation of a ping-pong resource.
// The executor calls this at the end of a completed frame, only for
// resources whose feedback pass actually ran.
func (p *Pool) flipGeneration(id ResourceID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen[id] ^= 1
}

// generation returns the current read generation of a ping-pong resource.
func (p *Pool) generation(id ResourceID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen[id]
}

// OnResize updates the viewport and reallocates every live allocation
// whose size policy depends on it. Fixed-size allocations are untouched.
// Persistent contents are preserved by rescaling into the new allocation
// where the backend supports it.
func (p *Pool) OnResize(w, h int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if w == p.vw && h == p.vh {
		return nil
	}
	p.vw, p.vh = w, h
	if p.invalid || p.plan == nil {
		return nil
	}

	// Transient contents are only valid within a frame, so these are
	// simply dropped and reallocated lazily.
	for slot, e := range p.transient {
		if p.plan.slots[slot].desc.Size.Mode == SizeFixed {
			continue
		}
		e.destroy()
		delete(p.transient, slot)
	}

	for id, e := range p.dedicated {
		desc, ok := p.plan.descriptor(id)
		if !ok || desc.Size.Mode == SizeFixed {
			continue
		}
		fresh, err := p.allocate(&desc, e.pingPong)
		if err != nil {
			return err
		}
		for i, t := range e.tex {
			if t == nil || fresh.tex[i] == nil {
				continue
			}
			if src, ok := t.(*alloc.SoftwareTexture); ok {
				if dst, ok := fresh.tex[i].(*alloc.SoftwareTexture); ok {
					dst.CopyScaled(src)
				}
			}
		}
		e.destroy()
		fresh.lastOwner = e.lastOwner
		p.dedicated[id] = fresh
	}

	Logger().Debug("pool resized", "width", w, "height", h)
	return nil
}

// Invalidate releases every physical allocation and marks the pool
// unusable until Reinitialize. It models device loss: texture resolution
// fails with ErrInvalidated, and persistent contents are gone.
func (p *Pool) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for slot, e := range p.transient {
		e.destroy()
		delete(p.transient, slot)
	}
	for id, e := range p.dedicated {
		e.destroy()
		delete(p.dedicated, id)
	}
	p.gen = make(map[ResourceID]int)
	if p.ownsAlloc && p.allocator != nil {
		p.allocator.Close()
	}
	p.allocator = nil
	p.invalid = true
	Logger().Info("pool invalidated")
}

// Reinitialize recovers from Invalidate with a fresh allocator. A nil
// allocator selects the default backend again, owned by the pool; a
// caller-supplied allocator stays owned by the caller. Calling
// Reinitialize on a pool that is not invalidated replaces the allocator
// after releasing all current allocations.
func (p *Pool) Reinitialize(a alloc.TextureAllocator) error {
	owns := false
	if a == nil {
		var err error
		a, err = alloc.InitDefault()
		if err != nil {
			return err
		}
		owns = true
	}
	return p.reinitialize(a, owns)
}

// reinitialize installs a new allocator. owns transfers the Close
// responsibility to the pool, for allocators no one else holds.
func (p *Pool) reinitialize(a alloc.TextureAllocator, owns bool) error {
	p.mu.Lock()
	alreadyInvalid := p.invalid
	p.mu.Unlock()
	if !alreadyInvalid {
		p.Invalidate()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.allocator = a
	p.ownsAlloc = owns
	p.invalid = false
	Logger().Info("pool reinitialized", "allocator", a.Name())
	return nil
}

// Invalidated reports whether the pool is between Invalidate and
// Reinitialize.
func (p *Pool) Invalidated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.invalid
}

// AllocationCount returns the number of live physical textures. Ping-pong
// buffers count as two.
func (p *Pool) AllocationCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, e := range p.transient {
		n += e.count()
	}
	for _, e := range p.dedicated {
		n += e.count()
	}
	return n
}

// Close releases all allocations and, if the pool owns its allocator,
// closes it.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for slot, e := range p.transient {
		e.destroy()
		delete(p.transient, slot)
	}
	for id, e := range p.dedicated {
		e.destroy()
		delete(p.dedicated, id)
	}
	if p.ownsAlloc && p.allocator != nil {
		p.allocator.Close()
	}
	p.allocator = nil
}

// textureLayers maps a resource kind to the array layer count.
func textureLayers(desc *ResourceDescriptor) int {
	switch desc.Kind {
	case KindCubemap:
		return 6
	case KindMultiRenderTarget:
		return desc.attachmentCount()
	default:
		return 1
	}
}

// textureUsage derives the usage flags for a resource's physical texture.
func textureUsage(desc *ResourceDescriptor) gputypes.TextureUsage {
	usage := gputypes.TextureUsageTextureBinding | gputypes.TextureUsageRenderAttachment
	if desc.Persistent {
		// Resize preservation copies through the texture.
		usage |= gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst
	}
	return usage
}

// clearTexture fills a texture where the backend supports CPU clears.
// GPU-backed textures are cleared by the pass's own load op instead.
func clearTexture(t alloc.Texture, c color.RGBA) {
	if st, ok := t.(*alloc.SoftwareTexture); ok {
		st.Clear(c)
	}
}
