// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

// Allocation places a logical resource in the compiled allocation plan.
type Allocation struct {
	// Slot is the physical slot index the resource resolves to.
	Slot int

	// AliasGroup is the alias group ordinal for transient resources that
	// may share their slot, or -1 for resources with a dedicated slot
	// (persistent, ping-pong).
	AliasGroup int
}

// Lifetime is a resource's live interval as inclusive indices into the
// compiled pass order: first producing pass to last consuming pass.
type Lifetime struct {
	FirstWriter int
	LastReader  int
}

// overlaps reports whether two inclusive intervals intersect.
func (l Lifetime) overlaps(o Lifetime) bool {
	return l.FirstWriter <= o.LastReader && o.FirstWriter <= l.LastReader
}

// compiledPass is one pass in the compiled order with its accesses
// normalized: ReadWrite appears in both reads and writes.
type compiledPass struct {
	id      PassID
	enabled func() bool
	execute func(*FrameContext) error

	reads    []ResourceID
	writes   []ResourceID
	feedback []ResourceID // ReadWrite resources: read gen g, write gen g^1

	shader []uint32 // compiled SPIR-V, nil when the pass declared no shader
}

// slotSpec describes one physical slot of the allocation plan.
type slotSpec struct {
	// desc is the representative descriptor all members are compatible
	// with; the pool allocates from it.
	desc ResourceDescriptor

	// members are the resources mapped onto this slot, in declaration
	// order. len > 1 only for alias groups.
	members []ResourceID

	// pingPong slots hold two physical textures and a generation index.
	pingPong bool
}

// CompiledGraph is the immutable result of Compile: a valid topological
// pass order plus the allocation plan derived from hazard and lifetime
// analysis. Compiling identical declarations yields an identical
// CompiledGraph.
type CompiledGraph struct {
	order     []PassID
	passes    []compiledPass // parallel to order
	passIndex map[PassID]int

	resources map[ResourceID]ResourceDescriptor // all declared
	plan      map[ResourceID]Allocation         // live, non-external
	lifetimes map[ResourceID]Lifetime
	pingPong  map[ResourceID]bool

	slots []slotSpec

	live        []ResourceID // live resource set, declaration order
	fingerprint uint64
}

// Order returns the compiled pass order. The slice is a copy.
func (cg *CompiledGraph) Order() []PassID {
	out := make([]PassID, len(cg.order))
	copy(out, cg.order)
	return out
}

// Allocation returns the plan entry for a resource.
// The second result is false for external, dead, or unknown resources.
func (cg *CompiledGraph) Allocation(id ResourceID) (Allocation, bool) {
	a, ok := cg.plan[id]
	return a, ok
}

// Lifetime returns the computed live interval of a resource.
func (cg *CompiledGraph) Lifetime(id ResourceID) (Lifetime, bool) {
	l, ok := cg.lifetimes[id]
	return l, ok
}

// PingPong reports whether the resource is double-buffered.
func (cg *CompiledGraph) PingPong(id ResourceID) bool {
	return cg.pingPong[id]
}

// LiveResources returns the live resource set in declaration order.
// The slice is a copy.
func (cg *CompiledGraph) LiveResources() []ResourceID {
	out := make([]ResourceID, len(cg.live))
	copy(out, cg.live)
	return out
}

// SlotCount returns the number of physical slots in the plan.
// Ping-pong slots count once even though they hold two textures.
func (cg *CompiledGraph) SlotCount() int {
	return len(cg.slots)
}

// Fingerprint identifies the live resource set this plan was compiled
// for. The executor compares it against the current predicate state to
// detect stale plans; Graph uses it as the compile-cache key.
func (cg *CompiledGraph) Fingerprint() uint64 {
	return cg.fingerprint
}

// Shader returns the compiled SPIR-V for a pass, or nil.
func (cg *CompiledGraph) Shader(id PassID) []uint32 {
	i, ok := cg.passIndex[id]
	if !ok {
		return nil
	}
	return cg.passes[i].shader
}

// descriptor returns the declared descriptor for a resource.
func (cg *CompiledGraph) descriptor(id ResourceID) (ResourceDescriptor, bool) {
	d, ok := cg.resources[id]
	return d, ok
}
