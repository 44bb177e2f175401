// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

import "fmt"

// AccessMode declares how a pass touches a resource.
type AccessMode uint8

// Access modes.
const (
	// AccessRead declares a read-only dependency on a resource produced
	// earlier in the frame (or imported).
	AccessRead AccessMode = iota + 1

	// AccessWrite declares that the pass produces the resource's contents
	// for this frame.
	AccessWrite

	// AccessReadWrite declares a feedback access: the pass reads the
	// previous frame's contents and writes this frame's. The compiler
	// allocates a double buffer and alternates generations automatically.
	AccessReadWrite
)

// String returns the mode name for logs and error messages.
func (m AccessMode) String() string {
	switch m {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	case AccessReadWrite:
		return "readwrite"
	default:
		return fmt.Sprintf("AccessMode(%d)", uint8(m))
	}
}

// ResourceAccess pairs a resource with an access mode.
type ResourceAccess struct {
	Resource ResourceID
	Mode     AccessMode
}

// Read declares a read access.
func Read(id ResourceID) ResourceAccess {
	return ResourceAccess{Resource: id, Mode: AccessRead}
}

// Write declares a write access.
func Write(id ResourceID) ResourceAccess {
	return ResourceAccess{Resource: id, Mode: AccessWrite}
}

// ReadWrite declares a feedback access (previous frame in, current frame
// out) on the same resource.
func ReadWrite(id ResourceID) ResourceAccess {
	return ResourceAccess{Resource: id, Mode: AccessReadWrite}
}

// PassDescriptor declares a render pass: its identity, its full set of
// resource accesses, an optional enable predicate, and the callback that
// performs the actual GPU work.
//
// Every access must be declared before the first Compile; a pass must not
// touch resources it did not declare and must not hold resolved handles
// past its Execute call.
type PassDescriptor struct {
	// ID must be unique within the graph.
	ID PassID

	// Inputs are the resources the pass reads. A ReadWrite access may
	// appear in either list; it counts as both.
	Inputs []ResourceAccess

	// Outputs are the resources the pass produces.
	Outputs []ResourceAccess

	// Enabled, if non-nil, is evaluated at compile time (to decide the
	// live resource set) and again before each frame (to skip the pass).
	// A nil predicate means always enabled.
	Enabled func() bool

	// Execute performs the pass's GPU work. The FrameContext and every
	// handle resolved through it are valid only until Execute returns.
	Execute func(*FrameContext) error

	// ShaderWGSL is an optional WGSL source compiled to SPIR-V once per
	// graph compile and exposed to the pass through FrameContext.Shader.
	ShaderWGSL string
}

// enabled evaluates the pass predicate, treating nil as enabled.
func (p *PassDescriptor) enabled() bool {
	return p.Enabled == nil || p.Enabled()
}

// accesses iterates the pass's declared accesses, inputs first. ReadWrite
// accesses are yielded once regardless of which list declares them.
func (p *PassDescriptor) accesses(fn func(ResourceAccess)) {
	seen := make(map[ResourceID]bool, len(p.Inputs)+len(p.Outputs))
	for _, a := range p.Inputs {
		if a.Mode == AccessReadWrite {
			if seen[a.Resource] {
				continue
			}
			seen[a.Resource] = true
		}
		fn(a)
	}
	for _, a := range p.Outputs {
		if a.Mode == AccessReadWrite {
			if seen[a.Resource] {
				continue
			}
			seen[a.Resource] = true
		}
		fn(a)
	}
}
