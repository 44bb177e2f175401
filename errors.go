// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

import (
	"errors"
	"fmt"
	"strings"
)

// Common framegraph errors.
var (
	// ErrNotCompiled is returned when Execute is called before a successful
	// Compile.
	ErrNotCompiled = errors.New("framegraph: graph not compiled")

	// ErrInvalidated is returned by pool operations between Invalidate and
	// a successful Reinitialize.
	ErrInvalidated = errors.New("framegraph: pool invalidated")

	// ErrHandleReleased is returned when a pass uses a FrameContext after
	// its Execute callback returned. Resolved handles are borrowed for the
	// duration of one invocation only; a later pass may alias the same
	// physical allocation.
	ErrHandleReleased = errors.New("framegraph: frame context used after pass returned")

	// ErrExternalWrite is returned at compile time when a pass declares a
	// write to an external resource. External resources are imported each
	// frame and are never produced inside the graph.
	ErrExternalWrite = errors.New("framegraph: external resource written inside graph")

	// ErrMissingExternal is returned by Execute when a declared external
	// resource was not supplied in FrameInputs.External.
	ErrMissingExternal = errors.New("framegraph: external resource not supplied")

	// ErrUndeclaredAccess is returned when a pass resolves a resource it
	// did not declare in its inputs or outputs.
	ErrUndeclaredAccess = errors.New("framegraph: access to undeclared resource")

	// ErrNeverWritten is returned at compile time when a transient resource
	// is read by some pass but no pass ever writes it. Its contents would be
	// undefined garbage every frame.
	ErrNeverWritten = errors.New("framegraph: resource read but never written")
)

// CycleError reports a dependency cycle found during compilation.
// It names the passes forming the minimal offending cycle and the
// resources shared along its edges.
type CycleError struct {
	Passes    []PassID
	Resources []ResourceID
}

func (e *CycleError) Error() string {
	passes := make([]string, len(e.Passes))
	for i, p := range e.Passes {
		passes[i] = string(p)
	}
	resources := make([]string, len(e.Resources))
	for i, r := range e.Resources {
		resources[i] = string(r)
	}
	return fmt.Sprintf("framegraph: dependency cycle between passes [%s] via resources [%s]",
		strings.Join(passes, " -> "), strings.Join(resources, ", "))
}

// UnknownResourceError reports a pass referencing a resource that was
// never declared.
type UnknownResourceError struct {
	Pass     PassID
	Resource ResourceID
}

func (e *UnknownResourceError) Error() string {
	return fmt.Sprintf("framegraph: pass %q references undeclared resource %q", e.Pass, e.Resource)
}

// DuplicateIDError reports a resource or pass declared twice.
type DuplicateIDError struct {
	Kind string // "resource" or "pass"
	ID   string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("framegraph: duplicate %s ID %q", e.Kind, e.ID)
}

// InvalidSizePolicyError reports a size policy that cannot be resolved:
// non-positive fixed dimensions or a fraction outside (0, 1].
type InvalidSizePolicyError struct {
	Resource ResourceID
	Reason   string
}

func (e *InvalidSizePolicyError) Error() string {
	return fmt.Sprintf("framegraph: invalid size policy on resource %q: %s", e.Resource, e.Reason)
}

// StaleGraphError reports that the enable predicates changed which
// resources are live since the last compile. The compiled allocation plan
// no longer matches; the caller must recompile before the next Execute.
type StaleGraphError struct {
	Added   []ResourceID // live now, absent from the compiled plan
	Removed []ResourceID // in the compiled plan, no longer live
}

func (e *StaleGraphError) Error() string {
	return fmt.Sprintf("framegraph: live resource set changed since compile (added %v, removed %v); recompile required",
		e.Added, e.Removed)
}

// AllocationError reports a physical allocation failure after all declared
// fallback size policies were exhausted.
type AllocationError struct {
	Resource ResourceID
	Width    int
	Height   int
	Err      error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("framegraph: allocating %dx%d for resource %q: %v", e.Width, e.Height, e.Resource, e.Err)
}

func (e *AllocationError) Unwrap() error { return e.Err }

// ShaderError reports a WGSL compilation failure for a pass shader.
type ShaderError struct {
	Pass PassID
	Err  error
}

func (e *ShaderError) Error() string {
	return fmt.Sprintf("framegraph: compiling shader for pass %q: %v", e.Pass, e.Err)
}

func (e *ShaderError) Unwrap() error { return e.Err }

// PassError wraps an error returned by a pass's Execute callback,
// identifying the failing pass. The frame it occurred in is aborted and
// must not be presented.
type PassError struct {
	Pass PassID
	Err  error
}

func (e *PassError) Error() string {
	return fmt.Sprintf("framegraph: pass %q failed: %v", e.Pass, e.Err)
}

func (e *PassError) Unwrap() error { return e.Err }
