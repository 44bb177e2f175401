// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

import (
	"fmt"

	"github.com/gogpu/framegraph/alloc"
)

// FrameInputs carries the per-frame data the caller supplies to Execute.
type FrameInputs struct {
	// DeltaTime is the simulation time step for this frame, in seconds.
	DeltaTime float32

	// External maps each declared external resource to the texture
	// imported for this frame. Every live external resource must be
	// present.
	External map[ResourceID]alloc.Texture

	// Collaborators carries opaque frame-scoped objects that passes need
	// but the graph does not interpret: the scene, the camera, a command
	// encoder. Keys are caller-defined.
	Collaborators map[string]any
}

// FrameContext is the window through which a pass touches its resources
// during one Execute invocation. Every handle it resolves is borrowed: the
// context and all handles become invalid the moment the pass's callback
// returns, because a later pass may alias the same physical memory.
//
// A FrameContext must not be retained after the callback returns; doing so
// fails with ErrHandleReleased.
type FrameContext struct {
	pass   *compiledPass
	graph  *CompiledGraph
	pool   *Pool
	inputs *FrameInputs

	frameIndex      uint64
	feedbackWritten map[ResourceID]bool
	gpuMillis       float64
	released        bool
}

// PassID returns the identity of the executing pass.
func (c *FrameContext) PassID() PassID {
	return c.pass.id
}

// DeltaTime returns this frame's time step in seconds.
func (c *FrameContext) DeltaTime() float32 {
	return c.inputs.DeltaTime
}

// FrameIndex returns the zero-based index of the current frame.
func (c *FrameContext) FrameIndex() uint64 {
	return c.frameIndex
}

// Viewport returns the current viewport dimensions.
func (c *FrameContext) Viewport() (int, int) {
	return c.pool.Viewport()
}

// Collaborator returns a caller-supplied frame object by key, or nil.
func (c *FrameContext) Collaborator(key string) any {
	if c.inputs.Collaborators == nil {
		return nil
	}
	return c.inputs.Collaborators[key]
}

// Shader returns the pass's precompiled SPIR-V words, or nil if the pass
// declared no ShaderWGSL source.
func (c *FrameContext) Shader() []uint32 {
	return c.pass.shader
}

// Input resolves a declared read access to its physical texture. For a
// feedback resource this is the previous frame's generation. External
// resources resolve to the texture imported in FrameInputs.
func (c *FrameContext) Input(id ResourceID) (alloc.Texture, error) {
	if c.released {
		return nil, ErrHandleReleased
	}
	if !containsID(c.pass.reads, id) {
		return nil, fmt.Errorf("%w: pass %q reading %q", ErrUndeclaredAccess, c.pass.id, id)
	}
	if desc, ok := c.graph.descriptor(id); ok && desc.External {
		if t, ok := c.inputs.External[id]; ok {
			return t, nil
		}
		return nil, fmt.Errorf("%w: %q", ErrMissingExternal, id)
	}
	// A double-buffered resource reads differently depending on who asks:
	// its own feedback pass sees the previous generation. A downstream
	// pass sees the buffer written this frame, but only when the feedback
	// pass actually ran; while it is disabled the read generation holds
	// the most recent completed write.
	current := c.graph.PingPong(id) && !containsID(c.pass.feedback, id) && c.feedbackWritten[id]
	return c.pool.textureFor(id, current)
}

// Output resolves a declared write access to its physical texture. For a
// feedback resource this is the current frame's generation, the opposite
// buffer from Input.
func (c *FrameContext) Output(id ResourceID) (alloc.Texture, error) {
	if c.released {
		return nil, ErrHandleReleased
	}
	if !containsID(c.pass.writes, id) {
		return nil, fmt.Errorf("%w: pass %q writing %q", ErrUndeclaredAccess, c.pass.id, id)
	}
	return c.pool.textureFor(id, true)
}

// InvalidateDevice reports device loss detected inside the pass. The
// current frame is aborted after the callback returns and Execute becomes
// a no-op until Reinitialize. Unlike Graph.Invalidate, this is safe to
// call from within a pass.
func (c *FrameContext) InvalidateDevice() {
	c.pool.Invalidate()
}

// RecordGPUTime reports the pass's measured GPU duration in milliseconds.
// It feeds the PassTimings snapshot when timing queries are enabled; the
// graph itself only measures CPU dispatch time.
func (c *FrameContext) RecordGPUTime(millis float64) {
	if !c.released {
		c.gpuMillis = millis
	}
}

// release invalidates the context after the pass callback returns.
func (c *FrameContext) release() {
	c.released = true
}
