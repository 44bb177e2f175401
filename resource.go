// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

import (
	"fmt"
	"image/color"

	"github.com/chewxy/math32"
	"github.com/gogpu/gputypes"
)

// ResourceID identifies a logical resource within one graph.
type ResourceID string

// PassID identifies a render pass within one graph.
type PassID string

// ResourceKind distinguishes the shape of a logical resource.
type ResourceKind uint8

// Resource kinds.
const (
	// KindTexture is a sampled 2D texture.
	KindTexture ResourceKind = iota

	// KindRenderTarget is a 2D texture usable as a render attachment.
	KindRenderTarget

	// KindMultiRenderTarget is a set of color attachments written together.
	// The descriptor's Attachments field gives the attachment count.
	KindMultiRenderTarget

	// KindCubemap is a six-layer cube texture.
	KindCubemap
)

// String returns the kind name for logs and error messages.
func (k ResourceKind) String() string {
	switch k {
	case KindTexture:
		return "texture"
	case KindRenderTarget:
		return "render-target"
	case KindMultiRenderTarget:
		return "multi-render-target"
	case KindCubemap:
		return "cubemap"
	default:
		return fmt.Sprintf("ResourceKind(%d)", uint8(k))
	}
}

// SizeMode selects how a resource's dimensions are derived.
type SizeMode uint8

// Size modes.
const (
	// SizeScreen tracks the viewport exactly.
	SizeScreen SizeMode = iota

	// SizeFixed uses explicit dimensions, independent of the viewport.
	SizeFixed

	// SizeFraction tracks the viewport scaled by a fraction in (0, 1].
	SizeFraction
)

// SizePolicy describes how a resource's physical dimensions are computed
// from the current viewport. A policy may carry a fallback that the pool
// tries when physical allocation fails (for example a fraction step-down
// on GPU out-of-memory).
type SizePolicy struct {
	Mode     SizeMode
	Width    int     // SizeFixed only
	Height   int     // SizeFixed only
	Fraction float32 // SizeFraction only

	// Fallback, if non-nil, is attempted when allocation at the resolved
	// size fails. Fallbacks may chain.
	Fallback *SizePolicy
}

// ScreenSize returns a policy that tracks the viewport exactly.
func ScreenSize() SizePolicy {
	return SizePolicy{Mode: SizeScreen}
}

// FixedSize returns a policy with explicit dimensions.
func FixedSize(width, height int) SizePolicy {
	return SizePolicy{Mode: SizeFixed, Width: width, Height: height}
}

// FractionSize returns a policy that tracks the viewport scaled by f.
// f must be in (0, 1]; validation happens at compile time.
func FractionSize(f float32) SizePolicy {
	return SizePolicy{Mode: SizeFraction, Fraction: f}
}

// WithFallback returns a copy of the policy with the given fallback chained.
func (p SizePolicy) WithFallback(fb SizePolicy) SizePolicy {
	p.Fallback = &fb
	return p
}

// Resolve computes the physical dimensions for the given viewport.
// Fractional sizes round up so a non-empty viewport never resolves to zero.
func (p SizePolicy) Resolve(viewportW, viewportH int) (int, int) {
	switch p.Mode {
	case SizeFixed:
		return p.Width, p.Height
	case SizeFraction:
		w := int(math32.Ceil(float32(viewportW) * p.Fraction))
		h := int(math32.Ceil(float32(viewportH) * p.Fraction))
		return w, h
	default:
		return viewportW, viewportH
	}
}

// validate reports why the policy cannot be resolved, or "" if it is valid.
// Fallback chains are validated recursively.
func (p SizePolicy) validate() string {
	switch p.Mode {
	case SizeFixed:
		if p.Width <= 0 || p.Height <= 0 {
			return fmt.Sprintf("fixed dimensions must be positive, got %dx%d", p.Width, p.Height)
		}
	case SizeFraction:
		if !(p.Fraction > 0 && p.Fraction <= 1) {
			return fmt.Sprintf("fraction must be in (0, 1], got %v", p.Fraction)
		}
	}
	if p.Fallback != nil {
		return p.Fallback.validate()
	}
	return ""
}

// equal reports whether two policies resolve identically at every viewport.
// Fallbacks do not participate: they matter only under allocation failure.
func (p SizePolicy) equal(o SizePolicy) bool {
	if p.Mode != o.Mode {
		return false
	}
	switch p.Mode {
	case SizeFixed:
		return p.Width == o.Width && p.Height == o.Height
	case SizeFraction:
		return p.Fraction == o.Fraction
	default:
		return true
	}
}

// ResourceDescriptor declares a logical GPU resource and its sizing and
// format policy. Descriptors are declarations only; physical textures are
// created lazily by the pool on the first Execute after a compile.
type ResourceDescriptor struct {
	// ID must be unique within the graph.
	ID ResourceID

	// Kind defaults to KindTexture.
	Kind ResourceKind

	// Size defaults to ScreenSize().
	Size SizePolicy

	// Format is the pixel format of the physical texture.
	Format gputypes.TextureFormat

	// InternalFormat optionally overrides Format for the physical
	// allocation, e.g. a high-range format behind an LDR declared format.
	// Zero value (TextureFormatUndefined) means Format is used directly.
	InternalFormat gputypes.TextureFormat

	// Attachments is the color attachment count for KindMultiRenderTarget.
	// Values below 1 are treated as 1.
	Attachments int

	// SampleCount is the MSAA sample count. Values below 1 are treated as 1.
	SampleCount int

	// Persistent resources survive across frames (history buffers). They
	// are never aliased with other resources and retain their contents
	// until the pool is invalidated.
	Persistent bool

	// External resources are imported: never produced by a pass inside the
	// graph, supplied by the caller each frame via FrameInputs.External.
	External bool

	// DepthStencil marks the resource as a depth/stencil attachment.
	DepthStencil bool

	// ClearOnAcquire requests that the pool clear the physical allocation
	// each time a different alias-group member acquires it.
	ClearOnAcquire bool

	// ClearColor is the color ClearOnAcquire fills with. Zero value is
	// transparent black.
	ClearColor color.RGBA
}

// DefaultResourceDescriptor returns a screen-sized RGBA8 texture
// declaration. Only the ID is required.
func DefaultResourceDescriptor(id ResourceID) ResourceDescriptor {
	return ResourceDescriptor{
		ID:     id,
		Kind:   KindTexture,
		Size:   ScreenSize(),
		Format: gputypes.TextureFormatRGBA8Unorm,
	}
}

// physicalFormat returns the format the pool actually allocates.
func (d *ResourceDescriptor) physicalFormat() gputypes.TextureFormat {
	if d.InternalFormat != gputypes.TextureFormatUndefined {
		return d.InternalFormat
	}
	return d.Format
}

// attachmentCount returns the normalized attachment count.
func (d *ResourceDescriptor) attachmentCount() int {
	if d.Kind != KindMultiRenderTarget || d.Attachments < 1 {
		return 1
	}
	return d.Attachments
}

// sampleCount returns the normalized MSAA sample count.
func (d *ResourceDescriptor) sampleCount() int {
	if d.SampleCount < 1 {
		return 1
	}
	return d.SampleCount
}

// compatibleWith reports whether two transient descriptors may share one
// physical allocation. Size policy, physical format, sample count, kind,
// attachment count and depth/stencil use must all match; resources with
// different resolved sizes or formats can never alias.
func (d *ResourceDescriptor) compatibleWith(o *ResourceDescriptor) bool {
	return d.Size.equal(o.Size) &&
		d.physicalFormat() == o.physicalFormat() &&
		d.sampleCount() == o.sampleCount() &&
		d.Kind == o.Kind &&
		d.attachmentCount() == o.attachmentCount() &&
		d.DepthStencil == o.DepthStencil
}
