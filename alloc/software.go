// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package alloc

import (
	"fmt"
	"image"
	"image/color"
	stddraw "image/draw"
	"sync"

	"github.com/gogpu/gputypes"
	"golang.org/x/image/draw"
)

// init registers the software allocator on package import.
func init() {
	Register(AllocatorSoftware, func() TextureAllocator {
		return NewSoftwareAllocator()
	})
}

// SoftwareAllocator is a CPU-backed texture allocator. Every texture is an
// addressable *image.RGBA per layer, making the allocator fully
// deterministic and usable without any GPU. It is the default in tests and
// headless environments.
//
// A byte budget can be configured to simulate GPU out-of-memory; exceeding
// it fails CreateTexture with ErrBudgetExceeded.
type SoftwareAllocator struct {
	mu          sync.Mutex
	initialized bool
	budget      int64 // 0 means unlimited
	usedBytes   int64
	live        int
}

// NewSoftwareAllocator creates a new software allocator.
func NewSoftwareAllocator() *SoftwareAllocator {
	return &SoftwareAllocator{}
}

// Name returns the allocator identifier.
func (a *SoftwareAllocator) Name() string {
	return AllocatorSoftware
}

// Init initializes the allocator.
func (a *SoftwareAllocator) Init() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.initialized = true
	return nil
}

// Close marks the allocator unusable. Live textures remain valid as plain
// memory but no longer count against the budget.
func (a *SoftwareAllocator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.initialized = false
	a.usedBytes = 0
	a.live = 0
}

// SetBudget limits the total bytes the allocator may hand out.
// A budget of 0 removes the limit. Intended for tests that exercise the
// pool's fallback size policies.
func (a *SoftwareAllocator) SetBudget(bytes int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.budget = bytes
}

// UsedBytes returns the bytes currently allocated.
func (a *SoftwareAllocator) UsedBytes() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.usedBytes
}

// LiveTextures returns the number of allocations currently alive.
func (a *SoftwareAllocator) LiveTextures() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}

// CreateTexture allocates a CPU-backed texture.
func (a *SoftwareAllocator) CreateTexture(desc *TextureDescriptor) (Texture, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidTextureSize, desc.Width, desc.Height)
	}

	layers := desc.layerCount()
	size := int64(desc.Width) * int64(desc.Height) * int64(bytesPerPixel(desc.Format)) * int64(layers)

	a.mu.Lock()
	if !a.initialized {
		a.mu.Unlock()
		return nil, ErrNotInitialized
	}
	if a.budget > 0 && a.usedBytes+size > a.budget {
		a.mu.Unlock()
		return nil, fmt.Errorf("%w: need %d bytes, %d of %d in use", ErrBudgetExceeded, size, a.usedBytes, a.budget)
	}
	a.usedBytes += size
	a.live++
	a.mu.Unlock()

	imgs := make([]*image.RGBA, layers)
	for i := range imgs {
		imgs[i] = image.NewRGBA(image.Rect(0, 0, desc.Width, desc.Height))
	}

	logger().Debug("software texture allocated",
		"label", desc.Label, "width", desc.Width, "height", desc.Height,
		"layers", layers, "bytes", size)

	return &SoftwareTexture{
		alloc:     a,
		label:     desc.Label,
		format:    desc.Format,
		samples:   desc.SampleCount,
		layers:    imgs,
		sizeBytes: size,
	}, nil
}

// release returns a destroyed texture's bytes to the budget.
func (a *SoftwareAllocator) release(sizeBytes int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.initialized {
		return
	}
	a.usedBytes -= sizeBytes
	a.live--
}

// SoftwareTexture is a CPU-backed texture. Pixel storage is RGBA8 per
// layer regardless of the declared format; the declared format governs
// budget accounting and compatibility checks only.
type SoftwareTexture struct {
	alloc     *SoftwareAllocator
	label     string
	format    gputypes.TextureFormat
	samples   int
	layers    []*image.RGBA
	sizeBytes int64
	destroyed bool
}

// Label returns the debug name the texture was created with.
func (t *SoftwareTexture) Label() string {
	return t.label
}

// Width returns the texture width in pixels.
func (t *SoftwareTexture) Width() int {
	return t.layers[0].Bounds().Dx()
}

// Height returns the texture height in pixels.
func (t *SoftwareTexture) Height() int {
	return t.layers[0].Bounds().Dy()
}

// Format returns the declared pixel format.
func (t *SoftwareTexture) Format() gputypes.TextureFormat {
	return t.format
}

// Layer returns the backing image of one array layer.
// The image shares memory with the texture.
func (t *SoftwareTexture) Layer(i int) *image.RGBA {
	return t.layers[i]
}

// Image returns the backing image of layer 0.
func (t *SoftwareTexture) Image() *image.RGBA {
	return t.layers[0]
}

// Clear fills every layer with the given color.
func (t *SoftwareTexture) Clear(c color.RGBA) {
	for _, img := range t.layers {
		stddraw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, stddraw.Src)
	}
}

// CopyScaled fills the texture with src's contents, bilinearly rescaled to
// this texture's dimensions. Used by the pool to carry persistent resource
// contents (history buffers) across viewport resizes.
func (t *SoftwareTexture) CopyScaled(src *SoftwareTexture) {
	n := len(t.layers)
	if len(src.layers) < n {
		n = len(src.layers)
	}
	for i := 0; i < n; i++ {
		draw.BiLinear.Scale(t.layers[i], t.layers[i].Bounds(), src.layers[i], src.layers[i].Bounds(), draw.Src, nil)
	}
}

// Destroy releases the allocation back to the allocator's budget.
func (t *SoftwareTexture) Destroy() {
	if t.destroyed {
		return
	}
	t.destroyed = true
	t.layers = nil
	t.alloc.release(t.sizeBytes)
}

// Destroyed reports whether Destroy has been called.
func (t *SoftwareTexture) Destroyed() bool {
	return t.destroyed
}

// bytesPerPixel returns the storage cost of one texel for budget
// accounting. Unknown formats are charged four bytes.
func bytesPerPixel(format gputypes.TextureFormat) int {
	switch format {
	case gputypes.TextureFormatR8Unorm:
		return 1
	default:
		return 4
	}
}

// Ensure SoftwareAllocator and SoftwareTexture implement the interfaces.
var (
	_ TextureAllocator = (*SoftwareAllocator)(nil)
	_ Texture          = (*SoftwareTexture)(nil)
)
