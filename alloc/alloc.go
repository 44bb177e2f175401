// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package alloc provides texture allocator backends for framegraph.
//
// An allocator owns the creation and destruction of physical textures.
// Two backends are provided: a deterministic CPU-backed software allocator
// (always available, used by tests and headless runs) and a GPU allocator
// over gogpu/wgpu's HAL. Backends register themselves in a factory
// registry; the pool selects the best available one unless told otherwise.
package alloc

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/gputypes"
)

// Common allocator errors.
var (
	// ErrAllocatorNotAvailable is returned when a requested allocator is
	// not registered.
	ErrAllocatorNotAvailable = errors.New("alloc: allocator not available")

	// ErrNotInitialized is returned when CreateTexture is called before Init.
	ErrNotInitialized = errors.New("alloc: allocator not initialized")

	// ErrTextureDestroyed is returned when operating on a destroyed texture.
	ErrTextureDestroyed = errors.New("alloc: texture has been destroyed")

	// ErrBudgetExceeded is returned by the software allocator when an
	// allocation would exceed the configured byte budget. It stands in for
	// GPU out-of-memory in tests.
	ErrBudgetExceeded = errors.New("alloc: allocation budget exceeded")

	// ErrInvalidTextureSize is returned when texture dimensions are not
	// positive.
	ErrInvalidTextureSize = errors.New("alloc: invalid texture size")
)

// TextureDescriptor describes a physical texture to create.
type TextureDescriptor struct {
	// Label is an optional debug name.
	Label string

	// Width and Height are the texture dimensions in pixels.
	Width  int
	Height int

	// Layers is the array layer count: 1 for plain 2D textures, 6 for
	// cubemaps. Values below 1 are treated as 1.
	Layers int

	// Format is the texture pixel format.
	Format gputypes.TextureFormat

	// SampleCount is the MSAA sample count (1 for non-MSAA).
	SampleCount int

	// Usage specifies how the texture will be used.
	Usage gputypes.TextureUsage
}

// DefaultTextureDescriptor returns a descriptor with sensible defaults.
// Only Width, Height, and Format need to be set.
func DefaultTextureDescriptor(width, height int, format gputypes.TextureFormat) TextureDescriptor {
	return TextureDescriptor{
		Width:       width,
		Height:      height,
		Layers:      1,
		SampleCount: 1,
		Format:      format,
		Usage:       gputypes.TextureUsageTextureBinding | gputypes.TextureUsageRenderAttachment,
	}
}

// layerCount returns the normalized layer count.
func (d *TextureDescriptor) layerCount() int {
	if d.Layers < 1 {
		return 1
	}
	return d.Layers
}

// Texture is a live physical texture owned by an allocator.
// Handles resolved from the pool wrap one of these; passes must not retain
// them past their Execute call.
type Texture interface {
	// Label returns the debug name the texture was created with.
	Label() string

	// Width returns the texture width in pixels.
	Width() int

	// Height returns the texture height in pixels.
	Height() int

	// Format returns the texture pixel format.
	Format() gputypes.TextureFormat

	// Destroy releases the physical allocation. The texture must not be
	// used afterwards.
	Destroy()
}

// TextureAllocator creates and destroys physical textures.
//
// Allocators must be registered via Register and are selected via Get or
// Default. Init must be called before the first CreateTexture.
type TextureAllocator interface {
	// Name returns the allocator identifier (e.g. "software", "hal").
	Name() string

	// Init initializes the allocator.
	Init() error

	// Close releases all allocator resources, including any textures the
	// caller leaked.
	Close()

	// CreateTexture allocates a physical texture.
	CreateTexture(desc *TextureDescriptor) (Texture, error)

	// LiveTextures returns the number of allocations currently alive.
	LiveTextures() int
}

// nopHandler discards all log records; see framegraph.SetLogger.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger configures the logger for the alloc package. The root
// framegraph package propagates its logger here, so callers normally use
// framegraph.SetLogger instead. Pass nil to silence logging.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}

// logger returns the current package logger.
func logger() *slog.Logger {
	return loggerPtr.Load()
}
