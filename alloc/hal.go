// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package alloc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// HAL allocator errors.
var (
	// ErrNoHALDevice is returned when a provider does not expose HAL types.
	ErrNoHALDevice = errors.New("alloc: provider does not expose a HAL device")
)

// RegisterHAL makes the HAL allocator available to Default(). It is not
// registered on import because opening a GPU device is not free and
// headless environments (tests, CI) should keep getting the software
// allocator without opting out.
func RegisterHAL() {
	Register(AllocatorHAL, func() TextureAllocator {
		return NewHALAllocator()
	})
}

// HALAllocator allocates textures on a GPU device through gogpu/wgpu's HAL.
//
// The allocator either borrows a device from the host application (device
// sharing via a gpucontext.DeviceProvider that also exposes HAL types) or
// creates its own instance and device on Init.
type HALAllocator struct {
	mu sync.Mutex

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue

	live           int
	initialized    bool
	externalDevice bool // true when using a shared device (don't destroy on Close)
}

// NewHALAllocator creates an allocator that will open its own GPU device
// on Init.
func NewHALAllocator() *HALAllocator {
	return &HALAllocator{}
}

// NewHALAllocatorFromProvider creates an allocator sharing the host
// application's GPU device. The provider must expose HAL types through
// HalDevice() any and HalQueue() any methods returning wgpu/hal values.
func NewHALAllocatorFromProvider(provider gpucontext.DeviceProvider) (*HALAllocator, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHALDevice
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoHALDevice)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoHALDevice)
	}
	return &HALAllocator{
		device:         device,
		queue:          queue,
		externalDevice: true,
	}, nil
}

// Name returns the allocator identifier.
func (a *HALAllocator) Name() string {
	return AllocatorHAL
}

// Init opens a GPU device unless one was shared by the host.
func (a *HALAllocator) Init() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.initialized {
		return nil
	}
	if a.externalDevice {
		a.initialized = true
		return nil
	}

	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return fmt.Errorf("alloc: vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("alloc: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return fmt.Errorf("alloc: no GPU adapters found")
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return fmt.Errorf("alloc: open device: %w", err)
	}

	a.instance = instance
	a.device = openDev.Device
	a.queue = openDev.Queue
	a.initialized = true
	logger().Info("HAL allocator initialized", "adapter", selected.Info.Name)
	return nil
}

// Close destroys the device and instance if the allocator owns them.
func (a *HALAllocator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.externalDevice {
		if a.device != nil {
			a.device.Destroy()
		}
		if a.instance != nil {
			a.instance.Destroy()
		}
	}
	a.instance = nil
	a.device = nil
	a.queue = nil
	a.initialized = false
	a.live = 0
}

// LiveTextures returns the number of allocations currently alive.
func (a *HALAllocator) LiveTextures() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}

// CreateTexture allocates a GPU texture.
func (a *HALAllocator) CreateTexture(desc *TextureDescriptor) (Texture, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidTextureSize, desc.Width, desc.Height)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.initialized || a.device == nil {
		return nil, ErrNotInitialized
	}

	samples := desc.SampleCount
	if samples < 1 {
		samples = 1
	}

	tex, err := a.device.CreateTexture(&hal.TextureDescriptor{
		Label: desc.Label,
		Size: hal.Extent3D{
			Width:              uint32(desc.Width),
			Height:             uint32(desc.Height),
			DepthOrArrayLayers: uint32(desc.layerCount()),
		},
		MipLevelCount: 1,
		SampleCount:   uint32(samples),
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format,
		Usage:         desc.Usage,
	})
	if err != nil {
		return nil, fmt.Errorf("alloc: create texture %q: %w", desc.Label, err)
	}

	a.live++
	return &HALTexture{
		alloc:  a,
		label:  desc.Label,
		width:  desc.Width,
		height: desc.Height,
		format: desc.Format,
		tex:    tex,
	}, nil
}

// release decrements the live count when a texture is destroyed.
func (a *HALAllocator) release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.live > 0 {
		a.live--
	}
}

// HALTexture is a GPU texture created through the HAL allocator. The
// default view is created lazily on first use, following the wgpu pattern.
type HALTexture struct {
	alloc  *HALAllocator
	label  string
	width  int
	height int
	format gputypes.TextureFormat

	tex hal.Texture

	viewOnce sync.Once
	view     hal.TextureView
	viewErr  error

	destroyed bool
}

// Label returns the debug name the texture was created with.
func (t *HALTexture) Label() string {
	return t.label
}

// Width returns the texture width in pixels.
func (t *HALTexture) Width() int {
	return t.width
}

// Height returns the texture height in pixels.
func (t *HALTexture) Height() int {
	return t.height
}

// Format returns the texture pixel format.
func (t *HALTexture) Format() gputypes.TextureFormat {
	return t.format
}

// Raw returns the underlying HAL texture for command submission.
func (t *HALTexture) Raw() hal.Texture {
	return t.tex
}

// View returns the default texture view, creating it on first use.
func (t *HALTexture) View() (hal.TextureView, error) {
	if t.destroyed {
		return nil, ErrTextureDestroyed
	}
	t.viewOnce.Do(func() {
		t.view, t.viewErr = t.alloc.device.CreateTextureView(t.tex, &hal.TextureViewDescriptor{
			Label: t.label + "_view",
		})
	})
	return t.view, t.viewErr
}

// Destroy releases the GPU texture and its default view.
func (t *HALTexture) Destroy() {
	if t.destroyed {
		return
	}
	t.destroyed = true
	if t.view != nil {
		t.alloc.device.DestroyTextureView(t.view)
		t.view = nil
	}
	if t.tex != nil {
		t.alloc.device.DestroyTexture(t.tex)
		t.tex = nil
	}
	t.alloc.release()
}

// Ensure HALAllocator and HALTexture implement the interfaces.
var (
	_ TextureAllocator = (*HALAllocator)(nil)
	_ Texture          = (*HALTexture)(nil)
)
