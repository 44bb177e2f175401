// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package framegraph

import (
	"github.com/gogpu/gpucontext"

	"github.com/gogpu/framegraph/alloc"
)

// providerAllocator builds a HAL allocator sharing the host's GPU device.
func providerAllocator(provider gpucontext.DeviceProvider) (alloc.TextureAllocator, error) {
	a, err := alloc.NewHALAllocatorFromProvider(provider)
	if err != nil {
		return nil, err
	}
	if err := a.Init(); err != nil {
		return nil, err
	}
	return a, nil
}
