// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build nogpu

package framegraph

import (
	"github.com/gogpu/gpucontext"

	"github.com/gogpu/framegraph/alloc"
)

// providerAllocator reports that GPU support is compiled out.
func providerAllocator(gpucontext.DeviceProvider) (alloc.TextureAllocator, error) {
	return nil, alloc.ErrAllocatorNotAvailable
}
