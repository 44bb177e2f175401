// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package alloc

import (
	"sync"
)

// AllocatorFactory creates a new allocator instance.
type AllocatorFactory func() TextureAllocator

// Allocator name constants.
const (
	// AllocatorSoftware is the name of the CPU-backed software allocator.
	AllocatorSoftware = "software"
	// AllocatorHAL is the name of the GPU allocator over gogpu/wgpu HAL.
	AllocatorHAL = "hal"
)

// registry holds registered allocators.
var (
	registryMu sync.RWMutex
	allocators = make(map[string]AllocatorFactory)
	// Priority order for allocator selection (first available wins).
	// HAL > Software (software is the always-present fallback).
	allocatorPriority = []string{AllocatorHAL, AllocatorSoftware}
)

// Register registers an allocator factory with the given name.
// This is typically called from init() functions. If an allocator with the
// same name is already registered, it is replaced.
func Register(name string, factory AllocatorFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	allocators[name] = factory
}

// Unregister removes an allocator from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(allocators, name)
}

// Available returns a list of registered allocator names.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(allocators))
	for name := range allocators {
		names = append(names, name)
	}
	return names
}

// IsRegistered checks if an allocator with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := allocators[name]
	return ok
}

// Get returns an allocator instance by name.
// Returns nil if the allocator is not registered.
func Get(name string) TextureAllocator {
	registryMu.RLock()
	defer registryMu.RUnlock()

	factory, ok := allocators[name]
	if !ok {
		return nil
	}
	return factory()
}

// Default returns the best available allocator based on priority.
// Priority order: hal > software.
// Returns nil if no allocators are registered.
func Default() TextureAllocator {
	registryMu.RLock()
	defer registryMu.RUnlock()

	for _, name := range allocatorPriority {
		if factory, ok := allocators[name]; ok {
			if a := factory(); a != nil {
				return a
			}
		}
	}

	// Fallback: return first available
	for _, factory := range allocators {
		if a := factory(); a != nil {
			return a
		}
	}

	return nil
}

// InitDefault returns the default allocator with Init already called.
func InitDefault() (TextureAllocator, error) {
	a := Default()
	if a == nil {
		return nil, ErrAllocatorNotAvailable
	}
	if err := a.Init(); err != nil {
		return nil, err
	}
	return a, nil
}
