// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package framegraph provides a render dependency graph for the GoGPU
// ecosystem.
//
// # Overview
//
// framegraph turns a declarative description of render passes and the
// resources they read and write into a validated, topologically ordered,
// resource-safe per-frame execution plan. Pass order is a compiled artifact
// derived from declared resource access, not from registration order.
//
// The compiler detects cycles, resolves read-while-write hazards through
// automatic ping-pong allocation, computes resource lifetimes, and aliases
// transient resources with disjoint lifetimes onto shared physical
// allocations. The pool owns all physical textures and survives viewport
// resizes and device loss without recompiling the graph.
//
// # Quick Start
//
//	g := framegraph.New()
//
//	g.AddResource(framegraph.ResourceDescriptor{
//	    ID:     "sceneColor",
//	    Size:   framegraph.ScreenSize(),
//	    Format: gputypes.TextureFormatRGBA8Unorm,
//	})
//	g.AddResource(framegraph.ResourceDescriptor{
//	    ID:     "final",
//	    Size:   framegraph.ScreenSize(),
//	    Format: gputypes.TextureFormatRGBA8Unorm,
//	})
//
//	g.AddPass(framegraph.PassDescriptor{
//	    ID:      "scene",
//	    Outputs: []framegraph.ResourceAccess{framegraph.Write("sceneColor")},
//	    Execute: drawScene,
//	})
//	g.AddPass(framegraph.PassDescriptor{
//	    ID:      "bloom",
//	    Inputs:  []framegraph.ResourceAccess{framegraph.Read("sceneColor")},
//	    Outputs: []framegraph.ResourceAccess{framegraph.Write("final")},
//	    Execute: applyBloom,
//	})
//
//	if err := g.Compile(); err != nil {
//	    log.Fatal(err)
//	}
//	for running {
//	    err := g.Execute(framegraph.FrameInputs{DeltaTime: dt})
//	    ...
//	}
//
// # Architecture
//
// The library is organized into:
//   - Public API: Graph, ResourceDescriptor, PassDescriptor, FrameContext
//   - Compiler: validation, hazard analysis, topological sort, lifetime
//     analysis and aliasing (Compile, CompiledGraph)
//   - Pool: physical allocations, resize, invalidation and recovery
//   - alloc/: texture allocator backends (software, wgpu/hal)
//   - cache/: LRU memoization of compiled plans
//
// # Scheduling Model
//
// Execution is single-threaded and synchronous: passes run strictly in
// compiled topological order on the render thread, because GPU submission
// order must respect data dependencies. Compilation itself is a pure
// function of the declared graph and may run off the render thread.
package framegraph
