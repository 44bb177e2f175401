// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

import (
	"errors"
	"image/color"
	"testing"

	"github.com/gogpu/framegraph/alloc"
)

// newTestGraph builds a graph over a fresh software allocator at 800x600.
func newTestGraph(t *testing.T, opts ...Option) *Graph {
	t.Helper()
	a := alloc.NewSoftwareAllocator()
	if err := a.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	g := New(append([]Option{WithAllocator(a), WithViewport(800, 600)}, opts...)...)
	t.Cleanup(g.Close)
	return g
}

func TestGraphSceneBloom(t *testing.T) {
	g := newTestGraph(t)
	g.AddResource(DefaultResourceDescriptor("sceneColor"))
	g.AddResource(DefaultResourceDescriptor("final"))

	var finalTex alloc.Texture
	g.AddPass(PassDescriptor{
		ID:      "Scene",
		Outputs: []ResourceAccess{Write("sceneColor")},
		Execute: func(ctx *FrameContext) error {
			_, err := ctx.Output("sceneColor")
			return err
		},
	})
	g.AddPass(PassDescriptor{
		ID:      "Bloom",
		Inputs:  []ResourceAccess{Read("sceneColor")},
		Outputs: []ResourceAccess{Write("final")},
		Execute: func(ctx *FrameContext) error {
			var err error
			finalTex, err = ctx.Output("final")
			return err
		},
	})

	if err := g.Execute(FrameInputs{}); !errors.Is(err, ErrNotCompiled) {
		t.Fatalf("Execute() before compile = %v, want ErrNotCompiled", err)
	}
	if err := g.Compile(); err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	order := g.Compiled().Order()
	if len(order) != 2 || order[0] != "Scene" || order[1] != "Bloom" {
		t.Errorf("Order() = %v, want [Scene Bloom]", order)
	}

	if err := g.Execute(FrameInputs{DeltaTime: 0.016}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if finalTex == nil {
		t.Fatal("Bloom pass did not run")
	}
	if finalTex.Width() != 800 || finalTex.Height() != 600 {
		t.Errorf("final = %dx%d, want 800x600", finalTex.Width(), finalTex.Height())
	}
	if got := g.FrameIndex(); got != 1 {
		t.Errorf("FrameIndex() = %d, want 1", got)
	}
}

func TestGraphPingPongSequence(t *testing.T) {
	g := newTestGraph(t)
	g.AddResource(DefaultResourceDescriptor("DepthHistory"))
	g.AddResource(DefaultResourceDescriptor("out"))

	var reads, writes []alloc.Texture
	g.AddPass(PassDescriptor{
		ID:      "Temporal",
		Inputs:  []ResourceAccess{ReadWrite("DepthHistory")},
		Outputs: []ResourceAccess{Write("out")},
		Execute: func(ctx *FrameContext) error {
			r, err := ctx.Input("DepthHistory")
			if err != nil {
				return err
			}
			w, err := ctx.Output("DepthHistory")
			if err != nil {
				return err
			}
			reads = append(reads, r)
			writes = append(writes, w)
			return nil
		},
	})

	if err := g.Compile(); err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	for frame := 0; frame < 3; frame++ {
		if err := g.Execute(FrameInputs{}); err != nil {
			t.Fatalf("Execute() frame %d error = %v", frame, err)
		}
	}

	if len(reads) != 3 {
		t.Fatalf("pass ran %d times, want 3", len(reads))
	}
	// Read generations 0,1,0; write generations 1,0,1.
	if reads[0] == reads[1] {
		t.Error("frames 0 and 1 should read different generations")
	}
	if reads[0] != reads[2] {
		t.Error("frames 0 and 2 should read the same generation")
	}
	for i := range reads {
		if reads[i] == writes[i] {
			t.Errorf("frame %d reads and writes the same texture", i)
		}
		if i > 0 && writes[i-1] != reads[i] {
			t.Errorf("frame %d should read what frame %d wrote", i, i-1)
		}
	}
}

func TestGraphDownstreamReadsCurrentPingPong(t *testing.T) {
	g := newTestGraph(t)
	g.AddResource(DefaultResourceDescriptor("history"))
	g.AddResource(DefaultResourceDescriptor("out"))

	var wrote, downstream alloc.Texture
	g.AddPass(PassDescriptor{
		ID:     "Temporal",
		Inputs: []ResourceAccess{ReadWrite("history")},
		Execute: func(ctx *FrameContext) error {
			var err error
			wrote, err = ctx.Output("history")
			return err
		},
	})
	g.AddPass(PassDescriptor{
		ID:      "Compose",
		Inputs:  []ResourceAccess{Read("history")},
		Outputs: []ResourceAccess{Write("out")},
		Execute: func(ctx *FrameContext) error {
			var err error
			downstream, err = ctx.Input("history")
			return err
		},
	})

	if err := g.Compile(); err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if err := g.Execute(FrameInputs{}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if downstream != wrote {
		t.Error("downstream pass should read the buffer written this frame")
	}
}

func TestGraphDisabledFeedbackFreezesGeneration(t *testing.T) {
	enabled := true
	g := newTestGraph(t)
	g.AddResource(DefaultResourceDescriptor("history"))

	var reads []alloc.Texture
	g.AddPass(PassDescriptor{
		ID:      "Temporal",
		Inputs:  []ResourceAccess{ReadWrite("history")},
		Enabled: func() bool { return enabled },
		Execute: func(ctx *FrameContext) error {
			r, err := ctx.Input("history")
			reads = append(reads, r)
			return err
		},
	})

	if err := g.Compile(); err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if err := g.Execute(FrameInputs{}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	// Disabling the only pass empties the live set: stale plan.
	enabled = false
	if err := g.Compile(); err != nil {
		t.Fatalf("Compile() after disable error = %v", err)
	}
	if err := g.Execute(FrameInputs{}); err != nil {
		t.Fatalf("Execute() with disabled pass error = %v", err)
	}

	enabled = true
	if err := g.Compile(); err != nil {
		t.Fatalf("Compile() after re-enable error = %v", err)
	}
	if err := g.Execute(FrameInputs{}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if len(reads) != 2 {
		t.Fatalf("pass ran %d times, want 2", len(reads))
	}
	// One completed feedback frame happened before the freeze, so the
	// second run reads the next generation, not a reset one.
	if reads[0] == reads[1] {
		t.Error("generation should have advanced exactly once across the freeze")
	}
}

func TestGraphFrozenFeedbackDownstreamReadsLatest(t *testing.T) {
	enabled := true
	g := newTestGraph(t)
	g.AddResource(DefaultResourceDescriptor("history"))
	g.AddResource(DefaultResourceDescriptor("out"))

	stamp := uint8(0)
	var seen []uint8
	g.AddPass(PassDescriptor{
		ID:      "Temporal",
		Inputs:  []ResourceAccess{ReadWrite("history")},
		Enabled: func() bool { return enabled },
		Execute: func(ctx *FrameContext) error {
			w, err := ctx.Output("history")
			if err != nil {
				return err
			}
			w.(*alloc.SoftwareTexture).Clear(color.RGBA{R: stamp, A: 255})
			return nil
		},
	})
	g.AddPass(PassDescriptor{
		ID:      "Compose",
		Inputs:  []ResourceAccess{Read("history")},
		Outputs: []ResourceAccess{Write("out")},
		Execute: func(ctx *FrameContext) error {
			r, err := ctx.Input("history")
			if err != nil {
				return err
			}
			seen = append(seen, r.(*alloc.SoftwareTexture).Image().RGBAAt(0, 0).R)
			return nil
		},
	})

	if err := g.Compile(); err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	// Compose keeps history live either way, so disabling Temporal does
	// not change the live set and no recompile is needed.
	for frame := 0; frame < 3; frame++ {
		stamp = uint8(10 * (frame + 1))
		enabled = frame < 2
		if err := g.Execute(FrameInputs{}); err != nil {
			t.Fatalf("Execute() frame %d error = %v", frame, err)
		}
	}

	if len(seen) != 3 {
		t.Fatalf("Compose ran %d times, want 3", len(seen))
	}
	// While Temporal runs, Compose sees the buffer written this frame.
	// With Temporal frozen, it must see the last completed write, not the
	// generation from two flips ago.
	want := []uint8{10, 20, 20}
	for i, got := range seen {
		if got != want[i] {
			t.Errorf("frame %d: Compose read stamp %d, want %d", i, got, want[i])
		}
	}
}

func TestGraphStaleDetection(t *testing.T) {
	bloomOn := true
	g := newTestGraph(t)
	g.AddResource(DefaultResourceDescriptor("scene"))
	g.AddResource(DefaultResourceDescriptor("bloomTex"))
	g.AddPass(PassDescriptor{
		ID:      "Scene",
		Outputs: []ResourceAccess{Write("scene")},
		Execute: noop,
	})
	g.AddPass(PassDescriptor{
		ID:      "Bloom",
		Inputs:  []ResourceAccess{Read("scene")},
		Outputs: []ResourceAccess{Write("bloomTex")},
		Enabled: func() bool { return bloomOn },
		Execute: noop,
	})

	if err := g.Compile(); err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	first := g.Compiled()
	if err := g.Execute(FrameInputs{}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	bloomOn = false
	err := g.Execute(FrameInputs{})
	var serr *StaleGraphError
	if !errors.As(err, &serr) {
		t.Fatalf("Execute() after toggle = %v, want *StaleGraphError", err)
	}
	if len(serr.Removed) != 1 || serr.Removed[0] != "bloomTex" {
		t.Errorf("StaleGraphError.Removed = %v, want [bloomTex]", serr.Removed)
	}

	if err := g.Compile(); err != nil {
		t.Fatalf("Compile() after toggle error = %v", err)
	}
	if err := g.Execute(FrameInputs{}); err != nil {
		t.Fatalf("Execute() after recompile error = %v", err)
	}

	// Toggling back must hit the memoized plan from the first compile.
	bloomOn = true
	if err := g.Compile(); err != nil {
		t.Fatalf("Compile() after re-toggle error = %v", err)
	}
	if g.Compiled() != first {
		t.Error("re-toggle should reuse the cached compiled plan")
	}
}

func TestGraphExternalResource(t *testing.T) {
	backbuffer := DefaultResourceDescriptor("backbuffer")
	backbuffer.External = true

	g := newTestGraph(t)
	g.AddResource(backbuffer)
	g.AddResource(DefaultResourceDescriptor("scene"))

	var seen alloc.Texture
	g.AddPass(PassDescriptor{
		ID:      "Present",
		Inputs:  []ResourceAccess{Read("backbuffer")},
		Outputs: []ResourceAccess{Write("scene")},
		Execute: func(ctx *FrameContext) error {
			var err error
			seen, err = ctx.Input("backbuffer")
			return err
		},
	})

	if err := g.Compile(); err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	if err := g.Execute(FrameInputs{}); !errors.Is(err, ErrMissingExternal) {
		t.Fatalf("Execute() without import = %v, want ErrMissingExternal", err)
	}

	a := alloc.NewSoftwareAllocator()
	if err := a.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer a.Close()
	imported, err := a.CreateTexture(&alloc.TextureDescriptor{
		Label: "backbuffer", Width: 800, Height: 600, Layers: 1, SampleCount: 1,
	})
	if err != nil {
		t.Fatalf("CreateTexture() error = %v", err)
	}

	err = g.Execute(FrameInputs{External: map[ResourceID]alloc.Texture{"backbuffer": imported}})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if seen != imported {
		t.Error("pass should see the imported texture")
	}
}

func TestGraphExternalImportIgnoredForInternal(t *testing.T) {
	g := newTestGraph(t)
	g.AddResource(DefaultResourceDescriptor("scene"))
	g.AddResource(DefaultResourceDescriptor("out"))

	var wrote, read alloc.Texture
	g.AddPass(PassDescriptor{
		ID:      "Scene",
		Outputs: []ResourceAccess{Write("scene")},
		Execute: func(ctx *FrameContext) error {
			var err error
			wrote, err = ctx.Output("scene")
			return err
		},
	})
	g.AddPass(PassDescriptor{
		ID:      "Compose",
		Inputs:  []ResourceAccess{Read("scene")},
		Outputs: []ResourceAccess{Write("out")},
		Execute: func(ctx *FrameContext) error {
			var err error
			read, err = ctx.Input("scene")
			return err
		},
	})

	if err := g.Compile(); err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	a := alloc.NewSoftwareAllocator()
	if err := a.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer a.Close()
	injected, err := a.CreateTexture(&alloc.TextureDescriptor{
		Label: "scene", Width: 800, Height: 600, Layers: 1, SampleCount: 1,
	})
	if err != nil {
		t.Fatalf("CreateTexture() error = %v", err)
	}

	// Imports only bind to resources declared External; an entry keyed by
	// an internal resource must not shadow the pooled allocation.
	err = g.Execute(FrameInputs{External: map[ResourceID]alloc.Texture{"scene": injected}})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if read == injected {
		t.Error("internal resource resolved to the injected texture")
	}
	if read != wrote {
		t.Error("Compose should read the pooled texture Scene wrote")
	}
}

func TestGraphPassErrorAbortsFrame(t *testing.T) {
	g := newTestGraph(t)
	g.AddResource(DefaultResourceDescriptor("a"))
	g.AddResource(DefaultResourceDescriptor("b"))

	boom := errors.New("boom")
	ranThird := false
	g.AddPass(pass("p0", nil, []ResourceAccess{Write("a")}))
	g.AddPass(PassDescriptor{
		ID:      "p1",
		Inputs:  []ResourceAccess{Read("a")},
		Outputs: []ResourceAccess{Write("b")},
		Execute: func(*FrameContext) error { return boom },
	})
	g.AddPass(PassDescriptor{
		ID:     "p2",
		Inputs: []ResourceAccess{Read("b")},
		Execute: func(*FrameContext) error {
			ranThird = true
			return nil
		},
	})

	if err := g.Compile(); err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	err := g.Execute(FrameInputs{})
	var perr *PassError
	if !errors.As(err, &perr) {
		t.Fatalf("Execute() error = %v, want *PassError", err)
	}
	if perr.Pass != "p1" {
		t.Errorf("PassError.Pass = %q, want p1", perr.Pass)
	}
	if !errors.Is(err, boom) {
		t.Errorf("error chain = %v, want wrapped boom", err)
	}
	if ranThird {
		t.Error("pass after the failure must not run")
	}
	if got := g.FrameIndex(); got != 0 {
		t.Errorf("FrameIndex() = %d after aborted frame, want 0", got)
	}
}

func TestGraphContextBorrowEnforcement(t *testing.T) {
	g := newTestGraph(t)
	g.AddResource(DefaultResourceDescriptor("a"))

	var leaked *FrameContext
	g.AddPass(PassDescriptor{
		ID:      "p0",
		Outputs: []ResourceAccess{Write("a")},
		Execute: func(ctx *FrameContext) error {
			leaked = ctx
			if _, err := ctx.Input("a"); !errors.Is(err, ErrUndeclaredAccess) {
				t.Errorf("Input(undeclared) = %v, want ErrUndeclaredAccess", err)
			}
			return nil
		},
	})

	if err := g.Compile(); err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if err := g.Execute(FrameInputs{}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if _, err := leaked.Output("a"); !errors.Is(err, ErrHandleReleased) {
		t.Errorf("retained context Output() = %v, want ErrHandleReleased", err)
	}
}

func TestGraphInvalidateMidFrame(t *testing.T) {
	g := newTestGraph(t)
	g.AddResource(DefaultResourceDescriptor("a"))
	g.AddResource(DefaultResourceDescriptor("b"))

	loseDevice := false
	var ran []PassID
	record := func(id PassID, fail *bool) func(*FrameContext) error {
		return func(ctx *FrameContext) error {
			ran = append(ran, id)
			if fail != nil && *fail {
				ctx.InvalidateDevice()
			}
			return nil
		}
	}
	g.AddPass(PassDescriptor{
		ID: "p0", Outputs: []ResourceAccess{Write("a")},
		Execute: record("p0", &loseDevice),
	})
	g.AddPass(PassDescriptor{
		ID: "p1", Inputs: []ResourceAccess{Read("a")}, Outputs: []ResourceAccess{Write("b")},
		Execute: record("p1", nil),
	})
	g.AddPass(PassDescriptor{
		ID: "p2", Inputs: []ResourceAccess{Read("b")},
		Execute: record("p2", nil),
	})

	if err := g.Compile(); err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if err := g.Execute(FrameInputs{}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(ran) != 3 {
		t.Fatalf("full frame ran %d passes, want 3", len(ran))
	}

	// Device dies inside the first pass: frame aborts silently.
	loseDevice = true
	ran = nil
	if err := g.Execute(FrameInputs{}); err != nil {
		t.Fatalf("Execute() during device loss = %v, want nil", err)
	}
	if len(ran) != 1 || ran[0] != "p0" {
		t.Errorf("aborted frame ran %v, want [p0]", ran)
	}

	// Later frames no-op until recovery.
	loseDevice = false
	ran = nil
	if err := g.Execute(FrameInputs{}); err != nil {
		t.Fatalf("Execute() while invalidated = %v, want nil", err)
	}
	if len(ran) != 0 {
		t.Errorf("invalidated graph ran %v, want no passes", ran)
	}

	if err := g.Reinitialize(nil); err != nil {
		t.Fatalf("Reinitialize() error = %v", err)
	}
	ran = nil
	if err := g.Execute(FrameInputs{}); err != nil {
		t.Fatalf("Execute() after reinitialize error = %v", err)
	}
	if len(ran) != 3 {
		t.Errorf("recovered frame ran %v, want all 3 passes", ran)
	}
}

func TestGraphPassTimings(t *testing.T) {
	skipIt := true
	g := newTestGraph(t)
	g.AddResource(DefaultResourceDescriptor("a"))
	g.AddPass(PassDescriptor{
		ID:      "work",
		Outputs: []ResourceAccess{Write("a")},
		Execute: func(ctx *FrameContext) error {
			ctx.RecordGPUTime(1.5)
			return nil
		},
	})
	g.AddPass(PassDescriptor{
		ID:      "skipped",
		Inputs:  []ResourceAccess{Read("a")},
		Enabled: func() bool { return !skipIt },
		Execute: noop,
	})

	g.EnableTimingQueries(true)
	if err := g.Compile(); err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if err := g.Execute(FrameInputs{}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	timings := g.PassTimings()
	if len(timings) != 2 {
		t.Fatalf("PassTimings() has %d entries, want 2", len(timings))
	}
	if timings[0].Pass != "work" || timings[0].Skipped {
		t.Errorf("timings[0] = %+v, want executed work pass", timings[0])
	}
	if timings[0].GPUMillis != 1.5 {
		t.Errorf("GPUMillis = %v, want 1.5", timings[0].GPUMillis)
	}
	if timings[1].Pass != "skipped" || !timings[1].Skipped {
		t.Errorf("timings[1] = %+v, want skipped pass", timings[1])
	}

	g.EnableTimingQueries(false)
	if got := g.PassTimings(); got != nil {
		t.Errorf("PassTimings() after disable = %v, want nil", got)
	}
}

func TestGraphRecoveryIdempotence(t *testing.T) {
	g := newTestGraph(t)
	g.AddResource(DefaultResourceDescriptor("canvas"))

	paint := func(ctx *FrameContext) error {
		tex, err := ctx.Output("canvas")
		if err != nil {
			return err
		}
		tex.(*alloc.SoftwareTexture).Clear(color.RGBA{B: 77, A: 255})
		return nil
	}
	var got color.RGBA
	g.AddPass(PassDescriptor{ID: "Paint", Outputs: []ResourceAccess{Write("canvas")}, Execute: paint})
	g.AddPass(PassDescriptor{
		ID:     "Sample",
		Inputs: []ResourceAccess{Read("canvas")},
		Execute: func(ctx *FrameContext) error {
			tex, err := ctx.Input("canvas")
			if err != nil {
				return err
			}
			got = tex.(*alloc.SoftwareTexture).Image().RGBAAt(10, 10)
			return nil
		},
	})

	if err := g.Compile(); err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if err := g.Execute(FrameInputs{}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	want := got

	g.Invalidate()
	if err := g.Reinitialize(nil); err != nil {
		t.Fatalf("Reinitialize() error = %v", err)
	}
	got = color.RGBA{}
	if err := g.Execute(FrameInputs{}); err != nil {
		t.Fatalf("Execute() after recovery error = %v", err)
	}
	if got != want {
		t.Errorf("post-recovery output = %+v, want %+v", got, want)
	}
}
