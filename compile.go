// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

import (
	"fmt"
	"hash/fnv"
	"sort"
)

// Compile validates the declared resources and passes and produces an
// immutable execution plan. It is a pure function of its inputs: no hidden
// state, and identical declarations compile to identical plans.
//
// The algorithm runs in phases:
//  1. validation (IDs, size policies, dangling references)
//  2. hazard analysis (feedback accesses become ping-pong allocations)
//  3. dependency edges (writer before reader) and Kahn's topological sort
//     with a stable declaration-order tie-break
//  4. lifetime analysis and greedy first-fit aliasing of transients
//  5. optional WGSL shader precompilation per pass
//
// All failure modes surface here, never mid-frame: *CycleError,
// *UnknownResourceError, *DuplicateIDError, *InvalidSizePolicyError,
// ErrExternalWrite, ErrNeverWritten, *ShaderError.
func Compile(resources []ResourceDescriptor, passes []PassDescriptor) (*CompiledGraph, error) {
	resByID := make(map[ResourceID]ResourceDescriptor, len(resources))
	for _, r := range resources {
		if _, dup := resByID[r.ID]; dup {
			return nil, &DuplicateIDError{Kind: "resource", ID: string(r.ID)}
		}
		if r.Persistent && r.External {
			return nil, fmt.Errorf("framegraph: resource %q is both persistent and external", r.ID)
		}
		if reason := r.Size.validate(); reason != "" {
			return nil, &InvalidSizePolicyError{Resource: r.ID, Reason: reason}
		}
		resByID[r.ID] = r
	}

	passIndex := make(map[PassID]int, len(passes))
	for i := range passes {
		p := &passes[i]
		if _, dup := passIndex[p.ID]; dup {
			return nil, &DuplicateIDError{Kind: "pass", ID: string(p.ID)}
		}
		passIndex[p.ID] = i
	}

	// Normalize accesses and run the hazard analysis. A resource that one
	// pass both reads and writes is a feedback access, whether declared as
	// ReadWrite or as separate Read and Write entries; either way it is
	// rewritten to a ping-pong binding (read generation g, write g^1).
	pingPong := make(map[ResourceID]bool)
	norm := make([]normalizedPass, len(passes))
	for i := range passes {
		p := &passes[i]
		var bad error
		reads := make(map[ResourceID]bool)
		writes := make(map[ResourceID]bool)
		order := make([]ResourceID, 0, len(p.Inputs)+len(p.Outputs))
		p.accesses(func(a ResourceAccess) {
			if bad != nil {
				return
			}
			desc, known := resByID[a.Resource]
			if !known {
				bad = &UnknownResourceError{Pass: p.ID, Resource: a.Resource}
				return
			}
			if desc.External && a.Mode != AccessRead {
				bad = fmt.Errorf("%w: pass %q declares %s on %q", ErrExternalWrite, p.ID, a.Mode, a.Resource)
				return
			}
			if !reads[a.Resource] && !writes[a.Resource] {
				order = append(order, a.Resource)
			}
			switch a.Mode {
			case AccessRead:
				reads[a.Resource] = true
			case AccessWrite:
				writes[a.Resource] = true
			case AccessReadWrite:
				reads[a.Resource] = true
				writes[a.Resource] = true
			default:
				bad = fmt.Errorf("framegraph: pass %q: invalid access mode on %q", p.ID, a.Resource)
			}
		})
		if bad != nil {
			return nil, bad
		}

		var np normalizedPass
		for _, id := range order {
			switch {
			case reads[id] && writes[id]:
				pingPong[id] = true
				np.feedback = append(np.feedback, id)
				np.reads = append(np.reads, id)
				np.writes = append(np.writes, id)
			case writes[id]:
				np.writes = append(np.writes, id)
			default:
				np.reads = append(np.reads, id)
			}
		}
		norm[i] = np
	}

	// Build dependency edges: writer before reader, per resource. External
	// resources are permanently produced and contribute no edge. Feedback
	// reads see the previous frame's generation, so they do not depend on
	// this frame's writers either -- only plain reads do.
	writers := make(map[ResourceID][]int)
	readers := make(map[ResourceID][]int)
	for i := range norm {
		for _, id := range norm[i].writes {
			writers[id] = append(writers[id], i)
		}
		for _, id := range norm[i].reads {
			if !containsID(norm[i].feedback, id) {
				readers[id] = append(readers[id], i)
			}
		}
	}

	for _, r := range resources {
		if r.External || r.Persistent || pingPong[r.ID] {
			continue
		}
		if len(readers[r.ID]) > 0 && len(writers[r.ID]) == 0 {
			return nil, fmt.Errorf("%w: %q", ErrNeverWritten, r.ID)
		}
	}

	succ := make([][]int, len(passes))
	indegree := make([]int, len(passes))
	edgeRes := make(map[[2]int][]ResourceID)
	for _, r := range resources {
		if r.External {
			continue
		}
		for _, w := range writers[r.ID] {
			for _, rd := range readers[r.ID] {
				if w == rd {
					continue
				}
				key := [2]int{w, rd}
				if len(edgeRes[key]) == 0 {
					succ[w] = append(succ[w], rd)
					indegree[rd]++
				}
				edgeRes[key] = append(edgeRes[key], r.ID)
			}
		}
	}

	order, err := topoSort(passes, succ, indegree, edgeRes)
	if err != nil {
		return nil, err
	}

	cg := &CompiledGraph{
		order:     make([]PassID, len(order)),
		passes:    make([]compiledPass, len(order)),
		passIndex: make(map[PassID]int, len(order)),
		resources: resByID,
		plan:      make(map[ResourceID]Allocation),
		lifetimes: make(map[ResourceID]Lifetime),
		pingPong:  pingPong,
	}
	orderIdx := make([]int, len(passes)) // declaration index -> order index
	for oi, di := range order {
		p := &passes[di]
		cg.order[oi] = p.ID
		cg.passIndex[p.ID] = oi
		cg.passes[oi] = compiledPass{
			id:       p.ID,
			enabled:  p.Enabled,
			execute:  p.Execute,
			reads:    norm[di].reads,
			writes:   norm[di].writes,
			feedback: norm[di].feedback,
		}
		orderIdx[di] = oi
	}

	// Lifetime analysis. Intervals span every declared access, including
	// accesses of currently disabled passes: re-enabling a pass that only
	// touches live resources must not invalidate the aliasing below.
	for _, r := range resources {
		if r.External {
			continue
		}
		first, last := -1, -1
		for _, w := range writers[r.ID] {
			oi := orderIdx[w]
			if first < 0 || oi < first {
				first = oi
			}
			if oi > last {
				last = oi
			}
		}
		for _, rd := range readers[r.ID] {
			oi := orderIdx[rd]
			if oi > last {
				last = oi
			}
		}
		if first >= 0 {
			cg.lifetimes[r.ID] = Lifetime{FirstWriter: first, LastReader: last}
		}
	}

	// Live set: resources touched by passes enabled right now. Disabled
	// passes keep their declarations but allocate nothing exclusive.
	cg.live = liveResourceSet(resources, passes)
	cg.fingerprint = fingerprintIDs(cg.live)
	liveSet := make(map[ResourceID]bool, len(cg.live))
	for _, id := range cg.live {
		liveSet[id] = true
	}

	buildAllocationPlan(cg, resources, liveSet)

	// Shader precompilation: WGSL sources become SPIR-V once per compile,
	// not per frame.
	for oi, di := range order {
		src := passes[di].ShaderWGSL
		if src == "" {
			continue
		}
		spirv, err := compileWGSL(src)
		if err != nil {
			return nil, &ShaderError{Pass: passes[di].ID, Err: err}
		}
		cg.passes[oi].shader = spirv
	}

	Logger().Debug("graph compiled",
		"passes", len(cg.order), "resources", len(resources),
		"live", len(cg.live), "slots", len(cg.slots), "pingpong", len(pingPong))

	return cg, nil
}

// normalizedPass is a pass with its accesses split into reads, writes and
// feedback (both) sets, preserving declaration order.
type normalizedPass struct {
	reads    []ResourceID
	writes   []ResourceID
	feedback []ResourceID
}

// topoSort runs Kahn's algorithm over the declared passes. Ties are broken
// by declaration order, which makes the result deterministic. If nodes
// remain unprocessed, a cycle exists and the minimal offending cycle is
// reported.
func topoSort(passes []PassDescriptor, succ [][]int, indegree []int, edgeRes map[[2]int][]ResourceID) ([]int, error) {
	n := len(passes)
	deg := make([]int, n)
	copy(deg, indegree)
	done := make([]bool, n)

	order := make([]int, 0, n)
	for len(order) < n {
		next := -1
		for i := 0; i < n; i++ {
			if !done[i] && deg[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			return nil, extractCycle(passes, succ, done, edgeRes)
		}
		done[next] = true
		order = append(order, next)
		for _, s := range succ[next] {
			deg[s]--
		}
	}
	return order, nil
}

// extractCycle walks the unprocessed remainder of the graph to find one
// minimal cycle for the error report.
func extractCycle(passes []PassDescriptor, succ [][]int, done []bool, edgeRes map[[2]int][]ResourceID) error {
	// When the sort stalls, every unprocessed node still has an
	// unprocessed predecessor (its indegree is nonzero), so walking
	// predecessors must revisit a node and close a cycle. The same is not
	// true of successors: a sink fed by a cycle has none.
	pred := make([][]int, len(passes))
	for u, ss := range succ {
		if done[u] {
			continue
		}
		for _, v := range ss {
			if !done[v] {
				pred[v] = append(pred[v], u)
			}
		}
	}

	start := -1
	for i := range passes {
		if !done[i] {
			start = i
			break
		}
	}

	pos := make(map[int]int)
	path := []int{}
	cur := start
	for {
		if at, seen := pos[cur]; seen {
			path = path[at:]
			break
		}
		pos[cur] = len(path)
		path = append(path, cur)

		next := -1
		for _, p := range pred[cur] {
			if next < 0 || p < next {
				next = p
			}
		}
		cur = next
	}

	// The walk went against the edges; reverse into dependency order.
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	cerr := &CycleError{}
	seenRes := make(map[ResourceID]bool)
	for i, di := range path {
		cerr.Passes = append(cerr.Passes, passes[di].ID)
		nxt := path[(i+1)%len(path)]
		for _, id := range edgeRes[[2]int{di, nxt}] {
			if !seenRes[id] {
				seenRes[id] = true
				cerr.Resources = append(cerr.Resources, id)
			}
		}
	}
	return cerr
}

// buildAllocationPlan assigns physical slots: a dedicated slot per live
// persistent or ping-pong resource, and shared slots for transients whose
// lifetimes do not overlap (greedy first-fit ordered by interval start).
func buildAllocationPlan(cg *CompiledGraph, resources []ResourceDescriptor, live map[ResourceID]bool) {
	type group struct {
		spec slotSpec
		end  int // running max LastReader of the members
	}
	var groups []*group

	var candidates []ResourceDescriptor
	for _, r := range resources {
		if !live[r.ID] || r.External {
			continue
		}
		if r.Persistent || cg.pingPong[r.ID] {
			continue
		}
		candidates = append(candidates, r)
	}
	// Stable order by interval start; declaration order settles ties.
	sort.SliceStable(candidates, func(i, j int) bool {
		return cg.lifetimes[candidates[i].ID].FirstWriter < cg.lifetimes[candidates[j].ID].FirstWriter
	})

	for i := range candidates {
		r := candidates[i]
		lt := cg.lifetimes[r.ID]
		placed := false
		for gi, g := range groups {
			if g.end < lt.FirstWriter && r.compatibleWith(&g.spec.desc) {
				g.spec.members = append(g.spec.members, r.ID)
				g.end = lt.LastReader
				cg.plan[r.ID] = Allocation{Slot: -1, AliasGroup: gi} // slot fixed below
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, &group{
				spec: slotSpec{desc: r, members: []ResourceID{r.ID}},
				end:  cg.lifetimes[r.ID].LastReader,
			})
			cg.plan[r.ID] = Allocation{Slot: -1, AliasGroup: len(groups) - 1}
		}
	}

	for _, g := range groups {
		cg.slots = append(cg.slots, g.spec)
	}
	for id, a := range cg.plan {
		a.Slot = a.AliasGroup
		cg.plan[id] = a
	}

	// Dedicated slots, declaration order.
	for _, r := range resources {
		if !live[r.ID] || r.External {
			continue
		}
		if !r.Persistent && !cg.pingPong[r.ID] {
			continue
		}
		cg.slots = append(cg.slots, slotSpec{
			desc:     r,
			members:  []ResourceID{r.ID},
			pingPong: cg.pingPong[r.ID],
		})
		cg.plan[r.ID] = Allocation{Slot: len(cg.slots) - 1, AliasGroup: -1}
	}
}

// liveResourceSet returns the resources referenced by at least one
// currently enabled pass, in resource declaration order. External
// resources participate: importing or dropping one changes the plan the
// executor must bind against.
func liveResourceSet(resources []ResourceDescriptor, passes []PassDescriptor) []ResourceID {
	touched := make(map[ResourceID]bool)
	for i := range passes {
		p := &passes[i]
		if !p.enabled() {
			continue
		}
		p.accesses(func(a ResourceAccess) {
			touched[a.Resource] = true
		})
	}
	var live []ResourceID
	for _, r := range resources {
		if touched[r.ID] {
			live = append(live, r.ID)
		}
	}
	return live
}

// fingerprintIDs hashes an ordered resource ID list with FNV-1a.
func fingerprintIDs(ids []ResourceID) uint64 {
	h := fnv.New64a()
	for _, id := range ids {
		_, _ = h.Write([]byte(id)) // fnv.Write never returns an error
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}

// containsID reports whether a small ID slice contains id.
func containsID(ids []ResourceID, id ResourceID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
