// Copyright Consensys Software Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with
// the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on
// an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the License for the
// specific language governing permissions and limitations under the License.
package solver

import (
	"sort"

	"github.com/slothy-opt/slothy/pkg/dfg"
	"github.com/slothy-opt/slothy/pkg/isa"
	"github.com/slothy-opt/slothy/pkg/model"
)

// slotKey identifies one operand slot of one node.
type slotKey struct {
	node dfg.NodeID
	slot string
}

// unionFind merges slotKeys that constraint family 4/6 (RAW-linked slots,
// in-place destinations) require to share a single architectural register.
type unionFind struct {
	parent map[slotKey]slotKey
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[slotKey]slotKey)}
}

func (u *unionFind) find(k slotKey) slotKey {
	if _, ok := u.parent[k]; !ok {
		u.parent[k] = k
		return k
	}

	if u.parent[k] != k {
		u.parent[k] = u.find(u.parent[k])
	}

	return u.parent[k]
}

func (u *unionFind) union(a, b slotKey) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[ra] = rb
	}
}

// regGroup is one union-find equivalence class: every slot that must end up
// with the same architectural register, plus the interval it is live over.
type regGroup struct {
	class  isa.Class
	keys   []slotKey
	pinned string // "" if unpinned
	start  int
	end    int
}

// allocateRegisters implements constraint families 4-6 of spec §4.2 against
// a fixed cycle assignment: union equality-linked slots, compute each
// group's live interval, then colour groups with disjoint intervals onto
// the same architectural register via a linear scan.
func allocateRegisters(p *model.Problem, cycle map[dfg.NodeID]int) (map[dfg.NodeID]map[string]string, bool) {
	uf := newUnionFind()
	class := make(map[slotKey]isa.Class)

	real := make(map[dfg.NodeID]bool)
	for _, n := range p.Graph.RealNodes() {
		real[n.ID] = true
	}

	for _, n := range p.Graph.RealNodes() {
		if n.Shape == nil {
			continue
		}

		for _, slot := range n.Shape.Slots {
			class[slotKey{n.ID, slot.Name}] = slot.Class
		}

		for _, pair := range p.InPlacePairs(n) {
			uf.union(slotKey{n.ID, pair[0]}, slotKey{n.ID, pair[1]})
		}
	}

	for _, e := range p.Graph.Edges {
		if e.Kind == dfg.EdgeMemory {
			continue
		}

		if !real[e.Producer] || !real[e.Consumer] {
			continue
		}

		uf.union(slotKey{e.Producer, e.ProducerSlot}, slotKey{e.Consumer, e.ConsumerSlot})
	}

	// Every real reader of one declared input consumes the same value, so
	// their slots share a register just as a real producer's readers do.
	firstReader := make(map[string]slotKey)

	for _, e := range p.Graph.OutEdges(p.Graph.Source) {
		if e.Kind == dfg.EdgeMemory || !real[e.Consumer] {
			continue
		}

		k := slotKey{e.Consumer, e.ConsumerSlot}
		if prev, ok := firstReader[e.ProducerSlot]; ok {
			uf.union(prev, k)
		} else {
			firstReader[e.ProducerSlot] = k
		}
	}

	groups := make(map[slotKey]*regGroup)

	noteKey := func(k slotKey, atCycle int, isWrite bool) {
		root := uf.find(k)

		g, ok := groups[root]
		if !ok {
			g = &regGroup{class: class[k], start: atCycle, end: atCycle}
			groups[root] = g
		}

		g.keys = append(g.keys, k)

		if isWrite && atCycle < g.start {
			g.start = atCycle
		}

		if atCycle > g.end {
			g.end = atCycle
		}
	}

	for _, n := range p.Graph.RealNodes() {
		if n.Shape == nil {
			continue
		}

		c := cycle[n.ID]

		for _, slot := range n.Shape.Slots {
			noteKey(slotKey{n.ID, slot.Name}, c, slot.Role.Writes())
		}
	}

	// A value pinned by a declared input is live from before the schedule
	// begins; one pinned to a required output must stay live until it ends.
	for _, e := range p.Graph.OutEdges(p.Graph.Source) {
		if !real[e.Consumer] {
			continue
		}

		if g, ok := groups[uf.find(slotKey{e.Consumer, e.ConsumerSlot})]; ok && g.start > 0 {
			g.start = 0
		}
	}

	for _, e := range p.Graph.InEdges(p.Graph.Sink) {
		if !real[e.Producer] {
			continue
		}

		if g, ok := groups[uf.find(slotKey{e.Producer, e.ProducerSlot})]; ok && g.end < p.MaxCycle() {
			g.end = p.MaxCycle()
		}
	}

	for _, pin := range p.PrePinned {
		if !real[pin.Node] {
			continue
		}

		root := uf.find(slotKey{pin.Node, pin.Slot})
		if g, ok := groups[root]; ok {
			g.pinned = pin.Register
		}
	}

	ordered := make([]*regGroup, 0, len(groups))
	for _, g := range groups {
		ordered = append(ordered, g)
	}

	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].start != ordered[j].start {
			return ordered[i].start < ordered[j].start
		}

		return ordered[i].end < ordered[j].end
	})

	type active struct {
		register string
		end      int
	}

	used := make(map[isa.Class][]active)
	assigned := make(map[*regGroup]string, len(ordered))

	// pinnedOverlap reports whether another group pinned to r is live at
	// some point of g's interval.
	pinnedOverlap := func(r string, g *regGroup) bool {
		for _, o := range ordered {
			if o != g && o.pinned == r && o.start <= g.end && g.start <= o.end {
				return true
			}
		}

		return false
	}

	for _, g := range ordered {
		pool := p.Arch.Registers(g.class)
		taken := make(map[string]bool)

		var live []active

		for _, a := range used[g.class] {
			if a.end >= g.start {
				live = append(live, a)
				taken[a.register] = true
			}
		}

		used[g.class] = live

		if g.pinned != "" {
			if taken[g.pinned] {
				return nil, false
			}

			assigned[g] = g.pinned
			used[g.class] = append(used[g.class], active{register: g.pinned, end: g.end})

			continue
		}

		var chosen string

		for _, r := range pool {
			if !taken[r] && !pinnedOverlap(r, g) {
				chosen = r
				break
			}
		}

		if chosen == "" {
			return nil, false
		}

		assigned[g] = chosen
		used[g.class] = append(used[g.class], active{register: chosen, end: g.end})
	}

	out := make(map[dfg.NodeID]map[string]string)

	for _, g := range groups {
		reg := assigned[g]

		for _, k := range g.keys {
			if out[k.node] == nil {
				out[k.node] = make(map[string]string)
			}

			out[k.node][k.slot] = reg
		}
	}

	return out, true
}
