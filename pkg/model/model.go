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

// Package model lowers a dfg.Graph plus an architecture/microarchitecture
// pair into the constraint-satisfaction Problem consumed by pkg/solver (spec
// §4.2). It owns the variable and constraint families but not their
// resolution: nothing here searches for an assignment.
package model

import (
	"fmt"
	"sort"

	"github.com/slothy-opt/slothy/pkg/dfg"
	"github.com/slothy-opt/slothy/pkg/isa"
)

// Objective selects what the solver optimizes for, within a fixed stalls
// budget (spec §4.2, "Objective selection").
type Objective uint8

const (
	// ObjectiveNone accepts any satisfying assignment.
	ObjectiveNone Objective = iota
	// ObjectiveMinimizeEarly minimizes the number of early (pipelined)
	// instructions; only meaningful when Pipelining is set.
	ObjectiveMinimizeEarly
	// ObjectiveMinimizeMaxCycle minimizes the latest issue cycle used.
	ObjectiveMinimizeMaxCycle
)

// Pipelining carries the software-pipelining variables and the one
// constraint family unique to loop mode (spec §4.2, "Software pipelining
// extensions"). Nil on a straight-line Problem.
type Pipelining struct {
	// KernelLength is the position count of one emitted kernel iteration.
	KernelLength int
	// Iteration assigns each node its iter[n] ∈ {0,1}: which of the two
	// conceptually replicated copies of the loop body it belongs to.
	Iteration map[dfg.NodeID]int
	// CrossIteration lists the edges that cross the loop backedge: a value
	// written in one iteration and consumed by the next.
	CrossIteration []dfg.Edge
}

// PrePin fixes a specific slot of a specific node to an architectural
// register, bypassing allocation (spec §4.2, constraint family 5).
type PrePin struct {
	Node     dfg.NodeID
	Slot     string
	Register string
}

// Problem is the fully lowered CP model for one solver attempt: one stalls
// budget, one objective, everything the solver needs and nothing it must
// infer.
type Problem struct {
	Graph *dfg.Graph
	Arch  isa.Architecture
	Uarch isa.Microarchitecture

	// BaselineLength is codesize: the number of real (non-virtual) nodes.
	BaselineLength int
	// StallsBudget is the slack added on top of BaselineLength for cycle[*]
	// (spec §4.2, constraint family 7).
	StallsBudget int

	// PrePinned fixes the listed (node, slot) pairs to specific
	// architectural registers.
	PrePinned []PrePin

	Objective  Objective
	Pipelining *Pipelining
}

// EncodeConfig supplies the pieces of Problem that don't come directly off
// the graph.
type EncodeConfig struct {
	StallsBudget int
	Objective    Objective
	Pipelining   *Pipelining
	// RegisterAliases fixes named symbolic registers to specific
	// architectural ones (the source's ".reg <symbolic> <architectural>"
	// pragmas, spec §6), bypassing allocation wherever that name occurs.
	RegisterAliases map[string]string
}

// Encode lowers g into a Problem (spec §4.2). It derives pre-pinning from
// four sources: the graph's virtual source (declared inputs), the virtual
// sink (required outputs), any isa.Slot.Pin named by the architecture model
// (e.g. a link register), and any EncodeConfig.RegisterAliases naming a
// symbolic register's operand slots directly.
func Encode(g *dfg.Graph, arch isa.Architecture, uarch isa.Microarchitecture, cfg EncodeConfig) (*Problem, error) {
	if cfg.StallsBudget < 0 {
		return nil, fmt.Errorf("stalls budget must be non-negative, got %d", cfg.StallsBudget)
	}

	p := &Problem{
		Graph:          g,
		Arch:           arch,
		Uarch:          uarch,
		BaselineLength: len(g.RealNodes()),
		StallsBudget:   cfg.StallsBudget,
		Objective:      cfg.Objective,
		Pipelining:     cfg.Pipelining,
	}

	for _, e := range g.OutEdges(g.Source) {
		// e.ProducerSlot is the declared input's own name; it pins whichever
		// real node/slot reads it to that same name. A symbolic declared
		// input (one not among Arch.Registers) is therefore kept as written
		// and is not renamed to an architectural register.
		p.PrePinned = append(p.PrePinned, PrePin{Node: e.Consumer, Slot: e.ConsumerSlot, Register: e.ProducerSlot})
	}

	for _, e := range g.InEdges(g.Sink) {
		p.PrePinned = append(p.PrePinned, PrePin{Node: e.Producer, Slot: e.ProducerSlot, Register: e.ConsumerSlot})
	}

	for _, n := range g.RealNodes() {
		if n.Shape == nil {
			continue
		}

		for _, slot := range n.Shape.Slots {
			if slot.Pin != "" {
				p.PrePinned = append(p.PrePinned, PrePin{Node: n.ID, Slot: slot.Name, Register: slot.Pin})
			}
		}
	}

	if len(cfg.RegisterAliases) > 0 {
		for _, n := range g.RealNodes() {
			if n.Shape == nil {
				continue
			}

			for i, slot := range n.Shape.Slots {
				if reg, ok := cfg.RegisterAliases[n.Operands[i]]; ok {
					p.PrePinned = append(p.PrePinned, PrePin{Node: n.ID, Slot: slot.Name, Register: reg})
				}
			}
		}
	}

	sort.Slice(p.PrePinned, func(i, j int) bool {
		if p.PrePinned[i].Node != p.PrePinned[j].Node {
			return p.PrePinned[i].Node < p.PrePinned[j].Node
		}

		return p.PrePinned[i].Slot < p.PrePinned[j].Slot
	})

	return p, nil
}

// InPlacePairs returns, for every node with an in-place destination
// constraint (spec §3 invariant 4, §4.2 constraint family 6), the pair of
// slot names that must share a register.
func (p *Problem) InPlacePairs(n *dfg.Node) [][2]string {
	if n.Shape == nil {
		return nil
	}

	var pairs [][2]string

	for _, slot := range n.Shape.Slots {
		if slot.InPlaceOf != "" {
			pairs = append(pairs, [2]string{slot.Name, slot.InPlaceOf})
		}
	}

	return pairs
}

// MaxCycle is the highest permissible cycle[*] value under the stalls
// budget (spec §4.2, constraint family 7).
func (p *Problem) MaxCycle() int {
	return p.BaselineLength - 1 + p.StallsBudget
}
