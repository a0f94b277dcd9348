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
package dfg

import "github.com/slothy-opt/slothy/pkg/isa"

// Input bundles everything the builder needs for one straight-line body
// (spec §4.1, "Inputs").
type Input struct {
	Instructions []Instruction
	// DeclaredInputs are registers considered live on entry, pre-pinned to
	// the virtual source node.
	DeclaredInputs map[string]isa.Class
	// RequiredOutputs are registers whose final value must be connected to
	// the virtual sink.
	RequiredOutputs []string
	// TypingHints resolves what would otherwise be a register-class
	// ambiguity (spec §4.1, §9).
	TypingHints map[string]isa.Class
	// Alias decides whether two memory references are provably
	// non-aliasing; see DefaultAliasPolicy.
	Alias AliasPolicy
}

// producerSlot is local bookkeeping during Build: which write slot of which
// node most recently produced a given register name.
type producerSlot struct {
	node NodeID
	slot string
}

// Build runs the single left-to-right pass of spec §4.1, producing a DAG
// with virtual source and sink nodes.
func Build(in Input) (*Graph, error) {
	g := newGraph()

	source := &Node{ID: 0, SourceIndex: -1, Virtual: "source"}
	g.addNode(source)
	g.Source = source.ID

	producer := make(map[string]producerSlot, len(in.DeclaredInputs))

	for name, class := range in.DeclaredInputs {
		if err := resolveClass(g, in.TypingHints, name, class); err != nil {
			return nil, err
		}

		producer[name] = producerSlot{node: g.Source, slot: name}
	}

	type memEntry struct {
		node NodeID
		ref  MemRef
	}

	var memOps []memEntry

	for _, instr := range in.Instructions {
		id := NodeID(len(g.Nodes))
		shape := instr.Shape
		node := &Node{ID: id, SourceIndex: instr.SourceIndex, Shape: &shape, Operands: instr.Tokens}
		g.addNode(node)

		// Reads (including the read half of read-write slots) consult the
		// producer map *before* any write below updates it.
		for i, slot := range shape.Slots {
			if !slot.Role.Reads() {
				continue
			}

			token := instr.Tokens[i]
			regName := token

			// Address slots carry the full "[base]" / "[base,#off]" syntax
			// as their token; only the base register participates in
			// producer/consumer tracking.
			if slot.Role == isa.RoleAddressBase || slot.Role == isa.RoleAddressOffset {
				regName = ParseMemRef(token, false).Base
			}

			if err := resolveClass(g, in.TypingHints, regName, slot.Class); err != nil {
				return nil, err
			}

			prod, ok := producer[regName]
			if !ok {
				return nil, &UndefinedRegisterError{Register: regName, SourceIndex: instr.SourceIndex}
			}

			g.addEdge(Edge{
				Producer: prod.node, ProducerSlot: prod.slot,
				Consumer: id, ConsumerSlot: slot.Name,
				Kind: edgeKindFor(slot),
			})
		}

		if shape.IsMemory {
			ref := ParseMemRef(addressToken(instr), shape.IsLoad)

			for i := len(memOps) - 1; i >= 0; i-- {
				if !in.Alias(memOps[i].ref, ref) {
					g.addEdge(Edge{Producer: memOps[i].node, Consumer: id, Kind: EdgeMemory})
					break
				}
			}

			memOps = append(memOps, memEntry{node: id, ref: ref})
		}

		// Writes (including the write half of read-write slots) become the
		// new producer.
		for i, slot := range shape.Slots {
			if !slot.Role.Writes() {
				continue
			}

			token := instr.Tokens[i]

			if err := resolveClass(g, in.TypingHints, token, slot.Class); err != nil {
				return nil, err
			}

			producer[token] = producerSlot{node: id, slot: slot.Name}
		}
	}

	sink := &Node{ID: NodeID(len(g.Nodes)), SourceIndex: -1, Virtual: "sink"}
	g.addNode(sink)
	g.Sink = sink.ID

	for _, name := range in.RequiredOutputs {
		prod, ok := producer[name]
		if !ok {
			return nil, &UndefinedOutputError{Register: name}
		}

		g.addEdge(Edge{
			Producer: prod.node, ProducerSlot: prod.slot,
			Consumer: sink.ID, ConsumerSlot: name,
			Kind: EdgeRAW,
		})
	}

	return g, nil
}

func edgeKindFor(slot isa.Slot) EdgeKind {
	switch {
	case slot.Class == isa.Flag:
		return EdgeFlag
	case slot.Role == isa.RoleAddressBase || slot.Role == isa.RoleAddressOffset:
		return EdgeAddress
	default:
		return EdgeRAW
	}
}

// resolveClass unifies the class a register name is used at across the
// whole body (spec §9, "Dynamic typing of registers").  A typing hint always
// wins; absent one, every use must agree or the body is rejected.
func resolveClass(g *Graph, hints map[string]isa.Class, name string, class isa.Class) error {
	if hint, ok := hints[name]; ok {
		g.RegisterClass[name] = hint
		return nil
	}

	if existing, ok := g.RegisterClass[name]; ok {
		if existing != class {
			return &AmbiguousClassError{Register: name, First: existing, Second: class}
		}

		return nil
	}

	g.RegisterClass[name] = class

	return nil
}
