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

// Package selfcheck independently re-derives a DFG from a decoded output
// listing and verifies it against the input, exactly as spec §4.5
// describes: any failure here is an internal bug, never a user-facing
// rejection of valid input.
package selfcheck

import (
	"fmt"

	"github.com/slothy-opt/slothy/pkg/decode"
	"github.com/slothy-opt/slothy/pkg/dfg"
	"github.com/slothy-opt/slothy/pkg/isa"
)

// Input bundles everything Verify needs: the input DFG as originally built,
// the decoder's output lines, and enough of the original optimize request
// to rebuild an equivalent graph.
type Input struct {
	Original        *dfg.Graph
	Decoded         []decode.Line
	Arch            isa.Architecture
	Alias           dfg.AliasPolicy
	DeclaredInputs  map[string]isa.Class
	RequiredOutputs []string
}

// Failure reports which of spec §4.5's three checks failed.
type Failure struct {
	Check  string
	Detail string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("self-check failed (%s): %s", f.Check, f.Detail)
}

// Verify runs all three checks named in spec §4.5 and §8 invariants 1-3.
// A non-nil error means the output must be rejected as an internal bug,
// never surfaced as an ordinary input or infeasibility error.
func Verify(in Input) error {
	rebuilt, bySource, err := rebuild(in)
	if err != nil {
		return &Failure{Check: "rebuild", Detail: err.Error()}
	}

	if err := checkMultiset(in.Original, rebuilt); err != nil {
		return err
	}

	if err := checkIsomorphism(in.Original, rebuilt, bySource); err != nil {
		return err
	}

	if err := checkRenamingConsistency(in.Original, rebuilt, bySource); err != nil {
		return err
	}

	return nil
}

// rebuild re-derives a DFG from the decoded lines and returns it alongside a
// map from original SourceIndex to the corresponding rebuilt node, the
// bijection σ of spec §4.5.
func rebuild(in Input) (*dfg.Graph, map[int]dfg.NodeID, error) {
	instrs := make([]dfg.Instruction, 0, len(in.Decoded))

	for _, l := range in.Decoded {
		shape, err := in.Arch.Classify(l.Mnemonic, l.Operands)
		if err != nil {
			return nil, nil, fmt.Errorf("line %d (%s): %w", l.SourceIndex, l.Mnemonic, err)
		}

		tokens := make([]string, len(shape.Slots))
		next := 0

		for i, slot := range shape.Slots {
			if slot.Implicit {
				tokens[i] = slot.Name
				continue
			}

			tokens[i] = l.Operands[next]
			next++
		}

		instrs = append(instrs, dfg.Instruction{Shape: shape, Tokens: tokens, SourceIndex: l.SourceIndex})
	}

	g, err := dfg.Build(dfg.Input{
		Instructions:    instrs,
		DeclaredInputs:  in.DeclaredInputs,
		RequiredOutputs: in.RequiredOutputs,
		Alias:           in.Alias,
	})
	if err != nil {
		return nil, nil, err
	}

	bySource := make(map[int]dfg.NodeID, len(instrs))

	for _, n := range g.RealNodes() {
		bySource[n.SourceIndex] = n.ID
	}

	return g, bySource, nil
}

// canonicalKey is the portion of an instruction's identity that renaming
// may never change: its mnemonic and the values of its immediate slots.
func canonicalKey(n *dfg.Node) string {
	key := n.Shape.Mnemonic

	for i, slot := range n.Shape.Slots {
		if slot.Role == isa.RoleImmediate {
			key += "," + n.Operands[i]
		}
	}

	return key
}

// checkMultiset implements spec §8 invariant 1: the output is a permutation
// of the input instructions under (mnemonic, immediates, shape) equality.
func checkMultiset(original, rebuilt *dfg.Graph) error {
	counts := make(map[string]int)

	for _, n := range original.RealNodes() {
		counts[canonicalKey(n)]++
	}

	for _, n := range rebuilt.RealNodes() {
		counts[canonicalKey(n)]--
	}

	for key, c := range counts {
		if c != 0 {
			return &Failure{Check: "multiset", Detail: fmt.Sprintf("instruction %q count mismatch by %d", key, c)}
		}
	}

	return nil
}

// checkIsomorphism implements spec §8 invariant 2: for every input edge
// p -> c between real nodes, an edge σ(p) -> σ(c) exists in the rebuilt
// graph, where σ is the bijection induced by SourceIndex.
func checkIsomorphism(original, rebuilt *dfg.Graph, bySource map[int]dfg.NodeID) error {
	realOriginal := make(map[dfg.NodeID]bool)
	for _, n := range original.RealNodes() {
		realOriginal[n.ID] = true
	}

	for _, e := range original.Edges {
		if !realOriginal[e.Producer] || !realOriginal[e.Consumer] {
			continue
		}

		producerSrc := original.Node(e.Producer).SourceIndex
		consumerSrc := original.Node(e.Consumer).SourceIndex

		outProducer, ok1 := bySource[producerSrc]
		outConsumer, ok2 := bySource[consumerSrc]

		if !ok1 || !ok2 {
			return &Failure{Check: "isomorphism", Detail: fmt.Sprintf("node for source index %d or %d missing in output", producerSrc, consumerSrc)}
		}

		if !hasEdge(rebuilt, outProducer, outConsumer, e.Kind) {
			return &Failure{
				Check: "isomorphism",
				Detail: fmt.Sprintf("expected edge %s->%s (kind %s) corresponding to input edge on source lines %d->%d",
					rebuilt.Node(outProducer), rebuilt.Node(outConsumer), e.Kind, producerSrc, consumerSrc),
			}
		}
	}

	return nil
}

func hasEdge(g *dfg.Graph, producer, consumer dfg.NodeID, kind dfg.EdgeKind) bool {
	for _, e := range g.OutEdges(producer) {
		if e.Consumer == consumer && e.Kind == kind {
			return true
		}
	}

	return false
}

// checkRenamingConsistency implements spec §8 invariant 3: every occurrence
// within one live range of a symbolic register in the input uses the same
// architectural register in the output. A live range is exactly one
// producer's write slot plus every read slot it feeds via a non-memory
// edge.
func checkRenamingConsistency(original, rebuilt *dfg.Graph, bySource map[int]dfg.NodeID) error {
	realOriginal := make(map[dfg.NodeID]bool)
	for _, n := range original.RealNodes() {
		realOriginal[n.ID] = true
	}

	outputToken := func(nodeID dfg.NodeID, slotName string) (string, bool) {
		n := rebuilt.Node(nodeID)
		if n.Shape == nil {
			return "", false
		}

		for i, slot := range n.Shape.Slots {
			if slot.Name == slotName {
				return n.Operands[i], true
			}
		}

		return "", false
	}

	for _, e := range original.Edges {
		if e.Kind == dfg.EdgeMemory || !realOriginal[e.Producer] || !realOriginal[e.Consumer] {
			continue
		}

		producerSrc := original.Node(e.Producer).SourceIndex
		consumerSrc := original.Node(e.Consumer).SourceIndex

		outProducer, ok1 := bySource[producerSrc]
		outConsumer, ok2 := bySource[consumerSrc]

		if !ok1 || !ok2 {
			continue // already reported by checkIsomorphism
		}

		producerReg, ok1 := outputToken(outProducer, e.ProducerSlot)
		consumerReg, ok2 := outputToken(outConsumer, e.ConsumerSlot)

		if ok1 && ok2 && producerReg != consumerReg {
			return &Failure{
				Check: "renaming",
				Detail: fmt.Sprintf("source line %d writes %s but source line %d reads %s for the same live range",
					producerSrc, producerReg, consumerSrc, consumerReg),
			}
		}
	}

	return nil
}
