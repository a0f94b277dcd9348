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

// Package dfg builds the labelled data-flow graph described in spec §3/§4.1:
// a DAG whose nodes wrap one instruction each, with producer/consumer edges
// per register and a conservative memory-alias edge family.  Once built, a
// node's dependencies are entirely graph-local — register *names* play no
// further role (spec §3 invariant 3).
package dfg

import (
	"fmt"

	"github.com/slothy-opt/slothy/pkg/isa"
)

// NodeID identifies a node within one Graph.
type NodeID int

// EdgeKind classifies why a DFG edge exists.
type EdgeKind uint8

// The edge kinds named in spec §3.
const (
	EdgeRAW EdgeKind = iota
	EdgeMemory
	EdgeFlag
	EdgeAddress
)

// String renders an edge kind for diagnostics and model dumps.
func (k EdgeKind) String() string {
	switch k {
	case EdgeRAW:
		return "raw"
	case EdgeMemory:
		return "mem"
	case EdgeFlag:
		return "flag"
	case EdgeAddress:
		return "addr"
	default:
		return "?"
	}
}

// Node wraps one instruction (or, for the two distinguished virtual nodes,
// nothing at all).
type Node struct {
	ID NodeID
	// SourceIndex is the node's position in the original instruction stream,
	// or -1 for the virtual source/sink.
	SourceIndex int
	// Shape is nil for the virtual source/sink nodes.
	Shape *isa.Shape
	// Operands holds one token per entry of Shape.Slots, in slot order: the
	// raw source token for an explicit slot, or the slot's own Name for an
	// implicit one; nil for virtual nodes.
	Operands []string
	// Virtual annotates the two virtual nodes; "" for ordinary nodes.
	Virtual string // "source" | "sink" | ""
}

// IsVirtual reports whether this is the graph's source or sink node.
func (n *Node) IsVirtual() bool {
	return n.Virtual != ""
}

// Edge is a directed, typed dependency between two node operand slots.
type Edge struct {
	Producer     NodeID
	ProducerSlot string
	Consumer     NodeID
	ConsumerSlot string
	Kind         EdgeKind
}

// Graph is an immutable DAG of Nodes and Edges built once per optimize call,
// plus the virtual source/sink node ids (spec §3, "DFG node").
type Graph struct {
	Nodes  []*Node
	Edges  []Edge
	Source NodeID
	Sink   NodeID
	// RegisterClass records the inferred or pinned class of every symbolic
	// or architectural register name that appears in the graph.
	RegisterClass map[string]isa.Class

	out map[NodeID][]int
	in  map[NodeID][]int
}

func newGraph() *Graph {
	return &Graph{RegisterClass: make(map[string]isa.Class), out: make(map[NodeID][]int), in: make(map[NodeID][]int)}
}

func (g *Graph) addNode(n *Node) NodeID {
	g.Nodes = append(g.Nodes, n)
	return n.ID
}

func (g *Graph) addEdge(e Edge) {
	idx := len(g.Edges)
	g.Edges = append(g.Edges, e)
	g.out[e.Producer] = append(g.out[e.Producer], idx)
	g.in[e.Consumer] = append(g.in[e.Consumer], idx)
}

// Node looks up a node by id.
func (g *Graph) Node(id NodeID) *Node {
	return g.Nodes[id]
}

// OutEdges returns every edge whose producer is n.
func (g *Graph) OutEdges(n NodeID) []Edge {
	idxs := g.out[n]
	edges := make([]Edge, len(idxs))

	for i, idx := range idxs {
		edges[i] = g.Edges[idx]
	}

	return edges
}

// InEdges returns every edge whose consumer is n.
func (g *Graph) InEdges(n NodeID) []Edge {
	idxs := g.in[n]
	edges := make([]Edge, len(idxs))

	for i, idx := range idxs {
		edges[i] = g.Edges[idx]
	}

	return edges
}

// RealNodes returns every non-virtual node, in source order.
func (g *Graph) RealNodes() []*Node {
	nodes := make([]*Node, 0, len(g.Nodes))

	for _, n := range g.Nodes {
		if !n.IsVirtual() {
			nodes = append(nodes, n)
		}
	}

	return nodes
}

// String implements a compact debug rendering.
func (n *Node) String() string {
	if n.IsVirtual() {
		return fmt.Sprintf("%s#%d", n.Virtual, n.ID)
	}

	return fmt.Sprintf("%s#%d(%s)", n.Shape.Mnemonic, n.ID, n.Operands)
}
