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
package model

import (
	"fmt"
	"strings"
)

// Dump renders a human-readable listing of p's variables and constraint
// families, for the --dump-model debug flag (spec §6, "Persisted state").
// It is not meant to be machine-read back in; it exists so a developer
// staring at an infeasible pass can see what the encoder actually asked for.
func Dump(p *Problem) string {
	var b strings.Builder

	fmt.Fprintf(&b, "problem: %d real nodes, stalls budget %d, max cycle %d\n",
		p.BaselineLength, p.StallsBudget, p.MaxCycle())
	fmt.Fprintf(&b, "objective: %s\n", p.Objective)

	b.WriteString("\nvariables:\n")

	for _, n := range p.Graph.RealNodes() {
		fmt.Fprintf(&b, "  cycle[%d] in [0, %d]\n", n.ID, p.MaxCycle())
		fmt.Fprintf(&b, "  position[%d] in [0, %d]\n", n.ID, p.BaselineLength-1)

		if n.Shape != nil {
			for _, unit := range p.Uarch.Units(n.Shape.Mnemonic) {
				fmt.Fprintf(&b, "  unit[%d][%s] in {0,1}\n", n.ID, unit)
			}

			for _, slot := range n.Shape.Slots {
				fmt.Fprintf(&b, "  reg[%d][%s] in class %s\n", n.ID, slot.Name, slot.Class)
			}
		}
	}

	if pl := p.Pipelining; pl != nil {
		for id, it := range pl.Iteration {
			fmt.Fprintf(&b, "  iter[%d] = %d\n", id, it)
		}
	}

	b.WriteString("\nconstraints:\n")
	fmt.Fprintf(&b, "  permutation: position[*] all-different over %d nodes\n", p.BaselineLength)

	for _, e := range p.Graph.Edges {
		fmt.Fprintf(&b, "  ordering: cycle[%d] >= cycle[%d] + latency, position[%d] > position[%d]  (%s)\n",
			e.Consumer, e.Producer, e.Consumer, e.Producer, e.Kind)
	}

	fmt.Fprintf(&b, "  issue-width: <= %d nodes per cycle\n", p.Uarch.IssueWidth())

	for _, pin := range p.PrePinned {
		fmt.Fprintf(&b, "  pre-pin: reg[%d][%s] = %s\n", pin.Node, pin.Slot, pin.Register)
	}

	for _, n := range p.Graph.RealNodes() {
		for _, pair := range p.InPlacePairs(n) {
			fmt.Fprintf(&b, "  in-place: reg[%d][%s] = reg[%d][%s]\n", n.ID, pair[0], n.ID, pair[1])
		}
	}

	if pl := p.Pipelining; pl != nil {
		fmt.Fprintf(&b, "  kernel length: %d\n", pl.KernelLength)

		for _, e := range pl.CrossIteration {
			fmt.Fprintf(&b, "  cross-iteration: cycle[%d] + L >= cycle[%d] - L\n", e.Consumer, e.Producer)
		}
	}

	return b.String()
}

// String renders an Objective for diagnostics and model dumps.
func (o Objective) String() string {
	switch o {
	case ObjectiveNone:
		return "none"
	case ObjectiveMinimizeEarly:
		return "minimize-early"
	case ObjectiveMinimizeMaxCycle:
		return "minimize-max-cycle"
	default:
		return "unknown"
	}
}
