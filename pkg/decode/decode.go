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

// Package decode turns a solver.Assignment back into a concrete instruction
// listing (spec §4.4): positions determine emission order, reg-assignments
// replace symbolic operands, and a per-line cycle glyph records the issue
// slot for human inspection.
package decode

import (
	"fmt"
	"sort"
	"strings"

	"github.com/slothy-opt/slothy/pkg/dfg"
	"github.com/slothy-opt/slothy/pkg/isa"
	"github.com/slothy-opt/slothy/pkg/model"
	"github.com/slothy-opt/slothy/pkg/solver"
)

// Glyph is the single-character cycle annotation attached to a decoded
// line, per spec §4.4.
type Glyph byte

const (
	// GlyphNormal marks an ordinary in-kernel (or non-loop) instruction.
	GlyphNormal Glyph = '.'
	// GlyphStall marks a cycle at which this instruction is the first to
	// issue after at least one empty cycle.
	GlyphStall Glyph = '*'
	// GlyphEarly marks a software-pipelined instruction lifted into the
	// previous iteration's slot.
	GlyphEarly Glyph = 'e'
)

// Line is one decoded, renamed instruction ready for emission.
type Line struct {
	Mnemonic    string
	Operands    []string
	SourceIndex int
	Cycle       int
	Position    int
	Glyph       Glyph
}

// String renders l the way the emitter writes it to the output file:
// mnemonic, comma-separated operands, and a trailing cycle-glyph comment.
func (l Line) String() string {
	return fmt.Sprintf("%s %s // %c", l.Mnemonic, strings.Join(l.Operands, ","), l.Glyph)
}

// Decode reads (position, reg-assignments, early) for every real node of p
// and re-emits them in position order (spec §4.4). Symbolic immediates
// (anything not drawn from a register slot) pass through unchanged.
func Decode(p *model.Problem, a *solver.Assignment, early map[dfg.NodeID]bool) []Line {
	nodes := p.Graph.RealNodes()
	lines := make([]Line, 0, len(nodes))

	prevCycle := -1

	ordered := append([]*dfg.Node(nil), nodes...)
	sort.Slice(ordered, func(i, j int) bool {
		return a.Position[ordered[i].ID] < a.Position[ordered[j].ID]
	})

	for _, n := range ordered {
		operands := make([]string, 0, len(n.Shape.Slots))

		for i, slot := range n.Shape.Slots {
			if slot.Implicit {
				continue
			}

			if slot.Role == isa.RoleImmediate {
				operands = append(operands, n.Operands[i])
				continue
			}

			if reg, ok := a.Register[n.ID][slot.Name]; ok {
				if slot.Role == isa.RoleAddressBase {
					operands = append(operands, formatAddress(reg, n.Operands[i]))
					continue
				}

				operands = append(operands, reg)
				continue
			}

			operands = append(operands, n.Operands[i])
		}

		cycle := a.Cycle[n.ID]

		glyph := GlyphNormal
		if early != nil && early[n.ID] {
			glyph = GlyphEarly
		} else if cycle > prevCycle+1 {
			glyph = GlyphStall
		}

		prevCycle = cycle

		lines = append(lines, Line{
			Mnemonic:    n.Shape.Mnemonic,
			Operands:    operands,
			SourceIndex: n.SourceIndex,
			Cycle:       cycle,
			Position:    a.Position[n.ID],
			Glyph:       glyph,
		})
	}

	return lines
}

// formatAddress rebuilds an address-base operand's "[base]" / "[base,#off]"
// syntax around a newly allocated register, preserving whatever constant
// offset the original token carried.
func formatAddress(reg, original string) string {
	ref := dfg.ParseMemRef(original, false)
	if ref.Offset.HasValue() {
		return fmt.Sprintf("[%s,#%d]", reg, ref.Offset.Unwrap())
	}

	return fmt.Sprintf("[%s]", reg)
}

// Emit renders a decoded listing as assembly text, one instruction per
// line, in the format pkg/asmparse can re-parse (minus the cycle-glyph
// comment, which is purely informational).
func Emit(lines []Line, verboseSchedule bool) string {
	var b strings.Builder

	for _, l := range lines {
		if verboseSchedule {
			b.WriteString(l.String())
		} else {
			fmt.Fprintf(&b, "%s %s", l.Mnemonic, strings.Join(l.Operands, ","))
		}

		b.WriteString("\n")
	}

	return b.String()
}
