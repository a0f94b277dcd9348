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

// Package loopxform implements the Loop Transformer of spec §4.6. It sits
// on both sides of the model/solver pair when loop mode is on: before, it
// replicates a loop body across the configured unroll factor and the two
// conceptually pipelined iterations, privatising per-iteration scratch
// registers while leaving loop-carried ones alone so the ordinary DFG
// builder discovers the cross-iteration dependency as a plain edge; after
// decoding, it partitions the resulting linear listing back into
// preamble/kernel/postamble and reports which registers the kernel reads
// and writes across its own boundary.
package loopxform

import (
	"fmt"

	"github.com/slothy-opt/slothy/pkg/decode"
	"github.com/slothy-opt/slothy/pkg/dfg"
	"github.com/slothy-opt/slothy/pkg/isa"
	"github.com/slothy-opt/slothy/pkg/model"
)

// Config carries the sw_pipelining.* configuration keys of spec §6.
type Config struct {
	// Unroll is sw_pipelining.unroll: how many copies of Body make up one
	// logical iteration before pipelining doubles it.
	Unroll int
	// MinimizeOverlapping is sw_pipelining.minimize_overlapping: a hint
	// consumed by the search driver's objective choice, not by Expand.
	MinimizeOverlapping bool
}

// Body is one loop iteration as classified against the architecture, prior
// to unrolling or DFG construction.
type Body struct {
	Instructions []dfg.Instruction
	// LoopCarried names registers whose value read at the top of an
	// iteration is the one written by the previous iteration: the backedge
	// dependency spec §7 calls "cyclic". Renaming never touches these.
	LoopCarried map[string]isa.Class
	// DeclaredInputs and RequiredOutputs are the loop's external live-in and
	// live-out registers, in the same sense as dfg.Input; they are also
	// exempt from per-copy renaming.
	DeclaredInputs  map[string]isa.Class
	RequiredOutputs []string
}

// Expansion is the doubled, unrolled, renamed instruction stream ready for
// dfg.Build, together with the bookkeeping needed to recover a
// model.Pipelining once the graph exists and to partition a decoded listing
// once the solver has run.
type Expansion struct {
	Instructions    []dfg.Instruction
	DeclaredInputs  map[string]isa.Class
	RequiredOutputs []string
	// KernelLength is Unroll * len(Body.Instructions): the position count of
	// one of the two conceptually replicated iterations.
	KernelLength int
	// IterationBySource maps an expanded instruction's SourceIndex to which
	// of the two replicated iterations (0 or 1) it belongs to.
	IterationBySource map[int]int
}

// Expand replicates body across cfg.Unroll copies of a single iteration,
// then across both conceptually pipelined iterations (spec §4.2, "Software
// pipelining extensions" and §4.6), renaming every register private to one
// copy so dfg.Build cannot accidentally connect unrelated copies' scratch
// values. Loop-carried, declared-input and required-output names are left
// untouched in every copy, so the ordinary producer/consumer scan in
// dfg.Build discovers the cross-iteration dependency, and the very first
// and very last copies' uses of them, exactly as it would for a
// straight-line body.
func Expand(body Body, cfg Config) (*Expansion, error) {
	if cfg.Unroll < 1 {
		return nil, fmt.Errorf("sw_pipelining.unroll must be >= 1, got %d", cfg.Unroll)
	}

	kept := make(map[string]bool, len(body.LoopCarried)+len(body.DeclaredInputs)+len(body.RequiredOutputs))

	for name := range body.LoopCarried {
		kept[name] = true
	}

	for name := range body.DeclaredInputs {
		kept[name] = true
	}

	for _, name := range body.RequiredOutputs {
		kept[name] = true
	}

	exp := &Expansion{
		DeclaredInputs:    body.DeclaredInputs,
		RequiredOutputs:   body.RequiredOutputs,
		KernelLength:      cfg.Unroll * len(body.Instructions),
		IterationBySource: make(map[int]int),
	}

	idx := 0

	for iter := 0; iter < 2; iter++ {
		for copyNum := 0; copyNum < cfg.Unroll; copyNum++ {
			suffix := fmt.Sprintf("__i%dc%d", iter, copyNum)

			for _, instr := range body.Instructions {
				exp.Instructions = append(exp.Instructions, renameInstruction(instr, suffix, kept, idx))
				exp.IterationBySource[idx] = iter
				idx++
			}
		}
	}

	return exp, nil
}

// renameInstruction rewrites every register token of instr that is not in
// keep by appending suffix, preserving immediates and implicit slots
// unchanged and rewriting only the base register of an address operand.
func renameInstruction(instr dfg.Instruction, suffix string, keep map[string]bool, sourceIndex int) dfg.Instruction {
	tokens := make([]string, len(instr.Tokens))

	for i, slot := range instr.Shape.Slots {
		tok := instr.Tokens[i]

		switch {
		case slot.Implicit, slot.Role == isa.RoleImmediate:
			tokens[i] = tok
		case slot.Role == isa.RoleAddressBase || slot.Role == isa.RoleAddressOffset:
			tokens[i] = renameAddress(tok, suffix, keep)
		case keep[tok]:
			tokens[i] = tok
		default:
			tokens[i] = tok + suffix
		}
	}

	return dfg.Instruction{Shape: instr.Shape, Tokens: tokens, SourceIndex: sourceIndex}
}

// renameAddress rewrites only the base register inside a "[base]" /
// "[base,#off]" address token, preserving the offset verbatim.
func renameAddress(token, suffix string, keep map[string]bool) string {
	ref := dfg.ParseMemRef(token, false)

	base := ref.Base
	if !keep[base] {
		base += suffix
	}

	if ref.Offset.HasValue() {
		return fmt.Sprintf("[%s,#%d]", base, ref.Offset.Unwrap())
	}

	return fmt.Sprintf("[%s]", base)
}

// BuildPipelining derives a model.Pipelining from the graph dfg.Build
// produced out of exp.Instructions: every real node's iteration comes
// straight from exp.IterationBySource, and the cross-iteration edge family
// is exactly the graph edges whose endpoints disagree on it.
func BuildPipelining(g *dfg.Graph, exp *Expansion) *model.Pipelining {
	real := g.RealNodes()

	iteration := make(map[dfg.NodeID]int, len(real))
	realSet := make(map[dfg.NodeID]bool, len(real))

	for _, n := range real {
		iteration[n.ID] = exp.IterationBySource[n.SourceIndex]
		realSet[n.ID] = true
	}

	var cross []dfg.Edge

	for _, e := range g.Edges {
		if !realSet[e.Producer] || !realSet[e.Consumer] {
			continue
		}

		if iteration[e.Producer] != iteration[e.Consumer] {
			cross = append(cross, e)
		}
	}

	return &model.Pipelining{
		KernelLength:   exp.KernelLength,
		Iteration:      iteration,
		CrossIteration: cross,
	}
}

// Partitioned is a decoded listing split into the three regions spec §4.6
// names.
type Partitioned struct {
	Preamble  []decode.Line
	Kernel    []decode.Line
	Postamble []decode.Line
}

// Partition splits a decoded listing of exp's doubled body into
// preamble/kernel/postamble. The kernel window is exactly the position
// range [KernelLength, 2*KernelLength) (spec §4.6); within it, any
// iteration-0 instruction deferred this late is the drained tail of the
// boundary iteration and belongs to the postamble, while the rest is the
// repeating steady-state body. Any iteration-1 instruction lifted early
// enough to land before the kernel window belongs to the preamble instead,
// priming the pipeline ahead of the first kernel repetition.
func Partition(lines []decode.Line, exp *Expansion) Partitioned {
	var out Partitioned

	for _, l := range lines {
		iter := exp.IterationBySource[l.SourceIndex]

		switch {
		case l.Position < exp.KernelLength:
			out.Preamble = append(out.Preamble, l)
		case iter == 0:
			out.Postamble = append(out.Postamble, l)
		default:
			out.Kernel = append(out.Kernel, l)
		}
	}

	return out
}

// KernelInputOutput reports the registers live into and out of the kernel
// (spec §4.6, "kernel_input_output"): the body's loop-carried and
// declared-input names, which Expand never privatises, since only they can
// carry a value across the copy boundary the kernel repeats over. Required
// outputs outside those two sets are not included.
func KernelInputOutput(body Body) map[string]isa.Class {
	out := make(map[string]isa.Class, len(body.LoopCarried)+len(body.DeclaredInputs))

	for name, class := range body.LoopCarried {
		out[name] = class
	}

	for name, class := range body.DeclaredInputs {
		out[name] = class
	}

	return out
}
