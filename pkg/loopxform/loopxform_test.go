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
package loopxform

import (
	"testing"

	"github.com/slothy-opt/slothy/pkg/decode"
	"github.com/slothy-opt/slothy/pkg/dfg"
	"github.com/slothy-opt/slothy/pkg/isa"
	"github.com/slothy-opt/slothy/pkg/isa/reference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func accumulatorBody(t *testing.T) Body {
	t.Helper()

	arch := reference.New()

	mk := func(mnemonic string, operands []string) dfg.Instruction {
		shape, err := arch.Classify(mnemonic, operands)
		require.NoError(t, err)

		tokens := make([]string, len(shape.Slots))
		next := 0

		for i, slot := range shape.Slots {
			if slot.Implicit {
				tokens[i] = slot.Name
				continue
			}

			tokens[i] = operands[next]
			next++
		}

		return dfg.Instruction{Shape: shape, Tokens: tokens}
	}

	return Body{
		Instructions: []dfg.Instruction{
			mk("vldrw", []string{"q1", "[r0]"}),
			mk("vmla", []string{"q0", "q1", "r2"}),
		},
		LoopCarried:     map[string]isa.Class{"q0": isa.Vector},
		DeclaredInputs:  map[string]isa.Class{"r0": isa.GPR, "r2": isa.GPR, "q0": isa.Vector},
		RequiredOutputs: []string{"q0"},
	}
}

func TestExpand_RejectsZeroUnroll(t *testing.T) {
	_, err := Expand(accumulatorBody(t), Config{Unroll: 0})
	assert.Error(t, err)
}

// Registers private to one copy of the body must be renamed distinctly per
// copy; loop-carried, declared-input and required-output registers must be
// left untouched everywhere so the ordinary DFG scan reconnects them.
func TestExpand_PrivatizesScratchKeepsLoopCarried(t *testing.T) {
	exp, err := Expand(accumulatorBody(t), Config{Unroll: 1})
	require.NoError(t, err)
	require.Len(t, exp.Instructions, 4)
	assert.Equal(t, 2, exp.KernelLength)

	// vldrw's q1 write must differ between the two copies.
	assert.Equal(t, "q1__i0c0", exp.Instructions[0].Tokens[0])
	assert.Equal(t, "q1__i1c0", exp.Instructions[2].Tokens[0])
	assert.NotEqual(t, exp.Instructions[0].Tokens[0], exp.Instructions[2].Tokens[0])

	// vmla's accumulator and multiplicand stay literally "q0"/"r2" in both
	// copies, and its qn read matches whichever copy's own q1 it belongs to.
	assert.Equal(t, "q0", exp.Instructions[1].Tokens[0])
	assert.Equal(t, "q1__i0c0", exp.Instructions[1].Tokens[1])
	assert.Equal(t, "r2", exp.Instructions[1].Tokens[2])

	assert.Equal(t, "q0", exp.Instructions[3].Tokens[0])
	assert.Equal(t, "q1__i1c0", exp.Instructions[3].Tokens[1])

	assert.Equal(t, []int{0, 0, 1, 1}, []int{
		exp.IterationBySource[0], exp.IterationBySource[1],
		exp.IterationBySource[2], exp.IterationBySource[3],
	})
}

// The address base of a memory operand must be renamed (or kept) on its own,
// independent of the rest of the token.
func TestExpand_RenamesAddressBaseOnly(t *testing.T) {
	exp, err := Expand(accumulatorBody(t), Config{Unroll: 1})
	require.NoError(t, err)

	assert.Equal(t, "[r0]", exp.Instructions[0].Tokens[1], "r0 is a declared input and must stay unrenamed")
}

// Building a DFG out of the expanded instructions must connect the
// accumulator's write in iteration 0 to its read in iteration 1: exactly
// the cross-iteration dependency the pipelining model needs.
func TestBuildPipelining_FindsCrossIterationEdge(t *testing.T) {
	body := accumulatorBody(t)
	exp, err := Expand(body, Config{Unroll: 1})
	require.NoError(t, err)

	g, err := dfg.Build(dfg.Input{
		Instructions:    exp.Instructions,
		DeclaredInputs:  exp.DeclaredInputs,
		RequiredOutputs: exp.RequiredOutputs,
		Alias:           dfg.DefaultAliasPolicy(false),
	})
	require.NoError(t, err)

	pipelining := BuildPipelining(g, exp)
	assert.Equal(t, 2, pipelining.KernelLength)
	require.Len(t, pipelining.CrossIteration, 1)

	edge := pipelining.CrossIteration[0]
	assert.Equal(t, dfg.EdgeRAW, edge.Kind)
	assert.Equal(t, 0, pipelining.Iteration[edge.Producer])
	assert.Equal(t, 1, pipelining.Iteration[edge.Consumer])
}

func TestPartition_SplitsByKernelWindowAndIteration(t *testing.T) {
	exp := &Expansion{
		KernelLength:      2,
		IterationBySource: map[int]int{0: 0, 1: 0, 2: 1, 3: 1},
	}

	lines := []decode.Line{
		{SourceIndex: 0, Position: 0},
		{SourceIndex: 2, Position: 1}, // iteration-1 instruction lifted ahead of the kernel window
		{SourceIndex: 1, Position: 2}, // iteration-0 instruction deferred into it
		{SourceIndex: 3, Position: 3},
	}

	out := Partition(lines, exp)

	require.Len(t, out.Preamble, 2)
	assert.Equal(t, 0, out.Preamble[0].SourceIndex)
	assert.Equal(t, 2, out.Preamble[1].SourceIndex)

	require.Len(t, out.Postamble, 1)
	assert.Equal(t, 1, out.Postamble[0].SourceIndex)

	require.Len(t, out.Kernel, 1)
	assert.Equal(t, 3, out.Kernel[0].SourceIndex)
}

func TestKernelInputOutput_ReturnsLoopCarriedAndDeclaredInputs(t *testing.T) {
	out := KernelInputOutput(accumulatorBody(t))

	assert.Equal(t, isa.Vector, out["q0"])
	assert.Equal(t, isa.GPR, out["r0"])
	assert.Equal(t, isa.GPR, out["r2"])
	_, hasScratch := out["q1"]
	assert.False(t, hasScratch, "a per-copy scratch register must not be reported live across the kernel boundary")
}
