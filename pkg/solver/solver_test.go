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
	"context"
	"testing"

	"github.com/slothy-opt/slothy/pkg/dfg"
	"github.com/slothy-opt/slothy/pkg/isa"
	"github.com/slothy-opt/slothy/pkg/isa/reference"
	"github.com/slothy-opt/slothy/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func classify(t *testing.T, arch isa.Architecture, mnemonic string, operands []string, idx int) dfg.Instruction {
	t.Helper()

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

	return dfg.Instruction{Shape: shape, Tokens: tokens, SourceIndex: idx}
}

// vldrw (latency 2) feeding vmla (latency 2) under issue width 1 cannot
// schedule the consumer any earlier than two cycles after the producer, so
// a stalls budget of zero must be infeasible and a sufficiently large one
// must succeed with that exact gap.
func TestSolve_LatencyForcesGap(t *testing.T) {
	arch := reference.New()
	instrs := []dfg.Instruction{
		classify(t, arch, "vldrw", []string{"q0", "[r0]"}, 0),
		classify(t, arch, "vmla", []string{"q0", "q1", "r2"}, 1),
	}

	g, err := dfg.Build(dfg.Input{
		Instructions:    instrs,
		DeclaredInputs:  map[string]isa.Class{"r0": isa.GPR, "q1": isa.Vector, "r2": isa.GPR},
		RequiredOutputs: []string{"q0"},
		Alias:           dfg.DefaultAliasPolicy(false),
	})
	require.NoError(t, err)

	tooTight, err := model.Encode(g, arch, arch, model.EncodeConfig{StallsBudget: 0})
	require.NoError(t, err)

	res, err := New().Solve(context.Background(), tooTight)
	require.NoError(t, err)
	assert.Equal(t, StatusUnsat, res.Status)

	roomy, err := model.Encode(g, arch, arch, model.EncodeConfig{StallsBudget: 4})
	require.NoError(t, err)

	res, err = New().Solve(context.Background(), roomy)
	require.NoError(t, err)
	require.Equal(t, StatusSAT, res.Status)

	real := g.RealNodes()
	assert.GreaterOrEqual(t, res.Assignment.Cycle[real[1].ID], res.Assignment.Cycle[real[0].ID]+2)
}

// A declared input and a required output must keep the architectural
// register they were pinned to all the way through the assignment.
func TestSolve_RespectsPinning(t *testing.T) {
	arch := reference.New()
	instrs := []dfg.Instruction{
		classify(t, arch, "mov", []string{"r3", "r0"}, 0),
	}

	g, err := dfg.Build(dfg.Input{
		Instructions:    instrs,
		DeclaredInputs:  map[string]isa.Class{"r0": isa.GPR},
		RequiredOutputs: []string{"r3"},
		Alias:           dfg.DefaultAliasPolicy(false),
	})
	require.NoError(t, err)

	p, err := model.Encode(g, arch, arch, model.EncodeConfig{StallsBudget: 2})
	require.NoError(t, err)

	res, err := New().Solve(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, StatusSAT, res.Status)

	id := g.RealNodes()[0].ID
	assert.Equal(t, "r0", res.Assignment.Register[id]["rs"])
	assert.Equal(t, "r3", res.Assignment.Register[id]["rd"])
}

// bx's source slot is architecturally pinned to lr regardless of what's
// declared live; the solver must honor the isa.Slot.Pin, not invent a
// register for it.
func TestSolve_ArchitecturalPinOverridesAllocation(t *testing.T) {
	arch := reference.New()
	instrs := []dfg.Instruction{
		classify(t, arch, "bx", []string{"lr"}, 0),
	}

	g, err := dfg.Build(dfg.Input{
		Instructions:   instrs,
		DeclaredInputs: map[string]isa.Class{"lr": isa.GPR},
		Alias:          dfg.DefaultAliasPolicy(false),
	})
	require.NoError(t, err)

	p, err := model.Encode(g, arch, arch, model.EncodeConfig{})
	require.NoError(t, err)

	res, err := New().Solve(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, StatusSAT, res.Status)
	assert.Equal(t, "lr", res.Assignment.Register[g.RealNodes()[0].ID]["rs"])
}

// The ideal microarchitecture (zero latency, unbounded issue width) always
// admits a zero-stalls schedule (spec §8 invariant 6).
func TestSolve_IdealArchNeedsNoStalls(t *testing.T) {
	arch := reference.New()
	ideal := reference.NewIdeal()

	instrs := []dfg.Instruction{
		classify(t, arch, "mov", []string{"r1", "r0"}, 0),
		classify(t, arch, "mov", []string{"r2", "r1"}, 1),
		classify(t, arch, "mov", []string{"r3", "r2"}, 2),
	}

	g, err := dfg.Build(dfg.Input{
		Instructions:    instrs,
		DeclaredInputs:  map[string]isa.Class{"r0": isa.GPR},
		RequiredOutputs: []string{"r3"},
		Alias:           dfg.DefaultAliasPolicy(false),
	})
	require.NoError(t, err)

	p, err := model.Encode(g, arch, ideal, model.EncodeConfig{StallsBudget: 0})
	require.NoError(t, err)

	res, err := New().Solve(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, StatusSAT, res.Status)
}

// vmacc's qd slot names qa InPlaceOf (spec §3 invariant 4, constraint
// family 6): the union-find in allocateRegisters must force both slots of
// the same node onto one architectural register, never two.
func TestSolve_InPlaceDestinationSharesRegisterWithItsAccumulator(t *testing.T) {
	arch := reference.New()
	instrs := []dfg.Instruction{
		classify(t, arch, "vmacc", []string{"q3", "q1", "q2", "r0"}, 0),
	}

	g, err := dfg.Build(dfg.Input{
		Instructions: instrs,
		DeclaredInputs: map[string]isa.Class{
			"q1": isa.Vector,
			"q2": isa.Vector,
			"r0": isa.GPR,
		},
		RequiredOutputs: []string{"q3"},
		Alias:           dfg.DefaultAliasPolicy(false),
	})
	require.NoError(t, err)

	p, err := model.Encode(g, arch, arch, model.EncodeConfig{StallsBudget: 1})
	require.NoError(t, err)

	res, err := New().Solve(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, StatusSAT, res.Status)

	id := g.RealNodes()[0].ID
	assert.Equal(t, res.Assignment.Register[id]["qa"], res.Assignment.Register[id]["qd"])
}
