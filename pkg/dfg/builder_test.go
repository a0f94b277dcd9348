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

import (
	"testing"

	"github.com/slothy-opt/slothy/pkg/isa"
	"github.com/slothy-opt/slothy/pkg/isa/reference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func classify(t *testing.T, arch isa.Architecture, body [][2]any) []Instruction {
	t.Helper()

	out := make([]Instruction, len(body))

	for i, line := range body {
		mnemonic := line[0].(string)
		operands := line[1].([]string)

		shape, err := arch.Classify(mnemonic, operands)
		require.NoError(t, err)

		tokens := make([]string, len(shape.Slots))
		next := 0

		for j, slot := range shape.Slots {
			if slot.Implicit {
				tokens[j] = slot.Name
				continue
			}

			tokens[j] = operands[next]
			next++
		}

		out[i] = Instruction{Shape: shape, Tokens: tokens, SourceIndex: i}
	}

	return out
}

// chain of three register-to-register moves: r1 <- r0, r2 <- r1, r3 <- r2.
// Every consecutive pair must be RAW-linked and the whole thing must thread
// from source to sink.
func TestBuild_RAWChain(t *testing.T) {
	arch := reference.New()
	instrs := classify(t, arch, [][2]any{
		{"mov", []string{"r1", "r0"}},
		{"mov", []string{"r2", "r1"}},
		{"mov", []string{"r3", "r2"}},
	})

	g, err := Build(Input{
		Instructions:    instrs,
		DeclaredInputs:  map[string]isa.Class{"r0": isa.GPR},
		RequiredOutputs: []string{"r3"},
		TypingHints:     map[string]isa.Class{},
		Alias:           DefaultAliasPolicy(false),
	})
	require.NoError(t, err)

	real := g.RealNodes()
	require.Len(t, real, 3)

	// first mov (r1 <- r0) reads from source
	in0 := g.InEdges(real[0].ID)
	require.Len(t, in0, 1)
	assert.Equal(t, g.Source, in0[0].Producer)
	assert.Equal(t, EdgeRAW, in0[0].Kind)

	// second mov (r2 <- r1) reads from the first
	in1 := g.InEdges(real[1].ID)
	require.Len(t, in1, 1)
	assert.Equal(t, real[0].ID, in1[0].Producer)

	// sink reads r3 from the third
	inSink := g.InEdges(g.Sink)
	require.Len(t, inSink, 1)
	assert.Equal(t, real[2].ID, inSink[0].Producer)
}

// A read of a register nothing ever wrote, and not declared live-in, is
// rejected.
func TestBuild_UndefinedRegisterRead(t *testing.T) {
	arch := reference.New()
	instrs := classify(t, arch, [][2]any{
		{"mov", []string{"r1", "r0"}},
	})

	_, err := Build(Input{
		Instructions: instrs,
		Alias:        DefaultAliasPolicy(false),
	})
	require.Error(t, err)

	var undef *UndefinedRegisterError
	assert.ErrorAs(t, err, &undef)
	assert.Equal(t, "r0", undef.Register)
}

// A required output that nothing ever writes is rejected.
func TestBuild_UndefinedOutput(t *testing.T) {
	arch := reference.New()
	instrs := classify(t, arch, [][2]any{
		{"mov", []string{"r1", "r0"}},
	})

	_, err := Build(Input{
		Instructions:    instrs,
		DeclaredInputs:  map[string]isa.Class{"r0": isa.GPR},
		RequiredOutputs: []string{"r9"},
		Alias:           DefaultAliasPolicy(false),
	})
	require.Error(t, err)

	var undef *UndefinedOutputError
	assert.ErrorAs(t, err, &undef)
	assert.Equal(t, "r9", undef.Register)
}

// add/sub write an implicit flags register; a following conditional branch
// must pick up an EdgeFlag dependency on it without any textual operand.
func TestBuild_ImplicitFlagsEdge(t *testing.T) {
	arch := reference.New()
	instrs := classify(t, arch, [][2]any{
		{"sub", []string{"r1", "r0", "r0"}},
		{"bcc", []string{"#lbl"}},
	})

	g, err := Build(Input{
		Instructions:   instrs,
		DeclaredInputs: map[string]isa.Class{"r0": isa.GPR},
		Alias:          DefaultAliasPolicy(false),
	})
	require.NoError(t, err)

	real := g.RealNodes()
	require.Len(t, real, 2)

	in1 := g.InEdges(real[1].ID)

	var sawFlag bool

	for _, e := range in1 {
		if e.Kind == EdgeFlag {
			sawFlag = true

			assert.Equal(t, real[0].ID, e.Producer)
		}
	}

	assert.True(t, sawFlag, "expected an EdgeFlag dependency from sub to bcc")
}

// Two stores through the same base at distinct constant offsets are provably
// non-aliasing and get no memory edge; a third store at an offset that can't
// be resolved must chain to the nearest prior store.
func TestBuild_MemoryEdges(t *testing.T) {
	arch := reference.New()
	instrs := classify(t, arch, [][2]any{
		{"str", []string{"r1", "[r0,#0]"}},
		{"str", []string{"r1", "[r0,#4]"}},
		{"str", []string{"r1", "[r0]"}},
	})

	g, err := Build(Input{
		Instructions:   instrs,
		DeclaredInputs: map[string]isa.Class{"r0": isa.GPR, "r1": isa.GPR},
		Alias:          DefaultAliasPolicy(false),
	})
	require.NoError(t, err)

	real := g.RealNodes()
	require.Len(t, real, 3)

	in1 := g.InEdges(real[1].ID)
	for _, e := range in1 {
		assert.NotEqual(t, EdgeMemory, e.Kind, "distinct constant offsets must not alias")
	}

	in2 := g.InEdges(real[2].ID)

	var memProducers []NodeID

	for _, e := range in2 {
		if e.Kind == EdgeMemory {
			memProducers = append(memProducers, e.Producer)
		}
	}

	require.Len(t, memProducers, 1)
	assert.Equal(t, real[1].ID, memProducers[0], "must chain to the nearest unresolved prior store")
}

// A register used first as a GPR then as a Vector register, with no typing
// hint, is rejected as ambiguous.
func TestBuild_AmbiguousClassRejected(t *testing.T) {
	arch := reference.New()
	instrs := classify(t, arch, [][2]any{
		{"mov", []string{"x", "r0"}},
		{"vmla", []string{"x", "q0", "r0"}},
	})

	_, err := Build(Input{
		Instructions:   instrs,
		DeclaredInputs: map[string]isa.Class{"r0": isa.GPR, "q0": isa.Vector},
		Alias:          DefaultAliasPolicy(false),
	})
	require.Error(t, err)

	var ambiguous *AmbiguousClassError
	assert.ErrorAs(t, err, &ambiguous)
}

// The same ambiguity is accepted once a typing hint pins the name's class.
func TestBuild_TypingHintResolvesAmbiguity(t *testing.T) {
	arch := reference.New()
	instrs := classify(t, arch, [][2]any{
		{"mov", []string{"x", "r0"}},
	})

	g, err := Build(Input{
		Instructions:   instrs,
		DeclaredInputs: map[string]isa.Class{"r0": isa.GPR},
		TypingHints:    map[string]isa.Class{"x": isa.GPR},
		Alias:          DefaultAliasPolicy(false),
	})
	require.NoError(t, err)
	assert.Equal(t, isa.GPR, g.RegisterClass["x"])
}
