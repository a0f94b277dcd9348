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
	"testing"

	"github.com/slothy-opt/slothy/pkg/dfg"
	"github.com/slothy-opt/slothy/pkg/isa"
	"github.com/slothy-opt/slothy/pkg/isa/reference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildGraph(t *testing.T) *dfg.Graph {
	t.Helper()

	arch := reference.New()
	shape, err := arch.Classify("bx", []string{"lr"})
	require.NoError(t, err)

	instrs := []dfg.Instruction{{Shape: shape, Tokens: []string{"lr"}, SourceIndex: 0}}

	g, err := dfg.Build(dfg.Input{
		Instructions:   instrs,
		DeclaredInputs: map[string]isa.Class{"lr": isa.GPR},
		Alias:          dfg.DefaultAliasPolicy(false),
	})
	require.NoError(t, err)

	return g
}

func TestEncode_RejectsNegativeBudget(t *testing.T) {
	g := buildGraph(t)
	arch := reference.New()

	_, err := Encode(g, arch, arch, EncodeConfig{StallsBudget: -1})
	assert.Error(t, err)
}

func TestEncode_BaselineAndMaxCycle(t *testing.T) {
	g := buildGraph(t)
	arch := reference.New()

	p, err := Encode(g, arch, arch, EncodeConfig{StallsBudget: 2})
	require.NoError(t, err)

	assert.Equal(t, 1, p.BaselineLength)
	assert.Equal(t, 2, p.MaxCycle())
	assert.Len(t, g.RealNodes(), 1)
}

// bx lr's rs slot is architecturally pinned to the link register, regardless
// of what's declared as a live input (spec §4.2, constraint family 5).
func TestEncode_ArchitecturalPin(t *testing.T) {
	g := buildGraph(t)
	arch := reference.New()

	p, err := Encode(g, arch, arch, EncodeConfig{})
	require.NoError(t, err)

	var found bool

	for _, pin := range p.PrePinned {
		if pin.Slot == "rs" && pin.Register == "lr" {
			found = true
		}
	}

	assert.True(t, found, "expected bx's rs slot pinned to lr")
}

func TestDump_MentionsEveryNodeVariable(t *testing.T) {
	g := buildGraph(t)
	arch := reference.New()

	p, err := Encode(g, arch, arch, EncodeConfig{StallsBudget: 1})
	require.NoError(t, err)

	id := g.RealNodes()[0].ID

	out := Dump(p)
	assert.True(t, strings.Contains(out, fmt.Sprintf("cycle[%d]", id)))
	assert.True(t, strings.Contains(out, fmt.Sprintf("position[%d]", id)))
	assert.True(t, strings.Contains(out, fmt.Sprintf("pre-pin: reg[%d][rs] = lr", id)))
}

// vmacc's qd slot names qa InPlaceOf (spec §3 invariant 4): the two slots
// must be reported as a pair regardless of which register ends up chosen.
func TestProblem_InPlacePairsReportsVmaccsDestinationAccumulatorPair(t *testing.T) {
	arch := reference.New()

	shape, err := arch.Classify("vmacc", []string{"q0", "q1", "q2", "r0"})
	require.NoError(t, err)

	instrs := []dfg.Instruction{{Shape: shape, Tokens: []string{"q0", "q1", "q2", "r0"}, SourceIndex: 0}}

	g, err := dfg.Build(dfg.Input{
		Instructions: instrs,
		DeclaredInputs: map[string]isa.Class{
			"q1": isa.Vector,
			"q2": isa.Vector,
			"r0": isa.GPR,
		},
		Alias: dfg.DefaultAliasPolicy(false),
	})
	require.NoError(t, err)

	p, err := Encode(g, arch, arch, EncodeConfig{})
	require.NoError(t, err)

	n := g.RealNodes()[0]
	assert.Equal(t, [][2]string{{"qd", "qa"}}, p.InPlacePairs(n))
}
