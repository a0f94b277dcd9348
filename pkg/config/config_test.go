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
package config

import (
	"testing"

	"github.com/slothy-opt/slothy/pkg/isa"
	"github.com/stretchr/testify/assert"
)

func TestDefault_IsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestValidate_RejectsLoopModeWithoutUnroll(t *testing.T) {
	c := Default()
	c.SWPipelining.Enabled = true
	c.SWPipelining.Unroll = 0

	assert.Error(t, c.Validate())
}

func TestValidate_RejectsStallsCapBelowInitial(t *testing.T) {
	c := Default()
	c.Constraints.Stalls.Initial = 8
	c.Constraints.Stalls.Cap = 4

	assert.Error(t, c.Validate())
}

func TestValidate_RejectsUnknownTypingHintClass(t *testing.T) {
	c := Default()
	c.TypingHints = map[string]isa.Class{"r0": isa.Class(200)}

	assert.Error(t, c.Validate())
}

func TestValidate_AcceptsKnownTypingHintClasses(t *testing.T) {
	c := Default()
	c.TypingHints = map[string]isa.Class{"r0": isa.GPR, "q0": isa.Vector}

	assert.NoError(t, c.Validate())
}
