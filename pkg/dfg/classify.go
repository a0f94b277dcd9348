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
	"fmt"

	"github.com/slothy-opt/slothy/pkg/asmparse"
	"github.com/slothy-opt/slothy/pkg/isa"
)

// Instruction is an Instruction (spec §3) matched against the architecture
// model: a shape plus, for every slot (implicit slots included), the
// register or immediate token occupying it.
type Instruction struct {
	Shape       isa.Shape
	Tokens      []string
	SourceIndex int
}

// Classify matches a sequence of parsed assembly lines against arch,
// producing the Instructions the DFG builder consumes.  An unrecognised
// mnemonic or wrong operand count is a fatal input error (spec §7),
// reported with the offending line's source index.
func Classify(arch isa.Architecture, lines []asmparse.Instruction) ([]Instruction, error) {
	out := make([]Instruction, 0, len(lines))

	for idx, line := range lines {
		shape, err := arch.Classify(line.Mnemonic, line.Operands)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", idx, err)
		}

		tokens := make([]string, len(shape.Slots))
		next := 0

		for i, slot := range shape.Slots {
			if slot.Implicit {
				tokens[i] = slot.Name
				continue
			}

			tokens[i] = line.Operands[next]
			next++
		}

		out = append(out, Instruction{Shape: shape, Tokens: tokens, SourceIndex: idx})
	}

	return out, nil
}

// addressToken returns the raw token occupying instr's address-base slot.
// Callers only invoke this for instructions where Shape.IsMemory is true,
// which always carry exactly one such slot in the reference model.
func addressToken(instr Instruction) string {
	for i, slot := range instr.Shape.Slots {
		if slot.Role == isa.RoleAddressBase {
			return instr.Tokens[i]
		}
	}

	return ""
}
