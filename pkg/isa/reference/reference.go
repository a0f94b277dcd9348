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

// Package reference provides a small Armv8.1-M/Helium-flavoured architecture
// and microarchitecture model, sized to exercise exactly the instructions
// named in the worked examples of spec §8 (vldrw/vmla/vstrw, plus plain GPR
// arithmetic and branches for straight-line and CRT-style bodies), plus
// vmacc, an in-place-destination multiply-accumulate form added to exercise
// constraint family 6 (spec §3 invariant 4). It is not a faithful model of
// any real core; it exists so the engine has a concrete plug-in to
// optimise against.
package reference

import (
	"fmt"

	"github.com/slothy-opt/slothy/pkg/isa"
)

// shape describes one mnemonic's operand roles, independent of concrete
// operand tokens.
type shape struct {
	slots    []isa.Slot
	isMemory bool
	isLoad   bool
}

// Model implements both isa.Architecture and isa.Microarchitecture for the
// reference target.
type Model struct {
	shapes   map[string]shape
	latency  map[string]uint
	units    map[string][]string
	capacity map[string]uint
	width    uint
}

// New constructs the reference model with the latencies used throughout
// spec §8's worked examples: vldrw/vmla latency 2, vstrw latency 1, issue
// width 1, plus a generic GPR ALU (latency 1) and branch family.
func New() *Model {
	m := &Model{
		shapes:   make(map[string]shape),
		latency:  make(map[string]uint),
		units:    make(map[string][]string),
		capacity: map[string]uint{"load": 1, "store": 1, "mac": 1, "alu": 1, "branch": 1},
		width:    1,
	}
	// Vector load/store/multiply-accumulate, as used by simple0.s/simple1.s.
	m.define("vldrw", 2, []string{"load"}, true, true,
		isa.Slot{Name: "qd", Role: isa.RoleWrite, Class: isa.Vector},
		isa.Slot{Name: "rn", Role: isa.RoleAddressBase, Class: isa.GPR})
	m.define("vstrw", 1, []string{"store"}, true, false,
		isa.Slot{Name: "qd", Role: isa.RoleRead, Class: isa.Vector},
		isa.Slot{Name: "rn", Role: isa.RoleAddressBase, Class: isa.GPR})
	m.define("vmla", 2, []string{"mac"}, false, false,
		isa.Slot{Name: "qd", Role: isa.RoleReadWrite, Class: isa.Vector},
		isa.Slot{Name: "qn", Role: isa.RoleRead, Class: isa.Vector},
		isa.Slot{Name: "rm", Role: isa.RoleRead, Class: isa.GPR})
	// vmacc: a multiply-accumulate form whose destination and accumulator
	// are written as two distinct operands but share one physical register
	// field, so qd must be allocated in place of qa (spec §3 invariant 4,
	// §4.2 constraint family 6).
	m.define("vmacc", 2, []string{"mac"}, false, false,
		isa.Slot{Name: "qd", Role: isa.RoleWrite, Class: isa.Vector, InPlaceOf: "qa"},
		isa.Slot{Name: "qa", Role: isa.RoleRead, Class: isa.Vector},
		isa.Slot{Name: "qn", Role: isa.RoleRead, Class: isa.Vector},
		isa.Slot{Name: "rm", Role: isa.RoleRead, Class: isa.GPR})
	// Plain GPR arithmetic, as used by crt.s-style preambles.
	m.define("mov", 1, []string{"alu"}, false, false,
		isa.Slot{Name: "rd", Role: isa.RoleWrite, Class: isa.GPR},
		isa.Slot{Name: "rs", Role: isa.RoleRead, Class: isa.GPR})
	m.define("movi", 1, []string{"alu"}, false, false,
		isa.Slot{Name: "rd", Role: isa.RoleWrite, Class: isa.GPR},
		isa.Slot{Name: "imm", Role: isa.RoleImmediate, Class: isa.GPR})
	m.define("add", 1, []string{"alu"}, false, false,
		isa.Slot{Name: "rd", Role: isa.RoleWrite, Class: isa.GPR},
		isa.Slot{Name: "rn", Role: isa.RoleRead, Class: isa.GPR},
		isa.Slot{Name: "rm", Role: isa.RoleRead, Class: isa.GPR},
		isa.Slot{Name: "flags", Role: isa.RoleWrite, Class: isa.Flag, Implicit: true})
	m.define("sub", 1, []string{"alu"}, false, false,
		isa.Slot{Name: "rd", Role: isa.RoleWrite, Class: isa.GPR},
		isa.Slot{Name: "rn", Role: isa.RoleRead, Class: isa.GPR},
		isa.Slot{Name: "rm", Role: isa.RoleRead, Class: isa.GPR},
		isa.Slot{Name: "flags", Role: isa.RoleWrite, Class: isa.Flag, Implicit: true})
	m.define("bcc", 1, []string{"branch"}, false, false,
		isa.Slot{Name: "target", Role: isa.RoleImmediate, Class: isa.GPR},
		isa.Slot{Name: "flags", Role: isa.RoleRead, Class: isa.Flag, Implicit: true})
	m.define("ldr", 2, []string{"load"}, true, true,
		isa.Slot{Name: "rd", Role: isa.RoleWrite, Class: isa.GPR},
		isa.Slot{Name: "rn", Role: isa.RoleAddressBase, Class: isa.GPR})
	m.define("str", 1, []string{"store"}, true, false,
		isa.Slot{Name: "rd", Role: isa.RoleRead, Class: isa.GPR},
		isa.Slot{Name: "rn", Role: isa.RoleAddressBase, Class: isa.GPR})
	// bx lr: the return instruction pins its source to the architectural
	// link register, exercising the pre-pinning constraint family (spec
	// §4.2, family 5).
	m.define("bx", 1, []string{"branch"}, false, false,
		isa.Slot{Name: "rs", Role: isa.RoleRead, Class: isa.GPR, Pin: "lr"})

	return m
}

func (m *Model) define(mnemonic string, latency uint, units []string, isMemory, isLoad bool, slots ...isa.Slot) {
	m.shapes[mnemonic] = shape{slots: slots, isMemory: isMemory, isLoad: isLoad}
	m.latency[mnemonic] = latency
	m.units[mnemonic] = units
}

// Registers implements isa.Architecture. The reference model offers a small
// fixed file per class; r13-r15 (sp/lr/pc) are deliberately excluded from
// the GPR allocation pool since they are only ever reached via a Pin.
func (m *Model) Registers(class isa.Class) []string {
	switch class {
	case isa.GPR:
		return []string{"r0", "r1", "r2", "r3", "r4", "r5", "r6", "r7", "r8", "r9", "r10", "r11", "r12"}
	case isa.Vector:
		return []string{"q0", "q1", "q2", "q3", "q4", "q5", "q6", "q7"}
	case isa.Predicate:
		return []string{"p0"}
	case isa.Flag:
		return []string{"flags"}
	default:
		return nil
	}
}

// Classify implements isa.Architecture.
func (m *Model) Classify(mnemonic string, operands []string) (isa.Shape, error) {
	s, ok := m.shapes[mnemonic]
	if !ok {
		return isa.Shape{}, fmt.Errorf("unknown mnemonic %q", mnemonic)
	}

	explicit := 0

	for _, slot := range s.slots {
		if !slot.Implicit {
			explicit++
		}
	}

	if len(operands) != explicit {
		return isa.Shape{}, fmt.Errorf("%q expects %d operand(s), got %d", mnemonic, explicit, len(operands))
	}

	return isa.Shape{Mnemonic: mnemonic, Slots: s.slots, IsMemory: s.isMemory, IsLoad: s.isLoad}, nil
}

// Latency implements isa.Microarchitecture.
func (m *Model) Latency(mnemonic string) uint {
	return m.latency[mnemonic]
}

// Units implements isa.Microarchitecture.
func (m *Model) Units(mnemonic string) []string {
	return m.units[mnemonic]
}

// IssueWidth implements isa.Microarchitecture.
func (m *Model) IssueWidth() uint {
	return m.width
}

// UnitCapacity implements isa.Microarchitecture.
func (m *Model) UnitCapacity(unit string) uint {
	return m.capacity[unit]
}

// Forwarding implements isa.Microarchitecture. The reference model defines no
// forwarding exceptions.
func (m *Model) Forwarding(string, string) (uint, bool) {
	return 0, false
}

// NewIdeal constructs a degenerate variant with zero latency and unbounded
// issue width, used to exercise the idempotence-under-identity invariant of
// spec §8: with no latency and no resource pressure, a stalls budget of zero
// always suffices and the input may be emitted unchanged.
func NewIdeal() *Model {
	m := New()
	for mnemonic := range m.latency {
		m.latency[mnemonic] = 0
	}

	for unit := range m.capacity {
		m.capacity[unit] = ^uint(0)
	}

	m.width = ^uint(0)

	return m
}
