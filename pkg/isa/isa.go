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
//
// SPDX-License-Identifier: Apache-2.0

// Package isa defines the (plug-in) interface through which the optimization
// engine learns what an instruction's operands mean, without ever needing to
// know what the instruction *does*.  Concrete architectures (e.g. the
// reference model in isa/reference) implement this interface; the engine
// itself is architecture-agnostic.
package isa

import "fmt"

// Class identifies the register file an operand slot is drawn from.
type Class uint8

// The register classes recognised by the engine.  New targets reuse these;
// adding a target never requires adding a class.
const (
	GPR Class = iota
	Vector
	Predicate
	Flag
)

// String renders a class for diagnostics and model dumps.
func (c Class) String() string {
	switch c {
	case GPR:
		return "gpr"
	case Vector:
		return "vec"
	case Predicate:
		return "pred"
	case Flag:
		return "flag"
	default:
		return fmt.Sprintf("class(%d)", uint8(c))
	}
}

// Role describes how an operand slot is used by an instruction.
type Role uint8

// The operand roles named in spec §3 ("Instruction").
const (
	RoleRead Role = iota
	RoleWrite
	RoleReadWrite
	RoleAddressBase
	RoleAddressOffset
	RoleImmediate
)

// Reads indicates whether a slot with this role is consumed.
func (r Role) Reads() bool {
	return r == RoleRead || r == RoleReadWrite || r == RoleAddressBase || r == RoleAddressOffset
}

// Writes indicates whether a slot with this role is produced.
func (r Role) Writes() bool {
	return r == RoleWrite || r == RoleReadWrite
}

// Slot is one operand position of an instruction shape.
type Slot struct {
	// Name uniquely identifies this slot within its instruction, e.g. "rd",
	// "rn", "imm".
	Name string
	// Role this slot plays.
	Role Role
	// Class of register required, meaningless for RoleImmediate.
	Class Class
	// Pin is the architectural register this slot is hardwired to (e.g. a
	// link register), or "" if the slot is free to be allocated.
	Pin string
	// InPlaceOf names the read slot this write slot must be allocated to the
	// same register as (spec §3 invariant 4), or "" if unconstrained.
	InPlaceOf string
	// Implicit marks a slot that consumes no textual operand: its register
	// is the architecturally fixed name given in Name (e.g. a flags
	// register written by every ALU op and read by a conditional branch).
	Implicit bool
}

// Shape is the result of classifying one line of assembly: its mnemonic and
// the roles/classes of its operands, in source order.
type Shape struct {
	Mnemonic string
	Slots    []Slot
	// IsMemory marks loads and stores, so the DFG builder knows to consult
	// the alias policy in addition to register producer/consumer edges.
	IsMemory bool
	// IsLoad distinguishes a load from a store within IsMemory instructions.
	IsLoad bool
}

// Architecture classifies a parsed mnemonic plus its raw operand tokens into
// an instruction Shape.  Implementations fail closed: an unrecognised
// mnemonic or an operand count that doesn't match the mnemonic's known shapes
// is an error, never a best-effort guess.
type Architecture interface {
	// Classify returns the Shape for mnemonic given the raw operand tokens in
	// source order (so e.g. immediate vs. register operands sharing a slot
	// position can be disambiguated).
	Classify(mnemonic string, operands []string) (Shape, error)
	// Registers lists the architectural register names available for
	// allocation within class, e.g. ["r0", ..., "r12"] for GPR. The renamer
	// (spec §4.2, constraint family 4) never invents a name outside this
	// list, and never allocates a register reserved by a Pin elsewhere while
	// that pinned value is live.
	Registers(class Class) []string
}

// Microarchitecture supplies the timing and resource model consulted by the
// Model Encoder.  Its correctness is explicitly out of scope (spec §1); the
// engine only ever calls through this interface.
type Microarchitecture interface {
	// Latency is the number of cycles between this instruction issuing and
	// its result being available to a dependent instruction, absent any
	// forwarding override.
	Latency(mnemonic string) uint
	// Units lists the functional units capable of executing mnemonic; the
	// encoder requires exactly one to be chosen.
	Units(mnemonic string) []string
	// IssueWidth is the number of instructions that may issue in a single
	// cycle, architecture-wide.
	IssueWidth() uint
	// UnitCapacity is the number of instructions unit may accept in a single
	// cycle.
	UnitCapacity(unit string) uint
	// Forwarding returns a latency override for a specific (producer,
	// consumer) mnemonic pair, if one is defined, else ok is false and the
	// plain Latency applies.
	Forwarding(producer, consumer string) (latency uint, ok bool)
}
