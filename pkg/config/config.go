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

// Package config defines the plain, CLI-populated configuration struct that
// pkg/cmd binds flags into and pkg/engine consumes, covering every key
// spec.md §6 names plus the wall-clock and alias-policy additions SPEC_FULL
// adds.
package config

import (
	"fmt"
	"time"

	"github.com/slothy-opt/slothy/pkg/isa"
)

// SWPipelining groups the sw_pipelining.* keys of spec.md §6.
type SWPipelining struct {
	// Enabled turns on loop mode (pkg/loopxform, pkg/model's Pipelining).
	Enabled bool
	// Unroll is the unroll factor; must be >= 1 when Enabled.
	Unroll int
	// MinimizeOverlapping selects ObjectiveMinimizeEarly over ObjectiveNone
	// at every stalls budget in loop mode.
	MinimizeOverlapping bool
}

// Stalls groups the constraints.stalls.* keys.
type Stalls struct {
	// Initial is the first budget the search driver attempts.
	Initial int
	// Cap is the largest budget the search driver will attempt before
	// reporting infeasibility.
	Cap int
}

// Constraints groups the remaining constraints.* keys, including the
// wall-clock and alias-policy additions SPEC_FULL §2 adds to spec.md §6.
type Constraints struct {
	Stalls Stalls
	// AllowReorderingOfLoads relaxes the default memory-alias policy so two
	// loads are never considered aliasing (spec.md §9).
	AllowReorderingOfLoads bool
	// SolverTimeout bounds each individual solver call (spec.md §5's
	// wall-clock cancellation); zero means no timeout.
	SolverTimeout time.Duration
	// MemoryAliasPolicy names which dfg.AliasPolicy constructor to use;
	// "default" is the only value spec.md §9 defines today.
	MemoryAliasPolicy string
}

// Config is the full configuration surface spec.md §6 names, passed by
// value from pkg/cmd into pkg/engine.
type Config struct {
	SWPipelining SWPipelining
	// TypingHints resolves register-class ambiguity (spec.md §4.1, §9).
	TypingHints map[string]isa.Class
	Constraints  Constraints
	// SelfCheck enables the spec.md §4.5 verification pass after decoding.
	SelfCheck bool
	// Verbose raises logging to debug level (spec.md §6's "Persisted
	// state"/diagnostics surface).
	Verbose bool
	// DumpModel writes a human-readable CP model dump per solver attempt to
	// this directory; empty disables the SPEC_FULL §4 "--dump-model" debug
	// feature.
	DumpModel string
	// VerboseSchedule additionally prints the chosen functional unit and
	// register per decoded line.
	VerboseSchedule bool
}

// Validate implements spec.md §7's configuration-error checks, binding-time
// only: unroll < 1, loop mode without a configured unroll, and a typing hint
// naming a register class the ISA model doesn't define. Undefined register
// reads and class ambiguity discovered while building the DFG are distinct,
// later-stage errors and are never raised here.
func (c Config) Validate() error {
	if c.SWPipelining.Enabled && c.SWPipelining.Unroll < 1 {
		return fmt.Errorf("sw_pipelining.unroll must be >= 1 when sw_pipelining.enabled, got %d", c.SWPipelining.Unroll)
	}

	if c.Constraints.Stalls.Initial < 0 {
		return fmt.Errorf("constraints.stalls.initial must be >= 0, got %d", c.Constraints.Stalls.Initial)
	}

	if c.Constraints.Stalls.Cap < c.Constraints.Stalls.Initial {
		return fmt.Errorf("constraints.stalls.cap (%d) must be >= constraints.stalls.initial (%d)",
			c.Constraints.Stalls.Cap, c.Constraints.Stalls.Initial)
	}

	for name, class := range c.TypingHints {
		switch class {
		case isa.GPR, isa.Vector, isa.Predicate, isa.Flag:
		default:
			return fmt.Errorf("typing_hints[%q]: unrecognised register class %v", name, class)
		}
	}

	return nil
}

// Default returns the configuration spec.md §6 and §8's worked examples
// assume absent any CLI override: self-check on, no pipelining, the stalls
// schedule 0,1,2,4,8,... capped at 64.
func Default() Config {
	return Config{
		Constraints: Constraints{
			Stalls:            Stalls{Initial: 0, Cap: 64},
			MemoryAliasPolicy: "default",
		},
		SelfCheck: true,
	}
}
