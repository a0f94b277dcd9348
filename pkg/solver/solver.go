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

// Package solver is the engine's only external collaborator named but not
// specified by the architecture: "submit a model, receive SAT/UNSAT plus
// assignment" (spec §1). No generic CP-SAT library exists anywhere in the
// dependency corpus this engine was grounded on, so this package implements
// the interface directly: a deterministic backtracking list-scheduler for
// cycle/unit/position assignment, followed by linear-scan interval-graph
// colouring for register allocation (spec §4.2, constraint families 2-4).
package solver

import (
	"context"
	"errors"

	"github.com/slothy-opt/slothy/pkg/dfg"
	"github.com/slothy-opt/slothy/pkg/model"
)

// Status is the outcome of one Solve call.
type Status uint8

const (
	// StatusSAT means Assignment is populated and satisfies every
	// constraint family of the Problem.
	StatusSAT Status = iota
	// StatusUnsat means the search space was exhausted with no satisfying
	// assignment found.
	StatusUnsat
	// StatusTimeout means ctx was cancelled before the search concluded.
	StatusTimeout
)

// ErrAttemptsExhausted names the case where the backtracking search gives up
// after its step budget without full enumeration. Solve does not return it:
// an exhausted step budget is reported as StatusUnsat, so the driver
// (spec §4.3, §7 "Solver failure") advances to the next stalls budget.
var ErrAttemptsExhausted = errors.New("solver: search step budget exhausted")

// Assignment is a satisfying valuation of every model variable named in
// spec §3, "Model variables".
type Assignment struct {
	Position map[dfg.NodeID]int
	Cycle    map[dfg.NodeID]int
	Unit     map[dfg.NodeID]string
	// Register maps a node to its slot-name -> architectural-register
	// assignment, for every non-implicit-immediate slot.
	Register map[dfg.NodeID]map[string]string
}

// Result is the outcome of one Solve call.
type Result struct {
	Status     Status
	Assignment *Assignment
}

// Solver submits a model.Problem and receives SAT/UNSAT plus an assignment,
// exactly the interface spec.md leaves external (§1).
type Solver interface {
	Solve(ctx context.Context, p *model.Problem) (*Result, error)
}

// Backtracking is the only Solver implementation in this module.
type Backtracking struct {
	// MaxAttempts bounds the backtracking search; zero selects a sensible
	// default. It exists so tests can force early exhaustion.
	MaxAttempts int
}

// New constructs the default backtracking solver.
func New() *Backtracking {
	return &Backtracking{}
}

const defaultMaxAttempts = 50000

// Solve implements Solver.
func (s *Backtracking) Solve(ctx context.Context, p *model.Problem) (*Result, error) {
	max := s.MaxAttempts
	if max <= 0 {
		max = defaultMaxAttempts
	}

	sched := &scheduler{p: p, ctx: ctx, maxAttempts: max}

	cycle, unit, position, ok, err := sched.run()
	if err != nil {
		return nil, err
	}

	if sched.timedOut {
		return &Result{Status: StatusTimeout}, nil
	}

	if !ok {
		return &Result{Status: StatusUnsat}, nil
	}

	registers, ok := allocateRegisters(p, cycle)
	if !ok {
		return &Result{Status: StatusUnsat}, nil
	}

	return &Result{
		Status: StatusSAT,
		Assignment: &Assignment{
			Position: position,
			Cycle:    cycle,
			Unit:     unit,
			Register: registers,
		},
	}, nil
}
