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

// Package search drives the stalls-budget search described in spec §4.3: a
// growing sequence of CP-solver calls, each building a fresh model, with
// only the best-so-far result carried between attempts.
package search

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/slothy-opt/slothy/pkg/dfg"
	"github.com/slothy-opt/slothy/pkg/isa"
	"github.com/slothy-opt/slothy/pkg/model"
	"github.com/slothy-opt/slothy/pkg/solver"
)

// Config bears the search-relevant subset of the engine's configuration
// (spec §6, "constraints.stalls.*").
type Config struct {
	// InitialBudget is the first stalls budget tried; 0 unless overridden.
	InitialBudget int
	// Cap bounds how large a stalls budget the driver will try before
	// reporting infeasibility.
	Cap int
	// Timeout bounds each individual solver call.
	Timeout time.Duration
	// Objective is forwarded into every model.Encode call.
	Objective model.Objective
	// Pipelining is forwarded into every model.Encode call, or nil.
	Pipelining *model.Pipelining
	// DumpDir, if non-empty, receives one model.Dump text file per solver
	// attempt (the --dump-model debug flag, SPEC_FULL §4), named
	// slothy-pass-<NNN>-budget-<B>.txt so successive passes never collide.
	DumpDir string
	// RegisterAliases is forwarded into every model.Encode call (the
	// source's ".reg <symbolic> <architectural>" pragmas).
	RegisterAliases map[string]string
}

// ErrInfeasible means no stalls budget up to Cap admits a satisfying
// assignment.
type ErrInfeasible struct {
	Cap int
}

func (e *ErrInfeasible) Error() string {
	return fmt.Sprintf("no schedule found within stalls cap %d", e.Cap)
}

// Outcome is the result of a full search: the tightest successful budget,
// its assignment, and the problem that produced it (needed by the decoder
// to know which node is which).
type Outcome struct {
	Budget     int
	Problem    *model.Problem
	Assignment *solver.Assignment
}

// Run executes the default schedule 0,1,2,4,8,16,... (spec §4.3) against g,
// growing the stalls budget until SAT or cfg.Cap is exceeded, then tightens
// by retrying smaller budgets one at a time until the smallest successful
// one is found.
func Run(ctx context.Context, s solver.Solver, g *dfg.Graph, arch isa.Architecture, uarch isa.Microarchitecture, cfg Config) (*Outcome, error) {
	budget := cfg.InitialBudget
	if budget < 0 {
		budget = 0
	}

	step := 1
	pass := 0

	var best *Outcome

	for budget <= cfg.Cap {
		log.Debugf("slothy: search pass %d: attempting stalls budget %d", pass, budget)

		outcome, err := attempt(ctx, s, g, arch, uarch, cfg, budget, pass)
		if err != nil {
			return nil, err
		}

		pass++

		if outcome != nil {
			best = outcome
			break
		}

		if budget == 0 {
			budget = 1
		} else {
			budget += step
			step *= 2
		}
	}

	if best == nil {
		return nil, &ErrInfeasible{Cap: cfg.Cap}
	}

	for tighter := best.Budget - 1; tighter >= cfg.InitialBudget; tighter-- {
		outcome, err := attempt(ctx, s, g, arch, uarch, cfg, tighter, pass)
		if err != nil {
			return nil, err
		}

		pass++

		if outcome == nil {
			break
		}

		best = outcome
	}

	log.Infof("slothy: search settled on stalls budget %d", best.Budget)

	return best, nil
}

// attempt builds a fresh Problem at budget and submits it to the solver,
// returning nil (not an error) on UNSAT or timeout so the caller can advance
// to the next budget (spec §7, "Solver failure").
func attempt(ctx context.Context, s solver.Solver, g *dfg.Graph, arch isa.Architecture, uarch isa.Microarchitecture, cfg Config, budget, pass int) (*Outcome, error) {
	p, err := model.Encode(g, arch, uarch, model.EncodeConfig{
		StallsBudget:    budget,
		Objective:       cfg.Objective,
		Pipelining:      cfg.Pipelining,
		RegisterAliases: cfg.RegisterAliases,
	})
	if err != nil {
		return nil, err
	}

	if cfg.DumpDir != "" {
		path := filepath.Join(cfg.DumpDir, fmt.Sprintf("slothy-pass-%03d-budget-%d.txt", pass, budget))
		if err := os.WriteFile(path, []byte(model.Dump(p)), 0o644); err != nil {
			log.Warnf("slothy: could not write model dump %s: %v", path, err)
		}
	}

	callCtx := ctx

	var cancel context.CancelFunc

	if cfg.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	res, err := s.Solve(callCtx, p)
	if err != nil {
		// A solver crash at this attempt is treated as infeasible for this
		// budget; the driver advances rather than aborting the whole search.
		return nil, nil //nolint:nilerr
	}

	if res.Status != solver.StatusSAT {
		return nil, nil
	}

	return &Outcome{Budget: budget, Problem: p, Assignment: res.Assignment}, nil
}
