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

// Package engine orchestrates the whole pipeline spec.md §2 diagrams:
// Parser → DFG Builder → [Loop Transformer] → Model Encoder → Solver →
// Solution Decoder → [Loop Transformer] → Emitter, implementing the two
// entry points spec.md §6 names, optimize(first, end) and
// optimize_loop(loop_label).
package engine

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/slothy-opt/slothy/pkg/asmparse"
	"github.com/slothy-opt/slothy/pkg/config"
	"github.com/slothy-opt/slothy/pkg/decode"
	"github.com/slothy-opt/slothy/pkg/dfg"
	"github.com/slothy-opt/slothy/pkg/isa"
	"github.com/slothy-opt/slothy/pkg/loopxform"
	"github.com/slothy-opt/slothy/pkg/model"
	"github.com/slothy-opt/slothy/pkg/search"
	"github.com/slothy-opt/slothy/pkg/selfcheck"
	"github.com/slothy-opt/slothy/pkg/solver"
	"github.com/slothy-opt/slothy/pkg/util"
)

// ExitCode mirrors spec.md §6's exit-code table exactly; pkg/cmd passes it
// straight to os.Exit.
type ExitCode int

// The five exit codes spec.md §6 names.
const (
	ExitSuccess          ExitCode = 0
	ExitInfeasible       ExitCode = 1
	ExitMalformedInput   ExitCode = 2
	ExitSolverFailure    ExitCode = 3
	ExitSelfCheckFailure ExitCode = 4
)

// Error wraps an engine failure with the exit code pkg/cmd should report.
type Error struct {
	Code ExitCode
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

func fail(code ExitCode, err error) error {
	if err == nil {
		return nil
	}

	return &Error{Code: code, Err: err}
}

// Result is what either entry point hands back on success.
type Result struct {
	Budget int
	// Output is populated by Optimize: the full re-emitted straight-line
	// listing.
	Output string
	// Preamble, Kernel and Postamble are populated by OptimizeLoop instead
	// (spec.md §4.6).
	Preamble, Kernel, Postamble string
	// KernelInputOutput is populated by OptimizeLoop: the registers live
	// into and out of the kernel.
	KernelInputOutput map[string]isa.Class
}

// Optimize implements spec.md §6's optimize(first, end): re-schedule and
// re-allocate the straight-line instruction window the labels first and end
// delimit (prog.Window; an empty end selects the rest of the program).
func Optimize(ctx context.Context, arch isa.Architecture, uarch isa.Microarchitecture, prog *asmparse.Program, cfg config.Config, first, end string) (*Result, error) {
	window, err := prog.Window(first, end)
	if err != nil {
		return nil, fail(ExitMalformedInput, err)
	}

	return OptimizeWindow(ctx, arch, uarch, window, prog.RegisterAliases, cfg)
}

// OptimizeWindow runs optimize(first, end)'s pipeline directly over an
// already-resolved line range, for callers (such as pkg/cmd's
// .optimize_start/.optimize_end auto-detection) that locate the window by a
// means other than a pair of Program labels. aliases carries the source's
// ".reg <symbolic> <architectural>" pragmas (Program.RegisterAliases); it
// may be nil.
func OptimizeWindow(ctx context.Context, arch isa.Architecture, uarch isa.Microarchitecture, window []asmparse.Line, aliases map[string]string, cfg config.Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fail(ExitMalformedInput, err)
	}

	lines := windowInstructions(window)

	// Boundary behaviour (spec.md §8): an empty body is success, not
	// malformed input, and needs no stalls.
	if len(lines) == 0 {
		return &Result{Budget: 0, Output: ""}, nil
	}

	classified, err := dfg.Classify(arch, lines)
	if err != nil {
		return nil, fail(ExitMalformedInput, err)
	}

	declaredInputs, _ := inferLiveness(classified, cfg.TypingHints)
	requiredOutputs := writtenNames(classified, cfg.TypingHints)

	g, err := dfg.Build(dfg.Input{
		Instructions:    classified,
		DeclaredInputs:  declaredInputs,
		RequiredOutputs: requiredOutputs,
		TypingHints:     util.ShallowCloneMap(cfg.TypingHints),
		Alias:           aliasPolicy(cfg),
	})
	if err != nil {
		return nil, fail(ExitMalformedInput, err)
	}

	log.Debugf("slothy: built DFG with %d real nodes for a %d-instruction window", len(g.RealNodes()), len(lines))

	outcome, err := search.Run(ctx, solver.New(), g, arch, uarch, searchConfig(cfg, model.ObjectiveNone, nil, aliases))
	if err != nil {
		if _, ok := err.(*search.ErrInfeasible); ok {
			return nil, fail(ExitInfeasible, err)
		}

		return nil, fail(ExitSolverFailure, err)
	}

	decoded := decode.Decode(outcome.Problem, outcome.Assignment, nil)

	if cfg.SelfCheck {
		if err := selfcheck.Verify(selfcheck.Input{
			Original:        g,
			Decoded:         decoded,
			Arch:            arch,
			Alias:           aliasPolicy(cfg),
			DeclaredInputs:  declaredInputs,
			RequiredOutputs: requiredOutputs,
		}); err != nil {
			return nil, fail(ExitSelfCheckFailure, err)
		}
	}

	return &Result{Budget: outcome.Budget, Output: decode.Emit(decoded, cfg.VerboseSchedule)}, nil
}

// OptimizeLoop implements spec.md §6's optimize_loop(loop_label): find the
// body delimited by .loop_start/.loop_end pragmas named loopLabel, expand it
// across the configured unroll factor and the two pipelined iterations
// (pkg/loopxform), schedule the doubled body, and partition the decoded
// result back into preamble/kernel/postamble.
func OptimizeLoop(ctx context.Context, arch isa.Architecture, uarch isa.Microarchitecture, prog *asmparse.Program, cfg config.Config, loopLabel string) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fail(ExitMalformedInput, err)
	}

	window, err := prog.LoopBody(loopLabel)
	if err != nil {
		return nil, fail(ExitMalformedInput, err)
	}

	lines := windowInstructions(window)
	if len(lines) == 0 {
		return nil, fail(ExitMalformedInput, fmt.Errorf("loop body %q contains no instructions", loopLabel))
	}

	classified, err := dfg.Classify(arch, lines)
	if err != nil {
		return nil, fail(ExitMalformedInput, err)
	}

	liveIn, written := inferLiveness(classified, cfg.TypingHints)

	loopCarried := make(map[string]isa.Class)

	for name, class := range liveIn {
		if _, ok := written[name]; ok {
			loopCarried[name] = class
		}
	}

	requiredOutputs := make([]string, 0, len(loopCarried))
	for name := range loopCarried {
		requiredOutputs = append(requiredOutputs, name)
	}

	unroll := cfg.SWPipelining.Unroll
	if unroll < 1 {
		unroll = 1
	}

	body := loopxform.Body{
		Instructions:    classified,
		LoopCarried:     loopCarried,
		DeclaredInputs:  liveIn,
		RequiredOutputs: requiredOutputs,
	}

	exp, err := loopxform.Expand(body, loopxform.Config{
		Unroll:              unroll,
		MinimizeOverlapping: cfg.SWPipelining.MinimizeOverlapping,
	})
	if err != nil {
		return nil, fail(ExitMalformedInput, err)
	}

	g, err := dfg.Build(dfg.Input{
		Instructions:    exp.Instructions,
		DeclaredInputs:  exp.DeclaredInputs,
		RequiredOutputs: exp.RequiredOutputs,
		TypingHints:     util.ShallowCloneMap(cfg.TypingHints),
		Alias:           aliasPolicy(cfg),
	})
	if err != nil {
		return nil, fail(ExitMalformedInput, err)
	}

	pipelining := loopxform.BuildPipelining(g, exp)

	objective := model.ObjectiveNone
	if cfg.SWPipelining.MinimizeOverlapping {
		objective = model.ObjectiveMinimizeEarly
	}

	outcome, err := search.Run(ctx, solver.New(), g, arch, uarch, searchConfig(cfg, objective, pipelining, prog.RegisterAliases))
	if err != nil {
		if _, ok := err.(*search.ErrInfeasible); ok {
			return nil, fail(ExitInfeasible, err)
		}

		return nil, fail(ExitSolverFailure, err)
	}

	early := make(map[dfg.NodeID]bool, len(pipelining.Iteration))

	for id, iter := range pipelining.Iteration {
		if iter == 1 && outcome.Assignment.Position[id] < pipelining.KernelLength {
			early[id] = true
		}
	}

	decoded := decode.Decode(outcome.Problem, outcome.Assignment, early)

	if cfg.SelfCheck {
		if err := selfcheck.Verify(selfcheck.Input{
			Original:        g,
			Decoded:         decoded,
			Arch:            arch,
			Alias:           aliasPolicy(cfg),
			DeclaredInputs:  exp.DeclaredInputs,
			RequiredOutputs: exp.RequiredOutputs,
		}); err != nil {
			return nil, fail(ExitSelfCheckFailure, err)
		}
	}

	partitioned := loopxform.Partition(decoded, exp)

	return &Result{
		Budget:            outcome.Budget,
		Preamble:          decode.Emit(partitioned.Preamble, cfg.VerboseSchedule),
		Kernel:            decode.Emit(partitioned.Kernel, cfg.VerboseSchedule),
		Postamble:         decode.Emit(partitioned.Postamble, cfg.VerboseSchedule),
		KernelInputOutput: loopxform.KernelInputOutput(body),
	}, nil
}

func searchConfig(cfg config.Config, objective model.Objective, pipelining *model.Pipelining, aliases map[string]string) search.Config {
	return search.Config{
		InitialBudget:   cfg.Constraints.Stalls.Initial,
		Cap:             cfg.Constraints.Stalls.Cap,
		Timeout:         cfg.Constraints.SolverTimeout,
		Objective:       objective,
		Pipelining:      pipelining,
		DumpDir:         cfg.DumpModel,
		RegisterAliases: aliases,
	}
}

func aliasPolicy(cfg config.Config) dfg.AliasPolicy {
	return dfg.DefaultAliasPolicy(cfg.Constraints.AllowReorderingOfLoads)
}

// windowInstructions flattens a label-delimited line range down to its
// instruction lines, discarding the labels and pragmas interleaved among
// them.
func windowInstructions(lines []asmparse.Line) []asmparse.Instruction {
	var out []asmparse.Instruction

	for _, line := range lines {
		if line.Instruction != nil {
			out = append(out, *line.Instruction)
		}
	}

	return out
}

// inferLiveness scans classified in program order and returns (a) every
// register read before it is ever written in the body, i.e. live on entry,
// and (b) every register written anywhere in the body, each with the class
// a typing hint names or, absent one, the class of its first matching use.
// This is the same class-resolution dfg.Build itself performs; duplicating
// it here only decides set membership; dfg.Build remains the sole authority
// on rejecting a genuine class conflict.
func inferLiveness(instrs []dfg.Instruction, hints map[string]isa.Class) (liveIn, written map[string]isa.Class) {
	liveIn = make(map[string]isa.Class)
	written = make(map[string]isa.Class)
	seenWrite := make(map[string]bool)

	classOf := func(name string, slotClass isa.Class) isa.Class {
		if h, ok := hints[name]; ok {
			return h
		}

		return slotClass
	}

	for _, instr := range instrs {
		for i, slot := range instr.Shape.Slots {
			if !slot.Role.Reads() {
				continue
			}

			name := registerName(slot, instr.Tokens[i])
			if !seenWrite[name] {
				if _, ok := liveIn[name]; !ok {
					liveIn[name] = classOf(name, slot.Class)
				}
			}
		}

		for i, slot := range instr.Shape.Slots {
			if !slot.Role.Writes() {
				continue
			}

			name := registerName(slot, instr.Tokens[i])
			seenWrite[name] = true
			written[name] = classOf(name, slot.Class)
		}
	}

	return liveIn, written
}

// writtenNames is inferLiveness's write set flattened to the name list
// dfg.Input.RequiredOutputs expects: every register the window ever writes,
// a conservative over-approximation of liveness out of the window (spec.md
// doesn't specify interprocedural liveness analysis, and over-pinning an
// output is always safe, never a soundness risk).
func writtenNames(instrs []dfg.Instruction, hints map[string]isa.Class) []string {
	_, written := inferLiveness(instrs, hints)

	out := make([]string, 0, len(written))
	for name := range written {
		out = append(out, name)
	}

	return out
}

func registerName(slot isa.Slot, token string) string {
	if slot.Role == isa.RoleAddressBase || slot.Role == isa.RoleAddressOffset {
		return dfg.ParseMemRef(token, false).Base
	}

	return token
}
