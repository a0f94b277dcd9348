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
package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/slothy-opt/slothy/pkg/asmparse"
	"github.com/slothy-opt/slothy/pkg/config"
	"github.com/slothy-opt/slothy/pkg/isa/reference"
	"github.com/slothy-opt/slothy/pkg/util/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, text string) *asmparse.Program {
	t.Helper()

	prog, errs := asmparse.Parse(source.NewSourceFile("test.s", []byte(text)))
	require.Empty(t, errs)

	return prog
}

// A four-instruction body: two independent loads each feed a
// multiply-accumulate into the shared accumulator q0, so a correct schedule
// has room to hoist the second load across the first vldrw's latency. "start"/"end" delimit it for
// optimize(first, end), spec.md §6.
const simple1 = `start:
vldrw q1,[r0]
vmla q0,q1,r2
vldrw q2,[r1]
vmla q0,q2,r3
end:
`

func TestOptimize_SchedulesAndEmitsAStraightLineBody(t *testing.T) {
	prog := parse(t, simple1)
	arch := reference.New()
	cfg := config.Default()

	res, err := Optimize(context.Background(), arch, arch, prog, cfg, "start", "end")
	require.NoError(t, err)
	require.NotNil(t, res)

	for _, want := range []string{"vldrw", "vmla"} {
		assert.Contains(t, res.Output, want)
	}

	// Every output register name must be a real architectural register,
	// never a left-over virtual-source or malformed token.
	assert.NotContains(t, res.Output, "__i")
}

func TestOptimize_EmptyWindowSucceedsWithZeroBudget(t *testing.T) {
	prog := parse(t, simple1)
	arch := reference.New()

	res, err := Optimize(context.Background(), arch, arch, prog, config.Default(), "end", "")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 0, res.Budget)
	assert.Empty(t, res.Output)
}

func TestOptimize_RejectsUnknownLabel(t *testing.T) {
	prog := parse(t, simple1)
	arch := reference.New()

	_, err := Optimize(context.Background(), arch, arch, prog, config.Default(), "nonexistent", "")

	var engErr *Error
	require.True(t, errors.As(err, &engErr))
	assert.Equal(t, ExitMalformedInput, engErr.Code)
}

func TestOptimize_RejectsInvalidConfig(t *testing.T) {
	prog := parse(t, simple1)
	arch := reference.New()
	cfg := config.Default()
	cfg.Constraints.Stalls.Cap = -1

	_, err := Optimize(context.Background(), arch, arch, prog, cfg, "start", "end")

	var engErr *Error
	require.True(t, errors.As(err, &engErr))
	assert.Equal(t, ExitMalformedInput, engErr.Code)
}

func TestOptimize_UndefinedRegisterIsMalformedInput(t *testing.T) {
	// r9 is read by vmla but never written or declared anywhere in the
	// window: a genuine undefined-register error from the DFG builder.
	prog := parse(t, "start:\nvmla q0,q1,r9\n")
	arch := reference.New()

	_, err := Optimize(context.Background(), arch, arch, prog, config.Default(), "start", "")

	var engErr *Error
	require.True(t, errors.As(err, &engErr))
	assert.Equal(t, ExitMalformedInput, engErr.Code)
}

func TestOptimizeWindow_AcceptsAPragmaDelimitedWindowDirectly(t *testing.T) {
	prog := parse(t, ".optimize_start\nvmla q0,q1,q2\n.optimize_end\n")
	arch := reference.New()

	window, ok := prog.PragmaWindow()
	require.True(t, ok)

	res, err := OptimizeWindow(context.Background(), arch, arch, window, nil, config.Default())
	require.NoError(t, err)
	assert.Contains(t, res.Output, "vmla")
}

func TestOptimize_RegisterAliasPinsTheSymbolicRegisterArchitecturally(t *testing.T) {
	// acc is aliased to r4; every occurrence of acc in the window must end
	// up allocated to r4, never to any other GPR.
	prog := parse(t, "start:\n.reg acc r4\nadd acc,acc,r0\nend:\n")
	arch := reference.New()

	res, err := Optimize(context.Background(), arch, arch, prog, config.Default(), "start", "end")
	require.NoError(t, err)
	assert.Contains(t, res.Output, "r4")
}

func TestOptimizeWindow_VmaccAllocatesDestinationInPlaceOfAccumulator(t *testing.T) {
	// q1 is the accumulator vmacc reads from and q3 is its written
	// destination; constraint family 6 (spec §3 invariant 4) forces both to
	// land on the same architectural register, so the decoded line must
	// repeat whatever register it picked.
	prog := parse(t, ".optimize_start\nvmacc q3,q1,q2,r0\n.optimize_end\n")
	arch := reference.New()

	window, ok := prog.PragmaWindow()
	require.True(t, ok)

	res, err := OptimizeWindow(context.Background(), arch, arch, window, nil, config.Default())
	require.NoError(t, err)

	var line string

	for _, l := range strings.Split(res.Output, "\n") {
		if strings.Contains(l, "vmacc") {
			line = l
			break
		}
	}

	require.NotEmpty(t, line, "expected a decoded vmacc line in %q", res.Output)

	operands := strings.Split(strings.SplitN(line, " ", 2)[1], "//")[0]
	fields := strings.Split(strings.TrimSpace(operands), ",")
	require.Len(t, fields, 4)
	assert.Equal(t, fields[0], fields[1], "qd and qa must share one register: %q", line)
}

const loopBody = `.loop_start accumulate
vldrw q1,[r0]
vmla q0,q1,r2
.loop_end accumulate
`

func TestOptimizeLoop_PartitionsPreambleKernelPostamble(t *testing.T) {
	prog := parse(t, loopBody)
	arch := reference.New()
	cfg := config.Default()
	cfg.SWPipelining.Enabled = true
	cfg.SWPipelining.Unroll = 1

	res, err := OptimizeLoop(context.Background(), arch, arch, prog, cfg, "accumulate")
	require.NoError(t, err)
	require.NotNil(t, res)

	whole := res.Preamble + res.Kernel + res.Postamble
	assert.Equal(t, 2, strings.Count(whole, "vldrw"))
	assert.Equal(t, 2, strings.Count(whole, "vmla"))
	assert.Contains(t, res.KernelInputOutput, "q0")
}

func TestOptimizeLoop_RejectsUnknownLabel(t *testing.T) {
	prog := parse(t, loopBody)
	arch := reference.New()
	cfg := config.Default()
	cfg.SWPipelining.Enabled = true
	cfg.SWPipelining.Unroll = 1

	_, err := OptimizeLoop(context.Background(), arch, arch, prog, cfg, "nonexistent")

	var engErr *Error
	require.True(t, errors.As(err, &engErr))
	assert.Equal(t, ExitMalformedInput, engErr.Code)
}

func TestOptimizeLoop_RejectsZeroUnrollWhenEnabled(t *testing.T) {
	prog := parse(t, loopBody)
	arch := reference.New()
	cfg := config.Default()
	cfg.SWPipelining.Enabled = true
	cfg.SWPipelining.Unroll = 0

	_, err := OptimizeLoop(context.Background(), arch, arch, prog, cfg, "accumulate")

	var engErr *Error
	require.True(t, errors.As(err, &engErr))
	assert.Equal(t, ExitMalformedInput, engErr.Code)
}
