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
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/slothy-opt/slothy/pkg/asmparse"
	"github.com/slothy-opt/slothy/pkg/engine"
	"github.com/slothy-opt/slothy/pkg/isa/reference"
	"github.com/slothy-opt/slothy/pkg/util/source"
	"github.com/spf13/cobra"
)

// optimizeCmd implements spec.md §6's optimize(first, end): reschedule and
// re-allocate a straight-line window of a file.
var optimizeCmd = &cobra.Command{
	Use:   "optimize <file.s>",
	Short: "Reschedule and re-allocate a straight-line window of assembly.",
	Long:  "Reschedule and re-allocate a straight-line window of assembly, delimited by --first/--end or by .optimize_start/.optimize_end pragmas in the file.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setVerbosity(cmd)

		prog := mustParse(args[0])

		cfg := buildConfig(cmd)
		arch := reference.New()

		first := GetString(cmd, "first")

		var (
			res *engine.Result
			err error
		)

		if first == "" {
			window, ok := prog.PragmaWindow()
			if !ok {
				fmt.Println("no --first label given and no .optimize_start/.optimize_end pragma pair found")
				os.Exit(2)
			}

			res, err = engine.OptimizeWindow(context.Background(), arch, arch, window, prog.RegisterAliases, cfg)
		} else {
			res, err = engine.Optimize(context.Background(), arch, arch, prog, cfg, first, GetString(cmd, "end"))
		}

		if err != nil {
			exitForEngineError(err)
			return
		}

		if cfg.VerboseSchedule {
			printRule("schedule")
		}

		fmt.Print(res.Output)

		if cfg.VerboseSchedule {
			printRule(fmt.Sprintf("stalls budget %d", res.Budget))
		}
	},
}

func init() {
	rootCmd.AddCommand(optimizeCmd)

	optimizeCmd.Flags().String("first", "", "label marking the start of the optimize window")
	optimizeCmd.Flags().String("end", "", "label marking the end of the optimize window (defaults to end of file)")
}

// mustParse reads and parses filename, reporting every syntax error at once
// and exiting with spec.md §7's malformed-input code if any occurred.
func mustParse(filename string) *asmparse.Program {
	bytes, err := os.ReadFile(filename)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}

	prog, errs := asmparse.Parse(source.NewSourceFile(filename, bytes))
	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Println(e)
		}

		os.Exit(2)
	}

	return prog
}
