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

	"github.com/slothy-opt/slothy/pkg/engine"
	"github.com/slothy-opt/slothy/pkg/isa/reference"
	"github.com/spf13/cobra"
)

// optimizeLoopCmd implements spec.md §6's optimize_loop(loop_label):
// software-pipeline the body delimited by a .loop_start/.loop_end pragma
// pair naming loop_label.
var optimizeLoopCmd = &cobra.Command{
	Use:   "optimize-loop <file.s> <loop_label>",
	Short: "Software-pipeline a loop body.",
	Long:  "Unroll and software-pipeline the body between a .loop_start/.loop_end pragma pair, printing the resulting preamble, kernel and postamble.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		setVerbosity(cmd)

		prog := mustParse(args[0])
		label := args[1]

		cfg := buildConfig(cmd)
		cfg.SWPipelining.Enabled = true
		cfg.SWPipelining.Unroll = int(GetUint(cmd, "unroll"))
		cfg.SWPipelining.MinimizeOverlapping = GetFlag(cmd, "minimize-overlapping")

		arch := reference.New()

		res, err := engine.OptimizeLoop(context.Background(), arch, arch, prog, cfg, label)
		if err != nil {
			exitForEngineError(err)
			return
		}

		fmt.Print(res.Preamble)
		fmt.Print(res.Kernel)
		fmt.Print(res.Postamble)

		if cfg.Verbose {
			fmt.Println("; kernel input/output registers:")

			for name, class := range res.KernelInputOutput {
				fmt.Printf(";   %s (%s)\n", name, class)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(optimizeLoopCmd)

	optimizeLoopCmd.Flags().Uint("unroll", 1, "loop unroll factor (sw_pipelining.unroll)")
	optimizeLoopCmd.Flags().Bool("minimize-overlapping", false, "minimize the number of early (pipelined) instructions")
}
