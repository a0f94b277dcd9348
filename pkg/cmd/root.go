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

// Package cmd is the slothy CLI: a root command plus the optimize and
// optimize-loop subcommands spec.md §6 names, built on spf13/cobra in the
// same rootCmd/init()/persistent-flags style as the teacher.
package cmd

import (
	"fmt"
	"os"
	"runtime/debug"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Version is filled in when building via make, but not when "go install"ing
// directly.
var Version string

var rootCmd = &cobra.Command{
	Use:   "slothy",
	Short: "A superoptimizing assembly scheduler and register allocator.",
	Long:  "slothy reschedules, re-allocates and (optionally) software-pipelines a window of assembly instructions against a target microarchitecture model.",
	Run: func(cmd *cobra.Command, args []string) {
		if GetFlag(cmd, "version") {
			fmt.Print("slothy ")

			switch {
			case Version != "":
				fmt.Printf("%s", Version)
			default:
				if info, ok := debug.ReadBuildInfo(); ok {
					fmt.Printf("%s", info.Main.Version)
				} else {
					fmt.Printf("(unknown version)")
				}
			}

			fmt.Println()

			return
		}

		if err := cmd.Help(); err != nil {
			fmt.Println(err)
			os.Exit(2)
		}
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Called once by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(2)
	}
}

func init() {
	rootCmd.Flags().Bool("version", false, "report the version of this executable")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "increase logging verbosity")
	rootCmd.PersistentFlags().Bool("verbose-schedule", false, "additionally print the chosen functional unit and register per line")
	rootCmd.PersistentFlags().Bool("self-check", true, "verify the decoded output against the input DFG before printing it")
	rootCmd.PersistentFlags().String("dump-model", "", "directory to receive one CP model dump per solver attempt")
	rootCmd.PersistentFlags().Uint("stalls-initial", 0, "first stalls budget the search driver attempts")
	rootCmd.PersistentFlags().Uint("stalls-cap", 64, "largest stalls budget the search driver attempts before reporting infeasibility")
	rootCmd.PersistentFlags().Bool("allow-reordering-of-loads", false, "treat any two loads as never aliasing")
	rootCmd.PersistentFlags().Duration("solver-timeout", 0, "wall-clock bound per solver attempt; 0 disables the timeout")
	rootCmd.PersistentFlags().StringArray("typing-hint", nil, "register=class pair (class one of gpr,vec,pred,flag) resolving an ambiguous register's class")
}

// setVerbosity raises logrus to debug level when cmd's (possibly inherited)
// --verbose flag is set; called once at the top of every leaf command's Run.
func setVerbosity(cmd *cobra.Command) {
	if GetFlag(cmd, "verbose") {
		log.SetLevel(log.DebugLevel)
	}
}
