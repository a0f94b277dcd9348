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
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/slothy-opt/slothy/pkg/config"
	"github.com/slothy-opt/slothy/pkg/engine"
	"github.com/slothy-opt/slothy/pkg/isa"
	"github.com/spf13/cobra"
)

// GetFlag gets an expected bool flag, or exits if none is registered.
func GetFlag(cmd *cobra.Command, flag string) bool {
	r, err := cmd.Flags().GetBool(flag)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}

	return r
}

// GetString gets an expected string flag, or exits if none is registered.
func GetString(cmd *cobra.Command, flag string) string {
	r, err := cmd.Flags().GetString(flag)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}

	return r
}

// GetUint gets an expected uint flag, or exits if none is registered.
func GetUint(cmd *cobra.Command, flag string) uint {
	r, err := cmd.Flags().GetUint(flag)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}

	return r
}

// GetDuration gets an expected duration flag, or exits if none is registered.
func GetDuration(cmd *cobra.Command, flag string) time.Duration {
	r, err := cmd.Flags().GetDuration(flag)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}

	return r
}

// GetStringArray gets an expected string-array flag, or exits if none is
// registered.
func GetStringArray(cmd *cobra.Command, flag string) []string {
	r, err := cmd.Flags().GetStringArray(flag)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}

	return r
}

// buildConfig assembles a config.Config from the persistent flags common to
// every subcommand; loop-mode-specific flags are layered on by the caller.
func buildConfig(cmd *cobra.Command) config.Config {
	cfg := config.Default()

	cfg.Verbose = GetFlag(cmd, "verbose")
	cfg.VerboseSchedule = GetFlag(cmd, "verbose-schedule")
	cfg.SelfCheck = GetFlag(cmd, "self-check")
	cfg.DumpModel = GetString(cmd, "dump-model")
	cfg.Constraints.Stalls.Initial = int(GetUint(cmd, "stalls-initial"))
	cfg.Constraints.Stalls.Cap = int(GetUint(cmd, "stalls-cap"))
	cfg.Constraints.AllowReorderingOfLoads = GetFlag(cmd, "allow-reordering-of-loads")
	cfg.Constraints.SolverTimeout = GetDuration(cmd, "solver-timeout")

	hints, err := parseTypingHints(GetStringArray(cmd, "typing-hint"))
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}

	cfg.TypingHints = hints

	return cfg
}

// parseTypingHints parses "register=class" pairs into a TypingHints map,
// per spec.md §9's typing_hints configuration key.
func parseTypingHints(pairs []string) (map[string]isa.Class, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	hints := make(map[string]isa.Class, len(pairs))

	for _, pair := range pairs {
		name, class, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("--typing-hint %q: expected register=class", pair)
		}

		switch class {
		case "gpr":
			hints[name] = isa.GPR
		case "vec":
			hints[name] = isa.Vector
		case "pred":
			hints[name] = isa.Predicate
		case "flag":
			hints[name] = isa.Flag
		default:
			return nil, fmt.Errorf("--typing-hint %q: unrecognised class %q", pair, class)
		}
	}

	return hints, nil
}

// exitForEngineError maps an engine.Error's exit code to os.Exit, printing
// its message first; spec.md §6's exit-code table (0/1/2/3/4).
func exitForEngineError(err error) {
	fmt.Println(err)

	code := 1

	var ee *engine.Error
	if errors.As(err, &ee) {
		code = int(ee.Code)
	}

	os.Exit(code)
}
