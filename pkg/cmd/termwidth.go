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
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// fallbackTableWidth is used whenever stdout isn't a terminal term.GetSize
// can query (e.g. piped to a file or another process).
const fallbackTableWidth = 80

// tableWidth sizes the --verbose-schedule cycle-glyph table (spec.md §4.4)
// to the user's terminal, exactly as the teacher's termio package does for
// its own inspector output, falling back to a fixed width when stdout isn't
// a TTY.
func tableWidth() int {
	fd := int(os.Stdout.Fd())

	if !term.IsTerminal(fd) {
		return fallbackTableWidth
	}

	w, _, err := term.GetSize(fd)
	if err != nil || w <= 0 {
		return fallbackTableWidth
	}

	return w
}

// printRule writes a horizontal rule sized to the terminal, bracketing the
// --verbose-schedule table so its cycle/unit/register columns read clearly
// against the plain instruction listing above and below it.
func printRule(label string) {
	width := tableWidth()
	if len(label)+2 >= width {
		fmt.Println(label)
		return
	}

	pad := width - len(label) - 2
	fmt.Println(strings.Repeat("-", pad/2) + " " + label + " " + strings.Repeat("-", pad-pad/2))
}
