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
package dfg

import (
	"fmt"

	"github.com/slothy-opt/slothy/pkg/isa"
)

// UndefinedRegisterError reports a read with no producer (spec §4.1,
// "Undefined register read").
type UndefinedRegisterError struct {
	Register    string
	SourceIndex int
}

func (e *UndefinedRegisterError) Error() string {
	return fmt.Sprintf("line %d: read of %q has no producer (undefined register read)", e.SourceIndex, e.Register)
}

// AmbiguousClassError reports a symbolic name used at incompatible register
// classes with no typing hint to resolve it (spec §4.1, §9).
type AmbiguousClassError struct {
	Register string
	First     isa.Class
	Second    isa.Class
}

func (e *AmbiguousClassError) Error() string {
	return fmt.Sprintf(
		"register %q used as both %s and %s with no typing hint; add a typing_hints entry for %q",
		e.Register, e.First, e.Second, e.Register)
}

// UndefinedOutputError reports a required output register with no producer
// anywhere in the body.
type UndefinedOutputError struct {
	Register string
}

func (e *UndefinedOutputError) Error() string {
	return fmt.Sprintf("required output register %q is never written", e.Register)
}
