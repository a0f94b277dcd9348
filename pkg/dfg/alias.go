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
	"strconv"
	"strings"

	"github.com/slothy-opt/slothy/pkg/util"
)

// MemRef is an address expression decomposed into a base register name and
// an optional constant offset, e.g. "[r0]" or "[r0,#4]".
type MemRef struct {
	Base   string
	Offset util.Option[int]
	IsLoad bool
}

// ParseMemRef extracts the base register and, if present, the constant
// offset from an address-base operand token.  It accepts the bracketed
// "[base]" / "[base,#imm]" syntax recognised by the reference architecture.
func ParseMemRef(token string, isLoad bool) MemRef {
	t := strings.TrimSpace(token)
	t = strings.TrimPrefix(t, "[")
	t = strings.TrimSuffix(t, "]")
	parts := strings.SplitN(t, ",", 2)
	base := strings.TrimSpace(parts[0])

	if len(parts) == 1 {
		return MemRef{Base: base, IsLoad: isLoad}
	}

	off := strings.TrimSpace(parts[1])
	off = strings.TrimPrefix(off, "#")

	if n, err := strconv.Atoi(off); err == nil {
		return MemRef{Base: base, Offset: util.Some(n), IsLoad: isLoad}
	}

	return MemRef{Base: base, IsLoad: isLoad}
}

// AliasPolicy decides whether two memory references can be proven not to
// alias.  It must be conservative: returning true means the engine is free
// to reorder the two accesses relative to one another.
type AliasPolicy func(a, b MemRef) bool

// DefaultAliasPolicy implements spec §9's stated default: all load/store
// pairs are assumed to alias, unless they share an identical base register
// with distinct constant offsets, in which case they provably do not. When
// allowReorderingOfLoads is set (config key
// constraints.allow_reordering_of_loads), two loads are additionally always
// considered non-aliasing, since loads never need to be ordered against one
// another for correctness of a single-threaded, non-volatile memory model.
func DefaultAliasPolicy(allowReorderingOfLoads bool) AliasPolicy {
	return func(a, b MemRef) bool {
		if allowReorderingOfLoads && a.IsLoad && b.IsLoad {
			return true
		}

		if a.Base == b.Base && a.Offset.HasValue() && b.Offset.HasValue() {
			return a.Offset.Unwrap() != b.Offset.Unwrap()
		}

		return false
	}
}
