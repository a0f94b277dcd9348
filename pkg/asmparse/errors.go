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
package asmparse

import "fmt"

func errUnknownLabel(label string) error {
	return fmt.Errorf("unknown label %q", label)
}

func errUnknownLoopLabel(label string) error {
	return fmt.Errorf("no .loop_start/.loop_end pair found for loop label %q", label)
}
