// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package supervisor

import (
	"github.com/shirou/gopsutil/v3/process"
)

// killProcessTree kills the descendants of pid first, so none gets re-parented and
// survives, then pid itself (including its process group where supported).
func killProcessTree(pid int) error {
	if root, err := process.NewProcess(int32(pid)); err == nil {
		killDescendants(root)
	}

	return killRoot(pid)
}

func killDescendants(proc *process.Process) {
	children, err := proc.Children()
	if err != nil {
		return
	}

	for _, child := range children {
		killDescendants(child)
		_ = child.Kill()
	}
}
