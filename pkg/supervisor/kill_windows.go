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

//go:build windows

package supervisor

import (
	"syscall"

	"github.com/shirou/gopsutil/v3/process"
)

func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

// killRoot terminates pid. Windows has no process group kill, descendants were handled
// by killProcessTree already.
func killRoot(pid int) error {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		// already gone
		return nil
	}

	return proc.Kill()
}

// killGroup kills the orphans of pid once it exited. Windows keeps the dead parent's pid
// as their parent id, so they are found by scanning.
func killGroup(pid int) error {
	procs, err := process.Processes()
	if err != nil {
		return err
	}

	for _, proc := range procs {
		if ppid, err := proc.Ppid(); err == nil && int(ppid) == pid {
			killDescendants(proc)
			_ = proc.Kill()
		}
	}

	return nil
}
