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
	"errors"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/constants"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/exitevent"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// State is the lifecycle of one service process.
type State int

const (
	StateUnstarted State = iota
	StateStarting
	StateRunning
	// StateExited is only ever set by the goroutine that reaped the process.
	StateExited
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// Process is a spawned service process.
type Process struct {
	cmd    *exec.Cmd
	pid    int
	exit   *exitevent.Event
	output *outputCapture
	// outputClosed is closed once both streams are drained and the capture file is closed.
	outputClosed chan struct{}
	logger       *zap.SugaredLogger

	mu    sync.RWMutex
	state State
}

// Pid returns the OS process id, 0 before the process started.
func (p *Process) Pid() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.pid
}

// State returns the current state.
func (p *Process) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.state
}

// ExitEvent fires once the process terminated, however that happened.
func (p *Process) ExitEvent() *exitevent.Event {
	return p.exit
}

// Done is closed once the process terminated.
func (p *Process) Done() <-chan struct{} {
	return p.exit.Done()
}

// Args returns the full command line, executable first.
func (p *Process) Args() []string {
	return append([]string(nil), p.cmd.Args...)
}

// OutputClosed is closed once the captured output is complete. It may close well after
// Done when a descendant kept the output streams open.
func (p *Process) OutputClosed() <-chan struct{} {
	return p.outputClosed
}

// OutputTail returns up to n of the latest captured output lines, oldest first.
func (p *Process) OutputTail(n int) []string {
	return p.output.Tail(n)
}

// Kill forcibly terminates the process and every descendant it spawned. After the process
// exited it still sweeps whatever the process left behind in its group.
// Killing an already exited process is not an error.
func (p *Process) Kill() error {
	pid := p.Pid()
	if pid == 0 {
		return nil
	}

	if p.exit.Fired() {
		return killGroup(pid)
	}

	p.logger.Warnf("Killing service process tree %d", pid)

	err := killProcessTree(pid)
	if err == nil || p.exit.Fired() {
		return nil
	}

	// last resort through the handle exec holds, which is immune to pid reuse
	if killErr := p.cmd.Process.Kill(); killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
		return errors.Join(err, killErr)
	}

	return nil
}

func (p *Process) setState(state State) {
	p.mu.Lock()
	p.state = state
	p.mu.Unlock()
}

// wait is the single exit observer. It fires the event as soon as the process is reaped;
// the output streams are finished afterwards.
func (p *Process) wait(drains *errgroup.Group, pipes ...*outputPipe) {
	waitErr := p.cmd.Wait()
	status := statusFromWait(p.cmd.ProcessState, waitErr)

	p.setState(StateExited)
	p.logger.Infof("Service process %d %s", p.pid, status)
	p.exit.Fire(status)

	p.closeOutput(drains, pipes)
}

// closeOutput waits up to WaitDelay for the streams to reach EOF, then cuts them off.
func (p *Process) closeOutput(drains *errgroup.Group, pipes []*outputPipe) {
	defer close(p.outputClosed)

	drained := make(chan error, 1)
	go func() {
		drained <- drains.Wait()
	}()

	deadline := time.NewTimer(constants.WaitDelay)
	defer deadline.Stop()

	var err error

	select {
	case err = <-drained:
	case <-deadline.C:
		p.logger.Debugf("Output of process %d still held open after %s, closing it", p.pid, constants.WaitDelay)

		for _, pipe := range pipes {
			pipe.abort()
		}

		err = <-drained
	}

	if err != nil {
		p.logger.Warnf("Failed to read service output: %v", err)
	}

	if err := p.output.Close(); err != nil {
		p.logger.Warnf("Failed to close captured output: %v", err)
	}
}

func statusFromWait(state *os.ProcessState, waitErr error) exitevent.Status {
	if state == nil {
		return exitevent.Status{Code: -1, Err: waitErr}
	}

	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return exitevent.Status{Code: -1, Signaled: true, Signal: ws.Signal().String()}
	}

	return exitevent.Status{Code: state.ExitCode()}
}
