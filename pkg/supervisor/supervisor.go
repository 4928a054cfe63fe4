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

// Package supervisor launches the service process and observes its termination.
//
// Exactly one goroutine per process calls Wait. It is the only place that sets
// StateExited and fires the process' exit event; everything else (health gate,
// shutdown coordinator) only listens. The output streams are drained by their own
// goroutines and may outlive the exit event by up to WaitDelay.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/constants"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/environment"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/exitevent"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/logger"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/service/filesystem"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/standarderrors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config describes how the service is launched.
type Config struct {
	// ExecutableOverride wins over Candidates when it exists.
	ExecutableOverride string
	// Candidates are default install locations, probed in order.
	Candidates []string
	RunMode    string
	Port       int
	// ExtraArgs are appended after the standard switches.
	ExtraArgs []string
	// Env is appended to the inherited environment of the process.
	Env []string
	// OutputTailLines is how many captured lines are kept in memory.
	OutputTailLines int
}

// DefaultConfig returns the standard launch configuration.
func DefaultConfig() Config {
	return Config{
		ExecutableOverride: os.Getenv(constants.ExecutableOverrideEnv),
		Candidates:         constants.DefaultExecutableCandidates(),
		RunMode:            constants.DefaultRunMode,
		Port:               constants.DefaultServicePort,
		OutputTailLines:    constants.OutputTailLines,
	}
}

// Supervisor spawns at most one live service process at a time.
type Supervisor struct {
	cfg    Config
	fs     filesystem.Service
	logger *zap.SugaredLogger

	mu      sync.Mutex
	current *Process
}

// New creates a Supervisor.
func New(cfg Config, fs filesystem.Service, log *zap.SugaredLogger) *Supervisor {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	if cfg.OutputTailLines <= 0 {
		cfg.OutputTailLines = constants.OutputTailLines
	}

	if cfg.RunMode == "" {
		cfg.RunMode = constants.DefaultRunMode
	}

	if cfg.Port == 0 {
		cfg.Port = constants.DefaultServicePort
	}

	return &Supervisor{cfg: cfg, fs: fs, logger: log}
}

// ResolveExecutable returns the executable Spawn would launch.
func (s *Supervisor) ResolveExecutable(ctx context.Context) (string, error) {
	return ResolveExecutable(ctx, s.fs, s.cfg.ExecutableOverride, s.cfg.Candidates)
}

// Current returns the most recently spawned process, live or not.
func (s *Supervisor) Current() *Process {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.current
}

// BuildArgs returns the command line switches for env, without the executable.
func BuildArgs(env *environment.Environment, runMode string, port int, extra []string) []string {
	args := []string{
		env.DescriptorPath,
		"-run=" + runMode,
		"-port=" + strconv.Itoa(port),
		"-unattended",
		"-nopause",
		"-nullrhi",
		"-LOG=" + env.LogPath,
	}

	return append(args, extra...)
}

// Spawn starts the service for env and returns once the process is running.
// ctx only bounds the launch; the process outlives it and is stopped via Kill or the
// shutdown coordinator. Nothing is started when the executable cannot be resolved.
func (s *Supervisor) Spawn(ctx context.Context, env *environment.Environment) (*Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && s.current.State() != StateExited {
		return nil, fmt.Errorf("%w: pid %d", standarderrors.ErrProcessAlreadyLive, s.current.Pid())
	}

	if err := environment.Verify(ctx, s.fs, env); err != nil {
		return nil, err
	}

	executable, err := s.ResolveExecutable(ctx)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	capture, err := newOutputCapture(s.cfg.OutputTailLines, env.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open captured output file: %w", err)
	}

	// exec.Command, not CommandContext: the process lifetime is not tied to ctx.
	cmd := exec.Command(executable, BuildArgs(env, s.cfg.RunMode, s.cfg.Port, s.cfg.ExtraArgs)...)
	cmd.Dir = env.RootPath
	cmd.Env = append(os.Environ(), s.cfg.Env...)
	cmd.SysProcAttr = sysProcAttr()

	stdout, err := newOutputPipe(newLineWriter(StreamOut, capture, s.logger.Named(logger.ComponentServiceOut)))
	if err != nil {
		_ = capture.Close()

		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	stderr, err := newOutputPipe(newLineWriter(StreamErr, capture, s.logger.Named(logger.ComponentServiceErr)))
	if err != nil {
		stdout.closeChildEnd()
		stdout.abort()
		_ = capture.Close()

		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	// *os.File streams are handed to the child as is, exec starts no copying goroutine
	cmd.Stdout = stdout.w
	cmd.Stderr = stderr.w

	proc := &Process{
		cmd:          cmd,
		exit:         exitevent.New(),
		output:       capture,
		outputClosed: make(chan struct{}),
		logger:       s.logger,
		state:        StateStarting,
	}

	s.logger.Infof("Starting %s %v", executable, cmd.Args[1:])

	startErr := cmd.Start()

	stdout.closeChildEnd()
	stderr.closeChildEnd()

	if startErr != nil {
		stdout.abort()
		stderr.abort()
		_ = capture.Close()

		return nil, fmt.Errorf("failed to start %s: %w", executable, startErr)
	}

	proc.mu.Lock()
	proc.pid = cmd.Process.Pid
	proc.state = StateRunning
	proc.mu.Unlock()

	s.current = proc

	var drains errgroup.Group
	drains.Go(stdout.drain)
	drains.Go(stderr.drain)

	go proc.wait(&drains, stdout, stderr)

	s.logger.Infof("Service process started with pid %d", proc.pid)

	return proc, nil
}
