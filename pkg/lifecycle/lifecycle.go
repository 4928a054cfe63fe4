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

// Package lifecycle sequences one run of the service: provision an environment, spawn the
// process, wait for readiness, and later shut down and clean up.
//
// A suite calls Setup once before any test and Teardown once after the last one:
//
//	orchestrator := lifecycle.New(cfg, log)
//	session, err := orchestrator.Setup(ctx)  // BeforeSuite
//	...                                      // tests talk to session.BaseURL
//	orchestrator.Teardown(ctx)               // AfterSuite, never fails
package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/looplab/fsm"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/apiclient"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/cleanup"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/config"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/constants"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/environment"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/healthgate"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/logger"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/metrics"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/sentry"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/service/filesystem"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/shutdown"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/standarderrors"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/supervisor"
	"go.uber.org/zap"
)

// Session is the live environment and process the tests run against.
type Session struct {
	Environment *environment.Environment
	Process     *supervisor.Process
	// BaseURL is the service API root, e.g. http://127.0.0.1:19847.
	BaseURL string
	ReadyAt time.Time
}

// Orchestrator owns the single Session of a test run.
type Orchestrator struct {
	provisioner *environment.Provisioner
	supervisor  *supervisor.Supervisor
	gate        *healthgate.Gate
	coordinator *shutdown.Coordinator
	reconciler  *cleanup.Reconciler
	fs          filesystem.Service
	clock       clock.Clock
	logger      *zap.SugaredLogger

	baseURL          string
	api              config.APIConfig
	readinessTimeout time.Duration
	killWait         time.Duration
	logTailLines     int

	// mu serializes Setup and Teardown.
	mu      sync.Mutex
	machine *fsm.FSM
	session atomic.Pointer[Session]
}

type options struct {
	fs         filesystem.Service
	clock      clock.Clock
	candidates []string
}

// Option customizes an Orchestrator.
type Option func(*options)

// WithFileSystem replaces the filesystem used by every phase.
func WithFileSystem(fs filesystem.Service) Option {
	return func(o *options) { o.fs = fs }
}

// WithClock replaces the clock used for naming and phase timing.
func WithClock(clk clock.Clock) Option {
	return func(o *options) { o.clock = clk }
}

// WithExecutableCandidates replaces the default install locations.
func WithExecutableCandidates(candidates ...string) Option {
	return func(o *options) { o.candidates = candidates }
}

// New wires all phases from cfg. cfg is expected to be validated.
func New(cfg config.HarnessConfig, log *zap.SugaredLogger, opts ...Option) *Orchestrator {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	o := options{
		fs:         filesystem.NewDefaultService(),
		clock:      clock.New(),
		candidates: constants.DefaultExecutableCandidates(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	cfg = cfg.Clone()
	baseURL := cfg.BaseURL()

	envCfg := environment.DefaultConfig(cfg.Environment.SourceDir)
	envCfg.BaseDir = cfg.Environment.BaseDir
	if cfg.Environment.NamePrefix != "" {
		envCfg.NamePrefix = cfg.Environment.NamePrefix
	}

	orchestrator := &Orchestrator{
		provisioner: environment.NewProvisioner(envCfg, o.fs, log.Named(logger.ComponentProvisioner),
			environment.WithClock(o.clock)),
		supervisor: supervisor.New(supervisor.Config{
			ExecutableOverride: cfg.Process.Executable,
			Candidates:         o.candidates,
			RunMode:            cfg.Process.RunMode,
			Port:               cfg.Process.Port,
			ExtraArgs:          cfg.Process.ExtraArgs,
			Env:                cfg.Process.Env,
			OutputTailLines:    cfg.Process.OutputTailLines,
		}, o.fs, log.Named(logger.ComponentSupervisor)),
		gate: healthgate.New(healthgate.Config{
			URL:          baseURL + constants.HealthEndpoint,
			ProbeTimeout: cfg.Health.ProbeTimeout,
			Interval:     cfg.Health.ProbeInterval,
		}, log.Named(logger.ComponentHealthGate)),
		coordinator: shutdown.New(shutdown.Config{
			URL:            baseURL + constants.ShutdownEndpoint,
			RequestTimeout: cfg.Shutdown.GracefulTimeout,
			ForcedWait:     cfg.Shutdown.ForcedWaitTimeout,
			KillWait:       cfg.Shutdown.KillWaitTimeout,
		}, log.Named(logger.ComponentShutdown)),
		reconciler:       cleanup.New(o.fs, log.Named(logger.ComponentCleanup)),
		fs:               o.fs,
		clock:            o.clock,
		logger:           log.Named(logger.ComponentLifecycle),
		baseURL:          baseURL,
		api:              cfg.API,
		readinessTimeout: cfg.Health.ReadinessTimeout,
		killWait:         cfg.Shutdown.KillWaitTimeout,
		logTailLines:     cfg.Health.LogTailLines,
	}

	orchestrator.machine = newMachine(func(state string) {
		metrics.SetLifecycleState(state, AllStates)
		orchestrator.logger.Debugf("Lifecycle entered %s", state)
	})
	metrics.SetLifecycleState(StateIdle, AllStates)

	return orchestrator
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() string {
	return o.machine.Current()
}

// Session returns the live session, nil unless the lifecycle is ready.
func (o *Orchestrator) Session() *Session {
	return o.session.Load()
}

// Client returns an API client for the live session, or nil when not ready.
func (o *Orchestrator) Client() *apiclient.Client {
	session := o.session.Load()
	if session == nil {
		return nil
	}

	clientCfg := apiclient.DefaultConfig(session.BaseURL)
	clientCfg.RequestTimeout = o.api.RequestTimeout
	clientCfg.RetryMax = o.api.RetryMax

	return apiclient.New(clientCfg, o.logger.Named(logger.ComponentAPIClient))
}

// Setup provisions, spawns and waits until the service is healthy. It may only be called
// while idle; a failed Setup has already rolled back and leaves the Orchestrator idle.
//
// Errors are fatal for the suite: ErrProvisioning, ErrExecutableNotFound, ErrProcessDiedEarly,
// ErrReadinessTimeout, or ctx.Err().
func (o *Orchestrator) Setup(ctx context.Context) (*Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if state := o.machine.Current(); state != StateIdle {
		return nil, fmt.Errorf("%w: lifecycle is %s", standarderrors.ErrAlreadySetUp, state)
	}

	setupStart := o.clock.Now()

	o.transition(EventProvision)

	var env *environment.Environment

	err := o.phase(metrics.PhaseProvision, func() (err error) {
		env, err = o.provisioner.Create(ctx)

		return err
	})
	if err != nil {
		return nil, o.abortSetup(metrics.PhaseProvision, err, nil, nil)
	}

	o.transition(EventSpawn)

	var proc *supervisor.Process

	err = o.phase(metrics.PhaseSpawn, func() (err error) {
		proc, err = o.supervisor.Spawn(ctx, env)

		return err
	})
	if err != nil {
		return nil, o.abortSetup(metrics.PhaseSpawn, err, env, nil)
	}

	o.transition(EventAwaitHealth)

	err = o.phase(metrics.PhaseReadiness, func() error {
		return o.gate.WaitUntilReady(ctx, o.readinessTimeout, proc.ExitEvent())
	})
	if err != nil {
		o.logDiagnostics(env, proc)

		return nil, o.abortSetup(metrics.PhaseReadiness, err, env, proc)
	}

	session := &Session{
		Environment: env,
		Process:     proc,
		BaseURL:     o.baseURL,
		ReadyAt:     o.clock.Now(),
	}
	o.session.Store(session)
	o.transition(EventReady)

	o.logger.Infof("Service ready at %s after %s (pid %d, environment %s)",
		session.BaseURL, o.clock.Since(setupStart).Round(time.Millisecond), proc.Pid(), env.RootPath)

	return session, nil
}

// Teardown stops the service and removes the environment. It never fails: shutdown and
// cleanup problems are logged. Without a prior successful Setup it does nothing, and it may
// be called any number of times.
func (o *Orchestrator) Teardown(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()

	session := o.session.Load()
	if o.machine.Current() != StateReady || session == nil {
		o.logger.Debug("Nothing to tear down")

		return
	}

	o.transition(EventShutdown)

	var target shutdown.Target
	if session.Process != nil {
		target = session.Process
	}

	_ = o.phase(metrics.PhaseShutdown, func() error {
		result, err := o.coordinator.Stop(ctx, target)
		if err != nil {
			err = standarderrors.NewBestEffortError(err)
			sentry.ReportPhaseError(o.logger, metrics.PhaseShutdown, sentry.IssueTypeFor(err), err)
		} else if result.Forced {
			o.logger.Warnf("Service had to be killed after %s", result.Duration.Round(time.Millisecond))
		}

		return err
	})

	o.transition(EventCleanup)
	o.cleanup(ctx, session.Environment)

	o.session.Store(nil)
	o.transition(EventReset)
}

// abortSetup reports err, kills proc and removes env, then returns the Orchestrator to idle.
// The returned error is always fatal, whatever the category of err.
func (o *Orchestrator) abortSetup(phase string, err error, env *environment.Environment, proc *supervisor.Process) error {
	metrics.IncSetupFailure(standarderrors.Kind(err))

	err = standarderrors.NewFatalError(fmt.Errorf("setup failed during %s: %w", phase, err))
	sentry.ReportPhaseError(o.logger, phase, sentry.IssueTypeFor(err), err)

	o.transition(EventShutdown)

	if proc != nil {
		o.kill(proc)
	}

	o.transition(EventCleanup)
	o.cleanup(context.Background(), env)
	o.transition(EventReset)

	return err
}

// kill skips the polite shutdown, a process that never became ready has nothing to save.
// It also runs when proc already died, to sweep what it left behind.
func (o *Orchestrator) kill(proc *supervisor.Process) {
	if err := proc.Kill(); err != nil {
		o.logger.Warnf("Failed to kill service process %d: %v", proc.Pid(), err)
	}

	timer := o.clock.Timer(o.killWait)
	defer timer.Stop()

	select {
	case <-proc.Done():
	case <-timer.C:
		o.logger.Errorf("Service process %d still running %s after kill", proc.Pid(), o.killWait)
	}
}

func (o *Orchestrator) cleanup(ctx context.Context, env *environment.Environment) {
	if env == nil {
		return
	}

	_ = o.phase(metrics.PhaseCleanup, func() error {
		err := o.reconciler.Cleanup(ctx, env)
		if err != nil {
			// a cancelled ctx is not a cleanup sentinel but still must not fail the suite
			err = standarderrors.NewBestEffortError(err)
			sentry.ReportPhaseError(o.logger, metrics.PhaseCleanup, sentry.IssueTypeFor(err), err)
		}

		return err
	})

	// a failed cleanup leaves a directory behind but must not block the next run
	o.provisioner.Release(env)
}

// logDiagnostics dumps what the service said before it failed to become ready.
func (o *Orchestrator) logDiagnostics(env *environment.Environment, proc *supervisor.Process) {
	ctx, cancel := context.WithTimeout(context.Background(), constants.KillWaitTimeout)
	defer cancel()

	// a dead process still has its last lines in flight
	select {
	case <-proc.Done():
		select {
		case <-proc.OutputClosed():
		case <-ctx.Done():
		}
	default:
	}

	raw, err := o.fs.ReadFile(ctx, env.LogPath)
	if err != nil {
		o.logger.Warnf("No service log at %s: %v", env.LogPath, err)
	} else {
		o.logger.Errorf("=== Service log %s (last %d lines) ===\n%s",
			env.LogPath, o.logTailLines, strings.Join(lastLines(string(raw), o.logTailLines), "\n"))
	}

	if tail := proc.OutputTail(o.logTailLines); len(tail) > 0 {
		o.logger.Errorf("=== Service output (last %d lines) ===\n%s", len(tail), strings.Join(tail, "\n"))
	}
}

func (o *Orchestrator) phase(name string, fn func() error) error {
	start := o.clock.Now()
	err := fn()
	metrics.ObservePhase(name, o.clock.Since(start), err)

	return err
}

// transition moves the machine. Call sites only fire events that are valid in the current
// state, so an error here is a bug and is logged loudly rather than returned.
func (o *Orchestrator) transition(event string) {
	// transitions must complete even when the caller's context is already done
	if err := o.machine.Event(context.Background(), event); err != nil {
		o.logger.Errorf("Invalid lifecycle transition %s from %s: %v", event, o.machine.Current(), err)
	}
}

func lastLines(text string, n int) []string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}

	return lines
}
