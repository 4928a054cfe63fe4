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

// Package shutdown stops the service: a polite request first, a forced kill of the whole
// process tree when the process does not exit in time.
package shutdown

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/constants"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/ctxutil"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/exitevent"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/metrics"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/standarderrors"
	"go.uber.org/zap"
)

// Target is the process being stopped.
type Target interface {
	ExitEvent() *exitevent.Event
	Kill() error
	Pid() int
}

// Config of a Coordinator.
type Config struct {
	// URL is the full shutdown endpoint URL.
	URL string
	// RequestTimeout caps the shutdown request.
	RequestTimeout time.Duration
	// ForcedWait is how long the process may take to exit after the request.
	ForcedWait time.Duration
	// KillWait is how long the exit may take to be observed after the kill.
	KillWait time.Duration
}

// DefaultConfig returns the standard timeouts for the service at baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		URL:            baseURL + constants.ShutdownEndpoint,
		RequestTimeout: constants.GracefulShutdownTimeout,
		ForcedWait:     constants.ForcedWaitTimeout,
		KillWait:       constants.KillWaitTimeout,
	}
}

// Result describes how the process was stopped.
type Result struct {
	// Requested is true when the service acknowledged the shutdown request.
	Requested bool
	// Graceful is true when the process exited without being killed.
	Graceful bool
	Forced   bool
	// Exited is false only when even the kill could not be confirmed.
	Exited   bool
	Duration time.Duration
}

// Coordinator stops service processes.
type Coordinator struct {
	cfg    Config
	client *http.Client
	logger *zap.SugaredLogger
}

// New creates a Coordinator.
func New(cfg Config, logger *zap.SugaredLogger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = constants.GracefulShutdownTimeout
	}

	if cfg.KillWait <= 0 {
		cfg.KillWait = constants.KillWaitTimeout
	}

	return &Coordinator{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
		logger: logger,
	}
}

// Stop brings target down. It never fails because of the shutdown request: an unreachable
// or misbehaving service is simply killed. The only error is ErrShutdownBestEffort, when the
// exit could not be observed even after the kill.
//
// A cancelled ctx skips the polite wait but never the kill.
func (c *Coordinator) Stop(ctx context.Context, target Target) (Result, error) {
	start := time.Now()
	result := Result{}

	if target == nil {
		result.Exited = true

		return result, nil
	}

	exit := target.ExitEvent()

	if exit.Fired() {
		result.Exited = true
		result.Graceful = true
		c.logger.Debugf("Service process %d already exited", target.Pid())
		c.sweep(target)

		return result, nil
	}

	if err := c.requestShutdown(ctx); err != nil {
		c.logger.Debugf("Shutdown request not delivered: %v", err)
	} else {
		result.Requested = true
	}

	if status, ok := waitForExit(ctx, exit, ctxutil.BoundedTimeout(ctx, c.cfg.ForcedWait)); ok {
		result.Exited = true
		result.Graceful = true
		result.Duration = time.Since(start)
		c.logger.Infof("Service process %d %s after %s", target.Pid(), status, result.Duration.Round(time.Millisecond))
		c.sweep(target)

		return result, nil
	}

	c.logger.Warnf("Service process %d did not exit within %s, killing it", target.Pid(), c.cfg.ForcedWait)
	metrics.IncForcedKill()

	result.Forced = true
	killErr := target.Kill()

	// independent of ctx, a cancelled caller still needs the kill confirmed
	_, result.Exited = waitForExit(context.Background(), exit, c.cfg.KillWait)
	result.Duration = time.Since(start)

	if !result.Exited {
		return result, fmt.Errorf("%w: process %d still running %s after kill (kill error: %v)",
			standarderrors.ErrShutdownBestEffort, target.Pid(), c.cfg.KillWait, killErr)
	}

	if killErr != nil {
		c.logger.Debugf("Kill reported %v but the process exited", killErr)
	}

	return result, nil
}

// sweep kills whatever an exited target left running, e.g. a shader compiler it forked.
func (c *Coordinator) sweep(target Target) {
	if err := target.Kill(); err != nil {
		c.logger.Warnf("Failed to kill leftovers of service process %d: %v", target.Pid(), err)
	}
}

func (c *Coordinator) requestShutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader([]byte("{}")))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("shutdown endpoint answered %d", resp.StatusCode)
	}

	return nil
}

// waitForExit reports whether exit fired within d, and how. ctx ending counts as not exited.
func waitForExit(ctx context.Context, exit *exitevent.Event, d time.Duration) (exitevent.Status, bool) {
	if d <= 0 {
		return exit.Status()
	}

	sub := exit.Subscribe()
	defer sub.Cancel()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case status := <-sub.C:
		return status, true
	case <-timer.C:
		return exit.Status()
	case <-ctx.Done():
		return exit.Status()
	}
}
