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

// Package healthgate polls the service health endpoint until it answers 2xx, the
// process dies or the readiness deadline passes, whichever comes first.
package healthgate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/constants"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/exitevent"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/metrics"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/standarderrors"
	"go.uber.org/zap"
)

const maxDrainBytes = 64 * 1024

var errProcessExited = errors.New("process exited")

// Config of a Gate.
type Config struct {
	// URL is the full health endpoint URL.
	URL          string
	ProbeTimeout time.Duration
	Interval     time.Duration
}

// DefaultConfig returns the standard probing cadence for the service at baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		URL:          baseURL + constants.HealthEndpoint,
		ProbeTimeout: constants.HealthProbeTimeout,
		Interval:     constants.HealthProbeInterval,
	}
}

// CheckResult is the outcome of one probe.
type CheckResult struct {
	Healthy    bool
	StatusCode int
	Latency    time.Duration
	// Err is set when no HTTP answer was received at all.
	Err error
}

func (r CheckResult) String() string {
	if r.Err != nil {
		return r.Err.Error()
	}

	if r.StatusCode == 0 {
		return "no probe"
	}

	return fmt.Sprintf("status %d", r.StatusCode)
}

// Gate probes one health endpoint.
type Gate struct {
	cfg    Config
	client *http.Client
	logger *zap.SugaredLogger
}

// New creates a Gate.
func New(cfg Config, logger *zap.SugaredLogger) *Gate {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = constants.HealthProbeTimeout
	}

	if cfg.Interval <= 0 {
		cfg.Interval = constants.HealthProbeInterval
	}

	return &Gate{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.ProbeTimeout},
		logger: logger,
	}
}

// Probe sends a single health request. Any 2xx counts as healthy.
func (g *Gate) Probe(ctx context.Context) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.ProbeTimeout)
	defer cancel()

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.URL, nil)
	if err != nil {
		return CheckResult{Err: err}
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return CheckResult{Err: err, Latency: time.Since(start)}
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	return CheckResult{
		Healthy:    resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices,
		StatusCode: resp.StatusCode,
		Latency:    time.Since(start),
	}
}

// WaitUntilReady probes every Interval until the service is healthy.
//
// It returns ErrProcessDiedEarly as soon as exit fires (an in-flight probe is abandoned),
// ErrReadinessTimeout once timeout elapsed, or ctx.Err() when ctx ends first.
// A nil exit means the process is not observed.
func (g *Gate) WaitUntilReady(ctx context.Context, timeout time.Duration, exit *exitevent.Event) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	probeCtx, cancelProbes := context.WithCancel(waitCtx)
	defer cancelProbes()

	if exit != nil {
		go func() {
			select {
			case <-exit.Done():
				cancelProbes()
			case <-probeCtx.Done():
			}
		}()
	}

	start := time.Now()
	attempts := 0

	var last CheckResult

	operation := func() error {
		if exit != nil && exit.Fired() {
			return backoff.Permanent(errProcessExited)
		}

		attempts++
		last = g.Probe(probeCtx)
		metrics.RecordHealthProbe(last.Healthy)

		if last.Healthy {
			return nil
		}

		return errors.New(last.String())
	}

	notify := func(err error, next time.Duration) {
		g.logger.Debugf("Service not ready after probe %d (%v), next probe in %s", attempts, err, next)
	}

	policy := backoff.WithContext(backoff.NewConstantBackOff(g.cfg.Interval), probeCtx)

	err := backoff.RetryNotify(operation, policy, notify)
	if err == nil {
		g.logger.Infof("Service healthy after %d probes in %s", attempts, time.Since(start).Round(time.Millisecond))

		return nil
	}

	if exit != nil {
		if status, fired := exit.Status(); fired {
			return fmt.Errorf("%w: %s after %d probes", standarderrors.ErrProcessDiedEarly, status, attempts)
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	return fmt.Errorf("%w: not healthy within %s after %d probes, last probe: %s",
		standarderrors.ErrReadinessTimeout, timeout, attempts, last)
}
