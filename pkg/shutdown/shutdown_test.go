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

package shutdown_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/united-manufacturing-hub/lifecycle-harness/internal/stubservice"
	"github.com/united-manufacturing-hub/lifecycle-harness/internal/testutil"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/exitevent"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/shutdown"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/standarderrors"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// fakeProcess exits when killed, unless unkillable.
type fakeProcess struct {
	exit       *exitevent.Event
	kills      atomic.Int32
	unkillable bool
}

func newFakeProcess() *fakeProcess {
	return &fakeProcess{exit: exitevent.New()}
}

func (p *fakeProcess) ExitEvent() *exitevent.Event { return p.exit }
func (p *fakeProcess) Pid() int                    { return 4242 }

func (p *fakeProcess) Kill() error {
	p.kills.Add(1)

	if p.unkillable {
		return errors.New("operation not permitted")
	}

	p.exit.Fire(exitevent.Status{Code: -1, Signaled: true, Signal: "killed"})

	return nil
}

var _ = Describe("Coordinator", func() {
	var (
		ctx    context.Context
		logger *zap.SugaredLogger
		proc   *fakeProcess
	)

	BeforeEach(func() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(context.Background(), time.Now().Add(10*time.Second))
		DeferCleanup(cancel)

		devLogger, _ := zap.NewDevelopment()
		logger = devLogger.Sugar()
		proc = newFakeProcess()
	})

	// startStub serves the stub API and fires the process exit when shutdown is honored.
	startStub := func(opts stubservice.Options) string {
		stub := stubservice.New(opts, logger)
		server := httptest.NewServer(stub.Handler())
		DeferCleanup(server.Close)

		go func() {
			select {
			case <-stub.ShutdownRequested():
				proc.exit.Fire(exitevent.Status{Code: 0})
			case <-ctx.Done():
			}
		}()

		return server.URL
	}

	newCoordinator := func(baseURL string) *shutdown.Coordinator {
		cfg := shutdown.DefaultConfig(baseURL)
		cfg.RequestTimeout = 300 * time.Millisecond
		cfg.ForcedWait = 300 * time.Millisecond
		cfg.KillWait = 300 * time.Millisecond

		return shutdown.New(cfg, logger)
	}

	It("stops a cooperative service without forcing it", func() {
		result, err := newCoordinator(startStub(stubservice.Options{})).Stop(ctx, proc)
		Expect(err).ToNot(HaveOccurred())

		Expect(result.Requested).To(BeTrue())
		Expect(result.Graceful).To(BeTrue())
		Expect(result.Forced).To(BeFalse())
		Expect(result.Exited).To(BeTrue())

		// one kill after the exit, for whatever the process left behind
		Expect(proc.kills.Load()).To(Equal(int32(1)))
	})

	It("logs how a cooperative service exited", func() {
		core, logs := observer.New(zap.InfoLevel)
		baseURL := startStub(stubservice.Options{})
		cfg := shutdown.DefaultConfig(baseURL)
		cfg.ForcedWait = 2 * time.Second

		_, err := shutdown.New(cfg, zap.New(core).Sugar()).Stop(ctx, proc)
		Expect(err).ToNot(HaveOccurred())

		Expect(logs.FilterMessageSnippet("exited with code 0").Len()).To(Equal(1))
	})

	It("kills a service that ignores the shutdown request", func() {
		result, err := newCoordinator(startStub(stubservice.Options{IgnoreShutdown: true})).Stop(ctx, proc)
		Expect(err).ToNot(HaveOccurred())

		Expect(result.Requested).To(BeTrue())
		Expect(result.Forced).To(BeTrue())
		Expect(result.Exited).To(BeTrue())
		Expect(result.Duration).To(BeNumerically(">=", 300*time.Millisecond))
		// request, polite wait and kill wait, nothing more
		Expect(result.Duration).To(BeNumerically("<", 300*time.Millisecond+300*time.Millisecond+300*time.Millisecond+time.Second))
		Expect(proc.kills.Load()).To(Equal(int32(1)))
	})

	It("kills a service whose endpoint is unreachable", func() {
		port, err := testutil.FreePort()
		Expect(err).ToNot(HaveOccurred())

		result, err := newCoordinator("http://127.0.0.1:"+strconv.Itoa(port)).Stop(ctx, proc)
		Expect(err).ToNot(HaveOccurred())

		Expect(result.Requested).To(BeFalse())
		Expect(result.Forced).To(BeTrue())
		Expect(result.Exited).To(BeTrue())
	})

	It("does not contact a process that already exited but sweeps its leftovers", func() {
		var requests atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
		}))
		DeferCleanup(server.Close)

		proc.exit.Fire(exitevent.Status{Code: 0})

		result, err := newCoordinator(server.URL).Stop(ctx, proc)
		Expect(err).ToNot(HaveOccurred())
		Expect(result.Exited).To(BeTrue())
		Expect(requests.Load()).To(BeZero())
		Expect(result.Forced).To(BeFalse())
		Expect(proc.kills.Load()).To(Equal(int32(1)))
	})

	It("reports a best effort failure when the kill cannot be confirmed", func() {
		proc.unkillable = true

		result, err := newCoordinator(startStub(stubservice.Options{IgnoreShutdown: true})).Stop(ctx, proc)
		Expect(errors.Is(err, standarderrors.ErrShutdownBestEffort)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("operation not permitted"))
		Expect(result.Forced).To(BeTrue())
		Expect(result.Exited).To(BeFalse())
	})

	It("skips the polite wait for a cancelled caller but still kills", func() {
		cfg := shutdown.DefaultConfig(startStub(stubservice.Options{IgnoreShutdown: true}))
		cfg.ForcedWait = time.Minute
		coordinator := shutdown.New(cfg, logger)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		start := time.Now()
		result, err := coordinator.Stop(cancelled, proc)
		Expect(err).ToNot(HaveOccurred())
		Expect(result.Forced).To(BeTrue())
		Expect(result.Exited).To(BeTrue())
		Expect(time.Since(start)).To(BeNumerically("<", 5*time.Second))
	})

	It("treats a nil target as already stopped", func() {
		result, err := newCoordinator("http://127.0.0.1:1").Stop(ctx, nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(result.Exited).To(BeTrue())
	})
})
