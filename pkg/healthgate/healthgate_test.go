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

package healthgate_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/united-manufacturing-hub/lifecycle-harness/internal/stubservice"
	"github.com/united-manufacturing-hub/lifecycle-harness/internal/testutil"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/exitevent"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/healthgate"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/standarderrors"
	"go.uber.org/zap"
)

var _ = Describe("Gate", func() {
	var (
		ctx    context.Context
		logger *zap.SugaredLogger
	)

	BeforeEach(func() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(context.Background(), time.Now().Add(10*time.Second))
		DeferCleanup(cancel)

		devLogger, _ := zap.NewDevelopment()
		logger = devLogger.Sugar()
	})

	startStub := func(opts stubservice.Options) string {
		server := httptest.NewServer(stubservice.New(opts, logger).Handler())
		DeferCleanup(server.Close)

		return server.URL
	}

	newGate := func(baseURL string, interval time.Duration) *healthgate.Gate {
		cfg := healthgate.DefaultConfig(baseURL)
		cfg.Interval = interval
		cfg.ProbeTimeout = 500 * time.Millisecond

		return healthgate.New(cfg, logger)
	}

	Describe("Probe", func() {
		It("reports a starting service as unhealthy", func() {
			gate := newGate(startStub(stubservice.Options{ReadyAfter: time.Hour}), 50*time.Millisecond)

			result := gate.Probe(ctx)
			Expect(result.Healthy).To(BeFalse())
			Expect(result.StatusCode).To(Equal(http.StatusServiceUnavailable))
			Expect(result.Err).ToNot(HaveOccurred())
		})

		It("reports a ready service as healthy", func() {
			result := newGate(startStub(stubservice.Options{}), 50*time.Millisecond).Probe(ctx)
			Expect(result.Healthy).To(BeTrue())
			Expect(result.StatusCode).To(Equal(http.StatusOK))
		})

		It("accepts any 2xx answer", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			}))
			DeferCleanup(server.Close)

			result := newGate(server.URL, 50*time.Millisecond).Probe(ctx)
			Expect(result.Healthy).To(BeTrue())
			Expect(result.StatusCode).To(Equal(http.StatusNoContent))
		})

		It("treats a redirect as unhealthy", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotModified)
			}))
			DeferCleanup(server.Close)

			result := newGate(server.URL, 50*time.Millisecond).Probe(ctx)
			Expect(result.Healthy).To(BeFalse())
			Expect(result.StatusCode).To(Equal(http.StatusNotModified))
		})
	})

	Describe("WaitUntilReady", func() {
		It("returns once the service turns healthy", func() {
			gate := newGate(startStub(stubservice.Options{ReadyAfter: 300 * time.Millisecond}), 50*time.Millisecond)

			Expect(gate.WaitUntilReady(ctx, 5*time.Second, exitevent.New())).To(Succeed())
		})

		It("keeps probing through connection errors until the deadline", func() {
			port, err := testutil.FreePort()
			Expect(err).ToNot(HaveOccurred())

			gate := newGate("http://127.0.0.1:"+strconv.Itoa(port), 50*time.Millisecond)

			start := time.Now()
			err = gate.WaitUntilReady(ctx, 400*time.Millisecond, exitevent.New())
			Expect(errors.Is(err, standarderrors.ErrReadinessTimeout)).To(BeTrue())
			Expect(time.Since(start)).To(BeNumerically(">=", 400*time.Millisecond))
			Expect(time.Since(start)).To(BeNumerically("<", 3*time.Second))
		})

		It("times out when the service never becomes healthy", func() {
			gate := newGate(startStub(stubservice.Options{ReadyAfter: time.Hour}), 50*time.Millisecond)

			err := gate.WaitUntilReady(ctx, 300*time.Millisecond, nil)
			Expect(errors.Is(err, standarderrors.ErrReadinessTimeout)).To(BeTrue())
			Expect(errors.Is(err, standarderrors.ErrProcessDiedEarly)).To(BeFalse())
		})

		It("stops promptly when the process exits", func() {
			gate := newGate(startStub(stubservice.Options{ReadyAfter: time.Hour}), 5*time.Second)
			exit := exitevent.New()

			go func() {
				defer GinkgoRecover()
				time.Sleep(200 * time.Millisecond)
				exit.Fire(exitevent.Status{Code: 7})
			}()

			start := time.Now()
			err := gate.WaitUntilReady(ctx, 30*time.Second, exit)
			Expect(errors.Is(err, standarderrors.ErrProcessDiedEarly)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("exited with code 7"))
			Expect(time.Since(start)).To(BeNumerically("<", 2*time.Second))
		})

		It("fails immediately for a process that already exited", func() {
			gate := newGate(startStub(stubservice.Options{}), 50*time.Millisecond)
			exit := exitevent.New()
			exit.Fire(exitevent.Status{Code: 1})

			err := gate.WaitUntilReady(ctx, 5*time.Second, exit)
			Expect(errors.Is(err, standarderrors.ErrProcessDiedEarly)).To(BeTrue())
		})

		It("returns the context error when the caller gives up", func() {
			gate := newGate(startStub(stubservice.Options{ReadyAfter: time.Hour}), 50*time.Millisecond)

			callerCtx, cancel := context.WithCancel(ctx)
			time.AfterFunc(150*time.Millisecond, cancel)

			err := gate.WaitUntilReady(callerCtx, 5*time.Second, exitevent.New())
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
		})
	})
})
