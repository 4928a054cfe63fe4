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

package lifecycle_test

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/united-manufacturing-hub/lifecycle-harness/internal/testutil"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/config"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/lifecycle"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/standarderrors"
	"go.uber.org/zap"
)

var _ = Describe("Orchestrator", func() {
	var (
		ctx     context.Context
		logger  *zap.SugaredLogger
		cfg     config.HarnessConfig
		baseDir string
		shared  string
	)

	BeforeEach(func() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(context.Background(), time.Now().Add(30*time.Second))
		DeferCleanup(cancel)

		devLogger, _ := zap.NewDevelopment()
		logger = devLogger.Sugar()

		tmp := GinkgoT().TempDir()
		baseDir = filepath.Join(tmp, "envs")
		Expect(os.MkdirAll(baseDir, 0o755)).To(Succeed())

		var err error
		shared, err = testutil.SharedSource(tmp)
		Expect(err).ToNot(HaveOccurred())

		port, err := testutil.FreePort()
		Expect(err).ToNot(HaveOccurred())

		cfg = config.Default()
		cfg.Environment.SourceDir = shared
		cfg.Environment.BaseDir = baseDir
		cfg.Process.Executable = stubPath
		cfg.Process.Port = port
		cfg.Health.ProbeInterval = 100 * time.Millisecond
		cfg.Health.ReadinessTimeout = 10 * time.Second
		cfg.Shutdown.ForcedWaitTimeout = 2 * time.Second
		cfg.Shutdown.KillWaitTimeout = 2 * time.Second
		Expect(cfg.Validate()).To(Succeed())
	})

	newOrchestrator := func() *lifecycle.Orchestrator {
		orchestrator := lifecycle.New(cfg, logger, lifecycle.WithExecutableCandidates())
		DeferCleanup(func() {
			orchestrator.Teardown(context.Background())
		})

		return orchestrator
	}

	leftovers := func() []os.DirEntry {
		entries, err := os.ReadDir(baseDir)
		Expect(err).ToNot(HaveOccurred())

		return entries
	}

	expectSharedSourceIntact := func() {
		Expect(filepath.Join(shared, "BlueprintMCP.uplugin")).To(BeAnExistingFile())
	}

	healthStatus := func(baseURL string) (int, error) {
		resp, err := http.Get(baseURL + "/api/health")
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()

		return resp.StatusCode, nil
	}

	It("runs a full setup and teardown cycle", func() {
		cfg.Process.Env = []string{"STUB_READY_AFTER=300ms"}
		orchestrator := newOrchestrator()

		Expect(orchestrator.State()).To(Equal(lifecycle.StateIdle))
		Expect(orchestrator.Session()).To(BeNil())

		session, err := orchestrator.Setup(ctx)
		Expect(err).ToNot(HaveOccurred())

		Expect(orchestrator.State()).To(Equal(lifecycle.StateReady))
		Expect(orchestrator.Session()).To(BeIdenticalTo(session))
		Expect(session.BaseURL).To(Equal(cfg.BaseURL()))
		Expect(session.Environment.DescriptorPath).To(BeAnExistingFile())
		Expect(session.ReadyAt).ToNot(BeZero())
		Expect(healthStatus(session.BaseURL)).To(Equal(http.StatusOK))

		client := orchestrator.Client()
		Expect(client).ToNot(BeNil())
		health, err := client.Health(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(health.String("status")).To(Equal("ok"))

		orchestrator.Teardown(ctx)

		Expect(orchestrator.State()).To(Equal(lifecycle.StateIdle))
		Expect(orchestrator.Session()).To(BeNil())
		Expect(orchestrator.Client()).To(BeNil())
		Expect(session.Process.Done()).To(BeClosed())

		status, _ := session.Process.ExitEvent().Status()
		Expect(status.Signaled).To(BeFalse())
		Expect(status.Code).To(Equal(0))

		Expect(leftovers()).To(BeEmpty())
		expectSharedSourceIntact()
	})

	It("refuses a second setup and accepts repeated teardowns", func() {
		orchestrator := newOrchestrator()

		orchestrator.Teardown(ctx)
		Expect(orchestrator.State()).To(Equal(lifecycle.StateIdle))

		_, err := orchestrator.Setup(ctx)
		Expect(err).ToNot(HaveOccurred())

		_, err = orchestrator.Setup(ctx)
		Expect(errors.Is(err, standarderrors.ErrAlreadySetUp)).To(BeTrue())

		orchestrator.Teardown(ctx)
		orchestrator.Teardown(ctx)
		Expect(orchestrator.State()).To(Equal(lifecycle.StateIdle))
	})

	It("can run again after a teardown", func() {
		orchestrator := newOrchestrator()

		first, err := orchestrator.Setup(ctx)
		Expect(err).ToNot(HaveOccurred())
		orchestrator.Teardown(ctx)

		second, err := orchestrator.Setup(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(second.Environment.RootPath).ToNot(Equal(first.Environment.RootPath))
		Expect(second.Process.Pid()).ToNot(Equal(first.Process.Pid()))
	})

	It("kills a service that ignores the shutdown request", func() {
		cfg.Process.Env = []string{"STUB_IGNORE_SHUTDOWN=true"}
		cfg.Shutdown.ForcedWaitTimeout = 500 * time.Millisecond
		orchestrator := newOrchestrator()

		session, err := orchestrator.Setup(ctx)
		Expect(err).ToNot(HaveOccurred())

		start := time.Now()
		orchestrator.Teardown(ctx)
		Expect(time.Since(start)).To(BeNumerically("<", 5*time.Second))

		Expect(session.Process.Done()).To(BeClosed())
		status, _ := session.Process.ExitEvent().Status()
		Expect(status.Signaled).To(BeTrue())
		Expect(leftovers()).To(BeEmpty())
	})

	It("fails fast without spawning when no executable exists", func() {
		cfg.Process.Executable = filepath.Join(GinkgoT().TempDir(), "missing-editor")
		orchestrator := newOrchestrator()

		_, err := orchestrator.Setup(ctx)
		Expect(errors.Is(err, standarderrors.ErrExecutableNotFound)).To(BeTrue())
		Expect(standarderrors.IsFatal(err)).To(BeTrue())

		var categorized *standarderrors.CategorizedError
		Expect(errors.As(err, &categorized)).To(BeTrue())
		Expect(categorized.Category).To(Equal(standarderrors.CategoryFatal))

		Expect(orchestrator.State()).To(Equal(lifecycle.StateIdle))
		Expect(orchestrator.Session()).To(BeNil())
		Expect(leftovers()).To(BeEmpty())
		expectSharedSourceIntact()
	})

	It("fails with provisioning error when the shared source is gone", func() {
		Expect(os.RemoveAll(shared)).To(Succeed())
		orchestrator := newOrchestrator()

		_, err := orchestrator.Setup(ctx)
		Expect(errors.Is(err, standarderrors.ErrProvisioning)).To(BeTrue())
		Expect(orchestrator.State()).To(Equal(lifecycle.StateIdle))
		Expect(leftovers()).To(BeEmpty())
	})

	It("reports a process that dies during startup without waiting for the deadline", func() {
		cfg.Process.Env = []string{"STUB_READY_AFTER=1h", "STUB_EXIT_AFTER=500ms", "STUB_EXIT_CODE=5"}
		cfg.Health.ProbeInterval = 2 * time.Second
		cfg.Health.ReadinessTimeout = time.Minute
		orchestrator := newOrchestrator()

		start := time.Now()
		_, err := orchestrator.Setup(ctx)
		Expect(errors.Is(err, standarderrors.ErrProcessDiedEarly)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("exited with code 5"))
		Expect(time.Since(start)).To(BeNumerically("<", 10*time.Second))

		Expect(orchestrator.State()).To(Equal(lifecycle.StateIdle))
		Expect(leftovers()).To(BeEmpty())
		expectSharedSourceIntact()
	})

	It("gives up at the readiness deadline and kills the service", func() {
		cfg.Process.Env = []string{"STUB_READY_AFTER=1h"}
		cfg.Health.ReadinessTimeout = time.Second
		orchestrator := newOrchestrator()

		start := time.Now()
		_, err := orchestrator.Setup(ctx)
		Expect(errors.Is(err, standarderrors.ErrReadinessTimeout)).To(BeTrue())
		Expect(time.Since(start)).To(BeNumerically(">=", time.Second))
		Expect(time.Since(start)).To(BeNumerically("<", 8*time.Second))

		Expect(orchestrator.State()).To(Equal(lifecycle.StateIdle))
		Expect(leftovers()).To(BeEmpty())

		// the port is free again once the killed service is gone
		Eventually(func() error {
			_, err := healthStatus(cfg.BaseURL())

			return err
		}, 5*time.Second).Should(HaveOccurred())
	})

	It("rolls back when the caller cancels during readiness", func() {
		cfg.Process.Env = []string{"STUB_READY_AFTER=1h"}
		orchestrator := newOrchestrator()

		setupCtx, cancel := context.WithCancel(ctx)
		time.AfterFunc(500*time.Millisecond, cancel)

		_, err := orchestrator.Setup(setupCtx)
		Expect(errors.Is(err, context.Canceled)).To(BeTrue())
		Expect(standarderrors.IsFatal(err)).To(BeTrue())
		Expect(orchestrator.State()).To(Equal(lifecycle.StateIdle))
		Expect(leftovers()).To(BeEmpty())
	})
})
