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

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/config"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/constants"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/lifecycle"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/logger"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/metrics"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/sentry"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/service/filesystem"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/standarderrors"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/supervisor"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

// Set via -ldflags in release builds.
var appVersion = constants.DefaultAppVersion

const (
	exitSetupFailed   = 1
	exitInvalidConfig = 2
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		EnvVars: []string{config.EnvConfigFile},
		Usage:   "Path to the harness YAML configuration",
	}
	executableFlag = &cli.StringFlag{
		Name:  "executable",
		Usage: "Service executable, overrides " + constants.ExecutableOverrideEnv + " and the install locations",
	}
	sourceFlag = &cli.StringFlag{
		Name:  "source",
		Usage: "Shared plugin source directory linked into each environment",
	}
	portFlag = &cli.IntFlag{
		Name:  "port",
		Usage: "Port the service listens on",
	}
	metricsAddrFlag = &cli.StringFlag{
		Name:    "metrics-addr",
		EnvVars: []string{"HARNESS_METRICS_ADDR"},
		Usage:   "Serve Prometheus metrics on this address, e.g. :9102. Disabled when empty",
	}
	sentryDSNFlag = &cli.StringFlag{
		Name:    "sentry-dsn",
		EnvVars: []string{"HARNESS_SENTRY_DSN"},
		Usage:   "Report fatal setup errors to this Sentry DSN",
	}
)

func main() {
	logger.Initialize()
	defer func() {
		_ = logger.Sync()
	}()

	if err := newApp().Run(os.Args); err != nil {
		logger.For(logger.ComponentCore).Errorf("lifecycle-harness failed: %v", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "lifecycle-harness",
		Usage:   "Run the service in a throwaway environment for integration tests",
		Version: appVersion,
		Commands: []*cli.Command{
			{
				Name:   "up",
				Usage:  "Set up an environment, start the service, and tear both down on SIGINT or SIGTERM",
				Flags:  []cli.Flag{configFlag, executableFlag, sourceFlag, portFlag, metricsAddrFlag, sentryDSNFlag},
				Action: up,
			},
			{
				Name:   "resolve",
				Usage:  "Print the service executable that would be launched",
				Flags:  []cli.Flag{configFlag, executableFlag},
				Action: resolve,
			},
		},
	}
}

// loadConfig applies command line flags on top of file and environment settings.
func loadConfig(c *cli.Context) (config.HarnessConfig, error) {
	cfg, err := config.Load(c.String(configFlag.Name))
	if err != nil {
		return cfg, err
	}

	if c.IsSet(executableFlag.Name) {
		cfg.Process.Executable = c.String(executableFlag.Name)
	}

	if c.IsSet(sourceFlag.Name) {
		cfg.Environment.SourceDir = c.String(sourceFlag.Name)
	}

	if c.IsSet(portFlag.Name) {
		cfg.Process.Port = c.Int(portFlag.Name)
	}

	return cfg, nil
}

func up(c *cli.Context) error {
	log := logger.For(logger.ComponentCore)

	sentry.InitSentry(appVersion, c.String(sentryDSNFlag.Name))

	cfg, err := loadConfig(c)
	if err == nil {
		err = cfg.Validate()
	}

	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid configuration: %v", err), exitInvalidConfig)
	}

	if addr := c.String(metricsAddrFlag.Name); addr != "" {
		server := metrics.SetupMetricsEndpoint(addr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				sentry.ReportIssuef(sentry.IssueTypeError, log, "Failed to shutdown metrics server: %w", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	orchestrator := lifecycle.New(cfg, zap.S())

	session, err := orchestrator.Setup(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("Setup interrupted")

			return nil
		}

		return cli.Exit(err.Error(), exitSetupFailed)
	}

	log.Infow("Service ready",
		"baseURL", session.BaseURL,
		"pid", session.Process.Pid(),
		"environment", session.Environment.RootPath,
		"serviceLog", session.Environment.LogPath)
	fmt.Fprintln(c.App.Writer, session.BaseURL)

	select {
	case <-ctx.Done():
		log.Info("Signal received, tearing down")
	case <-session.Process.Done():
		status, _ := session.Process.ExitEvent().Status()
		log.Warnf("Service exited on its own (%s), tearing down", status)
	}

	// Teardown bounds its own waits and must run to completion after the signal.
	orchestrator.Teardown(context.Background())

	return nil
}

func resolve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid configuration: %v", err), exitInvalidConfig)
	}

	path, err := supervisor.ResolveExecutable(c.Context, filesystem.NewDefaultService(),
		cfg.Process.Executable, constants.DefaultExecutableCandidates())
	if err != nil {
		if errors.Is(err, standarderrors.ErrExecutableNotFound) {
			return cli.Exit(err.Error(), exitSetupFailed)
		}

		return err
	}

	fmt.Fprintln(c.App.Writer, path)

	return nil
}
