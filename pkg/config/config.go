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

// Package config loads the harness configuration.
//
// Precedence, highest first: environment variables, the YAML file, built-in defaults.
package config

import (
	"fmt"
	"maps"
	"net"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/tiendc/go-deepcopy"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/constants"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/env"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Environment variables read by Load.
const (
	EnvConfigFile        = "HARNESS_CONFIG"
	EnvSourceDir         = "HARNESS_SOURCE_DIR"
	EnvBaseDir           = "HARNESS_BASE_DIR"
	EnvPort              = "HARNESS_PORT"
	EnvReadinessTimeout  = "HARNESS_READINESS_TIMEOUT"
	EnvProbeInterval     = "HARNESS_PROBE_INTERVAL"
	EnvGracefulTimeout   = "HARNESS_GRACEFUL_TIMEOUT"
	EnvForcedWaitTimeout = "HARNESS_FORCED_WAIT_TIMEOUT"
)

// HarnessConfig is the complete harness configuration.
type HarnessConfig struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Process     ProcessConfig     `yaml:"process"`
	Health      HealthConfig      `yaml:"health"`
	Shutdown    ShutdownConfig    `yaml:"shutdown"`
	API         APIConfig         `yaml:"api"`
}

type EnvironmentConfig struct {
	// SourceDir is the shared plugin source aliased into every environment.
	SourceDir  string `yaml:"sourceDir"`
	BaseDir    string `yaml:"baseDir"`
	NamePrefix string `yaml:"namePrefix"`
}

type ProcessConfig struct {
	// Executable overrides the default install locations.
	Executable string   `yaml:"executable"`
	RunMode    string   `yaml:"runMode"`
	Port       int      `yaml:"port"`
	ExtraArgs  []string `yaml:"extraArgs"`
	// Env holds KEY=VALUE entries added to the inherited process environment.
	Env             []string `yaml:"env"`
	OutputTailLines int      `yaml:"outputTailLines"`
}

type HealthConfig struct {
	ReadinessTimeout time.Duration `yaml:"readinessTimeout"`
	ProbeInterval    time.Duration `yaml:"probeInterval"`
	ProbeTimeout     time.Duration `yaml:"probeTimeout"`
	// LogTailLines is how many service log lines are dumped when readiness fails.
	LogTailLines int `yaml:"logTailLines"`
}

type ShutdownConfig struct {
	GracefulTimeout   time.Duration `yaml:"gracefulTimeout"`
	ForcedWaitTimeout time.Duration `yaml:"forcedWaitTimeout"`
	KillWaitTimeout   time.Duration `yaml:"killWaitTimeout"`
}

type APIConfig struct {
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	RetryMax       int           `yaml:"retryMax"`
}

// Default returns the built-in configuration. SourceDir has no default.
func Default() HarnessConfig {
	return HarnessConfig{
		Environment: EnvironmentConfig{
			BaseDir:    os.TempDir(),
			NamePrefix: constants.EnvironmentNamePrefix,
		},
		Process: ProcessConfig{
			RunMode:         constants.DefaultRunMode,
			Port:            constants.DefaultServicePort,
			OutputTailLines: constants.OutputTailLines,
		},
		Health: HealthConfig{
			ReadinessTimeout: constants.ReadinessTimeout,
			ProbeInterval:    constants.HealthProbeInterval,
			ProbeTimeout:     constants.HealthProbeTimeout,
			LogTailLines:     constants.DiagnosticLogTailLines,
		},
		Shutdown: ShutdownConfig{
			GracefulTimeout:   constants.GracefulShutdownTimeout,
			ForcedWaitTimeout: constants.ForcedWaitTimeout,
			KillWaitTimeout:   constants.KillWaitTimeout,
		},
		API: APIConfig{
			RequestTimeout: constants.APIRequestTimeout,
			RetryMax:       constants.APIRetryMax,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path and the environment.
// An empty path falls back to $HARNESS_CONFIG; no file at all is fine.
// Load does not validate, call Validate once all overrides (e.g. CLI flags) are applied.
func Load(path string) (HarnessConfig, error) {
	cfg := Default()

	if path == "" {
		path, _ = env.GetAsString(EnvConfigFile, false, "")
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return HarnessConfig{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return HarnessConfig{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return HarnessConfig{}, err
	}

	return cfg, nil
}

func applyEnv(cfg *HarnessConfig) error {
	var errs, err error

	cfg.Process.Executable, _ = env.GetAsString(constants.ExecutableOverrideEnv, false, cfg.Process.Executable)
	cfg.Environment.SourceDir, _ = env.GetAsString(EnvSourceDir, false, cfg.Environment.SourceDir)
	cfg.Environment.BaseDir, _ = env.GetAsString(EnvBaseDir, false, cfg.Environment.BaseDir)

	// set but unparsable values are reported rather than silently ignored
	if cfg.Process.Port, err = intFromEnv(EnvPort, cfg.Process.Port); err != nil {
		errs = multierr.Append(errs, err)
	}

	durations := []struct {
		key    string
		target *time.Duration
	}{
		{EnvReadinessTimeout, &cfg.Health.ReadinessTimeout},
		{EnvProbeInterval, &cfg.Health.ProbeInterval},
		{EnvGracefulTimeout, &cfg.Shutdown.GracefulTimeout},
		{EnvForcedWaitTimeout, &cfg.Shutdown.ForcedWaitTimeout},
	}

	for _, d := range durations {
		if *d.target, err = durationFromEnv(d.key, *d.target); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

func intFromEnv(key string, current int) (int, error) {
	if _, set := os.LookupEnv(key); !set {
		return current, nil
	}

	return env.GetAsInt(key, true, current)
}

func durationFromEnv(key string, current time.Duration) (time.Duration, error) {
	if _, set := os.LookupEnv(key); !set {
		return current, nil
	}

	return env.GetAsDuration(key, true, current)
}

// Validate reports every invalid setting at once.
func (c HarnessConfig) Validate() error {
	var errs error

	if c.Environment.SourceDir == "" {
		errs = multierr.Append(errs, fmt.Errorf("environment.sourceDir is required (or set %s)", EnvSourceDir))
	} else if info, err := os.Stat(c.Environment.SourceDir); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("environment.sourceDir: %w", err))
	} else if !info.IsDir() {
		errs = multierr.Append(errs, fmt.Errorf("environment.sourceDir %s is not a directory", c.Environment.SourceDir))
	}

	if c.Process.Port <= 0 || c.Process.Port > 65535 {
		errs = multierr.Append(errs, fmt.Errorf("process.port %d out of range", c.Process.Port))
	}

	positive := map[string]time.Duration{
		"health.readinessTimeout":    c.Health.ReadinessTimeout,
		"health.probeInterval":       c.Health.ProbeInterval,
		"health.probeTimeout":        c.Health.ProbeTimeout,
		"shutdown.gracefulTimeout":   c.Shutdown.GracefulTimeout,
		"shutdown.forcedWaitTimeout": c.Shutdown.ForcedWaitTimeout,
		"shutdown.killWaitTimeout":   c.Shutdown.KillWaitTimeout,
		"api.requestTimeout":         c.API.RequestTimeout,
	}

	for _, name := range slices.Sorted(maps.Keys(positive)) {
		if positive[name] <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("%s must be positive, got %s", name, positive[name]))
		}
	}

	if c.API.RetryMax < 0 {
		errs = multierr.Append(errs, fmt.Errorf("api.retryMax must not be negative, got %d", c.API.RetryMax))
	}

	return errs
}

// Clone returns a deep copy so the slices of the copy can be changed independently.
func (c HarnessConfig) Clone() HarnessConfig {
	var clone HarnessConfig
	if err := deepcopy.Copy(&clone, &c); err != nil {
		return c.copySlices()
	}

	return clone
}

// copySlices is the hand-written deep copy. The slices are the only shared references.
func (c HarnessConfig) copySlices() HarnessConfig {
	c.Process.ExtraArgs = slices.Clone(c.Process.ExtraArgs)
	c.Process.Env = slices.Clone(c.Process.Env)

	return c
}

// BaseURL is the root URL of the service API.
func (c HarnessConfig) BaseURL() string {
	return "http://" + net.JoinHostPort("127.0.0.1", strconv.Itoa(c.Process.Port))
}
