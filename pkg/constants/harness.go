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

package constants

import "time"

// Application version defaults, overridden via ldflags in CI builds.
const (
	DefaultAppVersion             = "0.0.0-dev"
	DefaultDevelopmentEnvironment = "development"
	DefaultProductionEnvironment  = "production"
)

// Service process
const (
	// DefaultServicePort is the port the service is told to listen on.
	DefaultServicePort = 19847

	// DefaultRunMode is passed as -run=<mode> so the editor starts the commandlet instead of the UI.
	DefaultRunMode = "BlueprintMCP"

	// ExecutableOverrideEnv names the environment variable with an explicit executable path.
	ExecutableOverrideEnv = "UE_EDITOR_CMD"

	// OutputTailLines is how many captured stdout/stderr lines are kept in memory.
	OutputTailLines = 200

	// WaitDelay bounds how long output is still drained after the process exited.
	WaitDelay = 2 * time.Second
)

// Environment layout
const (
	EnvironmentNamePrefix  = "BlueprintMCP_Test_"
	DescriptorFileName     = "TestProject.uproject"
	ContentDirName         = "Content"
	PluginsDirName         = "Plugins"
	PluginName             = "BlueprintMCP"
	ServiceLogRelativePath = "Saved/Logs/Test_server.log"
	CapturedOutputFileName = "service_output.log"

	DescriptorFileVersion       = 3
	DescriptorEngineAssociation = "5.4"
)

// Health
const (
	HealthEndpoint = "/api/health"

	// HealthProbeTimeout caps a single readiness probe.
	HealthProbeTimeout = 2 * time.Second

	// HealthProbeInterval is the pause between two probes.
	HealthProbeInterval = 2 * time.Second

	// ReadinessTimeout covers a cold start of the editor including asset registry scan.
	ReadinessTimeout = 240 * time.Second

	// DiagnosticLogTailLines is how many service log lines are dumped when readiness fails.
	DiagnosticLogTailLines = 80
)

// Shutdown
const (
	ShutdownEndpoint = "/api/shutdown"

	// GracefulShutdownTimeout caps the shutdown request itself.
	GracefulShutdownTimeout = 3 * time.Second

	// ForcedWaitTimeout is how long the process may take to exit after the shutdown request.
	ForcedWaitTimeout = 15 * time.Second

	// KillWaitTimeout is how long to wait for the exit to be observed after a forced kill.
	KillWaitTimeout = 2 * time.Second
)

// Cleanup
const (
	// CleanupTimeout bounds environment removal, which runs even for a cancelled caller.
	CleanupTimeout = 30 * time.Second

	// RemoveRetries is how often a failed tree removal is retried. Files of a just killed
	// process can stay locked for a moment on Windows.
	RemoveRetries = 3

	RemoveRetryInterval = 250 * time.Millisecond
)

// API client
const (
	APIRequestTimeout = 30 * time.Second
	APIRetryMax       = 3
	APIRetryWaitMin   = 250 * time.Millisecond
	APIRetryWaitMax   = 1 * time.Second
)
