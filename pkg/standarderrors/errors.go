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

// Package standarderrors holds the sentinel errors shared by all lifecycle phases.
// Callers wrap them with fmt.Errorf("...: %w") and match with errors.Is.
package standarderrors

import "errors"

// Fatal before any test runs.
var (
	// ErrProvisioning means the temporary environment could not be materialized.
	ErrProvisioning = errors.New("environment provisioning failed")

	// ErrExecutableNotFound means neither the override nor any default install location exists.
	ErrExecutableNotFound = errors.New("service executable not found")

	// ErrEnvironmentAlreadyLive is returned when Create is called before the previous environment was released.
	ErrEnvironmentAlreadyLive = errors.New("an environment is already live")

	// ErrProcessAlreadyLive is returned when Spawn is called while a previous process is still running.
	ErrProcessAlreadyLive = errors.New("a service process is already live")

	// ErrAlreadySetUp is returned when Setup is called outside the idle state.
	ErrAlreadySetUp = errors.New("lifecycle is already set up")
)

// Fatal after spawn.
var (
	// ErrReadinessTimeout means the service never answered healthy before the deadline.
	ErrReadinessTimeout = errors.New("service did not become ready before the deadline")

	// ErrProcessDiedEarly means the process exited while readiness was still being awaited.
	ErrProcessDiedEarly = errors.New("service process exited before becoming ready")
)

// Best effort, logged and never propagated as a suite failure.
var (
	ErrShutdownBestEffort = errors.New("service shutdown incomplete")
	ErrCleanupBestEffort  = errors.New("environment cleanup incomplete")
)
