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

package lifecycle

import (
	"context"

	"github.com/looplab/fsm"
)

// Lifecycle states
const (
	StateIdle           = "idle"
	StateProvisioning   = "provisioning"
	StateSpawning       = "spawning"
	StateAwaitingHealth = "awaiting_health"
	StateReady          = "ready"
	StateShuttingDown   = "shutting_down"
	StateCleaningUp     = "cleaning_up"
)

// Lifecycle events
const (
	EventProvision   = "provision"
	EventSpawn       = "spawn"
	EventAwaitHealth = "await_health"
	EventReady       = "ready"
	// EventShutdown is also the abort path out of any setup phase.
	EventShutdown = "shutdown"
	EventCleanup  = "cleanup"
	EventReset    = "reset"
)

// AllStates lists every state, in lifecycle order.
var AllStates = []string{
	StateIdle,
	StateProvisioning,
	StateSpawning,
	StateAwaitingHealth,
	StateReady,
	StateShuttingDown,
	StateCleaningUp,
}

func newMachine(onEnter func(state string)) *fsm.FSM {
	return fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: EventProvision, Src: []string{StateIdle}, Dst: StateProvisioning},
			{Name: EventSpawn, Src: []string{StateProvisioning}, Dst: StateSpawning},
			{Name: EventAwaitHealth, Src: []string{StateSpawning}, Dst: StateAwaitingHealth},
			{Name: EventReady, Src: []string{StateAwaitingHealth}, Dst: StateReady},
			{
				Name: EventShutdown,
				Src:  []string{StateProvisioning, StateSpawning, StateAwaitingHealth, StateReady},
				Dst:  StateShuttingDown,
			},
			{Name: EventCleanup, Src: []string{StateShuttingDown}, Dst: StateCleaningUp},
			{Name: EventReset, Src: []string{StateCleaningUp}, Dst: StateIdle},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				onEnter(e.Dst)
			},
		},
	)
}
