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

// Package exitevent broadcasts the single termination of a process to any number of waiters.
//
// There is exactly one producer (the goroutine that reaped the process) and the event fires
// at most once. Consumers either select on Done(), or Subscribe to receive the Status.
package exitevent

import (
	"context"
	"fmt"
	"sync"
)

// Status describes how a process terminated.
type Status struct {
	// Code is the exit code, -1 when the process was terminated by a signal.
	Code int
	// Signaled is true when the process was terminated by a signal.
	Signaled bool
	// Signal names the terminating signal, if any.
	Signal string
	// Err carries a wait error that is not an exit status (e.g. the process could not be reaped).
	Err error
}

func (s Status) String() string {
	switch {
	case s.Err != nil:
		return fmt.Sprintf("wait failed: %v", s.Err)
	case s.Signaled:
		return "terminated by signal " + s.Signal
	default:
		return fmt.Sprintf("exited with code %d", s.Code)
	}
}

// Event is a fire-once broadcast. The zero value is not usable; use New.
type Event struct {
	mu          sync.Mutex
	fired       bool
	status      Status
	done        chan struct{}
	subscribers map[uint64]chan Status
	nextID      uint64
}

// New creates an unfired Event.
func New() *Event {
	return &Event{
		done:        make(chan struct{}),
		subscribers: make(map[uint64]chan Status),
	}
}

// Fire records status and wakes every waiter. Only the first call has an effect; it
// returns false for every later call.
func (e *Event) Fire(status Status) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.fired {
		return false
	}

	e.fired = true
	e.status = status

	for id, ch := range e.subscribers {
		ch <- status // buffered, never blocks
		close(ch)
		delete(e.subscribers, id)
	}

	close(e.done)

	return true
}

// Done is closed once the event fired.
func (e *Event) Done() <-chan struct{} {
	return e.done
}

// Fired reports whether the event fired.
func (e *Event) Fired() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.fired
}

// Status returns the recorded status and whether the event fired.
func (e *Event) Status() (Status, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.status, e.fired
}

// Wait blocks until the event fires or ctx ends.
func (e *Event) Wait(ctx context.Context) (Status, error) {
	select {
	case <-e.done:
		status, _ := e.Status()

		return status, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

// Subscription delivers the status at most once on C, then closes C.
type Subscription struct {
	// C receives the status once; it is closed without a value after Cancel.
	C <-chan Status

	event *Event
	id    uint64
	once  sync.Once
}

// Subscribe registers a new waiter. Subscribing after the event fired returns a
// subscription whose channel already holds the status.
func (e *Event) Subscribe() *Subscription {
	ch := make(chan Status, 1)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.fired {
		ch <- e.status
		close(ch)

		return &Subscription{C: ch, event: e}
	}

	id := e.nextID
	e.nextID++
	e.subscribers[id] = ch

	return &Subscription{C: ch, event: e, id: id}
}

// Cancel detaches the subscription. Safe to call more than once and after the event fired.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.event.mu.Lock()
		defer s.event.mu.Unlock()

		if ch, ok := s.event.subscribers[s.id]; ok {
			delete(s.event.subscribers, s.id)
			close(ch)
		}
	})
}
