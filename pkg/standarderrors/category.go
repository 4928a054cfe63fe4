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

package standarderrors

import "errors"

// ErrorCategory indicates how the orchestrator responds to a given error.
type ErrorCategory int

const (
	// CategoryFatal aborts the suite before any test runs.
	CategoryFatal ErrorCategory = iota

	// CategoryBestEffort is logged during teardown and never fails the suite.
	CategoryBestEffort
)

func (c ErrorCategory) String() string {
	switch c {
	case CategoryFatal:
		return "fatal"
	case CategoryBestEffort:
		return "best_effort"
	default:
		return "unknown"
	}
}

// CategorizedError is a wrapper that includes the underlying error plus a Category.
type CategorizedError struct {
	Err      error
	Category ErrorCategory
}

// Error returns the original error message.
func (ce *CategorizedError) Error() string {
	return ce.Err.Error()
}

// Unwrap returns the underlying wrapped error.
func (ce *CategorizedError) Unwrap() error {
	return ce.Err
}

// NewFatalError wraps err as CategoryFatal.
func NewFatalError(err error) error {
	if err == nil {
		return nil
	}

	return &CategorizedError{Err: err, Category: CategoryFatal}
}

// NewBestEffortError wraps err as CategoryBestEffort.
func NewBestEffortError(err error) error {
	if err == nil {
		return nil
	}

	return &CategorizedError{Err: err, Category: CategoryBestEffort}
}

// Categorize returns the category of err. Explicit wrappers win; otherwise the
// best-effort sentinels map to CategoryBestEffort and everything else is fatal.
func Categorize(err error) ErrorCategory {
	var ce *CategorizedError
	if errors.As(err, &ce) {
		return ce.Category
	}

	if errors.Is(err, ErrShutdownBestEffort) || errors.Is(err, ErrCleanupBestEffort) {
		return CategoryBestEffort
	}

	return CategoryFatal
}

// IsFatal reports whether err must abort the suite.
func IsFatal(err error) bool {
	return err != nil && Categorize(err) == CategoryFatal
}

// IsBestEffort reports whether err is only worth a log line.
func IsBestEffort(err error) bool {
	return err != nil && Categorize(err) == CategoryBestEffort
}

// Kind returns a short label for metrics and error reports.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrExecutableNotFound):
		return "executable_not_found"
	case errors.Is(err, ErrEnvironmentAlreadyLive), errors.Is(err, ErrProcessAlreadyLive), errors.Is(err, ErrAlreadySetUp):
		return "already_live"
	case errors.Is(err, ErrProvisioning):
		return "provisioning"
	case errors.Is(err, ErrProcessDiedEarly):
		return "process_died_early"
	case errors.Is(err, ErrReadinessTimeout):
		return "readiness_timeout"
	case errors.Is(err, ErrShutdownBestEffort):
		return "shutdown"
	case errors.Is(err, ErrCleanupBestEffort):
		return "cleanup"
	default:
		return "other"
	}
}
