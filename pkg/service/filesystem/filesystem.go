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

package filesystem

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/metrics"
)

// DefaultService is the default implementation of Service, backed by the os package.
type DefaultService struct{}

// NewDefaultService creates a new DefaultService.
func NewDefaultService() *DefaultService {
	return &DefaultService{}
}

// run executes fn in a goroutine so a blocked syscall (network share, AV scanner holding a
// handle) cannot outlive ctx. The goroutine itself is left to finish on its own.
func run[T any](ctx context.Context, op string, fn func() (T, error)) (T, error) {
	start := time.Now()

	var zero T

	if err := ctx.Err(); err != nil {
		metrics.RecordFilesystemOp(op, err, time.Since(start))

		return zero, fmt.Errorf("failed to check context: %w", err)
	}

	type result struct {
		value T
		err   error
	}

	resCh := make(chan result, 1)

	go func() {
		value, err := fn()
		resCh <- result{value: value, err: err}
	}()

	select {
	case res := <-resCh:
		metrics.RecordFilesystemOp(op, res.err, time.Since(start))

		return res.value, res.err
	case <-ctx.Done():
		err := ctx.Err()
		if err == nil {
			err = errors.New("context cancelled")
		}

		metrics.RecordFilesystemOp(op, err, time.Since(start))

		return zero, err
	}
}

// EnsureDirectory creates a directory if it doesn't exist.
func (s *DefaultService) EnsureDirectory(ctx context.Context, path string) error {
	_, err := run(ctx, "EnsureDirectory", func() (struct{}, error) {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return struct{}{}, fmt.Errorf("failed to create directory %s: %w", path, err)
		}

		return struct{}{}, nil
	})

	return err
}

// ReadFile reads a file's contents respecting the context.
func (s *DefaultService) ReadFile(ctx context.Context, path string) ([]byte, error) {
	return run(ctx, "ReadFile", func() ([]byte, error) {
		return os.ReadFile(path)
	})
}

// WriteFile writes data to a file respecting the context.
func (s *DefaultService) WriteFile(ctx context.Context, path string, data []byte, perm os.FileMode) error {
	_, err := run(ctx, "WriteFile", func() (struct{}, error) {
		if err := os.WriteFile(path, data, perm); err != nil {
			return struct{}{}, fmt.Errorf("failed to write file %s: %w", path, err)
		}

		return struct{}{}, nil
	})

	return err
}

// PathExists checks if a path exists without following a final symlink.
func (s *DefaultService) PathExists(ctx context.Context, path string) (bool, error) {
	return run(ctx, "PathExists", func() (bool, error) {
		_, err := os.Lstat(path)
		if err == nil {
			return true, nil
		}

		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to check if path exists: %w", err)
	})
}

// Stat returns file info.
func (s *DefaultService) Stat(ctx context.Context, path string) (os.FileInfo, error) {
	return run(ctx, "Stat", func() (os.FileInfo, error) {
		return os.Stat(path)
	})
}

// Lstat returns file info without following symlinks.
func (s *DefaultService) Lstat(ctx context.Context, path string) (os.FileInfo, error) {
	return run(ctx, "Lstat", func() (os.FileInfo, error) {
		return os.Lstat(path)
	})
}

// Remove removes a single file, empty directory or link.
func (s *DefaultService) Remove(ctx context.Context, path string) error {
	_, err := run(ctx, "Remove", func() (struct{}, error) {
		return struct{}{}, os.Remove(path)
	})

	return err
}

// RemoveAll removes a directory and all its contents. Links inside are removed, not followed.
func (s *DefaultService) RemoveAll(ctx context.Context, path string) error {
	_, err := run(ctx, "RemoveAll", func() (struct{}, error) {
		if err := os.RemoveAll(path); err != nil {
			return struct{}{}, fmt.Errorf("failed to remove directory %s: %w", path, err)
		}

		return struct{}{}, nil
	})

	return err
}

// ReadDir reads a directory, returning all its directory entries.
func (s *DefaultService) ReadDir(ctx context.Context, path string) ([]os.DirEntry, error) {
	return run(ctx, "ReadDir", func() ([]os.DirEntry, error) {
		return os.ReadDir(path)
	})
}

// Symlink creates linkPath pointing at target.
func (s *DefaultService) Symlink(ctx context.Context, target, linkPath string) error {
	_, err := run(ctx, "Symlink", func() (struct{}, error) {
		if err := os.Symlink(target, linkPath); err != nil {
			return struct{}{}, fmt.Errorf("failed to create symlink %s -> %s: %w", linkPath, target, err)
		}

		return struct{}{}, nil
	})

	return err
}

// ExecuteCommand executes a command with context. The command is killed when ctx ends.
func (s *DefaultService) ExecuteCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	start := time.Now()
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	metrics.RecordFilesystemOp("ExecuteCommand", err, time.Since(start))

	if err != nil {
		return out, fmt.Errorf("command %s failed: %w", name, err)
	}

	return out, nil
}
