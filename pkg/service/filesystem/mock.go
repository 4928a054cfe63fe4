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
	"os"
	"sync"
)

// MockFileSystem is a Service whose operations can be overridden one by one.
// Operations without an override fall through to the real filesystem, so tests can
// inject a single failure into an otherwise real temp directory.
type MockFileSystem struct {
	real Service

	mu         sync.Mutex
	callCounts map[string]int

	EnsureDirectoryFunc func(ctx context.Context, path string) error
	ReadFileFunc        func(ctx context.Context, path string) ([]byte, error)
	WriteFileFunc       func(ctx context.Context, path string, data []byte, perm os.FileMode) error
	PathExistsFunc      func(ctx context.Context, path string) (bool, error)
	StatFunc            func(ctx context.Context, path string) (os.FileInfo, error)
	LstatFunc           func(ctx context.Context, path string) (os.FileInfo, error)
	RemoveFunc          func(ctx context.Context, path string) error
	RemoveAllFunc       func(ctx context.Context, path string) error
	ReadDirFunc         func(ctx context.Context, path string) ([]os.DirEntry, error)
	SymlinkFunc         func(ctx context.Context, target, linkPath string) error
	ExecuteCommandFunc  func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewMockFileSystem creates a new MockFileSystem backed by DefaultService.
func NewMockFileSystem() *MockFileSystem {
	return &MockFileSystem{
		real:       NewDefaultService(),
		callCounts: make(map[string]int),
	}
}

// WithWriteFileFunc overrides WriteFile.
func (m *MockFileSystem) WithWriteFileFunc(fn func(ctx context.Context, path string, data []byte, perm os.FileMode) error) *MockFileSystem {
	m.WriteFileFunc = fn

	return m
}

// WithRemoveFunc overrides Remove.
func (m *MockFileSystem) WithRemoveFunc(fn func(ctx context.Context, path string) error) *MockFileSystem {
	m.RemoveFunc = fn

	return m
}

// WithRemoveAllFunc overrides RemoveAll.
func (m *MockFileSystem) WithRemoveAllFunc(fn func(ctx context.Context, path string) error) *MockFileSystem {
	m.RemoveAllFunc = fn

	return m
}

// WithSymlinkFunc overrides Symlink.
func (m *MockFileSystem) WithSymlinkFunc(fn func(ctx context.Context, target, linkPath string) error) *MockFileSystem {
	m.SymlinkFunc = fn

	return m
}

// CallCount returns how often op was invoked.
func (m *MockFileSystem) CallCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.callCounts[op]
}

func (m *MockFileSystem) record(op string) {
	m.mu.Lock()
	m.callCounts[op]++
	m.mu.Unlock()
}

func (m *MockFileSystem) EnsureDirectory(ctx context.Context, path string) error {
	m.record("EnsureDirectory")

	if m.EnsureDirectoryFunc != nil {
		return m.EnsureDirectoryFunc(ctx, path)
	}

	return m.real.EnsureDirectory(ctx, path)
}

func (m *MockFileSystem) ReadFile(ctx context.Context, path string) ([]byte, error) {
	m.record("ReadFile")

	if m.ReadFileFunc != nil {
		return m.ReadFileFunc(ctx, path)
	}

	return m.real.ReadFile(ctx, path)
}

func (m *MockFileSystem) WriteFile(ctx context.Context, path string, data []byte, perm os.FileMode) error {
	m.record("WriteFile")

	if m.WriteFileFunc != nil {
		return m.WriteFileFunc(ctx, path, data, perm)
	}

	return m.real.WriteFile(ctx, path, data, perm)
}

func (m *MockFileSystem) PathExists(ctx context.Context, path string) (bool, error) {
	m.record("PathExists")

	if m.PathExistsFunc != nil {
		return m.PathExistsFunc(ctx, path)
	}

	return m.real.PathExists(ctx, path)
}

func (m *MockFileSystem) Stat(ctx context.Context, path string) (os.FileInfo, error) {
	m.record("Stat")

	if m.StatFunc != nil {
		return m.StatFunc(ctx, path)
	}

	return m.real.Stat(ctx, path)
}

func (m *MockFileSystem) Lstat(ctx context.Context, path string) (os.FileInfo, error) {
	m.record("Lstat")

	if m.LstatFunc != nil {
		return m.LstatFunc(ctx, path)
	}

	return m.real.Lstat(ctx, path)
}

func (m *MockFileSystem) Remove(ctx context.Context, path string) error {
	m.record("Remove")

	if m.RemoveFunc != nil {
		return m.RemoveFunc(ctx, path)
	}

	return m.real.Remove(ctx, path)
}

func (m *MockFileSystem) RemoveAll(ctx context.Context, path string) error {
	m.record("RemoveAll")

	if m.RemoveAllFunc != nil {
		return m.RemoveAllFunc(ctx, path)
	}

	return m.real.RemoveAll(ctx, path)
}

func (m *MockFileSystem) ReadDir(ctx context.Context, path string) ([]os.DirEntry, error) {
	m.record("ReadDir")

	if m.ReadDirFunc != nil {
		return m.ReadDirFunc(ctx, path)
	}

	return m.real.ReadDir(ctx, path)
}

func (m *MockFileSystem) Symlink(ctx context.Context, target, linkPath string) error {
	m.record("Symlink")

	if m.SymlinkFunc != nil {
		return m.SymlinkFunc(ctx, target, linkPath)
	}

	return m.real.Symlink(ctx, target, linkPath)
}

func (m *MockFileSystem) ExecuteCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	m.record("ExecuteCommand")

	if m.ExecuteCommandFunc != nil {
		return m.ExecuteCommandFunc(ctx, name, args...)
	}

	return m.real.ExecuteCommand(ctx, name, args...)
}
