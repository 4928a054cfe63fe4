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
)

// Service provides an interface for filesystem operations
// This allows for easier testing and separation of concerns.
type Service interface {
	// EnsureDirectory creates a directory (and parents) if it doesn't exist
	EnsureDirectory(ctx context.Context, path string) error

	// ReadFile reads a file's contents respecting the context
	ReadFile(ctx context.Context, path string) ([]byte, error)

	// WriteFile writes data to a file respecting the context
	WriteFile(ctx context.Context, path string, data []byte, perm os.FileMode) error

	// PathExists checks if a file or directory exists at the given path.
	// A dangling symlink counts as existing.
	PathExists(ctx context.Context, path string) (bool, error)

	// Stat returns file info, following symlinks
	Stat(ctx context.Context, path string) (os.FileInfo, error)

	// Lstat returns file info without following symlinks
	Lstat(ctx context.Context, path string) (os.FileInfo, error)

	// Remove removes a file, an empty directory or a link
	Remove(ctx context.Context, path string) error

	// RemoveAll removes a directory and all its contents
	RemoveAll(ctx context.Context, path string) error

	// ReadDir reads a directory, returning all its directory entries
	ReadDir(ctx context.Context, path string) ([]os.DirEntry, error)

	// Symlink creates linkPath pointing at target
	Symlink(ctx context.Context, target, linkPath string) error

	// ExecuteCommand executes a command with context and returns its combined output
	ExecuteCommand(ctx context.Context, name string, args ...string) ([]byte, error)
}
