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

// Package alias links a directory into another location without copying it.
//
// An alias and its target resolve to the same content: writes through the alias land in
// the target. Removing an alias only ever removes the link itself. On Unix an alias is a
// symbolic link, on Windows a directory junction (no elevation needed).
package alias

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/service/filesystem"
	"go.uber.org/zap"
)

// ErrNotAnAlias is returned by Remove when the path exists but is a real file or directory.
var ErrNotAnAlias = errors.New("path is not a directory alias")

// Service creates and removes directory aliases.
type Service struct {
	fs     filesystem.Service
	logger *zap.SugaredLogger
}

// NewService creates an alias Service on top of fs.
func NewService(fs filesystem.Service, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Service{fs: fs, logger: logger}
}

// Create makes link an alias of target. target must be an existing directory and link
// must not exist yet; missing parents of link are created.
func (s *Service) Create(ctx context.Context, target, link string) error {
	target, err := filepath.Abs(target)
	if err != nil {
		return fmt.Errorf("failed to resolve alias target %s: %w", target, err)
	}

	info, err := s.fs.Stat(ctx, target)
	if err != nil {
		return fmt.Errorf("alias target %s: %w", target, err)
	}

	if !info.IsDir() {
		return fmt.Errorf("alias target %s is not a directory", target)
	}

	exists, err := s.fs.PathExists(ctx, link)
	if err != nil {
		return err
	}

	if exists {
		return fmt.Errorf("alias path %s already exists", link)
	}

	if err := s.fs.EnsureDirectory(ctx, filepath.Dir(link)); err != nil {
		return err
	}

	if err := s.createLink(ctx, target, link); err != nil {
		return err
	}

	s.logger.Debugf("Created alias %s -> %s", link, target)

	return nil
}

// Remove deletes the alias at link, leaving its target untouched.
// An alias that is already gone is not an error.
func (s *Service) Remove(ctx context.Context, link string) error {
	info, err := s.fs.Lstat(ctx, link)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("failed to inspect alias %s: %w", link, err)
	}

	if !isAliasMode(info.Mode()) {
		return fmt.Errorf("%s: %w", link, ErrNotAnAlias)
	}

	if err := s.removeLink(ctx, link); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("failed to remove alias %s: %w", link, err)
	}

	s.logger.Debugf("Removed alias %s", link)

	return nil
}

// IsAlias reports whether path currently is an alias. A missing path is not.
func (s *Service) IsAlias(ctx context.Context, path string) (bool, error) {
	info, err := s.fs.Lstat(ctx, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}

		return false, err
	}

	return isAliasMode(info.Mode()), nil
}
