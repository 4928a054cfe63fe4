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

//go:build windows

package alias

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// createLink uses a junction since symlinks need developer mode or elevation.
func (s *Service) createLink(ctx context.Context, target, link string) error {
	out, err := s.fs.ExecuteCommand(ctx, "cmd", "/c", "mklink", "/J", link, target)
	if err != nil {
		return fmt.Errorf("mklink /J %s %s: %w: %s", link, target, err, strings.TrimSpace(string(out)))
	}

	return nil
}

// removeLink uses rmdir without /s, which removes the junction and never its target.
func (s *Service) removeLink(ctx context.Context, link string) error {
	out, err := s.fs.ExecuteCommand(ctx, "cmd", "/c", "rmdir", link)
	if err != nil {
		return fmt.Errorf("rmdir %s: %w: %s", link, err, strings.TrimSpace(string(out)))
	}

	return nil
}

// Junctions show up as irregular files since Go 1.23, symlinks as ModeSymlink.
func isAliasMode(mode os.FileMode) bool {
	return mode&(os.ModeSymlink|os.ModeIrregular) != 0
}
