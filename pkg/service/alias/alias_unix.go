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

//go:build !windows

package alias

import (
	"context"
	"os"
)

func (s *Service) createLink(ctx context.Context, target, link string) error {
	return s.fs.Symlink(ctx, target, link)
}

// removeLink unlinks the symlink itself; os.Remove never follows it.
func (s *Service) removeLink(ctx context.Context, link string) error {
	return s.fs.Remove(ctx, link)
}

func isAliasMode(mode os.FileMode) bool {
	return mode&os.ModeSymlink != 0
}
