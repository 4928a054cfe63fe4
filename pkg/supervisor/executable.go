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

package supervisor

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/service/filesystem"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/standarderrors"
)

// ResolveExecutable picks the service executable: the override when it exists, otherwise
// the first existing candidate. A bare override name (no path separator) is looked up in PATH.
func ResolveExecutable(ctx context.Context, fs filesystem.Service, override string, candidates []string) (string, error) {
	tried := make([]string, 0, len(candidates)+1)

	if override != "" {
		tried = append(tried, override)

		if ok, err := isRegularFile(ctx, fs, override); err != nil {
			return "", err
		} else if ok {
			return override, nil
		}

		if !strings.ContainsAny(override, `/\`) {
			if path, err := exec.LookPath(override); err == nil {
				return path, nil
			}
		}
	}

	for _, candidate := range candidates {
		tried = append(tried, candidate)

		ok, err := isRegularFile(ctx, fs, candidate)
		if err != nil {
			return "", err
		}

		if ok {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w (tried: %s)", standarderrors.ErrExecutableNotFound, strings.Join(tried, ", "))
}

func isRegularFile(ctx context.Context, fs filesystem.Service, path string) (bool, error) {
	exists, err := fs.PathExists(ctx, path)
	if err != nil || !exists {
		return false, err
	}

	info, err := fs.Stat(ctx, path)
	if err != nil {
		// dangling symlink
		return false, nil
	}

	return !info.IsDir(), nil
}
