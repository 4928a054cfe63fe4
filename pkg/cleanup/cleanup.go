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

// Package cleanup removes an environment from disk without ever touching the shared
// source its alias points to.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/cenkalti/backoff/v4"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/constants"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/environment"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/metrics"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/service/alias"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/service/filesystem"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/standarderrors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Reconciler removes environments.
type Reconciler struct {
	fs      filesystem.Service
	aliases *alias.Service
	logger  *zap.SugaredLogger
}

// New creates a Reconciler.
func New(fs filesystem.Service, logger *zap.SugaredLogger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Reconciler{
		fs:      fs,
		aliases: alias.NewService(fs, logger),
		logger:  logger,
	}
}

// Cleanup removes env: the alias first, then the root directory. The root is left in place
// whenever the alias could not be removed, since removing it recursively could reach the
// shared source. Calling Cleanup again, or on an env that is already gone, returns nil.
//
// Failures are wrapped in ErrCleanupBestEffort; callers log them and carry on.
// Cleanup also runs when ctx is already cancelled.
func (r *Reconciler) Cleanup(ctx context.Context, env *environment.Environment) error {
	if env == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.CleanupTimeout)
	defer cancel()

	var errs error

	if err := r.aliases.Remove(ctx, env.AliasPath); err != nil {
		errs = multierr.Append(errs, err)
		errs = multierr.Append(errs, fmt.Errorf("leaving %s in place", env.RootPath))
	} else if err := r.removeRoot(ctx, env); err != nil {
		errs = multierr.Append(errs, err)
	}

	if errs != nil {
		metrics.IncCleanupFailure()
		r.logger.Warnw("Environment cleanup incomplete", "root", env.RootPath, "errors", multierr.Errors(errs))

		return fmt.Errorf("%w: %w", standarderrors.ErrCleanupBestEffort, errs)
	}

	r.logger.Infof("Removed environment %s", env.RootPath)

	return nil
}

func (r *Reconciler) removeRoot(ctx context.Context, env *environment.Environment) error {
	root := env.RootPath

	// the alias must be gone before anything is removed recursively
	isAlias, err := r.aliases.IsAlias(ctx, env.AliasPath)
	if err != nil {
		return err
	}

	if isAlias {
		return fmt.Errorf("alias still present below %s", root)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(constants.RemoveRetryInterval), constants.RemoveRetries),
		ctx,
	)

	return backoff.Retry(func() error {
		err := r.fs.RemoveAll(ctx, root)
		if err == nil || errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("failed to remove %s: %w", root, err)
	}, policy)
}
