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

// Package environment materializes the throwaway project directory a service run needs.
//
// Layout of one environment:
//
//	<BaseDir>/BlueprintMCP_Test_<millis>_<id>/
//	├── TestProject.uproject      descriptor
//	├── Content/                  empty placeholder
//	├── Saved/Logs/               service log (-LOG=)
//	├── service_output.log        captured stdout/stderr
//	└── Plugins/BlueprintMCP  ->  shared plugin source (alias)
package environment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/constants"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/service/alias"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/service/filesystem"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/standarderrors"
	"go.uber.org/zap"
)

// Environment is one materialized project directory. All paths are absolute.
type Environment struct {
	RootPath       string
	DescriptorPath string
	ContentPath    string
	// AliasPath links to AliasTarget, the shared source that must survive cleanup.
	AliasPath   string
	AliasTarget string
	// LogPath is where the service writes its own log.
	LogPath string
	// OutputPath receives the captured stdout/stderr of the service process.
	OutputPath string
}

// Config controls where and how environments are created.
type Config struct {
	// BaseDir is the parent of every environment root. Defaults to os.TempDir().
	BaseDir string
	// NamePrefix starts every root directory name.
	NamePrefix string
	// AliasTarget is the shared plugin source linked into each environment. Required.
	AliasTarget string
	// AliasName is the directory name of the alias below Plugins/.
	AliasName  string
	Descriptor Descriptor
}

// DefaultConfig returns the standard layout for aliasTarget.
func DefaultConfig(aliasTarget string) Config {
	return Config{
		BaseDir:     os.TempDir(),
		NamePrefix:  constants.EnvironmentNamePrefix,
		AliasTarget: aliasTarget,
		AliasName:   constants.PluginName,
		Descriptor:  DefaultDescriptor(),
	}
}

// Option customizes a Provisioner.
type Option func(*Provisioner)

// WithClock replaces the wall clock used for naming.
func WithClock(clk clock.Clock) Option {
	return func(p *Provisioner) {
		p.clock = clk
	}
}

// Provisioner creates environments, one at a time.
type Provisioner struct {
	cfg     Config
	fs      filesystem.Service
	aliases *alias.Service
	clock   clock.Clock
	logger  *zap.SugaredLogger

	mu   sync.Mutex
	live *Environment
}

// NewProvisioner creates a Provisioner. Empty Config fields fall back to DefaultConfig.
func NewProvisioner(cfg Config, fs filesystem.Service, logger *zap.SugaredLogger, opts ...Option) *Provisioner {
	defaults := DefaultConfig(cfg.AliasTarget)

	if cfg.BaseDir == "" {
		cfg.BaseDir = defaults.BaseDir
	}

	if cfg.NamePrefix == "" {
		cfg.NamePrefix = defaults.NamePrefix
	}

	if cfg.AliasName == "" {
		cfg.AliasName = defaults.AliasName
	}

	if cfg.Descriptor.FileVersion == 0 {
		cfg.Descriptor = defaults.Descriptor
	}

	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	p := &Provisioner{
		cfg:     cfg,
		fs:      fs,
		aliases: alias.NewService(fs, logger),
		clock:   clock.New(),
		logger:  logger,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Create materializes a fresh environment. It fails with ErrEnvironmentAlreadyLive until the
// previous environment was released, and with ErrProvisioning on any filesystem failure.
// A failed Create leaves nothing behind.
func (p *Provisioner) Create(ctx context.Context) (*Environment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.live != nil {
		return nil, fmt.Errorf("%w: %s", standarderrors.ErrEnvironmentAlreadyLive, p.live.RootPath)
	}

	if p.cfg.AliasTarget == "" {
		return nil, fmt.Errorf("%w: no shared source directory configured", standarderrors.ErrProvisioning)
	}

	aliasTarget, err := filepath.Abs(p.cfg.AliasTarget)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", standarderrors.ErrProvisioning, err)
	}

	baseDir, err := filepath.Abs(p.cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", standarderrors.ErrProvisioning, err)
	}

	root := filepath.Join(baseDir, p.rootName())
	env := &Environment{
		RootPath:       root,
		DescriptorPath: filepath.Join(root, constants.DescriptorFileName),
		ContentPath:    filepath.Join(root, constants.ContentDirName),
		AliasPath:      filepath.Join(root, constants.PluginsDirName, p.cfg.AliasName),
		AliasTarget:    aliasTarget,
		LogPath:        filepath.Join(root, filepath.FromSlash(constants.ServiceLogRelativePath)),
		OutputPath:     filepath.Join(root, constants.CapturedOutputFileName),
	}

	if err := p.materialize(ctx, env); err != nil {
		p.rollback(env)

		return nil, fmt.Errorf("%w: %w", standarderrors.ErrProvisioning, err)
	}

	p.live = env
	p.logger.Infof("Created environment %s (alias %s -> %s)", env.RootPath, env.AliasPath, env.AliasTarget)

	return env, nil
}

// Release forgets env so the next Create may proceed. Call it once env was cleaned up.
func (p *Provisioner) Release(env *Environment) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if env != nil && p.live != nil && p.live.RootPath == env.RootPath {
		p.live = nil
	}
}

// Live returns the environment created and not yet released, if any.
func (p *Provisioner) Live() *Environment {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.live
}

func (p *Provisioner) rootName() string {
	return fmt.Sprintf("%s%d_%s", p.cfg.NamePrefix, p.clock.Now().UnixMilli(), uuid.NewString()[:8])
}

func (p *Provisioner) materialize(ctx context.Context, env *Environment) error {
	exists, err := p.fs.PathExists(ctx, env.RootPath)
	if err != nil {
		return err
	}

	if exists {
		return fmt.Errorf("root %s already exists", env.RootPath)
	}

	if err := p.fs.EnsureDirectory(ctx, env.RootPath); err != nil {
		return err
	}

	descriptor, err := p.cfg.Descriptor.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode descriptor: %w", err)
	}

	if err := p.fs.WriteFile(ctx, env.DescriptorPath, descriptor, 0o644); err != nil {
		return err
	}

	if err := p.fs.EnsureDirectory(ctx, env.ContentPath); err != nil {
		return err
	}

	if err := p.fs.EnsureDirectory(ctx, filepath.Dir(env.LogPath)); err != nil {
		return err
	}

	return p.aliases.Create(ctx, env.AliasTarget, env.AliasPath)
}

// rollback removes a half-built root. It runs on a fresh context because the caller's
// context may be the reason materialize failed.
func (p *Provisioner) rollback(env *Environment) {
	ctx, cancel := context.WithTimeout(context.Background(), constants.CleanupTimeout)
	defer cancel()

	if err := p.aliases.Remove(ctx, env.AliasPath); err != nil {
		p.logger.Warnf("Leaving %s in place, alias could not be removed: %v", env.RootPath, err)

		return
	}

	if err := p.fs.RemoveAll(ctx, env.RootPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		p.logger.Warnf("Failed to remove partial environment %s: %v", env.RootPath, err)
	}
}

// Verify checks that env is fully materialized: descriptor present and alias in place.
func Verify(ctx context.Context, fs filesystem.Service, env *Environment) error {
	if env == nil {
		return fmt.Errorf("%w: no environment", standarderrors.ErrProvisioning)
	}

	exists, err := fs.PathExists(ctx, env.DescriptorPath)
	if err != nil {
		return fmt.Errorf("%w: %w", standarderrors.ErrProvisioning, err)
	}

	if !exists {
		return fmt.Errorf("%w: descriptor %s missing", standarderrors.ErrProvisioning, env.DescriptorPath)
	}

	isAlias, err := alias.NewService(fs, nil).IsAlias(ctx, env.AliasPath)
	if err != nil {
		return fmt.Errorf("%w: %w", standarderrors.ErrProvisioning, err)
	}

	if !isAlias {
		return fmt.Errorf("%w: alias %s missing", standarderrors.ErrProvisioning, env.AliasPath)
	}

	return nil
}
