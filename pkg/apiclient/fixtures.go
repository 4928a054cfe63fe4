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

package apiclient

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Fixture defaults for blueprints created by tests.
const (
	DefaultTestPackagePath   = "/Game/Test"
	DefaultTestParentClass   = "Actor"
	DefaultTestBlueprintType = "Normal"
)

// UniqueName returns prefix_<unix millis>_<4 hex chars>, unique across quick successive calls.
func UniqueName(prefix string) string {
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixMilli(), uuid.NewString()[:4])
}

// BlueprintOptions describe a blueprint to create. Empty fields take the test defaults.
type BlueprintOptions struct {
	Name          string `json:"blueprintName"`
	PackagePath   string `json:"packagePath"`
	ParentClass   string `json:"parentClass"`
	BlueprintType string `json:"blueprintType"`
}

// CreateBlueprint creates a blueprint exactly as described by opts.
func (c *Client) CreateBlueprint(ctx context.Context, opts BlueprintOptions) (Response, error) {
	resp, err := c.Post(ctx, EndpointCreateBlueprint, opts)

	return checked(EndpointCreateBlueprint, resp, err)
}

// CreateTestBlueprint creates a blueprint below /Game/Test derived from Actor unless opts say
// otherwise. The returned response holds the assetPath to pass to DeleteTestBlueprint.
func (c *Client) CreateTestBlueprint(ctx context.Context, opts BlueprintOptions) (Response, error) {
	if opts.PackagePath == "" {
		opts.PackagePath = DefaultTestPackagePath
	}

	if opts.ParentClass == "" {
		opts.ParentClass = DefaultTestParentClass
	}

	if opts.BlueprintType == "" {
		opts.BlueprintType = DefaultTestBlueprintType
	}

	return c.CreateBlueprint(ctx, opts)
}

// DeleteTestBlueprint force-deletes a blueprint created by CreateTestBlueprint.
func (c *Client) DeleteTestBlueprint(ctx context.Context, assetPath string) (Response, error) {
	return c.DeleteAsset(ctx, assetPath, true)
}
