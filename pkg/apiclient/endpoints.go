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
)

// Service API endpoints
const (
	EndpointHealth   = "/api/health"
	EndpointShutdown = "/api/shutdown"

	EndpointBlueprint    = "/api/blueprint"
	EndpointGraph        = "/api/graph"
	EndpointList         = "/api/list"
	EndpointReferences   = "/api/references"
	EndpointSearch       = "/api/search"
	EndpointSearchByType = "/api/search-by-type"

	EndpointCreateBlueprint   = "/api/create-blueprint"
	EndpointDeleteAsset       = "/api/delete-asset"
	EndpointRenameAsset       = "/api/rename-asset"
	EndpointReparentBlueprint = "/api/reparent-blueprint"

	EndpointAddNode             = "/api/add-node"
	EndpointDeleteNode          = "/api/delete-node"
	EndpointConnectPins         = "/api/connect-pins"
	EndpointDisconnectPin       = "/api/disconnect-pin"
	EndpointSetPinDefault       = "/api/set-pin-default"
	EndpointSetBlueprintDefault = "/api/set-blueprint-default"
	EndpointFindDisconnected    = "/api/find-disconnected-pins"
	EndpointRefreshAllNodes     = "/api/refresh-all-nodes"

	EndpointSnapshotGraph = "/api/snapshot-graph"
	EndpointDiffGraph     = "/api/diff-graph"
	EndpointRestoreGraph  = "/api/restore-graph"

	EndpointValidateBlueprint     = "/api/validate-blueprint"
	EndpointValidateAllBlueprints = "/api/validate-all-blueprints"
	EndpointAnalyzeRebuildImpact  = "/api/analyze-rebuild-impact"

	EndpointChangeVariableType      = "/api/change-variable-type"
	EndpointChangeFunctionParamType = "/api/change-function-param-type"
	EndpointRemoveFunctionParameter = "/api/remove-function-parameter"
	EndpointChangeStructNodeType    = "/api/change-struct-node-type"
	EndpointReplaceFunctionCalls    = "/api/replace-function-calls"
)

// BlueprintSummary is one entry of a list or search result.
type BlueprintSummary struct {
	Name          string `json:"name"`
	Path          string `json:"path"`
	ParentClass   string `json:"parentClass,omitempty"`
	BlueprintType string `json:"blueprintType,omitempty"`
}

type listResult struct {
	Blueprints []BlueprintSummary `json:"blueprints"`
	Results    []BlueprintSummary `json:"results"`
}

// checked turns an in-band error into a Go error. The response is returned either way so
// tests can assert on other fields of a failed call.
func checked(endpoint string, resp Response, err error) (Response, error) {
	if err != nil {
		return nil, err
	}

	if apiErr := resp.Err(); apiErr != nil {
		return resp, fmt.Errorf("%s: %w", endpoint, apiErr)
	}

	return resp, nil
}

// Health returns the health payload.
func (c *Client) Health(ctx context.Context) (Response, error) {
	resp, err := c.Get(ctx, EndpointHealth, nil)

	return checked(EndpointHealth, resp, err)
}

// GetBlueprint returns the blueprint with the given name or asset path.
func (c *Client) GetBlueprint(ctx context.Context, name string) (Response, error) {
	resp, err := c.Get(ctx, EndpointBlueprint, map[string]string{"name": name})

	return checked(EndpointBlueprint, resp, err)
}

// GetGraph returns one graph of a blueprint. An empty graph selects the event graph.
func (c *Client) GetGraph(ctx context.Context, blueprint, graph string) (Response, error) {
	resp, err := c.Get(ctx, EndpointGraph, map[string]string{"name": blueprint, "graph": graph})

	return checked(EndpointGraph, resp, err)
}

// ListBlueprints lists blueprints whose name contains filter.
func (c *Client) ListBlueprints(ctx context.Context, filter string) ([]BlueprintSummary, error) {
	resp, err := c.Get(ctx, EndpointList, map[string]string{"filter": filter})
	if resp, err = checked(EndpointList, resp, err); err != nil {
		return nil, err
	}

	var result listResult
	if err := resp.Decode(&result); err != nil {
		return nil, fmt.Errorf("%s: %w", EndpointList, err)
	}

	return result.Blueprints, nil
}

// Search finds blueprints matching query.
func (c *Client) Search(ctx context.Context, query string) ([]BlueprintSummary, error) {
	resp, err := c.Get(ctx, EndpointSearch, map[string]string{"query": query})
	if resp, err = checked(EndpointSearch, resp, err); err != nil {
		return nil, err
	}

	var result listResult
	if err := resp.Decode(&result); err != nil {
		return nil, fmt.Errorf("%s: %w", EndpointSearch, err)
	}

	return result.Results, nil
}

// DeleteAsset deletes the asset at assetPath. With force set, references to it are ignored.
func (c *Client) DeleteAsset(ctx context.Context, assetPath string, force bool) (Response, error) {
	resp, err := c.Post(ctx, EndpointDeleteAsset, map[string]any{"assetPath": assetPath, "force": force})

	return checked(EndpointDeleteAsset, resp, err)
}

// RenameAsset moves the asset at assetPath to newPath.
func (c *Client) RenameAsset(ctx context.Context, assetPath, newPath string) (Response, error) {
	resp, err := c.Post(ctx, EndpointRenameAsset, map[string]any{"assetPath": assetPath, "newPath": newPath})

	return checked(EndpointRenameAsset, resp, err)
}

// SnapshotGraph stores the current state of a graph and returns the snapshot id.
func (c *Client) SnapshotGraph(ctx context.Context, blueprint, graph string) (string, error) {
	resp, err := c.Post(ctx, EndpointSnapshotGraph, map[string]any{"blueprint": blueprint, "graph": graph})
	if resp, err = checked(EndpointSnapshotGraph, resp, err); err != nil {
		return "", err
	}

	return resp.String("snapshotId"), nil
}

// RestoreGraph reconnects the pins of blueprint the way snapshotID recorded them.
func (c *Client) RestoreGraph(ctx context.Context, blueprint, snapshotID string) (Response, error) {
	resp, err := c.Post(ctx, EndpointRestoreGraph, map[string]any{"blueprint": blueprint, "snapshotId": snapshotID})

	return checked(EndpointRestoreGraph, resp, err)
}
