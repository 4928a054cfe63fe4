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

package environment

import (
	"github.com/goccy/go-json"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/constants"
)

// Descriptor is the project file the service is started with.
type Descriptor struct {
	FileVersion       int                `json:"FileVersion"`
	EngineAssociation string             `json:"EngineAssociation"`
	Plugins           []DescriptorPlugin `json:"Plugins"`
}

// DescriptorPlugin enables one plugin in the project.
type DescriptorPlugin struct {
	Name    string `json:"Name"`
	Enabled bool   `json:"Enabled"`
}

// DefaultDescriptor returns a project that enables only the plugin under test.
func DefaultDescriptor() Descriptor {
	return Descriptor{
		FileVersion:       constants.DescriptorFileVersion,
		EngineAssociation: constants.DescriptorEngineAssociation,
		Plugins: []DescriptorPlugin{
			{Name: constants.PluginName, Enabled: true},
		},
	}
}

// Marshal renders the descriptor tab-indented with a trailing newline, the way the editor writes it.
func (d Descriptor) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "\t")
	if err != nil {
		return nil, err
	}

	return append(data, '\n'), nil
}
