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

// Package testutil holds helpers shared by the process level test suites.
package testutil

import (
	"net"
	"os"
	"path/filepath"
)

// StubServicePackage is the import path handed to gexec.Build.
const StubServicePackage = "github.com/united-manufacturing-hub/lifecycle-harness/internal/stubservice/cmd/stubservice"

// FreePort asks the kernel for a currently unused loopback port.
func FreePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port, nil
}

// SharedSource creates a fake plugin source below dir and returns its path.
func SharedSource(dir string) (string, error) {
	source := filepath.Join(dir, "plugin-source")
	if err := os.MkdirAll(source, 0o755); err != nil {
		return "", err
	}

	if err := os.WriteFile(filepath.Join(source, "BlueprintMCP.uplugin"), []byte("{}"), 0o644); err != nil {
		return "", err
	}

	return source, nil
}
