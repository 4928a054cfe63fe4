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

package constants

import "runtime"

// DefaultExecutableCandidates returns the install locations probed when no override is set,
// in priority order.
func DefaultExecutableCandidates() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{
			`C:\Program Files\Epic Games\UE_5.4\Engine\Binaries\Win64\UnrealEditor-Cmd.exe`,
			`C:\Program Files (x86)\Epic Games\UE_5.4\Engine\Binaries\Win64\UnrealEditor-Cmd.exe`,
		}
	case "darwin":
		return []string{
			"/Users/Shared/Epic Games/UE_5.4/Engine/Binaries/Mac/UnrealEditor-Cmd",
		}
	default:
		return []string{
			"/opt/UnrealEngine/Engine/Binaries/Linux/UnrealEditor-Cmd",
			"/opt/UE_5.4/Engine/Binaries/Linux/UnrealEditor-Cmd",
		}
	}
}
