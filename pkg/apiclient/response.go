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

import "github.com/goccy/go-json"

// Response is a decoded JSON object returned by the service.
type Response map[string]any

// APIError is an error the service reported in-band.
type APIError struct {
	Message string
}

func (e *APIError) Error() string {
	return "service error: " + e.Message
}

// Err returns an *APIError if the response carries a non-empty "error" field.
func (r Response) Err() error {
	msg, ok := r["error"].(string)
	if !ok || msg == "" {
		return nil
	}

	return &APIError{Message: msg}
}

// String returns the string field key, or "".
func (r Response) String(key string) string {
	s, _ := r[key].(string)

	return s
}

// Bool returns the boolean field key, or false.
func (r Response) Bool(key string) bool {
	b, _ := r[key].(bool)

	return b
}

// Int returns the numeric field key truncated to int, or 0.
func (r Response) Int(key string) int {
	f, _ := r[key].(float64)

	return int(f)
}

// Decode re-encodes the response into out.
func (r Response) Decode(out any) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}

	return json.Unmarshal(raw, out)
}
