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

package integration_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Server status", Label("integration"), func() {
	It("returns health information", func(ctx SpecContext) {
		health, err := client.Health(ctx)
		Expect(err).ToNot(HaveOccurred())

		Expect(health.String("status")).To(Equal("ok"))
		Expect(health).To(HaveKeyWithValue("blueprintCount", BeNumerically(">=", 0)))
		Expect(health).To(HaveKeyWithValue("mapCount", BeNumerically(">=", 0)))
	})

	It("reports commandlet mode", func(ctx SpecContext) {
		health, err := client.Health(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(health.String("mode")).To(Equal("commandlet"))
	})
})
