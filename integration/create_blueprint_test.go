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
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/apiclient"
)

var _ = Describe("Create blueprint", Ordered, Label("integration"), func() {
	var (
		name    string
		created apiclient.Response
	)

	BeforeAll(func(ctx SpecContext) {
		name = apiclient.UniqueName("BP_CreateTest")

		var err error
		created, err = client.CreateTestBlueprint(ctx, apiclient.BlueprintOptions{Name: name})
		Expect(err).ToNot(HaveOccurred())

		DeferCleanup(func(ctx SpecContext) {
			_, err := client.DeleteTestBlueprint(ctx, apiclient.DefaultTestPackagePath+"/"+name)
			Expect(err).ToNot(HaveOccurred())
		})
	})

	It("returns the created asset", func() {
		Expect(created.String("blueprintName")).To(Equal(name))
		Expect(created.String("packagePath")).To(Equal(apiclient.DefaultTestPackagePath))
		Expect(created.String("assetPath")).To(ContainSubstring(name))
		Expect(created.String("parentClass")).To(Equal("Actor"))
		Expect(created.String("blueprintType")).To(Equal("Normal"))
		Expect(created.Bool("saved")).To(BeTrue())
	})

	It("creates at least one graph", func() {
		Expect(created).To(HaveKeyWithValue("graphs", Not(BeEmpty())))
	})

	It("rejects a duplicate", func(ctx SpecContext) {
		_, err := client.CreateTestBlueprint(ctx, apiclient.BlueprintOptions{Name: name})

		var apiErr *apiclient.APIError
		Expect(errors.As(err, &apiErr)).To(BeTrue())
		Expect(apiErr.Message).To(ContainSubstring("already exists"))
	})

	It("lists the new blueprint", func(ctx SpecContext) {
		listed, err := client.ListBlueprints(ctx, name)
		Expect(err).ToNot(HaveOccurred())

		names := make([]string, 0, len(listed))
		for _, bp := range listed {
			names = append(names, bp.Name)
		}
		Expect(names).To(ContainElement(name))
	})

	It("rejects a package path outside /Game", func(ctx SpecContext) {
		_, err := client.CreateTestBlueprint(ctx, apiclient.BlueprintOptions{
			Name:        apiclient.UniqueName("BP_BadPath"),
			PackagePath: "/Invalid/Path",
		})

		var apiErr *apiclient.APIError
		Expect(errors.As(err, &apiErr)).To(BeTrue())
		Expect(apiErr.Message).To(ContainSubstring("/Game"))
	})

	It("rejects an unknown parent class", func(ctx SpecContext) {
		_, err := client.CreateTestBlueprint(ctx, apiclient.BlueprintOptions{
			Name:        apiclient.UniqueName("BP_BadParent"),
			ParentClass: "NonExistentClass_XYZ",
		})

		var apiErr *apiclient.APIError
		Expect(errors.As(err, &apiErr)).To(BeTrue())
		Expect(apiErr.Message).To(ContainSubstring("Could not find parent class"))
	})
})
