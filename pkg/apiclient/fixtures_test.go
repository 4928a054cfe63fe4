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

package apiclient_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/united-manufacturing-hub/lifecycle-harness/internal/stubservice"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/apiclient"
	"go.uber.org/zap"
)

var _ = Describe("Blueprint fixtures against the stub service", func() {
	var (
		ctx    context.Context
		client *apiclient.Client
	)

	BeforeEach(func() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		DeferCleanup(cancel)

		devLogger, _ := zap.NewDevelopment()
		logger := devLogger.Sugar()

		server := httptest.NewServer(stubservice.New(stubservice.Options{}, logger).Handler())
		DeferCleanup(server.Close)

		client = apiclient.New(apiclient.DefaultConfig(server.URL), logger)
	})

	It("creates, finds and deletes a test blueprint", func() {
		name := apiclient.UniqueName("BP_FixtureTest")

		created, err := client.CreateTestBlueprint(ctx, apiclient.BlueprintOptions{Name: name})
		Expect(err).ToNot(HaveOccurred())
		Expect(created.Bool("success")).To(BeTrue())
		Expect(created.Bool("saved")).To(BeTrue())
		Expect(created.String("assetPath")).To(Equal("/Game/Test/" + name))
		Expect(created.String("parentClass")).To(Equal("Actor"))
		Expect(created["graphs"]).To(ContainElement("EventGraph"))

		listed, err := client.ListBlueprints(ctx, "FixtureTest")
		Expect(err).ToNot(HaveOccurred())
		Expect(listed).To(HaveLen(1))
		Expect(listed[0].Path).To(Equal("/Game/Test/" + name))

		found, err := client.Search(ctx, name)
		Expect(err).ToNot(HaveOccurred())
		Expect(found).To(HaveLen(1))

		blueprint, err := client.GetBlueprint(ctx, name)
		Expect(err).ToNot(HaveOccurred())
		Expect(blueprint.String("blueprintType")).To(Equal("Normal"))

		_, err = client.DeleteTestBlueprint(ctx, created.String("assetPath"))
		Expect(err).ToNot(HaveOccurred())

		listed, err = client.ListBlueprints(ctx, "")
		Expect(err).ToNot(HaveOccurred())
		Expect(listed).To(BeEmpty())
	})

	It("reports duplicates and bad package paths in-band", func() {
		opts := apiclient.BlueprintOptions{Name: apiclient.UniqueName("BP_Dup")}

		_, err := client.CreateTestBlueprint(ctx, opts)
		Expect(err).ToNot(HaveOccurred())

		_, err = client.CreateTestBlueprint(ctx, opts)
		var apiErr *apiclient.APIError
		Expect(errors.As(err, &apiErr)).To(BeTrue())
		Expect(apiErr.Message).To(ContainSubstring("already exists"))

		opts.PackagePath = "/Engine/Test"
		_, err = client.CreateTestBlueprint(ctx, opts)
		Expect(errors.As(err, &apiErr)).To(BeTrue())
		Expect(apiErr.Message).To(ContainSubstring("/Game"))

		_, err = client.CreateTestBlueprint(ctx, apiclient.BlueprintOptions{
			Name:        apiclient.UniqueName("BP_BadParent"),
			ParentClass: "NonExistentClass_XYZ",
		})
		Expect(errors.As(err, &apiErr)).To(BeTrue())
		Expect(apiErr.Message).To(ContainSubstring("Could not find parent class"))
	})

	It("reports a missing blueprint", func() {
		_, err := client.GetBlueprint(ctx, "BP_DoesNotExist")

		var apiErr *apiclient.APIError
		Expect(errors.As(err, &apiErr)).To(BeTrue())
		Expect(apiErr.Message).To(ContainSubstring("not found"))

		_, err = client.DeleteTestBlueprint(ctx, "/Game/Test/BP_DoesNotExist")
		Expect(errors.As(err, &apiErr)).To(BeTrue())
	})

	It("renames an asset", func() {
		created, err := client.CreateTestBlueprint(ctx, apiclient.BlueprintOptions{Name: "BP_Old"})
		Expect(err).ToNot(HaveOccurred())

		_, err = client.RenameAsset(ctx, created.String("assetPath"), "/Game/Test/BP_New")
		Expect(err).ToNot(HaveOccurred())

		_, err = client.GetBlueprint(ctx, "BP_New")
		Expect(err).ToNot(HaveOccurred())
		_, err = client.GetBlueprint(ctx, "BP_Old")
		Expect(err).To(HaveOccurred())
	})

	It("snapshots and restores a graph", func() {
		_, err := client.CreateTestBlueprint(ctx, apiclient.BlueprintOptions{Name: "BP_Graph"})
		Expect(err).ToNot(HaveOccurred())

		graph, err := client.GetGraph(ctx, "BP_Graph", "")
		Expect(err).ToNot(HaveOccurred())
		Expect(graph.String("graph")).To(Equal("EventGraph"))
		Expect(graph.Int("nodeCount")).To(BeNumerically(">", 0))

		id, err := client.SnapshotGraph(ctx, "BP_Graph", "EventGraph")
		Expect(err).ToNot(HaveOccurred())
		Expect(id).ToNot(BeEmpty())

		restored, err := client.RestoreGraph(ctx, "BP_Graph", id)
		Expect(err).ToNot(HaveOccurred())
		Expect(restored.String("blueprint")).To(Equal("BP_Graph"))
		Expect(restored.String("status")).To(Equal("ok"))

		_, err = client.RestoreGraph(ctx, "BP_Graph", "unknown")
		Expect(err).To(HaveOccurred())

		_, err = client.GetGraph(ctx, "BP_Graph", "NoSuchGraph")
		Expect(err).To(HaveOccurred())
	})
})
