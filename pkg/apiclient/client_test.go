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
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	"github.com/h2non/gock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/apiclient"
	"go.uber.org/zap"
)

const baseURL = "http://127.0.0.1:19847"

var _ = Describe("Client", func() {
	var (
		ctx    context.Context
		client *apiclient.Client
	)

	BeforeEach(func() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		DeferCleanup(cancel)

		cfg := apiclient.DefaultConfig(baseURL + "/")
		cfg.RetryMax = 2
		cfg.RetryWaitMin = time.Millisecond
		cfg.RetryWaitMax = 5 * time.Millisecond

		devLogger, _ := zap.NewDevelopment()
		client = apiclient.New(cfg, devLogger.Sugar())

		gock.InterceptClient(client.HTTPClient())
		DeferCleanup(func() {
			gock.RestoreClient(client.HTTPClient())
			gock.Off()
		})
	})

	It("sends only non-empty query parameters", func() {
		gock.New(baseURL).
			Get("/api/search").
			MatchParam("query", "Door").
			AddMatcher(func(req *http.Request, _ *gock.Request) (bool, error) {
				return !req.URL.Query().Has("type"), nil
			}).
			Reply(http.StatusOK).
			JSON(map[string]any{"results": []any{}, "count": 0})

		resp, err := client.Get(ctx, apiclient.EndpointSearch, map[string]string{"query": "Door", "type": ""})
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.Int("count")).To(Equal(0))
		Expect(gock.IsDone()).To(BeTrue())
	})

	It("posts JSON bodies", func() {
		gock.New(baseURL).
			Post("/api/delete-asset").
			MatchType("json").
			JSON(map[string]any{"assetPath": "/Game/Test/BP_Door", "force": true}).
			Reply(http.StatusOK).
			JSON(map[string]any{"success": true, "assetPath": "/Game/Test/BP_Door"})

		resp, err := client.DeleteTestBlueprint(ctx, "/Game/Test/BP_Door")
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.Bool("success")).To(BeTrue())
		Expect(gock.IsDone()).To(BeTrue())
	})

	It("fills in the test blueprint defaults", func() {
		gock.New(baseURL).
			Post("/api/create-blueprint").
			MatchType("json").
			JSON(map[string]any{
				"blueprintName": "BP_Door",
				"packagePath":   "/Game/Test",
				"parentClass":   "Actor",
				"blueprintType": "Normal",
			}).
			Reply(http.StatusOK).
			JSON(map[string]any{"success": true, "assetPath": "/Game/Test/BP_Door"})

		resp, err := client.CreateTestBlueprint(ctx, apiclient.BlueprintOptions{Name: "BP_Door"})
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.String("assetPath")).To(Equal("/Game/Test/BP_Door"))
	})

	It("surfaces an in-band error as APIError without retrying", func() {
		gock.New(baseURL).
			Get("/api/blueprint").
			MatchParam("name", "BP_Missing").
			Reply(http.StatusInternalServerError).
			JSON(map[string]any{"error": "Blueprint not found: BP_Missing"})

		resp, err := client.GetBlueprint(ctx, "BP_Missing")

		var apiErr *apiclient.APIError
		Expect(errors.As(err, &apiErr)).To(BeTrue())
		Expect(apiErr.Message).To(Equal("Blueprint not found: BP_Missing"))
		Expect(err.Error()).To(ContainSubstring("/api/blueprint"))
		Expect(resp.String("error")).ToNot(BeEmpty())
		Expect(gock.IsDone()).To(BeTrue())
	})

	It("retries connection errors", func() {
		gock.New(baseURL).Get("/api/health").ReplyError(errors.New("dial tcp: connection refused"))
		gock.New(baseURL).Get("/api/health").ReplyError(errors.New("read: connection reset by peer"))
		gock.New(baseURL).Get("/api/health").Reply(http.StatusOK).JSON(map[string]any{"status": "ok"})

		resp, err := client.Health(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.String("status")).To(Equal("ok"))
		Expect(gock.IsDone()).To(BeTrue())
	})

	It("gives up after the configured retries", func() {
		for range 3 {
			gock.New(baseURL).Get("/api/health").ReplyError(errors.New("dial tcp: connection refused"))
		}

		_, err := client.Health(ctx)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("connection refused"))
		Expect(gock.IsDone()).To(BeTrue())
	})

	It("does not retry other transport errors", func() {
		gock.New(baseURL).Get("/api/health").ReplyError(errors.New("certificate signed by unknown authority"))
		gock.New(baseURL).Get("/api/health").Reply(http.StatusOK).JSON(map[string]any{"status": "ok"})

		_, err := client.Health(ctx)
		Expect(err).To(HaveOccurred())
		Expect(gock.IsPending()).To(BeTrue())
	})

	It("retries a POST whose connection could not be established", func() {
		refused := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
		gock.New(baseURL).Post("/api/rename-asset").ReplyError(refused)
		gock.New(baseURL).Post("/api/rename-asset").Reply(http.StatusOK).JSON(map[string]any{"success": true})

		resp, err := client.Post(ctx, "/api/rename-asset", map[string]string{"from": "BP_Old", "to": "BP_New"})
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.Err()).ToNot(HaveOccurred())
		Expect(gock.IsDone()).To(BeTrue())
	})

	It("does not repeat a POST the service may already have received", func() {
		gock.New(baseURL).Post("/api/create-blueprint").ReplyError(errors.New("read: connection reset by peer"))
		gock.New(baseURL).Post("/api/create-blueprint").Reply(http.StatusOK).JSON(map[string]any{"success": true})

		_, err := client.Post(ctx, "/api/create-blueprint", map[string]string{"name": "BP_Once"})
		Expect(err).To(HaveOccurred())
		Expect(gock.IsPending()).To(BeTrue())
	})

	It("rejects a response that is not a JSON object", func() {
		gock.New(baseURL).Get("/api/list").Reply(http.StatusNotFound).BodyString("404 page not found")

		_, err := client.ListBlueprints(ctx, "")
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("status 404"))
	})
})

var _ = Describe("Client against a service that drops the connection", func() {
	It("sends a POST exactly once when the response is lost", func() {
		var requests atomic.Int32

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)

			// the request was read, the answer never comes
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				_ = conn.Close()
			}
		}))
		DeferCleanup(server.Close)

		cfg := apiclient.DefaultConfig(server.URL)
		cfg.RetryMax = 3
		cfg.RetryWaitMin = time.Millisecond
		cfg.RetryWaitMax = 5 * time.Millisecond
		client := apiclient.New(cfg, nil)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		DeferCleanup(cancel)

		_, err := client.Post(ctx, "/api/create-blueprint", map[string]string{"name": "BP_Once"})
		Expect(err).To(HaveOccurred())
		Expect(requests.Load()).To(Equal(int32(1)))

		_, err = client.Get(ctx, "/api/health", nil)
		Expect(err).To(HaveOccurred())
		// a GET is repeated, each attempt on a new connection
		Expect(requests.Load()).To(BeNumerically(">=", 3))
	})
})

var _ = Describe("UniqueName", func() {
	It("prefixes and differs between calls", func() {
		first := apiclient.UniqueName("BP_Test")
		second := apiclient.UniqueName("BP_Test")

		Expect(first).To(HavePrefix("BP_Test_"))
		Expect(first).ToNot(Equal(second))
	})
})
