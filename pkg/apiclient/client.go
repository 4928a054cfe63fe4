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

// Package apiclient talks to the service API from tests.
//
// Every endpoint answers JSON. A failed operation is reported in-band through an "error"
// string field, usually with status 200, so callers check Response.Err() rather than the
// status code.
package apiclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/constants"
	"go.uber.org/zap"
)

const maxResponseBytes = 16 << 20

// Config of a Client.
type Config struct {
	BaseURL string
	// RequestTimeout covers one call including its retries.
	RequestTimeout time.Duration
	// RetryMax is how often a connection error is retried. HTTP statuses are never retried,
	// and a POST only when the connection could not be established.
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// DefaultConfig returns the standard client settings for the service at baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:        baseURL,
		RequestTimeout: constants.APIRequestTimeout,
		RetryMax:       constants.APIRetryMax,
		RetryWaitMin:   constants.APIRetryWaitMin,
		RetryWaitMax:   constants.APIRetryWaitMax,
	}
}

// Client calls the service API.
type Client struct {
	cfg    Config
	retry  *retryablehttp.Client
	logger *zap.SugaredLogger
}

// New creates a Client.
func New(cfg Config, logger *zap.SugaredLogger) *Client {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = constants.APIRequestTimeout
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryMax
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	retryClient.Logger = &zapRetryLogger{logger: logger}
	retryClient.CheckRetry = connectionErrorsOnly(logger)
	// hand back the last response or error instead of a generic "giving up" error
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{cfg: cfg, retry: retryClient, logger: logger}
}

// HTTPClient exposes the underlying transport client, e.g. to intercept it in tests.
func (c *Client) HTTPClient() *http.Client {
	return c.retry.HTTPClient
}

// Get calls endpoint with params as query string. Empty values are left out.
func (c *Client) Get(ctx context.Context, endpoint string, params map[string]string) (Response, error) {
	query := url.Values{}

	for key, value := range params {
		if value != "" {
			query.Set(key, value)
		}
	}

	target := c.cfg.BaseURL + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	return c.do(ctx, http.MethodGet, endpoint, target, nil)
}

// Post calls endpoint with body encoded as JSON.
func (c *Client) Post(ctx context.Context, endpoint string, body any) (Response, error) {
	if body == nil {
		body = struct{}{}
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request for %s: %w", endpoint, err)
	}

	return c.do(ctx, http.MethodPost, endpoint, c.cfg.BaseURL+endpoint, raw)
}

type methodKey struct{}

func (c *Client) do(ctx context.Context, method, endpoint, target string, body []byte) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	ctx = context.WithValue(ctx, methodKey{}, method)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.retry.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%s %s: failed to read response: %w", method, endpoint, err)
	}

	var decoded Response
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("%s %s: status %d, response is not a JSON object: %w", method, endpoint, resp.StatusCode, err)
	}

	c.logger.Debugw("API call", "method", method, "endpoint", endpoint, "status", resp.StatusCode)

	return decoded, nil
}

// connectionErrorsOnly retries transport failures, never HTTP statuses. A request that may
// have reached the service is only retried when it is safe to repeat.
func connectionErrorsOnly(logger *zap.SugaredLogger) retryablehttp.CheckRetry {
	return func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}

		if err == nil {
			return false, nil
		}

		retryable := isDialError(err)
		if !retryable && isIdempotent(ctx) {
			msg := err.Error()
			retryable = strings.Contains(msg, "EOF") ||
				strings.Contains(msg, "connection reset") ||
				strings.Contains(msg, "connection refused") ||
				strings.Contains(msg, "timeout") ||
				strings.Contains(msg, "network is unreachable")
		}

		if retryable {
			logger.Debugf("Retrying after connection error: %v", err)
		}

		return retryable, nil
	}
}

// isDialError reports a connection that was never established, so nothing was sent.
func isDialError(err error) bool {
	var opErr *net.OpError

	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func isIdempotent(ctx context.Context) bool {
	method, _ := ctx.Value(methodKey{}).(string)

	return method == http.MethodGet || method == http.MethodHead
}

type zapRetryLogger struct {
	logger *zap.SugaredLogger
}

func (z *zapRetryLogger) Error(msg string, keysAndValues ...interface{}) {
	z.logger.Errorw(msg, keysAndValues...)
}

func (z *zapRetryLogger) Info(msg string, keysAndValues ...interface{}) {
	z.logger.Debugw(msg, keysAndValues...)
}

func (z *zapRetryLogger) Debug(msg string, keysAndValues ...interface{}) {
	z.logger.Debugw(msg, keysAndValues...)
}

func (z *zapRetryLogger) Warn(msg string, keysAndValues ...interface{}) {
	z.logger.Warnw(msg, keysAndValues...)
}
