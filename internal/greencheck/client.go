/*
Package greencheck talks to the green hosting classification service.

A Client issues exactly one GET per domain and never retries. Every failure mode
(transport errors, timeouts, rate limiting, unexpected status codes and malformed bodies)
is folded into a Result with a nil Green and a non-empty Error, so one bad domain never
aborts the rest of a batch.
*/
package greencheck

/*
greenlink — finds URLs and domains in source code and checks them for green hosting
Copyright (C) 2025  Pepijn van der Stap <rxtls@vanderstap.info>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/x-stp/greenlink/internal/client"
	"github.com/x-stp/greenlink/internal/metrics"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the Green Web Foundation greencheck endpoint.
	DefaultBaseURL = "https://api.thegreenwebfoundation.org/api/v3/greencheck/"
	// DefaultLookupTimeout bounds a single lookup, connection through body.
	DefaultLookupTimeout = 10 * time.Second
	// MsgRateLimited is the Result.Error text for HTTP 429 responses.
	MsgRateLimited = "rate limited"

	maxBodyBytes = 1 << 20
	userAgent    = "greenlink (+https://github.com/x-stp/greenlink)"
)

// Config holds the client settings. Zero values fall back to defaults.
type Config struct {
	BaseURL string
	// Timeout bounds each lookup; an expired lookup is a transport failure.
	Timeout time.Duration
	// RequestsPerSecond caps outgoing lookups client-side. Zero disables the limiter.
	RequestsPerSecond float64
	// HTTPClient overrides the shared client from internal/client.
	HTTPClient *http.Client
}

// Client looks up domains against the classification service.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient builds a Client from cfg.
func NewClient(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = client.GetHTTPClient()
	}
	c := &Client{
		baseURL: base,
		timeout: timeout,
		http:    httpClient,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return c
}

// response mirrors the fields we read from the greencheck payload.
// The service spells the provider field hosted_by; hostedBy is accepted as well.
type response struct {
	Green       *bool  `json:"green"`
	HostedBy    string `json:"hosted_by"`
	HostedByAlt string `json:"hostedBy"`
}

// Lookup classifies a single domain. It never returns an error: failures are data.
func (c *Client) Lookup(ctx context.Context, domain string) Result {
	start := time.Now()
	res := c.lookup(ctx, domain)
	if metrics.IsMetricsEnabled() {
		m := metrics.GetMetrics()
		status := res.Status()
		if res.Error == MsgRateLimited {
			status = "rate_limited"
		}
		m.LookupsTotal.WithLabelValues(status).Inc()
		m.LookupDuration.With(prometheus.Labels{"status": status}).Observe(time.Since(start).Seconds())
	}
	return res
}

func (c *Client) lookup(ctx context.Context, domain string) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Failed(fmt.Sprintf("rate limiter: %v", err))
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+url.PathEscape(domain), nil)
	if err != nil {
		return Failed(fmt.Sprintf("create request: %v", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Failed(fmt.Sprintf("timeout after %v", c.timeout))
		}
		return Failed(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return Failed(MsgRateLimited)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Failed(fmt.Sprintf("HTTP %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Failed(fmt.Sprintf("read body: %v", err))
	}
	var payload response
	if err := json.Unmarshal(body, &payload); err != nil {
		return Failed(fmt.Sprintf("malformed response: %v", err))
	}
	if payload.Green == nil {
		return Failed("malformed response: missing green field")
	}
	hostedBy := payload.HostedBy
	if hostedBy == "" {
		hostedBy = payload.HostedByAlt
	}
	return Verified(*payload.Green, hostedBy)
}
