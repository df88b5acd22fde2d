// Package cmegroup is a small client for the CME Group futures settlements
// endpoint.
package cmegroup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"settleflow/models"
)

const (
	defaultBaseURL  = "https://www.cmegroup.com/CmeWS/mvc/Settlements/Futures/Settlements"
	defaultTimeout  = 30 * time.Second
	defaultPageSize = 500
	// maxBodyBytes bounds how much of a response is read.
	maxBodyBytes = 8 << 20
)

// Options configures a Client. Zero values fall back to the public endpoint,
// a 30s per-request timeout and no pacing.
type Options struct {
	BaseURL           string
	UserAgent         string
	Headers           map[string]string
	Timeout           time.Duration
	PageSize          int
	RequestsPerSecond float64
	Burst             int
	// Transport replaces http.DefaultTransport, mainly in tests.
	Transport http.RoundTripper
	// Now supplies the cache-busting token; defaults to time.Now.
	Now func() time.Time
}

// Client fetches settlement pages for one trade date at a time.
type Client struct {
	baseURL    string
	pageSize   int
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

// NewClient creates a client from opts.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		pageSize: opts.PageSize,
		timeout:  opts.Timeout,
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: headerTransport{agent: opts.UserAgent, headers: opts.Headers, base: opts.Transport},
		},
		limiter: rate.NewLimiter(limit, burst),
		now:     opts.Now,
	}
}

// Settlements requests the futures settlements of productID for tradeDate
// (MM/DD/YYYY). Failures are *TransportError or *ParseError.
func (c *Client) Settlements(ctx context.Context, productID, tradeDate string) (*models.SettlementResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &TransportError{Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.settlementsURL(productID, tradeDate), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("failed to read response: %w", err)}
	}

	var out models.SettlementResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &ParseError{Err: err}
	}
	return &out, nil
}

func (c *Client) settlementsURL(productID, tradeDate string) string {
	params := url.Values{}
	params.Set("strategy", "DEFAULT")
	params.Set("tradeDate", tradeDate)
	params.Set("pageSize", strconv.Itoa(c.pageSize))
	params.Set("_t", strconv.FormatInt(c.now().UnixMilli(), 10))
	// isProtected is a bare flag without a value.
	return fmt.Sprintf("%s/%s/FUT?%s&isProtected", c.baseURL, url.PathEscape(productID), params.Encode())
}
