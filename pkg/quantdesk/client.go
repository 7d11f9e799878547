// Package quantdesk is a Go SDK for the quantdesk-server HTTP API.
package quantdesk

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"quantdesk/internal/api"
	"quantdesk/internal/backtest"
	"quantdesk/internal/domain"
	"quantdesk/internal/heatmap"
	"quantdesk/internal/marketdata"
	"quantdesk/internal/store"
)

// Wire types shared with the server.
type (
	BacktestRequest  = backtest.Request
	BacktestResult   = backtest.Result
	HeatmapRequest   = heatmap.Request
	HeatmapResult    = heatmap.Result
	Progress         = heatmap.Progress
	Change           = heatmap.Change
	Credentials      = domain.Credentials
	Health           = marketdata.Health
	Modules          = api.ModulesResponse
	RunRecord        = store.RunRecord
	ProgressCallback = heatmap.ProgressFunc
)

// Error kinds, matched with errors.Is against errors returned by Client.
var (
	ErrInvalidRequest   = domain.ErrInvalidRequest
	ErrUnknownStrategy  = domain.ErrUnknownStrategy
	ErrUnknownIndicator = domain.ErrUnknownIndicator
	ErrInvalidParameter = domain.ErrInvalidParameter
	ErrInsufficientData = domain.ErrInsufficientData
	ErrDataUnavailable  = domain.ErrDataUnavailable
	ErrCancelled        = domain.ErrCancelled
	ErrInvalidHorizon   = domain.ErrInvalidHorizon
)

var kinds = map[string]error{
	"InvalidRequest":   ErrInvalidRequest,
	"UnknownStrategy":  ErrUnknownStrategy,
	"UnknownIndicator": ErrUnknownIndicator,
	"InvalidParameter": ErrInvalidParameter,
	"InsufficientData": ErrInsufficientData,
	"DataUnavailable":  ErrDataUnavailable,
	"Cancelled":        ErrCancelled,
	"InvalidHorizon":   ErrInvalidHorizon,
}

// APIError is a non-2xx reply from the server.
type APIError struct {
	StatusCode int
	Kind       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("quantdesk: %d %s: %s", e.StatusCode, e.Kind, e.Message)
	}
	return fmt.Sprintf("quantdesk: %d: %s", e.StatusCode, e.Message)
}

// Unwrap exposes the matching error kind, if any.
func (e *APIError) Unwrap() error { return kinds[e.Kind] }

// Client provides a Go SDK for interacting with the quantdesk-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client. Deadlines should come
// from the request context; heatmap streams can run for minutes.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a new quantdesk API client.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Backtest runs one backtest.
func (c *Client) Backtest(ctx context.Context, req BacktestRequest) (*BacktestResult, error) {
	var res BacktestResult
	if err := c.do(ctx, http.MethodPost, "/api/backtest", req, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Heatmap runs a heatmap scan over the server-sent event stream, calling
// progress for every progress event. progress may be nil.
func (c *Client) Heatmap(ctx context.Context, req HeatmapRequest, progress ProgressCallback) (*HeatmapResult, error) {
	resp, err := c.send(ctx, http.MethodPost, "/api/heatmap/stream", req, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var event string
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 64*1024), 16<<20)
	for sc.Scan() {
		line := sc.Text()
		if v, ok := strings.CutPrefix(line, "event: "); ok {
			event = v
			continue
		}
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		switch event {
		case api.EventProgress:
			var p Progress
			if err := json.Unmarshal([]byte(data), &p); err != nil {
				return nil, fmt.Errorf("decoding progress: %w", err)
			}
			if progress != nil {
				progress(p)
			}
		case api.EventResult:
			var res HeatmapResult
			if err := json.Unmarshal([]byte(data), &res); err != nil {
				return nil, fmt.Errorf("decoding result: %w", err)
			}
			return &res, nil
		case api.EventError:
			var body api.ErrorResponse
			if err := json.Unmarshal([]byte(data), &body); err != nil {
				return nil, fmt.Errorf("decoding error event: %w", err)
			}
			return nil, &APIError{StatusCode: http.StatusOK, Kind: body.Kind, Message: body.Error}
		}
	}
	if err := sc.Err(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		}
		return nil, fmt.Errorf("reading heatmap stream: %w", err)
	}
	return nil, errors.New("quantdesk: heatmap stream ended without a result")
}

// Health checks market-data credentials. Empty credentials check the
// server's configured defaults.
func (c *Client) Health(ctx context.Context, creds Credentials) (*Health, error) {
	var h Health
	body := api.HealthRequest{Credentials: creds}
	if err := c.do(ctx, http.MethodPost, "/api/health", body, nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Modules lists the available indicators, strategies and intervals.
func (c *Client) Modules(ctx context.Context) (*Modules, error) {
	var m Modules
	if err := c.do(ctx, http.MethodGet, "/api/modules", nil, nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Symbols lists the tradable universe, optionally filtered by prefix.
func (c *Client) Symbols(ctx context.Context, creds Credentials, prefix string) ([]string, error) {
	path := "/api/symbols"
	if prefix != "" {
		path += "?prefix=" + url.QueryEscape(prefix)
	}
	header := http.Header{}
	if !creds.Empty() {
		header.Set(api.HeaderAPIKey, creds.APIKey)
		header.Set(api.HeaderAPISecret, creds.APISecret)
	}
	var out api.SymbolsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, header, &out); err != nil {
		return nil, err
	}
	return out.Symbols, nil
}

// Runs lists recorded backtests, newest first. limit ≤ 0 uses the server
// default.
func (c *Client) Runs(ctx context.Context, limit int) ([]RunRecord, error) {
	path := "/api/runs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out api.RunsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Runs, nil
}

// Run fetches one recorded backtest.
func (c *Client) Run(ctx context.Context, id string) (*RunRecord, error) {
	var rec RunRecord
	if err := c.do(ctx, http.MethodGet, "/api/runs/"+url.PathEscape(id), nil, nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) do(ctx context.Context, method, path string, in any, header http.Header, out any) error {
	resp, err := c.send(ctx, method, path, in, header)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// send performs the request and returns the response when the status is
// 2xx; otherwise the body is decoded into an *APIError.
func (c *Client) send(ctx context.Context, method, path string, in any, header http.Header) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		}
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode/100 == 2 {
		return resp, nil
	}
	defer resp.Body.Close()

	apiErr := &APIError{StatusCode: resp.StatusCode}
	var eb api.ErrorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if json.Unmarshal(data, &eb) == nil && eb.Error != "" {
		apiErr.Kind, apiErr.Message = eb.Kind, eb.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return nil, apiErr
}
