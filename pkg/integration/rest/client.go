// Package rest provides a JSON-over-HTTP client with retries and a circuit
// breaker, used by the model and classifier adapters.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bargom/hivemind/pkg/integration"
	"github.com/bargom/hivemind/pkg/metrics"
)

const maxErrorBody = 4 << 10

// Client is an HTTP client with resilience patterns.
type Client struct {
	config         integration.Config
	httpClient     *http.Client
	circuitBreaker *integration.CircuitBreaker
	retryer        *integration.Retryer
	logger         *slog.Logger
}

// New creates a client for the configured service.
func New(config integration.Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: config.Timeout,
		},
		circuitBreaker: integration.NewCircuitBreaker(config.ServiceName, config.CircuitBreaker),
		retryer:        integration.NewRetryer(config.Retry),
		logger:         slog.Default().With("component", "rest_client", "service", config.ServiceName),
	}, nil
}

// WithHTTPClient replaces the underlying http.Client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Request represents an HTTP request.
type Request struct {
	Method  string
	Path    string
	Headers http.Header
	Body    any
}

// Response represents an HTTP response.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Decode unmarshals the response body.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// Do executes req through the circuit breaker and retryer. Non-2xx
// responses are returned as *integration.HTTPError.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if err := c.circuitBreaker.Allow(); err != nil {
		return nil, fmt.Errorf("%s: %w", c.config.ServiceName, err)
	}

	timer := metrics.Global().Integration().NewCallTimer(c.config.ServiceName, req.Path)
	retryer := c.retryer.WithService(c.config.ServiceName, req.Path)
	resp, err := integration.DoWithResult(ctx, retryer, func(ctx context.Context) (*Response, error) {
		return c.execute(ctx, req)
	})
	timer.Done(err)

	if err != nil {
		if integration.IsRetryable(err) {
			c.circuitBreaker.RecordFailure()
		}
		return nil, err
	}
	c.circuitBreaker.RecordSuccess()
	return resp, nil
}

// PostJSON posts in and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	resp, err := c.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: in})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}

func (c *Client) execute(ctx context.Context, req *Request) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + "/" + strings.TrimLeft(req.Path, "/")
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.config.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.BearerToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.BearerToken)
	}
	for k, v := range c.config.Headers {
		httpReq.Header.Set(k, v)
	}
	for k, vs := range req.Headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	duration := time.Since(start)

	c.logger.DebugContext(ctx, "http call",
		"method", req.Method,
		"path", req.Path,
		"status", httpResp.StatusCode,
		"duration", duration)

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		if len(respBody) > maxErrorBody {
			respBody = respBody[:maxErrorBody]
		}
		return nil, &integration.HTTPError{
			StatusCode: httpResp.StatusCode,
			Message:    http.StatusText(httpResp.StatusCode),
			Body:       respBody,
		}
	}
	return &Response{
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header,
		Body:       respBody,
		Duration:   duration,
	}, nil
}
