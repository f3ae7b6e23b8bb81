package lulu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tournevent/printbridge/pkg/printer"
	"golang.org/x/time/rate"
)

// Authenticator supplies request headers and the base URL of the active environment.
type Authenticator interface {
	AuthHeaders(ctx context.Context) (http.Header, error)
	BaseURL() string
}

// HTTPAPIClient is the production implementation of APIClient using HTTP.
type HTTPAPIClient struct {
	auth       Authenticator
	httpClient *http.Client
	limiter    *rate.Limiter
}

// HTTPAPIClientConfig holds configuration for the HTTP client.
type HTTPAPIClientConfig struct {
	Auth       Authenticator
	HTTPClient *http.Client
	Timeout    time.Duration
	RateLimit  float64 // requests per second, 0 disables limiting
	RateBurst  int
}

// NewHTTPAPIClient creates a new HTTP-based API client for production use.
func NewHTTPAPIClient(cfg HTTPAPIClientConfig) *HTTPAPIClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &HTTPAPIClient{
		auth:       cfg.Auth,
		httpClient: httpClient,
		limiter:    limiter,
	}
}

// CalculateCost prices line items via POST /print-job-cost-calculations/.
func (c *HTTPAPIClient) CalculateCost(ctx context.Context, req *CostCalculationRequest) (*CostCalculationResponse, error) {
	status, body, err := c.do(ctx, http.MethodPost, pathCostCalculations, req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated {
		return nil, decodeError(status, body)
	}

	if isEmptyBody(body) {
		return nil, &printer.ParseError{Operation: "cost calculation", StatusCode: status, Cause: errEmptyBody}
	}
	var result CostCalculationResponse
	if err := decodeJSON("cost calculation", status, body, &result); err != nil {
		return nil, err
	}
	if result.LineItemCosts == nil {
		result.LineItemCosts = []LineItemCost{}
	}
	if result.Fees == nil {
		result.Fees = []Fee{}
	}
	return &result, nil
}

// CreatePrintJob submits a print job via POST /print-jobs/.
func (c *HTTPAPIClient) CreatePrintJob(ctx context.Context, req *PrintJobRequest) (*PrintJobResponse, error) {
	status, body, err := c.do(ctx, http.MethodPost, pathPrintJobs, req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated {
		return nil, decodeError(status, body)
	}

	var result PrintJobResponse
	if err := decodeJSON("print job", status, body, &result); err != nil {
		return nil, err
	}
	if result.ID == "" {
		return nil, &printer.ParseError{Operation: "print job", StatusCode: status, Cause: errors.New("response has no print job id")}
	}
	return &result, nil
}

// GetPrintJobStatus retrieves a job status via GET /print-jobs/{id}/status/.
func (c *HTTPAPIClient) GetPrintJobStatus(ctx context.Context, printJobID string) (*StatusResponse, error) {
	status, body, err := c.do(ctx, http.MethodGet, StatusPath(printJobID), nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, decodeError(status, body)
	}

	if isEmptyBody(body) {
		return nil, &printer.ParseError{Operation: "print job status", StatusCode: status, Cause: errEmptyBody}
	}
	var result StatusResponse
	if err := decodeJSON("print job status", status, body, &result); err != nil {
		return nil, err
	}
	result.Raw = append(json.RawMessage(nil), body...)
	return &result, nil
}

var errEmptyBody = errors.New("empty response body")

func isEmptyBody(body []byte) bool {
	body = bytes.TrimSpace(body)
	return len(body) == 0 || bytes.Equal(body, []byte("null"))
}

// do performs an authenticated request and returns the status code and body.
// Failures to obtain a response are wrapped with printer.ErrTransport.
func (c *HTTPAPIClient) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	headers, err := c.auth.AuthHeaders(ctx)
	if err != nil {
		return 0, nil, err
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.auth.BaseURL()+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, fmt.Errorf("%w: %w", printer.ErrTransport, err)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %w", printer.ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: reading response: %w", printer.ErrTransport, err)
	}
	return resp.StatusCode, body, nil
}

// Verify interface compliance
var _ APIClient = (*HTTPAPIClient)(nil)
