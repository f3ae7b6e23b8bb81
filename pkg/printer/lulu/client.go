// Package lulu provides integration with the Lulu print-on-demand API.
package lulu

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/tournevent/printbridge/pkg/printer"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

const printerName = "lulu"

// Config holds Lulu configuration.
type Config struct {
	Credentials       printer.Credentials
	SandboxBaseURL    string
	ProductionBaseURL string
	Timeout           time.Duration
	RateLimit         float64 // requests per second, 0 disables limiting
	RateBurst         int
	UseMock           bool // When true, uses mock API client

	// TokenStore caches tokens; a memory store is used when nil.
	TokenStore TokenStore
	// OnTokenGrant is called after every token grant attempt.
	OnTokenGrant func(grantType string, err error)
}

// Client is the Lulu printer client.
// It implements the printer.Printer interface and delegates
// API calls to the underlying APIClient (mock or HTTP).
type Client struct {
	config    Config
	apiClient APIClient
	tokens    *TokenManager
	logger    *otelzap.Logger
	tracer    trace.Tracer
}

// New creates a new Lulu client.
// If cfg.UseMock is true, it uses a mock API client and never authenticates.
func New(cfg Config, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	if cfg.UseMock {
		return NewWithAPIClient(cfg, NewMockAPIClient(), logger, tracer)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	tokens := NewTokenManager(TokenManagerConfig{
		Credentials:       cfg.Credentials,
		SandboxBaseURL:    cfg.SandboxBaseURL,
		ProductionBaseURL: cfg.ProductionBaseURL,
		Store:             cfg.TokenStore,
		HTTPClient:        httpClient,
		Logger:            logger,
		OnGrant:           cfg.OnTokenGrant,
	})

	c := NewWithAPIClient(cfg, NewHTTPAPIClient(HTTPAPIClientConfig{
		Auth:       tokens,
		HTTPClient: httpClient,
		RateLimit:  cfg.RateLimit,
		RateBurst:  cfg.RateBurst,
	}), logger, tracer)
	c.tokens = tokens
	return c
}

// NewWithAPIClient creates a new Lulu client with a custom API client.
// This is useful for injecting mock clients in tests.
func NewWithAPIClient(cfg Config, apiClient APIClient, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	if logger == nil {
		logger = otelzap.New(zap.NewNop())
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(printerName)
	}
	return &Client{
		config:    cfg,
		apiClient: apiClient,
		logger:    logger,
		tracer:    tracer,
	}
}

// Name returns the printer name.
func (c *Client) Name() string {
	return printerName
}

// SetCredentials swaps the API credentials, invalidating cached tokens when
// they change. The token manager owns the active credentials.
func (c *Client) SetCredentials(ctx context.Context, creds printer.Credentials) error {
	if c.tokens == nil {
		return nil
	}
	return c.tokens.SetCredentials(ctx, creds)
}

// InvalidateTokens drops cached tokens of both modes.
func (c *Client) InvalidateTokens(ctx context.Context) error {
	if c.tokens == nil {
		return nil
	}
	return c.tokens.Invalidate(ctx)
}

// CalculateCost prices a package. Failures are reported in the result, never as a Go error.
func (c *Client) CalculateCost(ctx context.Context, pkg *printer.Package) *printer.CostCalculationResult {
	ctx, span := c.tracer.Start(ctx, "lulu.CalculateCost")
	defer span.End()

	apiReq, err := BuildCostCalculation(pkg)
	if err != nil {
		c.logger.Debug("Nothing to quote", zap.Error(err))
		return failure(span, err)
	}

	c.logger.Info("Calculating Lulu print cost",
		zap.String("items", describeRequest(apiReq)),
		zap.String("destination_country", apiReq.ShippingAddress.CountryCode),
	)
	span.SetAttributes(attribute.Int("printer.line_items", len(apiReq.LineItems)))

	apiResp, err := c.apiClient.CalculateCost(ctx, apiReq)
	if err != nil {
		c.logger.Error("Lulu cost calculation failed", zap.Error(err), zap.String("kind", printer.Kind(err)))
		return failure(span, err)
	}

	return &printer.CostCalculationResult{Cost: costResponseToPrinter(apiResp)}
}

// CreatePrintJob submits a print job built from the printable line items of job.
func (c *Client) CreatePrintJob(ctx context.Context, job *printer.PrintJob) (*printer.CreatedJob, error) {
	ctx, span := c.tracer.Start(ctx, "lulu.CreatePrintJob")
	defer span.End()

	apiReq, err := BuildPrintJob(job)
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	c.logger.Info("Creating Lulu print job",
		zap.String("external_id", apiReq.ExternalID),
		zap.Int("line_items", len(apiReq.LineItems)),
		zap.String("shipping_level", apiReq.ShippingLevel),
	)
	span.SetAttributes(
		attribute.String("printer.external_id", apiReq.ExternalID),
		attribute.Int("printer.line_items", len(apiReq.LineItems)),
	)

	apiResp, err := c.apiClient.CreatePrintJob(ctx, apiReq)
	if err != nil {
		c.logger.Error("Lulu print job creation failed",
			zap.String("external_id", apiReq.ExternalID),
			zap.Error(err),
		)
		recordError(span, err)
		return nil, err
	}

	return &printer.CreatedJob{
		ID:         apiResp.ID.String(),
		ExternalID: apiResp.ExternalID,
		Status:     printer.JobStatus(apiResp.Status.Name),
	}, nil
}

// GetPrintJobStatus retrieves the current status of a print job.
func (c *Client) GetPrintJobStatus(ctx context.Context, printJobID string) (*printer.JobStatusReport, error) {
	ctx, span := c.tracer.Start(ctx, "lulu.GetPrintJobStatus",
		trace.WithAttributes(attribute.String("printer.job_id", printJobID)),
	)
	defer span.End()

	c.logger.Debug("Getting Lulu print job status", zap.String("print_job_id", printJobID))

	apiResp, err := c.apiClient.GetPrintJobStatus(ctx, printJobID)
	if err != nil {
		c.logger.Error("Lulu status lookup failed",
			zap.String("print_job_id", printJobID),
			zap.Error(err),
		)
		recordError(span, err)
		return nil, err
	}

	return statusResponseToPrinter(apiResp), nil
}

// ============================================================================
// Error mapping
// ============================================================================

// FailureErrors converts an operation error into the error set shown to users.
func FailureErrors(err error) printer.Errors {
	var apiErr *printer.APIError
	var parseErr *printer.ParseError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, printer.ErrAuth):
		return printer.Errors{"Error": "Unable to authenticate with Lulu"}
	case errors.As(err, &apiErr):
		return apiErr.Errors
	case errors.As(err, &parseErr):
		return printer.Errors{"Error": "Unexpected response from Lulu"}
	case errors.Is(err, printer.ErrTransport), errors.Is(err, context.DeadlineExceeded):
		return transportErrors()
	case errors.Is(err, printer.ErrNothingToSubmit):
		return printer.Errors{"line_items": "No line item has a print package"}
	default:
		return printer.Errors{"Error": err.Error()}
	}
}

func failure(span trace.Span, err error) *printer.CostCalculationResult {
	recordError(span, err)
	return &printer.CostCalculationResult{Errors: FailureErrors(err), Err: err}
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, printer.Kind(err))
}

// ============================================================================
// Response Conversion Helpers
// ============================================================================

func costResponseToPrinter(resp *CostCalculationResponse) *printer.CostCalculation {
	out := &printer.CostCalculation{
		LineItemCosts: make([]printer.LineItemCost, 0, len(resp.LineItemCosts)),
		ShippingCost: printer.ShippingCost{
			TotalCostExclTax: resp.ShippingCost.TotalCostExclTax,
			TotalCostInclTax: resp.ShippingCost.TotalCostInclTax,
			TotalTax:         resp.ShippingCost.TotalTax,
			TaxRate:          resp.ShippingCost.TaxRate,
		},
		Fees:                make([]printer.Fee, 0, len(resp.Fees)),
		TotalTax:            resp.TotalTax,
		TotalCostExclTax:    resp.TotalCostExclTax,
		TotalCostInclTax:    resp.TotalCostInclTax,
		TotalDiscountAmount: resp.TotalDiscountAmount,
		Currency:            resp.Currency,
	}

	for _, li := range resp.LineItemCosts {
		discounts := make([]printer.Discount, 0, len(li.Discounts))
		for _, d := range li.Discounts {
			discounts = append(discounts, printer.Discount{Amount: d.Amount, Description: d.Description})
		}
		out.LineItemCosts = append(out.LineItemCosts, printer.LineItemCost{
			Quantity:               li.Quantity,
			CostExclDiscounts:      li.CostExclDiscounts,
			TotalTax:               li.TotalTax,
			TaxRate:                li.TaxRate,
			TotalCostExclTax:       li.TotalCostExclTax,
			TotalCostExclDiscounts: li.TotalCostExclDiscounts,
			TotalCostInclTax:       li.TotalCostInclTax,
			UnitTierCost:           li.UnitTierCost,
			Discounts:              discounts,
		})
	}

	for _, f := range resp.Fees {
		out.Fees = append(out.Fees, printer.Fee{
			Currency:         f.Currency,
			FeeType:          f.FeeType,
			SKU:              f.SKU,
			TaxRate:          f.TaxRate,
			TotalCostExclTax: f.TotalCostExclTax,
			TotalCostInclTax: f.TotalCostInclTax,
			TotalTax:         f.TotalTax,
		})
	}
	return out
}

func statusResponseToPrinter(resp *StatusResponse) *printer.JobStatusReport {
	report := &printer.JobStatusReport{
		Name:             printer.JobStatus(resp.Name),
		Changed:          parseTimestamp(resp.Changed),
		LineItemStatuses: make([]printer.LineItemStatus, 0, len(resp.LineItemStatuses)),
		Raw:              resp.Raw,
	}
	for _, li := range resp.LineItemStatuses {
		report.LineItemStatuses = append(report.LineItemStatuses, printer.LineItemStatus{
			LineItemID: li.LineItemID.String(),
			Name:       printer.JobStatus(li.Name),
			Messages: printer.TrackingMessages{
				TrackingID:   li.Messages.TrackingID,
				TrackingURLs: li.Messages.TrackingURLs,
				CarrierName:  li.Messages.CarrierName,
			},
		})
	}
	return report
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
}

func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Verify interface compliance
var _ printer.Printer = (*Client)(nil)
