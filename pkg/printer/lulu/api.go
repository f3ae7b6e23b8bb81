package lulu

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// APIClient defines the interface for Lulu print API operations.
// This abstraction allows for mock implementations during testing
// and real implementations in production.
type APIClient interface {
	// CalculateCost prices line items and shipping for one destination.
	CalculateCost(ctx context.Context, req *CostCalculationRequest) (*CostCalculationResponse, error)

	// CreatePrintJob submits a new print job.
	CreatePrintJob(ctx context.Context, req *PrintJobRequest) (*PrintJobResponse, error)

	// GetPrintJobStatus retrieves the status of a print job.
	GetPrintJobStatus(ctx context.Context, printJobID string) (*StatusResponse, error)
}

// Endpoint paths relative to the environment base URL.
const (
	pathAuthToken          = "/auth/realms/glasstree/protocol/openid-connect/token"
	pathCostCalculations   = "/print-job-cost-calculations/"
	pathPrintJobs          = "/print-jobs/"
	pathPrintJobStatusTmpl = "/print-jobs/{id}/status/"
)

// Environment base URLs.
const (
	SandboxBaseURL    = "https://api.sandbox.lulu.com"
	ProductionBaseURL = "https://api.lulu.com"
)

// ============================================================================
// API Request/Response Types (match Lulu print API structure)
// ============================================================================

// Address is a shipping address as accepted by Lulu.
type Address struct {
	Name        string `json:"name,omitempty"`
	City        string `json:"city"`
	CountryCode string `json:"country_code"`
	StateCode   string `json:"state_code,omitempty"`
	Postcode    string `json:"postcode"`
	Street1     string `json:"street1"`
	Street2     string `json:"street2,omitempty"`
	PhoneNumber string `json:"phone_number"`
}

// CostCalculationRequest is the body of POST /print-job-cost-calculations/.
type CostCalculationRequest struct {
	LineItems       []CostLineItem `json:"line_items"`
	ShippingAddress Address        `json:"shipping_address"`
	ShippingLevel   string         `json:"shipping_level"`
}

// CostLineItem is one line item of a cost calculation request.
type CostLineItem struct {
	PageCount    uint   `json:"page_count"`
	PodPackageID string `json:"pod_package_id"`
	Quantity     uint   `json:"quantity"`
}

// CostCalculationResponse is the 201 body of a cost calculation.
type CostCalculationResponse struct {
	LineItemCosts       []LineItemCost  `json:"line_item_costs"`
	ShippingCost        ShippingCost    `json:"shipping_cost"`
	Fees                []Fee           `json:"fees"`
	TotalTax            decimal.Decimal `json:"total_tax"`
	TotalCostExclTax    decimal.Decimal `json:"total_cost_excl_tax"`
	TotalCostInclTax    decimal.Decimal `json:"total_cost_incl_tax"`
	TotalDiscountAmount decimal.Decimal `json:"total_discount_amount"`
	Currency            string          `json:"currency"`
}

// LineItemCost is the cost of one quoted line item.
type LineItemCost struct {
	CostExclDiscounts      decimal.Decimal `json:"cost_excl_discounts"`
	TotalTax               decimal.Decimal `json:"total_tax"`
	TaxRate                decimal.Decimal `json:"tax_rate"`
	Quantity               int             `json:"quantity"`
	TotalCostExclTax       decimal.Decimal `json:"total_cost_excl_tax"`
	TotalCostExclDiscounts decimal.Decimal `json:"total_cost_excl_discounts"`
	TotalCostInclTax       decimal.Decimal `json:"total_cost_incl_tax"`
	Discounts              []Discount      `json:"discounts"`
	UnitTierCost           decimal.Decimal `json:"unit_tier_cost"`
}

// Discount is a discount applied to a line item.
type Discount struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// ShippingCost is the shipping portion of a cost calculation.
type ShippingCost struct {
	TotalCostExclTax decimal.Decimal `json:"total_cost_excl_tax"`
	TotalCostInclTax decimal.Decimal `json:"total_cost_incl_tax"`
	TotalTax         decimal.Decimal `json:"total_tax"`
	TaxRate          decimal.Decimal `json:"tax_rate"`
}

// Fee is an additional charge on a cost calculation.
type Fee struct {
	Currency         string          `json:"currency"`
	FeeType          string          `json:"fee_type"`
	SKU              string          `json:"sku"`
	TaxRate          decimal.Decimal `json:"tax_rate"`
	TotalCostExclTax decimal.Decimal `json:"total_cost_excl_tax"`
	TotalCostInclTax decimal.Decimal `json:"total_cost_incl_tax"`
	TotalTax         decimal.Decimal `json:"total_tax"`
}

// PrintJobRequest is the body of POST /print-jobs/.
type PrintJobRequest struct {
	ContactEmail    string             `json:"contact_email"`
	ExternalID      string             `json:"external_id"`
	LineItems       []PrintJobLineItem `json:"line_items"`
	ProductionDelay int                `json:"production_delay"`
	ShippingAddress Address            `json:"shipping_address"`
	ShippingLevel   string             `json:"shipping_level"`
}

// PrintJobLineItem is one line item of a print job.
type PrintJobLineItem struct {
	ExternalID             string                 `json:"external_id"`
	Quantity               uint                   `json:"quantity"`
	Title                  string                 `json:"title"`
	PrintableNormalization PrintableNormalization `json:"printable_normalization"`
}

// PrintableNormalization points Lulu at the files to print.
type PrintableNormalization struct {
	Cover        SourceFile `json:"cover"`
	Interior     SourceFile `json:"interior"`
	PodPackageID string     `json:"pod_package_id"`
}

// SourceFile is a remotely hosted PDF.
type SourceFile struct {
	SourceURL string `json:"source_url"`
}

// PrintJobResponse is the 201 body of a print job creation.
type PrintJobResponse struct {
	ID         json.Number `json:"id"`
	ExternalID string      `json:"external_id"`
	Status     struct {
		Name string `json:"name"`
	} `json:"status"`
}

// StatusResponse is the 200 body of GET /print-jobs/{id}/status/.
type StatusResponse struct {
	Name             string               `json:"name"`
	Changed          string               `json:"changed,omitempty"`
	LineItemStatuses []LineItemStatusBody `json:"line_item_statuses"`

	// Raw holds the body exactly as received.
	Raw json.RawMessage `json:"-"`
}

// LineItemStatusBody is the status of one line item.
type LineItemStatusBody struct {
	LineItemID json.Number    `json:"line_item_id,omitempty"`
	Name       string         `json:"name"`
	Messages   StatusMessages `json:"messages"`
}

// StatusMessages carries the tracking details of a shipped line item.
// Other statuses use different message shapes, which decode to the zero value.
type StatusMessages struct {
	TrackingID   string   `json:"tracking_id"`
	TrackingURLs []string `json:"tracking_urls"`
	CarrierName  string   `json:"carrier_name"`
}

// UnmarshalJSON tolerates messages that are not objects (null, lists, strings).
func (m *StatusMessages) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		*m = StatusMessages{}
		return nil
	}
	type plain StatusMessages
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		// Unexpected field types in non-shipping messages carry no tracking data.
		*m = StatusMessages{}
		return nil
	}
	*m = StatusMessages(p)
	return nil
}

// TokenResponse is the body returned by the token endpoint.
type TokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshToken     string `json:"refresh_token"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
	TokenType        string `json:"token_type"`
}

// errorDetail is the body shape of 401/403 responses.
type errorDetail struct {
	Detail string `json:"detail"`
}
