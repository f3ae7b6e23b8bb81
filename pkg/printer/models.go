package printer

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Mode selects which Printer environment credentials are used against.
type Mode string

const (
	ModeSandbox    Mode = "sandbox"
	ModeProduction Mode = "production"
)

// ParseMode returns the mode named by s, falling back to sandbox for anything
// that is not exactly "production".
func ParseMode(s string) Mode {
	if strings.EqualFold(strings.TrimSpace(s), string(ModeProduction)) {
		return ModeProduction
	}
	return ModeSandbox
}

// Credentials holds the API keys for both environments and the active mode.
type Credentials struct {
	Mode          Mode
	SandboxKey    string
	ProductionKey string
}

// ActiveKey returns the key for the active mode.
func (c Credentials) ActiveKey() string {
	if c.Mode == ModeProduction {
		return c.ProductionKey
	}
	return c.SandboxKey
}

// TokenPair is a cached OAuth2 access/refresh token pair.
// Expiries already include the safety margin applied when the pair was issued.
type TokenPair struct {
	AccessToken   string
	AccessExpiry  time.Time
	RefreshToken  string
	RefreshExpiry time.Time
}

// AccessValid reports whether the access token can be used at now.
func (p *TokenPair) AccessValid(now time.Time) bool {
	return p != nil && p.AccessToken != "" && now.Before(p.AccessExpiry)
}

// RefreshValid reports whether the refresh token can be used at now.
func (p *TokenPair) RefreshValid(now time.Time) bool {
	return p != nil && p.RefreshToken != "" && now.Before(p.RefreshExpiry)
}

// ShippingLevel is the Printer's shipping service level.
type ShippingLevel string

const (
	ShippingMail         ShippingLevel = "MAIL"
	ShippingPriorityMail ShippingLevel = "PRIORITY_MAIL"
	ShippingGround       ShippingLevel = "GROUND"
	ShippingGroundHD     ShippingLevel = "GROUND_HD"
	ShippingGroundBus    ShippingLevel = "GROUND_BUS"
	ShippingExpedited    ShippingLevel = "EXPEDITED"
	ShippingExpress      ShippingLevel = "EXPRESS"
)

// DefaultProductionDelay is the delay, in seconds, before a submitted job
// moves to production.
const DefaultProductionDelay = 120

// PodPackage is the set of sub-SKUs that make up a pod_package_id.
type PodPackage struct {
	Trim   string `json:"trim"`   // e.g., "0600X0900"
	Color  string `json:"color"`  // e.g., "BW", "FC"
	Print  string `json:"print"`  // e.g., "STD", "PRE"
	Bind   string `json:"bind"`   // e.g., "PB", "CW"
	Paper  string `json:"paper"`  // e.g., "060UW444"
	Finish string `json:"finish"` // e.g., "G", "M"
	Linen  string `json:"linen"`
	Foil   string `json:"foil"`
}

// ID concatenates the sub-SKUs in their significant order without separators.
func (p PodPackage) ID() string {
	return p.Trim + p.Color + p.Print + p.Bind + p.Paper + p.Finish + p.Linen + p.Foil
}

// LineItem is one printable product within a job or quote.
type LineItem struct {
	ExternalID   string
	Quantity     uint
	PodPackageID string
	PageCount    uint
	CoverURL     string
	InteriorURL  string
	Title        string
}

// Printable reports whether the item carries everything needed to print it.
// Items that are not printable are left out of both quotes and jobs.
func (li LineItem) Printable() bool {
	return li.PodPackageID != "" && li.CoverURL != "" && li.InteriorURL != ""
}

// ShippingAddress is the destination of a job or quote.
type ShippingAddress struct {
	Name        string
	Phone       string
	CountryCode string // ISO 3166-1 alpha-2
	StateCode   string
	City        string
	Postcode    string
	Street1     string
	Street2     string
}

// Package is a set of line items shipped together to one destination.
type Package struct {
	LineItems   []LineItem
	Destination ShippingAddress
}

// PrintJob is a fulfillment request for one storefront order.
type PrintJob struct {
	ExternalID      string
	ContactEmail    string
	LineItems       []LineItem
	ShippingAddress ShippingAddress
	ShippingLevel   ShippingLevel
	ProductionDelay int // seconds
}

// CreatedJob is the Printer's acknowledgement of a new print job.
type CreatedJob struct {
	ID         string
	ExternalID string
	Status     JobStatus
}

// Discount is a discount applied to a line item cost.
type Discount struct {
	Amount      decimal.Decimal
	Description string
}

// LineItemCost is the cost breakdown of one quoted line item.
type LineItemCost struct {
	Quantity               int
	CostExclDiscounts      decimal.Decimal
	TotalTax               decimal.Decimal
	TaxRate                decimal.Decimal
	TotalCostExclTax       decimal.Decimal
	TotalCostExclDiscounts decimal.Decimal
	TotalCostInclTax       decimal.Decimal
	UnitTierCost           decimal.Decimal
	Discounts              []Discount
}

// ShippingCost is the shipping portion of a cost calculation.
type ShippingCost struct {
	TotalCostExclTax decimal.Decimal
	TotalCostInclTax decimal.Decimal
	TotalTax         decimal.Decimal
	TaxRate          decimal.Decimal
}

// Fee is an additional fee charged on a calculation (e.g., fulfillment fee).
type Fee struct {
	Currency         string
	FeeType          string
	SKU              string
	TaxRate          decimal.Decimal
	TotalCostExclTax decimal.Decimal
	TotalCostInclTax decimal.Decimal
	TotalTax         decimal.Decimal
}

// CostCalculation is a successful cost calculation.
type CostCalculation struct {
	LineItemCosts       []LineItemCost
	ShippingCost        ShippingCost
	Fees                []Fee
	TotalTax            decimal.Decimal
	TotalCostExclTax    decimal.Decimal
	TotalCostInclTax    decimal.Decimal
	TotalDiscountAmount decimal.Decimal
	Currency            string
}

// CostCalculationResult is either a CostCalculation or a set of errors.
// It is built from exactly one response and never modified afterwards.
type CostCalculationResult struct {
	Cost   *CostCalculation
	Errors Errors
	// Err is the classified cause of a failure (APIError, ParseError,
	// ErrAuth, ErrTransport).
	Err error
}

// Success reports whether the calculation succeeded.
func (r *CostCalculationResult) Success() bool {
	return r != nil && r.Cost != nil
}

// TrackingMessages carries the shipment details of a line item status.
type TrackingMessages struct {
	TrackingID   string
	TrackingURLs []string
	CarrierName  string
}

// LineItemStatus is the status of one line item within a job.
type LineItemStatus struct {
	LineItemID string
	Name       JobStatus
	Messages   TrackingMessages
}

// JobStatusReport is the decoded status of a print job.
type JobStatusReport struct {
	Name             JobStatus
	Changed          time.Time
	LineItemStatuses []LineItemStatus
	// Raw is the undecoded status body as returned by the Printer.
	Raw json.RawMessage
}

// TrackingInfo maps tracking ids to tracking URLs.
type TrackingInfo map[string]string

// TrackingInfo collects tracking URLs from every shipped line item. A repeated
// tracking id keeps the URL seen last.
func (r *JobStatusReport) TrackingInfo() TrackingInfo {
	info := make(TrackingInfo)
	if r == nil {
		return info
	}
	for _, li := range r.LineItemStatuses {
		if li.Name != StatusShipped {
			continue
		}
		for _, u := range li.Messages.TrackingURLs {
			info[li.Messages.TrackingID] = u
		}
	}
	return info
}
