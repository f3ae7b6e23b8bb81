// Package model holds the GraphQL input and output types.
package model

type AddressInput struct {
	Name        *string `json:"name,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	CountryCode string  `json:"countryCode"`
	StateCode   *string `json:"stateCode,omitempty"`
	City        *string `json:"city,omitempty"`
	Postcode    *string `json:"postcode,omitempty"`
	Street1     *string `json:"street1,omitempty"`
	Street2     *string `json:"street2,omitempty"`
}

type LineItemInput struct {
	ExternalID   *string `json:"externalId,omitempty"`
	PodPackageID string  `json:"podPackageId"`
	PageCount    int     `json:"pageCount"`
	Quantity     *int    `json:"quantity,omitempty"`
	CoverURL     *string `json:"coverUrl,omitempty"`
	InteriorURL  *string `json:"interiorUrl,omitempty"`
}

type PackageInput struct {
	LineItems   []*LineItemInput `json:"lineItems"`
	Destination *AddressInput    `json:"destination"`
}

type CartItemInput struct {
	ProductID string `json:"productId"`
	Quantity  *int   `json:"quantity,omitempty"`
}

type ShippingRateInput struct {
	Items       []*CartItemInput `json:"items"`
	Destination *AddressInput    `json:"destination"`
}

type CredentialsInput struct {
	Mode          *string `json:"mode,omitempty"`
	SandboxKey    *string `json:"sandboxKey,omitempty"`
	ProductionKey *string `json:"productionKey,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Tracking struct {
	TrackingID string `json:"trackingId"`
	URL        string `json:"url"`
}

type OrderNote struct {
	ID        string `json:"id"`
	Body      string `json:"body"`
	CreatedAt string `json:"createdAt"`
}

type Order struct {
	ID                        string       `json:"id"`
	Status                    string       `json:"status"`
	PrintJobID                *string      `json:"printJobId"`
	PrintJobStatus            *string      `json:"printJobStatus"`
	PrintJobStatusLabel       string       `json:"printJobStatusLabel"`
	PrintJobStatusDescription string       `json:"printJobStatusDescription"`
	Tracking                  []*Tracking  `json:"tracking"`
	Notes                     []*OrderNote `json:"notes"`
}

type LineItemCost struct {
	Quantity         int    `json:"quantity"`
	TotalCostExclTax string `json:"totalCostExclTax"`
	TotalCostInclTax string `json:"totalCostInclTax"`
	UnitTierCost     string `json:"unitTierCost"`
}

type ShippingCost struct {
	TotalCostExclTax string `json:"totalCostExclTax"`
	TotalCostInclTax string `json:"totalCostInclTax"`
	TotalTax         string `json:"totalTax"`
}

type Fee struct {
	FeeType          string `json:"feeType"`
	Sku              string `json:"sku"`
	TotalCostExclTax string `json:"totalCostExclTax"`
	TotalCostInclTax string `json:"totalCostInclTax"`
}

type CostCalculation struct {
	LineItemCosts       []*LineItemCost `json:"lineItemCosts"`
	ShippingCost        *ShippingCost   `json:"shippingCost"`
	Fees                []*Fee          `json:"fees"`
	TotalTax            string          `json:"totalTax"`
	TotalCostExclTax    string          `json:"totalCostExclTax"`
	TotalCostInclTax    string          `json:"totalCostInclTax"`
	TotalDiscountAmount string          `json:"totalDiscountAmount"`
	Currency            string          `json:"currency"`
}

type CostQuote struct {
	Success bool             `json:"success"`
	Cost    *CostCalculation `json:"cost"`
	Errors  []*FieldError    `json:"errors"`
}

type ShippingRate struct {
	ID       string `json:"id"`
	Package  string `json:"package"`
	Label    string `json:"label"`
	Cost     string `json:"cost"`
	Currency string `json:"currency"`
}

type SubmitResult struct {
	Submitted  bool          `json:"submitted"`
	PrintJobID *string       `json:"printJobId"`
	Errors     []*FieldError `json:"errors"`
}

type StatusCheck struct {
	OrderID    string      `json:"orderId"`
	PrintJobID string      `json:"printJobId"`
	Previous   *string     `json:"previous"`
	Current    string      `json:"current"`
	Changed    bool        `json:"changed"`
	Tracking   []*Tracking `json:"tracking"`
}

type Product struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	PodPackageID     string        `json:"podPackageId"`
	PageCount        int           `json:"pageCount"`
	PrintCostExclTax *string       `json:"printCostExclTax"`
	PrintCostInclTax *string       `json:"printCostInclTax"`
	Errors           []*FieldError `json:"errors"`
}

type SweepFailure struct {
	OrderID string `json:"orderId"`
	Message string `json:"message"`
}

type SweepReport struct {
	Checked  int             `json:"checked"`
	Changed  int             `json:"changed"`
	Failed   int             `json:"failed"`
	Failures []*SweepFailure `json:"failures"`
}

type PrintJobStatusInfo struct {
	Status      string `json:"status"`
	Label       string `json:"label"`
	Description string `json:"description"`
}
