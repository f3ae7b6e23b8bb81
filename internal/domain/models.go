// Package domain holds the storefront entities the fulfillment bridge works on.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tournevent/printbridge/pkg/printer"
)

// Address is a storefront billing or shipping address.
type Address struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Address1  string `json:"address_1"`
	Address2  string `json:"address_2,omitempty"`
	City      string `json:"city"`
	State     string `json:"state,omitempty"`
	Postcode  string `json:"postcode"`
	Country   string `json:"country"`
	Phone     string `json:"phone,omitempty"`
}

// FullName joins first and last name.
func (a Address) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// ShippingAddress converts the address to a printer destination.
// phone overrides the address phone when set.
func (a Address) ShippingAddress(phone string) printer.ShippingAddress {
	if phone == "" {
		phone = a.Phone
	}
	return printer.ShippingAddress{
		Name:        a.FullName(),
		Phone:       phone,
		CountryCode: a.Country,
		StateCode:   a.State,
		City:        a.City,
		Postcode:    a.Postcode,
		Street1:     a.Address1,
		Street2:     a.Address2,
	}
}

// OrderItem is one line of an order.
type OrderItem struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id,omitempty"`
	Name      string `json:"name"`
	Quantity  uint   `json:"quantity"`
}

// Order is a storefront order and its print fulfillment state.
type Order struct {
	ID       string      `json:"id"`
	Status   OrderStatus `json:"status"`
	Email    string      `json:"email"`
	Billing  Address     `json:"billing"`
	Shipping Address     `json:"shipping"`
	Items    []OrderItem `json:"items"`

	PrintJobID     string               `json:"print_job_id,omitempty"`
	PrintJobStatus printer.JobStatus    `json:"print_job_status,omitempty"`
	TrackingInfo   printer.TrackingInfo `json:"tracking_information,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasPrintJob reports whether a print job was already submitted for the order.
func (o *Order) HasPrintJob() bool {
	return o.PrintJobID != ""
}

// OrderNote is an audit entry attached to an order.
type OrderNote struct {
	ID        uuid.UUID `json:"id"`
	OrderID   string    `json:"order_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// NewOrderNote creates a note stamped with now.
func NewOrderNote(orderID, body string, now time.Time) *OrderNote {
	return &OrderNote{ID: uuid.New(), OrderID: orderID, Body: body, CreatedAt: now}
}

// Product is a storefront product. Print-book products carry the data needed
// to print them and their last quoted print cost.
type Product struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Type        ProductType        `json:"type"`
	PodPackage  printer.PodPackage `json:"pod_package"`
	PageCount   uint               `json:"page_count"`
	CoverURL    string             `json:"cover_pdf_url,omitempty"`
	InteriorURL string             `json:"interior_pdf_url,omitempty"`

	PrintCostExclTax decimal.NullDecimal `json:"print_cost_excl_tax"`
	PrintCostInclTax decimal.NullDecimal `json:"print_cost_incl_tax"`
	Errors           printer.Errors      `json:"errors,omitempty"`

	// QuotedPodPackageID and QuotedPageCount record what the stored cost was computed for.
	QuotedPodPackageID string `json:"quoted_pod_package_id,omitempty"`
	QuotedPageCount    uint   `json:"quoted_page_count,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// IsPrintBook reports whether the product is fulfilled by the printer.
func (p *Product) IsPrintBook() bool {
	return p != nil && p.Type == ProductTypePrintBook
}

// PodPackageID returns the concatenated print package id.
func (p *Product) PodPackageID() string {
	return p.PodPackage.ID()
}

// HasPrintCost reports whether a print cost is stored.
func (p *Product) HasPrintCost() bool {
	return p.PrintCostExclTax.Valid && p.PrintCostInclTax.Valid
}

// PrintCostStale reports whether the stored cost no longer matches the product.
func (p *Product) PrintCostStale() bool {
	return !p.HasPrintCost() ||
		p.QuotedPodPackageID != p.PodPackageID() ||
		p.QuotedPageCount != p.PageCount
}

// LineItem converts the product into a printer line item.
func (p *Product) LineItem(externalID string, quantity uint) printer.LineItem {
	return printer.LineItem{
		ExternalID:   externalID,
		Quantity:     quantity,
		PodPackageID: p.PodPackageID(),
		PageCount:    p.PageCount,
		CoverURL:     p.CoverURL,
		InteriorURL:  p.InteriorURL,
		Title:        p.Name,
	}
}
