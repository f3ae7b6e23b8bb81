package lulu

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tournevent/printbridge/pkg/printer"
)

// MockAPIClient is a mock implementation of APIClient for testing.
// Created jobs are remembered and reported as CREATED until SetStatus is called.
type MockAPIClient struct {
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnCalculateCost     func(ctx context.Context, req *CostCalculationRequest) (*CostCalculationResponse, error)
	OnCreatePrintJob    func(ctx context.Context, req *PrintJobRequest) (*PrintJobResponse, error)
	OnGetPrintJobStatus func(ctx context.Context, printJobID string) (*StatusResponse, error)

	mu       sync.Mutex
	nextID   int64
	statuses map[string]*StatusResponse
}

// NewMockAPIClient creates a new mock API client with default behavior.
func NewMockAPIClient() *MockAPIClient {
	return &MockAPIClient{
		nextID:   100000,
		statuses: make(map[string]*StatusResponse),
	}
}

// SetStatus overrides the status reported for a print job.
func (m *MockAPIClient) SetStatus(printJobID string, status *StatusResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[printJobID] = status
}

func (m *MockAPIClient) simulate() error {
	if m.SimulateLatency > 0 {
		time.Sleep(m.SimulateLatency)
	}
	if m.SimulateErrors {
		return &printer.APIError{
			StatusCode: 400,
			Errors:     printer.Errors{"detail": "Simulated API error"},
		}
	}
	return nil
}

// CalculateCost returns a flat mock price per copy plus shipping.
func (m *MockAPIClient) CalculateCost(ctx context.Context, req *CostCalculationRequest) (*CostCalculationResponse, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnCalculateCost != nil {
		return m.OnCalculateCost(ctx, req)
	}

	taxRate := decimal.RequireFromString("0.10")
	unit := decimal.RequireFromString("4.50")

	resp := &CostCalculationResponse{
		LineItemCosts: make([]LineItemCost, 0, len(req.LineItems)),
		Fees:          []Fee{},
		Currency:      "USD",
	}

	itemsTotal := decimal.Zero
	for _, li := range req.LineItems {
		excl := unit.Add(decimal.New(int64(li.PageCount), -2)).Mul(decimal.NewFromInt(int64(li.Quantity)))
		tax := excl.Mul(taxRate).Round(2)
		itemsTotal = itemsTotal.Add(excl)
		resp.LineItemCosts = append(resp.LineItemCosts, LineItemCost{
			Quantity:               int(li.Quantity),
			CostExclDiscounts:      excl,
			TotalCostExclDiscounts: excl,
			TotalCostExclTax:       excl,
			TotalTax:               tax,
			TotalCostInclTax:       excl.Add(tax),
			TaxRate:                taxRate,
			UnitTierCost:           unit,
			Discounts:              []Discount{},
		})
	}

	shipExcl := decimal.RequireFromString("3.99")
	shipTax := shipExcl.Mul(taxRate).Round(2)
	resp.ShippingCost = ShippingCost{
		TotalCostExclTax: shipExcl,
		TotalTax:         shipTax,
		TotalCostInclTax: shipExcl.Add(shipTax),
		TaxRate:          taxRate,
	}

	totalExcl := itemsTotal.Add(shipExcl)
	resp.TotalCostExclTax = totalExcl
	resp.TotalTax = totalExcl.Mul(taxRate).Round(2)
	resp.TotalCostInclTax = totalExcl.Add(resp.TotalTax)
	resp.TotalDiscountAmount = decimal.Zero
	return resp, nil
}

// CreatePrintJob records a mock print job.
func (m *MockAPIClient) CreatePrintJob(ctx context.Context, req *PrintJobRequest) (*PrintJobResponse, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnCreatePrintJob != nil {
		return m.OnCreatePrintJob(ctx, req)
	}

	m.mu.Lock()
	m.nextID++
	id := fmt.Sprintf("%d", m.nextID)
	items := make([]LineItemStatusBody, len(req.LineItems))
	for i := range req.LineItems {
		items[i] = LineItemStatusBody{
			LineItemID: json.Number(fmt.Sprintf("%d", m.nextID*10+int64(i))),
			Name:       string(printer.StatusCreated),
		}
	}
	m.statuses[id] = &StatusResponse{
		Name:             string(printer.StatusCreated),
		Changed:          time.Now().UTC().Format(time.RFC3339),
		LineItemStatuses: items,
	}
	m.mu.Unlock()

	resp := &PrintJobResponse{ID: json.Number(id), ExternalID: req.ExternalID}
	resp.Status.Name = string(printer.StatusCreated)
	return resp, nil
}

// GetPrintJobStatus returns the recorded status of a mock print job.
func (m *MockAPIClient) GetPrintJobStatus(ctx context.Context, printJobID string) (*StatusResponse, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnGetPrintJobStatus != nil {
		return m.OnGetPrintJobStatus(ctx, printJobID)
	}

	m.mu.Lock()
	status, ok := m.statuses[printJobID]
	m.mu.Unlock()
	if !ok {
		return nil, &printer.APIError{
			StatusCode: 404,
			Errors:     printer.Errors{"404": fmt.Sprintf(`{"detail":"Print job %s not found"}`, printJobID)},
		}
	}

	out := *status
	raw, err := json.Marshal(status)
	if err != nil {
		return nil, err
	}
	out.Raw = raw
	return &out, nil
}

// ShippedStatus builds a SHIPPED status response with one tracked line item.
func ShippedStatus(trackingID, trackingURL string) *StatusResponse {
	return &StatusResponse{
		Name:    string(printer.StatusShipped),
		Changed: time.Now().UTC().Format(time.RFC3339),
		LineItemStatuses: []LineItemStatusBody{{
			LineItemID: json.Number("1"),
			Name:       string(printer.StatusShipped),
			Messages: StatusMessages{
				TrackingID:   trackingID,
				TrackingURLs: []string{trackingURL},
				CarrierName:  "mock-carrier-" + uuid.New().String()[:8],
			},
		}},
	}
}

// Verify interface compliance
var _ APIClient = (*MockAPIClient)(nil)
