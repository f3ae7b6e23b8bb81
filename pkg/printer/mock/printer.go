// Package mock provides a scriptable in-memory printer for testing.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tournevent/printbridge/pkg/printer"
)

// Printer is an in-memory printer.Printer. Jobs it creates report CREATED
// until SetStatus replaces their report.
type Printer struct {
	name string

	mu        sync.Mutex
	nextID    int
	jobs      map[string]*printer.PrintJob
	reports   map[string]*printer.JobStatusReport
	statusErr map[string]error

	// CreateErr, when set, fails every CreatePrintJob call.
	CreateErr error
	// QuoteErrors, when set, fails every CalculateCost call with these errors.
	QuoteErrors printer.Errors
	// UnitCost is the per-copy price of a quote (defaults to 5.00).
	UnitCost decimal.Decimal
	// ShippingCost is the shipping price of a quote (defaults to 3.99).
	ShippingCost decimal.Decimal

	createCalls int
	statusCalls int
	quoteCalls  int
}

// New creates a new mock printer.
func New(name string) *Printer {
	return &Printer{
		name:         name,
		nextID:       1000,
		jobs:         make(map[string]*printer.PrintJob),
		reports:      make(map[string]*printer.JobStatusReport),
		statusErr:    make(map[string]error),
		UnitCost:     decimal.RequireFromString("5.00"),
		ShippingCost: decimal.RequireFromString("3.99"),
	}
}

// Name returns the printer name.
func (p *Printer) Name() string {
	return p.name
}

// CalculateCost returns UnitCost per copy plus ShippingCost, tax free.
func (p *Printer) CalculateCost(ctx context.Context, pkg *printer.Package) *printer.CostCalculationResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quoteCalls++

	if p.QuoteErrors != nil {
		return &printer.CostCalculationResult{
			Errors: p.QuoteErrors,
			Err:    &printer.APIError{StatusCode: 400, Errors: p.QuoteErrors},
		}
	}

	cost := &printer.CostCalculation{
		LineItemCosts: []printer.LineItemCost{},
		Fees:          []printer.Fee{},
		ShippingCost: printer.ShippingCost{
			TotalCostExclTax: p.ShippingCost,
			TotalCostInclTax: p.ShippingCost,
		},
		Currency: "USD",
	}
	total := p.ShippingCost
	for _, li := range pkg.LineItems {
		if !li.Printable() {
			continue
		}
		line := p.UnitCost.Mul(decimal.NewFromInt(int64(li.Quantity)))
		total = total.Add(line)
		cost.LineItemCosts = append(cost.LineItemCosts, printer.LineItemCost{
			Quantity:         int(li.Quantity),
			TotalCostExclTax: line,
			TotalCostInclTax: line,
			UnitTierCost:     p.UnitCost,
		})
	}
	if len(cost.LineItemCosts) == 0 {
		return &printer.CostCalculationResult{
			Errors: printer.Errors{"line_items": "No line item has a print package"},
			Err:    printer.ErrNothingToSubmit,
		}
	}
	cost.TotalCostExclTax = total
	cost.TotalCostInclTax = total
	return &printer.CostCalculationResult{Cost: cost}
}

// CreatePrintJob records the printable items of job.
func (p *Printer) CreatePrintJob(ctx context.Context, job *printer.PrintJob) (*printer.CreatedJob, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.createCalls++

	if p.CreateErr != nil {
		return nil, p.CreateErr
	}

	var items []printer.LineItem
	for _, li := range job.LineItems {
		if li.Printable() {
			items = append(items, li)
		}
	}
	if len(items) == 0 {
		return nil, printer.ErrNothingToSubmit
	}

	p.nextID++
	id := fmt.Sprintf("%d", p.nextID)
	stored := *job
	stored.LineItems = items
	p.jobs[id] = &stored
	p.reports[id] = &printer.JobStatusReport{Name: printer.StatusCreated, Changed: time.Now()}

	return &printer.CreatedJob{ID: id, ExternalID: job.ExternalID, Status: printer.StatusCreated}, nil
}

// GetPrintJobStatus returns the scripted report of a job.
func (p *Printer) GetPrintJobStatus(ctx context.Context, printJobID string) (*printer.JobStatusReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statusCalls++

	if err := p.statusErr[printJobID]; err != nil {
		return nil, err
	}
	report, ok := p.reports[printJobID]
	if !ok {
		return nil, &printer.APIError{StatusCode: 404, Errors: printer.Errors{"404": "Not found."}}
	}
	out := *report
	return &out, nil
}

// SetStatus replaces the report of a job, creating the job if needed.
func (p *Printer) SetStatus(printJobID string, report *printer.JobStatusReport) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reports[printJobID] = report
	delete(p.statusErr, printJobID)
}

// SetShipped marks a job SHIPPED with one tracked line item.
func (p *Printer) SetShipped(printJobID, trackingID, trackingURL string) {
	p.SetStatus(printJobID, &printer.JobStatusReport{
		Name:    printer.StatusShipped,
		Changed: time.Now(),
		LineItemStatuses: []printer.LineItemStatus{{
			LineItemID: "1",
			Name:       printer.StatusShipped,
			Messages: printer.TrackingMessages{
				TrackingID:   trackingID,
				TrackingURLs: []string{trackingURL},
			},
		}},
	})
}

// FailStatus makes status lookups of a job fail with err.
func (p *Printer) FailStatus(printJobID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statusErr[printJobID] = err
}

// Job returns the job submitted under id.
func (p *Printer) Job(id string) (*printer.PrintJob, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	job, ok := p.jobs[id]
	return job, ok
}

// CreateCalls returns the number of CreatePrintJob calls.
func (p *Printer) CreateCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.createCalls
}

// StatusCalls returns the number of GetPrintJobStatus calls.
func (p *Printer) StatusCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statusCalls
}

// QuoteCalls returns the number of CalculateCost calls.
func (p *Printer) QuoteCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.quoteCalls
}

// Verify interface compliance
var _ printer.Printer = (*Printer)(nil)
