// Package printer provides an abstraction layer for print-on-demand fulfillment APIs.
package printer

import (
	"context"
)

// Printer defines the operations a print-on-demand provider must implement.
type Printer interface {
	// Name returns the provider identifier (e.g., "lulu").
	Name() string

	// CalculateCost prices a package of line items shipped to one destination.
	// Failures are reported on the result rather than as an error so callers
	// rendering a page can fall back gracefully.
	CalculateCost(ctx context.Context, pkg *Package) *CostCalculationResult

	// CreatePrintJob submits a print job. It returns ErrNothingToSubmit when no
	// line item is eligible.
	CreatePrintJob(ctx context.Context, job *PrintJob) (*CreatedJob, error)

	// GetPrintJobStatus returns the provider's current view of a print job.
	GetPrintJobStatus(ctx context.Context, printJobID string) (*JobStatusReport, error)
}
