package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"github.com/tournevent/printbridge/internal/domain"
	"github.com/tournevent/printbridge/internal/repository"
	"github.com/tournevent/printbridge/pkg/printer"
)

// SyncOrder stores an order pushed by the storefront and runs the payment
// hook for it. Print fulfillment fields already stored are kept.
func (s *Service) SyncOrder(ctx context.Context, order *domain.Order) (*printer.CreatedJob, error) {
	existing, err := s.orders.GetByID(ctx, order.ID)
	switch {
	case err == nil:
		order.PrintJobID = existing.PrintJobID
		order.PrintJobStatus = existing.PrintJobStatus
		order.TrackingInfo = existing.TrackingInfo
		order.CreatedAt = existing.CreatedAt
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("load order %s: %w", order.ID, err)
	default:
		order.PrintJobID = ""
		order.PrintJobStatus = ""
		order.TrackingInfo = nil
	}

	if err := s.orders.Save(ctx, order); err != nil {
		return nil, fmt.Errorf("save order %s: %w", order.ID, err)
	}
	if !order.Status.IsPaid() {
		return nil, nil
	}
	return s.HandlePaymentStatusChanged(ctx, order.ID)
}

// SyncProduct stores a product pushed by the storefront and refreshes the
// print cost of print books whose cost is missing or stale.
func (s *Service) SyncProduct(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	existing, err := s.product.GetByID(ctx, product.ID)
	switch {
	case err == nil:
		product.PrintCostExclTax = existing.PrintCostExclTax
		product.PrintCostInclTax = existing.PrintCostInclTax
		product.Errors = existing.Errors
		product.QuotedPodPackageID = existing.QuotedPodPackageID
		product.QuotedPageCount = existing.QuotedPageCount
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("load product %s: %w", product.ID, err)
	}

	if err := s.product.Save(ctx, product); err != nil {
		return nil, fmt.Errorf("save product %s: %w", product.ID, err)
	}
	if !product.IsPrintBook() {
		return product, nil
	}
	return s.RefreshProductPrintCost(ctx, product.ID, false)
}
