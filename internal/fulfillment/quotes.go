package fulfillment

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tournevent/printbridge/internal/domain"
	"github.com/tournevent/printbridge/internal/repository"
	"github.com/tournevent/printbridge/pkg/printer"
	"go.uber.org/zap"
)

// ShippingRate is a print-inclusive shipping rate offered at checkout.
type ShippingRate struct {
	ID       string
	Package  string
	Label    string
	Cost     decimal.Decimal
	Currency string
}

// GetCostQuote prices a package. Failures are carried by the result.
func (s *Service) GetCostQuote(ctx context.Context, pkg *printer.Package) *printer.CostCalculationResult {
	start := time.Now()
	result := s.printer.CalculateCost(ctx, pkg)
	s.observe("calculate_cost", start, result.Err)
	return result
}

// QuoteOrder prices the print-book items of an order to its shipping address.
func (s *Service) QuoteOrder(ctx context.Context, orderID string) (*printer.CostCalculationResult, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", orderID, err)
	}
	pkg, err := s.PackageFor(ctx, order.Items, order.Shipping.ShippingAddress(order.Billing.Phone))
	if err != nil {
		return nil, err
	}
	return s.GetCostQuote(ctx, pkg), nil
}

// PackageFor builds a package from the print-book items among items.
func (s *Service) PackageFor(ctx context.Context, items []domain.OrderItem, dest printer.ShippingAddress) (*printer.Package, error) {
	lineItems, err := s.lineItems(ctx, items)
	if err != nil {
		return nil, err
	}
	return &printer.Package{LineItems: lineItems, Destination: dest}, nil
}

// ShippingRate quotes the print-book items of a cart. It returns nil when
// shipping is disabled, the cart holds no print book or the quote fails.
func (s *Service) ShippingRate(ctx context.Context, items []domain.OrderItem, dest printer.ShippingAddress) (*ShippingRate, error) {
	if !s.cfg.ShippingEnabled {
		return nil, nil
	}
	pkg, err := s.PackageFor(ctx, items, dest)
	if err != nil {
		return nil, err
	}
	if len(pkg.LineItems) == 0 {
		return nil, nil
	}

	result := s.GetCostQuote(ctx, pkg)
	if !result.Success() {
		s.logger.Warn("No shipping rate, quote failed",
			zap.Strings("errors", result.Errors.Messages()),
		)
		return nil, nil
	}

	return &ShippingRate{
		ID:       s.printer.Name() + "_shipping",
		Package:  s.cfg.ShippingPackageLabel,
		Label:    s.cfg.ShippingFeeLabel,
		Cost:     result.Cost.ShippingCost.TotalCostInclTax.Add(s.cfg.HandlingFee),
		Currency: result.Cost.Currency,
	}, nil
}

// RefreshProductPrintCost quotes one copy of a print-book product to the
// store address and stores the cost, or the errors when the quote fails.
// Unless force is set, a product whose stored cost still matches its page
// count and package is returned untouched.
func (s *Service) RefreshProductPrintCost(ctx context.Context, productID string, force bool) (*domain.Product, error) {
	product, err := s.product.GetByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("load product %s: %w", productID, err)
	}
	if !product.IsPrintBook() {
		return nil, ErrNotPrintBook
	}
	if !force && !product.PrintCostStale() {
		return product, nil
	}

	result := s.GetCostQuote(ctx, &printer.Package{
		LineItems:   []printer.LineItem{product.LineItem(product.ID, 1)},
		Destination: s.cfg.StoreAddress,
	})

	switch {
	case result.Success() && len(result.Cost.LineItemCosts) > 0:
		cost := result.Cost.LineItemCosts[0]
		err = s.product.UpdatePrintCost(ctx, product.ID, repository.PrintCost{
			ExclTax:      cost.TotalCostExclTax,
			InclTax:      cost.TotalCostInclTax,
			PodPackageID: product.PodPackageID(),
			PageCount:    product.PageCount,
		})
	case result.Success():
		err = s.product.UpdatePrintCostErrors(ctx, product.ID, printer.Errors{"Error": "Quote has no line item cost"})
	default:
		s.logger.Warn("Product print cost quote failed",
			zap.String("product_id", product.ID),
			zap.Strings("errors", result.Errors.Messages()),
		)
		err = s.product.UpdatePrintCostErrors(ctx, product.ID, result.Errors)
	}
	if err != nil {
		return nil, fmt.Errorf("store print cost: %w", err)
	}

	return s.product.GetByID(ctx, product.ID)
}

// StatusLabel returns the display label of a print job status.
func StatusLabel(status printer.JobStatus) string {
	return status.Label()
}

// StatusDescription returns the description of a print job status.
func StatusDescription(status printer.JobStatus) string {
	return status.Description()
}
