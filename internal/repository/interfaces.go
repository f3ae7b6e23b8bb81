// Package repository defines storage for orders, products and printer tokens.
package repository

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/tournevent/printbridge/internal/domain"
	"github.com/tournevent/printbridge/pkg/printer"
	"github.com/tournevent/printbridge/pkg/printer/lulu"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPrintJobExists is returned when an order already has a print job id.
	ErrPrintJobExists = errors.New("order already has a print job")
)

// OrderRepository defines order data access methods
type OrderRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	Save(ctx context.Context, order *domain.Order) error
	// ListIDsWithPrintJob returns ids of orders in status that have a print job id.
	ListIDsWithPrintJob(ctx context.Context, status domain.OrderStatus) ([]string, error)
	// SetPrintJobID stores the print job id unless one is already stored, in
	// which case ErrPrintJobExists is returned.
	SetPrintJobID(ctx context.Context, id, printJobID string, status printer.JobStatus) error
	UpdatePrintJobStatus(ctx context.Context, id string, status printer.JobStatus) error
	UpdateTracking(ctx context.Context, id string, info printer.TrackingInfo) error
	UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error
}

// OrderNoteRepository defines order note data access methods
type OrderNoteRepository interface {
	Create(ctx context.Context, note *domain.OrderNote) error
	ListByOrderID(ctx context.Context, orderID string) ([]*domain.OrderNote, error)
}

// ProductRepository defines product data access methods
type ProductRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	Save(ctx context.Context, product *domain.Product) error
	// UpdatePrintCost stores a quoted cost and clears stored errors.
	UpdatePrintCost(ctx context.Context, id string, cost PrintCost) error
	// UpdatePrintCostErrors stores quote errors and clears the stored cost.
	UpdatePrintCostErrors(ctx context.Context, id string, errs printer.Errors) error
}

// PrintCost is the quoted print cost of one copy of a product.
type PrintCost struct {
	ExclTax      decimal.Decimal
	InclTax      decimal.Decimal
	PodPackageID string
	PageCount    uint
}

// Repositories aggregates all repositories
type Repositories struct {
	Order     OrderRepository
	OrderNote OrderNoteRepository
	Product   ProductRepository
	Token     lulu.TokenStore
}
