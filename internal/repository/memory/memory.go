// Package memory provides process-local repositories.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tournevent/printbridge/internal/domain"
	"github.com/tournevent/printbridge/internal/repository"
	"github.com/tournevent/printbridge/pkg/printer"
	"github.com/tournevent/printbridge/pkg/printer/lulu"
)

// NewRepositories creates a new set of memory repositories
func NewRepositories() *repository.Repositories {
	return &repository.Repositories{
		Order:     NewOrderRepository(),
		OrderNote: NewOrderNoteRepository(),
		Product:   NewProductRepository(),
		Token:     lulu.NewMemoryTokenStore(),
	}
}

// OrderRepository stores orders in memory.
type OrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
	now    func() time.Time
}

// NewOrderRepository creates an empty order repository.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{orders: make(map[string]*domain.Order), now: time.Now}
}

func copyOrder(o *domain.Order) *domain.Order {
	out := *o
	out.Items = append([]domain.OrderItem(nil), o.Items...)
	if o.TrackingInfo != nil {
		out.TrackingInfo = make(printer.TrackingInfo, len(o.TrackingInfo))
		for k, v := range o.TrackingInfo {
			out.TrackingInfo[k] = v
		}
	}
	return &out
}

// GetByID returns a copy of the order.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyOrder(o), nil
}

// Save inserts or replaces the order.
func (r *OrderRepository) Save(ctx context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	r.orders[order.ID] = copyOrder(order)
	return nil
}

// ListIDsWithPrintJob returns matching ids in ascending order.
func (r *OrderRepository) ListIDsWithPrintJob(ctx context.Context, status domain.OrderStatus) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, o := range r.orders {
		if o.Status == status && o.PrintJobID != "" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *OrderRepository) update(id string, fn func(o *domain.Order) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	if err := fn(o); err != nil {
		return err
	}
	o.UpdatedAt = r.now()
	return nil
}

// SetPrintJobID stores the print job id once.
func (r *OrderRepository) SetPrintJobID(ctx context.Context, id, printJobID string, status printer.JobStatus) error {
	return r.update(id, func(o *domain.Order) error {
		if o.PrintJobID != "" {
			return repository.ErrPrintJobExists
		}
		o.PrintJobID = printJobID
		o.PrintJobStatus = status
		return nil
	})
}

// UpdatePrintJobStatus stores the last seen print job status.
func (r *OrderRepository) UpdatePrintJobStatus(ctx context.Context, id string, status printer.JobStatus) error {
	return r.update(id, func(o *domain.Order) error {
		o.PrintJobStatus = status
		return nil
	})
}

// UpdateTracking replaces the tracking information.
func (r *OrderRepository) UpdateTracking(ctx context.Context, id string, info printer.TrackingInfo) error {
	return r.update(id, func(o *domain.Order) error {
		o.TrackingInfo = make(printer.TrackingInfo, len(info))
		for k, v := range info {
			o.TrackingInfo[k] = v
		}
		return nil
	})
}

// UpdateStatus changes the storefront status.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	return r.update(id, func(o *domain.Order) error {
		o.Status = status
		return nil
	})
}

// OrderNoteRepository stores order notes in memory.
type OrderNoteRepository struct {
	mu    sync.RWMutex
	notes map[string][]*domain.OrderNote
}

// NewOrderNoteRepository creates an empty note repository.
func NewOrderNoteRepository() *OrderNoteRepository {
	return &OrderNoteRepository{notes: make(map[string][]*domain.OrderNote)}
}

// Create appends a note.
func (r *OrderNoteRepository) Create(ctx context.Context, note *domain.OrderNote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := *note
	r.notes[note.OrderID] = append(r.notes[note.OrderID], &n)
	return nil
}

// ListByOrderID returns the notes of an order, oldest first.
func (r *OrderNoteRepository) ListByOrderID(ctx context.Context, orderID string) ([]*domain.OrderNote, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.OrderNote, 0, len(r.notes[orderID]))
	for _, n := range r.notes[orderID] {
		c := *n
		out = append(out, &c)
	}
	return out, nil
}

// ProductRepository stores products in memory.
type ProductRepository struct {
	mu       sync.RWMutex
	products map[string]*domain.Product
	now      func() time.Time
}

// NewProductRepository creates an empty product repository.
func NewProductRepository() *ProductRepository {
	return &ProductRepository{products: make(map[string]*domain.Product), now: time.Now}
}

func copyProduct(p *domain.Product) *domain.Product {
	out := *p
	if p.Errors != nil {
		out.Errors = make(printer.Errors, len(p.Errors))
		for k, v := range p.Errors {
			out.Errors[k] = v
		}
	}
	return &out
}

// GetByID returns a copy of the product.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyProduct(p), nil
}

// Save inserts or replaces the product.
func (r *ProductRepository) Save(ctx context.Context, product *domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	product.UpdatedAt = r.now()
	r.products[product.ID] = copyProduct(product)
	return nil
}

// UpdatePrintCost stores the cost and clears errors.
func (r *ProductRepository) UpdatePrintCost(ctx context.Context, id string, cost repository.PrintCost) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.PrintCostExclTax = decimal.NewNullDecimal(cost.ExclTax)
	p.PrintCostInclTax = decimal.NewNullDecimal(cost.InclTax)
	p.QuotedPodPackageID = cost.PodPackageID
	p.QuotedPageCount = cost.PageCount
	p.Errors = nil
	p.UpdatedAt = r.now()
	return nil
}

// UpdatePrintCostErrors stores errors and clears the cost.
func (r *ProductRepository) UpdatePrintCostErrors(ctx context.Context, id string, errs printer.Errors) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.PrintCostExclTax = decimal.NullDecimal{}
	p.PrintCostInclTax = decimal.NullDecimal{}
	p.QuotedPodPackageID = ""
	p.QuotedPageCount = 0
	p.Errors = errs
	p.UpdatedAt = r.now()
	return nil
}

var (
	_ repository.OrderRepository     = (*OrderRepository)(nil)
	_ repository.OrderNoteRepository = (*OrderNoteRepository)(nil)
	_ repository.ProductRepository   = (*ProductRepository)(nil)
)
