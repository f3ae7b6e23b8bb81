// Package fulfillment drives print jobs for storefront orders: submission on
// payment, status polling, tracking capture and shipped-order completion.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tournevent/printbridge/internal/domain"
	"github.com/tournevent/printbridge/internal/repository"
	"github.com/tournevent/printbridge/internal/telemetry"
	"github.com/tournevent/printbridge/pkg/printer"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrOrderNotPaid is returned when submitting a job for an unpaid order.
	ErrOrderNotPaid = errors.New("order is not paid")

	// ErrNoPrintJob is returned when an order has no print job to check.
	ErrNoPrintJob = errors.New("order has no print job")

	// ErrNotPrintBook is returned when pricing a product that is not printed.
	ErrNotPrintBook = errors.New("product is not a print book")
)

// Config holds the settings of the fulfillment service.
type Config struct {
	AutoComplete    domain.AutoCompleteMode
	ContactEmail    string
	ShippingLevel   printer.ShippingLevel
	ShippingEnabled bool
	// ShippingPackageLabel names the print package in a split cart.
	ShippingPackageLabel string
	ShippingFeeLabel     string
	HandlingFee          decimal.Decimal
	// StoreAddress is the destination used to price a single product.
	StoreAddress printer.ShippingAddress
}

// sharedCallTimeout bounds a submission or status check shared by concurrent
// callers.
const sharedCallTimeout = 2 * time.Minute

// ShippedListener is notified when an order's print job becomes SHIPPED.
type ShippedListener func(ctx context.Context, order *domain.Order, info printer.TrackingInfo)

// Service orchestrates print fulfillment for orders.
type Service struct {
	printer printer.Printer
	orders  repository.OrderRepository
	notes   repository.OrderNoteRepository
	product repository.ProductRepository
	cfg     Config
	logger  *otelzap.Logger
	metrics *telemetry.Metrics
	now     func() time.Time

	// Per-order de-duplication of concurrent submissions and checks.
	submits singleflight.Group
	checks  singleflight.Group

	mu        sync.RWMutex
	listeners []ShippedListener
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics records printer calls and sweeps on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a fulfillment service. The auto-complete listener is
// registered when cfg.AutoComplete is on_shipped.
func NewService(p printer.Printer, repos *repository.Repositories, cfg Config, logger *otelzap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = otelzap.New(zap.NewNop())
	}
	if cfg.ShippingLevel == "" {
		cfg.ShippingLevel = printer.ShippingMail
	}
	if cfg.ShippingPackageLabel == "" {
		cfg.ShippingPackageLabel = "Print"
	}
	if cfg.ShippingFeeLabel == "" {
		cfg.ShippingFeeLabel = "Standard"
	}

	s := &Service{
		printer: p,
		orders:  repos.Order,
		notes:   repos.OrderNote,
		product: repos.Product,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.AutoComplete == domain.AutoCompleteOnShipped {
		s.OnShipped(s.AutoCompleteOnShipped)
	}
	return s
}

// OnShipped registers a listener fired after a SHIPPED status is persisted.
func (s *Service) OnShipped(l ShippedListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Service) fireShipped(ctx context.Context, order *domain.Order, info printer.TrackingInfo) {
	s.mu.RLock()
	listeners := append([]ShippedListener(nil), s.listeners...)
	s.mu.RUnlock()

	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("Shipped listener panicked",
						zap.String("order_id", order.ID),
						zap.Any("panic", r),
					)
				}
			}()
			l(ctx, order, info)
		}()
	}
}

// UpdateCredentials swaps the printer credentials when the printer supports it.
func (s *Service) UpdateCredentials(ctx context.Context, creds printer.Credentials) error {
	setter, ok := s.printer.(interface {
		SetCredentials(context.Context, printer.Credentials) error
	})
	if !ok {
		return fmt.Errorf("printer %s does not accept credentials", s.printer.Name())
	}
	return setter.SetCredentials(ctx, creds)
}

// GetTrackingInfo returns the stored tracking information, or nil when the
// order has none.
func (s *Service) GetTrackingInfo(ctx context.Context, orderID string) (printer.TrackingInfo, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if len(order.TrackingInfo) == 0 {
		return nil, nil
	}
	return order.TrackingInfo, nil
}

// GetOrder returns an order.
func (s *Service) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.orders.GetByID(ctx, orderID)
}

// Notes returns the audit notes of an order.
func (s *Service) Notes(ctx context.Context, orderID string) ([]*domain.OrderNote, error) {
	return s.notes.ListByOrderID(ctx, orderID)
}

func (s *Service) addNote(ctx context.Context, orderID, body string) {
	if err := s.notes.Create(ctx, domain.NewOrderNote(orderID, body, s.now())); err != nil {
		s.logger.Warn("Failed to add order note", zap.String("order_id", orderID), zap.Error(err))
	}
}

// observe records a printer call on the metrics, when configured.
func (s *Service) observe(operation string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
		s.metrics.RecordError(s.printer.Name(), printer.Kind(err))
	}
	s.metrics.RecordRequest(operation, s.printer.Name(), status, time.Since(start).Seconds())
}

// lineItems converts the print-book items of an order into printer line
// items. Items whose product is missing or not a print book are skipped.
func (s *Service) lineItems(ctx context.Context, items []domain.OrderItem) ([]printer.LineItem, error) {
	var out []printer.LineItem
	for _, item := range items {
		if item.ProductID == "" {
			continue
		}
		product, err := s.product.GetByID(ctx, item.ProductID)
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("Order item references unknown product",
				zap.String("item_id", item.ID),
				zap.String("product_id", item.ProductID),
			)
			continue
		}
		if err != nil {
			return nil, err
		}
		if !product.IsPrintBook() {
			continue
		}
		out = append(out, product.LineItem(item.ID, item.Quantity))
	}
	return out, nil
}

// shared runs fn once per key among concurrent callers. fn is detached from
// the cancellation of the caller that started it; a caller whose context ends
// stops waiting while the others still receive the result.
func shared[T any](ctx context.Context, group *singleflight.Group, key string, fn func(context.Context) (T, error)) (T, error) {
	ch := group.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedCallTimeout)
		defer cancel()
		return fn(callCtx)
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}
