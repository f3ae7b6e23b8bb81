package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tournevent/printbridge/internal/domain"
	"github.com/tournevent/printbridge/internal/repository"
	"github.com/tournevent/printbridge/pkg/printer"
	"go.uber.org/zap"
)

// StatusCheck is the outcome of one status check.
type StatusCheck struct {
	OrderID    string
	PrintJobID string
	Previous   printer.JobStatus
	Current    printer.JobStatus
	Changed    bool
	Tracking   printer.TrackingInfo
}

// HandlePaymentStatusChanged submits a print job once the order is paid.
// Orders that are unpaid, already submitted or carry nothing printable are
// left alone. Submission failures are logged and leave no job id behind, so
// a later payment event or a manual submission can retry.
func (s *Service) HandlePaymentStatusChanged(ctx context.Context, orderID string) (*printer.CreatedJob, error) {
	job, err := s.SubmitJob(ctx, orderID)
	switch {
	case err == nil:
		return job, nil
	case errors.Is(err, ErrOrderNotPaid),
		errors.Is(err, repository.ErrPrintJobExists),
		errors.Is(err, printer.ErrNothingToSubmit):
		s.logger.Debug("Print job not submitted",
			zap.String("order_id", orderID),
			zap.String("reason", err.Error()),
		)
		return nil, nil
	case errors.Is(err, repository.ErrNotFound):
		return nil, err
	default:
		s.logger.Error("Print job submission failed",
			zap.String("order_id", orderID),
			zap.String("kind", printer.Kind(err)),
			zap.Error(err),
		)
		return nil, nil
	}
}

// SubmitJob builds and submits the print job of a paid order. Concurrent
// submissions for the same order share one attempt.
func (s *Service) SubmitJob(ctx context.Context, orderID string) (*printer.CreatedJob, error) {
	return shared(ctx, &s.submits, orderID, func(ctx context.Context) (*printer.CreatedJob, error) {
		return s.submit(ctx, orderID)
	})
}

func (s *Service) submit(ctx context.Context, orderID string) (*printer.CreatedJob, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", orderID, err)
	}
	if !order.Status.IsPaid() {
		return nil, ErrOrderNotPaid
	}
	if order.HasPrintJob() {
		return nil, repository.ErrPrintJobExists
	}

	job, err := s.buildPrintJob(ctx, order)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	created, err := s.printer.CreatePrintJob(ctx, job)
	s.observe("create_print_job", start, err)
	if err != nil {
		return nil, err
	}

	if err := s.orders.SetPrintJobID(ctx, order.ID, created.ID, created.Status); err != nil {
		// The printer accepted a job the order cannot record.
		s.logger.Error("Failed to store print job id",
			zap.String("order_id", order.ID),
			zap.String("print_job_id", created.ID),
			zap.Error(err),
		)
		return nil, err
	}

	s.addNote(ctx, order.ID, fmt.Sprintf("Print job %s submitted to %s.", created.ID, s.printer.Name()))
	s.logger.Info("Print job submitted",
		zap.String("order_id", order.ID),
		zap.String("print_job_id", created.ID),
		zap.Int("line_items", len(job.LineItems)),
	)
	return created, nil
}

func (s *Service) buildPrintJob(ctx context.Context, order *domain.Order) (*printer.PrintJob, error) {
	items, err := s.lineItems(ctx, order.Items)
	if err != nil {
		return nil, err
	}

	printable := items[:0]
	for _, li := range items {
		if li.Printable() {
			printable = append(printable, li)
		}
	}
	if len(printable) == 0 {
		return nil, printer.ErrNothingToSubmit
	}

	email := s.cfg.ContactEmail
	if email == "" {
		email = order.Email
	}

	return &printer.PrintJob{
		ExternalID:      order.ID,
		ContactEmail:    email,
		LineItems:       printable,
		ShippingAddress: order.Shipping.ShippingAddress(order.Billing.Phone),
		ShippingLevel:   s.cfg.ShippingLevel,
		ProductionDelay: printer.DefaultProductionDelay,
	}, nil
}

// CheckStatus fetches the print job status of an order and records a change.
// A SHIPPED transition stores the tracking information and notifies the
// shipped listeners. Checking twice with an unchanged remote status has no
// further effect.
func (s *Service) CheckStatus(ctx context.Context, orderID string) (*StatusCheck, error) {
	return shared(ctx, &s.checks, orderID, func(ctx context.Context) (*StatusCheck, error) {
		return s.checkStatus(ctx, orderID)
	})
}

func (s *Service) checkStatus(ctx context.Context, orderID string) (*StatusCheck, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", orderID, err)
	}
	if !order.HasPrintJob() {
		return nil, ErrNoPrintJob
	}

	start := time.Now()
	report, err := s.printer.GetPrintJobStatus(ctx, order.PrintJobID)
	s.observe("get_print_job_status", start, err)
	if err != nil {
		return nil, err
	}
	if report.Name == "" {
		return nil, &printer.ParseError{
			Operation: "print job status",
			Cause:     errors.New("status has no name"),
		}
	}

	check := &StatusCheck{
		OrderID:    order.ID,
		PrintJobID: order.PrintJobID,
		Previous:   order.PrintJobStatus,
		Current:    report.Name,
	}
	if report.Name == order.PrintJobStatus {
		return check, nil
	}
	check.Changed = true

	// Tracking is stored before the status so a failed write leaves the
	// transition to be retried by the next check.
	shipped := report.Name == printer.StatusShipped
	if shipped {
		info := report.TrackingInfo()
		if err := s.orders.UpdateTracking(ctx, order.ID, info); err != nil {
			return nil, fmt.Errorf("store tracking information: %w", err)
		}
		order.TrackingInfo = info
		check.Tracking = info
	}

	if err := s.orders.UpdatePrintJobStatus(ctx, order.ID, report.Name); err != nil {
		return nil, fmt.Errorf("store print job status: %w", err)
	}
	order.PrintJobStatus = report.Name
	s.addNote(ctx, order.ID, "Print Fulfillment Status Updated: "+report.Name.Label())
	if s.metrics != nil {
		s.metrics.RecordStatusTransition(string(report.Name.Normalize()))
	}
	s.logger.Info("Print job status changed",
		zap.String("order_id", order.ID),
		zap.String("print_job_id", order.PrintJobID),
		zap.String("from", string(check.Previous)),
		zap.String("to", string(report.Name)),
	)

	if shipped {
		s.fireShipped(ctx, order, check.Tracking)
	}
	return check, nil
}

// AutoCompleteOnShipped completes a shipped order when every item backed by a
// product is a print book.
func (s *Service) AutoCompleteOnShipped(ctx context.Context, order *domain.Order, _ printer.TrackingInfo) {
	for _, item := range order.Items {
		if item.ProductID == "" {
			continue
		}
		product, err := s.product.GetByID(ctx, item.ProductID)
		if err != nil {
			s.logger.Warn("Order not completed, product lookup failed",
				zap.String("order_id", order.ID),
				zap.String("product_id", item.ProductID),
				zap.Error(err),
			)
			return
		}
		if !product.IsPrintBook() {
			return
		}
	}

	if err := s.orders.UpdateStatus(ctx, order.ID, domain.OrderStatusCompleted); err != nil {
		s.logger.Error("Failed to complete shipped order", zap.String("order_id", order.ID), zap.Error(err))
		return
	}
	order.Status = domain.OrderStatusCompleted
	s.addNote(ctx, order.ID, "Order completed after the print job shipped.")
	s.logger.Info("Order completed on shipment", zap.String("order_id", order.ID))
}
