package fulfillment

import (
	"context"
	"fmt"
	"time"

	"github.com/tournevent/printbridge/internal/domain"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// SweepReport summarizes one sweep.
type SweepReport struct {
	Checked  int
	Changed  int
	Failed   int
	Errors   map[string]error
	Duration time.Duration
}

// Sweep checks the print job status of every processing order that has one.
// Orders are checked one at a time and a failing order never stops the sweep.
func (s *Service) Sweep(ctx context.Context) (*SweepReport, error) {
	start := time.Now()

	ids, err := s.orders.ListIDsWithPrintJob(ctx, domain.OrderStatusProcessing)
	if err != nil {
		return nil, fmt.Errorf("list orders to check: %w", err)
	}

	report := &SweepReport{Errors: make(map[string]error)}
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		report.Checked++

		check, err := s.safeCheck(ctx, id)
		if err != nil {
			report.Failed++
			report.Errors[id] = err
			s.logger.Warn("Status check failed",
				zap.String("order_id", id),
				zap.Error(err),
			)
			continue
		}
		if check.Changed {
			report.Changed++
		}
	}

	report.Duration = time.Since(start)
	if s.metrics != nil {
		s.metrics.RecordSweep(report.Checked, report.Failed, report.Duration.Seconds())
	}
	s.logger.Info("Status sweep finished",
		zap.Int("checked", report.Checked),
		zap.Int("changed", report.Changed),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

func (s *Service) safeCheck(ctx context.Context, orderID string) (check *StatusCheck, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("status check panicked: %v", r)
		}
	}()
	return s.CheckStatus(ctx, orderID)
}

// Scheduler runs Sweep on a fixed interval.
type Scheduler struct {
	service  *Service
	interval time.Duration
	logger   *otelzap.Logger
}

// NewScheduler creates a scheduler. A non-positive interval defaults to an hour.
func NewScheduler(service *Service, interval time.Duration, logger *otelzap.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = service.logger
	}
	return &Scheduler{service: service, interval: interval, logger: logger}
}

// Run sweeps on every tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Status sweep scheduled", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Status sweep scheduler stopped")
			return nil
		case <-ticker.C:
			if _, err := s.service.Sweep(ctx); err != nil {
				s.logger.Error("Status sweep failed", zap.Error(err))
			}
		}
	}
}
