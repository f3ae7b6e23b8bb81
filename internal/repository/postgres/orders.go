package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tournevent/printbridge/internal/domain"
	"github.com/tournevent/printbridge/internal/repository"
	"github.com/tournevent/printbridge/pkg/printer"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

type orderRepository struct {
	db     *sql.DB
	logger *otelzap.Logger
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *sql.DB, logger *otelzap.Logger) repository.OrderRepository {
	return &orderRepository{db: db, logger: logger}
}

func (r *orderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `
		SELECT id, status, email, billing, shipping, items,
			print_job_id, print_job_status, tracking_information,
			created_at, updated_at
		FROM orders
		WHERE id = $1
	`

	var order domain.Order
	var billingJSON, shippingJSON, itemsJSON, trackingJSON []byte
	var printJobID sql.NullString

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&order.ID,
		&order.Status,
		&order.Email,
		&billingJSON,
		&shippingJSON,
		&itemsJSON,
		&printJobID,
		&order.PrintJobStatus,
		&trackingJSON,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get order", zap.String("order_id", id), zap.Error(err))
		return nil, err
	}

	order.PrintJobID = printJobID.String
	if err := unmarshalColumns(map[string]jsonColumn{
		"billing":              {billingJSON, &order.Billing},
		"shipping":             {shippingJSON, &order.Shipping},
		"items":                {itemsJSON, &order.Items},
		"tracking_information": {trackingJSON, &order.TrackingInfo},
	}); err != nil {
		return nil, fmt.Errorf("order %s: %w", id, err)
	}
	return &order, nil
}

func (r *orderRepository) Save(ctx context.Context, order *domain.Order) error {
	query := `
		INSERT INTO orders (
			id, status, email, billing, shipping, items,
			print_job_id, print_job_status, tracking_information, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, now(), now())
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			email = EXCLUDED.email,
			billing = EXCLUDED.billing,
			shipping = EXCLUDED.shipping,
			items = EXCLUDED.items,
			print_job_id = COALESCE(orders.print_job_id, EXCLUDED.print_job_id),
			print_job_status = EXCLUDED.print_job_status,
			tracking_information = EXCLUDED.tracking_information,
			updated_at = now()
	`

	billingJSON, err := json.Marshal(order.Billing)
	if err != nil {
		return err
	}
	shippingJSON, err := json.Marshal(order.Shipping)
	if err != nil {
		return err
	}
	items := order.Items
	if items == nil {
		items = []domain.OrderItem{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return err
	}
	trackingJSON, err := nullableJSON(order.TrackingInfo, len(order.TrackingInfo) == 0)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query,
		order.ID,
		order.Status,
		order.Email,
		billingJSON,
		shippingJSON,
		itemsJSON,
		order.PrintJobID,
		order.PrintJobStatus,
		trackingJSON,
	)
	if err != nil {
		r.logger.Error("Failed to save order", zap.String("order_id", order.ID), zap.Error(err))
		return err
	}
	return nil
}

func (r *orderRepository) ListIDsWithPrintJob(ctx context.Context, status domain.OrderStatus) ([]string, error) {
	query := `
		SELECT id
		FROM orders
		WHERE status = $1 AND print_job_id IS NOT NULL AND print_job_id <> ''
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, query, status)
	if err != nil {
		r.logger.Error("Failed to list orders", zap.String("status", string(status)), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *orderRepository) SetPrintJobID(ctx context.Context, id, printJobID string, status printer.JobStatus) error {
	query := `
		UPDATE orders
		SET print_job_id = $2, print_job_status = $3, updated_at = now()
		WHERE id = $1 AND (print_job_id IS NULL OR print_job_id = '')
	`

	res, err := r.db.ExecContext(ctx, query, id, printJobID, status)
	if err != nil {
		r.logger.Error("Failed to store print job id", zap.String("order_id", id), zap.Error(err))
		return err
	}
	if err := rowsAffected(res); errors.Is(err, repository.ErrNotFound) {
		// Either the order is gone or it already has a job.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return repository.ErrPrintJobExists
	} else if err != nil {
		return err
	}
	return nil
}

func (r *orderRepository) UpdatePrintJobStatus(ctx context.Context, id string, status printer.JobStatus) error {
	return r.exec(ctx, "update print job status", id,
		`UPDATE orders SET print_job_status = $2, updated_at = now() WHERE id = $1`, status)
}

func (r *orderRepository) UpdateTracking(ctx context.Context, id string, info printer.TrackingInfo) error {
	trackingJSON, err := nullableJSON(info, len(info) == 0)
	if err != nil {
		return err
	}
	return r.exec(ctx, "update tracking", id,
		`UPDATE orders SET tracking_information = $2, updated_at = now() WHERE id = $1`, trackingJSON)
}

func (r *orderRepository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	return r.exec(ctx, "update status", id,
		`UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`, status)
}

func (r *orderRepository) exec(ctx context.Context, op, id, query string, arg any) error {
	res, err := r.db.ExecContext(ctx, query, id, arg)
	if err != nil {
		r.logger.Error("Failed to "+op, zap.String("order_id", id), zap.Error(err))
		return err
	}
	return rowsAffected(res)
}

type jsonColumn struct {
	data []byte
	dest any
}

func unmarshalColumns(cols map[string]jsonColumn) error {
	for name, col := range cols {
		if len(col.data) == 0 {
			continue
		}
		if err := json.Unmarshal(col.data, col.dest); err != nil {
			return fmt.Errorf("decoding %s: %w", name, err)
		}
	}
	return nil
}

// nullableJSON marshals v, or returns nil (SQL NULL) when empty is true.
func nullableJSON(v any, empty bool) ([]byte, error) {
	if empty {
		return nil, nil
	}
	return json.Marshal(v)
}
