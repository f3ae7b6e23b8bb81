package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/tournevent/printbridge/internal/domain"
	"github.com/tournevent/printbridge/internal/repository"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

type orderNoteRepository struct {
	db     *sql.DB
	logger *otelzap.Logger
}

// NewOrderNoteRepository creates a new order note repository
func NewOrderNoteRepository(db *sql.DB, logger *otelzap.Logger) repository.OrderNoteRepository {
	return &orderNoteRepository{db: db, logger: logger}
}

func (r *orderNoteRepository) Create(ctx context.Context, note *domain.OrderNote) error {
	query := `
		INSERT INTO order_notes (id, order_id, body, created_at)
		VALUES ($1, $2, $3, $4)
	`

	if note.ID == uuid.Nil {
		note.ID = uuid.New()
	}

	_, err := r.db.ExecContext(ctx, query, note.ID, note.OrderID, note.Body, note.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to create order note", zap.String("order_id", note.OrderID), zap.Error(err))
		return err
	}
	return nil
}

func (r *orderNoteRepository) ListByOrderID(ctx context.Context, orderID string) ([]*domain.OrderNote, error) {
	query := `
		SELECT id, order_id, body, created_at
		FROM order_notes
		WHERE order_id = $1
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		r.logger.Error("Failed to list order notes", zap.String("order_id", orderID), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	notes := []*domain.OrderNote{}
	for rows.Next() {
		var n domain.OrderNote
		if err := rows.Scan(&n.ID, &n.OrderID, &n.Body, &n.CreatedAt); err != nil {
			return nil, err
		}
		notes = append(notes, &n)
	}
	return notes, rows.Err()
}
