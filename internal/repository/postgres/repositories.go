package postgres

import (
	"database/sql"

	"github.com/tournevent/printbridge/internal/repository"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
)

// NewRepositories creates a new set of repositories
func NewRepositories(db *sql.DB, logger *otelzap.Logger) *repository.Repositories {
	return &repository.Repositories{
		Order:     NewOrderRepository(db, logger),
		OrderNote: NewOrderNoteRepository(db, logger),
		Product:   NewProductRepository(db, logger),
		Token:     NewTokenRepository(db, logger),
	}
}

// rowsAffected returns repository.ErrNotFound when res touched no row.
func rowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
