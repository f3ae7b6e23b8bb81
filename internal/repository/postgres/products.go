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

type productRepository struct {
	db     *sql.DB
	logger *otelzap.Logger
}

// NewProductRepository creates a new product repository
func NewProductRepository(db *sql.DB, logger *otelzap.Logger) repository.ProductRepository {
	return &productRepository{db: db, logger: logger}
}

func (r *productRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	query := `
		SELECT id, name, type, pod_package, page_count, cover_pdf_url, interior_pdf_url,
			print_cost_excl_tax, print_cost_incl_tax, errors,
			quoted_pod_package_id, quoted_page_count, updated_at
		FROM products
		WHERE id = $1
	`

	var p domain.Product
	var packageJSON, errorsJSON []byte
	var pageCount, quotedPageCount int64

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID,
		&p.Name,
		&p.Type,
		&packageJSON,
		&pageCount,
		&p.CoverURL,
		&p.InteriorURL,
		&p.PrintCostExclTax,
		&p.PrintCostInclTax,
		&errorsJSON,
		&p.QuotedPodPackageID,
		&quotedPageCount,
		&p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get product", zap.String("product_id", id), zap.Error(err))
		return nil, err
	}

	p.PageCount = uint(pageCount)
	p.QuotedPageCount = uint(quotedPageCount)
	if err := unmarshalColumns(map[string]jsonColumn{
		"pod_package": {packageJSON, &p.PodPackage},
		"errors":      {errorsJSON, &p.Errors},
	}); err != nil {
		return nil, fmt.Errorf("product %s: %w", id, err)
	}
	return &p, nil
}

func (r *productRepository) Save(ctx context.Context, p *domain.Product) error {
	query := `
		INSERT INTO products (
			id, name, type, pod_package, page_count, cover_pdf_url, interior_pdf_url,
			print_cost_excl_tax, print_cost_incl_tax, errors,
			quoted_pod_package_id, quoted_page_count, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			pod_package = EXCLUDED.pod_package,
			page_count = EXCLUDED.page_count,
			cover_pdf_url = EXCLUDED.cover_pdf_url,
			interior_pdf_url = EXCLUDED.interior_pdf_url,
			print_cost_excl_tax = EXCLUDED.print_cost_excl_tax,
			print_cost_incl_tax = EXCLUDED.print_cost_incl_tax,
			errors = EXCLUDED.errors,
			quoted_pod_package_id = EXCLUDED.quoted_pod_package_id,
			quoted_page_count = EXCLUDED.quoted_page_count,
			updated_at = now()
	`

	packageJSON, err := json.Marshal(p.PodPackage)
	if err != nil {
		return err
	}
	errorsJSON, err := nullableJSON(p.Errors, len(p.Errors) == 0)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query,
		p.ID,
		p.Name,
		p.Type,
		packageJSON,
		int64(p.PageCount),
		p.CoverURL,
		p.InteriorURL,
		p.PrintCostExclTax,
		p.PrintCostInclTax,
		errorsJSON,
		p.QuotedPodPackageID,
		int64(p.QuotedPageCount),
	)
	if err != nil {
		r.logger.Error("Failed to save product", zap.String("product_id", p.ID), zap.Error(err))
		return err
	}
	return nil
}

func (r *productRepository) UpdatePrintCost(ctx context.Context, id string, cost repository.PrintCost) error {
	query := `
		UPDATE products
		SET print_cost_excl_tax = $2, print_cost_incl_tax = $3,
			quoted_pod_package_id = $4, quoted_page_count = $5,
			errors = NULL, updated_at = now()
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query, id, cost.ExclTax, cost.InclTax, cost.PodPackageID, int64(cost.PageCount))
	if err != nil {
		r.logger.Error("Failed to store print cost", zap.String("product_id", id), zap.Error(err))
		return err
	}
	return rowsAffected(res)
}

func (r *productRepository) UpdatePrintCostErrors(ctx context.Context, id string, errs printer.Errors) error {
	query := `
		UPDATE products
		SET errors = $2, print_cost_excl_tax = NULL, print_cost_incl_tax = NULL,
			quoted_pod_package_id = '', quoted_page_count = 0, updated_at = now()
		WHERE id = $1
	`

	errorsJSON, err := nullableJSON(errs, len(errs) == 0)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, query, id, errorsJSON)
	if err != nil {
		r.logger.Error("Failed to store print cost errors", zap.String("product_id", id), zap.Error(err))
		return err
	}
	return rowsAffected(res)
}
