package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/tournevent/printbridge/pkg/printer"
	"github.com/tournevent/printbridge/pkg/printer/lulu"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// TokenRepository stores printer tokens and serializes renewals across
// processes with a session-level advisory lock per mode.
type TokenRepository struct {
	db     *sql.DB
	logger *otelzap.Logger
}

// NewTokenRepository creates a new token repository
func NewTokenRepository(db *sql.DB, logger *otelzap.Logger) *TokenRepository {
	return &TokenRepository{db: db, logger: logger}
}

// GetToken returns the stored pair, or nil when none is stored.
func (r *TokenRepository) GetToken(ctx context.Context, mode printer.Mode) (*printer.TokenPair, error) {
	query := `
		SELECT access_token, access_expiry, refresh_token, refresh_expiry
		FROM printer_tokens
		WHERE mode = $1
	`

	var pair printer.TokenPair
	err := r.db.QueryRowContext(ctx, query, mode).Scan(
		&pair.AccessToken,
		&pair.AccessExpiry,
		&pair.RefreshToken,
		&pair.RefreshExpiry,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to read printer token", zap.String("mode", string(mode)), zap.Error(err))
		return nil, err
	}
	return &pair, nil
}

// SaveToken replaces the stored pair.
func (r *TokenRepository) SaveToken(ctx context.Context, mode printer.Mode, pair *printer.TokenPair) error {
	query := `
		INSERT INTO printer_tokens (mode, access_token, access_expiry, refresh_token, refresh_expiry, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (mode) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			access_expiry = EXCLUDED.access_expiry,
			refresh_token = EXCLUDED.refresh_token,
			refresh_expiry = EXCLUDED.refresh_expiry,
			updated_at = now()
	`

	_, err := r.db.ExecContext(ctx, query, mode, pair.AccessToken, pair.AccessExpiry, pair.RefreshToken, pair.RefreshExpiry)
	if err != nil {
		r.logger.Error("Failed to save printer token", zap.String("mode", string(mode)), zap.Error(err))
		return err
	}
	return nil
}

// DeleteToken removes the stored pair.
func (r *TokenRepository) DeleteToken(ctx context.Context, mode printer.Mode) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM printer_tokens WHERE mode = $1`, mode)
	if err != nil {
		r.logger.Error("Failed to delete printer token", zap.String("mode", string(mode)), zap.Error(err))
		return err
	}
	return nil
}

// LockToken takes the advisory lock of mode on a dedicated connection.
// The returned function releases the lock and the connection.
func (r *TokenRepository) LockToken(ctx context.Context, mode printer.Mode) (func(), error) {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return nil, err
	}

	key := "printer_token:" + string(mode)
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock(hashtext($1))`, key); err != nil {
		conn.Close()
		return nil, err
	}

	return func() {
		if _, err := conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock(hashtext($1))`, key); err != nil {
			r.logger.Warn("Failed to release printer token lock", zap.String("mode", string(mode)), zap.Error(err))
		}
		conn.Close()
	}, nil
}

var (
	_ lulu.TokenStore  = (*TokenRepository)(nil)
	_ lulu.TokenLocker = (*TokenRepository)(nil)
)
