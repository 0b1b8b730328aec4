package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"crat/backend/internal/models"
)

// ErrRateNotFound is returned when no rate has been fetched yet for a
// symbol. Callers must treat this as a distinct condition, never as a
// zero rate.
var ErrRateNotFound = errors.New("rate not found")

// ErrInvestorExists is returned when the address is already whitelisted.
var ErrInvestorExists = errors.New("investor already registered")

// uniqueViolation is the PostgreSQL error code for unique constraint violations
const uniqueViolation = "23505"

// ==================== Rate Queries ====================

// UpsertRate inserts or updates the USD rate for a symbol, refreshing
// the update timestamp.
func (db *DB) UpsertRate(ctx context.Context, symbol string, value decimal.Decimal) error {
	query := `
		INSERT INTO usd_rates (symbol, value, last_update_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (symbol) DO UPDATE
		SET value = EXCLUDED.value, last_update_at = NOW()
	`
	_, err := db.ExecContext(ctx, query, symbol, value)
	return err
}

// GetRate retrieves the latest USD rate for a symbol. Returns
// ErrRateNotFound when the symbol has never been fetched.
func (db *DB) GetRate(ctx context.Context, symbol string) (*models.UsdRate, error) {
	var rate models.UsdRate
	query := `SELECT symbol, value, last_update_at FROM usd_rates WHERE symbol = $1`
	err := db.GetContext(ctx, &rate, query, symbol)
	if err == sql.ErrNoRows {
		return nil, ErrRateNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rate, nil
}

// ==================== Investor Queries ====================

// CreateInvestor registers an address/email pair. The address must be
// checksum-normalized by the caller so case variants collide on the
// unique constraint. Returns ErrInvestorExists on duplicates.
func (db *DB) CreateInvestor(ctx context.Context, address, email string) error {
	query := `INSERT INTO investors (address, email) VALUES ($1, $2)`
	_, err := db.ExecContext(ctx, query, address, email)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrInvestorExists
		}
		return err
	}
	return nil
}

// IsInvestorRegistered reports whether the address is whitelisted.
func (db *DB) IsInvestorRegistered(ctx context.Context, address string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM investors WHERE address = $1)`
	err := db.GetContext(ctx, &exists, query, address)
	return exists, err
}
