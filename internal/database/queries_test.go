package database

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return &DB{DB: sqlx.NewDb(mockDB, "sqlmock")}, mock
}

func TestUpsertRate(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("INSERT INTO usd_rates").
		WithArgs("USDC", decimal.RequireFromString("1.0001")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := db.UpsertRate(context.Background(), "USDC", decimal.RequireFromString("1.0001"))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRate(t *testing.T) {
	db, mock := newMockDB(t)

	updatedAt := time.Now()
	rows := sqlmock.NewRows([]string{"symbol", "value", "last_update_at"}).
		AddRow("USDC", "1.0001", updatedAt)
	mock.ExpectQuery("SELECT symbol, value, last_update_at FROM usd_rates").
		WithArgs("USDC").
		WillReturnRows(rows)

	rate, err := db.GetRate(context.Background(), "USDC")
	require.NoError(t, err)
	assert.Equal(t, "USDC", rate.Symbol)
	assert.Equal(t, "1.0001", rate.Value.String())
}

func TestGetRate_NotFound(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("SELECT symbol, value, last_update_at FROM usd_rates").
		WithArgs("WBTC").
		WillReturnError(sql.ErrNoRows)

	rate, err := db.GetRate(context.Background(), "WBTC")
	assert.Nil(t, rate)
	assert.ErrorIs(t, err, ErrRateNotFound)
}

func TestCreateInvestor(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("INSERT INTO investors").
		WithArgs("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", "alice@example.com").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := db.CreateInvestor(context.Background(), "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", "alice@example.com")
	require.NoError(t, err)
}

func TestCreateInvestor_Duplicate(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("INSERT INTO investors").
		WithArgs("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", "alice@example.com").
		WillReturnError(&pq.Error{Code: uniqueViolation})

	err := db.CreateInvestor(context.Background(), "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", "alice@example.com")
	assert.ErrorIs(t, err, ErrInvestorExists)
}

func TestIsInvestorRegistered(t *testing.T) {
	db, mock := newMockDB(t)

	rows := sqlmock.NewRows([]string{"exists"}).AddRow(true)
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48").
		WillReturnRows(rows)

	registered, err := db.IsInvestorRegistered(context.Background(), "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	require.NoError(t, err)
	assert.True(t, registered)
}
