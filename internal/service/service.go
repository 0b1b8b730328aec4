package service

import (
	"context"
	"math/big"

	"github.com/shopspring/decimal"

	"crat/backend/internal/models"
)

// ChainReader is the read-only view of the on-chain crowdsale contract.
// Implemented by blockchain/evm.Client; constructed once at process
// start and injected into the services.
type ChainReader interface {
	DetermineStage(ctx context.Context) (*big.Int, error)
	StartTime(ctx context.Context) (*big.Int, error)
	StageBoundary(ctx context.Context, i int) (*big.Int, error)
	TokensSold(ctx context.Context, i int) (*big.Int, error)
	StageLimit(ctx context.Context, i int) (*big.Int, error)
}

// RateStore is the read side of the persisted USD rates. Implemented
// by database.DB; a missing symbol surfaces database.ErrRateNotFound.
type RateStore interface {
	GetRate(ctx context.Context, symbol string) (*models.UsdRate, error)
}

// RateWriter is the write side of the rate store, used by the updater.
type RateWriter interface {
	UpsertRate(ctx context.Context, symbol string, value decimal.Decimal) error
}

// WhitelistStore persists investor registrations.
type WhitelistStore interface {
	CreateInvestor(ctx context.Context, address, email string) error
	IsInvestorRegistered(ctx context.Context, address string) (bool, error)
}
