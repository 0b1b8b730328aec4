package models

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// CrowdsaleStatus represents the overall state of the crowdsale
type CrowdsaleStatus string

const (
	CrowdsaleNotStarted CrowdsaleStatus = "NOT_STARTED"
	CrowdsaleActive     CrowdsaleStatus = "ACTIVE"
	CrowdsaleEnded      CrowdsaleStatus = "ENDED"
)

// StageStatus represents the state of a single stage in the listing
type StageStatus string

const (
	StageClosed StageStatus = "CLOSED"
	StageActive StageStatus = "ACTIVE"
	StageSoon   StageStatus = "SOON"
)

// Token is a payment token accepted by the crowdsale.
// Loaded from static configuration at startup, never mutated.
type Token struct {
	Address    common.Address // checksum address, unique lookup key
	Symbol     string         // on-chain symbol
	FeedSymbol string         // symbol used against the price feed
	Decimals   uint8
}

// Stage is one pricing stage of the crowdsale. The ordered slice of
// stages mirrors the on-chain stage array; which stage is active is
// determined from chain state at request time.
type Stage struct {
	Index int
	Name  string
	Price decimal.Decimal // USD per sale token, > 0
}

// UsdRate is the latest known USD conversion rate for a feed symbol.
// Written only by the rate updater.
type UsdRate struct {
	Symbol       string          `db:"symbol"`
	Value        decimal.Decimal `db:"value"`
	LastUpdateAt time.Time       `db:"last_update_at"`
}

// Quote is a signed purchase authorization. Ephemeral: computed per
// request and never persisted; the consuming contract enforces the
// expiration and signature.
type Quote struct {
	TokenAddress    common.Address
	AmountToPay     *big.Int // smallest units of the payment token
	AmountToReceive *big.Int // smallest units of the sale token
	ExpiresAt       int64    // unix seconds
	Signature       []byte   // 65 bytes: r, s, v (v in {27, 28})
}

// CurrentStageInfo is the derived view behind GET /stage.
type CurrentStageInfo struct {
	Status      CrowdsaleStatus
	StageNumber int             // 1-based
	PriceUSD    decimal.Decimal // current stage price
	DaysLeft    int64           // whole days until the stage end boundary
	TokensSold  *big.Int        // rescaled for display
	TokensLimit *big.Int        // rescaled for display
	NextPrice   *decimal.Decimal // nil when the last stage is active
}

// StageInfo is one entry of the GET /stages listing.
type StageInfo struct {
	Status      StageStatus
	Name        string
	PriceUSD    decimal.Decimal
	TokensLimit *big.Int
}

// TokenInfo is one entry of the GET /tokens listing. PriceUSD is the
// inverse of the stored rate; nil when no rate has been fetched yet.
type TokenInfo struct {
	Symbol   string
	Address  common.Address
	Decimals uint8
	PriceUSD *decimal.Decimal
}
