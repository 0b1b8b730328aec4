package service

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"crat/backend/internal/apperr"
	"crat/backend/internal/config"
	"crat/backend/internal/database"
	"crat/backend/internal/models"
)

// QuoteService issues signed purchase quotes. It is a pure function of
// current chain and rate state: no side effects, no retries, and with
// deterministic-k signing identical inputs yield identical signatures.
type QuoteService struct {
	chain          ChainReader
	rates          RateStore
	privateKey     *ecdsa.PrivateKey
	signerAddress  common.Address
	tokens         map[common.Address]models.Token
	stages         []models.Stage
	masterDecimals uint8
	expiry         time.Duration
	now            func() time.Time
	logger         *zap.Logger
}

// NewQuoteService creates a quote service from the static sale
// configuration and a parsed signing key.
func NewQuoteService(chain ChainReader, rates RateStore, cfg *config.Config, logger *zap.Logger) (*QuoteService, error) {
	keyHex := strings.TrimPrefix(cfg.Crowdsale.PrivateKey, "0x")
	privateKey, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signer private key: %w", err)
	}

	publicKey, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("failed to cast public key to ECDSA")
	}
	signerAddress := crypto.PubkeyToAddress(*publicKey)

	tokens := make(map[common.Address]models.Token)
	for _, t := range cfg.TokenList() {
		tokens[t.Address] = t
	}

	logger.Info("Quote service initialized",
		zap.String("signer_address", signerAddress.Hex()),
		zap.Int("num_tokens", len(tokens)),
		zap.Int("num_stages", len(cfg.Crowdsale.Stages)))

	return &QuoteService{
		chain:          chain,
		rates:          rates,
		privateKey:     privateKey,
		signerAddress:  signerAddress,
		tokens:         tokens,
		stages:         cfg.StageList(),
		masterDecimals: cfg.Crowdsale.MasterDecimals,
		expiry:         time.Duration(cfg.Crowdsale.SignatureExpiryMin) * time.Minute,
		now:            time.Now,
		logger:         logger,
	}, nil
}

// SignerAddress returns the address signatures recover to.
func (s *QuoteService) SignerAddress() common.Address {
	return s.signerAddress
}

// IssueQuote computes the token amount a payment buys at the current
// stage price and signs an authorization the crowdsale contract can
// verify on-chain.
func (s *QuoteService) IssueQuote(ctx context.Context, tokenAddress string, amountToPay *big.Int) (*models.Quote, error) {
	if !common.IsHexAddress(tokenAddress) {
		return nil, apperr.New(apperr.KindNotFound, apperr.CodeInvalidTokenAddress)
	}
	token, ok := s.tokens[common.HexToAddress(tokenAddress)]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, apperr.CodeInvalidTokenAddress)
	}

	// Both amounts must fit uint256 so the packed message keeps its
	// fixed 32-byte fields; LeftPadBytes does not truncate.
	if amountToPay == nil || amountToPay.Sign() < 0 || amountToPay.BitLen() > 256 {
		return nil, apperr.Validation(apperr.CodeInvalidAmount)
	}

	startTime, err := s.chain.StartTime(ctx)
	if err != nil {
		return nil, apperr.Dependency(err)
	}
	if startTime.Sign() == 0 {
		return nil, apperr.New(apperr.KindState, apperr.CodeNotStarted)
	}

	stageIndex, err := s.chain.DetermineStage(ctx)
	if err != nil {
		return nil, apperr.Dependency(err)
	}
	if !stageIndex.IsInt64() || stageIndex.Int64() >= int64(len(s.stages)) {
		return nil, apperr.New(apperr.KindState, apperr.CodeEnded)
	}
	stage := s.stages[stageIndex.Int64()]

	rate, err := s.rates.GetRate(ctx, token.FeedSymbol)
	if err != nil {
		if errors.Is(err, database.ErrRateNotFound) {
			return nil, apperr.Wrap(apperr.KindDependency, apperr.CodeRateUnavailable, err)
		}
		return nil, apperr.Dependency(err)
	}
	if rate.Value.Sign() <= 0 {
		return nil, apperr.Wrap(apperr.KindDependency, apperr.CodeRateUnavailable,
			fmt.Errorf("non-positive rate %s for %s", rate.Value, token.FeedSymbol))
	}

	amountToReceive := computeAmountToReceive(amountToPay, rate.Value, stage.Price, s.masterDecimals, token.Decimals)
	if amountToReceive.BitLen() > 256 {
		return nil, apperr.Validation(apperr.CodeInvalidAmount)
	}
	expiresAt := s.now().Add(s.expiry).Unix()

	signature, err := s.sign(token.Address, amountToPay, amountToReceive, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to sign quote: %w", err)
	}

	s.logger.Debug("Quote issued",
		zap.String("token", token.Address.Hex()),
		zap.String("amount_to_pay", amountToPay.String()),
		zap.String("amount_to_receive", amountToReceive.String()),
		zap.Int64("expires_at", expiresAt))

	return &models.Quote{
		TokenAddress:    token.Address,
		AmountToPay:     new(big.Int).Set(amountToPay),
		AmountToReceive: amountToReceive,
		ExpiresAt:       expiresAt,
		Signature:       signature,
	}, nil
}

// computeAmountToReceive converts a raw payment amount into sale token
// units at the given rate and stage price:
//
//	floor( amountToPay / rate / price * 10^(masterDecimals - tokenDecimals) )
//
// The rate is the feed's "units per 1 USD" quote, so dividing by it
// recovers the USD value of the payment. The whole expression is
// evaluated as one exact rational division so the truncation is a true
// floor, never a rounding artifact.
func computeAmountToReceive(amountToPay *big.Int, rate, price decimal.Decimal, masterDecimals, tokenDecimals uint8) *big.Int {
	pay := decimal.NewFromBigInt(amountToPay, 0)
	scale := decimal.New(1, int32(masterDecimals)-int32(tokenDecimals))

	numerator := pay.Mul(scale)
	denominator := rate.Mul(price)

	// QuoRem with precision 0 truncates toward zero, which is floor for
	// non-negative operands.
	quotient, _ := numerator.QuoRem(denominator, 0)
	return quotient.BigInt()
}

// sign builds the canonical packed message the crowdsale contract
// reconstructs with abi.encodePacked, hashes it with Keccak-256, wraps
// it in the Ethereum personal-message prefix and signs it. The
// recovery byte is shifted to 27/28 for on-chain ecrecover.
func (s *QuoteService) sign(tokenAddress common.Address, amountToPay, amountToReceive *big.Int, expiresAt int64) ([]byte, error) {
	packed := make([]byte, 0, 20+3*32)
	packed = append(packed, tokenAddress.Bytes()...)
	packed = append(packed, common.LeftPadBytes(amountToPay.Bytes(), 32)...)
	packed = append(packed, common.LeftPadBytes(amountToReceive.Bytes(), 32)...)
	packed = append(packed, common.LeftPadBytes(big.NewInt(expiresAt).Bytes(), 32)...)

	hash := crypto.Keccak256(packed)
	prefixed := accounts.TextHash(hash)

	signature, err := crypto.Sign(prefixed, s.privateKey)
	if err != nil {
		return nil, err
	}
	signature[64] += 27

	return signature, nil
}
