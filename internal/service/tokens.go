package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"crat/backend/internal/apperr"
	"crat/backend/internal/config"
	"crat/backend/internal/database"
	"crat/backend/internal/models"
)

// TokenService lists the accepted payment tokens with their current
// USD prices derived from the rate store.
type TokenService struct {
	rates  RateStore
	tokens []models.Token
	logger *zap.Logger
}

// NewTokenService creates a token service
func NewTokenService(rates RateStore, cfg *config.Config, logger *zap.Logger) *TokenService {
	return &TokenService{
		rates:  rates,
		tokens: cfg.TokenList(),
		logger: logger,
	}
}

// ListTokens returns every configured token. The price is the inverse
// of the stored rate (USD per 1 token); tokens without a fetched rate
// get a nil price rather than failing the listing.
func (s *TokenService) ListTokens(ctx context.Context) ([]models.TokenInfo, error) {
	one := decimal.NewFromInt(1)

	infos := make([]models.TokenInfo, 0, len(s.tokens))
	for _, token := range s.tokens {
		info := models.TokenInfo{
			Symbol:   token.Symbol,
			Address:  token.Address,
			Decimals: token.Decimals,
		}

		rate, err := s.rates.GetRate(ctx, token.FeedSymbol)
		switch {
		case errors.Is(err, database.ErrRateNotFound):
			s.logger.Debug("No rate yet for token", zap.String("symbol", token.FeedSymbol))
		case err != nil:
			return nil, apperr.Dependency(err)
		case rate.Value.Sign() > 0:
			price := one.Div(rate.Value)
			info.PriceUSD = &price
		}

		infos = append(infos, info)
	}

	return infos, nil
}
