package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"crat/backend/internal/apperr"
	"crat/backend/internal/database"
)

// WhitelistService registers investors and answers whitelist lookups.
// Addresses are checksum-normalized before hitting the store so case
// variants of the same address collide on the uniqueness constraint.
type WhitelistService struct {
	store  WhitelistStore
	logger *zap.Logger
}

// NewWhitelistService creates a whitelist service
func NewWhitelistService(store WhitelistStore, logger *zap.Logger) *WhitelistService {
	return &WhitelistService{
		store:  store,
		logger: logger,
	}
}

// Register validates and persists an address/email pair.
func (s *WhitelistService) Register(ctx context.Context, address, email string) error {
	if !validEmail(email) {
		return apperr.Validation(apperr.CodeInvalidEmail)
	}

	checksum, err := normalizeAddress(address)
	if err != nil {
		return apperr.Validation(apperr.CodeInvalidAddress)
	}

	if err := s.store.CreateInvestor(ctx, checksum, email); err != nil {
		if errors.Is(err, database.ErrInvestorExists) {
			return apperr.New(apperr.KindConflict, apperr.CodeAlreadyRegistered)
		}
		return apperr.Dependency(err)
	}

	s.logger.Info("Investor registered", zap.String("address", checksum))
	return nil
}

// IsWhitelisted reports whether the address has been registered.
func (s *WhitelistService) IsWhitelisted(ctx context.Context, address string) (bool, error) {
	checksum, err := normalizeAddress(address)
	if err != nil {
		return false, apperr.Validation(apperr.CodeInvalidAddress)
	}

	registered, err := s.store.IsInvestorRegistered(ctx, checksum)
	if err != nil {
		return false, apperr.Dependency(err)
	}
	return registered, nil
}

// normalizeAddress parses a hex address and returns its EIP-55
// checksum form.
func normalizeAddress(address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", errors.New("not a hex address")
	}
	return common.HexToAddress(address).Hex(), nil
}

// validEmail accepts a bare RFC 5322 address without display name.
func validEmail(email string) bool {
	parsed, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	return parsed.Address == strings.TrimSpace(email)
}
