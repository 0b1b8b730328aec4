package api

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"crat/backend/internal/config"
	"crat/backend/internal/database"
	"crat/backend/internal/models"
	"crat/backend/internal/service"
)

const (
	testPrivateKey   = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testTokenAddress = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
)

// ==================== Fakes ====================

type fakeChain struct {
	start *big.Int
	stage *big.Int
}

func (c *fakeChain) DetermineStage(ctx context.Context) (*big.Int, error) { return c.stage, nil }
func (c *fakeChain) StartTime(ctx context.Context) (*big.Int, error)     { return c.start, nil }
func (c *fakeChain) StageBoundary(ctx context.Context, i int) (*big.Int, error) {
	return big.NewInt(time.Now().Unix() + 7*86400), nil
}
func (c *fakeChain) TokensSold(ctx context.Context, i int) (*big.Int, error) {
	return big.NewInt(0), nil
}
func (c *fakeChain) StageLimit(ctx context.Context, i int) (*big.Int, error) {
	return big.NewInt(10), nil
}

type fakeRates struct {
	rates map[string]decimal.Decimal
}

func (r *fakeRates) GetRate(ctx context.Context, symbol string) (*models.UsdRate, error) {
	value, ok := r.rates[symbol]
	if !ok {
		return nil, database.ErrRateNotFound
	}
	return &models.UsdRate{Symbol: symbol, Value: value, LastUpdateAt: time.Now()}, nil
}

type fakeWhitelist struct {
	investors map[string]string
}

func (s *fakeWhitelist) CreateInvestor(ctx context.Context, address, email string) error {
	if _, exists := s.investors[address]; exists {
		return database.ErrInvestorExists
	}
	s.investors[address] = email
	return nil
}

func (s *fakeWhitelist) IsInvestorRegistered(ctx context.Context, address string) (bool, error) {
	_, exists := s.investors[address]
	return exists, nil
}

// ==================== Helpers ====================

func testConfig() *config.Config {
	return &config.Config{
		Crowdsale: config.CrowdsaleConfig{
			PrivateKey:         testPrivateKey,
			MasterDecimals:     18,
			SignatureExpiryMin: 30,
			RatesUpdateMin:     10,
			LimitDisplayFactor: 100000,
			Tokens: []config.TokenConfig{
				{Address: testTokenAddress, Symbol: "USDC", Decimals: 6},
			},
			Stages: []config.StageConfig{
				{Name: "Seed", PriceUSD: 0.05},
				{Name: "Public", PriceUSD: 0.1},
			},
		},
	}
}

func newTestRouter(t *testing.T, chain service.ChainReader, rates service.RateStore) *mux.Router {
	t.Helper()
	logger := zap.NewNop()
	cfg := testConfig()

	quotes, err := service.NewQuoteService(chain, rates, cfg, logger)
	if err != nil {
		t.Fatalf("failed to create quote service: %v", err)
	}
	stages := service.NewStageService(chain, cfg, logger)
	tokens := service.NewTokenService(rates, cfg, logger)
	whitelist := service.NewWhitelistService(&fakeWhitelist{investors: make(map[string]string)}, logger)

	handler := NewHandler(stages, tokens, whitelist, quotes, logger)
	return SetupRouter(handler, logger)
}

func activeSetup() (*fakeChain, *fakeRates) {
	chain := &fakeChain{start: big.NewInt(1_700_000_000), stage: big.NewInt(0)}
	rates := &fakeRates{rates: map[string]decimal.Decimal{
		"USDC": decimal.RequireFromString("2.0"),
	}}
	return chain, rates
}

func doJSON(router *mux.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		encoded, _ := json.Marshal(body)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// ==================== Tests ====================

func TestHandleHealth(t *testing.T) {
	chain, rates := activeSetup()
	router := newTestRouter(t, chain, rates)

	w := doJSON(router, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != "ok" {
		t.Errorf("expected status 'ok', got '%s'", response.Status)
	}
}

func TestHandleSignature(t *testing.T) {
	chain, rates := activeSetup()
	router := newTestRouter(t, chain, rates)

	w := doJSON(router, http.MethodPost, "/signature", SignatureRequest{
		TokenAddress: testTokenAddress,
		AmountToPay:  "1000000",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var response SignatureResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.TokenAddress != testTokenAddress {
		t.Errorf("expected token address %s, got %s", testTokenAddress, response.TokenAddress)
	}
	if response.AmountToPay != "1000000" {
		t.Errorf("expected amount_to_pay 1000000, got %s", response.AmountToPay)
	}
	// 1 USDC / 2.0 = 0.5 USD buys 10 tokens at 0.05 USD in 18 decimals
	if response.AmountToReceive != "10000000000000000000" {
		t.Errorf("unexpected amount_to_receive %s", response.AmountToReceive)
	}
	if !strings.HasPrefix(response.Signature, "0x") || len(response.Signature) != 2+65*2 {
		t.Errorf("malformed signature %q", response.Signature)
	}
	if response.SignatureExpirationTimestamp <= time.Now().Unix() {
		t.Errorf("expiration %d not in the future", response.SignatureExpirationTimestamp)
	}
}

func TestHandleSignature_Errors(t *testing.T) {
	tests := []struct {
		name           string
		chain          *fakeChain
		rates          *fakeRates
		request        SignatureRequest
		expectedStatus int
		expectedDetail string
	}{
		{
			name:           "unknown token",
			request:        SignatureRequest{TokenAddress: "0x742d35Cc6634C0532925a3b844Bc454e4438f44e", AmountToPay: "1"},
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "INVALID_TOKEN_ADDRESS",
		},
		{
			name:           "malformed amount",
			request:        SignatureRequest{TokenAddress: testTokenAddress, AmountToPay: "not-a-number"},
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "INVALID_AMOUNT",
		},
		{
			name:           "negative amount",
			request:        SignatureRequest{TokenAddress: testTokenAddress, AmountToPay: "-5"},
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "INVALID_AMOUNT",
		},
		{
			name:           "crowdsale not started",
			chain:          &fakeChain{start: big.NewInt(0), stage: big.NewInt(0)},
			request:        SignatureRequest{TokenAddress: testTokenAddress, AmountToPay: "1"},
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "NOT_STARTED",
		},
		{
			name:           "rate missing",
			rates:          &fakeRates{rates: map[string]decimal.Decimal{}},
			request:        SignatureRequest{TokenAddress: testTokenAddress, AmountToPay: "1"},
			expectedStatus: http.StatusBadGateway,
			expectedDetail: "RATE_UNAVAILABLE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain, rates := activeSetup()
			if tt.chain != nil {
				chain = tt.chain
			}
			if tt.rates != nil {
				rates = tt.rates
			}
			router := newTestRouter(t, chain, rates)

			w := doJSON(router, http.MethodPost, "/signature", tt.request)
			if w.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, w.Code)
			}

			var response DetailResponse
			if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if response.Detail != tt.expectedDetail {
				t.Errorf("expected detail %s, got %s", tt.expectedDetail, response.Detail)
			}
		})
	}
}

func TestHandleWhitelist(t *testing.T) {
	tests := []struct {
		name           string
		request        WhitelistRequest
		expectedStatus int
		expectedDetail string
	}{
		{
			name:           "valid registration",
			request:        WhitelistRequest{Address: testTokenAddress, Email: "alice@example.com"},
			expectedStatus: http.StatusOK,
			expectedDetail: "OK",
		},
		{
			name:           "invalid email",
			request:        WhitelistRequest{Address: testTokenAddress, Email: "nope"},
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "INVALID_EMAIL",
		},
		{
			name:           "invalid address",
			request:        WhitelistRequest{Address: "0xzz", Email: "alice@example.com"},
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "INVALID_ADDRESS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain, rates := activeSetup()
			router := newTestRouter(t, chain, rates)

			w := doJSON(router, http.MethodPost, "/whitelist", tt.request)
			if w.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, w.Code)
			}

			var response DetailResponse
			if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if response.Detail != tt.expectedDetail {
				t.Errorf("expected detail %s, got %s", tt.expectedDetail, response.Detail)
			}
		})
	}
}

func TestHandleWhitelist_Duplicate(t *testing.T) {
	chain, rates := activeSetup()
	router := newTestRouter(t, chain, rates)

	request := WhitelistRequest{Address: testTokenAddress, Email: "alice@example.com"}

	w := doJSON(router, http.MethodPost, "/whitelist", request)
	if w.Code != http.StatusOK {
		t.Fatalf("first registration failed with status %d", w.Code)
	}

	w = doJSON(router, http.MethodPost, "/whitelist", request)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}

	var response DetailResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Detail != "ALREADY_REGISTERED" {
		t.Errorf("expected detail ALREADY_REGISTERED, got %s", response.Detail)
	}
}

func TestHandleIsWhitelisted(t *testing.T) {
	chain, rates := activeSetup()
	router := newTestRouter(t, chain, rates)

	w := doJSON(router, http.MethodGet, "/is_whitelisted/"+testTokenAddress, nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var registered bool
	if err := json.NewDecoder(w.Body).Decode(&registered); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if registered {
		t.Error("expected unregistered address")
	}

	w = doJSON(router, http.MethodGet, "/is_whitelisted/garbage", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestHandleGetTokens_MissingRateYieldsNullPrice(t *testing.T) {
	chain, _ := activeSetup()
	router := newTestRouter(t, chain, &fakeRates{rates: map[string]decimal.Decimal{}})

	w := doJSON(router, http.MethodGet, "/tokens", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response []TokenResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(response) != 1 {
		t.Fatalf("expected 1 token, got %d", len(response))
	}
	if response[0].Price != nil {
		t.Errorf("expected null price, got %s", *response[0].Price)
	}
	if response[0].Symbol != "USDC" {
		t.Errorf("expected symbol USDC, got %s", response[0].Symbol)
	}
}

func TestHandleGetTokens_PriceIsInverseRate(t *testing.T) {
	chain, rates := activeSetup()
	router := newTestRouter(t, chain, rates)

	w := doJSON(router, http.MethodGet, "/tokens", nil)
	var response []TokenResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response[0].Price == nil || *response[0].Price != "0.50" {
		t.Errorf("expected price 0.50, got %v", response[0].Price)
	}
}

func TestHandleGetStage(t *testing.T) {
	chain, rates := activeSetup()
	router := newTestRouter(t, chain, rates)

	w := doJSON(router, http.MethodGet, "/stage", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response CurrentStageResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != "ACTIVE" {
		t.Errorf("expected status ACTIVE, got %s", response.Status)
	}
	if response.CurrentStageNumber == nil || *response.CurrentStageNumber != 1 {
		t.Errorf("expected stage number 1, got %v", response.CurrentStageNumber)
	}
	if response.NextStagePriceUSD == nil || *response.NextStagePriceUSD != 0.1 {
		t.Errorf("expected next price 0.1, got %v", response.NextStagePriceUSD)
	}
}

func TestHandleGetStage_NotStarted(t *testing.T) {
	_, rates := activeSetup()
	router := newTestRouter(t, &fakeChain{start: big.NewInt(0), stage: big.NewInt(0)}, rates)

	w := doJSON(router, http.MethodGet, "/stage", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response CurrentStageResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != "NOT_STARTED" {
		t.Errorf("expected status NOT_STARTED, got %s", response.Status)
	}
	if response.CurrentStageNumber != nil {
		t.Error("expected no stage number before start")
	}
}

func TestHandleListStages(t *testing.T) {
	chain, rates := activeSetup()
	router := newTestRouter(t, chain, rates)

	w := doJSON(router, http.MethodGet, "/api/v1/stages", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response []StageResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(response) != 2 {
		t.Fatalf("expected 2 stages, got %d", len(response))
	}
	if response[0].Status != "ACTIVE" || response[1].Status != "SOON" {
		t.Errorf("unexpected stage statuses: %s, %s", response[0].Status, response[1].Status)
	}
}
