package api

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"crat/backend/internal/apperr"
	"crat/backend/internal/models"
	"crat/backend/internal/service"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	stages    *service.StageService
	tokens    *service.TokenService
	whitelist *service.WhitelistService
	quotes    *service.QuoteService
	logger    *zap.Logger
}

// NewHandler creates a new API handler
func NewHandler(
	stages *service.StageService,
	tokens *service.TokenService,
	whitelist *service.WhitelistService,
	quotes *service.QuoteService,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		stages:    stages,
		tokens:    tokens,
		whitelist: whitelist,
		quotes:    quotes,
		logger:    logger,
	}
}

// ==================== Health Check ====================

// HandleHealth returns service health status
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: "1.0.0",
	})
}

// ==================== Stage ====================

// HandleGetStage handles GET /stage
func (h *Handler) HandleGetStage(w http.ResponseWriter, r *http.Request) {
	info, err := h.stages.CurrentStage(r.Context())
	if err != nil {
		h.respondServiceError(w, "Failed to get current stage", err)
		return
	}

	response := CurrentStageResponse{Status: string(info.Status)}
	if info.Status == models.CrowdsaleActive {
		price, _ := info.PriceUSD.Float64()
		number := info.StageNumber
		daysLeft := info.DaysLeft
		sold := info.TokensSold.String()
		limit := info.TokensLimit.String()

		response.CurrentStagePriceUSD = &price
		response.CurrentStageNumber = &number
		response.CurrentStageDaysLeft = &daysLeft
		response.CurrentStageTokensSold = &sold
		response.CurrentStageTokensLimit = &limit

		if info.NextPrice != nil {
			next, _ := info.NextPrice.Float64()
			response.NextStagePriceUSD = &next
		}
	}

	respondJSON(w, http.StatusOK, response)
}

// HandleListStages handles GET /stages
func (h *Handler) HandleListStages(w http.ResponseWriter, r *http.Request) {
	infos, err := h.stages.ListStages(r.Context())
	if err != nil {
		h.respondServiceError(w, "Failed to list stages", err)
		return
	}

	response := make([]StageResponse, 0, len(infos))
	for _, info := range infos {
		price, _ := info.PriceUSD.Float64()
		response = append(response, StageResponse{
			Status:      string(info.Status),
			Name:        info.Name,
			PriceUSD:    price,
			TokensLimit: info.TokensLimit.String(),
		})
	}

	respondJSON(w, http.StatusOK, response)
}

// ==================== Tokens ====================

// HandleGetTokens handles GET /tokens
func (h *Handler) HandleGetTokens(w http.ResponseWriter, r *http.Request) {
	infos, err := h.tokens.ListTokens(r.Context())
	if err != nil {
		h.respondServiceError(w, "Failed to list tokens", err)
		return
	}

	response := make([]TokenResponse, 0, len(infos))
	for _, info := range infos {
		entry := TokenResponse{
			Symbol:   info.Symbol,
			Address:  info.Address.Hex(),
			Decimals: info.Decimals,
		}
		if info.PriceUSD != nil {
			price := info.PriceUSD.StringFixed(2)
			entry.Price = &price
		}
		response = append(response, entry)
	}

	respondJSON(w, http.StatusOK, response)
}

// ==================== Whitelist ====================

// HandleWhitelist handles POST /whitelist
func (h *Handler) HandleWhitelist(w http.ResponseWriter, r *http.Request) {
	var req WhitelistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondDetail(w, http.StatusBadRequest, apperr.CodeInvalidAddress)
		return
	}

	if err := h.whitelist.Register(r.Context(), req.Address, req.Email); err != nil {
		h.respondServiceError(w, "Failed to register investor", err)
		return
	}

	respondDetail(w, http.StatusOK, "OK")
}

// HandleIsWhitelisted handles GET /is_whitelisted/{address}
func (h *Handler) HandleIsWhitelisted(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	registered, err := h.whitelist.IsWhitelisted(r.Context(), address)
	if err != nil {
		h.respondServiceError(w, "Failed to check whitelist", err)
		return
	}

	respondJSON(w, http.StatusOK, registered)
}

// ==================== Signature ====================

// HandleSignature handles POST /signature
func (h *Handler) HandleSignature(w http.ResponseWriter, r *http.Request) {
	var req SignatureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondDetail(w, http.StatusBadRequest, apperr.CodeInvalidAmount)
		return
	}

	amountToPay, ok := new(big.Int).SetString(req.AmountToPay, 10)
	if !ok || amountToPay.Sign() < 0 {
		respondDetail(w, http.StatusBadRequest, apperr.CodeInvalidAmount)
		return
	}

	quote, err := h.quotes.IssueQuote(r.Context(), req.TokenAddress, amountToPay)
	if err != nil {
		h.respondServiceError(w, "Failed to issue quote", err)
		return
	}

	respondJSON(w, http.StatusOK, SignatureResponse{
		TokenAddress:                 quote.TokenAddress.Hex(),
		AmountToPay:                  quote.AmountToPay.String(),
		AmountToReceive:              quote.AmountToReceive.String(),
		SignatureExpirationTimestamp: quote.ExpiresAt,
		Signature:                    hexutil.Encode(quote.Signature),
	})
}

// ==================== Helper Functions ====================

// respondServiceError maps the error taxonomy to HTTP statuses:
// validation/not-found/state/conflict are the caller's 400s,
// dependency failures are 502, anything unclassified is 500.
func (h *Handler) respondServiceError(w http.ResponseWriter, message string, err error) {
	kind, ok := apperr.KindOf(err)
	if !ok {
		h.logger.Error(message, zap.Error(err))
		respondDetail(w, http.StatusInternalServerError, "INTERNAL_ERROR")
		return
	}

	code := apperr.CodeOf(err)
	switch kind {
	case apperr.KindDependency:
		h.logger.Error(message, zap.Error(err))
		respondDetail(w, http.StatusBadGateway, code)
	default:
		h.logger.Debug(message, zap.String("detail", code))
		respondDetail(w, http.StatusBadRequest, code)
	}
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Log error but can't send response since headers already written
		fmt.Printf("Failed to encode JSON response: %v\n", err)
	}
}

// respondDetail sends a {detail: CODE} response
func respondDetail(w http.ResponseWriter, statusCode int, code string) {
	respondJSON(w, statusCode, DetailResponse{Detail: code})
}
