package api

// ==================== Stage ====================

// CurrentStageResponse is the GET /stage payload. Only Status is set
// when the crowdsale has not started or has ended.
type CurrentStageResponse struct {
	Status                  string   `json:"status"`
	CurrentStagePriceUSD    *float64 `json:"current_stage_price_usd,omitempty"`
	CurrentStageNumber      *int     `json:"current_stage_number,omitempty"`
	CurrentStageDaysLeft    *int64   `json:"current_stage_days_left,omitempty"`
	CurrentStageTokensSold  *string  `json:"current_stage_tokens_sold,omitempty"`
	CurrentStageTokensLimit *string  `json:"current_stage_tokens_limit,omitempty"`
	NextStagePriceUSD       *float64 `json:"next_stage_price_usd,omitempty"`
}

// StageResponse is one entry of the GET /stages listing
type StageResponse struct {
	Status      string  `json:"status"`
	Name        string  `json:"name"`
	PriceUSD    float64 `json:"price_usd"`
	TokensLimit string  `json:"tokens_limit"`
}

// ==================== Tokens ====================

// TokenResponse is one entry of the GET /tokens listing. Price is the
// USD price of one token to 2 decimals, null when no rate is known.
type TokenResponse struct {
	Symbol   string  `json:"symbol"`
	Address  string  `json:"address"`
	Decimals uint8   `json:"decimals"`
	Price    *string `json:"price"`
}

// ==================== Whitelist ====================

// WhitelistRequest is the POST /whitelist body
type WhitelistRequest struct {
	Address string `json:"address"`
	Email   string `json:"email"`
}

// ==================== Signature ====================

// SignatureRequest is the POST /signature body. The amount is a
// decimal string in the payment token's smallest units.
type SignatureRequest struct {
	TokenAddress string `json:"token_address"`
	AmountToPay  string `json:"amount_to_pay"`
}

// SignatureResponse is a signed purchase quote. Numeric fields are
// decimal strings, the signature is 0x-prefixed hex.
type SignatureResponse struct {
	TokenAddress                 string `json:"token_address"`
	AmountToPay                  string `json:"amount_to_pay"`
	AmountToReceive              string `json:"amount_to_receive"`
	SignatureExpirationTimestamp int64  `json:"signature_expiration_timestamp"`
	Signature                    string `json:"signature"`
}

// ==================== Shared ====================

// DetailResponse carries a wire code: OK, ALREADY_REGISTERED,
// INVALID_ADDRESS and friends.
type DetailResponse struct {
	Detail string `json:"detail"`
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}
