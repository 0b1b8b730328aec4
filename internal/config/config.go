package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"crat/backend/internal/models"
)

// Config holds all configuration for the service
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Chain     ChainConfig     `mapstructure:"chain"`
	PriceFeed PriceFeedConfig `mapstructure:"price_feed"`
	Crowdsale CrowdsaleConfig `mapstructure:"crowdsale"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ChainConfig holds the EVM node and crowdsale contract configuration
type ChainConfig struct {
	RPCEndpoint     string `mapstructure:"rpc_endpoint"`
	ContractAddress string `mapstructure:"contract_address"`
	CallTimeoutSec  int    `mapstructure:"call_timeout_sec"`
}

// PriceFeedConfig holds the external USD price feed configuration
type PriceFeedConfig struct {
	BaseURL    string `mapstructure:"base_url"` // e.g. https://min-api.cryptocompare.com
	TimeoutSec int    `mapstructure:"timeout_sec"`
}

// TokenConfig is one accepted payment token
type TokenConfig struct {
	Address    string `mapstructure:"address"`
	Symbol     string `mapstructure:"symbol"`
	FeedSymbol string `mapstructure:"feed_symbol"` // defaults to Symbol
	Decimals   uint8  `mapstructure:"decimals"`
}

// StageConfig is one crowdsale pricing stage
type StageConfig struct {
	Name     string  `mapstructure:"name"`
	PriceUSD float64 `mapstructure:"price_usd"`
}

// CrowdsaleConfig holds sale parameters and the signing key
type CrowdsaleConfig struct {
	PrivateKey           string        `mapstructure:"private_key"` // hex, 0x prefix optional
	MasterDecimals       uint8         `mapstructure:"master_decimals"`
	SignatureExpiryMin   int           `mapstructure:"signature_expiration_minutes"`
	RatesUpdateMin       int           `mapstructure:"rates_update_minutes"`
	LimitDisplayFactor   int64         `mapstructure:"limit_display_factor"` // multiplier applied to on-chain limits for display
	Tokens               []TokenConfig `mapstructure:"tokens"`
	Stages               []StageConfig `mapstructure:"stages"`
}

// Load reads config.yaml from the working directory (or CRAT_CONFIG_PATH)
// with CRAT_* environment variable overrides.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if path := os.Getenv("CRAT_CONFIG_PATH"); path != "" {
		v.AddConfigPath(path)
	}

	v.SetEnvPrefix("CRAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine when everything comes from the environment.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "crat_backend")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("chain.call_timeout_sec", 10)
	v.SetDefault("price_feed.base_url", "https://min-api.cryptocompare.com")
	v.SetDefault("price_feed.timeout_sec", 15)
	v.SetDefault("crowdsale.master_decimals", 18)
	v.SetDefault("crowdsale.signature_expiration_minutes", 30)
	v.SetDefault("crowdsale.rates_update_minutes", 10)
	v.SetDefault("crowdsale.limit_display_factor", 100000)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Chain.RPCEndpoint == "" {
		return fmt.Errorf("chain RPC endpoint is required")
	}
	if !common.IsHexAddress(c.Chain.ContractAddress) {
		return fmt.Errorf("invalid crowdsale contract address: %q", c.Chain.ContractAddress)
	}
	if c.Crowdsale.PrivateKey == "" {
		return fmt.Errorf("signer private key is required")
	}
	if c.Crowdsale.SignatureExpiryMin <= 0 {
		return fmt.Errorf("signature expiration must be positive")
	}
	if c.Crowdsale.RatesUpdateMin <= 0 {
		return fmt.Errorf("rates update interval must be positive")
	}
	if len(c.Crowdsale.Tokens) == 0 {
		return fmt.Errorf("at least one payment token must be configured")
	}
	for _, t := range c.Crowdsale.Tokens {
		if !common.IsHexAddress(t.Address) {
			return fmt.Errorf("invalid token address: %q", t.Address)
		}
		if t.Symbol == "" {
			return fmt.Errorf("token %s has no symbol", t.Address)
		}
	}
	if len(c.Crowdsale.Stages) == 0 {
		return fmt.Errorf("at least one stage must be configured")
	}
	for i, s := range c.Crowdsale.Stages {
		if s.PriceUSD <= 0 {
			return fmt.Errorf("stage %d has non-positive price", i)
		}
	}
	return nil
}

// TokenList returns the configured payment tokens with parsed addresses.
func (c *Config) TokenList() []models.Token {
	tokens := make([]models.Token, 0, len(c.Crowdsale.Tokens))
	for _, t := range c.Crowdsale.Tokens {
		feedSymbol := t.FeedSymbol
		if feedSymbol == "" {
			feedSymbol = t.Symbol
		}
		tokens = append(tokens, models.Token{
			Address:    common.HexToAddress(t.Address),
			Symbol:     t.Symbol,
			FeedSymbol: feedSymbol,
			Decimals:   t.Decimals,
		})
	}
	return tokens
}

// StageList returns the configured stages in on-chain order.
func (c *Config) StageList() []models.Stage {
	stages := make([]models.Stage, 0, len(c.Crowdsale.Stages))
	for i, s := range c.Crowdsale.Stages {
		stages = append(stages, models.Stage{
			Index: i,
			Name:  s.Name,
			Price: decimal.NewFromFloat(s.PriceUSD),
		})
	}
	return stages
}
