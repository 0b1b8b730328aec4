package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"crat/backend/internal/config"
)

// crowdsaleABI is the read-only surface of the crowdsale contract.
// STAGES holds the end boundary timestamp of each stage, amounts the
// tokens sold per stage, LIMITS the per-stage token caps.
const crowdsaleABI = `[
	{"constant":true,"inputs":[],"name":"determineStage","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"startTime","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"","type":"uint256"}],"name":"STAGES","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"","type":"uint256"}],"name":"amounts","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"","type":"uint256"}],"name":"LIMITS","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// Client is a read-only accessor to the on-chain crowdsale contract
type Client struct {
	ethClient   *ethclient.Client
	contract    common.Address
	abi         abi.ABI
	callTimeout time.Duration
	logger      *zap.Logger
}

// NewClient connects to the configured RPC endpoint
func NewClient(chainCfg *config.ChainConfig, logger *zap.Logger) (*Client, error) {
	ethClient, err := ethclient.Dial(chainCfg.RPCEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint %s: %w", chainCfg.RPCEndpoint, err)
	}

	parsed, err := abi.JSON(strings.NewReader(crowdsaleABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse crowdsale ABI: %w", err)
	}

	contract := common.HexToAddress(chainCfg.ContractAddress)

	logger.Info("EVM client initialized",
		zap.String("rpc_endpoint", chainCfg.RPCEndpoint),
		zap.String("contract", contract.Hex()))

	return &Client{
		ethClient:   ethClient,
		contract:    contract,
		abi:         parsed,
		callTimeout: time.Duration(chainCfg.CallTimeoutSec) * time.Second,
		logger:      logger,
	}, nil
}

// Close closes the underlying RPC connection
func (c *Client) Close() {
	c.ethClient.Close()
}

// DetermineStage returns the contract's current stage index. An index
// equal to the stage count means the crowdsale has ended.
func (c *Client) DetermineStage(ctx context.Context) (*big.Int, error) {
	return c.callUint(ctx, "determineStage")
}

// StartTime returns the crowdsale start timestamp, zero when unset.
func (c *Client) StartTime(ctx context.Context) (*big.Int, error) {
	return c.callUint(ctx, "startTime")
}

// StageBoundary returns the end boundary timestamp of stage i.
func (c *Client) StageBoundary(ctx context.Context, i int) (*big.Int, error) {
	return c.callUint(ctx, "STAGES", big.NewInt(int64(i)))
}

// TokensSold returns the raw tokens sold in stage i (smallest units).
func (c *Client) TokensSold(ctx context.Context, i int) (*big.Int, error) {
	return c.callUint(ctx, "amounts", big.NewInt(int64(i)))
}

// StageLimit returns the raw token cap of stage i.
func (c *Client) StageLimit(ctx context.Context, i int) (*big.Int, error) {
	return c.callUint(ctx, "LIMITS", big.NewInt(int64(i)))
}

// callUint performs a bounded eth_call returning a single uint256
func (c *Client) callUint(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	result, err := c.ethClient.CallContract(ctx, ethereum.CallMsg{
		To:   &c.contract,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}

	values, err := c.abi.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unexpected %s result arity: %d", method, len(values))
	}

	value, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected %s result type %T", method, values[0])
	}

	return value, nil
}
