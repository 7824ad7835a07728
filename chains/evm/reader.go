// Package evm performs the read-only contract calls needed to snapshot a
// concentrated-liquidity position: pool slot0/token0/token1, the position by
// NFT id on the position manager, and ERC-20 metadata for both tokens.
package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/lp-tracker-go/position"
)

var (
	// ErrTokenMismatch means the position's token addresses do not match the
	// configured pool's pair. Proceeding would value the wrong assets.
	ErrTokenMismatch = errors.New("position tokens do not match pool tokens")

	ErrEmptyCallResult = errors.New("contract call returned no data")
)

// DefaultCallTimeout bounds each individual eth_call.
const DefaultCallTimeout = 15 * time.Second

const erc20ABIJSON = `[
	{"inputs":[],"name":"decimals","outputs":[{"type":"uint8"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"symbol","outputs":[{"type":"string"}],"stateMutability":"view","type":"function"}
]`

const poolABIJSON = `[
	{"inputs":[],"name":"slot0","outputs":[
		{"name":"sqrtPriceX96","type":"uint160"},
		{"name":"tick","type":"int24"},
		{"name":"observationIndex","type":"uint16"},
		{"name":"observationCardinality","type":"uint16"},
		{"name":"observationCardinalityNext","type":"uint16"},
		{"name":"feeProtocol","type":"uint8"},
		{"name":"unlocked","type":"bool"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"token0","outputs":[{"type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"token1","outputs":[{"type":"address"}],"stateMutability":"view","type":"function"}
]`

const positionManagerABIJSON = `[
	{"inputs":[{"name":"tokenId","type":"uint256"}],"name":"positions","outputs":[
		{"name":"nonce","type":"uint96"},
		{"name":"operator","type":"address"},
		{"name":"token0","type":"address"},
		{"name":"token1","type":"address"},
		{"name":"fee","type":"uint24"},
		{"name":"tickLower","type":"int24"},
		{"name":"tickUpper","type":"int24"},
		{"name":"liquidity","type":"uint128"},
		{"name":"feeGrowthInside0LastX128","type":"uint256"},
		{"name":"feeGrowthInside1LastX128","type":"uint256"},
		{"name":"tokensOwed0","type":"uint128"},
		{"name":"tokensOwed1","type":"uint128"}],"stateMutability":"view","type":"function"}
]`

var (
	erc20ABI           = mustABI(erc20ABIJSON)
	poolABI            = mustABI(poolABIJSON)
	positionManagerABI = mustABI(positionManagerABIJSON)
)

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ContractCaller is the slice of the RPC client the reader needs; satisfied
// by *ethclient.Client and by fakes in tests.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Config holds the reader's target contracts.
type Config struct {
	Pool            common.Address
	PositionManager common.Address

	// CallTimeout bounds each contract call; DefaultCallTimeout when zero.
	CallTimeout time.Duration
}

func (c *Config) validate() error {
	if c.Pool == (common.Address{}) {
		return errors.New("config: Pool address is required")
	}
	if c.PositionManager == (common.Address{}) {
		return errors.New("config: PositionManager address is required")
	}
	return nil
}

// Reader snapshots one position. It holds no connection state of its own; the
// caller owns the RPC client's lifecycle.
type Reader struct {
	caller  ContractCaller
	cfg     Config
	timeout time.Duration
}

// NewReader creates a reader over an existing RPC connection.
func NewReader(caller ContractCaller, cfg Config) (*Reader, error) {
	if caller == nil {
		return nil, errors.New("config: ContractCaller is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Reader{caller: caller, cfg: cfg, timeout: timeout}, nil
}

// Snapshot reads the position identified by tokenID and the pool's current
// price, validates that the position belongs to the configured pool, and
// returns the assembled immutable snapshot.
func (r *Reader) Snapshot(ctx context.Context, tokenID *big.Int) (*position.Snapshot, error) {
	pos, err := r.readPosition(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	sqrtPriceX96, err := r.readSlot0(ctx)
	if err != nil {
		return nil, err
	}

	poolToken0, err := r.readPoolToken(ctx, "token0")
	if err != nil {
		return nil, err
	}
	poolToken1, err := r.readPoolToken(ctx, "token1")
	if err != nil {
		return nil, err
	}

	// Address comparison is case-insensitive by construction: common.Address
	// is the canonical 20-byte value.
	if pos.token0 != poolToken0 || pos.token1 != poolToken1 {
		return nil, fmt.Errorf("%w: position (%s, %s) vs pool (%s, %s)",
			ErrTokenMismatch, pos.token0.Hex(), pos.token1.Hex(), poolToken0.Hex(), poolToken1.Hex())
	}

	meta0, err := r.readTokenMeta(ctx, poolToken0)
	if err != nil {
		return nil, err
	}
	meta1, err := r.readTokenMeta(ctx, poolToken1)
	if err != nil {
		return nil, err
	}

	return position.NewSnapshot(
		pos.tickLower, pos.tickUpper,
		pos.liquidity, pos.tokensOwed0, pos.tokensOwed1,
		sqrtPriceX96,
		meta0, meta1,
	)
}

type rawPosition struct {
	token0, token1           common.Address
	tickLower, tickUpper     int64
	liquidity                *big.Int
	tokensOwed0, tokensOwed1 *big.Int
}

func (r *Reader) readPosition(ctx context.Context, tokenID *big.Int) (*rawPosition, error) {
	out, err := r.call(ctx, r.cfg.PositionManager, positionManagerABI, "positions", tokenID)
	if err != nil {
		return nil, fmt.Errorf("read position %s: %w", tokenID, err)
	}
	if len(out) != 12 {
		return nil, fmt.Errorf("read position %s: unexpected output arity %d", tokenID, len(out))
	}

	return &rawPosition{
		token0:      out[2].(common.Address),
		token1:      out[3].(common.Address),
		tickLower:   out[5].(*big.Int).Int64(),
		tickUpper:   out[6].(*big.Int).Int64(),
		liquidity:   out[7].(*big.Int),
		tokensOwed0: out[10].(*big.Int),
		tokensOwed1: out[11].(*big.Int),
	}, nil
}

func (r *Reader) readSlot0(ctx context.Context) (*big.Int, error) {
	out, err := r.call(ctx, r.cfg.Pool, poolABI, "slot0")
	if err != nil {
		return nil, fmt.Errorf("read slot0: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("read slot0: %w", ErrEmptyCallResult)
	}
	return out[0].(*big.Int), nil
}

func (r *Reader) readPoolToken(ctx context.Context, method string) (common.Address, error) {
	out, err := r.call(ctx, r.cfg.Pool, poolABI, method)
	if err != nil {
		return common.Address{}, fmt.Errorf("read pool %s: %w", method, err)
	}
	if len(out) == 0 {
		return common.Address{}, fmt.Errorf("read pool %s: %w", method, ErrEmptyCallResult)
	}
	return out[0].(common.Address), nil
}

func (r *Reader) readTokenMeta(ctx context.Context, token common.Address) (position.TokenMeta, error) {
	decOut, err := r.call(ctx, token, erc20ABI, "decimals")
	if err != nil {
		return position.TokenMeta{}, fmt.Errorf("read decimals of %s: %w", token.Hex(), err)
	}
	symOut, err := r.call(ctx, token, erc20ABI, "symbol")
	if err != nil {
		return position.TokenMeta{}, fmt.Errorf("read symbol of %s: %w", token.Hex(), err)
	}
	if len(decOut) == 0 || len(symOut) == 0 {
		return position.TokenMeta{}, fmt.Errorf("read metadata of %s: %w", token.Hex(), ErrEmptyCallResult)
	}

	return position.TokenMeta{
		Address:  token,
		Decimals: decOut[0].(uint8),
		Symbol:   symOut[0].(string),
	}, nil
}

// call packs one view method, executes it under the per-call timeout, and
// unpacks the outputs.
func (r *Reader) call(ctx context.Context, to common.Address, contract abi.ABI, method string, args ...any) ([]any, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.caller.CallContract(callCtx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("call %s: %w", method, ErrEmptyCallResult)
	}

	out, err := contract.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return out, nil
}
