package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	DefaultSwapDeadline = 120 * time.Second
	DefaultWaitTimeout  = 3 * time.Minute
)

var (
	erc20BalanceOfSelector = crypto.Keccak256([]byte("balanceOf(address)"))[:4]
	erc20AllowanceSelector = crypto.Keccak256([]byte("allowance(address,address)"))[:4]
)

const erc20ABIJSON = `[
  {"inputs":[
    {"internalType":"address","name":"spender","type":"address"},
    {"internalType":"uint256","name":"amount","type":"uint256"}
  ],"name":"approve","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

const routerABIJSON = `[
  {"inputs":[{"components":[
    {"internalType":"address","name":"tokenIn","type":"address"},
    {"internalType":"address","name":"tokenOut","type":"address"},
    {"internalType":"uint24","name":"fee","type":"uint24"},
    {"internalType":"address","name":"recipient","type":"address"},
    {"internalType":"uint256","name":"deadline","type":"uint256"},
    {"internalType":"uint256","name":"amountIn","type":"uint256"},
    {"internalType":"uint256","name":"amountOutMinimum","type":"uint256"},
    {"internalType":"uint160","name":"sqrtPriceLimitX96","type":"uint160"}
  ],"internalType":"struct ISwapRouter.ExactInputSingleParams","name":"params","type":"tuple"}],
  "name":"exactInputSingle","outputs":[{"internalType":"uint256","name":"amountOut","type":"uint256"}],"stateMutability":"payable","type":"function"}
]`

// exactInputSingleParams mirrors ISwapRouter.ExactInputSingleParams for ABI
// packing. Field order matters.
type exactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	Deadline          *big.Int
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

// SwapParams describes one single-hop exact-input swap. AmountOutMin is the
// configured minimum-output policy value (zero means no floor) and
// sqrtPriceLimitX96 is always zero: no price-limit constraint.
type SwapParams struct {
	TokenIn      common.Address
	TokenOut     common.Address
	Fee          uint32
	Recipient    common.Address
	AmountIn     *big.Int
	AmountOutMin *big.Int
}

// Backend is the node access the client needs: contract calls and transaction
// submission plus receipt lookup for the confirmation wait. *ethclient.Client
// satisfies it; tests supply fakes.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Config carries the fixed chain-side settings.
type Config struct {
	Router       common.Address
	SwapDeadline time.Duration // swap validity window, deadline = now + SwapDeadline
	WaitTimeout  time.Duration // cap on the mining wait per transaction; 0 waits forever
}

// Client submits reads and writes against the ledger: ERC-20 balance and
// allowance reads, approve transactions and router swaps, each write waiting
// for its receipt.
type Client struct {
	backend   Backend
	chainID   *big.Int
	cfg       Config
	erc20ABI  abi.ABI
	routerABI abi.ABI
	now       func() time.Time
}

// NewClient builds a client over the given backend. chainID is required for
// transaction signing.
func NewClient(backend Backend, chainID *big.Int, cfg Config) (*Client, error) {
	if backend == nil {
		return nil, fmt.Errorf("chain: nil backend")
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, fmt.Errorf("chain: chain id required")
	}
	if (cfg.Router == common.Address{}) {
		return nil, fmt.Errorf("chain: router address required")
	}
	if cfg.SwapDeadline <= 0 {
		cfg.SwapDeadline = DefaultSwapDeadline
	}
	if cfg.WaitTimeout < 0 {
		cfg.WaitTimeout = 0
	}

	erc20ABI, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("erc20 abi parse: %w", err)
	}
	routerABI, err := abi.JSON(strings.NewReader(routerABIJSON))
	if err != nil {
		return nil, fmt.Errorf("router abi parse: %w", err)
	}

	return &Client{
		backend:   backend,
		chainID:   new(big.Int).Set(chainID),
		cfg:       cfg,
		erc20ABI:  erc20ABI,
		routerABI: routerABI,
		now:       time.Now,
	}, nil
}

// Router reports the configured router contract address.
func (c *Client) Router() common.Address { return c.cfg.Router }

// TokenBalance reads balanceOf(owner) on the given ERC-20 token.
func (c *Client) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	data := make([]byte, 0, 4+32)
	data = append(data, erc20BalanceOfSelector...)
	data = append(data, common.LeftPadBytes(owner.Bytes(), 32)...)

	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("balanceOf(%s) on %s: %w", owner.Hex(), token.Hex(), err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("balanceOf on %s returned empty result", token.Hex())
	}
	return new(big.Int).SetBytes(out), nil
}

// TokenAllowance reads allowance(owner, spender) on the given ERC-20 token.
func (c *Client) TokenAllowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	data := make([]byte, 0, 4+32+32)
	data = append(data, erc20AllowanceSelector...)
	data = append(data, common.LeftPadBytes(owner.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(spender.Bytes(), 32)...)

	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("allowance(%s,%s) on %s: %w", owner.Hex(), spender.Hex(), token.Hex(), err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("allowance on %s returned empty result", token.Hex())
	}
	return new(big.Int).SetBytes(out), nil
}

// Approve submits approve(spender, amount) on the token and waits for the
// transaction to be mined. The receipt is returned with whatever status the
// ledger reports; callers decide what a reverted approval means.
func (c *Client) Approve(ctx context.Context, key *ecdsa.PrivateKey, token, spender common.Address, amount *big.Int) (*types.Receipt, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(key, c.chainID)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx

	contract := bind.NewBoundContract(token, c.erc20ABI, c.backend, c.backend, c.backend)
	tx, err := contract.Transact(opts, "approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("approve submit: %w", err)
	}
	return c.waitForReceipt(ctx, tx)
}

// SwapExactInput submits exactInputSingle on the router and waits for the
// transaction to be mined. The deadline is now + the configured validity
// window; sqrtPriceLimitX96 is zero.
func (c *Client) SwapExactInput(ctx context.Context, key *ecdsa.PrivateKey, p SwapParams) (*types.Receipt, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(key, c.chainID)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx

	amountOutMin := p.AmountOutMin
	if amountOutMin == nil {
		amountOutMin = big.NewInt(0)
	}
	params := exactInputSingleParams{
		TokenIn:           p.TokenIn,
		TokenOut:          p.TokenOut,
		Fee:               new(big.Int).SetUint64(uint64(p.Fee)),
		Recipient:         p.Recipient,
		Deadline:          big.NewInt(c.now().Add(c.cfg.SwapDeadline).Unix()),
		AmountIn:          p.AmountIn,
		AmountOutMinimum:  amountOutMin,
		SqrtPriceLimitX96: big.NewInt(0),
	}

	contract := bind.NewBoundContract(c.cfg.Router, c.routerABI, c.backend, c.backend, c.backend)
	tx, err := contract.Transact(opts, "exactInputSingle", params)
	if err != nil {
		return nil, fmt.Errorf("swap submit: %w", err)
	}
	return c.waitForReceipt(ctx, tx)
}

func (c *Client) waitForReceipt(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	waitCtx := ctx
	var cancel context.CancelFunc
	if c.cfg.WaitTimeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, c.cfg.WaitTimeout)
		defer cancel()
	}
	receipt, err := bind.WaitMined(waitCtx, c.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("wait receipt tx=%s: %w", tx.Hash().Hex(), err)
	}
	return receipt, nil
}
