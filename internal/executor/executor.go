package executor

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"uni-gocycle/internal/chain"
	"uni-gocycle/internal/cycle"
	"uni-gocycle/internal/ethutil"
)

// Kind classifies the result of one attempt.
type Kind int

const (
	// KindSwapped: the swap transaction confirmed successfully.
	KindSwapped Kind = iota
	// KindSkipped: source balance below the step amount; nothing submitted.
	// A normal outcome, not an error.
	KindSkipped
	// KindBalanceFailed: the balance read itself errored.
	KindBalanceFailed
	// KindApproveFailed: allowance read, approval submission, or approval
	// confirmation failed; the swap was not attempted.
	KindApproveFailed
	// KindSwapFailed: swap submission or confirmation failed, or the swap
	// receipt carried a failed status.
	KindSwapFailed
)

func (k Kind) String() string {
	switch k {
	case KindSwapped:
		return "swapped"
	case KindSkipped:
		return "skipped"
	case KindBalanceFailed:
		return "balance_failed"
	case KindApproveFailed:
		return "approve_failed"
	case KindSwapFailed:
		return "swap_failed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome is the contained result of one (account, step) attempt. Every
// ledger error surfaces here instead of propagating; only programming defects
// escape the executor.
type Outcome struct {
	Kind   Kind
	Err    error
	TxHash common.Hash
}

func (o Outcome) Succeeded() bool { return o.Kind == KindSwapped }

// Ledger is the executor's view of the chain client.
type Ledger interface {
	TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
	TokenAllowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	Approve(ctx context.Context, key *ecdsa.PrivateKey, token, spender common.Address, amount *big.Int) (*types.Receipt, error)
	SwapExactInput(ctx context.Context, key *ecdsa.PrivateKey, p chain.SwapParams) (*types.Receipt, error)
}

// Executor performs exactly one swap-cycle step for one account: balance
// gate, conditional approval, then the swap.
type Executor struct {
	ledger       Ledger
	router       common.Address
	feeTier      uint32
	amountOutMin *big.Int
}

// New builds an executor. amountOutMin is the minimum-output policy applied
// to every swap; nil means zero (no output floor, the documented default).
func New(ledger Ledger, router common.Address, feeTier uint32, amountOutMin *big.Int) *Executor {
	if amountOutMin == nil {
		amountOutMin = big.NewInt(0)
	}
	return &Executor{
		ledger:       ledger,
		router:       router,
		feeTier:      feeTier,
		amountOutMin: new(big.Int).Set(amountOutMin),
	}
}

// Attempt runs the three phases for one step. Phases short-circuit:
// insufficient balance skips the rest, a failed approval skips the swap.
// Attempt never returns an error; failures are folded into the Outcome.
func (e *Executor) Attempt(ctx context.Context, acct ethutil.Account, step cycle.Step) Outcome {
	balance, err := e.ledger.TokenBalance(ctx, step.Source.Address, acct.Address)
	if err != nil {
		return Outcome{Kind: KindBalanceFailed, Err: err}
	}
	if balance.Cmp(step.Amount) < 0 {
		return Outcome{Kind: KindSkipped}
	}

	allowance, err := e.ledger.TokenAllowance(ctx, step.Source.Address, acct.Address, e.router)
	if err != nil {
		return Outcome{Kind: KindApproveFailed, Err: err}
	}
	if allowance.Cmp(step.Amount) < 0 {
		receipt, err := e.ledger.Approve(ctx, acct.Key, step.Source.Address, e.router, step.Amount)
		if err != nil {
			return Outcome{Kind: KindApproveFailed, Err: err}
		}
		if receipt.Status != types.ReceiptStatusSuccessful {
			return Outcome{
				Kind:   KindApproveFailed,
				Err:    fmt.Errorf("approval reverted tx=%s", receipt.TxHash.Hex()),
				TxHash: receipt.TxHash,
			}
		}
	}

	receipt, err := e.ledger.SwapExactInput(ctx, acct.Key, chain.SwapParams{
		TokenIn:      step.Source.Address,
		TokenOut:     step.Dest.Address,
		Fee:          e.feeTier,
		Recipient:    acct.Address,
		AmountIn:     step.Amount,
		AmountOutMin: e.amountOutMin,
	})
	if err != nil {
		return Outcome{Kind: KindSwapFailed, Err: err}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return Outcome{
			Kind:   KindSwapFailed,
			Err:    fmt.Errorf("swap reverted tx=%s", receipt.TxHash.Hex()),
			TxHash: receipt.TxHash,
		}
	}
	return Outcome{Kind: KindSwapped, TxHash: receipt.TxHash}
}
