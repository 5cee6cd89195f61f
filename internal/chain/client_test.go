package chain

import (
	"bytes"
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// fakeBackend satisfies Backend in-memory: reads return queued outputs,
// writes are recorded, and receipts come back immediately.
type fakeBackend struct {
	calls   []ethereum.CallMsg
	callOut [][]byte
	sent    []*types.Transaction
	receipt *types.Receipt
	callErr error
	sendErr error
}

func (b *fakeBackend) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x01}, nil
}

func (b *fakeBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	b.calls = append(b.calls, call)
	if b.callErr != nil {
		return nil, b.callErr
	}
	if len(b.callOut) == 0 {
		return common.LeftPadBytes(nil, 32), nil
	}
	out := b.callOut[0]
	b.callOut = b.callOut[1:]
	return out, nil
}

func (b *fakeBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	// No BaseFee: keeps the bind transactor on the legacy gas-price path.
	return &types.Header{Number: big.NewInt(1)}, nil
}

func (b *fakeBackend) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return []byte{0x01}, nil
}

func (b *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return uint64(len(b.sent)), nil
}

func (b *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (b *fakeBackend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (b *fakeBackend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return 210_000, nil
}

func (b *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = append(b.sent, tx)
	return nil
}

func (b *fakeBackend) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (b *fakeBackend) SubscribeFilterLogs(ctx context.Context, query ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return nil, ethereum.NotFound
}

func (b *fakeBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if b.receipt == nil {
		return nil, ethereum.NotFound
	}
	r := *b.receipt
	r.TxHash = txHash
	return &r, nil
}

var (
	testRouter = common.HexToAddress("0xE592427A0AEce92De3Edee1F18E0157C05861564")
	testToken  = common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
	testOther  = common.HexToAddress("0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619")
	testOwner  = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

func newTestClient(t *testing.T, backend *fakeBackend) *Client {
	t.Helper()
	c, err := NewClient(backend, big.NewInt(137), Config{Router: testRouter})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func uint256Bytes(v int64) []byte {
	return common.LeftPadBytes(big.NewInt(v).Bytes(), 32)
}

func TestTokenBalanceCalldata(t *testing.T) {
	backend := &fakeBackend{callOut: [][]byte{uint256Bytes(1_500_000)}}
	c := newTestClient(t, backend)

	bal, err := c.TokenBalance(context.Background(), testToken, testOwner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bal.String() != "1500000" {
		t.Fatalf("balance mismatch: %s", bal)
	}

	if len(backend.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(backend.calls))
	}
	call := backend.calls[0]
	if call.To == nil || *call.To != testToken {
		t.Fatalf("call target mismatch: %v", call.To)
	}
	want := append(append([]byte{}, erc20BalanceOfSelector...), common.LeftPadBytes(testOwner.Bytes(), 32)...)
	if !bytes.Equal(call.Data, want) {
		t.Fatalf("balanceOf calldata mismatch:\n got %x\nwant %x", call.Data, want)
	}
}

func TestTokenAllowanceCalldata(t *testing.T) {
	backend := &fakeBackend{callOut: [][]byte{uint256Bytes(42)}}
	c := newTestClient(t, backend)

	allowance, err := c.TokenAllowance(context.Background(), testToken, testOwner, testRouter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowance.Int64() != 42 {
		t.Fatalf("allowance mismatch: %s", allowance)
	}

	call := backend.calls[0]
	want := append(append(append([]byte{}, erc20AllowanceSelector...),
		common.LeftPadBytes(testOwner.Bytes(), 32)...),
		common.LeftPadBytes(testRouter.Bytes(), 32)...)
	if !bytes.Equal(call.Data, want) {
		t.Fatalf("allowance calldata mismatch:\n got %x\nwant %x", call.Data, want)
	}
}

func TestApproveSubmitsAndWaits(t *testing.T) {
	backend := &fakeBackend{receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful}}
	c := newTestClient(t, backend)

	key, err := crypto.HexToECDSA("ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	if err != nil {
		t.Fatalf("test key: %v", err)
	}

	amount := big.NewInt(1_500_000)
	receipt, err := c.Approve(context.Background(), key, testToken, testRouter, amount)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		t.Fatalf("receipt status mismatch: %d", receipt.Status)
	}

	if len(backend.sent) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(backend.sent))
	}
	tx := backend.sent[0]
	if tx.To() == nil || *tx.To() != testToken {
		t.Fatalf("tx target mismatch: %v", tx.To())
	}
	want, err := c.erc20ABI.Pack("approve", testRouter, amount)
	if err != nil {
		t.Fatalf("pack approve: %v", err)
	}
	if !bytes.Equal(tx.Data(), want) {
		t.Fatalf("approve calldata mismatch:\n got %x\nwant %x", tx.Data(), want)
	}
}

func TestSwapExactInputCalldata(t *testing.T) {
	backend := &fakeBackend{receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful}}
	c := newTestClient(t, backend)

	frozen := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return frozen }

	key, err := crypto.HexToECDSA("ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	if err != nil {
		t.Fatalf("test key: %v", err)
	}

	_, err = c.SwapExactInput(context.Background(), key, SwapParams{
		TokenIn:   testToken,
		TokenOut:  testOther,
		Fee:       3000,
		Recipient: testOwner,
		AmountIn:  big.NewInt(1_500_000),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(backend.sent) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(backend.sent))
	}
	tx := backend.sent[0]
	if tx.To() == nil || *tx.To() != testRouter {
		t.Fatalf("tx target mismatch: %v", tx.To())
	}

	want, err := c.routerABI.Pack("exactInputSingle", exactInputSingleParams{
		TokenIn:           testToken,
		TokenOut:          testOther,
		Fee:               big.NewInt(3000),
		Recipient:         testOwner,
		Deadline:          big.NewInt(frozen.Add(DefaultSwapDeadline).Unix()),
		AmountIn:          big.NewInt(1_500_000),
		AmountOutMinimum:  big.NewInt(0),
		SqrtPriceLimitX96: big.NewInt(0),
	})
	if err != nil {
		t.Fatalf("pack exactInputSingle: %v", err)
	}
	if !bytes.Equal(tx.Data(), want) {
		t.Fatalf("swap calldata mismatch:\n got %x\nwant %x", tx.Data(), want)
	}
}

func TestSwapReturnsRevertedReceipt(t *testing.T) {
	// Status is passed through for the caller to classify, not turned into
	// an error here.
	backend := &fakeBackend{receipt: &types.Receipt{Status: types.ReceiptStatusFailed}}
	c := newTestClient(t, backend)

	key, err := crypto.HexToECDSA("ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	if err != nil {
		t.Fatalf("test key: %v", err)
	}

	receipt, err := c.SwapExactInput(context.Background(), key, SwapParams{
		TokenIn:   testToken,
		TokenOut:  testOther,
		Fee:       3000,
		Recipient: testOwner,
		AmountIn:  big.NewInt(1),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if receipt.Status != types.ReceiptStatusFailed {
		t.Fatalf("expected failed status, got %d", receipt.Status)
	}
}

func TestReadErrorsSurface(t *testing.T) {
	backend := &fakeBackend{callErr: ethereum.NotFound}
	c := newTestClient(t, backend)

	if _, err := c.TokenBalance(context.Background(), testToken, testOwner); err == nil {
		t.Fatalf("expected balance read error")
	}
	if _, err := c.TokenAllowance(context.Background(), testToken, testOwner, testRouter); err == nil {
		t.Fatalf("expected allowance read error")
	}
}

func TestNewClientValidation(t *testing.T) {
	backend := &fakeBackend{}
	if _, err := NewClient(nil, big.NewInt(1), Config{Router: testRouter}); err == nil {
		t.Fatalf("expected error for nil backend")
	}
	if _, err := NewClient(backend, nil, Config{Router: testRouter}); err == nil {
		t.Fatalf("expected error for missing chain id")
	}
	if _, err := NewClient(backend, big.NewInt(1), Config{}); err == nil {
		t.Fatalf("expected error for missing router")
	}
}
