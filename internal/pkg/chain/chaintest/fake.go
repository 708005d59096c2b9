// Package chaintest provides an in-memory chain.Client for tests.
package chaintest

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type ReceiptFunc func(hash common.Hash, attempt int) (*types.Receipt, error)

// Client records every call. Zero-valued hooks behave like a healthy node:
// gas estimates of 100000, successful calls and an immediate success receipt.
type Client struct {
	mu sync.Mutex

	ChainIDValue *big.Int
	Balances     map[common.Address]*big.Int
	Nonces       map[common.Address]uint64

	BalanceErr error
	EstimateFn func(msg ethereum.CallMsg) (uint64, error)
	CallFn     func(msg ethereum.CallMsg) ([]byte, error)
	SendErr    error
	ReceiptFn  ReceiptFunc
	NonceErr   error
	ChainIDErr error

	Sent          []*types.Transaction
	BalanceCalls  int
	EstimateCalls int
	CallCalls     int
	NonceCalls    int
	ReceiptCalls  int
}

func New(chainID int64) *Client {
	return &Client{
		ChainIDValue: big.NewInt(chainID),
		Balances:     map[common.Address]*big.Int{},
		Nonces:       map[common.Address]uint64{},
	}
}

func (c *Client) SetBalance(addr common.Address, wei *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Balances[addr] = wei
}

func (c *Client) ChainID(_ context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ChainIDErr != nil {
		return nil, c.ChainIDErr
	}

	return new(big.Int).Set(c.ChainIDValue), nil
}

func (c *Client) BalanceAt(_ context.Context, account common.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.BalanceCalls++

	if c.BalanceErr != nil {
		return nil, c.BalanceErr
	}

	balance, ok := c.Balances[account]
	if !ok {
		return big.NewInt(0), nil
	}

	return new(big.Int).Set(balance), nil
}

func (c *Client) NonceAt(_ context.Context, account common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.Nonces[account], c.NonceErr
}

func (c *Client) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.NonceCalls++

	return c.Nonces[account], c.NonceErr
}

func (c *Client) EstimateGas(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.EstimateCalls++

	if c.EstimateFn != nil {
		return c.EstimateFn(msg)
	}

	return 100_000, nil
}

func (c *Client) CallContract(_ context.Context, msg ethereum.CallMsg) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.CallCalls++

	if c.CallFn != nil {
		return c.CallFn(msg)
	}

	return nil, nil
}

// SendTransaction records tx and bumps the sender's pending nonce.
func (c *Client) SendTransaction(_ context.Context, tx *types.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.SendErr != nil {
		return c.SendErr
	}

	c.Sent = append(c.Sent, tx)

	sender, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err == nil {
		c.Nonces[sender] = tx.Nonce() + 1
	}

	return nil
}

func (c *Client) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	c.ReceiptCalls++
	attempt := c.ReceiptCalls
	fn := c.ReceiptFn
	c.mu.Unlock()

	if fn != nil {
		return fn(hash, attempt)
	}

	return SuccessReceipt(hash), nil
}

func (c *Client) SentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.Sent)
}

func SuccessReceipt(hash common.Hash) *types.Receipt {
	return &types.Receipt{
		TxHash: hash,
		Status: types.ReceiptStatusSuccessful,
	}
}

func RevertedReceipt(hash common.Hash) *types.Receipt {
	return &types.Receipt{
		TxHash: hash,
		Status: types.ReceiptStatusFailed,
	}
}

// NeverMined answers every receipt request with ethereum.NotFound.
func NeverMined(_ common.Hash, _ int) (*types.Receipt, error) {
	return nil, ethereum.NotFound
}
