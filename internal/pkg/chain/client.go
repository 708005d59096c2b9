package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/samber/do/v2"
)

var (
	_ Client = (*EthClient)(nil)

	ErrNoEndpoint = errors.New("no rpc endpoint configured")
)

// Client is the subset of JSON-RPC the submission pipeline needs. All amounts
// are wei.
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	NonceAt(ctx context.Context, account common.Address) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

type EthClient struct {
	eth *ethclient.Client
	rpc *rpc.Client
}

func newHTTPClient() *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        32,               //nolint:mnd
		MaxIdleConnsPerHost: 32,               //nolint:mnd
		IdleConnTimeout:     30 * time.Second, //nolint:mnd
	}

	return &http.Client{
		Transport: transport,
		Timeout:   10 * time.Second, //nolint:mnd
	}
}

func Dial(ctx context.Context, network Network) (*EthClient, error) {
	url := network.RPCURL()
	if url == "" {
		return nil, ErrNoEndpoint
	}

	rpcClient, err := rpc.DialOptions(ctx, url, rpc.WithHTTPClient(newHTTPClient()))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize rpc client: %w", err)
	}

	return &EthClient{
		eth: ethclient.NewClient(rpcClient),
		rpc: rpcClient,
	}, nil
}

// NewChainService dials the configured network for the injector.
func NewChainService(i do.Injector) (*EthClient, error) {
	network := do.MustInvokeNamed[Network](i, "network")

	return Dial(context.Background(), network)
}

func (c *EthClient) ChainID(ctx context.Context) (*big.Int, error) {
	//nolint:wrapcheck
	return c.eth.ChainID(ctx)
}

func (c *EthClient) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	//nolint:wrapcheck
	return c.eth.BalanceAt(ctx, account, nil)
}

func (c *EthClient) NonceAt(ctx context.Context, account common.Address) (uint64, error) {
	//nolint:wrapcheck
	return c.eth.NonceAt(ctx, account, nil)
}

func (c *EthClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	//nolint:wrapcheck
	return c.eth.PendingNonceAt(ctx, account)
}

func (c *EthClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	//nolint:wrapcheck
	return c.eth.EstimateGas(ctx, msg)
}

// CallContract executes msg against the latest block without broadcasting.
// A revert comes back as an error.
func (c *EthClient) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	//nolint:wrapcheck
	return c.eth.CallContract(ctx, msg, nil)
}

func (c *EthClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	//nolint:wrapcheck
	return c.eth.SendTransaction(ctx, tx)
}

// TransactionReceipt returns ethereum.NotFound while tx is still pending.
func (c *EthClient) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	//nolint:wrapcheck
	return c.eth.TransactionReceipt(ctx, hash)
}

func (c *EthClient) Shutdown() error {
	c.rpc.Close()

	return nil
}
