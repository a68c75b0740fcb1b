package rpcclient

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/goran-ethernal/ChainIndexor/internal/config"
)

const transportDirect = "direct"

// DirectClient is the direct HTTP/WS JSON-RPC transport: it POSTs requests
// straight at network.rpcUrl via go-ethereum's ethclient/rpc, wrapped with
// the shared retry/backoff policy.
type DirectClient struct {
	eth   *ethclient.Client
	rpc   *gethrpc.Client
	retry config.RetryConfig
}

var _ Client = (*DirectClient)(nil)

// NewDirectClient dials endpoint and returns a retry-wrapped client.
func NewDirectClient(ctx context.Context, endpoint string, retry config.RetryConfig) (*DirectClient, error) {
	rpcClient, err := gethrpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, &HttpRequestError{Method: "dial", Err: err}
	}

	return &DirectClient{
		eth:   ethclient.NewClient(rpcClient),
		rpc:   rpcClient,
		retry: retry,
	}, nil
}

func (c *DirectClient) Close() { c.eth.Close() }

func (c *DirectClient) instrument(method string, fn func() error) error {
	start := time.Now()
	RPCMethodInc(method, transportDirect)
	defer func() { RPCMethodDuration(method, transportDirect, time.Since(start)) }()

	if err := retryWithBackoff(context.Background(), c.retry, method, fn); err != nil {
		RPCMethodError(method, transportDirect)
		return &RpcRequestError{Method: method, Err: err}
	}
	return nil
}

func (c *DirectClient) GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	var logs []types.Log
	err := c.instrument("eth_getLogs", func() error {
		var fetchErr error
		logs, fetchErr = c.eth.FilterLogs(ctx, query)
		return fetchErr
	})
	return logs, err
}

func (c *DirectClient) GetBlockByNumber(ctx context.Context, number *uint64, fullTx bool) (*types.Header, types.Transactions, error) {
	var block *types.Block
	err := c.instrument("eth_getBlockByNumber", func() error {
		var fetchErr error
		var n *big.Int
		if number != nil {
			n = new(big.Int).SetUint64(*number)
		}
		block, fetchErr = c.eth.BlockByNumber(ctx, n)
		return fetchErr
	})
	if err != nil {
		return nil, nil, err
	}
	return block.Header(), block.Transactions(), nil
}

func (c *DirectClient) GetBlockByHash(ctx context.Context, hash []byte, fullTx bool) (*types.Header, types.Transactions, error) {
	var block *types.Block
	err := c.instrument("eth_getBlockByHash", func() error {
		var fetchErr error
		block, fetchErr = c.eth.BlockByHash(ctx, common.BytesToHash(hash))
		return fetchErr
	})
	if err != nil {
		return nil, nil, err
	}
	return block.Header(), block.Transactions(), nil
}

func (c *DirectClient) GetFinalizedBlockHeader(ctx context.Context) (*types.Header, error) {
	return c.headerByTag(ctx, "eth_getBlockByNumber", big.NewInt(int64(gethrpc.FinalizedBlockNumber)))
}

func (c *DirectClient) GetSafeBlockHeader(ctx context.Context) (*types.Header, error) {
	return c.headerByTag(ctx, "eth_getBlockByNumber", big.NewInt(int64(gethrpc.SafeBlockNumber)))
}

func (c *DirectClient) headerByTag(ctx context.Context, method string, num *big.Int) (*types.Header, error) {
	var header *types.Header
	err := c.instrument(method, func() error {
		var fetchErr error
		header, fetchErr = c.eth.HeaderByNumber(ctx, num)
		return fetchErr
	})
	return header, err
}

func (c *DirectClient) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	var n uint64
	err := c.instrument("eth_blockNumber", func() error {
		var fetchErr error
		n, fetchErr = c.eth.BlockNumber(ctx)
		return fetchErr
	})
	return n, err
}

func (c *DirectClient) CallContract(ctx context.Context, to common.Address, calldata []byte, blockNumber *uint64) ([]byte, error) {
	var out []byte
	err := c.instrument("eth_call", func() error {
		var n *big.Int
		if blockNumber != nil {
			n = new(big.Int).SetUint64(*blockNumber)
		}
		var callErr error
		out, callErr = c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: calldata}, n)
		return callErr
	})
	return out, err
}
