package rpc

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/goran-ethernal/logrange/internal/logger"
	itypes "github.com/goran-ethernal/logrange/internal/types"
	"github.com/goran-ethernal/logrange/pkg/config"
	pkgrpc "github.com/goran-ethernal/logrange/pkg/rpc"
)

const (
	methodBlockNumber      = "eth_blockNumber"
	methodGetBlockByNumber = "eth_getBlockByNumber"
	methodGetLogs          = "eth_getLogs"
)

// Compile-time check to ensure Client implements pkgrpc.ChainClient interface.
var _ pkgrpc.ChainClient = (*Client)(nil)

// Client wraps the Ethereum RPC client and reports failures using the
// provider error taxonomy the range fetcher reacts to.
type Client struct {
	eth      *ethclient.Client
	rpc      *rpc.Client
	retry    *config.RetryConfig
	finality itypes.BlockFinality
	log      *logger.Logger
}

// NewClient creates a new RPC client connected to the given endpoint.
// retryCfg may be nil, in which case chain head lookups are attempted once.
func NewClient(ctx context.Context, endpoint string, retryCfg *config.RetryConfig, log *logger.Logger) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, &pkgrpc.ConnectionError{Err: fmt.Errorf("failed to dial %s: %w", endpoint, err)}
	}

	return newClient(rpcClient, retryCfg, log), nil
}

// NewClientFromConfig creates a new RPC client from the rpc configuration section.
// The chain head it reports follows the configured finality.
func NewClientFromConfig(ctx context.Context, cfg config.RPCConfig, log *logger.Logger) (*Client, error) {
	finality, err := itypes.ParseBlockFinality(cfg.Finality)
	if err != nil {
		return nil, err
	}

	client, err := NewClient(ctx, cfg.URL, cfg.Retry, log)
	if err != nil {
		return nil, err
	}
	client.finality = finality

	return client, nil
}

func newClient(rpcClient *rpc.Client, retryCfg *config.RetryConfig, log *logger.Logger) *Client {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Client{
		eth:      ethclient.NewClient(rpcClient),
		rpc:      rpcClient,
		retry:    retryCfg,
		finality: itypes.FinalityLatest,
		log:      log,
	}
}

// Close closes the RPC client connection.
func (c *Client) Close() {
	c.eth.Close()
}

// BlockNumber returns the current chain height, or the height of the safe or
// finalized block when the client was configured with that finality. Transient
// failures are retried with backoff when a retry config is set; the final failure
// is a *ConnectionError.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	method := methodBlockNumber
	if c.finality.Tagged() {
		method = methodGetBlockByNumber
	}

	var height uint64

	err := retryWithBackoff(ctx, c.retry, method, func() error {
		start := time.Now()
		RPCMethodInc(method)

		h, err := c.headNumber(ctx)
		RPCMethodDuration(method, time.Since(start))
		if err != nil {
			RPCMethodError(method, "connection")
			c.log.Debugf("%s failed: %v", method, err)
			return err
		}

		height = h
		return nil
	})
	if err != nil {
		return 0, &pkgrpc.ConnectionError{Err: err}
	}

	return height, nil
}

// headNumber queries the chain head for the configured finality. Tagged blocks are
// read as raw JSON so that only the number has to decode.
func (c *Client) headNumber(ctx context.Context) (uint64, error) {
	if !c.finality.Tagged() {
		return c.eth.BlockNumber(ctx)
	}

	var head *struct {
		Number hexutil.Uint64 `json:"number"`
	}
	if err := c.rpc.CallContext(ctx, &head, methodGetBlockByNumber, c.finality.String(), false); err != nil {
		return 0, err
	}
	if head == nil {
		return 0, fmt.Errorf("%s block not available: %w", c.finality, ethereum.NotFound)
	}

	return uint64(head.Number), nil
}

// GetLogs retrieves logs matching the given filter query.
// Failures are returned as *ProviderError and are never retried here.
func (c *Client) GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	start := time.Now()
	RPCMethodInc(methodGetLogs)

	var logs []types.Log
	err := c.rpc.CallContext(ctx, &logs, methodGetLogs, toFilterArg(query))
	RPCMethodDuration(methodGetLogs, time.Since(start))
	if err != nil {
		providerErr := NewProviderError(methodGetLogs, err)
		RPCMethodError(methodGetLogs, providerErr.Kind.String())
		return nil, providerErr
	}

	return logs, nil
}

// toFilterArg converts ethereum.FilterQuery to the format expected by eth_getLogs.
func toFilterArg(q ethereum.FilterQuery) any {
	arg := map[string]any{
		"topics": q.Topics,
	}

	if q.BlockHash != nil {
		arg["blockHash"] = *q.BlockHash
	} else {
		if q.FromBlock != nil {
			arg["fromBlock"] = toBlockNumArg(q.FromBlock.Uint64())
		}
		if q.ToBlock != nil {
			arg["toBlock"] = toBlockNumArg(q.ToBlock.Uint64())
		}
	}

	if len(q.Addresses) > 0 {
		if len(q.Addresses) == 1 {
			arg["address"] = q.Addresses[0]
		} else {
			arg["address"] = q.Addresses
		}
	}

	return arg
}

// toBlockNumArg converts a block number to hex format.
func toBlockNumArg(blockNum uint64) string {
	return fmt.Sprintf("0x%x", blockNum)
}
