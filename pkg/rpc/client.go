package rpc

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
)

// ChainClient defines the node operations the range fetcher depends on.
// This abstraction allows for easier testing and alternative implementations.
type ChainClient interface {
	// Close closes the RPC client connection.
	Close()

	// BlockNumber returns the current chain height.
	// Failures are reported as *ConnectionError.
	BlockNumber(ctx context.Context) (uint64, error)

	// GetLogs retrieves logs matching the given filter query.
	// Failures are reported as *ProviderError.
	GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)
}
