package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// MaxTopicPositions is the number of indexed topic positions a log can carry.
const MaxTopicPositions = 4

var ErrTooManyTopics = fmt.Errorf("topic filter supports at most %d positions", MaxTopicPositions)

// RangeFetcher defines the interface for fetching every log matching a request
// over a block range, adapting the query window to provider failures.
// This abstraction allows for easier testing and alternative implementations.
type RangeFetcher interface {
	// Fetch retrieves logs for the request and appends them to accumulated.
	// Provider failures never surface as errors; they shrink or abandon windows instead.
	// The returned LastBlockReached tells how far coverage got.
	Fetch(ctx context.Context, req FetchRequest, accumulated []types.Log) (*FetchResult, error)
}

// QueryRange is an inclusive block range.
type QueryRange struct {
	FromBlock uint64 `json:"from_block"`
	ToBlock   uint64 `json:"to_block"`
}

// Validate checks that the range is not inverted.
func (r QueryRange) Validate() error {
	if r.FromBlock > r.ToBlock {
		return fmt.Errorf("from block %d is greater than to block %d", r.FromBlock, r.ToBlock)
	}

	return nil
}

func (r QueryRange) String() string {
	return fmt.Sprintf("[%d, %d]", r.FromBlock, r.ToBlock)
}

// TopicFilter is a positional topic filter. An empty position matches any topic,
// a position with several hashes matches any of them.
type TopicFilter [][]common.Hash

// Validate checks the number of topic positions.
func (t TopicFilter) Validate() error {
	if len(t) > MaxTopicPositions {
		return fmt.Errorf("%w: got %d", ErrTooManyTopics, len(t))
	}

	return nil
}

// FetchRequest describes what to fetch and how aggressively to retry.
type FetchRequest struct {
	Address common.Address
	Topics  TopicFilter

	// FromBlock is the first block of the range.
	FromBlock uint64
	// ToBlock is the last block of the range. When nil the chain head is followed.
	ToBlock *uint64

	// PageLimit is the maximum window size in blocks. Zero means one window for the whole range.
	PageLimit uint64
	// Timeout is the wait before repeating a window that timed out.
	Timeout time.Duration
	// Retries is the retry count already spent by the caller, normally zero.
	Retries int
}

// Validate checks the request for malformed input.
func (r FetchRequest) Validate() error {
	if r.Retries < 0 {
		return errors.New("retries cannot be negative")
	}

	if r.Timeout < 0 {
		return errors.New("timeout cannot be negative")
	}

	return r.Topics.Validate()
}

// FetchResult is the outcome of a fetch.
type FetchResult struct {
	// Logs holds the accumulated logs followed by everything fetched, in block order
	// within consecutive windows.
	Logs []types.Log
	// LastBlockReached is the block coverage got to. A value below the requested
	// upper bound means the fetch stopped early.
	LastBlockReached uint64
	// Abandoned lists the windows given up on after their retries ran out.
	Abandoned []QueryRange
}

// Complete reports whether coverage reached the given upper bound within the safety margin.
func (r *FetchResult) Complete(upper, safetyMargin uint64) bool {
	reached := r.LastBlockReached >= upper || upper-r.LastBlockReached <= safetyMargin

	return reached && len(r.Abandoned) == 0
}

// FetchUntilComplete calls Fetch repeatedly, resuming from LastBlockReached, until a
// pass makes no progress or reaches req.ToBlock. Logs and abandoned windows of all
// passes are concatenated in order.
func FetchUntilComplete(ctx context.Context, f RangeFetcher, req FetchRequest) (*FetchResult, error) {
	total := &FetchResult{LastBlockReached: req.FromBlock}

	for {
		res, err := f.Fetch(ctx, req, total.Logs)
		if err != nil {
			return nil, fmt.Errorf("fetch from block %d failed: %w", req.FromBlock, err)
		}

		total.Logs = res.Logs
		total.Abandoned = append(total.Abandoned, res.Abandoned...)

		if res.LastBlockReached <= req.FromBlock {
			return total, nil
		}

		total.LastBlockReached = res.LastBlockReached

		if req.ToBlock != nil && res.LastBlockReached >= *req.ToBlock {
			return total, nil
		}

		req.FromBlock = res.LastBlockReached
		req.Retries = 0
	}
}
