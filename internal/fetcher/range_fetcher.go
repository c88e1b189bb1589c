package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/goran-ethernal/logrange/internal/logger"
	irpc "github.com/goran-ethernal/logrange/internal/rpc"
	"github.com/goran-ethernal/logrange/pkg/config"
	"github.com/goran-ethernal/logrange/pkg/fetcher"
	"github.com/goran-ethernal/logrange/pkg/rpc"
	"golang.org/x/sync/errgroup"
)

// Compile-time check to ensure RangeFetcher implements fetcher.RangeFetcher interface.
var _ fetcher.RangeFetcher = (*RangeFetcher)(nil)

// RangeFetcherConfig contains configuration for the RangeFetcher.
type RangeFetcherConfig struct {
	// SafetyMargin is how close to the upper bound a branch may start before it stops
	SafetyMargin uint64

	// MaxRetries is the per-branch number of consecutive failures tolerated
	MaxRetries int

	// ParallelBisection fetches both halves of a split window concurrently
	ParallelBisection bool

	// MaxTotalRetries caps failures across the whole fetch, 0 means no cap
	MaxTotalRetries int
}

// NewRangeFetcherConfig builds the fetcher configuration from the fetch config section.
// Defaults are expected to be applied already.
func NewRangeFetcherConfig(cfg *config.FetchConfig) RangeFetcherConfig {
	rfCfg := RangeFetcherConfig{
		SafetyMargin:      config.DefaultSafetyMargin,
		MaxRetries:        cfg.MaxRetries,
		ParallelBisection: cfg.ParallelBisection,
		MaxTotalRetries:   cfg.MaxTotalRetries,
	}

	if cfg.SafetyMargin != nil {
		rfCfg.SafetyMargin = *cfg.SafetyMargin
	}

	if rfCfg.MaxRetries <= 0 {
		rfCfg.MaxRetries = config.DefaultMaxRetries
	}

	return rfCfg
}

// RangeFetcher retrieves logs window by window. Timed out windows are repeated,
// other failures split the window in half, and each branch gives up after
// MaxRetries consecutive failures.
type RangeFetcher struct {
	cfg    RangeFetcherConfig
	client rpc.ChainClient
	log    *logger.Logger
}

// NewRangeFetcher creates a new RangeFetcher instance.
func NewRangeFetcher(cfg RangeFetcherConfig, log *logger.Logger, client rpc.ChainClient) *RangeFetcher {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &RangeFetcher{
		cfg:    cfg,
		client: client,
		log:    log,
	}
}

// fetchRun holds the state shared by all branches of a single Fetch call.
type fetchRun struct {
	*RangeFetcher

	req      fetcher.FetchRequest
	failures atomic.Int64
}

// Fetch retrieves all logs matching req and returns them after accumulated.
// The caller's slice is never written to.
// Only a failure to read the chain height or a cancelled context is returned as an error.
func (rf *RangeFetcher) Fetch(
	ctx context.Context,
	req fetcher.FetchRequest,
	accumulated []types.Log,
) (*fetcher.FetchResult, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fetch request: %w", err)
	}

	run := &fetchRun{RangeFetcher: rf, req: req}

	rf.log.Debugf("starting fetch for %s from block %d (page limit %d)",
		req.Address.Hex(), req.FromBlock, req.PageLimit)

	res, err := run.fetchBranch(ctx, req.FromBlock, req.ToBlock, req.Retries, slices.Clip(accumulated))
	if err != nil {
		return nil, err
	}

	LastBlockReachedSet(res.LastBlockReached)

	rf.log.Infof("fetch finished at block %d with %d logs, %d abandoned windows",
		res.LastBlockReached, len(res.Logs), len(res.Abandoned))

	return res, nil
}

// fetchBranch walks windows from `from` up to limit (or chain head when limit is nil).
// It recurses only when a window has to be split.
func (r *fetchRun) fetchBranch(
	ctx context.Context,
	from uint64,
	limit *uint64,
	retries int,
	accumulated []types.Log,
) (*fetcher.FetchResult, error) {
	res := &fetcher.FetchResult{Logs: accumulated}

	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("fetch cancelled at block %d: %w", from, err)
		}

		upper, err := r.upperBound(ctx, limit)
		if err != nil {
			return nil, err
		}

		if withinMargin(from, upper, r.cfg.SafetyMargin) {
			res.LastBlockReached = from
			return res, nil
		}

		// upper > from here, so upper-from cannot wrap
		to := upper
		if r.req.PageLimit > 0 && r.req.PageLimit < upper-from {
			to = from + r.req.PageLimit
		}

		// attempts on the same window until it succeeds, splits or is abandoned
		for {
			logs, err := r.client.GetLogs(ctx, r.query(from, to))
			if err == nil {
				r.log.Debugf("fetched window [%d, %d] with %d logs", from, to, len(logs))
				WindowFetchedLog(to-from, len(logs))

				res.Logs = append(res.Logs, logs...)
				from = to
				retries = 0

				break
			}

			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("fetch cancelled at block %d: %w", from, ctxErr)
			}

			window := fetcher.QueryRange{FromBlock: from, ToBlock: to}

			if retries >= r.cfg.MaxRetries || !r.takeRetry() {
				r.log.Warnf("giving up on window %s after %d retries: %v", window, retries, err)
				AbandonedWindowInc()

				res.Abandoned = append(res.Abandoned, window)
				res.LastBlockReached = from

				return res, nil
			}

			retries++

			if irpc.ClassifyError(err) == rpc.KindTimeout {
				r.log.Infof("window %s timed out, retrying (attempt %d/%d)", window, retries, r.cfg.MaxRetries)
				TimeoutRetryInc()

				if err := wait(ctx, r.req.Timeout); err != nil {
					return nil, fmt.Errorf("fetch cancelled at block %d: %w", from, err)
				}

				continue
			}

			var providerErr *rpc.ProviderError
			if errors.As(err, &providerErr) && providerErr.Suggested != nil {
				r.log.Infof("provider suggested block range [%d, %d] for window %s",
					providerErr.Suggested.FromBlock, providerErr.Suggested.ToBlock, window)
			}

			r.log.Infof("window %s failed, splitting in half: %v", window, err)

			return r.bisect(ctx, res, window, retries)
		}
	}
}

// bisect fetches both halves of a failed window with fresh accumulators and
// appends them to res, left before right.
func (r *fetchRun) bisect(
	ctx context.Context,
	res *fetcher.FetchResult,
	window fetcher.QueryRange,
	retries int,
) (*fetcher.FetchResult, error) {
	BisectionInc()

	mid := window.FromBlock + (window.ToBlock-window.FromBlock)/2
	rightFrom := mid + 1
	rightCap := window.ToBlock

	var left, right *fetcher.FetchResult

	if r.cfg.ParallelBisection {
		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			var err error
			left, err = r.fetchBranch(gctx, window.FromBlock, &mid, retries, nil)
			return err
		})

		g.Go(func() error {
			var err error
			right, err = r.fetchBranch(gctx, rightFrom, &rightCap, retries, nil)
			return err
		})

		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		var err error

		left, err = r.fetchBranch(ctx, window.FromBlock, &mid, retries, nil)
		if err != nil {
			return nil, err
		}

		right, err = r.fetchBranch(ctx, rightFrom, &rightCap, retries, nil)
		if err != nil {
			return nil, err
		}
	}

	res.Logs = append(res.Logs, left.Logs...)
	res.Logs = append(res.Logs, right.Logs...)
	res.Abandoned = append(res.Abandoned, left.Abandoned...)
	res.Abandoned = append(res.Abandoned, right.Abandoned...)
	res.LastBlockReached = window.ToBlock

	return res, nil
}

// upperBound returns limit when set, otherwise the current chain height.
func (r *fetchRun) upperBound(ctx context.Context, limit *uint64) (uint64, error) {
	if limit != nil {
		return *limit, nil
	}

	height, err := r.client.BlockNumber(ctx)
	if err != nil {
		var connErr *rpc.ConnectionError
		if !errors.As(err, &connErr) {
			err = &rpc.ConnectionError{Err: err}
		}

		return 0, err
	}

	return height, nil
}

// withinMargin reports whether from+margin >= upper without overflowing.
func withinMargin(from, upper, margin uint64) bool {
	return from >= upper || upper-from <= margin
}

// takeRetry reports whether the fetch-wide retry ceiling allows another retry.
func (r *fetchRun) takeRetry() bool {
	if r.cfg.MaxTotalRetries <= 0 {
		return true
	}

	return r.failures.Add(1) <= int64(r.cfg.MaxTotalRetries)
}

func (r *fetchRun) query(from, to uint64) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []ethcommon.Address{r.req.Address},
		Topics:    r.req.Topics,
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
