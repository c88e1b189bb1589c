package fetcher

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/goran-ethernal/logrange/internal/logger"
	"github.com/goran-ethernal/logrange/internal/rpc/mocks"
	"github.com/goran-ethernal/logrange/pkg/config"
	"github.com/goran-ethernal/logrange/pkg/fetcher"
	"github.com/goran-ethernal/logrange/pkg/rpc"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	testAddress = common.HexToAddress("0xA700b4eB416Be35b2911fd5Dee80678ff64fF6C9")
	testTopic   = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")
)

func errTimeout() error {
	return &rpc.ProviderError{Kind: rpc.KindTimeout, Method: "eth_getLogs", Err: errors.New("request timed out")}
}

func errRejected() error {
	return &rpc.ProviderError{Kind: rpc.KindRejected, Method: "eth_getLogs", Err: errors.New("block range too large")}
}

func errOther() error {
	return &rpc.ProviderError{Kind: rpc.KindOther, Method: "eth_getLogs", Err: errors.New("internal error")}
}

func ptr(v uint64) *uint64 { return &v }

func logsAt(blocks ...uint64) []types.Log {
	logs := make([]types.Log, 0, len(blocks))
	for i, b := range blocks {
		logs = append(logs, types.Log{Address: testAddress, BlockNumber: b, Index: uint(i)})
	}
	return logs
}

func blockNumbers(logs []types.Log) []uint64 {
	blocks := make([]uint64, 0, len(logs))
	for _, l := range logs {
		blocks = append(blocks, l.BlockNumber)
	}
	return blocks
}

func matchWindow(from, to uint64) any {
	return mock.MatchedBy(func(q ethereum.FilterQuery) bool {
		return q.FromBlock.Uint64() == from && q.ToBlock.Uint64() == to
	})
}

func testRequest(from uint64, to *uint64, pageLimit uint64) fetcher.FetchRequest {
	return fetcher.FetchRequest{
		Address:   testAddress,
		Topics:    fetcher.TopicFilter{{testTopic}},
		FromBlock: from,
		ToBlock:   to,
		PageLimit: pageLimit,
		Timeout:   time.Millisecond,
	}
}

func newTestFetcher(t *testing.T, client rpc.ChainClient, margin uint64) *RangeFetcher {
	t.Helper()

	return NewRangeFetcher(RangeFetcherConfig{
		SafetyMargin: margin,
		MaxRetries:   config.DefaultMaxRetries,
	}, logger.NewNopLogger(), client)
}

type window struct {
	from, to uint64
}

// fakeNode serves logs for a fixed set of blocks and fails windows as instructed.
type fakeNode struct {
	mu       sync.Mutex
	blocks   []uint64
	fail     func(w window, attempt int) error
	calls    []window
	attempts map[window]int
}

func newFakeNode(fail func(w window, attempt int) error, blocks ...uint64) *fakeNode {
	return &fakeNode{
		blocks:   blocks,
		fail:     fail,
		attempts: make(map[window]int),
	}
}

func (n *fakeNode) GetLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	w := window{from: q.FromBlock.Uint64(), to: q.ToBlock.Uint64()}

	n.mu.Lock()
	attempt := n.attempts[w]
	n.attempts[w]++
	n.calls = append(n.calls, w)
	n.mu.Unlock()

	if n.fail != nil {
		if err := n.fail(w, attempt); err != nil {
			return nil, err
		}
	}

	var blocks []uint64
	for _, b := range n.blocks {
		if b >= w.from && b <= w.to {
			blocks = append(blocks, b)
		}
	}

	return logsAt(blocks...), nil
}

func (n *fakeNode) client(t *testing.T) *mocks.ChainClient {
	t.Helper()

	client := mocks.NewChainClient(t)
	client.EXPECT().GetLogs(mock.Anything, mock.Anything).RunAndReturn(n.GetLogs).Maybe()

	return client
}

func (n *fakeNode) callCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()

	return len(n.calls)
}

func TestNewRangeFetcherConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := NewRangeFetcherConfig(&config.FetchConfig{})
		require.Equal(t, config.DefaultSafetyMargin, cfg.SafetyMargin)
		require.Equal(t, config.DefaultMaxRetries, cfg.MaxRetries)
		require.False(t, cfg.ParallelBisection)
		require.Zero(t, cfg.MaxTotalRetries)
	})

	t.Run("explicit values", func(t *testing.T) {
		cfg := NewRangeFetcherConfig(&config.FetchConfig{
			SafetyMargin:      ptr(0),
			MaxRetries:        5,
			ParallelBisection: true,
			MaxTotalRetries:   20,
		})
		require.Zero(t, cfg.SafetyMargin)
		require.Equal(t, 5, cfg.MaxRetries)
		require.True(t, cfg.ParallelBisection)
		require.Equal(t, 20, cfg.MaxTotalRetries)
	})
}

func TestRangeFetcher_WithinSafetyMargin(t *testing.T) {
	client := mocks.NewChainClient(t)
	rf := newTestFetcher(t, client, config.DefaultSafetyMargin)

	accumulated := logsAt(1, 2, 3)

	res, err := rf.Fetch(context.Background(), testRequest(100, ptr(110), 5), accumulated)
	require.NoError(t, err)
	require.Equal(t, accumulated, res.Logs)
	require.Equal(t, uint64(100), res.LastBlockReached)
	require.Empty(t, res.Abandoned)

	// inverted range terminates the same way
	res, err = rf.Fetch(context.Background(), testRequest(200, ptr(150), 5), nil)
	require.NoError(t, err)
	require.Empty(t, res.Logs)
	require.Equal(t, uint64(200), res.LastBlockReached)
}

func TestRangeFetcher_PagedWindows(t *testing.T) {
	client := mocks.NewChainClient(t)
	rf := newTestFetcher(t, client, 5)

	first := logsAt(100, 102, 104, 106, 108)
	second := logsAt(112, 115, 119)

	client.EXPECT().GetLogs(mock.Anything, matchWindow(100, 110)).Return(first, nil).Once()
	client.EXPECT().GetLogs(mock.Anything, matchWindow(110, 120)).Return(second, nil).Once()

	res, err := rf.Fetch(context.Background(), testRequest(100, ptr(120), 10), nil)
	require.NoError(t, err)
	require.Len(t, res.Logs, 8)
	require.Equal(t, append(first, second...), res.Logs)
	require.Equal(t, uint64(120), res.LastBlockReached)
	require.Empty(t, res.Abandoned)
}

func TestRangeFetcher_AppendsToAccumulator(t *testing.T) {
	client := mocks.NewChainClient(t)
	rf := newTestFetcher(t, client, config.DefaultSafetyMargin)

	accumulated := logsAt(1, 2)
	returned := logsAt(500, 300, 700)

	client.EXPECT().GetLogs(mock.Anything, mock.Anything).
		Run(func(_ context.Context, q ethereum.FilterQuery) {
			require.Equal(t, []common.Address{testAddress}, q.Addresses)
			require.Equal(t, [][]common.Hash{{testTopic}}, q.Topics)
		}).
		Return(returned, nil).Once()

	res, err := rf.Fetch(context.Background(), testRequest(0, ptr(1000), 0), accumulated)
	require.NoError(t, err)
	require.Equal(t, append(logsAt(1, 2), returned...), res.Logs)
	require.Equal(t, uint64(1000), res.LastBlockReached)
}

func TestRangeFetcher_KeepsCallerAccumulator(t *testing.T) {
	client := mocks.NewChainClient(t)
	rf := newTestFetcher(t, client, 0)

	client.EXPECT().GetLogs(mock.Anything, matchWindow(0, 100)).Return(logsAt(50), nil).Once()
	client.EXPECT().GetLogs(mock.Anything, matchWindow(100, 200)).Return(logsAt(150), nil).Once()

	// spare capacity must not be shared between results
	prefix := make([]types.Log, 1, 2)
	prefix[0] = logsAt(1)[0]

	first, err := rf.Fetch(context.Background(), testRequest(0, ptr(100), 0), prefix)
	require.NoError(t, err)

	second, err := rf.Fetch(context.Background(), testRequest(100, ptr(200), 0), prefix)
	require.NoError(t, err)

	require.Equal(t, []uint64{1, 50}, blockNumbers(first.Logs))
	require.Equal(t, []uint64{1, 150}, blockNumbers(second.Logs))
	require.Len(t, prefix, 1)
	require.Equal(t, uint64(0), prefix[:2][1].BlockNumber)
}

func TestRangeFetcher_PageLimitLargerThanRange(t *testing.T) {
	client := mocks.NewChainClient(t)
	rf := newTestFetcher(t, client, 5)

	client.EXPECT().GetLogs(mock.Anything, matchWindow(100, 1000)).Return(logsAt(500), nil).Once()

	res, err := rf.Fetch(context.Background(), testRequest(100, ptr(1000), math.MaxUint64), nil)
	require.NoError(t, err)
	require.Equal(t, []uint64{500}, blockNumbers(res.Logs))
	require.Equal(t, uint64(1000), res.LastBlockReached)
}

func TestRangeFetcher_HugeSafetyMargin(t *testing.T) {
	client := mocks.NewChainClient(t)
	rf := newTestFetcher(t, client, math.MaxUint64)

	res, err := rf.Fetch(context.Background(), testRequest(100, ptr(1000), 10), nil)
	require.NoError(t, err)
	require.Empty(t, res.Logs)
	require.Equal(t, uint64(100), res.LastBlockReached)
}

func TestWithinMargin(t *testing.T) {
	tests := []struct {
		name                string
		from, upper, margin uint64
		want                bool
	}{
		{name: "far below", from: 100, upper: 1000, margin: 10, want: false},
		{name: "at margin", from: 990, upper: 1000, margin: 10, want: true},
		{name: "past upper", from: 1001, upper: 1000, margin: 0, want: true},
		{name: "max margin", from: 1, upper: math.MaxUint64, margin: math.MaxUint64, want: true},
		{name: "max from", from: math.MaxUint64, upper: math.MaxUint64, margin: 1, want: true},
		{name: "zero margin below", from: 0, upper: math.MaxUint64, margin: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, withinMargin(tt.from, tt.upper, tt.margin))
		})
	}
}

func TestRangeFetcher_BisectsRejectedWindow(t *testing.T) {
	client := mocks.NewChainClient(t)
	rf := newTestFetcher(t, client, config.DefaultSafetyMargin)

	client.EXPECT().GetLogs(mock.Anything, matchWindow(0, 1000)).Return(nil, errRejected()).Once()
	client.EXPECT().GetLogs(mock.Anything, matchWindow(0, 500)).Return(logsAt(10, 400), nil).Once()
	client.EXPECT().GetLogs(mock.Anything, matchWindow(501, 1000)).Return(logsAt(900), nil).Once()

	res, err := rf.Fetch(context.Background(), testRequest(0, ptr(1000), 0), nil)
	require.NoError(t, err)
	require.Equal(t, []uint64{10, 400, 900}, blockNumbers(res.Logs))
	require.Equal(t, uint64(1000), res.LastBlockReached)
	require.Empty(t, res.Abandoned)
}

func TestRangeFetcher_BisectionMatchesSeparateHalves(t *testing.T) {
	blocks := []uint64{3, 77, 250, 499, 500, 501, 640, 999}

	failing := newFakeNode(func(w window, _ int) error {
		if w == (window{0, 1000}) {
			return errOther()
		}
		return nil
	}, blocks...)
	res, err := newTestFetcher(t, failing.client(t), config.DefaultSafetyMargin).
		Fetch(context.Background(), testRequest(0, ptr(1000), 0), nil)
	require.NoError(t, err)

	healthy := newFakeNode(nil, blocks...)
	rf := newTestFetcher(t, healthy.client(t), config.DefaultSafetyMargin)

	left, err := rf.Fetch(context.Background(), testRequest(0, ptr(500), 0), nil)
	require.NoError(t, err)
	right, err := rf.Fetch(context.Background(), testRequest(501, ptr(1000), 0), nil)
	require.NoError(t, err)

	require.Equal(t, append(left.Logs, right.Logs...), res.Logs)
	require.Equal(t, uint64(1000), res.LastBlockReached)
}

func TestRangeFetcher_TimeoutRetriesSameWindow(t *testing.T) {
	client := mocks.NewChainClient(t)
	rf := newTestFetcher(t, client, 0)

	client.EXPECT().GetLogs(mock.Anything, matchWindow(0, 100)).Return(nil, errTimeout()).Times(2)
	client.EXPECT().GetLogs(mock.Anything, matchWindow(0, 100)).Return(logsAt(5, 50), nil).Once()

	// the second window only succeeds because the retry counter was reset after the first one
	client.EXPECT().GetLogs(mock.Anything, matchWindow(100, 200)).Return(nil, errTimeout()).Times(3)
	client.EXPECT().GetLogs(mock.Anything, matchWindow(100, 200)).Return(logsAt(150), nil).Once()

	res, err := rf.Fetch(context.Background(), testRequest(0, ptr(200), 100), nil)
	require.NoError(t, err)
	require.Equal(t, []uint64{5, 50, 150}, blockNumbers(res.Logs))
	require.Equal(t, uint64(200), res.LastBlockReached)
	require.Empty(t, res.Abandoned)
}

func TestRangeFetcher_TimeoutWaitsBeforeRetry(t *testing.T) {
	client := mocks.NewChainClient(t)
	rf := newTestFetcher(t, client, 0)

	client.EXPECT().GetLogs(mock.Anything, matchWindow(0, 100)).Return(nil, errTimeout()).Once()
	client.EXPECT().GetLogs(mock.Anything, matchWindow(0, 100)).Return(nil, nil).Once()

	req := testRequest(0, ptr(100), 0)
	req.Timeout = 50 * time.Millisecond

	start := time.Now()
	res, err := rf.Fetch(context.Background(), req, nil)
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), req.Timeout)
	require.Equal(t, uint64(100), res.LastBlockReached)
}

func TestRangeFetcher_RetryExhaustion(t *testing.T) {
	t.Run("timeouts abandon the window", func(t *testing.T) {
		node := newFakeNode(func(w window, _ int) error {
			if w.from == 10 {
				return errTimeout()
			}
			return nil
		}, 1, 5, 15, 25)
		rf := newTestFetcher(t, node.client(t), 0)

		res, err := rf.Fetch(context.Background(), testRequest(0, ptr(30), 10), logsAt(0))
		require.NoError(t, err)
		require.Equal(t, []uint64{0, 1, 5}, blockNumbers(res.Logs))
		require.Equal(t, uint64(10), res.LastBlockReached)
		require.Equal(t, []fetcher.QueryRange{{FromBlock: 10, ToBlock: 20}}, res.Abandoned)
		// first window plus the initial attempt and three retries of the second
		require.Equal(t, 1+1+config.DefaultMaxRetries, node.callCount())
	})

	t.Run("caller supplied retries count against the budget", func(t *testing.T) {
		node := newFakeNode(func(window, int) error { return errTimeout() })
		rf := newTestFetcher(t, node.client(t), 0)

		req := testRequest(0, ptr(100), 0)
		req.Retries = config.DefaultMaxRetries

		res, err := rf.Fetch(context.Background(), req, nil)
		require.NoError(t, err)
		require.Equal(t, uint64(0), res.LastBlockReached)
		require.Equal(t, 1, node.callCount())
	})

	t.Run("persistent errors bisect until the budget runs out", func(t *testing.T) {
		node := newFakeNode(func(window, int) error { return errOther() }, 100, 600)
		rf := newTestFetcher(t, node.client(t), config.DefaultSafetyMargin)

		res, err := rf.Fetch(context.Background(), testRequest(0, ptr(1000), 0), logsAt(1))
		require.NoError(t, err)
		require.Equal(t, []uint64{1}, blockNumbers(res.Logs))
		require.Equal(t, uint64(1000), res.LastBlockReached)
		require.Equal(t, []fetcher.QueryRange{
			{FromBlock: 0, ToBlock: 125},
			{FromBlock: 126, ToBlock: 250},
			{FromBlock: 251, ToBlock: 375},
			{FromBlock: 376, ToBlock: 500},
			{FromBlock: 501, ToBlock: 625},
			{FromBlock: 626, ToBlock: 750},
			{FromBlock: 751, ToBlock: 875},
			{FromBlock: 876, ToBlock: 1000},
		}, res.Abandoned)
		require.Equal(t, 1+2+4+8, node.callCount())
	})
}

func TestRangeFetcher_MaxTotalRetries(t *testing.T) {
	node := newFakeNode(func(window, int) error { return errOther() })

	rf := NewRangeFetcher(RangeFetcherConfig{
		SafetyMargin:    config.DefaultSafetyMargin,
		MaxRetries:      config.DefaultMaxRetries,
		MaxTotalRetries: 2,
	}, logger.NewNopLogger(), node.client(t))

	res, err := rf.Fetch(context.Background(), testRequest(0, ptr(1000), 0), nil)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), res.LastBlockReached)
	require.Equal(t, []fetcher.QueryRange{
		{FromBlock: 0, ToBlock: 250},
		{FromBlock: 251, ToBlock: 500},
		{FromBlock: 501, ToBlock: 1000},
	}, res.Abandoned)
	require.Equal(t, 5, node.callCount())
}

func TestRangeFetcher_ParallelBisectionPreservesOrder(t *testing.T) {
	var blocks []uint64
	for b := uint64(0); b <= 2000; b += 7 {
		blocks = append(blocks, b)
	}

	// windows wider than 300 blocks are refused, and one narrow window never succeeds
	fail := func(w window, _ int) error {
		if w.to-w.from > 300 {
			return errRejected()
		}
		if w.from == 1001 {
			return errTimeout()
		}
		return nil
	}

	run := func(parallel bool) *fetcher.FetchResult {
		node := newFakeNode(fail, blocks...)
		rf := NewRangeFetcher(RangeFetcherConfig{
			SafetyMargin:      config.DefaultSafetyMargin,
			MaxRetries:        8,
			ParallelBisection: parallel,
		}, logger.NewNopLogger(), node.client(t))

		res, err := rf.Fetch(context.Background(), testRequest(0, ptr(2000), 0), logsAt(0))
		require.NoError(t, err)
		return res
	}

	sequential := run(false)
	parallel := run(true)

	require.Equal(t, blockNumbers(sequential.Logs), blockNumbers(parallel.Logs))
	require.Equal(t, sequential.Abandoned, parallel.Abandoned)
	require.Equal(t, sequential.LastBlockReached, parallel.LastBlockReached)
	require.NotEmpty(t, parallel.Abandoned)

	got := blockNumbers(parallel.Logs)
	for i := 1; i < len(got); i++ {
		require.LessOrEqual(t, got[i-1], got[i], "logs out of order at %d", i)
	}
}

func TestRangeFetcher_FollowsChainHead(t *testing.T) {
	client := mocks.NewChainClient(t)
	rf := newTestFetcher(t, client, config.DefaultSafetyMargin)

	client.EXPECT().BlockNumber(mock.Anything).Return(uint64(50), nil).Times(3)
	client.EXPECT().GetLogs(mock.Anything, matchWindow(0, 20)).Return(logsAt(3), nil).Once()
	client.EXPECT().GetLogs(mock.Anything, matchWindow(20, 40)).Return(logsAt(33), nil).Once()

	res, err := rf.Fetch(context.Background(), testRequest(0, nil, 20), nil)
	require.NoError(t, err)
	require.Equal(t, []uint64{3, 33}, blockNumbers(res.Logs))
	require.Equal(t, uint64(40), res.LastBlockReached)
}

func TestRangeFetcher_ConnectionErrorIsFatal(t *testing.T) {
	client := mocks.NewChainClient(t)
	rf := newTestFetcher(t, client, config.DefaultSafetyMargin)

	t.Run("connection error passes through", func(t *testing.T) {
		cause := &rpc.ConnectionError{Err: errors.New("dial tcp: connection refused")}
		client.EXPECT().BlockNumber(mock.Anything).Return(uint64(0), cause).Once()

		_, err := rf.Fetch(context.Background(), testRequest(0, nil, 10), nil)
		require.ErrorIs(t, err, cause)
	})

	t.Run("plain error is wrapped", func(t *testing.T) {
		client.EXPECT().BlockNumber(mock.Anything).Return(uint64(0), errors.New("boom")).Once()

		_, err := rf.Fetch(context.Background(), testRequest(0, nil, 10), nil)

		var connErr *rpc.ConnectionError
		require.ErrorAs(t, err, &connErr)
	})
}

func TestRangeFetcher_ContextCancelled(t *testing.T) {
	t.Run("before start", func(t *testing.T) {
		rf := newTestFetcher(t, mocks.NewChainClient(t), 0)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := rf.Fetch(ctx, testRequest(0, ptr(100), 10), nil)
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("during timeout wait", func(t *testing.T) {
		client := mocks.NewChainClient(t)
		rf := newTestFetcher(t, client, 0)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		client.EXPECT().GetLogs(mock.Anything, mock.Anything).Return(nil, errTimeout()).Once()

		req := testRequest(0, ptr(100), 0)
		req.Timeout = time.Hour

		time.AfterFunc(20*time.Millisecond, cancel)

		_, err := rf.Fetch(ctx, req, nil)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestRangeFetcher_InvalidRequest(t *testing.T) {
	rf := newTestFetcher(t, mocks.NewChainClient(t), 0)

	req := testRequest(0, ptr(100), 10)
	req.Topics = fetcher.TopicFilter{{}, {}, {}, {}, {}}

	_, err := rf.Fetch(context.Background(), req, nil)
	require.ErrorIs(t, err, fetcher.ErrTooManyTopics)
}

func TestFetchUntilComplete_ResumesAfterAbandonedWindow(t *testing.T) {
	node := newFakeNode(func(w window, attempt int) error {
		if w == (window{10, 20}) && attempt <= config.DefaultMaxRetries {
			return errTimeout()
		}
		return nil
	}, 4, 14, 24)
	rf := newTestFetcher(t, node.client(t), 0)

	res, err := fetcher.FetchUntilComplete(context.Background(), rf, testRequest(0, ptr(30), 10))
	require.NoError(t, err)
	require.Equal(t, []uint64{4, 14, 24}, blockNumbers(res.Logs))
	require.Equal(t, uint64(30), res.LastBlockReached)
	require.Equal(t, []fetcher.QueryRange{{FromBlock: 10, ToBlock: 20}}, res.Abandoned)
}
