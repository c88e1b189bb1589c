package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goran-ethernal/logrange/internal/common"
	"github.com/goran-ethernal/logrange/internal/fetcher"
	"github.com/goran-ethernal/logrange/internal/logger"
	"github.com/goran-ethernal/logrange/internal/metrics"
	"github.com/goran-ethernal/logrange/internal/rpc"
	"github.com/goran-ethernal/logrange/internal/store"
	pkgconfig "github.com/goran-ethernal/logrange/pkg/config"
	pkgfetcher "github.com/goran-ethernal/logrange/pkg/fetcher"
	pkgrpc "github.com/goran-ethernal/logrange/pkg/rpc"
	"github.com/goran-ethernal/logrange/pkg/sink"
)

const shutdownTimeout = 5 * time.Second

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(log *logger.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			log.Info("Shutting down gracefully...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// startMetrics starts the metrics server when enabled and returns its stop function.
func startMetrics(ctx context.Context, cfg *pkgconfig.Config, log *logger.Logger) (func(), error) {
	if cfg.Metrics == nil || !cfg.Metrics.Enabled {
		return func() {}, nil
	}

	server := metrics.NewServer(cfg.Metrics, log)
	if err := server.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start metrics server: %w", err)
	}
	log.Infof("Metrics server started on %s%s", server.Addr(), cfg.Metrics.Path)

	return func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Stop(stopCtx); err != nil {
			log.Warnf("Failed to stop metrics server: %v", err)
		}
	}, nil
}

// openStore opens the log store sink when configured. With resume set the request
// starts from the last block reached by the previous run for the same address.
func openStore(
	ctx context.Context,
	cfg *pkgconfig.Config,
	req *pkgfetcher.FetchRequest,
	resume bool,
) (*store.LogStore, error) {
	if cfg.Store == nil {
		if resume {
			return nil, errors.New("--continue requires a store section in the configuration")
		}
		return nil, nil
	}

	logStore, err := store.Open(ctx, *cfg.Store,
		logger.NewComponentLoggerFromConfig(common.ComponentLogStore, cfg.Logging))
	if err != nil {
		return nil, err
	}

	if !resume {
		return logStore, nil
	}

	last, err := logStore.LastRun(ctx, req.Address)
	switch {
	case errors.Is(err, store.ErrNoRun):
	case err != nil:
		_ = logStore.Close()
		return nil, fmt.Errorf("failed to load last run: %w", err)
	case last.LastBlockReached > req.FromBlock:
		req.FromBlock = last.LastBlockReached
	}

	return logStore, nil
}

// newRangeFetcher connects to the node and builds the range fetcher for cfg.
func newRangeFetcher(ctx context.Context, cfg *pkgconfig.Config) (*fetcher.RangeFetcher, pkgrpc.ChainClient, error) {
	client, err := rpc.NewClientFromConfig(ctx, cfg.RPC,
		logger.NewComponentLoggerFromConfig(common.ComponentRPCClient, cfg.Logging))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create RPC client: %w", err)
	}

	rf := fetcher.NewRangeFetcher(
		fetcher.NewRangeFetcherConfig(&cfg.Fetch),
		logger.NewComponentLoggerFromConfig(common.ComponentRangeFetcher, cfg.Logging),
		client,
	)

	return rf, client, nil
}

// buildRequest turns the fetch configuration into a fetch request.
func buildRequest(cfg *pkgconfig.FetchConfig, topics pkgfetcher.TopicFilter) pkgfetcher.FetchRequest {
	return pkgfetcher.FetchRequest{
		Address:   cfg.ContractAddress(),
		Topics:    topics,
		FromBlock: cfg.FromBlock,
		ToBlock:   cfg.ToBlock,
		PageLimit: cfg.PageLimit,
		Timeout:   cfg.Timeout.Duration,
	}
}

// execute runs a single fetch, or fetches until the range is covered when resume is
// set, and hands the result to the sink.
func execute(
	ctx context.Context,
	f pkgfetcher.RangeFetcher,
	req pkgfetcher.FetchRequest,
	resume bool,
	s sink.Sink,
	log *logger.Logger,
) (*pkgfetcher.FetchResult, error) {
	var (
		res *pkgfetcher.FetchResult
		err error
	)

	if resume {
		res, err = pkgfetcher.FetchUntilComplete(ctx, f, req)
	} else {
		res, err = f.Fetch(ctx, req, nil)
	}
	if err != nil {
		return nil, err
	}

	log.Infof("Fetched %d logs for %s, last block reached %d", len(res.Logs), req.Address.Hex(), res.LastBlockReached)
	for _, w := range res.Abandoned {
		log.Warnf("Window %s was abandoned, its logs are missing", w)
	}

	if err := s.Consume(ctx, req, res); err != nil {
		return nil, fmt.Errorf("failed to consume fetch result: %w", err)
	}

	return res, nil
}

// runWithSinks runs the fetch for req against the node in cfg and feeds every sink.
// Sinks are closed once the fetch is done, also on failure.
func runWithSinks(
	ctx context.Context,
	command string,
	cfg *pkgconfig.Config,
	req pkgfetcher.FetchRequest,
	sinks sink.Multi,
	log *logger.Logger,
) (err error) {
	start := time.Now()
	defer func() {
		metrics.RunObserve(command, err, time.Since(start))
		if closeErr := sinks.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close sinks: %w", closeErr))
		}
	}()

	stopMetrics, err := startMetrics(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer stopMetrics()

	rf, client, err := newRangeFetcher(ctx, cfg)
	if err != nil {
		metrics.ComponentHealthSet(common.ComponentRPCClient, false)
		return err
	}
	defer client.Close()
	metrics.ComponentHealthSet(common.ComponentRPCClient, true)

	if _, err := execute(ctx, rf, req, cfg.Fetch.Resume, sinks, log); err != nil {
		metrics.ErrorsInc(common.ComponentCLI, "fatal")
		return err
	}

	return nil
}
