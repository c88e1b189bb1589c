package main

import (
	"fmt"

	"github.com/goran-ethernal/logrange/internal/common"
	"github.com/goran-ethernal/logrange/internal/logger"
	pkgfetcher "github.com/goran-ethernal/logrange/pkg/fetcher"
	"github.com/goran-ethernal/logrange/pkg/sink"
	"github.com/spf13/cobra"
)

var fetchOpts fetchFlags

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch the configured logs and feed them to the configured sinks",
	Example: `  # Fetch using the configured range
  logrange fetch -c config.yaml

  # Override the range and window size
  logrange fetch -c config.yaml --from 16000000 --to 16100000 --page-limit 2000

  # Continue from where the previous stored run stopped
  logrange fetch -c config.yaml --continue --resume`,
	RunE: runFetch,
}

func init() {
	fetchOpts.register(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	fmt.Fprintf(cmd.OutOrStdout(), banner, version)

	cfg, err := loadConfig(cmd, &fetchOpts, nil)
	if err != nil {
		return err
	}

	log := logger.NewComponentLoggerFromConfig(common.ComponentCLI, cfg.Logging)

	ctx, cancel := signalContext(log)
	defer cancel()

	topics, err := cfg.Fetch.TopicFilter()
	if err != nil {
		return err
	}
	req := buildRequest(&cfg.Fetch, pkgfetcher.TopicFilter(topics))

	var sinks sink.Multi

	logStore, err := openStore(ctx, cfg, &req, fetchOpts.cont)
	if err != nil {
		return err
	}
	if logStore != nil {
		sinks = append(sinks, logStore)
	} else {
		log.Warn("No store configured, fetched logs are only counted")
	}

	log.Infof("Fetching logs of %s from block %d", req.Address.Hex(), req.FromBlock)

	return runWithSinks(ctx, "fetch", cfg, req, sinks, log)
}
