package main

import (
	"fmt"

	"github.com/goran-ethernal/logrange/internal/config"
	pkgconfig "github.com/goran-ethernal/logrange/pkg/config"
	"github.com/spf13/cobra"
)

const (
	flagFrom      = "from"
	flagTo        = "to"
	flagPageLimit = "page-limit"
	flagResume    = "resume"
	flagContinue  = "continue"
)

// fetchFlags are the overrides shared by every command that runs a fetch.
type fetchFlags struct {
	from      uint64
	to        uint64
	pageLimit uint64
	resume    bool
	cont      bool
}

func (f *fetchFlags) register(cmd *cobra.Command) {
	cmd.Flags().Uint64Var(&f.from, flagFrom, 0, "first block to fetch (overrides fetch.from_block)")
	cmd.Flags().Uint64Var(&f.to, flagTo, 0, "last block to fetch (overrides fetch.to_block)")
	cmd.Flags().Uint64Var(&f.pageLimit, flagPageLimit, 0, "blocks per eth_getLogs window (overrides fetch.page_limit)")
	cmd.Flags().BoolVar(&f.resume, flagResume, false, "keep fetching from the last reached block until the range is covered")
	cmd.Flags().BoolVar(&f.cont, flagContinue, false,
		"start from the last block reached by the previous run recorded in the store")
}

// apply copies the flags that were explicitly set onto the fetch configuration.
func (f *fetchFlags) apply(cmd *cobra.Command, cfg *pkgconfig.FetchConfig) {
	flags := cmd.Flags()

	if flags.Changed(flagFrom) {
		cfg.FromBlock = f.from
	}
	if flags.Changed(flagTo) {
		to := f.to
		cfg.ToBlock = &to
	}
	if flags.Changed(flagPageLimit) {
		cfg.PageLimit = f.pageLimit
	}
	if flags.Changed(flagResume) {
		cfg.Resume = f.resume
	}
}

// loadConfig loads the configuration file and applies command line overrides.
func loadConfig(cmd *cobra.Command, flags *fetchFlags, override func(cfg *pkgconfig.Config)) (*pkgconfig.Config, error) {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags.apply(cmd, &cfg.Fetch)
	if override != nil {
		override(cfg)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
