package main

import (
	"fmt"

	"github.com/goran-ethernal/logrange/internal/common"
	"github.com/goran-ethernal/logrange/internal/holders"
	"github.com/goran-ethernal/logrange/internal/logger"
	pkgconfig "github.com/goran-ethernal/logrange/pkg/config"
	"github.com/goran-ethernal/logrange/pkg/sink"
	"github.com/spf13/cobra"
)

var (
	holdersOpts fetchFlags

	holdersOutput    string
	holdersLimit     int
	holdersField     string
	holdersMintsOnly bool
)

var holdersCmd = &cobra.Command{
	Use:   "holders",
	Short: "Collect token holder addresses from Transfer events",
	Long: `holders fetches the Transfer events of the configured token and writes the
unique recipient (or sender) addresses, in the order they were first seen, to a
JSON file of the form {"holders": [...]}. The configured topics are replaced by
the transfer event filter.`,
	Example: `  # First 100 minted-to addresses
  logrange holders -c config.yaml --mints-only --limit 100 --output holders.json`,
	RunE: runHolders,
}

func init() {
	holdersOpts.register(holdersCmd)
	holdersCmd.Flags().StringVarP(&holdersOutput, "output", "o", "", "holders output file (overrides holders.output)")
	holdersCmd.Flags().IntVar(&holdersLimit, "limit", 0, "maximum number of holders (overrides holders.limit)")
	holdersCmd.Flags().StringVar(&holdersField, "field", "", "address collected: to or from (overrides holders.field)")
	holdersCmd.Flags().BoolVar(&holdersMintsOnly, "mints-only", false,
		"only transfers from the zero address (overrides holders.mints_only)")
}

// applyHoldersFlags makes sure the holders section exists and applies the flags that were set.
func applyHoldersFlags(cmd *cobra.Command) func(cfg *pkgconfig.Config) {
	return func(cfg *pkgconfig.Config) {
		if cfg.Holders == nil {
			cfg.Holders = &pkgconfig.HoldersConfig{}
		}

		flags := cmd.Flags()
		if flags.Changed("output") {
			cfg.Holders.Output = holdersOutput
		}
		if flags.Changed("limit") {
			cfg.Holders.Limit = holdersLimit
		}
		if flags.Changed("field") {
			cfg.Holders.Field = holdersField
		}
		if flags.Changed("mints-only") {
			cfg.Holders.MintsOnly = holdersMintsOnly
		}
	}
}

func runHolders(cmd *cobra.Command, args []string) error {
	fmt.Fprintf(cmd.OutOrStdout(), banner, version)

	cfg, err := loadConfig(cmd, &holdersOpts, applyHoldersFlags(cmd))
	if err != nil {
		return err
	}

	log := logger.NewComponentLoggerFromConfig(common.ComponentCLI, cfg.Logging)

	ctx, cancel := signalContext(log)
	defer cancel()

	req := buildRequest(&cfg.Fetch, holders.TransferTopics(cfg.Holders.Event, cfg.Holders.MintsOnly))

	collector := holders.NewCollector(*cfg.Holders,
		logger.NewComponentLoggerFromConfig(common.ComponentHolders, cfg.Logging))
	sinks := sink.Multi{collector}

	logStore, err := openStore(ctx, cfg, &req, holdersOpts.cont)
	if err != nil {
		return err
	}
	if logStore != nil {
		sinks = append(sinks, logStore)
	}

	log.Infof("Collecting holders of %s from block %d into %s", req.Address.Hex(), req.FromBlock, cfg.Holders.Output)

	return runWithSinks(ctx, "holders", cfg, req, sinks, log)
}
