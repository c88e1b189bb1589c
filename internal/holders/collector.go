package holders

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/logrange/internal/logger"
	"github.com/goran-ethernal/logrange/pkg/config"
	"github.com/goran-ethernal/logrange/pkg/fetcher"
	"github.com/goran-ethernal/logrange/pkg/sink"
)

// Compile-time check to ensure Collector implements sink.Sink interface.
var _ sink.Sink = (*Collector)(nil)

const fieldFrom = "from"

// Output is the JSON document written by the collector.
type Output struct {
	Holders []string `json:"holders"`
}

// Collector extracts holder addresses from transfer logs and writes them to a JSON file on Close.
type Collector struct {
	cfg       config.HoldersConfig
	signature common.Hash
	log       *logger.Logger

	mu       sync.Mutex
	holders  *HolderSet
	consumed bool
	closed   bool
}

// NewCollector creates a collector. Defaults are expected to be applied to cfg.
func NewCollector(cfg config.HoldersConfig, log *logger.Logger) *Collector {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Collector{
		cfg:       cfg,
		signature: EventSignature(cfg.Event),
		log:       log,
		holders:   NewHolderSet(cfg.Limit),
	}
}

// Consume decodes every transfer in the result and records the configured address field.
// Logs that are not transfers are skipped.
func (c *Collector) Consume(_ context.Context, _ fetcher.FetchRequest, res *fetcher.FetchResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("holders collector is closed")
	}
	c.consumed = true

	for _, l := range res.Logs {
		transfer, err := parseTransfer(l, c.signature)
		if err != nil {
			TransferDecodedInc("skipped")
			c.log.Debugf("skipping log %d in block %d: %v", l.Index, l.BlockNumber, err)
			continue
		}

		TransferDecodedInc("decoded")

		holder := transfer.To
		if c.cfg.Field == fieldFrom {
			holder = transfer.From
		}

		c.holders.Add(holder)
	}

	HoldersCollectedSet(c.holders.Len())
	c.log.Infof("collected %d holders from %d logs", c.holders.Len(), len(res.Logs))

	return nil
}

// Holders returns the collected addresses in the order they were first seen.
func (c *Collector) Holders() []common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.holders.List()
}

// Close writes the holders file if a fetch result was consumed, so a failed
// run leaves no partial output behind. Subsequent calls are no-ops.
func (c *Collector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if !c.consumed {
		c.log.Warn("no fetch result consumed, holders file not written")
		return nil
	}

	out := Output{Holders: make([]string, 0, c.holders.Len())}
	for _, addr := range c.holders.List() {
		out.Holders = append(out.Holders, addr.Hex())
	}

	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to encode holders: %w", err)
	}

	if err := os.WriteFile(c.cfg.Output, data, 0o644); err != nil { //nolint:gosec
		return fmt.Errorf("failed to write holders to %s: %w", c.cfg.Output, err)
	}

	c.log.Infof("wrote %d holders to %s", len(out.Holders), c.cfg.Output)

	return nil
}
