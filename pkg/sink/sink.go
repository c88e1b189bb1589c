package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/goran-ethernal/logrange/pkg/fetcher"
)

// Sink consumes the outcome of a fetch.
type Sink interface {
	// Consume processes the logs of a finished fetch together with the request that produced them.
	Consume(ctx context.Context, req fetcher.FetchRequest, res *fetcher.FetchResult) error

	// Close flushes pending output and releases resources.
	Close() error
}

// Multi fans a result out to several sinks in order.
type Multi []Sink

// Consume passes the result to every sink and stops at the first failure.
func (m Multi) Consume(ctx context.Context, req fetcher.FetchRequest, res *fetcher.FetchResult) error {
	for i, s := range m {
		if err := s.Consume(ctx, req, res); err != nil {
			return fmt.Errorf("sink %d: %w", i, err)
		}
	}

	return nil
}

// Close closes every sink, even when some of them fail.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
