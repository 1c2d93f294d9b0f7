// Package report holds the experiment.Sink implementations: console table,
// text log files, results store and Prometheus metrics.
package report

import (
	"context"
	"errors"

	"rltcp/internal/experiment"
)

// Multi fans every call out to all sinks. Close closes every sink and joins
// their errors.
type Multi []experiment.Sink

func (m Multi) Begin(ctx context.Context, run experiment.RunInfo) error {
	for _, s := range m {
		if err := s.Begin(ctx, run); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) Record(ctx context.Context, r experiment.CycleResult) error {
	for _, s := range m {
		if err := s.Record(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
