package ledger

import (
	"context"
	"log/slog"

	tiktok "github.com/RavensCloud/tiktok-harvest"
)

// Collector is the per-key reference source the Aggregator drives.
type Collector interface {
	Collect(ctx context.Context, kind tiktok.EntityKind, key string, target int) []string
}

// Aggregator builds a Ledger by running a Collector over query keys in order.
type Aggregator struct {
	collector Collector
	kind      tiktok.EntityKind
	logger    *slog.Logger
}

// NewAggregator returns an Aggregator for keys of the given kind.
func NewAggregator(c Collector, kind tiktok.EntityKind, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{collector: c, kind: kind, logger: logger}
}

// Build collects perKey references for each key in order. A reference that
// an earlier key already produced is dropped from later keys. Repeated keys
// are collected once. Build stops early only when ctx is done.
func (a *Aggregator) Build(ctx context.Context, keys []string, perKey int) *Ledger {
	l := New()
	for _, key := range keys {
		if ctx.Err() != nil {
			a.logger.Warn("aggregation interrupted", slog.String("next_key", key), slog.Any("error", ctx.Err()))
			break
		}
		if _, done := l.index[key]; done {
			a.logger.Debug("skipping repeated key", slog.String("key", key))
			continue
		}
		refs := a.collector.Collect(ctx, a.kind, key, perKey)
		added := l.Add(key, refs)
		a.logger.Info("ledger updated",
			slog.String("key", key),
			slog.Int("collected", len(refs)),
			slog.Int("added", added),
			slog.Int("dropped_duplicates", len(refs)-added),
			slog.Int("total", l.Len()),
		)
	}
	return l
}
