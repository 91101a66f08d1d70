package filehash

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/yairfalse/tapio-enrich/internal/enrich/cache"
)

// registerCacheMetrics exports the shard caches' counters as observable counters
func (o *Observer) registerCacheMetrics(meter metric.Meter) {
	hits, err := meter.Int64ObservableCounter(
		fmt.Sprintf("%s_cache_hits_total", o.Name()),
		metric.WithDescription("Digest lookups served from the cache"),
	)
	if err != nil {
		o.logger.Warn("Failed to create cache hits counter", zap.Error(err))
		return
	}
	misses, err := meter.Int64ObservableCounter(
		fmt.Sprintf("%s_cache_misses_total", o.Name()),
		metric.WithDescription("Digest lookups that hashed the file"),
	)
	if err != nil {
		o.logger.Warn("Failed to create cache misses counter", zap.Error(err))
		return
	}
	evictions, err := meter.Int64ObservableCounter(
		fmt.Sprintf("%s_cache_evictions_total", o.Name()),
		metric.WithDescription("Digest records evicted from the cache"),
	)
	if err != nil {
		o.logger.Warn("Failed to create cache evictions counter", zap.Error(err))
		return
	}
	rejected, err := meter.Int64ObservableCounter(
		fmt.Sprintf("%s_cache_rejected_total", o.Name()),
		metric.WithDescription("Lookups refused because the file changed after the kernel event"),
	)
	if err != nil {
		o.logger.Warn("Failed to create cache rejected counter", zap.Error(err))
		return
	}

	_, err = meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		stats := o.CacheStats()
		obs.ObserveInt64(hits, int64(stats.Hits))
		obs.ObserveInt64(misses, int64(stats.Misses))
		obs.ObserveInt64(evictions, int64(stats.Evictions))
		obs.ObserveInt64(rejected, int64(stats.Rejected))
		return nil
	}, hits, misses, evictions, rejected)
	if err != nil {
		o.logger.Warn("Failed to register cache metrics callback", zap.Error(err))
	}
}

// CacheStats sums the counters of every shard cache
func (o *Observer) CacheStats() cache.Stats {
	var total cache.Stats
	for _, s := range o.shards {
		st := s.cache.Stats()
		total.Hits += st.Hits
		total.Misses += st.Misses
		total.Evictions += st.Evictions
		total.Rejected += st.Rejected
	}
	return total
}
