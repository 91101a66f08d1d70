package filehash

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/yairfalse/tapio-enrich/internal/enrich/cache"
	"github.com/yairfalse/tapio-enrich/pkg/domain"
)

// shard owns one cache. Only its worker goroutine touches the cache, from a pinned thread.
type shard struct {
	id    int
	in    chan *domain.FileEvent
	cache *cache.Cache
}

func (o *Observer) newShard(id int) (*shard, error) {
	opts := o.cacheOpts
	opts.Capacity = o.config.CacheCapacity
	opts.Logger = o.logger.With(zap.Int("shard", id))

	c, err := cache.New(opts)
	if err != nil {
		return nil, err
	}
	return &shard{
		id:    id,
		in:    make(chan *domain.FileEvent, o.config.BufferSize),
		cache: c,
	}, nil
}

// runShard enriches queued events until the reader closes the queue or the observer stops
func (o *Observer) runShard(s *shard) {
	ctx := o.LifecycleManager.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.in:
			if !ok {
				return
			}
			o.enrich(ctx, s, ev)
		}
	}
}

// enrich resolves the namespace, hostname and file digests of one event.
// Failures are recorded on the event, which is emitted regardless.
func (o *Observer) enrich(ctx context.Context, s *shard, ev *domain.FileEvent) {
	start := time.Now()
	ctx, span := o.BaseObserver.StartSpan(ctx, "enrich",
		trace.WithAttributes(
			attribute.String("event.type", ev.Type.String()),
			attribute.Int64("mnt_ns", int64(ev.MntNs)),
			attribute.Int("shard", s.id),
		))
	defer span.End()

	out := domain.NewEnrichedEvent(ev)
	if err := o.enrichInto(s, ev, out); err != nil {
		kind := cache.Kind(err)
		out.EnrichError = err.Error()
		o.BaseObserver.RecordError(ctx, kind, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
		if ce := o.logger.Check(zap.DebugLevel, "Failed to enrich event"); ce != nil {
			ce.Write(
				zap.String("type", out.Type),
				zap.Uint32("tgid", ev.Tgid),
				zap.Uint32("mnt_ns", ev.MntNs),
				zap.String("path", out.Path),
				zap.String("kind", kind),
				zap.Error(err))
		}
	}

	o.BaseObserver.RecordProcessingDuration(ctx, time.Since(start))
	o.BaseObserver.RecordEvent(ctx, attribute.String("type", out.Type))
	o.emit(ctx, out)
}

func (o *Observer) enrichInto(s *shard, ev *domain.FileEvent, out *domain.EnrichedEvent) error {
	if err := s.cache.CacheNamespace(int(ev.Tgid), ev.MntNs); err != nil {
		return err
	}

	hostname, err := s.cache.Hostname(ev.MntNs)
	if err != nil {
		return err
	}
	out.Hostname = hostname

	if ev.Path == nil {
		return nil
	}
	hashes, err := s.cache.GetOrCacheInNs(ev.MntNs, *ev.Path)
	if err != nil {
		return err
	}
	out.Hashes = &hashes
	return nil
}
