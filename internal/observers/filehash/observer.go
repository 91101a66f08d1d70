// Package filehash enriches file related kernel events with the digests of the files they
// name, as seen from the mount namespace of the process that produced them.
package filehash

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/yairfalse/tapio-enrich/internal/enrich/cache"
	"github.com/yairfalse/tapio-enrich/internal/enrich/mntns"
	"github.com/yairfalse/tapio-enrich/internal/observers"
	"github.com/yairfalse/tapio-enrich/internal/observers/base"
	"github.com/yairfalse/tapio-enrich/internal/observers/config"
	"github.com/yairfalse/tapio-enrich/pkg/domain"
)

var (
	// ErrAlreadyStarted is returned when Start is called twice
	ErrAlreadyStarted = errors.New("observer already started")
)

var _ observers.Observer = (*Observer)(nil)

// Option customizes an Observer
type Option func(*Observer)

// WithSource sets the record source. By default the pinned ring buffer named by the
// configuration is opened on Start.
func WithSource(src Source) Option {
	return func(o *Observer) { o.source = src }
}

// WithCacheOptions sets the template used to build every shard cache.
// Capacity and Logger are always taken from the observer.
func WithCacheOptions(opts cache.Options) Option {
	return func(o *Observer) { o.cacheOpts = opts }
}

// WithMeter sets the meter used for metrics instead of the global provider
func WithMeter(meter metric.Meter) Option {
	return func(o *Observer) { o.meter = meter }
}

// WithPinThread replaces the function that prepares each shard's OS thread
func WithPinThread(pin func() error) Option {
	return func(o *Observer) { o.pinThread = pin }
}

// Observer decodes kernel records and enriches them with file digests
type Observer struct {
	*base.BaseObserver     // Provides Statistics() and Health() methods
	*base.LifecycleManager // Manages goroutines and graceful shutdown

	config *config.FileHashConfig
	logger *zap.Logger

	source    Source
	cacheOpts cache.Options
	meter     metric.Meter
	pinThread func() error

	shards []*shard
	events chan *domain.EnrichedEvent

	workers sync.WaitGroup
	drained chan struct{}

	started    atomic.Bool
	sourceOnce sync.Once
	closeOnce  sync.Once
}

// NewObserver creates a file hash observer
func NewObserver(cfg *config.FileHashConfig, logger *zap.Logger, opts ...Option) (*Observer, error) {
	if cfg == nil {
		cfg = config.NewFileHashConfig("filehash")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid filehash config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	o := &Observer{
		config:    cfg,
		logger:    logger.With(zap.String("observer", cfg.Name)),
		pinThread: mntns.PinThread,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.meter == nil {
		if cfg.MetricsEnabled {
			o.meter = otel.Meter(cfg.Name)
		} else {
			o.meter = noop.NewMeterProvider().Meter(cfg.Name)
		}
	}

	o.BaseObserver = base.NewBaseObserverWithConfig(base.BaseObserverConfig{
		Name:   cfg.Name,
		Meter:  o.meter,
		Logger: o.logger,
	})
	o.LifecycleManager = base.NewLifecycleManager(context.Background(), o.logger)
	o.events = make(chan *domain.EnrichedEvent, cfg.BufferSize)
	o.drained = make(chan struct{})

	for i := 0; i < cfg.Shards; i++ {
		s, err := o.newShard(i)
		if err != nil {
			o.closeShards()
			return nil, fmt.Errorf("failed to create shard %d: %w", i, err)
		}
		o.shards = append(o.shards, s)
	}
	o.registerCacheMetrics(o.BaseObserver.Meter())

	// Start as unhealthy, become healthy only after Start() is called
	o.BaseObserver.SetHealthy(false)
	return o, nil
}

// Start opens the source if needed and launches the reader and shard workers
func (o *Observer) Start(ctx context.Context) error {
	if !o.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	o.logger.Info("Starting filehash observer",
		zap.Int("shards", len(o.shards)),
		zap.Int("cache_capacity", o.config.CacheCapacity),
		zap.Int("buffer_size", o.config.BufferSize))

	if o.source == nil {
		src, err := NewRingbufSource(o.config.EventsMap, o.logger)
		if err != nil {
			o.started.Store(false)
			return fmt.Errorf("failed to open event source: %w", err)
		}
		o.source = src
	}

	for _, s := range o.shards {
		s := s
		o.workers.Add(1)
		err := o.LifecycleManager.StartPinned(fmt.Sprintf("shard-%d", s.id), o.pinThread, func() {
			defer o.workers.Done()
			o.runShard(s)
		})
		if err != nil {
			o.workers.Done()
			o.abortStart(ctx, err)
			return fmt.Errorf("failed to start shard %d: %w", s.id, err)
		}
	}

	// Stop the workers when the caller's context ends
	o.LifecycleManager.Start("context-watcher", func() {
		select {
		case <-ctx.Done():
			o.logger.Debug("Caller context done, closing source")
			o.closeSource()
		case <-o.LifecycleManager.StopChannel():
		}
	})

	o.workers.Add(1)
	o.LifecycleManager.Start("event-reader", func() {
		defer o.workers.Done()
		o.readEvents()
	})
	o.LifecycleManager.Start("drain-watcher", func() {
		o.workers.Wait()
		close(o.drained)
	})

	o.BaseObserver.SetHealthy(true)
	o.logger.Info("Filehash observer started")
	return nil
}

// abortStart unwinds the shards already running when a later one fails to start.
// The observer stays unhealthy; Stop still releases the namespace handles.
func (o *Observer) abortStart(ctx context.Context, err error) {
	o.BaseObserver.RecordError(ctx, "pin", err)
	o.BaseObserver.SetHealthy(false)
	for _, s := range o.shards {
		close(s.in)
	}
	o.closeSource()
	o.workers.Wait()
	close(o.drained)
}

// Stop closes the source, waits for the workers and releases namespace handles
func (o *Observer) Stop() error {
	o.logger.Info("Stopping filehash observer",
		zap.Int32("running_goroutines", o.LifecycleManager.GetRunningGoroutines()))
	o.closeSource()

	if err := o.LifecycleManager.Stop(o.config.ShutdownTimeout); err != nil {
		o.BaseObserver.SetHealthy(false)
		return err
	}

	o.closeOnce.Do(func() { close(o.events) })
	o.BaseObserver.SetHealthy(false)

	if err := o.closeShards(); err != nil {
		o.logger.Warn("Failed to release namespace handles", zap.Error(err))
		return err
	}
	o.logger.Info("Filehash observer stopped")
	return nil
}

// Name returns the observer name
func (o *Observer) Name() string {
	return o.BaseObserver.GetName()
}

// Events returns the enriched event channel. It is closed once Stop completes.
func (o *Observer) Events() <-chan *domain.EnrichedEvent {
	return o.events
}

// Drained is closed once the source is exhausted and every shard has finished its queue
func (o *Observer) Drained() <-chan struct{} {
	return o.drained
}

func (o *Observer) closeSource() {
	if o.source == nil {
		return
	}
	o.sourceOnce.Do(func() {
		if err := o.source.Close(); err != nil {
			o.logger.Warn("Failed to close event source", zap.Error(err))
		}
	})
}

func (o *Observer) closeShards() error {
	var errs []error
	for _, s := range o.shards {
		if err := s.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("shard %d: %w", s.id, err))
		}
	}
	return errors.Join(errs...)
}

// readEvents decodes records and routes them to the shard owning their namespace
func (o *Observer) readEvents() {
	ctx := o.LifecycleManager.Context()
	defer func() {
		for _, s := range o.shards {
			close(s.in)
		}
	}()

	for {
		record, err := o.source.Read(ctx)
		if err != nil {
			if errors.Is(err, ErrSourceClosed) || o.LifecycleManager.IsShuttingDown() {
				o.logger.Debug("Event source finished", zap.Error(err))
				return
			}
			o.logger.Debug("Event source read error", zap.Error(err))
			o.BaseObserver.RecordError(ctx, "read", err)
			continue
		}

		ev, err := domain.DecodeEvent(record)
		if err != nil {
			o.logger.Debug("Failed to decode kernel record", zap.Error(err))
			o.BaseObserver.RecordError(ctx, "decode", err)
			o.BaseObserver.RecordDrop(ctx, "decode_failed")
			continue
		}

		s := o.shardFor(ev.MntNs)
		select {
		case s.in <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func (o *Observer) shardFor(mntNs uint32) *shard {
	return o.shards[int(mntNs%uint32(len(o.shards)))]
}

// emit delivers an enriched event without blocking
func (o *Observer) emit(ctx context.Context, ev *domain.EnrichedEvent) bool {
	select {
	case o.events <- ev:
		return true
	default:
		o.BaseObserver.RecordDrop(ctx, "channel_full")
		if ce := o.logger.Check(zap.DebugLevel, "Dropped enriched event, channel full"); ce != nil {
			ce.Write(zap.String("type", ev.Type), zap.Uint32("mnt_ns", ev.MntNs))
		}
		return false
	}
}
