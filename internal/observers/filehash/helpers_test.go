package filehash

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"

	"github.com/yairfalse/tapio-enrich/internal/enrich/cache"
	"github.com/yairfalse/tapio-enrich/internal/observers/config"
	"github.com/yairfalse/tapio-enrich/pkg/domain"
)

const badNamespace uint32 = 99

var errNoSuchNamespace = errors.New("no such namespace")

// nopNamespace stands in for a mount namespace without switching anything
type nopNamespace struct{}

func (nopNamespace) Enter() error { return nil }
func (nopNamespace) Exit() error  { return nil }
func (nopNamespace) Close() error { return nil }

func openNop(pid int, inum uint32) (cache.Namespace, error) {
	if inum == badNamespace {
		return nil, errNoSuchNamespace
	}
	return nopNamespace{}, nil
}

func readHostname(name string) ([]byte, error) {
	return []byte("node-1\n"), nil
}

type harness struct {
	observer *Observer
	source   *ChanSource
	reader   *sdkmetric.ManualReader
}

func newHarness(t *testing.T, mutate func(*config.FileHashConfig), opts ...Option) *harness {
	t.Helper()

	cfg := config.NewFileHashConfig("filehash")
	cfg.BufferSize = 64
	cfg.Shards = 2
	cfg.ShutdownTimeout = 2 * time.Second
	if mutate != nil {
		mutate(cfg)
	}

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	src := NewChanSource(64)
	defaults := []Option{
		WithSource(src),
		WithMeter(provider.Meter("test")),
		WithPinThread(func() error { return nil }),
		WithCacheOptions(cache.Options{
			OpenNamespace: openNop,
			ReadFile:      readHostname,
		}),
	}
	o, err := NewObserver(cfg, zaptest.NewLogger(t), append(defaults, opts...)...)
	require.NoError(t, err)
	return &harness{observer: o, source: src, reader: reader}
}

func (h *harness) push(t *testing.T, records ...[]byte) {
	t.Helper()
	for _, r := range records {
		require.NoError(t, h.source.Push(context.Background(), r))
	}
}

// finish closes the source, waits for every queued record and returns what was emitted
func (h *harness) finish(t *testing.T) []*domain.EnrichedEvent {
	t.Helper()
	require.NoError(t, h.source.Close())

	select {
	case <-h.observer.Drained():
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for observer to drain")
	}
	require.NoError(t, h.observer.Stop())

	var out []*domain.EnrichedEvent
	for ev := range h.observer.Events() {
		out = append(out, ev)
	}
	return out
}

func (h *harness) sum(t *testing.T, name string, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, h.reader.Collect(context.Background(), &rm))

	want := attribute.NewSet(attrs...)
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				if len(attrs) > 0 && !dp.Attributes.Equals(&want) {
					continue
				}
				total += dp.Value
			}
		}
	}
	return total
}

func targetRecord(t *testing.T, typ domain.EventType, mntNs, target uint32) []byte {
	t.Helper()
	rec := &domain.TargetRecord{
		Header: domain.EventHeader{
			Type:      uint32(typ),
			Pid:       4242,
			Tgid:      4242,
			MntNs:     mntNs,
			Timestamp: uint64(time.Now().UnixNano()),
		},
		Target: target,
		Arg:    9,
	}
	data, err := rec.MarshalBinary()
	require.NoError(t, err)
	return data
}

func pathRecord(t *testing.T, typ domain.EventType, mntNs uint32, path string, meta *domain.FileMetadata) []byte {
	t.Helper()
	raw, err := domain.NewRawPath(path, meta)
	require.NoError(t, err)
	rec := &domain.PathRecord{
		Header: domain.EventHeader{
			Type:      uint32(typ),
			Pid:       4242,
			Tgid:      4242,
			MntNs:     mntNs,
			Timestamp: uint64(time.Now().UnixNano()),
		},
		Path: raw,
	}
	data, err := rec.MarshalBinary()
	require.NoError(t, err)
	return data
}
