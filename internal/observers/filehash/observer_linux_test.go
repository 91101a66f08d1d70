//go:build linux
// +build linux

package filehash

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yairfalse/tapio-enrich/internal/enrich/cache"
	"github.com/yairfalse/tapio-enrich/pkg/domain"
)

func writeFile(t *testing.T, content string) (string, domain.FileMetadata) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "payload.bin")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	meta, err := cache.Snapshot(path)
	require.NoError(t, err)
	return path, meta
}

func TestObserverHashesPathEvents(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.observer.Start(context.Background()))

	path, meta := writeFile(t, "#!/bin/sh\necho hello\n")
	h.push(t,
		pathRecord(t, domain.EventTypeExecve, 7, path, &meta),
		pathRecord(t, domain.EventTypeMmapExec, 7, path, &meta),
	)
	events := h.finish(t)
	require.Len(t, events, 2)

	sum := sha256.Sum256([]byte("#!/bin/sh\necho hello\n"))
	for _, ev := range events {
		require.NotNil(t, ev.Hashes, "event %s", ev.Type)
		assert.Empty(t, ev.EnrichError)
		assert.Equal(t, path, ev.Path)
		assert.Equal(t, "node-1", ev.Hostname)
		assert.Equal(t, hex.EncodeToString(sum[:]), ev.Hashes.SHA256)
		assert.Equal(t, meta.Size, ev.Hashes.Size)
	}

	stats := h.observer.CacheStats()
	assert.Equal(t, uint64(1), stats.Misses, "same file in the same namespace is hashed once")
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, int64(1), h.sum(t, "filehash_cache_hits_total"))
	assert.Equal(t, int64(1), h.sum(t, "filehash_cache_misses_total"))
}

func TestObserverReportsModifiedFiles(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.observer.Start(context.Background()))

	path, meta := writeFile(t, "before")
	require.NoError(t, os.WriteFile(path, []byte("after the kernel saw it"), 0o600))

	h.push(t, pathRecord(t, domain.EventTypeFileOpen, 7, path, &meta))
	events := h.finish(t)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Nil(t, ev.Hashes)
	assert.Contains(t, ev.EnrichError, cache.ErrFileModified.Error())
	assert.Equal(t, uint64(1), h.observer.CacheStats().Rejected)
	assert.Equal(t, int64(1), h.sum(t, "filehash_errors_total", attribute.String("kind", "file_modified")))
}

func TestObserverReportsMissingFiles(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.observer.Start(context.Background()))

	meta := domain.FileMetadata{Ino: 1, Size: 1, Mtime: domain.TimespecFromTime(time.Now())}
	h.push(t, pathRecord(t, domain.EventTypeSchedule, 7, "/definitely/not/here", &meta))
	events := h.finish(t)
	require.Len(t, events, 1)

	assert.Nil(t, events[0].Hashes)
	assert.Equal(t, int64(1), h.sum(t, "filehash_errors_total", attribute.String("kind", "file_not_found")))
}
