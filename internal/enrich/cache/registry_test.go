package cache

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// hostnameReader serves a fixed hostname file and counts reads
type hostnameReader struct {
	content string
	err     error
	reads   int
	paths   []string
}

func (r *hostnameReader) ReadFile(name string) ([]byte, error) {
	r.reads++
	r.paths = append(r.paths, name)
	if r.err != nil {
		return nil, r.err
	}
	return []byte(r.content), nil
}

func newRegistryCache(t *testing.T, reader *hostnameReader) (*Cache, *fakeOpener) {
	t.Helper()
	opener := newFakeOpener()
	c, err := New(Options{
		Capacity:      4,
		Logger:        zaptest.NewLogger(t),
		OpenNamespace: opener.Open,
		ReadFile:      reader.ReadFile,
	})
	require.NoError(t, err)
	return c, opener
}

func TestCacheNamespaceIsIdempotent(t *testing.T) {
	c, opener := newRegistryCache(t, &hostnameReader{})

	require.NoError(t, c.CacheNamespace(100, 7))
	require.NoError(t, c.CacheNamespace(200, 7))
	require.NoError(t, c.CacheNamespace(100, 8))

	assert.Equal(t, 2, opener.calls)
	assert.Equal(t, 2, c.Namespaces())
}

func TestCacheNamespaceOpenFailure(t *testing.T) {
	c, opener := newRegistryCache(t, &hostnameReader{})
	opener.err = os.ErrNotExist

	err := c.CacheNamespace(100, 7)
	var nsErr *NamespaceError
	require.ErrorAs(t, err, &nsErr)
	assert.Equal(t, "open", nsErr.Op)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, 0, c.Namespaces())

	// a later attempt is retried
	opener.err = nil
	require.NoError(t, c.CacheNamespace(100, 7))
	assert.Equal(t, 1, c.Namespaces())
}

func TestHostnameLazyRead(t *testing.T) {
	reader := &hostnameReader{content: "node-17\n"}
	c, opener := newRegistryCache(t, reader)
	require.NoError(t, c.CacheNamespace(1, 7))
	ns := opener.opened[7]

	assert.Equal(t, 0, reader.reads)

	for i := 0; i < 2; i++ {
		hostname, err := c.Hostname(7)
		require.NoError(t, err)
		assert.Equal(t, "node-17", hostname)
	}

	assert.Equal(t, 1, reader.reads)
	assert.Equal(t, []string{HostnamePath}, reader.paths)
	assert.Equal(t, 1, ns.enters)
	assert.Equal(t, 1, ns.exits)
	assert.False(t, ns.entered)
}

func TestHostnameReadFailureFallsBack(t *testing.T) {
	reader := &hostnameReader{err: os.ErrPermission}
	c, opener := newRegistryCache(t, reader)
	require.NoError(t, c.CacheNamespace(1, 7))

	hostname, err := c.Hostname(7)
	require.NoError(t, err)
	assert.Equal(t, UnknownHostname, hostname)

	hostname, err = c.Hostname(7)
	require.NoError(t, err)
	assert.Equal(t, UnknownHostname, hostname)
	assert.Equal(t, 1, reader.reads)
	assert.Equal(t, 1, opener.opened[7].enters)
}

func TestHostnameEnterFailureNotMemoized(t *testing.T) {
	reader := &hostnameReader{content: "web-1"}
	c, opener := newRegistryCache(t, reader)
	require.NoError(t, c.CacheNamespace(1, 7))
	ns := opener.opened[7]
	ns.enterErr = errBoom

	_, err := c.Hostname(7)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 0, reader.reads)

	ns.enterErr = nil
	hostname, err := c.Hostname(7)
	require.NoError(t, err)
	assert.Equal(t, "web-1", hostname)
}

func TestHostnameTrimsTrailingWhitespace(t *testing.T) {
	reader := &hostnameReader{content: "  db-2 \t\r\n\n"}
	c, _ := newRegistryCache(t, reader)
	require.NoError(t, c.CacheNamespace(1, 7))

	hostname, err := c.Hostname(7)
	require.NoError(t, err)
	assert.Equal(t, "  db-2", hostname)
}

func TestCloseReleasesNamespaces(t *testing.T) {
	c, opener := newRegistryCache(t, &hostnameReader{})
	require.NoError(t, c.CacheNamespace(1, 7))
	require.NoError(t, c.CacheNamespace(2, 8))

	require.NoError(t, c.Close())
	assert.True(t, opener.opened[7].closed)
	assert.True(t, opener.opened[8].closed)
	assert.Equal(t, 0, c.Namespaces())
}

func TestNewRejectsZeroCapacity(t *testing.T) {
	_, err := New(Options{Capacity: 0})
	assert.Error(t, err)
}
