package cache

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/yairfalse/tapio-enrich/internal/enrich/digest"
	"github.com/yairfalse/tapio-enrich/internal/enrich/mntns"
	"github.com/yairfalse/tapio-enrich/pkg/domain"
)

// fakeNamespace records switches without touching kernel state
type fakeNamespace struct {
	inum    uint32
	entered bool
	enters  int
	exits   int
	closed  bool

	enterErr error
	exitErr  error
}

func (f *fakeNamespace) Enter() error {
	if f.enterErr != nil {
		return f.enterErr
	}
	if f.entered {
		return mntns.ErrAlreadyEntered
	}
	f.entered = true
	f.enters++
	return nil
}

func (f *fakeNamespace) Exit() error {
	f.exits++
	if f.exitErr != nil {
		return f.exitErr
	}
	if !f.entered {
		return mntns.ErrNotEntered
	}
	f.entered = false
	return nil
}

func (f *fakeNamespace) Close() error {
	f.closed = true
	return nil
}

// fakeOpener hands out fakeNamespaces and remembers them by inum
type fakeOpener struct {
	opened map[uint32]*fakeNamespace
	calls  int
	err    error
}

func newFakeOpener() *fakeOpener {
	return &fakeOpener{opened: make(map[uint32]*fakeNamespace)}
}

func (o *fakeOpener) Open(pid int, inum uint32) (Namespace, error) {
	o.calls++
	if o.err != nil {
		return nil, o.err
	}
	ns := &fakeNamespace{inum: inum}
	o.opened[inum] = ns
	return ns, nil
}

// countingDigester counts how often files are actually hashed.
// before runs after the key check and ahead of hashing.
type countingDigester struct {
	inner  digest.Digester
	calls  int
	panic  bool
	before func(path string)
}

func (d *countingDigester) Digest(path string, snap domain.FileMetadata) domain.Hashes {
	d.calls++
	if d.panic {
		panic("digest exploded")
	}
	if d.before != nil {
		d.before(path)
	}
	return d.inner.Digest(path, snap)
}

type fixture struct {
	cache    *Cache
	opener   *fakeOpener
	digester *countingDigester
}

func newFixture(t *testing.T, capacity int) *fixture {
	t.Helper()
	f := &fixture{
		opener:   newFakeOpener(),
		digester: &countingDigester{inner: digest.New()},
	}
	c, err := New(Options{
		Capacity:      capacity,
		Logger:        zaptest.NewLogger(t),
		Digester:      f.digester,
		OpenNamespace: f.opener.Open,
	})
	require.NoError(t, err)
	f.cache = c
	return f
}

var errBoom = errors.New("boom")
