// Package cache memoizes file digests for files observed by the eBPF programs.
//
// The path in a kernel event is only meaningful inside the mount namespace of the
// process that produced it, so every lookup switches the calling thread into that
// namespace, validates the file against the kernel's inode snapshot and hashes it there.
// A Cache is not safe for concurrent use: it must be driven by a single goroutine pinned
// to its OS thread (see mntns.PinThread). Run one Cache per worker to scale.
package cache

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/yairfalse/tapio-enrich/internal/enrich/digest"
	"github.com/yairfalse/tapio-enrich/internal/enrich/lru"
	"github.com/yairfalse/tapio-enrich/pkg/domain"
)

// Options configures a Cache
type Options struct {
	// Capacity is the maximum number of digest records kept
	Capacity int

	Logger *zap.Logger

	// Digester defaults to digest.New()
	Digester digest.Digester

	// OpenNamespace defaults to OpenProcfs
	OpenNamespace OpenFunc

	// ReadFile is used to read the hostname file, defaults to os.ReadFile
	ReadFile func(name string) ([]byte, error)
}

// Stats are cumulative cache counters
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	// Lookups refused because the file changed since the kernel event
	Rejected uint64
}

// Cache maps kernel file observations to digest records
type Cache struct {
	logger   *zap.Logger
	digester digest.Digester
	open     OpenFunc
	readFile func(name string) ([]byte, error)

	namespaces map[uint32]*nsEntry
	hashes     *lru.Map[Key, domain.Hashes]

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
	rejected  atomic.Uint64
}

// New creates a cache holding at most opts.Capacity digest records
func New(opts Options) (*Cache, error) {
	c := &Cache{
		logger:     opts.Logger,
		digester:   opts.Digester,
		open:       opts.OpenNamespace,
		readFile:   opts.ReadFile,
		namespaces: make(map[uint32]*nsEntry),
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.digester == nil {
		c.digester = digest.New()
	}
	if c.open == nil {
		c.open = OpenProcfs
	}
	if c.readFile == nil {
		c.readFile = os.ReadFile
	}

	hashes, err := lru.New[Key, domain.Hashes](opts.Capacity, c.onEvict)
	if err != nil {
		return nil, err
	}
	c.hashes = hashes
	return c, nil
}

func (c *Cache) onEvict(key Key, _ domain.Hashes) {
	c.evictions.Add(1)
	if ce := c.logger.Check(zap.DebugLevel, "Evicted digest record"); ce != nil {
		ce.Write(zap.Uint32("mnt_ns", key.MntNamespace), zap.String("path", key.Path))
	}
}

// GetOrCacheInNs returns the digest record of the file p as seen in namespace inum,
// hashing it on first sight. The namespace must have been registered with CacheNamespace.
// The calling thread is back in its own namespace when GetOrCacheInNs returns.
func (c *Cache) GetOrCacheInNs(inum uint32, p domain.Path) (domain.Hashes, error) {
	entry, ok := c.namespaces[inum]
	if !ok {
		return domain.Hashes{}, &UnknownNamespaceError{Inum: inum}
	}

	var out domain.Hashes
	err := c.inNamespace(inum, entry.ns, func() error {
		key, err := NewKey(inum, p)
		if err != nil {
			if errors.Is(err, ErrFileModified) {
				c.rejected.Add(1)
			}
			return err
		}

		if c.hashes.Contains(key) {
			c.hits.Add(1)
		} else {
			c.misses.Add(1)
			c.hashes.Insert(key, c.digester.Digest(p.NativePath(), *p.Metadata))
		}

		h, ok := c.hashes.Get(key)
		if !ok {
			return fmt.Errorf("digest record for %s missing after insert", key.Path)
		}
		out = h
		return nil
	})
	return out, err
}

// inNamespace runs fn inside ns. The thread is switched back on every exit path,
// panics included; failing to switch back terminates the process.
func (c *Cache) inNamespace(inum uint32, ns Namespace, fn func() error) error {
	if err := ns.Enter(); err != nil {
		return &NamespaceError{Op: "enter", Inum: inum, Err: err}
	}
	defer c.restore(inum, ns)

	return fn()
}

func (c *Cache) restore(inum uint32, ns Namespace) {
	if err := ns.Exit(); err != nil {
		c.logger.Fatal("failed to restore mount namespace",
			zap.Uint32("mnt_ns", inum),
			zap.Error(err))
	}
}

// Contains reports whether key has a digest record, without touching recency
func (c *Cache) Contains(key Key) bool {
	return c.hashes.Contains(key)
}

// Len returns the number of digest records held
func (c *Cache) Len() int {
	return c.hashes.Len()
}

// Stats returns the cumulative counters
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Rejected:  c.rejected.Load(),
	}
}

// Close releases every registered namespace
func (c *Cache) Close() error {
	var errs []error
	for inum, entry := range c.namespaces {
		if err := entry.ns.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close inum=%d: %w", inum, err))
		}
		delete(c.namespaces, inum)
	}
	return errors.Join(errs...)
}
