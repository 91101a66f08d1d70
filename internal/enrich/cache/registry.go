package cache

import (
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/yairfalse/tapio-enrich/internal/enrich/mntns"
)

// HostnamePath is read inside each namespace to resolve its hostname
const HostnamePath = "/etc/hostname"

// UnknownHostname is reported when a namespace has no readable hostname file
const UnknownHostname = "?"

// Namespace is a mount namespace the cache can switch the calling thread into
type Namespace interface {
	Enter() error
	Exit() error
	Close() error
}

// OpenFunc acquires the mount namespace inum through pid
type OpenFunc func(pid int, inum uint32) (Namespace, error)

// OpenProcfs opens namespaces through /proc/<pid>/ns/mnt
func OpenProcfs(pid int, inum uint32) (Namespace, error) {
	h, err := mntns.Open(pid, inum)
	if err != nil {
		return nil, err
	}
	return h, nil
}

type nsEntry struct {
	ns Namespace
	// nil until first requested
	hostname *string
}

// CacheNamespace registers the mount namespace inum, reachable through pid.
// Registering a known namespace is a no-op.
func (c *Cache) CacheNamespace(pid int, inum uint32) error {
	if _, ok := c.namespaces[inum]; ok {
		return nil
	}

	ns, err := c.open(pid, inum)
	if err != nil {
		return &NamespaceError{Op: "open", Inum: inum, Err: err}
	}

	c.namespaces[inum] = &nsEntry{ns: ns}
	c.logger.Debug("Registered mount namespace",
		zap.Int("pid", pid),
		zap.Uint32("mnt_ns", inum))
	return nil
}

// Hostname returns the hostname seen inside namespace inum.
// It is read once, inside the namespace, and memoized.
func (c *Cache) Hostname(inum uint32) (string, error) {
	entry, ok := c.namespaces[inum]
	if !ok {
		return "", &UnknownNamespaceError{Inum: inum}
	}
	if entry.hostname != nil {
		return *entry.hostname, nil
	}

	var hostname string
	err := c.inNamespace(inum, entry.ns, func() error {
		data, err := c.readFile(HostnamePath)
		if err != nil {
			c.logger.Debug("Failed to read namespace hostname",
				zap.Uint32("mnt_ns", inum),
				zap.Error(err))
			hostname = UnknownHostname
			return nil
		}
		hostname = strings.TrimRightFunc(string(data), unicode.IsSpace)
		return nil
	})
	if err != nil {
		return "", err
	}

	entry.hostname = &hostname
	return hostname, nil
}

// Namespaces returns the number of registered namespaces
func (c *Cache) Namespaces() int {
	return len(c.namespaces)
}
