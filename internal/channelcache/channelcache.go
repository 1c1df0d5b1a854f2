// Package channelcache implements the process-wide UID -> StreamBundle
// cache described in spec.md §4.7. It is explicit process-wide state with
// New/Shutdown endpoints rather than a bare global singleton (spec.md §9
// DESIGN NOTES: "prefer passing a cache handle rather than a global
// singleton").
package channelcache

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/pipelka/robotv-go/internal/hostapi"
	"github.com/pipelka/robotv-go/internal/tsdemux"
)

// Cache is a mutex-guarded UID -> *tsdemux.StreamBundle map. There is no TTL
// and no eviction: entries live for the process lifetime, same as the
// original's process-wide table.
type Cache struct {
	mu      sync.Mutex
	bundles map[hostapi.UID]*tsdemux.StreamBundle

	host hostapi.Host
	sf   singleflight.Group
}

// New creates a cache bound to host for cold-miss population via
// GetOrAddFromChannel.
func New(host hostapi.Host) *Cache {
	return &Cache{
		bundles: make(map[hostapi.UID]*tsdemux.StreamBundle),
		host:    host,
	}
}

// Get returns the cached bundle for uid, or nil if absent.
func (c *Cache) Get(uid hostapi.UID) *tsdemux.StreamBundle {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.bundles[uid]
	if !ok {
		return nil
	}
	return b.Clone()
}

// Put stores bundle for uid, replacing any previous entry.
func (c *Cache) Put(uid hostapi.UID, bundle *tsdemux.StreamBundle) {
	c.mu.Lock()
	c.bundles[uid] = bundle.Clone()
	c.mu.Unlock()
}

// GetOrAddFromChannel returns the cached bundle for uid if present;
// otherwise it derives one from the host's channel metadata, caches it, and
// returns it. Concurrent first-tune races for the same uid are collapsed
// with singleflight so the host is only asked once.
func (c *Cache) GetOrAddFromChannel(ctx context.Context, uid hostapi.UID) (*tsdemux.StreamBundle, bool) {
	if b := c.Get(uid); b != nil {
		return b, true
	}

	v, err, _ := c.sf.Do(uidKey(uid), func() (interface{}, error) {
		if b := c.Get(uid); b != nil {
			return b, nil
		}
		derived, ok := c.host.ChannelStreamInfo(uid)
		if !ok {
			return (*tsdemux.StreamBundle)(nil), nil
		}
		c.Put(uid, derived)
		return derived, nil
	})
	if err != nil || v == nil {
		return nil, false
	}
	bundle, _ := v.(*tsdemux.StreamBundle)
	if bundle == nil {
		return nil, false
	}
	return bundle, true
}

// UpdateIfDifferent caches fresh in place of the existing entry for uid when
// fresh is not isMetaOf-equal to what's cached, per spec.md §4.8 Attach:
// "compare with freshly derived bundle using isMetaOf; if different, update
// cache". Returns true if the cache was updated.
func (c *Cache) UpdateIfDifferent(uid hostapi.UID, fresh *tsdemux.StreamBundle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.bundles[uid]
	if ok && existing.IsMetaOf(fresh) {
		return false
	}
	c.bundles[uid] = fresh.Clone()
	return true
}

// Shutdown releases cache state. No background goroutines run in this
// package, so this only exists to pair with New per the design note's
// explicit lifecycle endpoints.
func (c *Cache) Shutdown() {
	c.mu.Lock()
	c.bundles = make(map[hostapi.UID]*tsdemux.StreamBundle)
	c.mu.Unlock()
}

func uidKey(uid hostapi.UID) string {
	const hextable = "0123456789abcdef"
	buf := make([]byte, 16)
	v := uint64(uid)
	for i := 15; i >= 0; i-- {
		buf[i] = hextable[v&0xf]
		v >>= 4
	}
	return string(buf)
}
