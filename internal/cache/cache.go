// Package cache keeps an in-memory view of namespace labels.
//
// The whole view is replaced on a fixed period by listing every namespace.
// Namespaces that are looked up but not yet known are read once and kept until
// the next full refresh replaces the map; entries never expire on their own.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"k8s.io/utils/clock"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/sbahar619/namespace-label-spreader/internal/gateway"
)

// DefaultInterval is the refresh period used when none is configured.
const DefaultInterval = 180 * time.Second

// NamespaceSource is where the cache reads namespaces from.
type NamespaceSource interface {
	ListNamespaces(ctx context.Context) ([]gateway.Namespace, error)
	ReadNamespace(ctx context.Context, name string) (gateway.Namespace, error)
}

type Options struct {
	// Interval between two full refreshes. Defaults to DefaultInterval.
	Interval time.Duration
	Clock    clock.WithTicker
}

// NamespaceCache maps namespace names to their last known labels.
type NamespaceCache struct {
	source   NamespaceSource
	interval time.Duration
	clock    clock.WithTicker

	mu         sync.RWMutex
	namespaces map[string]gateway.Namespace
}

func New(source NamespaceSource, opts Options) *NamespaceCache {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	return &NamespaceCache{
		source:     source,
		interval:   opts.Interval,
		clock:      opts.Clock,
		namespaces: map[string]gateway.Namespace{},
	}
}

// Get returns a copy of the cached namespace without contacting the API server.
func (c *NamespaceCache) Get(name string) (gateway.Namespace, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ns, ok := c.namespaces[name]
	if !ok {
		return gateway.Namespace{}, false
	}
	return ns.DeepCopy(), true
}

// Len returns the number of cached namespaces.
func (c *NamespaceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.namespaces)
}

// Lookup returns the cached namespace, reading and storing it first on a miss.
func (c *NamespaceCache) Lookup(ctx context.Context, name string) (gateway.Namespace, error) {
	if ns, ok := c.Get(name); ok {
		cacheHitsTotal.Inc()
		return ns, nil
	}
	cacheMissesTotal.Inc()
	log.FromContext(ctx).Info("namespace not cached, fetching it", "namespace", name)
	return c.fetch(ctx, name)
}

// RefreshOne reads a single namespace and stores it.
func (c *NamespaceCache) RefreshOne(ctx context.Context, name string) error {
	_, err := c.fetch(ctx, name)
	return err
}

// RefreshAll lists all namespaces and swaps them in as the new content.
// On error the previous content is kept.
func (c *NamespaceCache) RefreshAll(ctx context.Context) error {
	log.FromContext(ctx).V(2).Info("listing all namespaces")
	list, err := c.source.ListNamespaces(ctx)
	if err != nil {
		refreshErrorsTotal.Inc()
		return fmt.Errorf("namespace cache refresh: %w", err)
	}

	now := c.clock.Now()
	next := make(map[string]gateway.Namespace, len(list))
	for _, ns := range list {
		ns.FetchedAt = now
		next[ns.Name] = ns
	}

	c.mu.Lock()
	c.namespaces = next
	c.mu.Unlock()
	cacheSize.Set(float64(len(next)))
	return nil
}

// Run refreshes the cache every interval until ctx is done. It does not do an
// initial refresh, callers are expected to call RefreshAll before.
func (c *NamespaceCache) Run(ctx context.Context) {
	l := log.FromContext(ctx)
	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if err := c.RefreshAll(ctx); err != nil {
				l.Error(err, "keeping previous namespace snapshot")
				continue
			}
			l.V(1).Info("namespace cache refreshed", "namespaces", c.Len())
		}
	}
}

func (c *NamespaceCache) fetch(ctx context.Context, name string) (gateway.Namespace, error) {
	ns, err := c.source.ReadNamespace(ctx, name)
	if err != nil {
		return gateway.Namespace{}, err
	}
	ns.FetchedAt = c.clock.Now()

	c.mu.Lock()
	c.namespaces[name] = ns
	size := len(c.namespaces)
	c.mu.Unlock()
	cacheSize.Set(float64(size))

	return ns.DeepCopy(), nil
}
