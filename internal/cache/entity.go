package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/storefront/storefront-sync/internal/config"
	"golang.org/x/sync/singleflight"
)

// Cache memoizes query results per fingerprint. Concurrent queries for one
// fingerprint share a single fetch; entries are invalidated by tag and can be
// patched optimistically by Mutate.
type Cache struct {
	// notifyMu is taken before mu by every write, and held while subscribers
	// are called, so subscribers observe changes in write order.
	notifyMu sync.Mutex
	mu       sync.Mutex

	entries     *entryTable
	flights     singleflight.Group
	subscribers map[Fingerprint][]subscriber
	nextSub     int
	// mutating maps each fingerprint held by an in-flight mutation to a
	// channel closed when the mutation settles.
	mutating   map[Fingerprint]chan struct{}
	generation uint64

	fetches    atomic.Uint64
	confirmed  atomic.Uint64
	rolledBack atomic.Uint64
}

type subscriber struct {
	id int
	fn func(Snapshot)
}

type notification struct {
	snapshot    Snapshot
	subscribers []subscriber
}

func New(cfg config.CacheConfig) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	initMetrics()

	return &Cache{
		entries:     newEntryTable(cfg.MaxEntries),
		subscribers: map[Fingerprint][]subscriber{},
		mutating:    map[Fingerprint]chan struct{}{},
	}, nil
}

// Query returns the value for fp. A fresh or stale value is returned
// immediately; a stale value also starts a background refetch unless one is
// already running. Otherwise the caller waits for a fetch, shared with every
// other caller of the same fingerprint. On success the entry provides tags.
//
// fetch may be nil when the entry is known to hold a value; ErrNoFetcher is
// returned if it does not.
func (c *Cache) Query(ctx context.Context, fp Fingerprint, fetch Fetcher, tags ...Tag) (any, error) {
	start := time.Now()

	c.mu.Lock()

	e, ok := c.entries.get(fp)
	if !ok {
		if fetch == nil {
			c.mu.Unlock()
			return nil, ErrNoFetcher
		}
		e = c.entries.ensure(fp)
	}
	if fetch != nil {
		e.fetch = fetch
	}
	if tags == nil {
		tags = e.tags
	}

	if e.hasValue {
		value, status := e.value, "hit"
		if e.stale {
			status = "stale"
			if !e.fetching && e.fetch != nil {
				c.startFetch(ctx, fp, e, tags)
			}
		}
		c.mu.Unlock()

		observe(ctx, "query", status, start)
		return value, nil
	}

	if e.fetch == nil {
		c.mu.Unlock()
		return nil, ErrNoFetcher
	}

	result := c.startFetch(ctx, fp, e, tags)
	c.mu.Unlock()

	select {
	case r := <-result:
		status := "miss"
		if r.Err != nil {
			status = "error"
		}
		observe(ctx, "query", status, start)
		return r.Val, r.Err

	case <-ctx.Done():
		// the fetch carries on and still settles the entry
		return nil, ctx.Err()
	}
}

// Query is the typed form of (*Cache).Query.
func Query[T any](ctx context.Context, c *Cache, fp Fingerprint, fetch func(context.Context) (T, error), tags ...Tag) (T, error) {
	var zero T

	var fetcher Fetcher
	if fetch != nil {
		fetcher = func(ctx context.Context) (any, error) {
			return fetch(ctx)
		}
	}

	value, err := c.Query(ctx, fp, fetcher, tags...)
	if err != nil {
		return zero, err
	}

	typed, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("cached value for %s is %T, not %T", fp, value, zero)
	}
	return typed, nil
}

// startFetch joins or starts the fetch for fp. Must be called with mu held.
func (c *Cache) startFetch(ctx context.Context, fp Fingerprint, e *entry, tags []Tag) <-chan singleflight.Result {
	fetch := e.fetch
	generation := c.generation
	e.fetching = true
	if !e.hasValue && tags != nil {
		// provide tags from the start so a first fetch can be invalidated
		e.tags = tags
	}

	detached := context.WithoutCancel(ctx)

	// DoChan runs the function on its own goroutine, so holding mu here is
	// safe. Callers arriving while the flight is open share its result.
	return c.flights.DoChan(string(fp), func() (any, error) {
		c.fetches.Add(1)
		value, err := fetch(detached)
		c.settle(fp, generation, value, err, tags)
		return value, err
	})
}

// settle stores the result of a fetch.
func (c *Cache) settle(fp Fingerprint, generation uint64, value any, err error, tags []Tag) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()

	if generation != c.generation {
		// purged while fetching: Purge already released the flight
		c.mu.Unlock()
		return
	}

	// later queries must start a new flight rather than join this one
	c.flights.Forget(string(fp))

	e := c.entries.ensure(fp)
	e.fetching = false
	invalidated := e.invalidated
	e.invalidated = false

	_, held := c.mutating[fp]

	switch {
	case err != nil:
		// the last known value is kept, marked for refetch
		if e.hasValue {
			e.stale = true
		}
		log.Debug().Err(err).Str("fingerprint", string(fp)).Msg("cache: fetch failed")

	case held && e.hasValue:
		// keep the optimistic value visible until the mutation settles
		e.refetch = true

	default:
		e.value = value
		e.hasValue = true
		e.stale = invalidated
		if tags != nil {
			e.tags = tags
		}
	}

	n := c.notificationFor(fp, e)
	c.mu.Unlock()

	n.deliver()
}

// Read returns the current state of fp without fetching.
func (c *Cache) Read(fp Fingerprint) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries.get(fp)
	if !ok {
		return Snapshot{Fingerprint: fp, State: StateEmpty}
	}
	return e.snapshot(fp)
}

// Subscribe registers fn to receive the entry's snapshot after each change to
// its value or freshness. fn must not modify the cache. The returned function
// removes the subscription.
func (c *Cache) Subscribe(fp Fingerprint, fn func(Snapshot)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextSub++
	id := c.nextSub
	c.subscribers[fp] = append(c.subscribers[fp], subscriber{id: id, fn: fn})

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		subs := c.subscribers[fp]
		for i, s := range subs {
			if s.id == id {
				subs = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		if len(subs) == 0 {
			delete(c.subscribers, fp)
		} else {
			c.subscribers[fp] = subs
		}
	}
}

// Invalidate marks every entry providing one of tags as stale, and returns
// their fingerprints. Stale entries refetch on their next query; entries with
// subscribers refetch immediately.
func (c *Cache) Invalidate(ctx context.Context, tags ...Tag) []Fingerprint {
	start := time.Now()

	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	staled, notes := c.invalidate(ctx, tags)
	c.mu.Unlock()

	for _, n := range notes {
		n.deliver()
	}

	observe(ctx, "invalidate", "success", start)
	return staled
}

// invalidate must be called with notifyMu and mu held.
func (c *Cache) invalidate(ctx context.Context, tags []Tag) ([]Fingerprint, []notification) {
	if len(tags) == 0 {
		return nil, nil
	}

	var (
		staled []Fingerprint
		notes  []notification
	)

	for fp, e := range c.entries.all() {
		if !providesAny(e.tags, tags) || (!e.hasValue && !e.fetching) {
			continue
		}

		if e.fetching {
			e.invalidated = true
		}
		if e.hasValue {
			e.stale = true
		}
		staled = append(staled, fp)

		if len(c.subscribers[fp]) > 0 && e.hasValue && !e.fetching && e.fetch != nil {
			c.startFetch(ctx, fp, e, e.tags)
		}

		notes = append(notes, c.notificationFor(fp, e))
	}

	if len(staled) > 0 {
		log.Debug().Stringers("tags", tagStringers(tags)).Int("entries", len(staled)).Msg("cache: invalidated")
	}

	return staled, notes
}

// Evict drops the entry for fp, returning it to Empty.
func (c *Cache) Evict(fp Fingerprint) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	c.entries.remove(fp)
	n := notification{
		snapshot:    Snapshot{Fingerprint: fp, State: StateEmpty},
		subscribers: c.subscribersOf(fp),
	}
	c.mu.Unlock()

	n.deliver()
}

// Purge drops every entry. Fetches in flight complete but their results are
// discarded.
func (c *Cache) Purge() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	for fp, e := range c.entries.all() {
		if e.fetching {
			c.flights.Forget(string(fp))
		}
	}
	c.entries.clear()
	c.generation++

	notes := make([]notification, 0, len(c.subscribers))
	for fp := range c.subscribers {
		notes = append(notes, notification{
			snapshot:    Snapshot{Fingerprint: fp, State: StateEmpty},
			subscribers: c.subscribersOf(fp),
		})
	}
	c.mu.Unlock()

	for _, n := range notes {
		n.deliver()
	}

	log.Debug().Msg("cache: purged")
}

// Stats returns activity counters.
func (c *Cache) Stats() Stats {
	s := c.entries.stats()

	return Stats{
		Entries:    c.entries.len(),
		Hits:       s.Hits,
		Misses:     s.Misses,
		Evictions:  s.Evictions,
		Fetches:    c.fetches.Load(),
		Confirmed:  c.confirmed.Load(),
		RolledBack: c.rolledBack.Load(),
	}
}

// Must be called with mu held.
func (c *Cache) notificationFor(fp Fingerprint, e *entry) notification {
	return notification{
		snapshot:    e.snapshot(fp),
		subscribers: c.subscribersOf(fp),
	}
}

// Must be called with mu held.
func (c *Cache) subscribersOf(fp Fingerprint) []subscriber {
	subs := c.subscribers[fp]
	if len(subs) == 0 {
		return nil
	}

	out := make([]subscriber, len(subs))
	copy(out, subs)
	return out
}

func (n notification) deliver() {
	for _, s := range n.subscribers {
		s.fn(n.snapshot)
	}
}

func tagStringers(tags []Tag) []fmt.Stringer {
	out := make([]fmt.Stringer, len(tags))
	for i, t := range tags {
		out[i] = t
	}
	return out
}
