package cache

import (
	"context"
	"iter"
	"slices"

	"github.com/maypok86/otter/v2"
	"github.com/maypok86/otter/v2/stats"
	"github.com/rs/zerolog/log"
)

// entry is the mutable state behind a fingerprint. All fields are guarded by
// the owning Cache's mutex.
type entry struct {
	value    any
	hasValue bool
	stale    bool
	tags     []Tag

	// fetching is set while a fetch for the fingerprint is in flight.
	fetching bool
	// invalidated records an invalidation that arrived during a fetch: the
	// fetched value is already out of date when it lands.
	invalidated bool
	// refetch records a fetch result discarded because a mutation held the
	// entry.
	refetch bool

	fetch Fetcher
}

func (e *entry) state() State {
	switch {
	case e.fetching:
		return StateFetching
	case !e.hasValue:
		return StateEmpty
	case e.stale:
		return StateStale
	default:
		return StateFresh
	}
}

func (e *entry) snapshot(fp Fingerprint) Snapshot {
	return Snapshot{
		Fingerprint: fp,
		State:       e.state(),
		Value:       e.value,
		HasValue:    e.hasValue,
		Tags:        slices.Clone(e.tags),
	}
}

// saved is the data portion of an entry, captured so it can be restored
// exactly.
type saved struct {
	fp       Fingerprint
	value    any
	hasValue bool
	stale    bool
	tags     []Tag
}

func (e *entry) save(fp Fingerprint) saved {
	return saved{
		fp:       fp,
		value:    e.value,
		hasValue: e.hasValue,
		stale:    e.stale,
		tags:     slices.Clone(e.tags),
	}
}

// restore puts back the data captured by save. Staleness picked up while the
// entry was held (an invalidation, or a fetch discarded under the optimistic
// value) survives: the restored value is no newer than what was discarded.
// It reports whether the entry is stale now but was not when saved.
func (e *entry) restore(s saved) bool {
	outdated := (e.stale || e.refetch) && !s.stale

	e.value = s.value
	e.hasValue = s.hasValue
	e.stale = s.stale || e.stale || e.refetch
	e.tags = slices.Clone(s.tags)
	e.refetch = false

	return outdated
}

// entryTable is the bounded in-memory entry store, backed by otter. Entries
// beyond the size limit are evicted, returning their fingerprint to Empty.
type entryTable struct {
	store   *otter.Cache[Fingerprint, *entry]
	counter *stats.Counter
}

func newEntryTable(maxSize int) *entryTable {
	counter := stats.NewCounter()
	store := otter.Must(&otter.Options[Fingerprint, *entry]{
		MaximumSize:   maxSize,
		StatsRecorder: counter,
		OnDeletion: func(e otter.DeletionEvent[Fingerprint, *entry]) {
			if e.WasEvicted() {
				log.Debug().Str("fingerprint", string(e.Key)).Msg("cache: entry evicted")
				recordOperation(context.Background(), "evict", "evicted")
			}
		},
	})

	return &entryTable{
		store:   store,
		counter: counter,
	}
}

func (t *entryTable) get(fp Fingerprint) (*entry, bool) {
	return t.store.GetIfPresent(fp)
}

// ensure returns the entry for fp, creating an empty one if needed.
func (t *entryTable) ensure(fp Fingerprint) *entry {
	if e, ok := t.store.GetIfPresent(fp); ok {
		return e
	}

	e := &entry{}
	t.store.Set(fp, e)
	return e
}

func (t *entryTable) remove(fp Fingerprint) {
	t.store.Invalidate(fp)
}

func (t *entryTable) clear() {
	t.store.InvalidateAll()
}

func (t *entryTable) all() iter.Seq2[Fingerprint, *entry] {
	return t.store.All()
}

func (t *entryTable) len() int {
	return t.store.EstimatedSize()
}

func (t *entryTable) stats() stats.Stats {
	return t.counter.Snapshot()
}
