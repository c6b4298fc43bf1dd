package cache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Patch is an optimistic change to one entry. Update receives the current
// value and returns the patched one; it must not modify current, which other
// readers may hold, and must not call back into the cache. Patches for
// entries holding no value are skipped.
type Patch struct {
	Fingerprint Fingerprint
	Update      func(current any) (any, error)
}

// Update builds a typed Patch. The patch fails if the entry holds a value of
// another type.
func Update[T any](fp Fingerprint, fn func(current T) (T, error)) Patch {
	return Patch{
		Fingerprint: fp,
		Update: func(current any) (any, error) {
			typed, ok := current.(T)
			if !ok {
				var zero T
				return nil, fmt.Errorf("cached value for %s is %T, not %T", fp, current, zero)
			}
			return fn(typed)
		},
	}
}

// MutationOutcome is either Confirmed or RolledBack.
type MutationOutcome interface {
	mutationOutcome()
}

// Confirmed means the operation succeeded: the optimistic values were kept
// and the listed entries were marked stale.
type Confirmed struct {
	Invalidated []Fingerprint
}

// RolledBack means the operation failed and every patched entry was
// restored. Restored holds the entries as they were put back.
type RolledBack struct {
	Restored []Snapshot
}

func (Confirmed) mutationOutcome()  {}
func (RolledBack) mutationOutcome() {}

// Mutate applies patches optimistically, runs op, then either confirms the
// patches and invalidates tags (op succeeded) or restores every patched entry
// to exactly its state before Mutate was called (op failed; the error is
// returned alongside the RolledBack outcome).
//
// All patches are computed before any is applied: if one fails, nothing is
// applied, op is not run and the outcome is nil. Concurrent mutations of the
// same entry run one after another.
func (c *Cache) Mutate(ctx context.Context, op func(context.Context) error, patches []Patch, invalidate []Tag) (MutationOutcome, error) {
	if op == nil {
		return nil, errors.New("mutation requires an operation")
	}

	start := time.Now()

	ctx, span := tracer().Start(ctx, "cache.mutate",
		trace.WithAttributes(
			attribute.Int("cache.mutate.patches", len(patches)),
			attribute.Stringer("cache.mutate.fingerprints", fingerprints(patches)),
		),
	)
	defer span.End()

	fps := fingerprints(patches)

	release, err := c.hold(ctx, fps)
	if err != nil {
		return nil, err
	}
	defer release()

	inverse, err := c.apply(patches)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "patch rejected")
		observe(ctx, "mutate", "rejected", start)
		return nil, fmt.Errorf("optimistic patch rejected: %w", err)
	}

	if err := op(ctx); err != nil {
		restored := c.rollback(inverse, fps)
		c.rolledBack.Add(1)

		span.RecordError(err)
		span.SetStatus(codes.Error, "rolled back")
		observe(ctx, "mutate", "rolled_back", start)
		log.Debug().Err(err).Int("entries", len(restored)).Msg("cache: mutation rolled back")

		return RolledBack{Restored: restored}, err
	}

	invalidated := c.confirm(ctx, inverse, invalidate, fps)
	c.confirmed.Add(1)

	span.SetStatus(codes.Ok, "confirmed")
	observe(ctx, "mutate", "confirmed", start)

	return Confirmed{Invalidated: invalidated}, nil
}

// hold reserves fps for one mutation, waiting for any other mutation holding
// one of them to settle.
func (c *Cache) hold(ctx context.Context, fps fingerprintList) (func(), error) {
	for {
		c.mu.Lock()

		var busy chan struct{}
		for _, fp := range fps {
			if ch, ok := c.mutating[fp]; ok {
				busy = ch
				break
			}
		}

		if busy == nil {
			done := make(chan struct{})
			for _, fp := range fps {
				c.mutating[fp] = done
			}
			c.mu.Unlock()

			return func() {
				c.mu.Lock()
				for _, fp := range fps {
					if c.mutating[fp] == done {
						delete(c.mutating, fp)
					}
				}
				c.mu.Unlock()
				close(done)
			}, nil
		}

		c.mu.Unlock()

		select {
		case <-busy:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// apply computes every patch, then captures the inverse and applies them.
func (c *Cache) apply(patches []Patch) ([]saved, error) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()

	working := map[Fingerprint]any{}
	var touched []Fingerprint

	for _, p := range patches {
		if p.Update == nil {
			c.mu.Unlock()
			return nil, fmt.Errorf("patch for %s has no update", p.Fingerprint)
		}

		current, ok := working[p.Fingerprint]
		if !ok {
			e, found := c.entries.get(p.Fingerprint)
			if !found || !e.hasValue {
				continue
			}
			current = e.value
			touched = append(touched, p.Fingerprint)
		}

		next, err := p.Update(current)
		if err != nil {
			c.mu.Unlock()
			return nil, err
		}
		working[p.Fingerprint] = next
	}

	inverse := make([]saved, 0, len(touched))
	notes := make([]notification, 0, len(touched))
	for _, fp := range touched {
		e := c.entries.ensure(fp)
		inverse = append(inverse, e.save(fp))
		e.value = working[fp]
		notes = append(notes, c.notificationFor(fp, e))
	}

	c.mu.Unlock()

	for _, n := range notes {
		n.deliver()
	}

	return inverse, nil
}

// unhold releases fps ahead of the deferred release, so fetches started while
// settling the mutation store their results. Must be called with mu held.
func (c *Cache) unhold(fps fingerprintList) {
	for _, fp := range fps {
		delete(c.mutating, fp)
	}
}

// refetchSubscribed starts a fetch for a stale entry that has subscribers.
// Must be called with mu held.
func (c *Cache) refetchSubscribed(fp Fingerprint, e *entry) {
	if len(c.subscribers[fp]) > 0 && e.hasValue && e.stale && !e.fetching && e.fetch != nil {
		c.startFetch(context.Background(), fp, e, e.tags)
	}
}

func (c *Cache) rollback(inverse []saved, fps fingerprintList) []Snapshot {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	c.unhold(fps)

	restored := make([]Snapshot, 0, len(inverse))
	notes := make([]notification, 0, len(inverse))
	for _, s := range inverse {
		e := c.entries.ensure(s.fp)
		if e.restore(s) {
			c.refetchSubscribed(s.fp, e)
		}
		restored = append(restored, e.snapshot(s.fp))
		notes = append(notes, c.notificationFor(s.fp, e))
	}

	c.mu.Unlock()

	for _, n := range notes {
		n.deliver()
	}

	return restored
}

func (c *Cache) confirm(ctx context.Context, inverse []saved, tags []Tag, fps fingerprintList) []Fingerprint {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	c.unhold(fps)

	var (
		staled []Fingerprint
		notes  []notification
	)

	// a fetch landed under the optimistic value: the entry needs another
	for _, s := range inverse {
		e, ok := c.entries.get(s.fp)
		if !ok || !e.refetch {
			continue
		}
		e.refetch = false
		e.stale = true
		c.refetchSubscribed(s.fp, e)
		staled = append(staled, s.fp)
		notes = append(notes, c.notificationFor(s.fp, e))
	}

	invalidated, invalidateNotes := c.invalidate(ctx, tags)
	for i, fp := range invalidated {
		if !slices.Contains(staled, fp) {
			staled = append(staled, fp)
			notes = append(notes, invalidateNotes[i])
		}
	}

	c.mu.Unlock()

	for _, n := range notes {
		n.deliver()
	}

	return staled
}

type fingerprintList []Fingerprint

func (l fingerprintList) String() string {
	return fmt.Sprint([]Fingerprint(l))
}

// fingerprints lists the distinct fingerprints patched, in order.
func fingerprints(patches []Patch) fingerprintList {
	var out fingerprintList
	for _, p := range patches {
		if !slices.Contains(out, p.Fingerprint) {
			out = append(out, p.Fingerprint)
		}
	}
	return out
}
