package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrNoFetcher is returned by Query when the entry holds no value and the
// caller supplied nothing to fetch one with.
var ErrNoFetcher = errors.New("no cached value and no fetcher supplied")

// Fingerprint identifies a cache entry by resource kind and parameters.
type Fingerprint string

// Key builds the fingerprint for kind and params. Params are JSON encoded, so
// maps and structs with the same content produce the same key.
func Key(kind string, params ...any) Fingerprint {
	if len(params) == 0 {
		return Fingerprint(kind)
	}

	encoded, err := json.Marshal(params)
	if err != nil {
		return Fingerprint(kind + fmt.Sprint(params...))
	}

	return Fingerprint(kind + string(encoded))
}

// Tag is a coarse invalidation label. Entries provide tags; mutations
// invalidate them. An invalidation tag without an ID matches every entry
// providing that type, with or without an ID.
type Tag struct {
	Type string
	ID   string
}

// TypeTag returns a tag matching every entry of the given type.
func TypeTag(t string) Tag {
	return Tag{Type: t}
}

// IDTag returns a tag for a single resource.
func IDTag(t, id string) Tag {
	return Tag{Type: t, ID: id}
}

func (t Tag) String() string {
	if t.ID == "" {
		return t.Type
	}
	return t.Type + ":" + t.ID
}

// matches reports whether invalidating t affects an entry providing provided.
func (t Tag) matches(provided Tag) bool {
	return t.Type == provided.Type && (t.ID == "" || t.ID == provided.ID)
}

// State is the lifecycle position of a cache entry.
type State int

const (
	StateEmpty State = iota
	StateFetching
	StateFresh
	StateStale
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateFetching:
		return "fetching"
	case StateFresh:
		return "fresh"
	case StateStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Snapshot is the observable state of one entry. Value is shared with the
// cache and must be treated as read-only.
type Snapshot struct {
	Fingerprint Fingerprint
	State       State
	Value       any
	// HasValue distinguishes a cached nil from no value. A fetching entry may
	// still hold its last known value.
	HasValue bool
	Tags     []Tag
}

func (s Snapshot) String() string {
	tags := make([]string, len(s.Tags))
	for i, t := range s.Tags {
		tags[i] = t.String()
	}
	return fmt.Sprintf("%s[%s](%s)", s.Fingerprint, s.State, strings.Join(tags, ","))
}

// Fetcher loads the value for an entry. It receives a context detached from
// the cancellation of the caller that triggered it: other callers may be
// waiting on the same fetch.
type Fetcher func(ctx context.Context) (any, error)

// Stats summarises cache activity.
type Stats struct {
	Entries    int
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	Fetches    uint64
	Confirmed  uint64
	RolledBack uint64
}

func providesAny(provided []Tag, invalidate []Tag) bool {
	return slices.ContainsFunc(invalidate, func(t Tag) bool {
		return slices.ContainsFunc(provided, t.matches)
	})
}
