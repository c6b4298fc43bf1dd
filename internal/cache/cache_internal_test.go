package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	assert.Equal(t, Fingerprint("cart"), Key("cart"))
	assert.Equal(t, Fingerprint(`products[1,20]`), Key("products", 1, 20))
	assert.Equal(t,
		Key("orders", map[string]int{"page": 1, "limit": 10}),
		Key("orders", map[string]int{"limit": 10, "page": 1}),
		"map params are encoded in key order",
	)
	assert.NotEqual(t, Key("product", "p-1"), Key("product", "p-2"))
	assert.NotEqual(t, Key("products", 1, 20), Key("my-products", 1, 20))
}

func TestTagMatches(t *testing.T) {
	cases := []struct {
		name       string
		invalidate Tag
		provided   Tag
		matches    bool
	}{
		{"type matches type", TypeTag("Cart"), TypeTag("Cart"), true},
		{"type matches any id", TypeTag("Products"), IDTag("Products", "p-1"), true},
		{"id matches same id", IDTag("Products", "p-1"), IDTag("Products", "p-1"), true},
		{"id does not match other id", IDTag("Products", "p-1"), IDTag("Products", "p-2"), false},
		{"id does not match bare type", IDTag("Products", "p-1"), TypeTag("Products"), false},
		{"different type", TypeTag("Orders"), TypeTag("Cart"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.matches, tc.invalidate.matches(tc.provided))
		})
	}
}

func TestEntryState(t *testing.T) {
	cases := []struct {
		name  string
		entry entry
		state State
	}{
		{"empty", entry{}, StateEmpty},
		{"first fetch", entry{fetching: true}, StateFetching},
		{"fresh", entry{hasValue: true}, StateFresh},
		{"stale", entry{hasValue: true, stale: true}, StateStale},
		{"refetching", entry{hasValue: true, stale: true, fetching: true}, StateFetching},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.state, tc.entry.state())
		})
	}
}

func TestTagString(t *testing.T) {
	assert.Equal(t, "Cart", TypeTag("Cart").String())
	assert.Equal(t, "Orders:o-1", IDTag("Orders", "o-1").String())
}
