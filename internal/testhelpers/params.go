package testhelpers

import (
	"maps"
	"net/http"
	"slices"
	"strconv"
	"strings"
)

func cut(route string) (method, path string, ok bool) {
	return strings.Cut(route, " ")
}

// pagination reads page and limit query parameters, defaulting to 1 and 10.
func pagination(r *http.Request) (page, limit int) {
	page, limit = 1, 10

	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}

	return page, limit
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
