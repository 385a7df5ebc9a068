package cache

import (
	"sort"
	"strings"
)

const (
	keySeparator   = ":"
	valueSeparator = "="
)

// Hit is the result of a hierarchical lookup.
type Hit struct {
	Value any
	Key   string
	// Exact is false when the value came from a broader key.
	Exact bool
}

// HierarchicalKey builds base:name=value:... with dimensions sorted by
// name, so the same filter set always yields the same key. Empty values
// are left out.
func HierarchicalKey(base string, filters map[string]string) string {
	keys := FallbackKeys(base, filters)
	return keys[0]
}

// FallbackKeys lists the lookup order for a filter set: the full key, then
// the key with its last dimension stripped, down to the bare base.
func FallbackKeys(base string, filters map[string]string) []string {
	names := make([]string, 0, len(filters))
	for name, value := range filters {
		if value == "" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	prefixes := make([]string, len(names)+1)
	var sb strings.Builder
	sb.WriteString(base)
	prefixes[0] = sb.String()
	for i, name := range names {
		sb.WriteString(keySeparator)
		sb.WriteString(name)
		sb.WriteString(valueSeparator)
		sb.WriteString(filters[name])
		prefixes[i+1] = sb.String()
	}

	keys := make([]string, 0, len(prefixes))
	for i := len(prefixes) - 1; i >= 0; i-- {
		keys = append(keys, prefixes[i])
	}
	return keys
}

// GetHierarchical tries the most specific key first and falls back to
// progressively broader keys. A broader hit is an approximate answer for
// the specific query.
func (c *Cache) GetHierarchical(base string, filters map[string]string) (Hit, bool) {
	for i, key := range FallbackKeys(base, filters) {
		if value, ok := c.Get(key); ok {
			return Hit{Value: value, Key: key, Exact: i == 0}, true
		}
	}
	return Hit{}, false
}

func (c *Cache) SetHierarchical(base string, filters map[string]string, value any) string {
	key := HierarchicalKey(base, filters)
	c.Set(key, value)
	return key
}
