package cache

import (
	"net/url"
	"sort"
	"strings"
)

// RequestKey builds a stable cache key from method, path and params, e.g.
// "GET:/api/clients?id=5". Params are sorted so the same request always maps
// to the same key.
func RequestKey(method, path string, params map[string]string) string {
	method = strings.ToUpper(method)
	if method == "" {
		method = "GET"
	}

	var parts []string
	for k, v := range params {
		if v == "" {
			continue
		}
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
	}
	sort.Strings(parts)

	key := method + ":" + path
	if len(parts) > 0 {
		key += "?" + strings.Join(parts, "&")
	}
	return key
}

// ResourcePattern returns the invalidation pattern for an API path: the
// first segment after an optional "/api" prefix. "/api/clients/5" yields
// "clients".
func ResourcePattern(path string) string {
	trimmed := strings.Trim(path, "/")
	trimmed = strings.TrimPrefix(trimmed, "api/")
	if i := strings.IndexAny(trimmed, "/?"); i >= 0 {
		trimmed = trimmed[:i]
	}
	return trimmed
}
