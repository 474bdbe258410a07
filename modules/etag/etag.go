package etag

import (
	"fmt"
	"strings"
)

type ETaggable interface {
	V() string
}

// For HTTP headers, remember that the actual header value is usually quoted:
//
// fmt.Sprintf("%q", ETag(obj))
func ETag(obj ETaggable) string {
	return "v:" + obj.V()
}

func ParseETag(etag string) (string, error) {
	const prefix = "v:"
	if !strings.HasPrefix(etag, prefix) {
		return "", fmt.Errorf("invalid etag format")
	}
	return strings.TrimPrefix(etag, prefix), nil
}

// Match reports whether an If-None-Match header value matches the entity's
// current tag. Quoted and weak forms are accepted, as is the "*" wildcard.
func Match(ifNoneMatch string, obj ETaggable) bool {
	if ifNoneMatch == "" {
		return false
	}
	want := ETag(obj)
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimSpace(candidate)
		candidate = strings.TrimPrefix(candidate, "W/")
		candidate = strings.Trim(candidate, `"`)
		if candidate == "*" || candidate == want {
			return true
		}
	}
	return false
}
