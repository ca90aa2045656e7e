package storage

import (
	"net/url"
	"strings"

	"github.com/prn-tf/amplify-storage/internal/domain"
)

const (
	cacheControlImmutable = "public, max-age=31536000, immutable"
	cacheControlDocument  = "public, max-age=3600"
)

// CacheControlFor returns the Cache-Control header for objects of a category.
// Keys embed a timestamp and random suffix, so media can be cached forever.
func CacheControlFor(category domain.ContentCategory) string {
	switch category {
	case domain.CategoryImage, domain.CategoryVideo:
		return cacheControlImmutable
	default:
		return cacheControlDocument
	}
}

// EscapeKey percent-encodes each path segment of an object key for use in a URL.
func EscapeKey(key string) string {
	segments := strings.Split(strings.TrimLeft(key, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

// JoinURL appends an escaped key to a base URL.
func JoinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + EscapeKey(key)
}
