package cache

import "time"

// CacheService defines the interface for cache operations. It holds
// short-lived crawl state that should survive restarts but not matter if
// lost: robots.txt bodies and portal block markers.
type CacheService interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte, expiration time.Duration) error
	Delete(key string) error
}
