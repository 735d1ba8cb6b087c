// Package cache provides memory.Cache implementations: an in-process
// ristretto cache (the default) and a shared Redis cache.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/MarcusD9722/Nova/memory"
)

// Local is an in-process TTL cache. Values are costed by their byte length.
type Local struct {
	c *ristretto.Cache
}

var _ memory.Cache = (*Local)(nil)

// NewLocal creates a cache holding about maxBytes of values. maxBytes <= 0
// selects 64 MiB.
func NewLocal(maxBytes int64) (*Local, error) {
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create ristretto cache: %w", err)
	}
	return &Local{c: c}, nil
}

// Set stores value under key. ristretto may drop the write under pressure;
// that is reported as a cache error. Wait makes an accepted write visible
// to the next Get.
func (l *Local) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	cp := make([]byte, len(value))
	copy(cp, value)

	if !l.c.SetWithTTL(key, cp, int64(len(cp))+1, ttl) {
		return fmt.Errorf("%w: set %s rejected", memory.ErrCache, key)
	}
	l.c.Wait()
	return nil
}

func (l *Local) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok := l.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, false, nil
	}
	return b, true, nil
}

// Delete removes key and reports whether it was present.
func (l *Local) Delete(ctx context.Context, key string) (bool, error) {
	_, present := l.c.Get(key)
	l.c.Del(key)
	return present, nil
}

func (l *Local) Close() error {
	l.c.Close()
	return nil
}
