package blobstore

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"go.uber.org/zap"
)

type mapCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	hits    int
	failAll bool
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string][]byte)}
}

func (m *mapCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return nil, false, fmt.Errorf("cache offline")
	}
	v, ok := m.entries[key]
	if ok {
		m.hits++
	}
	return v, ok, nil
}

func (m *mapCache) Put(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return fmt.Errorf("cache offline")
	}
	m.entries[key] = value
	return nil
}

func TestCachedBackend(t *testing.T) {
	ctx := context.Background()

	t.Run("serves from cache after put", func(t *testing.T) {
		mem := NewMemoryBackend()
		cache := newMapCache()
		cb := NewCachedBackend(mem, cache, zap.NewNop())

		addr, err := cb.Put(ctx, []byte("log body"), "")
		if err != nil {
			t.Fatal(err)
		}
		mem.Delete(addr)

		got, err := cb.Get(ctx, addr)
		if err != nil {
			t.Fatalf("expected cache hit, got %v", err)
		}
		if string(got) != "log body" || cache.hits != 1 {
			t.Errorf("got %q hits=%d", got, cache.hits)
		}
	})

	t.Run("read through populates", func(t *testing.T) {
		mem := NewMemoryBackend()
		cache := newMapCache()
		addr, _ := mem.Put(ctx, []byte("direct"), "")

		cb := NewCachedBackend(mem, cache, zap.NewNop())
		if _, err := cb.Get(ctx, addr); err != nil {
			t.Fatal(err)
		}
		if _, ok := cache.entries[addr]; !ok {
			t.Error("expected entry to be cached after backend read")
		}
	})

	t.Run("cache failure is not fatal", func(t *testing.T) {
		mem := NewMemoryBackend()
		cache := newMapCache()
		cache.failAll = true
		cb := NewCachedBackend(mem, cache, zap.NewNop())

		addr, err := cb.Put(ctx, []byte("still stored"), "")
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		got, err := cb.Get(ctx, addr)
		if err != nil || string(got) != "still stored" {
			t.Fatalf("Get = %q, %v", got, err)
		}
	})
}
