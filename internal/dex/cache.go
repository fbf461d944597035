package dex

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0xivanov/dex-core/internal/model"
)

// Cache is a concurrency-safe map keyed by contract address.
type Cache[V any] struct {
	mu   sync.RWMutex
	data map[common.Address]V
}

func NewCache[V any]() *Cache[V] {
	return &Cache[V]{data: make(map[common.Address]V)}
}

func (c *Cache[V]) Get(address common.Address) (V, bool) {
	c.mu.RLock()
	v, ok := c.data[address]
	c.mu.RUnlock()
	return v, ok
}

func (c *Cache[V]) Set(address common.Address, v V) {
	c.mu.Lock()
	c.data[address] = v
	c.mu.Unlock()
}

func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// PoolMetaCache caches pool metadata by pool address.
type PoolMetaCache = Cache[model.PoolMeta]

// TokenMetaCache caches token metadata by token address.
type TokenMetaCache = Cache[model.TokenMeta]

func NewPoolMetaCache() *PoolMetaCache   { return NewCache[model.PoolMeta]() }
func NewTokenMetaCache() *TokenMetaCache { return NewCache[model.TokenMeta]() }
