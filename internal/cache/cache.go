// Package cache provides the process-local persisted fallback store holding
// the last-known identity and product list. It is consulted only after a
// remote store request has failed.
package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pi-trace/registry/internal/domain/identity"
	"github.com/pi-trace/registry/internal/domain/product"
)

// Persisted keys, part of the cache layout older installs already carry.
const (
	KeyCurrentUser  = "currentUser"
	KeyUserProducts = "userProducts"
)

// Store is a minimal blob store. Implementations must be safe for concurrent
// use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Cache exposes typed access to the persisted identity and product blobs over
// any Store backend.
type Cache struct {
	store Store
}

// New wraps a blob store.
func New(store Store) *Cache {
	return &Cache{store: store}
}

// SaveIdentity persists the current identity blob.
func (c *Cache) SaveIdentity(ctx context.Context, id identity.Identity) error {
	return c.setJSON(ctx, KeyCurrentUser, id)
}

// LoadIdentity reads the persisted identity. The second return is false when
// none is stored.
func (c *Cache) LoadIdentity(ctx context.Context) (identity.Identity, bool, error) {
	var id identity.Identity
	ok, err := c.getJSON(ctx, KeyCurrentUser, &id)
	return id, ok, err
}

// ClearIdentity removes the persisted identity.
func (c *Cache) ClearIdentity(ctx context.Context) error {
	return c.store.Delete(ctx, KeyCurrentUser)
}

// SaveProducts persists the whole product collection.
func (c *Cache) SaveProducts(ctx context.Context, items []product.Product) error {
	return c.setJSON(ctx, KeyUserProducts, items)
}

// LoadProducts reads the persisted product collection.
func (c *Cache) LoadProducts(ctx context.Context) ([]product.Product, bool, error) {
	var items []product.Product
	ok, err := c.getJSON(ctx, KeyUserProducts, &items)
	return items, ok, err
}

// ClearProducts removes the persisted product collection.
func (c *Cache) ClearProducts(ctx context.Context) error {
	return c.store.Delete(ctx, KeyUserProducts)
}

func (c *Cache) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := c.store.Set(ctx, key, data); err != nil {
		return fmt.Errorf("persist %s: %w", key, err)
	}
	return nil
}

func (c *Cache) getJSON(ctx context.Context, key string, v any) (bool, error) {
	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}
