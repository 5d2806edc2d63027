// Package products implements CRUD over the product collection scoped to the
// current identity, with a local-cache fallback when the remote store is
// unreachable.
package products

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pi-trace/registry/internal/cache"
	"github.com/pi-trace/registry/internal/domain/product"
	"github.com/pi-trace/registry/internal/events"
	"github.com/pi-trace/registry/internal/metrics"
	"github.com/pi-trace/registry/internal/remote"
	"github.com/pi-trace/registry/internal/session"
	"github.com/pi-trace/registry/pkg/logger"
)

var (
	// ErrNoSession rejects operations without an active identity.
	ErrNoSession = errors.New("no active session")
	// ErrNotFound means the product id or code is not in the collection.
	ErrNotFound = errors.New("product not found")
)

// Registry holds the in-memory product collection, most recent first, and
// mediates all access to it.
type Registry struct {
	mu        sync.RWMutex
	items     []product.Product
	localOnly map[string]struct{}

	sessions *session.Manager
	remote   *remote.Client
	cache    *cache.Cache
	hub      *events.Hub
	log      *logger.Logger
}

// NewRegistry creates a product registry. It clears its collection when the
// session ends.
func NewRegistry(sessions *session.Manager, rc *remote.Client, c *cache.Cache, hub *events.Hub, log *logger.Logger) *Registry {
	r := &Registry{
		localOnly: make(map[string]struct{}),
		sessions:  sessions,
		remote:    rc,
		cache:     c,
		hub:       hub,
		log:       log.Named("products"),
	}
	sessions.OnLogout(r.Reset)
	return r
}

// Create validates and registers a product. When the remote store rejects the
// request or is unreachable, a local record is synthesized and persisted to
// the cache instead; savedLocally reports that visible degraded mode.
func (r *Registry) Create(ctx context.Context, draft product.Draft) (created product.Product, savedLocally bool, err error) {
	ident, ok := r.sessions.Current()
	if !ok {
		return product.Product{}, false, ErrNoSession
	}
	if err := draft.Validate(); err != nil {
		return product.Product{}, false, err
	}
	draft = draft.Normalize()

	remoteRecord, remoteErr := r.remote.CreateProduct(ctx, remote.CreateProductRequest{
		Draft: draft,
		Owner: ident.UID,
	})
	if remoteErr == nil {
		if remoteRecord.Hash == "" {
			remoteRecord.Hash = r.uniqueHash(draft.Category)
		}
		r.prepend(remoteRecord, false)
		r.hub.Publish(events.LevelSuccess, "Product registered successfully!")
		r.log.WithField("product_id", remoteRecord.ID).WithField("hash", remoteRecord.Hash).
			Info("product registered")
		return remoteRecord, false, nil
	}

	// Degraded mode: synthesize a local record and persist the collection.
	metrics.CacheFallback("product_create")
	r.log.WithError(remoteErr).Warn("remote create failed, saving locally")

	now := time.Now().UTC()
	local := product.Product{
		ID:          fmt.Sprintf("prod_%d", now.UnixMilli()),
		Name:        draft.Name,
		Category:    draft.Category,
		Description: draft.Description,
		Quantity:    draft.Quantity,
		Unit:        draft.Unit,
		Price:       draft.Price,
		Origin:      draft.Origin,
		Hash:        r.uniqueHash(draft.Category),
		UploadedAt:  now,
		OwnerID:     ident.UID,
	}
	r.prepend(local, true)
	r.persist(ctx)
	r.hub.Publish(events.LevelWarning, "Failed to save to server. Product saved locally.")
	return local, true, nil
}

// List loads the collection for the current identity: from the remote store
// when reachable, from the local cache otherwise. A first-time session with
// an empty cache is seeded with two illustrative sample records.
func (r *Registry) List(ctx context.Context) ([]product.Product, error) {
	ident, ok := r.sessions.Current()
	if !ok {
		return nil, ErrNoSession
	}

	items, err := r.remote.ListProducts(ctx, ident.UID)
	if err == nil {
		r.mu.Lock()
		r.items = items
		r.mu.Unlock()
		r.log.WithField("count", len(items)).Info("loaded products from remote store")
		return r.All(), nil
	}

	metrics.CacheFallback("product_list")
	r.log.WithError(err).Warn("remote list failed, using local cache")

	cached, found, cacheErr := r.cache.LoadProducts(ctx)
	if cacheErr != nil {
		r.log.WithError(cacheErr).Warn("failed to read cached products")
	}
	if !found || len(cached) == 0 {
		cached = sampleProducts(ident.UID, time.Now().UTC())
		r.mu.Lock()
		r.items = cached
		for _, p := range cached {
			r.localOnly[p.ID] = struct{}{}
		}
		r.mu.Unlock()
		r.persist(ctx)
	} else {
		r.mu.Lock()
		r.items = cached
		r.mu.Unlock()
	}

	r.hub.Publish(events.LevelWarning, "Using local storage - some features may be limited")
	return r.All(), nil
}

// Delete removes a product. Local state always reflects the caller's intent:
// the record is dropped from the collection and the cache even when the
// remote call fails. Deleting an unknown id is a no-op.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if _, ok := r.sessions.Current(); !ok {
		return ErrNoSession
	}

	if err := r.remote.DeleteProduct(ctx, id); err != nil {
		metrics.CacheFallback("product_delete")
		r.log.WithError(err).WithField("product_id", id).
			Warn("remote delete failed, removing locally")
		r.removeLocal(ctx, id)
		r.hub.Publish(events.LevelInfo, "Product deleted locally")
		return nil
	}

	r.removeLocal(ctx, id)
	r.hub.Publish(events.LevelInfo, "Product deleted successfully")
	r.log.WithField("product_id", id).Info("product deleted")
	return nil
}

// Search returns a filtered view of the collection. It never mutates the
// underlying items; an empty term returns everything.
func (r *Registry) Search(term string) []product.Product {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]product.Product, 0, len(r.items))
	for _, p := range r.items {
		if p.Matches(term) {
			out = append(out, p)
		}
	}
	return out
}

// All returns a copy of the collection in insertion order.
func (r *Registry) All() []product.Product {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]product.Product, len(r.items))
	copy(out, r.items)
	return out
}

// Get returns one product by id.
func (r *Registry) Get(id string) (product.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.items {
		if p.ID == id {
			return p, nil
		}
	}
	return product.Product{}, ErrNotFound
}

// Share returns the share text for a product.
func (r *Registry) Share(id string) (string, error) {
	p, err := r.Get(id)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Check out %s on PI TRACE - Tracked on Blockchain. Hash: %s", p.Name, p.Hash), nil
}

// LookupByCode finds a product by its provenance hash, as scanned from a QR
// code or entered manually.
func (r *Registry) LookupByCode(code string) (product.Product, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return product.Product{}, ErrNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.items {
		if strings.EqualFold(p.Hash, code) {
			return p, nil
		}
	}
	return product.Product{}, ErrNotFound
}

// Stats summarizes the collection for the supply-chain overview.
type Stats struct {
	Total   int `json:"total"`
	Active  int `json:"active"`
	Shipped int `json:"shipped"`
}

// Overview returns supply-chain stats. Every registered product counts as
// active; shipment tracking is not recorded yet.
func (r *Registry) Overview() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{Total: len(r.items), Active: len(r.items)}
}

// Reset clears the in-memory collection. Wired to session logout.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.items = nil
	r.localOnly = make(map[string]struct{})
	r.mu.Unlock()
}

// SyncLocal re-pushes locally synthesized records to the remote store and
// swaps them for the server's canonical records on success. It returns how
// many records were pushed.
func (r *Registry) SyncLocal(ctx context.Context) (int, error) {
	ident, ok := r.sessions.Current()
	if !ok {
		return 0, ErrNoSession
	}

	r.mu.RLock()
	pending := make([]product.Product, 0, len(r.localOnly))
	for _, p := range r.items {
		if _, local := r.localOnly[p.ID]; local {
			pending = append(pending, p)
		}
	}
	r.mu.RUnlock()

	pushed := 0
	for _, p := range pending {
		created, err := r.remote.CreateProduct(ctx, remote.CreateProductRequest{
			Draft: product.Draft{
				Name:        p.Name,
				Category:    p.Category,
				Description: p.Description,
				Quantity:    p.Quantity,
				Unit:        p.Unit,
				Price:       p.Price,
				Origin:      p.Origin,
			},
			Owner: ident.UID,
		})
		if err != nil {
			metrics.SyncPush("error")
			return pushed, fmt.Errorf("push %s: %w", p.ID, err)
		}
		r.replaceLocal(p.ID, created)
		metrics.SyncPush("ok")
		pushed++
	}

	if pushed > 0 {
		r.persist(ctx)
		r.log.WithField("count", pushed).Info("re-pushed locally saved products")
	}
	return pushed, nil
}

// --- internals ---

func (r *Registry) prepend(p product.Product, localOnly bool) {
	r.mu.Lock()
	r.items = append([]product.Product{p}, r.items...)
	if localOnly {
		r.localOnly[p.ID] = struct{}{}
	}
	r.mu.Unlock()
}

func (r *Registry) removeLocal(ctx context.Context, id string) {
	r.mu.Lock()
	kept := r.items[:0]
	for _, p := range r.items {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	r.items = kept
	delete(r.localOnly, id)
	r.mu.Unlock()

	r.persist(ctx)
}

func (r *Registry) replaceLocal(oldID string, created product.Product) {
	r.mu.Lock()
	for i, p := range r.items {
		if p.ID == oldID {
			r.items[i] = created
			break
		}
	}
	delete(r.localOnly, oldID)
	r.mu.Unlock()
}

func (r *Registry) persist(ctx context.Context) {
	r.mu.RLock()
	items := make([]product.Product, len(r.items))
	copy(items, r.items)
	r.mu.RUnlock()

	if err := r.cache.SaveProducts(ctx, items); err != nil {
		r.log.WithError(err).Warn("failed to persist products")
	}
}

// uniqueHash generates a hash that does not collide with any record already
// in the collection.
func (r *Registry) uniqueHash(category product.Category) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for {
		h := product.GenerateHash(category)
		collision := false
		for _, p := range r.items {
			if p.Hash == h {
				collision = true
				break
			}
		}
		if !collision {
			return h
		}
	}
}
