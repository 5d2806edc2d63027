package products

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pi-trace/registry/internal/cache"
	"github.com/pi-trace/registry/internal/domain/product"
	"github.com/pi-trace/registry/internal/events"
	"github.com/pi-trace/registry/internal/remote"
	"github.com/pi-trace/registry/internal/session"
	"github.com/pi-trace/registry/pkg/logger"
)

// fakeRemote is a minimal remote store: auth always succeeds, product routes
// can be switched into failure mode to exercise the local fallback.
type fakeRemote struct {
	mu    sync.Mutex
	fail  bool
	items []product.Product
	seq   int
}

func (f *fakeRemote) setFail(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

func (f *fakeRemote) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth", func(w http.ResponseWriter, r *http.Request) {
		var req remote.AuthRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"user":  map[string]any{"uid": req.UID, "username": req.Username, "loginType": req.LoginType},
				"token": "tok",
			},
		})
	})
	mux.HandleFunc("/products", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.fail {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "down"})
			return
		}
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(map[string]any{"success": true, "data": f.items})
		case http.MethodPost:
			var req remote.CreateProductRequest
			json.NewDecoder(r.Body).Decode(&req)
			f.seq++
			rec := product.Product{
				ID:          fmt.Sprintf("srv_%d", f.seq),
				Name:        req.Name,
				Category:    req.Category,
				Description: req.Description,
				Quantity:    req.Quantity,
				Unit:        req.Unit,
				Price:       req.Price,
				Origin:      req.Origin,
				Hash:        product.GenerateHash(req.Category),
				UploadedAt:  time.Now().UTC(),
				OwnerID:     req.Owner,
			}
			f.items = append(f.items, rec)
			json.NewEncoder(w).Encode(map[string]any{"success": true, "data": rec})
		case http.MethodDelete:
			var req struct {
				ID string `json:"id"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			for i, p := range f.items {
				if p.ID == req.ID {
					f.items = append(f.items[:i], f.items[i+1:]...)
					break
				}
			}
			json.NewEncoder(w).Encode(map[string]any{"success": true, "data": nil})
		}
	})
	return mux
}

type fixture struct {
	registry *Registry
	sessions *session.Manager
	cache    *cache.Cache
	remote   *fakeRemote
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fakeRemote{}
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	c := cache.New(cache.NewMemoryStore())
	rc := remote.New(remote.Config{BaseURL: srv.URL}, logger.NewNop())
	hub := events.NewHub()
	sessions := session.NewManager(rc, c, nil, hub, logger.NewNop())
	reg := NewRegistry(sessions, rc, c, hub, logger.NewNop())
	return &fixture{registry: reg, sessions: sessions, cache: c, remote: f}
}

func draft() product.Draft {
	return product.Draft{
		Name:     "Organic Coffee Beans",
		Category: product.CategoryFood,
		Quantity: 50,
		Unit:     "kg",
		Price:    2.5,
		Origin:   product.Origin{Country: "Indonesia", City: "Bali"},
	}
}

func TestCreateRequiresSession(t *testing.T) {
	fx := newFixture(t)

	_, _, err := fx.registry.Create(context.Background(), draft())
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestCreateValidatesDraft(t *testing.T) {
	fx := newFixture(t)
	fx.sessions.LoginAsGuest(context.Background())

	d := draft()
	d.Name = ""
	_, _, err := fx.registry.Create(context.Background(), d)
	assert.ErrorIs(t, err, product.ErrNameRequired)
}

func TestCreateRemote(t *testing.T) {
	fx := newFixture(t)
	fx.sessions.LoginAsGuest(context.Background())

	created, savedLocally, err := fx.registry.Create(context.Background(), draft())
	require.NoError(t, err)
	assert.False(t, savedLocally)
	assert.Equal(t, "srv_1", created.ID)
	assert.NotEmpty(t, created.Hash)

	all := fx.registry.All()
	require.Len(t, all, 1)
	assert.Equal(t, created.ID, all[0].ID)
}

func TestCreateLocalFallback(t *testing.T) {
	fx := newFixture(t)
	fx.sessions.LoginAsGuest(context.Background())
	fx.remote.setFail(true)

	created, savedLocally, err := fx.registry.Create(context.Background(), draft())
	require.NoError(t, err, "remote failure must degrade, not error")
	assert.True(t, savedLocally)
	assert.True(t, strings.HasPrefix(created.ID, "prod_"), "id %q", created.ID)
	assert.True(t, strings.HasPrefix(created.Hash, "FOO_"), "hash %q", created.Hash)
	assert.Equal(t, "No description provided", created.Description)

	// The degraded record is persisted for the next start.
	cached, found, err := fx.cache.LoadProducts(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, cached, 1)
	assert.Equal(t, created.ID, cached[0].ID)
}

func TestCreatePrependsNewest(t *testing.T) {
	fx := newFixture(t)
	fx.sessions.LoginAsGuest(context.Background())

	first, _, err := fx.registry.Create(context.Background(), draft())
	require.NoError(t, err)
	d := draft()
	d.Name = "Batik Scarf"
	d.Category = product.CategoryClothing
	second, _, err := fx.registry.Create(context.Background(), d)
	require.NoError(t, err)

	all := fx.registry.All()
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID, "newest first")
	assert.Equal(t, first.ID, all[1].ID)
}

func TestListRemote(t *testing.T) {
	fx := newFixture(t)
	fx.sessions.LoginAsGuest(context.Background())
	_, _, err := fx.registry.Create(context.Background(), draft())
	require.NoError(t, err)

	items, err := fx.registry.List(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "srv_1", items[0].ID)
}

func TestListFallbackSeedsSamples(t *testing.T) {
	fx := newFixture(t)
	fx.sessions.LoginAsGuest(context.Background())
	fx.remote.setFail(true)

	items, err := fx.registry.List(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Organic Coffee Beans", items[0].Name)
	assert.Equal(t, "Handcrafted Batik Scarf", items[1].Name)
	assert.True(t, strings.HasPrefix(items[0].Hash, "COFFEE_"), "hash %q", items[0].Hash)
	assert.True(t, strings.HasPrefix(items[1].Hash, "BATIK_"), "hash %q", items[1].Hash)

	// Samples are persisted so the next fallback does not reseed.
	cached, found, err := fx.cache.LoadProducts(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	assert.Len(t, cached, 2)
}

func TestListFallbackUsesCache(t *testing.T) {
	fx := newFixture(t)
	ident := fx.sessions.LoginAsGuest(context.Background())
	stored := []product.Product{{ID: "prod_9", Name: "Cached Tea", Category: product.CategoryFood, OwnerID: ident.UID}}
	require.NoError(t, fx.cache.SaveProducts(context.Background(), stored))
	fx.remote.setFail(true)

	items, err := fx.registry.List(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Cached Tea", items[0].Name)
}

func TestDeleteRemote(t *testing.T) {
	fx := newFixture(t)
	fx.sessions.LoginAsGuest(context.Background())
	created, _, err := fx.registry.Create(context.Background(), draft())
	require.NoError(t, err)

	require.NoError(t, fx.registry.Delete(context.Background(), created.ID))
	assert.Empty(t, fx.registry.All())
}

func TestDeleteRemoteFailureRemovesLocally(t *testing.T) {
	fx := newFixture(t)
	fx.sessions.LoginAsGuest(context.Background())
	created, _, err := fx.registry.Create(context.Background(), draft())
	require.NoError(t, err)
	fx.remote.setFail(true)

	require.NoError(t, fx.registry.Delete(context.Background(), created.ID))
	assert.Empty(t, fx.registry.All(), "local state reflects the caller's intent")
}

func TestDeleteUnknownIDIsNoop(t *testing.T) {
	fx := newFixture(t)
	fx.sessions.LoginAsGuest(context.Background())

	assert.NoError(t, fx.registry.Delete(context.Background(), "prod_missing"))
}

func TestSearch(t *testing.T) {
	fx := newFixture(t)
	fx.sessions.LoginAsGuest(context.Background())
	_, _, err := fx.registry.Create(context.Background(), draft())
	require.NoError(t, err)
	d := draft()
	d.Name = "Batik Scarf"
	d.Category = product.CategoryClothing
	_, _, err = fx.registry.Create(context.Background(), d)
	require.NoError(t, err)

	assert.Len(t, fx.registry.Search(""), 2, "empty term returns everything")
	assert.Len(t, fx.registry.Search("coffee"), 1)
	assert.Len(t, fx.registry.Search("BATIK"), 1)
	assert.Empty(t, fx.registry.Search("laptop"))
}

func TestLookupByCode(t *testing.T) {
	fx := newFixture(t)
	fx.sessions.LoginAsGuest(context.Background())
	created, _, err := fx.registry.Create(context.Background(), draft())
	require.NoError(t, err)

	found, err := fx.registry.LookupByCode(strings.ToLower(created.Hash))
	require.NoError(t, err, "lookup is case-insensitive")
	assert.Equal(t, created.ID, found.ID)

	_, err = fx.registry.LookupByCode("FOO_NOPE00000")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = fx.registry.LookupByCode("  ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestShare(t *testing.T) {
	fx := newFixture(t)
	fx.sessions.LoginAsGuest(context.Background())
	created, _, err := fx.registry.Create(context.Background(), draft())
	require.NoError(t, err)

	text, err := fx.registry.Share(created.ID)
	require.NoError(t, err)
	assert.Contains(t, text, created.Name)
	assert.Contains(t, text, created.Hash)

	_, err = fx.registry.Share("prod_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOverview(t *testing.T) {
	fx := newFixture(t)
	fx.sessions.LoginAsGuest(context.Background())
	_, _, err := fx.registry.Create(context.Background(), draft())
	require.NoError(t, err)

	stats := fx.registry.Overview()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, 0, stats.Shipped)
}

func TestLogoutClearsCollection(t *testing.T) {
	fx := newFixture(t)
	fx.sessions.LoginAsGuest(context.Background())
	_, _, err := fx.registry.Create(context.Background(), draft())
	require.NoError(t, err)

	fx.sessions.Logout(context.Background())
	assert.Empty(t, fx.registry.All())
}

func TestSyncLocal(t *testing.T) {
	fx := newFixture(t)
	fx.sessions.LoginAsGuest(context.Background())

	fx.remote.setFail(true)
	local, savedLocally, err := fx.registry.Create(context.Background(), draft())
	require.NoError(t, err)
	require.True(t, savedLocally)

	fx.remote.setFail(false)
	pushed, err := fx.registry.SyncLocal(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, pushed)

	// The local record is swapped for the server's canonical one.
	all := fx.registry.All()
	require.Len(t, all, 1)
	assert.NotEqual(t, local.ID, all[0].ID)
	assert.True(t, strings.HasPrefix(all[0].ID, "srv_"))

	// Nothing left to push.
	pushed, err = fx.registry.SyncLocal(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pushed)
}
