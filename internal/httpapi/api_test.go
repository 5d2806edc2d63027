package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pi-trace/registry/internal/cache"
	"github.com/pi-trace/registry/internal/domain/identity"
	"github.com/pi-trace/registry/internal/domain/payment"
	"github.com/pi-trace/registry/internal/domain/product"
	"github.com/pi-trace/registry/internal/events"
	"github.com/pi-trace/registry/internal/payments"
	"github.com/pi-trace/registry/internal/products"
	"github.com/pi-trace/registry/internal/remote"
	"github.com/pi-trace/registry/internal/server"
	"github.com/pi-trace/registry/internal/session"
	"github.com/pi-trace/registry/internal/wallet"
	"github.com/pi-trace/registry/pkg/logger"
)

// newStack wires the whole gateway against a real in-process remote store.
func newStack(t *testing.T) (http.Handler, *wallet.Mock) {
	t.Helper()
	remoteSrv := server.New(server.NewMemoryStore(), server.Config{JWTSecret: "test-secret", TokenTTL: time.Hour}, logger.NewNop())
	ts := httptest.NewServer(remoteSrv.Router())
	t.Cleanup(ts.Close)

	rc := remote.New(remote.Config{BaseURL: ts.URL + "/api"}, logger.NewNop())
	c := cache.New(cache.NewMemoryStore())
	hub := events.NewHub()
	mock := wallet.NewMock()

	sessions := session.NewManager(rc, c, mock, hub, logger.NewNop())
	registry := products.NewRegistry(sessions, rc, c, hub, logger.NewNop())
	coord := payments.NewCoordinator(sessions, rc, mock, hub, logger.NewNop(), payments.Config{
		PollInterval: 2 * time.Millisecond,
	})
	t.Cleanup(coord.Close)

	api := New(sessions, registry, coord, hub, logger.NewNop())
	return api.Router(), mock
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func do(t *testing.T, h http.Handler, method, path string, body any) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 && strings.Contains(rec.Header().Get("Content-Type"), "json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec.Code, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestHealthz(t *testing.T) {
	h, _ := newStack(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newStack(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pitrace_")
}

func TestSessionEndpoints(t *testing.T) {
	h, _ := newStack(t)

	code, _ := do(t, h, http.MethodGet, "/session", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, env := do(t, h, http.MethodPost, "/session/guest", nil)
	require.Equal(t, http.StatusOK, code)
	ident := decode[identity.Identity](t, env.Data)
	assert.True(t, strings.HasPrefix(ident.UID, "guest_"))
	assert.Equal(t, identity.KindGuest, ident.Kind)

	code, env = do(t, h, http.MethodGet, "/session", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, ident.UID, decode[identity.Identity](t, env.Data).UID)

	code, _ = do(t, h, http.MethodPost, "/session/logout", nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = do(t, h, http.MethodGet, "/session", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestWalletLogin(t *testing.T) {
	h, _ := newStack(t)

	code, env := do(t, h, http.MethodPost, "/session/wallet", nil)
	require.Equal(t, http.StatusOK, code)
	ident := decode[identity.Identity](t, env.Data)
	assert.Equal(t, "wallet-uid-1", ident.UID)
	assert.Equal(t, identity.KindWallet, ident.Kind)
	assert.NotEmpty(t, ident.Token)
}

func TestResumeWithoutCachedSession(t *testing.T) {
	h, _ := newStack(t)

	code, _ := do(t, h, http.MethodPost, "/session/resume", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestProductEndpoints(t *testing.T) {
	h, _ := newStack(t)
	code, _ := do(t, h, http.MethodPost, "/session/wallet", nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = do(t, h, http.MethodPost, "/products", product.Draft{Name: ""})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env := do(t, h, http.MethodPost, "/products", product.Draft{
		Name:     "Organic Coffee Beans",
		Category: product.CategoryFood,
		Quantity: 50,
		Unit:     "kg",
		Price:    2.5,
		Origin:   product.Origin{Country: "Indonesia", City: "Bali"},
	})
	require.Equal(t, http.StatusOK, code)
	created := decode[product.Product](t, env.Data)
	assert.NotEmpty(t, created.ID)
	assert.True(t, strings.HasPrefix(created.Hash, "FOO_"), "hash %q", created.Hash)

	code, env = do(t, h, http.MethodGet, "/products", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]product.Product](t, env.Data), 1)

	code, env = do(t, h, http.MethodGet, "/products/search?q=coffee", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]product.Product](t, env.Data), 1)

	code, env = do(t, h, http.MethodGet, "/products/search?q=laptop", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, decode[[]product.Product](t, env.Data))

	code, env = do(t, h, http.MethodGet, "/products/lookup?code="+created.Hash, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, created.ID, decode[product.Product](t, env.Data).ID)

	code, _ = do(t, h, http.MethodGet, "/products/lookup?code=FOO_MISSING00", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, env = do(t, h, http.MethodGet, "/products/"+created.ID+"/share", nil)
	require.Equal(t, http.StatusOK, code)
	share := decode[map[string]string](t, env.Data)
	assert.Contains(t, share["text"], created.Hash)

	code, env = do(t, h, http.MethodGet, "/products/overview", nil)
	require.Equal(t, http.StatusOK, code)
	stats := decode[products.Stats](t, env.Data)
	assert.Equal(t, 1, stats.Total)

	code, _ = do(t, h, http.MethodDelete, "/products/"+created.ID, nil)
	require.Equal(t, http.StatusOK, code)
	code, env = do(t, h, http.MethodGet, "/products", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, decode[[]product.Product](t, env.Data))
}

func TestProductsRequireSession(t *testing.T) {
	h, _ := newStack(t)

	code, _ := do(t, h, http.MethodGet, "/products", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestPaymentEndpoints(t *testing.T) {
	h, _ := newStack(t)
	code, _ := do(t, h, http.MethodPost, "/session/wallet", nil)
	require.Equal(t, http.StatusOK, code)

	code, env := do(t, h, http.MethodPost, "/payments/premium", nil)
	require.Equal(t, http.StatusOK, code)
	rec := decode[payment.Payment](t, env.Data)
	assert.Equal(t, 3.14, rec.Amount)
	assert.Equal(t, payment.StatusApproved, rec.Status)
	assert.Equal(t, "pi_mock_1", rec.Identifier)

	code, env = do(t, h, http.MethodGet, "/payments/"+rec.PaymentID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, rec.PaymentID, decode[payment.Payment](t, env.Data).PaymentID)

	code, _ = do(t, h, http.MethodGet, "/payments/pay_missing", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, env = do(t, h, http.MethodGet, "/payments/history", nil)
	require.Equal(t, http.StatusOK, code)
	var history struct {
		Payments []payment.Payment `json:"payments"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &history))
	assert.Len(t, history.Payments, 1)
}

func TestPaymentValidation(t *testing.T) {
	h, _ := newStack(t)
	code, _ := do(t, h, http.MethodPost, "/session/guest", nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = do(t, h, http.MethodPost, "/payments", payments.InitiateRequest{Amount: -1})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, h, http.MethodPost, "/payments/product/prod_missing", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestPaymentWalletDeclinedKeepsRecord(t *testing.T) {
	h, mock := newStack(t)
	code, _ := do(t, h, http.MethodPost, "/session/wallet", nil)
	require.Equal(t, http.StatusOK, code)
	mock.PayErr = wallet.ErrDeclined

	code, env := do(t, h, http.MethodPost, "/payments", payments.InitiateRequest{Amount: 1, Memo: "declined"})
	assert.Equal(t, http.StatusPaymentRequired, code)
	assert.False(t, env.Success)

	// The failed record is still addressable.
	rec := decode[payment.Payment](t, env.Data)
	assert.Equal(t, payment.StatusFailed, rec.Status)
	code, _ = do(t, h, http.MethodGet, "/payments/"+rec.PaymentID, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestEventsRecent(t *testing.T) {
	h, _ := newStack(t)
	code, _ := do(t, h, http.MethodPost, "/session/guest", nil)
	require.Equal(t, http.StatusOK, code)

	code, env := do(t, h, http.MethodGet, "/events/recent", nil)
	require.Equal(t, http.StatusOK, code)
	notices := decode[[]events.Notice](t, env.Data)
	require.NotEmpty(t, notices)
	assert.Contains(t, notices[len(notices)-1].Message, "Guest")
}
