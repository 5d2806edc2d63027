package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pi-trace/registry/internal/domain/identity"
	"github.com/pi-trace/registry/internal/domain/payment"
	"github.com/pi-trace/registry/pkg/logger"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL}, logger.NewNop())
}

func envelope(data any) map[string]any {
	return map[string]any{"success": true, "data": data}
}

func TestRegisterUser(t *testing.T) {
	var gotBody AuthRequest
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/auth", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(envelope(map[string]any{
			"user":  identity.Identity{UID: "u1", Username: "Pioneer", Kind: identity.KindWallet},
			"token": "jwt-token",
		}))
	}))

	result, err := client.RegisterUser(context.Background(), AuthRequest{
		Username:  "Pioneer",
		UID:       "u1",
		LoginType: identity.KindWallet,
	})
	require.NoError(t, err)
	assert.Equal(t, "jwt-token", result.Token)
	assert.Equal(t, "u1", result.User.UID)
	assert.Equal(t, identity.KindWallet, gotBody.LoginType)
}

func TestDoAttachesBearerToken(t *testing.T) {
	var gotAuth string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(envelope([]any{}))
	}))

	client.SetToken("tok123")
	_, err := client.ListProducts(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok123", gotAuth)

	client.ClearToken()
	_, err = client.ListProducts(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestDoEnvelopeFailure(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "amount must be positive"})
	}))

	_, err := client.CreatePayment(context.Background(), CreatePaymentRequest{Amount: -1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "amount must be positive")
}

func TestDoFalseSuccessWith200(t *testing.T) {
	// Some backends report failure inside the envelope with a 200 status.
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "nope"})
	}))

	_, err := client.ListProducts(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestDoTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // refuse connections

	client := New(Config{BaseURL: srv.URL}, logger.NewNop())
	_, err := client.ListProducts(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestGetPayment(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "pay_1", r.URL.Query().Get("paymentId"))
		json.NewEncoder(w).Encode(envelope(payment.Payment{
			PaymentID: "pay_1",
			Status:    payment.StatusCompleted,
			Amount:    3.14,
		}))
	}))

	p, err := client.GetPayment(context.Background(), "pay_1")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, p.Status)
	assert.Equal(t, 3.14, p.Amount)
}

func TestListPayments(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "u1", r.URL.Query().Get("userId"))
		json.NewEncoder(w).Encode(envelope(map[string]any{
			"payments": []payment.Payment{
				{PaymentID: "pay_2", Status: payment.StatusCompleted},
				{PaymentID: "pay_1", Status: payment.StatusFailed},
			},
		}))
	}))

	history, err := client.ListPayments(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "pay_2", history[0].PaymentID)
}

func TestUpdatePaymentRecoveryBody(t *testing.T) {
	var got UpdatePaymentRequest
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(envelope(nil))
	}))

	err := client.UpdatePayment(context.Background(), UpdatePaymentRequest{
		Identifier: "pi_abc",
		Status:     payment.StatusCompleted,
	})
	require.NoError(t, err)
	assert.Empty(t, got.PaymentID)
	assert.Equal(t, "pi_abc", got.Identifier)
	assert.Equal(t, payment.StatusCompleted, got.Status)
}
