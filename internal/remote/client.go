// Package remote implements the HTTP client for the remote store, the backend
// API of record for users, products and payments. It does request/response
// mapping only; fallback policy lives with the callers.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/pi-trace/registry/internal/domain/identity"
	"github.com/pi-trace/registry/internal/domain/payment"
	"github.com/pi-trace/registry/internal/domain/product"
	"github.com/pi-trace/registry/pkg/logger"
)

// ErrUnavailable wraps every transport, HTTP or envelope failure. Callers
// branch on it to decide whether a local-cache fallback applies.
var ErrUnavailable = errors.New("remote store unavailable")

const maxResponseBytes = 8 << 20

// Config configures the client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// Rate and Burst bound outgoing requests; zero values disable limiting.
	Rate  float64
	Burst int
}

// Client is the remote store client. It is safe for concurrent use; the
// session manager installs and clears the bearer token.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	log        *logger.Logger

	token atomicToken
}

// New creates a remote store client.
func New(cfg Config, log *logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	var limiter *rate.Limiter
	if cfg.Rate > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.Rate), burst)
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		limiter:    limiter,
		log:        log.Named("remote"),
	}
}

// SetToken installs the bearer token attached to subsequent requests.
func (c *Client) SetToken(token string) { c.token.set(token) }

// ClearToken removes the bearer token.
func (c *Client) ClearToken() { c.token.set("") }

// do executes one request and decodes the success envelope into out (which
// may be nil). The envelope is {success, data, message}; a false success or a
// non-2xx status surfaces the server's message.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.token.get(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	// Probe the envelope before committing to a typed decode: error responses
	// carry {success:false, message} with no data shape.
	if resp.StatusCode >= 400 || !gjson.GetBytes(raw, "success").Bool() {
		msg := strings.TrimSpace(gjson.GetBytes(raw, "message").String())
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return fmt.Errorf("%w: %s %s: %s", ErrUnavailable, method, path, msg)
	}

	if out == nil {
		return nil
	}
	data := gjson.GetBytes(raw, "data")
	if !data.Exists() {
		return fmt.Errorf("%w: %s %s: envelope has no data", ErrUnavailable, method, path)
	}
	if err := json.Unmarshal([]byte(data.Raw), out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Auth
// ---------------------------------------------------------------------------

// AuthRequest registers an identity with the remote store.
type AuthRequest struct {
	Username      string        `json:"username"`
	UID           string        `json:"uid"`
	AccessToken   string        `json:"accessToken,omitempty"`
	LoginType     identity.Kind `json:"loginType"`
	WalletAddress string        `json:"walletAddress,omitempty"`
}

// AuthResult carries the server-side user record and the session token.
type AuthResult struct {
	User  identity.Identity `json:"user"`
	Token string            `json:"token"`
}

// RegisterUser registers the identity and returns the server's record plus a
// session token.
func (c *Client) RegisterUser(ctx context.Context, req AuthRequest) (AuthResult, error) {
	var result AuthResult
	if err := c.do(ctx, http.MethodPost, "/auth", req, &result); err != nil {
		return AuthResult{}, err
	}
	c.log.WithField("uid", req.UID).WithField("login_type", req.LoginType).
		Debug("registered user with remote store")
	return result, nil
}

// ---------------------------------------------------------------------------
// Products
// ---------------------------------------------------------------------------

// CreateProductRequest is a draft plus its owner.
type CreateProductRequest struct {
	product.Draft
	Owner string `json:"owner"`
}

// ListProducts fetches the owner's products.
func (c *Client) ListProducts(ctx context.Context, ownerID string) ([]product.Product, error) {
	var items []product.Product
	path := "/products?userId=" + url.QueryEscape(ownerID)
	if err := c.do(ctx, http.MethodGet, path, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// CreateProduct registers a product and returns the server's record.
func (c *Client) CreateProduct(ctx context.Context, req CreateProductRequest) (product.Product, error) {
	var created product.Product
	if err := c.do(ctx, http.MethodPost, "/products", req, &created); err != nil {
		return product.Product{}, err
	}
	return created, nil
}

// DeleteProduct removes a product by id.
func (c *Client) DeleteProduct(ctx context.Context, id string) error {
	body := struct {
		ID string `json:"id"`
	}{ID: id}
	return c.do(ctx, http.MethodDelete, "/products", body, nil)
}

// ---------------------------------------------------------------------------
// Payments
// ---------------------------------------------------------------------------

// CreatePaymentRequest registers payment intent with the remote store.
type CreatePaymentRequest struct {
	Amount      float64           `json:"amount"`
	Memo        string            `json:"memo"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ServiceType string            `json:"serviceType,omitempty"`
	ProductID   string            `json:"productId,omitempty"`
}

// UpdatePaymentRequest moves a remote payment's status. Exactly one of
// PaymentID or Identifier addresses the record; Identifier alone is the
// incomplete-payment recovery path.
type UpdatePaymentRequest struct {
	PaymentID  string         `json:"paymentId,omitempty"`
	Identifier string         `json:"identifier,omitempty"`
	Status     payment.Status `json:"status"`
}

// CreatePayment registers intent and returns the server-assigned record.
func (c *Client) CreatePayment(ctx context.Context, req CreatePaymentRequest) (payment.Payment, error) {
	var created payment.Payment
	if err := c.do(ctx, http.MethodPost, "/payments", req, &created); err != nil {
		return payment.Payment{}, err
	}
	return created, nil
}

// UpdatePayment applies a status change remotely.
func (c *Client) UpdatePayment(ctx context.Context, req UpdatePaymentRequest) error {
	return c.do(ctx, http.MethodPut, "/payments", req, nil)
}

// GetPayment fetches one payment by its server-assigned id.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (payment.Payment, error) {
	var p payment.Payment
	path := "/payments?paymentId=" + url.QueryEscape(paymentID)
	if err := c.do(ctx, http.MethodGet, path, nil, &p); err != nil {
		return payment.Payment{}, err
	}
	return p, nil
}

// paymentsEnvelope matches the {payments: [...]} data shape of the history
// endpoint.
type paymentsEnvelope struct {
	Payments []payment.Payment `json:"payments"`
}

// ListPayments fetches the owner's payment history.
func (c *Client) ListPayments(ctx context.Context, ownerID string) ([]payment.Payment, error) {
	var env paymentsEnvelope
	path := "/payments?userId=" + url.QueryEscape(ownerID)
	if err := c.do(ctx, http.MethodGet, path, nil, &env); err != nil {
		return nil, err
	}
	return env.Payments, nil
}
