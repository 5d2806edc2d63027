package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pi-trace/registry/internal/domain/identity"
	"github.com/pi-trace/registry/internal/domain/payment"
	"github.com/pi-trace/registry/internal/domain/product"
	"github.com/pi-trace/registry/pkg/logger"
)

// Config configures the remote store server.
type Config struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// Server serves the /api surface the gateway client consumes. All responses
// use the {success, data, message} envelope.
type Server struct {
	store  Store
	secret []byte
	ttl    time.Duration
	log    *logger.Logger
}

// New creates a server over the given store.
func New(store Store, cfg Config, log *logger.Logger) *Server {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Server{
		store:  store,
		secret: []byte(cfg.JWTSecret),
		ttl:    ttl,
		log:    log.Named("server"),
	}
}

// Router builds the gin engine with the /api routes mounted.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.POST("/auth", s.auth)

	authed := api.Group("", s.requireToken())
	{
		authed.GET("/products", s.listProducts)
		authed.POST("/products", s.createProduct)
		authed.DELETE("/products", s.deleteProduct)

		authed.POST("/payments", s.createPayment)
		authed.PUT("/payments", s.updatePayment)
		authed.GET("/payments", s.getPayments)
	}

	return r
}

// --- envelope helpers ---

func respond(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func respondErr(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "message": message})
}

// --- auth ---

type sessionClaims struct {
	Username  string        `json:"username"`
	LoginType identity.Kind `json:"loginType"`
	jwt.RegisteredClaims
}

type authRequest struct {
	Username      string        `json:"username"`
	UID           string        `json:"uid"`
	LoginType     identity.Kind `json:"loginType"`
	WalletAddress string        `json:"walletAddress"`
}

func (s *Server) auth(c *gin.Context) {
	var req authRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UID == "" {
		respondErr(c, http.StatusBadRequest, "uid is required")
		return
	}
	if req.LoginType != identity.KindWallet && req.LoginType != identity.KindGuest {
		respondErr(c, http.StatusBadRequest, "unknown loginType")
		return
	}

	user, err := s.store.UpsertUser(c.Request.Context(), identity.Identity{
		UID:           req.UID,
		Username:      req.Username,
		Kind:          req.LoginType,
		WalletAddress: req.WalletAddress,
	})
	if err != nil {
		s.log.WithError(err).Error("user upsert failed")
		respondErr(c, http.StatusInternalServerError, "registration failed")
		return
	}

	token, err := s.mintToken(user)
	if err != nil {
		s.log.WithError(err).Error("token mint failed")
		respondErr(c, http.StatusInternalServerError, "registration failed")
		return
	}

	s.log.WithField("uid", user.UID).WithField("login_type", user.Kind).Info("user registered")
	respond(c, gin.H{"user": user, "token": token})
}

func (s *Server) mintToken(user identity.Identity) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		Username:  user.Username,
		LoginType: user.Kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.UID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// requireToken validates the bearer token and stores the caller's uid in the
// request context.
func (s *Server) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, found := strings.CutPrefix(header, "Bearer ")
		if !found || raw == "" {
			respondErr(c, http.StatusUnauthorized, "missing bearer token")
			c.Abort()
			return
		}

		claims := &sessionClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return s.secret, nil
		})
		if err != nil {
			respondErr(c, http.StatusUnauthorized, "invalid token")
			c.Abort()
			return
		}

		c.Set("uid", claims.Subject)
		c.Next()
	}
}

// --- products ---

type createProductRequest struct {
	product.Draft
	Owner string `json:"owner"`
}

func (s *Server) listProducts(c *gin.Context) {
	ownerID := c.Query("userId")
	if ownerID == "" {
		ownerID = c.GetString("uid")
	}
	items, err := s.store.ListProducts(c.Request.Context(), ownerID)
	if err != nil {
		s.log.WithError(err).Error("product listing failed")
		respondErr(c, http.StatusInternalServerError, "could not list products")
		return
	}
	respond(c, items)
}

func (s *Server) createProduct(c *gin.Context) {
	var req createProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Draft.Validate(); err != nil {
		respondErr(c, http.StatusBadRequest, err.Error())
		return
	}
	draft := req.Draft.Normalize()

	owner := req.Owner
	if owner == "" {
		owner = c.GetString("uid")
	}

	rec := product.Product{
		ID:          "prod_" + uuid.NewString(),
		Name:        draft.Name,
		Category:    draft.Category,
		Description: draft.Description,
		Quantity:    draft.Quantity,
		Unit:        draft.Unit,
		Price:       draft.Price,
		Origin:      draft.Origin,
		Hash:        product.GenerateHash(draft.Category),
		UploadedAt:  time.Now().UTC(),
		OwnerID:     owner,
	}

	// Retry on hash collision; the id is a fresh uuid and cannot collide.
	for attempt := 0; ; attempt++ {
		err := s.store.InsertProduct(c.Request.Context(), rec)
		if err == nil {
			break
		}
		if errors.Is(err, ErrDuplicate) && attempt < 5 {
			rec.Hash = product.GenerateHash(draft.Category)
			continue
		}
		s.log.WithError(err).Error("product insert failed")
		respondErr(c, http.StatusInternalServerError, "could not save product")
		return
	}

	s.log.WithField("product_id", rec.ID).WithField("owner", owner).Info("product registered")
	respond(c, rec)
}

func (s *Server) deleteProduct(c *gin.Context) {
	var req struct {
		ID string `json:"id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.ID == "" {
		respondErr(c, http.StatusBadRequest, "product id is required")
		return
	}
	if err := s.store.DeleteProduct(c.Request.Context(), req.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			respondErr(c, http.StatusNotFound, "product not found")
			return
		}
		s.log.WithError(err).Error("product delete failed")
		respondErr(c, http.StatusInternalServerError, "could not delete product")
		return
	}
	respond(c, gin.H{"id": req.ID})
}

// --- payments ---

type createPaymentRequest struct {
	Amount      float64           `json:"amount"`
	Memo        string            `json:"memo"`
	Metadata    map[string]string `json:"metadata"`
	ServiceType string            `json:"serviceType"`
	ProductID   string            `json:"productId"`
}

func (s *Server) createPayment(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Amount <= 0 {
		respondErr(c, http.StatusBadRequest, "amount must be positive")
		return
	}

	meta := req.Metadata
	if req.ServiceType != "" {
		if meta == nil {
			meta = make(map[string]string, 1)
		}
		meta["serviceType"] = req.ServiceType
	}

	rec := payment.Payment{
		PaymentID: "pay_" + uuid.NewString(),
		Amount:    req.Amount,
		Memo:      req.Memo,
		Metadata:  meta,
		Status:    payment.StatusCreated,
		ProductID: req.ProductID,
		OwnerID:   c.GetString("uid"),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.InsertPayment(c.Request.Context(), rec); err != nil {
		s.log.WithError(err).Error("payment insert failed")
		respondErr(c, http.StatusInternalServerError, "could not register payment")
		return
	}

	s.log.WithField("payment_id", rec.PaymentID).WithField("amount", rec.Amount).
		Info("payment registered")
	respond(c, rec)
}

type updatePaymentRequest struct {
	PaymentID  string         `json:"paymentId"`
	Identifier string         `json:"identifier"`
	Status     payment.Status `json:"status"`
}

func (s *Server) updatePayment(c *gin.Context) {
	var req updatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PaymentID == "" && req.Identifier == "" {
		respondErr(c, http.StatusBadRequest, "paymentId or identifier is required")
		return
	}

	var (
		rec payment.Payment
		err error
	)
	if req.PaymentID != "" {
		rec, err = s.store.GetPayment(c.Request.Context(), req.PaymentID)
	} else {
		// Recovery path: the wallet reported an incomplete payment and only
		// its identifier is known.
		rec, err = s.store.GetPaymentByIdentifier(c.Request.Context(), req.Identifier)
	}
	if errors.Is(err, ErrNotFound) {
		respondErr(c, http.StatusNotFound, "payment not found")
		return
	}
	if err != nil {
		s.log.WithError(err).Error("payment lookup failed")
		respondErr(c, http.StatusInternalServerError, "could not load payment")
		return
	}

	if req.PaymentID != "" && req.Identifier != "" && rec.Identifier != req.Identifier {
		if err := rec.SetIdentifier(req.Identifier); err != nil {
			respondErr(c, http.StatusConflict, "payment identifier already set")
			return
		}
	}

	if err := advanceTo(&rec, req.Status); err != nil {
		respondErr(c, http.StatusConflict, err.Error())
		return
	}

	if err := s.store.UpdatePayment(c.Request.Context(), rec); err != nil {
		s.log.WithError(err).Error("payment update failed")
		respondErr(c, http.StatusInternalServerError, "could not update payment")
		return
	}

	s.log.WithField("payment_id", rec.PaymentID).WithField("status", rec.Status).
		Info("payment updated")
	respond(c, rec)
}

// advanceTo moves a payment to the target status, stepping through the
// intermediate states when the recovery path skips them. Re-asserting the
// current status is a no-op; backward moves and terminal changes are rejected.
func advanceTo(rec *payment.Payment, target payment.Status) error {
	if rec.Status == target {
		return nil
	}
	if rec.Status.CanTransition(target) {
		return rec.Transition(target)
	}
	if target == payment.StatusCompleted && rec.Status.CanTransition(payment.StatusApproved) {
		if err := rec.Transition(payment.StatusApproved); err != nil {
			return err
		}
		return rec.Transition(payment.StatusCompleted)
	}
	return payment.ErrInvalidTransition
}

func (s *Server) getPayments(c *gin.Context) {
	if paymentID := c.Query("paymentId"); paymentID != "" {
		rec, err := s.store.GetPayment(c.Request.Context(), paymentID)
		if errors.Is(err, ErrNotFound) {
			respondErr(c, http.StatusNotFound, "payment not found")
			return
		}
		if err != nil {
			s.log.WithError(err).Error("payment lookup failed")
			respondErr(c, http.StatusInternalServerError, "could not load payment")
			return
		}
		respond(c, rec)
		return
	}

	ownerID := c.Query("userId")
	if ownerID == "" {
		ownerID = c.GetString("uid")
	}
	history, err := s.store.ListPayments(c.Request.Context(), ownerID)
	if err != nil {
		s.log.WithError(err).Error("payment listing failed")
		respondErr(c, http.StatusInternalServerError, "could not list payments")
		return
	}
	respond(c, gin.H{"payments": history})
}
