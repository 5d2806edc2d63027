// Package httpapi exposes the gateway's local HTTP surface: session, product
// and payment operations for the view layer, plus the event feed, metrics and
// health endpoints.
package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pi-trace/registry/internal/domain/product"
	"github.com/pi-trace/registry/internal/events"
	"github.com/pi-trace/registry/internal/metrics"
	"github.com/pi-trace/registry/internal/payments"
	"github.com/pi-trace/registry/internal/products"
	"github.com/pi-trace/registry/internal/session"
	"github.com/pi-trace/registry/pkg/logger"
)

// API binds the core components to HTTP handlers.
type API struct {
	sessions *session.Manager
	registry *products.Registry
	payments *payments.Coordinator
	hub      *events.Hub
	feed     *events.Feed
	log      *logger.Logger
}

// New creates the gateway API.
func New(sessions *session.Manager, registry *products.Registry, coord *payments.Coordinator, hub *events.Hub, log *logger.Logger) *API {
	return &API{
		sessions: sessions,
		registry: registry,
		payments: coord,
		hub:      hub,
		feed:     events.NewFeed(hub, log),
		log:      log.Named("httpapi"),
	}
}

// Router builds the gin engine with all routes mounted.
func (a *API) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), a.observe())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	r.GET("/events/ws", gin.WrapH(a.feed))
	r.GET("/events/recent", a.recentEvents)

	s := r.Group("/session")
	{
		s.POST("/wallet", a.loginWallet)
		s.POST("/guest", a.loginGuest)
		s.POST("/resume", a.resume)
		s.POST("/logout", a.logout)
		s.GET("", a.currentSession)
	}

	p := r.Group("/products")
	{
		p.GET("", a.listProducts)
		p.POST("", a.createProduct)
		p.DELETE("/:id", a.deleteProduct)
		p.GET("/search", a.searchProducts)
		p.GET("/lookup", a.lookupProduct)
		p.GET("/overview", a.overview)
		p.GET("/:id/share", a.shareProduct)
	}

	pay := r.Group("/payments")
	{
		pay.POST("", a.initiatePayment)
		pay.POST("/premium", a.premiumPayment)
		pay.POST("/product/:id", a.productPayment)
		pay.GET("/history", a.paymentHistory)
		pay.GET("/:id", a.paymentStatus)
	}

	return r
}

// observe records request counts and latency per route template.
func (a *API) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.ObserveHTTP(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}

// --- envelope helpers ---

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func okMessage(c *gin.Context, data any, message string) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data, "message": message})
}

func fail(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"success": false, "message": err.Error()})
}

// failMapped translates domain errors to HTTP statuses.
func (a *API) failMapped(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrAuthUnavailable):
		fail(c, http.StatusServiceUnavailable, err)
	case errors.Is(err, products.ErrNoSession) || errors.Is(err, payments.ErrNoSession):
		fail(c, http.StatusUnauthorized, err)
	case errors.Is(err, products.ErrNotFound):
		fail(c, http.StatusNotFound, err)
	case errors.Is(err, payments.ErrInvalidAmount),
		errors.Is(err, product.ErrNameRequired),
		errors.Is(err, product.ErrCategoryRequired),
		errors.Is(err, product.ErrInvalidQuantity),
		errors.Is(err, product.ErrInvalidPrice):
		fail(c, http.StatusBadRequest, err)
	case errors.Is(err, payments.ErrPaymentRejected):
		fail(c, http.StatusBadGateway, err)
	case errors.Is(err, payments.ErrWalletDeclined):
		fail(c, http.StatusPaymentRequired, err)
	default:
		a.log.WithError(err).Error("unhandled API error")
		fail(c, http.StatusInternalServerError, err)
	}
}

// --- session ---

func (a *API) loginWallet(c *gin.Context) {
	ident, err := a.sessions.LoginWithWallet(c.Request.Context())
	if err != nil {
		a.failMapped(c, err)
		return
	}
	ok(c, ident)
}

func (a *API) loginGuest(c *gin.Context) {
	ident := a.sessions.LoginAsGuest(c.Request.Context())
	ok(c, ident)
}

func (a *API) resume(c *gin.Context) {
	ident, resumed := a.sessions.Resume(c.Request.Context())
	if !resumed {
		fail(c, http.StatusNotFound, errors.New("no resumable session"))
		return
	}
	ok(c, ident)
}

func (a *API) logout(c *gin.Context) {
	a.sessions.Logout(c.Request.Context())
	okMessage(c, nil, "logged out")
}

func (a *API) currentSession(c *gin.Context) {
	ident, active := a.sessions.Current()
	if !active {
		fail(c, http.StatusUnauthorized, errors.New("no active session"))
		return
	}
	ok(c, ident)
}

// --- products ---

func (a *API) listProducts(c *gin.Context) {
	items, err := a.registry.List(c.Request.Context())
	if err != nil {
		a.failMapped(c, err)
		return
	}
	ok(c, items)
}

func (a *API) createProduct(c *gin.Context) {
	var draft product.Draft
	if err := c.ShouldBindJSON(&draft); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	created, savedLocally, err := a.registry.Create(c.Request.Context(), draft)
	if err != nil {
		a.failMapped(c, err)
		return
	}
	if savedLocally {
		okMessage(c, created, "saved locally, server unreachable")
		return
	}
	ok(c, created)
}

func (a *API) deleteProduct(c *gin.Context) {
	if err := a.registry.Delete(c.Request.Context(), c.Param("id")); err != nil {
		a.failMapped(c, err)
		return
	}
	okMessage(c, nil, "deleted")
}

func (a *API) searchProducts(c *gin.Context) {
	ok(c, a.registry.Search(c.Query("q")))
}

func (a *API) lookupProduct(c *gin.Context) {
	p, err := a.registry.LookupByCode(c.Query("code"))
	if err != nil {
		a.failMapped(c, err)
		return
	}
	ok(c, p)
}

func (a *API) overview(c *gin.Context) {
	ok(c, a.registry.Overview())
}

func (a *API) shareProduct(c *gin.Context) {
	text, err := a.registry.Share(c.Param("id"))
	if err != nil {
		a.failMapped(c, err)
		return
	}
	ok(c, gin.H{"text": text})
}

// --- payments ---

func (a *API) initiatePayment(c *gin.Context) {
	var req payments.InitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	rec, err := a.payments.Initiate(c.Request.Context(), req)
	if err != nil {
		// A declined wallet payment still leaves a remote record behind.
		if errors.Is(err, payments.ErrWalletDeclined) {
			c.JSON(http.StatusPaymentRequired, gin.H{
				"success": false,
				"data":    rec,
				"message": err.Error(),
			})
			return
		}
		a.failMapped(c, err)
		return
	}
	ok(c, rec)
}

func (a *API) premiumPayment(c *gin.Context) {
	rec, err := a.payments.InitiatePremium(c.Request.Context())
	if err != nil {
		a.failMapped(c, err)
		return
	}
	ok(c, rec)
}

func (a *API) productPayment(c *gin.Context) {
	p, err := a.registry.Get(c.Param("id"))
	if err != nil {
		a.failMapped(c, err)
		return
	}
	rec, err := a.payments.InitiateForProduct(c.Request.Context(), p)
	if err != nil {
		a.failMapped(c, err)
		return
	}
	ok(c, rec)
}

func (a *API) paymentHistory(c *gin.Context) {
	history, err := a.payments.History(c.Request.Context())
	if err != nil {
		a.failMapped(c, err)
		return
	}
	ok(c, gin.H{"payments": history})
}

func (a *API) paymentStatus(c *gin.Context) {
	rec, found := a.payments.Get(c.Param("id"))
	if !found {
		fail(c, http.StatusNotFound, errors.New("payment not found"))
		return
	}
	ok(c, rec)
}

// --- events ---

func (a *API) recentEvents(c *gin.Context) {
	ok(c, a.hub.Recent())
}
