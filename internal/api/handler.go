package api

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"order-reconciler/internal/domain"
	"order-reconciler/internal/models"
	"order-reconciler/internal/redisclient"
	"order-reconciler/internal/service"
	"order-reconciler/internal/util"
	"order-reconciler/internal/webhook"
)

const janitorSecretHeader = "x-internal-janitor-secret"

// CSRFVerifier validates the admin CSRF token. Token issuance lives outside
// this service; only the verify half is consumed here.
type CSRFVerifier interface {
	Verify(token string) bool
}

// TokenCSRF verifies the X-CSRF-Token header against a shared secret in
// constant time. Used when no external verifier is wired in.
type TokenCSRF string

func (t TokenCSRF) Verify(token string) bool {
	return subtle.ConstantTimeCompare([]byte(token), []byte(t)) == 1
}

// Handler contains HTTP handlers
type Handler struct {
	checkout      *service.CheckoutService
	reconciler    *service.Reconciler
	sweeper       *service.Sweeper
	ingestor      *service.Ingestor
	stripeSig     webhook.Verifier
	monobankSig   webhook.Verifier
	limiter       *redisclient.Client // nil: rate limiting disabled
	limitPerMin   int
	janitorSecret string
	adminToken    string
	csrf          CSRFVerifier
	logger        *zap.Logger
}

type HandlerConfig struct {
	Checkout      *service.CheckoutService
	Reconciler    *service.Reconciler
	Sweeper       *service.Sweeper
	Ingestor      *service.Ingestor
	StripeSig     webhook.Verifier
	MonobankSig   webhook.Verifier
	Limiter       *redisclient.Client
	LimitPerMin   int
	JanitorSecret string
	AdminToken    string
	CSRF          CSRFVerifier
}

// NewHandler creates a new HTTP handler
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		checkout:      cfg.Checkout,
		reconciler:    cfg.Reconciler,
		sweeper:       cfg.Sweeper,
		ingestor:      cfg.Ingestor,
		stripeSig:     cfg.StripeSig,
		monobankSig:   cfg.MonobankSig,
		limiter:       cfg.Limiter,
		limitPerMin:   cfg.LimitPerMin,
		janitorSecret: cfg.JanitorSecret,
		adminToken:    cfg.AdminToken,
		csrf:          cfg.CSRF,
		logger:        util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	hooks := router.Group("/webhooks")
	hooks.Use(h.originGuard())
	{
		hooks.POST("/stripe", h.stripeWebhook)
		hooks.POST("/monobank", h.monobankWebhook)
	}

	router.POST("/internal/orders/restock-stale", h.janitorGuard(), h.restockStale)
	router.POST("/admin/orders/:id/refund", h.adminGuard(), h.refundOrder)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/orders", h.createOrder)
		v1.GET("/orders/:id", h.getOrder)
	}
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": time.Now().Unix()})
}

func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ready", "time": time.Now().Unix()})
}

// originGuard rejects browser-shaped requests before any signature check or
// body read. Payment providers never send an Origin header; a browser does.
func (h *Handler) originGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Origin") != "" {
			util.WebhookRejectedTotal.WithLabelValues(providerFromPath(c), "origin").Inc()
			writeError(c, domain.New(domain.CodeOriginBlocked, "webhook endpoints do not accept browser requests"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// payloadField renders a webhook body for logging. Provider payloads carry
// customer emails and phone numbers, so only the sanitized form ever
// reaches the log; non-JSON bodies are logged by size alone.
func payloadField(body []byte) zap.Field {
	var decoded map[string]interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return zap.Int("payload_bytes", len(body))
	}
	return zap.Any("payload", util.SanitizeMap(decoded))
}

func providerFromPath(c *gin.Context) string {
	if c.FullPath() == "/webhooks/monobank" {
		return models.ProviderMonobank
	}
	return models.ProviderStripe
}

func (h *Handler) stripeWebhook(c *gin.Context) {
	h.handleWebhook(c, models.ProviderStripe, h.stripeSig, c.GetHeader("Stripe-Signature"), webhook.NormalizeStripe)
}

func (h *Handler) monobankWebhook(c *gin.Context) {
	h.handleWebhook(c, models.ProviderMonobank, h.monobankSig, c.GetHeader("X-Sign"), webhook.NormalizeMonobank)
}

func (h *Handler) handleWebhook(c *gin.Context, provider string, verifier webhook.Verifier, sigHeader string, normalize func([]byte) (*models.ProviderEvent, error)) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeError(c, domain.New(domain.CodeInvalidSignature, "unreadable body"))
		return
	}

	if err := verifier.Verify(body, sigHeader); err != nil {
		code := domain.CodeOf(err)
		scope := "invalid_signature"
		if code == domain.CodeMissingSignature {
			scope = "missing_signature"
		}
		util.WebhookRejectedTotal.WithLabelValues(provider, scope).Inc()

		if !h.limiter.Allow(c.Request.Context(), scope, c.ClientIP(), h.limitPerMin) {
			writeError(c, domain.New(domain.CodeRateLimited, "too many rejected webhook deliveries"))
			return
		}
		writeError(c, err)
		return
	}

	ev, err := normalize(body)
	if err != nil {
		h.logger.Warn("Unparseable webhook payload",
			zap.String("provider", provider),
			payloadField(body),
			zap.Error(err))
		writeError(c, domain.New(domain.CodeInvalidSignature, "malformed payload"))
		return
	}

	outcome, err := h.ingestor.Ingest(c.Request.Context(), ev)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"result": outcome})
}

// janitorGuard authenticates the internal sweep trigger with a shared
// secret, compared in constant time.
func (h *Handler) janitorGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.janitorSecret == "" {
			writeError(c, domain.New(domain.CodeJanitorDisabled, "janitor secret is not configured"))
			c.Abort()
			return
		}
		got := c.GetHeader(janitorSecretHeader)
		if got == "" {
			writeError(c, domain.New(domain.CodeUnauthorized, "missing janitor secret"))
			c.Abort()
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.janitorSecret)) != 1 {
			writeError(c, domain.New(domain.CodeForbidden, "janitor secret mismatch"))
			c.Abort()
			return
		}
		c.Next()
	}
}

func (h *Handler) restockStale(c *gin.Context) {
	var params service.SweepParams
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&params); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "BAD_REQUEST", "message": err.Error()}})
			return
		}
	}

	report, err := h.sweeper.RestockStalePendingOrders(c.Request.Context(), params)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// adminGuard authenticates admin calls with a bearer token plus a CSRF
// token verified by the external collaborator.
func (h *Handler) adminGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.adminToken == "" {
			writeError(c, domain.New(domain.CodeForbidden, "admin API is disabled"))
			c.Abort()
			return
		}
		auth := c.GetHeader("Authorization")
		if auth == "" {
			writeError(c, domain.New(domain.CodeUnauthorized, "missing admin token"))
			c.Abort()
			return
		}
		expected := "Bearer " + h.adminToken
		if subtle.ConstantTimeCompare([]byte(auth), []byte(expected)) != 1 {
			writeError(c, domain.New(domain.CodeForbidden, "admin token mismatch"))
			c.Abort()
			return
		}
		if h.csrf != nil && !h.csrf.Verify(c.GetHeader("X-CSRF-Token")) {
			writeError(c, domain.New(domain.CodeForbidden, "csrf token mismatch"))
			c.Abort()
			return
		}
		c.Next()
	}
}

func (h *Handler) refundOrder(c *gin.Context) {
	if err := h.reconciler.Refund(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "refunded"})
}

func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "BAD_REQUEST", "message": err.Error()}})
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	resp, err := h.checkout.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	status := http.StatusCreated
	if resp.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

func (h *Handler) getOrder(c *gin.Context) {
	order, items, err := h.checkout.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order, "items": items})
}

// writeError maps a domain error code to its HTTP shape. The switch is the
// single boundary translation: nothing leaves a handler unstructured.
func writeError(c *gin.Context, err error) {
	code := domain.CodeOf(err)

	var status int
	switch code {
	case domain.CodeOriginBlocked, domain.CodeForbidden:
		status = http.StatusForbidden
	case domain.CodeUnauthorized:
		status = http.StatusUnauthorized
	case domain.CodeMissingSignature, domain.CodeInvalidSignature:
		status = http.StatusBadRequest
	case domain.CodeRateLimited:
		status = http.StatusTooManyRequests
	case domain.CodeJanitorDisabled:
		status = http.StatusServiceUnavailable
	case domain.CodeRefundDisabled, domain.CodeRefundNotPaid,
		domain.CodeInsufficientStock, domain.CodeAttemptActive,
		domain.CodePaymentAttemptsExhausted, domain.CodeIdempotencyConflict:
		status = http.StatusConflict
	case domain.CodeOrderNotFound, domain.CodeProductNotFound:
		status = http.StatusNotFound
	case domain.CodeMoneyValue:
		status = http.StatusInternalServerError
	default:
		status = http.StatusInternalServerError
		code = "INTERNAL"
	}

	message := "internal error"
	if status != http.StatusInternalServerError {
		message = err.Error()
	} else {
		util.GetLogger().Error("Request failed", zap.String("code", code), zap.Error(err))
	}

	c.JSON(status, gin.H{"error": gin.H{"code": code, "message": message}})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
