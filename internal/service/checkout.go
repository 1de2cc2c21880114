package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"order-reconciler/internal/domain"
	"order-reconciler/internal/models"
	"order-reconciler/internal/money"
	"order-reconciler/internal/store"
	"order-reconciler/internal/util"
)

type checkoutStore interface {
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, bool, error)
	InsertOrderItem(ctx context.Context, item *models.OrderItem) error
	ReserveStockTx(ctx context.Context, orderID string, lines []store.ReserveLine) error
	RestockOrderTx(ctx context.Context, orderID, failureCode, failureMessage string) (bool, error)
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID string) ([]models.OrderItem, error)
}

// CheckoutService creates orders with reserved inventory and an initial
// payment attempt.
type CheckoutService struct {
	store     checkoutStore
	attempts  *AttemptTracker
	publisher Publisher
	logger    *zap.Logger
}

func NewCheckoutService(store checkoutStore, attempts *AttemptTracker, publisher Publisher) *CheckoutService {
	return &CheckoutService{
		store:     store,
		attempts:  attempts,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// CreateOrderRequest is a checkout submission.
type CreateOrderRequest struct {
	UserID          *string            `json:"user_id"` // nil: guest checkout
	Items           []OrderItemRequest `json:"items" binding:"required,min=1"`
	Currency        string             `json:"currency" binding:"required"`
	PaymentProvider string             `json:"payment_provider" binding:"required,oneof=stripe monobank none"`
	IdempotencyKey  string             `json:"idempotency_key,omitempty"`
}

// OrderItemRequest is one requested line.
type OrderItemRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
}

// CreateOrderResponse is returned after checkout, and replayed verbatim
// for an idempotent retry.
type CreateOrderResponse struct {
	OrderID            string `json:"order_id"`
	Status             string `json:"status"`
	TotalAmountMinor   int64  `json:"total_amount_minor"`
	TotalAmount        string `json:"total_amount"`
	AttemptIdempotency string `json:"attempt_idempotency_key,omitempty"`
	Replayed           bool   `json:"replayed,omitempty"`
}

// requestHash fingerprints the payload so a retried idempotency key with a
// different body is rejected instead of silently replayed.
func requestHash(req *CreateOrderRequest) string {
	canonical, _ := json.Marshal(struct {
		UserID   *string            `json:"user_id"`
		Items    []OrderItemRequest `json:"items"`
		Currency string             `json:"currency"`
		Provider string             `json:"provider"`
	}{req.UserID, req.Items, req.Currency, req.PaymentProvider})
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// CreateOrder validates prices, creates the order, and reserves inventory
// atomically. A reservation failure settles the order as failed instead of
// leaving inventory state ambiguous.
func (s *CheckoutService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.CreateOrder")
	defer span.End()

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.New().String()
	}

	products, err := s.loadProducts(ctx, req.Items)
	if err != nil {
		util.InventoryReservationsFailed.WithLabelValues("invalid_items").Inc()
		return nil, err
	}

	lineTotals := make([]int64, 0, len(req.Items))
	unitPrices := make(map[int64]int64, len(req.Items))
	for _, item := range req.Items {
		unitMinor, err := store.ProductPriceMinor(products[item.ProductID])
		if err != nil {
			return nil, err
		}
		unitPrices[item.ProductID] = unitMinor
		lineTotals = append(lineTotals, money.LineTotal(unitMinor, item.Quantity))
	}
	totalMinor := money.SumLineTotals(lineTotals)

	order := &models.Order{
		ID:                     uuid.New().String(),
		UserID:                 req.UserID,
		TotalAmountMinor:       totalMinor,
		TotalAmount:            money.FromMinorUnits(totalMinor),
		Currency:               req.Currency,
		PaymentProvider:        req.PaymentProvider,
		PaymentStatus:          models.PaymentStatusPending,
		Status:                 models.OrderStatusCreated,
		InventoryStatus:        models.InventoryStatusNone,
		IdempotencyKey:         req.IdempotencyKey,
		IdempotencyRequestHash: requestHash(req),
	}

	created, replayed, err := s.store.CreateOrder(ctx, order)
	if err != nil {
		return nil, err
	}
	if replayed {
		s.logger.Info("Checkout replayed by idempotency key",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.String("order_id", created.ID))
		return &CreateOrderResponse{
			OrderID:          created.ID,
			Status:           created.Status,
			TotalAmountMinor: created.TotalAmountMinor,
			TotalAmount:      created.TotalAmount,
			Replayed:         true,
		}, nil
	}

	util.OrdersCreatedTotal.Inc()

	lines := make([]store.ReserveLine, 0, len(req.Items))
	for _, item := range req.Items {
		if err := s.store.InsertOrderItem(ctx, &models.OrderItem{
			OrderID:        created.ID,
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			UnitPriceMinor: unitPrices[item.ProductID],
		}); err != nil {
			return nil, fmt.Errorf("failed to create order item: %w", err)
		}
		lines = append(lines, store.ReserveLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	if err := s.store.ReserveStockTx(ctx, created.ID, lines); err != nil {
		util.InventoryReservationsFailed.WithLabelValues("insufficient_stock").Inc()
		if _, settleErr := s.store.RestockOrderTx(ctx, created.ID,
			domain.CodeInsufficientStock, "Inventory reservation failed at checkout."); settleErr != nil {
			s.logger.Error("Failed to settle order after reservation failure",
				zap.String("order_id", created.ID), zap.Error(settleErr))
		}
		return nil, err
	}

	resp := &CreateOrderResponse{
		OrderID:          created.ID,
		Status:           created.Status,
		TotalAmountMinor: created.TotalAmountMinor,
		TotalAmount:      created.TotalAmount,
	}

	if req.PaymentProvider != models.ProviderNone {
		attempt, err := s.attempts.StartAttempt(ctx, created.ID, req.PaymentProvider)
		if err != nil {
			return nil, err
		}
		resp.AttemptIdempotency = attempt.IdempotencyKey
	}

	s.logger.Info("Order created",
		zap.String("order_id", created.ID),
		zap.Int64("total_amount_minor", totalMinor),
		zap.String("provider", req.PaymentProvider))

	if s.publisher != nil {
		if err := s.publisher.PublishOrderCreated(ctx, &models.OrderCreatedEvent{
			BaseEvent:        newBaseEvent(models.EventTypeOrderCreated),
			OrderID:          created.ID,
			TotalAmountMinor: totalMinor,
			Currency:         req.Currency,
			Provider:         req.PaymentProvider,
		}); err != nil {
			s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
		}
	}

	return resp, nil
}

// GetOrder retrieves an order and its items.
func (s *CheckoutService) GetOrder(ctx context.Context, orderID string) (*models.Order, []models.OrderItem, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	return order, items, nil
}

func (s *CheckoutService) loadProducts(ctx context.Context, items []OrderItemRequest) (map[int64]*models.Product, error) {
	// The same product may appear on several lines; the store returns one
	// row per distinct id, so presence is checked against the deduped set.
	seen := make(map[int64]struct{}, len(items))
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}

	products, err := s.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	m := make(map[int64]*models.Product, len(products))
	for i := range products {
		m[products[i].ID] = &products[i]
	}
	if len(m) != len(ids) {
		missing := make([]string, 0, len(ids)-len(m))
		for _, id := range ids {
			if _, ok := m[id]; !ok {
				missing = append(missing, strconv.FormatInt(id, 10))
			}
		}
		return nil, domain.Newf(domain.CodeProductNotFound,
			"unknown products: %s", strings.Join(missing, ", "))
	}
	return m, nil
}
