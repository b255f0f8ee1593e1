package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/dejobratic/orderflow/internal/orders/app/commands"
	"github.com/dejobratic/orderflow/internal/orders/app/queries"
	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/metrics"
	"github.com/dejobratic/orderflow/internal/orders/ports"
)

// Service bundles use cases for handling orders via the API.
type Service struct {
	repo               ports.OrderRepository
	idemStore          ports.IdempotencyStore
	createOrderHandler commands.CommandHandler
	getOrderHandler    *queries.GetOrderQueryHandler
}

// NewService wires required dependencies.
func NewService(
	repo ports.OrderRepository,
	events ports.EventBus,
	idem ports.IdempotencyStore,
	remote commands.Collaborators,
	followUps commands.Dispatcher,
	logger *slog.Logger,
	metrics *metrics.Metrics,
	opts ...commands.HandlerOption,
) *Service {
	coreHandler := commands.NewCreateOrderCommandHandler(repo, events, remote, followUps, logger, opts...)
	observableHandler := commands.NewObservableCommandHandler(coreHandler, logger, metrics)

	return &Service{
		repo:               repo,
		idemStore:          idem,
		createOrderHandler: observableHandler,
		getOrderHandler:    queries.NewGetOrderQueryHandler(repo),
	}
}

// CreateOrderInput captures payload for creating an order.
type CreateOrderInput struct {
	CustomerUsername string                 `json:"customer_username"`
	CustomerName     string                 `json:"customer_name"`
	CustomerAddress  string                 `json:"customer_address"`
	CustomerEmail    string                 `json:"customer_email"`
	CustomerPhone    string                 `json:"customer_phone"`
	DeliveryDate     *time.Time             `json:"delivery_date"`
	Items            []CreateOrderItemInput `json:"items"`
}

type CreateOrderItemInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// CreateOrder places an order.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (*domain.Order, error) {
	cmd := commands.CreateOrderCommand{
		CustomerUsername: input.CustomerUsername,
		CustomerName:     input.CustomerName,
		CustomerAddress:  input.CustomerAddress,
		CustomerEmail:    input.CustomerEmail,
		CustomerPhone:    input.CustomerPhone,
		DeliveryDate:     input.DeliveryDate,
		Items:            make([]commands.CreateOrderItem, len(input.Items)),
	}
	for i, item := range input.Items {
		cmd.Items[i] = commands.CreateOrderItem{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	return s.createOrderHandler.Handle(ctx, cmd)
}

// GetOrder retrieves an order by ID. Unknown IDs yield domain.ErrNotFound.
func (s *Service) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	return s.getOrderHandler.Handle(ctx, queries.GetOrderQuery{OrderID: id})
}

// ListOrders returns orders using a filter.
func (s *Service) ListOrders(ctx context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	return s.repo.List(ctx, filter)
}

// ClaimIdempotencyKey reserves key for one in-flight request. A key that already holds
// a saved response returns it instead; a key held by another request returns neither.
func (s *Service) ClaimIdempotencyKey(ctx context.Context, key string) (*ports.StoredResponse, bool, error) {
	return s.idemStore.Claim(ctx, key)
}

// SaveIdempotentResponse writes response details for a claimed key.
func (s *Service) SaveIdempotentResponse(ctx context.Context, key string, response ports.StoredResponse) error {
	return s.idemStore.Save(ctx, key, response)
}

// ReleaseIdempotencyKey frees a claim whose request did not produce a replayable response.
func (s *Service) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	return s.idemStore.Release(ctx, key)
}
