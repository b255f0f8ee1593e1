package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dejobratic/orderflow/internal/orders/app/followup"
	"github.com/dejobratic/orderflow/internal/orders/app/saga"
	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/dejobratic/orderflow/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

type CreateOrderCommand struct {
	CustomerUsername string
	CustomerName     string
	CustomerAddress  string
	CustomerEmail    string
	CustomerPhone    string
	DeliveryDate     *time.Time
	Items            []CreateOrderItem
}

type CreateOrderItem struct {
	ProductID string
	Quantity  int
}

// Validate checks the command against the clock without any I/O.
func (c CreateOrderCommand) Validate(now time.Time, minLead time.Duration) error {
	if strings.TrimSpace(c.CustomerUsername) == "" {
		return fmt.Errorf("%w: customer_username is required", domain.ErrValidation)
	}
	if len(c.Items) == 0 {
		return fmt.Errorf("%w: order must contain at least one product", domain.ErrValidation)
	}
	for i, item := range c.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return fmt.Errorf("%w: items[%d].product_id is required", domain.ErrValidation, i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: items[%d].quantity must be positive", domain.ErrValidation, i)
		}
	}
	if c.DeliveryDate == nil || c.DeliveryDate.IsZero() {
		return fmt.Errorf("%w: delivery_date is required", domain.ErrValidation)
	}
	earliest := now.Add(minLead)
	if c.DeliveryDate.Before(earliest) {
		return fmt.Errorf("%w: delivery_date must be at least %s after now (earliest %s)",
			domain.ErrValidation, minLead, earliest.Format(time.RFC3339))
	}
	return nil
}

type CommandHandler interface {
	Handle(ctx context.Context, cmd CreateOrderCommand) (*domain.Order, error)
}

// Dispatcher schedules best-effort tasks.
type Dispatcher interface {
	Dispatch(ctx context.Context, tasks ...followup.Task)
}

// Collaborators groups the remote services an order placement talks to.
type Collaborators struct {
	Identity ports.IdentityClient
	Catalog  ports.CatalogClient
	Cart     ports.CartClient
	Notifier ports.Notifier
}

// CreateOrderCommandHandler places an order: it validates the request, checks the customer,
// prices and checks every item, persists the order, commits inventory and confirms it.
// Work after confirmation is handed to the dispatcher and cannot fail the order.
type CreateOrderCommandHandler struct {
	repo      ports.OrderRepository
	events    ports.EventBus
	remote    Collaborators
	followUps Dispatcher
	logger    *slog.Logger
	now       func() time.Time
	minLead   time.Duration
}

type HandlerOption func(*CreateOrderCommandHandler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *CreateOrderCommandHandler) {
		h.now = now
	}
}

// WithMinDeliveryLead overrides domain.MinDeliveryLead.
func WithMinDeliveryLead(lead time.Duration) HandlerOption {
	return func(h *CreateOrderCommandHandler) {
		if lead > 0 {
			h.minLead = lead
		}
	}
}

func NewCreateOrderCommandHandler(
	repo ports.OrderRepository,
	events ports.EventBus,
	remote Collaborators,
	followUps Dispatcher,
	logger *slog.Logger,
	opts ...HandlerOption,
) *CreateOrderCommandHandler {
	h := &CreateOrderCommandHandler{
		repo:      repo,
		events:    events,
		remote:    remote,
		followUps: followUps,
		logger:    logger,
		now:       time.Now,
		minLead:   domain.MinDeliveryLead,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *CreateOrderCommandHandler) Handle(ctx context.Context, cmd CreateOrderCommand) (*domain.Order, error) {
	if err := cmd.Validate(h.now(), h.minLead); err != nil {
		return nil, err
	}

	if err := h.verifyCustomer(ctx, cmd.CustomerUsername); err != nil {
		return nil, err
	}

	order := newOrder(cmd)
	if err := h.priceItems(ctx, &order); err != nil {
		return nil, err
	}

	if err := h.persist(ctx, &order); err != nil {
		return nil, err
	}

	if err := h.commitInventory(ctx, &order); err != nil {
		return nil, err
	}

	if err := h.repo.UpdateStatus(ctx, order.ID, domain.StatusConfirmed); err != nil {
		return nil, fmt.Errorf("%w: confirm order %d: %w", domain.ErrPersistence, order.ID, err)
	}
	order.Status = domain.StatusConfirmed
	order.UpdatedAt = h.now().UTC()

	h.followUps.Dispatch(ctx, h.followUpTasks(order)...)

	return &order, nil
}

func newOrder(cmd CreateOrderCommand) domain.Order {
	items := make([]domain.OrderItem, len(cmd.Items))
	for i, item := range cmd.Items {
		items[i] = domain.OrderItem{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	return domain.Order{
		CustomerUsername: cmd.CustomerUsername,
		CustomerName:     cmd.CustomerName,
		CustomerAddress:  cmd.CustomerAddress,
		CustomerEmail:    cmd.CustomerEmail,
		CustomerPhone:    cmd.CustomerPhone,
		Items:            items,
		DeliveryDate:     cmd.DeliveryDate.UTC(),
	}
}

func (h *CreateOrderCommandHandler) verifyCustomer(ctx context.Context, username string) error {
	ctx, span := telemetry.StartSpan(ctx, "CreateOrder.VerifyCustomer")
	defer span.End()

	allowed, err := h.remote.Identity.VerifyPermission(ctx, username)
	if err != nil {
		telemetry.RecordSpanError(span, err)
		return fmt.Errorf("verify permission for %q: %w", username, err)
	}
	if !allowed {
		err := fmt.Errorf("%w: invalid account or insufficient permissions for %q", domain.ErrUnauthorized, username)
		telemetry.RecordSpanError(span, err)
		return err
	}
	return nil
}

// priceItems snapshots the current catalog price into every item and checks stock.
// Nothing leaves memory until every item has passed.
func (h *CreateOrderCommandHandler) priceItems(ctx context.Context, order *domain.Order) error {
	ctx, span := telemetry.StartSpan(ctx, "CreateOrder.PriceItems")
	defer span.End()

	for i := range order.Items {
		item := &order.Items[i]

		price, err := h.remote.Catalog.GetProductPrice(ctx, item.ProductID)
		if err != nil {
			telemetry.RecordSpanError(span, err)
			return fmt.Errorf("price product %s: %w", item.ProductID, err)
		}
		item.UnitPrice = domain.SnapshotPrice(price)

		available, err := h.remote.Catalog.CheckAvailability(ctx, item.ProductID, item.Quantity)
		if err != nil {
			telemetry.RecordSpanError(span, err)
			return fmt.Errorf("check availability of product %s: %w", item.ProductID, err)
		}
		if !available {
			err := fmt.Errorf("%w: product %s not available in quantity %d", domain.ErrUnavailable, item.ProductID, item.Quantity)
			telemetry.RecordSpanError(span, err)
			return err
		}
	}

	order.TotalPrice = order.CalculateTotal()
	telemetry.AddSpanAttributes(span,
		attribute.Int("order.item_count", len(order.Items)),
		attribute.String("order.total_price", order.TotalPrice.StringFixed(2)),
	)
	return nil
}

func (h *CreateOrderCommandHandler) persist(ctx context.Context, order *domain.Order) error {
	now := h.now().UTC()
	order.Status = domain.StatusProcessing
	order.CreatedAt = now
	order.UpdatedAt = now

	if err := h.repo.Create(ctx, order); err != nil {
		return fmt.Errorf("%w: save order: %w", domain.ErrPersistence, err)
	}

	h.logger.DebugContext(ctx, "order persisted",
		"order_id", order.ID,
		"status", order.Status,
	)
	return nil
}

// commitInventory decrements stock for every item. A failure restores the stock already
// taken and moves the order to FAILED.
func (h *CreateOrderCommandHandler) commitInventory(ctx context.Context, order *domain.Order) error {
	ctx, span := telemetry.StartSpan(ctx, "CreateOrder.CommitInventory")
	defer span.End()

	steps := make([]saga.Step, len(order.Items))
	for i, item := range order.Items {
		steps[i] = &decrementInventoryStep{catalog: h.remote.Catalog, item: item, orderID: order.ID, logger: h.logger}
	}

	err := saga.New(h.logger, steps...).Run(ctx)
	if err == nil {
		telemetry.SetSpanSuccess(span)
		return nil
	}
	telemetry.RecordSpanError(span, err)
	if sagaErr, ok := saga.AsError(err); ok {
		telemetry.AddSpanEvent(span, "inventory.compensated",
			attribute.String("failed_step", sagaErr.Step),
			attribute.Bool("fully_restored", sagaErr.Compensated()),
		)
	}

	reason := err.Error()
	commitErr := fmt.Errorf("%w: order %d: %w", domain.ErrInventoryCommit, order.ID, err)

	// The order row must not stay PROCESSING once its inventory could not be committed.
	failCtx := context.WithoutCancel(ctx)
	if updateErr := h.repo.UpdateStatus(failCtx, order.ID, domain.StatusFailed); updateErr != nil {
		h.logger.ErrorContext(ctx, "failed to mark order as failed",
			"order_id", order.ID,
			"error", updateErr,
		)
		return errors.Join(commitErr, fmt.Errorf("%w: mark order %d failed: %w", domain.ErrPersistence, order.ID, updateErr))
	}
	order.Status = domain.StatusFailed

	h.followUps.Dispatch(ctx, followup.Task{
		Name: "publish_order_failed",
		Run: func(ctx context.Context) error {
			return h.events.PublishOrderFailed(ctx, order.ID, reason)
		},
	})

	return commitErr
}

type decrementInventoryStep struct {
	catalog ports.CatalogClient
	item    domain.OrderItem
	orderID int64
	logger  *slog.Logger
}

func (s *decrementInventoryStep) Name() string {
	return "decrement_inventory:" + s.item.ProductID
}

// Execute decrements stock. A failed decrement is not compensated, so one whose outcome is
// unknown is logged for stock reconciliation.
func (s *decrementInventoryStep) Execute(ctx context.Context) error {
	err := s.catalog.DecrementInventory(ctx, s.item.ProductID, s.item.Quantity)
	if err != nil && (errors.Is(err, domain.ErrOutcomeUnknown) || errors.Is(err, context.DeadlineExceeded)) {
		s.logger.ErrorContext(ctx, "inventory decrement outcome unknown, stock needs reconciliation",
			"order_id", s.orderID,
			"product_id", s.item.ProductID,
			"quantity", s.item.Quantity,
			"error", err,
		)
	}
	return err
}

func (s *decrementInventoryStep) Compensate(ctx context.Context) error {
	return s.catalog.RestoreInventory(ctx, s.item.ProductID, s.item.Quantity)
}

func (h *CreateOrderCommandHandler) followUpTasks(order domain.Order) []followup.Task {
	order.Items = append([]domain.OrderItem(nil), order.Items...)
	tasks := make([]followup.Task, 0, len(order.Items)+3)

	tasks = append(tasks, followup.Task{
		Name: "upsert_customer_profile",
		Run: func(ctx context.Context) error {
			return h.remote.Identity.UpsertCustomerProfile(ctx, order.CustomerUsername, order.CustomerProfile())
		},
	})

	for _, item := range order.Items {
		productID := item.ProductID
		tasks = append(tasks, followup.Task{
			Name: "remove_cart_item",
			Run: func(ctx context.Context) error {
				return h.remote.Cart.RemoveCartItem(ctx, order.CustomerUsername, productID)
			},
		})
	}

	tasks = append(tasks,
		followup.Task{
			Name: "send_confirmation",
			Run: func(ctx context.Context) error {
				return h.sendConfirmation(ctx, order)
			},
		},
		followup.Task{
			Name: "publish_order_confirmed",
			Run: func(ctx context.Context) error {
				return h.events.PublishOrderConfirmed(ctx, order)
			},
		},
	)

	return tasks
}

func (h *CreateOrderCommandHandler) sendConfirmation(ctx context.Context, order domain.Order) error {
	email, ok, err := h.remote.Identity.GetUserEmail(ctx, order.CustomerUsername)
	if err != nil {
		return fmt.Errorf("look up email: %w", err)
	}
	if !ok || email == "" {
		h.logger.WarnContext(ctx, "no email on record, skipping confirmation",
			"order_id", order.ID,
			"customer_username", order.CustomerUsername,
		)
		return nil
	}

	return h.remote.Notifier.SendConfirmation(ctx, ports.Confirmation{
		Email:      email,
		OrderID:    order.ID,
		Status:     order.Status,
		Items:      order.Items,
		TotalPrice: order.TotalPrice,
	})
}
