package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dejobratic/orderflow/internal/orders/app"
	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/go-chi/chi/v5"
)

const idempotencyHeader = "Idempotency-Key"

// OrderService is the application surface the handlers need.
type OrderService interface {
	CreateOrder(ctx context.Context, input app.CreateOrderInput) (*domain.Order, error)
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	ListOrders(ctx context.Context, filter ports.ListFilter) ([]domain.Order, error)
	ClaimIdempotencyKey(ctx context.Context, key string) (*ports.StoredResponse, bool, error)
	SaveIdempotentResponse(ctx context.Context, key string, response ports.StoredResponse) error
	ReleaseIdempotencyKey(ctx context.Context, key string) error
}

// Handler exposes HTTP endpoints for order operations.
type Handler struct {
	service OrderService
	logger  *slog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(service OrderService, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Routes binds the order handlers to r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/v1/orders", func(r chi.Router) {
		r.Post("/", h.createOrder)
		r.Get("/", h.listOrders)
		r.Get("/{id}", h.getOrder)
	})
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	idemKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if idemKey == "" {
		writeError(w, http.StatusBadRequest, idempotencyHeader+" header required")
		return
	}

	stored, claimed, err := h.service.ClaimIdempotencyKey(ctx, idemKey)
	if err != nil {
		h.logger.ErrorContext(ctx, "idempotency claim failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if stored != nil {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(stored.StatusCode)
		_, _ = w.Write(stored.Body)
		return
	}
	if !claimed {
		writeError(w, http.StatusConflict, "request with this "+idempotencyHeader+" is still in progress")
		return
	}

	var payload app.CreateOrderInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.releaseClaim(ctx, idemKey)
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	order, err := h.service.CreateOrder(ctx, payload)
	if err != nil {
		h.releaseClaim(ctx, idemKey)
		h.writeDomainError(ctx, w, err)
		return
	}

	body, err := json.Marshal(map[string]any{"order": order})
	if err != nil {
		h.releaseClaim(ctx, idemKey)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	// The order exists at this point; a failed save only loses replay for this key.
	if err := h.service.SaveIdempotentResponse(ctx, idemKey, ports.StoredResponse{
		StatusCode: http.StatusCreated,
		Body:       body,
		OrderID:    order.ID,
	}); err != nil {
		h.logger.WarnContext(ctx, "failed to store idempotent response",
			"order_id", order.ID,
			"error", err,
		)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Location", "/v1/orders/"+strconv.FormatInt(order.ID, 10))
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(body)
}

// releaseClaim frees the key so the client can retry. It runs even if the request was
// cancelled.
func (h *Handler) releaseClaim(ctx context.Context, key string) {
	if err := h.service.ReleaseIdempotencyKey(context.WithoutCancel(ctx), key); err != nil {
		h.logger.WarnContext(ctx, "failed to release idempotency key", "error", err)
	}
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "order id must be numeric")
		return
	}

	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := ports.ListFilter{}
	if statusParam := query.Get("status"); statusParam != "" {
		status := domain.OrderStatus(strings.ToUpper(statusParam))
		filter.Status = &status
	}
	if page, err := strconv.Atoi(query.Get("page")); err == nil {
		filter.Page = page
	}
	if pageSize, err := strconv.Atoi(query.Get("page_size")); err == nil {
		filter.PageSize = pageSize
	}

	orders, err := h.service.ListOrders(r.Context(), filter)
	if err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

// writeDomainError maps error categories to status codes. Server-side failures are
// logged with detail and answered with a generic message.
func (h *Handler) writeDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "request failed", "status", status, "error", err)
		writeError(w, status, http.StatusText(status))
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusConflict
	case errors.Is(err, domain.ErrPersistence):
		return http.StatusInternalServerError
	case errors.Is(err, domain.ErrInventoryCommit), errors.Is(err, domain.ErrRemote):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
