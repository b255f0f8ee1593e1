package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, customer_username, customer_name, customer_address, customer_email,
	customer_phone, delivery_date, total_price::text, status, created_at, updated_at`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts the order row and its items in one transaction. Prices finer than the
// NUMERIC(12,2) columns are rejected instead of being rounded by the database.
func (r *Repository) Create(ctx context.Context, order *domain.Order) error {
	if err := checkPriceScale(order); err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		query := `
			INSERT INTO orders (customer_username, customer_name, customer_address, customer_email,
				customer_phone, delivery_date, total_price, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10)
			RETURNING id
		`
		err := tx.QueryRow(ctx, query,
			order.CustomerUsername,
			order.CustomerName,
			order.CustomerAddress,
			order.CustomerEmail,
			order.CustomerPhone,
			order.DeliveryDate,
			order.TotalPrice.String(),
			order.Status,
			order.CreatedAt,
			order.UpdatedAt,
		).Scan(&order.ID)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		itemQuery := `
			INSERT INTO order_items (order_id, product_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4::numeric)
			RETURNING id
		`
		for i := range order.Items {
			item := &order.Items[i]
			item.OrderID = order.ID
			if err := tx.QueryRow(ctx, itemQuery,
				item.OrderID,
				item.ProductID,
				item.Quantity,
				item.UnitPrice.String(),
			).Scan(&item.ID); err != nil {
				return fmt.Errorf("insert order item %s: %w", item.ProductID, err)
			}
		}

		return nil
	})
}

func checkPriceScale(order *domain.Order) error {
	if !order.TotalPrice.Equal(domain.SnapshotPrice(order.TotalPrice)) {
		return fmt.Errorf("total price %s has more than %d decimal places", order.TotalPrice, domain.PriceScale)
	}
	for _, item := range order.Items {
		if !item.UnitPrice.Equal(domain.SnapshotPrice(item.UnitPrice)) {
			return fmt.Errorf("unit price %s of product %s has more than %d decimal places",
				item.UnitPrice, item.ProductID, domain.PriceScale)
		}
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("select order: %w", err)
	}

	items, err := r.loadItems(ctx, []int64{order.ID})
	if err != nil {
		return nil, err
	}
	order.Items = items[order.ID]

	return &order, nil
}

func (r *Repository) List(ctx context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	var statusFilter *string
	if filter.Status != nil {
		s := string(*filter.Status)
		statusFilter = &s
	}

	offset := (page - 1) * pageSize

	rows, err := r.pool.Query(ctx, query, statusFilter, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]int64, len(orders))
	for i, order := range orders {
		ids[i] = order.ID
	}
	items, err := r.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}

	return orders, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, id int64, status domain.OrderStatus) error {
	query := `
		UPDATE orders
		SET status = $1, updated_at = $2
		WHERE id = $3
	`

	result, err := r.pool.Exec(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ports.ErrNotFound
	}

	return nil
}

func (r *Repository) loadItems(ctx context.Context, orderIDs []int64) (map[int64][]domain.OrderItem, error) {
	query := `
		SELECT id, order_id, product_id, quantity, unit_price::text
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, id
	`

	rows, err := r.pool.Query(ctx, query, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	items := make(map[int64][]domain.OrderItem, len(orderIDs))
	for rows.Next() {
		var (
			item  domain.OrderItem
			price string
		)
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &price); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if item.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse unit price %q: %w", price, err)
		}
		items[item.OrderID] = append(items[item.OrderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return items, nil
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		order domain.Order
		total string
	)
	if err := row.Scan(
		&order.ID,
		&order.CustomerUsername,
		&order.CustomerName,
		&order.CustomerAddress,
		&order.CustomerEmail,
		&order.CustomerPhone,
		&order.DeliveryDate,
		&total,
		&order.Status,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}

	price, err := decimal.NewFromString(total)
	if err != nil {
		return domain.Order{}, fmt.Errorf("parse total price %q: %w", total, err)
	}
	order.TotalPrice = price

	return order, nil
}
