package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const healthTimeout = 2 * time.Second

// ErrSchemaMissing means the database is reachable but the orders schema is not installed.
var ErrSchemaMissing = errors.New("orders schema is not installed")

// Ping checks connectivity only.
func Ping(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	return pool.Ping(ctx)
}

// CheckHealth reports whether the pool can serve order traffic: the database answers
// and both order tables exist.
func CheckHealth(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	var ready bool
	err := pool.QueryRow(ctx,
		`SELECT to_regclass('orders') IS NOT NULL AND to_regclass('order_items') IS NOT NULL`,
	).Scan(&ready)
	if err != nil {
		return fmt.Errorf("query schema: %w", err)
	}
	if !ready {
		return ErrSchemaMissing
	}
	return nil
}
