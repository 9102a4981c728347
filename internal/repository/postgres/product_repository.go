// Package postgres содержит PostgreSQL-реализации репозиториев на pgx.
// Схема накатывается goose-миграциями на старте приложения.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shestoi/product-management/internal/domain"
	"github.com/shestoi/product-management/internal/repository"
)

// ProductRepository реализует repository.ProductRepository поверх PostgreSQL
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository создаёт новый PostgreSQL репозиторий товаров
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{
		pool: pool,
	}
}

// Save сохраняет товар (upsert по id)
func (r *ProductRepository) Save(ctx context.Context, product *domain.Product) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO products (id, name, price, currency, quantity, reserved, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name,
		   price = EXCLUDED.price,
		   currency = EXCLUDED.currency,
		   quantity = EXCLUDED.quantity,
		   reserved = EXCLUDED.reserved`,
		product.ID, product.Name, product.Price.Amount, product.Price.Currency,
		product.Stock.Quantity, product.Stock.Reserved, product.CreatedAt)
	return err
}

// GetByID возвращает товар по id
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	product, err := scanProduct(r.pool.QueryRow(ctx,
		`SELECT id, name, price, currency, quantity, reserved, created_at
		 FROM products
		 WHERE id = $1`,
		id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return product, nil
}

// Update сохраняет изменённый товар; ErrNotFound если товара нет
func (r *ProductRepository) Update(ctx context.Context, product *domain.Product) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE products
		 SET name = $2, price = $3, currency = $4, quantity = $5, reserved = $6
		 WHERE id = $1`,
		product.ID, product.Name, product.Price.Amount, product.Price.Currency,
		product.Stock.Quantity, product.Stock.Reserved)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// List возвращает все товары
func (r *ProductRepository) List(ctx context.Context) ([]*domain.Product, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, price, currency, quantity, reserved, created_at
		 FROM products
		 ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]*domain.Product, 0)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, product)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var product domain.Product
	err := row.Scan(
		&product.ID,
		&product.Name,
		&product.Price.Amount,
		&product.Price.Currency,
		&product.Stock.Quantity,
		&product.Stock.Reserved,
		&product.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &product, nil
}
