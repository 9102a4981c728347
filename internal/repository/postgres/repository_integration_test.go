//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	_ "github.com/jackc/pgx/v5/stdlib" // для goose миграций

	"github.com/shestoi/product-management/internal/domain"
	"github.com/shestoi/product-management/internal/repository"
)

func setupDatabase(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	// Поднимаем PostgreSQL контейнер через testcontainers
	container, err := tcpostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		tcpostgres.WithDatabase("productmgmt"),
		tcpostgres.WithUsername("productmgmt"),
		tcpostgres.WithPassword("productmgmt"),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, container.Terminate(ctx))
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	defer db.Close()

	// Ждём готовности БД через ping с retry
	var pingErr error
	for i := 0; i < 10; i++ {
		pingErr = db.PingContext(ctx)
		if pingErr == nil {
			break
		}
		time.Sleep(1 * time.Second)
	}
	require.NoError(t, pingErr, "Failed to ping database after retries")

	// Путь к migrations относительно текущего файла:
	// internal/repository/postgres -> корень модуля -> migrations
	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok, "Failed to get current file path")
	// postgres -> repository -> internal -> корень модуля
	moduleRoot := filepath.Dir(filepath.Dir(filepath.Dir(filepath.Dir(filename))))
	migrationsDir := filepath.Join(moduleRoot, "migrations")

	require.NoError(t, goose.UpContext(ctx, db, migrationsDir), "Failed to run migrations")

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool
}

func TestProductRepository_Integration(t *testing.T) {
	ctx := context.Background()
	pool := setupDatabase(t)
	repo := NewProductRepository(pool)

	product, err := domain.NewProduct("Keyboard", domain.Money{Amount: 49.99, Currency: "USD"}, 10)
	require.NoError(t, err)
	product.PullEvents()

	t.Run("Save and GetByID", func(t *testing.T) {
		require.NoError(t, repo.Save(ctx, product))

		stored, err := repo.GetByID(ctx, product.ID)
		require.NoError(t, err)
		require.Equal(t, product.Name, stored.Name)
		require.Equal(t, product.Price, stored.Price)
		require.Equal(t, product.Stock, stored.Stock)
	})

	t.Run("GetByID not found", func(t *testing.T) {
		_, err := repo.GetByID(ctx, "missing")
		require.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("Update persists stock changes", func(t *testing.T) {
		require.NoError(t, product.ReserveStock(4))
		require.NoError(t, repo.Update(ctx, product))

		stored, err := repo.GetByID(ctx, product.ID)
		require.NoError(t, err)
		require.Equal(t, 4, stored.Stock.Reserved)

		require.NoError(t, product.DeductStock(4))
		require.NoError(t, repo.Update(ctx, product))

		stored, err = repo.GetByID(ctx, product.ID)
		require.NoError(t, err)
		require.Equal(t, 6, stored.Stock.Quantity)
		require.Equal(t, 0, stored.Stock.Reserved)
	})

	t.Run("Update missing product", func(t *testing.T) {
		missing, err := domain.NewProduct("Ghost", domain.Money{Amount: 1, Currency: "USD"}, 1)
		require.NoError(t, err)
		require.ErrorIs(t, repo.Update(ctx, missing), repository.ErrNotFound)
	})

	t.Run("List", func(t *testing.T) {
		second, err := domain.NewProduct("Mouse", domain.Money{Amount: 19.99, Currency: "USD"}, 5)
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, second))

		products, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, products, 2)
	})
}

func TestOrderRepository_Integration(t *testing.T) {
	ctx := context.Background()
	pool := setupDatabase(t)
	repo := NewOrderRepository(pool)

	items := []domain.OrderItem{
		{ProductID: "product-1", ProductName: "Keyboard", Quantity: 2, UnitPrice: domain.Money{Amount: 49.99, Currency: "USD"}},
		{ProductID: "product-2", ProductName: "Mouse", Quantity: 1, UnitPrice: domain.Money{Amount: 19.99, Currency: "USD"}},
	}

	order, err := domain.NewOrder("user-1", items)
	require.NoError(t, err)
	order.PullEvents()

	t.Run("Save and GetByID", func(t *testing.T) {
		require.NoError(t, repo.Save(ctx, order))

		stored, err := repo.GetByID(ctx, order.ID)
		require.NoError(t, err)
		require.Equal(t, order.UserID, stored.UserID)
		require.Equal(t, domain.OrderStatusPending, stored.Status)
		require.InDelta(t, order.Total.Amount, stored.Total.Amount, 0.001)
		require.Len(t, stored.Items, 2)
	})

	t.Run("Save is idempotent", func(t *testing.T) {
		require.NoError(t, order.Confirm())
		require.NoError(t, repo.Save(ctx, order))

		stored, err := repo.GetByID(ctx, order.ID)
		require.NoError(t, err)
		require.Equal(t, domain.OrderStatusConfirmed, stored.Status)
		require.Len(t, stored.Items, 2)
	})

	t.Run("GetByID not found", func(t *testing.T) {
		_, err := repo.GetByID(ctx, "missing")
		require.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("GetByUserID", func(t *testing.T) {
		orders, err := repo.GetByUserID(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, orders, 1)
		require.Len(t, orders[0].Items, 2)

		orders, err = repo.GetByUserID(ctx, "user-2")
		require.NoError(t, err)
		require.Empty(t, orders)
	})
}
