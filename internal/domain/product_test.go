package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewProduct(t *testing.T) {
	product, err := NewProduct("Keyboard", usd(49.99), 10)
	require.NoError(t, err)
	require.NotEmpty(t, product.ID)
	require.Equal(t, 10, product.Stock.Quantity)
	require.Equal(t, 0, product.Stock.Reserved)
	require.False(t, product.CreatedAt.IsZero())

	events := product.PullEvents()
	require.Len(t, events, 1)
	require.Equal(t, "product.created", events[0].EventName())

	_, err = NewProduct("", usd(1), 0)
	require.ErrorIs(t, err, ErrEmptyProductName)

	_, err = NewProduct("Keyboard", usd(1), -1)
	require.Error(t, err)
}

func TestProduct_StockLifecycle(t *testing.T) {
	product, err := NewProduct("Keyboard", usd(49.99), 10)
	require.NoError(t, err)
	product.PullEvents()

	// Резерв под корзину
	require.NoError(t, product.ReserveStock(4))
	require.Equal(t, 10, product.Stock.Quantity)
	require.Equal(t, 4, product.Stock.Reserved)
	require.True(t, product.HasAvailableStock(6))
	require.False(t, product.HasAvailableStock(7))

	// Частичное снятие резерва
	require.NoError(t, product.ReleaseStock(1))
	require.Equal(t, 3, product.Stock.Reserved)

	// Списание конвертирует резерв в уменьшение количества
	require.NoError(t, product.DeductStock(3))
	require.Equal(t, 7, product.Stock.Quantity)
	require.Equal(t, 0, product.Stock.Reserved)

	events := product.PullEvents()
	require.Len(t, events, 3)
	require.Equal(t, "stock.reserved", events[0].EventName())
	require.Equal(t, "stock.released", events[1].EventName())
	require.Equal(t, "stock.deducted", events[2].EventName())
}

func TestProduct_AdminStockOperations(t *testing.T) {
	product, err := NewProduct("Keyboard", usd(49.99), 5)
	require.NoError(t, err)
	product.PullEvents()

	require.NoError(t, product.AddStock(10))
	require.Equal(t, 15, product.Stock.Quantity)

	require.NoError(t, product.ReserveStock(6))

	// Инвентаризация не может опустить количество ниже резерва
	err = product.UpdateStock(5)
	require.ErrorIs(t, err, ErrQuantityBelowReserved)

	require.NoError(t, product.UpdateStock(6))
	require.Equal(t, 6, product.Stock.Quantity)
	require.Equal(t, 6, product.Stock.Reserved)
}
