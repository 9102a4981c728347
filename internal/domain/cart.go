package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrEmptyCart - пустую корзину нельзя оформить
	ErrEmptyCart = errors.New("cart is empty")
	// ErrCartItemNotFound - товара нет в корзине
	ErrCartItemNotFound = errors.New("item not found in cart")
)

// CartItem - позиция корзины со снапшотом имени и цены на момент добавления
type CartItem struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   Money
}

// Cart - корзина одного пользователя. Живёт в concurrent store,
// ключ - user id; сам агрегат не потокобезопасен
type Cart struct {
	ID     string
	UserID string
	Items  []CartItem

	events []Event
}

// NewCart создаёт пустую корзину для пользователя
func NewCart(userID string) *Cart {
	return &Cart{
		ID:     uuid.New().String(),
		UserID: userID,
		Items:  make([]CartItem, 0),
	}
}

// AddItem добавляет товар в корзину; если товар уже есть, увеличивает количество
func (c *Cart) AddItem(productID, productName string, quantity int, unitPrice Money) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}

	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity += quantity
			c.raise(CartItemAdded{UserID: c.UserID, ProductID: productID, Quantity: quantity})
			return nil
		}
	}

	c.Items = append(c.Items, CartItem{
		ProductID:   productID,
		ProductName: productName,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
	})
	c.raise(CartItemAdded{UserID: c.UserID, ProductID: productID, Quantity: quantity})
	return nil
}

// ItemQuantity возвращает текущее количество товара в корзине
func (c *Cart) ItemQuantity(productID string) (int, bool) {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return c.Items[i].Quantity, true
		}
	}
	return 0, false
}

// UpdateItemQuantity устанавливает новое количество для товара в корзине
func (c *Cart) UpdateItemQuantity(productID string, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			old := c.Items[i].Quantity
			c.Items[i].Quantity = quantity
			c.raise(CartItemQuantityUpdated{
				UserID:      c.UserID,
				ProductID:   productID,
				OldQuantity: old,
				NewQuantity: quantity,
			})
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrCartItemNotFound, productID)
}

// RemoveItem убирает товар из корзины, возвращая удалённую позицию
// (нужна application-слою, чтобы снять резерв)
func (c *Cart) RemoveItem(productID string) (CartItem, error) {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			item := c.Items[i]
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			c.raise(CartItemRemoved{UserID: c.UserID, ProductID: productID, Quantity: item.Quantity})
			return item, nil
		}
	}
	return CartItem{}, fmt.Errorf("%w: %s", ErrCartItemNotFound, productID)
}

// IsEmpty проверяет, пуста ли корзина
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Total считает итоговую сумму корзины. Валюта берётся из позиций,
// при пустой корзине возвращается 0 USD
func (c *Cart) Total() (Money, error) {
	if len(c.Items) == 0 {
		return Money{Amount: 0, Currency: "USD"}, nil
	}
	total := Money{Amount: 0, Currency: c.Items[0].UnitPrice.Currency}
	for _, item := range c.Items {
		var err error
		total, err = total.Add(item.UnitPrice.MulQuantity(item.Quantity))
		if err != nil {
			return Money{}, err
		}
	}
	return total, nil
}

// Checkout оформляет корзину: поднимает событие CartCheckedOut со снапшотом
// позиций и суммы. Корзина при этом НЕ очищается - очистка происходит
// асинхронно после создания заказа (cart-clearing consumer).
func (c *Cart) Checkout() error {
	if c.IsEmpty() {
		return ErrEmptyCart
	}
	total, err := c.Total()
	if err != nil {
		return err
	}

	items := make([]CartItem, len(c.Items))
	copy(items, c.Items)

	c.raise(CartCheckedOut{
		CartID:     c.ID,
		UserID:     c.UserID,
		Items:      items,
		Total:      total,
		OccurredAt: time.Now().UTC(),
	})
	return nil
}

// PullEvents выгребает накопленные доменные события
func (c *Cart) PullEvents() []Event {
	events := c.events
	c.events = nil
	return events
}

func (c *Cart) raise(e Event) {
	c.events = append(c.events, e)
}
