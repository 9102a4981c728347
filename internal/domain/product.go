package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrEmptyProductName - имя товара обязательно
var ErrEmptyProductName = errors.New("product name cannot be empty")

// Product - агрегат товара. Сток мутируется только через методы агрегата,
// каждая мутация заменяет value object Stock и поднимает доменное событие
// в pending-список
type Product struct {
	ID        string
	Name      string
	Price     Money
	Stock     Stock
	CreatedAt time.Time

	events []Event
}

// NewProduct создаёт товар с начальным количеством стока (может быть 0)
func NewProduct(name string, price Money, initialQuantity int) (*Product, error) {
	if name == "" {
		return nil, ErrEmptyProductName
	}
	stock, err := NewStock(initialQuantity, 0)
	if err != nil {
		return nil, err
	}

	p := &Product{
		ID:        uuid.New().String(),
		Name:      name,
		Price:     price,
		Stock:     stock,
		CreatedAt: time.Now().UTC(),
	}
	p.raise(ProductCreated{ProductID: p.ID, Name: p.Name})
	return p, nil
}

// HasAvailableStock проверяет доступность стока под запрошенное количество
func (p *Product) HasAvailableStock(quantity int) bool {
	return p.Stock.HasAvailable(quantity)
}

// ReserveStock резервирует сток под корзину/заказ
func (p *Product) ReserveStock(quantity int) error {
	stock, err := p.Stock.Reserve(quantity)
	if err != nil {
		return err
	}
	p.Stock = stock
	p.raise(StockReserved{ProductID: p.ID, Quantity: quantity})
	return nil
}

// ReleaseStock снимает резерв (товар убрали из корзины)
func (p *Product) ReleaseStock(quantity int) error {
	stock, err := p.Stock.Release(quantity)
	if err != nil {
		return err
	}
	p.Stock = stock
	p.raise(StockReleased{ProductID: p.ID, Quantity: quantity})
	return nil
}

// DeductStock списывает сток при создании заказа, конвертируя резерв
// в окончательное уменьшение количества
func (p *Product) DeductStock(quantity int) error {
	stock, err := p.Stock.Deduct(quantity)
	if err != nil {
		return err
	}
	p.Stock = stock
	p.raise(StockDeducted{ProductID: p.ID, Quantity: quantity})
	return nil
}

// AddStock увеличивает общее количество (поставка)
func (p *Product) AddStock(quantity int) error {
	stock, err := p.Stock.Add(quantity)
	if err != nil {
		return err
	}
	p.Stock = stock
	p.raise(StockAdded{ProductID: p.ID, Quantity: quantity})
	return nil
}

// UpdateStock устанавливает общее количество (инвентаризация)
func (p *Product) UpdateStock(newQuantity int) error {
	stock, err := p.Stock.Update(newQuantity)
	if err != nil {
		return err
	}
	p.Stock = stock
	p.raise(StockUpdated{ProductID: p.ID, NewQuantity: newQuantity})
	return nil
}

// PullEvents выгребает накопленные доменные события.
// Вызывается application-слоем после успешного сохранения агрегата.
func (p *Product) PullEvents() []Event {
	events := p.events
	p.events = nil
	return events
}

func (p *Product) raise(e Event) {
	p.events = append(p.events, e)
}
