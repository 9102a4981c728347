package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/shestoi/product-management/internal/domain"
	"github.com/shestoi/product-management/internal/repository"
)

// ProductService - application-слой каталога товаров и управления стоком
type ProductService struct {
	logger     *zap.Logger
	products   repository.ProductRepository
	dispatcher *EventDispatcher
}

// NewProductService создаёт сервис товаров
func NewProductService(logger *zap.Logger, products repository.ProductRepository, dispatcher *EventDispatcher) *ProductService {
	return &ProductService{
		logger:     logger,
		products:   products,
		dispatcher: dispatcher,
	}
}

// CreateProduct создаёт товар с начальным стоком
func (s *ProductService) CreateProduct(ctx context.Context, name string, price domain.Money, initialQuantity int) (*domain.Product, error) {
	product, err := domain.NewProduct(name, price, initialQuantity)
	if err != nil {
		return nil, err
	}

	if err := s.products.Save(ctx, product); err != nil {
		s.logger.Error("failed to save product", zap.Error(err), zap.String("name", name))
		return nil, err
	}

	if err := s.dispatcher.Dispatch(ctx, product.PullEvents()); err != nil {
		s.logger.Warn("failed to dispatch product events", zap.Error(err))
	}

	s.logger.Info("product created",
		zap.String("product_id", product.ID),
		zap.String("name", name),
		zap.Int("initial_quantity", initialQuantity),
	)
	return product, nil
}

// GetProduct возвращает товар по id
func (s *ProductService) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
		}
		return nil, err
	}
	return product, nil
}

// ListProducts возвращает все товары
func (s *ProductService) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	return s.products.List(ctx)
}

// AddStock увеличивает сток товара (поставка)
func (s *ProductService) AddStock(ctx context.Context, productID string, quantity int) (*domain.Product, error) {
	return s.mutateStock(ctx, productID, func(p *domain.Product) error {
		return p.AddStock(quantity)
	})
}

// UpdateStock устанавливает общее количество стока (инвентаризация).
// Ошибка, если новое количество меньше текущего резерва.
func (s *ProductService) UpdateStock(ctx context.Context, productID string, newQuantity int) (*domain.Product, error) {
	return s.mutateStock(ctx, productID, func(p *domain.Product) error {
		return p.UpdateStock(newQuantity)
	})
}

func (s *ProductService) mutateStock(ctx context.Context, productID string, fn func(*domain.Product) error) (*domain.Product, error) {
	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	if err := fn(product); err != nil {
		return nil, err
	}
	if err := s.products.Update(ctx, product); err != nil {
		return nil, err
	}

	if err := s.dispatcher.Dispatch(ctx, product.PullEvents()); err != nil {
		s.logger.Warn("failed to dispatch product events", zap.Error(err))
	}
	return product, nil
}
