package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/shestoi/product-management/internal/dispatch"
	"github.com/shestoi/product-management/internal/domain"
	"github.com/shestoi/product-management/internal/service"
)

// Handler содержит HTTP-обработчики сервиса.
// Зависит от service слоя и command registry, но не знает о брокере и БД.
type Handler struct {
	logger   *zap.Logger
	products *service.ProductService
	carts    *service.CartService
	orders   *service.OrderService
	registry *dispatch.Registry
}

// NewHandler создаёт новый HTTP handler
func NewHandler(
	logger *zap.Logger,
	products *service.ProductService,
	carts *service.CartService,
	orders *service.OrderService,
	registry *dispatch.Registry,
) *Handler {
	return &Handler{
		logger:   logger,
		products: products,
		carts:    carts,
		orders:   orders,
		registry: registry,
	}
}

// Поля запросов - указатели, чтобы отличать отсутствующее поле от нулевого

// CreateProductRequest - запрос на создание товара
type CreateProductRequest struct {
	Name            *string  `json:"name"`
	Price           *float64 `json:"price"`
	Currency        *string  `json:"currency"`
	InitialQuantity *int     `json:"initialQuantity"`
}

// StockRequest - запрос на изменение стока
type StockRequest struct {
	Quantity *int `json:"quantity"`
}

// CartItemRequest - запрос на добавление/изменение позиции корзины
type CartItemRequest struct {
	ProductID *string `json:"productId"`
	Quantity  *int    `json:"quantity"`
}

// ProductResponse - товар в HTTP ответе
type ProductResponse struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Currency  string  `json:"currency"`
	Quantity  int     `json:"quantity"`
	Reserved  int     `json:"reserved"`
	Available int     `json:"available"`
}

// CartItemResponse - позиция корзины в HTTP ответе
type CartItemResponse struct {
	ProductID   string  `json:"productId"`
	ProductName string  `json:"productName"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	Currency    string  `json:"currency"`
}

// CartResponse - корзина в HTTP ответе
type CartResponse struct {
	ID          string             `json:"id"`
	UserID      string             `json:"userId"`
	Items       []CartItemResponse `json:"items"`
	TotalAmount float64            `json:"totalAmount"`
	Currency    string             `json:"currency"`
}

// OrderResponse - заказ в HTTP ответе
type OrderResponse struct {
	ID          string             `json:"id"`
	UserID      string             `json:"userId"`
	Status      string             `json:"status"`
	Items       []CartItemResponse `json:"items"`
	TotalAmount float64            `json:"totalAmount"`
	Currency    string             `json:"currency"`
}

// PostProducts обрабатывает POST /products - создание товара
func (h *Handler) PostProducts(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}
	if req.Name == nil || *req.Name == "" || req.Price == nil || req.Currency == nil {
		http.Error(w, "Invalid payload: name, price and currency are required", http.StatusBadRequest)
		return
	}

	price, err := domain.NewMoney(*req.Price, *req.Currency)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid price: %v", err), http.StatusBadRequest)
		return
	}

	quantity := 0
	if req.InitialQuantity != nil {
		quantity = *req.InitialQuantity
	}

	product, err := h.products.CreateProduct(r.Context(), *req.Name, price, quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toProductResponse(product))
}

// GetProducts обрабатывает GET /products - список товаров
func (h *Handler) GetProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.ListProducts(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := make([]ProductResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, toProductResponse(p))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// GetProductsId обрабатывает GET /products/{id}
func (h *Handler) GetProductsId(w http.ResponseWriter, r *http.Request, id string) {
	product, err := h.products.GetProduct(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toProductResponse(product))
}

// PostProductsIdStockAdd обрабатывает POST /products/{id}/stock/add - поставка
func (h *Handler) PostProductsIdStockAdd(w http.ResponseWriter, r *http.Request, id string) {
	quantity, ok := h.decodeStockRequest(w, r)
	if !ok {
		return
	}

	product, err := h.products.AddStock(r.Context(), id, quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toProductResponse(product))
}

// PutProductsIdStock обрабатывает PUT /products/{id}/stock - инвентаризация
func (h *Handler) PutProductsIdStock(w http.ResponseWriter, r *http.Request, id string) {
	quantity, ok := h.decodeStockRequest(w, r)
	if !ok {
		return
	}

	product, err := h.products.UpdateStock(r.Context(), id, quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toProductResponse(product))
}

// GetCart обрабатывает GET /carts/{userId}
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request, userID string) {
	cart, err := h.carts.GetCart(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeCart(w, http.StatusOK, cart)
}

// PostCartItems обрабатывает POST /carts/{userId}/items - добавление товара
func (h *Handler) PostCartItems(w http.ResponseWriter, r *http.Request, userID string) {
	var req CartItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}
	if req.ProductID == nil || *req.ProductID == "" || req.Quantity == nil || *req.Quantity <= 0 {
		http.Error(w, "Invalid payload: productId and positive quantity are required", http.StatusBadRequest)
		return
	}

	cart, err := h.carts.AddItem(r.Context(), userID, *req.ProductID, *req.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeCart(w, http.StatusOK, cart)
}

// PutCartItem обрабатывает PUT /carts/{userId}/items/{productId} - изменение количества
func (h *Handler) PutCartItem(w http.ResponseWriter, r *http.Request, userID, productID string) {
	var req StockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}
	if req.Quantity == nil || *req.Quantity <= 0 {
		http.Error(w, "Invalid payload: positive quantity is required", http.StatusBadRequest)
		return
	}

	cart, err := h.carts.UpdateItemQuantity(r.Context(), userID, productID, *req.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeCart(w, http.StatusOK, cart)
}

// DeleteCartItem обрабатывает DELETE /carts/{userId}/items/{productId}
func (h *Handler) DeleteCartItem(w http.ResponseWriter, r *http.Request, userID, productID string) {
	cart, err := h.carts.RemoveItem(r.Context(), userID, productID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeCart(w, http.StatusOK, cart)
}

// PostCartCheckout обрабатывает POST /carts/{userId}/checkout.
// Оформление идёт через command registry - тем же путём, что и команды
// от consumers. Ответ 202: заказ создаётся асинхронно.
func (h *Handler) PostCartCheckout(w http.ResponseWriter, r *http.Request, userID string) {
	if _, err := h.registry.Send(r.Context(), service.CheckoutCartCommand{UserID: userID}); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "checkout accepted"})
}

// GetOrdersId обрабатывает GET /orders/{id}
func (h *Handler) GetOrdersId(w http.ResponseWriter, r *http.Request, id string) {
	order, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// GetUserOrders обрабатывает GET /users/{userId}/orders
func (h *Handler) GetUserOrders(w http.ResponseWriter, r *http.Request, userID string) {
	orders, err := h.orders.GetOrdersByUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, toOrderResponse(o))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// PostOrderStatus обрабатывает POST /orders/{id}/{action} - переходы статуса
func (h *Handler) PostOrderStatus(w http.ResponseWriter, r *http.Request, id, action string) {
	var order *domain.Order
	var err error

	switch action {
	case "confirm":
		order, err = h.orders.ConfirmOrder(r.Context(), id)
	case "complete":
		order, err = h.orders.CompleteOrder(r.Context(), id)
	case "cancel":
		order, err = h.orders.CancelOrder(r.Context(), id)
	default:
		http.Error(w, fmt.Sprintf("Unknown action: %s", action), http.StatusNotFound)
		return
	}

	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) decodeStockRequest(w http.ResponseWriter, r *http.Request) (int, bool) {
	var req StockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return 0, false
	}
	if req.Quantity == nil {
		http.Error(w, "Invalid payload: quantity is required", http.StatusBadRequest)
		return 0, false
	}
	return *req.Quantity, true
}

func (h *Handler) writeCart(w http.ResponseWriter, status int, cart *domain.Cart) {
	total, err := cart.Total()
	if err != nil {
		h.writeError(w, err)
		return
	}

	items := make([]CartItemResponse, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, CartItemResponse{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice.Amount,
			Currency:    item.UnitPrice.Currency,
		})
	}

	h.writeJSON(w, status, CartResponse{
		ID:          cart.ID,
		UserID:      cart.UserID,
		Items:       items,
		TotalAmount: total.Amount,
		Currency:    total.Currency,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

// writeError маппит ошибки service/domain слоёв на HTTP статусы
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrProductNotFound),
		errors.Is(err, service.ErrCartNotFound),
		errors.Is(err, service.ErrOrderNotFound),
		errors.Is(err, domain.ErrCartItemNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrInsufficientStock),
		errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrInvalidStatusTransition),
		errors.Is(err, domain.ErrQuantityBelowReserved),
		errors.Is(err, domain.ErrEmptyCart):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrNegativeAmount),
		errors.Is(err, domain.ErrInvalidCurrency),
		errors.Is(err, domain.ErrEmptyProductName):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("request failed", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func toProductResponse(p *domain.Product) ProductResponse {
	return ProductResponse{
		ID:        p.ID,
		Name:      p.Name,
		Price:     p.Price.Amount,
		Currency:  p.Price.Currency,
		Quantity:  p.Stock.Quantity,
		Reserved:  p.Stock.Reserved,
		Available: p.Stock.Available(),
	}
}

func toOrderResponse(o *domain.Order) OrderResponse {
	items := make([]CartItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, CartItemResponse{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice.Amount,
			Currency:    item.UnitPrice.Currency,
		})
	}
	return OrderResponse{
		ID:          o.ID,
		UserID:      o.UserID,
		Status:      string(o.Status),
		Items:       items,
		TotalAmount: o.Total.Amount,
		Currency:    o.Total.Currency,
	}
}
