// Package httpapi - HTTP API сервиса: каталог товаров, корзина, заказы.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shestoi/product-management/pkg/health"
)

// NewRouter создаёт и настраивает HTTP роутер.
// readiness проверяет готовность зависимостей (БД, брокер); при false
// health endpoint возвращает 503 Service Unavailable.
func NewRouter(handler *Handler, readiness func() bool) chi.Router {
	router := chi.NewRouter()

	router.Route("/products", func(r chi.Router) {
		r.Post("/", handler.PostProducts)
		r.Get("/", handler.GetProducts)
		r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
			handler.GetProductsId(w, r, chi.URLParam(r, "id"))
		})
		r.Post("/{id}/stock/add", func(w http.ResponseWriter, r *http.Request) {
			handler.PostProductsIdStockAdd(w, r, chi.URLParam(r, "id"))
		})
		r.Put("/{id}/stock", func(w http.ResponseWriter, r *http.Request) {
			handler.PutProductsIdStock(w, r, chi.URLParam(r, "id"))
		})
	})

	router.Route("/carts/{userId}", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			handler.GetCart(w, r, chi.URLParam(r, "userId"))
		})
		r.Post("/items", func(w http.ResponseWriter, r *http.Request) {
			handler.PostCartItems(w, r, chi.URLParam(r, "userId"))
		})
		r.Put("/items/{productId}", func(w http.ResponseWriter, r *http.Request) {
			handler.PutCartItem(w, r, chi.URLParam(r, "userId"), chi.URLParam(r, "productId"))
		})
		r.Delete("/items/{productId}", func(w http.ResponseWriter, r *http.Request) {
			handler.DeleteCartItem(w, r, chi.URLParam(r, "userId"), chi.URLParam(r, "productId"))
		})
		r.Post("/checkout", func(w http.ResponseWriter, r *http.Request) {
			handler.PostCartCheckout(w, r, chi.URLParam(r, "userId"))
		})
	})

	router.Route("/orders/{id}", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			handler.GetOrdersId(w, r, chi.URLParam(r, "id"))
		})
		r.Post("/{action}", func(w http.ResponseWriter, r *http.Request) {
			handler.PostOrderStatus(w, r, chi.URLParam(r, "id"), chi.URLParam(r, "action"))
		})
	})

	router.Get("/users/{userId}/orders", func(w http.ResponseWriter, r *http.Request) {
		handler.GetUserOrders(w, r, chi.URLParam(r, "userId"))
	})

	router.Get("/health", health.Handler(readiness))

	return router
}
