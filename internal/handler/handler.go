// Package handler exposes the order, product and report services over a
// JSON REST API.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/phongit-kha/pos-lmwn/internal/domain/order"
	"github.com/phongit-kha/pos-lmwn/internal/domain/product"
	"github.com/phongit-kha/pos-lmwn/internal/domain/report"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Handler serves the /api routes.
type Handler struct {
	orders   *order.Service
	products product.Repository
	reports  *report.Service
}

// New constructs a Handler with the required domain dependencies.
func New(orders *order.Service, products product.Repository, reports *report.Service) *Handler {
	return &Handler{
		orders:   orders,
		products: products,
		reports:  reports,
	}
}

// Routes returns a router with every API endpoint mounted at its root.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeErrorCode(w, r, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeErrorCode(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.ListOrders)
		r.Post("/", h.CreateOrder)
		r.Post("/cancel", h.CancelOrders)
		r.Route("/{orderID}", func(r chi.Router) {
			r.Get("/", h.GetOrder)
			r.Post("/items", h.AddItems)
			r.Patch("/items/{itemID}", h.UpdateItemQuantity)
			r.Post("/items/{itemID}/void", h.VoidItem)
			r.Post("/confirm", h.ConfirmOrder)
			r.Post("/checkout", h.Checkout)
			r.Post("/cancel", h.CancelOrder)
		})
	})

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Post("/", h.CreateProduct)
		r.Get("/{productID}", h.GetProduct)
		r.Patch("/{productID}", h.UpdateProduct)
	})

	r.Route("/reports", func(r chi.Router) {
		r.Get("/sales/daily", h.SalesByDate)
		r.Get("/sales/categories", h.SalesByCategory)
		r.Get("/sales/products", h.SalesByProduct)
		r.Get("/sales/hourly", h.SalesByHour)
		r.Get("/sales/tables", h.SalesByTable)
		r.Get("/voids", h.VoidAnalysis)
		r.Get("/summary", h.Summary)
	})
	return r
}
