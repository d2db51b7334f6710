package http

import (
	"net/http"
	"time"

	"github.com/NineNineAFK/verto/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
	RequestTimeout time.Duration
	ServiceName    string
	// Ready reports whether the service can take traffic; nil means always ready.
	Ready func() error
}

type Handlers struct {
	Inventory *InventoryHandler
	Cart      *CartHandler
	Payment   *PaymentHandler
}

func NewRouter(cfg RouterConfig, h Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware(cfg.Logger))
	r.Use(AccessLogMiddleware(cfg.Metrics))
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Ready != nil {
			if err := cfg.Ready(); err != nil {
				respondError(w, http.StatusServiceUnavailable, "service_unavailable", err.Error())
				return
			}
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	// the gateway sends the buyer back without our identity header
	r.Get("/payment/redirect", h.Payment.Redirect)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware)

		r.Post("/payment/initiate", h.Payment.Initiate)
		r.Get("/payment/status", h.Payment.Status)
		r.Get("/payment/debug/token", h.Payment.DebugToken)

		r.Route("/home", func(r chi.Router) {
			r.Get("/store", h.Inventory.Store)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", h.Cart.GetCart)
				r.Post("/add", h.Cart.AddItem)
				r.Post("/{productId}", h.Cart.UpdateQuantity)
				r.Delete("/{productId}", h.Cart.RemoveItem)
			})

			r.Route("/inventory", func(r chi.Router) {
				r.Get("/", h.Inventory.ListWarehouses)
				r.Post("/add", h.Inventory.CreateWarehouse)

				r.Route("/{warehouseId}", func(r chi.Router) {
					r.Get("/", h.Inventory.GetWarehouse)
					r.Post("/edit", h.Inventory.UpdateWarehouse)
					r.Post("/delete", h.Inventory.DeleteWarehouse)
					r.Post("/restore", h.Inventory.RestoreWarehouse)
					r.Post("/permanent-delete", h.Inventory.PermanentDeleteWarehouse)
					r.Get("/audit", h.Inventory.AuditLog)

					r.Route("/products", func(r chi.Router) {
						r.Post("/add", h.Inventory.CreateProduct)
						r.Get("/low", h.Inventory.LowStock)

						r.Route("/{productId}", func(r chi.Router) {
							r.Post("/increase", h.Inventory.Increase)
							r.Post("/decrease", h.Inventory.Decrease)
							r.Post("/edit", h.Inventory.EditProduct)
							r.Post("/delete", h.Inventory.DeleteProduct)
							r.Post("/restore", h.Inventory.RestoreProduct)
							r.Get("/history", h.Inventory.ProductHistory)
						})
					})
				})
			})
		})
	})

	return otelhttp.NewHandler(r, cfg.ServiceName)
}
