package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers groups the HTTP handlers mounted by NewRouter.
type Handlers struct {
	Segments  *SegmentHandler
	Campaigns *CampaignHandler
	Customers *CustomerHandler
	Orders    *OrderHandler
	Receipts  *ReceiptHandler
	Health    *HealthHandler
}

// NewRouter registers the middleware stack and every API route.
func NewRouter(h Handlers, log *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(Metrics)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.Health.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Route("/segments", func(r chi.Router) {
			r.Post("/", h.Segments.CreateSegment)
			r.Get("/", h.Segments.ListSegments)
			r.Post("/preview", h.Segments.PreviewSegment)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.Segments.GetSegment)
				r.Put("/", h.Segments.UpdateSegment)
				r.Delete("/", h.Segments.DeleteSegment)
				r.Get("/customers", h.Segments.SegmentCustomers)
			})
		})

		r.Route("/customers", func(r chi.Router) {
			r.Post("/", h.Customers.CreateCustomer)
			r.Get("/", h.Customers.ListCustomers)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.Customers.GetCustomer)
				r.Get("/orders", h.Orders.CustomerOrders)
			})
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.Orders.CreateOrder)
			r.Get("/", h.Orders.ListOrders)
			r.Get("/{id}", h.Orders.GetOrder)
		})

		r.Route("/campaigns", func(r chi.Router) {
			r.Post("/", h.Campaigns.CreateCampaign)
			r.Get("/", h.Campaigns.ListCampaigns)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.Campaigns.GetCampaign)
				r.Get("/stats", h.Campaigns.CampaignStats)
				r.Get("/logs", h.Campaigns.CampaignLogs)
				r.Post("/dispatch", h.Campaigns.DispatchCampaign)
				r.Post("/preview", h.Campaigns.PreviewMessage)
			})
		})

		r.Post("/vendor/receipts", h.Receipts.DeliveryReceipt)
		r.Post("/communications/delivery-receipt", h.Receipts.DeliveryReceipt)
	})

	return r
}
