package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Server struct {
	Router *chi.Mux
}

func NewServer(log *slog.Logger, handler *Handler, jwtSecret string) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))
	r.Use(cors)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/payments", func(r chi.Router) {
		r.Post("/orders", handler.CreateOrder)
		r.Get("/orders/{orderId}", handler.GetOrder)
		r.Post("/orders/{orderId}/check", handler.CheckPayment)
		r.Get("/orders/{orderId}/watch", handler.WatchPayment)
		r.Get("/users/{userId}/orders", handler.UserOrders)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(adminOnly(jwtSecret))
		r.Get("/orders", handler.AdminListOrders)
		r.Get("/orders/{orderId}", handler.AdminGetOrder)
		r.Post("/orders/{orderId}/cancel", handler.AdminCancelOrder)
		r.Post("/orders/{orderId}/complete", handler.AdminCompleteOrder)
		r.Get("/settings/discount", handler.AdminGetDiscount)
		r.Put("/settings/discount", handler.AdminSetDiscount)
	})

	return &Server{Router: r}
}
