package httpserver

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const apiTimeout = 30 * time.Second

func (s *Server) routes(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-User-ID"},
		ExposedHeaders: []string{"X-Next-Cursor"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	if s.deps.ChatSocket != nil {
		r.Handle("/ws", s.deps.ChatSocket)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(apiTimeout))

		if s.deps.Webhook != nil {
			r.Handle("/flutterwave/webhook", s.deps.Webhook)
		}

		// Public catalogue reads.
		r.Get("/shops", s.handleListShops)
		r.Get("/shops/{id}", s.handleGetShop)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Get("/ratings/{userId}", s.handleListRatings)

		r.Group(func(r chi.Router) {
			r.Use(s.deps.Auth.Handler)

			r.Get("/auth/user", s.handleGetProfile)
			r.Put("/auth/user", s.handleUpdateProfile)

			r.Get("/users", s.handleListUsers)
			r.Patch("/users/{id}/status", s.handleSetUserStatus)

			r.Post("/shops", s.handleCreateShop)
			r.Patch("/shops/{id}", s.handleUpdateShop)
			r.Delete("/shops/{id}", s.handleDeleteShop)
			r.Get("/my-shops", s.handleMyShops)

			r.Post("/jobs", s.handleCreateJob)
			r.Patch("/jobs/{id}", s.handleUpdateJob)
			r.Delete("/jobs/{id}", s.handleDeleteJob)
			r.Get("/my-jobs", s.handleMyJobs)

			r.Get("/chats", s.handleConversations)
			r.Get("/chats/{userId}/messages", s.handleHistory)
			r.Post("/chats/{userId}/messages", s.handleSendMessage)
			r.Post("/chats/{userId}/read", s.handleMarkRead)

			r.Get("/payments", s.handleListPayments)
			r.Post("/payments", s.handleRecordPayment)
			r.Get("/payments/status/{txRef}", s.handlePaymentStatus)
			r.Post("/payments/withdraw", s.handleWithdraw)
			r.Post("/payments/{txRef}/cancel", s.handleCancelPayment)

			r.Get("/virtual-account", s.handleVirtualAccount)

			r.Post("/ratings", s.handleCreateRating)

			r.Get("/analytics", s.handleAnalytics)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "endpoint not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			s.metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()
			s.logger.Debug("http request",
				"method", r.Method,
				"route", route,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Health.Ping(ctx); err != nil {
			s.logger.Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
