package main

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"paintball-ticketing/internal/analytics"
	analytics_api "paintball-ticketing/internal/analytics/api"
	"paintball-ticketing/internal/auth"
	"paintball-ticketing/internal/customer"
	"paintball-ticketing/internal/customer/customer_api"
	"paintball-ticketing/internal/logger"
	"paintball-ticketing/internal/metrics"
	"paintball-ticketing/internal/order"
	"paintball-ticketing/internal/order/order_api"
	"paintball-ticketing/internal/ratelimit"
	"paintball-ticketing/internal/settings"
	"paintball-ticketing/internal/settings/settings_api"
	"paintball-ticketing/internal/sse"
	tickets "paintball-ticketing/internal/tickets/service"
	"paintball-ticketing/internal/tickets/ticket_api"
	"paintball-ticketing/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/uptrace/bun"
)

type routerDeps struct {
	Log       *logger.Logger
	Verifier  auth.Verifier
	Limiter   *ratelimit.Limiter
	Metrics   *metrics.Metrics
	DB        *bun.DB
	Redis     *redis.Client
	Orders    *order.OrderService
	Tickets   *tickets.TicketService
	Customers *customer.Service
	Settings  *settings.Service
	Analytics *analytics.Service
	ScanFeed  *sse.ScanFeed
}

func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(d.Log))

	r.Get("/health", health(d.DB, d.Redis))
	r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())

	orders := order_api.NewHandler(d.Orders, d.Log)

	r.Route("/api", func(r chi.Router) {
		if d.Limiter != nil {
			r.Use(d.Limiter.Middleware("api", d.Log))
		}

		// Gateways authenticate with a payload signature, not a bearer token.
		orders.RegisterPublicRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(d.Verifier, d.Log))
			orders.RegisterRoutes(r)
			ticketHandler := ticket_api.NewHandler(d.Tickets, d.Log)
			if d.ScanFeed != nil {
				ticketHandler.Feed = d.ScanFeed
			}
			ticketHandler.RegisterRoutes(r)
			(&customer_api.Handler{Customers: d.Customers, Logger: d.Log}).RegisterRoutes(r)
			(&settings_api.Handler{Settings: d.Settings, Logger: d.Log}).RegisterRoutes(r)
			analytics_api.NewHandler(d.Analytics, d.Log).RegisterRoutes(r)
		})
	})

	return r
}

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.LogAPI(r.Method, r.URL.Path, strconv.Itoa(ww.Status()), time.Since(start).String())
		})
	}
}

// health reports database reachability; Redis is informational since the
// service runs without it.
func health(db *bun.DB, rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := map[string]string{"database": "up", "redis": "disabled"}
		code := http.StatusOK
		if err := db.PingContext(ctx); err != nil {
			status["database"] = fmt.Sprintf("down: %v", err)
			code = http.StatusServiceUnavailable
		}
		if rdb != nil {
			status["redis"] = "up"
			if err := rdb.Ping(ctx).Err(); err != nil {
				status["redis"] = "down"
			}
		}

		if code != http.StatusOK {
			utils.WriteJSON(w, code, utils.ErrorResponse("unhealthy", status["database"]))
			return
		}
		utils.WriteSuccess(w, code, "healthy", status)
	}
}
