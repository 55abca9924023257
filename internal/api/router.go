package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/payrollflow/internal/api/handlers"
	"github.com/nikhilbhutani/payrollflow/internal/api/middleware"
	"github.com/nikhilbhutani/payrollflow/internal/auth"
	"github.com/nikhilbhutani/payrollflow/internal/cache"
	"github.com/nikhilbhutani/payrollflow/internal/config"
	"github.com/nikhilbhutani/payrollflow/internal/employee"
	"github.com/nikhilbhutani/payrollflow/internal/ledger"
	"github.com/nikhilbhutani/payrollflow/internal/notification"
	"github.com/nikhilbhutani/payrollflow/internal/payroll"
	"github.com/nikhilbhutani/payrollflow/internal/principal"
)

// Services are the domain services the HTTP layer exposes.
type Services struct {
	Ledger        *ledger.Service
	Employees     *employee.Service
	Payroll       *payroll.Engine
	Notifications *notification.Emitter
	Webhooks      handlers.WebhookService
	Audit         handlers.AuditLister
	// Cache is optional; nil serves every read from the store.
	Cache *cache.Cache
}

type Router struct {
	mux     *chi.Mux
	db      *pgxpool.Pool
	redis   redis.UniversalClient
	cfg     *config.Config
	svc     Services
	jwt     *auth.JWTMiddleware
	apikey  *auth.APIKeyMiddleware
	limiter *middleware.RateLimiter
}

// NewRouter wires the API. db and rdb are only used for readiness checks and
// may be nil; apikey may be nil to accept JWTs only.
func NewRouter(db *pgxpool.Pool, rdb redis.UniversalClient, cfg *config.Config, svc Services, jwt *auth.JWTMiddleware, apikey *auth.APIKeyMiddleware) *Router {
	return &Router{
		mux:     chi.NewRouter(),
		db:      db,
		redis:   rdb,
		cfg:     cfg,
		svc:     svc,
		jwt:     jwt,
		apikey:  apikey,
		limiter: middleware.NewRateLimiter(float64(cfg.Server.RateLimitRPS), cfg.Server.RateLimitBurst),
	}
}

// Limiter exposes the rate limiter so the caller can run its cleanup loop.
func (rt *Router) Limiter() *middleware.RateLimiter {
	return rt.limiter
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.ClientIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(rt.cfg.Server.AllowedOrigins, rt.cfg.Auth.APIKeyHeader))
	r.Use(rt.limiter.Limit)

	// Health endpoints (no auth)
	health := handlers.NewHealthHandler(rt.db, rt.redis)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	need := auth.RequireCapability

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Auth: try API key first, then JWT
		if rt.apikey != nil {
			r.Use(rt.apikey.Authenticate)
		}
		r.Use(rt.jwt.Authenticate)

		companyH := handlers.NewCompanyHandler(rt.svc.Ledger, rt.svc.Payroll, rt.svc.Cache, rt.cfg.Cache.TTL)
		r.Route("/companies", func(r chi.Router) {
			r.With(need(principal.CapCompaniesManage)).Post("/", companyH.Create)
			r.With(need(principal.CapCompaniesRead)).Get("/", companyH.List)
			r.With(need(principal.CapCompaniesRead)).Get("/{id}", companyH.Get)
			r.With(need(principal.CapCompaniesManage)).Post("/{id}/fund", companyH.Fund)
			r.With(need(principal.CapCompanyFunds)).Get("/{id}/funds", companyH.Funds)
		})

		employeeH := handlers.NewEmployeeHandler(rt.svc.Employees)
		r.Route("/employees", func(r chi.Router) {
			r.With(need(principal.CapEmployeesWrite)).Post("/", employeeH.Create)
			r.With(need(principal.CapEmployeesRead)).Get("/", employeeH.List)
			r.With(need(principal.CapEmployeesRead)).Get("/{id}", employeeH.Get)
			r.With(need(principal.CapEmployeesWrite)).Put("/{id}", employeeH.Update)
			r.With(need(principal.CapEmployeesWrite)).Post("/{id}/deactivate", employeeH.Deactivate)
			r.With(need(principal.CapEmployeesWrite)).Post("/{id}/activate", employeeH.Activate)
		})

		payrollH := handlers.NewPayrollHandler(rt.svc.Payroll, rt.svc.Cache, rt.cfg.Cache.TTL)
		r.Route("/payrolls", func(r chi.Router) {
			r.With(need(principal.CapPayrollWrite)).Post("/", payrollH.Create)
			r.With(need(principal.CapPayrollRead)).Get("/", payrollH.List)
			r.With(need(principal.CapPayrollRead)).Get("/summary", payrollH.Summary)
			r.With(need(principal.CapPayrollGenerate)).Post("/generate", payrollH.Generate)
			r.With(need(principal.CapPayrollApprove)).Post("/approve", payrollH.BatchApprove)
			r.With(need(principal.CapPayrollRead)).Get("/{id}", payrollH.Get)
			r.With(need(principal.CapPayrollWrite)).Put("/{id}", payrollH.Recompute)
			r.With(need(principal.CapPayrollApprove)).Post("/{id}/approve", payrollH.Approve)
			r.With(need(principal.CapPayrollPay)).Post("/{id}/pay", payrollH.Pay)
		})

		notificationH := handlers.NewNotificationHandler(rt.svc.Notifications)
		r.Route("/notifications", func(r chi.Router) {
			r.Use(need(principal.CapNotifications))
			r.Get("/", notificationH.List)
			r.Post("/read-all", notificationH.MarkAllRead)
			r.Post("/{id}/read", notificationH.MarkRead)
		})

		if rt.svc.Webhooks != nil {
			webhookH := handlers.NewWebhookHandler(rt.svc.Webhooks)
			r.Route("/webhooks", func(r chi.Router) {
				r.Use(need(principal.CapWebhooksManage))
				r.Post("/", webhookH.Create)
				r.Get("/", webhookH.List)
				r.Delete("/{id}", webhookH.Delete)
			})
		}

		if rt.svc.Audit != nil {
			adminH := handlers.NewAdminHandler(rt.svc.Audit)
			r.Route("/admin", func(r chi.Router) {
				r.Use(need(principal.CapAuditRead))
				r.Get("/audit", adminH.AuditLogs)
			})
		}
	})

	return r
}
