package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	common "dizimo/internal/handler/http/common"
	community_http "dizimo/internal/handler/http/community"
	payments_http "dizimo/internal/handler/http/payments"
	warnings_http "dizimo/internal/handler/http/warnings"
	web_push_http "dizimo/internal/handler/http/web_push"
)

type Options struct {
	JWTSecret      string
	PixAppID       string
	AllowedOrigins []string
	RequestTimeout time.Duration
}

type Services struct {
	Payments      payments_http.PaymentService
	Rollover      payments_http.RolloverRunner
	ChargeEvents  payments_http.ChargeEventApplier
	Community     community_http.CommunityService
	Reports       community_http.ReportExporter
	Warnings      warnings_http.WarningService
	Notifications web_push_http.NotificationService
}

func NewRouter(opts Options, svc Services, logger *zap.Logger) http.Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.RequestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	auth := common.NewAuth(opts.JWTSecret, logger.With(zap.String("component", "Auth")))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Dizimo service is healthy!"))
	})

	community_http.RegisterRoutes(r, auth, svc.Community, svc.Reports, logger)
	payments_http.RegisterRoutes(r, auth, svc.Payments, svc.Rollover, logger)
	payments_http.RegisterWebhookRoutes(r, svc.ChargeEvents, opts.PixAppID, logger)
	warnings_http.RegisterRoutes(r, auth, svc.Warnings, logger)
	web_push_http.RegisterRoutes(r, auth, svc.Notifications, logger)

	return r
}
