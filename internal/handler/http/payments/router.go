package payments_http

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	common "dizimo/internal/handler/http/common"
)

func RegisterRoutes(r chi.Router, auth *common.Auth, s PaymentService, rollover RolloverRunner, l *zap.Logger) {
	handler := NewPaymentHandler(s, rollover, l.With(zap.String("component", "PaymentHTTPHandler")))

	r.Route("/dizimo_payment", func(r chi.Router) {
		r.Use(auth.Required)
		r.Post("/", handler.RequestChargeHandler)
		r.Get("/month/{month}", handler.ListByMonthHandler)
		r.Get("/{year}", handler.ListByYearHandler)
		r.Get("/{year}/{month}", handler.GetByPeriodHandler)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(auth.Required, auth.Manager)
		r.Post("/payments", handler.CreatePaymentHandler)
		r.Get("/payments/by-identifier/{identifier}", handler.GetByIdentifierHandler)
		r.Patch("/payments/{id}", handler.UpdatePaymentHandler)
		r.Post("/payments/{id}/expire", handler.ExpirePaymentHandler)
		r.Delete("/payments/{id}", handler.DeletePaymentHandler)
		r.Post("/rollover", handler.RolloverHandler)
	})
}

func RegisterWebhookRoutes(r chi.Router, events ChargeEventApplier, appID string, l *zap.Logger) {
	handler := NewWebhookHandler(events, appID, l.With(zap.String("component", "PixWebhookHandler")))

	r.Post("/webhooks/pix", handler.PixHandler)
}
