package warnings_http

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	common "dizimo/internal/handler/http/common"
)

func RegisterRoutes(r chi.Router, auth *common.Auth, s WarningService, l *zap.Logger) {
	handler := NewWarningHandler(s, l.With(zap.String("component", "WarningHTTPHandler")))

	r.Route("/community", func(r chi.Router) {
		r.Use(auth.Required)
		r.Get("/warnings/{patron}", handler.LatestHandler)
		r.Get("/warnings/{patron}/paginated", handler.PaginatedHandler)
		r.Get("/warning/{id}", handler.GetHandler)

		r.Group(func(r chi.Router) {
			r.Use(auth.Manager)
			r.Post("/warnings", handler.CreateHandler)
			r.Put("/warnings/{id}", handler.UpdateHandler)
			r.Delete("/warnings/{id}", handler.DeleteHandler)
		})
	})
}
