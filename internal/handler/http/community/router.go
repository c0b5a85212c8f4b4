package community_http

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	common "dizimo/internal/handler/http/common"
)

func RegisterRoutes(r chi.Router, auth *common.Auth, s CommunityService, reports ReportExporter, l *zap.Logger) {
	handler := NewCommunityHandler(s, reports, l.With(zap.String("component", "CommunityHTTPHandler")))

	r.Post("/login", handler.LoginHandler)

	r.Route("/communities", func(r chi.Router) {
		r.Get("/", handler.ListCommunitiesHandler)
		r.Get("/{patron}", handler.GetByPatronHandler)

		r.Group(func(r chi.Router) {
			r.Use(auth.Required, auth.Manager)
			r.Post("/", handler.CreateCommunityHandler)
			r.Patch("/{id}", handler.UpdateCommunityHandler)
			r.Delete("/{id}", handler.DeleteCommunityHandler)
			r.Get("/{id}/reports/{year}.xlsx", handler.ReportHandler)
		})
	})

	r.Route("/users", func(r chi.Router) {
		r.With(auth.Optional).Post("/", handler.CreateUserHandler)
		r.With(auth.Required).Get("/me", handler.GetMeHandler)
		r.With(auth.Required).Patch("/me", handler.UpdateMeHandler)
	})

	r.Route("/logins", func(r chi.Router) {
		r.Use(auth.Required)
		r.Patch("/me", handler.UpdateMyLoginHandler)
		r.Delete("/{id}", handler.DeleteLoginHandler)
	})
}
