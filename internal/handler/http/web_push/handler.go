package web_push_http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"dizimo/internal/app/notifications"
	"dizimo/internal/domain"
	common "dizimo/internal/handler/http/common"
)

type NotificationService interface {
	Subscribe(ctx context.Context, userID string, in notifications.SubscriptionInput) (*domain.WebPushSubscription, error)
	Send(ctx context.Context, in notifications.NotificationInput) error
}

type WebPushHandler struct {
	service NotificationService
	logger  *zap.Logger
}

func NewWebPushHandler(s NotificationService, l *zap.Logger) *WebPushHandler {
	return &WebPushHandler{service: s, logger: l}
}

type SubscriptionResponse struct {
	ID       string `json:"id"`
	Endpoint string `json:"endpoint"`
}

func (h *WebPushHandler) SubscribeHandler(w http.ResponseWriter, r *http.Request) {
	id, _ := common.IdentityFrom(r.Context())

	var req notifications.SubscriptionInput
	if err := common.DecodeJSON(w, r, &req); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	sub, err := h.service.Subscribe(r.Context(), id.UserID, req)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, h.logger, http.StatusCreated, SubscriptionResponse{ID: sub.ID, Endpoint: sub.Endpoint})
}

func (h *WebPushHandler) SendNotificationHandler(w http.ResponseWriter, r *http.Request) {
	var req notifications.NotificationInput
	if err := common.DecodeJSON(w, r, &req); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	if err := h.service.Send(r.Context(), req); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func RegisterRoutes(r chi.Router, auth *common.Auth, s NotificationService, l *zap.Logger) {
	handler := NewWebPushHandler(s, l.With(zap.String("component", "WebPushHTTPHandler")))

	r.Route("/web_push", func(r chi.Router) {
		r.Use(auth.Required)
		r.Post("/subscription", handler.SubscribeHandler)
		r.With(auth.Manager).Post("/send_notification", handler.SendNotificationHandler)
	})
}
