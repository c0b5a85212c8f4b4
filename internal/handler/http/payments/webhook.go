package payments_http

import (
	"context"
	"crypto/subtle"
	"net/http"

	"go.uber.org/zap"

	"dizimo/internal/domain"
	common "dizimo/internal/handler/http/common"
)

type ChargeEventApplier interface {
	Handle(ctx context.Context, record *domain.InboxMessage, event domain.ChargeEvent) error
}

// WebhookHandler receives charge notifications pushed by the PIX provider.
// The provider authenticates with the same app id the client sends it.
type WebhookHandler struct {
	events ChargeEventApplier
	appID  string
	logger *zap.Logger
}

func NewWebhookHandler(events ChargeEventApplier, appID string, l *zap.Logger) *WebhookHandler {
	return &WebhookHandler{events: events, appID: appID, logger: l}
}

func (h *WebhookHandler) PixHandler(w http.ResponseWriter, r *http.Request) {
	if h.appID == "" || subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), []byte(h.appID)) != 1 {
		h.logger.Warn("Rejected PIX webhook with a wrong app id")
		common.WriteError(w, h.logger, domain.ErrUnauthorized)
		return
	}

	var event domain.ChargeEvent
	if err := common.DecodeJSON(w, r, &event); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}

	if err := h.events.Handle(r.Context(), nil, event); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
