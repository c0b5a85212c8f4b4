package warnings_http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"dizimo/internal/app/warnings"
	"dizimo/internal/domain"
	common "dizimo/internal/handler/http/common"
)

type WarningService interface {
	Create(ctx context.Context, authorID string, in warnings.CreateInput) (*domain.Warning, error)
	Latest(ctx context.Context, patron string, total int) ([]domain.Warning, error)
	List(ctx context.Context, patron, after string, limit int) (*warnings.Page, error)
	Get(ctx context.Context, id string) (*domain.Warning, error)
	Update(ctx context.Context, id string, update domain.WarningUpdate) (*domain.Warning, error)
	Delete(ctx context.Context, id string) error
}

type WarningHandler struct {
	service WarningService
	logger  *zap.Logger
}

func NewWarningHandler(s WarningService, l *zap.Logger) *WarningHandler {
	return &WarningHandler{service: s, logger: l}
}

type UpdateWarningRequest struct {
	Scope       *domain.WarningScope `json:"scope,omitempty"`
	Title       *string              `json:"title,omitempty"`
	Description *string              `json:"description,omitempty"`
	Image       *string              `json:"image,omitempty"`
}

type WarningResponse struct {
	ID          string              `json:"id"`
	CommunityID string              `json:"community_id"`
	Scope       domain.WarningScope `json:"scope"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Image       *string             `json:"image,omitempty"`
	PostedAt    string              `json:"posted_at"`
	EditedAt    string              `json:"edited_at,omitempty"`
}

type PageResponse struct {
	Items []WarningResponse `json:"items"`
	Next  string            `json:"next,omitempty"`
}

func toWarningResponse(w *domain.Warning) WarningResponse {
	resp := WarningResponse{
		ID:          w.ID,
		CommunityID: w.CommunityID,
		Scope:       w.Scope,
		Title:       w.Title,
		Description: w.Description,
		Image:       w.Image,
		PostedAt:    w.PostedAt.Format(time.RFC3339),
	}
	if w.EditedAt != nil {
		resp.EditedAt = w.EditedAt.Format(time.RFC3339)
	}
	return resp
}

func toWarningResponses(list []domain.Warning) []WarningResponse {
	out := make([]WarningResponse, 0, len(list))
	for i := range list {
		out = append(out, toWarningResponse(&list[i]))
	}
	return out
}

func (h *WarningHandler) LatestHandler(w http.ResponseWriter, r *http.Request) {
	total, err := common.IntQuery(r, "total", 0)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	list, err := h.service.Latest(r.Context(), chi.URLParam(r, "patron"), total)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, h.logger, http.StatusOK, toWarningResponses(list))
}

func (h *WarningHandler) PaginatedHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := common.IntQuery(r, "limit", 0)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	page, err := h.service.List(r.Context(), chi.URLParam(r, "patron"), r.URL.Query().Get("after"), limit)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, h.logger, http.StatusOK, PageResponse{Items: toWarningResponses(page.Items), Next: page.Next})
}

func (h *WarningHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	warning, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, h.logger, http.StatusOK, toWarningResponse(warning))
}

func (h *WarningHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	id, _ := common.IdentityFrom(r.Context())

	var req warnings.CreateInput
	if err := common.DecodeJSON(w, r, &req); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	warning, err := h.service.Create(r.Context(), id.UserID, req)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, h.logger, http.StatusCreated, toWarningResponse(warning))
}

func (h *WarningHandler) UpdateHandler(w http.ResponseWriter, r *http.Request) {
	var req UpdateWarningRequest
	if err := common.DecodeJSON(w, r, &req); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	update := domain.WarningUpdate{
		Scope:       req.Scope,
		Title:       req.Title,
		Description: req.Description,
		Image:       req.Image,
	}
	warning, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), update)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, h.logger, http.StatusOK, toWarningResponse(warning))
}

func (h *WarningHandler) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
