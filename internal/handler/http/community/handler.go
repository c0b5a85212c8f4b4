package community_http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"dizimo/internal/app/community"
	"dizimo/internal/domain"
	common "dizimo/internal/handler/http/common"
)

type CommunityService interface {
	CreateCommunity(ctx context.Context, in community.CreateCommunityInput) (*domain.Community, error)
	GetCommunityByName(ctx context.Context, name string) (*domain.Community, error)
	GetCommunityByPatron(ctx context.Context, patron string) (*domain.Community, error)
	ListCommunitiesByLocation(ctx context.Context, location string) ([]domain.Community, error)
	ListCommunities(ctx context.Context, afterID string, limit int) ([]domain.Community, error)
	UpdateCommunity(ctx context.Context, id string, update domain.CommunityUpdate) (*domain.Community, error)
	DeleteCommunity(ctx context.Context, id string) error

	CreateUser(ctx context.Context, in community.CreateUserInput) (*domain.User, error)
	GetUser(ctx context.Context, id string) (*domain.User, error)
	UpdateProfile(ctx context.Context, userID string, in community.ProfileUpdate) (*domain.User, error)

	UpdateLogin(ctx context.Context, id string, in community.LoginChange) (*domain.Login, error)
	DeleteLogin(ctx context.Context, id string) error
	Authenticate(ctx context.Context, cpf, password string) (*community.Session, error)
}

type ReportExporter interface {
	ExportCommunityReport(ctx context.Context, communityID string, year int) ([]byte, error)
}

type CommunityHandler struct {
	service CommunityService
	reports ReportExporter
	logger  *zap.Logger
}

func NewCommunityHandler(s CommunityService, reports ReportExporter, l *zap.Logger) *CommunityHandler {
	return &CommunityHandler{service: s, reports: reports, logger: l}
}

type UpdateCommunityRequest struct {
	Name     *string `json:"name,omitempty"`
	Patron   *string `json:"patron,omitempty"`
	Email    *string `json:"email,omitempty"`
	Image    *string `json:"image,omitempty"`
	Location *string `json:"location,omitempty"`
}

type CommunityResponse struct {
	ID                      string  `json:"id"`
	Name                    string  `json:"name"`
	Patron                  string  `json:"patron"`
	Location                string  `json:"location"`
	Email                   string  `json:"email"`
	Image                   *string `json:"image,omitempty"`
	ActualMonthPaymentValue int64   `json:"actual_month_payment_value"`
	LastMonthPaymentValue   int64   `json:"last_month_payment_value"`
}

func toCommunityResponse(c *domain.Community) CommunityResponse {
	return CommunityResponse{
		ID:                      c.ID,
		Name:                    c.Name,
		Patron:                  c.Patron,
		Location:                c.Location,
		Email:                   c.Email,
		Image:                   c.Image,
		ActualMonthPaymentValue: c.ActualMonthPaymentValue,
		LastMonthPaymentValue:   c.LastMonthPaymentValue,
	}
}

func toCommunityResponses(list []domain.Community) []CommunityResponse {
	out := make([]CommunityResponse, 0, len(list))
	for i := range list {
		out = append(out, toCommunityResponse(&list[i]))
	}
	return out
}

type UserResponse struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	CPF         string          `json:"cpf"`
	Phone       string          `json:"phone"`
	Email       string          `json:"email"`
	Position    domain.Position `json:"position"`
	Birthday    string          `json:"birthday,omitempty"`
	Image       *string         `json:"image,omitempty"`
	CommunityID string          `json:"community_id"`
	Active      bool            `json:"active"`
}

func toUserResponse(u *domain.User) UserResponse {
	resp := UserResponse{
		ID:          u.ID,
		Name:        u.Name,
		CPF:         u.CPF,
		Phone:       u.Phone,
		Email:       u.Email,
		Position:    u.Position,
		Image:       u.Image,
		CommunityID: u.CommunityID,
		Active:      u.Active,
	}
	if u.Birthday != nil {
		resp.Birthday = u.Birthday.Format("2006/01/02")
	}
	return resp
}

type LoginRequest struct {
	CPF      string `json:"cpf"`
	Password string `json:"password"`
}

type LoginResponse struct {
	ID        string          `json:"id"`
	Position  domain.Position `json:"position"`
	UpdatedAt string          `json:"updated_at"`
}

func (h *CommunityHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := common.DecodeJSON(w, r, &req); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	session, err := h.service.Authenticate(r.Context(), req.CPF, req.Password)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, h.logger, http.StatusOK, session)
}

func (h *CommunityHandler) CreateCommunityHandler(w http.ResponseWriter, r *http.Request) {
	var req community.CreateCommunityInput
	if err := common.DecodeJSON(w, r, &req); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	created, err := h.service.CreateCommunity(r.Context(), req)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, h.logger, http.StatusCreated, toCommunityResponse(created))
}

// ListCommunitiesHandler filters by ?name= or ?location=, otherwise pages with
// ?after= and ?limit=.
func (h *CommunityHandler) ListCommunitiesHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if name := query.Get("name"); name != "" {
		found, err := h.service.GetCommunityByName(r.Context(), name)
		if err != nil {
			common.WriteError(w, h.logger, err)
			return
		}
		common.WriteJSON(w, h.logger, http.StatusOK, []CommunityResponse{toCommunityResponse(found)})
		return
	}

	var (
		list []domain.Community
		err  error
	)
	if location := query.Get("location"); location != "" {
		list, err = h.service.ListCommunitiesByLocation(r.Context(), location)
	} else {
		var limit int
		if limit, err = common.IntQuery(r, "limit", 0); err == nil {
			list, err = h.service.ListCommunities(r.Context(), query.Get("after"), limit)
		}
	}
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, h.logger, http.StatusOK, toCommunityResponses(list))
}

func (h *CommunityHandler) GetByPatronHandler(w http.ResponseWriter, r *http.Request) {
	found, err := h.service.GetCommunityByPatron(r.Context(), chi.URLParam(r, "patron"))
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, h.logger, http.StatusOK, toCommunityResponse(found))
}

func (h *CommunityHandler) UpdateCommunityHandler(w http.ResponseWriter, r *http.Request) {
	var req UpdateCommunityRequest
	if err := common.DecodeJSON(w, r, &req); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	update := domain.CommunityUpdate{
		Name:     req.Name,
		Patron:   req.Patron,
		Email:    req.Email,
		Image:    req.Image,
		Location: req.Location,
	}
	updated, err := h.service.UpdateCommunity(r.Context(), chi.URLParam(r, "id"), update)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, h.logger, http.StatusOK, toCommunityResponse(updated))
}

func (h *CommunityHandler) DeleteCommunityHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteCommunity(r.Context(), chi.URLParam(r, "id")); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CommunityHandler) ReportHandler(w http.ResponseWriter, r *http.Request) {
	communityID := chi.URLParam(r, "id")
	year, err := common.IntParam(r, "year")
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}

	data, err := h.reports.ExportCommunityReport(r.Context(), communityID, year)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="dizimo-%s-%d.xlsx"`, communityID, year))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Error("Failed to write report", zap.String("community_id", communityID), zap.Error(err))
	}
}

// CreateUserHandler registers a member. Anyone may register as a member;
// other positions need a manager's token.
func (h *CommunityHandler) CreateUserHandler(w http.ResponseWriter, r *http.Request) {
	var req community.CreateUserInput
	if err := common.DecodeJSON(w, r, &req); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	if req.Position == "" {
		req.Position = domain.PositionMember
	}
	if req.Position != domain.PositionMember {
		if err := requireManager(r.Context()); err != nil {
			common.WriteError(w, h.logger, err)
			return
		}
	}

	user, err := h.service.CreateUser(r.Context(), req)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, h.logger, http.StatusCreated, toUserResponse(user))
}

func (h *CommunityHandler) GetMeHandler(w http.ResponseWriter, r *http.Request) {
	id, _ := common.IdentityFrom(r.Context())
	user, err := h.service.GetUser(r.Context(), id.UserID)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, h.logger, http.StatusOK, toUserResponse(user))
}

func (h *CommunityHandler) UpdateMeHandler(w http.ResponseWriter, r *http.Request) {
	id, _ := common.IdentityFrom(r.Context())

	var req community.ProfileUpdate
	if err := common.DecodeJSON(w, r, &req); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	if req.Position != nil && *req.Position != id.Position {
		if err := requireManager(r.Context()); err != nil {
			common.WriteError(w, h.logger, err)
			return
		}
	}

	user, err := h.service.UpdateProfile(r.Context(), id.UserID, req)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, h.logger, http.StatusOK, toUserResponse(user))
}

func (h *CommunityHandler) UpdateMyLoginHandler(w http.ResponseWriter, r *http.Request) {
	id, _ := common.IdentityFrom(r.Context())

	var req community.LoginChange
	if err := common.DecodeJSON(w, r, &req); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	if req.Position != nil && *req.Position != id.Position {
		if err := requireManager(r.Context()); err != nil {
			common.WriteError(w, h.logger, err)
			return
		}
	}

	login, err := h.service.UpdateLogin(r.Context(), id.UserID, req)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, h.logger, http.StatusOK, LoginResponse{
		ID:        login.ID,
		Position:  login.Position,
		UpdatedAt: login.UpdatedAt.Format(time.RFC3339),
	})
}

// DeleteLoginHandler lets users drop their own credentials and managers drop anyone's.
func (h *CommunityHandler) DeleteLoginHandler(w http.ResponseWriter, r *http.Request) {
	id, _ := common.IdentityFrom(r.Context())
	target := chi.URLParam(r, "id")
	if target != id.UserID {
		if err := requireManager(r.Context()); err != nil {
			common.WriteError(w, h.logger, err)
			return
		}
	}

	if err := h.service.DeleteLogin(r.Context(), target); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func requireManager(ctx context.Context) error {
	id, ok := common.IdentityFrom(ctx)
	if !ok {
		return domain.ErrUnauthorized
	}
	if !id.Position.CanManage() {
		return domain.ErrForbidden
	}
	return nil
}
