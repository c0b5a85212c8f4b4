package common_http

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"dizimo/internal/domain"
	"dizimo/internal/util"
)

// Identity is the caller resolved from a bearer token.
type Identity struct {
	UserID   string
	Position domain.Position
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

type Auth struct {
	secret string
	logger *zap.Logger
}

func NewAuth(secret string, logger *zap.Logger) *Auth {
	return &Auth{secret: secret, logger: logger}
}

func (a *Auth) identify(r *http.Request) (Identity, bool, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return Identity{}, false, nil
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return Identity{}, true, domain.ErrUnauthorized
	}
	claims, err := util.ParseToken(a.secret, token)
	if err != nil {
		a.logger.Debug("Rejected bearer token", zap.Error(err))
		return Identity{}, true, domain.ErrUnauthorized
	}
	return Identity{UserID: claims.UserID, Position: domain.Position(claims.Position)}, true, nil
}

// Required rejects requests without a valid bearer token.
func (a *Auth) Required(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, present, err := a.identify(r)
		if err == nil && !present {
			err = domain.ErrUnauthorized
		}
		if err != nil {
			WriteError(w, a.logger, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// Optional attaches the caller identity when a token is sent. A token that
// does not verify is still rejected.
func (a *Auth) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, present, err := a.identify(r)
		if err != nil {
			WriteError(w, a.logger, err)
			return
		}
		if present {
			r = r.WithContext(WithIdentity(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// Manager admits parish leaders and council members. It must run after Required.
func (a *Auth) Manager(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r.Context())
		if !ok {
			WriteError(w, a.logger, domain.ErrUnauthorized)
			return
		}
		if !id.Position.CanManage() {
			a.logger.Warn("Administrative route denied",
				zap.String("user_id", id.UserID),
				zap.String("path", r.URL.Path))
			WriteError(w, a.logger, domain.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
