package callercontext

import (
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/KTAKhang/SEP490-Group10-sub002/api/middleware"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/history"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/enums"
	pkgerrors "github.com/KTAKhang/SEP490-Group10-sub002/pkg/errors"
)

// ResolveActor builds the history actor for the authenticated caller.
func ResolveActor(r *http.Request) (history.Actor, error) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		return history.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	switch caller.Role {
	case enums.RoleAdmin:
		return history.Admin(caller.UserID), nil
	case enums.RoleCustomer:
		return history.Customer(caller.UserID), nil
	}
	return history.Actor{}, pkgerrors.New(pkgerrors.CodeForbidden, "role not allowed").
		WithDetails(map[string]any{"role": caller.Role})
}

// ResolveShopper returns the caller id when the caller is a customer.
func ResolveShopper(r *http.Request) (uuid.UUID, error) {
	actor, err := ResolveActor(r)
	if err != nil {
		return uuid.Nil, err
	}
	if actor.Role != enums.RoleCustomer {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "customer access required")
	}
	return *actor.ID, nil
}

// URLParamUUID parses a chi path parameter.
func URLParamUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, name+" is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+name)
	}
	return id, nil
}

// ClientIP prefers the first X-Forwarded-For hop, then RemoteAddr.
func ClientIP(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-Ip")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
