package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/KTAKhang/SEP490-Group10-sub002/api/middleware"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/enums"
)

func withCaller(req *http.Request, userID uuid.UUID, role enums.Role) *http.Request {
	ctx := middleware.WithCaller(req.Context(), middleware.Caller{UserID: userID, Role: role})
	return req.WithContext(ctx)
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(req.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}
