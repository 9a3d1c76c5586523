package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/KTAKhang/SEP490-Group10-sub002/internal/notifications"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db/models"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/enums"
	pkgerrors "github.com/KTAKhang/SEP490-Group10-sub002/pkg/errors"
)

type stubNotifications struct {
	params   notifications.ListParams
	marked   []uuid.UUID
	markErr  error
	allCount int64
}

func (s *stubNotifications) SendToUser(context.Context, uuid.UUID, notifications.Message) (*models.Notification, error) {
	return nil, nil
}

func (s *stubNotifications) List(_ context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
	s.params = params
	return &notifications.ListResult{
		Items:  []models.Notification{{ID: uuid.New(), UserID: params.UserID, Title: "Order paid"}},
		Cursor: "next",
	}, nil
}

func (s *stubNotifications) MarkRead(_ context.Context, _, id uuid.UUID) error {
	if s.markErr != nil {
		return s.markErr
	}
	s.marked = append(s.marked, id)
	return nil
}

func (s *stubNotifications) MarkAllRead(context.Context, uuid.UUID) (int64, error) {
	return s.allCount, nil
}

func TestListNotificationsParsesQuery(t *testing.T) {
	svc := &stubNotifications{}
	shopper := uuid.New()
	req := withCaller(httptest.NewRequest(http.MethodGet, "/api/v1/notifications?limit=10&cursor=abc&unreadOnly=true", nil), shopper, enums.RoleCustomer)
	resp := httptest.NewRecorder()
	ListNotifications(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, notifications.ListParams{UserID: shopper, Limit: 10, Cursor: "abc", UnreadOnly: true}, svc.params)

	var envelope struct {
		Data struct {
			Items []struct {
				Title string `json:"title"`
			} `json:"items"`
			Cursor string `json:"cursor"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.Equal(t, "next", envelope.Data.Cursor)
	require.Equal(t, "Order paid", envelope.Data.Items[0].Title)
}

func TestListNotificationsRejectsBadFlag(t *testing.T) {
	req := withCaller(httptest.NewRequest(http.MethodGet, "/api/v1/notifications?unreadOnly=maybe", nil), uuid.New(), enums.RoleCustomer)
	resp := httptest.NewRecorder()
	ListNotifications(&stubNotifications{}, nil).ServeHTTP(resp, req)
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestMarkNotificationRead(t *testing.T) {
	svc := &stubNotifications{}
	id := uuid.New()
	req := withCaller(httptest.NewRequest(http.MethodPost, "/api/v1/notifications/"+id.String()+"/read", nil), uuid.New(), enums.RoleCustomer)
	req = withURLParam(req, "notificationID", id.String())
	resp := httptest.NewRecorder()
	MarkNotificationRead(svc, nil).ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, []uuid.UUID{id}, svc.marked)

	svc.markErr = pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	resp = httptest.NewRecorder()
	MarkNotificationRead(svc, nil).ServeHTTP(resp, req)
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestMarkAllNotificationsRead(t *testing.T) {
	svc := &stubNotifications{allCount: 4}
	req := withCaller(httptest.NewRequest(http.MethodPost, "/api/v1/notifications/read-all", nil), uuid.New(), enums.RoleCustomer)
	resp := httptest.NewRecorder()
	MarkAllNotificationsRead(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	require.JSONEq(t, `{"data":{"updated":4}}`, resp.Body.String())
}
