package orders

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/KTAKhang/SEP490-Group10-sub002/api/middleware"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/history"
	internalorders "github.com/KTAKhang/SEP490-Group10-sub002/internal/orders"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/enums"
	pkgerrors "github.com/KTAKhang/SEP490-Group10-sub002/pkg/errors"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/pagination"
)

type stubOrders struct {
	viewer   history.Actor
	params   pagination.Params
	filters  internalorders.ListFilters
	reason   string
	to       enums.OrderStatus
	clientIP string
	err      error
}

func (s *stubOrders) Get(_ context.Context, viewer history.Actor, id uuid.UUID) (*internalorders.OrderView, error) {
	s.viewer = viewer
	if s.err != nil {
		return nil, s.err
	}
	return &internalorders.OrderView{OrderSummary: internalorders.OrderSummary{ID: id}}, nil
}

func (s *stubOrders) List(_ context.Context, viewer history.Actor, params pagination.Params, filters internalorders.ListFilters) (*pagination.Page[internalorders.OrderSummary], error) {
	s.viewer = viewer
	s.params = params
	s.filters = filters
	return &pagination.Page[internalorders.OrderSummary]{}, s.err
}

func (s *stubOrders) Cancel(_ context.Context, actor history.Actor, id uuid.UUID, reason string) (*internalorders.OrderView, error) {
	s.viewer = actor
	s.reason = reason
	if s.err != nil {
		return nil, s.err
	}
	return &internalorders.OrderView{OrderSummary: internalorders.OrderSummary{ID: id, Status: enums.OrderStatusCancelled}}, nil
}

func (s *stubOrders) UpdateStatus(_ context.Context, admin history.Actor, id uuid.UUID, to enums.OrderStatus, _ string) (*internalorders.OrderView, error) {
	s.viewer = admin
	s.to = to
	if s.err != nil {
		return nil, s.err
	}
	return &internalorders.OrderView{OrderSummary: internalorders.OrderSummary{ID: id, Status: to}}, nil
}

func (s *stubOrders) RetryPayment(_ context.Context, _, orderID uuid.UUID, clientIP string) (*internalorders.RetryResult, error) {
	s.clientIP = clientIP
	if s.err != nil {
		return nil, s.err
	}
	return &internalorders.RetryResult{OrderID: orderID, PaymentID: uuid.New(), PaymentURL: "https://pay.test"}, nil
}

func as(req *http.Request, role enums.Role) *http.Request {
	ctx := middleware.WithCaller(req.Context(), middleware.Caller{UserID: uuid.New(), Role: role})
	return req.WithContext(ctx)
}

func withOrderID(req *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("orderID", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestListParsesFilters(t *testing.T) {
	svc := &stubOrders{}
	req := as(httptest.NewRequest(http.MethodGet, "/api/v1/orders?status=PAID&limit=5&cursor=c1", nil), enums.RoleCustomer)
	resp := httptest.NewRecorder()
	List(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, pagination.Params{Limit: 5, Cursor: "c1"}, svc.params)
	require.NotNil(t, svc.filters.Status)
	require.Equal(t, enums.OrderStatusPaid, *svc.filters.Status)
	require.Nil(t, svc.filters.UserID)
}

func TestListUserFilterIsAdminOnly(t *testing.T) {
	userID := uuid.New()
	svc := &stubOrders{}

	req := as(httptest.NewRequest(http.MethodGet, "/api/v1/orders?userId="+userID.String(), nil), enums.RoleCustomer)
	resp := httptest.NewRecorder()
	List(svc, nil).ServeHTTP(resp, req)
	require.Equal(t, http.StatusForbidden, resp.Code)

	req = as(httptest.NewRequest(http.MethodGet, "/api/admin/v1/orders?userId="+userID.String(), nil), enums.RoleAdmin)
	resp = httptest.NewRecorder()
	List(svc, nil).ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, userID, *svc.filters.UserID)
}

func TestDetailNotFound(t *testing.T) {
	svc := &stubOrders{err: pkgerrors.New(pkgerrors.CodeNotFound, "order not found")}
	req := withOrderID(as(httptest.NewRequest(http.MethodGet, "/api/v1/orders/x", nil), enums.RoleCustomer), uuid.NewString())
	resp := httptest.NewRecorder()
	Detail(svc, nil).ServeHTTP(resp, req)
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestCancelAcceptsOptionalBody(t *testing.T) {
	svc := &stubOrders{}
	orderID := uuid.NewString()

	req := withOrderID(as(httptest.NewRequest(http.MethodPost, "/api/v1/orders/x/cancel", nil), enums.RoleCustomer), orderID)
	resp := httptest.NewRecorder()
	Cancel(svc, nil).ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Empty(t, svc.reason)

	req = withOrderID(as(httptest.NewRequest(http.MethodPost, "/api/v1/orders/x/cancel", strings.NewReader(`{"reason":"changed my mind"}`)), enums.RoleCustomer), orderID)
	resp = httptest.NewRecorder()
	Cancel(svc, nil).ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "changed my mind", svc.reason)
}

func TestRetryPaymentForwardsClientIP(t *testing.T) {
	svc := &stubOrders{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/x/retry-payment", nil)
	req.RemoteAddr = "198.51.100.7:51000"
	req = withOrderID(as(req, enums.RoleCustomer), uuid.NewString())
	resp := httptest.NewRecorder()
	RetryPayment(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code)
	require.Equal(t, "198.51.100.7", svc.clientIP)
}

func TestAdminUpdateStatus(t *testing.T) {
	svc := &stubOrders{}
	req := withOrderID(as(httptest.NewRequest(http.MethodPatch, "/api/admin/v1/orders/x/status", strings.NewReader(`{"status":"SHIPPING"}`)), enums.RoleAdmin), uuid.NewString())
	resp := httptest.NewRecorder()
	AdminUpdateStatus(svc, nil).ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, enums.OrderStatusShipping, svc.to)

	req = withOrderID(as(httptest.NewRequest(http.MethodPatch, "/api/admin/v1/orders/x/status", strings.NewReader(`{"status":"lost"}`)), enums.RoleAdmin), uuid.NewString())
	resp = httptest.NewRecorder()
	AdminUpdateStatus(svc, nil).ServeHTTP(resp, req)
	require.Equal(t, http.StatusBadRequest, resp.Code)
}
