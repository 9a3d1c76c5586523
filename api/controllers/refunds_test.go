package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/KTAKhang/SEP490-Group10-sub002/internal/history"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db/models"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/enums"
	pkgerrors "github.com/KTAKhang/SEP490-Group10-sub002/pkg/errors"
)

type stubRefunds struct {
	actor history.Actor
	err   error
}

func (s *stubRefunds) RetryRefund(_ context.Context, admin history.Actor, refundID uuid.UUID) (*models.Payment, error) {
	s.actor = admin
	if s.err != nil {
		return nil, s.err
	}
	return &models.Payment{
		ID:      refundID,
		OrderID: uuid.New(),
		Type:    enums.PaymentTypeRefund,
		Status:  enums.PaymentStatusPending,
		Amount:  decimal.RequireFromString("120000"),
		TxnRef:  "RF-1",
	}, nil
}

func TestAdminRetryRefund(t *testing.T) {
	svc := &stubRefunds{}
	adminID := uuid.New()
	refundID := uuid.New()
	req := withCaller(httptest.NewRequest(http.MethodPost, "/api/admin/v1/refunds/"+refundID.String()+"/retry", nil), adminID, enums.RoleAdmin)
	req = withURLParam(req, "refundID", refundID.String())
	resp := httptest.NewRecorder()
	AdminRetryRefund(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusAccepted, resp.Code)
	require.Equal(t, enums.RoleAdmin, svc.actor.Role)
	require.Equal(t, adminID, *svc.actor.ID)

	var envelope struct {
		Data refundResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.Equal(t, refundID, envelope.Data.ID)
	require.Equal(t, "120000.00", envelope.Data.Amount)
	require.Equal(t, enums.PaymentStatusPending, envelope.Data.Status)
}

func TestAdminRetryRefundStateConflict(t *testing.T) {
	svc := &stubRefunds{err: pkgerrors.New(pkgerrors.CodeStateConflict, "refund is not in REFUND_FAILED")}
	refundID := uuid.New()
	req := withCaller(httptest.NewRequest(http.MethodPost, "/api/admin/v1/refunds/x/retry", nil), uuid.New(), enums.RoleAdmin)
	req = withURLParam(req, "refundID", refundID.String())
	resp := httptest.NewRecorder()
	AdminRetryRefund(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
}
