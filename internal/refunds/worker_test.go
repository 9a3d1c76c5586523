package refunds

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/KTAKhang/SEP490-Group10-sub002/internal/gateway"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/history"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/notifications"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/payments"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db/dbtest"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db/models"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/enums"
	pkgerrors "github.com/KTAKhang/SEP490-Group10-sub002/pkg/errors"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/logger"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/metrics"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/outbox"
)

type stubRefunder struct {
	mu       sync.Mutex
	result   *gateway.RefundResult
	err      error
	requests []gateway.RefundRequest
}

func (s *stubRefunder) Refund(_ context.Context, req gateway.RefundRequest) (*gateway.RefundResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *stubRefunder) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notifications.Message
}

func (r *recordingNotifier) Notify(_ context.Context, _ uuid.UUID, msg notifications.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
}

type fixture struct {
	worker   *Worker
	client   *db.Client
	gateway  *stubRefunder
	notifier *recordingNotifier
}

func newFixture(t *testing.T, name string) *fixture {
	t.Helper()
	client := dbtest.Open(t, name)
	stub := &stubRefunder{result: &gateway.RefundResult{ResponseCode: "00", Success: true, ProviderTxnID: "RF-9001"}}
	notifier := &recordingNotifier{}
	worker, err := NewWorker(WorkerParams{
		DB:       client,
		Gateway:  stub,
		Outbox:   outbox.NewService(outbox.NewRepository(client.DB()), logger.Nop()),
		Notifier: notifier,
		Metrics:  metrics.NewEngineMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	return &fixture{worker: worker, client: client, gateway: stub, notifier: notifier}
}

// queueRefund seeds a cancelled gateway order whose charge settled and
// queues its refund.
func (f *fixture) queueRefund(t *testing.T) models.Payment {
	t.Helper()
	conn := f.client.DB()
	product := dbtest.SeedProduct(t, conn, 10, 50000)
	order, payment := dbtest.SeedOrder(t, conn, dbtest.OrderSeed{
		UserID:        uuid.New(),
		Method:        enums.PaymentMethodGateway,
		Status:        enums.OrderStatusCancelled,
		PaymentStatus: enums.PaymentStatusSuccess,
		TxnRef:        "REF-" + uuid.NewString()[:8],
		Lines:         map[uuid.UUID]int{product.ID: 2},
	})
	require.NoError(t, conn.Model(&models.Payment{}).Where("id = ?", payment.ID).
		Updates(map[string]any{"provider_txn_id": "PV-" + uuid.NewString()[:8], "paid_at": time.Now().UTC()}).Error)

	var refund *models.Payment
	require.NoError(t, f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		refund, _, err = payments.RequestRefund(context.Background(), tx, order)
		return err
	}))
	return *refund
}

func reload(t *testing.T, conn *gorm.DB, id uuid.UUID) models.Payment {
	t.Helper()
	var row models.Payment
	require.NoError(t, conn.First(&row, "id = ?", id).Error)
	return row
}

func TestRunOnceRefundsQueuedRow(t *testing.T) {
	f := newFixture(t, "refund_success")
	refund := f.queueRefund(t)

	stats, err := f.worker.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.Refunded)

	row := reload(t, f.client.DB(), refund.ID)
	require.Equal(t, enums.PaymentStatusRefunded, row.Status)
	require.NotNil(t, row.ResponseCode)
	require.Equal(t, "00", *row.ResponseCode)
	require.NotNil(t, row.ProviderTxnID)
	require.Equal(t, "RF-9001", *row.ProviderTxnID)
	require.NotNil(t, row.PaidAt)

	require.Equal(t, 1, f.gateway.calls())
	require.True(t, f.gateway.requests[0].Amount.Equal(refund.Amount))
	require.Len(t, f.notifier.sent, 1)
	require.EqualValues(t, 1, dbtest.CountRows(t, f.client.DB(), &models.OutboxEvent{}, "event_type = ? AND aggregate_id = ?", enums.EventRefundCompleted, refund.ID))

	stats, err = f.worker.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, RunStats{}, stats)
	require.Equal(t, 1, f.gateway.calls(), "a settled refund is never sent twice")
}

func TestRunOnceRecordsDeclineAndTransportFailure(t *testing.T) {
	f := newFixture(t, "refund_declined")
	declined := f.queueRefund(t)
	f.gateway.result = &gateway.RefundResult{ResponseCode: "91", Message: "transaction not found"}

	stats, err := f.worker.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.Failed)
	row := reload(t, f.client.DB(), declined.ID)
	require.Equal(t, enums.PaymentStatusRefundFailed, row.Status)
	require.Equal(t, "transaction not found", *row.FailureReason)

	unreachable := f.queueRefund(t)
	f.gateway.err = pkgerrors.New(pkgerrors.CodeGatewayCallFailed, "refund endpoint returned 502")
	stats, err = f.worker.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.Failed)
	row = reload(t, f.client.DB(), unreachable.ID)
	require.Equal(t, enums.PaymentStatusRefundFailed, row.Status)
	require.Contains(t, *row.FailureReason, "502")
	require.EqualValues(t, 2, dbtest.CountRows(t, f.client.DB(), &models.OutboxEvent{}, "event_type = ?", enums.EventRefundFailed))
}

func TestRunOnceMarksPendingCodes(t *testing.T) {
	f := newFixture(t, "refund_pending")
	refund := f.queueRefund(t)
	f.gateway.result = &gateway.RefundResult{ResponseCode: "94", Pending: true}

	stats, err := f.worker.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.Pending)
	require.Equal(t, enums.PaymentStatusRefundPending, reload(t, f.client.DB(), refund.ID).Status)
	require.EqualValues(t, 0, dbtest.CountRows(t, f.client.DB(), &models.OutboxEvent{}, "event_type IN ?", []enums.OutboxEventType{enums.EventRefundCompleted, enums.EventRefundFailed}))
}

func TestRunOnceExpiresStaleProcessing(t *testing.T) {
	f := newFixture(t, "refund_stale")
	refund := f.queueRefund(t)
	conn := f.client.DB()
	require.NoError(t, conn.Model(&models.Payment{}).Where("id = ?", refund.ID).
		Updates(map[string]any{"status": enums.PaymentStatusProcessing, "updated_at": time.Now().UTC().Add(-time.Hour)}).Error)

	stats, err := f.worker.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.Expired)
	require.Zero(t, f.gateway.calls())

	row := reload(t, conn, refund.ID)
	require.Equal(t, enums.PaymentStatusRefundFailed, row.Status)
	require.Equal(t, reasonTimedOut, *row.FailureReason)
}

func TestRetryRefundRequeuesFailedRow(t *testing.T) {
	f := newFixture(t, "refund_retry")
	refund := f.queueRefund(t)
	f.gateway.err = pkgerrors.New(pkgerrors.CodeGatewayCallFailed, "timeout")
	_, err := f.worker.RunOnce(context.Background())
	require.NoError(t, err)

	svc, err := NewService(f.client, logger.Nop())
	require.NoError(t, err)

	_, err = svc.RetryRefund(context.Background(), history.Customer(uuid.New()), refund.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden), "got %v", err)

	admin := history.Admin(uuid.New())
	requeued, err := svc.RetryRefund(context.Background(), admin, refund.ID)
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusPending, requeued.Status)
	row := reload(t, f.client.DB(), refund.ID)
	require.Equal(t, enums.PaymentStatusPending, row.Status)
	require.Nil(t, row.FailureReason)

	_, err = svc.RetryRefund(context.Background(), admin, refund.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "got %v", err)

	f.gateway.err = nil
	stats, err := f.worker.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.Refunded)

	_, err = svc.RetryRefund(context.Background(), admin, uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)
}

func TestRetryRefundBlockedByRefundAwaitingGateway(t *testing.T) {
	f := newFixture(t, "refund_retry_pending_sibling")
	failed := f.queueRefund(t)
	f.gateway.err = pkgerrors.New(pkgerrors.CodeGatewayCallFailed, "timeout")
	_, err := f.worker.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusRefundFailed, reload(t, f.client.DB(), failed.ID).Status)

	// A later attempt for the same order is still settling at the gateway.
	sibling := models.Payment{
		OrderID:         failed.OrderID,
		UserID:          failed.UserID,
		ParentPaymentID: failed.ParentPaymentID,
		Type:            enums.PaymentTypeRefund,
		Method:          enums.PaymentMethodGateway,
		Status:          enums.PaymentStatusRefundPending,
		Amount:          failed.Amount,
		TxnRef:          "RF-" + uuid.NewString()[:8],
	}
	require.NoError(t, f.client.DB().Create(&sibling).Error)

	svc, err := NewService(f.client, logger.Nop())
	require.NoError(t, err)
	_, err = svc.RetryRefund(context.Background(), history.Admin(uuid.New()), failed.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "got %v", err)
	require.Equal(t, enums.PaymentStatusRefundFailed, reload(t, f.client.DB(), failed.ID).Status)
}
