// Package refunds drives queued REFUND rows through the gateway. Rows are
// claimed with a single-row CAS, the gateway is called outside any
// transaction, and the outcome is recorded with a second CAS.
package refunds

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/KTAKhang/SEP490-Group10-sub002/internal/gateway"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/history"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/notifications"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/payments"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db/models"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/enums"
	pkgerrors "github.com/KTAKhang/SEP490-Group10-sub002/pkg/errors"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/logger"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/metrics"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/outbox"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/outbox/payloads"
)

const (
	defaultBatchSize     = 20
	defaultPollInterval  = 30 * time.Second
	defaultStaleAfter    = 15 * time.Minute
	defaultMerchantActor = "refund-worker"

	reasonTimedOut      = "processing timed out"
	reasonParentMissing = "settled payment not found"
)

// Refund outcomes reported to metrics.
const (
	outcomeRefunded = "refunded"
	outcomePending  = "pending"
	outcomeFailed   = "failed"
	outcomeExpired  = "expired"
	outcomeSkipped  = "skipped"
	outcomeError    = "error"
)

type txDB interface {
	db.TxRunner
	DB() *gorm.DB
}

// Notifier delivers shopper messages after commit.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, msg notifications.Message)
}

// WorkerParams wires the refund worker.
type WorkerParams struct {
	DB            txDB
	Gateway       gateway.Refunder
	Outbox        outbox.Emitter
	Notifier      Notifier
	Metrics       *metrics.EngineMetrics
	Logger        *logger.Logger
	BatchSize     int
	PollInterval  time.Duration
	StaleAfter    time.Duration
	MerchantActor string
}

// Worker processes PENDING refund rows.
type Worker struct {
	db            txDB
	gateway       gateway.Refunder
	outbox        outbox.Emitter
	notifier      Notifier
	metrics       *metrics.EngineMetrics
	logg          *logger.Logger
	batchSize     int
	pollInterval  time.Duration
	staleAfter    time.Duration
	merchantActor string
	now           func() time.Time
}

// RunStats summarises one pass.
type RunStats struct {
	Expired  int
	Refunded int
	Pending  int
	Failed   int
	Skipped  int
}

func NewWorker(params WorkerParams) (*Worker, error) {
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Gateway == nil {
		return nil, errors.New("refund gateway is required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox publisher is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	interval := params.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	stale := params.StaleAfter
	if stale <= 0 {
		stale = defaultStaleAfter
	}
	actor := params.MerchantActor
	if actor == "" {
		actor = defaultMerchantActor
	}
	return &Worker{
		db:            params.DB,
		gateway:       params.Gateway,
		outbox:        params.Outbox,
		notifier:      params.Notifier,
		metrics:       params.Metrics,
		logg:          logg,
		batchSize:     batch,
		pollInterval:  interval,
		staleAfter:    stale,
		merchantActor: actor,
		now:           time.Now,
	}, nil
}

// Run polls until ctx is cancelled. Pass errors are logged, never fatal.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		stats, err := w.RunOnce(ctx)
		if err != nil {
			w.logg.Error(ctx, "refund pass finished with errors", err)
		}
		if stats.Refunded+stats.Failed+stats.Pending+stats.Expired > 0 {
			w.logg.Info(w.logg.WithFields(ctx, map[string]any{
				"refunded": stats.Refunded,
				"pending":  stats.Pending,
				"failed":   stats.Failed,
				"expired":  stats.Expired,
				"skipped":  stats.Skipped,
			}), "refund pass complete")
		}

		select {
		case <-ctx.Done():
			w.logg.Info(ctx, "refund worker context canceled")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce fails stale PROCESSING rows, then works through up to one batch
// of PENDING refunds. Per-row errors are aggregated and do not stop the pass.
func (w *Worker) RunOnce(ctx context.Context) (RunStats, error) {
	var (
		stats RunStats
		errs  error
	)

	expired, err := w.expireStale(ctx)
	stats.Expired = expired
	errs = multierr.Append(errs, err)

	var queued []models.Payment
	if err := w.db.DB().WithContext(ctx).
		Where("type = ? AND status = ?", enums.PaymentTypeRefund, enums.PaymentStatusPending).
		Order("created_at ASC").
		Limit(w.batchSize).
		Find(&queued).Error; err != nil {
		return stats, multierr.Append(errs, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list queued refunds"))
	}

	for _, refund := range queued {
		outcome, err := w.process(ctx, refund)
		w.metrics.Refund(outcome)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("refund %s: %w", refund.ID, err))
			continue
		}
		switch outcome {
		case outcomeRefunded:
			stats.Refunded++
		case outcomePending:
			stats.Pending++
		case outcomeFailed:
			stats.Failed++
		case outcomeSkipped:
			stats.Skipped++
		}
	}
	return stats, errs
}

func (w *Worker) process(ctx context.Context, refund models.Payment) (string, error) {
	claimed, err := payments.Transition(ctx, w.db.DB(), enums.PaymentTypeRefund, refund.ID,
		enums.PaymentStatusPending, enums.PaymentStatusProcessing, nil)
	if err != nil {
		return outcomeError, err
	}
	if !claimed {
		return outcomeSkipped, nil
	}
	logCtx := w.logg.WithFields(ctx, map[string]any{
		"refund_id": refund.ID.String(),
		"order_id":  refund.OrderID.String(),
	})

	parent, err := w.loadParent(ctx, refund)
	if err != nil {
		if !pkgerrors.IsCode(err, pkgerrors.CodePaymentNotFound) {
			return outcomeError, err
		}
		w.logg.Warn(logCtx, "refund has no settled parent payment")
		return w.finish(ctx, refund, enums.PaymentStatusRefundFailed, map[string]any{
			"failure_reason": reasonParentMissing,
		})
	}

	result, callErr := w.gateway.Refund(ctx, w.buildRequest(refund, *parent))
	if callErr != nil {
		w.logg.Error(logCtx, "gateway refund call failed", callErr)
		return w.finish(ctx, refund, enums.PaymentStatusRefundFailed, map[string]any{
			"failure_reason": callErr.Error(),
		})
	}

	fields := map[string]any{"response_code": result.ResponseCode}
	if result.ProviderTxnID != "" && (parent.ProviderTxnID == nil || *parent.ProviderTxnID != result.ProviderTxnID) {
		fields["provider_txn_id"] = result.ProviderTxnID
	}
	switch {
	case result.Success:
		fields["paid_at"] = w.now().UTC()
		return w.finish(ctx, refund, enums.PaymentStatusRefunded, fields)
	case result.Pending:
		return w.finish(ctx, refund, enums.PaymentStatusRefundPending, fields)
	default:
		reason := result.Message
		if reason == "" {
			reason = "gateway declined refund with code " + result.ResponseCode
		}
		fields["failure_reason"] = reason
		return w.finish(ctx, refund, enums.PaymentStatusRefundFailed, fields)
	}
}

func (w *Worker) loadParent(ctx context.Context, refund models.Payment) (*models.Payment, error) {
	if refund.ParentPaymentID == nil {
		return nil, pkgerrors.New(pkgerrors.CodePaymentNotFound, "refund has no parent payment")
	}
	var parent models.Payment
	err := w.db.DB().WithContext(ctx).
		Where("id = ? AND type = ? AND status = ?", *refund.ParentPaymentID, enums.PaymentTypePayment, enums.PaymentStatusSuccess).
		Take(&parent).Error
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodePaymentNotFound, "settled payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settled payment")
	}
	return &parent, nil
}

func (w *Worker) buildRequest(refund, parent models.Payment) gateway.RefundRequest {
	providerTxn := ""
	if parent.ProviderTxnID != nil {
		providerTxn = *parent.ProviderTxnID
	}
	txnDate := parent.CreatedAt
	if parent.PaidAt != nil {
		txnDate = *parent.PaidAt
	}
	return gateway.RefundRequest{
		RequestID:       refund.TxnRef,
		TxnRef:          parent.TxnRef,
		ProviderTxnID:   providerTxn,
		Amount:          refund.Amount,
		TransactionDate: txnDate,
		CreatedBy:       w.merchantActor,
	}
}

// finish records the gateway outcome. Losing the CAS means the row already
// left PROCESSING (the stale sweep or an operator) and the result is dropped.
func (w *Worker) finish(ctx context.Context, refund models.Payment, to enums.PaymentStatus, fields map[string]any) (string, error) {
	applied := false
	err := w.db.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := payments.Transition(ctx, tx, enums.PaymentTypeRefund, refund.ID, enums.PaymentStatusProcessing, to, fields)
		if err != nil || !ok {
			return err
		}
		applied = true
		return w.emit(ctx, tx, refund, to, fields)
	})
	if err != nil {
		return outcomeError, err
	}
	if !applied {
		w.logg.Warn(w.logg.WithField(ctx, "refund_id", refund.ID.String()), "refund left processing before the result was recorded")
		return outcomeSkipped, nil
	}
	w.notify(ctx, refund, to)

	switch to {
	case enums.PaymentStatusRefunded:
		return outcomeRefunded, nil
	case enums.PaymentStatusRefundPending:
		return outcomePending, nil
	default:
		return outcomeFailed, nil
	}
}

// expireStale fails PROCESSING rows the worker never finished. They are not
// retried automatically; an admin can requeue them.
func (w *Worker) expireStale(ctx context.Context) (int, error) {
	cutoff := w.now().UTC().Add(-w.staleAfter)
	var stale []models.Payment
	if err := w.db.DB().WithContext(ctx).
		Where("type = ? AND status = ? AND updated_at <= ?", enums.PaymentTypeRefund, enums.PaymentStatusProcessing, cutoff).
		Order("updated_at ASC").
		Limit(w.batchSize).
		Find(&stale).Error; err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale refunds")
	}

	expired := 0
	var errs error
	for _, refund := range stale {
		outcome, err := w.finish(ctx, refund, enums.PaymentStatusRefundFailed, map[string]any{
			"failure_reason": reasonTimedOut,
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire refund %s: %w", refund.ID, err))
			continue
		}
		if outcome == outcomeFailed {
			expired++
			w.metrics.Refund(outcomeExpired)
		}
	}
	return expired, errs
}

func (w *Worker) emit(ctx context.Context, tx *gorm.DB, refund models.Payment, to enums.PaymentStatus, fields map[string]any) error {
	var eventType enums.OutboxEventType
	switch to {
	case enums.PaymentStatusRefunded:
		eventType = enums.EventRefundCompleted
	case enums.PaymentStatusRefundFailed:
		eventType = enums.EventRefundFailed
	default:
		return nil
	}
	code, _ := fields["response_code"].(string)
	reason, _ := fields["failure_reason"].(string)
	return w.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePayment,
		AggregateID:   refund.ID,
		Actor:         history.System.Ref(),
		OccurredAt:    w.now().UTC(),
		Data: payloads.RefundEvent{
			RefundID:      refund.ID,
			OrderID:       refund.OrderID,
			Amount:        refund.Amount,
			Status:        to,
			ResponseCode:  code,
			FailureReason: reason,
		},
	})
}

func (w *Worker) notify(ctx context.Context, refund models.Payment, to enums.PaymentStatus) {
	if w.notifier == nil {
		return
	}
	var msg notifications.Message
	switch to {
	case enums.PaymentStatusRefunded:
		msg = notifications.Message{Title: "Refund completed", Body: "Your refund of " + refund.Amount.StringFixed(0) + " has been processed."}
	case enums.PaymentStatusRefundPending:
		msg = notifications.Message{Title: "Refund in progress", Body: "Your refund has been accepted and is being processed."}
	default:
		msg = notifications.Message{Title: "Refund delayed", Body: "We could not complete your refund yet. Our team will follow up."}
	}
	msg.Data = map[string]any{"order_id": refund.OrderID.String(), "refund_id": refund.ID.String()}
	w.notifier.Notify(ctx, refund.UserID, msg)
}
