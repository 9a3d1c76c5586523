package controllers

import (
	"context"
	"net/http"
	"net/url"

	"github.com/KTAKhang/SEP490-Group10-sub002/api/responses"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/gateway"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/payments"
	pkgerrors "github.com/KTAKhang/SEP490-Group10-sub002/pkg/errors"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/logger"
)

// Gateway acknowledgement codes for the server-to-server notification.
const (
	ipnConfirmed        = "00"
	ipnOrderNotFound    = "01"
	ipnAlreadyConfirmed = "02"
	ipnInvalidAmount    = "04"
	ipnInvalidSignature = "97"
	ipnUnknownError     = "99"
)

// CallbackProcessor verifies and applies gateway callbacks.
type CallbackProcessor interface {
	Verify(rawQuery string) (*gateway.Callback, error)
	Apply(ctx context.Context, cb *gateway.Callback) (*payments.CallbackResult, error)
}

// CallbackGuard short-circuits deliveries that were already processed.
type CallbackGuard interface {
	Begin(ctx context.Context, key string) (*payments.CallbackResult, error)
	Complete(ctx context.Context, key string, result *payments.CallbackResult) error
	Abort(ctx context.Context, key string) error
}

// RedirectTargets are the storefront pages the shopper lands on.
type RedirectTargets struct {
	SuccessURL string
	FailURL    string
}

type ipnResponse struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

// GatewayReturn handles the shopper's browser return and redirects to the
// storefront result page.
func GatewayReturn(processor CallbackProcessor, guard CallbackGuard, targets RedirectTargets, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if processor == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment processor unavailable"))
			return
		}
		result, err := handleCallback(r.Context(), processor, guard, r.URL.RawQuery, logg)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		target := targets.FailURL
		if result.Outcome == payments.OutcomeSuccess {
			target = targets.SuccessURL
		}
		http.Redirect(w, r, withOrderID(target, result), http.StatusFound)
	}
}

// GatewayIPN handles the gateway's server-to-server notification.
func GatewayIPN(processor CallbackProcessor, guard CallbackGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if processor == nil {
			responses.WriteJSON(w, http.StatusOK, ipnResponse{RspCode: ipnUnknownError, Message: "Unknown error"})
			return
		}
		result, err := handleCallback(r.Context(), processor, guard, r.URL.RawQuery, logg)
		if err != nil {
			responses.WriteJSON(w, http.StatusOK, ipnAck(err))
			return
		}
		if result.Replayed {
			responses.WriteJSON(w, http.StatusOK, ipnResponse{RspCode: ipnAlreadyConfirmed, Message: "Order already confirmed"})
			return
		}
		responses.WriteJSON(w, http.StatusOK, ipnResponse{RspCode: ipnConfirmed, Message: "Confirm Success"})
	}
}

func handleCallback(ctx context.Context, processor CallbackProcessor, guard CallbackGuard, rawQuery string, logg *logger.Logger) (*payments.CallbackResult, error) {
	cb, err := processor.Verify(rawQuery)
	if err != nil {
		return nil, err
	}

	key := cb.GuardKey()
	if guard != nil {
		cached, err := guard.Begin(ctx, key)
		if err != nil && logg != nil {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "callback guard unavailable")
		}
		if cached != nil {
			return cached, nil
		}
	}

	result, err := processor.Apply(ctx, cb)
	if err != nil {
		if guard != nil {
			if abortErr := guard.Abort(ctx, key); abortErr != nil && logg != nil {
				logg.Warn(logg.WithField(ctx, "error", abortErr.Error()), "callback guard abort failed")
			}
		}
		return nil, err
	}
	if guard != nil {
		if err := guard.Complete(ctx, key, result); err != nil && logg != nil {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "callback guard complete failed")
		}
	}
	return result, nil
}

func ipnAck(err error) ipnResponse {
	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeInvalidSignature):
		return ipnResponse{RspCode: ipnInvalidSignature, Message: "Invalid signature"}
	case pkgerrors.IsCode(err, pkgerrors.CodePaymentNotFound):
		return ipnResponse{RspCode: ipnOrderNotFound, Message: "Order not found"}
	case pkgerrors.IsCode(err, pkgerrors.CodeDuplicateTransaction):
		return ipnResponse{RspCode: ipnAlreadyConfirmed, Message: "Order already confirmed"}
	case pkgerrors.IsCode(err, pkgerrors.CodeValidation):
		return ipnResponse{RspCode: ipnInvalidAmount, Message: "Invalid amount"}
	}
	return ipnResponse{RspCode: ipnUnknownError, Message: "Unknown error"}
}

func withOrderID(target string, result *payments.CallbackResult) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	q.Set("orderId", result.OrderID.String())
	u.RawQuery = q.Encode()
	return u.String()
}
