package gateway

import (
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/KTAKhang/SEP490-Group10-sub002/pkg/errors"
)

// ResponseCodeSuccess is the gateway's approved result.
const ResponseCodeSuccess = "00"

// Callback is a verified return/IPN payload.
type Callback struct {
	TxnRef            string
	ResponseCode      string
	TransactionNo     string
	TransactionStatus string
	Amount            decimal.Decimal
	BankCode          string
	PayDate           string
}

// Succeeded reports an approved payment.
func (c Callback) Succeeded() bool {
	return c.ResponseCode == ResponseCodeSuccess
}

// SettlementID is the gateway transaction number when it names a real
// settlement. Abandoned or declined attempts report "0" or nothing.
func (c Callback) SettlementID() string {
	if c.TransactionNo == "" || c.TransactionNo == "0" {
		return ""
	}
	return c.TransactionNo
}

// GuardKey identifies one gateway delivery for replay short-circuiting.
func (c Callback) GuardKey() string {
	return c.TxnRef + ":" + c.TransactionNo + ":" + c.ResponseCode
}

// ParseCallback verifies the raw query signature before decoding anything.
func (c *Client) ParseCallback(rawQuery string) (*Callback, error) {
	if !c.signer.Verify(rawQuery) {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidSignature, "invalid gateway signature")
	}
	values, err := url.ParseQuery(strings.TrimPrefix(rawQuery, "?"))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed callback query")
	}

	cb := &Callback{
		TxnRef:            strings.TrimSpace(values.Get("vnp_TxnRef")),
		ResponseCode:      strings.TrimSpace(values.Get("vnp_ResponseCode")),
		TransactionNo:     strings.TrimSpace(values.Get("vnp_TransactionNo")),
		TransactionStatus: strings.TrimSpace(values.Get("vnp_TransactionStatus")),
		BankCode:          values.Get("vnp_BankCode"),
		PayDate:           values.Get("vnp_PayDate"),
	}
	if cb.TxnRef == "" || cb.ResponseCode == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "callback missing txn ref or response code")
	}
	if raw := values.Get("vnp_Amount"); raw != "" {
		amount, err := fromMinorUnits(raw)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid callback amount")
		}
		cb.Amount = amount
	}
	return cb, nil
}
