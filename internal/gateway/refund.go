package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/KTAKhang/SEP490-Group10-sub002/pkg/errors"
)

// RefundRequest reverses a settled charge in full.
type RefundRequest struct {
	RequestID       string
	TxnRef          string
	ProviderTxnID   string
	Amount          decimal.Decimal
	TransactionDate time.Time
	CreatedBy       string
	ClientIP        string
	OrderInfo       string
}

// RefundResult is the gateway's answer to a refund call.
type RefundResult struct {
	ResponseCode  string
	Message       string
	ProviderTxnID string
	Success       bool
	Pending       bool
}

// Refunder is the outbound refund surface the refund worker depends on.
type Refunder interface {
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
}

type refundPayload struct {
	RequestID       string `json:"vnp_RequestId"`
	Version         string `json:"vnp_Version"`
	Command         string `json:"vnp_Command"`
	TmnCode         string `json:"vnp_TmnCode"`
	TransactionType string `json:"vnp_TransactionType"`
	TxnRef          string `json:"vnp_TxnRef"`
	Amount          string `json:"vnp_Amount"`
	OrderInfo       string `json:"vnp_OrderInfo"`
	TransactionNo   string `json:"vnp_TransactionNo"`
	TransactionDate string `json:"vnp_TransactionDate"`
	CreateBy        string `json:"vnp_CreateBy"`
	CreateDate      string `json:"vnp_CreateDate"`
	IPAddr          string `json:"vnp_IpAddr"`
	SecureHash      string `json:"vnp_SecureHash"`
}

type refundResponse struct {
	ResponseCode  string `json:"vnp_ResponseCode"`
	Message       string `json:"vnp_Message"`
	TransactionNo string `json:"vnp_TransactionNo"`
}

// full refund
const transactionTypeFull = "02"

// Refund posts the signed refund request. Transport failures and non-2xx
// answers are GATEWAY_CALL_FAILED; any decoded answer is returned as-is.
func (c *Client) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	if strings.TrimSpace(c.cfg.RefundURL) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeGatewayCallFailed, "gateway refund url not configured")
	}
	ip := strings.TrimSpace(req.ClientIP)
	if ip == "" {
		ip = "127.0.0.1"
	}
	info := req.OrderInfo
	if info == "" {
		info = "Hoan tien giao dich " + req.TxnRef
	}

	p := refundPayload{
		RequestID:       req.RequestID,
		Version:         apiVersion,
		Command:         "refund",
		TmnCode:         c.cfg.TmnCode,
		TransactionType: transactionTypeFull,
		TxnRef:          req.TxnRef,
		Amount:          toMinorUnits(req.Amount),
		OrderInfo:       info,
		TransactionNo:   req.ProviderTxnID,
		TransactionDate: FormatDate(req.TransactionDate),
		CreateBy:        req.CreatedBy,
		CreateDate:      FormatDate(c.now()),
		IPAddr:          ip,
	}
	p.SecureHash = c.signer.Sum(strings.Join([]string{
		p.RequestID, p.Version, p.Command, p.TmnCode, p.TransactionType, p.TxnRef, p.Amount,
		p.TransactionNo, p.TransactionDate, p.CreateBy, p.CreateDate, p.IPAddr, p.OrderInfo,
	}, "|"))

	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode refund request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RefundURL, bytes.NewReader(body))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayCallFailed, err, "build refund request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayCallFailed, err, "refund request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayCallFailed, err, "read refund response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, pkgerrors.New(pkgerrors.CodeGatewayCallFailed, fmt.Sprintf("refund endpoint returned %d", resp.StatusCode))
	}

	var decoded refundResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayCallFailed, err, "decode refund response")
	}
	code := strings.TrimSpace(decoded.ResponseCode)
	_, pending := c.pendingCodes[code]
	return &RefundResult{
		ResponseCode:  code,
		Message:       decoded.Message,
		ProviderTxnID: decoded.TransactionNo,
		Success:       code == ResponseCodeSuccess,
		Pending:       pending,
	}, nil
}
