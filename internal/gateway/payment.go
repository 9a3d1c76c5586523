package gateway

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentRequest describes one redirect to the hosted payment page.
type PaymentRequest struct {
	TxnRef    string
	OrderID   uuid.UUID
	Amount    decimal.Decimal
	ClientIP  string
	CreatedAt time.Time
}

// BuildPaymentURL returns the signed hosted-page URL for req.
func (c *Client) BuildPaymentURL(req PaymentRequest) (string, error) {
	if strings.TrimSpace(req.TxnRef) == "" {
		return "", fmt.Errorf("txn ref is required")
	}
	if !req.Amount.IsPositive() {
		return "", fmt.Errorf("amount must be positive")
	}
	created := req.CreatedAt
	if created.IsZero() {
		created = c.now()
	}
	ip := strings.TrimSpace(req.ClientIP)
	if ip == "" {
		ip = "127.0.0.1"
	}

	params := map[string]string{
		"vnp_Version":    apiVersion,
		"vnp_Command":    "pay",
		"vnp_TmnCode":    c.cfg.TmnCode,
		"vnp_Amount":     toMinorUnits(req.Amount),
		"vnp_CurrCode":   currencyCode,
		"vnp_TxnRef":     req.TxnRef,
		"vnp_OrderInfo":  "Thanh toan don hang " + req.OrderID.String(),
		"vnp_OrderType":  "other",
		"vnp_Locale":     "vn",
		"vnp_ReturnUrl":  c.cfg.ReturnURL,
		"vnp_IpAddr":     ip,
		"vnp_CreateDate": FormatDate(created),
		"vnp_ExpireDate": FormatDate(created.Add(c.cfg.PaymentTTL)),
	}
	query := EncodeParams(params)
	signature := c.signer.Sum(query)

	sep := "?"
	if strings.Contains(c.cfg.PayURL, "?") {
		sep = "&"
	}
	return c.cfg.PayURL + sep + query + "&" + paramSecureHash + "=" + signature, nil
}

// NewTxnRef returns a merchant transaction reference unique per attempt.
func NewTxnRef(now time.Time) string {
	return fmt.Sprintf("%s%s", now.In(gatewayZone).Format("060102150405"), strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
