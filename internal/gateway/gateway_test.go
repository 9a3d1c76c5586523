package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/config"
	pkgerrors "github.com/KTAKhang/SEP490-Group10-sub002/pkg/errors"
)

func testConfig() config.GatewayConfig {
	return config.GatewayConfig{
		TmnCode:            "TMN01",
		HashSecret:         "topsecret",
		PayURL:             "https://pay.example/vpcpay.html",
		ReturnURL:          "https://shop.example/api/v1/payments/gateway/return",
		PaymentTTL:         15 * time.Minute,
		RequestTimeout:     time.Second,
		RefundPendingCodes: []string{"94"},
	}
}

// signedQuery builds a callback query the way the gateway would.
func signedQuery(signer Signer, params map[string]string) string {
	q := EncodeParams(params)
	return q + "&vnp_SecureHashType=HmacSHA512&vnp_SecureHash=" + strings.ToUpper(signer.Sum(q))
}

func TestBuildPaymentURLIsSignedAndVerifiable(t *testing.T) {
	client, err := NewClient(testConfig())
	require.NoError(t, err)

	created := time.Date(2026, 5, 1, 3, 0, 0, 0, time.UTC)
	raw, err := client.BuildPaymentURL(PaymentRequest{
		TxnRef:    "REF123",
		OrderID:   uuid.New(),
		Amount:    decimal.NewFromInt(150000),
		ClientIP:  "10.0.0.1",
		CreatedAt: created,
	})
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	values := u.Query()
	require.Equal(t, "15000000", values.Get("vnp_Amount"))
	require.Equal(t, "20260501100000", values.Get("vnp_CreateDate"))
	require.Equal(t, "20260501101500", values.Get("vnp_ExpireDate"))
	require.Equal(t, "VND", values.Get("vnp_CurrCode"))
	require.True(t, client.Signer().Verify(u.RawQuery))
}

func TestParseCallbackRejectsTampering(t *testing.T) {
	client, err := NewClient(testConfig())
	require.NoError(t, err)

	params := map[string]string{
		"vnp_TxnRef":        "REF123",
		"vnp_ResponseCode":  "00",
		"vnp_TransactionNo": "900001",
		"vnp_Amount":        "15000000",
		"vnp_OrderInfo":     "Thanh toan don hang",
	}
	query := signedQuery(client.Signer(), params)

	cb, err := client.ParseCallback(query)
	require.NoError(t, err)
	require.True(t, cb.Succeeded())
	require.Equal(t, "900001", cb.TransactionNo)
	require.True(t, cb.Amount.Equal(decimal.NewFromInt(150000)))
	require.Equal(t, "REF123:900001:00", cb.GuardKey())

	tampered := strings.Replace(query, "vnp_ResponseCode=00", "vnp_ResponseCode=24", 1)
	_, err = client.ParseCallback(tampered)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidSignature))

	_, err = client.ParseCallback("vnp_TxnRef=REF123")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidSignature))
}

func TestVerifyUsesRawEncodedValues(t *testing.T) {
	signer := NewSigner("topsecret")
	params := map[string]string{"vnp_TxnRef": "R1", "vnp_OrderInfo": "pay order #1 now"}
	query := signedQuery(signer, params)
	require.Contains(t, query, "pay+order+%231+now")
	require.True(t, signer.Verify(query))

	// Re-encoding spaces differently changes the signed bytes.
	require.False(t, signer.Verify(strings.Replace(query, "pay+order", "pay%20order", 1)))
}

func TestRefundSuccessAndPending(t *testing.T) {
	var got refundPayload
	code := "00"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(refundResponse{ResponseCode: code, Message: "ok", TransactionNo: "RF1"})
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.RefundURL = srv.URL
	client, err := NewClient(cfg)
	require.NoError(t, err)

	req := RefundRequest{
		RequestID:       "req-1",
		TxnRef:          "REF123",
		ProviderTxnID:   "900001",
		Amount:          decimal.NewFromInt(1000),
		TransactionDate: time.Now(),
		CreatedBy:       "refund-worker",
	}
	res, err := client.Refund(context.Background(), req)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, "RF1", res.ProviderTxnID)
	require.Equal(t, "100000", got.Amount)
	require.Equal(t, "02", got.TransactionType)
	require.NotEmpty(t, got.SecureHash)

	code = "94"
	res, err = client.Refund(context.Background(), req)
	require.NoError(t, err)
	require.False(t, res.Success)
	require.True(t, res.Pending)
}

func TestRefundNon2xxIsGatewayFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.RefundURL = srv.URL
	client, err := NewClient(cfg)
	require.NoError(t, err)

	_, err = client.Refund(context.Background(), RefundRequest{TxnRef: "R", Amount: decimal.NewFromInt(1)})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGatewayCallFailed))
}

func TestNewClientRequiresSecret(t *testing.T) {
	cfg := testConfig()
	cfg.HashSecret = ""
	_, err := NewClient(cfg)
	require.Error(t, err)
}

func TestSettlementIDIgnoresPlaceholderNumbers(t *testing.T) {
	require.Equal(t, "", Callback{TransactionNo: ""}.SettlementID())
	require.Equal(t, "", Callback{TransactionNo: "0"}.SettlementID())
	require.Equal(t, "14001", Callback{TransactionNo: "14001"}.SettlementID())
}
