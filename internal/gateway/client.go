package gateway

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/config"
)

const (
	apiVersion   = "2.1.0"
	currencyCode = "VND"
	dateLayout   = "20060102150405"
	defaultTTL   = 15 * time.Minute
)

var gatewayZone = loadZone()

func loadZone() *time.Location {
	if loc, err := time.LoadLocation("Asia/Ho_Chi_Minh"); err == nil {
		return loc
	}
	return time.FixedZone("UTC+7", 7*60*60)
}

// FormatDate renders t the way the gateway expects timestamps.
func FormatDate(t time.Time) string {
	return t.In(gatewayZone).Format(dateLayout)
}

// ParseDate reads a gateway timestamp.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, value, gatewayZone)
}

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client builds payment URLs, parses callbacks and calls the refund API.
type Client struct {
	cfg          config.GatewayConfig
	signer       Signer
	http         httpDoer
	pendingCodes map[string]struct{}
	now          func() time.Time
}

func NewClient(cfg config.GatewayConfig) (*Client, error) {
	if strings.TrimSpace(cfg.HashSecret) == "" {
		return nil, fmt.Errorf("gateway hash secret is required")
	}
	if strings.TrimSpace(cfg.PayURL) == "" {
		return nil, fmt.Errorf("gateway pay url is required")
	}
	if cfg.PaymentTTL <= 0 {
		cfg.PaymentTTL = defaultTTL
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	pending := make(map[string]struct{}, len(cfg.RefundPendingCodes))
	for _, code := range cfg.RefundPendingCodes {
		if code = strings.TrimSpace(code); code != "" {
			pending[code] = struct{}{}
		}
	}
	return &Client{
		cfg:          cfg,
		signer:       NewSigner(cfg.HashSecret),
		http:         &http.Client{Timeout: timeout},
		pendingCodes: pending,
		now:          time.Now,
	}, nil
}

// Signer exposes the configured signer for callers that need to sign test
// fixtures or verify raw queries directly.
func (c *Client) Signer() Signer {
	return c.signer
}

// toMinorUnits scales a VND amount the way the gateway encodes it (x100).
func toMinorUnits(amount decimal.Decimal) string {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).String()
}

func fromMinorUnits(value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, err
	}
	return d.Div(decimal.NewFromInt(100)), nil
}
