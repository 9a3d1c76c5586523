package checkout

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/KTAKhang/SEP490-Group10-sub002/internal/checkout/helpers"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/gateway"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/inventory"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/config"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db/dbtest"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db/models"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/enums"
	pkgerrors "github.com/KTAKhang/SEP490-Group10-sub002/pkg/errors"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/logger"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/outbox"
)

type fixture struct {
	svc     *service
	client  *db.Client
	shopper uuid.UUID
	now     time.Time
}

func newFixture(t *testing.T, name string) *fixture {
	t.Helper()
	client := dbtest.Open(t, name)
	gw, err := gateway.NewClient(config.GatewayConfig{
		TmnCode:        "TMN01",
		HashSecret:     "checkout-secret",
		PayURL:         "https://pay.example/vpcpay.html",
		ReturnURL:      "https://shop.example/return",
		PaymentTTL:     15 * time.Minute,
		RequestTimeout: time.Second,
	})
	require.NoError(t, err)

	svc, err := newService(ServiceParams{
		DB:      client,
		Ledger:  inventory.NewLedger(),
		Outbox:  outbox.NewService(outbox.NewRepository(client.DB()), logger.Nop()),
		Gateway: gw,
	})
	require.NoError(t, err)
	f := &fixture{svc: svc, client: client, shopper: uuid.New(), now: time.Now().UTC()}
	svc.now = func() time.Time { return f.now }
	return f
}

// hold reserves qty the way the reservation manager does and puts qty in the cart.
func (f *fixture) hold(t *testing.T, product models.Product, held, inCart int, expiresIn time.Duration) {
	t.Helper()
	conn := f.client.DB()
	ok, err := inventory.NewLedger().Hold(context.Background(), conn, product.ID, held)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, conn.Create(&models.StockLock{
		UserID:        f.shopper,
		ProductID:     product.ID,
		SessionID:     "session",
		Quantity:      held,
		ExpiresAt:     f.now.Add(expiresIn),
		CooldownUntil: f.now,
	}).Error)
	require.NoError(t, conn.Create(&models.CartItem{
		UserID:    f.shopper,
		ProductID: product.ID,
		Quantity:  inCart,
	}).Error)
}

func (f *fixture) input(method enums.PaymentMethod, ids ...uuid.UUID) Input {
	return Input{
		Shopper:            f.shopper,
		SelectedProductIDs: ids,
		Receiver:           helpers.Receiver{Name: "Lan", Phone: "0901234567", Address: "12 Le Loi"},
		PaymentMethod:      method,
		ClientIP:           "10.0.0.9",
	}
}

func TestCheckoutCODCommitsHoldOnce(t *testing.T) {
	f := newFixture(t, "checkout_cod")
	ctx := context.Background()
	conn := f.client.DB()
	rice := dbtest.SeedProduct(t, conn, 10, 12000)
	tea := dbtest.SeedProduct(t, conn, 4, 5000)
	f.hold(t, rice, 3, 3, 10*time.Minute)
	f.hold(t, tea, 2, 1, 10*time.Minute)

	result, err := f.svc.Checkout(ctx, f.input(enums.PaymentMethodCOD, rice.ID, tea.ID))
	require.NoError(t, err)
	require.Equal(t, enums.PaymentMethodCOD, result.PaymentMethod)
	require.Empty(t, result.PaymentURL)

	riceRow := dbtest.ReloadProduct(t, conn, rice.ID)
	require.Equal(t, 7, riceRow.OnHand)
	require.Equal(t, 0, riceRow.Reserved)
	teaRow := dbtest.ReloadProduct(t, conn, tea.ID)
	require.Equal(t, 3, teaRow.OnHand)
	require.Equal(t, 0, teaRow.Reserved, "the unused part of the hold is released")

	order := dbtest.ReloadOrder(t, conn, result.OrderID)
	require.Equal(t, enums.OrderStatusPending, order.Status)
	require.True(t, order.TotalPrice.Equal(decimal.NewFromInt(41000)), "total %s", order.TotalPrice)

	pays := dbtest.Payments(t, conn, order.ID, enums.PaymentTypePayment)
	require.Len(t, pays, 1)
	require.Equal(t, enums.PaymentStatusUnpaid, pays[0].Status)
	require.True(t, pays[0].Amount.Equal(order.TotalPrice))

	require.EqualValues(t, 2, dbtest.CountRows(t, conn, &models.OrderDetail{}, "order_id = ?", order.ID))
	require.EqualValues(t, 1, dbtest.CountRows(t, conn, &models.OrderStatusHistory{}, "order_id = ? AND from_status = ? AND to_status = ?", order.ID, enums.OrderStatusPending, enums.OrderStatusPending))
	require.EqualValues(t, 0, dbtest.CountRows(t, conn, &models.CartItem{}, "user_id = ?", f.shopper))
	require.EqualValues(t, 0, dbtest.CountRows(t, conn, &models.StockLock{}, "user_id = ?", f.shopper))
	require.EqualValues(t, 1, dbtest.CountRows(t, conn, &models.OutboxEvent{}, "event_type = ? AND aggregate_id = ?", enums.EventOrderCreated, order.ID))

	_, err = f.svc.Checkout(ctx, f.input(enums.PaymentMethodCOD, rice.ID, tea.ID))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeEmptyCart), "got %v", err)
	require.Equal(t, 7, dbtest.ReloadProduct(t, conn, rice.ID).OnHand)
	require.EqualValues(t, 1, dbtest.CountRows(t, conn, &models.Order{}, ""))
}

func TestCheckoutConcurrentSubmitDecrementsOnce(t *testing.T) {
	f := newFixture(t, "checkout_concurrent")
	conn := f.client.DB()
	product := dbtest.SeedProduct(t, conn, 5, 1000)
	f.hold(t, product, 2, 2, 10*time.Minute)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Checkout(context.Background(), f.input(enums.PaymentMethodCOD, product.ID))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, succeeded)
	require.Equal(t, 3, dbtest.ReloadProduct(t, conn, product.ID).OnHand)
	require.EqualValues(t, 1, dbtest.CountRows(t, conn, &models.Order{}, ""))
}

func TestCheckoutGatewayReturnsSignedURL(t *testing.T) {
	f := newFixture(t, "checkout_gateway")
	conn := f.client.DB()
	product := dbtest.SeedProduct(t, conn, 5, 150000)
	f.hold(t, product, 1, 1, 10*time.Minute)

	result, err := f.svc.Checkout(context.Background(), f.input(enums.PaymentMethodGateway, product.ID))
	require.NoError(t, err)
	require.NotEmpty(t, result.PaymentURL)

	pays := dbtest.Payments(t, conn, result.OrderID, enums.PaymentTypePayment)
	require.Len(t, pays, 1)
	require.Equal(t, enums.PaymentStatusPending, pays[0].Status)
	require.NotEmpty(t, pays[0].TxnRef)

	parsed, err := url.Parse(result.PaymentURL)
	require.NoError(t, err)
	q := parsed.Query()
	require.Equal(t, pays[0].TxnRef, q.Get("vnp_TxnRef"))
	require.Equal(t, "15000000", q.Get("vnp_Amount"))
	require.Equal(t, "10.0.0.9", q.Get("vnp_IpAddr"))
	require.NotEmpty(t, q.Get("vnp_SecureHash"))
}

type brokenURLBuilder struct{}

func (brokenURLBuilder) BuildPaymentURL(gateway.PaymentRequest) (string, error) {
	return "", errors.New("signer unavailable")
}

func TestCheckoutKeepsCommittedOrderWhenURLBuildFails(t *testing.T) {
	f := newFixture(t, "checkout_url_failure")
	f.svc.gateway = brokenURLBuilder{}
	conn := f.client.DB()
	product := dbtest.SeedProduct(t, conn, 5, 150000)
	f.hold(t, product, 2, 2, 10*time.Minute)

	result, err := f.svc.Checkout(context.Background(), f.input(enums.PaymentMethodGateway, product.ID))
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, result.OrderID)
	require.Empty(t, result.PaymentURL)

	order := dbtest.ReloadOrder(t, conn, result.OrderID)
	require.Equal(t, enums.OrderStatusPending, order.Status)
	pays := dbtest.Payments(t, conn, result.OrderID, enums.PaymentTypePayment)
	require.Len(t, pays, 1)
	require.Equal(t, result.PaymentID, pays[0].ID)
	require.Equal(t, enums.PaymentStatusPending, pays[0].Status)
	require.Equal(t, 3, dbtest.ReloadProduct(t, conn, product.ID).OnHand)
}

func TestCheckoutExpiredHoldLeavesNoTrace(t *testing.T) {
	f := newFixture(t, "checkout_expired")
	conn := f.client.DB()
	product := dbtest.SeedProduct(t, conn, 10, 1000)
	f.hold(t, product, 2, 2, 10*time.Minute)
	f.now = f.now.Add(11 * time.Minute)

	_, err := f.svc.Checkout(context.Background(), f.input(enums.PaymentMethodCOD, product.ID))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeHoldExpired), "got %v", err)

	row := dbtest.ReloadProduct(t, conn, product.ID)
	require.Equal(t, 10, row.OnHand)
	require.Equal(t, 2, row.Reserved, "the sweeper releases the hold, not checkout")
	require.EqualValues(t, 0, dbtest.CountRows(t, conn, &models.Order{}, ""))
	require.EqualValues(t, 0, dbtest.CountRows(t, conn, &models.Payment{}, ""))
	require.EqualValues(t, 0, dbtest.CountRows(t, conn, &models.OutboxEvent{}, ""))
	require.EqualValues(t, 1, dbtest.CountRows(t, conn, &models.CartItem{}, "user_id = ?", f.shopper))
}

func TestCheckoutRejectsShortOrMissingHold(t *testing.T) {
	f := newFixture(t, "checkout_short")
	conn := f.client.DB()
	held := dbtest.SeedProduct(t, conn, 10, 1000)
	unheld := dbtest.SeedProduct(t, conn, 10, 1000)
	f.hold(t, held, 1, 3, 10*time.Minute)
	require.NoError(t, conn.Create(&models.CartItem{UserID: f.shopper, ProductID: unheld.ID, Quantity: 1}).Error)

	_, err := f.svc.Checkout(context.Background(), f.input(enums.PaymentMethodCOD, held.ID, unheld.ID))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeHoldExpired), "got %v", err)
	require.Equal(t, 10, dbtest.ReloadProduct(t, conn, held.ID).OnHand)
	require.EqualValues(t, 1, dbtest.CountRows(t, conn, &models.StockLock{}, "user_id = ?", f.shopper))
}

func TestCheckoutInactiveProductRollsBack(t *testing.T) {
	f := newFixture(t, "checkout_inactive")
	conn := f.client.DB()
	product := dbtest.SeedProduct(t, conn, 10, 1000)
	f.hold(t, product, 2, 2, 10*time.Minute)
	require.NoError(t, conn.Model(&models.Product{}).Where("id = ?", product.ID).Update("is_active", false).Error)

	_, err := f.svc.Checkout(context.Background(), f.input(enums.PaymentMethodCOD, product.ID))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)

	row := dbtest.ReloadProduct(t, conn, product.ID)
	require.Equal(t, 10, row.OnHand)
	require.Equal(t, 2, row.Reserved)
	require.EqualValues(t, 1, dbtest.CountRows(t, conn, &models.StockLock{}, "user_id = ?", f.shopper))
}

func TestCheckoutInputValidation(t *testing.T) {
	f := newFixture(t, "checkout_input")
	ctx := context.Background()

	_, err := f.svc.Checkout(ctx, f.input(enums.PaymentMethodCOD))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeEmptyCart), "got %v", err)

	_, err = f.svc.Checkout(ctx, f.input(enums.PaymentMethodCOD, uuid.New()))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeEmptyCart), "got %v", err)

	_, err = f.svc.Checkout(ctx, f.input(enums.PaymentMethod("CARD"), uuid.New()))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)

	in := f.input(enums.PaymentMethodCOD, uuid.New())
	in.Receiver.Address = "  "
	_, err = f.svc.Checkout(ctx, in)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
}

func TestAbortErrorKeepsDomainCodes(t *testing.T) {
	domain := pkgerrors.New(pkgerrors.CodeStockRaceLost, "lost")
	require.Same(t, domain, abortError(domain))

	infra := pkgerrors.Wrap(pkgerrors.CodeDependency, context.DeadlineExceeded, "load")
	require.True(t, pkgerrors.IsCode(abortError(infra), pkgerrors.CodeTransactionAborted))
}
