package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/auth"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/config"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db/models"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/enums"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/logger"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/metrics"
)

type stubCart struct{}

func (stubCart) Upsert(_ context.Context, userID, productID uuid.UUID, qty int) (*models.CartItem, error) {
	return &models.CartItem{UserID: userID, ProductID: productID, Quantity: qty}, nil
}

func (stubCart) List(context.Context, uuid.UUID) ([]models.CartItem, error) {
	return nil, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0", CORSAllowedOrigins: []string{"http://localhost:3000"}},
		JWT: config.JWTConfig{Secret: "router-secret", Issuer: "storefront-test", ExpirationMinutes: 5},
	}
}

func bearer(t *testing.T, cfg *config.Config, role enums.Role) string {
	t.Helper()
	token, err := auth.MintAccessToken(cfg.JWT, time.Now(), auth.AccessTokenPayload{UserID: uuid.New(), Role: role})
	require.NoError(t, err)
	return "Bearer " + token
}

func newTestRouter(cfg *config.Config) http.Handler {
	reg := prometheus.NewRegistry()
	return NewRouter(cfg, logger.Nop(), Deps{
		Registry:    reg,
		HTTPMetrics: metrics.NewHTTPMetrics(reg),
		Cart:        stubCart{},
	})
}

func TestHealthLive(t *testing.T) {
	router := newTestRouter(testConfig())
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "test", resp.Header().Get("X-Storefront-Env"))
	require.NotEmpty(t, resp.Header().Get("X-Request-Id"))
}

func TestShopperRoutesRequireCustomerToken(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))
	require.Equal(t, http.StatusUnauthorized, resp.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("Authorization", bearer(t, cfg, enums.RoleAdmin))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusForbidden, resp.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("Authorization", bearer(t, cfg, enums.RoleCustomer))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
}

func TestAdminRoutesRejectCustomers(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/refunds/"+uuid.NewString()+"/retry", nil)
	req.Header.Set("Authorization", bearer(t, cfg, enums.RoleCustomer))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusForbidden, resp.Code)
}

func TestMetricsEndpointExposesHTTPCounters(t *testing.T) {
	router := newTestRouter(testConfig())
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	require.True(t, strings.Contains(resp.Body.String(), "storefront_http_requests_total"))
}

func TestGatewayCallbackWithoutProcessor(t *testing.T) {
	router := newTestRouter(testConfig())
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/payments/gateway/ipn?vnp_TxnRef=x", nil))

	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), `"RspCode":"99"`)
}
