package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/printbridge/internal/domain"
	"github.com/tournevent/printbridge/internal/fulfillment"
	"github.com/tournevent/printbridge/internal/repository"
	"github.com/tournevent/printbridge/internal/repository/memory"
	"github.com/tournevent/printbridge/internal/server"
	"github.com/tournevent/printbridge/internal/telemetry"
	"github.com/tournevent/printbridge/pkg/printer/mock"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const bookJSON = `{
	"id": "book", "name": "Field Guide", "type": "print_book",
	"pod_package": {"trim": "0600X0900", "color": "BW", "print": "STD", "bind": "PB", "paper": "060UW444", "finish": "G", "linen": "X", "foil": "X"},
	"page_count": 120,
	"cover_pdf_url": "https://files.example.com/cover.pdf",
	"interior_pdf_url": "https://files.example.com/interior.pdf"
}`

const paidOrderJSON = `{
	"id": "1042", "status": "processing", "email": "ada@example.com",
	"shipping": {"first_name": "Ada", "address_1": "1 Main St", "city": "Raleigh", "postcode": "27601", "country": "US"},
	"items": [{"id": "i1", "product_id": "book", "name": "Field Guide", "quantity": 1}]
}`

type testEnv struct {
	handler http.Handler
	printer *mock.Printer
	repos   *repository.Repositories
}

func newTestServer(t *testing.T, secret string) *testEnv {
	t.Helper()

	logger := otelzap.New(zap.NewNop())
	registry := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(registry)

	repos := memory.NewRepositories()
	p := mock.New("lulu")
	svc := fulfillment.NewService(p, repos, fulfillment.Config{}, logger, fulfillment.WithMetrics(metrics))

	srv, err := server.New(server.Config{Port: 8080, WebhookSecret: secret}, svc, logger, registry)
	require.NoError(t, err)
	return &testEnv{handler: srv.Handler(), printer: p, repos: repos}
}

func (e *testEnv) do(method, path, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestServer_Health(t *testing.T) {
	env := newTestServer(t, "")

	rec := env.do(http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestServer_GraphQL_MethodNotAllowed(t *testing.T) {
	env := newTestServer(t, "")

	rec := env.do(http.MethodGet, "/graphql", "")

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	errors, ok := decode(t, rec)["errors"].([]any)
	require.True(t, ok)
	assert.Len(t, errors, 1)
}

func TestServer_GraphQL_InvalidJSON(t *testing.T) {
	env := newTestServer(t, "")

	rec := env.do(http.MethodPost, "/graphql", "{not json")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid JSON")
}

func TestServer_GraphQL_Query(t *testing.T) {
	env := newTestServer(t, "")

	rec := env.do(http.MethodPost, "/graphql", `{"query": "{ health }"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"health": "ok"}, decode(t, rec)["data"])

	rec = env.do(http.MethodPost, "/graphql", `{"query": "{ unknownField }"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.NotEmpty(t, decode(t, rec)["errors"])
}

func TestServer_Webhooks_ProductThenOrder(t *testing.T) {
	env := newTestServer(t, "")

	rec := env.do(http.MethodPost, "/webhooks/products", bookJSON)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	product := decode(t, rec)
	assert.Equal(t, "5.00", product["print_cost_incl_tax"])

	rec = env.do(http.MethodPost, "/webhooks/orders", paidOrderJSON)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "1042", body["order_id"])
	jobID, _ := body["print_job_id"].(string)
	require.NotEmpty(t, jobID)

	rec = env.do(http.MethodPost, "/webhooks/orders", paidOrderJSON)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Nil(t, decode(t, rec)["print_job_id"])
	assert.Equal(t, 1, env.printer.CreateCalls())

	env.printer.SetShipped(jobID, "1Z999", "https://track.example.com/1Z999")
	rec = env.do(http.MethodPost, "/webhooks/orders/1042/status-check", "")
	require.Equal(t, http.StatusOK, rec.Code)
	check := decode(t, rec)
	assert.Equal(t, "SHIPPED", check["status"])
	assert.Equal(t, "Shipped", check["label"])
	assert.Equal(t, true, check["changed"])
	assert.Equal(t, map[string]any{"1Z999": "https://track.example.com/1Z999"}, check["tracking_information"])
}

func TestServer_Webhooks_RejectInvalidPayloads(t *testing.T) {
	env := newTestServer(t, "")

	tests := []struct {
		name string
		path string
		body string
	}{
		{"not json", "/webhooks/orders", "{"},
		{"missing id", "/webhooks/orders", `{"status": "processing", "items": []}`},
		{"bad status", "/webhooks/orders", `{"id": "1", "status": "paid", "items": []}`},
		{"zero quantity", "/webhooks/orders", `{"id": "1", "status": "processing", "items": [{"id": "a", "quantity": 0}]}`},
		{"bad product type", "/webhooks/products", `{"id": "p", "type": "ebook"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decode(t, rec)["error"])
		})
	}

	_, err := env.repos.Order.GetByID(context.Background(), "1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestServer_Webhooks_StatusCheckErrors(t *testing.T) {
	env := newTestServer(t, "")

	rec := env.do(http.MethodPost, "/webhooks/orders/missing/status-check", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, env.repos.Order.Save(context.Background(), &domain.Order{ID: "7", Status: domain.OrderStatusPending}))
	rec = env.do(http.MethodPost, "/webhooks/orders/7/status-check", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func sign(t *testing.T, method jwt.SigningMethod, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, jwt.MapClaims{"sub": "storefront"}).SignedString([]byte(secret))
	require.NoError(t, err)
	return "Bearer " + token
}

func TestServer_Webhooks_Authentication(t *testing.T) {
	env := newTestServer(t, "s3cret")

	rec := env.do(http.MethodPost, "/webhooks/products", bookJSON)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodPost, "/webhooks/products", bookJSON, "Authorization", sign(t, jwt.SigningMethodHS256, "wrong"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodPost, "/webhooks/products", bookJSON, "Authorization", sign(t, jwt.SigningMethodHS384, "s3cret"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodPost, "/webhooks/products", bookJSON, "Authorization", sign(t, jwt.SigningMethodHS256, "s3cret"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	env := newTestServer(t, "")
	env.do(http.MethodPost, "/webhooks/products", bookJSON)

	rec := env.do(http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "printbridge_printer_requests_total")
}
