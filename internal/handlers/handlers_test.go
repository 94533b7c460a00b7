package handlers_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartloom/cartloom-golang/internal/auth"
	"github.com/cartloom/cartloom-golang/internal/catalog"
	"github.com/cartloom/cartloom-golang/internal/handlers"
	"github.com/cartloom/cartloom-golang/internal/money"
	"github.com/cartloom/cartloom-golang/internal/orders"
	"github.com/cartloom/cartloom-golang/internal/payments"
	"github.com/cartloom/cartloom-golang/internal/routes"
)

const webhookSecret = "whsec_test"

type fakeGateway struct {
	intent        *payments.Intent
	err           error
	createCalls   int
	retrieveCalls int
}

func (f *fakeGateway) CreateIntent(ctx context.Context, amount money.Cents, currency string, metadata map[string]string) (*payments.Intent, error) {
	f.createCalls++
	return f.intent, f.err
}

func (f *fakeGateway) RetrieveIntent(ctx context.Context, id string) (*payments.Intent, error) {
	f.retrieveCalls++
	return f.intent, f.err
}

func newTestApp(t *testing.T) (*gin.Engine, sqlmock.Sqlmock, *fakeGateway) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Setenv("JWT_SECRET", "test-secret")

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gw := &fakeGateway{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	orderService := orders.NewService(db, gw, "usd")
	orderService.Logger = logger
	orderService.RetryDelay = time.Millisecond

	app := &handlers.Handlers{
		DB:            db,
		Orders:        orderService,
		Catalog:       catalog.NewService(db),
		Gateway:       gw,
		WebhookSecret: webhookSecret,
		Logger:        logger,
	}
	return routes.SetupRouter(app, "http://localhost:5173", nil), mock, gw
}

func bearer(t *testing.T, userID int64) string {
	t.Helper()
	token, err := auth.GenerateToken(userID)
	require.NoError(t, err)
	return "Bearer " + token
}

func doJSON(router *gin.Engine, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateOrderRequiresAuth(t *testing.T) {
	router, _, _ := newTestApp(t)

	w := doJSON(router, http.MethodPost, "/v1/orders", "", `{"items":[],"paymentIntentId":"pi_1"}`)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateOrderEmptyItems(t *testing.T) {
	router, _, gw := newTestApp(t)

	w := doJSON(router, http.MethodPost, "/v1/orders", bearer(t, 7),
		`{"items":[],"paymentIntentId":"pi_1"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "No items in order")
	assert.Contains(t, w.Body.String(), `"code":"validation"`)
	assert.Zero(t, gw.retrieveCalls)
}

func TestCreateOrderScenario(t *testing.T) {
	// Cart 2 x 19.99 + 1 x 29.99, captured intent amount 6997, addressId 1.
	router, mock, gw := newTestApp(t)
	gw.intent = &payments.Intent{
		ID: "pi_123", Status: payments.IntentStatusSucceeded,
		AmountCents: 6997, Currency: "usd",
	}

	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE payment_intent_id = ?")).
		WithArgs("pi_123").WillReturnError(sql.ErrNoRows)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM addresses")).
		WithArgs(int64(1), int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"stock_quantity", "status"}).AddRow(10, "published"))
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"stock_quantity", "status"}).AddRow(5, "published"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE products")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE products")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO orders")).
		WithArgs(int64(7), "paid", int64(6997), "usd", int64(1), "pi_123", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(77, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO order_items")).
		WithArgs(int64(77), int64(1), 2, int64(1999), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO order_items")).
		WithArgs(int64(77), int64(2), 1, int64(2999), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	body := `{
		"items": [
			{"id": 1, "price": 19.99, "quantity": 2},
			{"id": 2, "price": 29.99, "quantity": 1}
		],
		"addressId": 1,
		"paymentIntentId": "pi_123"
	}`
	w := doJSON(router, http.MethodPost, "/v1/orders", bearer(t, 7), body)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Success bool `json:"success"`
		Order   struct {
			ID         int64   `json:"id"`
			Status     string  `json:"status"`
			Total      float64 `json:"total"`
			TotalCents int64   `json:"totalCents"`
		} `json:"order"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, int64(77), resp.Order.ID)
	assert.Equal(t, "paid", resp.Order.Status)
	assert.Equal(t, 69.97, resp.Order.Total)
	assert.Equal(t, int64(6997), resp.Order.TotalCents)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderUncapturedIntent(t *testing.T) {
	router, mock, gw := newTestApp(t)
	gw.intent = &payments.Intent{
		ID: "pi_123", Status: payments.IntentStatusRequiresPaymentMethod,
		AmountCents: 1999, Currency: "usd",
	}

	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE payment_intent_id = ?")).
		WithArgs("pi_123").WillReturnError(sql.ErrNoRows)

	body := `{"items":[{"id":1,"price":19.99,"quantity":1}],"addressId":1,"paymentIntentId":"pi_123"}`
	w := doJSON(router, http.MethodPost, "/v1/orders", bearer(t, 7), body)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"payment_verification"`)
	// No transaction means no rows written.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderIdempotentReplayReturns200(t *testing.T) {
	router, mock, _ := newTestApp(t)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE payment_intent_id = ?")).
		WithArgs("pi_123").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "status", "total_cents", "currency",
			"address_id", "payment_intent_id", "created_at", "updated_at",
		}).AddRow(77, 7, "paid", 6997, "usd", 1, "pi_123", now, now))

	body := `{"items":[{"id":1,"price":19.99,"quantity":1}],"addressId":1,"paymentIntentId":"pi_123"}`
	w := doJSON(router, http.MethodPost, "/v1/orders", bearer(t, 7), body)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":77`)
}

func TestCreateIntentPricesFromCatalog(t *testing.T) {
	router, mock, gw := newTestApp(t)
	gw.intent = &payments.Intent{
		ID: "pi_new", Status: payments.IntentStatusRequiresPaymentMethod,
		AmountCents: 6997, Currency: "usd", ClientSecret: "pi_new_secret",
	}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT name, price_cents, discount_price_cents, status")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"name", "price_cents", "discount_price_cents", "status"}).
			AddRow("Walnut Desk Organizer", 1999, nil, "published"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT name, price_cents, discount_price_cents, status")).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"name", "price_cents", "discount_price_cents", "status"}).
			AddRow("Canvas Weekender Bag", 2999, nil, "published"))

	body := `{"items":[{"id":1,"quantity":2},{"id":2,"quantity":1}]}`
	w := doJSON(router, http.MethodPost, "/v1/payments/create-intent", bearer(t, 7), body)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"paymentIntentId":"pi_new"`)
	assert.Contains(t, w.Body.String(), `"clientSecret":"pi_new_secret"`)
	assert.Contains(t, w.Body.String(), `"amount":6997`)
	assert.Equal(t, 1, gw.createCalls)
}

func TestCreateIntentEmptyItems(t *testing.T) {
	router, _, gw := newTestApp(t)

	w := doJSON(router, http.MethodPost, "/v1/payments/create-intent", bearer(t, 7), `{"items":[]}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "No items in order")
	assert.Zero(t, gw.createCalls)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	router, _, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/payments/webhook",
		strings.NewReader(`{"id":"evt_1","type":"payment_intent.succeeded"}`))
	req.Header.Set("Stripe-Signature", "t=1700000000,v1=deadbeef")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	// Never 200: the gateway must keep retrying forged/broken deliveries.
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"signature"`)
}

func TestWebhookAcknowledgesIgnoredEventTypes(t *testing.T) {
	router, _, _ := newTestApp(t)

	payload := []byte(`{"id":"evt_1","type":"charge.refunded","data":{"object":{"id":"pi_123"}}}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/payments/webhook", strings.NewReader(string(payload)))
	req.Header.Set("Stripe-Signature", payments.SignPayload(payload, time.Now(), webhookSecret))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"received":true`)
}

func TestWebhookSettlesOrder(t *testing.T) {
	router, mock, _ := newTestApp(t)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO webhook_events")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE payment_intent_id = ?")).
		WithArgs("pi_123").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "status", "total_cents", "currency",
			"address_id", "payment_intent_id", "created_at", "updated_at",
		}).AddRow(77, 7, "processing", 6997, "usd", 1, "pi_123", now, now))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET status = ?")).
		WithArgs("paid", sqlmock.AnyArg(), int64(77)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_123","status":"succeeded","amount":6997,"currency":"usd"}}}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/payments/webhook", strings.NewReader(string(payload)))
	req.Header.Set("Stripe-Signature", payments.SignPayload(payload, time.Now(), webhookSecret))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"received":true`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrderDetailsScopesToOwner(t *testing.T) {
	router, mock, _ := newTestApp(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = ? AND user_id = ?")).
		WithArgs(int64(77), int64(9)).
		WillReturnError(sql.ErrNoRows)

	w := doJSON(router, http.MethodGet, "/v1/orders/77", bearer(t, 9), "")

	// Someone else's order looks identical to a missing one.
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"not_found"`)
}

func TestGetProductPublic(t *testing.T) {
	router, mock, _ := newTestApp(t)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM products WHERE id = ?")).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "seller_id", "sku", "slug", "name", "description",
			"price_cents", "discount_price_cents", "stock_quantity", "version", "status",
			"created_at", "updated_at",
		}).AddRow(5, 7, nil, "walnut-desk-organizer", "Walnut Desk Organizer", "Oiled walnut.",
			1999, nil, 40, 1, "published", now, now))

	w := doJSON(router, http.MethodGet, "/v1/products/5", "", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"slug":"walnut-desk-organizer"`)
}

func TestPing(t *testing.T) {
	router, _, _ := newTestApp(t)

	w := doJSON(router, http.MethodGet, "/v1/ping", "", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pong")
}
