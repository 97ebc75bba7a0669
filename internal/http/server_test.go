package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apihttp "GiftCardPay/internal/http"
	"GiftCardPay/internal/models"
	"GiftCardPay/internal/payments"
	"GiftCardPay/internal/services"
	"GiftCardPay/internal/store"
)

const testSecret = "testsecret"

type fakeOrders struct {
	invoice    *models.Invoice
	invoiceErr error
	lastReq    services.InvoiceRequest
	order      *models.Order
	orderErr   error
	orders     []*models.Order
	lastFilter store.ListFilter
	lastCode   string
	discount   decimal.Decimal
	setErr     error
}

func (f *fakeOrders) BuildInvoice(_ context.Context, req services.InvoiceRequest) (*models.Invoice, error) {
	f.lastReq = req
	return f.invoice, f.invoiceErr
}

func (f *fakeOrders) GetOrder(context.Context, string) (*models.Order, error) {
	return f.order, f.orderErr
}

func (f *fakeOrders) UserOrders(context.Context, string) ([]*models.Order, error) {
	return f.orders, nil
}

func (f *fakeOrders) ListOrders(_ context.Context, filter store.ListFilter) ([]*models.Order, error) {
	f.lastFilter = filter
	return f.orders, nil
}

func (f *fakeOrders) Cancel(context.Context, string) (*models.Order, error) {
	return f.order, f.orderErr
}

func (f *fakeOrders) ForceComplete(_ context.Context, _ string, code string) (*models.Order, error) {
	f.lastCode = code
	return f.order, f.orderErr
}

func (f *fakeOrders) DiscountPercentage(context.Context) (decimal.Decimal, error) {
	return f.discount, nil
}

func (f *fakeOrders) SetDiscountPercentage(_ context.Context, pct decimal.Decimal) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.discount = pct
	return nil
}

type fakeVerifier struct {
	mu       sync.Mutex
	statuses []payments.Status
	errs     []error
	calls    int
	details  *models.PaymentDetails
}

func (f *fakeVerifier) Check(context.Context, string) (payments.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return payments.Status{}, f.errs[i]
	}
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	return f.statuses[i], nil
}

func (f *fakeVerifier) Details(context.Context, string) (*models.PaymentDetails, error) {
	if f.details == nil {
		return nil, models.ErrOrderNotFound
	}
	return f.details, nil
}

func sampleOrder(status models.OrderStatus) *models.Order {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &models.Order{
		OrderID:         "3f2a9c1e-7b4d-4e8a-9f10-2c3d4e5f6a7b",
		UserID:          "u1",
		Country:         "US",
		GiftCard:        "Amazon",
		Denomination:    "$100",
		OriginalPrice:   decimal.NewFromInt(100),
		Currency:        "USD",
		DiscountedPrice: decimal.NewFromInt(55),
		Crypto:          "BTC",
		CryptoAmount:    decimal.RequireFromString("0.0011"),
		PaymentAddress:  "bc1qstorefront",
		Status:          status,
		CreatedAt:       created,
		UpdatedAt:       created,
	}
}

func newTestServer(orders *fakeOrders, verifier *fakeVerifier) *httptest.Server {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := apihttp.NewHandler(log, orders, verifier, 10*time.Millisecond)
	return httptest.NewServer(apihttp.NewServer(log, h, testSecret).Router)
}

func adminToken(t *testing.T, role, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "admin-1",
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	s, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func do(t *testing.T, method, url, body string, header map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewBufferString(body))
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func TestHealth(t *testing.T) {
	srv := newTestServer(&fakeOrders{}, &fakeVerifier{})
	defer srv.Close()

	resp, body := do(t, http.MethodGet, srv.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestCreateOrder_Success(t *testing.T) {
	orders := &fakeOrders{invoice: &models.Invoice{
		Order:                    *sampleOrder(models.OrderPending),
		CurrencySymbol:           "$",
		OriginalDiscountedAmount: decimal.NewFromInt(55),
		DiscountRate:             decimal.RequireFromString("0.45"),
	}}
	srv := newTestServer(orders, &fakeVerifier{})
	defer srv.Close()

	resp, body := do(t, http.MethodPost, srv.URL+"/payments/orders",
		`{"country":"US","giftCard":"Amazon","crypto":"BTC","denomination":"$100"}`,
		map[string]string{"X-User-Id": "u1", "Content-Type": "application/json"})

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "3f2a9c1e-7b4d-4e8a-9f10-2c3d4e5f6a7b", body["orderId"])
	assert.Equal(t, "0.0011", body["cryptoAmount"])
	assert.Equal(t, "bc1qstorefront", body["paymentAddress"])
	assert.Equal(t, "$", body["currencySymbol"])
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "u1", orders.lastReq.UserID)
	assert.Nil(t, orders.lastReq.Amount)
}

func TestCreateOrder_StructuredAmount(t *testing.T) {
	orders := &fakeOrders{invoice: &models.Invoice{Order: *sampleOrder(models.OrderPending)}}
	srv := newTestServer(orders, &fakeVerifier{})
	defer srv.Close()

	resp, _ := do(t, http.MethodPost, srv.URL+"/payments/orders",
		`{"country":"DE","giftCard":"Steam","crypto":"ETH","amount":50,"currency":"EUR"}`,
		map[string]string{"X-User-Id": "u1"})

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotNil(t, orders.lastReq.Amount)
	assert.True(t, orders.lastReq.Amount.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, "EUR", orders.lastReq.Currency)
}

func TestCreateOrder_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
	}{
		{"bad json", `{"country":`, nil, http.StatusBadRequest},
		{"missing gift card", `{"country":"US","crypto":"BTC","denomination":"$100"}`, nil, http.StatusBadRequest},
		{"neither denomination nor amount", `{"country":"US","giftCard":"Amazon","crypto":"BTC"}`, nil, http.StatusBadRequest},
		{"unsupported currency", `{"country":"US","giftCard":"Amazon","crypto":"XMR","denomination":"$100"}`, models.ErrUnsupportedCurrency, http.StatusUnprocessableEntity},
		{"missing user", `{"country":"US","giftCard":"Amazon","crypto":"BTC","denomination":"$100"}`, services.ErrMissingUserID, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(&fakeOrders{invoiceErr: tt.err}, &fakeVerifier{})
			defer srv.Close()

			resp, body := do(t, http.MethodPost, srv.URL+"/payments/orders", tt.body, map[string]string{"X-User-Id": "u1"})
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestGetOrder(t *testing.T) {
	tx := "abc123"
	verifier := &fakeVerifier{details: &models.PaymentDetails{
		Order: sampleOrder(models.OrderPending),
		Payment: &models.CryptoPayment{
			OrderID:       "3f2a9c1e-7b4d-4e8a-9f10-2c3d4e5f6a7b",
			TransactionID: &tx,
			Crypto:        "BTC",
			Amount:        decimal.RequireFromString("0.0011"),
			Status:        models.PaymentPending,
		},
	}}
	srv := newTestServer(&fakeOrders{}, verifier)
	defer srv.Close()

	resp, body := do(t, http.MethodGet, srv.URL+"/payments/orders/3f2a9c1e-7b4d-4e8a-9f10-2c3d4e5f6a7b", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	payment, ok := body["payment"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "abc123", payment["transactionId"])
	assert.Equal(t, "pending", payment["status"])
}

func TestGetOrder_NotFound(t *testing.T) {
	srv := newTestServer(&fakeOrders{}, &fakeVerifier{})
	defer srv.Close()

	resp, body := do(t, http.MethodGet, srv.URL+"/payments/orders/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "order not found", body["error"])
}

func TestCheckPayment(t *testing.T) {
	tests := []struct {
		name       string
		status     payments.Status
		err        error
		wantStatus int
		wantKind   string
	}{
		{"confirmed", payments.Status{Kind: payments.Confirmed, GiftCardCode: "GIFT-3f2a9c1e"}, nil, http.StatusOK, "confirmed"},
		{"pending", payments.Status{Kind: payments.Pending, Confirmations: 0, Required: 1, TxID: "t"}, nil, http.StatusOK, "pending"},
		{"not found", payments.Status{Kind: payments.NotFound}, nil, http.StatusOK, "not_found"},
		{"cancelled", payments.Status{}, models.ErrOrderCancelled, http.StatusConflict, ""},
		{"unknown order", payments.Status{}, models.ErrOrderNotFound, http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verifier := &fakeVerifier{statuses: []payments.Status{tt.status}, errs: []error{tt.err}}
			srv := newTestServer(&fakeOrders{}, verifier)
			defer srv.Close()

			resp, body := do(t, http.MethodPost, srv.URL+"/payments/orders/x/check", "", nil)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantKind != "" {
				assert.Equal(t, tt.wantKind, body["status"])
			}
		})
	}
}

func TestAdmin_Auth(t *testing.T) {
	srv := newTestServer(&fakeOrders{discount: decimal.NewFromInt(45)}, &fakeVerifier{})
	defer srv.Close()
	url := srv.URL + "/admin/settings/discount"

	resp, body := do(t, http.MethodGet, url, "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "missing token", body["error"])

	resp, body = do(t, http.MethodGet, url, "", map[string]string{"Authorization": "Token abc"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid token format", body["error"])

	resp, _ = do(t, http.MethodGet, url, "", map[string]string{"Authorization": "Bearer " + adminToken(t, "admin", "wrong")})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, url, "", map[string]string{"Authorization": "Bearer " + adminToken(t, "user", testSecret)})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = do(t, http.MethodGet, url, "", map[string]string{"Authorization": "Bearer " + adminToken(t, "admin", testSecret)})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "45", body["percentage"])
}

func TestAdmin_Discount(t *testing.T) {
	orders := &fakeOrders{discount: decimal.NewFromInt(45)}
	srv := newTestServer(orders, &fakeVerifier{})
	defer srv.Close()
	auth := map[string]string{"Authorization": "Bearer " + adminToken(t, "admin", testSecret)}

	resp, body := do(t, http.MethodPut, srv.URL+"/admin/settings/discount", `{"percentage":30}`, auth)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "30", body["percentage"])
	assert.True(t, orders.discount.Equal(decimal.NewFromInt(30)))

	orders.setErr = services.ErrInvalidDiscount
	resp, _ = do(t, http.MethodPut, srv.URL+"/admin/settings/discount", `{"percentage":150}`, auth)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPut, srv.URL+"/admin/settings/discount", `{}`, auth)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdmin_Orders(t *testing.T) {
	completed := sampleOrder(models.OrderCompleted)
	code := "AMZN-1234"
	completed.GiftCardCode = &code
	orders := &fakeOrders{order: completed, orders: []*models.Order{completed}}
	srv := newTestServer(orders, &fakeVerifier{})
	defer srv.Close()
	auth := map[string]string{"Authorization": "Bearer " + adminToken(t, "admin", testSecret)}

	resp, _ := do(t, http.MethodGet, srv.URL+"/admin/orders?status=completed&limit=10&offset=5", "", auth)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, store.ListFilter{Status: models.OrderCompleted, Limit: 10, Offset: 5}, orders.lastFilter)

	resp, _ = do(t, http.MethodGet, srv.URL+"/admin/orders?status=paid", "", auth)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, srv.URL+"/admin/orders?limit=-1", "", auth)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := do(t, http.MethodPost, srv.URL+"/admin/orders/x/complete", `{"code":"AMZN-1234"}`, auth)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "AMZN-1234", orders.lastCode)
	assert.Equal(t, "AMZN-1234", body["giftCardCode"])

	resp, _ = do(t, http.MethodPost, srv.URL+"/admin/orders/x/complete", "", auth)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "", orders.lastCode)

	orders.orderErr = models.ErrInvalidTransition
	resp, _ = do(t, http.MethodPost, srv.URL+"/admin/orders/x/cancel", "", auth)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestUserOrders(t *testing.T) {
	srv := newTestServer(&fakeOrders{orders: []*models.Order{sampleOrder(models.OrderPending)}}, &fakeVerifier{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/payments/users/u1/orders")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, "Amazon", list[0]["giftCard"])
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(&fakeOrders{}, &fakeVerifier{})
	defer srv.Close()

	resp, _ := do(t, http.MethodOptions, srv.URL+"/payments/orders", "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func dialWatch(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/payments/orders/x/watch"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestWatchPayment_StreamsUntilConfirmed(t *testing.T) {
	verifier := &fakeVerifier{statuses: []payments.Status{
		{Kind: payments.NotFound},
		{Kind: payments.Pending, Confirmations: 0, Required: 1, TxID: "t1"},
		{Kind: payments.Confirmed, GiftCardCode: "GIFT-3f2a9c1e", TxID: "t1"},
	}}
	srv := newTestServer(&fakeOrders{}, verifier)
	defer srv.Close()

	conn := dialWatch(t, srv)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var kinds []string
	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err)
			break
		}
		kinds = append(kinds, msg["status"].(string))
		if msg["status"] == "confirmed" {
			assert.Equal(t, "GIFT-3f2a9c1e", msg["giftCardCode"])
		}
	}
	assert.Equal(t, []string{"not_found", "pending", "confirmed"}, kinds)
}

func TestWatchPayment_CancelledClosesStream(t *testing.T) {
	verifier := &fakeVerifier{statuses: []payments.Status{{}}, errs: []error{models.ErrOrderCancelled}}
	srv := newTestServer(&fakeOrders{}, verifier)
	defer srv.Close()

	conn := dialWatch(t, srv)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg["status"])
	assert.Equal(t, "order cancelled", msg["error"])

	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err)
}
