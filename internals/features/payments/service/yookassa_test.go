package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testPaymentID = "2d9a8a4f-000f-5000-9000-1b0c5c8b8a11"

func newTestYooKassa(t *testing.T, h http.HandlerFunc) (*YooKassaGateway, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewYooKassaGateway(srv.URL, "shop-1", "secret-1", 5*time.Second, zap.NewNop()), srv
}

func TestYooKassaCreatePayment(t *testing.T) {
	type captured struct {
		body          ykCreateRequest
		idemKey       string
		user, pass    string
		basicProvided bool
	}
	ch := make(chan captured, 1)

	g, _ := newTestYooKassa(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payments", r.URL.Path)
		var c captured
		c.idemKey = r.Header.Get("Idempotence-Key")
		c.user, c.pass, c.basicProvided = r.BasicAuth()
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, sonic.Unmarshal(raw, &c.body))
		ch <- c

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "` + testPaymentID + `",
			"status": "pending",
			"paid": false,
			"amount": {"value": "1500.00", "currency": "RUB"},
			"confirmation": {"type": "redirect", "confirmation_url": "https://yoomoney.ru/checkout/payments/v2/contract?orderId=x"},
			"metadata": {"order_id": "TS-100"}
		}`))
	})

	p, err := g.CreatePayment(context.Background(), CreatePaymentInput{
		Amount:         decimal.RequireFromString("1500.00"),
		OrderRef:       "TS-100",
		CustomerPhone:  "89991234567",
		ReturnURL:      "https://shop.example/checkout/success",
		IdempotencyKey: "idem-1",
	})
	require.NoError(t, err)

	c := <-ch
	got := c.body
	assert.Equal(t, "1500.00", got.Amount.Value)
	assert.Equal(t, "RUB", got.Amount.Currency)
	assert.Equal(t, "79991234567", got.Metadata["customer_phone"])
	assert.Equal(t, "TS-100", got.Metadata["order_id"])
	assert.True(t, got.Capture)
	assert.Equal(t, "redirect", got.Confirmation.Type)
	assert.Equal(t, "https://shop.example/checkout/success", got.Confirmation.ReturnURL)
	require.NotNil(t, got.Receipt)
	require.Len(t, got.Receipt.Items, 1)
	assert.Equal(t, "1.00", got.Receipt.Items[0].Quantity)
	assert.Equal(t, "1500.00", got.Receipt.Items[0].Amount.Value)
	assert.Equal(t, "79991234567", got.Receipt.Customer.Phone)

	assert.Equal(t, "idem-1", c.idemKey)
	assert.True(t, c.basicProvided)
	assert.Equal(t, "shop-1", c.user)
	assert.Equal(t, "secret-1", c.pass)

	assert.Equal(t, testPaymentID, p.ID)
	assert.Contains(t, p.ConfirmationURL, "yoomoney.ru")
}

func TestYooKassaCreatePaymentGeneratesIdempotenceKey(t *testing.T) {
	keys := make(chan string, 1)
	g, _ := newTestYooKassa(t, func(w http.ResponseWriter, r *http.Request) {
		keys <- r.Header.Get("Idempotence-Key")
		_, _ = w.Write([]byte(`{"id":"` + testPaymentID + `","status":"pending","amount":{"value":"10.00","currency":"RUB"}}`))
	})
	_, err := g.CreatePayment(context.Background(), CreatePaymentInput{
		Amount: decimal.NewFromInt(10), OrderRef: "TS-1", CustomerPhone: "9991234567",
	})
	require.NoError(t, err)
	assert.Len(t, <-keys, 36)
}

func TestYooKassaCreatePaymentPassesDescription(t *testing.T) {
	g, _ := newTestYooKassa(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","code":"invalid_request","description":"Receipt is missing or illegal"}`))
	})
	_, err := g.CreatePayment(context.Background(), CreatePaymentInput{
		Amount: decimal.NewFromInt(10), OrderRef: "TS-1", CustomerPhone: "9991234567",
	})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindGateway))

	var pe *PaymentError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "Receipt is missing or illegal", pe.PublicMessage())
}

func TestYooKassaCreatePaymentValidatesBeforeCalling(t *testing.T) {
	var calls int32
	g, _ := newTestYooKassa(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})
	_, err := g.CreatePayment(context.Background(), CreatePaymentInput{Amount: decimal.NewFromInt(-1), OrderRef: "TS-1", CustomerPhone: "9991234567"})
	assert.True(t, IsKind(err, KindValidation))
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestYooKassaGetPayment(t *testing.T) {
	t.Run("rejects malformed id without a request", func(t *testing.T) {
		var calls int32
		g, _ := newTestYooKassa(t, func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
		})
		_, err := g.GetPayment(context.Background(), "not-a-uuid")
		assert.True(t, IsKind(err, KindValidation))
		assert.Zero(t, atomic.LoadInt32(&calls))
	})

	t.Run("maps 404 and 401", func(t *testing.T) {
		var status atomic.Int32
		status.Store(http.StatusNotFound)
		g, _ := newTestYooKassa(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(int(status.Load()))
			_, _ = w.Write([]byte(`{"type":"error"}`))
		})
		_, err := g.GetPayment(context.Background(), testPaymentID)
		assert.True(t, IsKind(err, KindNotFound))

		status.Store(http.StatusUnauthorized)
		_, err = g.GetPayment(context.Background(), testPaymentID)
		assert.True(t, IsKind(err, KindAuth))

		status.Store(http.StatusInternalServerError)
		_, err = g.GetPayment(context.Background(), testPaymentID)
		assert.True(t, IsKind(err, KindGateway))
	})

	t.Run("decodes payment", func(t *testing.T) {
		g, _ := newTestYooKassa(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/payments/"+testPaymentID, r.URL.Path)
			_, _ = w.Write([]byte(`{"id":"` + testPaymentID + `","status":"succeeded","paid":true,
				"amount":{"value":"1500.00","currency":"RUB"},"metadata":{"order_number":"TS-100"}}`))
		})
		p, err := g.GetPayment(context.Background(), testPaymentID)
		require.NoError(t, err)
		assert.True(t, p.Settled())
		assert.Equal(t, "TS-100", p.OrderNumber())
	})
}
