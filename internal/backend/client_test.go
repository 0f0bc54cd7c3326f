package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyellow/whatsapp-commerce-bot/internal/config"
	domerrors "github.com/garyellow/whatsapp-commerce-bot/internal/errors"
	"github.com/garyellow/whatsapp-commerce-bot/internal/logger"
	"github.com/garyellow/whatsapp-commerce-bot/internal/metrics"
)

func newTestClient(t *testing.T, baseURL string, m *metrics.Metrics) *Client {
	t.Helper()
	return New(config.BackendConfig{
		BaseURL:        baseURL,
		APIKey:         "test-key",
		Timeout:        time.Second,
		MaxAttempts:    3,
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  5 * time.Millisecond,
	}, logger.NewWithWriter("error", io.Discard), m)
}

func TestClient_Success(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/admin/merchants/merch_42/approve", r.URL.Path)
		assert.Equal(t, UserAgent, r.Header.Get("User-Agent"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "263700000001", body["approved_by"])

		_, _ = w.Write([]byte(`{"success":true,"data":{"id":"merch_42","business_name":"Acme","owner_name":"Ann"}}`))
	}))
	defer server.Close()

	resp := newTestClient(t, server.URL, nil).ApproveMerchant(context.Background(), "merch_42", "263700000001")
	require.True(t, resp.Success, "error: %s", resp.Error)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var m Merchant
	require.NoError(t, resp.Decode(&m))
	assert.Equal(t, "Acme", m.BusinessName)
	assert.Equal(t, "Ann", m.OwnerName)
}

func TestClient_DecodeBareBody(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"p1","name":"Coffee","price":2.5,"stock":3}]`))
	}))
	defer server.Close()

	resp := newTestClient(t, server.URL, nil).SearchProducts(context.Background(), "coffee", nil)
	require.True(t, resp.Success)

	var products []Product
	require.NoError(t, resp.Decode(&products))
	require.Len(t, products, 1)
	assert.Equal(t, "Coffee", products[0].Name)
	assert.True(t, products[0].Visible())
}

func TestClient_EmptyWriteResponse(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	resp := newTestClient(t, server.URL, nil).ApproveMerchant(context.Background(), "merch_42", "263700000001")
	require.True(t, resp.Success)
	assert.True(t, resp.Empty())

	m := Merchant{ID: "merch_42"}
	require.NoError(t, resp.DecodeOptional(&m))
	assert.Equal(t, "merch_42", m.ID)
	assert.Error(t, resp.Decode(&m), "Decode still requires a payload")

	assert.True(t, (&Response{Data: []byte(" null ")}).Empty())
	assert.False(t, (&Response{Data: []byte(`{}`)}).Empty())
}

func TestClient_RetriesRetryableStatus(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"id":"ord_1","status":"pending"}`))
	}))
	defer server.Close()

	resp := newTestClient(t, server.URL, nil).GetOrder(context.Background(), "ord_1")
	assert.True(t, resp.Success)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ExhaustedRetries(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	m := metrics.New(prometheus.NewRegistry())
	resp := newTestClient(t, server.URL, m).GetOrder(context.Background(), "ord_1")

	assert.False(t, resp.Success)
	assert.Equal(t, UnavailableMessage, resp.Error)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.True(t, resp.Unavailable())
	assert.ErrorIs(t, resp.Err, domerrors.ErrBackendUnavailable)
	assert.Equal(t, int32(3), calls.Load(), "exactly 3 attempts")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BackendRequestsTotal.WithLabelValues("GET /api/orders/{id}", "502")))
}

func TestClient_WritesAreNotRetried(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		call func(c *Client) *Response
	}{
		{"create order", func(c *Client) *Response {
			return c.CreateOrder(context.Background(), CreateOrderRequest{CustomerPhone: "263771234567"})
		}},
		{"broadcast", func(c *Client) *Response {
			return c.SendBroadcast(context.Background(), "263700000001", "hello", "all")
		}},
		{"approve merchant", func(c *Client) *Response {
			return c.ApproveMerchant(context.Background(), "merch_1", "263700000001")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				calls.Add(1)
				w.WriteHeader(http.StatusInternalServerError)
			}))
			defer server.Close()

			resp := tt.call(newTestClient(t, server.URL, nil))
			assert.False(t, resp.Success)
			assert.True(t, resp.Unavailable())
			assert.Equal(t, int32(1), calls.Load(), "POST must be sent once")
		})
	}
}

func TestClient_StatusUpdateIsRetried(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"id":"ord_1","status":"shipped"}}`))
	}))
	defer server.Close()

	resp := newTestClient(t, server.URL, nil).UpdateOrderStatus(context.Background(), "ord_1", "shipped", "merch_1")
	assert.True(t, resp.Success)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_NonRetryableStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"not found", http.StatusNotFound, `{"error":"order not found"}`, "order not found"},
		{"bad request", http.StatusBadRequest, `{"message":"invalid status"}`, "invalid status"},
		{"forbidden", http.StatusForbidden, ``, "Forbidden"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			resp := newTestClient(t, server.URL, nil).GetOrder(context.Background(), "ord_404")
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantErr, resp.Error)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.False(t, resp.Unavailable())
			assert.Equal(t, int32(1), calls.Load(), "must not retry")
		})
	}
}

func TestClient_NotFoundWrapsSentinel(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	resp := newTestClient(t, server.URL, nil).GetUser(context.Background(), "+263 700")
	assert.True(t, resp.NotFound())
	assert.True(t, domerrors.IsNotFound(resp.Err))
}

func TestClient_ConnectionRefused(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	resp := newTestClient(t, url, nil).SystemAlerts(context.Background())
	assert.False(t, resp.Success)
	assert.True(t, resp.Unavailable(), "connection refused is retried then reported unavailable")
	assert.Equal(t, UnavailableMessage, resp.Error)
}

func TestClient_ContextCanceled(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resp := newTestClient(t, server.URL, nil).SystemAlerts(ctx)
	assert.False(t, resp.Success)
	assert.False(t, resp.Unavailable())
}

func TestClient_PathsAndQueries(t *testing.T) {
	t.Parallel()
	var (
		mu  sync.Mutex
		got []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		got = append(got, r.Method+" "+r.URL.RequestURI())
		mu.Unlock()
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, nil)
	ctx := context.Background()
	c.GetUser(ctx, "+263-77 123")
	c.CustomerOrders(ctx, "+263 77123")
	c.MerchantOrders(ctx, "m1", "pending")
	c.MerchantAnalytics(ctx, "m1", "week")
	c.SearchProducts(ctx, "red shoes", map[string]string{"merchant_id": "m1"})
	c.UpdateOrderStatus(ctx, "o1", "ready", "m1")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"GET /api/users/26377123",
		"GET /api/customers/26377123/orders",
		"GET /api/merchants/m1/orders?status=pending",
		"GET /api/merchants/m1/analytics?timeframe=week",
		"GET /api/products/search?merchant_id=m1&q=red+shoes",
		"PUT /api/orders/o1",
	}, got)
}

func TestNormalizePhone(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "263771234567", NormalizePhone("+263 77-123-4567"))
	assert.Equal(t, "", NormalizePhone("abc"))
}

func TestBackoffDelay(t *testing.T) {
	t.Parallel()
	for attempt := range 6 {
		d := backoffDelay(attempt, time.Second, 8*time.Second)
		base := min(time.Second<<attempt, 8*time.Second)
		assert.GreaterOrEqual(t, d, base-base/4, "attempt %d", attempt)
		assert.LessOrEqual(t, d, base+base/4, "attempt %d", attempt)
	}
}
